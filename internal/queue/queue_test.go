package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnqueueRejectsPastSchedule(t *testing.T) {
	// A negative delay never reaches Redis, so a zero-value Queue is enough.
	q := &Queue{}

	err := q.Enqueue(PublishPayload{PostID: 42, UserID: 1, Platforms: []string{"x"}}, -time.Minute)
	assert.ErrorIs(t, err, ErrPastSchedule)
}

func TestTaskIDDerivedFromPostID(t *testing.T) {
	assert.Equal(t, "publish:42", taskID(42))
	assert.Equal(t, taskID(7), taskID(7), "same post must map to the same task id")
	assert.NotEqual(t, taskID(7), taskID(8))
}
