package queue

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/Mayur-00/crosspost-api/internal/platform"
	"github.com/hibiken/asynq"
)

var (
	ErrDuplicateJob = errors.New("post already has a pending publish job")
	ErrPastSchedule = errors.New("scheduled time is in the past")
)

// Enqueuer is what handlers depend on, so tests can swap the Redis-backed
// queue for a fake.
type Enqueuer interface {
	Enqueue(payload PublishPayload, delay time.Duration) error
	Cancel(postID int64) error
}

type Queue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func NewQueue(redisOpt asynq.RedisClientOpt) *Queue {
	return &Queue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
	}
}

// Enqueue schedules exactly one publish task per post. The task id is derived
// from the post id, so a second schedule of the same post is rejected instead
// of duplicated.
func (q *Queue) Enqueue(payload PublishPayload, delay time.Duration) error {
	if delay < 0 {
		return ErrPastSchedule
	}

	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePublishPost, taskPayload)

	_, err = q.client.Enqueue(task,
		asynq.TaskID(taskID(payload.PostID)),
		asynq.MaxRetry(1),
		asynq.ProcessIn(delay),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return ErrDuplicateJob
		}
		return err
	}

	slog.Info("publish task scheduled", "post_id", payload.PostID, "delay", delay.String())
	return nil
}

// Cancel removes the pending task for a post. A task that already ran or
// never existed is not an error.
func (q *Queue) Cancel(postID int64) error {
	err := q.inspector.DeleteTask("default", taskID(postID))
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func taskID(postID int64) string {
	return "publish:" + strconv.FormatInt(postID, 10)
}

// RetryDelay backs off exponentially from five seconds, except when the
// platform told us exactly how long to wait.
func RetryDelay(n int, err error, task *asynq.Task) time.Duration {
	var pe *platform.PublishError
	if errors.As(err, &pe) && pe.RetryAfter > 0 {
		return pe.RetryAfter
	}
	return time.Duration(1<<n) * 5 * time.Second
}
