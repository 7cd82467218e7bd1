package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Mayur-00/crosspost-api/internal/models"
	"github.com/Mayur-00/crosspost-api/internal/queue"
	"github.com/Mayur-00/crosspost-api/internal/transfer"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEnqueuer struct {
	enqueued   []queue.PublishPayload
	cancelled  []int64
	enqueueErr error
}

func (s *stubEnqueuer) Enqueue(payload queue.PublishPayload, delay time.Duration) error {
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	s.enqueued = append(s.enqueued, payload)
	return nil
}

func (s *stubEnqueuer) Cancel(postID int64) error {
	s.cancelled = append(s.cancelled, postID)
	return nil
}

// stubPostService owns post 42 for user 1; everyone else is rejected.
type stubPostService struct {
	removed []int64
}

func (s *stubPostService) Create(ctx context.Context, userID int64, content string, file *multipart.FileHeader) (*models.Post, error) {
	return nil, errors.New("not implemented")
}

func (s *stubPostService) Publish(ctx context.Context, userID int64, req *transfer.PublishRequest) ([]string, time.Duration, error) {
	if userID != 1 || req.PostID != 42 {
		return nil, 0, errors.New("post doesn't exist")
	}
	return []string{models.PlatformX}, 0, nil
}

func (s *stubPostService) Info(ctx context.Context, postID, userID int64) (*models.Post, []*models.PlatformPost, error) {
	return nil, nil, errors.New("not implemented")
}

func (s *stubPostService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	return nil, nil
}

func (s *stubPostService) Remove(ctx context.Context, userID, postID int64) error {
	if userID != 1 || postID != 42 {
		return errors.New("post doesn't exist")
	}
	s.removed = append(s.removed, postID)
	return nil
}

func postHandlerApp(userID string, svc *stubPostService, q *stubEnqueuer) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		return c.Next()
	})

	h := NewPostHandler(svc, q)
	app.Post("/posts/publish", h.PublishPost)
	app.Post("/posts/remove", h.RemovePost)
	return app
}

func TestRemovePostCancelsJobForOwner(t *testing.T) {
	svc := &stubPostService{}
	q := &stubEnqueuer{}
	app := postHandlerApp("1", svc, q)

	req := httptest.NewRequest("POST", "/posts/remove?id=42", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, []int64{42}, svc.removed)
	assert.Equal(t, []int64{42}, q.cancelled)
}

func TestRemovePostNonOwnerDoesNotCancel(t *testing.T) {
	svc := &stubPostService{}
	q := &stubEnqueuer{}
	app := postHandlerApp("99", svc, q)

	req := httptest.NewRequest("POST", "/posts/remove?id=42", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Empty(t, svc.removed)
	assert.Empty(t, q.cancelled, "non-owner must not cancel another user's job")
}

func TestPublishPostEnqueues(t *testing.T) {
	svc := &stubPostService{}
	q := &stubEnqueuer{}
	app := postHandlerApp("1", svc, q)

	req := httptest.NewRequest("POST", "/posts/publish", strings.NewReader(`{"post_id":42,"platforms":["x"]}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Len(t, q.enqueued, 1)
	assert.Equal(t, int64(42), q.enqueued[0].PostID)
	assert.Equal(t, int64(1), q.enqueued[0].UserID)
	assert.Equal(t, []string{models.PlatformX}, q.enqueued[0].Platforms)
}

func TestPublishPostDuplicateJobConflicts(t *testing.T) {
	svc := &stubPostService{}
	q := &stubEnqueuer{enqueueErr: queue.ErrDuplicateJob}
	app := postHandlerApp("1", svc, q)

	req := httptest.NewRequest("POST", "/posts/publish", strings.NewReader(`{"post_id":42,"platforms":["x"]}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestPublishPostNotOwnedRejected(t *testing.T) {
	svc := &stubPostService{}
	q := &stubEnqueuer{}
	app := postHandlerApp("99", svc, q)

	req := httptest.NewRequest("POST", "/posts/publish", strings.NewReader(`{"post_id":42,"platforms":["x"]}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, q.enqueued)
}
