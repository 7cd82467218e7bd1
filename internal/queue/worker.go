package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mayur-00/crosspost-api/internal/models"
	"github.com/Mayur-00/crosspost-api/internal/platform"
	"github.com/Mayur-00/crosspost-api/internal/service"
	"github.com/hibiken/asynq"
)

// HandlePublishTask executes one publish job. Every platform in the payload
// gets its attempt even when a sibling fails; only retryable failures bubble
// up so asynq runs the job again. Platforms that already succeeded are
// skipped on retry.
func (j *Worker) HandlePublishTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal publish payload: %w: %w", err, asynq.SkipRetry)
	}

	post, err := j.pr.GetByID(ctx, payload.PostID)
	if err != nil {
		return err
	}
	if post == nil {
		return fmt.Errorf("post %d no longer exists: %w", payload.PostID, asynq.SkipRetry)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		retryErr  error
		anyFailed bool
	)
	semaphore := make(chan struct{}, 4)

	for _, platformName := range payload.Platforms {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(name string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			err := j.publishTo(ctx, post, payload.UserID, name)
			if err == nil {
				return
			}

			mu.Lock()
			defer mu.Unlock()
			var pf *permanentFailure
			if errors.As(err, &pf) {
				anyFailed = true
				return
			}
			if platform.IsRetryable(err) {
				retryErr = err
				return
			}
			anyFailed = true
		}(platformName)
	}
	wg.Wait()

	if retryErr != nil {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		if retried >= maxRetry {
			if err := j.pr.UpdateStatus(ctx, models.PostStatusFailed, post.ID); err != nil {
				slog.Info(err.Error())
			}
		}
		return retryErr
	}

	status := models.PostStatusPosted
	if anyFailed {
		status = models.PostStatusFailed
	}
	if err := j.pr.UpdateStatus(ctx, status, post.ID); err != nil {
		return err
	}
	return nil
}

// publishTo runs the full attempt for one platform: idempotency guard,
// account and token resolution, media fetch, publish, outcome record. A nil
// return means a POSTED row exists for (post, platform).
func (j *Worker) publishTo(ctx context.Context, post *models.Post, userID int64, platformName string) error {
	already, err := j.pp.GetPosted(ctx, post.ID, platformName)
	if err != nil {
		return err
	}
	if already != nil {
		slog.Info("platform already posted, skipping", "post_id", post.ID, "platform", platformName)
		return nil
	}

	acc, err := j.ac.GetActive(ctx, userID, platformName)
	if err != nil {
		return err
	}
	if acc == nil {
		return j.recordFailure(ctx, post, userID, platformName, 0,
			errors.New("no active account for platform"))
	}

	accessToken, err := j.tokens.UsableToken(ctx, acc)
	if err != nil {
		if errors.Is(err, service.ErrAccountExpired) {
			return j.recordFailure(ctx, post, userID, platformName, acc.ID, err)
		}
		return err
	}

	publisher, ok := j.registry.Get(platformName)
	if !ok {
		return j.recordFailure(ctx, post, userID, platformName, acc.ID,
			errors.New("unsupported platform"))
	}

	var result *platform.PublishResult
	if post.MediaURL != "" {
		media, mimeType, err := j.fetcher.Fetch(ctx, post.MediaURL)
		if err != nil {
			if platform.IsRetryable(err) {
				return err
			}
			return j.recordFailure(ctx, post, userID, platformName, acc.ID, err)
		}
		result, err = publisher.PublishMedia(ctx, acc, accessToken, post.Content, media, mimeType)
		if err != nil {
			return j.publishOutcome(ctx, post, userID, platformName, acc.ID, err)
		}
	} else {
		result, err = publisher.PublishText(ctx, acc, accessToken, post.Content)
		if err != nil {
			return j.publishOutcome(ctx, post, userID, platformName, acc.ID, err)
		}
	}

	_, err = j.pp.Create(ctx, &models.PlatformPost{
		PostID:         post.ID,
		AccountID:      acc.ID,
		UserID:         userID,
		Platform:       platformName,
		PlatformPostID: result.PlatformPostID,
		PostURL:        result.PostURL,
		Status:         models.PlatformPostStatusPosted,
		PostedAt:       time.Now(),
	})
	return err
}

// publishOutcome routes a publish error: retryable ones go back to the queue
// without a FAILED row, everything else is recorded as this platform's final
// outcome.
func (j *Worker) publishOutcome(ctx context.Context, post *models.Post, userID int64, platformName string, accountID int64, err error) error {
	if platform.IsRetryable(err) {
		return err
	}
	return j.recordFailure(ctx, post, userID, platformName, accountID, err)
}

func (j *Worker) recordFailure(ctx context.Context, post *models.Post, userID int64, platformName string, accountID int64, cause error) error {
	slog.Info("publish failed", "post_id", post.ID, "platform", platformName, "error", cause.Error())

	_, err := j.pp.Create(ctx, &models.PlatformPost{
		PostID:       post.ID,
		AccountID:    accountID,
		UserID:       userID,
		Platform:     platformName,
		Status:       models.PlatformPostStatusFailed,
		ErrorMessage: cause.Error(),
	})
	if err != nil {
		return err
	}
	return &permanentFailure{cause: cause}
}

// permanentFailure marks a branch whose outcome is already recorded; the job
// must not retry for it.
type permanentFailure struct {
	cause error
}

func (e *permanentFailure) Error() string { return e.cause.Error() }
func (e *permanentFailure) Unwrap() error { return e.cause }
