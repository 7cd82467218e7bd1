package job

import (
	"context"
	"log/slog"

	"github.com/Mayur-00/crosspost-api/internal/repository"
)

// SessionCleanupJob deletes OAuth sessions past their TTL so abandoned
// connect flows do not accumulate.
type SessionCleanupJob struct {
	os repository.OAuthSessionRepository
}

func NewSessionCleanupJob(os repository.OAuthSessionRepository) *SessionCleanupJob {
	return &SessionCleanupJob{os: os}
}

func (c *SessionCleanupJob) RemoveExpiredSessions() {
	removed, err := c.os.RemoveExpired(context.Background())
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if removed > 0 {
		slog.Info("removed expired oauth sessions", "count", removed)
	}
}
