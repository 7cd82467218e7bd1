package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Mayur-00/crosspost-api/internal/models"
	"github.com/Mayur-00/crosspost-api/internal/repository"
	"github.com/Mayur-00/crosspost-api/internal/service"
)

// TokenRefreshJob proactively refreshes credentials that expire soon, so
// publish jobs rarely pay the refresh round-trip themselves.
type TokenRefreshJob struct {
	sr     repository.SocialAccountRepository
	tokens service.TokenService
}

func NewTokenRefreshJob(sr repository.SocialAccountRepository, tokens service.TokenService) *TokenRefreshJob {
	return &TokenRefreshJob{
		sr:     sr,
		tokens: tokens,
	}
}

func (c *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	timeIn30Minutes := time.Now().Add(30 * time.Minute)

	accounts, err := c.sr.ListExpiring(ctx, timeIn30Minutes)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {

		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.tokens.RefreshExpiring(ctx, acc, 30*time.Minute); err != nil {
				if errors.Is(err, service.ErrAccountExpired) {
					slog.Info("account expired, reconnect required", "account_id", acc.ID, "platform", acc.Platform)
					return
				}
				slog.Info("unable to refresh token", "account_id", acc.ID, "platform", acc.Platform, "error", err.Error())
			}
		}(acc)
	}

	wg.Wait()
}
