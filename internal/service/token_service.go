package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	config "github.com/Mayur-00/crosspost-api/configs"
	"github.com/Mayur-00/crosspost-api/internal/models"
	"github.com/Mayur-00/crosspost-api/internal/platform"
	"github.com/Mayur-00/crosspost-api/internal/repository"
	"github.com/Mayur-00/crosspost-api/pkg/utils"
	"golang.org/x/sync/singleflight"
)

// ErrAccountExpired means the credential is expired and there is no refresh
// path; the user has to reconnect the account.
var ErrAccountExpired = errors.New("account expired; reconnect required")

type TokenService interface {
	UsableToken(ctx context.Context, acc *models.SocialAccount) (string, error)
	RefreshExpiring(ctx context.Context, acc *models.SocialAccount, within time.Duration) error
}

type tokenService struct {
	cfg      config.Config
	sa       repository.SocialAccountRepository
	registry *platform.Registry
	group    singleflight.Group
}

func NewTokenService(cfg config.Config, sa repository.SocialAccountRepository, registry *platform.Registry) TokenService {
	return &tokenService{
		cfg:      cfg,
		sa:       sa,
		registry: registry,
	}
}

// UsableToken returns a decrypted access token that is valid right now. A
// non-expired credential is returned unchanged with no network call. An
// expired one is refreshed at most once per account regardless of how many
// callers arrive concurrently: the singleflight group coalesces in-process
// callers and the conditional token update backstops other processes.
func (s *tokenService) UsableToken(ctx context.Context, acc *models.SocialAccount) (string, error) {
	if time.Now().Before(acc.TokenExpiresAt) {
		return utils.Decrypt(acc.AccessToken, []byte(s.cfg.SecretKey))
	}

	token, err, _ := s.group.Do(strconv.FormatInt(acc.ID, 10), func() (interface{}, error) {
		return s.refresh(ctx, acc.ID, 0)
	})
	if err != nil {
		return "", err
	}

	return token.(string), nil
}

// RefreshExpiring refreshes the credential ahead of time when it expires
// within the given window. A credential that still has more runway than the
// window is left alone.
func (s *tokenService) RefreshExpiring(ctx context.Context, acc *models.SocialAccount, within time.Duration) error {
	if time.Now().Add(within).Before(acc.TokenExpiresAt) {
		return nil
	}

	_, err, _ := s.group.Do(strconv.FormatInt(acc.ID, 10), func() (interface{}, error) {
		return s.refresh(ctx, acc.ID, within)
	})
	return err
}

func (s *tokenService) refresh(ctx context.Context, accountID int64, leeway time.Duration) (string, error) {
	// Re-read the row: a coalesced caller may be holding a stale copy that
	// another worker already refreshed.
	acc, err := s.sa.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}
	if acc == nil {
		return "", ErrAccountExpired
	}

	if time.Now().Add(leeway).Before(acc.TokenExpiresAt) {
		return utils.Decrypt(acc.AccessToken, []byte(s.cfg.SecretKey))
	}

	if acc.RefreshToken == "" {
		if err := s.sa.MarkStatus(ctx, acc.ID, models.AccountStatusExpired); err != nil {
			slog.Info(err.Error())
		}
		return "", ErrAccountExpired
	}

	pub, ok := s.registry.Get(acc.Platform)
	if !ok {
		return "", errors.New("no publisher registered for platform " + acc.Platform)
	}

	refreshToken, err := utils.Decrypt(acc.RefreshToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return "", err
	}

	pair, err := pub.RefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, platform.ErrRefreshUnsupported) || platform.IsCredentialError(err) {
			if markErr := s.sa.MarkStatus(ctx, acc.ID, models.AccountStatusExpired); markErr != nil {
				slog.Info(markErr.Error())
			}
			return "", ErrAccountExpired
		}
		return "", err
	}

	encryptedAccess, err := utils.Encrypt([]byte(pair.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return "", err
	}

	var encryptedRefresh string
	if pair.RefreshToken != "" {
		encryptedRefresh, err = utils.Encrypt([]byte(pair.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return "", err
		}
	}

	update := &models.SocialAccount{
		AccessToken:    encryptedAccess,
		RefreshToken:   encryptedRefresh,
		TokenExpiresAt: pair.ExpiresAt,
	}

	err = s.sa.UpdateTokens(ctx, acc.ID, acc.AccessToken, update)
	if err != nil {
		if errors.Is(err, repository.ErrStaleToken) {
			// Another process committed a refresh first; its token is the
			// live one.
			fresh, readErr := s.sa.GetByID(ctx, acc.ID)
			if readErr != nil {
				return "", readErr
			}
			if fresh == nil {
				return "", ErrAccountExpired
			}
			return utils.Decrypt(fresh.AccessToken, []byte(s.cfg.SecretKey))
		}
		return "", err
	}

	return pair.AccessToken, nil
}
