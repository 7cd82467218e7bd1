package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Mayur-00/crosspost-api/internal/models"
	"github.com/Mayur-00/crosspost-api/internal/repository"
	"github.com/Mayur-00/crosspost-api/pkg/utils"
)

const sessionTTL = 10 * time.Minute

var (
	ErrSessionNotFound    = errors.New("oauth session not found")
	ErrSessionAlreadyUsed = errors.New("oauth session already used")
	ErrSessionExpired     = errors.New("oauth session expired")
)

type SessionService interface {
	Create(ctx context.Context, userID int64, platform string, withPKCE bool) (session *models.OAuthSession, challenge string, err error)
	Consume(ctx context.Context, state string) (*models.OAuthSession, error)
}

type sessionService struct {
	os repository.OAuthSessionRepository
}

func NewSessionService(os repository.OAuthSessionRepository) SessionService {
	return &sessionService{os: os}
}

// Create issues a fresh anti-forgery state token for a connect flow. For
// PKCE platforms it also generates a verifier, stored server-side, and
// returns the derived challenge for the authorization URL.
func (s *sessionService) Create(ctx context.Context, userID int64, platform string, withPKCE bool) (*models.OAuthSession, string, error) {
	state, err := utils.GenerateState()
	if err != nil {
		return nil, "", err
	}

	var verifier, challenge string
	if withPKCE {
		verifier, challenge, err = utils.GeneratePKCE()
		if err != nil {
			return nil, "", err
		}
	}

	session := &models.OAuthSession{
		UserID:       userID,
		Platform:     platform,
		State:        state,
		CodeVerifier: verifier,
		ExpiresAt:    time.Now().Add(sessionTTL),
	}

	id, err := s.os.Create(ctx, session)
	if err != nil {
		return nil, "", err
	}
	session.ID = id

	return session, challenge, nil
}

// Consume resolves a callback's state token and claims the session. The
// claim is atomic: under concurrent callback delivery exactly one caller
// wins, everyone else gets ErrSessionAlreadyUsed. An expired session is
// deleted so its state cannot be probed again.
func (s *sessionService) Consume(ctx context.Context, state string) (*models.OAuthSession, error) {
	session, err := s.os.GetByState(ctx, state)
	if err != nil {
		return nil, err
	}
	if session == nil {
		slog.Info(ErrSessionNotFound.Error())
		return nil, ErrSessionNotFound
	}

	if session.Used {
		slog.Info(ErrSessionAlreadyUsed.Error())
		return nil, ErrSessionAlreadyUsed
	}

	if time.Now().After(session.ExpiresAt) {
		if err := s.os.Remove(ctx, session.ID); err != nil {
			slog.Info(err.Error())
		}
		return nil, ErrSessionExpired
	}

	claimed, err := s.os.MarkUsed(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		slog.Info(ErrSessionAlreadyUsed.Error())
		return nil, ErrSessionAlreadyUsed
	}

	session.Used = true
	return session, nil
}
