package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	config "github.com/Mayur-00/crosspost-api/configs"
	"github.com/Mayur-00/crosspost-api/internal/models"
	"github.com/Mayur-00/crosspost-api/internal/platform"
	"github.com/Mayur-00/crosspost-api/internal/repository"
	"github.com/Mayur-00/crosspost-api/pkg/utils"
)

var ErrUnsupportedPlatform = errors.New("unsupported platform")

// ConnectService runs the account connect flow: it hands out authorization
// URLs backed by OAuth sessions and turns callbacks into SocialAccount rows.
type ConnectService interface {
	AuthURL(ctx context.Context, userID int64, platformName string) (string, error)
	Callback(ctx context.Context, platformName, state, code string) (userID int64, err error)
	List(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	Delete(ctx context.Context, userID, accountID int64) error
}

type connectService struct {
	cfg        config.Config
	sessions   SessionService
	sa         repository.SocialAccountRepository
	connectors map[string]platform.Connector
}

func NewConnectService(cfg config.Config, sessions SessionService, sa repository.SocialAccountRepository, connectors ...platform.Connector) ConnectService {
	byName := make(map[string]platform.Connector, len(connectors))
	for _, c := range connectors {
		byName[c.Platform()] = c
	}
	return &connectService{
		cfg:        cfg,
		sessions:   sessions,
		sa:         sa,
		connectors: byName,
	}
}

func (s *connectService) AuthURL(ctx context.Context, userID int64, platformName string) (string, error) {
	connector, ok := s.connectors[platformName]
	if !ok {
		slog.Info(ErrUnsupportedPlatform.Error())
		return "", ErrUnsupportedPlatform
	}

	session, challenge, err := s.sessions.Create(ctx, userID, platformName, connector.RequiresPKCE())
	if err != nil {
		return "", err
	}

	return connector.AuthURL(session.State, challenge), nil
}

// Callback consumes the session behind the state token, exchanges the code
// (releasing the PKCE verifier only here), fetches the platform profile and
// stores the account. A previously active account for the same (user,
// platform) is marked expired so at most one active row is ever consulted.
func (s *connectService) Callback(ctx context.Context, platformName, state, code string) (int64, error) {
	if code == "" || state == "" {
		err := errors.New("code or state is empty")
		slog.Info(err.Error())
		return 0, err
	}

	connector, ok := s.connectors[platformName]
	if !ok {
		slog.Info(ErrUnsupportedPlatform.Error())
		return 0, ErrUnsupportedPlatform
	}

	session, err := s.sessions.Consume(ctx, state)
	if err != nil {
		return 0, err
	}

	if session.Platform != platformName {
		err = errors.New("oauth session platform mismatch")
		slog.Info(err.Error())
		return 0, err
	}

	pair, err := connector.ExchangeCode(ctx, code, session.CodeVerifier)
	if err != nil {
		return 0, err
	}

	profile, err := connector.UserProfile(ctx, pair.AccessToken)
	if err != nil {
		return 0, err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(pair.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return 0, err
	}

	var encryptedRefreshToken string
	if pair.RefreshToken != "" {
		encryptedRefreshToken, err = utils.Encrypt([]byte(pair.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return 0, err
		}
	}

	if prior, err := s.sa.GetActive(ctx, session.UserID, platformName); err == nil && prior != nil {
		if err := s.sa.MarkStatus(ctx, prior.ID, models.AccountStatusExpired); err != nil {
			slog.Info(err.Error())
		}
	}

	accountInfo := &models.SocialAccount{
		UserID:          session.UserID,
		Platform:        platformName,
		AccountID:       profile.PlatformUserID,
		AccountName:     profile.Name,
		AccountUsername: profile.Username,
		ProfilePicture:  profile.Picture,
		AccessToken:     encryptedAccessToken,
		RefreshToken:    encryptedRefreshToken,
		TokenExpiresAt:  pair.ExpiresAt,
		ProfileData:     profile.Raw,
	}

	if _, err = s.sa.Create(ctx, nil, accountInfo); err != nil {
		return 0, err
	}

	return session.UserID, nil
}

func (s *connectService) List(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	if userID == 0 {
		err := errors.New("UserID is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	accounts, err := s.sa.ListInfoByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Error getting social accounts")
	}

	return accounts, nil
}

func (s *connectService) Delete(ctx context.Context, userID, accountID int64) error {
	if userID == 0 || accountID == 0 {
		err := errors.New("UserID or AccountID is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.sa.CheckByUserID(ctx, accountID, userID)
	if err != nil {
		return err
	}

	if !isValid {
		err = errors.New("Social account doesn't exist")
		slog.Info(err.Error())
		return err
	}

	if err = s.sa.Remove(ctx, accountID); err != nil {
		return fmt.Errorf("Error removing account Info")
	}

	return nil
}
