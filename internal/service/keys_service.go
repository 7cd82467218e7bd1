package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Mayur-00/crosspost-api/internal/models"
	"github.com/Mayur-00/crosspost-api/internal/repository"
	"github.com/Mayur-00/crosspost-api/pkg/utils"
)

const (
	maxApiKeysPerUser = 5
	maxKeyLabelLength = 64

	// Keys are prefixed so they are recognizable in logs and support tickets.
	apiKeyPrefix = "cp_"
)

var ErrApiKeyNotFound = errors.New("api key doesn't exist")

type ApiKeyService interface {
	Create(ctx context.Context, userID int64, label string) (*models.ApiKey, error)
	List(ctx context.Context, userID int64) ([]*models.ApiKey, error)
	GetUserID(ctx context.Context, apiKey string) (int64, error)
	RemoveAPIKey(ctx context.Context, userID, keyID int64) error
}

type apiKeyService struct {
	k repository.ApiKeyRepository
}

func NewApiKeyService(k repository.ApiKeyRepository) ApiKeyService {
	return &apiKeyService{
		k: k,
	}
}

// Create mints a new key for the user. The plaintext key is returned exactly
// once, in the creation response.
func (s *apiKeyService) Create(ctx context.Context, userID int64, label string) (*models.ApiKey, error) {
	label = strings.TrimSpace(label)
	if len(label) > maxKeyLabelLength {
		err := fmt.Errorf("label exceeds %d characters", maxKeyLabelLength)
		slog.Info(err.Error())
		return nil, err
	}

	keys, err := s.k.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if len(keys) >= maxApiKeysPerUser {
		err = fmt.Errorf("only %d api keys can be created", maxApiKeysPerUser)
		slog.Info(err.Error())
		return nil, err
	}

	key, err := utils.GenerateRandomKey(24)
	if err != nil {
		slog.Info(err.Error())
		return nil, errors.New("error generating api key")
	}

	apiKey := &models.ApiKey{
		UserID: userID,
		Label:  label,
		ApiKey: apiKeyPrefix + key,
	}

	id, err := s.k.Create(ctx, apiKey)
	if err != nil {
		return nil, errors.New("error saving api key")
	}
	apiKey.ID = id

	return apiKey, nil
}

func (s *apiKeyService) GetUserID(ctx context.Context, apiKey string) (int64, error) {
	userID, exists, err := s.k.GetByKey(ctx, apiKey)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrApiKeyNotFound
	}

	return userID, nil
}

func (s *apiKeyService) List(ctx context.Context, userID int64) ([]*models.ApiKey, error) {
	apiKeys, err := s.k.GetByUserID(ctx, userID)
	if err != nil {
		return nil, errors.New("error getting api keys")
	}
	return apiKeys, nil
}

func (s *apiKeyService) RemoveAPIKey(ctx context.Context, userID, keyID int64) error {
	if userID == 0 || keyID == 0 {
		err := errors.New("invalid key id")
		slog.Info(err.Error())
		return err
	}

	owned, err := s.k.CheckByUserID(ctx, keyID, userID)
	if err != nil {
		return err
	}
	if !owned {
		slog.Info(ErrApiKeyNotFound.Error())
		return ErrApiKeyNotFound
	}

	return s.k.Remove(ctx, keyID)
}
