package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Mayur-00/crosspost-api/internal/models"
	"github.com/Mayur-00/crosspost-api/internal/repository"
)

var ErrUserNotFound = errors.New("user doesn't exist")

type UserService interface {
	GetUserInfo(ctx context.Context, id int64) (*models.User, []*models.SocialAccount, error)
	RemoveUser(ctx context.Context, userID int64) error
}

type userService struct {
	u repository.UserRepository
	a repository.SocialAccountRepository
}

func NewUserService(u repository.UserRepository, a repository.SocialAccountRepository) UserService {
	return &userService{
		u: u,
		a: a,
	}
}

// GetUserInfo returns the user row plus the connected social accounts, so the
// dashboard can render the profile in one call.
func (s *userService) GetUserInfo(ctx context.Context, id int64) (*models.User, []*models.SocialAccount, error) {
	user, exists, err := s.u.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !exists {
		slog.Info(ErrUserNotFound.Error())
		return nil, nil, ErrUserNotFound
	}

	accounts, err := s.a.ListInfoByUserID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return user, accounts, nil
}

func (s *userService) RemoveUser(ctx context.Context, userID int64) error {
	return s.u.Remove(ctx, userID)
}
