package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"time"

	"github.com/h2non/filetype"
	"github.com/Mayur-00/crosspost-api/internal/models"
	"github.com/Mayur-00/crosspost-api/internal/repository"
	"github.com/Mayur-00/crosspost-api/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const maxContentLength = 3000

var ErrPastSchedule = errors.New("scheduled time is in the past")

type PostService interface {
	Create(ctx context.Context, userID int64, content string, file *multipart.FileHeader) (*models.Post, error)
	Publish(ctx context.Context, userID int64, req *transfer.PublishRequest) (platforms []string, delay time.Duration, err error)
	Info(ctx context.Context, postID, userID int64) (*models.Post, []*models.PlatformPost, error)
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	Remove(ctx context.Context, userID, postID int64) error
}

type postService struct {
	pr repository.PostRepository
	pp repository.PlatformPostRepository
	ac repository.SocialAccountRepository
	r2 *R2Service
}

func NewPostService(
	pr repository.PostRepository,
	pp repository.PlatformPostRepository,
	ac repository.SocialAccountRepository,
	r2 *R2Service) PostService {
	return &postService{
		pr: pr,
		pp: pp,
		ac: ac,
		r2: r2,
	}
}

func (s *postService) Create(ctx context.Context, userID int64, content string, file *multipart.FileHeader) (*models.Post, error) {
	if content == "" && file == nil {
		err := errors.New("post needs content or media")
		slog.Info(err.Error())
		return nil, err
	}
	if len(content) > maxContentLength {
		err := fmt.Errorf("content exceeds %d characters", maxContentLength)
		slog.Info(err.Error())
		return nil, err
	}

	post := models.Post{
		UserID:        userID,
		Content:       content,
		ScheduledTime: time.Now(),
		Status:        models.PostStatusCreated,
	}

	if file != nil {
		mediaURL, mediaType, err := s.uploadMedia(ctx, file)
		if err != nil {
			return nil, err
		}
		post.MediaURL = mediaURL
		post.MediaType = mediaType
		post.Status = models.PostStatusUploaded
	}

	postID, err := s.pr.Create(ctx, nil, &post)
	if err != nil {
		return nil, fmt.Errorf("error creating post: %w", err)
	}
	post.ID = postID

	return &post, nil
}

func (s *postService) uploadMedia(ctx context.Context, file *multipart.FileHeader) (string, string, error) {
	fileContent, err := file.Open()
	if err != nil {
		return "", "", fmt.Errorf("error opening file: %w", err)
	}
	defer fileContent.Close()

	fileBytes, err := io.ReadAll(fileContent)
	if err != nil {
		return "", "", fmt.Errorf("error reading file content: %w", err)
	}

	kind, err := filetype.Match(fileBytes)
	if err != nil {
		return "", "", fmt.Errorf("error detecting file type: %w", err)
	}

	if !allowedMediaTypes[kind.Extension] {
		err = fmt.Errorf("unsupported media type: %s", kind.Extension)
		slog.Info(err.Error())
		return "", "", err
	}

	key, err := gonanoid.New()
	if err != nil {
		return "", "", err
	}
	key = key + "." + kind.Extension

	mediaURL, err := s.r2.Upload(ctx, key, fileBytes, kind.MIME.Value)
	if err != nil {
		return "", "", fmt.Errorf("error uploading media: %w", err)
	}

	return mediaURL, kind.MIME.Value, nil
}

// Publish validates a publish request and returns the normalized platform
// list and the scheduling delay. Input errors are rejected here, before
// anything reaches the queue.
func (s *postService) Publish(ctx context.Context, userID int64, req *transfer.PublishRequest) ([]string, time.Duration, error) {
	if req == nil || req.PostID == 0 {
		err := errors.New("post id is required")
		slog.Info(err.Error())
		return nil, 0, err
	}

	owned, err := s.pr.CheckByUserID(ctx, req.PostID, userID)
	if err != nil {
		return nil, 0, err
	}
	if !owned {
		err = errors.New("post doesn't exist")
		slog.Info(err.Error())
		return nil, 0, err
	}

	platforms, err := normalizePlatforms(req.Platforms)
	if err != nil {
		return nil, 0, err
	}

	for _, p := range platforms {
		acc, err := s.ac.GetActive(ctx, userID, p)
		if err != nil {
			return nil, 0, err
		}
		if acc == nil {
			err = fmt.Errorf("no active %s account connected", p)
			slog.Info(err.Error())
			return nil, 0, err
		}
	}

	scheduledTime := time.Now()
	var delay time.Duration
	if req.ScheduledTime != "" {
		scheduledTime, err = time.Parse(time.RFC3339, req.ScheduledTime)
		if err != nil {
			err = fmt.Errorf("invalid scheduled time format: %w", err)
			slog.Info(err.Error())
			return nil, 0, err
		}

		delay = time.Until(scheduledTime)
		if delay < 0 {
			slog.Info(ErrPastSchedule.Error())
			return nil, 0, ErrPastSchedule
		}
	}

	if err := s.pr.UpdateSchedule(ctx, req.PostID, scheduledTime); err != nil {
		return nil, 0, fmt.Errorf("error scheduling post: %w", err)
	}

	return platforms, delay, nil
}

func (s *postService) Info(ctx context.Context, postID, userID int64) (*models.Post, []*models.PlatformPost, error) {
	owned, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, nil, err
	}
	if !owned {
		err = errors.New("post doesn't exist")
		slog.Info(err.Error())
		return nil, nil, err
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, nil, err
	}

	platformPosts, err := s.pp.ListByPostID(ctx, postID)
	if err != nil {
		return nil, nil, err
	}

	return post, platformPosts, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	return s.pr.GetByUserID(ctx, userID)
}

func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	owned, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return err
	}
	if !owned {
		err = errors.New("post doesn't exist")
		slog.Info(err.Error())
		return err
	}

	if err := s.pp.RemoveByPostID(ctx, postID); err != nil {
		return err
	}

	return s.pr.Remove(ctx, postID)
}
