package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/Mayur-00/crosspost-api/internal/models"
)

type PlatformPostRepository interface {
	Create(ctx context.Context, pp *models.PlatformPost) (int64, error)
	GetPosted(ctx context.Context, postID int64, platform string) (*models.PlatformPost, error)
	ListByPostID(ctx context.Context, postID int64) ([]*models.PlatformPost, error)
	RemoveByPostID(ctx context.Context, postID int64) error
}

type platformPostRepository struct {
	db *sql.DB
}

func NewPlatformPostRepository(db *sql.DB) PlatformPostRepository {
	return &platformPostRepository{db: db}
}

func (r *platformPostRepository) Create(ctx context.Context, pp *models.PlatformPost) (int64, error) {
	query := `
		INSERT INTO platform_posts (post_id, account_id, user_id, platform, platform_post_id, post_url, status, error_message, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, pp.PostID, pp.AccountID, pp.UserID, pp.Platform,
		pp.PlatformPostID, pp.PostURL, pp.Status, pp.ErrorMessage, pp.PostedAt).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

// GetPosted is the worker's idempotency predicate: a non-nil result means the
// post already succeeded on this platform and must not be published again.
func (r *platformPostRepository) GetPosted(ctx context.Context, postID int64, platform string) (*models.PlatformPost, error) {
	query := `SELECT id, post_id, account_id, user_id, platform, platform_post_id, post_url, status, error_message, posted_at, created_at
			FROM platform_posts
			WHERE post_id = $1 AND platform = $2 AND status = $3
			LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, postID, platform, models.PlatformPostStatusPosted)

	var pp models.PlatformPost
	err := row.Scan(&pp.ID, &pp.PostID, &pp.AccountID, &pp.UserID, &pp.Platform,
		&pp.PlatformPostID, &pp.PostURL, &pp.Status, &pp.ErrorMessage, &pp.PostedAt, &pp.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &pp, nil
}

func (r *platformPostRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.PlatformPost, error) {
	query := `SELECT id, post_id, account_id, user_id, platform, platform_post_id, post_url, status, error_message, posted_at, created_at
			FROM platform_posts WHERE post_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.PlatformPost
	for rows.Next() {
		var pp models.PlatformPost
		err := rows.Scan(&pp.ID, &pp.PostID, &pp.AccountID, &pp.UserID, &pp.Platform,
			&pp.PlatformPostID, &pp.PostURL, &pp.Status, &pp.ErrorMessage, &pp.PostedAt, &pp.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, &pp)
	}
	return posts, nil
}

func (r *platformPostRepository) RemoveByPostID(ctx context.Context, postID int64) error {
	query := `DELETE FROM platform_posts WHERE post_id = $1`
	_, err := r.db.ExecContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
