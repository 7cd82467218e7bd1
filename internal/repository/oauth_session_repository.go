package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/Mayur-00/crosspost-api/internal/models"
)

type OAuthSessionRepository interface {
	Create(ctx context.Context, session *models.OAuthSession) (int64, error)
	GetByState(ctx context.Context, state string) (*models.OAuthSession, error)
	MarkUsed(ctx context.Context, id int64) (bool, error)
	Remove(ctx context.Context, id int64) error
	RemoveExpired(ctx context.Context) (int64, error)
}

type oauthSessionRepository struct {
	db *sql.DB
}

func NewOAuthSessionRepository(db *sql.DB) OAuthSessionRepository {
	return &oauthSessionRepository{db: db}
}

func (r *oauthSessionRepository) Create(ctx context.Context, session *models.OAuthSession) (int64, error) {
	query := `
		INSERT INTO oauth_sessions (user_id, platform, state, code_verifier, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, session.UserID, session.Platform, session.State, session.CodeVerifier, session.ExpiresAt).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *oauthSessionRepository) GetByState(ctx context.Context, state string) (*models.OAuthSession, error) {
	query := `SELECT id, user_id, platform, state, code_verifier, used, expires_at, created_at
			FROM oauth_sessions WHERE state = $1`
	row := r.db.QueryRowContext(ctx, query, state)

	var s models.OAuthSession
	err := row.Scan(&s.ID, &s.UserID, &s.Platform, &s.State, &s.CodeVerifier, &s.Used, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &s, nil
}

// MarkUsed flips used from false to true. The returned bool reports whether
// this call actually claimed the session; a concurrent caller that lost the
// race gets false.
func (r *oauthSessionRepository) MarkUsed(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE oauth_sessions SET used = TRUE WHERE id = $1 AND used = FALSE`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	return affected == 1, nil
}

func (r *oauthSessionRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM oauth_sessions WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *oauthSessionRepository) RemoveExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM oauth_sessions WHERE expires_at < CURRENT_TIMESTAMP`
	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return affected, nil
}
