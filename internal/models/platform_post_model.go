package models

import "time"

// PlatformPost records the outcome of one publish attempt for one
// (post, platform) pair. It is the source of truth for per-platform success.
type PlatformPost struct {
	ID             int64     `db:"id" json:"id"`
	PostID         int64     `db:"post_id" json:"post_id"`
	AccountID      int64     `db:"account_id" json:"account_id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	Platform       string    `db:"platform" json:"platform"`
	PlatformPostID string    `db:"platform_post_id" json:"platform_post_id"`
	PostURL        string    `db:"post_url" json:"post_url"`
	Status         string    `db:"status" json:"status"`
	ErrorMessage   string    `db:"error_message" json:"error_message"`
	PostedAt       time.Time `db:"posted_at" json:"posted_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

const (
	PlatformPostStatusPending = "pending"
	PlatformPostStatusPosted  = "posted"
	PlatformPostStatusFailed  = "failed"
)
