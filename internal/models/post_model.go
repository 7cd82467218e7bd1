package models

import "time"

type Post struct {
	ID            int64     `db:"id" json:"id"`
	UserID        int64     `db:"user_id" json:"user_id"`
	Content       string    `db:"content" json:"content"`
	MediaURL      string    `db:"media_url" json:"media_url"`
	MediaType     string    `db:"media_type" json:"media_type"`
	ScheduledTime time.Time `db:"scheduled_time" json:"scheduled_time"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

const (
	PostStatusCreated   = "created"
	PostStatusScheduled = "scheduled"
	PostStatusUploaded  = "uploaded"
	PostStatusPosted    = "posted"
	PostStatusFailed    = "failed"
	PostStatusDraft     = "draft"
)
