package models

import "time"

// OAuthSession binds an in-progress platform authorization to the user who
// started it. The state token is single use: consuming a session flips the
// used flag and no callback may consume it again.
type OAuthSession struct {
	ID           int64     `db:"id" json:"id"`
	UserID       int64     `db:"user_id" json:"user_id"`
	Platform     string    `db:"platform" json:"platform"`
	State        string    `db:"state" json:"state"`
	CodeVerifier string    `db:"code_verifier" json:"-"`
	Used         bool      `db:"used" json:"used"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
