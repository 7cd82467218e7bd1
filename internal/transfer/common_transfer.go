package transfer

import "github.com/golang-jwt/jwt/v5"

type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

type PublishRequest struct {
	PostID        int64    `json:"post_id"`
	Platforms     []string `json:"platforms"`
	ScheduledTime string   `json:"scheduled_time"`
}
