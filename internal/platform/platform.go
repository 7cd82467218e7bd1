package platform

import (
	"context"
	"errors"
	"time"

	"github.com/Mayur-00/crosspost-api/internal/models"
)

// ErrRefreshUnsupported is returned by adapters whose platform does not issue
// refresh tokens; an expired account there can only be reconnected.
var ErrRefreshUnsupported = errors.New("platform does not support token refresh")

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type PublishResult struct {
	PlatformPostID string
	PostURL        string
}

// AccountProfile is the platform-side identity captured when an account is
// connected.
type AccountProfile struct {
	PlatformUserID string
	Name           string
	Username       string
	Picture        string
	Raw            []byte
}

// Publisher is the uniform capability the dispatch worker sees. Adapters do
// not retry internally; retries belong to the job queue.
type Publisher interface {
	Platform() string
	PublishText(ctx context.Context, acc *models.SocialAccount, accessToken, text string) (*PublishResult, error)
	PublishMedia(ctx context.Context, acc *models.SocialAccount, accessToken, text string, media []byte, mimeType string) (*PublishResult, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error)
}

// Connector is the OAuth side of an adapter, consumed by the connect flow.
type Connector interface {
	Platform() string
	RequiresPKCE() bool
	AuthURL(state, challenge string) string
	ExchangeCode(ctx context.Context, code, verifier string) (*TokenPair, error)
	UserProfile(ctx context.Context, accessToken string) (*AccountProfile, error)
}

// Registry maps a platform identifier to its publisher. Adding a platform
// means registering an adapter here, not editing a switch.
type Registry struct {
	publishers map[string]Publisher
}

func NewRegistry(publishers ...Publisher) *Registry {
	r := &Registry{publishers: make(map[string]Publisher)}
	for _, p := range publishers {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Publisher) {
	r.publishers[p.Platform()] = p
}

func (r *Registry) Get(platform string) (Publisher, bool) {
	p, ok := r.publishers[platform]
	return p, ok
}

func (r *Registry) Platforms() []string {
	names := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		names = append(names, name)
	}
	return names
}
