package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	config "github.com/Mayur-00/crosspost-api/configs"
	"github.com/Mayur-00/crosspost-api/internal/models"
	"github.com/Mayur-00/crosspost-api/internal/service"
	"github.com/Mayur-00/crosspost-api/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApiKeyService struct {
	keys map[string]int64
}

func (f *fakeApiKeyService) Create(ctx context.Context, userID int64, label string) (*models.ApiKey, error) {
	return nil, nil
}

func (f *fakeApiKeyService) List(ctx context.Context, userID int64) ([]*models.ApiKey, error) {
	return nil, nil
}

func (f *fakeApiKeyService) GetUserID(ctx context.Context, apiKey string) (int64, error) {
	if userID, ok := f.keys[apiKey]; ok {
		return userID, nil
	}
	return 0, service.ErrApiKeyNotFound
}

func (f *fakeApiKeyService) RemoveAPIKey(ctx context.Context, userID, keyID int64) error {
	return nil
}

func middlewareApp(cfg config.Config, keys map[string]int64) *fiber.App {
	app := fiber.New()
	m := NewAuthMiddleware(cfg, &fakeApiKeyService{keys: keys})
	app.Use(m.AuthMiddleware())
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("user_id").(string))
	})
	return app
}

func TestAuthMiddlewareBearerKey(t *testing.T) {
	cfg := config.Config{CookieName: "crosspost_session", SecretKey: "test-secret"}
	app := middlewareApp(cfg, map[string]int64{"cp_valid": 7})

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer cp_valid")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "7", string(body))
}

func TestAuthMiddlewareQueryKey(t *testing.T) {
	cfg := config.Config{CookieName: "crosspost_session", SecretKey: "test-secret"}
	app := middlewareApp(cfg, map[string]int64{"cp_valid": 7})

	req := httptest.NewRequest("GET", "/whoami?api_key=cp_valid", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAuthMiddlewareUnknownKeyRejected(t *testing.T) {
	cfg := config.Config{CookieName: "crosspost_session", SecretKey: "test-secret"}
	app := middlewareApp(cfg, nil)

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer cp_forged")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthMiddlewareSessionCookie(t *testing.T) {
	cfg := config.Config{CookieName: "crosspost_session", SecretKey: "test-secret"}
	app := middlewareApp(cfg, nil)

	token, err := utils.GenerateToken(cfg.SecretKey, "42", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: cfg.CookieName, Value: token})
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "42", string(body))
}

func TestAuthMiddlewareMissingCredentials(t *testing.T) {
	cfg := config.Config{CookieName: "crosspost_session", SecretKey: "test-secret"}
	app := middlewareApp(cfg, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/whoami", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
