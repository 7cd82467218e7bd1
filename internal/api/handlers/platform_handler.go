package handlers

import (
	"errors"
	"fmt"
	"log/slog"

	config "github.com/Mayur-00/crosspost-api/configs"
	"github.com/Mayur-00/crosspost-api/internal/service"
	"github.com/gofiber/fiber/v2"
)

type PlatformHandler struct {
	cs  service.ConnectService
	cfg config.Config
}

func NewPlatformHandler(cfg config.Config, cs service.ConnectService) *PlatformHandler {
	return &PlatformHandler{
		cs:  cs,
		cfg: cfg,
	}
}

func (h *PlatformHandler) AddSocialAccount(c *fiber.Ctx) error {
	userID := GetUserID(c)

	authURL, err := h.cs.AuthURL(c.Context(), userID, c.Params("platform"))
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedPlatform) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to start authorization",
		})
	}

	return c.Redirect(authURL)
}

// CallbackHandler lands the platform's redirect. The user is identified by
// the state parameter, not a cookie: the browser arrives here from the
// platform's domain.
func (h *PlatformHandler) CallbackHandler(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")
	platformName := c.Params("platform")

	if code == "" || state == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing code or state",
		})
	}

	_, err := h.cs.Callback(c.Context(), platformName, state, code)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "something went wrong",
		})
	}

	redirectURL := fmt.Sprintf("%s/dashboard/accounts", h.cfg.FrontendURL)
	return c.Redirect(redirectURL, fiber.StatusTemporaryRedirect)
}

func (h *PlatformHandler) ListSocialAccounts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	accountList, err := h.cs.List(c.Context(), userID)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch social accounts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(accountList)
}

func (h *PlatformHandler) DeleteSocialAccount(c *fiber.Ctx) error {
	userID := GetUserID(c)
	accountId := c.QueryInt("id", 0)

	err := h.cs.Delete(c.Context(), userID, int64(accountId))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to delete social account",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
