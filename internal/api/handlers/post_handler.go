package handlers

import (
	"errors"
	"log/slog"

	"github.com/Mayur-00/crosspost-api/internal/queue"
	"github.com/Mayur-00/crosspost-api/internal/service"
	"github.com/Mayur-00/crosspost-api/internal/transfer"
	"github.com/gofiber/fiber/v2"
)

type PostHandler struct {
	s service.PostService
	q queue.Enqueuer
}

func NewPostHandler(service service.PostService, q queue.Enqueuer) *PostHandler {
	return &PostHandler{s: service, q: q}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	content := c.FormValue("content")

	// Media is optional; a text-only post has no file part.
	file, err := c.FormFile("media")
	if err != nil {
		file = nil
	}

	post, err := h.s.Create(c.Context(), userID, content, file)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) PublishPost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req transfer.PublishRequest
	if err := c.BodyParser(&req); err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	platforms, delay, err := h.s.Publish(c.Context(), userID, &req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	err = h.q.Enqueue(queue.PublishPayload{
		PostID:    req.PostID,
		UserID:    userID,
		Platforms: platforms,
	}, delay)
	if err != nil {
		if errors.Is(err, queue.ErrDuplicateJob) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Post is already scheduled",
			})
		}
		slog.Info(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Error scheduling post",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Post scheduled successfully",
	})
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	userId := GetUserID(c)
	postId := c.QueryInt("id", 0)

	if postId != 0 {
		post, platformPosts, err := h.s.Info(c.Context(), int64(postId), userId)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unable to list posts",
			})
		}

		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"post":           post,
			"platform_posts": platformPosts,
		})
	}

	posts, err := h.s.List(c.Context(), userId)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list posts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postId := c.QueryInt("id", 0)

	err := h.s.Remove(c.Context(), userID, int64(postId))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to remove post",
		})
	}

	// Only cancel once the ownership check in Remove has passed; the worker
	// tolerates a job whose post is already gone.
	if err := h.q.Cancel(int64(postId)); err != nil {
		slog.Info(err.Error())
	}

	return c.SendStatus(fiber.StatusOK)
}
