package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/threadline/threadline/internal/service"
	"github.com/threadline/threadline/internal/transfer"
)

type ThreadHandler struct {
	s service.ThreadService
}

func NewThreadHandler(service service.ThreadService) *ThreadHandler {
	return &ThreadHandler{s: service}
}

func (h *ThreadHandler) CreateThread(c *fiber.Ctx) error {
	userID := GetUserID(c)

	form, err := c.MultipartForm()
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse form",
		})
	}

	threadID, err := h.s.CreateThread(c.Context(), userID, &transfer.ThreadCreation{
		Content:       c.FormValue("content"),
		FirstComment:  c.FormValue("first_comment"),
		ScheduledTime: c.FormValue("scheduled_time"),
		AccountID:     c.FormValue("account_id"),
		Draft:         c.FormValue("draft") == "true",
	}, form.File["files"])

	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":      threadID,
		"message": "Thread scheduled successfully",
	})
}

func (h *ThreadHandler) ListThreads(c *fiber.Ctx) error {
	userID := GetUserID(c)
	threadID := c.Query("id")

	if threadID != "" {
		thread, err := h.s.ThreadInfo(c.Context(), threadID, userID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unable to get thread",
			})
		}

		return c.Status(fiber.StatusOK).JSON(thread)
	}

	threads, err := h.s.List(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list threads",
		})
	}

	return c.Status(fiber.StatusOK).JSON(threads)
}

func (h *ThreadHandler) RemoveThread(c *fiber.Ctx) error {
	userID := GetUserID(c)
	threadID := c.Query("id")

	err := h.s.Remove(c.Context(), userID, threadID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to remove thread",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
