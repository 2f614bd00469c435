package handlers

import (
	"github.com/gofiber/fiber/v2"
	config "github.com/threadline/threadline/configs"
	job "github.com/threadline/threadline/internal/jobs"
)

// WorkerHandler exposes the publish worker to an external cron (e.g. a
// platform scheduler hitting the endpoint every minute). One call runs the
// same single tick the in-process timer runs.
type WorkerHandler struct {
	cfg config.Config
	job *job.PublishJob
}

func NewWorkerHandler(cfg config.Config, publishJob *job.PublishJob) *WorkerHandler {
	return &WorkerHandler{cfg: cfg, job: publishJob}
}

func (h *WorkerHandler) RunWorker(c *fiber.Ctx) error {
	if h.cfg.CronSecret != "" {
		if c.Get("Authorization") != "Bearer "+h.cfg.CronSecret {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}
	}

	enqueued, err := h.job.RunOnce(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"enqueued": enqueued,
	})
}
