package job

import (
	"context"
	"log/slog"
	"time"

	cfg "github.com/threadline/threadline/configs"
	"github.com/threadline/threadline/internal/repository"
	"github.com/threadline/threadline/internal/service"
)

// CleanupJob purges published and failed threads once they age past the
// retention window. Only meaningful with the retain policy; with the delete
// policy terminal rows never linger.
type CleanupJob struct {
	cfg cfg.Config
	tr  repository.ThreadRepository
	r2  *service.R2Service
}

func NewCleanupJob(cfg cfg.Config, tr repository.ThreadRepository, r2 *service.R2Service) *CleanupJob {
	return &CleanupJob{
		cfg: cfg,
		tr:  tr,
		r2:  r2,
	}
}

func (c *CleanupJob) PurgeOldThreads() {
	if c.cfg.Worker.RetentionPolicy != cfg.RetentionPolicyRetain || c.cfg.Worker.RetentionDays <= 0 {
		return
	}

	ctx := context.Background()
	cutoff := time.Now().AddDate(0, 0, -c.cfg.Worker.RetentionDays)

	threads, err := c.tr.ListTerminalBefore(ctx, cutoff)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	if len(threads) == 0 {
		return
	}

	removed := 0
	for _, thread := range threads {
		// Media is normally gone by now (deleted when the thread went
		// terminal); this sweeps anything a crashed run left behind.
		c.r2.DeleteMediaURLs(ctx, thread.MediaURLs)

		if err := c.tr.Remove(ctx, thread.ID); err != nil {
			slog.Error("error purging thread", "thread_id", thread.ID, "error", err.Error())
			continue
		}
		removed++
	}

	slog.Info("retention cleanup complete", "found", len(threads), "removed", removed)
}
