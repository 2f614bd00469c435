package job

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/threadline/threadline/internal/queue"
	"github.com/threadline/threadline/internal/repository"
)

// PublishJob is the scheduler tick: find due threads and fan them out to the
// task queue. The tick holds no state; the claim in the task handler is the
// only exclusivity mechanism.
type PublishJob struct {
	tr     repository.ThreadRepository
	client queue.Enqueuer
}

func NewPublishJob(tr repository.ThreadRepository, client queue.Enqueuer) *PublishJob {
	return &PublishJob{
		tr:     tr,
		client: client,
	}
}

// Run is the cron entry point.
func (j *PublishJob) Run() {
	if _, err := j.RunOnce(context.Background()); err != nil {
		slog.Error("scheduler tick failed", "error", err.Error())
	}
}

// RunOnce performs a single tick and reports how many threads were enqueued.
// A failed due-query skips the whole tick; per-thread enqueue errors skip
// only that thread.
func (j *PublishJob) RunOnce(ctx context.Context) (int, error) {
	runID, _ := gonanoid.New()

	threads, err := j.tr.ListDue(ctx, time.Now().UTC())
	if err != nil {
		slog.Error("error listing due threads, skipping tick", "run_id", runID, "error", err.Error())
		return 0, err
	}

	if len(threads) == 0 {
		return 0, nil
	}

	enqueued := 0
	for _, thread := range threads {
		err := queue.EnqueueThread(j.client, queue.PublishThreadPayload{ThreadID: thread.ID}, 0)
		if err != nil {
			if errors.Is(err, asynq.ErrTaskIDConflict) {
				slog.Debug("thread already enqueued", "run_id", runID, "thread_id", thread.ID)
				continue
			}
			slog.Error("error enqueueing thread", "run_id", runID, "thread_id", thread.ID, "error", err.Error())
			continue
		}
		enqueued++
	}

	slog.Info("scheduler tick complete", "run_id", runID, "due", len(threads), "enqueued", enqueued)
	return enqueued, nil
}
