package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

func (q *Queue) HandlePublishTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishThreadPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	return q.PublishThread(ctx, payload.ThreadID)
}

// PublishThread claims the thread then hands it to the publisher. A lost
// claim means another worker (or an overlapping tick) owns it — not an error.
func (q *Queue) PublishThread(ctx context.Context, threadID string) error {
	claimed, err := q.tr.Claim(ctx, threadID)
	if err != nil {
		return err
	}
	if !claimed {
		slog.Debug("thread already claimed or no longer scheduled, skipping", "thread_id", threadID)
		return nil
	}

	thread, err := q.tr.GetByID(ctx, threadID)
	if err != nil {
		return err
	}
	if thread == nil {
		slog.Info("claimed thread no longer exists", "thread_id", threadID)
		return nil
	}

	return q.ps.PublishThread(ctx, thread)
}
