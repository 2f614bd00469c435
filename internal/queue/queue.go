package queue

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer is the slice of *asynq.Client the queue uses; the scheduler tick
// tests swap in a fake.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueThread schedules one publish task. The TaskID pins the task to the
// thread so overlapping scheduler ticks cannot enqueue the same thread twice;
// a conflict surfaces as asynq.ErrTaskIDConflict.
func EnqueueThread(client Enqueuer, payload PublishThreadPayload, delay time.Duration) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePublishThread, taskPayload)

	_, err = client.Enqueue(task, asynq.TaskID("publish:"+payload.ThreadID), asynq.ProcessIn(delay))
	if err != nil {
		return err
	}

	slog.Info("publish task scheduled", "thread_id", payload.ThreadID)
	return nil
}
