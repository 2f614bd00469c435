package queue

import (
	"github.com/threadline/threadline/internal/repository"
	"github.com/threadline/threadline/internal/service"
)

type Queue struct {
	tr repository.ThreadRepository
	ps service.PublisherService
}

func NewQueue(tr repository.ThreadRepository, ps service.PublisherService) *Queue {
	return &Queue{
		tr: tr,
		ps: ps,
	}
}

const TaskTypePublishThread = "thread:publish"

type PublishThreadPayload struct {
	ThreadID string `json:"thread_id"`
}
