// Package queue carries dispatch jobs from the API layer to the worker.
package queue

import (
	"sync"

	"github.com/google/uuid"
)

// DispatchQueueName is the queue the worker consumes.
const DispatchQueueName = "campaign_dispatch"

// DispatchJob asks a worker to run dispatch passes for one campaign.
type DispatchJob struct {
	CampaignID uuid.UUID `json:"campaign_id"`
	UserID     uuid.UUID `json:"user_id"`
}

// Queue publishes dispatch jobs.
type Queue interface {
	PublishDispatch(job DispatchJob) error
}

// InMemoryQueue delivers jobs to registered handlers synchronously. Used by
// tests and single-process deployments without a broker.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers []func(DispatchJob) error
	// Published keeps the jobs seen, for assertions.
	Published []DispatchJob
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{}
}

func (q *InMemoryQueue) PublishDispatch(job DispatchJob) error {
	q.mu.Lock()
	q.Published = append(q.Published, job)
	handlers := make([]func(DispatchJob) error, len(q.handlers))
	copy(handlers, q.handlers)
	q.mu.Unlock()

	for _, h := range handlers {
		if err := h(job); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a handler invoked for every published job.
func (q *InMemoryQueue) Subscribe(handler func(DispatchJob) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

var _ Queue = (*InMemoryQueue)(nil)
