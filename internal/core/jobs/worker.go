package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Worker polls a queue and dispatches jobs to registered handlers.
type Worker struct {
	queue        *Queue
	queueName    string
	handlers     map[string]Handler
	pollInterval time.Duration
}

func NewWorker(queue *Queue, queueName string, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Worker{
		queue:        queue,
		queueName:    queueName,
		handlers:     make(map[string]Handler),
		pollInterval: pollInterval,
	}
}

func (w *Worker) Register(h Handler) {
	w.handlers[h.Type()] = h
}

// Start runs the polling loop until the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	log.Info().Str("queue", w.queueName).Msg("job worker started")
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("queue", w.queueName).Msg("job worker stopped")
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain processes jobs until the queue is empty.
func (w *Worker) drain(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx, w.queueName)
		if err != nil {
			log.Error().Err(err).Str("queue", w.queueName).Msg("dequeue failed")
			return
		}
		if job == nil {
			return
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *Job) {
	handler, ok := w.handlers[job.Type]
	if !ok {
		log.Error().Str("job_id", job.ID.String()).Str("type", job.Type).Msg("no handler for job type")
		_ = w.queue.MarkFailed(ctx, job, errNoHandler(job.Type))
		return
	}

	if err := handler.Handle(ctx, job); err != nil {
		log.Warn().Err(err).
			Str("job_id", job.ID.String()).
			Str("order_id", job.OrderID.String()).
			Int("attempt", job.Attempts).
			Msg("job failed")
		if markErr := w.queue.MarkFailed(ctx, job, err); markErr != nil {
			log.Error().Err(markErr).Str("job_id", job.ID.String()).Msg("mark failed errored")
		}
		return
	}

	if err := w.queue.MarkCompleted(ctx, job.ID); err != nil {
		log.Error().Err(err).Str("job_id", job.ID.String()).Msg("mark completed errored")
	}
}

type errNoHandler string

func (e errNoHandler) Error() string {
	return "no handler registered for job type " + string(e)
}
