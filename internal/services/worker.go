package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/huangang/teamspace/internal/config"
	"github.com/huangang/teamspace/pkg/logger"
)

// Worker processes email tasks enqueued by AsyncQueue
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor TaskProcessor
	onFailure FailureHandler
	wg        sync.WaitGroup
	running   bool
	mu        sync.Mutex
}

// NewWorker creates a new worker instance; nil when Redis is disabled.
func NewWorker(cfg *config.RedisConfig) *Worker {
	if !cfg.Enabled {
		return nil
	}

	w := &Worker{mux: asynq.NewServeMux()}
	w.server = asynq.NewServer(
		redisClientOpt(cfg),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				notificationQueue: 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(w.handleError),
		},
	)
	return w
}

func (w *Worker) SetProcessor(processor TaskProcessor) {
	w.processor = processor
}

func (w *Worker) OnFailure(handler FailureHandler) {
	w.onFailure = handler
}

// Start begins processing tasks
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.mux.HandleFunc(TaskTypeEmail, w.handleEmailTask)

	w.running = true
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		logger.Info().Msg("starting async worker")
		if err := w.server.Run(w.mux); err != nil {
			logger.Error().Err(err).Msg("async worker stopped with error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	w.server.Shutdown()
	w.running = false
	w.wg.Wait()
	logger.Info().Msg("async worker shutdown complete")
}

func (w *Worker) handleEmailTask(ctx context.Context, t *asynq.Task) error {
	task, err := decodeEmailTask(t.Payload())
	if err != nil {
		// A malformed payload will never succeed.
		return asynq.SkipRetry
	}

	if w.processor == nil {
		logger.Warn().Msg("worker has no processor set")
		return nil
	}
	return w.processor(ctx, task)
}

// handleError runs after every failed attempt. The failure handler only
// sees the last one, once asynq will not retry the task again.
func (w *Worker) handleError(ctx context.Context, t *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	final := !ok || isFinalAttempt(retried, maxRetry, err)

	logger.Warn().Err(err).
		Str("type", t.Type()).
		Int("retried", retried).
		Bool("final", final).
		Msg("task processing failed")
	if w.onFailure == nil || !final {
		return
	}
	if task, decodeErr := decodeEmailTask(t.Payload()); decodeErr == nil {
		w.onFailure(task, err)
	}
}

func isFinalAttempt(retried, maxRetry int, err error) bool {
	return retried >= maxRetry || errors.Is(err, asynq.SkipRetry)
}

func decodeEmailTask(payload []byte) (*EmailTask, error) {
	var task EmailTask
	if err := json.Unmarshal(payload, &task); err != nil {
		logger.Warn().Err(err).Msg("failed to unmarshal email task")
		return nil, err
	}
	return &task, nil
}
