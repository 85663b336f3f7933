package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/huangang/teamspace/internal/config"
	"github.com/huangang/teamspace/pkg/logger"
)

const (
	TaskTypeEmail = "email:send"

	notificationQueue = "notifications"
)

// EmailTask is a best-effort outbound email. It survives a trip through Redis,
// so every field is plain data.
type EmailTask struct {
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data"`
}

// TaskProcessor handles one email task.
type TaskProcessor func(context.Context, *EmailTask) error

// FailureHandler is the failure channel for background side effects. It is
// called once per task that finally failed: right away on the in-process
// queue, and after the last retry on the asynq worker.
type FailureHandler func(task *EmailTask, err error)

// TaskQueue defines the interface for best-effort side-effect processing
type TaskQueue interface {
	// Enqueue adds a task to the queue; it never waits for the task to run
	Enqueue(task *EmailTask) error
	// IsAsync returns true if tasks are handed to an out-of-process worker
	IsAsync() bool
	// Close gracefully shuts down the queue
	Close() error
}

// InitTaskQueue picks the asynq queue when Redis is enabled and reachable,
// otherwise the in-process queue.
func InitTaskQueue(cfg *config.Config) TaskQueue {
	if cfg.Redis.Enabled {
		queue, err := NewAsyncQueue(&cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, email tasks fall back to in-process queue")
			return NewSyncQueue()
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("async task queue initialized")
		return queue
	}
	logger.Info().Msg("in-process task queue initialized (redis disabled)")
	return NewSyncQueue()
}

// AsyncQueue implements TaskQueue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
}

// NewAsyncQueue creates a new Redis-based async queue
func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	redisOpt := redisClientOpt(cfg)
	client := asynq.NewClient(redisOpt)

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

func redisClientOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// Enqueue adds an email task to the async queue
func (q *AsyncQueue) Enqueue(task *EmailTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	info, err := q.client.Enqueue(asynq.NewTask(TaskTypeEmail, payload),
		asynq.Queue(notificationQueue),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return err
	}

	logger.Debug().Str("task_id", info.ID).Str("queue", info.Queue).Msg("email task enqueued")
	return nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue runs tasks on goroutines inside the server process.
type SyncQueue struct {
	processor TaskProcessor
	onFailure FailureHandler
	wg        sync.WaitGroup
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

// SetProcessor sets the function that runs each task
func (q *SyncQueue) SetProcessor(processor TaskProcessor) {
	q.processor = processor
}

// OnFailure registers the failure channel
func (q *SyncQueue) OnFailure(handler FailureHandler) {
	q.onFailure = handler
}

// Enqueue starts the task on its own goroutine so the caller never waits on it.
func (q *SyncQueue) Enqueue(task *EmailTask) error {
	if q.processor == nil {
		logger.Warn().Str("type", TaskTypeEmail).Msg("no processor set, task dropped")
		return nil
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if err := q.processor(context.Background(), task); err != nil {
			logger.Warn().Err(err).Str("to", task.To).Msg("email task failed")
			if q.onFailure != nil {
				q.onFailure(task, err)
			}
		}
	}()

	return nil
}

func (q *SyncQueue) IsAsync() bool {
	return false
}

// Close waits for in-flight tasks.
func (q *SyncQueue) Close() error {
	q.wg.Wait()
	return nil
}
