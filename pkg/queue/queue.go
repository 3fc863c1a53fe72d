// pkg/queue/queue.go
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/lefse-processor/config"
)

// TaskTypeAnalysisRun is the asynq type of a pipeline run.
const TaskTypeAnalysisRun = "lefse:run"

// Task states stored in redis.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Queues in priority order.
var Queues = map[string]int{
	"critical": 6,
	"default":  3,
	"low":      1,
}

var queueNames = []string{"critical", "default", "low"}

type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	CancelTask(ctx context.Context, taskID string) error
	SaveFinalStatus(ctx context.Context, status *TaskStatus) error
}

type Task struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// NewTask builds a task with a JSON payload.
func NewTask(id, taskType string, priority int, payload interface{}) (*Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return &Task{
		ID:        id,
		Type:      taskType,
		Priority:  priority,
		Payload:   data,
		CreatedAt: time.Now(),
	}, nil
}

// DecodeTask reads a task enqueued by Enqueue.
func DecodeTask(data []byte) (*Task, error) {
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	if task.ID == "" || len(task.Payload) == 0 {
		return nil, fmt.Errorf("invalid task data: missing required fields")
	}
	return &task, nil
}

type TaskStatus struct {
	TaskID     string    `json:"taskId"`
	Status     string    `json:"status"`
	Progress   float64   `json:"progress"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
	config    *QueueConfig
}

type QueueConfig struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	MaxRetries     int
	ProcessTimeout time.Duration
	StatusTTL      time.Duration
}

// RedisOpt is the asynq connection for cfg.
func (cfg *QueueConfig) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// GetQueue creates the queue from the worker configuration. Runs are not
// retried: a failed run has already reported its error to the portal.
func GetQueue() (*AsynqQueue, error) {
	wc := config.GetWorkerConfig()
	return NewAsynqQueue(&QueueConfig{
		RedisAddr:      wc.RedisAddr,
		RedisPassword:  wc.RedisPassword,
		RedisDB:        wc.RedisDB,
		MaxRetries:     0,
		ProcessTimeout: 2 * time.Hour,
		StatusTTL:      24 * time.Hour,
	})
}

func NewAsynqQueue(cfg *QueueConfig) (*AsynqQueue, error) {
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.StatusTTL == 0 {
		cfg.StatusTTL = 24 * time.Hour
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return &AsynqQueue{
		client:    asynq.NewClient(cfg.RedisOpt()),
		inspector: asynq.NewInspector(cfg.RedisOpt()),
		redis:     redisClient,
		config:    cfg,
	}, nil
}

// QueueFor maps a task priority to a queue name.
func QueueFor(priority int) string {
	switch priority {
	case 1:
		return "critical"
	case 2:
		return "default"
	default:
		return "low"
	}
}

func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(q.config.MaxRetries),
		asynq.TaskID(task.ID),
		asynq.Queue(QueueFor(task.Priority)),
	}
	if q.config.ProcessTimeout > 0 {
		opts = append(opts, asynq.Timeout(q.config.ProcessTimeout))
	}

	t := asynq.NewTask(task.Type, payload, opts...)
	info, err := q.client.EnqueueContext(ctx, t)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	task.ID = info.ID

	return nil
}

// GetTaskStatus prefers the status saved in redis and falls back to the
// asynq inspector.
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	key := statusKey(taskID)
	data, err := q.redis.Get(ctx, key).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}
	if err == nil {
		var status TaskStatus
		if err := json.Unmarshal(data, &status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status: %w", err)
		}
		return &status, nil
	}

	var lastErr error
	for _, queueName := range queueNames {
		info, err := q.inspector.GetTaskInfo(queueName, taskID)
		if err == nil {
			return convertAsynqStatus(info), nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("task not found in any queue: %w", lastErr)
}

// CancelTask deletes a waiting task or cancels a running one.
func (q *AsynqQueue) CancelTask(ctx context.Context, taskID string) error {
	var lastErr error
	for _, queueName := range queueNames {
		err := q.inspector.DeleteTask(queueName, taskID)
		if err == nil {
			return q.SaveFinalStatus(ctx, &TaskStatus{
				TaskID:     taskID,
				Status:     StatusCancelled,
				FinishedAt: time.Now(),
			})
		}
		lastErr = err
	}

	if err := q.inspector.CancelProcessing(taskID); err == nil {
		return nil
	}
	return fmt.Errorf("failed to cancel task: %w", lastErr)
}

func (q *AsynqQueue) SaveFinalStatus(ctx context.Context, status *TaskStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	if err := q.redis.Set(ctx, statusKey(status.TaskID), data, q.config.StatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close(), q.redis.Close())
}

func statusKey(taskID string) string {
	return fmt.Sprintf("task_status:%s", taskID)
}

func convertAsynqStatus(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{
		TaskID:    info.ID,
		StartedAt: info.NextProcessAt,
	}

	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateAggregating:
		status.Status = StatusPending
	case asynq.TaskStateActive:
		status.Status = StatusRunning
		status.Progress = 0.5
	case asynq.TaskStateCompleted:
		status.Status = StatusCompleted
		status.Progress = 1.0
		status.FinishedAt = info.CompletedAt
	case asynq.TaskStateRetry, asynq.TaskStateArchived:
		status.Status = StatusFailed
		status.Error = info.LastErr
		status.FinishedAt = info.LastFailedAt
	default:
		status.Status = StatusPending
	}

	return status
}
