package scheduler

import (
	"context"
	"time"
)

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

type CycleStatus string

const (
	CycleCompleted CycleStatus = "completed"
	CycleBusy      CycleStatus = "busy"
	CycleFailed    CycleStatus = "failed"
)

// CycleResult summarizes one scheduler pass.
type CycleResult struct {
	Status     CycleStatus   `json:"status"`
	Dispatched int           `json:"dispatched"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Deferred   int           `json:"deferred"` // media not ready, revisited next cycle
	Duration   time.Duration `json:"duration"`
}

// RunStats is a snapshot of the scheduler's counters. Today's counters reset
// on day change, the rest live for the process lifetime.
type RunStats struct {
	PublishedToday      int     `json:"published_today"`
	SucceededToday      int     `json:"succeeded_today"`
	FailedToday         int     `json:"failed_today"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	TotalExecutions     int64   `json:"total_executions"`
	AvgExecutionMs      float64 `json:"avg_execution_ms"`
}

// PublishRecord is one append-only entry in the capped results history:
// one attempt of one item on one platform.
type PublishRecord struct {
	ID            string    `json:"id"`
	Success       bool      `json:"success"`
	ContentItemID string    `json:"content_item_id"`
	Platform      string    `json:"platform"`
	AccountID     string    `json:"account_id,omitempty"`
	Message       string    `json:"message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type Status struct {
	Running        bool         `json:"running"`
	LastRunAt      *time.Time   `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time   `json:"next_run_at,omitempty"`
	QueueDepth     int          `json:"queue_depth"`
	CronExpression string       `json:"cron_expression"`
	Health         HealthStatus `json:"health"`
	Stats          RunStats     `json:"stats"`
}

type UpdateScheduleRequest struct {
	Expression string `json:"expression" form:"expression"`
}

type ISchedulerUsecase interface {
	Start(ctx context.Context) error
	Stop()
	ExecuteCycle(ctx context.Context) CycleResult
	TriggerFromWebhook(ctx context.Context) CycleResult
	GetStatus(ctx context.Context) Status
	UpdateCronExpression(expr string) error
	RetryItem(ctx context.Context, id string) error
	ClearStaleQueueEntries() int
	RecentResults(limit int) []PublishRecord
}
