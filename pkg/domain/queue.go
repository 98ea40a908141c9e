package domain

import "time"

// QueueStatus is the processing queue state machine value
type QueueStatus string

// queue item states: pending -> processing -> completed|failed,
// failed -> pending while attempts remain
const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
)

// QueueItem tracks one deal through post-ingestion processing
type QueueItem struct {
	ID           int64       `db:"id" json:"id"`
	DealID       int64       `db:"deal_id" json:"deal_id"`
	Status       QueueStatus `db:"status" json:"status"`
	Attempts     int         `db:"attempts" json:"attempts"`
	MaxAttempts  int         `db:"max_attempts" json:"max_attempts"`
	ErrorMessage string      `db:"error_message" json:"error_message,omitempty"`
	ScheduledAt  time.Time   `db:"scheduled_at" json:"scheduled_at"`
	ProcessedAt  *time.Time  `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the item can never be retried again
func (q *QueueItem) Terminal() bool {
	return q.Status == QueueFailed && q.Attempts >= q.MaxAttempts
}

// QueueStats summarizes queue state for observability
type QueueStats struct {
	Pending    int `db:"pending" json:"pending"`
	Processing int `db:"processing" json:"processing"`
	Completed  int `db:"completed" json:"completed"`
	Failed     int `db:"failed" json:"failed"`
}
