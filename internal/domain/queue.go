package domain

import "time"

// QueueStatus is the lifecycle state of a queue entry
type QueueStatus string

const (
	QueueStatusWaiting    QueueStatus = "waiting"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusExpired    QueueStatus = "expired"
	QueueStatusLeft       QueueStatus = "left"
)

// QueueEntry is one user's place in an event's virtual queue. Positions are
// assigned monotonically per event and never reused or compacted.
type QueueEntry struct {
	ID        string      `json:"id"`
	EventID   string      `json:"event_id"`
	UserID    string      `json:"user_id"`
	Position  int64       `json:"position"`
	Status    QueueStatus `json:"status"`
	JoinedAt  time.Time   `json:"joined_at"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"` // set only while processing
	UpdatedAt time.Time   `json:"updated_at"`
}

// Active reports whether the entry still occupies the queue.
func (q *QueueEntry) Active() bool {
	return q.Status == QueueStatusWaiting || q.Status == QueueStatusProcessing
}

// ProcessingValid reports whether the entry grants checkout access right now.
// A processing entry past ExpiresAt is treated as expired by every reader,
// even before a tick physically transitions it.
func (q *QueueEntry) ProcessingValid(now time.Time) bool {
	return q.Status == QueueStatusProcessing &&
		q.ExpiresAt != nil && now.Before(*q.ExpiresAt)
}

// PositionUpdate is the fact pushed to the position notifier whenever an
// entry's observable fields change. The notifier owns transport only.
type PositionUpdate struct {
	EventID              string      `json:"event_id"`
	UserID               string      `json:"user_id"`
	Position             int64       `json:"position"`
	Status               QueueStatus `json:"status"`
	EstimatedWaitMinutes int64       `json:"estimated_wait_minutes"`
	TotalAhead           int64       `json:"total_ahead"`
	ExpiresAt            *time.Time  `json:"expires_at,omitempty"`
	CanProceed           bool        `json:"can_proceed"`
}
