package model

import "time"

// JobType distinguishes the shape of a submission.
type JobType string

const (
	JobTypeCSV    JobType = "CSV"
	JobTypeImage  JobType = "IMAGE"
	JobTypeSingle JobType = "SINGLE"
)

// QueueState is the lifecycle state of a Job.
type QueueState string

const (
	QueueStateQueued  QueueState = "QUEUED"
	QueueStateRunning QueueState = "RUNNING"
	QueueStatePaused  QueueState = "PAUSED"
	QueueStateDone    QueueState = "DONE"
	QueueStateFailed  QueueState = "FAILED"
)

// allowedJobTransitions encodes the edges permitted by spec (§4.3).
var allowedJobTransitions = map[QueueState]map[QueueState]bool{
	QueueStateQueued:  {QueueStateRunning: true, QueueStateFailed: true, QueueStateQueued: true},
	QueueStateRunning: {QueueStatePaused: true, QueueStateDone: true, QueueStateFailed: true, QueueStateQueued: true},
	QueueStatePaused:  {QueueStateRunning: true, QueueStateQueued: true},
	QueueStateDone:    {QueueStateQueued: true},
	QueueStateFailed:  {QueueStateQueued: true},
}

// CanTransition reports whether from -> to is a legal Job state edge.
func CanTransition(from, to QueueState) bool {
	edges, ok := allowedJobTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// Job is the unit of submitted work owned by one principal.
type Job struct {
	ID             string
	OwnerID        string
	JobType        JobType
	SourceRef      string
	QueueState     QueueState
	Attempts       int
	LastHeartbeat  time.Time
	LastError      string
	TotalItems     int
	ProcessedItems int
	FailedItems    int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Counters is a recomputed histogram snapshot over a Job's items.
type Counters struct {
	Total      int
	Pending    int
	Processing int
	Done       int
	Error      int
	NotFound   int
	Skipped    int
}

// Processed reports the processed_items counter per spec (§3): DONE + NOT_FOUND.
func (c Counters) Processed() int { return c.Done + c.NotFound }

// Failed reports the failed_items counter per spec (§3): ERROR.
func (c Counters) Failed() int { return c.Error }

// Stable reports whether no item is currently PROCESSING, so the Job may
// transition to DONE once Processed()+Failed() == Total.
func (c Counters) Stable() bool { return c.Processing == 0 }
