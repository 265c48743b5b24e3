package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskNumberingResetCheck zeroes counters whose reset period elapsed.
	TaskNumberingResetCheck = "numbering:reset-check"
	// TaskIdempotencyCleanup deletes idempotency keys past retention.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskApprovalsRemind flags documents waiting on approval too long.
	TaskApprovalsRemind = "approvals:remind"
	// TaskPurchasesReindex refreshes purchase document search data.
	TaskPurchasesReindex = "purchases:reindex"
)

// PurchasesReindexPayload identifies the document to reindex.
type PurchasesReindexPayload struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}

// NewPurchasesReindexTask builds a reindex task for one document.
func NewPurchasesReindexTask(kind string, id int64) (*asynq.Task, error) {
	body, err := json.Marshal(PurchasesReindexPayload{Kind: kind, ID: id})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPurchasesReindex, body, asynq.Queue(QueueDefault)), nil
}

// NewNumberingResetCheckTask builds the scheduled reset-check task.
func NewNumberingResetCheckTask() *asynq.Task {
	return asynq.NewTask(TaskNumberingResetCheck, nil, asynq.Queue(QueueDefault))
}

// NewIdempotencyCleanupTask builds the scheduled cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault))
}

// NewApprovalsRemindTask builds the scheduled reminder scan task.
func NewApprovalsRemindTask() *asynq.Task {
	return asynq.NewTask(TaskApprovalsRemind, nil, asynq.Queue(QueueDefault))
}
