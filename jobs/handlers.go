package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/optimapos/optimapos/internal/numbering"
	"github.com/optimapos/optimapos/internal/purchases"
	"github.com/optimapos/optimapos/internal/shared"
	"github.com/optimapos/optimapos/internal/workflow"
)

// HandlerDeps collects the services the job handlers operate on.
type HandlerDeps struct {
	Logger      *slog.Logger
	Numbering   *numbering.Service
	Workflow    *workflow.Service
	Purchases   *purchases.Service
	Idempotency *shared.IdempotencyStore

	IdempotencyRetention time.Duration
	ApprovalReminderAge  time.Duration
}

// Handlers builds the asynq handler set from the dependencies.
func Handlers(deps HandlerDeps) []TaskHandler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retention := deps.IdempotencyRetention
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	reminderAge := deps.ApprovalReminderAge
	if reminderAge <= 0 {
		reminderAge = 48 * time.Hour
	}

	return []TaskHandler{
		{Type: TaskNumberingResetCheck, Handler: func(ctx context.Context, _ *asynq.Task) error {
			reset, err := deps.Numbering.ResetElapsed(ctx, time.Now())
			if err != nil {
				return err
			}
			if reset > 0 {
				logger.Info("numbering counters reset", slog.Int64("count", reset))
			}
			return nil
		}},
		{Type: TaskIdempotencyCleanup, Handler: func(ctx context.Context, _ *asynq.Task) error {
			return deps.Idempotency.Cleanup(ctx, retention)
		}},
		{Type: TaskApprovalsRemind, Handler: func(ctx context.Context, _ *asynq.Task) error {
			pending, err := deps.Workflow.PendingApprovals(ctx, time.Now().Add(-reminderAge))
			if err != nil {
				return err
			}
			for _, entry := range pending {
				logger.Warn("document awaiting approval",
					slog.String("document_type", entry.DocumentType),
					slog.String("document_ref", entry.DocumentRef.String()),
					slog.String("to_status", entry.ToStatus),
					slog.Time("since", entry.CreatedAt))
			}
			return nil
		}},
		{Type: TaskPurchasesReindex, Handler: func(ctx context.Context, t *asynq.Task) error {
			var payload PurchasesReindexPayload
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return asynq.SkipRetry
			}
			return reindexDocument(ctx, logger, deps.Purchases, payload)
		}},
	}
}

// reindexDocument re-reads the document so downstream read models stay
// warm. Missing documents are dropped without retry.
func reindexDocument(ctx context.Context, logger *slog.Logger, svc *purchases.Service, payload PurchasesReindexPayload) error {
	var err error
	switch purchases.Kind(payload.Kind) {
	case purchases.KindRequest:
		_, err = svc.GetRequest(ctx, payload.ID)
	case purchases.KindOrder:
		_, err = svc.GetOrder(ctx, payload.ID)
	case purchases.KindDelivery:
		_, err = svc.GetDelivery(ctx, payload.ID)
	default:
		return asynq.SkipRetry
	}
	if err != nil {
		logger.Warn("purchases reindex skipped",
			slog.String("kind", payload.Kind), slog.Int64("id", payload.ID), slog.Any("error", err))
		return asynq.SkipRetry
	}
	logger.Info("purchases reindexed", slog.String("kind", payload.Kind), slog.Int64("id", payload.ID))
	return nil
}
