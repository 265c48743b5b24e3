// Package audit assembles the per-document activity feed from the
// audit trail and the workflow approval log.
package audit

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/optimapos/optimapos/internal/purchases"
	"github.com/optimapos/optimapos/internal/shared"
	"github.com/optimapos/optimapos/internal/workflow"
)

// Event is one timeline entry, regardless of origin.
type Event struct {
	Source    string         `json:"source"`
	Action    string         `json:"action"`
	ActorID   int64          `json:"actor_id"`
	ActorName string         `json:"actor_name,omitempty"`
	From      string         `json:"from,omitempty"`
	To        string         `json:"to,omitempty"`
	Level     int            `json:"level,omitempty"`
	Comment   string         `json:"comment,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	At        time.Time      `json:"at"`
}

const (
	SourceAudit    = "audit"
	SourceWorkflow = "workflow"
)

// AuditSource reads the generic audit trail.
type AuditSource interface {
	ListForEntity(ctx context.Context, entity, entityID string) ([]shared.AuditLog, error)
}

// WorkflowSource reads the approval log.
type WorkflowSource interface {
	History(ctx context.Context, ref uuid.UUID) ([]workflow.LogEntry, error)
}

type Service struct {
	audits AuditSource
	flow   WorkflowSource
}

func NewService(audits AuditSource, flow WorkflowSource) *Service {
	return &Service{audits: audits, flow: flow}
}

// Timeline merges both sources for one document, oldest first. Ties on
// the timestamp keep workflow entries before plain audit records.
func (s *Service) Timeline(ctx context.Context, entity string, id int64) ([]Event, error) {
	ref, err := documentRef(entity, id)
	if err != nil {
		return nil, err
	}

	logs, err := s.audits.ListForEntity(ctx, entity, strconv.FormatInt(id, 10))
	if err != nil {
		return nil, fmt.Errorf("audit: list entries: %w", err)
	}
	history, err := s.flow.History(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("audit: workflow history: %w", err)
	}

	events := make([]Event, 0, len(logs)+len(history))
	for _, entry := range history {
		events = append(events, Event{
			Source:    SourceWorkflow,
			Action:    string(entry.Action),
			ActorID:   entry.ActorID,
			ActorName: entry.ActorName,
			From:      entry.FromStatus,
			To:        entry.ToStatus,
			Level:     entry.Level,
			Comment:   entry.Comment,
			At:        entry.CreatedAt,
		})
	}
	for _, log := range logs {
		events = append(events, Event{
			Source:  SourceAudit,
			Action:  log.Action,
			ActorID: log.ActorID,
			Meta:    log.Meta,
			At:      log.At,
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].At.Equal(events[j].At) {
			return events[i].Source == SourceWorkflow && events[j].Source == SourceAudit
		}
		return events[i].At.Before(events[j].At)
	})
	return events, nil
}

func documentRef(entity string, id int64) (uuid.UUID, error) {
	switch entity {
	case "purchase_request":
		return purchases.RequestRef(id), nil
	case "purchase_order":
		return purchases.OrderRef(id), nil
	case "delivery_receipt":
		return purchases.DeliveryRef(id), nil
	default:
		return uuid.Nil, fmt.Errorf("%w: unknown entity %q", shared.ErrValidation, entity)
	}
}
