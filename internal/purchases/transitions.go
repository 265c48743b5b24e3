package purchases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/optimapos/optimapos/internal/shared"
	"github.com/optimapos/optimapos/internal/workflow"
)

// TransitionResult reports what a transition call did. Guarded
// transitions record an approval without moving the document until
// the final level is satisfied.
type TransitionResult struct {
	From   string         `json:"from"`
	To     string         `json:"to"`
	Moved  bool           `json:"moved"`
	Status string         `json:"status"`
	Grant  workflow.Grant `json:"grant"`
}

// docView is the kind-independent slice of a document that the
// transition engine needs.
type docView struct {
	kind     Kind
	id       int64
	ref      uuid.UUID
	typeCode string
	number   string
	status   string
	amount   decimal.Decimal
	currency string
	authorID int64
	entity   string
}

func (s *Service) view(ctx context.Context, kind Kind, id int64) (docView, error) {
	switch kind {
	case KindRequest:
		pr, err := s.repo.GetRequest(ctx, id)
		if err != nil {
			return docView{}, err
		}
		return docView{
			kind: kind, id: id, ref: RequestRef(id), typeCode: pr.TypeCode,
			number: pr.Number, status: pr.Status, amount: pr.Total,
			authorID: pr.RequesterID, entity: "purchase_request",
		}, nil
	case KindOrder:
		po, err := s.repo.GetOrder(ctx, id)
		if err != nil {
			return docView{}, err
		}
		return docView{
			kind: kind, id: id, ref: OrderRef(id), typeCode: po.TypeCode,
			number: po.Number, status: po.Status, amount: po.GrossTotal,
			currency: po.Currency, authorID: po.CreatedBy, entity: "purchase_order",
		}, nil
	case KindDelivery:
		dr, err := s.repo.GetDelivery(ctx, id)
		if err != nil {
			return docView{}, err
		}
		amount := decimal.Zero
		for _, line := range dr.Lines {
			amount = amount.Add(line.ReceivedQty.Mul(line.UnitCost).Round(2))
		}
		view := docView{
			kind: kind, id: id, ref: DeliveryRef(id), typeCode: dr.TypeCode,
			number: dr.Number, status: dr.Status, amount: amount,
			authorID: dr.CreatedBy, entity: "delivery_receipt",
		}
		if dr.OrderID != nil {
			if po, err := s.repo.GetOrder(ctx, *dr.OrderID); err == nil {
				view.currency = po.Currency
			}
		}
		return view, nil
	default:
		return docView{}, fmt.Errorf("%w: unknown document kind %q", shared.ErrValidation, kind)
	}
}

func (s *Service) documentCurrency(ctx context.Context, view docView) (string, error) {
	if view.currency != "" {
		return view.currency, nil
	}
	base, err := s.currencies.Base(ctx)
	if err != nil {
		return "", fmt.Errorf("purchases: base currency: %w", err)
	}
	return base.Code, nil
}

func (s *Service) setStatus(ctx context.Context, view docView, status string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		switch view.kind {
		case KindRequest:
			return tx.UpdateRequestStatus(ctx, view.id, status)
		case KindOrder:
			return tx.UpdateOrderStatus(ctx, view.id, status)
		case KindDelivery:
			return tx.UpdateDeliveryStatus(ctx, view.id, status)
		default:
			return fmt.Errorf("%w: unknown document kind %q", shared.ErrValidation, view.kind)
		}
	})
}

// Advance moves a document one step forward along its status chain.
// When an approval rule guards the step, each call records one
// approval level and the status changes only with the final level.
func (s *Service) Advance(ctx context.Context, kind Kind, id int64, comment string) (TransitionResult, error) {
	view, err := s.view(ctx, kind, id)
	if err != nil {
		return TransitionResult{}, err
	}
	machine, dt, err := s.workflow.MachineFor(ctx, view.typeCode)
	if err != nil {
		return TransitionResult{}, err
	}
	next, ok := machine.Next(view.status)
	if !ok {
		return TransitionResult{}, fmt.Errorf("%w: no forward transition from %s", shared.ErrInvalidState, view.status)
	}

	currency, err := s.documentCurrency(ctx, view)
	if err != nil {
		return TransitionResult{}, err
	}
	actor := shared.ActorFromContext(ctx)
	grant, err := s.workflow.Authorize(ctx, workflow.AuthorizationRequest{
		DocumentRef:  view.ref,
		DocumentType: dt.Code,
		FromStatus:   view.status,
		ToStatus:     next,
		Amount:       view.amount,
		Currency:     currency,
		Date:         time.Now(),
		ActorID:      actor.ID,
		AuthorID:     view.authorID,
	})
	if err != nil {
		return TransitionResult{}, err
	}

	// Held intermediate grants log as approvals so the evaluator
	// counts their level next time; SUBMIT marks the move itself.
	moved := !grant.Guarded || grant.Final
	action := workflow.ActionApprove
	if moved && view.status == machine.Initial() {
		action = workflow.ActionSubmit
	}
	status := view.status
	if moved {
		if err := s.setStatus(ctx, view, next); err != nil {
			return TransitionResult{}, err
		}
		status = next
	}
	s.record(ctx, workflow.LogEntry{
		DocumentRef: view.ref, DocumentType: dt.Code,
		FromStatus: view.status, ToStatus: next,
		Action: action, RuleID: grant.RuleID, Level: grant.Level,
		ActorID: actor.ID, ActorName: actor.Name, Comment: comment,
	})
	s.metrics.TransitionApplied(dt.Code, string(action))
	s.recordAudit(ctx, actor.ID, string(kind)+"_"+string(action), view.entity, id, map[string]any{
		"number": view.number, "from": view.status, "to": next, "moved": moved,
	})
	return TransitionResult{From: view.status, To: next, Moved: moved, Status: status, Grant: grant}, nil
}

// Cancel moves any non-final document into the cancellation status.
func (s *Service) Cancel(ctx context.Context, kind Kind, id int64, comment string) (TransitionResult, error) {
	return s.moveToCancellation(ctx, kind, id, comment, workflow.ActionCancel)
}

// Reject records a refusal and sends the document to the cancellation
// status, leaving the approval trail intact.
func (s *Service) Reject(ctx context.Context, kind Kind, id int64, comment string) (TransitionResult, error) {
	return s.moveToCancellation(ctx, kind, id, comment, workflow.ActionReject)
}

func (s *Service) moveToCancellation(ctx context.Context, kind Kind, id int64, comment string, action workflow.Action) (TransitionResult, error) {
	view, err := s.view(ctx, kind, id)
	if err != nil {
		return TransitionResult{}, err
	}
	machine, dt, err := s.workflow.MachineFor(ctx, view.typeCode)
	if err != nil {
		return TransitionResult{}, err
	}
	cancel := machine.Cancellation()
	if cancel == "" {
		return TransitionResult{}, fmt.Errorf("%w: type %s has no cancellation status", shared.ErrInvalidState, dt.Code)
	}
	if !machine.CanTransition(view.status, cancel) {
		return TransitionResult{}, fmt.Errorf("%w: cannot cancel from %s", shared.ErrInvalidState, view.status)
	}
	if err := s.setStatus(ctx, view, cancel); err != nil {
		return TransitionResult{}, err
	}
	actor := shared.ActorFromContext(ctx)
	s.record(ctx, workflow.LogEntry{
		DocumentRef: view.ref, DocumentType: dt.Code,
		FromStatus: view.status, ToStatus: cancel,
		Action: action, ActorID: actor.ID, ActorName: actor.Name, Comment: comment,
	})
	s.metrics.TransitionApplied(dt.Code, string(action))
	s.recordAudit(ctx, actor.ID, string(kind)+"_"+string(action), view.entity, id, map[string]any{
		"number": view.number, "from": view.status, "to": cancel,
	})
	return TransitionResult{From: view.status, To: cancel, Moved: true, Status: cancel}, nil
}

// Reactivate returns a cancelled document to the initial status.
func (s *Service) Reactivate(ctx context.Context, kind Kind, id int64, comment string) (TransitionResult, error) {
	view, err := s.view(ctx, kind, id)
	if err != nil {
		return TransitionResult{}, err
	}
	machine, dt, err := s.workflow.MachineFor(ctx, view.typeCode)
	if err != nil {
		return TransitionResult{}, err
	}
	cancel := machine.Cancellation()
	if cancel == "" || view.status != cancel {
		return TransitionResult{}, fmt.Errorf("%w: only cancelled documents can be reactivated", shared.ErrInvalidState)
	}
	initial := machine.Initial()
	if err := s.setStatus(ctx, view, initial); err != nil {
		return TransitionResult{}, err
	}
	actor := shared.ActorFromContext(ctx)
	s.record(ctx, workflow.LogEntry{
		DocumentRef: view.ref, DocumentType: dt.Code,
		FromStatus: view.status, ToStatus: initial,
		Action: workflow.ActionReactivate, ActorID: actor.ID, ActorName: actor.Name, Comment: comment,
	})
	s.metrics.TransitionApplied(dt.Code, string(workflow.ActionReactivate))
	s.recordAudit(ctx, actor.ID, string(kind)+"_REACTIVATE", view.entity, id, map[string]any{
		"number": view.number, "from": view.status, "to": initial,
	})
	return TransitionResult{From: view.status, To: initial, Moved: true, Status: initial}, nil
}

// ReceiveDelivery advances a delivery receipt and, when the receipt
// reaches a final status, posts it. Posting enforces the type's batch,
// expiry and quality requirements.
func (s *Service) ReceiveDelivery(ctx context.Context, id int64, comment string) error {
	dr, err := s.repo.GetDelivery(ctx, id)
	if err != nil {
		return err
	}
	machine, dt, err := s.workflow.MachineFor(ctx, dr.TypeCode)
	if err != nil {
		return err
	}
	next, ok := machine.Next(dr.Status)
	if !ok {
		return fmt.Errorf("%w: no forward transition from %s", shared.ErrInvalidState, dr.Status)
	}
	if st, ok := machine.Status(next); ok && st.IsFinal {
		if err := checkReceiveRequirements(dt, dr.Lines); err != nil {
			return err
		}
	}
	result, err := s.Advance(ctx, KindDelivery, id, comment)
	if err != nil {
		return err
	}
	if st, ok := machine.Status(result.Status); result.Moved && ok && st.IsFinal {
		s.posted(ctx, dt, dr)
	}
	return nil
}

// posted runs the side effects of a receipt reaching its final status.
func (s *Service) posted(ctx context.Context, dt workflow.DocumentType, dr DeliveryReceipt) {
	actor := shared.ActorFromContext(ctx)
	if dt.AffectsStock {
		s.recordAudit(ctx, actor.ID, "STOCK_"+string(dt.StockDirection), "delivery_receipt", dr.ID, map[string]any{
			"number": dr.Number, "location_id": dr.LocationID, "lines": len(dr.Lines),
		})
	}
	if s.jobs != nil {
		if err := s.jobs.EnqueueReindex(ctx, KindDelivery, dr.ID); err != nil {
			s.logger.Warn("enqueue reindex", slog.Any("error", err), slog.Int64("receipt_id", dr.ID))
		}
	}
}

func checkReceiveRequirements(dt workflow.DocumentType, lines []DeliveryLine) error {
	fields := shared.NewFieldErrors()
	for i, line := range lines {
		if dt.RequiresBatch && line.BatchNo == "" {
			fields.Add(fmt.Sprintf("lines[%d].batch_no", i), "batch number is required for this document type")
		}
		if dt.RequiresExpiry && line.ExpiryDate == nil {
			fields.Add(fmt.Sprintf("lines[%d].expiry_date", i), "expiry date is required for this document type")
		}
		if dt.RequiresQualityCheck && line.Quality == QualityPending {
			fields.Add(fmt.Sprintf("lines[%d].quality", i), "quality check is pending")
		}
	}
	return fields.Err()
}

// Timeline returns the workflow log for a document, newest first.
func (s *Service) Timeline(ctx context.Context, kind Kind, id int64) ([]workflow.LogEntry, error) {
	view, err := s.view(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return s.workflow.History(ctx, view.ref)
}
