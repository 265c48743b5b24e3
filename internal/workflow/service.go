package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	nomshared "github.com/optimapos/optimapos/internal/nomenclature/shared"
	"github.com/optimapos/optimapos/internal/shared"
)

// Service owns document type configuration and transition
// authorization.
type Service struct {
	repo      Repository
	evaluator *Evaluator
}

func NewService(repo Repository, evaluator *Evaluator) *Service {
	return &Service{repo: repo, evaluator: evaluator}
}

func (s *Service) ListTypes(ctx context.Context, filters nomshared.ListFilters) ([]DocumentType, int, error) {
	return s.repo.ListTypes(ctx, filters)
}

func (s *Service) GetType(ctx context.Context, id int64) (DocumentType, error) {
	return s.repo.GetType(ctx, id)
}

func (s *Service) GetTypeByCode(ctx context.Context, code string) (DocumentType, error) {
	return s.repo.GetTypeByCode(ctx, code)
}

func (s *Service) CreateType(ctx context.Context, dt DocumentType, statuses []Status) (DocumentType, error) {
	dt.Code = nomshared.NormalizeCode(dt.Code)
	if err := validateType(dt); err != nil {
		return DocumentType{}, err
	}
	if _, err := NewMachine(statuses); err != nil {
		return DocumentType{}, err
	}
	return s.repo.CreateType(ctx, dt, statuses)
}

func (s *Service) UpdateType(ctx context.Context, id int64, dt DocumentType) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	dt.Code = nomshared.NormalizeCode(dt.Code)
	if err := validateType(dt); err != nil {
		return err
	}
	return s.repo.UpdateType(ctx, id, dt)
}

func (s *Service) DeleteType(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	return s.repo.DeleteType(ctx, id)
}

func (s *Service) ListStatuses(ctx context.Context, typeID int64) ([]Status, error) {
	return s.repo.ListStatuses(ctx, typeID)
}

// ReplaceStatuses swaps a type's status set after validating it forms
// a usable machine.
func (s *Service) ReplaceStatuses(ctx context.Context, typeID int64, statuses []Status) error {
	if _, err := s.repo.GetType(ctx, typeID); err != nil {
		return err
	}
	if _, err := NewMachine(statuses); err != nil {
		return err
	}
	return s.repo.ReplaceStatuses(ctx, typeID, statuses)
}

// MachineFor loads a document type and builds its transition machine.
func (s *Service) MachineFor(ctx context.Context, typeCode string) (*Machine, DocumentType, error) {
	dt, err := s.repo.GetTypeByCode(ctx, typeCode)
	if err != nil {
		return nil, DocumentType{}, err
	}
	if !dt.IsActive {
		return nil, DocumentType{}, fmt.Errorf("%w: document type %s is inactive", shared.ErrInvalidState, dt.Code)
	}
	statuses, err := s.repo.ListStatuses(ctx, dt.ID)
	if err != nil {
		return nil, DocumentType{}, err
	}
	machine, err := NewMachine(statuses)
	if err != nil {
		return nil, DocumentType{}, fmt.Errorf("workflow: type %s: %w", dt.Code, err)
	}
	return machine, dt, nil
}

func (s *Service) ListRules(ctx context.Context, docType string) ([]ApprovalRule, error) {
	return s.repo.ListRules(ctx, docType)
}

func (s *Service) CreateRule(ctx context.Context, rule ApprovalRule) (ApprovalRule, error) {
	if err := s.validateRule(ctx, rule); err != nil {
		return ApprovalRule{}, err
	}
	return s.repo.CreateRule(ctx, rule)
}

func (s *Service) UpdateRule(ctx context.Context, id int64, rule ApprovalRule) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	if err := s.validateRule(ctx, rule); err != nil {
		return err
	}
	return s.repo.UpdateRule(ctx, id, rule)
}

func (s *Service) DeleteRule(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	return s.repo.DeleteRule(ctx, id)
}

// Authorize evaluates the approval rules for a transition against the
// document's recorded history.
func (s *Service) Authorize(ctx context.Context, req AuthorizationRequest) (Grant, error) {
	rules, err := s.repo.ListRules(ctx, req.DocumentType)
	if err != nil {
		return Grant{}, err
	}
	history, err := s.repo.ListLog(ctx, req.DocumentRef)
	if err != nil {
		return Grant{}, err
	}
	return s.evaluator.Authorize(ctx, rules, history, req)
}

// Record appends an immutable entry to the approval log.
func (s *Service) Record(ctx context.Context, entry LogEntry) (LogEntry, error) {
	return s.repo.AppendLog(ctx, entry)
}

func (s *Service) History(ctx context.Context, ref uuid.UUID) ([]LogEntry, error) {
	return s.repo.ListLog(ctx, ref)
}

func (s *Service) PendingApprovals(ctx context.Context, olderThan time.Time) ([]LogEntry, error) {
	return s.repo.PendingApprovals(ctx, olderThan)
}

func validateType(dt DocumentType) error {
	fields := shared.NewFieldErrors()
	if !nomshared.ValidCode(dt.Code) {
		fields.Add("code", "must be 1-32 characters of A-Z, 0-9, dash or underscore")
	}
	if strings.TrimSpace(dt.Name) == "" {
		fields.Add("name", "is required")
	}
	if !dt.AppliesTo.Valid() {
		fields.Add("applies_to", "must be REQUEST, ORDER or DELIVERY")
	}
	if !dt.StockDirection.Valid() {
		fields.Add("stock_direction", "must be IN, OUT or NONE")
	}
	if dt.AffectsStock && dt.StockDirection == StockNone {
		fields.Add("stock_direction", "stock-affecting types need a direction")
	}
	if !dt.AffectsStock && dt.StockDirection != StockNone {
		fields.Add("stock_direction", "must be NONE when the type does not affect stock")
	}
	return fields.Err()
}

func (s *Service) validateRule(ctx context.Context, rule ApprovalRule) error {
	fields := shared.NewFieldErrors()
	if strings.TrimSpace(rule.DocumentType) == "" {
		fields.Add("document_type", "is required")
	}
	if strings.TrimSpace(rule.FromStatus) == "" {
		fields.Add("from_status", "is required")
	}
	if strings.TrimSpace(rule.ToStatus) == "" {
		fields.Add("to_status", "is required")
	}
	if !rule.ApproverKind.Valid() {
		fields.Add("approver_kind", "must be USER, ROLE, PERMISSION or DYNAMIC")
	}
	if rule.ApproverKind != ApproverDynamic && strings.TrimSpace(rule.ApproverRef) == "" {
		fields.Add("approver_ref", "is required")
	}
	if rule.ApprovalLevel < 1 {
		fields.Add("approval_level", "must be at least 1")
	}
	if rule.MinAmount != nil && rule.MaxAmount != nil && rule.MinAmount.GreaterThan(*rule.MaxAmount) {
		fields.Add("max_amount", "must not be below min_amount")
	}
	if (rule.MinAmount != nil || rule.MaxAmount != nil) && strings.TrimSpace(rule.Currency) == "" {
		fields.Add("currency", "is required when an amount range is set")
	}
	if err := fields.Err(); err != nil {
		return err
	}

	machine, _, err := s.MachineFor(ctx, rule.DocumentType)
	if err != nil {
		return err
	}
	if !machine.Has(rule.FromStatus) || !machine.Has(rule.ToStatus) {
		fields.Add("from_status", "both statuses must belong to the document type")
		return fields.Err()
	}
	if !machine.CanTransition(rule.FromStatus, rule.ToStatus) {
		return fmt.Errorf("%w: %s to %s is not a legal transition", shared.ErrValidation, rule.FromStatus, rule.ToStatus)
	}
	return nil
}
