package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	nomshared "github.com/optimapos/optimapos/internal/nomenclature/shared"
	"github.com/optimapos/optimapos/internal/shared"
)

type memoryWorkflowRepo struct {
	types    map[int64]DocumentType
	statuses map[int64][]Status
	rules    map[int64]ApprovalRule
	log      []LogEntry
	nextID   int64
}

func newMemoryWorkflowRepo() *memoryWorkflowRepo {
	return &memoryWorkflowRepo{
		types:    make(map[int64]DocumentType),
		statuses: make(map[int64][]Status),
		rules:    make(map[int64]ApprovalRule),
	}
}

func (r *memoryWorkflowRepo) ListTypes(ctx context.Context, filters nomshared.ListFilters) ([]DocumentType, int, error) {
	var list []DocumentType
	for _, dt := range r.types {
		list = append(list, dt)
	}
	return list, len(list), nil
}

func (r *memoryWorkflowRepo) GetType(ctx context.Context, id int64) (DocumentType, error) {
	dt, ok := r.types[id]
	if !ok {
		return DocumentType{}, shared.ErrNotFound
	}
	return dt, nil
}

func (r *memoryWorkflowRepo) GetTypeByCode(ctx context.Context, code string) (DocumentType, error) {
	for _, dt := range r.types {
		if dt.Code == code {
			return dt, nil
		}
	}
	return DocumentType{}, shared.ErrNotFound
}

func (r *memoryWorkflowRepo) CreateType(ctx context.Context, dt DocumentType, statuses []Status) (DocumentType, error) {
	for _, existing := range r.types {
		if existing.Code == dt.Code {
			return DocumentType{}, shared.ErrDuplicate
		}
	}
	r.nextID++
	dt.ID = r.nextID
	r.types[dt.ID] = dt
	r.statuses[dt.ID] = statuses
	return dt, nil
}

func (r *memoryWorkflowRepo) UpdateType(ctx context.Context, id int64, dt DocumentType) error {
	current, ok := r.types[id]
	if !ok {
		return shared.ErrNotFound
	}
	dt.ID = id
	dt.Code = current.Code
	r.types[id] = dt
	return nil
}

func (r *memoryWorkflowRepo) DeleteType(ctx context.Context, id int64) error {
	if _, ok := r.types[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.types, id)
	delete(r.statuses, id)
	return nil
}

func (r *memoryWorkflowRepo) ListStatuses(ctx context.Context, typeID int64) ([]Status, error) {
	return r.statuses[typeID], nil
}

func (r *memoryWorkflowRepo) ReplaceStatuses(ctx context.Context, typeID int64, statuses []Status) error {
	r.statuses[typeID] = statuses
	return nil
}

func (r *memoryWorkflowRepo) ListRules(ctx context.Context, docType string) ([]ApprovalRule, error) {
	var list []ApprovalRule
	for _, rule := range r.rules {
		if rule.DocumentType == docType {
			list = append(list, rule)
		}
	}
	return list, nil
}

func (r *memoryWorkflowRepo) CreateRule(ctx context.Context, rule ApprovalRule) (ApprovalRule, error) {
	for _, existing := range r.rules {
		if existing.DocumentType == rule.DocumentType && existing.FromStatus == rule.FromStatus &&
			existing.ToStatus == rule.ToStatus && existing.ApprovalLevel == rule.ApprovalLevel &&
			existing.ApproverKind == rule.ApproverKind && existing.ApproverRef == rule.ApproverRef {
			return ApprovalRule{}, shared.ErrDuplicate
		}
	}
	r.nextID++
	rule.ID = r.nextID
	r.rules[rule.ID] = rule
	return rule, nil
}

func (r *memoryWorkflowRepo) UpdateRule(ctx context.Context, id int64, rule ApprovalRule) error {
	if _, ok := r.rules[id]; !ok {
		return shared.ErrNotFound
	}
	rule.ID = id
	r.rules[id] = rule
	return nil
}

func (r *memoryWorkflowRepo) DeleteRule(ctx context.Context, id int64) error {
	if _, ok := r.rules[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.rules, id)
	return nil
}

func (r *memoryWorkflowRepo) AppendLog(ctx context.Context, entry LogEntry) (LogEntry, error) {
	r.nextID++
	entry.ID = r.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	r.log = append(r.log, entry)
	return entry, nil
}

func (r *memoryWorkflowRepo) ListLog(ctx context.Context, ref uuid.UUID) ([]LogEntry, error) {
	var list []LogEntry
	for _, entry := range r.log {
		if entry.DocumentRef == ref {
			list = append(list, entry)
		}
	}
	return list, nil
}

func (r *memoryWorkflowRepo) PendingApprovals(ctx context.Context, olderThan time.Time) ([]LogEntry, error) {
	latest := make(map[uuid.UUID]LogEntry)
	for _, entry := range r.log {
		latest[entry.DocumentRef] = entry
	}
	var pending []LogEntry
	for _, entry := range latest {
		if entry.Action == ActionSubmit && entry.CreatedAt.Before(olderThan) {
			pending = append(pending, entry)
		}
	}
	return pending, nil
}

func newWorkflowService() (*Service, *memoryWorkflowRepo) {
	repo := newMemoryWorkflowRepo()
	evaluator := NewEvaluator(staticConverter{rate: decimal.NewFromInt(1)}, staticDirectory{})
	return NewService(repo, evaluator), repo
}

func standardType() DocumentType {
	return DocumentType{
		Code: "PO-STD", Name: "Standard order", AppliesTo: AppliesOrder,
		AffectsStock: true, StockDirection: StockIn, IsActive: true,
	}
}

func TestCreateTypeRequiresValidMachine(t *testing.T) {
	svc, _ := newWorkflowService()
	ctx := context.Background()

	_, err := svc.CreateType(ctx, standardType(), []Status{
		{Code: "A", SortOrder: 10},
		{Code: "B", SortOrder: 20},
	})
	require.ErrorIs(t, err, shared.ErrValidation, "status set without an initial entry")

	created, err := svc.CreateType(ctx, standardType(), orderStatuses())
	require.NoError(t, err)
	require.NotZero(t, created.ID)
}

func TestCreateTypeValidatesStockDirection(t *testing.T) {
	svc, _ := newWorkflowService()

	dt := standardType()
	dt.StockDirection = StockNone
	_, err := svc.CreateType(context.Background(), dt, orderStatuses())
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestMachineForInactiveType(t *testing.T) {
	svc, repo := newWorkflowService()
	ctx := context.Background()

	created, err := svc.CreateType(ctx, standardType(), orderStatuses())
	require.NoError(t, err)

	dt := repo.types[created.ID]
	dt.IsActive = false
	repo.types[created.ID] = dt

	_, _, err = svc.MachineFor(ctx, "PO-STD")
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestRuleMustMatchTypeStatuses(t *testing.T) {
	svc, _ := newWorkflowService()
	ctx := context.Background()

	_, err := svc.CreateType(ctx, standardType(), orderStatuses())
	require.NoError(t, err)

	rule := ApprovalRule{
		DocumentType: "PO-STD", FromStatus: "SUBMITTED", ToStatus: "APPROVED",
		ApproverKind: ApproverRole, ApproverRef: "manager", ApprovalLevel: 1, IsActive: true,
	}
	created, err := svc.CreateRule(ctx, rule)
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	// Duplicate key is rejected.
	_, err = svc.CreateRule(ctx, rule)
	require.ErrorIs(t, err, shared.ErrDuplicate)

	bad := rule
	bad.FromStatus = "NOWHERE"
	_, err = svc.CreateRule(ctx, bad)
	require.ErrorIs(t, err, shared.ErrValidation)

	// A backward edge is not a legal transition to guard.
	backward := rule
	backward.FromStatus = "APPROVED"
	backward.ToStatus = "SUBMITTED"
	_, err = svc.CreateRule(ctx, backward)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRuleRangeValidation(t *testing.T) {
	svc, _ := newWorkflowService()
	ctx := context.Background()

	_, err := svc.CreateType(ctx, standardType(), orderStatuses())
	require.NoError(t, err)

	rule := ApprovalRule{
		DocumentType: "PO-STD", FromStatus: "SUBMITTED", ToStatus: "APPROVED",
		MinAmount: dec("5000"), MaxAmount: dec("1000"), Currency: "EUR",
		ApproverKind: ApproverRole, ApproverRef: "manager", ApprovalLevel: 1, IsActive: true,
	}
	_, err = svc.CreateRule(ctx, rule)
	require.ErrorIs(t, err, shared.ErrValidation, "min above max")

	rule.MaxAmount = nil
	rule.Currency = ""
	_, err = svc.CreateRule(ctx, rule)
	require.ErrorIs(t, err, shared.ErrValidation, "range without currency")
}

func TestAuthorizeReadsHistoryFromLog(t *testing.T) {
	repo := newMemoryWorkflowRepo()
	dir := staticDirectory{roles: map[int64][]string{10: {"supervisor"}, 20: {"director"}}}
	svc := NewService(repo, NewEvaluator(staticConverter{rate: decimal.NewFromInt(1)}, dir))
	ctx := context.Background()

	_, err := svc.CreateType(ctx, standardType(), orderStatuses())
	require.NoError(t, err)

	for level, role := range map[int]string{1: "supervisor", 2: "director"} {
		_, err = svc.CreateRule(ctx, ApprovalRule{
			DocumentType: "PO-STD", FromStatus: "SUBMITTED", ToStatus: "APPROVED",
			ApproverKind: ApproverRole, ApproverRef: role, ApprovalLevel: level, IsActive: true,
		})
		require.NoError(t, err)
	}

	req := submitRequest("100")
	req.ActorID = 10
	grant, err := svc.Authorize(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 1, grant.Level)

	_, err = svc.Record(ctx, LogEntry{
		DocumentRef: req.DocumentRef, DocumentType: "PO-STD",
		FromStatus: "SUBMITTED", ToStatus: "APPROVED",
		Action: ActionApprove, RuleID: grant.RuleID, Level: grant.Level, ActorID: 10,
	})
	require.NoError(t, err)

	req.ActorID = 20
	grant, err = svc.Authorize(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 2, grant.Level)
}
