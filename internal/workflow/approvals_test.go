package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/optimapos/optimapos/internal/shared"
)

type staticConverter struct {
	// rate multiplies amounts regardless of direction, enough for tests.
	rate decimal.Decimal
	err  error
}

func (c staticConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to string, on time.Time) (decimal.Decimal, error) {
	if c.err != nil {
		return decimal.Zero, c.err
	}
	return amount.Mul(c.rate), nil
}

type staticDirectory struct {
	roles map[int64][]string
	perms map[int64][]string
}

func (d staticDirectory) HasRole(ctx context.Context, userID int64, role string) (bool, error) {
	for _, r := range d.roles[userID] {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

func (d staticDirectory) HasPermission(ctx context.Context, userID int64, perm string) (bool, error) {
	for _, p := range d.perms[userID] {
		if p == perm {
			return true, nil
		}
	}
	return false, nil
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func submitRequest(amount string) AuthorizationRequest {
	return AuthorizationRequest{
		DocumentRef:  uuid.NewSHA1(uuid.Nil, []byte("PO:1")),
		DocumentType: "PO-STD",
		FromStatus:   "SUBMITTED",
		ToStatus:     "APPROVED",
		Amount:       decimal.RequireFromString(amount),
		Currency:     "EUR",
		Date:         time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		ActorID:      10,
		AuthorID:     1,
	}
}

func TestUnguardedWhenNoRuleMatches(t *testing.T) {
	e := NewEvaluator(staticConverter{rate: decimal.NewFromInt(1)}, staticDirectory{})

	rules := []ApprovalRule{{
		ID: 1, DocumentType: "PO-STD", FromStatus: "SUBMITTED", ToStatus: "APPROVED",
		MinAmount: dec("1000"), Currency: "EUR",
		ApproverKind: ApproverRole, ApproverRef: "manager", ApprovalLevel: 1, IsActive: true,
	}}

	grant, err := e.Authorize(context.Background(), rules, nil, submitRequest("999.99"))
	require.NoError(t, err)
	require.False(t, grant.Guarded)
}

func TestGuardedByRole(t *testing.T) {
	dir := staticDirectory{roles: map[int64][]string{10: {"manager"}}}
	e := NewEvaluator(staticConverter{rate: decimal.NewFromInt(1)}, dir)

	rules := []ApprovalRule{{
		ID: 1, DocumentType: "PO-STD", FromStatus: "SUBMITTED", ToStatus: "APPROVED",
		MinAmount: dec("1000"), Currency: "EUR",
		ApproverKind: ApproverRole, ApproverRef: "manager", ApprovalLevel: 1, IsActive: true,
	}}

	grant, err := e.Authorize(context.Background(), rules, nil, submitRequest("2500"))
	require.NoError(t, err)
	require.True(t, grant.Guarded)
	require.NotNil(t, grant.RuleID)
	require.Equal(t, int64(1), *grant.RuleID)
	require.Equal(t, 1, grant.Level)

	// Actor without the role is refused.
	req := submitRequest("2500")
	req.ActorID = 11
	_, err = e.Authorize(context.Background(), rules, nil, req)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestAuthorCannotApproveOwnDocument(t *testing.T) {
	dir := staticDirectory{roles: map[int64][]string{1: {"manager"}}}
	e := NewEvaluator(staticConverter{rate: decimal.NewFromInt(1)}, dir)

	rules := []ApprovalRule{{
		ID: 1, DocumentType: "PO-STD", FromStatus: "SUBMITTED", ToStatus: "APPROVED",
		ApproverKind: ApproverRole, ApproverRef: "manager", ApprovalLevel: 1, IsActive: true,
	}}

	req := submitRequest("100")
	req.ActorID = 1 // same as AuthorID
	_, err := e.Authorize(context.Background(), rules, nil, req)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestAmountConvertedIntoRuleCurrency(t *testing.T) {
	// 1 EUR = 1.95 BGN; rule guards amounts from 1000 BGN.
	e := NewEvaluator(staticConverter{rate: decimal.RequireFromString("1.95")}, staticDirectory{})

	rules := []ApprovalRule{{
		ID: 1, DocumentType: "PO-STD", FromStatus: "SUBMITTED", ToStatus: "APPROVED",
		MinAmount: dec("1000"), Currency: "BGN",
		ApproverKind: ApproverDynamic, ApprovalLevel: 1, IsActive: true,
	}}

	// 600 EUR = 1170 BGN, inside the range.
	grant, err := e.Authorize(context.Background(), rules, nil, submitRequest("600"))
	require.NoError(t, err)
	require.True(t, grant.Guarded)

	// 400 EUR = 780 BGN, below the range.
	grant, err = e.Authorize(context.Background(), rules, nil, submitRequest("400"))
	require.NoError(t, err)
	require.False(t, grant.Guarded)
}

func TestConversionFailureBlocksTransition(t *testing.T) {
	e := NewEvaluator(staticConverter{err: context.DeadlineExceeded}, staticDirectory{})

	rules := []ApprovalRule{{
		ID: 1, DocumentType: "PO-STD", FromStatus: "SUBMITTED", ToStatus: "APPROVED",
		MinAmount: dec("1000"), Currency: "BGN",
		ApproverKind: ApproverDynamic, ApprovalLevel: 1, IsActive: true,
	}}

	_, err := e.Authorize(context.Background(), rules, nil, submitRequest("600"))
	require.Error(t, err)
}

func TestLevelsSatisfiedInOrder(t *testing.T) {
	dir := staticDirectory{
		roles: map[int64][]string{10: {"supervisor"}, 20: {"director"}},
	}
	e := NewEvaluator(staticConverter{rate: decimal.NewFromInt(1)}, dir)

	rules := []ApprovalRule{
		{
			ID: 1, DocumentType: "PO-STD", FromStatus: "SUBMITTED", ToStatus: "APPROVED",
			ApproverKind: ApproverRole, ApproverRef: "supervisor", ApprovalLevel: 1, IsActive: true,
		},
		{
			ID: 2, DocumentType: "PO-STD", FromStatus: "SUBMITTED", ToStatus: "APPROVED",
			ApproverKind: ApproverRole, ApproverRef: "director", ApprovalLevel: 2, IsActive: true,
		},
	}

	req := submitRequest("100")
	ref := req.DocumentRef

	// The director cannot jump the queue while level 1 is open.
	req.ActorID = 20
	_, err := e.Authorize(context.Background(), rules, nil, req)
	require.ErrorIs(t, err, shared.ErrForbidden)

	// The supervisor clears level 1.
	req.ActorID = 10
	grant, err := e.Authorize(context.Background(), rules, nil, req)
	require.NoError(t, err)
	require.Equal(t, 1, grant.Level)
	require.False(t, grant.Final, "level 2 still open")

	history := []LogEntry{{
		DocumentRef: ref, DocumentType: "PO-STD",
		FromStatus: "SUBMITTED", ToStatus: "APPROVED",
		Action: ActionApprove, Level: 1, ActorID: 10,
	}}

	// With level 1 recorded, the director may approve level 2.
	req.ActorID = 20
	grant, err = e.Authorize(context.Background(), rules, history, req)
	require.NoError(t, err)
	require.Equal(t, 2, grant.Level)
	require.True(t, grant.Final)

	// The supervisor cannot satisfy level 2.
	req.ActorID = 10
	_, err = e.Authorize(context.Background(), rules, history, req)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestUserAndPermissionApprovers(t *testing.T) {
	dir := staticDirectory{perms: map[int64][]string{30: {"purchases.approve"}}}
	e := NewEvaluator(staticConverter{rate: decimal.NewFromInt(1)}, dir)

	rules := []ApprovalRule{
		{
			ID: 1, DocumentType: "PO-STD", FromStatus: "SUBMITTED", ToStatus: "APPROVED",
			ApproverKind: ApproverUser, ApproverRef: "42", ApprovalLevel: 1, SortOrder: 1, IsActive: true,
		},
		{
			ID: 2, DocumentType: "PO-STD", FromStatus: "SUBMITTED", ToStatus: "APPROVED",
			ApproverKind: ApproverPermission, ApproverRef: "purchases.approve", ApprovalLevel: 1, SortOrder: 2, IsActive: true,
		},
	}

	req := submitRequest("100")
	req.ActorID = 42
	grant, err := e.Authorize(context.Background(), rules, nil, req)
	require.NoError(t, err)
	require.Equal(t, int64(1), *grant.RuleID)

	req.ActorID = 30
	grant, err = e.Authorize(context.Background(), rules, nil, req)
	require.NoError(t, err)
	require.Equal(t, int64(2), *grant.RuleID)

	req.ActorID = 99
	_, err = e.Authorize(context.Background(), rules, nil, req)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestInactiveRulesIgnored(t *testing.T) {
	e := NewEvaluator(staticConverter{rate: decimal.NewFromInt(1)}, staticDirectory{})

	rules := []ApprovalRule{{
		ID: 1, DocumentType: "PO-STD", FromStatus: "SUBMITTED", ToStatus: "APPROVED",
		ApproverKind: ApproverRole, ApproverRef: "manager", ApprovalLevel: 1, IsActive: false,
	}}

	grant, err := e.Authorize(context.Background(), rules, nil, submitRequest("100"))
	require.NoError(t, err)
	require.False(t, grant.Guarded)
}
