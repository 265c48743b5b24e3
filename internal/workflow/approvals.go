package workflow

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/optimapos/optimapos/internal/shared"
)

// Converter turns document amounts into a rule's currency before range
// matching.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, fromCode, toCode string, on time.Time) (decimal.Decimal, error)
}

// Directory answers role and permission membership for rule approvers.
type Directory interface {
	HasRole(ctx context.Context, userID int64, role string) (bool, error)
	HasPermission(ctx context.Context, userID int64, permission string) (bool, error)
}

// AuthorizationRequest describes one attempted transition.
type AuthorizationRequest struct {
	DocumentRef  uuid.UUID
	DocumentType string
	FromStatus   string
	ToStatus     string
	Amount       decimal.Decimal
	Currency     string
	Date         time.Time
	ActorID      int64
	AuthorID     int64
}

// Grant is the outcome of a successful authorization. RuleID and Level
// are set only for guarded transitions and feed the approval log.
// Final reports that no higher approval level remains after this one,
// so the caller may move the document.
type Grant struct {
	Guarded bool
	RuleID  *int64
	Level   int
	Final   bool
}

// Evaluator applies approval rules to attempted transitions.
type Evaluator struct {
	converter Converter
	directory Directory
}

func NewEvaluator(converter Converter, directory Directory) *Evaluator {
	return &Evaluator{converter: converter, directory: directory}
}

// Authorize checks whether the actor may perform the transition. Rules
// are matched on transition and converted amount; when none match the
// transition is unguarded. Matched rules are checked level by level in
// ascending order, counting recorded approvals from history, and the
// actor must satisfy a rule at the lowest unsatisfied level.
func (e *Evaluator) Authorize(ctx context.Context, rules []ApprovalRule, history []LogEntry, req AuthorizationRequest) (Grant, error) {
	matched, err := e.matching(ctx, rules, req)
	if err != nil {
		return Grant{}, err
	}
	if len(matched) == 0 {
		return Grant{}, nil
	}

	// A guarded transition can never be approved by the document's
	// own author.
	if req.ActorID == req.AuthorID {
		return Grant{}, fmt.Errorf("%w: authors cannot approve their own documents", shared.ErrForbidden)
	}

	levels := ruleLevels(matched)
	approved := approvedLevels(history, req)

	level, remaining := nextLevel(levels, approved)
	if !remaining {
		// All levels already hold recorded approvals.
		last := levels[len(levels)-1]
		return Grant{Guarded: true, Level: last, Final: true}, nil
	}

	for _, rule := range matched {
		if rule.ApprovalLevel != level {
			continue
		}
		ok, err := e.satisfies(ctx, rule, req)
		if err != nil {
			return Grant{}, err
		}
		if ok {
			id := rule.ID
			return Grant{Guarded: true, RuleID: &id, Level: level, Final: level == levels[len(levels)-1]}, nil
		}
	}
	return Grant{}, fmt.Errorf("%w: approval level %d required", shared.ErrForbidden, level)
}

func (e *Evaluator) matching(ctx context.Context, rules []ApprovalRule, req AuthorizationRequest) ([]ApprovalRule, error) {
	var matched []ApprovalRule
	for _, rule := range rules {
		if !rule.IsActive || rule.DocumentType != req.DocumentType ||
			rule.FromStatus != req.FromStatus || rule.ToStatus != req.ToStatus {
			continue
		}
		amount := req.Amount
		if rule.Currency != "" && rule.Currency != req.Currency {
			converted, err := e.converter.Convert(ctx, req.Amount, req.Currency, rule.Currency, req.Date)
			if err != nil {
				return nil, fmt.Errorf("workflow: convert %s to %s: %w", req.Currency, rule.Currency, err)
			}
			amount = converted
		}
		if rule.MinAmount != nil && amount.LessThan(*rule.MinAmount) {
			continue
		}
		if rule.MaxAmount != nil && amount.GreaterThan(*rule.MaxAmount) {
			continue
		}
		matched = append(matched, rule)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].ApprovalLevel != matched[j].ApprovalLevel {
			return matched[i].ApprovalLevel < matched[j].ApprovalLevel
		}
		return matched[i].SortOrder < matched[j].SortOrder
	})
	return matched, nil
}

func (e *Evaluator) satisfies(ctx context.Context, rule ApprovalRule, req AuthorizationRequest) (bool, error) {
	switch rule.ApproverKind {
	case ApproverUser:
		return rule.ApproverRef == strconv.FormatInt(req.ActorID, 10), nil
	case ApproverRole:
		return e.directory.HasRole(ctx, req.ActorID, rule.ApproverRef)
	case ApproverPermission:
		return e.directory.HasPermission(ctx, req.ActorID, rule.ApproverRef)
	case ApproverDynamic:
		// Author exclusion is enforced before level matching, so any
		// other actor qualifies.
		return true, nil
	}
	return false, nil
}

func ruleLevels(rules []ApprovalRule) []int {
	seen := make(map[int]bool)
	var levels []int
	for _, r := range rules {
		if !seen[r.ApprovalLevel] {
			seen[r.ApprovalLevel] = true
			levels = append(levels, r.ApprovalLevel)
		}
	}
	sort.Ints(levels)
	return levels
}

func approvedLevels(history []LogEntry, req AuthorizationRequest) map[int]bool {
	approved := make(map[int]bool)
	for _, entry := range history {
		if entry.Action == ActionApprove && entry.DocumentRef == req.DocumentRef &&
			entry.FromStatus == req.FromStatus && entry.ToStatus == req.ToStatus {
			approved[entry.Level] = true
		}
	}
	return approved
}

func nextLevel(levels []int, approved map[int]bool) (int, bool) {
	for _, l := range levels {
		if !approved[l] {
			return l, true
		}
	}
	return 0, false
}
