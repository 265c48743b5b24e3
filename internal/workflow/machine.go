package workflow

import (
	"fmt"
	"sort"

	"github.com/optimapos/optimapos/internal/shared"
)

// Machine answers transition questions for one document type's status
// set. It is built once from configuration and is read-only after.
type Machine struct {
	ordered  []Status
	byCode   map[string]Status
	initial  string
	cancelTo string
}

// NewMachine validates the status set: at least two statuses, exactly
// one initial, unique codes.
func NewMachine(statuses []Status) (*Machine, error) {
	if len(statuses) < 2 {
		return nil, fmt.Errorf("%w: a document type needs at least two statuses", shared.ErrValidation)
	}

	ordered := make([]Status, len(statuses))
	copy(ordered, statuses)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].SortOrder < ordered[j].SortOrder })

	m := &Machine{ordered: ordered, byCode: make(map[string]Status, len(ordered))}
	for _, s := range ordered {
		if _, dup := m.byCode[s.Code]; dup {
			return nil, fmt.Errorf("%w: duplicate status code %s", shared.ErrValidation, s.Code)
		}
		m.byCode[s.Code] = s
		if s.IsInitial {
			if m.initial != "" {
				return nil, fmt.Errorf("%w: more than one initial status", shared.ErrValidation)
			}
			m.initial = s.Code
		}
		if s.IsCancellation && m.cancelTo == "" {
			m.cancelTo = s.Code
		}
	}
	if m.initial == "" {
		return nil, fmt.Errorf("%w: no initial status configured", shared.ErrValidation)
	}
	return m, nil
}

// Initial returns the status new documents are stamped with.
func (m *Machine) Initial() string { return m.initial }

// Cancellation returns the type's cancellation status code, or "".
func (m *Machine) Cancellation() string { return m.cancelTo }

func (m *Machine) Has(code string) bool {
	_, ok := m.byCode[code]
	return ok
}

// CanTransition reports whether from → to is a legal edge: forward by
// sort order, any non-final → cancellation, and cancellation → initial
// (reactivation).
func (m *Machine) CanTransition(from, to string) bool {
	src, ok := m.byCode[from]
	if !ok {
		return false
	}
	dst, ok := m.byCode[to]
	if !ok || from == to {
		return false
	}
	if dst.IsCancellation {
		return !src.IsFinal
	}
	if src.IsCancellation {
		return dst.IsInitial
	}
	if src.IsFinal {
		return false
	}
	return dst.SortOrder > src.SortOrder
}

func (m *Machine) CanEdit(code string) bool {
	s, ok := m.byCode[code]
	return ok && s.AllowEdit
}

func (m *Machine) CanDelete(code string) bool {
	s, ok := m.byCode[code]
	return ok && s.AllowDelete
}

// Next returns the following status in sort order, skipping
// cancellation entries. ok is false from a final, cancellation or
// unknown status.
func (m *Machine) Next(from string) (string, bool) {
	src, ok := m.byCode[from]
	if !ok || src.IsFinal || src.IsCancellation {
		return "", false
	}
	for _, s := range m.ordered {
		if s.SortOrder > src.SortOrder && !s.IsCancellation {
			return s.Code, true
		}
	}
	return "", false
}

// Status returns the full status entry for a code.
func (m *Machine) Status(code string) (Status, bool) {
	s, ok := m.byCode[code]
	return s, ok
}
