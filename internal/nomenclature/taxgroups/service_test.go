package taxgroups

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	nomshared "github.com/optimapos/optimapos/internal/nomenclature/shared"
	"github.com/optimapos/optimapos/internal/shared"
)

type memoryTaxGroupRepo struct {
	groups map[int64]TaxGroup
	nextID int64
}

func newMemoryTaxGroupRepo() *memoryTaxGroupRepo {
	return &memoryTaxGroupRepo{groups: make(map[int64]TaxGroup)}
}

func (r *memoryTaxGroupRepo) List(ctx context.Context, filters nomshared.ListFilters) ([]TaxGroup, int, error) {
	var list []TaxGroup
	for _, g := range r.groups {
		list = append(list, g)
	}
	return list, len(list), nil
}

func (r *memoryTaxGroupRepo) Get(ctx context.Context, id int64) (TaxGroup, error) {
	g, ok := r.groups[id]
	if !ok {
		return TaxGroup{}, shared.ErrNotFound
	}
	return g, nil
}

func (r *memoryTaxGroupRepo) GetByCode(ctx context.Context, code string) (TaxGroup, error) {
	for _, g := range r.groups {
		if g.Code == code {
			return g, nil
		}
	}
	return TaxGroup{}, shared.ErrNotFound
}

func (r *memoryTaxGroupRepo) Default(ctx context.Context) (TaxGroup, error) {
	for _, g := range r.groups {
		if g.IsDefault {
			return g, nil
		}
	}
	return TaxGroup{}, shared.ErrNotFound
}

func (r *memoryTaxGroupRepo) Create(ctx context.Context, group TaxGroup) (TaxGroup, error) {
	for _, g := range r.groups {
		if g.Code == group.Code {
			return TaxGroup{}, shared.ErrDuplicate
		}
	}
	if group.IsDefault {
		for id, g := range r.groups {
			g.IsDefault = false
			r.groups[id] = g
		}
	}
	r.nextID++
	group.ID = r.nextID
	r.groups[group.ID] = group
	return group, nil
}

func (r *memoryTaxGroupRepo) Update(ctx context.Context, id int64, group TaxGroup) error {
	current, ok := r.groups[id]
	if !ok {
		return shared.ErrNotFound
	}
	current.Name = group.Name
	current.Rate = group.Rate
	current.IsActive = group.IsActive
	r.groups[id] = current
	return nil
}

func (r *memoryTaxGroupRepo) Delete(ctx context.Context, id int64) error {
	g, ok := r.groups[id]
	if !ok {
		return shared.ErrNotFound
	}
	if g.IsDefault {
		return shared.ErrInvalidState
	}
	delete(r.groups, id)
	return nil
}

func (r *memoryTaxGroupRepo) SetDefault(ctx context.Context, id int64) error {
	if _, ok := r.groups[id]; !ok {
		return shared.ErrNotFound
	}
	for gid, g := range r.groups {
		g.IsDefault = gid == id
		if g.IsDefault {
			g.IsActive = true
		}
		r.groups[gid] = g
	}
	return nil
}

func TestFirstTaxGroupBecomesDefault(t *testing.T) {
	svc := NewService(newMemoryTaxGroupRepo())
	ctx := context.Background()

	std, err := svc.Create(ctx, TaxGroup{Code: "vat20", Name: "Standard VAT", Rate: decimal.NewFromInt(20)})
	require.NoError(t, err)
	require.True(t, std.IsDefault)
	require.Equal(t, "VAT20", std.Code)

	reduced, err := svc.Create(ctx, TaxGroup{Code: "VAT9", Name: "Reduced VAT", Rate: decimal.NewFromInt(9), IsActive: true})
	require.NoError(t, err)
	require.False(t, reduced.IsDefault)
}

func TestSetDefaultSwaps(t *testing.T) {
	svc := NewService(newMemoryTaxGroupRepo())
	ctx := context.Background()

	std, err := svc.Create(ctx, TaxGroup{Code: "VAT20", Name: "Standard VAT", Rate: decimal.NewFromInt(20)})
	require.NoError(t, err)
	reduced, err := svc.Create(ctx, TaxGroup{Code: "VAT9", Name: "Reduced VAT", Rate: decimal.NewFromInt(9), IsActive: true})
	require.NoError(t, err)

	require.NoError(t, svc.SetDefault(ctx, reduced.ID))

	def, err := svc.Default(ctx)
	require.NoError(t, err)
	require.Equal(t, reduced.ID, def.ID)

	old, err := svc.Get(ctx, std.ID)
	require.NoError(t, err)
	require.False(t, old.IsDefault)
}

func TestDeleteDefaultRejected(t *testing.T) {
	svc := NewService(newMemoryTaxGroupRepo())
	ctx := context.Background()

	std, err := svc.Create(ctx, TaxGroup{Code: "VAT20", Name: "Standard VAT", Rate: decimal.NewFromInt(20)})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, std.ID), shared.ErrInvalidState)
}

func TestTaxGroupValidation(t *testing.T) {
	svc := NewService(newMemoryTaxGroupRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, TaxGroup{Code: "bad code", Name: "X", Rate: decimal.NewFromInt(5)})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, TaxGroup{Code: "VAT", Name: "Over", Rate: decimal.NewFromInt(101)})
	require.ErrorIs(t, err, shared.ErrValidation)
}
