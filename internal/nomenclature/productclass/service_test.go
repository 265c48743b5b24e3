package productclass

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	nomshared "github.com/optimapos/optimapos/internal/nomenclature/shared"
	"github.com/optimapos/optimapos/internal/shared"
)

type memoryClassRepo struct {
	groups map[int64]ProductGroup
	brands map[int64]Brand
	types  map[int64]ProductType
	codes  map[string]bool
	nextID int64
}

func newMemoryClassRepo() *memoryClassRepo {
	return &memoryClassRepo{
		groups: make(map[int64]ProductGroup),
		brands: make(map[int64]Brand),
		types:  make(map[int64]ProductType),
		codes:  make(map[string]bool),
	}
}

func (r *memoryClassRepo) reserve(code string) error {
	if r.codes[code] {
		return shared.ErrDuplicate
	}
	r.codes[code] = true
	return nil
}

func (r *memoryClassRepo) ListGroups(ctx context.Context, filters nomshared.ListFilters) ([]ProductGroup, int, error) {
	var list []ProductGroup
	for _, g := range r.groups {
		list = append(list, g)
	}
	return list, len(list), nil
}

func (r *memoryClassRepo) GetGroup(ctx context.Context, id int64) (ProductGroup, error) {
	g, ok := r.groups[id]
	if !ok {
		return ProductGroup{}, shared.ErrNotFound
	}
	return g, nil
}

func (r *memoryClassRepo) CreateGroup(ctx context.Context, group ProductGroup) (ProductGroup, error) {
	if err := r.reserve(group.Code); err != nil {
		return ProductGroup{}, err
	}
	r.nextID++
	group.ID = r.nextID
	r.groups[group.ID] = group
	return group, nil
}

func (r *memoryClassRepo) UpdateGroup(ctx context.Context, id int64, group ProductGroup) error {
	current, ok := r.groups[id]
	if !ok {
		return shared.ErrNotFound
	}
	current.Name = group.Name
	current.ParentID = group.ParentID
	current.IsActive = group.IsActive
	r.groups[id] = current
	return nil
}

func (r *memoryClassRepo) DeleteGroup(ctx context.Context, id int64) error {
	g, ok := r.groups[id]
	if !ok {
		return shared.ErrNotFound
	}
	delete(r.codes, g.Code)
	delete(r.groups, id)
	return nil
}

func (r *memoryClassRepo) HasChildren(ctx context.Context, id int64) (bool, error) {
	for _, g := range r.groups {
		if g.ParentID != nil && *g.ParentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryClassRepo) ListBrands(ctx context.Context, filters nomshared.ListFilters) ([]Brand, int, error) {
	var list []Brand
	for _, b := range r.brands {
		list = append(list, b)
	}
	return list, len(list), nil
}

func (r *memoryClassRepo) CreateBrand(ctx context.Context, brand Brand) (Brand, error) {
	if err := r.reserve(brand.Code); err != nil {
		return Brand{}, err
	}
	r.nextID++
	brand.ID = r.nextID
	r.brands[brand.ID] = brand
	return brand, nil
}

func (r *memoryClassRepo) UpdateBrand(ctx context.Context, id int64, brand Brand) error {
	if _, ok := r.brands[id]; !ok {
		return shared.ErrNotFound
	}
	r.brands[id] = Brand{ID: id, Code: r.brands[id].Code, Name: brand.Name, IsActive: brand.IsActive}
	return nil
}

func (r *memoryClassRepo) DeleteBrand(ctx context.Context, id int64) error {
	b, ok := r.brands[id]
	if !ok {
		return shared.ErrNotFound
	}
	delete(r.codes, b.Code)
	delete(r.brands, id)
	return nil
}

func (r *memoryClassRepo) ListTypes(ctx context.Context, filters nomshared.ListFilters) ([]ProductType, int, error) {
	var list []ProductType
	for _, t := range r.types {
		list = append(list, t)
	}
	return list, len(list), nil
}

func (r *memoryClassRepo) CreateType(ctx context.Context, pt ProductType) (ProductType, error) {
	if err := r.reserve(pt.Code); err != nil {
		return ProductType{}, err
	}
	r.nextID++
	pt.ID = r.nextID
	r.types[pt.ID] = pt
	return pt, nil
}

func (r *memoryClassRepo) UpdateType(ctx context.Context, id int64, pt ProductType) error {
	if _, ok := r.types[id]; !ok {
		return shared.ErrNotFound
	}
	r.types[id] = ProductType{ID: id, Code: r.types[id].Code, Name: pt.Name, IsActive: pt.IsActive}
	return nil
}

func (r *memoryClassRepo) DeleteType(ctx context.Context, id int64) error {
	t, ok := r.types[id]
	if !ok {
		return shared.ErrNotFound
	}
	delete(r.codes, t.Code)
	delete(r.types, id)
	return nil
}

func TestCodeUniqueAcrossKinds(t *testing.T) {
	svc := NewService(newMemoryClassRepo())
	ctx := context.Background()

	_, err := svc.CreateGroup(ctx, ProductGroup{Code: "FOOD", Name: "Food", IsActive: true})
	require.NoError(t, err)

	// Same code registered under another nomenclature kind is rejected.
	_, err = svc.CreateBrand(ctx, Brand{Code: "food", Name: "Food Brand", IsActive: true})
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestGroupHierarchy(t *testing.T) {
	svc := NewService(newMemoryClassRepo())
	ctx := context.Background()

	root, err := svc.CreateGroup(ctx, ProductGroup{Code: "DRINKS", Name: "Drinks", IsActive: true})
	require.NoError(t, err)

	child, err := svc.CreateGroup(ctx, ProductGroup{Code: "SOFT", Name: "Soft drinks", ParentID: &root.ID, IsActive: true})
	require.NoError(t, err)
	require.Equal(t, root.ID, *child.ParentID)

	// Parent with children cannot be removed.
	require.ErrorIs(t, svc.DeleteGroup(ctx, root.ID), shared.ErrInvalidState)

	require.NoError(t, svc.DeleteGroup(ctx, child.ID))
	require.NoError(t, svc.DeleteGroup(ctx, root.ID))
}

func TestGroupCannotBeOwnParent(t *testing.T) {
	svc := NewService(newMemoryClassRepo())
	ctx := context.Background()

	g, err := svc.CreateGroup(ctx, ProductGroup{Code: "MISC", Name: "Misc", IsActive: true})
	require.NoError(t, err)

	err = svc.UpdateGroup(ctx, g.ID, ProductGroup{Code: "MISC", Name: "Misc", ParentID: &g.ID})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestMissingParentRejected(t *testing.T) {
	svc := NewService(newMemoryClassRepo())
	ctx := context.Background()

	missing := int64(999)
	_, err := svc.CreateGroup(ctx, ProductGroup{Code: "ORPHAN", Name: "Orphan", ParentID: &missing})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
