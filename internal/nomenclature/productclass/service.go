package productclass

import (
	"context"
	"fmt"
	"strings"

	nomshared "github.com/optimapos/optimapos/internal/nomenclature/shared"
	"github.com/optimapos/optimapos/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListGroups(ctx context.Context, filters nomshared.ListFilters) ([]ProductGroup, int, error) {
	return s.repo.ListGroups(ctx, filters)
}

func (s *Service) CreateGroup(ctx context.Context, group ProductGroup) (ProductGroup, error) {
	group.Code = nomshared.NormalizeCode(group.Code)
	if err := validateCodeName(group.Code, group.Name); err != nil {
		return ProductGroup{}, err
	}
	if group.ParentID != nil {
		if _, err := s.repo.GetGroup(ctx, *group.ParentID); err != nil {
			return ProductGroup{}, fmt.Errorf("productclass: parent group: %w", err)
		}
	}
	return s.repo.CreateGroup(ctx, group)
}

func (s *Service) UpdateGroup(ctx context.Context, id int64, group ProductGroup) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	if err := validateCodeName(nomshared.NormalizeCode(group.Code), group.Name); err != nil {
		return err
	}
	if group.ParentID != nil {
		if *group.ParentID == id {
			fields := shared.NewFieldErrors()
			fields.Add("parent_id", "a group cannot be its own parent")
			return fields.Err()
		}
		if _, err := s.repo.GetGroup(ctx, *group.ParentID); err != nil {
			return fmt.Errorf("productclass: parent group: %w", err)
		}
	}
	return s.repo.UpdateGroup(ctx, id, group)
}

func (s *Service) DeleteGroup(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	hasChildren, err := s.repo.HasChildren(ctx, id)
	if err != nil {
		return err
	}
	if hasChildren {
		return fmt.Errorf("%w: group has child groups", shared.ErrInvalidState)
	}
	return s.repo.DeleteGroup(ctx, id)
}

func (s *Service) ListBrands(ctx context.Context, filters nomshared.ListFilters) ([]Brand, int, error) {
	return s.repo.ListBrands(ctx, filters)
}

func (s *Service) CreateBrand(ctx context.Context, brand Brand) (Brand, error) {
	brand.Code = nomshared.NormalizeCode(brand.Code)
	if err := validateCodeName(brand.Code, brand.Name); err != nil {
		return Brand{}, err
	}
	return s.repo.CreateBrand(ctx, brand)
}

func (s *Service) UpdateBrand(ctx context.Context, id int64, brand Brand) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	if err := validateCodeName(nomshared.NormalizeCode(brand.Code), brand.Name); err != nil {
		return err
	}
	return s.repo.UpdateBrand(ctx, id, brand)
}

func (s *Service) DeleteBrand(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	return s.repo.DeleteBrand(ctx, id)
}

func (s *Service) ListTypes(ctx context.Context, filters nomshared.ListFilters) ([]ProductType, int, error) {
	return s.repo.ListTypes(ctx, filters)
}

func (s *Service) CreateType(ctx context.Context, pt ProductType) (ProductType, error) {
	pt.Code = nomshared.NormalizeCode(pt.Code)
	if err := validateCodeName(pt.Code, pt.Name); err != nil {
		return ProductType{}, err
	}
	return s.repo.CreateType(ctx, pt)
}

func (s *Service) UpdateType(ctx context.Context, id int64, pt ProductType) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	if err := validateCodeName(nomshared.NormalizeCode(pt.Code), pt.Name); err != nil {
		return err
	}
	return s.repo.UpdateType(ctx, id, pt)
}

func (s *Service) DeleteType(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	return s.repo.DeleteType(ctx, id)
}

func validateCodeName(code, name string) error {
	fields := shared.NewFieldErrors()
	if !nomshared.ValidCode(code) {
		fields.Add("code", "must be 1-32 characters of A-Z, 0-9, dash or underscore")
	}
	if strings.TrimSpace(name) == "" {
		fields.Add("name", "is required")
	}
	return fields.Err()
}
