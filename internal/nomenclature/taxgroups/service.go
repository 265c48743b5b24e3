package taxgroups

import (
	"context"
	"errors"
	"fmt"

	nomshared "github.com/optimapos/optimapos/internal/nomenclature/shared"
	"github.com/optimapos/optimapos/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters nomshared.ListFilters) ([]TaxGroup, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (TaxGroup, error) {
	if id <= 0 {
		return TaxGroup{}, shared.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (TaxGroup, error) {
	return s.repo.GetByCode(ctx, code)
}

func (s *Service) Create(ctx context.Context, group TaxGroup) (TaxGroup, error) {
	group.Code = nomshared.NormalizeCode(group.Code)
	if err := s.validate(group); err != nil {
		return TaxGroup{}, err
	}
	if !group.IsDefault {
		// The very first tax group becomes the default implicitly.
		if _, err := s.repo.Default(ctx); errors.Is(err, shared.ErrNotFound) {
			group.IsDefault = true
		}
	}
	if group.IsDefault {
		group.IsActive = true
	}
	return s.repo.Create(ctx, group)
}

func (s *Service) Update(ctx context.Context, id int64, group TaxGroup) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	if err := s.validate(group); err != nil {
		return err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.IsDefault && !group.IsActive {
		return fmt.Errorf("%w: default tax group cannot be deactivated", shared.ErrInvalidState)
	}
	return s.repo.Update(ctx, id, group)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	return s.repo.Delete(ctx, id)
}

// SetDefault promotes a group to default; the previous default is demoted in
// the same transaction so exactly one default exists at all times.
func (s *Service) SetDefault(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	return s.repo.SetDefault(ctx, id)
}

func (s *Service) Default(ctx context.Context) (TaxGroup, error) {
	return s.repo.Default(ctx)
}
