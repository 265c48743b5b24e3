package currencies

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	nomshared "github.com/optimapos/optimapos/internal/nomenclature/shared"
	"github.com/optimapos/optimapos/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters nomshared.ListFilters) ([]Currency, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Currency, error) {
	if id <= 0 {
		return Currency{}, shared.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, currency Currency) (Currency, error) {
	currency.Code = nomshared.NormalizeCode(currency.Code)
	if err := s.validate(currency); err != nil {
		return Currency{}, err
	}
	if !currency.IsBase {
		// The very first currency becomes the base implicitly.
		if _, err := s.repo.Base(ctx); errors.Is(err, shared.ErrNotFound) {
			currency.IsBase = true
		}
	}
	if currency.IsBase {
		currency.IsActive = true
	}
	return s.repo.Create(ctx, currency)
}

func (s *Service) Update(ctx context.Context, id int64, currency Currency) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	if err := s.validate(currency); err != nil {
		return err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.IsBase && !currency.IsActive {
		return fmt.Errorf("%w: base currency cannot be deactivated", shared.ErrInvalidState)
	}
	return s.repo.Update(ctx, id, currency)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	return s.repo.Delete(ctx, id)
}

// SetBase promotes a currency to base; the previous base is demoted in the
// same transaction so exactly one base exists at all times.
func (s *Service) SetBase(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	return s.repo.SetBase(ctx, id)
}

func (s *Service) Base(ctx context.Context) (Currency, error) {
	return s.repo.Base(ctx)
}

// AddRate records a dated rate against the base currency.
func (s *Service) AddRate(ctx context.Context, rate ExchangeRate) (ExchangeRate, error) {
	if rate.CurrencyID <= 0 {
		return ExchangeRate{}, shared.ErrNotFound
	}
	if rate.Rate.LessThanOrEqual(decimal.Zero) {
		fields := shared.NewFieldErrors()
		fields.Add("rate", "must be greater than zero")
		return ExchangeRate{}, fields.Err()
	}
	currency, err := s.repo.Get(ctx, rate.CurrencyID)
	if err != nil {
		return ExchangeRate{}, err
	}
	if currency.IsBase {
		fields := shared.NewFieldErrors()
		fields.Add("currency_id", "the base currency has an implicit rate of 1")
		return ExchangeRate{}, fields.Err()
	}
	if rate.ValidFrom.IsZero() {
		rate.ValidFrom = time.Now()
	}
	return s.repo.AddRate(ctx, rate)
}

// Convert converts an amount between two currencies using the rates
// effective on the given date, rounding half-up to the target currency's
// decimal places.
func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, fromCode, toCode string, on time.Time) (decimal.Decimal, error) {
	fromCode = nomshared.NormalizeCode(fromCode)
	toCode = nomshared.NormalizeCode(toCode)
	if on.IsZero() {
		on = time.Now()
	}

	to, err := s.repo.GetByCode(ctx, toCode)
	if err != nil {
		return decimal.Zero, fmt.Errorf("currencies: target %s: %w", toCode, err)
	}
	if fromCode == toCode {
		return amount.Round(int32(to.DecimalPlaces)), nil
	}
	from, err := s.repo.GetByCode(ctx, fromCode)
	if err != nil {
		return decimal.Zero, fmt.Errorf("currencies: source %s: %w", fromCode, err)
	}

	fromRate, err := s.rateFor(ctx, from, on)
	if err != nil {
		return decimal.Zero, err
	}
	toRate, err := s.rateFor(ctx, to, on)
	if err != nil {
		return decimal.Zero, err
	}

	inBase := amount.Mul(fromRate)
	return inBase.DivRound(toRate, int32(to.DecimalPlaces)), nil
}

func (s *Service) rateFor(ctx context.Context, currency Currency, on time.Time) (decimal.Decimal, error) {
	if currency.IsBase {
		return decimal.NewFromInt(1), nil
	}
	rate, err := s.repo.RateOn(ctx, currency.ID, on)
	if err != nil {
		if errors.Is(err, ErrNoRate) {
			return decimal.Zero, fmt.Errorf("%w: %s on %s", ErrNoRate, currency.Code, on.Format("2006-01-02"))
		}
		return decimal.Zero, err
	}
	return rate, nil
}
