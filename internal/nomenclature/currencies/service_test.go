package currencies

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	nomshared "github.com/optimapos/optimapos/internal/nomenclature/shared"
	"github.com/optimapos/optimapos/internal/shared"
)

type memoryCurrencyRepo struct {
	currencies map[int64]Currency
	rates      map[int64][]ExchangeRate
	nextID     int64
}

func newMemoryCurrencyRepo() *memoryCurrencyRepo {
	return &memoryCurrencyRepo{
		currencies: make(map[int64]Currency),
		rates:      make(map[int64][]ExchangeRate),
	}
}

func (r *memoryCurrencyRepo) List(ctx context.Context, filters nomshared.ListFilters) ([]Currency, int, error) {
	var list []Currency
	for _, c := range r.currencies {
		list = append(list, c)
	}
	return list, len(list), nil
}

func (r *memoryCurrencyRepo) Get(ctx context.Context, id int64) (Currency, error) {
	c, ok := r.currencies[id]
	if !ok {
		return Currency{}, shared.ErrNotFound
	}
	return c, nil
}

func (r *memoryCurrencyRepo) GetByCode(ctx context.Context, code string) (Currency, error) {
	for _, c := range r.currencies {
		if c.Code == code {
			return c, nil
		}
	}
	return Currency{}, shared.ErrNotFound
}

func (r *memoryCurrencyRepo) Base(ctx context.Context) (Currency, error) {
	for _, c := range r.currencies {
		if c.IsBase {
			return c, nil
		}
	}
	return Currency{}, shared.ErrNotFound
}

func (r *memoryCurrencyRepo) Create(ctx context.Context, currency Currency) (Currency, error) {
	for _, c := range r.currencies {
		if c.Code == currency.Code {
			return Currency{}, shared.ErrDuplicate
		}
	}
	if currency.IsBase {
		for id, c := range r.currencies {
			c.IsBase = false
			r.currencies[id] = c
		}
	}
	r.nextID++
	currency.ID = r.nextID
	r.currencies[currency.ID] = currency
	return currency, nil
}

func (r *memoryCurrencyRepo) Update(ctx context.Context, id int64, currency Currency) error {
	current, ok := r.currencies[id]
	if !ok {
		return shared.ErrNotFound
	}
	current.Name = currency.Name
	current.Symbol = currency.Symbol
	current.DecimalPlaces = currency.DecimalPlaces
	current.IsActive = currency.IsActive
	r.currencies[id] = current
	return nil
}

func (r *memoryCurrencyRepo) Delete(ctx context.Context, id int64) error {
	c, ok := r.currencies[id]
	if !ok {
		return shared.ErrNotFound
	}
	if c.IsBase {
		return shared.ErrInvalidState
	}
	delete(r.currencies, id)
	return nil
}

func (r *memoryCurrencyRepo) SetBase(ctx context.Context, id int64) error {
	if _, ok := r.currencies[id]; !ok {
		return shared.ErrNotFound
	}
	for cid, c := range r.currencies {
		c.IsBase = cid == id
		if c.IsBase {
			c.IsActive = true
		}
		r.currencies[cid] = c
	}
	return nil
}

func (r *memoryCurrencyRepo) AddRate(ctx context.Context, rate ExchangeRate) (ExchangeRate, error) {
	r.nextID++
	rate.ID = r.nextID
	r.rates[rate.CurrencyID] = append(r.rates[rate.CurrencyID], rate)
	return rate, nil
}

func (r *memoryCurrencyRepo) RateOn(ctx context.Context, currencyID int64, on time.Time) (decimal.Decimal, error) {
	var best *ExchangeRate
	for i, rate := range r.rates[currencyID] {
		if rate.ValidFrom.After(on) {
			continue
		}
		if best == nil || rate.ValidFrom.After(best.ValidFrom) {
			best = &r.rates[currencyID][i]
		}
	}
	if best == nil {
		return decimal.Zero, ErrNoRate
	}
	return best.Rate, nil
}

func TestFirstCurrencyBecomesBase(t *testing.T) {
	svc := NewService(newMemoryCurrencyRepo())
	ctx := context.Background()

	base, err := svc.Create(ctx, Currency{Code: "eur", Name: "Euro", DecimalPlaces: 2})
	require.NoError(t, err)
	require.True(t, base.IsBase)
	require.Equal(t, "EUR", base.Code)

	second, err := svc.Create(ctx, Currency{Code: "USD", Name: "US Dollar", DecimalPlaces: 2, IsActive: true})
	require.NoError(t, err)
	require.False(t, second.IsBase)
}

func TestSetBaseSwapsAtomically(t *testing.T) {
	repo := newMemoryCurrencyRepo()
	svc := NewService(repo)
	ctx := context.Background()

	eur, err := svc.Create(ctx, Currency{Code: "EUR", Name: "Euro", DecimalPlaces: 2})
	require.NoError(t, err)
	usd, err := svc.Create(ctx, Currency{Code: "USD", Name: "US Dollar", DecimalPlaces: 2, IsActive: true})
	require.NoError(t, err)

	require.NoError(t, svc.SetBase(ctx, usd.ID))

	base, err := svc.Base(ctx)
	require.NoError(t, err)
	require.Equal(t, usd.ID, base.ID)

	got, err := svc.Get(ctx, eur.ID)
	require.NoError(t, err)
	require.False(t, got.IsBase)
}

func TestDeleteBaseCurrencyRejected(t *testing.T) {
	svc := NewService(newMemoryCurrencyRepo())
	ctx := context.Background()

	base, err := svc.Create(ctx, Currency{Code: "EUR", Name: "Euro", DecimalPlaces: 2})
	require.NoError(t, err)

	err = svc.Delete(ctx, base.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestConvertUsesDatedRates(t *testing.T) {
	repo := newMemoryCurrencyRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, Currency{Code: "BGN", Name: "Bulgarian Lev", DecimalPlaces: 2})
	require.NoError(t, err)
	usd, err := svc.Create(ctx, Currency{Code: "USD", Name: "US Dollar", DecimalPlaces: 2, IsActive: true})
	require.NoError(t, err)

	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.AddRate(ctx, ExchangeRate{CurrencyID: usd.ID, Rate: decimal.RequireFromString("1.80"), ValidFrom: jan})
	require.NoError(t, err)
	_, err = svc.AddRate(ctx, ExchangeRate{CurrencyID: usd.ID, Rate: decimal.RequireFromString("1.75"), ValidFrom: mar})
	require.NoError(t, err)

	// February falls back to the January rate.
	feb := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	got, err := svc.Convert(ctx, decimal.RequireFromString("100"), "USD", "BGN", feb)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.RequireFromString("180")), "got %s", got)

	got, err = svc.Convert(ctx, decimal.RequireFromString("175"), "BGN", "USD", mar)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.RequireFromString("100")), "got %s", got)
}

func TestConvertWithoutRateFails(t *testing.T) {
	svc := NewService(newMemoryCurrencyRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Currency{Code: "BGN", Name: "Bulgarian Lev", DecimalPlaces: 2})
	require.NoError(t, err)
	_, err = svc.Create(ctx, Currency{Code: "USD", Name: "US Dollar", DecimalPlaces: 2, IsActive: true})
	require.NoError(t, err)

	_, err = svc.Convert(ctx, decimal.NewFromInt(10), "USD", "BGN", time.Now())
	require.ErrorIs(t, err, ErrNoRate)
}

func TestAddRateForBaseRejected(t *testing.T) {
	svc := NewService(newMemoryCurrencyRepo())
	ctx := context.Background()

	base, err := svc.Create(ctx, Currency{Code: "EUR", Name: "Euro", DecimalPlaces: 2})
	require.NoError(t, err)

	_, err = svc.AddRate(ctx, ExchangeRate{CurrencyID: base.ID, Rate: decimal.NewFromInt(2)})
	require.ErrorIs(t, err, shared.ErrValidation)
}
