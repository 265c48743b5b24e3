package currencies

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/optimapos/optimapos/internal/nomenclature"
	nomshared "github.com/optimapos/optimapos/internal/nomenclature/shared"
	"github.com/optimapos/optimapos/internal/shared"
)

type Repository interface {
	List(ctx context.Context, filters nomshared.ListFilters) ([]Currency, int, error)
	Get(ctx context.Context, id int64) (Currency, error)
	GetByCode(ctx context.Context, code string) (Currency, error)
	Base(ctx context.Context) (Currency, error)
	Create(ctx context.Context, currency Currency) (Currency, error)
	Update(ctx context.Context, id int64, currency Currency) error
	Delete(ctx context.Context, id int64) error
	SetBase(ctx context.Context, id int64) error
	AddRate(ctx context.Context, rate ExchangeRate) (ExchangeRate, error)
	RateOn(ctx context.Context, currencyID int64, on time.Time) (decimal.Decimal, error)
}

type repository struct {
	pool     *pgxpool.Pool
	registry *nomenclature.Registry
}

func NewRepository(pool *pgxpool.Pool, registry *nomenclature.Registry) Repository {
	return &repository{pool: pool, registry: registry}
}

func (r *repository) List(ctx context.Context, filters nomshared.ListFilters) ([]Currency, int, error) {
	query := `SELECT id, code, name, symbol, decimal_places, is_base, is_active FROM currencies WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM currencies WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		cond := ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR code ILIKE $` + strconv.Itoa(argCount) + `)`
		query += cond
		countQuery += cond
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.IsActive != nil {
		argCount++
		cond := ` AND is_active = $` + strconv.Itoa(argCount)
		query += cond
		countQuery += cond
		args = append(args, *filters.IsActive)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []Currency
	for rows.Next() {
		var c Currency
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Symbol, &c.DecimalPlaces, &c.IsBase, &c.IsActive); err != nil {
			return nil, 0, err
		}
		list = append(list, c)
	}
	return list, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Currency, error) {
	return r.scanOne(ctx, `SELECT id, code, name, symbol, decimal_places, is_base, is_active FROM currencies WHERE id=$1`, id)
}

func (r *repository) GetByCode(ctx context.Context, code string) (Currency, error) {
	return r.scanOne(ctx, `SELECT id, code, name, symbol, decimal_places, is_base, is_active FROM currencies WHERE code=$1`, nomshared.NormalizeCode(code))
}

func (r *repository) Base(ctx context.Context) (Currency, error) {
	return r.scanOne(ctx, `SELECT id, code, name, symbol, decimal_places, is_base, is_active FROM currencies WHERE is_base LIMIT 1`)
}

func (r *repository) scanOne(ctx context.Context, query string, args ...any) (Currency, error) {
	var c Currency
	err := r.pool.QueryRow(ctx, query, args...).Scan(&c.ID, &c.Code, &c.Name, &c.Symbol, &c.DecimalPlaces, &c.IsBase, &c.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Currency{}, shared.ErrNotFound
		}
		return Currency{}, err
	}
	return c, nil
}

func (r *repository) Create(ctx context.Context, currency Currency) (Currency, error) {
	created := currency
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		if err := r.registry.Reserve(ctx, tx, nomshared.KindCurrency, currency.Code); err != nil {
			return err
		}
		if currency.IsBase {
			if _, err := tx.Exec(ctx, `UPDATE currencies SET is_base = FALSE WHERE is_base`); err != nil {
				return err
			}
		}
		return tx.QueryRow(ctx, `INSERT INTO currencies (code, name, symbol, decimal_places, is_base, is_active)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			nomshared.NormalizeCode(currency.Code), currency.Name, currency.Symbol, currency.DecimalPlaces, currency.IsBase, currency.IsActive).
			Scan(&created.ID)
	})
	if err != nil {
		return Currency{}, err
	}
	created.Code = nomshared.NormalizeCode(currency.Code)
	return created, nil
}

func (r *repository) Update(ctx context.Context, id int64, currency Currency) error {
	tag, err := r.pool.Exec(ctx, `UPDATE currencies SET name=$1, symbol=$2, decimal_places=$3, is_active=$4 WHERE id=$5`,
		currency.Name, currency.Symbol, currency.DecimalPlaces, currency.IsActive, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		var code string
		var isBase bool
		err := tx.QueryRow(ctx, `SELECT code, is_base FROM currencies WHERE id=$1 FOR UPDATE`, id).Scan(&code, &isBase)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return err
		}
		if isBase {
			return fmt.Errorf("%w: %s is the base currency", shared.ErrInvalidState, code)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM currencies WHERE id=$1`, id); err != nil {
			return err
		}
		return r.registry.Release(ctx, tx, nomshared.KindCurrency, code)
	})
}

// SetBase atomically moves the base flag to the given currency.
func (r *repository) SetBase(ctx context.Context, id int64) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE currencies SET is_base = FALSE WHERE is_base`); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE currencies SET is_base = TRUE, is_active = TRUE WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

func (r *repository) AddRate(ctx context.Context, rate ExchangeRate) (ExchangeRate, error) {
	created := rate
	err := r.pool.QueryRow(ctx, `INSERT INTO exchange_rates (currency_id, rate, valid_from)
VALUES ($1, $2, $3)
ON CONFLICT (currency_id, valid_from) DO UPDATE SET rate = EXCLUDED.rate
RETURNING id`, rate.CurrencyID, rate.Rate, rate.ValidFrom).Scan(&created.ID)
	if err != nil {
		return ExchangeRate{}, err
	}
	return created, nil
}

func (r *repository) RateOn(ctx context.Context, currencyID int64, on time.Time) (decimal.Decimal, error) {
	var rate decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT rate FROM exchange_rates
WHERE currency_id=$1 AND valid_from <= $2 ORDER BY valid_from DESC LIMIT 1`, currencyID, on).Scan(&rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrNoRate
		}
		return decimal.Zero, err
	}
	return rate, nil
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == nomshared.SortDesc {
		dir = "DESC"
	}
	switch sortBy {
	case "code":
		return "code " + dir
	case "name":
		return "name " + dir
	default:
		return "code " + dir
	}
}
