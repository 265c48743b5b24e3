package taxgroups

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/optimapos/optimapos/internal/nomenclature"
	nomshared "github.com/optimapos/optimapos/internal/nomenclature/shared"
	"github.com/optimapos/optimapos/internal/shared"
)

type Repository interface {
	List(ctx context.Context, filters nomshared.ListFilters) ([]TaxGroup, int, error)
	Get(ctx context.Context, id int64) (TaxGroup, error)
	GetByCode(ctx context.Context, code string) (TaxGroup, error)
	Default(ctx context.Context) (TaxGroup, error)
	Create(ctx context.Context, group TaxGroup) (TaxGroup, error)
	Update(ctx context.Context, id int64, group TaxGroup) error
	Delete(ctx context.Context, id int64) error
	SetDefault(ctx context.Context, id int64) error
}

type repository struct {
	pool     *pgxpool.Pool
	registry *nomenclature.Registry
}

func NewRepository(pool *pgxpool.Pool, registry *nomenclature.Registry) Repository {
	return &repository{pool: pool, registry: registry}
}

func (r *repository) List(ctx context.Context, filters nomshared.ListFilters) ([]TaxGroup, int, error) {
	query := `SELECT id, code, name, rate, is_default, is_active FROM tax_groups WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM tax_groups WHERE 1=1`
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

	query += ` ORDER BY code ASC`
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		args = append(args, filters.Offset())
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var groups []TaxGroup
	for rows.Next() {
		var g TaxGroup
		if err := rows.Scan(&g.ID, &g.Code, &g.Name, &g.Rate, &g.IsDefault, &g.IsActive); err != nil {
			return nil, 0, err
		}
		groups = append(groups, g)
	}
	return groups, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (TaxGroup, error) {
	return r.scanOne(ctx, `SELECT id, code, name, rate, is_default, is_active FROM tax_groups WHERE id=$1`, id)
}

func (r *repository) GetByCode(ctx context.Context, code string) (TaxGroup, error) {
	return r.scanOne(ctx, `SELECT id, code, name, rate, is_default, is_active FROM tax_groups WHERE code=$1`, nomshared.NormalizeCode(code))
}

func (r *repository) Default(ctx context.Context) (TaxGroup, error) {
	return r.scanOne(ctx, `SELECT id, code, name, rate, is_default, is_active FROM tax_groups WHERE is_default LIMIT 1`)
}

func (r *repository) scanOne(ctx context.Context, query string, args ...any) (TaxGroup, error) {
	var g TaxGroup
	err := r.pool.QueryRow(ctx, query, args...).Scan(&g.ID, &g.Code, &g.Name, &g.Rate, &g.IsDefault, &g.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TaxGroup{}, shared.ErrNotFound
		}
		return TaxGroup{}, err
	}
	return g, nil
}

func (r *repository) Create(ctx context.Context, group TaxGroup) (TaxGroup, error) {
	created := group
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		if err := r.registry.Reserve(ctx, tx, nomshared.KindTaxGroup, group.Code); err != nil {
			return err
		}
		if group.IsDefault {
			if _, err := tx.Exec(ctx, `UPDATE tax_groups SET is_default = FALSE WHERE is_default`); err != nil {
				return err
			}
		}
		return tx.QueryRow(ctx, `INSERT INTO tax_groups (code, name, rate, is_default, is_active)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			nomshared.NormalizeCode(group.Code), group.Name, group.Rate, group.IsDefault, group.IsActive).
			Scan(&created.ID)
	})
	if err != nil {
		return TaxGroup{}, err
	}
	created.Code = nomshared.NormalizeCode(group.Code)
	return created, nil
}

func (r *repository) Update(ctx context.Context, id int64, group TaxGroup) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tax_groups SET name=$1, rate=$2, is_active=$3 WHERE id=$4`,
		group.Name, group.Rate, group.IsActive, id)
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
		var isDefault bool
		err := tx.QueryRow(ctx, `SELECT code, is_default FROM tax_groups WHERE id=$1 FOR UPDATE`, id).Scan(&code, &isDefault)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return err
		}
		if isDefault {
			return fmt.Errorf("%w: %s is the default tax group", shared.ErrInvalidState, code)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM tax_groups WHERE id=$1`, id); err != nil {
			return err
		}
		return r.registry.Release(ctx, tx, nomshared.KindTaxGroup, code)
	})
}

// SetDefault atomically moves the default flag to the given group.
func (r *repository) SetDefault(ctx context.Context, id int64) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE tax_groups SET is_default = FALSE WHERE is_default`); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE tax_groups SET is_default = TRUE, is_active = TRUE WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}
