package productclass

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/optimapos/optimapos/internal/nomenclature"
	nomshared "github.com/optimapos/optimapos/internal/nomenclature/shared"
	"github.com/optimapos/optimapos/internal/shared"
)

type Repository interface {
	ListGroups(ctx context.Context, filters nomshared.ListFilters) ([]ProductGroup, int, error)
	GetGroup(ctx context.Context, id int64) (ProductGroup, error)
	CreateGroup(ctx context.Context, group ProductGroup) (ProductGroup, error)
	UpdateGroup(ctx context.Context, id int64, group ProductGroup) error
	DeleteGroup(ctx context.Context, id int64) error
	HasChildren(ctx context.Context, id int64) (bool, error)

	ListBrands(ctx context.Context, filters nomshared.ListFilters) ([]Brand, int, error)
	CreateBrand(ctx context.Context, brand Brand) (Brand, error)
	UpdateBrand(ctx context.Context, id int64, brand Brand) error
	DeleteBrand(ctx context.Context, id int64) error

	ListTypes(ctx context.Context, filters nomshared.ListFilters) ([]ProductType, int, error)
	CreateType(ctx context.Context, pt ProductType) (ProductType, error)
	UpdateType(ctx context.Context, id int64, pt ProductType) error
	DeleteType(ctx context.Context, id int64) error
}

type repository struct {
	pool     *pgxpool.Pool
	registry *nomenclature.Registry
}

func NewRepository(pool *pgxpool.Pool, registry *nomenclature.Registry) Repository {
	return &repository{pool: pool, registry: registry}
}

func (r *repository) ListGroups(ctx context.Context, filters nomshared.ListFilters) ([]ProductGroup, int, error) {
	query := `SELECT id, code, name, parent_id, is_active FROM product_groups WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM product_groups WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		cond := ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR code ILIKE $` + strconv.Itoa(argCount) + `)`
		query += cond
		countQuery += cond
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.GroupID != nil {
		argCount++
		cond := ` AND parent_id = $` + strconv.Itoa(argCount)
		query += cond
		countQuery += cond
		args = append(args, *filters.GroupID)
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

	var groups []ProductGroup
	for rows.Next() {
		var g ProductGroup
		if err := rows.Scan(&g.ID, &g.Code, &g.Name, &g.ParentID, &g.IsActive); err != nil {
			return nil, 0, err
		}
		groups = append(groups, g)
	}
	return groups, total, rows.Err()
}

func (r *repository) GetGroup(ctx context.Context, id int64) (ProductGroup, error) {
	var g ProductGroup
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, parent_id, is_active FROM product_groups WHERE id=$1`, id).
		Scan(&g.ID, &g.Code, &g.Name, &g.ParentID, &g.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductGroup{}, shared.ErrNotFound
		}
		return ProductGroup{}, err
	}
	return g, nil
}

func (r *repository) CreateGroup(ctx context.Context, group ProductGroup) (ProductGroup, error) {
	created := group
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := r.registry.Reserve(ctx, tx, nomshared.KindProductGroup, group.Code); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `INSERT INTO product_groups (code, name, parent_id, is_active)
VALUES ($1, $2, $3, $4) RETURNING id`,
			nomshared.NormalizeCode(group.Code), group.Name, group.ParentID, group.IsActive).Scan(&created.ID)
	})
	if err != nil {
		return ProductGroup{}, err
	}
	created.Code = nomshared.NormalizeCode(group.Code)
	return created, nil
}

func (r *repository) UpdateGroup(ctx context.Context, id int64, group ProductGroup) error {
	tag, err := r.pool.Exec(ctx, `UPDATE product_groups SET name=$1, parent_id=$2, is_active=$3 WHERE id=$4`,
		group.Name, group.ParentID, group.IsActive, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) DeleteGroup(ctx context.Context, id int64) error {
	return r.deleteWithCode(ctx, `product_groups`, nomshared.KindProductGroup, id)
}

func (r *repository) HasChildren(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM product_groups WHERE parent_id=$1)`, id).Scan(&exists)
	return exists, err
}

func (r *repository) ListBrands(ctx context.Context, filters nomshared.ListFilters) ([]Brand, int, error) {
	rows, total, err := r.listFlat(ctx, `brands`, filters)
	if err != nil {
		return nil, 0, err
	}
	brands := make([]Brand, len(rows))
	for i, row := range rows {
		brands[i] = Brand(row)
	}
	return brands, total, nil
}

func (r *repository) CreateBrand(ctx context.Context, brand Brand) (Brand, error) {
	id, err := r.createFlat(ctx, `brands`, nomshared.KindBrand, brand.Code, brand.Name, brand.IsActive)
	if err != nil {
		return Brand{}, err
	}
	brand.ID = id
	brand.Code = nomshared.NormalizeCode(brand.Code)
	return brand, nil
}

func (r *repository) UpdateBrand(ctx context.Context, id int64, brand Brand) error {
	return r.updateFlat(ctx, `brands`, id, brand.Name, brand.IsActive)
}

func (r *repository) DeleteBrand(ctx context.Context, id int64) error {
	return r.deleteWithCode(ctx, `brands`, nomshared.KindBrand, id)
}

func (r *repository) ListTypes(ctx context.Context, filters nomshared.ListFilters) ([]ProductType, int, error) {
	rows, total, err := r.listFlat(ctx, `product_types`, filters)
	if err != nil {
		return nil, 0, err
	}
	types := make([]ProductType, len(rows))
	for i, row := range rows {
		types[i] = ProductType(row)
	}
	return types, total, nil
}

func (r *repository) CreateType(ctx context.Context, pt ProductType) (ProductType, error) {
	id, err := r.createFlat(ctx, `product_types`, nomshared.KindProductType, pt.Code, pt.Name, pt.IsActive)
	if err != nil {
		return ProductType{}, err
	}
	pt.ID = id
	pt.Code = nomshared.NormalizeCode(pt.Code)
	return pt, nil
}

func (r *repository) UpdateType(ctx context.Context, id int64, pt ProductType) error {
	return r.updateFlat(ctx, `product_types`, id, pt.Name, pt.IsActive)
}

func (r *repository) DeleteType(ctx context.Context, id int64) error {
	return r.deleteWithCode(ctx, `product_types`, nomshared.KindProductType, id)
}

type flatRow struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

func (r *repository) listFlat(ctx context.Context, table string, filters nomshared.ListFilters) ([]flatRow, int, error) {
	query := `SELECT id, code, name, is_active FROM ` + table + ` WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM ` + table + ` WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		cond := ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR code ILIKE $` + strconv.Itoa(argCount) + `)`
		query += cond
		countQuery += cond
		args = append(args, "%"+filters.Search+"%")
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

	var list []flatRow
	for rows.Next() {
		var row flatRow
		if err := rows.Scan(&row.ID, &row.Code, &row.Name, &row.IsActive); err != nil {
			return nil, 0, err
		}
		list = append(list, row)
	}
	return list, total, rows.Err()
}

func (r *repository) createFlat(ctx context.Context, table, kind, code, name string, active bool) (int64, error) {
	var id int64
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := r.registry.Reserve(ctx, tx, kind, code); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `INSERT INTO `+table+` (code, name, is_active) VALUES ($1, $2, $3) RETURNING id`,
			nomshared.NormalizeCode(code), name, active).Scan(&id)
	})
	return id, err
}

func (r *repository) updateFlat(ctx context.Context, table string, id int64, name string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE `+table+` SET name=$1, is_active=$2 WHERE id=$3`, name, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) deleteWithCode(ctx context.Context, table, kind string, id int64) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var code string
		err := tx.QueryRow(ctx, `SELECT code FROM `+table+` WHERE id=$1 FOR UPDATE`, id).Scan(&code)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE id=$1`, id); err != nil {
			return err
		}
		return r.registry.Release(ctx, tx, kind, code)
	})
}
