package numbering

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/optimapos/optimapos/internal/nomenclature"
	nomshared "github.com/optimapos/optimapos/internal/nomenclature/shared"
	"github.com/optimapos/optimapos/internal/shared"
)

type Repository interface {
	List(ctx context.Context, filters nomshared.ListFilters) ([]Config, int, error)
	Get(ctx context.Context, id int64) (Config, error)
	Create(ctx context.Context, cfg Config) (Config, error)
	Update(ctx context.Context, id int64, cfg Config) error
	Delete(ctx context.Context, id int64) error

	// Advance bumps the counter for the config in a single statement,
	// restarting it when the reset period moved on. Returns the new
	// sequence value.
	Advance(ctx context.Context, id int64, period string) (int64, error)

	// Resolve picks the config for a document type: user preference,
	// then location assignment, then the type's default.
	Resolve(ctx context.Context, docType string, locationID, userID int64) (Config, error)

	AssignLocation(ctx context.Context, a LocationAssignment) (LocationAssignment, error)
	ListAssignments(ctx context.Context, docType string) ([]LocationAssignment, error)
	SetUserPreference(ctx context.Context, p UserPreference) (UserPreference, error)
	ClearUserPreference(ctx context.Context, userID int64, docType string) error

	// ResetElapsed zeroes counters whose reset period has passed.
	ResetElapsed(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	pool     *pgxpool.Pool
	registry *nomenclature.Registry
}

func NewRepository(pool *pgxpool.Pool, registry *nomenclature.Registry) Repository {
	return &repository{pool: pool, registry: registry}
}

const configColumns = `id, code, name, document_type, prefix, suffix, separator, digits, current_no, reset_rule, last_period, fiscal, is_default, is_active, created_at, updated_at`

func scanConfig(row pgx.Row) (Config, error) {
	var c Config
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.DocumentType, &c.Prefix, &c.Suffix, &c.Separator,
		&c.Digits, &c.CurrentNo, &c.ResetRule, &c.LastPeriod, &c.Fiscal, &c.IsDefault, &c.IsActive,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Config{}, shared.ErrNotFound
		}
		return Config{}, err
	}
	return c, nil
}

func (r *repository) List(ctx context.Context, filters nomshared.ListFilters) ([]Config, int, error) {
	query := `SELECT ` + configColumns + ` FROM numbering_configs WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM numbering_configs WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		cond := ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR code ILIKE $` + strconv.Itoa(argCount) +
			` OR document_type ILIKE $` + strconv.Itoa(argCount) + `)`
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

	query += ` ORDER BY document_type, code`
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

	var list []Config
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, c)
	}
	return list, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Config, error) {
	return scanConfig(r.pool.QueryRow(ctx, `SELECT `+configColumns+` FROM numbering_configs WHERE id=$1`, id))
}

func (r *repository) Create(ctx context.Context, cfg Config) (Config, error) {
	created := cfg
	created.Code = nomshared.NormalizeCode(cfg.Code)
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		if err := r.registry.Reserve(ctx, tx, nomshared.KindNumbering, cfg.Code); err != nil {
			return err
		}
		if cfg.IsDefault {
			if _, err := tx.Exec(ctx, `UPDATE numbering_configs SET is_default = FALSE WHERE document_type=$1 AND is_default`, cfg.DocumentType); err != nil {
				return err
			}
		}
		return tx.QueryRow(ctx, `INSERT INTO numbering_configs
(code, name, document_type, prefix, suffix, separator, digits, current_no, reset_rule, last_period, fiscal, is_default, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10, $11, $12)
RETURNING id, created_at, updated_at`,
			created.Code, cfg.Name, cfg.DocumentType, cfg.Prefix, cfg.Suffix, cfg.Separator, cfg.Digits,
			cfg.ResetRule, cfg.LastPeriod, cfg.Fiscal, cfg.IsDefault, cfg.IsActive).
			Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt)
	})
	if err != nil {
		return Config{}, err
	}
	created.CurrentNo = 0
	return created, nil
}

func (r *repository) Update(ctx context.Context, id int64, cfg Config) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		if cfg.IsDefault {
			if _, err := tx.Exec(ctx, `UPDATE numbering_configs SET is_default = FALSE WHERE document_type=$1 AND is_default AND id <> $2`, cfg.DocumentType, id); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `UPDATE numbering_configs
SET name=$1, prefix=$2, suffix=$3, separator=$4, digits=$5, reset_rule=$6, fiscal=$7, is_default=$8, is_active=$9, updated_at=now()
WHERE id=$10`,
			cfg.Name, cfg.Prefix, cfg.Suffix, cfg.Separator, cfg.Digits, cfg.ResetRule, cfg.Fiscal, cfg.IsDefault, cfg.IsActive, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		var code string
		err := tx.QueryRow(ctx, `SELECT code FROM numbering_configs WHERE id=$1 FOR UPDATE`, id).Scan(&code)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return err
		}
		var assigned bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM numbering_location_assignments WHERE config_id=$1 AND is_active
UNION SELECT 1 FROM numbering_user_preferences WHERE config_id=$1 AND is_active)`, id).Scan(&assigned); err != nil {
			return err
		}
		if assigned {
			return fmt.Errorf("%w: config %s is still assigned", shared.ErrInvalidState, code)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM numbering_configs WHERE id=$1`, id); err != nil {
			return err
		}
		return r.registry.Release(ctx, tx, nomshared.KindNumbering, code)
	})
}

func (r *repository) Advance(ctx context.Context, id int64, period string) (int64, error) {
	var seq int64
	err := r.pool.QueryRow(ctx, `UPDATE numbering_configs
SET current_no = CASE WHEN reset_rule <> 'NEVER' AND last_period <> $2 THEN 1 ELSE current_no + 1 END,
    last_period = $2,
    updated_at = now()
WHERE id = $1 AND is_active
RETURNING current_no`, id, period).Scan(&seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}
	return seq, nil
}

func (r *repository) Resolve(ctx context.Context, docType string, locationID, userID int64) (Config, error) {
	if userID > 0 {
		cfg, err := scanConfig(r.pool.QueryRow(ctx, `SELECT `+prefixed(configColumns, "c.")+`
FROM numbering_user_preferences p
JOIN numbering_configs c ON c.id = p.config_id AND c.is_active
WHERE p.user_id=$1 AND p.document_type=$2 AND p.is_active`, userID, docType))
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return Config{}, err
		}
	}
	if locationID > 0 {
		cfg, err := scanConfig(r.pool.QueryRow(ctx, `SELECT `+prefixed(configColumns, "c.")+`
FROM numbering_location_assignments a
JOIN numbering_configs c ON c.id = a.config_id AND c.is_active
WHERE a.location_id=$1 AND a.document_type=$2 AND a.is_active`, locationID, docType))
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return Config{}, err
		}
	}
	cfg, err := scanConfig(r.pool.QueryRow(ctx, `SELECT `+configColumns+`
FROM numbering_configs WHERE document_type=$1 AND is_default AND is_active`, docType))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Config{}, fmt.Errorf("%w: %s", ErrNoConfiguration, docType)
		}
		return Config{}, err
	}
	return cfg, nil
}

func (r *repository) AssignLocation(ctx context.Context, a LocationAssignment) (LocationAssignment, error) {
	created := a
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE numbering_location_assignments
SET is_active = FALSE WHERE document_type=$1 AND location_id=$2 AND is_active`, a.DocumentType, a.LocationID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `INSERT INTO numbering_location_assignments (document_type, location_id, config_id, is_active)
VALUES ($1, $2, $3, TRUE) RETURNING id, created_at`, a.DocumentType, a.LocationID, a.ConfigID).
			Scan(&created.ID, &created.CreatedAt)
	})
	if err != nil {
		return LocationAssignment{}, err
	}
	created.IsActive = true
	return created, nil
}

func (r *repository) ListAssignments(ctx context.Context, docType string) ([]LocationAssignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, document_type, location_id, config_id, is_active, created_at
FROM numbering_location_assignments WHERE document_type=$1 AND is_active ORDER BY location_id`, docType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []LocationAssignment
	for rows.Next() {
		var a LocationAssignment
		if err := rows.Scan(&a.ID, &a.DocumentType, &a.LocationID, &a.ConfigID, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func (r *repository) SetUserPreference(ctx context.Context, p UserPreference) (UserPreference, error) {
	created := p
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE numbering_user_preferences
SET is_active = FALSE WHERE user_id=$1 AND document_type=$2 AND is_active`, p.UserID, p.DocumentType); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `INSERT INTO numbering_user_preferences (user_id, document_type, config_id, is_active)
VALUES ($1, $2, $3, TRUE) RETURNING id, created_at`, p.UserID, p.DocumentType, p.ConfigID).
			Scan(&created.ID, &created.CreatedAt)
	})
	if err != nil {
		return UserPreference{}, err
	}
	created.IsActive = true
	return created, nil
}

func (r *repository) ClearUserPreference(ctx context.Context, userID int64, docType string) error {
	_, err := r.pool.Exec(ctx, `UPDATE numbering_user_preferences
SET is_active = FALSE WHERE user_id=$1 AND document_type=$2 AND is_active`, userID, docType)
	return err
}

func (r *repository) ResetElapsed(ctx context.Context, now time.Time) (int64, error) {
	year := now.Format("2006")
	month := now.Format("200601")
	tag, err := r.pool.Exec(ctx, `UPDATE numbering_configs
SET current_no = 0,
    last_period = CASE reset_rule WHEN 'YEARLY' THEN $1 ELSE $2 END,
    updated_at = now()
WHERE is_active AND (
  (reset_rule = 'YEARLY' AND last_period <> $1) OR
  (reset_rule = 'MONTHLY' AND last_period <> $2))`, year, month)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func prefixed(columns, prefix string) string {
	return prefix + strings.ReplaceAll(columns, ", ", ", "+prefix)
}
