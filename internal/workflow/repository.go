package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/optimapos/optimapos/internal/nomenclature"
	nomshared "github.com/optimapos/optimapos/internal/nomenclature/shared"
	"github.com/optimapos/optimapos/internal/shared"
)

type Repository interface {
	ListTypes(ctx context.Context, filters nomshared.ListFilters) ([]DocumentType, int, error)
	GetType(ctx context.Context, id int64) (DocumentType, error)
	GetTypeByCode(ctx context.Context, code string) (DocumentType, error)
	CreateType(ctx context.Context, dt DocumentType, statuses []Status) (DocumentType, error)
	UpdateType(ctx context.Context, id int64, dt DocumentType) error
	DeleteType(ctx context.Context, id int64) error

	ListStatuses(ctx context.Context, typeID int64) ([]Status, error)
	ReplaceStatuses(ctx context.Context, typeID int64, statuses []Status) error

	ListRules(ctx context.Context, docType string) ([]ApprovalRule, error)
	CreateRule(ctx context.Context, rule ApprovalRule) (ApprovalRule, error)
	UpdateRule(ctx context.Context, id int64, rule ApprovalRule) error
	DeleteRule(ctx context.Context, id int64) error

	AppendLog(ctx context.Context, entry LogEntry) (LogEntry, error)
	ListLog(ctx context.Context, ref uuid.UUID) ([]LogEntry, error)

	// PendingApprovals returns the latest SUBMIT entry per document
	// with no later transition, older than the threshold.
	PendingApprovals(ctx context.Context, olderThan time.Time) ([]LogEntry, error)
}

type repository struct {
	pool     *pgxpool.Pool
	registry *nomenclature.Registry
}

func NewRepository(pool *pgxpool.Pool, registry *nomenclature.Registry) Repository {
	return &repository{pool: pool, registry: registry}
}

const typeColumns = `id, code, name, applies_to, affects_stock, stock_direction, auto_confirm, auto_receive, requires_batch, requires_expiry, requires_quality_check, is_active, created_at, updated_at`

func scanType(row pgx.Row) (DocumentType, error) {
	var dt DocumentType
	err := row.Scan(&dt.ID, &dt.Code, &dt.Name, &dt.AppliesTo, &dt.AffectsStock, &dt.StockDirection,
		&dt.AutoConfirm, &dt.AutoReceive, &dt.RequiresBatch, &dt.RequiresExpiry, &dt.RequiresQualityCheck,
		&dt.IsActive, &dt.CreatedAt, &dt.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DocumentType{}, shared.ErrNotFound
		}
		return DocumentType{}, err
	}
	return dt, nil
}

func (r *repository) ListTypes(ctx context.Context, filters nomshared.ListFilters) ([]DocumentType, int, error) {
	query := `SELECT ` + typeColumns + ` FROM document_types WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM document_types WHERE 1=1`
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

	query += ` ORDER BY code`
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

	var list []DocumentType
	for rows.Next() {
		dt, err := scanType(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, dt)
	}
	return list, total, rows.Err()
}

func (r *repository) GetType(ctx context.Context, id int64) (DocumentType, error) {
	return scanType(r.pool.QueryRow(ctx, `SELECT `+typeColumns+` FROM document_types WHERE id=$1`, id))
}

func (r *repository) GetTypeByCode(ctx context.Context, code string) (DocumentType, error) {
	return scanType(r.pool.QueryRow(ctx, `SELECT `+typeColumns+` FROM document_types WHERE code=$1`, nomshared.NormalizeCode(code)))
}

func (r *repository) CreateType(ctx context.Context, dt DocumentType, statuses []Status) (DocumentType, error) {
	created := dt
	created.Code = nomshared.NormalizeCode(dt.Code)
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		if err := r.registry.Reserve(ctx, tx, nomshared.KindDocumentType, dt.Code); err != nil {
			return err
		}
		err := tx.QueryRow(ctx, `INSERT INTO document_types
(code, name, applies_to, affects_stock, stock_direction, auto_confirm, auto_receive, requires_batch, requires_expiry, requires_quality_check, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id, created_at, updated_at`,
			created.Code, dt.Name, dt.AppliesTo, dt.AffectsStock, dt.StockDirection, dt.AutoConfirm,
			dt.AutoReceive, dt.RequiresBatch, dt.RequiresExpiry, dt.RequiresQualityCheck, dt.IsActive).
			Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt)
		if err != nil {
			return err
		}
		return insertStatuses(ctx, tx, created.ID, statuses)
	})
	if err != nil {
		return DocumentType{}, err
	}
	return created, nil
}

func (r *repository) UpdateType(ctx context.Context, id int64, dt DocumentType) error {
	tag, err := r.pool.Exec(ctx, `UPDATE document_types
SET name=$1, applies_to=$2, affects_stock=$3, stock_direction=$4, auto_confirm=$5, auto_receive=$6,
    requires_batch=$7, requires_expiry=$8, requires_quality_check=$9, is_active=$10, updated_at=now()
WHERE id=$11`,
		dt.Name, dt.AppliesTo, dt.AffectsStock, dt.StockDirection, dt.AutoConfirm, dt.AutoReceive,
		dt.RequiresBatch, dt.RequiresExpiry, dt.RequiresQualityCheck, dt.IsActive, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) DeleteType(ctx context.Context, id int64) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		var code string
		err := tx.QueryRow(ctx, `SELECT code FROM document_types WHERE id=$1 FOR UPDATE`, id).Scan(&code)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return err
		}
		var inUse bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM approval_log WHERE document_type=$1)`, code).Scan(&inUse); err != nil {
			return err
		}
		if inUse {
			return fmt.Errorf("%w: document type %s has recorded documents", shared.ErrInvalidState, code)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM document_type_statuses WHERE document_type_id=$1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM document_types WHERE id=$1`, id); err != nil {
			return err
		}
		return r.registry.Release(ctx, tx, nomshared.KindDocumentType, code)
	})
}

func (r *repository) ListStatuses(ctx context.Context, typeID int64) ([]Status, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, document_type_id, code, name, sort_order, is_initial, is_final, is_cancellation, allow_edit, allow_delete
FROM document_type_statuses WHERE document_type_id=$1 ORDER BY sort_order`, typeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Status
	for rows.Next() {
		var s Status
		if err := rows.Scan(&s.ID, &s.DocumentTypeID, &s.Code, &s.Name, &s.SortOrder,
			&s.IsInitial, &s.IsFinal, &s.IsCancellation, &s.AllowEdit, &s.AllowDelete); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (r *repository) ReplaceStatuses(ctx context.Context, typeID int64, statuses []Status) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM document_type_statuses WHERE document_type_id=$1`, typeID); err != nil {
			return err
		}
		return insertStatuses(ctx, tx, typeID, statuses)
	})
}

func insertStatuses(ctx context.Context, tx pgx.Tx, typeID int64, statuses []Status) error {
	for _, s := range statuses {
		if _, err := tx.Exec(ctx, `INSERT INTO document_type_statuses
(document_type_id, code, name, sort_order, is_initial, is_final, is_cancellation, allow_edit, allow_delete)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			typeID, nomshared.NormalizeCode(s.Code), s.Name, s.SortOrder,
			s.IsInitial, s.IsFinal, s.IsCancellation, s.AllowEdit, s.AllowDelete); err != nil {
			return err
		}
	}
	return nil
}

const ruleColumns = `id, document_type, from_status, to_status, min_amount, max_amount, currency, approver_kind, approver_ref, approval_level, sort_order, is_active, created_at`

func (r *repository) ListRules(ctx context.Context, docType string) ([]ApprovalRule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ruleColumns+` FROM approval_rules
WHERE document_type=$1 ORDER BY approval_level, sort_order`, docType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []ApprovalRule
	for rows.Next() {
		var rule ApprovalRule
		if err := rows.Scan(&rule.ID, &rule.DocumentType, &rule.FromStatus, &rule.ToStatus,
			&rule.MinAmount, &rule.MaxAmount, &rule.Currency, &rule.ApproverKind, &rule.ApproverRef,
			&rule.ApprovalLevel, &rule.SortOrder, &rule.IsActive, &rule.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, rule)
	}
	return list, rows.Err()
}

func (r *repository) CreateRule(ctx context.Context, rule ApprovalRule) (ApprovalRule, error) {
	created := rule
	err := r.pool.QueryRow(ctx, `INSERT INTO approval_rules
(document_type, from_status, to_status, min_amount, max_amount, currency, approver_kind, approver_ref, approval_level, sort_order, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id, created_at`,
		rule.DocumentType, rule.FromStatus, rule.ToStatus, rule.MinAmount, rule.MaxAmount,
		rule.Currency, rule.ApproverKind, rule.ApproverRef, rule.ApprovalLevel, rule.SortOrder, rule.IsActive).
		Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ApprovalRule{}, fmt.Errorf("%w: equivalent approval rule exists", shared.ErrDuplicate)
		}
		return ApprovalRule{}, err
	}
	return created, nil
}

func (r *repository) UpdateRule(ctx context.Context, id int64, rule ApprovalRule) error {
	tag, err := r.pool.Exec(ctx, `UPDATE approval_rules
SET min_amount=$1, max_amount=$2, currency=$3, approver_kind=$4, approver_ref=$5, approval_level=$6, sort_order=$7, is_active=$8
WHERE id=$9`,
		rule.MinAmount, rule.MaxAmount, rule.Currency, rule.ApproverKind, rule.ApproverRef,
		rule.ApprovalLevel, rule.SortOrder, rule.IsActive, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: equivalent approval rule exists", shared.ErrDuplicate)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) DeleteRule(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM approval_rules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) AppendLog(ctx context.Context, entry LogEntry) (LogEntry, error) {
	created := entry
	err := r.pool.QueryRow(ctx, `INSERT INTO approval_log
(document_ref, document_type, from_status, to_status, action, rule_id, level, actor_id, actor_name, comment)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id, created_at`,
		entry.DocumentRef, entry.DocumentType, entry.FromStatus, entry.ToStatus, entry.Action,
		entry.RuleID, entry.Level, entry.ActorID, entry.ActorName, entry.Comment).
		Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		return LogEntry{}, err
	}
	return created, nil
}

func (r *repository) ListLog(ctx context.Context, ref uuid.UUID) ([]LogEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, document_ref, document_type, from_status, to_status, action, rule_id, level, actor_id, actor_name, comment, created_at
FROM approval_log WHERE document_ref=$1 ORDER BY created_at, id`, ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLog(rows)
}

func (r *repository) PendingApprovals(ctx context.Context, olderThan time.Time) ([]LogEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT ON (document_ref)
id, document_ref, document_type, from_status, to_status, action, rule_id, level, actor_id, actor_name, comment, created_at
FROM approval_log ORDER BY document_ref, created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	latest, err := collectLog(rows)
	if err != nil {
		return nil, err
	}
	var pending []LogEntry
	for _, entry := range latest {
		if entry.Action == ActionSubmit && entry.CreatedAt.Before(olderThan) {
			pending = append(pending, entry)
		}
	}
	return pending, nil
}

func collectLog(rows pgx.Rows) ([]LogEntry, error) {
	var list []LogEntry
	for rows.Next() {
		var entry LogEntry
		if err := rows.Scan(&entry.ID, &entry.DocumentRef, &entry.DocumentType, &entry.FromStatus,
			&entry.ToStatus, &entry.Action, &entry.RuleID, &entry.Level, &entry.ActorID,
			&entry.ActorName, &entry.Comment, &entry.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, entry)
	}
	return list, rows.Err()
}
