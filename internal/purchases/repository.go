package purchases

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/optimapos/optimapos/internal/shared"
)

// ListFilters narrows purchase document lists.
type ListFilters struct {
	Page       int
	Limit      int
	Search     string
	Status     string
	TypeCode   string
	LocationID int64
	SupplierID int64
}

func (f ListFilters) offset() int {
	if f.Page < 1 || f.Limit < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetRequest(ctx context.Context, id int64) (PurchaseRequest, error)
	ListRequests(ctx context.Context, filters ListFilters) ([]PurchaseRequest, int, error)
	GetOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ListOrders(ctx context.Context, filters ListFilters) ([]PurchaseOrder, int, error)
	GetDelivery(ctx context.Context, id int64) (DeliveryReceipt, error)
	ListDeliveries(ctx context.Context, filters ListFilters) ([]DeliveryReceipt, int, error)
}

// TxRepository groups the write operations executed inside one
// transaction.
type TxRepository interface {
	CreateRequest(ctx context.Context, pr PurchaseRequest) (int64, error)
	InsertRequestLine(ctx context.Context, line RequestLine) error
	UpdateRequestHeader(ctx context.Context, pr PurchaseRequest) error
	DeleteRequestLines(ctx context.Context, requestID int64) error
	UpdateRequestStatus(ctx context.Context, id int64, status string) error
	DeleteRequest(ctx context.Context, id int64) error

	CreateOrder(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertOrderLine(ctx context.Context, line OrderLine) error
	UpdateOrderHeader(ctx context.Context, po PurchaseOrder) error
	DeleteOrderLines(ctx context.Context, orderID int64) error
	UpdateOrderStatus(ctx context.Context, id int64, status string) error
	DeleteOrder(ctx context.Context, id int64) error

	CreateDelivery(ctx context.Context, dr DeliveryReceipt) (int64, error)
	InsertDeliveryLine(ctx context.Context, line DeliveryLine) error
	UpdateDeliveryStatus(ctx context.Context, id int64, status string) error
	DeleteDeliveryLines(ctx context.Context, receiptID int64) error
	DeleteDelivery(ctx context.Context, id int64) error
}

// Repository is the pgx implementation of RepositoryPort.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const requestColumns = `id, number, type_code, location_id, supplier_id, requester_id, status, note, total, created_at, updated_at`

func scanRequest(row pgx.Row) (PurchaseRequest, error) {
	var pr PurchaseRequest
	err := row.Scan(&pr.ID, &pr.Number, &pr.TypeCode, &pr.LocationID, &pr.SupplierID, &pr.RequesterID,
		&pr.Status, &pr.Note, &pr.Total, &pr.CreatedAt, &pr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRequest{}, shared.ErrNotFound
		}
		return PurchaseRequest{}, err
	}
	return pr, nil
}

func (r *Repository) GetRequest(ctx context.Context, id int64) (PurchaseRequest, error) {
	pr, err := scanRequest(r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM purchase_requests WHERE id=$1`, id))
	if err != nil {
		return PurchaseRequest{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, request_id, product_id, group_id, brand_id, qty, est_unit_price, note
FROM purchase_request_lines WHERE request_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseRequest{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line RequestLine
		if err := rows.Scan(&line.ID, &line.RequestID, &line.ProductID, &line.GroupID, &line.BrandID,
			&line.Qty, &line.EstUnitPrice, &line.Note); err != nil {
			return PurchaseRequest{}, err
		}
		pr.Lines = append(pr.Lines, line)
	}
	return pr, rows.Err()
}

func (r *Repository) ListRequests(ctx context.Context, filters ListFilters) ([]PurchaseRequest, int, error) {
	query := `SELECT ` + requestColumns + ` FROM purchase_requests WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM purchase_requests WHERE 1=1`
	query, countQuery, args := applyFilters(query, countQuery, filters)

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY created_at DESC, id DESC`
	query, args = paginate(query, args, filters)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []PurchaseRequest
	for rows.Next() {
		pr, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, pr)
	}
	return list, total, rows.Err()
}

const orderColumns = `id, number, type_code, location_id, supplier_id, currency, expected_date, payment_terms, delivery_terms, status, note, net_total, tax_total, gross_total, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.Number, &po.TypeCode, &po.LocationID, &po.SupplierID, &po.Currency,
		&po.ExpectedDate, &po.PaymentTerms, &po.DeliveryTerms, &po.Status, &po.Note,
		&po.NetTotal, &po.TaxTotal, &po.GrossTotal, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, shared.ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	return po, nil
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id=$1`, id))
	if err != nil {
		return PurchaseOrder{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, order_id, product_id, qty, unit_price, tax_group_id, discount_pct, net, tax, gross
FROM purchase_order_lines WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.Qty, &line.UnitPrice,
			&line.TaxGroupID, &line.DiscountPct, &line.Net, &line.Tax, &line.Gross); err != nil {
			return PurchaseOrder{}, err
		}
		po.Lines = append(po.Lines, line)
	}
	return po, rows.Err()
}

func (r *Repository) ListOrders(ctx context.Context, filters ListFilters) ([]PurchaseOrder, int, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM purchase_orders WHERE 1=1`
	query, countQuery, args := applyFilters(query, countQuery, filters)

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY created_at DESC, id DESC`
	query, args = paginate(query, args, filters)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []PurchaseOrder
	for rows.Next() {
		po, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, po)
	}
	return list, total, rows.Err()
}

const deliveryColumns = `id, number, type_code, location_id, supplier_id, order_id, received_at, status, note, created_by, created_at, updated_at`

func scanDelivery(row pgx.Row) (DeliveryReceipt, error) {
	var dr DeliveryReceipt
	err := row.Scan(&dr.ID, &dr.Number, &dr.TypeCode, &dr.LocationID, &dr.SupplierID, &dr.OrderID,
		&dr.ReceivedAt, &dr.Status, &dr.Note, &dr.CreatedBy, &dr.CreatedAt, &dr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DeliveryReceipt{}, shared.ErrNotFound
		}
		return DeliveryReceipt{}, err
	}
	return dr, nil
}

func (r *Repository) GetDelivery(ctx context.Context, id int64) (DeliveryReceipt, error) {
	dr, err := scanDelivery(r.pool.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM delivery_receipts WHERE id=$1`, id))
	if err != nil {
		return DeliveryReceipt{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, receipt_id, product_id, ordered_qty, received_qty, unit_cost, batch_no, expiry_date, quality
FROM delivery_receipt_lines WHERE receipt_id=$1 ORDER BY id`, id)
	if err != nil {
		return DeliveryReceipt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line DeliveryLine
		if err := rows.Scan(&line.ID, &line.ReceiptID, &line.ProductID, &line.OrderedQty, &line.ReceivedQty,
			&line.UnitCost, &line.BatchNo, &line.ExpiryDate, &line.Quality); err != nil {
			return DeliveryReceipt{}, err
		}
		line.Variance = variance(line)
		dr.Lines = append(dr.Lines, line)
	}
	return dr, rows.Err()
}

func (r *Repository) ListDeliveries(ctx context.Context, filters ListFilters) ([]DeliveryReceipt, int, error) {
	query := `SELECT ` + deliveryColumns + ` FROM delivery_receipts WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM delivery_receipts WHERE 1=1`
	query, countQuery, args := applyFilters(query, countQuery, filters)

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY received_at DESC, id DESC`
	query, args = paginate(query, args, filters)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []DeliveryReceipt
	for rows.Next() {
		dr, err := scanDelivery(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, dr)
	}
	return list, total, rows.Err()
}

func applyFilters(query, countQuery string, filters ListFilters) (string, string, []any) {
	args := []any{}
	add := func(cond string, value any) {
		args = append(args, value)
		placeholder := "$" + strconv.Itoa(len(args))
		query += cond + placeholder
		countQuery += cond + placeholder
	}
	if filters.Search != "" {
		add(` AND number ILIKE `, "%"+filters.Search+"%")
	}
	if filters.Status != "" {
		add(` AND status = `, filters.Status)
	}
	if filters.TypeCode != "" {
		add(` AND type_code = `, filters.TypeCode)
	}
	if filters.LocationID > 0 {
		add(` AND location_id = `, filters.LocationID)
	}
	if filters.SupplierID > 0 {
		add(` AND supplier_id = `, filters.SupplierID)
	}
	return query, countQuery, args
}

func paginate(query string, args []any, filters ListFilters) (string, []any) {
	if filters.Limit <= 0 {
		return query, args
	}
	args = append(args, filters.Limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, filters.offset())
	query += ` OFFSET $` + strconv.Itoa(len(args))
	return query, args
}

func (t *txRepo) CreateRequest(ctx context.Context, pr PurchaseRequest) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_requests
(number, type_code, location_id, supplier_id, requester_id, status, note, total)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		pr.Number, pr.TypeCode, pr.LocationID, pr.SupplierID, pr.RequesterID, pr.Status, pr.Note, pr.Total).Scan(&id)
	return id, err
}

func (t *txRepo) InsertRequestLine(ctx context.Context, line RequestLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO purchase_request_lines
(request_id, product_id, group_id, brand_id, qty, est_unit_price, note)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		line.RequestID, line.ProductID, line.GroupID, line.BrandID, line.Qty, line.EstUnitPrice, line.Note)
	return err
}

func (t *txRepo) UpdateRequestHeader(ctx context.Context, pr PurchaseRequest) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_requests
SET supplier_id=$1, note=$2, total=$3, updated_at=now() WHERE id=$4`,
		pr.SupplierID, pr.Note, pr.Total, pr.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteRequestLines(ctx context.Context, requestID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_request_lines WHERE request_id=$1`, requestID)
	return err
}

func (t *txRepo) UpdateRequestStatus(ctx context.Context, id int64, status string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_requests SET status=$1, updated_at=now() WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteRequest(ctx context.Context, id int64) error {
	if err := t.DeleteRequestLines(ctx, id); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM purchase_requests WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) CreateOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_orders
(number, type_code, location_id, supplier_id, currency, expected_date, payment_terms, delivery_terms, status, note, net_total, tax_total, gross_total, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`,
		po.Number, po.TypeCode, po.LocationID, po.SupplierID, po.Currency, po.ExpectedDate,
		po.PaymentTerms, po.DeliveryTerms, po.Status, po.Note, po.NetTotal, po.TaxTotal, po.GrossTotal, po.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepo) InsertOrderLine(ctx context.Context, line OrderLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO purchase_order_lines
(order_id, product_id, qty, unit_price, tax_group_id, discount_pct, net, tax, gross)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		line.OrderID, line.ProductID, line.Qty, line.UnitPrice, line.TaxGroupID,
		line.DiscountPct, line.Net, line.Tax, line.Gross)
	return err
}

func (t *txRepo) UpdateOrderHeader(ctx context.Context, po PurchaseOrder) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders
SET supplier_id=$1, currency=$2, expected_date=$3, payment_terms=$4, delivery_terms=$5, note=$6,
    net_total=$7, tax_total=$8, gross_total=$9, updated_at=now()
WHERE id=$10`,
		po.SupplierID, po.Currency, po.ExpectedDate, po.PaymentTerms, po.DeliveryTerms, po.Note,
		po.NetTotal, po.TaxTotal, po.GrossTotal, po.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteOrderLines(ctx context.Context, orderID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_order_lines WHERE order_id=$1`, orderID)
	return err
}

func (t *txRepo) UpdateOrderStatus(ctx context.Context, id int64, status string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status=$1, updated_at=now() WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteOrder(ctx context.Context, id int64) error {
	if err := t.DeleteOrderLines(ctx, id); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM purchase_orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) CreateDelivery(ctx context.Context, dr DeliveryReceipt) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO delivery_receipts
(number, type_code, location_id, supplier_id, order_id, received_at, status, note, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		dr.Number, dr.TypeCode, dr.LocationID, dr.SupplierID, dr.OrderID, dr.ReceivedAt, dr.Status, dr.Note, dr.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepo) InsertDeliveryLine(ctx context.Context, line DeliveryLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO delivery_receipt_lines
(receipt_id, product_id, ordered_qty, received_qty, unit_cost, batch_no, expiry_date, quality)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		line.ReceiptID, line.ProductID, line.OrderedQty, line.ReceivedQty, line.UnitCost,
		line.BatchNo, line.ExpiryDate, line.Quality)
	return err
}

func (t *txRepo) UpdateDeliveryStatus(ctx context.Context, id int64, status string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE delivery_receipts SET status=$1, updated_at=now() WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteDeliveryLines(ctx context.Context, receiptID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM delivery_receipt_lines WHERE receipt_id=$1`, receiptID)
	return err
}

func (t *txRepo) DeleteDelivery(ctx context.Context, id int64) error {
	if err := t.DeleteDeliveryLines(ctx, id); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM delivery_receipts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
