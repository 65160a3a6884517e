package returns

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recore-erp/recore-erp/internal/platform/db"
	"github.com/recore-erp/recore-erp/internal/sales/orders"
	"github.com/recore-erp/recore-erp/internal/shared"
)

// RepositoryPort abstracts persistence for the service layer.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntryWithItems(ctx context.Context, id int64) (*Entry, error)
	ListEntries(ctx context.Context, clientID *int64, status *EntryStatus, limit, offset int) ([]Entry, int, error)
}

// TxRepository is the transaction-scoped surface the reconciliation chain
// runs on. Every match executes decrement, link, and status writes inside
// one transaction so a mid-chain failure rolls the whole chain back.
type TxRepository interface {
	NextReportNumber(ctx context.Context, date time.Time) (string, error)
	InsertEntry(ctx context.Context, entry Entry) (int64, error)
	InsertEntryItem(ctx context.Context, item EntryItem) (int64, error)
	GetEntryWithItems(ctx context.Context, id int64) (*Entry, error)
	LinkEntryItem(ctx context.Context, entryItemID, orderItemID int64) error
	UpdateEntryStatus(ctx context.Context, entryID int64, status EntryStatus) error

	GetOrder(ctx context.Context, id int64) (*orders.Order, error)
	GetOrderItem(ctx context.Context, id int64) (*orders.OrderItem, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]orders.OrderItem, error)
	DecrementDebt(ctx context.Context, orderItemID int64, qty int) (int, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status orders.OrderStatus, returnDate *time.Time) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) RepositoryPort {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const reportNumberPrefix = "ENT"

func (r *repository) NextReportNumber(ctx context.Context, date time.Time) (string, error) {
	return shared.NextDocNumber(ctx, r.db, reportNumberPrefix, date.Year())
}

func (r *repository) InsertEntry(ctx context.Context, e Entry) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO merchandise_entries (client_id, report_number, entry_date, status, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id
	`, e.ClientID, e.ReportNumber, e.EntryDate, e.Status, e.CreatedBy).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *repository) InsertEntryItem(ctx context.Context, item EntryItem) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO merchandise_entry_items (entry_id, product_id, product_name, quantity, linked, linked_order_item_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, item.EntryID, item.ProductID, item.ProductName, item.Quantity, item.Linked, item.LinkedOrderItemID).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *repository) GetEntryWithItems(ctx context.Context, id int64) (*Entry, error) {
	var e Entry
	err := r.db.QueryRow(ctx, `
		SELECT id, client_id, report_number, entry_date, status, created_by, created_at
		FROM merchandise_entries WHERE id = $1
	`, id).Scan(&e.ID, &e.ClientID, &e.ReportNumber, &e.EntryDate, &e.Status, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("entry %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, entry_id, product_id, product_name, quantity, linked, linked_order_item_id
		FROM merchandise_entry_items WHERE entry_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item EntryItem
		if err := rows.Scan(&item.ID, &item.EntryID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.Linked, &item.LinkedOrderItemID); err != nil {
			return nil, err
		}
		e.Items = append(e.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repository) ListEntries(ctx context.Context, clientID *int64, status *EntryStatus, limit, offset int) ([]Entry, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}
	argPos := 1
	if clientID != nil {
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", argPos))
		args = append(args, *clientID)
		argPos++
	}
	if status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *status)
		argPos++
	}
	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	var total int
	if err := r.db.QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM merchandise_entries %s", whereClause), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT id, client_id, report_number, entry_date, status, created_by, created_at
		FROM merchandise_entries %s
		ORDER BY entry_date DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ClientID, &e.ReportNumber, &e.EntryDate,
			&e.Status, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// LinkEntryItem records the one-time link; already linked items are not
// overwritten.
func (r *repository) LinkEntryItem(ctx context.Context, entryItemID, orderItemID int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE merchandise_entry_items
		SET linked = TRUE, linked_order_item_id = $2
		WHERE id = $1 AND linked = FALSE
	`, entryItemID, orderItemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entry item %d not linkable: %w", entryItemID, shared.ErrNotFound)
	}
	return nil
}

func (r *repository) UpdateEntryStatus(ctx context.Context, entryID int64, status EntryStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE merchandise_entries SET status = $2 WHERE id = $1`, entryID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entry %d: %w", entryID, shared.ErrNotFound)
	}
	return nil
}

func (r *repository) GetOrder(ctx context.Context, id int64) (*orders.Order, error) {
	var o orders.Order
	err := r.db.QueryRow(ctx, `
		SELECT id, order_number, client_id, seller_id, sale_type, total_value, status, sale_date, return_date, created_at, updated_at
		FROM orders WHERE id = $1
	`, id).Scan(&o.ID, &o.OrderNumber, &o.ClientID, &o.SellerID, &o.SaleType,
		&o.TotalValue, &o.Status, &o.SaleDate, &o.ReturnDate, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}
	return &o, nil
}

func (r *repository) GetOrderItem(ctx context.Context, id int64) (*orders.OrderItem, error) {
	var it orders.OrderItem
	err := r.db.QueryRow(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price, discount_percent, final_price, core_debt, retained_revenue, sale_type
		FROM order_items WHERE id = $1
	`, id).Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity,
		&it.UnitPrice, &it.DiscountPercent, &it.FinalPrice, &it.CoreDebt,
		&it.RetainedRevenue, &it.SaleType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order item %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}
	return &it, nil
}

func (r *repository) GetOrderItems(ctx context.Context, orderID int64) ([]orders.OrderItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price, discount_percent, final_price, core_debt, retained_revenue, sale_type
		FROM order_items WHERE order_id = $1 ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []orders.OrderItem
	for rows.Next() {
		var it orders.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity,
			&it.UnitPrice, &it.DiscountPercent, &it.FinalPrice, &it.CoreDebt,
			&it.RetainedRevenue, &it.SaleType); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// DecrementDebt applies the return as a single conditional update. The
// WHERE guard makes concurrent decrements safe: a lost update cannot drive
// core_debt negative, it just fails the slower caller.
func (r *repository) DecrementDebt(ctx context.Context, orderItemID int64, qty int) (int, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("decrement of %d cores: %w", qty, shared.ErrValidation)
	}
	var newDebt int
	err := r.db.QueryRow(ctx, `
		UPDATE order_items
		SET core_debt = core_debt - $2
		WHERE id = $1 AND core_debt >= $2
		RETURNING core_debt
	`, orderItemID, qty).Scan(&newDebt)
	if err == nil {
		return newDebt, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	// No row updated: distinguish a missing item from insufficient debt.
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM order_items WHERE id = $1)`, orderItemID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("order item %d: %w", orderItemID, shared.ErrNotFound)
	}
	return 0, fmt.Errorf("order item %d: %w", orderItemID, shared.ErrInsufficientDebt)
}

func (r *repository) UpdateOrderStatus(ctx context.Context, orderID int64, status orders.OrderStatus, returnDate *time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE orders SET status = $2, return_date = $3, updated_at = NOW() WHERE id = $1`,
		orderID, status, returnDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d: %w", orderID, shared.ErrNotFound)
	}
	return nil
}
