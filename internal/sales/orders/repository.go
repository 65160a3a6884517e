package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recore-erp/recore-erp/internal/platform/db"
	"github.com/recore-erp/recore-erp/internal/shared"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	GetProduct(ctx context.Context, id int64) (*Product, error)
	NextOrderNumber(ctx context.Context, date time.Time) (string, error)
	Create(ctx context.Context, order Order) (int64, error)
	InsertItem(ctx context.Context, item OrderItem) (int64, error)
	Get(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error)
	OutstandingDebtsByClient(ctx context.Context, clientID int64) ([]OrderItem, error)
	UpdateStatus(ctx context.Context, id int64, status OrderStatus, returnDate *time.Time) error
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

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var p Product
	err := r.db.QueryRow(ctx,
		`SELECT id, name, base_price, carcass_value FROM products WHERE id = $1`,
		id).Scan(&p.ID, &p.Name, &p.BasePrice, &p.CarcassValue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

const orderNumberPrefix = "PED"

// NextOrderNumber allocates a year-scoped sequential order number.
func (r *repository) NextOrderNumber(ctx context.Context, date time.Time) (string, error) {
	return shared.NextDocNumber(ctx, r.db, orderNumberPrefix, date.Year())
}

func (r *repository) Create(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO orders (order_number, client_id, seller_id, sale_type, total_value, status, sale_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id
	`, o.OrderNumber, o.ClientID, o.SellerID, o.SaleType, o.TotalValue, o.Status, o.SaleDate).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *repository) InsertItem(ctx context.Context, item OrderItem) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, discount_percent, final_price, core_debt, retained_revenue, sale_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice,
		item.DiscountPercent, item.FinalPrice, item.CoreDebt, item.RetainedRevenue, item.SaleType).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

const orderColumns = `id, order_number, client_id, seller_id, sale_type, total_value, status, sale_date, return_date, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.ClientID, &o.SellerID, &o.SaleType,
		&o.TotalValue, &o.Status, &o.SaleDate, &o.ReturnDate, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

const itemColumns = `id, order_id, product_id, product_name, quantity, unit_price, discount_percent, final_price, core_debt, retained_revenue, sale_type`

func scanItems(rows pgx.Rows) ([]OrderItem, error) {
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity,
			&it.UnitPrice, &it.DiscountPercent, &it.FinalPrice, &it.CoreDebt,
			&it.RetainedRevenue, &it.SaleType); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (*Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1`, orderColumns), id))
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM order_items WHERE order_id = $1 ORDER BY id`, itemColumns), id)
	if err != nil {
		return nil, err
	}
	o.Items, err = scanItems(rows)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repository) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}
	argPos := 1

	if req.ClientID != nil {
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", argPos))
		args = append(args, *req.ClientID)
		argPos++
	}
	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}
	if req.SaleType != nil {
		conditions = append(conditions, fmt.Sprintf("sale_type = $%d", argPos))
		args = append(args, *req.SaleType)
		argPos++
	}
	if req.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("sale_date >= $%d", argPos))
		args = append(args, *req.DateFrom)
		argPos++
	}
	if req.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("sale_date <= $%d", argPos))
		args = append(args, *req.DateTo)
		argPos++
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM orders %s", whereClause)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY sale_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, whereClause, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.ClientID, &o.SellerID, &o.SaleType,
			&o.TotalValue, &o.Status, &o.SaleDate, &o.ReturnDate, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, o)
	}
	return result, total, rows.Err()
}

func (r *repository) OutstandingDebtsByClient(ctx context.Context, clientID int64) ([]OrderItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, oi.product_name, oi.quantity,
		       oi.unit_price, oi.discount_percent, oi.final_price, oi.core_debt,
		       oi.retained_revenue, oi.sale_type
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.sale_type = $1
		  AND oi.core_debt > 0
		  AND o.client_id = $2
		ORDER BY oi.id
	`, SaleTypeCoreExchange, clientID)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status OrderStatus, returnDate *time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE orders SET status = $2, return_date = $3, updated_at = NOW() WHERE id = $1`,
		id, status, returnDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
