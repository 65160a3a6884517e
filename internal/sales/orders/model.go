package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleType distinguishes plain sales from core-exchange sales.
type SaleType string

const (
	SaleTypeNormal       SaleType = "NORMAL"
	SaleTypeCoreExchange SaleType = "CORE_EXCHANGE"
)

// OrderStatus tracks the return lifecycle of a sale.
type OrderStatus string

const (
	OrderStatusAwaitingReturn OrderStatus = "AWAITING_RETURN"
	OrderStatusOverdue        OrderStatus = "OVERDUE"
	OrderStatusCompleted      OrderStatus = "COMPLETED"
	OrderStatusTotalLoss      OrderStatus = "TOTAL_LOSS"
)

// Order is a sale. Status and ReturnDate are the only fields mutated after
// creation, by the reconciliation engine (or the manual total-loss override).
type Order struct {
	ID          int64           `json:"id" db:"id"`
	OrderNumber string          `json:"order_number" db:"order_number"`
	ClientID    int64           `json:"client_id" db:"client_id"`
	SellerID    int64           `json:"seller_id" db:"seller_id"`
	SaleType    SaleType        `json:"sale_type" db:"sale_type"`
	TotalValue  decimal.Decimal `json:"total_value" db:"total_value"`
	Status      OrderStatus     `json:"status" db:"status"`
	SaleDate    time.Time       `json:"sale_date" db:"sale_date"`
	ReturnDate  *time.Time      `json:"return_date,omitempty" db:"return_date"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	Items       []OrderItem     `json:"items,omitempty" db:"-"`
}

// OrderItem is a sold line. CoreDebt counts core units still owed; it is
// seeded equal to Quantity on core-exchange sales and only ever decreases
// through the returns ledger.
type OrderItem struct {
	ID              int64           `json:"id" db:"id"`
	OrderID         int64           `json:"order_id" db:"order_id"`
	ProductID       int64           `json:"product_id" db:"product_id"`
	ProductName     string          `json:"product_name" db:"product_name"`
	Quantity        int             `json:"quantity" db:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price" db:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent" db:"discount_percent"`
	FinalPrice      decimal.Decimal `json:"final_price" db:"final_price"`
	CoreDebt        int             `json:"core_debt" db:"core_debt"`
	RetainedRevenue decimal.Decimal `json:"retained_revenue" db:"retained_revenue"`
	SaleType        SaleType        `json:"sale_type" db:"sale_type"`
}

// Product is the catalog snapshot the sale reads. The catalog itself is
// maintained elsewhere; CarcassValue is the discount budget for a
// core-exchange sale of this product.
type Product struct {
	ID           int64           `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	BasePrice    decimal.Decimal `json:"base_price" db:"base_price"`
	CarcassValue decimal.Decimal `json:"carcass_value" db:"carcass_value"`
}
