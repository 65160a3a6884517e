package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateOrderRequest struct {
	ClientID int64                `json:"client_id" validate:"required,gt=0"`
	SellerID int64                `json:"seller_id" validate:"required,gt=0"`
	SaleType SaleType             `json:"sale_type" validate:"required,oneof=NORMAL CORE_EXCHANGE"`
	SaleDate time.Time            `json:"sale_date" validate:"required"`
	Lines    []CreateOrderLineReq `json:"lines" validate:"required,min=1,dive"`
}

type CreateOrderLineReq struct {
	ProductID       int64           `json:"product_id" validate:"required,gt=0"`
	Quantity        int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

// ClampNotice reports a discount silently lowered to the carcass ceiling.
// Callers surface these to the seller.
type ClampNotice struct {
	ProductID        int64           `json:"product_id"`
	RequestedPercent decimal.Decimal `json:"requested_percent"`
	AppliedPercent   decimal.Decimal `json:"applied_percent"`
}

type CreateOrderResult struct {
	Order   *Order        `json:"order"`
	Clamped []ClampNotice `json:"clamped,omitempty"`
}

type ListOrdersRequest struct {
	ClientID *int64       `json:"client_id,omitempty"`
	Status   *OrderStatus `json:"status,omitempty"`
	SaleType *SaleType    `json:"sale_type,omitempty"`
	DateFrom *time.Time   `json:"date_from,omitempty"`
	DateTo   *time.Time   `json:"date_to,omitempty"`
	Limit    int          `json:"limit" validate:"gte=0,lte=1000"`
	Offset   int          `json:"offset" validate:"gte=0"`
}
