package returns

import "time"

type CreateEntryRequest struct {
	ClientID  int64                `json:"client_id" validate:"required,gt=0"`
	EntryDate time.Time            `json:"entry_date" validate:"required"`
	RefID     string               `json:"ref_id,omitempty"`
	CreatedBy int64                `json:"created_by" validate:"required,gt=0"`
	Items     []CreateEntryItemReq `json:"items" validate:"required,min=1,dive"`
}

type CreateEntryItemReq struct {
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	ProductName string `json:"product_name" validate:"required"`
	Quantity    int    `json:"quantity" validate:"required,gt=0"`
	// TargetOrderItemID asks intake to resolve this line against a specific
	// outstanding debt immediately.
	TargetOrderItemID *int64 `json:"target_order_item_id,omitempty"`
}

// Pairing is one operator decision in a manual reconciliation batch.
type Pairing struct {
	EntryItemID int64 `json:"entry_item_id" validate:"required,gt=0"`
	OrderItemID int64 `json:"order_item_id" validate:"required,gt=0"`
	Quantity    int   `json:"quantity" validate:"required,gt=0"`
}

type ConfirmLinksRequest struct {
	Pairings []Pairing `json:"pairings" validate:"required,min=1,dive"`
}

type ApplyReturnRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}
