// Package returns implements the core-exchange reconciliation engine: the
// per-line core-debt ledger, entry intake with automatic matching, the
// operator-driven manual matcher, and the status propagation that follows
// every ledger movement.
package returns

import "time"

// EntryStatus tracks reconciliation progress of a merchandise entry.
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "PENDING"
	EntryStatusCompleted EntryStatus = "COMPLETED"
)

// Entry records goods physically received from a client, awaiting matching
// against that client's outstanding core debts.
type Entry struct {
	ID           int64       `json:"id" db:"id"`
	ClientID     int64       `json:"client_id" db:"client_id"`
	ReportNumber string      `json:"report_number" db:"report_number"`
	EntryDate    time.Time   `json:"entry_date" db:"entry_date"`
	Status       EntryStatus `json:"status" db:"status"`
	CreatedBy    int64       `json:"created_by" db:"created_by"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	Items        []EntryItem `json:"items,omitempty" db:"-"`
}

// EntryItem is one returned-core line. Linked and LinkedOrderItemID move
// from unset to set exactly once; there is no unlink operation.
type EntryItem struct {
	ID                int64  `json:"id" db:"id"`
	EntryID           int64  `json:"entry_id" db:"entry_id"`
	ProductID         int64  `json:"product_id" db:"product_id"`
	ProductName       string `json:"product_name" db:"product_name"`
	Quantity          int    `json:"quantity" db:"quantity"`
	Linked            bool   `json:"linked" db:"linked"`
	LinkedOrderItemID *int64 `json:"linked_order_item_id,omitempty" db:"linked_order_item_id"`
}
