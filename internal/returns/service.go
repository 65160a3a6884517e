package returns

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/recore-erp/recore-erp/internal/sales/orders"
	"github.com/recore-erp/recore-erp/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// DebtInvalidator drops cached outstanding-debt listings after a decrement.
type DebtInvalidator interface {
	Invalidate(ctx context.Context, clientID int64) error
}

// Service is the reconciliation engine. It is the only component that
// mutates core_debt, entry links, and the order/entry statuses derived
// from them.
type Service struct {
	repo        RepositoryPort
	debts       DebtInvalidator
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService builds Service. debts, audit, and idem may be nil.
func NewService(repo RepositoryPort, debts DebtInvalidator, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, debts: debts, audit: audit, idempotency: idem}
}

// ApplyReturn registers qty returned cores against one sold line. The
// decrement and the order-status recompute commit together.
func (s *Service) ApplyReturn(ctx context.Context, orderItemID int64, qty int, actorID int64) (int, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("return quantity must be positive: %w", shared.ErrValidation)
	}

	var (
		newDebt  int
		clientID int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetOrderItem(ctx, orderItemID)
		if err != nil {
			return err
		}
		newDebt, err = tx.DecrementDebt(ctx, orderItemID, qty)
		if err != nil {
			return err
		}
		order, err := s.recomputeOrderStatusTx(ctx, tx, item.OrderID)
		if err != nil {
			return err
		}
		clientID = order.ClientID
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.afterDebtChange(ctx, clientID)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "returns:apply",
			Entity:   "order_item",
			EntityID: fmt.Sprintf("%d", orderItemID),
			Meta:     map[string]any{"qty": qty, "new_debt": newDebt},
		})
	}
	return newDebt, nil
}

// CreateEntry persists a merchandise entry and auto-resolves every line
// that names a target debt. The entry, its items, all auto-matches, and
// the resulting status changes commit in one transaction.
func (s *Service) CreateEntry(ctx context.Context, req CreateEntryRequest) (*Entry, error) {
	if req.RefID != "" {
		if _, err := uuid.Parse(req.RefID); err != nil {
			return nil, fmt.Errorf("ref id must be a UUID: %w", shared.ErrValidation)
		}
	}
	for _, itemReq := range req.Items {
		if itemReq.Quantity <= 0 {
			return nil, fmt.Errorf("entry quantity must be positive: %w", shared.ErrValidation)
		}
	}

	idemKey := ""
	if s.idempotency != nil && req.RefID != "" {
		idemKey = "entry:" + req.RefID
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "returns"); err != nil {
			return nil, err
		}
	}

	var (
		entryID         int64
		affectedClients = map[int64]struct{}{}
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextReportNumber(ctx, req.EntryDate)
		if err != nil {
			return err
		}

		entryID, err = tx.InsertEntry(ctx, Entry{
			ClientID:     req.ClientID,
			ReportNumber: number,
			EntryDate:    req.EntryDate,
			Status:       EntryStatusPending,
			CreatedBy:    req.CreatedBy,
		})
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}

		for _, itemReq := range req.Items {
			item := EntryItem{
				EntryID:     entryID,
				ProductID:   itemReq.ProductID,
				ProductName: itemReq.ProductName,
				Quantity:    itemReq.Quantity,
			}
			itemID, err := tx.InsertEntryItem(ctx, item)
			if err != nil {
				return fmt.Errorf("insert entry item: %w", err)
			}

			if itemReq.TargetOrderItemID == nil {
				continue
			}

			target, err := tx.GetOrderItem(ctx, *itemReq.TargetOrderItemID)
			if err != nil {
				return err
			}
			if !productMatches(itemReq.ProductID, itemReq.ProductName, target) {
				return fmt.Errorf("entry item for product %d against order item %d: %w",
					itemReq.ProductID, target.ID, shared.ErrProductMismatch)
			}
			if _, err := tx.DecrementDebt(ctx, target.ID, itemReq.Quantity); err != nil {
				return err
			}
			if err := tx.LinkEntryItem(ctx, itemID, target.ID); err != nil {
				return err
			}
			order, err := s.recomputeOrderStatusTx(ctx, tx, target.OrderID)
			if err != nil {
				return err
			}
			affectedClients[order.ClientID] = struct{}{}
		}

		return s.recomputeEntryStatusTx(ctx, tx, entryID)
	})
	if err != nil {
		if idemKey != "" {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return nil, err
	}

	for clientID := range affectedClients {
		s.afterDebtChange(ctx, clientID)
	}

	entry, err := s.repo.GetEntryWithItems(ctx, entryID)
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  req.CreatedBy,
			Action:   "returns:entry_create",
			Entity:   "merchandise_entry",
			EntityID: entry.ReportNumber,
			Meta:     map[string]any{"client_id": req.ClientID, "items": len(req.Items), "status": entry.Status},
		})
	}
	return entry, nil
}

// ConfirmLinks applies an operator's pairing batch against one pending
// entry. Every pairing is validated before any debt moves; validation and
// apply run in the same transaction, so a failure anywhere leaves every
// order item in the batch untouched.
func (s *Service) ConfirmLinks(ctx context.Context, entryID int64, pairings []Pairing, actorID int64) (*Entry, error) {
	if len(pairings) == 0 {
		return nil, fmt.Errorf("no pairings given: %w", shared.ErrValidation)
	}

	affectedClients := map[int64]struct{}{}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryWithItems(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.Status != EntryStatusPending {
			return fmt.Errorf("entry %s is %s: %w", entry.ReportNumber, entry.Status, shared.ErrInvalidStatus)
		}

		unlinked := make(map[int64]EntryItem, len(entry.Items))
		for _, item := range entry.Items {
			if !item.Linked {
				unlinked[item.ID] = item
			}
		}

		// Validation pass. Debts are re-read here, not trusted from the
		// operator's earlier candidate listing.
		type resolved struct {
			entryItem EntryItem
			candidate *orders.OrderItem
			qty       int
		}
		seen := make(map[int64]struct{}, len(pairings))
		requested := make(map[int64]int, len(pairings))
		batch := make([]resolved, 0, len(pairings))
		for _, p := range pairings {
			if p.Quantity <= 0 {
				return fmt.Errorf("pairing quantity must be positive: %w", shared.ErrValidation)
			}
			if _, dup := seen[p.EntryItemID]; dup {
				return fmt.Errorf("entry item %d paired twice: %w", p.EntryItemID, shared.ErrValidation)
			}
			seen[p.EntryItemID] = struct{}{}

			entryItem, ok := unlinked[p.EntryItemID]
			if !ok {
				return fmt.Errorf("entry item %d not open for linking: %w", p.EntryItemID, shared.ErrNotFound)
			}

			candidate, err := tx.GetOrderItem(ctx, p.OrderItemID)
			if err != nil {
				return err
			}
			order, err := tx.GetOrder(ctx, candidate.OrderID)
			if err != nil {
				return err
			}
			if order.ClientID != entry.ClientID {
				return fmt.Errorf("order item %d belongs to another client: %w", candidate.ID, shared.ErrValidation)
			}
			if !productMatches(entryItem.ProductID, entryItem.ProductName, candidate) {
				return fmt.Errorf("entry item %d against order item %d: %w",
					entryItem.ID, candidate.ID, shared.ErrProductMismatch)
			}

			// Earlier pairings in the batch may already claim part of this
			// candidate's debt.
			max := entryItem.Quantity
			if remaining := candidate.CoreDebt - requested[candidate.ID]; remaining < max {
				max = remaining
			}
			if p.Quantity > max {
				return fmt.Errorf("pairing of %d cores against order item %d (available %d): %w",
					p.Quantity, candidate.ID, max, shared.ErrExceedsAvailableDebt)
			}
			requested[candidate.ID] += p.Quantity
			batch = append(batch, resolved{entryItem: entryItem, candidate: candidate, qty: p.Quantity})
		}

		// Apply pass.
		touchedOrders := map[int64]struct{}{}
		for _, m := range batch {
			if _, err := tx.DecrementDebt(ctx, m.candidate.ID, m.qty); err != nil {
				return err
			}
			if err := tx.LinkEntryItem(ctx, m.entryItem.ID, m.candidate.ID); err != nil {
				return err
			}
			touchedOrders[m.candidate.OrderID] = struct{}{}
		}
		for orderID := range touchedOrders {
			order, err := s.recomputeOrderStatusTx(ctx, tx, orderID)
			if err != nil {
				return err
			}
			affectedClients[order.ClientID] = struct{}{}
		}

		return s.recomputeEntryStatusTx(ctx, tx, entryID)
	})
	if err != nil {
		return nil, err
	}

	for clientID := range affectedClients {
		s.afterDebtChange(ctx, clientID)
	}

	entry, err := s.repo.GetEntryWithItems(ctx, entryID)
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "returns:confirm_links",
			Entity:   "merchandise_entry",
			EntityID: entry.ReportNumber,
			Meta:     map[string]any{"pairings": len(pairings), "status": entry.Status},
		})
	}
	return entry, nil
}

// GetEntry loads one entry with its items.
func (s *Service) GetEntry(ctx context.Context, id int64) (*Entry, error) {
	return s.repo.GetEntryWithItems(ctx, id)
}

// ListEntries returns a filtered page of entries.
func (s *Service) ListEntries(ctx context.Context, clientID *int64, status *EntryStatus, limit, offset int) ([]Entry, int, error) {
	return s.repo.ListEntries(ctx, clientID, status, limit, offset)
}

// RecomputeOrderStatus re-derives one order's status from its ledger
// state. Safe to call redundantly.
func (s *Service) RecomputeOrderStatus(ctx context.Context, orderID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := s.recomputeOrderStatusTx(ctx, tx, orderID)
		return err
	})
}

// RecomputeEntryStatus re-derives one entry's status from its link state.
// Safe to call redundantly.
func (s *Service) RecomputeEntryStatus(ctx context.Context, entryID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.recomputeEntryStatusTx(ctx, tx, entryID)
	})
}

// recomputeOrderStatusTx marks the order COMPLETED with a return date once
// every line's debt reaches zero. TOTAL_LOSS is terminal and COMPLETED is
// never revisited; AWAITING_RETURN and OVERDUE are left alone while debt
// remains.
func (s *Service) recomputeOrderStatusTx(ctx context.Context, tx TxRepository, orderID int64) (*orders.Order, error) {
	order, err := tx.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == orders.OrderStatusCompleted || order.Status == orders.OrderStatusTotalLoss {
		return order, nil
	}

	items, err := tx.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.CoreDebt > 0 {
			return order, nil
		}
	}

	now := time.Now()
	if err := tx.UpdateOrderStatus(ctx, orderID, orders.OrderStatusCompleted, &now); err != nil {
		return nil, err
	}
	order.Status = orders.OrderStatusCompleted
	order.ReturnDate = &now
	return order, nil
}

// recomputeEntryStatusTx marks the entry COMPLETED once every item is linked.
func (s *Service) recomputeEntryStatusTx(ctx context.Context, tx TxRepository, entryID int64) error {
	entry, err := tx.GetEntryWithItems(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.Status == EntryStatusCompleted {
		return nil
	}
	for _, item := range entry.Items {
		if !item.Linked {
			return nil
		}
	}
	return tx.UpdateEntryStatus(ctx, entryID, EntryStatusCompleted)
}

func (s *Service) afterDebtChange(ctx context.Context, clientID int64) {
	if s.debts == nil || clientID == 0 {
		return
	}
	_ = s.debts.Invalidate(ctx, clientID)
}

var foldCaser = cases.Fold()

// productMatches accepts a link when product ids agree, falling back to
// case-folded name equality for legacy lines recorded without an id.
func productMatches(productID int64, productName string, candidate *orders.OrderItem) bool {
	if productID != 0 && candidate.ProductID != 0 {
		return productID == candidate.ProductID
	}
	if productName == "" || candidate.ProductName == "" {
		return false
	}
	return foldCaser.String(productName) == foldCaser.String(candidate.ProductName)
}
