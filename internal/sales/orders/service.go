package orders

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/recore-erp/recore-erp/internal/pricing"
	"github.com/recore-erp/recore-erp/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates sale creation and debt queries.
type Service struct {
	repo  Repository
	cache *DebtCache
	audit AuditPort
}

// NewService builds Service. cache and audit may be nil.
func NewService(repo Repository, cache *DebtCache, audit AuditPort) *Service {
	return &Service{repo: repo, cache: cache, audit: audit}
}

var oneHundred = decimal.NewFromInt(100)

// Create records a sale. Core-exchange lines have their discount clamped to
// the product's carcass value and seed a core debt equal to the sold
// quantity; discounts on normal lines are only bounded to [0,100].
func (s *Service) Create(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	type preparedLine struct {
		item    OrderItem
		product *Product
	}

	var (
		lines   []preparedLine
		clamped []ClampNotice
		total   = decimal.Zero
	)

	for _, lineReq := range req.Lines {
		product, err := s.repo.GetProduct(ctx, lineReq.ProductID)
		if err != nil {
			return nil, fmt.Errorf("verify product: %w", err)
		}

		unitPrice := lineReq.UnitPrice
		if unitPrice.IsZero() {
			unitPrice = product.BasePrice
		}
		if unitPrice.Sign() <= 0 {
			return nil, fmt.Errorf("product %d: %w", product.ID, shared.ErrInvalidPrice)
		}

		percent := lineReq.DiscountPercent
		if percent.Sign() < 0 || percent.GreaterThan(oneHundred) {
			return nil, fmt.Errorf("product %d: discount out of range: %w", product.ID, shared.ErrValidation)
		}

		item := OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    lineReq.Quantity,
			UnitPrice:   unitPrice,
			SaleType:    req.SaleType,
		}

		if req.SaleType == SaleTypeCoreExchange {
			applied, wasClamped, err := pricing.ClampDiscount(unitPrice, percent, product.CarcassValue)
			if err != nil {
				return nil, err
			}
			if wasClamped {
				clamped = append(clamped, ClampNotice{
					ProductID:        product.ID,
					RequestedPercent: percent,
					AppliedPercent:   applied,
				})
			}
			percent = applied
			item.CoreDebt = lineReq.Quantity
			item.RetainedRevenue = pricing.RetainedRevenue(product.CarcassValue, pricing.DiscountValue(unitPrice, percent))
		}

		item.DiscountPercent = percent
		item.FinalPrice = pricing.FinalPrice(unitPrice, percent)
		total = total.Add(item.FinalPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))

		lines = append(lines, preparedLine{item: item, product: product})
	}

	status := OrderStatusCompleted
	if req.SaleType == SaleTypeCoreExchange {
		status = OrderStatusAwaitingReturn
	}

	order := Order{
		ClientID:   req.ClientID,
		SellerID:   req.SellerID,
		SaleType:   req.SaleType,
		TotalValue: total,
		Status:     status,
		SaleDate:   req.SaleDate,
	}

	var orderID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		number, err := repo.NextOrderNumber(ctx, req.SaleDate)
		if err != nil {
			return err
		}
		order.OrderNumber = number

		orderID, err = repo.Create(ctx, order)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, line := range lines {
			line.item.OrderID = orderID
			if _, err := repo.InsertItem(ctx, line.item); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  req.SellerID,
			Action:   "orders:create",
			Entity:   "order",
			EntityID: order.OrderNumber,
			Meta: map[string]any{
				"client_id": req.ClientID,
				"sale_type": req.SaleType,
				"lines":     len(lines),
				"clamped":   len(clamped),
			},
		})
	}

	created, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &CreateOrderResult{Order: created, Clamped: clamped}, nil
}

// Get returns one order with its items.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.repo.Get(ctx, id)
}

// List returns a filtered page of orders.
func (s *Service) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	return s.repo.List(ctx, req)
}

// OutstandingDebts lists the client's core-exchange items with debt left,
// serving matcher candidates. Reads go through the Redis cache.
func (s *Service) OutstandingDebts(ctx context.Context, clientID int64) ([]OrderItem, error) {
	if items, ok := s.cache.Get(ctx, clientID); ok {
		return items, nil
	}
	items, err := s.repo.OutstandingDebtsByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, clientID, items)
	return items, nil
}

// MarkTotalLoss is the manual terminal override for sales whose cores will
// never come back. Completed orders cannot be written off.
func (s *Service) MarkTotalLoss(ctx context.Context, id int64, actorID int64) (*Order, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if existing.Status == OrderStatusCompleted || existing.Status == OrderStatusTotalLoss {
		return nil, fmt.Errorf("order %s is %s: %w", existing.OrderNumber, existing.Status, shared.ErrInvalidStatus)
	}

	if err := s.repo.UpdateStatus(ctx, id, OrderStatusTotalLoss, existing.ReturnDate); err != nil {
		return nil, fmt.Errorf("mark total loss: %w", err)
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "orders:total_loss",
			Entity:   "order",
			EntityID: existing.OrderNumber,
		})
	}

	return s.repo.Get(ctx, id)
}
