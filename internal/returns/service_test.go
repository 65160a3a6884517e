package returns

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/recore-erp/recore-erp/internal/sales/orders"
	"github.com/recore-erp/recore-erp/internal/shared"
)

type memoryStore struct {
	orders     map[int64]*orders.Order
	orderItems map[int64]*orders.OrderItem
	entries    map[int64]*Entry
	entryItems map[int64]*EntryItem
	counters   map[string]int64
	nextID     int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		orders:     make(map[int64]*orders.Order),
		orderItems: make(map[int64]*orders.OrderItem),
		entries:    make(map[int64]*Entry),
		entryItems: make(map[int64]*EntryItem),
		counters:   make(map[string]int64),
	}
}

func (s *memoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memoryStore) addOrder(clientID int64, saleType orders.SaleType, items ...orders.OrderItem) *orders.Order {
	o := &orders.Order{
		ID:       s.id(),
		ClientID: clientID,
		SaleType: saleType,
		Status:   orders.OrderStatusAwaitingReturn,
		SaleDate: time.Now(),
	}
	s.orders[o.ID] = o
	for i := range items {
		item := items[i]
		item.ID = s.id()
		item.OrderID = o.ID
		item.SaleType = saleType
		s.orderItems[item.ID] = &item
	}
	return o
}

type memoryTx struct {
	store *memoryStore
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{store: s})
}

func (s *memoryStore) GetEntryWithItems(ctx context.Context, id int64) (*Entry, error) {
	return (&memoryTx{store: s}).GetEntryWithItems(ctx, id)
}

func (s *memoryStore) ListEntries(ctx context.Context, clientID *int64, status *EntryStatus, limit, offset int) ([]Entry, int, error) {
	var result []Entry
	for _, e := range s.entries {
		if clientID != nil && e.ClientID != *clientID {
			continue
		}
		if status != nil && e.Status != *status {
			continue
		}
		result = append(result, *e)
	}
	return result, len(result), nil
}

func (tx *memoryTx) NextReportNumber(ctx context.Context, date time.Time) (string, error) {
	key := fmt.Sprintf("ENT-%d", date.Year())
	tx.store.counters[key]++
	return fmt.Sprintf("%s-%04d", key, tx.store.counters[key]), nil
}

func (tx *memoryTx) InsertEntry(ctx context.Context, e Entry) (int64, error) {
	e.ID = tx.store.id()
	e.CreatedAt = time.Now()
	tx.store.entries[e.ID] = &e
	return e.ID, nil
}

func (tx *memoryTx) InsertEntryItem(ctx context.Context, item EntryItem) (int64, error) {
	item.ID = tx.store.id()
	tx.store.entryItems[item.ID] = &item
	return item.ID, nil
}

func (tx *memoryTx) GetEntryWithItems(ctx context.Context, id int64) (*Entry, error) {
	e, ok := tx.store.entries[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	out := *e
	out.Items = nil
	for _, item := range tx.store.entryItems {
		if item.EntryID == id {
			out.Items = append(out.Items, *item)
		}
	}
	sort.Slice(out.Items, func(i, j int) bool { return out.Items[i].ID < out.Items[j].ID })
	return &out, nil
}

func (tx *memoryTx) LinkEntryItem(ctx context.Context, entryItemID, orderItemID int64) error {
	item, ok := tx.store.entryItems[entryItemID]
	if !ok || item.Linked {
		return shared.ErrNotFound
	}
	item.Linked = true
	item.LinkedOrderItemID = &orderItemID
	return nil
}

func (tx *memoryTx) UpdateEntryStatus(ctx context.Context, entryID int64, status EntryStatus) error {
	e, ok := tx.store.entries[entryID]
	if !ok {
		return shared.ErrNotFound
	}
	e.Status = status
	return nil
}

func (tx *memoryTx) GetOrder(ctx context.Context, id int64) (*orders.Order, error) {
	o, ok := tx.store.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	out := *o
	return &out, nil
}

func (tx *memoryTx) GetOrderItem(ctx context.Context, id int64) (*orders.OrderItem, error) {
	item, ok := tx.store.orderItems[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	out := *item
	return &out, nil
}

func (tx *memoryTx) GetOrderItems(ctx context.Context, orderID int64) ([]orders.OrderItem, error) {
	var items []orders.OrderItem
	for _, item := range tx.store.orderItems {
		if item.OrderID == orderID {
			items = append(items, *item)
		}
	}
	return items, nil
}

func (tx *memoryTx) DecrementDebt(ctx context.Context, orderItemID int64, qty int) (int, error) {
	if qty <= 0 {
		return 0, shared.ErrValidation
	}
	item, ok := tx.store.orderItems[orderItemID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	if item.CoreDebt < qty {
		return 0, shared.ErrInsufficientDebt
	}
	item.CoreDebt -= qty
	return item.CoreDebt, nil
}

func (tx *memoryTx) UpdateOrderStatus(ctx context.Context, orderID int64, status orders.OrderStatus, returnDate *time.Time) error {
	o, ok := tx.store.orders[orderID]
	if !ok {
		return shared.ErrNotFound
	}
	o.Status = status
	o.ReturnDate = returnDate
	return nil
}

type countingInvalidator struct {
	clients []int64
}

func (c *countingInvalidator) Invalidate(ctx context.Context, clientID int64) error {
	c.clients = append(c.clients, clientID)
	return nil
}

func TestApplyReturnLifecycle(t *testing.T) {
	store := newMemoryStore()
	invalidator := &countingInvalidator{}
	svc := NewService(store, invalidator, nil, nil)
	ctx := context.Background()

	order := store.addOrder(7, orders.SaleTypeCoreExchange,
		orders.OrderItem{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 3, CoreDebt: 3})
	itemID := order.ID + 1

	debt, err := svc.ApplyReturn(ctx, itemID, 2, 1)
	require.NoError(t, err)
	require.Equal(t, 1, debt)
	require.Equal(t, orders.OrderStatusAwaitingReturn, store.orders[order.ID].Status)
	require.Nil(t, store.orders[order.ID].ReturnDate)

	debt, err = svc.ApplyReturn(ctx, itemID, 1, 1)
	require.NoError(t, err)
	require.Equal(t, 0, debt)
	require.Equal(t, orders.OrderStatusCompleted, store.orders[order.ID].Status)
	require.NotNil(t, store.orders[order.ID].ReturnDate)

	_, err = svc.ApplyReturn(ctx, itemID, 1, 1)
	require.ErrorIs(t, err, shared.ErrInsufficientDebt)

	require.Equal(t, []int64{7, 7}, invalidator.clients)
}

func TestApplyReturnValidation(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.ApplyReturn(ctx, 1, 0, 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.ApplyReturn(ctx, 999, 1, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateEntryAutoLinksAndCompletes(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	order := store.addOrder(3, orders.SaleTypeCoreExchange,
		orders.OrderItem{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 2, CoreDebt: 2},
		orders.OrderItem{ProductID: 11, ProductName: "Turbina", Quantity: 1, CoreDebt: 1})
	firstItemID := order.ID + 1
	secondItemID := order.ID + 2

	entry, err := svc.CreateEntry(ctx, CreateEntryRequest{
		ClientID:  3,
		EntryDate: time.Now(),
		CreatedBy: 1,
		Items: []CreateEntryItemReq{
			{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 2, TargetOrderItemID: &firstItemID},
			{ProductID: 11, ProductName: "Turbina", Quantity: 1, TargetOrderItemID: &secondItemID},
		},
	})
	require.NoError(t, err)
	require.Equal(t, EntryStatusCompleted, entry.Status)
	require.Len(t, entry.Items, 2)
	for _, item := range entry.Items {
		require.True(t, item.Linked)
		require.NotNil(t, item.LinkedOrderItemID)
	}

	require.Equal(t, 0, store.orderItems[firstItemID].CoreDebt)
	require.Equal(t, 0, store.orderItems[secondItemID].CoreDebt)
	require.Equal(t, orders.OrderStatusCompleted, store.orders[order.ID].Status)
}

func TestCreateEntryWithoutTargetsStaysPending(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	entry, err := svc.CreateEntry(ctx, CreateEntryRequest{
		ClientID:  3,
		EntryDate: time.Now(),
		CreatedBy: 1,
		Items: []CreateEntryItemReq{
			{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 2},
		},
	})
	require.NoError(t, err)
	require.Equal(t, EntryStatusPending, entry.Status)
	require.False(t, entry.Items[0].Linked)
}

func TestCreateEntryReportNumbers(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	date := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	first, err := svc.CreateEntry(ctx, CreateEntryRequest{
		ClientID: 1, EntryDate: date, CreatedBy: 1,
		Items: []CreateEntryItemReq{{ProductID: 10, ProductName: "Bloco", Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, "ENT-2026-0001", first.ReportNumber)

	second, err := svc.CreateEntry(ctx, CreateEntryRequest{
		ClientID: 1, EntryDate: date, CreatedBy: 1,
		Items: []CreateEntryItemReq{{ProductID: 10, ProductName: "Bloco", Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, "ENT-2026-0002", second.ReportNumber)
}

func TestCreateEntryRejectsProductMismatch(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	order := store.addOrder(3, orders.SaleTypeCoreExchange,
		orders.OrderItem{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 2, CoreDebt: 2})
	itemID := order.ID + 1

	_, err := svc.CreateEntry(ctx, CreateEntryRequest{
		ClientID:  3,
		EntryDate: time.Now(),
		CreatedBy: 1,
		Items: []CreateEntryItemReq{
			{ProductID: 99, ProductName: "Cabecote", Quantity: 1, TargetOrderItemID: &itemID},
		},
	})
	require.ErrorIs(t, err, shared.ErrProductMismatch)
	require.Equal(t, 2, store.orderItems[itemID].CoreDebt)
}

func TestCreateEntryRejectsNonPositiveQuantity(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	order := store.addOrder(3, orders.SaleTypeCoreExchange,
		orders.OrderItem{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 2, CoreDebt: 2})
	itemID := order.ID + 1

	// A negative auto-matched quantity must not reach the ledger, where it
	// would increase the debt instead of settling it.
	_, err := svc.CreateEntry(ctx, CreateEntryRequest{
		ClientID: 3, EntryDate: time.Now(), CreatedBy: 1,
		Items: []CreateEntryItemReq{
			{ProductID: 10, ProductName: "Bomba Injetora", Quantity: -1, TargetOrderItemID: &itemID},
		},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, 2, store.orderItems[itemID].CoreDebt)

	_, err = svc.CreateEntry(ctx, CreateEntryRequest{
		ClientID: 3, EntryDate: time.Now(), CreatedBy: 1,
		Items: []CreateEntryItemReq{
			{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 0},
		},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateEntryRejectsBadRefID(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateEntry(ctx, CreateEntryRequest{
		ClientID: 1, EntryDate: time.Now(), CreatedBy: 1, RefID: "not-a-uuid",
		Items: []CreateEntryItemReq{{ProductID: 10, ProductName: "Bloco", Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestConfirmLinksCompletesEntry(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	order := store.addOrder(3, orders.SaleTypeCoreExchange,
		orders.OrderItem{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 3, CoreDebt: 3})
	orderItemID := order.ID + 1

	entry, err := svc.CreateEntry(ctx, CreateEntryRequest{
		ClientID: 3, EntryDate: time.Now(), CreatedBy: 1,
		Items: []CreateEntryItemReq{
			{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 2},
		},
	})
	require.NoError(t, err)
	require.Equal(t, EntryStatusPending, entry.Status)

	updated, err := svc.ConfirmLinks(ctx, entry.ID, []Pairing{
		{EntryItemID: entry.Items[0].ID, OrderItemID: orderItemID, Quantity: 2},
	}, 1)
	require.NoError(t, err)
	require.Equal(t, EntryStatusCompleted, updated.Status)
	require.True(t, updated.Items[0].Linked)
	require.Equal(t, 1, store.orderItems[orderItemID].CoreDebt)
	require.Equal(t, orders.OrderStatusAwaitingReturn, store.orders[order.ID].Status)
}

func TestConfirmLinksRejectsOverDebtBatchUntouched(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	order := store.addOrder(3, orders.SaleTypeCoreExchange,
		orders.OrderItem{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 2, CoreDebt: 2},
		orders.OrderItem{ProductID: 11, ProductName: "Turbina", Quantity: 1, CoreDebt: 1})
	firstOrderItem := order.ID + 1
	secondOrderItem := order.ID + 2

	entry, err := svc.CreateEntry(ctx, CreateEntryRequest{
		ClientID: 3, EntryDate: time.Now(), CreatedBy: 1,
		Items: []CreateEntryItemReq{
			{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 2},
			{ProductID: 11, ProductName: "Turbina", Quantity: 5},
		},
	})
	require.NoError(t, err)

	// Second pairing asks for more than the candidate's remaining debt.
	_, err = svc.ConfirmLinks(ctx, entry.ID, []Pairing{
		{EntryItemID: entry.Items[0].ID, OrderItemID: firstOrderItem, Quantity: 2},
		{EntryItemID: entry.Items[1].ID, OrderItemID: secondOrderItem, Quantity: 5},
	}, 1)
	require.ErrorIs(t, err, shared.ErrExceedsAvailableDebt)

	require.Equal(t, 2, store.orderItems[firstOrderItem].CoreDebt)
	require.Equal(t, 1, store.orderItems[secondOrderItem].CoreDebt)
	reloaded, err := svc.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	for _, item := range reloaded.Items {
		require.False(t, item.Linked)
	}
}

func TestConfirmLinksRejectsCumulativeOverDebtOnSharedCandidate(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	order := store.addOrder(3, orders.SaleTypeCoreExchange,
		orders.OrderItem{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 3, CoreDebt: 3})
	orderItemID := order.ID + 1

	entry, err := svc.CreateEntry(ctx, CreateEntryRequest{
		ClientID: 3, EntryDate: time.Now(), CreatedBy: 1,
		Items: []CreateEntryItemReq{
			{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 2},
			{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 2},
		},
	})
	require.NoError(t, err)

	// Each pairing fits on its own; together they ask for 4 against a debt
	// of 3, which must be caught in validation, not die mid-apply.
	_, err = svc.ConfirmLinks(ctx, entry.ID, []Pairing{
		{EntryItemID: entry.Items[0].ID, OrderItemID: orderItemID, Quantity: 2},
		{EntryItemID: entry.Items[1].ID, OrderItemID: orderItemID, Quantity: 2},
	}, 1)
	require.ErrorIs(t, err, shared.ErrExceedsAvailableDebt)

	require.Equal(t, 3, store.orderItems[orderItemID].CoreDebt)
	reloaded, err := svc.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	for _, item := range reloaded.Items {
		require.False(t, item.Linked)
	}
}

func TestConfirmLinksRejectsWrongClient(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	otherOrder := store.addOrder(99, orders.SaleTypeCoreExchange,
		orders.OrderItem{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 1, CoreDebt: 1})
	otherItem := otherOrder.ID + 1

	entry, err := svc.CreateEntry(ctx, CreateEntryRequest{
		ClientID: 3, EntryDate: time.Now(), CreatedBy: 1,
		Items: []CreateEntryItemReq{
			{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 1},
		},
	})
	require.NoError(t, err)

	_, err = svc.ConfirmLinks(ctx, entry.ID, []Pairing{
		{EntryItemID: entry.Items[0].ID, OrderItemID: otherItem, Quantity: 1},
	}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, 1, store.orderItems[otherItem].CoreDebt)
}

func TestConfirmLinksRejectsDuplicatePairing(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	order := store.addOrder(3, orders.SaleTypeCoreExchange,
		orders.OrderItem{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 2, CoreDebt: 2})
	orderItemID := order.ID + 1

	entry, err := svc.CreateEntry(ctx, CreateEntryRequest{
		ClientID: 3, EntryDate: time.Now(), CreatedBy: 1,
		Items: []CreateEntryItemReq{
			{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 2},
		},
	})
	require.NoError(t, err)

	_, err = svc.ConfirmLinks(ctx, entry.ID, []Pairing{
		{EntryItemID: entry.Items[0].ID, OrderItemID: orderItemID, Quantity: 1},
		{EntryItemID: entry.Items[0].ID, OrderItemID: orderItemID, Quantity: 1},
	}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, 2, store.orderItems[orderItemID].CoreDebt)
}

func TestConfirmLinksOnCompletedEntry(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	order := store.addOrder(3, orders.SaleTypeCoreExchange,
		orders.OrderItem{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 1, CoreDebt: 1})
	itemID := order.ID + 1

	entry, err := svc.CreateEntry(ctx, CreateEntryRequest{
		ClientID: 3, EntryDate: time.Now(), CreatedBy: 1,
		Items: []CreateEntryItemReq{
			{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 1, TargetOrderItemID: &itemID},
		},
	})
	require.NoError(t, err)
	require.Equal(t, EntryStatusCompleted, entry.Status)

	_, err = svc.ConfirmLinks(ctx, entry.ID, []Pairing{
		{EntryItemID: entry.Items[0].ID, OrderItemID: itemID, Quantity: 1},
	}, 1)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestProductNameFallbackMatch(t *testing.T) {
	candidate := &orders.OrderItem{ProductID: 0, ProductName: "BOMBA INJETORA"}
	require.True(t, productMatches(0, "bomba injetora", candidate))
	require.False(t, productMatches(0, "turbina", candidate))
	require.False(t, productMatches(0, "", candidate))

	byID := &orders.OrderItem{ProductID: 10, ProductName: "Bomba Injetora"}
	require.True(t, productMatches(10, "anything", byID))
	require.False(t, productMatches(11, "Bomba Injetora", byID))
}

func TestRecomputeIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	order := store.addOrder(3, orders.SaleTypeCoreExchange,
		orders.OrderItem{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 1, CoreDebt: 0})

	require.NoError(t, svc.RecomputeOrderStatus(ctx, order.ID))
	require.Equal(t, orders.OrderStatusCompleted, store.orders[order.ID].Status)
	firstReturnDate := store.orders[order.ID].ReturnDate

	require.NoError(t, svc.RecomputeOrderStatus(ctx, order.ID))
	require.Equal(t, firstReturnDate, store.orders[order.ID].ReturnDate)
}

func TestTotalLossIsTerminalForPropagator(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	order := store.addOrder(3, orders.SaleTypeCoreExchange,
		orders.OrderItem{ProductID: 10, ProductName: "Bomba Injetora", Quantity: 1, CoreDebt: 0})
	store.orders[order.ID].Status = orders.OrderStatusTotalLoss

	require.NoError(t, svc.RecomputeOrderStatus(ctx, order.ID))
	require.Equal(t, orders.OrderStatusTotalLoss, store.orders[order.ID].Status)
}
