package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/harvest-market/internal/actor"
	"github.com/ariefcatur/harvest-market/internal/apperr"
	"github.com/ariefcatur/harvest-market/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

var (
	buyer  = actor.Actor{ID: "buyer-1", Role: actor.RoleBuyer}
	admin  = actor.Actor{ID: "admin-1", Role: actor.RoleAdmin}
	farmer = actor.Actor{ID: "seller-a", Role: actor.RoleFarmer}
)

type recordingSink struct {
	mu     sync.Mutex
	topics []string
	last   any
}

func (r *recordingSink) Emit(_ context.Context, topic, _, _ string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.last = payload
	return nil
}

type fixture struct {
	svc   *Service
	store *MemStore
	sink  *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: NewMemStore(), sink: &recordingSink{}}
	f.svc = NewService(f.store, f.sink, nil)
	f.svc.Now = func() time.Time { return t0 }
	return f
}

func (f *fixture) product(t *testing.T, id, seller, title string, price int64, stock int) {
	t.Helper()
	p := &Product{ID: id, SellerID: seller, Title: title, Unit: "kg", PriceCents: price, Stock: stock, Active: true, CreatedAt: t0}
	require.NoError(t, f.store.InTx(context.Background(), func(tx Tx) error {
		if err := tx.InsertProduct(context.Background(), p); err != nil {
			return err
		}
		return tx.SetInventoryQuantity(context.Background(), seller, id, stock)
	}))
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := f.svc.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) reserved(t *testing.T, owner, id string) int {
	t.Helper()
	recs, err := f.svc.ListInventory(context.Background(), owner)
	require.NoError(t, err)
	for _, r := range recs {
		if r.ProductID == id {
			return r.Reserved
		}
	}
	return 0
}

func (f *fixture) add(t *testing.T, who actor.Actor, productID string, qty int) {
	t.Helper()
	_, err := f.svc.AddToCart(context.Background(), who.ID, productID, qty)
	require.NoError(t, err)
}

func (f *fixture) checkout(t *testing.T, who actor.Actor) *Order {
	t.Helper()
	res, err := f.svc.CreateOrderFromCart(context.Background(), who, CheckoutInput{ShippingAddress: "Jl. Sawah 1"})
	require.NoError(t, err)
	return res.Order
}

func TestCreateOrderFromCartReservesStock(t *testing.T) {
	f := newFixture(t)
	f.product(t, "p1", "seller-a", "Tomat", 250, 10)
	f.add(t, buyer, "p1", 4)

	res, err := f.svc.CreateOrderFromCart(context.Background(), buyer, CheckoutInput{ShippingAddress: "Jl. Sawah 1"})
	require.NoError(t, err)
	o := res.Order

	assert.Equal(t, 6, f.stock(t, "p1"))
	assert.Equal(t, 4, f.reserved(t, "seller-a", "p1"))

	assert.Equal(t, "seller-a", o.SellerID)
	assert.Equal(t, int64(1000), o.SubtotalCents)
	assert.Equal(t, int64(50), o.TaxCents)
	assert.Equal(t, int64(0), o.ShippingCents)
	assert.Equal(t, int64(1050), o.TotalCents)
	assert.Equal(t, StatusCreated, o.Status)
	assert.Equal(t, PaymentPending, o.Payment.Status)
	require.Len(t, o.Items, 1)
	assert.Equal(t, LineItem{RefType: RefProduct, RefID: "p1", Title: "Tomat", UnitPriceCents: 250, Qty: 4, Unit: "kg"}, o.Items[0])
	assert.Empty(t, res.Remaining)

	cart, err := f.svc.GetCart(context.Background(), buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	got, err := f.svc.GetOrder(context.Background(), buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.TotalCents, got.TotalCents)

	assert.Equal(t, []string{events.TopicOrderCreated}, f.sink.topics)
	p := f.sink.last.(events.OrderCreatedPayload)
	assert.Equal(t, o.ID, p.OrderID)
	assert.Equal(t, int64(1050), p.TotalCents)
}

func TestCreateOrderFromCartIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.product(t, "p1", "seller-a", "Tomat", 250, 10)
	f.product(t, "p2", "seller-a", "Cabai", 900, 1)
	f.add(t, buyer, "p1", 3)
	f.add(t, buyer, "p2", 2)

	_, err := f.svc.CreateOrderFromCart(context.Background(), buyer, CheckoutInput{ShippingAddress: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Equal(t, "Insufficient stock for Cabai", err.Error())
	var se *InsufficientStockError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "p2", se.ProductID)
	assert.Equal(t, 2, se.Required)
	assert.Equal(t, 1, se.Available)

	assert.Equal(t, 10, f.stock(t, "p1"))
	assert.Equal(t, 1, f.stock(t, "p2"))
	assert.Equal(t, 0, f.reserved(t, "seller-a", "p1"))

	cart, err := f.svc.GetCart(context.Background(), buyer.ID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
	assert.Empty(t, f.sink.topics)
}

func TestCreateOrderFromEmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOrderFromCart(context.Background(), buyer, CheckoutInput{ShippingAddress: "x"})
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.CreateOrderFromCart(context.Background(), actor.Actor{}, CheckoutInput{ShippingAddress: "x"})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestCheckoutSettlesOneSellerAndReportsTheRest(t *testing.T) {
	f := newFixture(t)
	f.product(t, "a1", "seller-a", "Tomat", 100, 10)
	f.product(t, "b1", "seller-b", "Jagung", 200, 10)
	f.product(t, "a2", "seller-a", "Bawang", 300, 10)
	f.add(t, buyer, "a1", 1)
	f.add(t, buyer, "b1", 1)
	f.add(t, buyer, "a2", 1)

	res, err := f.svc.CreateOrderFromCart(context.Background(), buyer, CheckoutInput{ShippingAddress: "x"})
	require.NoError(t, err)
	assert.Equal(t, "seller-a", res.Order.SellerID)
	assert.Len(t, res.Order.Items, 2)
	require.Len(t, res.Remaining, 1)
	assert.Equal(t, "seller-b", res.Remaining[0].SellerID)
	assert.Equal(t, 10, f.stock(t, "b1"))

	cart, _ := f.svc.GetCart(context.Background(), buyer.ID)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "b1", cart.Items[0].ProductID)

	_, err = f.svc.CreateOrderFromCart(context.Background(), buyer, CheckoutInput{ShippingAddress: "x", SellerID: "seller-z"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	res, err = f.svc.CreateOrderFromCart(context.Background(), buyer, CheckoutInput{ShippingAddress: "x", SellerID: "seller-b"})
	require.NoError(t, err)
	assert.Equal(t, "seller-b", res.Order.SellerID)
	assert.Empty(t, res.Remaining)
}

func TestConcurrentReservationsOfOneProduct(t *testing.T) {
	for round := 0; round < 20; round++ {
		f := newFixture(t)
		f.product(t, "p1", "seller-a", "Tomat", 100, 5)
		b1 := actor.Actor{ID: "b1"}
		b2 := actor.Actor{ID: "b2"}
		f.add(t, b1, "p1", 3)
		f.add(t, b2, "p1", 3)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		start := make(chan struct{})
		for i, who := range []actor.Actor{b1, b2} {
			wg.Add(1)
			go func(i int, who actor.Actor) {
				defer wg.Done()
				<-start
				_, errs[i] = f.svc.CreateOrderFromCart(context.Background(), who, CheckoutInput{ShippingAddress: "x"})
			}(i, who)
		}
		close(start)
		wg.Wait()

		ok, short := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperr.ErrInsufficientStock):
				short++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, short)
		assert.Equal(t, 2, f.stock(t, "p1"))
		assert.Equal(t, 3, f.reserved(t, "seller-a", "p1"))
	}
}

func TestStockNeverNegativeUnderContention(t *testing.T) {
	f := newFixture(t)
	f.product(t, "p1", "seller-a", "Tomat", 100, 10)

	const buyers = 25
	for i := 0; i < buyers; i++ {
		f.add(t, actor.Actor{ID: fmt.Sprintf("b%d", i)}, "p1", 1+i%3)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	sold := 0
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.CreateOrderFromCart(context.Background(), actor.Actor{ID: fmt.Sprintf("b%d", i)}, CheckoutInput{ShippingAddress: "x"})
			if err != nil {
				assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
				return
			}
			mu.Lock()
			sold += res.Order.Items[0].Qty
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	left := f.stock(t, "p1")
	assert.GreaterOrEqual(t, left, 0)
	assert.Equal(t, 10, left+sold)
	assert.Equal(t, sold, f.reserved(t, "seller-a", "p1"))
}

func TestCancelOrderRestoresStockOnce(t *testing.T) {
	f := newFixture(t)
	f.product(t, "p1", "seller-a", "Tomat", 250, 10)
	f.product(t, "p2", "seller-a", "Cabai", 900, 5)
	f.add(t, buyer, "p1", 4)
	f.add(t, buyer, "p2", 5)
	o := f.checkout(t, buyer)
	require.Equal(t, 6, f.stock(t, "p1"))
	require.Equal(t, 0, f.stock(t, "p2"))

	got, err := f.svc.CancelOrder(context.Background(), buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, PaymentFailed, got.Payment.Status)
	assert.Equal(t, 10, f.stock(t, "p1"))
	assert.Equal(t, 5, f.stock(t, "p2"))
	assert.Equal(t, 0, f.reserved(t, "seller-a", "p1"))
	assert.Equal(t, 0, f.reserved(t, "seller-a", "p2"))

	_, err = f.svc.CancelOrder(context.Background(), buyer, o.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Equal(t, 10, f.stock(t, "p1"))
	assert.Equal(t, 5, f.stock(t, "p2"))

	assert.Equal(t, []string{events.TopicOrderCreated, events.TopicOrderCancelled}, f.sink.topics)
	p := f.sink.last.(events.OrderCancelledPayload)
	assert.Len(t, p.Restored, 2)
}

func TestCancelOrderAuthorization(t *testing.T) {
	f := newFixture(t)
	f.product(t, "p1", "seller-a", "Tomat", 250, 10)
	f.add(t, buyer, "p1", 1)
	o := f.checkout(t, buyer)

	_, err := f.svc.CancelOrder(context.Background(), actor.Actor{ID: "stranger"}, o.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.CancelOrder(context.Background(), farmer, o.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.Equal(t, 9, f.stock(t, "p1"))

	_, err = f.svc.CancelOrder(context.Background(), admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, f.stock(t, "p1"))

	_, err = f.svc.CancelOrder(context.Background(), admin, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCancelAfterShipmentFails(t *testing.T) {
	f := newFixture(t)
	f.product(t, "p1", "seller-a", "Tomat", 250, 10)
	f.add(t, buyer, "p1", 2)
	o := f.checkout(t, buyer)

	_, err := f.svc.AdvanceStatus(context.Background(), farmer, o.ID, StatusConfirmed, "")
	require.NoError(t, err)
	_, err = f.svc.AdvanceStatus(context.Background(), farmer, o.ID, StatusShipped, "resi JNE123")
	require.NoError(t, err)

	_, err = f.svc.CancelOrder(context.Background(), buyer, o.ID)
	assert.ErrorIs(t, err, ErrCannotCancel)
	assert.Equal(t, 8, f.stock(t, "p1"))
}

func TestAdvanceStatus(t *testing.T) {
	f := newFixture(t)
	f.product(t, "p1", "seller-a", "Tomat", 250, 10)
	f.add(t, buyer, "p1", 2)
	o := f.checkout(t, buyer)

	_, err := f.svc.AdvanceStatus(context.Background(), buyer, o.ID, StatusConfirmed, "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.AdvanceStatus(context.Background(), farmer, o.ID, StatusDelivered, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = f.svc.AdvanceStatus(context.Background(), farmer, o.ID, "LOST", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.AdvanceStatus(context.Background(), farmer, o.ID, StatusCancelled, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	for _, to := range []Status{StatusConfirmed, StatusPacked, StatusShipped, StatusDelivered} {
		_, err = f.svc.AdvanceStatus(context.Background(), admin, o.ID, to, "step "+string(to))
		require.NoError(t, err, to)
	}

	got, err := f.svc.GetOrder(context.Background(), farmer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, got.Status)
	require.Len(t, got.Tracking, 5)
	assert.Equal(t, StatusCreated, got.Tracking[0].Status)
	assert.Equal(t, "step SHIPPED", got.Tracking[3].Note)

	v, err := f.svc.OrderStatus(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, v.Status)
}

func TestGetOrderAuthorization(t *testing.T) {
	f := newFixture(t)
	f.product(t, "p1", "seller-a", "Tomat", 250, 10)
	f.add(t, buyer, "p1", 1)
	o := f.checkout(t, buyer)

	for _, who := range []actor.Actor{buyer, farmer, admin} {
		_, err := f.svc.GetOrder(context.Background(), who, o.ID)
		assert.NoError(t, err, who.ID)
	}
	_, err := f.svc.GetOrder(context.Background(), actor.Actor{ID: "nosy"}, o.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.GetOrder(context.Background(), buyer, "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestStatusTable(t *testing.T) {
	assert.True(t, StatusCreated.Cancellable())
	assert.True(t, StatusConfirmed.Cancellable())
	for _, s := range []Status{StatusPacked, StatusShipped, StatusDelivered, StatusCancelled} {
		assert.False(t, s.Cancellable(), s)
	}
	assert.True(t, CanTransition(StatusConfirmed, StatusShipped))
	assert.False(t, CanTransition(StatusDelivered, StatusShipped))
	assert.False(t, Status("NOPE").Valid())
}

func TestReserveTimeoutBoundsRowLockWait(t *testing.T) {
	f := newFixture(t)
	f.svc.ReserveTimeout = 20 * time.Millisecond
	f.product(t, "p1", "seller-a", "Tomat", 250, 10)
	f.add(t, buyer, "p1", 1)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.store.InTx(context.Background(), func(tx Tx) error {
			_, err := tx.LockProducts(context.Background(), []string{"p1"})
			close(held)
			<-release
			return err
		})
	}()
	<-held

	_, err := f.svc.CreateOrderFromCart(context.Background(), buyer, CheckoutInput{ShippingAddress: "Jl. Sawah 1"})
	close(release)
	require.NoError(t, <-done)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, 10, f.stock(t, "p1"))
	f.checkout(t, buyer)
	assert.Equal(t, 9, f.stock(t, "p1"))
}

func TestCheckoutResultReportsRemainingGroups(t *testing.T) {
	f := newFixture(t)
	f.product(t, "a1", "seller-a", "Tomat", 100, 10)
	f.product(t, "b1", "seller-b", "Jagung", 200, 10)
	f.add(t, buyer, "a1", 1)
	f.add(t, buyer, "b1", 1)

	first, err := f.svc.CreateOrderFromCart(context.Background(), buyer, CheckoutInput{ShippingAddress: "x"})
	require.NoError(t, err)

	res, err := f.svc.CheckoutResult(context.Background(), buyer, first.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Order.ID, res.Order.ID)
	assert.Equal(t, first.Remaining, res.Remaining)

	_, err = f.svc.CheckoutResult(context.Background(), farmer, first.Order.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.CheckoutResult(context.Background(), buyer, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.CreateOrderFromCart(context.Background(), buyer, CheckoutInput{ShippingAddress: "x"})
	require.NoError(t, err)
	res, err = f.svc.CheckoutResult(context.Background(), buyer, first.Order.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Remaining)
	assert.Empty(t, res.Remaining)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"remaining_seller_groups":[]`)
}
