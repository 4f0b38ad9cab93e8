package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ariefcatur/harvest-market/internal/actor"
	"github.com/ariefcatur/harvest-market/internal/auctions"
	"github.com/ariefcatur/harvest-market/internal/events"
	"github.com/ariefcatur/harvest-market/internal/orders"
	"github.com/ariefcatur/harvest-market/internal/payments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dummySecret = "s3cret"

type testServer struct {
	srv *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ord := orders.NewService(orders.NewMemStore(), events.Nop{}, nil)
	api := &API{
		Auctions: &auctions.Service{Store: auctions.NewMemStore()},
		Orders:   ord,
		Payments: &payments.Service{
			Verifier: &payments.Verifier{Secrets: map[string]string{payments.ProviderDummyPay: dummySecret}},
			Orders:   ord,
		},
	}
	r := NewRouter()
	api.Register(r)
	ts := &testServer{srv: httptest.NewServer(r)}
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, who actor.Actor, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	if who.ID != "" {
		req.Header.Set(HeaderUserID, who.ID)
		req.Header.Set(HeaderUserRole, who.Role)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

var (
	farmer = actor.Actor{ID: "farmer-1", Role: actor.RoleFarmer}
	buyer  = actor.Actor{ID: "buyer-1", Role: actor.RoleBuyer}
	nobody = actor.Actor{}
)

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	res, err := http.Get(ts.srv.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestCheckoutFlow(t *testing.T) {
	ts := newTestServer(t)

	var p orders.Product
	code := ts.do(t, http.MethodPost, "/products", farmer, orders.ProductInput{Title: "Shallots", PriceCents: 1000, Stock: 5}, &p)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "kg", p.Unit)

	var cart orders.Cart
	code = ts.do(t, http.MethodPost, "/cart/items", buyer, map[string]any{"product_id": p.ID, "qty": 2}, &cart)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Qty)

	var res createOrderResp
	code = ts.do(t, http.MethodPost, "/orders", buyer, orders.CheckoutInput{ShippingAddress: "Jl. Sawah 1"}, &res)
	require.Equal(t, http.StatusCreated, code)
	require.NotNil(t, res.Result)
	o := res.Order
	assert.Equal(t, int64(2000), o.SubtotalCents)
	assert.Equal(t, int64(100), o.TaxCents)
	assert.Equal(t, int64(2100), o.TotalCents)
	assert.Equal(t, orders.StatusCreated, o.Status)
	assert.Empty(t, res.Remaining)
	assert.False(t, res.Idempotent)

	var ps []orders.Product
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/products?seller_id=farmer-1", nobody, nil, &ps))
	require.Len(t, ps, 1)
	assert.Equal(t, 3, ps[0].Stock)

	var st orders.StatusView
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/orders/"+o.ID+"/status", nobody, nil, &st))
	assert.Equal(t, orders.StatusCreated, st.Status)
	assert.Equal(t, orders.PaymentPending, st.PaymentStatus)

	var got orders.Order
	var msg errorBody
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodGet, "/orders/"+o.ID, actor.Actor{ID: "stranger"}, nil, &msg))
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/orders/"+o.ID, farmer, nil, &got))

	var advanced orders.Order
	code = ts.do(t, http.MethodPatch, "/orders/"+o.ID+"/status", farmer, map[string]string{"status": "CONFIRMED"}, &advanced)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, orders.StatusConfirmed, advanced.Status)

	var cancelled cancelResp
	code = ts.do(t, http.MethodPatch, "/orders/"+o.ID+"/cancel", buyer, nil, &cancelled)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Cancelled", cancelled.Message)
	assert.Equal(t, orders.StatusCancelled, cancelled.Order.Status)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/products", nobody, nil, &ps))
	assert.Equal(t, 5, ps[0].Stock)

	code = ts.do(t, http.MethodPatch, "/orders/"+o.ID+"/cancel", buyer, nil, &msg)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Cannot cancel", msg.Message)
}

func TestCheckoutErrors(t *testing.T) {
	ts := newTestServer(t)
	var msg errorBody

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodPost, "/orders", nobody, orders.CheckoutInput{ShippingAddress: "x"}, &msg))

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/orders", buyer, orders.CheckoutInput{ShippingAddress: "x"}, &msg))
	assert.Equal(t, "Cart empty", msg.Message)

	var p orders.Product
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/products", farmer, orders.ProductInput{Title: "Chili", PriceCents: 500, Stock: 1}, &p))
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/cart/items", buyer, map[string]any{"product_id": p.ID, "qty": 3}, nil))

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/orders", buyer, orders.CheckoutInput{ShippingAddress: "x"}, &msg))
	assert.Equal(t, "Insufficient stock for Chili", msg.Message)

	// buyers cannot list products for sale
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPost, "/products", buyer, orders.ProductInput{Title: "x", PriceCents: 1, Stock: 1}, &msg))

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/orders/missing/status", nobody, nil, &msg))
	assert.Equal(t, "Order not found", msg.Message)
}

func TestCartEndpoints(t *testing.T) {
	ts := newTestServer(t)
	var p orders.Product
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/products", farmer, orders.ProductInput{Title: "Rice", PriceCents: 1200, Stock: 10}, &p))

	var cart orders.Cart
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/cart/items", buyer, map[string]any{"product_id": p.ID}, &cart))
	assert.Equal(t, 1, cart.Items[0].Qty)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPatch, "/cart/items", buyer, map[string]any{"product_id": p.ID, "qty": 4}, &cart))
	assert.Equal(t, 4, cart.Items[0].Qty)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, "/cart/items/"+p.ID, buyer, nil, &cart))
	assert.Empty(t, cart.Items)

	var msg errorBody
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPatch, "/cart/items", buyer, map[string]any{"product_id": p.ID, "qty": 1}, &msg))
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/cart", nobody, nil, &msg))
}

func TestInventoryEndpoints(t *testing.T) {
	ts := newTestServer(t)
	var p orders.Product
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/products", farmer, orders.ProductInput{Title: "Corn", PriceCents: 300, Stock: 2}, &p))

	var updated orders.Product
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/products/"+p.ID+"/inventory", farmer, map[string]int{"quantity": 9}, &updated))
	assert.Equal(t, 9, updated.Stock)

	var msg errorBody
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPut, "/products/"+p.ID+"/inventory", buyer, map[string]int{"quantity": 1}, &msg))

	var recs []orders.InventoryRecord
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/inventory", farmer, nil, &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, 9, recs[0].Quantity)
}

func TestAuctionEndpoints(t *testing.T) {
	ts := newTestServer(t)
	now := time.Now().UTC()

	var au auctions.Auction
	code := ts.do(t, http.MethodPost, "/auctions", farmer, auctions.CreateInput{
		CropID: "crop-1", StartPrice: 100, MinIncrement: 10,
		StartAt: now.Add(time.Minute), EndAt: now.Add(time.Hour),
	}, &au)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, auctions.StatusScheduled, au.Status)

	var msg errorBody
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodPost, "/auctions/"+au.ID+"/bid", nobody, map[string]int64{"amount": 200}, &msg))
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/auctions/"+au.ID+"/bid", buyer, map[string]int64{"amount": 200}, &msg))
	assert.Equal(t, "Auction not open", msg.Message)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/auctions/nope", nobody, nil, &msg))
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPost, "/auctions/"+au.ID+"/close", buyer, nil, &msg))

	var list []auctions.Auction
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/auctions?status=SCHEDULED", nobody, nil, &list))
	assert.Len(t, list, 1)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/auctions?status=BOGUS", nobody, nil, &msg))
}

func TestPaymentWebhook(t *testing.T) {
	ts := newTestServer(t)
	var p orders.Product
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/products", farmer, orders.ProductInput{Title: "Garlic", PriceCents: 800, Stock: 3}, &p))
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/cart/items", buyer, map[string]any{"product_id": p.ID}, nil))
	var res createOrderResp
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/orders", buyer, orders.CheckoutInput{ShippingAddress: "x"}, &res))

	body, err := json.Marshal(payments.DummyPayCallback{OrderID: res.Order.ID, ProviderPaymentID: "pay-1", Status: "SUCCESS"})
	require.NoError(t, err)

	post := func(sig string) (int, webhookResp) {
		req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/payments/webhook", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("X-Provider", payments.ProviderDummyPay)
		req.Header.Set("X-Signature", sig)
		r, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer r.Body.Close()
		var out webhookResp
		_ = json.NewDecoder(r.Body).Decode(&out)
		return r.StatusCode, out
	}

	code, _ := post("deadbeef")
	assert.Equal(t, http.StatusBadRequest, code)

	sig := payments.Sign(dummySecret, body)
	code, out := post(sig)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, webhookResp{OK: true, Changed: true}, out)

	code, out = post(sig)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, webhookResp{OK: true, Changed: false}, out)

	var st orders.StatusView
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/orders/"+res.Order.ID+"/status", nobody, nil, &st))
	assert.Equal(t, orders.PaymentPaid, st.PaymentStatus)
}

func TestPaymentIntentEndpoint(t *testing.T) {
	ts := newTestServer(t)
	var p orders.Product
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/products", farmer, orders.ProductInput{Title: "Cabai", PriceCents: 1500, Stock: 4}, &p))
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/cart/items", buyer, map[string]any{"product_id": p.ID, "qty": 2}, nil))
	var res createOrderResp
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/orders", buyer, orders.CheckoutInput{ShippingAddress: "x"}, &res))

	req := intentReq{OrderID: res.Order.ID}
	var msg errorBody
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodPost, "/payments/intents", nobody, req, &msg))
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPost, "/payments/intents", farmer, req, &msg))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/payments/intents", buyer, intentReq{OrderID: "nope"}, &msg))

	var in orders.PaymentIntent
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/payments/intents", buyer, req, &in))
	assert.Equal(t, res.Order.TotalCents, in.AmountCents)
	assert.Equal(t, payments.ProviderDummyPay, in.Provider)
	assert.NotEmpty(t, in.ProviderOrderID)

	var again orders.PaymentIntent
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/payments/intents", buyer, req, &again))
	assert.Equal(t, in, again)

	var o orders.Order
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/orders/"+res.Order.ID, buyer, nil, &o))
	assert.Equal(t, in.ProviderOrderID, o.Payment.IntentID)
}
