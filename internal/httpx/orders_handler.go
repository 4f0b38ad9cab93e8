package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ariefcatur/harvest-market/internal/actor"
	"github.com/ariefcatur/harvest-market/internal/orders"
	"github.com/ariefcatur/harvest-market/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const idemPending = "pending"

type createOrderResp struct {
	*orders.Result
	Idempotent bool `json:"idempotent"`
}

// createOrder settles one seller group. With an Idempotency-Key and Redis the
// key is claimed before checkout; a retry returns the first order.
func (a *API) createOrder(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var in orders.CheckoutInput
	if err := decode(r, &in); err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	ctx := r.Context()

	idemKey := ""
	if k := strings.TrimSpace(r.Header.Get(HeaderIdempotency)); k != "" && a.Redis != nil {
		idemKey = fmt.Sprintf(redisx.KeyIdemOrderCreate, who.ID, k)
		claimed, err := redisx.Claim(ctx, a.Redis, idemKey, idemPending, redisx.TTLIdempotency)
		if err != nil {
			// redis mati: lanjut tanpa idempotency
			a.log().Warn("idempotency claim failed", zap.Error(err))
			idemKey = ""
		} else if !claimed {
			a.replayOrder(w, r, who, idemKey)
			return
		}
	}

	res, err := a.Orders.CreateOrderFromCart(ctx, who, in)
	if err != nil {
		if idemKey != "" {
			_ = a.Redis.Del(context.WithoutCancel(ctx), idemKey).Err()
		}
		writeError(w, a.log(), r, err)
		return
	}
	if idemKey != "" {
		_ = a.Redis.Set(ctx, idemKey, res.Order.ID, redisx.TTLIdempotency).Err()
	}
	a.invalidateStatus(ctx, res.Order.ID)
	writeJSON(w, http.StatusCreated, createOrderResp{Result: res})
}

func (a *API) replayOrder(w http.ResponseWriter, r *http.Request, who actor.Actor, idemKey string) {
	ctx := r.Context()
	orderID, found, err := redisx.Lookup(ctx, a.Redis, idemKey)
	if err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	if !found || orderID == idemPending {
		writeMessage(w, http.StatusConflict, "request with this idempotency key is in progress")
		return
	}
	res, err := a.Orders.CheckoutResult(ctx, who, orderID)
	if err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, createOrderResp{Result: res, Idempotent: true})
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	o, err := a.Orders.GetOrder(r.Context(), who, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getOrderStatus serves the status projection, cached in Redis for a few
// minutes and dropped on every order mutation.
func (a *API) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	key := fmt.Sprintf(redisx.KeyOrderStatus, id)

	if a.Redis != nil {
		if v, found, err := redisx.Lookup(ctx, a.Redis, key); err == nil && found {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(v))
			return
		}
	}

	v, err := a.Orders.OrderStatus(ctx, id)
	if err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	if a.Redis != nil {
		if b, err := json.Marshal(v); err == nil {
			_ = a.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
		}
	}
	writeJSON(w, http.StatusOK, v)
}

type cancelResp struct {
	Message string        `json:"message"`
	Order   *orders.Order `json:"order"`
}

func (a *API) cancelOrder(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	o, err := a.Orders.CancelOrder(r.Context(), who, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	a.invalidateStatus(r.Context(), o.ID)
	writeJSON(w, http.StatusOK, cancelResp{Message: "Cancelled", Order: o})
}

type advanceReq struct {
	Status orders.Status `json:"status"`
	Note   string        `json:"note"`
}

func (a *API) advanceOrder(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req advanceReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	o, err := a.Orders.AdvanceStatus(r.Context(), who, chi.URLParam(r, "id"), req.Status, req.Note)
	if err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	a.invalidateStatus(r.Context(), o.ID)
	writeJSON(w, http.StatusOK, o)
}

func (a *API) invalidateStatus(ctx context.Context, orderID string) {
	if a.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if err := a.Redis.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
		a.log().Warn("status cache invalidate failed", zap.String("order_id", orderID), zap.Error(err))
	}
}
