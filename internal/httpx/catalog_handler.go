package httpx

import (
	"net/http"

	"github.com/ariefcatur/harvest-market/internal/orders"
	"github.com/go-chi/chi/v5"
)

func (a *API) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := a.Orders.ListProducts(r.Context(), r.URL.Query().Get("seller_id"))
	if err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (a *API) createProduct(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var in orders.ProductInput
	if err := decode(r, &in); err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	p, err := a.Orders.CreateProduct(r.Context(), who, in)
	if err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type inventoryReq struct {
	Quantity int `json:"quantity"`
}

func (a *API) setInventory(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req inventoryReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	p, err := a.Orders.SetInventory(r.Context(), who, chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) listInventory(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	recs, err := a.Orders.ListInventory(r.Context(), who.ID)
	if err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

type cartItemReq struct {
	ProductID string `json:"product_id"`
	Qty       *int   `json:"qty"`
}

func (a *API) getCart(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	c, err := a.Orders.GetCart(r.Context(), who.ID)
	if err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) addCartItem(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req cartItemReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	qty := 1
	if req.Qty != nil {
		qty = *req.Qty
	}
	c, err := a.Orders.AddToCart(r.Context(), who.ID, req.ProductID, qty)
	if err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) updateCartItem(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req cartItemReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	qty := 0
	if req.Qty != nil {
		qty = *req.Qty
	}
	c, err := a.Orders.UpdateCartItem(r.Context(), who.ID, req.ProductID, qty)
	if err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) removeCartItem(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	c, err := a.Orders.RemoveFromCart(r.Context(), who.ID, chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
