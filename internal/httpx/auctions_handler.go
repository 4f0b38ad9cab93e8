package httpx

import (
	"net/http"

	"github.com/ariefcatur/harvest-market/internal/auctions"
	"github.com/go-chi/chi/v5"
)

func (a *API) listAuctions(w http.ResponseWriter, r *http.Request) {
	list, err := a.Auctions.List(r.Context(), auctions.Status(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) getAuction(w http.ResponseWriter, r *http.Request) {
	au, err := a.Auctions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, au)
}

func (a *API) createAuction(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var in auctions.CreateInput
	if err := decode(r, &in); err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	au, err := a.Auctions.Create(r.Context(), who, in)
	if err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	writeJSON(w, http.StatusCreated, au)
}

type bidReq struct {
	Amount int64 `json:"amount"`
}

type bidResp struct {
	Message string       `json:"message"`
	Bid     auctions.Bid `json:"bid"`
}

func (a *API) placeBid(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req bidReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	b, err := a.Auctions.PlaceBid(r.Context(), auctions.PlaceBidCmd{
		AuctionID: chi.URLParam(r, "id"),
		BidderID:  who.ID,
		Amount:    req.Amount,
	})
	if err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, bidResp{Message: "Bid placed", Bid: b})
}

func (a *API) closeAuction(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	au, err := a.Auctions.Close(r.Context(), who, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, au)
}
