package httpx

import (
	"io"
	"net/http"

	"github.com/ariefcatur/harvest-market/internal/apperr"
)

const maxWebhookBody = 1 << 20

type webhookResp struct {
	OK      bool `json:"ok"`
	Changed bool `json:"changed"`
}

// paymentWebhook takes provider callbacks. The body is read raw so the
// signature is checked over the exact bytes sent.
func (a *API) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, a.log(), r, apperr.Validation("unreadable body"))
		return
	}
	o, changed, err := a.Payments.HandleWebhook(r.Context(), r.Header.Get("X-Provider"), r.Header.Get("X-Signature"), body)
	if err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	if changed {
		a.invalidateStatus(r.Context(), o.ID)
	}
	writeJSON(w, http.StatusOK, webhookResp{OK: true, Changed: changed})
}

type intentReq struct {
	OrderID string `json:"order_id"`
}

func (a *API) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req intentReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	in, created, err := a.Payments.CreateIntent(r.Context(), who, req.OrderID)
	if err != nil {
		writeError(w, a.log(), r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		a.invalidateStatus(r.Context(), in.OrderID)
	}
	writeJSON(w, status, in)
}
