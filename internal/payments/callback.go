// Package payments verifies provider webhooks and turns them into order
// payment updates.
package payments

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/ariefcatur/harvest-market/internal/apperr"
	"github.com/ariefcatur/harvest-market/internal/orders"
)

const (
	ProviderDummyPay = "dummypay"
	ProviderStripe   = "stripe"
)

var (
	ErrUnknownProvider = apperr.Validation("unknown payment provider")
	ErrBadSignature    = apperr.Validation("invalid signature")
	ErrUnsupported     = apperr.Validation("unsupported payment event")
)

func malformed(msg string) error { return apperr.Validation("malformed callback: " + msg) }

// Callback is a verified provider notification. The set of implementations
// is closed: DummyPayCallback and StripeCallback.
type Callback interface {
	Provider() string
	Update() orders.PaymentUpdate
	sealed()
}

type DummyPayCallback struct {
	OrderID           string `json:"order_id"`
	ProviderPaymentID string `json:"provider_payment_id"`
	Status            string `json:"status"`
}

func (DummyPayCallback) Provider() string { return ProviderDummyPay }
func (DummyPayCallback) sealed() {}

func (c DummyPayCallback) Update() orders.PaymentUpdate {
	st := orders.PaymentFailed
	if c.Status == "SUCCESS" {
		st = orders.PaymentPaid
	}
	return orders.PaymentUpdate{OrderID: c.OrderID, Status: st, Provider: ProviderDummyPay, ProviderPaymentID: c.ProviderPaymentID}
}

func (c DummyPayCallback) validate() error {
	switch {
	case c.OrderID == "":
		return malformed("order_id is required")
	case c.ProviderPaymentID == "":
		return malformed("provider_payment_id is required")
	case c.Status != "SUCCESS" && c.Status != "FAILED":
		return malformed("status must be SUCCESS or FAILED")
	}
	return nil
}

const (
	stripeSucceeded = "payment_intent.succeeded"
	stripeFailed    = "payment_intent.payment_failed"
)

type StripeCallback struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string `json:"id"`
			Metadata struct {
				OrderID string `json:"order_id"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

func (StripeCallback) Provider() string { return ProviderStripe }
func (StripeCallback) sealed() {}

func (c StripeCallback) Update() orders.PaymentUpdate {
	st := orders.PaymentFailed
	if c.Type == stripeSucceeded {
		st = orders.PaymentPaid
	}
	return orders.PaymentUpdate{
		OrderID:           c.Data.Object.Metadata.OrderID,
		Status:            st,
		Provider:          ProviderStripe,
		ProviderPaymentID: c.Data.Object.ID,
	}
}

func (c StripeCallback) validate() error {
	switch {
	case c.ID == "":
		return malformed("id is required")
	case c.Type != stripeSucceeded && c.Type != stripeFailed:
		return ErrUnsupported
	case c.Data.Object.ID == "":
		return malformed("data.object.id is required")
	case c.Data.Object.Metadata.OrderID == "":
		return malformed("data.object.metadata.order_id is required")
	}
	return nil
}

// Verifier checks the signature of a raw webhook body against the
// provider's shared secret and decodes it into the provider's shape.
type Verifier struct {
	Secrets map[string]string
}

// Sign is the hex HMAC-SHA256 of body, as sent in X-Signature.
func Sign(secret string, body []byte) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}

func (v *Verifier) Parse(provider, signature string, body []byte) (Callback, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	secret, ok := v.Secrets[provider]
	if !ok || secret == "" {
		return nil, ErrUnknownProvider
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return nil, ErrBadSignature
	}
	want, _ := hex.DecodeString(Sign(secret, body))
	if !hmac.Equal(got, want) {
		return nil, ErrBadSignature
	}

	switch provider {
	case ProviderDummyPay:
		var c DummyPayCallback
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&c); err != nil {
			return nil, malformed(err.Error())
		}
		if err := c.validate(); err != nil {
			return nil, err
		}
		return c, nil
	case ProviderStripe:
		var c StripeCallback
		if err := json.Unmarshal(body, &c); err != nil {
			return nil, malformed(err.Error())
		}
		if err := c.validate(); err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, ErrUnknownProvider
}
