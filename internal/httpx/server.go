package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/harvest-market/internal/actor"
	"github.com/ariefcatur/harvest-market/internal/apperr"
	kafkax "github.com/ariefcatur/harvest-market/internal/kafka"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const (
	HeaderUserID      = "X-User-Id"
	HeaderUserRole    = "X-User-Role"
	HeaderIdempotency = "Idempotency-Key"
)

func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(Identify)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Identify takes the caller from the gateway headers and tags the request
// context with the request id for emitted events.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := strings.TrimSpace(r.Header.Get(HeaderUserID)); id != "" {
			ctx = actor.With(ctx, actor.Actor{ID: id, Role: strings.TrimSpace(r.Header.Get(HeaderUserRole))})
		}
		if reqID := middleware.GetReqID(ctx); reqID != "" {
			ctx = kafkax.WithTrace(ctx, reqID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Message string `json:"message"`
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Message: msg})
}

func writeError(w http.ResponseWriter, log *zap.Logger, r *http.Request, err error) {
	code := apperr.HTTPStatus(err)
	if code == http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	writeMessage(w, code, apperr.Public(err))
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("invalid json")
	}
	return nil
}

// caller returns the identified actor or writes 401.
func caller(w http.ResponseWriter, r *http.Request) (actor.Actor, bool) {
	a, ok := actor.From(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "login required")
	}
	return a, ok
}

const requestTimeout = 15 * time.Second
