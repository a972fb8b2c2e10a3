// Package httptransport is the thin HTTP layer over the governance services.
// Handlers delegate to the domain packages without embedding business logic
// so transport concerns stay isolated.
package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	pkgerrors "govern/pkg/errors"
)

// NewRouter wires the public endpoints. Mutating admin routes (spend
// recording, approvals) sit behind bearer-token auth; the evaluation and
// read-only query surface does not, matching the trust model of an internal
// sidecar service.
func NewRouter(h *Handler, auth func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/decisions/evaluate", h.handleEvaluate)
		r.Post("/guards/spending/check", h.handleSpendingCheck)

		r.Get("/receipts", h.handleListReceipts)
		r.Get("/receipts/{receiptID}", h.handleGetReceipt)
		r.Get("/audit/export", h.handleAuditExport)

		r.Group(func(r chi.Router) {
			if auth != nil {
				r.Use(auth)
			}
			r.Post("/guards/spending/record", h.handleSpendingRecord)
			r.Post("/approvals", h.handleGrantApproval)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError centralizes domain error translation to HTTP responses so all
// handlers share one JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	code := pkgerrors.CodeOf(err)
	writeJSON(w, pkgerrors.ToHTTPStatus(code), map[string]string{
		"error": string(code),
	})
}
