package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tcfgate/internal/jurisdiction"
	"tcfgate/internal/platform/metrics"
	"tcfgate/internal/platform/middleware"
	"tcfgate/pkg/platform/httputil"
)

// Resolver decides regime applicability.
type Resolver interface {
	Resolve(ctx context.Context, ip, domain string) jurisdiction.Result
}

// Handler serves the gdpr-check endpoint.
type Handler struct {
	logger   *slog.Logger
	resolver Resolver
	metrics  *metrics.Metrics
	timeout  time.Duration
}

func New(resolver Resolver, logger *slog.Logger, metrics *metrics.Metrics, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{logger: logger, resolver: resolver, metrics: metrics, timeout: timeout}
}

// Register registers the jurisdiction routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(h.timeout))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.LatencyMiddleware(h.metrics))
		r.Post("/api/tcf/gdpr-check", h.handleCheck)
	})
}

type checkRequest struct {
	IP     string `json:"ip"`
	Domain string `json:"domain"`
}

func (r *checkRequest) Normalize() {
	r.IP = strings.TrimSpace(r.IP)
	r.Domain = strings.TrimSpace(r.Domain)
}

// handleCheck always answers 200: lookup failures are reported in the
// result, never as an HTTP error.
func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[checkRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res := h.resolver.Resolve(ctx, req.IP, req.Domain)
	h.logger.DebugContext(ctx, "jurisdiction resolved",
		"request_id", requestID,
		"domain", req.Domain,
		"reason", string(res.Reason),
	)
	httputil.WriteJSON(w, http.StatusOK, res)
}
