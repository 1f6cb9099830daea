package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tcfgate/internal/consent/models"
	"tcfgate/internal/consentstring"
	"tcfgate/internal/platform/metrics"
	"tcfgate/internal/platform/middleware"
	"tcfgate/internal/vendorlist"
	dErrors "tcfgate/pkg/domain-errors"
	"tcfgate/pkg/platform/httputil"
)

// codeValidationFailed discriminates rejected submissions on the wire.
const codeValidationFailed = "validation_failed"

// Service defines the consent operations the handler needs.
type Service interface {
	Validate(ctx context.Context, sub models.Submission) models.Outcome
	Generate(ctx context.Context, sub models.Submission) (string, error)
	Decode(ctx context.Context, token string) (consentstring.ConsentRecord, error)
	VendorList(ctx context.Context) *vendorlist.Snapshot
}

// Handler serves the consent string endpoints.
type Handler struct {
	logger  *slog.Logger
	consent Service
	metrics *metrics.Metrics
	timeout time.Duration
}

// New creates a consent Handler. A zero timeout means 30s.
func New(consent Service, logger *slog.Logger, metrics *metrics.Metrics, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{
		logger:  logger,
		consent: consent,
		metrics: metrics,
		timeout: timeout,
	}
}

// Register registers the consent routes under /api/tcf.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(h.timeout))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.LatencyMiddleware(h.metrics))
		r.Post("/api/tcf/validate", h.handleValidate)
		r.Post("/api/tcf/generate", h.handleGenerate)
		r.Post("/api/tcf/decode", h.handleDecode)
		r.Get("/api/tcf/vendor-list", h.handleVendorList)
	})
}

// handleValidate reports every defect in a submission. Both outcomes are 200.
func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	sub, ok := httputil.DecodeAndPrepare[models.Submission](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	outcome := h.consent.Validate(ctx, *sub)
	if outcome.Valid() {
		httputil.WriteJSON(w, http.StatusOK, models.ValidateResponse{Success: true, IsValid: true})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ValidateResponse{
		Success: false,
		IsValid: false,
		Code:    codeValidationFailed,
		Errors:  outcome.Errors,
	})
}

// handleGenerate validates a submission and returns its consent string.
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	sub, ok := httputil.DecodeAndPrepare[models.Submission](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	token, err := h.consent.Generate(ctx, *sub)
	if err != nil {
		h.writeFailure(w, requestID, "Error creating TC string", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.GenerateResponse{Success: true, TCString: token})
}

// handleDecode parses a consent string back into its record.
func (h *Handler) handleDecode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.DecodeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, err := h.consent.Decode(ctx, req.TCString)
	if err != nil {
		h.writeFailure(w, requestID, "Error decoding TC string", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, decodeResponse{Success: true, Data: rec})
}

// handleVendorList returns the registry snapshot, or the empty shape when
// none has loaded.
func (h *Handler) handleVendorList(w http.ResponseWriter, r *http.Request) {
	snap := h.consent.VendorList(r.Context())
	if snap == nil {
		snap = vendorlist.Empty()
	}
	httputil.WriteJSON(w, http.StatusOK, vendorListResponse{Success: true, Data: toVendorListData(snap)})
}

// writeFailure maps service errors to responses. Rejected submissions and
// codec errors are domain outcomes carried in the success:false envelope;
// anything else is a transport fault.
func (h *Handler) writeFailure(w http.ResponseWriter, requestID, prefix string, err error) {
	var invalid *models.InvalidSubmissionError
	if errors.As(err, &invalid) {
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, models.FailureResponse{
			Success: false,
			Code:    codeValidationFailed,
			Error:   invalid.Outcome.Errors[0].Message,
			Errors:  invalid.Outcome.Errors,
		})
		return
	}

	var codecErr *consentstring.CodecError
	if errors.As(err, &codecErr) {
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, models.FailureResponse{
			Success: false,
			Code:    string(codecErr.Kind),
			Error:   prefix + ": " + codecErr.Error(),
		})
		return
	}

	var de *dErrors.Error
	if !errors.As(err, &de) {
		h.logger.Error("unexpected consent service error",
			"request_id", requestID,
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}

type decodeResponse struct {
	Success bool                        `json:"success"`
	Data    consentstring.ConsentRecord `json:"data"`
}

type vendorListData struct {
	Vendors           map[int]vendorlist.Vendor  `json:"vendors"`
	Purposes          map[int]vendorlist.Purpose `json:"purposes"`
	Features          map[int]vendorlist.Purpose `json:"features"`
	VendorListVersion int                        `json:"vendorListVersion,omitempty"`
	TCFPolicyVersion  int                        `json:"tcfPolicyVersion,omitempty"`
	LastUpdated       *time.Time                 `json:"lastUpdated,omitempty"`
}

type vendorListResponse struct {
	Success bool           `json:"success"`
	Data    vendorListData `json:"data"`
}

func toVendorListData(s *vendorlist.Snapshot) vendorListData {
	data := vendorListData{
		Vendors:           s.Vendors,
		Purposes:          s.Purposes,
		Features:          s.Features,
		VendorListVersion: s.Version,
		TCFPolicyVersion:  s.PolicyVersion,
	}
	if !s.LastUpdated.IsZero() {
		lu := s.LastUpdated
		data.LastUpdated = &lu
	}
	return data
}
