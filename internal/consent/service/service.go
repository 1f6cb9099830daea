// Package service orchestrates consent validation and consent string
// generation and decoding. Handlers stay thin; the codec and validator stay
// pure.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"tcfgate/internal/consent/metrics"
	"tcfgate/internal/consent/models"
	"tcfgate/internal/consent/validator"
	"tcfgate/internal/consentstring"
	"tcfgate/internal/vendorlist"
	dErrors "tcfgate/pkg/domain-errors"
	"tcfgate/pkg/requestcontext"
)

// VendorSource supplies the registry snapshot to validate against.
type VendorSource interface {
	Get(ctx context.Context) *vendorlist.Snapshot
}

// Config holds the issuer identity and fixed flags stamped into generated
// consent strings.
type Config struct {
	CmpID            int
	CmpVersion       int
	ConsentScreen    int
	ConsentLanguage  string
	PublisherCountry string
	// PolicyVersion is used when the registry snapshot does not name one.
	PolicyVersion int
}

// DefaultConfig matches the issuer defaults of the service.
func DefaultConfig() Config {
	return Config{
		CmpID:            12,
		CmpVersion:       1,
		ConsentScreen:    0,
		ConsentLanguage:  "EN",
		PublisherCountry: "ES",
		PolicyVersion:    2,
	}
}

// Service validates submissions and issues consent strings.
type Service struct {
	vendors VendorSource
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(vendors VendorSource, cfg Config, opts ...Option) *Service {
	s := &Service{
		vendors: vendors,
		cfg:     cfg,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks sub against the current registry snapshot.
func (s *Service) Validate(ctx context.Context, sub models.Submission) models.Outcome {
	return s.validate(ctx, sub, s.vendors.Get(ctx))
}

func (s *Service) validate(ctx context.Context, sub models.Submission, snap *vendorlist.Snapshot) models.Outcome {
	outcome := validator.Validate(sub, snap)
	if outcome.Valid() {
		s.metrics.IncrementValidation("valid")
		return outcome
	}
	for _, code := range outcome.Codes() {
		s.metrics.IncrementValidation(code)
	}
	s.logger.InfoContext(ctx, "consent submission rejected",
		"request_id", requestcontext.RequestID(ctx),
		"domain", sub.Domain,
		"codes", outcome.Codes(),
		"vendor_list_version", versionOf(snap),
	)
	return outcome
}

// Generate validates sub and, when valid, encodes it. Invalid submissions
// return *models.InvalidSubmissionError; encode failures return
// *consentstring.CodecError.
func (s *Service) Generate(ctx context.Context, sub models.Submission) (string, error) {
	snap := s.vendors.Get(ctx)
	if outcome := s.validate(ctx, sub, snap); !outcome.Valid() {
		return "", &models.InvalidSubmissionError{Outcome: outcome}
	}

	rec := s.BuildRecord(sub, snap, requestcontext.Now(ctx))

	start := time.Now()
	token, err := consentstring.Encode(rec)
	if err != nil {
		s.metrics.ObserveCodec("encode", resultOf(err), time.Since(start))
		s.logger.InfoContext(ctx, "consent string encode rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return "", err
	}
	s.metrics.ObserveCodec("encode", "ok", time.Since(start))
	s.metrics.IncrementVendorEncoding("consents", consentstring.VendorSectionCost(rec.VendorConsents).Choice().String())
	s.metrics.IncrementVendorEncoding("legitimate_interests", consentstring.VendorSectionCost(rec.VendorLegitimateInterests).Choice().String())
	return token, nil
}

// BuildRecord maps a validated submission onto a consent record stamped
// with the configured issuer and the registry snapshot it was checked
// against. Both timestamps are now, truncated to deciseconds.
func (s *Service) BuildRecord(sub models.Submission, snap *vendorlist.Snapshot, now time.Time) consentstring.ConsentRecord {
	ts := consentstring.TruncateTimestamp(now)

	policyVersion := s.cfg.PolicyVersion
	if snap != nil && snap.PolicyVersion > 0 {
		policyVersion = snap.PolicyVersion
	}

	return consentstring.ConsentRecord{
		Version:                    consentstring.Version,
		Created:                    ts,
		LastUpdated:                ts,
		CmpID:                      s.cfg.CmpID,
		CmpVersion:                 s.cfg.CmpVersion,
		ConsentScreen:              s.cfg.ConsentScreen,
		ConsentLanguage:            s.cfg.ConsentLanguage,
		VendorListVersion:          versionOf(snap),
		PolicyVersion:              policyVersion,
		IsServiceSpecific:          true,
		UseNonStandardStacks:       false,
		PurposeConsents:            consentstring.NewFixedSet(sub.PurposeConsents...),
		PurposeLegitimateInterests: consentstring.NewFixedSet(sub.PurposeLegitimateInterests...),
		PurposeOneTreatment:        false,
		PublisherCountryCode:       s.cfg.PublisherCountry,
		VendorConsents:             consentstring.NewVendorSet(sub.Vendors...),
		VendorLegitimateInterests:  consentstring.NewVendorSet(sub.VendorLegitimateInterests...),
	}
}

// Decode parses a consent string. It never consults the registry.
func (s *Service) Decode(ctx context.Context, token string) (consentstring.ConsentRecord, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return consentstring.ConsentRecord{}, dErrors.New(dErrors.CodeValidation, "tcString is required")
	}

	start := time.Now()
	rec, err := consentstring.Decode(token)
	if err != nil {
		s.metrics.ObserveCodec("decode", resultOf(err), time.Since(start))
		s.logger.InfoContext(ctx, "consent string decode rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return consentstring.ConsentRecord{}, err
	}
	s.metrics.ObserveCodec("decode", "ok", time.Since(start))
	return rec, nil
}

// VendorList returns the registry snapshot currently served, loading it on
// first use.
func (s *Service) VendorList(ctx context.Context) *vendorlist.Snapshot {
	return s.vendors.Get(ctx)
}

func versionOf(snap *vendorlist.Snapshot) int {
	if snap == nil {
		return 0
	}
	return snap.Version
}

func resultOf(err error) string {
	if kind, ok := consentstring.KindOf(err); ok {
		return string(kind)
	}
	return "error"
}
