package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"tcfgate/internal/consent/metrics"
	"tcfgate/internal/consent/models"
	"tcfgate/internal/consentstring"
	"tcfgate/internal/vendorlist"
	dErrors "tcfgate/pkg/domain-errors"
	"tcfgate/pkg/requestcontext"
)

type staticVendors struct {
	snap  *vendorlist.Snapshot
	calls int
}

func (v *staticVendors) Get(context.Context) *vendorlist.Snapshot {
	v.calls++
	return v.snap
}

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	vendors *staticVendors
	metrics *metrics.Metrics
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2024, 5, 1, 10, 30, 15, 987654321, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	snap := vendorlist.Empty()
	snap.Version = 57
	snap.PolicyVersion = 4
	for _, id := range []int{8, 21, 755} {
		snap.Vendors[id] = vendorlist.Vendor{ID: id}
	}
	s.vendors = &staticVendors{snap: snap}
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.vendors, DefaultConfig(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
	)
}

func (s *ServiceSuite) validSubmission() models.Submission {
	return models.Submission{
		Domain:                     "example.de",
		PurposeConsents:            []int{1, 3, 10},
		PurposeLegitimateInterests: []int{2},
		Vendors:                    []int{755, 8},
		VendorLegitimateInterests:  []int{21},
	}
}

func (s *ServiceSuite) TestValidate_AggregatesAllDefects() {
	outcome := s.service.Validate(s.ctx, models.Submission{Vendors: []int{999999}})

	s.Equal([]models.ValidationError{
		models.MissingDomain(),
		models.MissingRequiredPurpose(1),
		models.UnknownVendor(999999),
	}, outcome.Errors)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ValidationOutcome.WithLabelValues("unknown_vendor")))
}

func (s *ServiceSuite) TestValidate_Valid() {
	outcome := s.service.Validate(s.ctx, s.validSubmission())

	s.True(outcome.Valid())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ValidationOutcome.WithLabelValues("valid")))
}

func (s *ServiceSuite) TestGenerate_ProducesDecodableToken() {
	token, err := s.service.Generate(s.ctx, s.validSubmission())
	s.Require().NoError(err)
	s.NotContains(token, "=")
	s.Equal(1, s.vendors.calls, "registry read once per generate")

	rec, err := s.service.Decode(s.ctx, token)
	s.Require().NoError(err)

	want := consentstring.TruncateTimestamp(s.now)
	s.Equal(consentstring.Version, rec.Version)
	s.True(want.Equal(rec.Created))
	s.True(want.Equal(rec.LastUpdated))
	s.Equal(12, rec.CmpID)
	s.Equal(1, rec.CmpVersion)
	s.Equal("EN", rec.ConsentLanguage)
	s.Equal("ES", rec.PublisherCountryCode)
	s.Equal(57, rec.VendorListVersion)
	s.Equal(4, rec.PolicyVersion)
	s.True(rec.IsServiceSpecific)
	s.False(rec.UseNonStandardStacks)
	s.False(rec.PurposeOneTreatment)
	s.Equal([]int{1, 3, 10}, rec.PurposeConsents.Positions())
	s.Equal([]int{2}, rec.PurposeLegitimateInterests.Positions())
	s.Equal(consentstring.VendorSet{8, 755}, rec.VendorConsents)
	s.Equal(consentstring.VendorSet{21}, rec.VendorLegitimateInterests)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.TokenOperations.WithLabelValues("encode", "ok")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.TokenOperations.WithLabelValues("decode", "ok")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.VendorEncoding.WithLabelValues("consents", "range")))
}

func (s *ServiceSuite) TestGenerate_InvalidSubmission() {
	sub := s.validSubmission()
	sub.Domain = ""
	sub.Vendors = append(sub.Vendors, 4242)

	token, err := s.service.Generate(s.ctx, sub)

	s.Empty(token)
	var invalid *models.InvalidSubmissionError
	s.Require().True(errors.As(err, &invalid))
	s.Equal([]string{"missing_domain", "unknown_vendor"}, invalid.Outcome.Codes())
}

func (s *ServiceSuite) TestGenerate_EncodeFailureSurfacesCodecError() {
	svc := New(s.vendors, Config{
		CmpID:            5000,
		CmpVersion:       1,
		ConsentLanguage:  "EN",
		PublisherCountry: "ES",
		PolicyVersion:    2,
	}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	_, err := svc.Generate(s.ctx, s.validSubmission())

	s.True(errors.Is(err, consentstring.ErrInvalidField))
}

func (s *ServiceSuite) TestGenerate_EmptyRegistryRejectsVendors() {
	s.vendors.snap = vendorlist.Empty()

	_, err := s.service.Generate(s.ctx, s.validSubmission())

	var invalid *models.InvalidSubmissionError
	s.Require().True(errors.As(err, &invalid))
	s.Equal([]string{"unknown_vendor", "unknown_vendor", "unknown_vendor"}, invalid.Outcome.Codes())
}

func (s *ServiceSuite) TestBuildRecord_FallsBackToConfiguredPolicyVersion() {
	rec := s.service.BuildRecord(models.Submission{PurposeConsents: []int{1}}, vendorlist.Empty(), s.now)

	s.Equal(2, rec.PolicyVersion)
	s.Equal(0, rec.VendorListVersion)
	s.Nil(rec.VendorConsents)
}

func (s *ServiceSuite) TestDecode_Errors() {
	_, err := s.service.Decode(s.ctx, "   ")
	s.True(dErrors.Is(err, dErrors.CodeValidation))

	_, err = s.service.Decode(s.ctx, "!!!")
	s.True(errors.Is(err, consentstring.ErrInvalidField))

	// Version 1 in the first six bits.
	_, err = s.service.Decode(s.ctx, "BAAAAAAAAAAA")
	s.True(errors.Is(err, consentstring.ErrUnsupportedVersion))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.TokenOperations.WithLabelValues("decode", "unsupported_version")))
}

func (s *ServiceSuite) TestVendorList() {
	s.Same(s.vendors.snap, s.service.VendorList(s.ctx))
}
