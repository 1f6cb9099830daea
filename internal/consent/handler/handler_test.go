package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"tcfgate/internal/consent/handler/mocks"
	"tcfgate/internal/consent/models"
	"tcfgate/internal/consentstring"
	"tcfgate/internal/vendorlist"
	dErrors "tcfgate/pkg/domain-errors"
	"tcfgate/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/consent-mocks.go -package=mocks Service
type ConsentHandlerSuite struct {
	suite.Suite
	service    *mocks.MockService
	router     chi.Router
	lastStatus int
}

func TestConsentHandlerSuite(t *testing.T) {
	suite.Run(t, new(ConsentHandlerSuite))
}

func (s *ConsentHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.router = chi.NewRouter()
	New(s.service, logger, nil, time.Second).Register(s.router)
}

func (s *ConsentHandlerSuite) post(path, body string) map[string]any {
	s.T().Helper()
	rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, path, body))
	s.lastStatus = rr.Code
	return testutil.DecodeJSON[map[string]any](s.T(), rr)
}

func (s *ConsentHandlerSuite) TestValidate_Valid() {
	s.service.EXPECT().Validate(gomock.Any(), models.Submission{
		Domain:          "example.de",
		PurposeConsents: []int{1},
	}).Return(models.Outcome{})

	resp := s.post("/api/tcf/validate", `{"domain":"  example.de ","purpose1_consent":true}`)

	s.Equal(http.StatusOK, s.lastStatus)
	s.Equal(true, resp["success"])
	s.Equal(true, resp["isValid"])
	s.NotContains(resp, "errors")
}

func (s *ConsentHandlerSuite) TestValidate_ReturnsEveryError() {
	s.service.EXPECT().Validate(gomock.Any(), gomock.Any()).Return(models.Outcome{Errors: []models.ValidationError{
		models.MissingDomain(),
		models.UnknownVendor(999999),
	}})

	resp := s.post("/api/tcf/validate", `{"domain":"","vendors":[999999]}`)

	s.Equal(http.StatusOK, s.lastStatus)
	s.Equal(false, resp["success"])
	s.Equal("validation_failed", resp["code"])
	errs := resp["errors"].([]any)
	s.Require().Len(errs, 2)
	s.Equal("missing_domain", errs[0].(map[string]any)["code"])
	second := errs[1].(map[string]any)
	s.Equal("unknown_vendor", second["code"])
	s.EqualValues(999999, second["vendorId"])
}

func (s *ConsentHandlerSuite) TestValidate_MalformedBody() {
	resp := s.post("/api/tcf/validate", `{"purpose1_consent":"yes"}`)

	s.Equal(http.StatusBadRequest, s.lastStatus)
	s.Equal("bad_request", resp["error"])
}

func (s *ConsentHandlerSuite) TestGenerate_Success() {
	s.service.EXPECT().Generate(gomock.Any(), models.Submission{
		Domain:          "example.fr",
		PurposeConsents: []int{1, 2},
		Vendors:         []int{8},
	}).Return("CQABCDEFGH", nil)

	resp := s.post("/api/tcf/generate", `{"domain":"example.fr","purpose1_consent":true,"purpose2_consent":true,"vendors":[8]}`)

	s.Equal(http.StatusOK, s.lastStatus)
	s.Equal(true, resp["success"])
	s.Equal("CQABCDEFGH", resp["tcString"])
}

func (s *ConsentHandlerSuite) TestGenerate_InvalidSubmission() {
	s.service.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("", &models.InvalidSubmissionError{
		Outcome: models.Outcome{Errors: []models.ValidationError{models.MissingRequiredPurpose(1)}},
	})

	resp := s.post("/api/tcf/generate", `{"domain":"example.fr"}`)

	s.Equal(http.StatusUnprocessableEntity, s.lastStatus)
	s.Equal(false, resp["success"])
	s.Equal("validation_failed", resp["code"])
	s.Equal("Purpose 1 consent is required", resp["error"])
	s.Len(resp["errors"], 1)
}

func (s *ConsentHandlerSuite) TestGenerate_CodecError() {
	s.service.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("", &consentstring.CodecError{
		Kind:    consentstring.KindInvalidField,
		Message: "vendorConsents: vendor id 70000 out of range",
	})

	resp := s.post("/api/tcf/generate", `{"domain":"example.fr","purpose1_consent":true}`)

	s.Equal(http.StatusUnprocessableEntity, s.lastStatus)
	s.Equal("invalid_field", resp["code"])
	s.Contains(resp["error"], "Error creating TC string")
}

func (s *ConsentHandlerSuite) TestGenerate_UnexpectedErrorHidesDetail() {
	s.service.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("", errors.New("disk on fire"))

	resp := s.post("/api/tcf/generate", `{"domain":"example.fr","purpose1_consent":true}`)

	s.Equal(http.StatusInternalServerError, s.lastStatus)
	s.Equal("internal_error", resp["error"])
	s.NotContains(resp, "error_description")
}

func (s *ConsentHandlerSuite) TestDecode_Success() {
	rec := consentstring.ConsentRecord{
		Version:         consentstring.Version,
		CmpID:           12,
		ConsentLanguage: "EN",
		PurposeConsents: consentstring.NewFixedSet(1, 3),
		VendorConsents:  consentstring.NewVendorSet(8),
	}
	s.service.EXPECT().Decode(gomock.Any(), "CQ.token").Return(rec, nil)

	resp := s.post("/api/tcf/decode", `{"tcString":" CQ.token "}`)

	s.Equal(http.StatusOK, s.lastStatus)
	s.Equal(true, resp["success"])
	data := resp["data"].(map[string]any)
	s.EqualValues(12, data["cmpId"])
	s.Equal([]any{1.0, 3.0}, data["purposeConsents"])
	s.Equal([]any{8.0}, data["vendorConsents"])
}

func (s *ConsentHandlerSuite) TestDecode_CodecErrorKindIsDiscriminator() {
	s.service.EXPECT().Decode(gomock.Any(), "BAAA").Return(consentstring.ConsentRecord{}, &consentstring.CodecError{
		Kind:    consentstring.KindUnsupportedVersion,
		Message: "version 1, want 2",
	})

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/tcf/decode",
		models.DecodeRequest{TCString: "BAAA"}))

	body := testutil.AssertFailure(s.T(), rr, http.StatusUnprocessableEntity, "unsupported_version")
	s.Contains(body["error"], "Error decoding TC string")
}

func (s *ConsentHandlerSuite) TestDecode_MissingToken() {
	s.service.EXPECT().Decode(gomock.Any(), "").Return(consentstring.ConsentRecord{}, dErrors.New(dErrors.CodeValidation, "tcString is required"))

	resp := s.post("/api/tcf/decode", `{}`)

	s.Equal(http.StatusBadRequest, s.lastStatus)
	s.Equal("validation_error", resp["error"])
	s.Equal("tcString is required", resp["error_description"])
}

func (s *ConsentHandlerSuite) TestVendorList() {
	snap := vendorlist.Empty()
	snap.Version = 57
	snap.LastUpdated = time.Date(2024, 5, 2, 16, 0, 26, 0, time.UTC)
	snap.Vendors[8] = vendorlist.Vendor{ID: 8, Name: "Emerse Sverige AB", Purposes: []int{1, 2}}
	s.service.EXPECT().VendorList(gomock.Any()).Return(snap)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/api/tcf/vendor-list"))

	testutil.AssertStatusOK(s.T(), rr)
	assert.Equal(s.T(), "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(s.T(), `{
		"success": true,
		"data": {
			"vendors": {"8": {"id": 8, "name": "Emerse Sverige AB", "purposes": [1, 2], "legIntPurposes": null, "flexiblePurposes": null, "specialPurposes": null, "features": null, "specialFeatures": null}},
			"purposes": {},
			"features": {},
			"vendorListVersion": 57,
			"lastUpdated": "2024-05-02T16:00:26Z"
		}
	}`, rr.Body.String())
}

func (s *ConsentHandlerSuite) TestVendorList_EmptyFallbackShape() {
	s.service.EXPECT().VendorList(gomock.Any()).Return(vendorlist.Empty())

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/api/tcf/vendor-list"))

	testutil.AssertStatusOK(s.T(), rr)
	assert.JSONEq(s.T(), `{"success":true,"data":{"vendors":{},"purposes":{},"features":{}}}`, rr.Body.String())
}
