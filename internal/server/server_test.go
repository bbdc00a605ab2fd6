package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/erpcore/internal/authorization"
	mfgdomain "github.com/smallbiznis/erpcore/internal/manufacturing/domain"
	"github.com/smallbiznis/erpcore/internal/ratelimit"
	seqdomain "github.com/smallbiznis/erpcore/internal/sequence/domain"
	"github.com/smallbiznis/erpcore/internal/sequence/pattern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSequenceService struct {
	seqdomain.Service

	generateErr error
	lastGen     seqdomain.GenerateRequest
	overrideErr error
}

func (f *fakeSequenceService) Generate(ctx context.Context, req seqdomain.GenerateRequest) (seqdomain.GeneratedNumber, error) {
	f.lastGen = req
	if f.generateErr != nil {
		return seqdomain.GeneratedNumber{}, f.generateErr
	}
	return seqdomain.NewGeneratedNumber("QT-0001", 1, time.Date(2024, 11, 15, 9, 30, 0, 0, time.UTC), nil)
}

func (f *fakeSequenceService) Preview(ctx context.Context, req seqdomain.PreviewRequest) (*seqdomain.PreviewResult, error) {
	dept, _ := req.Context["department"].(string)
	return &seqdomain.PreviewResult{Value: "WO-" + dept + "-0001", NextCounter: 1}, nil
}

func (f *fakeSequenceService) Override(ctx context.Context, req seqdomain.OverrideRequest) (*seqdomain.SerialNumberLog, error) {
	if f.overrideErr != nil {
		return nil, f.overrideErr
	}
	return &seqdomain.SerialNumberLog{GeneratedNumber: req.Value, Override: true}, nil
}

func (f *fakeSequenceService) GetSequence(ctx context.Context, tenantID int64, name string) (*seqdomain.Response, error) {
	return nil, fmt.Errorf("load %s: %w", name, seqdomain.ErrSequenceNotFound)
}

func (f *fakeSequenceService) Reset(ctx context.Context, req seqdomain.ResetRequest) (*seqdomain.Response, error) {
	return nil, authorization.ErrForbidden
}

func (f *fakeSequenceService) ValidatePattern(ctx context.Context, req seqdomain.ValidatePatternRequest) pattern.ValidationResult {
	res := pattern.NewValidationResult()
	if !strings.Contains(req.Pattern, "{COUNTER") {
		res.AddError("pattern must contain a counter placeholder")
	}
	return res
}

type fakeManufacturingService struct {
	mfgdomain.Service

	explodeErr error
}

func (f *fakeManufacturingService) Explode(ctx context.Context, tenantID int64, bomID string, quantity decimal.Decimal) ([]mfgdomain.Requirement, error) {
	if f.explodeErr != nil {
		return nil, f.explodeErr
	}
	return []mfgdomain.Requirement{
		{ProductID: "3", ProductCode: "C", UOM: "pcs", TotalQuantity: quantity.Mul(decimal.NewFromInt(8))},
	}, nil
}

func (f *fakeManufacturingService) RequirementSheet(ctx context.Context, tenantID int64, bomID string, quantity decimal.Decimal) (io.Reader, error) {
	return bytes.NewBufferString("%PDF-1.3"), nil
}

type denyingLimiter struct{}

func (denyingLimiter) Enabled() bool { return true }

func (denyingLimiter) Allow(ctx context.Context, tenantID int64, sequenceName string) (*ratelimit.Result, error) {
	return &ratelimit.Result{Allowed: false, RetryAfter: 1500 * time.Millisecond}, nil
}

func newTestServer(seq *fakeSequenceService, mfg *fakeManufacturingService) *Server {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(Correlation())
	router.Use(ErrorHandlingMiddleware())

	srv := &Server{
		engine:      router,
		log:         zap.NewNop(),
		sequenceSvc: seq,
		mfgSvc:      mfg,
	}
	srv.registerSequenceRoutes()
	srv.registerManufacturingRoutes()
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(HeaderOrg, "42")
	req.Header.Set(HeaderActor, "user:1")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	srv.Engine().ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out.Error
}

func TestTenantHeaderIsRequired(t *testing.T) {
	srv := newTestServer(&fakeSequenceService{}, &fakeManufacturingService{})

	req := httptest.NewRequest(http.MethodPost, "/v1/sequences/quote/generate", nil)
	resp := httptest.NewRecorder()
	srv.Engine().ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "org_required", payload.Errors[0].Code)
	assert.NotEmpty(t, resp.Header().Get("X-Correlation-ID"))
}

func TestGenerateNumber(t *testing.T) {
	seq := &fakeSequenceService{}
	srv := newTestServer(seq, &fakeManufacturingService{})

	resp := doRequest(t, srv, http.MethodPost, "/v1/sequences/quote/generate", `{"context":{"department":"OPS"}}`)
	require.Equal(t, http.StatusOK, resp.Code)

	var out struct {
		Data struct {
			Value   string `json:"value"`
			Counter int64  `json:"counter"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, "QT-0001", out.Data.Value)
	assert.Equal(t, int64(1), out.Data.Counter)

	assert.Equal(t, int64(42), seq.lastGen.TenantID)
	assert.Equal(t, "user:1", seq.lastGen.Actor)
	assert.Equal(t, "quote", seq.lastGen.SequenceName)
	assert.Equal(t, "OPS", seq.lastGen.Context["department"])
}

func TestGenerateWithoutBody(t *testing.T) {
	srv := newTestServer(&fakeSequenceService{}, &fakeManufacturingService{})

	resp := doRequest(t, srv, http.MethodPost, "/v1/sequences/quote/generate", "")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestLockTimeoutIsRetryable(t *testing.T) {
	seq := &fakeSequenceService{generateErr: fmt.Errorf("generate: %w", seqdomain.ErrLockTimeout)}
	srv := newTestServer(seq, &fakeManufacturingService{})

	resp := doRequest(t, srv, http.MethodPost, "/v1/sequences/quote/generate", "")
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	payload := decodeError(t, resp)
	assert.True(t, payload.Retryable)
	assert.Equal(t, "sequence_lock_timeout", payload.Code)
}

func TestContextValidationReturnsEveryError(t *testing.T) {
	result := pattern.NewValidationResult()
	result.AddError("missing value for DEPARTMENT")
	result.AddError("missing value for PROJECT_CODE")
	result.AddWarning("unused key foo")
	seq := &fakeSequenceService{generateErr: result.Err(pattern.ErrInvalidContext)}
	srv := newTestServer(seq, &fakeManufacturingService{})

	resp := doRequest(t, srv, http.MethodPost, "/v1/sequences/wo/generate", `{"context":{"foo":1}}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	require.Len(t, payload.Errors, 2)
	assert.Equal(t, "context", payload.Errors[0].Field)
	assert.Equal(t, "invalid_context", payload.Errors[1].Code)
	assert.Equal(t, []string{"unused key foo"}, payload.Warnings)
}

func TestPreviewReadsQueryContext(t *testing.T) {
	srv := newTestServer(&fakeSequenceService{}, &fakeManufacturingService{})

	resp := doRequest(t, srv, http.MethodGet, "/v1/sequences/wo/preview?department=OPS", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "WO-OPS-0001")
}

func TestOverrideDuplicateIsConflict(t *testing.T) {
	seq := &fakeSequenceService{overrideErr: &seqdomain.DuplicateNumberError{TenantID: 42, SequenceName: "rc", Value: "RC-0001"}}
	srv := newTestServer(seq, &fakeManufacturingService{})

	resp := doRequest(t, srv, http.MethodPost, "/v1/sequences/rc/override", `{"value":"RC-0001","reason":"paper ledger"}`)
	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "duplicate_number", decodeError(t, resp).Code)
}

func TestUnknownSequenceIsNotFound(t *testing.T) {
	srv := newTestServer(&fakeSequenceService{}, &fakeManufacturingService{})

	resp := doRequest(t, srv, http.MethodGet, "/v1/sequences/missing", "")
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "sequence_not_found", decodeError(t, resp).Code)
}

func TestResetForbidden(t *testing.T) {
	srv := newTestServer(&fakeSequenceService{}, &fakeManufacturingService{})

	resp := doRequest(t, srv, http.MethodPost, "/v1/sequences/quote/reset", `{"new_value":0,"reason":"year end"}`)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = doRequest(t, srv, http.MethodPost, "/v1/sequences/quote/reset", `{"reason":"year end"}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "new_value", decodeError(t, resp).Errors[0].Field)
}

func TestValidatePatternEndpoint(t *testing.T) {
	srv := newTestServer(&fakeSequenceService{}, &fakeManufacturingService{})

	resp := doRequest(t, srv, http.MethodPost, "/v1/patterns/validate", `{"pattern":"QT-{YEAR}"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	var out struct {
		Data pattern.ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.False(t, out.Data.Valid)
	assert.Len(t, out.Data.Errors, 1)
}

func TestGenerateRateLimited(t *testing.T) {
	seq := &fakeSequenceService{}
	srv := newTestServer(seq, &fakeManufacturingService{})
	srv.generateLimiter = denyingLimiter{}

	resp := doRequest(t, srv, http.MethodPost, "/v1/sequences/quote/generate", "")
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "2", resp.Header().Get("Retry-After"))
	assert.True(t, decodeError(t, resp).Retryable)
	assert.Empty(t, seq.lastGen.SequenceName)
}

func TestExplodeBOM(t *testing.T) {
	srv := newTestServer(&fakeSequenceService{}, &fakeManufacturingService{})

	resp := doRequest(t, srv, http.MethodGet, "/v1/boms/1/explode?quantity=10", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var out struct {
		Data mfgdomain.ExplosionResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.Len(t, out.Data.Requirements, 1)
	assert.True(t, out.Data.Requirements[0].TotalQuantity.Equal(decimal.NewFromInt(80)))

	resp = doRequest(t, srv, http.MethodGet, "/v1/boms/1/explode?quantity=ten", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestExplodeCircularReference(t *testing.T) {
	mfg := &fakeManufacturingService{explodeErr: &mfgdomain.CircularReferenceError{Path: []int64{1, 2, 1}}}
	srv := newTestServer(&fakeSequenceService{}, mfg)

	resp := doRequest(t, srv, http.MethodGet, "/v1/boms/1/explode", "")
	require.Equal(t, http.StatusConflict, resp.Code)
	payload := decodeError(t, resp)
	assert.Equal(t, "bom_circular_reference", payload.Code)
	assert.Equal(t, []string{"1", "2", "1"}, payload.Path)
}

func TestExplodeManyRequiresExplosions(t *testing.T) {
	srv := newTestServer(&fakeSequenceService{}, &fakeManufacturingService{})

	resp := doRequest(t, srv, http.MethodPost, "/v1/boms/explode", `{"explosions":[]}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "explosions", decodeError(t, resp).Errors[0].Field)
}

func TestRequirementSheetIsPDF(t *testing.T) {
	srv := newTestServer(&fakeSequenceService{}, &fakeManufacturingService{})

	resp := doRequest(t, srv, http.MethodGet, "/v1/boms/7/requirements.pdf?quantity=2", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/pdf", resp.Header().Get("Content-Type"))
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "requirements-7.pdf")
	assert.True(t, strings.HasPrefix(resp.Body.String(), "%PDF"))
}

func TestMapErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "invalid padding", err: seqdomain.ErrInvalidPadding, status: http.StatusBadRequest},
		{name: "invalid actor", err: authorization.ErrInvalidActor, status: http.StatusBadRequest},
		{name: "self reference", err: mfgdomain.ErrSelfReference, status: http.StatusBadRequest},
		{name: "bom not found", err: fmt.Errorf("load: %w", mfgdomain.ErrBOMNotFound), status: http.StatusNotFound},
		{name: "invalid transition", err: mfgdomain.ErrInvalidTransition, status: http.StatusConflict},
		{name: "version conflict", err: seqdomain.ErrVersionConflict, status: http.StatusConflict},
		{name: "numbers exhausted", err: fmt.Errorf("%w: RC-0002", seqdomain.ErrNumberTaken), status: http.StatusConflict},
		{name: "max depth", err: mfgdomain.ErrMaxDepthExceeded, status: http.StatusConflict},
		{name: "forbidden", err: authorization.ErrForbidden, status: http.StatusForbidden},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := mapError(tc.err)
			assert.Equal(t, tc.status, status)
		})
	}
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(seqdomain.ErrInvalidPadding)
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "invalid_padding", code)

	typ, code = classifyErrorForLog(seqdomain.ErrLockTimeout)
	assert.Equal(t, "lock_timeout", typ)
	assert.Equal(t, "sequence_lock_timeout", code)
}
