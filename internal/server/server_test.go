package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/txguard/internal/analysis"
	"github.com/mbd888/txguard/internal/config"
)

// stubAnalyzer returns a canned response and records the last request.
type stubAnalyzer struct {
	resp *analysis.Response
	last *analysis.Request
}

func (s *stubAnalyzer) Analyze(_ context.Context, req *analysis.Request) *analysis.Response {
	s.last = req
	return s.resp
}

func testConfig() *config.Config {
	return &config.Config{
		Port:           "8080",
		Env:            "development",
		LogLevel:       "error",
		SimulatorURL:   "http://localhost:9000/simulate",
		SimMaxAttempts: 1,
		SimTimeoutSec:  1,
		RPCURL:         "http://localhost:8545",
		NativeName:     "Ether",
		NativeSymbol:   "ETH",
		NativeDecimals: 18,
		RateLimitRPM:   6000,
	}
}

func newTestServer(t *testing.T, a Analyzer) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s, err := New(testConfig(), WithAnalyzer(a))
	require.NoError(t, err)
	return s
}

func postAnalyze(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/v1/analyze", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestAnalyze_Success(t *testing.T) {
	data := &analysis.Data{
		Simulation: &analysis.Simulation{
			UUID:   "sim_abc",
			Status: &analysis.SimulationStatus{IsReverted: false, Errors: []string{}},
		},
	}
	resp, err := analysis.NewResponse(data, nil)
	require.NoError(t, err)

	stub := &stubAnalyzer{resp: resp}
	s := newTestServer(t, stub)

	w := postAnalyze(t, s, `{
		"chainId": 1,
		"domain": "app.example.org",
		"payload": {"method": "eth_sendTransaction", "params": [{"from": "0x1111111111111111111111111111111111111111"}]}
	}`)

	assert.Equal(t, http.StatusOK, w.Code)

	var decoded analysis.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	assert.Empty(t, decoded.Errors)
	require.NotNil(t, stub.last)
	assert.Equal(t, int64(1), stub.last.ChainID)
	assert.Equal(t, "app.example.org", stub.last.Domain)
}

func TestAnalyze_BadJSON(t *testing.T) {
	s := newTestServer(t, &stubAnalyzer{})

	w := postAnalyze(t, s, `{not json`)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var decoded analysis.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	require.Len(t, decoded.Errors, 1)
	assert.Equal(t, analysis.CodeBadRequest, decoded.Errors[0].Code)
}

func TestAnalyze_ValidationErrorEnvelope(t *testing.T) {
	stub := &stubAnalyzer{resp: analysis.ErrorResponse(
		analysis.NewError(analysis.CodeInputValidation, "chain id must be positive"),
	)}
	s := newTestServer(t, stub)

	w := postAnalyze(t, s, `{"chainId": 0, "domain": "app.example.org", "payload": {"method": "eth_sendTransaction", "params": []}}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var decoded analysis.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	assert.Nil(t, decoded.Data)
	require.Len(t, decoded.Errors, 1)
	assert.Equal(t, analysis.CodeInputValidation, decoded.Errors[0].Code)
}

func TestAnalyze_ChainAllowlist(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.AllowedChainIDs = []int64{1}
	stub := &stubAnalyzer{}
	s, err := New(cfg, WithAnalyzer(stub))
	require.NoError(t, err)

	w := postAnalyze(t, s, `{"chainId": 137, "domain": "app.example.org", "payload": {"method": "eth_sendTransaction", "params": []}}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, stub.last, "disallowed chain must not reach the pipeline")

	var decoded analysis.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	require.Len(t, decoded.Errors, 1)
	assert.Equal(t, analysis.CodeInputValidation, decoded.Errors[0].Code)
}

func TestAnalyze_StatusMapping(t *testing.T) {
	tests := []struct {
		code   analysis.ErrorCode
		status int
	}{
		{analysis.CodeInputValidation, http.StatusBadRequest},
		{analysis.CodeContractTypeMismatch, http.StatusBadRequest},
		{analysis.CodeBadRequest, http.StatusBadRequest},
		{analysis.CodeAnalysisInProgress, http.StatusConflict},
		{analysis.CodeSimulationFailed, http.StatusBadGateway},
		{analysis.CodeGeneralError, http.StatusInternalServerError},
		{analysis.CodeFailedToAnalyze, http.StatusInternalServerError},
	}

	for _, tc := range tests {
		resp := analysis.ErrorResponse(analysis.NewError(tc.code, "x"))
		assert.Equal(t, tc.status, statusFor(resp), "code %d", tc.code)
	}

	ok, err := analysis.NewResponse(&analysis.Data{Simulation: &analysis.Simulation{UUID: "u"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, statusFor(ok))
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, &stubAnalyzer{})

	req := httptest.NewRequest("GET", "/health/live", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Not ready until Run marks it so
	req = httptest.NewRequest("GET", "/health/ready", nil)
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// No checkers registered means healthy
	req = httptest.NewRequest("GET", "/health", nil)
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMethodsEndpoint(t *testing.T) {
	s := newTestServer(t, &stubAnalyzer{})

	req := httptest.NewRequest("GET", "/v1/methods", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "eth_sendTransaction")
	assert.Contains(t, w.Body.String(), "personal_sign")
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t, &stubAnalyzer{resp: analysis.ErrorResponse(
		analysis.NewError(analysis.CodeGeneralError, "x"),
	)})

	w := postAnalyze(t, s, `{"chainId": 1, "domain": "a.b", "payload": {"method": "personal_sign", "params": []}}`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	// Caller-supplied ID is echoed back
	req := httptest.NewRequest("GET", "/api", nil)
	req.Header.Set("X-Request-ID", "req_fixed")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, "req_fixed", rec.Header().Get("X-Request-ID"))
}
