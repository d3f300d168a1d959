package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/txguard/internal/analysis"
	"github.com/mbd888/txguard/internal/health"
)

// analyzeHandler handles POST /v1/analyze
func (s *Server) analyzeHandler(c *gin.Context) {
	var req analysis.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, analysis.ErrorResponse(
			analysis.NewError(analysis.CodeBadRequest, "request body must be valid JSON"),
		))
		return
	}

	// Chain allowlist is deployment policy, checked before the pipeline
	// ever sees the request.
	if !s.cfg.ChainAllowed(req.ChainID) {
		c.JSON(http.StatusBadRequest, analysis.ErrorResponse(
			analysis.NewError(analysis.CodeInputValidation, "chain id %d is not supported", req.ChainID),
		))
		return
	}

	resp := s.analyzer.Analyze(c.Request.Context(), &req)
	c.JSON(statusFor(resp), resp)
}

// statusFor maps the response envelope to an HTTP status. The envelope
// carries the authoritative error codes; the HTTP status is a coarse
// transport-level translation of the first one.
func statusFor(resp *analysis.Response) int {
	if len(resp.Errors) == 0 {
		return http.StatusOK
	}
	switch resp.Errors[0].Code {
	case analysis.CodeInputValidation, analysis.CodeContractTypeMismatch, analysis.CodeBadRequest:
		return http.StatusBadRequest
	case analysis.CodeAnalysisInProgress:
		return http.StatusConflict
	case analysis.CodeSimulationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// methodsHandler lists the wallet RPC methods the service accepts
func (s *Server) methodsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"methods": []analysis.Method{
			analysis.MethodSendTransaction,
			analysis.MethodPersonalSign,
			analysis.MethodEthSign,
			analysis.MethodSignTypedData,
			analysis.MethodSignTypedDataV1,
			analysis.MethodSignTypedDataV3,
			analysis.MethodSignTypedDataV4,
		},
	})
}

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "txguard",
		"description": "Pre-signature risk analysis for wallet interactions",
		"version":     "0.1.0",
	})
}
