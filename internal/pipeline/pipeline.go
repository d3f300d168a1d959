// Package pipeline orchestrates one analysis request through the
// validation, simulation, decoding, balance-change, categorization, and
// insight stages, and assembles the outward response.
//
// The pipeline is a pure function of its inputs plus read-only
// collaborator calls: requests share no mutable state, and every stage
// honors context cancellation.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mbd888/txguard/internal/analysis"
	"github.com/mbd888/txguard/internal/balance"
	"github.com/mbd888/txguard/internal/category"
	"github.com/mbd888/txguard/internal/decoder"
	"github.com/mbd888/txguard/internal/insight"
	"github.com/mbd888/txguard/internal/logging"
	"github.com/mbd888/txguard/internal/metrics"
	"github.com/mbd888/txguard/internal/simulation"
)

// Simulator is the simulation-adapter dependency, abstracted for tests.
type Simulator interface {
	Run(ctx context.Context, req *analysis.ValidatedRequest) (*analysis.Simulation, []simulation.TransferLeg, *analysis.APIError)
	Stamp() *analysis.Simulation
}

// Service runs analyses. Safe for concurrent use.
type Service struct {
	sim       Simulator
	dec       *decoder.Decoder
	extractor *balance.Extractor
	engine    *insight.Engine
	logger    *slog.Logger

	inflight sync.Map // request key → struct{}
}

// New creates the analysis service.
func New(sim Simulator, dec *decoder.Decoder, extractor *balance.Extractor, engine *insight.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sim:       sim,
		dec:       dec,
		extractor: extractor,
		engine:    engine,
		logger:    logger,
	}
}

// Analyze validates and runs one request, always returning a response
// envelope: data on success (possibly with optional fields absent),
// errors otherwise.
func (s *Service) Analyze(ctx context.Context, req *analysis.Request) *analysis.Response {
	validated, apiErr := analysis.ValidateRequest(req)
	if apiErr != nil {
		metrics.AnalysesTotal.WithLabelValues(methodLabel(req), "error").Inc()
		return analysis.ErrorResponse(apiErr)
	}

	// One identical request at a time: a duplicate arriving while the
	// first is still running is told to wait, not re-simulated.
	key := requestKey(req)
	if _, loaded := s.inflight.LoadOrStore(key, struct{}{}); loaded {
		return analysis.ErrorResponse(analysis.NewError(analysis.CodeAnalysisInProgress,
			"an identical analysis is already in progress"))
	}
	defer s.inflight.Delete(key)

	logger := logging.WithAnalysis(s.logger, validated.ChainID, string(validated.Method))

	var resp *analysis.Response
	if validated.IsTransaction() {
		resp = s.analyzeTransaction(ctx, validated, logger)
	} else {
		resp = s.analyzeMessage(ctx, validated, logger)
	}

	outcome := "ok"
	if len(resp.Errors) > 0 {
		outcome = "error"
	} else if degraded(resp.Data, validated) {
		outcome = "degraded"
	}
	metrics.AnalysesTotal.WithLabelValues(string(validated.Method), outcome).Inc()
	if resp.Data != nil && resp.Data.Insights != nil {
		metrics.VerdictsTotal.WithLabelValues(resp.Data.Insights.Verdict.Label).Inc()
	}
	return resp
}

func (s *Service) analyzeTransaction(ctx context.Context, req *analysis.ValidatedRequest, logger *slog.Logger) *analysis.Response {
	started := time.Now()
	sim, legs, apiErr := s.sim.Run(ctx, req)
	if apiErr != nil {
		logger.Warn("simulation failed", "code", apiErr.Code, "error", apiErr.Message)
		return analysis.ErrorResponse(apiErr)
	}
	metrics.SimulationDuration.Observe(time.Since(started).Seconds())
	if sim.Status != nil && sim.Status.IsReverted {
		metrics.SimulationRevertsTotal.Inc()
		logger.Info("simulated transaction reverted", "duration", time.Since(started))
	}

	tx, calls := s.dec.DecodeTransaction(ctx, req)
	actor := strings.ToLower(req.Calls[0].From)

	// Categorization inspects the movements, so it follows extraction.
	change := s.extractor.Extract(ctx, actor, legs)
	cats := category.Categorize(calls, change)
	if tx != nil {
		tx.Category = cats
	}

	insights := s.engine.Run(ctx, &insight.Input{
		ChainID:       req.ChainID,
		Domain:        req.Domain,
		Actor:         actor,
		Method:        req.Method,
		Calls:         calls,
		BalanceChange: change,
		Categories:    cats,
		Simulation:    sim,
	})

	data := &analysis.Data{
		Simulation:    sim,
		Insights:      insights,
		Transaction:   tx,
		BalanceChange: change,
	}
	return s.assemble(data, logger)
}

func (s *Service) analyzeMessage(ctx context.Context, req *analysis.ValidatedRequest, logger *slog.Logger) *analysis.Response {
	sim := s.sim.Stamp()
	msg := s.dec.DecodeMessage(ctx, req)

	insights := s.engine.Run(ctx, &insight.Input{
		ChainID:    req.ChainID,
		Domain:     req.Domain,
		Method:     req.Method,
		Message:    msg,
		Simulation: sim,
	})

	data := &analysis.Data{
		Simulation: sim,
		Insights:   insights,
		Message:    msg,
	}
	return s.assemble(data, logger)
}

func (s *Service) assemble(data *analysis.Data, logger *slog.Logger) *analysis.Response {
	resp, err := analysis.NewResponse(data, nil)
	if err != nil {
		logger.Error("response assembly failed", "error", err)
		return analysis.ErrorResponse(analysis.NewError(analysis.CodeFailedToAnalyze,
			"internal error assembling the analysis response"))
	}
	return resp
}

// degraded reports whether a data response is missing optional fields a
// complete analysis of this method would carry.
func degraded(data *analysis.Data, req *analysis.ValidatedRequest) bool {
	if data == nil {
		return false
	}
	if req.IsTransaction() {
		return data.Transaction == nil || data.BalanceChange == nil
	}
	return data.Message == nil
}

// requestKey identifies a request for the single-flight guard.
func requestKey(req *analysis.Request) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(req.Domain)))
	h.Write([]byte{0})
	h.Write([]byte(req.Block))
	h.Write([]byte{0})
	h.Write([]byte(req.Payload.Method))
	h.Write([]byte{0})
	h.Write(req.Payload.Params)
	var chain [8]byte
	for i := 0; i < 8; i++ {
		chain[i] = byte(req.ChainID >> (8 * i))
	}
	h.Write(chain[:])
	return hex.EncodeToString(h.Sum(nil))
}

func methodLabel(req *analysis.Request) string {
	if req == nil || req.Payload.Method == "" {
		return "unknown"
	}
	return string(req.Payload.Method)
}
