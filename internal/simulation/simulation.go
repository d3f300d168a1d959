// Package simulation adapts the external execution backend into the
// canonical simulation record consumed by the rest of the pipeline.
//
// The backend executes a candidate transaction against a fork of the
// target chain and reports whether it reverted, plus the value-transfer
// trace the balance-change extractor walks. A backend-reported revert is
// a successful analysis of a failing transaction, never a pipeline
// failure; only transport problems and malformed traces surface as
// errors.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/mbd888/txguard/internal/analysis"
	"github.com/mbd888/txguard/internal/circuitbreaker"
	"github.com/mbd888/txguard/internal/idgen"
	"github.com/mbd888/txguard/internal/retry"
)

// TokenStandard tags a transfer leg in the backend trace.
type TokenStandard string

const (
	StandardERC20   TokenStandard = "erc20"
	StandardERC721  TokenStandard = "erc721"
	StandardERC1155 TokenStandard = "erc1155"
	StandardNative  TokenStandard = "native"
)

// TransferLeg is one value movement observed during simulated execution.
// Token is empty for native transfers. Amount is a raw base-10 integer
// string; TokenID is set for ERC-721/1155 legs.
type TransferLeg struct {
	Standard TokenStandard `json:"standard"`
	Token    string        `json:"token,omitempty"`
	From     string        `json:"from"`
	To       string        `json:"to"`
	Amount   string        `json:"amount,omitempty"`
	TokenID  string        `json:"tokenId,omitempty"`
}

// AmountBig parses the raw amount. Returns 0 for legs without an amount.
func (l TransferLeg) AmountBig() (*big.Int, bool) {
	if l.Amount == "" {
		return new(big.Int), true
	}
	v, ok := new(big.Int).SetString(l.Amount, 10)
	return v, ok
}

// Result is the raw backend response before canonicalization.
type Result struct {
	SimulationID string        `json:"simulationId"`
	Reverted     bool          `json:"reverted"`
	Errors       []string      `json:"errors"`
	Block        string        `json:"block,omitempty"`
	ElapsedTime  string        `json:"elapsedTime,omitempty"`
	Transfers    []TransferLeg `json:"transfers"`
}

// Backend is the external execution collaborator.
type Backend interface {
	Submit(ctx context.Context, chainID int64, block string, calls []analysis.CallParams) (*Result, error)
}

// ErrMalformedResult marks a backend payload the adapter cannot use.
// It is never retried.
var ErrMalformedResult = errors.New("simulation: malformed backend result")

const (
	breakerKey = "simulation-backend"

	// "latest" is substituted when the request names no target block.
	defaultBlock = "latest"
)

// Config tunes the adapter's retry and timeout behavior. Timeout bounds
// the whole Run including backoff; each attempt gets an equal slice of
// it, so a stalled backend fails its attempt early enough to be retried.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Timeout     time.Duration
}

// attemptTimeout is the per-attempt slice of the overall deadline.
func (c Config) attemptTimeout() time.Duration {
	return c.Timeout / time.Duration(c.MaxAttempts)
}

// DefaultConfig returns the production retry policy: three attempts with
// 250ms initial backoff under an overall 15s deadline.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		Timeout:     15 * time.Second,
	}
}

// Adapter invokes the backend and maps its result into the canonical
// Simulation record. Transient transport failures are retried with
// backoff behind a circuit breaker; reverts and malformed payloads are
// not.
type Adapter struct {
	backend Backend
	breaker *circuitbreaker.Breaker
	cfg     Config
	logger  *slog.Logger
}

// NewAdapter creates a simulation adapter around the backend.
func NewAdapter(backend Backend, cfg Config, logger *slog.Logger) *Adapter {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		backend: backend,
		breaker: circuitbreaker.New(5, 30*time.Second),
		cfg:     cfg,
		logger:  logger,
	}
}

// Run simulates the validated request and returns the canonical record
// plus the transfer trace. The returned *analysis.APIError is
// CodeSimulationFailed after retry exhaustion and CodeGeneralError for
// malformed backend payloads or an open circuit.
func (a *Adapter) Run(ctx context.Context, req *analysis.ValidatedRequest) (*analysis.Simulation, []TransferLeg, *analysis.APIError) {
	if !a.breaker.Allow(breakerKey) {
		return nil, nil, analysis.NewError(analysis.CodeGeneralError,
			"execution backend is unavailable")
	}

	block := req.Block
	if block == "" {
		block = defaultBlock
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	started := time.Now()
	var result *Result
	err := retry.Do(ctx, a.cfg.MaxAttempts, a.cfg.BaseDelay, func() error {
		// Per-attempt deadline: without it a hung backend burns the
		// whole Run budget on the first attempt and never retries.
		attemptCtx, cancel := context.WithTimeout(ctx, a.cfg.attemptTimeout())
		defer cancel()

		res, err := a.backend.Submit(attemptCtx, req.ChainID, block, req.Calls)
		if err != nil {
			if errors.Is(err, ErrMalformedResult) {
				return retry.Permanent(err)
			}
			a.logger.Warn("simulation attempt failed",
				"chain_id", req.ChainID, "error", err)
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		a.breaker.RecordFailure(breakerKey)
		if errors.Is(err, ErrMalformedResult) {
			return nil, nil, analysis.NewError(analysis.CodeGeneralError,
				"execution backend returned an unusable result")
		}
		return nil, nil, analysis.NewError(analysis.CodeSimulationFailed,
			"simulation did not complete after %d attempts", a.cfg.MaxAttempts)
	}
	a.breaker.RecordSuccess(breakerKey)

	sim := a.canonicalize(result, started)
	return sim, result.Transfers, nil
}

// Stamp returns the minimal simulation record attached to message
// analyses: a fresh id and timestamp, no execution status.
func (a *Adapter) Stamp() *analysis.Simulation {
	return &analysis.Simulation{
		UUID: idgen.WithPrefix("sim_"),
		Time: time.Now().UTC().Format(time.RFC3339),
	}
}

func (a *Adapter) canonicalize(result *Result, started time.Time) *analysis.Simulation {
	uuid := result.SimulationID
	if uuid == "" {
		uuid = idgen.WithPrefix("sim_")
	}

	sim := analysis.NewSimulation(uuid, result.Reverted, result.Errors)
	sim.Block = result.Block
	sim.Time = result.ElapsedTime
	if sim.Time == "" {
		sim.Time = fmt.Sprintf("%dms", time.Since(started).Milliseconds())
	}
	return sim
}
