package simulation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mbd888/txguard/internal/analysis"
)

// submitRequest is the wire shape sent to the execution backend.
type submitRequest struct {
	ChainID int64                 `json:"chainId"`
	Block   string                `json:"block"`
	Calls   []analysis.CallParams `json:"calls"`
}

// HTTPBackend talks to an execution backend over HTTP.
type HTTPBackend struct {
	url    string
	client *http.Client
}

// NewHTTPBackend creates a backend client for the given submit endpoint.
func NewHTTPBackend(url string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPBackend{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Submit executes the calls on the backend and decodes its result.
// Transport and server errors are returned as-is (retryable); a payload
// that violates the result contract is ErrMalformedResult.
func (b *HTTPBackend) Submit(ctx context.Context, chainID int64, block string, calls []analysis.CallParams) (*Result, error) {
	body, err := json.Marshal(submitRequest{ChainID: chainID, Block: block, Calls: calls})
	if err != nil {
		return nil, fmt.Errorf("simulation: encode submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("simulation: build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("simulation: backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("simulation: backend returned status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	if err := validateResult(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// validateResult enforces the backend contract before the result enters
// the pipeline: a non-reverted execution cannot carry error strings, and
// every transfer leg needs a parseable amount where one is expected.
func validateResult(result *Result) error {
	if !result.Reverted && len(result.Errors) > 0 {
		return fmt.Errorf("%w: errors reported without revert", ErrMalformedResult)
	}
	for i, leg := range result.Transfers {
		switch leg.Standard {
		case StandardERC20, StandardERC1155, StandardNative:
			if _, ok := leg.AmountBig(); !ok {
				return fmt.Errorf("%w: transfers[%d] amount %q", ErrMalformedResult, i, leg.Amount)
			}
		case StandardERC721:
			if leg.TokenID == "" {
				return fmt.Errorf("%w: transfers[%d] missing tokenId", ErrMalformedResult, i)
			}
		default:
			return fmt.Errorf("%w: transfers[%d] unknown standard %q", ErrMalformedResult, i, leg.Standard)
		}
	}
	return nil
}
