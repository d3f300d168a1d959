package simulation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/txguard/internal/analysis"
)

func TestHTTPBackend_Submit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var req submitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(1), req.ChainID)
		assert.Equal(t, "latest", req.Block)
		require.Len(t, req.Calls, 1)

		json.NewEncoder(w).Encode(Result{
			SimulationID: "sim_http",
			Transfers: []TransferLeg{{
				Standard: StandardERC20,
				Token:    "0x3333333333333333333333333333333333333333",
				From:     "0x1111111111111111111111111111111111111111",
				To:       "0x2222222222222222222222222222222222222222",
				Amount:   "500",
			}},
		})
	}))
	defer srv.Close()

	backend := NewHTTPBackend(srv.URL, time.Second)
	result, err := backend.Submit(context.Background(), 1, "latest", []analysis.CallParams{{
		From: "0x1111111111111111111111111111111111111111",
		To:   "0x2222222222222222222222222222222222222222",
	}})
	require.NoError(t, err)
	assert.Equal(t, "sim_http", result.SimulationID)
	require.Len(t, result.Transfers, 1)
}

func TestHTTPBackend_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	backend := NewHTTPBackend(srv.URL, time.Second)
	_, err := backend.Submit(context.Background(), 1, "latest", nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMalformedResult))
}

func TestHTTPBackend_BadJSONIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	backend := NewHTTPBackend(srv.URL, time.Second)
	_, err := backend.Submit(context.Background(), 1, "latest", nil)
	assert.ErrorIs(t, err, ErrMalformedResult)
}

func TestValidateResult(t *testing.T) {
	tests := []struct {
		name      string
		result    Result
		malformed bool
	}{
		{
			name:   "clean success",
			result: Result{SimulationID: "s"},
		},
		{
			name:   "revert with errors",
			result: Result{Reverted: true, Errors: []string{"out of gas"}},
		},
		{
			name:      "errors without revert",
			result:    Result{Errors: []string{"out of gas"}},
			malformed: true,
		},
		{
			name: "erc20 leg with bad amount",
			result: Result{Transfers: []TransferLeg{
				{Standard: StandardERC20, Token: "0xabc", Amount: "1e18"},
			}},
			malformed: true,
		},
		{
			name: "erc721 leg without token id",
			result: Result{Transfers: []TransferLeg{
				{Standard: StandardERC721, Token: "0xabc"},
			}},
			malformed: true,
		},
		{
			name: "unknown standard",
			result: Result{Transfers: []TransferLeg{
				{Standard: "erc777", Token: "0xabc", Amount: "1"},
			}},
			malformed: true,
		},
		{
			name: "valid mixed trace",
			result: Result{Transfers: []TransferLeg{
				{Standard: StandardNative, Amount: "100"},
				{Standard: StandardERC721, Token: "0xabc", TokenID: "7"},
				{Standard: StandardERC1155, Token: "0xdef", TokenID: "1", Amount: "3"},
			}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateResult(&tc.result)
			if tc.malformed {
				assert.ErrorIs(t, err, ErrMalformedResult)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
