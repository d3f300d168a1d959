// Package intel defines the read-only external data collaborators the
// insight rules query: address reputation, blocklists, domain trust, and
// token facts.
//
// Each provider is independently owned and queried per request; the
// pipeline never caches or mutates this data. A provider error degrades
// the rule that needed it, never the whole analysis.
package intel

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a provider has no record for the key.
// Rules treat it as "nothing known", not as a failure.
var ErrNotFound = errors.New("intel: not found")

// Reputation is the known standing of an address. Score ranges 0-100.
type Reputation struct {
	Address string  `json:"address"`
	Score   float64 `json:"score"`
	Label   string  `json:"label,omitempty"`
}

// DomainTrust is the standing of an origin domain.
type DomainTrust struct {
	Domain    string `json:"domain"`
	Trusted   bool   `json:"trusted"`
	KnownScam bool   `json:"knownScam"`
}

// TokenFacts is market and governance data about a token contract.
type TokenFacts struct {
	Address             string  `json:"address"`
	TopHolderShare      float64 `json:"topHolderShare"`      // fraction held by top holders, 0-1
	LiquidityUSD        float64 `json:"liquidityUsd"`        // pooled liquidity
	UnlockedSupplyShare float64 `json:"unlockedSupplyShare"` // mintable/unlocked fraction, 0-1
	OwnerCanPause       bool    `json:"ownerCanPause"`
	SourceVerified      bool    `json:"sourceVerified"`
}

// ReputationProvider resolves address reputation.
type ReputationProvider interface {
	Reputation(ctx context.Context, address string) (*Reputation, error)
}

// BlocklistProvider answers membership queries against the global
// address blocklist and the sanctions list.
type BlocklistProvider interface {
	IsBlocked(ctx context.Context, address string) (bool, error)
	IsSanctioned(ctx context.Context, address string) (bool, error)
}

// DomainProvider resolves origin-domain trust.
type DomainProvider interface {
	DomainTrust(ctx context.Context, domain string) (*DomainTrust, error)
}

// TokenFactsProvider resolves token market/governance facts.
type TokenFactsProvider interface {
	TokenFacts(ctx context.Context, address string) (*TokenFacts, error)
}

// NameProvider resolves display names for addresses.
type NameProvider interface {
	Name(ctx context.Context, address string) (string, error)
}

// Source bundles every provider the rule engine needs. Individual fields
// may be nil; rules degrade to zero issues for data they cannot reach.
type Source struct {
	Reputation ReputationProvider
	Blocklist  BlocklistProvider
	Domains    DomainProvider
	TokenFacts TokenFactsProvider
	Names      NameProvider
}
