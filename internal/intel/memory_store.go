package intel

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-memory implementation of every provider, for
// demo/test use and for deployments without an intelligence database.
type MemoryStore struct {
	mu          sync.RWMutex
	reputations map[string]Reputation
	blocked     map[string]bool
	sanctioned  map[string]bool
	domains     map[string]DomainTrust
	tokenFacts  map[string]TokenFacts
	names       map[string]string
}

// NewMemoryStore creates an empty in-memory intelligence store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reputations: make(map[string]Reputation),
		blocked:     make(map[string]bool),
		sanctioned:  make(map[string]bool),
		domains:     make(map[string]DomainTrust),
		tokenFacts:  make(map[string]TokenFacts),
		names:       make(map[string]string),
	}
}

// Seed methods load fixture data. They exist for tests and demo mode;
// the analysis pipeline itself never writes.

func (s *MemoryStore) SeedReputation(r Reputation) {
	s.mu.Lock()
	s.reputations[strings.ToLower(r.Address)] = r
	s.mu.Unlock()
}

func (s *MemoryStore) SeedBlocked(address string) {
	s.mu.Lock()
	s.blocked[strings.ToLower(address)] = true
	s.mu.Unlock()
}

func (s *MemoryStore) SeedSanctioned(address string) {
	s.mu.Lock()
	s.sanctioned[strings.ToLower(address)] = true
	s.mu.Unlock()
}

func (s *MemoryStore) SeedDomain(t DomainTrust) {
	s.mu.Lock()
	s.domains[strings.ToLower(t.Domain)] = t
	s.mu.Unlock()
}

func (s *MemoryStore) SeedTokenFacts(f TokenFacts) {
	s.mu.Lock()
	s.tokenFacts[strings.ToLower(f.Address)] = f
	s.mu.Unlock()
}

func (s *MemoryStore) SeedName(address, name string) {
	s.mu.Lock()
	s.names[strings.ToLower(address)] = name
	s.mu.Unlock()
}

func (s *MemoryStore) Reputation(_ context.Context, address string) (*Reputation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reputations[strings.ToLower(address)]
	if !ok {
		return nil, ErrNotFound
	}
	out := r
	return &out, nil
}

func (s *MemoryStore) IsBlocked(_ context.Context, address string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocked[strings.ToLower(address)], nil
}

func (s *MemoryStore) IsSanctioned(_ context.Context, address string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sanctioned[strings.ToLower(address)], nil
}

func (s *MemoryStore) DomainTrust(_ context.Context, domain string) (*DomainTrust, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.domains[strings.ToLower(domain)]
	if !ok {
		return nil, ErrNotFound
	}
	out := t
	return &out, nil
}

func (s *MemoryStore) TokenFacts(_ context.Context, address string) (*TokenFacts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.tokenFacts[strings.ToLower(address)]
	if !ok {
		return nil, ErrNotFound
	}
	out := f
	return &out, nil
}

func (s *MemoryStore) Name(_ context.Context, address string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.names[strings.ToLower(address)]
	if !ok {
		return "", ErrNotFound
	}
	return name, nil
}

// AsSource bundles the store as every provider.
func (s *MemoryStore) AsSource() *Source {
	return &Source{
		Reputation: s,
		Blocklist:  s,
		Domains:    s,
		TokenFacts: s,
		Names:      s,
	}
}
