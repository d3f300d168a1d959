package intel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// PostgresStore reads intelligence data from PostgreSQL tables owned by
// the data team's ingestion jobs. The service only ever SELECTs; the
// schema is provisioned out of band (see cmd/migrate).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a read-only PostgreSQL intelligence store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Reputation(ctx context.Context, address string) (*Reputation, error) {
	var r Reputation
	err := s.db.QueryRowContext(ctx, `
		SELECT address, score, COALESCE(label, '')
		FROM address_reputation
		WHERE address = $1
	`, strings.ToLower(address)).Scan(&r.Address, &r.Score, &r.Label)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("intel: reputation lookup: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) IsBlocked(ctx context.Context, address string) (bool, error) {
	return s.listMember(ctx, "address_blocklist", address)
}

func (s *PostgresStore) IsSanctioned(ctx context.Context, address string) (bool, error) {
	return s.listMember(ctx, "sanctioned_addresses", address)
}

func (s *PostgresStore) listMember(ctx context.Context, table, address string) (bool, error) {
	var exists bool
	// table is one of two compile-time constants, never caller input.
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE address = $1)`, table)
	if err := s.db.QueryRowContext(ctx, query, strings.ToLower(address)).Scan(&exists); err != nil {
		return false, fmt.Errorf("intel: %s lookup: %w", table, err)
	}
	return exists, nil
}

func (s *PostgresStore) DomainTrust(ctx context.Context, domain string) (*DomainTrust, error) {
	var t DomainTrust
	err := s.db.QueryRowContext(ctx, `
		SELECT domain, trusted, known_scam
		FROM domain_trust
		WHERE domain = $1
	`, strings.ToLower(domain)).Scan(&t.Domain, &t.Trusted, &t.KnownScam)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("intel: domain lookup: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) TokenFacts(ctx context.Context, address string) (*TokenFacts, error) {
	var f TokenFacts
	err := s.db.QueryRowContext(ctx, `
		SELECT address, top_holder_share, liquidity_usd,
		       unlocked_supply_share, owner_can_pause, source_verified
		FROM token_facts
		WHERE address = $1
	`, strings.ToLower(address)).Scan(
		&f.Address, &f.TopHolderShare, &f.LiquidityUSD,
		&f.UnlockedSupplyShare, &f.OwnerCanPause, &f.SourceVerified,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("intel: token facts lookup: %w", err)
	}
	return &f, nil
}

func (s *PostgresStore) Name(ctx context.Context, address string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `
		SELECT name FROM address_names WHERE address = $1
	`, strings.ToLower(address)).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("intel: name lookup: %w", err)
	}
	return name, nil
}

// AsSource bundles the store as every provider.
func (s *PostgresStore) AsSource() *Source {
	return &Source{
		Reputation: s,
		Blocklist:  s,
		Domains:    s,
		TokenFacts: s,
		Names:      s,
	}
}
