// Package balance derives net token movements for the acting address
// from the simulation's value-transfer trace.
package balance

import (
	"context"
	"log/slog"
	"math/big"
	"sort"
	"strings"

	"github.com/mbd888/txguard/internal/analysis"
	"github.com/mbd888/txguard/internal/decoder"
	"github.com/mbd888/txguard/internal/simulation"
)

// MetadataSource supplies ERC-20 symbol/decimals for entity display
// fields. The decoder satisfies it.
type MetadataSource interface {
	TokenMetadata(ctx context.Context, addr string) (string, int, error)
}

// identity is the aggregation key: repeated transfers of the same token
// identity sum into one entity. ERC-721/1155 identities include the
// token id, so individual tokens are never merged by value.
type identity struct {
	standard simulation.TokenStandard
	token    string
	tokenID  string
}

// Extractor computes balance changes from trace legs.
type Extractor struct {
	meta   MetadataSource
	native decoder.NativeAsset
	logger *slog.Logger
}

// New creates an extractor. meta may be nil, in which case ERC-20
// entities carry only raw amounts.
func New(meta MetadataSource, native decoder.NativeAsset, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{meta: meta, native: native, logger: logger}
}

// Extract aggregates per-token net deltas for actor and splits them into
// incoming and outgoing sequences. Identities netting to zero are
// omitted from both.
func (e *Extractor) Extract(ctx context.Context, actor string, legs []simulation.TransferLeg) *analysis.BalanceChange {
	actor = strings.ToLower(actor)
	nets := make(map[identity]*big.Int)

	for _, leg := range legs {
		amount, ok := leg.AmountBig()
		if !ok {
			e.logger.Warn("skipping trace leg with unparseable amount", "amount", leg.Amount)
			continue
		}
		if leg.Standard == simulation.StandardERC721 {
			// Each token id moves as a unit.
			amount = big.NewInt(1)
		}

		id := identity{
			standard: leg.Standard,
			token:    strings.ToLower(leg.Token),
			tokenID:  leg.TokenID,
		}
		if leg.Standard == simulation.StandardNative {
			id.token = ""
		}

		if strings.ToLower(leg.To) == actor {
			addNet(nets, id, amount)
		}
		if strings.ToLower(leg.From) == actor {
			addNet(nets, id, new(big.Int).Neg(amount))
		}
	}

	change := &analysis.BalanceChange{In: []analysis.TokenEntity{}, Out: []analysis.TokenEntity{}}
	for _, id := range sortedIdentities(nets) {
		net := nets[id]
		if net.Sign() == 0 {
			continue
		}
		entity := e.entity(ctx, id, new(big.Int).Abs(net))
		if entity == nil {
			continue
		}
		if net.Sign() > 0 {
			change.In = append(change.In, entity)
		} else {
			change.Out = append(change.Out, entity)
		}
	}
	return change
}

func addNet(nets map[identity]*big.Int, id identity, delta *big.Int) {
	if cur, ok := nets[id]; ok {
		cur.Add(cur, delta)
		return
	}
	nets[id] = new(big.Int).Set(delta)
}

// sortedIdentities fixes the output order so responses are deterministic
// regardless of trace order.
func sortedIdentities(nets map[identity]*big.Int) []identity {
	ids := make([]identity, 0, len(nets))
	for id := range nets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].standard != ids[j].standard {
			return ids[i].standard < ids[j].standard
		}
		if ids[i].token != ids[j].token {
			return ids[i].token < ids[j].token
		}
		return ids[i].tokenID < ids[j].tokenID
	})
	return ids
}

// entity builds the token entity for one aggregated identity.
func (e *Extractor) entity(ctx context.Context, id identity, amount *big.Int) analysis.TokenEntity {
	switch id.standard {
	case simulation.StandardNative:
		return analysis.NewNativeToken(e.native.Name, e.native.Symbol, e.native.Decimals,
			analysis.TokenAmount{
				Value:           amount.String(),
				NormalizedValue: normalize(amount, e.native.Decimals),
			})

	case simulation.StandardERC20:
		token := analysis.ERC20Token{
			AddressEntity: analysis.AddressEntity{Address: id.token, Type: analysis.TypeERC20},
			Amount:        analysis.TokenAmount{Value: amount.String()},
		}
		if e.meta != nil {
			if symbol, decimals, err := e.meta.TokenMetadata(ctx, id.token); err == nil {
				token.Symbol = symbol
				token.Decimals = &decimals
				token.Amount.NormalizedValue = normalize(amount, decimals)
			}
		}
		return token

	case simulation.StandardERC721, simulation.StandardERC1155:
		// The wire contract has no fungible 1155 entity; 1155 movements
		// surface in the id-keyed shape with their own type tag.
		entityType := analysis.TypeERC721
		if id.standard == simulation.StandardERC1155 {
			entityType = analysis.TypeERC1155
		}
		token := analysis.ERC721Token{
			AddressEntity: analysis.AddressEntity{Address: id.token, Type: entityType},
			TokenID:       id.tokenID,
		}
		if e.meta != nil {
			if symbol, _, err := e.meta.TokenMetadata(ctx, id.token); err == nil {
				token.Symbol = symbol
			}
		}
		return token
	}
	return nil
}

func normalize(amount *big.Int, decimals int) string {
	if decimals <= 0 {
		return amount.String()
	}
	s := new(big.Int).Abs(amount).String()
	for len(s) <= decimals {
		s = "0" + s
	}
	point := len(s) - decimals
	out := strings.TrimRight(s[:point]+"."+s[point:], "0")
	out = strings.TrimSuffix(out, ".")
	if out == "" {
		out = "0"
	}
	return out
}
