package insight

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/mbd888/txguard/internal/analysis"
	"github.com/mbd888/txguard/internal/decoder"
	"github.com/mbd888/txguard/internal/intel"
)

// unlimitedThreshold flags approval amounts of 2^255 and above; wallets
// encode "unlimited" as max uint256 but truncated variants circulate.
var unlimitedThreshold = new(big.Int).Lsh(big.NewInt(1), 255)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// ---------------------------------------------------------------------------
// GENERAL
// ---------------------------------------------------------------------------

type generalRule struct{}

func (r *generalRule) Category() analysis.RuleCategory { return analysis.RuleGeneral }

func (r *generalRule) Evaluate(_ context.Context, in *Input) ([]analysis.Issue, error) {
	if in.Simulation == nil || in.Simulation.Status == nil || !in.Simulation.Status.IsReverted {
		return nil, nil
	}
	detail := "The transaction reverts when executed against the current chain state."
	if len(in.Simulation.Status.Errors) > 0 {
		detail = fmt.Sprintf("The transaction reverts when executed: %s.",
			strings.Join(in.Simulation.Status.Errors, "; "))
	}
	return []analysis.Issue{newIssue(r.Category(), analysis.SeverityMedium,
		"Transaction reverts in simulation", detail)}, nil
}

// ---------------------------------------------------------------------------
// REPUTATION
// ---------------------------------------------------------------------------

type reputationRule struct {
	provider intel.ReputationProvider
}

func (r *reputationRule) Category() analysis.RuleCategory { return analysis.RuleReputation }

func (r *reputationRule) Evaluate(ctx context.Context, in *Input) ([]analysis.Issue, error) {
	if r.provider == nil {
		return nil, nil
	}
	var issues []analysis.Issue
	for _, addr := range counterparties(in) {
		rep, err := r.provider.Reputation(ctx, addr)
		if errors.Is(err, intel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		switch {
		case rep.Score < 20:
			issues = append(issues, newIssue(r.Category(), analysis.SeverityHigh,
				"Counterparty has very poor reputation",
				fmt.Sprintf("Address %s has a reputation score of %.0f out of 100.", addr, rep.Score)))
		case rep.Score < 40:
			issues = append(issues, newIssue(r.Category(), analysis.SeverityMedium,
				"Counterparty has low reputation",
				fmt.Sprintf("Address %s has a reputation score of %.0f out of 100.", addr, rep.Score)))
		}
	}
	return issues, nil
}

// ---------------------------------------------------------------------------
// WEB_DOMAINS
// ---------------------------------------------------------------------------

type webDomainsRule struct {
	provider intel.DomainProvider
}

func (r *webDomainsRule) Category() analysis.RuleCategory { return analysis.RuleWebDomains }

func (r *webDomainsRule) Evaluate(ctx context.Context, in *Input) ([]analysis.Issue, error) {
	var issues []analysis.Issue

	if strings.HasPrefix(in.Domain, "xn--") || strings.Contains(in.Domain, ".xn--") {
		issues = append(issues, newIssue(r.Category(), analysis.SeverityHigh,
			"Origin uses a punycode domain",
			fmt.Sprintf("The domain %q uses punycode encoding, a common lookalike technique.", in.Domain)))
	}

	if r.provider == nil {
		return issues, nil
	}
	trust, err := r.provider.DomainTrust(ctx, in.Domain)
	if errors.Is(err, intel.ErrNotFound) {
		issues = append(issues, newIssue(r.Category(), analysis.SeverityLow,
			"Origin domain has no established history",
			fmt.Sprintf("The domain %q is not present in the domain intelligence set.", in.Domain)))
		return issues, nil
	}
	if err != nil {
		return nil, err
	}
	if !trust.Trusted && !trust.KnownScam {
		issues = append(issues, newIssue(r.Category(), analysis.SeverityMedium,
			"Origin domain is not trusted",
			fmt.Sprintf("The domain %q is known but has not earned trusted status.", in.Domain)))
	}
	return issues, nil
}

// ---------------------------------------------------------------------------
// GLOBAL_BLOCKLIST
// ---------------------------------------------------------------------------

type blocklistRule struct {
	provider intel.BlocklistProvider
}

func (r *blocklistRule) Category() analysis.RuleCategory { return analysis.RuleGlobalBlocklist }

func (r *blocklistRule) Evaluate(ctx context.Context, in *Input) ([]analysis.Issue, error) {
	if r.provider == nil {
		return nil, nil
	}
	var issues []analysis.Issue
	for _, addr := range counterparties(in) {
		blocked, err := r.provider.IsBlocked(ctx, addr)
		if err != nil {
			return nil, err
		}
		if blocked {
			issues = append(issues, newIssue(r.Category(), analysis.SeverityCritical,
				"Counterparty is on the global blocklist",
				fmt.Sprintf("Address %s appears on the global blocklist of malicious addresses.", addr)))
		}
	}
	return issues, nil
}

// ---------------------------------------------------------------------------
// TRANSACTION_ARGUMENTS
// ---------------------------------------------------------------------------

type txArgumentsRule struct{}

func (r *txArgumentsRule) Category() analysis.RuleCategory {
	return analysis.RuleTransactionArguments
}

func (r *txArgumentsRule) Evaluate(_ context.Context, in *Input) ([]analysis.Issue, error) {
	var issues []analysis.Issue
	for _, call := range in.Calls {
		switch call.Method {
		case "approve":
			if amount, ok := argBig(call, 1); ok && amount.Cmp(unlimitedThreshold) >= 0 {
				issues = append(issues, newIssue(r.Category(), analysis.SeverityHigh,
					"Unlimited token approval",
					fmt.Sprintf("The approval to %s grants an effectively unlimited allowance.", argAddr(call, 0))))
			}
			if spender := argAddr(call, 0); spender != "" && isEOA(in, spender) {
				issues = append(issues, newIssue(r.Category(), analysis.SeverityHigh,
					"Approval spender is a personal account",
					fmt.Sprintf("The spender %s is an externally-owned account, not a contract.", spender)))
			}
		case "setApprovalForAll":
			if enabled, ok := argBool(call, 1); ok && enabled {
				issues = append(issues, newIssue(r.Category(), analysis.SeverityHigh,
					"Operator granted control of entire collection",
					fmt.Sprintf("The operator %s gains transfer rights over every token in the collection.", argAddr(call, 0))))
			}
		case "transfer", "transferFrom":
			recipientIdx := 0
			if call.Method == "transferFrom" {
				recipientIdx = 1
			}
			if argAddr(call, recipientIdx) == zeroAddress {
				issues = append(issues, newIssue(r.Category(), analysis.SeverityMedium,
					"Transfer to the zero address",
					"Tokens sent to the zero address are permanently destroyed."))
			}
		}
	}
	return issues, nil
}

// ---------------------------------------------------------------------------
// CODE_RELIABILITY
// ---------------------------------------------------------------------------

type codeReliabilityRule struct {
	provider intel.TokenFactsProvider
}

func (r *codeReliabilityRule) Category() analysis.RuleCategory {
	return analysis.RuleCodeReliability
}

func (r *codeReliabilityRule) Evaluate(ctx context.Context, in *Input) ([]analysis.Issue, error) {
	var issues []analysis.Issue
	for _, call := range in.Calls {
		if call.HasData() && call.TargetType == analysis.TypeEOA {
			issues = append(issues, newIssue(r.Category(), analysis.SeverityMedium,
				"Call data sent to an account with no code",
				fmt.Sprintf("The target %s is a personal account; the call data will be ignored.", call.To)))
		}
	}
	if r.provider == nil {
		return issues, nil
	}
	for _, token := range touchedTokens(in) {
		facts, err := r.provider.TokenFacts(ctx, token)
		if errors.Is(err, intel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !facts.SourceVerified {
			issues = append(issues, newIssue(r.Category(), analysis.SeverityMedium,
				"Token contract source is unverified",
				fmt.Sprintf("The source code of token %s has not been published for review.", token)))
		}
	}
	return issues, nil
}

// ---------------------------------------------------------------------------
// GOVERNANCE
// ---------------------------------------------------------------------------

type governanceRule struct {
	provider intel.TokenFactsProvider
}

func (r *governanceRule) Category() analysis.RuleCategory { return analysis.RuleGovernance }

func (r *governanceRule) Evaluate(ctx context.Context, in *Input) ([]analysis.Issue, error) {
	if r.provider == nil {
		return nil, nil
	}
	var issues []analysis.Issue
	for _, token := range touchedTokens(in) {
		facts, err := r.provider.TokenFacts(ctx, token)
		if errors.Is(err, intel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if facts.OwnerCanPause {
			issues = append(issues, newIssue(r.Category(), analysis.SeverityMedium,
				"Token owner can freeze transfers",
				fmt.Sprintf("The owner of token %s can pause transfers at any time.", token)))
		}
	}
	return issues, nil
}

// ---------------------------------------------------------------------------
// SCAMS
// ---------------------------------------------------------------------------

type scamsRule struct {
	provider intel.DomainProvider
}

func (r *scamsRule) Category() analysis.RuleCategory { return analysis.RuleScams }

func (r *scamsRule) Evaluate(ctx context.Context, in *Input) ([]analysis.Issue, error) {
	if r.provider == nil {
		return nil, nil
	}
	trust, err := r.provider.DomainTrust(ctx, in.Domain)
	if errors.Is(err, intel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if trust.KnownScam {
		return []analysis.Issue{newIssue(r.Category(), analysis.SeverityCritical,
			"Origin domain is a known scam",
			fmt.Sprintf("The domain %q has been reported as a scam site.", in.Domain))}, nil
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// DISTRIBUTION_OF_HOLDINGS
// ---------------------------------------------------------------------------

type distributionRule struct {
	provider intel.TokenFactsProvider
}

func (r *distributionRule) Category() analysis.RuleCategory {
	return analysis.RuleDistributionOfHoldings
}

func (r *distributionRule) Evaluate(ctx context.Context, in *Input) ([]analysis.Issue, error) {
	if r.provider == nil {
		return nil, nil
	}
	var issues []analysis.Issue
	for _, token := range incomingTokens(in) {
		facts, err := r.provider.TokenFacts(ctx, token)
		if errors.Is(err, intel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if facts.TopHolderShare > 0.8 {
			issues = append(issues, newIssue(r.Category(), analysis.SeverityMedium,
				"Token holdings are highly concentrated",
				fmt.Sprintf("The top holders control %.0f%% of token %s.", facts.TopHolderShare*100, token)))
		}
	}
	return issues, nil
}

// ---------------------------------------------------------------------------
// TOKEN_SUPPLY
// ---------------------------------------------------------------------------

type tokenSupplyRule struct {
	provider intel.TokenFactsProvider
}

func (r *tokenSupplyRule) Category() analysis.RuleCategory { return analysis.RuleTokenSupply }

func (r *tokenSupplyRule) Evaluate(ctx context.Context, in *Input) ([]analysis.Issue, error) {
	if r.provider == nil {
		return nil, nil
	}
	var issues []analysis.Issue
	for _, token := range incomingTokens(in) {
		facts, err := r.provider.TokenFacts(ctx, token)
		if errors.Is(err, intel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if facts.UnlockedSupplyShare > 0.5 {
			issues = append(issues, newIssue(r.Category(), analysis.SeverityLow,
				"Large share of token supply is unlocked",
				fmt.Sprintf("%.0f%% of the supply of token %s can enter circulation at any time.",
					facts.UnlockedSupplyShare*100, token)))
		}
	}
	return issues, nil
}

// ---------------------------------------------------------------------------
// TOKEN_LIQUIDITY
// ---------------------------------------------------------------------------

type tokenLiquidityRule struct {
	provider intel.TokenFactsProvider
}

func (r *tokenLiquidityRule) Category() analysis.RuleCategory { return analysis.RuleTokenLiquidity }

func (r *tokenLiquidityRule) Evaluate(ctx context.Context, in *Input) ([]analysis.Issue, error) {
	if r.provider == nil {
		return nil, nil
	}
	var issues []analysis.Issue
	for _, token := range incomingTokens(in) {
		facts, err := r.provider.TokenFacts(ctx, token)
		if errors.Is(err, intel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		switch {
		case facts.LiquidityUSD < 1_000:
			issues = append(issues, newIssue(r.Category(), analysis.SeverityHigh,
				"Token has almost no liquidity",
				fmt.Sprintf("Token %s has under $1,000 of pooled liquidity and may be unsellable.", token)))
		case facts.LiquidityUSD < 10_000:
			issues = append(issues, newIssue(r.Category(), analysis.SeverityMedium,
				"Token liquidity is very thin",
				fmt.Sprintf("Token %s has under $10,000 of pooled liquidity.", token)))
		}
	}
	return issues, nil
}

// ---------------------------------------------------------------------------
// COMPLIANCE
// ---------------------------------------------------------------------------

type complianceRule struct {
	provider intel.BlocklistProvider
}

func (r *complianceRule) Category() analysis.RuleCategory { return analysis.RuleCompliance }

func (r *complianceRule) Evaluate(ctx context.Context, in *Input) ([]analysis.Issue, error) {
	if r.provider == nil {
		return nil, nil
	}
	var issues []analysis.Issue
	for _, addr := range counterparties(in) {
		sanctioned, err := r.provider.IsSanctioned(ctx, addr)
		if err != nil {
			return nil, err
		}
		if sanctioned {
			issues = append(issues, newIssue(r.Category(), analysis.SeverityCritical,
				"Counterparty is sanctioned",
				fmt.Sprintf("Address %s appears on a sanctions list; interacting with it may be illegal.", addr)))
		}
	}
	return issues, nil
}

// ---------------------------------------------------------------------------
// Shared input accessors
// ---------------------------------------------------------------------------

// counterparties lists every distinct non-actor address a call touches:
// targets, transfer recipients, and approval spenders/operators.
func counterparties(in *Input) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(addr string) {
		addr = strings.ToLower(addr)
		if addr == "" || addr == in.Actor || seen[addr] {
			return
		}
		seen[addr] = true
		out = append(out, addr)
	}
	for _, call := range in.Calls {
		add(call.To)
		switch call.Method {
		case "transfer", "approve", "setApprovalForAll":
			add(argAddr(call, 0))
		case "transferFrom", "safeTransferFrom", "safeBatchTransferFrom":
			add(argAddr(call, 1))
		}
	}
	return out
}

// touchedTokens lists token contracts involved in any direction: call
// targets that resolved to token standards plus balance-change entities.
func touchedTokens(in *Input) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(addr string) {
		addr = strings.ToLower(addr)
		if addr == "" || seen[addr] {
			return
		}
		seen[addr] = true
		out = append(out, addr)
	}
	for _, call := range in.Calls {
		switch call.TargetType {
		case analysis.TypeERC20, analysis.TypeERC721, analysis.TypeERC1155:
			add(call.To)
		}
	}
	for _, token := range incomingTokens(in) {
		add(token)
	}
	return out
}

// incomingTokens lists token contract addresses the actor receives.
func incomingTokens(in *Input) []string {
	if in.BalanceChange == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, entity := range in.BalanceChange.In {
		var addr string
		switch e := entity.(type) {
		case analysis.ERC20Token:
			addr = e.Address
		case analysis.ERC721Token:
			addr = e.Address
		}
		addr = strings.ToLower(addr)
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}

// isEOA reports whether addr resolved to a personal account in any call.
func isEOA(in *Input, addr string) bool {
	addr = strings.ToLower(addr)
	for _, call := range in.Calls {
		if call.To == addr {
			return call.TargetType == analysis.TypeEOA
		}
	}
	return false
}

func argAddr(call decoder.DecodedCall, i int) string {
	if i >= len(call.Args) {
		return ""
	}
	if addr, ok := call.Args[i].(interface{ Hex() string }); ok {
		return strings.ToLower(addr.Hex())
	}
	if s, ok := call.Args[i].(string); ok {
		return strings.ToLower(s)
	}
	return ""
}

func argBig(call decoder.DecodedCall, i int) (*big.Int, bool) {
	if i >= len(call.Args) {
		return nil, false
	}
	v, ok := call.Args[i].(*big.Int)
	return v, ok
}

func argBool(call decoder.DecodedCall, i int) (bool, bool) {
	if i >= len(call.Args) {
		return false, false
	}
	v, ok := call.Args[i].(bool)
	return v, ok
}
