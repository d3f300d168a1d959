// Package insight runs the risk rule evaluators and reduces their
// findings to a single ranked verdict.
//
// The twelve rule categories are evaluated independently and
// concurrently; a rule whose data source fails degrades to zero issues
// for that category instead of failing the analysis. Output ordering is
// deterministic: rule category declaration order, then descending
// severity within a category.
package insight

import (
	"context"
	"log/slog"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/mbd888/txguard/internal/analysis"
	"github.com/mbd888/txguard/internal/decoder"
	"github.com/mbd888/txguard/internal/intel"
)

var ruleFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "txguard",
	Subsystem: "insight",
	Name:      "rule_failures_total",
	Help:      "Rule evaluations that degraded to zero issues by category.",
}, []string{"category"})

func init() {
	prometheus.MustRegister(ruleFailures)
}

// Input is the read-only view of one analysis a rule evaluates against.
type Input struct {
	ChainID       int64
	Domain        string
	Actor         string // acting address, lowercased
	Method        analysis.Method
	Calls         []decoder.DecodedCall
	Message       *analysis.Message
	BalanceChange *analysis.BalanceChange
	Categories    []analysis.TxCategory
	Simulation    *analysis.Simulation
}

// Rule is one independent risk evaluator. Evaluators must not depend on
// each other's output.
type Rule interface {
	Category() analysis.RuleCategory
	Evaluate(ctx context.Context, in *Input) ([]analysis.Issue, error)
}

// Engine holds the rule set in declaration order.
type Engine struct {
	rules  []Rule
	logger *slog.Logger
}

// NewEngine builds the standard twelve-rule engine over the given
// intelligence source.
func NewEngine(src *intel.Source, logger *slog.Logger) *Engine {
	if src == nil {
		src = &intel.Source{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger: logger,
		rules: []Rule{
			&generalRule{},
			&reputationRule{provider: src.Reputation},
			&webDomainsRule{provider: src.Domains},
			&blocklistRule{provider: src.Blocklist},
			&txArgumentsRule{},
			&codeReliabilityRule{provider: src.TokenFacts},
			&governanceRule{provider: src.TokenFacts},
			&scamsRule{provider: src.Domains},
			&distributionRule{provider: src.TokenFacts},
			&tokenSupplyRule{provider: src.TokenFacts},
			&tokenLiquidityRule{provider: src.TokenFacts},
			&complianceRule{provider: src.Blocklist},
		},
	}
}

// Run evaluates every rule concurrently and returns the ordered insight
// set with its verdict.
func (e *Engine) Run(ctx context.Context, in *Input) *analysis.Insights {
	results := make([][]analysis.Issue, len(e.rules))

	g, gctx := errgroup.WithContext(ctx)
	for i, rule := range e.rules {
		g.Go(func() error {
			issues, err := rule.Evaluate(gctx, in)
			if err != nil {
				// Partial insight coverage beats total failure.
				ruleFailures.WithLabelValues(rule.Category().String()).Inc()
				e.logger.Warn("rule evaluation degraded",
					"category", rule.Category().String(), "error", err)
				return nil
			}
			results[i] = issues
			return nil
		})
	}
	_ = g.Wait() // evaluators never return errors; they degrade

	issues := make([]analysis.Issue, 0)
	for i := range e.rules {
		ruleIssues := results[i]
		sort.SliceStable(ruleIssues, func(a, b int) bool {
			return ruleIssues[a].Severity.Code > ruleIssues[b].Severity.Code
		})
		issues = append(issues, ruleIssues...)
	}

	return &analysis.Insights{
		Issues:  issues,
		Verdict: ComputeVerdict(issues),
	}
}

// ComputeVerdict reduces issues to the aggregate severity: the maximum
// issue severity, or NO_ISSUES when there are none. Pure and
// order-independent.
func ComputeVerdict(issues []analysis.Issue) analysis.Severity {
	max := analysis.SeverityNoIssues
	for _, issue := range issues {
		if issue.Severity.Code > max {
			max = issue.Severity.Code
		}
	}
	return analysis.NewSeverity(max)
}

// newIssue builds one finding with its severity pair filled in.
func newIssue(cat analysis.RuleCategory, sev analysis.SeverityCode, short, long string) analysis.Issue {
	return analysis.Issue{
		Description: analysis.IssueDescription{Short: short, Long: long},
		Category:    cat,
		Severity:    analysis.NewSeverity(sev),
	}
}
