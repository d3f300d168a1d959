// Package analysis defines the wire contract for wallet interaction risk
// analysis: severity codes, rule and transaction categories, token and
// address entities, the request/response envelopes, and the fixed error
// code enumeration.
//
// Everything here is an immutable value record produced once per request
// and passed down the pipeline. Numeric codes and string tags are part of
// the external contract and must not be renumbered.
package analysis

// SeverityCode is an ordered risk level. Higher is worse.
type SeverityCode int

const (
	SeverityNoIssues SeverityCode = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// severityLabels pairs each code with its display label.
var severityLabels = map[SeverityCode]string{
	SeverityNoIssues: "NO_ISSUES",
	SeverityLow:      "LOW",
	SeverityMedium:   "MEDIUM",
	SeverityHigh:     "HIGH",
	SeverityCritical: "CRITICAL",
}

// Severity is a code/label pair as it appears on the wire.
type Severity struct {
	Code  SeverityCode `json:"code"`
	Label string       `json:"label"`
}

// NewSeverity builds the Severity pair for a code. Unknown codes map to
// NO_ISSUES rather than inventing a label.
func NewSeverity(code SeverityCode) Severity {
	label, ok := severityLabels[code]
	if !ok {
		return Severity{Code: SeverityNoIssues, Label: severityLabels[SeverityNoIssues]}
	}
	return Severity{Code: code, Label: label}
}

// RuleCategory is one of the twelve fixed risk-domain buckets an issue
// belongs to. The numeric value is the declaration order used for
// deterministic output ordering.
type RuleCategory int

const (
	RuleGeneral RuleCategory = iota
	RuleReputation
	RuleWebDomains
	RuleGlobalBlocklist
	RuleTransactionArguments
	RuleCodeReliability
	RuleGovernance
	RuleScams
	RuleDistributionOfHoldings
	RuleTokenSupply
	RuleTokenLiquidity
	RuleCompliance
)

var ruleCategoryNames = [...]string{
	"GENERAL",
	"REPUTATION",
	"WEB_DOMAINS",
	"GLOBAL_BLOCKLIST",
	"TRANSACTION_ARGUMENTS",
	"CODE_RELIABILITY",
	"GOVERNANCE",
	"SCAMS",
	"DISTRIBUTION_OF_HOLDINGS",
	"TOKEN_SUPPLY",
	"TOKEN_LIQUIDITY",
	"COMPLIANCE",
}

// String returns the wire name for the category.
func (c RuleCategory) String() string {
	if c < 0 || int(c) >= len(ruleCategoryNames) {
		return "GENERAL"
	}
	return ruleCategoryNames[c]
}

// MarshalJSON serializes the category as its string name, which is how
// issues carry it on the wire.
func (c RuleCategory) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// RuleCategories returns all rule categories in declaration order.
func RuleCategories() []RuleCategory {
	out := make([]RuleCategory, len(ruleCategoryNames))
	for i := range ruleCategoryNames {
		out[i] = RuleCategory(i)
	}
	return out
}

// TxCategory is one of the eight fixed tags describing the shape of a
// decoded transaction. A transaction carries a set of these, never a
// single value.
type TxCategory string

const (
	CategoryERC20Transfer         TxCategory = "ERC20_TRANSFER"
	CategoryERC20Approval         TxCategory = "ERC20_APPROVAL"
	CategoryERC1155ApprovalForAll TxCategory = "ERC1155_APPROVAL_FOR_ALL"
	CategoryERC1155Transfer       TxCategory = "ERC1155_TRANSFER"
	CategoryERC721ApprovalForAll  TxCategory = "ERC721_APPROVAL_FOR_ALL"
	CategoryERC721Approval        TxCategory = "ERC721_APPROVAL"
	CategoryERC721Transfer        TxCategory = "ERC721_TRANSFER"
	CategoryNativeAssetTransfer   TxCategory = "NATIVE_ASSET_TRANSFER"
)

// MessageSignCategory classifies a decoded signing request.
type MessageSignCategory string

const (
	MessageEIP712        MessageSignCategory = "EIP712"
	MessageArbitrarySign MessageSignCategory = "ARBITRARY_SIGN"
)

// Method is a supported wallet RPC method.
type Method string

const (
	MethodPersonalSign    Method = "personal_sign"
	MethodEthSign         Method = "eth_sign"
	MethodSignTypedData   Method = "eth_signTypedData"
	MethodSignTypedDataV1 Method = "eth_signTypedData_v1"
	MethodSignTypedDataV3 Method = "eth_signTypedData_v3"
	MethodSignTypedDataV4 Method = "eth_signTypedData_v4"
	MethodSendTransaction Method = "eth_sendTransaction"
)

// IsTransaction reports whether the method submits a transaction (as
// opposed to signing a message).
func (m Method) IsTransaction() bool { return m == MethodSendTransaction }

// IsTypedData reports whether the method signs EIP-712 typed data.
func (m Method) IsTypedData() bool {
	switch m {
	case MethodSignTypedData, MethodSignTypedDataV1, MethodSignTypedDataV3, MethodSignTypedDataV4:
		return true
	}
	return false
}

// Supported reports whether the method is part of the contract at all.
func (m Method) Supported() bool {
	switch m {
	case MethodPersonalSign, MethodEthSign, MethodSignTypedData, MethodSignTypedDataV1,
		MethodSignTypedDataV3, MethodSignTypedDataV4, MethodSendTransaction:
		return true
	}
	return false
}
