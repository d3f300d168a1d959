// Package decoder resolves the addresses referenced by a validated
// request and decodes its call data (or signed payload) into the
// structured transaction or message description.
//
// Decoding is best-effort: an unrecognized call leaves the transaction
// description absent but never blocks categorization or balance-change
// analysis, which work from the simulation trace.
package decoder

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gocache "github.com/patrickmn/go-cache"

	"github.com/mbd888/txguard/internal/analysis"
)

// ChainReader is the read-only chain collaborator used for address and
// token introspection. *ethclient.Client satisfies it.
type ChainReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// NameProvider supplies optional display names for addresses. A missing
// name is never an error worth surfacing; the name is simply omitted.
type NameProvider interface {
	Name(ctx context.Context, address string) (string, error)
}

// NativeAsset describes the chain's native asset. All fields are
// required: the native token entity has no optional metadata.
type NativeAsset struct {
	Name     string
	Symbol   string
	Decimals int
}

// knownABI covers the transfer and approval families across ERC-20,
// ERC-721, and ERC-1155. Overloaded safeTransferFrom variants are
// disambiguated by selector.
const knownABI = `[
	{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}]},
	{"name":"approve","type":"function","inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}]},
	{"name":"transferFrom","type":"function","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}]},
	{"name":"setApprovalForAll","type":"function","inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}]},
	{"name":"safeTransferFrom","type":"function","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}]},
	{"name":"safeTransferFrom","type":"function","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"id","type":"uint256"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}]},
	{"name":"safeBatchTransferFrom","type":"function","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"ids","type":"uint256[]"},{"name":"values","type":"uint256[]"},{"name":"data","type":"bytes"}]}
]`

// methodDescriptions is the human text shown next to a decoded method.
var methodDescriptions = map[string]string{
	"transfer":              "Transfer tokens to a recipient",
	"approve":               "Allow a spender to transfer tokens on your behalf",
	"transferFrom":          "Transfer tokens from one address to another",
	"setApprovalForAll":     "Allow an operator to manage your entire collection",
	"safeTransferFrom":      "Transfer a token to a recipient",
	"safeBatchTransferFrom": "Transfer multiple tokens to a recipient",
}

// DecodedCall is the decoder's view of one call parameter set, consumed
// by the categorizer and the rule evaluators.
type DecodedCall struct {
	Index      int
	From       string
	To         string
	Value      *big.Int
	Selector   string // 4-byte selector hex, empty when no call data
	Method     string // resolved method name, empty when unrecognized
	SigText    string // canonical signature text
	Args       []any
	TargetType analysis.AddressType
}

// HasData reports whether the call carries a contract payload.
func (c DecodedCall) HasData() bool { return c.Selector != "" }

// Decoder resolves addresses and decodes calls. Contract-type and token
// metadata lookups are cached with a TTL since contract code is
// effectively immutable on the timescale of a wallet prompt.
type Decoder struct {
	reader ChainReader
	names  NameProvider
	native NativeAsset
	abi    abi.ABI
	cache  *gocache.Cache
	logger *slog.Logger
}

// New creates a decoder. names may be nil.
func New(reader ChainReader, names NameProvider, native NativeAsset, logger *slog.Logger) (*Decoder, error) {
	parsed, err := abi.JSON(strings.NewReader(knownABI))
	if err != nil {
		return nil, fmt.Errorf("decoder: parse known ABI: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{
		reader: reader,
		names:  names,
		native: native,
		abi:    parsed,
		cache:  gocache.New(10*time.Minute, 30*time.Minute),
		logger: logger,
	}, nil
}

// DecodeTransaction decodes every call parameter set. The returned
// transaction description is nil when no call decodes against a known
// ABI shape; the decoded call list is always complete so downstream
// stages can keep working from the trace.
func (d *Decoder) DecodeTransaction(ctx context.Context, req *analysis.ValidatedRequest) (*analysis.Transaction, []DecodedCall) {
	calls := make([]DecodedCall, 0, len(req.Calls))
	metadata := make(map[string]analysis.TxMetadata)
	decodedAny := false

	for i, params := range req.Calls {
		call := d.decodeCall(ctx, i, params)
		calls = append(calls, call)

		if call.Method != "" || !call.HasData() {
			decodedAny = decodedAny || call.Method != "" || isValueTransfer(call)
		}
		if meta := d.legMetadata(ctx, call); meta != nil {
			metadata[strconv.Itoa(i)] = meta
		}
	}

	if !decodedAny && hasAnyData(calls) {
		d.logger.Info("call data did not decode against any known ABI shape",
			"calls", len(calls))
		return nil, calls
	}

	tx := &analysis.Transaction{
		Category: []analysis.TxCategory{},
		Metadata: metadata,
		Params:   d.txParams(ctx, calls[0]),
	}
	return tx, calls
}

// decodeCall resolves the target address and decodes the call data for
// one parameter set.
func (d *Decoder) decodeCall(ctx context.Context, index int, params analysis.CallParams) DecodedCall {
	call := DecodedCall{
		Index: index,
		From:  strings.ToLower(params.From),
		To:    strings.ToLower(params.To),
		Value: parseQuantity(params.Value),
	}
	call.TargetType = d.ResolveAddressType(ctx, call.To)

	data := hexPayload(params.Data)
	if len(data) < 4 {
		return call
	}
	call.Selector = hexutil.Encode(data[:4])

	method, err := d.abi.MethodById(data[:4])
	if err != nil {
		return call
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		d.logger.Debug("argument unpack failed", "method", method.RawName, "error", err)
		return call
	}

	call.Method = method.RawName
	call.SigText = method.Sig
	call.Args = args
	return call
}

// txParams builds the decoded-call summary from the first call.
func (d *Decoder) txParams(ctx context.Context, call DecodedCall) *analysis.TxParams {
	target := d.addressEntity(ctx, call.To, call.TargetType)
	params := &analysis.TxParams{
		IsToContract: call.TargetType != analysis.TypeEOA && call.TargetType != "",
		Target:       target,
	}
	if call.Method != "" {
		params.Method = &analysis.TxMethod{
			Name:        call.Method,
			Description: methodDescriptions[call.Method],
			Signature: analysis.MethodSignature{
				Hex:  call.Selector,
				Text: call.SigText,
			},
		}
	}
	return params
}

// legMetadata maps one decoded call to its tagged metadata variant, or
// nil when the call has no representable shape or a required token field
// cannot be filled.
func (d *Decoder) legMetadata(ctx context.Context, call DecodedCall) analysis.TxMetadata {
	if !call.HasData() {
		if call.Value == nil || call.Value.Sign() <= 0 {
			return nil
		}
		return analysis.NativeTransferMetadata{
			Recipient: d.addressEntity(ctx, call.To, call.TargetType),
			Token: analysis.NewNativeToken(d.native.Name, d.native.Symbol, d.native.Decimals,
				d.nativeAmount(call.Value)),
		}
	}

	switch call.Method {
	case "transfer":
		recipient, ok0 := addressArg(call.Args, 0)
		amount, ok1 := bigArg(call.Args, 1)
		if !ok0 || !ok1 {
			return nil
		}
		token, err := d.erc20Entity(ctx, call.To, amount)
		if err != nil {
			d.logger.Info("token metadata unavailable, omitting transfer leg",
				"token", call.To, "error", err)
			return nil
		}
		return analysis.TransferMetadata{
			Recipient: d.addressEntity(ctx, recipient, ""),
			Token:     token,
		}
	case "transferFrom":
		recipient, ok0 := addressArg(call.Args, 1)
		amount, ok1 := bigArg(call.Args, 2)
		if !ok0 || !ok1 || call.TargetType != analysis.TypeERC20 {
			return nil
		}
		token, err := d.erc20Entity(ctx, call.To, amount)
		if err != nil {
			return nil
		}
		return analysis.TransferMetadata{
			Recipient: d.addressEntity(ctx, recipient, ""),
			Token:     token,
		}
	case "approve":
		// ERC-721 approve shares this selector; only emit the ERC-20
		// variant when the target actually is an ERC-20 contract.
		if call.TargetType != analysis.TypeERC20 {
			return nil
		}
		spender, ok0 := addressArg(call.Args, 0)
		amount, ok1 := bigArg(call.Args, 1)
		if !ok0 || !ok1 {
			return nil
		}
		token, err := d.erc20Entity(ctx, call.To, amount)
		if err != nil {
			return nil
		}
		return analysis.ApproveMetadata{
			Spender: d.addressEntity(ctx, spender, ""),
			Token:   token,
		}
	}
	return nil
}

// erc20Entity builds an ERC-20 token entity at addr carrying amount.
// Symbol and decimals are looked up best-effort; a missing symbol or
// decimals leaves the field absent rather than fabricated.
func (d *Decoder) erc20Entity(ctx context.Context, addr string, amount *big.Int) (analysis.ERC20Token, error) {
	token := analysis.ERC20Token{
		AddressEntity: analysis.AddressEntity{Address: addr, Type: analysis.TypeERC20},
		Amount:        analysis.TokenAmount{Value: amount.String()},
	}
	symbol, decimals, err := d.TokenMetadata(ctx, addr)
	if err != nil {
		return token, err
	}
	token.Symbol = symbol
	token.Decimals = &decimals
	token.Amount.NormalizedValue = normalize(amount, decimals)
	return token, nil
}

func (d *Decoder) nativeAmount(value *big.Int) analysis.TokenAmount {
	return analysis.TokenAmount{
		Value:           value.String(),
		NormalizedValue: normalize(value, d.native.Decimals),
	}
}

// addressEntity resolves an address into an entity with best-effort type
// and display name.
func (d *Decoder) addressEntity(ctx context.Context, addr string, resolved analysis.AddressType) analysis.AddressEntity {
	if resolved == "" {
		resolved = d.ResolveAddressType(ctx, addr)
	}
	entity := analysis.AddressEntity{Address: addr, Type: resolved}
	if d.names != nil {
		if name, err := d.names.Name(ctx, addr); err == nil && name != "" {
			entity.Name = name
		}
	}
	return entity
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func hasAnyData(calls []DecodedCall) bool {
	for _, c := range calls {
		if c.HasData() {
			return true
		}
	}
	return false
}

func isValueTransfer(c DecodedCall) bool {
	return !c.HasData() && c.Value != nil && c.Value.Sign() > 0
}

// parseQuantity accepts both 0x-prefixed hex quantities and base-10
// strings, the two encodings wallets send for value.
func parseQuantity(s string) *big.Int {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int)
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			return new(big.Int)
		}
		return v
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

func hexPayload(s string) []byte {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil
	}
	b, err := hexutil.Decode("0x" + s)
	if err != nil {
		return nil
	}
	return b
}

func addressArg(args []any, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	addr, ok := args[i].(common.Address)
	if !ok {
		return "", false
	}
	return strings.ToLower(addr.Hex()), true
}

func bigArg(args []any, i int) (*big.Int, bool) {
	if i >= len(args) {
		return nil, false
	}
	v, ok := args[i].(*big.Int)
	return v, ok
}

// normalize renders a raw integer amount in display units.
func normalize(amount *big.Int, decimals int) string {
	if decimals <= 0 {
		return amount.String()
	}
	s := new(big.Int).Abs(amount).String()
	for len(s) <= decimals {
		s = "0" + s
	}
	point := len(s) - decimals
	out := s[:point] + "." + s[point:]
	out = strings.TrimRight(out, "0")
	out = strings.TrimSuffix(out, ".")
	if amount.Sign() < 0 {
		out = "-" + out
	}
	if out == "" {
		out = "0"
	}
	return out
}
