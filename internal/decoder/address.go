package decoder

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mbd888/txguard/internal/analysis"
)

// probeABI covers the read-only calls used for contract introspection.
const probeABI = `[
	{"name":"supportsInterface","type":"function","stateMutability":"view","inputs":[{"name":"interfaceId","type":"bytes4"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"name":"getThreshold","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

// ERC-165 interface ids.
var (
	interfaceERC721  = [4]byte{0x80, 0xac, 0x58, 0xcd}
	interfaceERC1155 = [4]byte{0xd9, 0xb6, 0x7a, 0x26}
)

var probes abi.ABI

func init() {
	var err error
	probes, err = abi.JSON(strings.NewReader(probeABI))
	if err != nil {
		panic("decoder: probe ABI: " + err.Error())
	}
}

// ResolveAddressType classifies an address, best-effort. EOA vs CONTRACT
// comes from the code size; contracts are further narrowed to a token
// standard or multisig wallet when introspection succeeds. Results are
// cached; an unreachable chain reader yields the unclassified type.
func (d *Decoder) ResolveAddressType(ctx context.Context, addr string) analysis.AddressType {
	key := "type:" + addr
	if cached, ok := d.cache.Get(key); ok {
		return cached.(analysis.AddressType)
	}

	resolved := d.resolveUncached(ctx, addr)
	if resolved != "" {
		d.cache.SetDefault(key, resolved)
	}
	return resolved
}

func (d *Decoder) resolveUncached(ctx context.Context, addr string) analysis.AddressType {
	account := common.HexToAddress(addr)

	code, err := d.reader.CodeAt(ctx, account, nil)
	if err != nil {
		d.logger.Warn("address type resolution failed", "address", addr, "error", err)
		return ""
	}
	if len(code) == 0 {
		return analysis.TypeEOA
	}

	if ok, _ := d.supportsInterface(ctx, account, interfaceERC721); ok {
		return analysis.TypeERC721
	}
	if ok, _ := d.supportsInterface(ctx, account, interfaceERC1155); ok {
		return analysis.TypeERC1155
	}
	if _, _, err := d.tokenMetadataUncached(ctx, addr); err == nil {
		return analysis.TypeERC20
	}
	if d.looksLikeSafe(ctx, account) {
		return analysis.TypeGnosisSafe
	}
	return analysis.TypeContract
}

func (d *Decoder) supportsInterface(ctx context.Context, account common.Address, id [4]byte) (bool, error) {
	data, err := probes.Pack("supportsInterface", id)
	if err != nil {
		return false, err
	}
	out, err := d.reader.CallContract(ctx, ethereum.CallMsg{To: &account, Data: data}, nil)
	if err != nil || len(out) == 0 {
		return false, err
	}
	res, err := probes.Unpack("supportsInterface", out)
	if err != nil || len(res) == 0 {
		return false, err
	}
	supported, _ := res[0].(bool)
	return supported, nil
}

func (d *Decoder) looksLikeSafe(ctx context.Context, account common.Address) bool {
	data, err := probes.Pack("getThreshold")
	if err != nil {
		return false
	}
	out, err := d.reader.CallContract(ctx, ethereum.CallMsg{To: &account, Data: data}, nil)
	if err != nil || len(out) != 32 {
		return false
	}
	threshold := new(big.Int).SetBytes(out)
	return threshold.Sign() > 0
}

// TokenMetadata returns the symbol and decimals for an ERC-20 contract.
// The error is non-nil when the contract cannot supply them; callers
// treat that as missing token data and omit the entity.
func (d *Decoder) TokenMetadata(ctx context.Context, addr string) (string, int, error) {
	key := "meta:" + addr
	if cached, ok := d.cache.Get(key); ok {
		meta := cached.(tokenMetadata)
		return meta.symbol, meta.decimals, nil
	}

	symbol, decimals, err := d.tokenMetadataUncached(ctx, addr)
	if err != nil {
		return "", 0, err
	}
	d.cache.SetDefault(key, tokenMetadata{symbol: symbol, decimals: decimals})
	return symbol, decimals, nil
}

type tokenMetadata struct {
	symbol   string
	decimals int
}

func (d *Decoder) tokenMetadataUncached(ctx context.Context, addr string) (string, int, error) {
	account := common.HexToAddress(addr)

	symData, err := probes.Pack("symbol")
	if err != nil {
		return "", 0, err
	}
	symOut, err := d.reader.CallContract(ctx, ethereum.CallMsg{To: &account, Data: symData}, nil)
	if err != nil {
		return "", 0, fmt.Errorf("decoder: symbol() on %s: %w", addr, err)
	}
	symRes, err := probes.Unpack("symbol", symOut)
	if err != nil || len(symRes) == 0 {
		return "", 0, fmt.Errorf("decoder: %s did not return a symbol", addr)
	}
	symbol, _ := symRes[0].(string)

	decData, err := probes.Pack("decimals")
	if err != nil {
		return "", 0, err
	}
	decOut, err := d.reader.CallContract(ctx, ethereum.CallMsg{To: &account, Data: decData}, nil)
	if err != nil {
		return "", 0, fmt.Errorf("decoder: decimals() on %s: %w", addr, err)
	}
	decRes, err := probes.Unpack("decimals", decOut)
	if err != nil || len(decRes) == 0 {
		return "", 0, fmt.Errorf("decoder: %s did not return decimals", addr)
	}
	decimals, _ := decRes[0].(uint8)

	return symbol, int(decimals), nil
}
