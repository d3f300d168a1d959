package decoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/txguard/internal/analysis"
)

const (
	addrEOA    = "0x1111111111111111111111111111111111111111"
	addrToken  = "0x2222222222222222222222222222222222222222"
	addrNFT    = "0x3333333333333333333333333333333333333333"
	addrSafe   = "0x4444444444444444444444444444444444444444"
	addrOther  = "0x5555555555555555555555555555555555555555"
	addrMulti  = "0x6666666666666666666666666666666666666666"
	addrBroken = "0x7777777777777777777777777777777777777777"
)

// fakeContract describes one deployed contract for the fake reader.
type fakeContract struct {
	erc721    bool
	erc1155   bool
	symbol    string
	decimals  uint8
	hasToken  bool
	threshold int64
}

// fakeReader serves CodeAt/CallContract from a static contract map.
type fakeReader struct {
	contracts map[common.Address]fakeContract
	err       error
}

func (r *fakeReader) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	if _, ok := r.contracts[account]; ok {
		return []byte{0x60}, nil
	}
	return nil, nil
}

func (r *fakeReader) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	c, ok := r.contracts[*call.To]
	if !ok {
		return nil, errors.New("no contract")
	}

	data := call.Data
	switch {
	case bytes.HasPrefix(data, probes.Methods["supportsInterface"].ID):
		var id [4]byte
		copy(id[:], data[4:8])
		supported := (id == interfaceERC721 && c.erc721) || (id == interfaceERC1155 && c.erc1155)
		return probes.Methods["supportsInterface"].Outputs.Pack(supported)
	case bytes.HasPrefix(data, probes.Methods["symbol"].ID):
		if !c.hasToken {
			return nil, errors.New("execution reverted")
		}
		return probes.Methods["symbol"].Outputs.Pack(c.symbol)
	case bytes.HasPrefix(data, probes.Methods["decimals"].ID):
		if !c.hasToken {
			return nil, errors.New("execution reverted")
		}
		return probes.Methods["decimals"].Outputs.Pack(c.decimals)
	case bytes.HasPrefix(data, probes.Methods["getThreshold"].ID):
		if c.threshold <= 0 {
			return nil, errors.New("execution reverted")
		}
		return probes.Methods["getThreshold"].Outputs.Pack(big.NewInt(c.threshold))
	}
	return nil, errors.New("unexpected call")
}

// fakeNames returns canned display names.
type fakeNames struct{ names map[string]string }

func (f *fakeNames) Name(_ context.Context, address string) (string, error) {
	if name, ok := f.names[address]; ok {
		return name, nil
	}
	return "", errors.New("unknown")
}

func testReader() *fakeReader {
	return &fakeReader{contracts: map[common.Address]fakeContract{
		common.HexToAddress(addrToken): {hasToken: true, symbol: "DAI", decimals: 18},
		common.HexToAddress(addrNFT):   {erc721: true},
		common.HexToAddress(addrMulti): {erc1155: true},
		common.HexToAddress(addrSafe):  {threshold: 2},
		common.HexToAddress(addrOther): {},
	}}
}

func testDecoder(t *testing.T, reader ChainReader, names NameProvider) *Decoder {
	t.Helper()
	d, err := New(reader, names, NativeAsset{Name: "Ether", Symbol: "ETH", Decimals: 18}, slog.Default())
	require.NoError(t, err)
	return d
}

func TestResolveAddressType(t *testing.T) {
	d := testDecoder(t, testReader(), nil)
	ctx := context.Background()

	assert.Equal(t, analysis.TypeEOA, d.ResolveAddressType(ctx, addrEOA))
	assert.Equal(t, analysis.TypeERC20, d.ResolveAddressType(ctx, addrToken))
	assert.Equal(t, analysis.TypeERC721, d.ResolveAddressType(ctx, addrNFT))
	assert.Equal(t, analysis.TypeERC1155, d.ResolveAddressType(ctx, addrMulti))
	assert.Equal(t, analysis.TypeGnosisSafe, d.ResolveAddressType(ctx, addrSafe))
	assert.Equal(t, analysis.TypeContract, d.ResolveAddressType(ctx, addrOther))
}

func TestResolveAddressType_Cached(t *testing.T) {
	reader := testReader()
	d := testDecoder(t, reader, nil)
	ctx := context.Background()

	require.Equal(t, analysis.TypeERC20, d.ResolveAddressType(ctx, addrToken))

	// A reader outage after the first resolution does not lose the answer
	reader.err = errors.New("rpc down")
	assert.Equal(t, analysis.TypeERC20, d.ResolveAddressType(ctx, addrToken))

	// Unclassified results are not cached
	assert.Equal(t, analysis.AddressType(""), d.ResolveAddressType(ctx, addrBroken))
}

func TestTokenMetadata(t *testing.T) {
	d := testDecoder(t, testReader(), nil)
	ctx := context.Background()

	symbol, decimals, err := d.TokenMetadata(ctx, addrToken)
	require.NoError(t, err)
	assert.Equal(t, "DAI", symbol)
	assert.Equal(t, 18, decimals)

	_, _, err = d.TokenMetadata(ctx, addrNFT)
	assert.Error(t, err, "a contract without symbol/decimals has no token metadata")
}

func transferCalldata(t *testing.T, d *Decoder, to string, amount *big.Int) string {
	t.Helper()
	data, err := d.abi.Pack("transfer", common.HexToAddress(to), amount)
	require.NoError(t, err)
	return "0x" + common.Bytes2Hex(data)
}

func TestDecodeTransaction_ERC20Transfer(t *testing.T) {
	d := testDecoder(t, testReader(), &fakeNames{names: map[string]string{addrEOA: "alice.eth"}})

	amount := new(big.Int)
	amount.SetString("2500000000000000000", 10)
	req := &analysis.ValidatedRequest{
		ChainID: 1,
		Method:  analysis.MethodSendTransaction,
		Calls: []analysis.CallParams{{
			From: addrEOA,
			To:   addrToken,
			Data: transferCalldata(t, d, addrEOA, amount),
		}},
	}

	tx, calls := d.DecodeTransaction(context.Background(), req)
	require.NotNil(t, tx)
	require.Len(t, calls, 1)

	assert.Equal(t, "transfer", calls[0].Method)
	assert.Equal(t, "0xa9059cbb", calls[0].Selector)
	assert.Equal(t, analysis.TypeERC20, calls[0].TargetType)

	require.NotNil(t, tx.Params)
	assert.True(t, tx.Params.IsToContract)
	require.NotNil(t, tx.Params.Method)
	assert.Equal(t, "transfer", tx.Params.Method.Name)
	assert.Equal(t, "transfer(address,uint256)", tx.Params.Method.Signature.Text)

	meta, ok := tx.Metadata["0"].(analysis.TransferMetadata)
	require.True(t, ok)
	assert.Equal(t, addrEOA, meta.Recipient.Address)
	assert.Equal(t, "alice.eth", meta.Recipient.Name)
	assert.Equal(t, "DAI", meta.Token.Symbol)
	assert.Equal(t, "2500000000000000000", meta.Token.Amount.Value)
	assert.Equal(t, "2.5", meta.Token.Amount.NormalizedValue)
}

func TestDecodeTransaction_ApproveOnNonERC20Omitted(t *testing.T) {
	d := testDecoder(t, testReader(), nil)

	data, err := d.abi.Pack("approve", common.HexToAddress(addrEOA), big.NewInt(7))
	require.NoError(t, err)
	req := &analysis.ValidatedRequest{
		ChainID: 1,
		Method:  analysis.MethodSendTransaction,
		Calls: []analysis.CallParams{{
			From: addrEOA,
			To:   addrNFT, // ERC-721, approve(address,uint256) shares the selector
			Data: "0x" + common.Bytes2Hex(data),
		}},
	}

	tx, calls := d.DecodeTransaction(context.Background(), req)
	require.NotNil(t, tx)
	assert.Equal(t, "approve", calls[0].Method)
	assert.Empty(t, tx.Metadata, "ERC-20 approve variant only fits an ERC-20 target")
}

func TestDecodeTransaction_NativeTransfer(t *testing.T) {
	d := testDecoder(t, testReader(), nil)

	req := &analysis.ValidatedRequest{
		ChainID: 1,
		Method:  analysis.MethodSendTransaction,
		Calls: []analysis.CallParams{{
			From:  addrEOA,
			To:    "0x8888888888888888888888888888888888888888",
			Value: "0xde0b6b3a7640000", // 1e18
		}},
	}

	tx, calls := d.DecodeTransaction(context.Background(), req)
	require.NotNil(t, tx)
	assert.False(t, calls[0].HasData())

	require.NotNil(t, tx.Params)
	assert.False(t, tx.Params.IsToContract)
	assert.Nil(t, tx.Params.Method, "a plain value transfer has no method to describe")

	meta, ok := tx.Metadata["0"].(analysis.NativeTransferMetadata)
	require.True(t, ok)
	assert.Equal(t, "ETH", meta.Token.Symbol)
	assert.Equal(t, "1000000000000000000", meta.Token.Amount.Value)
	assert.Equal(t, "1", meta.Token.Amount.NormalizedValue)
}

func TestDecodeTransaction_UnknownCalldata(t *testing.T) {
	d := testDecoder(t, testReader(), nil)

	req := &analysis.ValidatedRequest{
		ChainID: 1,
		Method:  analysis.MethodSendTransaction,
		Calls: []analysis.CallParams{{
			From: addrEOA,
			To:   addrOther,
			Data: "0xdeadbeef00000000",
		}},
	}

	tx, calls := d.DecodeTransaction(context.Background(), req)
	assert.Nil(t, tx, "nothing decoded means no transaction description")
	require.Len(t, calls, 1)
	assert.Equal(t, "0xdeadbeef", calls[0].Selector)
	assert.Empty(t, calls[0].Method)
}

func TestDecodeTransaction_UnresolvedFirstCallOmitsMethod(t *testing.T) {
	d := testDecoder(t, testReader(), nil)

	// The second call decodes, so a transaction description is built,
	// but the first call's data matched no known selector.
	req := &analysis.ValidatedRequest{
		ChainID: 1,
		Method:  analysis.MethodSendTransaction,
		Calls: []analysis.CallParams{
			{From: addrEOA, To: addrOther, Data: "0xdeadbeef00000000"},
			{From: addrEOA, To: addrToken, Data: transferCalldata(t, d, addrEOA, big.NewInt(5))},
		},
	}

	tx, calls := d.DecodeTransaction(context.Background(), req)
	require.NotNil(t, tx)
	require.Len(t, calls, 2)

	require.NotNil(t, tx.Params)
	assert.Nil(t, tx.Params.Method, "an unresolved call must not surface an empty method")

	raw, err := json.Marshal(tx.Params)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"method"`)
}

func TestDecodeTransaction_TokenMetadataMissingOmitsLeg(t *testing.T) {
	reader := testReader()
	// A contract that claims nothing: transfer decodes but metadata fails
	d := testDecoder(t, reader, nil)

	req := &analysis.ValidatedRequest{
		ChainID: 1,
		Method:  analysis.MethodSendTransaction,
		Calls: []analysis.CallParams{{
			From: addrEOA,
			To:   addrOther,
			Data: transferCalldata(t, d, addrEOA, big.NewInt(5)),
		}},
	}

	tx, calls := d.DecodeTransaction(context.Background(), req)
	require.NotNil(t, tx, "the decode itself succeeded")
	assert.Equal(t, "transfer", calls[0].Method)
	assert.Empty(t, tx.Metadata, "leg without token metadata is omitted")
}

func TestParseQuantity(t *testing.T) {
	assert.Equal(t, "0", parseQuantity("").String())
	assert.Equal(t, "255", parseQuantity("0xff").String())
	assert.Equal(t, "1000", parseQuantity("1000").String())
	assert.Equal(t, "0", parseQuantity("bogus").String())
	assert.Equal(t, "1000000000000000000", parseQuantity("0xde0b6b3a7640000").String())
}

func TestNormalize(t *testing.T) {
	n := func(s string, d int) string {
		v, _ := new(big.Int).SetString(s, 10)
		return normalize(v, d)
	}

	assert.Equal(t, "1", n("1000000000000000000", 18))
	assert.Equal(t, "2.5", n("2500000000000000000", 18))
	assert.Equal(t, "0.000001", n("1", 6))
	assert.Equal(t, "0", n("0", 18))
	assert.Equal(t, "-1.5", n("-1500000000000000000", 18))
	assert.Equal(t, "42", n("42", 0))
}
