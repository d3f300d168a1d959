package analysis

// AddressType classifies a resolved address: account kind, contract
// implementation, or token standard. Absence means "not yet classified".
type AddressType string

const (
	TypeEOA        AddressType = "EOA"
	TypeContract   AddressType = "CONTRACT"
	TypeGnosisSafe AddressType = "GNOSIS_SAFE"
	TypeERC20      AddressType = "ERC20"
	TypeERC721     AddressType = "ERC721"
	TypeERC1155    AddressType = "ERC1155"
	TypeNative     AddressType = "NATIVE"
)

// AddressEntity is a 20-byte hex address with optional display name and
// optional resolved type.
type AddressEntity struct {
	Address string      `json:"address"`
	Name    string      `json:"name,omitempty"`
	Type    AddressType `json:"type,omitempty"`
}

// TokenAmount carries a raw integer value string and an optional
// decimals-normalized display value.
type TokenAmount struct {
	Value           string `json:"value"`
	NormalizedValue string `json:"normalizedValue,omitempty"`
}

// TokenEntity is implemented by the three balance-change item variants.
// The variant set is closed.
type TokenEntity interface {
	TokenType() AddressType
}

// ERC20Token is a fungible token position. Decimals and symbol are
// best-effort metadata and may be absent.
type ERC20Token struct {
	AddressEntity
	Amount   TokenAmount `json:"amount"`
	Decimals *int        `json:"decimals,omitempty"`
	Symbol   string      `json:"symbol,omitempty"`
}

func (ERC20Token) TokenType() AddressType { return TypeERC20 }

// ERC721Token is a single non-fungible token, identified by token id
// rather than an amount.
type ERC721Token struct {
	AddressEntity
	Symbol  string `json:"symbol,omitempty"`
	TokenID string `json:"tokenId"`
}

func (ERC721Token) TokenType() AddressType { return TypeERC721 }

// NativeToken is the chain's native asset. Unlike ERC-20 entities every
// field is mandatory: the native asset is always fully known, so there is
// no address and no optional metadata.
type NativeToken struct {
	Type     AddressType `json:"type"`
	Name     string      `json:"name"`
	Amount   TokenAmount `json:"amount"`
	Decimals int         `json:"decimals"`
	Symbol   string      `json:"symbol"`
}

func (NativeToken) TokenType() AddressType { return TypeNative }

// NewNativeToken builds a fully-populated native asset entity.
func NewNativeToken(name, symbol string, decimals int, amount TokenAmount) NativeToken {
	return NativeToken{
		Type:     TypeNative,
		Name:     name,
		Amount:   amount,
		Decimals: decimals,
		Symbol:   symbol,
	}
}

// BalanceChange holds net token movements into and out of the acting
// address. A token identity never appears in both sequences.
type BalanceChange struct {
	In  []TokenEntity `json:"in"`
	Out []TokenEntity `json:"out"`
}
