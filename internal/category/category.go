// Package category assigns transaction-shape tags to a decoded
// interaction. Category is a set: a multicall performing a transfer and
// an approval carries both tags, and an empty set is a valid result
// meaning "uncategorized".
package category

import (
	"strings"

	"github.com/mbd888/txguard/internal/analysis"
	"github.com/mbd888/txguard/internal/decoder"
	"github.com/mbd888/txguard/internal/simulation"
)

// declarationOrder fixes the order tags appear in the output set.
var declarationOrder = []analysis.TxCategory{
	analysis.CategoryERC20Transfer,
	analysis.CategoryERC20Approval,
	analysis.CategoryERC1155ApprovalForAll,
	analysis.CategoryERC1155Transfer,
	analysis.CategoryERC721ApprovalForAll,
	analysis.CategoryERC721Approval,
	analysis.CategoryERC721Transfer,
	analysis.CategoryNativeAssetTransfer,
}

// Categorize inspects decoded calls and balance-change entities and
// returns every matching tag.
func Categorize(calls []decoder.DecodedCall, change *analysis.BalanceChange) []analysis.TxCategory {
	set := make(map[analysis.TxCategory]bool)

	for _, call := range calls {
		for _, tag := range callCategories(call) {
			set[tag] = true
		}
	}
	if change != nil {
		for _, tag := range movementCategories(change) {
			set[tag] = true
		}
	}

	out := make([]analysis.TxCategory, 0, len(set))
	for _, tag := range declarationOrder {
		if set[tag] {
			out = append(out, tag)
		}
	}
	return out
}

// callCategories maps one decoded call to its tags based on the method
// signature and the resolved target type.
func callCategories(call decoder.DecodedCall) []analysis.TxCategory {
	if !call.HasData() {
		if call.Value != nil && call.Value.Sign() > 0 {
			return []analysis.TxCategory{analysis.CategoryNativeAssetTransfer}
		}
		return nil
	}

	switch call.Method {
	case "transfer", "transferFrom":
		if call.TargetType == analysis.TypeERC721 {
			return []analysis.TxCategory{analysis.CategoryERC721Transfer}
		}
		return []analysis.TxCategory{analysis.CategoryERC20Transfer}

	case "approve":
		if call.TargetType == analysis.TypeERC721 {
			return []analysis.TxCategory{analysis.CategoryERC721Approval}
		}
		return []analysis.TxCategory{analysis.CategoryERC20Approval}

	case "setApprovalForAll":
		if call.TargetType == analysis.TypeERC1155 {
			return []analysis.TxCategory{analysis.CategoryERC1155ApprovalForAll}
		}
		return []analysis.TxCategory{analysis.CategoryERC721ApprovalForAll}

	case "safeTransferFrom":
		// The 3-arg form is ERC-721, the 5-arg form ERC-1155.
		if strings.Contains(call.SigText, "bytes") || call.TargetType == analysis.TypeERC1155 {
			return []analysis.TxCategory{analysis.CategoryERC1155Transfer}
		}
		return []analysis.TxCategory{analysis.CategoryERC721Transfer}

	case "safeBatchTransferFrom":
		return []analysis.TxCategory{analysis.CategoryERC1155Transfer}
	}
	return nil
}

// movementCategories derives transfer tags from observed balance
// movements, covering calls the decoder could not name.
func movementCategories(change *analysis.BalanceChange) []analysis.TxCategory {
	var out []analysis.TxCategory
	entities := make([]analysis.TokenEntity, 0, len(change.In)+len(change.Out))
	entities = append(entities, change.In...)
	entities = append(entities, change.Out...)

	for _, entity := range entities {
		switch e := entity.(type) {
		case analysis.ERC20Token:
			if e.Amount.Value != "" && e.Amount.Value != "0" {
				out = append(out, analysis.CategoryERC20Transfer)
			}
		case analysis.ERC721Token:
			if e.Type == analysis.TypeERC1155 {
				out = append(out, analysis.CategoryERC1155Transfer)
			} else {
				out = append(out, analysis.CategoryERC721Transfer)
			}
		case analysis.NativeToken:
			out = append(out, analysis.CategoryNativeAssetTransfer)
		}
	}
	return out
}

// FromStandard maps a trace token standard to its transfer tag. Used by
// rule evaluators reasoning about raw trace legs.
func FromStandard(standard simulation.TokenStandard) (analysis.TxCategory, bool) {
	switch standard {
	case simulation.StandardERC20:
		return analysis.CategoryERC20Transfer, true
	case simulation.StandardERC721:
		return analysis.CategoryERC721Transfer, true
	case simulation.StandardERC1155:
		return analysis.CategoryERC1155Transfer, true
	case simulation.StandardNative:
		return analysis.CategoryNativeAssetTransfer, true
	}
	return "", false
}
