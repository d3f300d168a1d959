package decoder

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mbd888/txguard/internal/analysis"
)

// typedDataEnvelope is the subset of an EIP-712 payload the decoder
// needs: the verifying contract out of the domain separator.
type typedDataEnvelope struct {
	Domain struct {
		VerifyingContract string `json:"verifyingContract"`
	} `json:"domain"`
	PrimaryType string `json:"primaryType"`
}

// DecodeMessage decodes a signing request into either a structured
// EIP-712 record or an opaque arbitrary-message record. A typed-data
// payload that does not parse degrades to an absent message rather than
// failing the analysis.
func (d *Decoder) DecodeMessage(_ context.Context, req *analysis.ValidatedRequest) *analysis.Message {
	if req.Method.IsTypedData() {
		return d.decodeTypedData(req.MessageParams)
	}

	// personal_sign and eth_sign carry the message as the first
	// non-address parameter.
	raw := firstMessageParam(req.MessageParams)
	return &analysis.Message{
		Category: analysis.MessageArbitrarySign,
		Metadata: map[string]analysis.MessageMetadata{
			"0": analysis.ArbitrarySignMetadata{Message: raw},
		},
	}
}

func (d *Decoder) decodeTypedData(params []string) *analysis.Message {
	for _, param := range params {
		trimmed := strings.TrimSpace(param)
		if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
			continue
		}
		var envelope typedDataEnvelope
		if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
			continue
		}
		if envelope.Domain.VerifyingContract == "" {
			continue
		}
		return &analysis.Message{
			Category: analysis.MessageEIP712,
			Metadata: map[string]analysis.MessageMetadata{
				"0": analysis.EIP712Metadata{
					VerifyingContract: strings.ToLower(envelope.Domain.VerifyingContract),
					Decoded:           json.RawMessage(trimmed),
				},
			},
		}
	}

	d.logger.Info("typed data payload did not parse, leaving message absent")
	return nil
}

// firstMessageParam skips address-shaped parameters; wallets order
// personal_sign params as [message, address] but some send the reverse.
func firstMessageParam(params []string) string {
	for _, p := range params {
		if addressRegexLoose(p) {
			continue
		}
		return p
	}
	if len(params) > 0 {
		return params[0]
	}
	return ""
}

func addressRegexLoose(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, c := range s[2:] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
