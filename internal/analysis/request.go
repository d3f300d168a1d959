package analysis

import (
	"encoding/json"
	"regexp"
	"strings"
)

var domainRegex = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]*[a-z0-9])?\.)*[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// Request is the raw inbound analysis request before validation. Params
// stays opaque until the method discriminates its shape.
type Request struct {
	ChainID int64   `json:"chainId"`
	Domain  string  `json:"domain"`
	Block   string  `json:"block,omitempty"`
	Payload Payload `json:"payload"`
}

// Payload is the method-tagged call payload.
type Payload struct {
	Method Method          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// CallParams is one transaction call parameter set.
type CallParams struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
	Gas   string `json:"gas,omitempty"`
	Data  string `json:"data"`
}

// ValidatedRequest is a strongly-discriminated request: exactly one of
// Calls and MessageParams is populated, matching Method.
type ValidatedRequest struct {
	ChainID int64
	Domain  string
	Block   string
	Method  Method

	Calls         []CallParams // transaction methods only
	MessageParams []string     // signing methods only
}

// IsTransaction reports whether the validated request submits a
// transaction.
func (r *ValidatedRequest) IsTransaction() bool { return r.Method.IsTransaction() }

var addressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ValidateRequest normalizes and validates a raw request.
//
// Chain id and domain problems are CodeInputValidation; a payload whose
// params do not match the shape its method requires is
// CodeContractTypeMismatch; an unsupported method is CodeBadRequest.
func ValidateRequest(req *Request) (*ValidatedRequest, *APIError) {
	if req == nil {
		return nil, NewError(CodeBadRequest, "request body is required")
	}
	if req.ChainID <= 0 {
		return nil, NewError(CodeInputValidation, "chainId must be a positive integer, got %d", req.ChainID)
	}

	domain := strings.ToLower(strings.TrimSpace(req.Domain))
	if domain == "" {
		return nil, NewError(CodeInputValidation, "domain is required")
	}
	if strings.Contains(domain, "://") || !domainRegex.MatchString(domain) {
		return nil, NewError(CodeInputValidation, "domain %q is not a valid hostname", req.Domain)
	}

	if !req.Payload.Method.Supported() {
		return nil, NewError(CodeBadRequest, "unsupported method %q", req.Payload.Method)
	}

	out := &ValidatedRequest{
		ChainID: req.ChainID,
		Domain:  domain,
		Block:   strings.TrimSpace(req.Block),
		Method:  req.Payload.Method,
	}

	if req.Payload.Method.IsTransaction() {
		var calls []CallParams
		if err := json.Unmarshal(req.Payload.Params, &calls); err != nil || len(calls) == 0 {
			return nil, NewError(CodeContractTypeMismatch,
				"method %s requires one or more call parameter sets", req.Payload.Method)
		}
		for i, call := range calls {
			if apiErr := validateCall(i, call); apiErr != nil {
				return nil, apiErr
			}
		}
		out.Calls = calls
		return out, nil
	}

	var params []string
	if err := json.Unmarshal(req.Payload.Params, &params); err != nil || len(params) == 0 {
		return nil, NewError(CodeContractTypeMismatch,
			"method %s requires a string parameter array", req.Payload.Method)
	}
	out.MessageParams = params
	return out, nil
}

func validateCall(index int, call CallParams) *APIError {
	if !addressRegex.MatchString(call.From) {
		return NewError(CodeInputValidation, "calls[%d].from must be a 20-byte hex address", index)
	}
	if !addressRegex.MatchString(call.To) {
		return NewError(CodeInputValidation, "calls[%d].to must be a 20-byte hex address", index)
	}
	if call.Data != "" && !isHexPayload(call.Data) {
		return NewError(CodeInputValidation, "calls[%d].data must be a hex string", index)
	}
	return nil
}

// isHexPayload accepts "0x", "0x"-prefixed hex of even length, and bare hex.
func isHexPayload(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
