package analysis

import (
	"encoding/json"
	"errors"
)

// SimulationStatus reports whether the simulated execution reverted.
// Errors is non-empty only when IsReverted is true.
type SimulationStatus struct {
	IsReverted bool     `json:"isReverted"`
	Errors     []string `json:"errors"`
}

// Simulation is the canonical record of one backend execution. For
// message analyses only UUID and Time are populated (nothing executes for
// a signing request) and Status is omitted.
type Simulation struct {
	UUID   string            `json:"uuid"`
	Status *SimulationStatus `json:"status,omitempty"`
	Time   string            `json:"time,omitempty"`
	Block  string            `json:"block,omitempty"`
}

// NewSimulation constructs a Simulation honoring the revert invariant:
// error strings are dropped unless the execution reverted, and a revert
// with no backend detail still carries an empty (non-nil) error list.
func NewSimulation(uuid string, reverted bool, execErrors []string) *Simulation {
	status := &SimulationStatus{IsReverted: reverted, Errors: []string{}}
	if reverted {
		status.Errors = append(status.Errors, execErrors...)
	}
	return &Simulation{UUID: uuid, Status: status}
}

// IssueDescription is the short and long human-readable text for an issue.
type IssueDescription struct {
	Short string `json:"short"`
	Long  string `json:"long"`
}

// Issue is one severity-tagged finding emitted by a rule evaluator.
type Issue struct {
	Description IssueDescription `json:"description"`
	Category    RuleCategory     `json:"category"`
	Severity    Severity         `json:"severity"`
}

// Insights is the ordered issue list plus the aggregate verdict.
// The verdict is NO_ISSUES iff the issue list is empty.
type Insights struct {
	Issues  []Issue  `json:"issues"`
	Verdict Severity `json:"verdict"`
}

// TxMetadata is one decoded transaction leg. The variant set is closed:
// Transfer, Approve, or NativeTransfer.
type TxMetadata interface {
	txMetadata()
}

// TransferMetadata describes an ERC-20 transfer leg.
type TransferMetadata struct {
	Recipient AddressEntity `json:"recipient"`
	Token     ERC20Token    `json:"token"`
}

func (TransferMetadata) txMetadata() {}

// ApproveMetadata describes an ERC-20 approval leg.
type ApproveMetadata struct {
	Spender AddressEntity `json:"spender"`
	Token   ERC20Token    `json:"token"`
}

func (ApproveMetadata) txMetadata() {}

// NativeTransferMetadata describes a native-asset value transfer leg.
type NativeTransferMetadata struct {
	Recipient AddressEntity `json:"recipient"`
	Token     NativeToken   `json:"token"`
}

func (NativeTransferMetadata) txMetadata() {}

// MethodSignature is the raw 4-byte selector and its canonical text form.
type MethodSignature struct {
	Hex  string `json:"hex"`
	Text string `json:"text"`
}

// TxMethod is the human-readable description of the decoded call.
type TxMethod struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Signature   MethodSignature `json:"signature"`
}

// TxParams describes the decoded call target and method. Method is nil
// when the calldata did not decode against any known selector; a
// populated method always carries its name and signature.
type TxParams struct {
	IsToContract bool          `json:"isToContract"`
	Target       AddressEntity `json:"target"`
	Method       *TxMethod     `json:"method,omitempty"`
}

// Transaction is the structured description of a decoded transaction.
// Metadata is keyed by the index of the call parameter set within the
// request payload.
type Transaction struct {
	Category []TxCategory          `json:"category"`
	Metadata map[string]TxMetadata `json:"metadata"`
	Params   *TxParams             `json:"params,omitempty"`
}

// MessageMetadata is one decoded signing payload. The variant set is
// closed: EIP712 or ArbitrarySign.
type MessageMetadata interface {
	messageMetadata()
}

// EIP712Metadata carries the verifying contract and the decoded typed
// data object.
type EIP712Metadata struct {
	VerifyingContract string          `json:"verifyingContract"`
	Decoded           json.RawMessage `json:"decoded"`
}

func (EIP712Metadata) messageMetadata() {}

// ArbitrarySignMetadata carries an opaque message being signed.
type ArbitrarySignMetadata struct {
	Message string `json:"message"`
}

func (ArbitrarySignMetadata) messageMetadata() {}

// Message is the structured description of a decoded signing request.
type Message struct {
	Category MessageSignCategory        `json:"category"`
	Metadata map[string]MessageMetadata `json:"metadata"`
}

// Data is the success payload of an analysis. Simulation is always
// present; the remaining fields are each present iff the corresponding
// pipeline stage produced a value.
type Data struct {
	Simulation    *Simulation    `json:"simulation"`
	Insights      *Insights      `json:"insights,omitempty"`
	Transaction   *Transaction   `json:"transaction,omitempty"`
	Message       *Message       `json:"message,omitempty"`
	BalanceChange *BalanceChange `json:"balanceChange,omitempty"`
}

// Response is the outward envelope: exactly one of Data and Errors is
// populated.
type Response struct {
	Data   *Data       `json:"data,omitempty"`
	Errors []*APIError `json:"errors,omitempty"`
}

// ErrBothDataAndErrors rejects a response carrying both a data payload
// and a non-empty error list.
var ErrBothDataAndErrors = errors.New("analysis: response cannot carry both data and errors")

// ErrEmptyResponse rejects a response carrying neither data nor errors.
var ErrEmptyResponse = errors.New("analysis: response must carry data or errors")

// NewResponse assembles the outward envelope, enforcing data-xor-errors.
func NewResponse(data *Data, errs []*APIError) (*Response, error) {
	if data != nil && len(errs) > 0 {
		return nil, ErrBothDataAndErrors
	}
	if data == nil && len(errs) == 0 {
		return nil, ErrEmptyResponse
	}
	if data != nil {
		if data.Simulation == nil {
			return nil, errors.New("analysis: data requires a simulation record")
		}
		return &Response{Data: data}, nil
	}
	return &Response{Errors: errs}, nil
}

// ErrorResponse wraps one or more failures into an errors-only envelope.
func ErrorResponse(errs ...*APIError) *Response {
	return &Response{Errors: errs}
}
