package analysis

import "fmt"

// ErrorCode is the fixed outward error enumeration. Collaborators depend
// on the numeric values; never renumber.
type ErrorCode int

const (
	CodeGeneralError         ErrorCode = 500
	CodeAnalysisInProgress   ErrorCode = 1000
	CodeSimulationFailed     ErrorCode = 1001
	CodeMissingTokenData     ErrorCode = 1002
	CodeMissingAddressName   ErrorCode = 1003
	CodeFailedToAnalyze      ErrorCode = 1004
	CodeInputValidation      ErrorCode = 2000
	CodeContractTypeMismatch ErrorCode = 2001
	CodeBadRequest           ErrorCode = 3000
)

// APIError is a single outward error record. ExtendedInfo is an optional
// free-form payload for callers that want machine-readable detail.
type APIError struct {
	Code         ErrorCode `json:"code"`
	Message      string    `json:"message"`
	ExtendedInfo any       `json:"extendedInfo,omitempty"`
}

// Error implements the error interface so pipeline stages can return an
// *APIError directly and have it surface at the assembler boundary.
func (e *APIError) Error() string {
	return fmt.Sprintf("analysis error %d: %s", e.Code, e.Message)
}

// NewError builds an APIError with a formatted message.
func NewError(code ErrorCode, format string, args ...any) *APIError {
	return &APIError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithExtendedInfo attaches a detail payload and returns the error.
func (e *APIError) WithExtendedInfo(info any) *APIError {
	e.ExtendedInfo = info
	return e
}
