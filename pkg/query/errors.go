package query

import "fmt"

// Deterministic error codes for query validation failures.
const (
	ErrQueryNotQuery          = "ERR_QUERY_NOT_QUERY"
	ErrQueryShape             = "ERR_QUERY_SHAPE"
	ErrQueryUnknownTable      = "ERR_QUERY_UNKNOWN_TABLE"
	ErrQueryUnknownColumn     = "ERR_QUERY_UNKNOWN_COLUMN"
	ErrQueryAmbiguousColumn   = "ERR_QUERY_AMBIGUOUS_COLUMN"
	ErrQueryDialectCapability = "ERR_QUERY_DIALECT"
)

// ValidationError is returned for every query that cannot be compiled.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Ref names the offending table, column or symbol, when there is one.
	Ref string `json:"ref,omitempty"`
}

func (e *ValidationError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("%s: %s (ref: %s)", e.Code, e.Message, e.Ref)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func shapeErr(format string, args ...any) *ValidationError {
	return &ValidationError{Code: ErrQueryShape, Message: fmt.Sprintf(format, args...)}
}
