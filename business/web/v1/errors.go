// Package v1 provides the request error taxonomy shared by the v1 handler
// groups: every failure path a handler can take is expressed as one of
// these named kinds, each carrying its own HTTP status and machine-readable
// code, so business/web/mid.Errors always has enough information to render
// a consistent JSON error body.
package v1

import (
	"errors"
	"net/http"

	"github.com/ardanlabs/sealedger/business/web/errs"
)

// Kind names one of the error categories a v1 handler can produce.
type Kind string

// The full set of error kinds this system can produce.
const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindNotFound       Kind = "not-found"
	KindConflict       Kind = "conflict"
	KindCrypto         Kind = "crypto"
	KindMining         Kind = "mining"
	KindBlockchain     Kind = "blockchain"
	KindDatabase       Kind = "database"
	KindInternal       Kind = "internal"
)

// statusForKind maps each error kind to the HTTP status it renders as.
var statusForKind = map[Kind]int{
	KindValidation:     http.StatusBadRequest,
	KindAuthentication: http.StatusUnauthorized,
	KindNotFound:       http.StatusNotFound,
	KindConflict:       http.StatusConflict,
	KindCrypto:         http.StatusBadRequest,
	KindMining:         http.StatusRequestTimeout,
	KindBlockchain:     http.StatusBadRequest,
	KindDatabase:       http.StatusInternalServerError,
	KindInternal:       http.StatusInternalServerError,
}

// RequestError wraps a business-logic error with the taxonomy the HTTP
// layer needs to render a JSON error response.
type RequestError struct {
	Err     error
	Kind    Kind
	Code    string
	Fields  map[string]string
}

// NewRequestError constructs a RequestError from an existing error and a
// kind, deriving the HTTP status and defaulting the machine-readable code to
// the kind's name.
func NewRequestError(err error, kind Kind) error {
	return &RequestError{Err: err, Kind: kind, Code: string(kind)}
}

// NewRequestErrorWithCode is like NewRequestError but overrides the
// machine-readable code (used for the fine-grained failure reasons the
// mining coordinator produces, e.g. "pow-failed", "tip-moved").
func NewRequestErrorWithCode(err error, kind Kind, code string) error {
	return &RequestError{Err: err, Kind: kind, Code: code}
}

// NewFieldError constructs a validation RequestError carrying per-field
// messages, for malformed request bodies.
func NewFieldError(fields map[string]string) error {
	return &RequestError{
		Err:    errors.New("validation failed"),
		Kind:   KindValidation,
		Code:   string(KindValidation),
		Fields: fields,
	}
}

// Error implements the error interface.
func (re *RequestError) Error() string {
	return re.Err.Error()
}

// Status returns the HTTP status code that corresponds to this error's
// kind.
func (re *RequestError) Status() int {
	if status, ok := statusForKind[re.Kind]; ok {
		return status
	}

	return http.StatusInternalServerError
}

// IsRequestError checks if an error of type RequestError exists in err's
// chain.
func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}

// GetRequestError returns a copy of the RequestError pointer, or nil.
func GetRequestError(err error) *RequestError {
	var re *RequestError
	if !errors.As(err, &re) {
		return nil
	}

	return re
}

// AsTrusted adapts a RequestError to the lower-level errs.Trusted type,
// keeping errs.Trusted as the wire between business logic and the web
// framework's Errors middleware.
func AsTrusted(err error) error {
	re := GetRequestError(err)
	if re == nil {
		return err
	}

	return errs.NewTrusted(re, re.Status())
}
