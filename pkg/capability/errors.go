package capability

import "fmt"

// ErrorKind is the closed failure-variant taxonomy of spec.md §7.
type ErrorKind string

const (
	KindTransient      ErrorKind = "transient"
	KindQuotaExceeded  ErrorKind = "quota_exceeded"
	KindNotFound       ErrorKind = "not_found"
	KindConflict       ErrorKind = "conflict"
	KindAuth           ErrorKind = "auth"
	KindIntegrity      ErrorKind = "integrity"
	KindTimeout        ErrorKind = "timeout"
	KindPermanentOther ErrorKind = "permanent"
)

// AdapterError wraps an underlying error with its classification so callers
// can branch without string-matching (§4.A "Returns sum-typed results with
// distinct failure variants").
type AdapterError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried with backoff (§7).
func IsTransient(err error) bool {
	ae, ok := err.(*AdapterError)
	if !ok {
		return false
	}
	return ae.Kind == KindTransient || ae.Kind == KindTimeout
}

// IsPermanent reports whether err is a terminal failure for the affected
// unit — for federated actions this marks the target pool ineligible and
// triggers re-matching rather than aborting the whole action (§7).
func IsPermanent(err error) bool {
	ae, ok := err.(*AdapterError)
	if !ok {
		return false
	}
	switch ae.Kind {
	case KindQuotaExceeded, KindNotFound, KindConflict, KindPermanentOther:
		return true
	}
	return false
}

// NewError builds a classified AdapterError.
func NewError(kind ErrorKind, op string, err error) *AdapterError {
	return &AdapterError{Kind: kind, Op: op, Err: err}
}
