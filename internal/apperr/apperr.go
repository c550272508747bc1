// Package apperr defines the error taxonomy shared by every Sentinel
// service: config-time failures, transient vs. permanent external
// failures, malformed-event drops, and integrity violations.
package apperr

import "fmt"

// Kind classifies an error for the purposes of retry/log/halt decisions.
type Kind int

const (
	// KindConfig marks a fatal startup misconfiguration.
	KindConfig Kind = iota
	// KindTransientExternal marks a retriable failure of an external
	// dependency (bus publish, DB conflict, object-store 5xx, CRM 5xx).
	KindTransientExternal
	// KindPermanentExternal marks a non-retriable external failure
	// (malformed event, auth failure).
	KindPermanentExternal
	// KindSchema marks a malformed event that should be logged and dropped.
	KindSchema
	// KindIntegrity marks tamper/consistency violations that must halt
	// the affected worker (KEK mismatch, audit-chain mismatch).
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransientExternal:
		return "transient_external"
	case KindPermanentExternal:
		return "permanent_external"
	case KindSchema:
		return "schema"
	case KindIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// Error is a typed, wrapped application error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller should retry the operation that
// produced this error.
func (e *Error) Retryable() bool { return e.Kind == KindTransientExternal }

// Fatal reports whether the error should halt the owning worker/service.
func (e *Error) Fatal() bool { return e.Kind == KindConfig || e.Kind == KindIntegrity }

func wrap(k Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Op: op, Err: err}
}

// Config wraps err as a fatal configuration error.
func Config(op string, err error) error { return wrap(KindConfig, op, err) }

// Transient wraps err as a retriable external failure.
func Transient(op string, err error) error { return wrap(KindTransientExternal, op, err) }

// Permanent wraps err as a non-retriable external failure.
func Permanent(op string, err error) error { return wrap(KindPermanentExternal, op, err) }

// Schema wraps err as a malformed-event failure (log and drop).
func Schema(op string, err error) error { return wrap(KindSchema, op, err) }

// Integrity wraps err as an integrity violation (halt the worker).
func Integrity(op string, err error) error { return wrap(KindIntegrity, op, err) }

// As reports whether err is an *Error, returning it if so.
func As(err error) (*Error, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e, true
	}
	return nil, false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
