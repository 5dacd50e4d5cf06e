// Package errs holds the error kinds surfaced by the order core.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is a machine-distinguishable error category.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindInsufficientStock
	KindConflict
	KindTransient
	KindTransaction
	KindCommitted
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInsufficientStock:
		return "insufficient_stock"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindTransaction:
		return "transaction"
	case KindCommitted:
		return "committed"
	default:
		return "unknown"
	}
}

// ValidationError reports malformed or missing input. It is raised before any I/O.
type ValidationError struct {
	// Missing lists absent required fields, in declaration order.
	Missing []string
	// Reason describes any other shape problem.
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case len(e.Missing) > 0 && e.Reason != "":
		return fmt.Sprintf("missing required fields: %s; %s", strings.Join(e.Missing, ", "), e.Reason)
	case len(e.Missing) > 0:
		return "missing required fields: " + strings.Join(e.Missing, ", ")
	default:
		return "invalid request: " + e.Reason
	}
}

// Invalid builds a ValidationError with a formatted reason.
func Invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %v", e.Entity, e.ID)
}

// InsufficientStockError reports a line item the inventory cannot satisfy.
type InsufficientStockError struct {
	ProductID int64
	Size      string
	Requested int
	// Available is nil when the current level could not be determined.
	Available *int
}

func (e *InsufficientStockError) Error() string {
	if e.Available == nil {
		return fmt.Sprintf("insufficient stock for product %d size %s", e.ProductID, e.Size)
	}

	return fmt.Sprintf(
		"insufficient stock for product %d size %s: available %d, requested %d",
		e.ProductID, e.Size, *e.Available, e.Requested,
	)
}

// ConflictError reports a uniqueness violation or a forbidden state change.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Reason
}

// TransientError is a connection-class failure that survived every retry.
type TransientError struct {
	Class      string
	Suggestion string
	Attempts   int
	Err        error
}

func (e *TransientError) Error() string {
	msg := fmt.Sprintf("database unavailable (%s) after %d attempt(s)", e.Class, e.Attempts)
	if e.Suggestion != "" {
		msg += ": " + e.Suggestion
	}

	return msg
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// TransactionError is any failure after a transaction was opened. The transaction
// has been rolled back by the time the caller sees it.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction failed during %s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// CommittedError reports a write that committed but whose result could not be
// read back. Retrying the request would repeat the write.
type CommittedError struct {
	OrderID int64
	// Op is the committed write, "create" or "status".
	Op  string
	Err error
}

func (e *CommittedError) Error() string {
	return fmt.Sprintf("order %d %s was committed but could not be read back: %v", e.OrderID, e.Op, e.Err)
}

func (e *CommittedError) Unwrap() error {
	return e.Err
}

// KindOf classifies err by the first matching kind in priority order. A domain
// kind wrapped inside a TransactionError wins over KindTransaction. Statements
// inside a transaction are not retried, so a dropped connection there surfaces
// as KindTransaction; KindTransient only comes from work outside one, such as
// acquiring the connection or beginning the transaction. KindCommitted comes
// first so a failed read-back is never reported as retryable.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var (
		validation *ValidationError
		notFound   *NotFoundError
		stock      *InsufficientStockError
		conflict   *ConflictError
		transient  *TransientError
		tx         *TransactionError
		committed  *CommittedError
	)

	switch {
	case errors.As(err, &committed):
		return KindCommitted
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &stock):
		return KindInsufficientStock
	case errors.As(err, &conflict):
		return KindConflict
	case errors.As(err, &transient):
		return KindTransient
	case errors.As(err, &tx):
		return KindTransaction
	default:
		return KindUnknown
	}
}
