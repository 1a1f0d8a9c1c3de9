package algorand

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass is the outcome of classifying a submit failure.
type ErrorClass string

const (
	ErrorClassGeneric         ErrorClass = "generic"
	ErrorClassAlreadyInLedger ErrorClass = "already_in_ledger"
	ErrorClassTransactionDead ErrorClass = "transaction_dead"
)

const (
	alreadyInLedgerMarker = "transaction already in ledger"
	transactionDeadMarker = "txn dead"
)

// SubmitError is returned when the node rejects a transaction group. Message is
// the node's own text, e.g. "TransactionPool.Remember: txn dead: round 20000
// outside of 100--1100".
type SubmitError struct {
	StatusCode int
	Message    string
}

func NewSubmitError(message string) *SubmitError {
	return &SubmitError{Message: message}
}

func (e *SubmitError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("submit transactions (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("submit transactions: %s", e.Message)
}

// Classify maps an error to the recovery policy the pipeline applies. Only
// node rejections are interpreted; transport failures, timeouts and anything
// that is not a *SubmitError are generic.
func Classify(err error) ErrorClass {
	var submitErr *SubmitError
	if !errors.As(err, &submitErr) {
		return ErrorClassGeneric
	}
	msg := strings.ToLower(submitErr.Message)
	switch {
	case strings.Contains(msg, alreadyInLedgerMarker):
		return ErrorClassAlreadyInLedger
	case strings.Contains(msg, transactionDeadMarker):
		return ErrorClassTransactionDead
	default:
		return ErrorClassGeneric
	}
}

// IsAlreadyInLedger reports whether the node already accepted the transaction.
func IsAlreadyInLedger(err error) bool {
	return Classify(err) == ErrorClassAlreadyInLedger
}

// IsTransactionDead reports whether the transaction's validity window passed.
func IsTransactionDead(err error) bool {
	return Classify(err) == ErrorClassTransactionDead
}
