package enums

import "fmt"

// AlgorandTransactionStatus maps to the algorand_transaction_status enum in Postgres.
// Rows move signed -> pending -> confirmed|failed and never leave confirmed.
type AlgorandTransactionStatus string

const (
	AlgorandTransactionStatusSigned    AlgorandTransactionStatus = "signed"
	AlgorandTransactionStatusPending   AlgorandTransactionStatus = "pending"
	AlgorandTransactionStatusConfirmed AlgorandTransactionStatus = "confirmed"
	AlgorandTransactionStatusFailed    AlgorandTransactionStatus = "failed"
)

var validAlgorandTransactionStatuses = []AlgorandTransactionStatus{
	AlgorandTransactionStatusSigned,
	AlgorandTransactionStatusPending,
	AlgorandTransactionStatusConfirmed,
	AlgorandTransactionStatusFailed,
}

// IsValid reports whether the value matches the canonical enum.
func (s AlgorandTransactionStatus) IsValid() bool {
	for _, candidate := range validAlgorandTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further status change is expected.
func (s AlgorandTransactionStatus) IsTerminal() bool {
	return s == AlgorandTransactionStatusConfirmed || s == AlgorandTransactionStatusFailed
}

// ParseAlgorandTransactionStatus converts raw input into AlgorandTransactionStatus.
func ParseAlgorandTransactionStatus(value string) (AlgorandTransactionStatus, error) {
	for _, candidate := range validAlgorandTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid algorand transaction status %q", value)
}
