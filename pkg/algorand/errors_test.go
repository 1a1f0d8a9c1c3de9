package algorand

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassGeneric},
		{"plain error mentioning marker", errors.New("transaction already in ledger"), ErrorClassGeneric},
		{"context deadline", context.DeadlineExceeded, ErrorClassGeneric},
		{"already in ledger", NewSubmitError("TransactionPool.Remember: transaction already in ledger: ABC"), ErrorClassAlreadyInLedger},
		{"dead", NewSubmitError("TransactionPool.Remember: txn dead: round 20000 outside of 100--1100"), ErrorClassTransactionDead},
		{"wrapped dead", fmt.Errorf("submit: %w", NewSubmitError("TXN DEAD: round 5")), ErrorClassTransactionDead},
		{"other rejection", &SubmitError{StatusCode: 400, Message: "overspend"}, ErrorClassGeneric},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSubmitErrorMessage(t *testing.T) {
	err := &SubmitError{StatusCode: 400, Message: "overspend"}
	if got := err.Error(); got != "submit transactions (status 400): overspend" {
		t.Fatalf("unexpected message %q", got)
	}
	if !IsTransactionDead(fmt.Errorf("x: %w", NewSubmitError("txn dead"))) {
		t.Fatalf("expected wrapped dead error to be detected")
	}
	if IsAlreadyInLedger(err) {
		t.Fatalf("overspend is not already-in-ledger")
	}
}

func TestSignedTransactionCodec(t *testing.T) {
	raw := []byte{0x82, 0xa3, 's', 'i', 'g'}
	decoded, err := DecodeSignedTransaction(EncodeSignedTransaction(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded) != string(raw) {
		t.Fatalf("round trip mismatch")
	}
	if _, err := DecodeSignedTransaction("not base64!"); err == nil {
		t.Fatalf("expected decode error")
	}
}
