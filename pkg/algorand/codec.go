package algorand

import (
	"encoding/base64"
	"fmt"
)

// EncodeSignedTransaction renders a signed transaction for storage.
func EncodeSignedTransaction(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeSignedTransaction reverses EncodeSignedTransaction.
func DecodeSignedTransaction(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode signed transaction: %w", err)
	}
	return raw, nil
}
