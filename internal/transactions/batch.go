package transactions

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/packclaim/pkg/algorand"
	"github.com/angelmondragon/packclaim/pkg/db/models"
	"github.com/angelmondragon/packclaim/pkg/enums"
)

// Batch is a recorded group in submission order.
type Batch struct {
	GroupID      uuid.UUID
	Transactions []models.AlgorandTransaction
}

// TransactionIDs returns the network ids in group order.
func (b Batch) TransactionIDs() []string {
	ids := make([]string, 0, len(b.Transactions))
	for _, row := range b.Transactions {
		ids = append(ids, row.Address)
	}
	return ids
}

// SignedTransactions decodes the stored payloads in group order.
func (b Batch) SignedTransactions() ([][]byte, error) {
	signed := make([][]byte, 0, len(b.Transactions))
	for _, row := range b.Transactions {
		if row.EncodedSignedTransaction == nil {
			return nil, errMissingPayload(row.Address)
		}
		raw, err := algorand.DecodeSignedTransaction(*row.EncodedSignedTransaction)
		if err != nil {
			return nil, err
		}
		signed = append(signed, raw)
	}
	return signed, nil
}

// Confirmed reports whether the group is recorded as landed. Rows share fate,
// so the first one is representative.
func (b Batch) Confirmed() bool {
	return len(b.Transactions) > 0 && b.Transactions[0].Status == enums.AlgorandTransactionStatusConfirmed
}
