// Package transactions records signed blockchain transactions as groups and
// drives them to a durable terminal status.
package transactions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/packclaim/pkg/algorand"
	"github.com/angelmondragon/packclaim/pkg/db/models"
	"github.com/angelmondragon/packclaim/pkg/enums"
	pkgerrors "github.com/angelmondragon/packclaim/pkg/errors"
	"github.com/angelmondragon/packclaim/pkg/logger"
	"github.com/angelmondragon/packclaim/pkg/metrics"
)

// ErrNotConfirmed is returned when polling ends with transactions still in
// the pool. A later attempt polls again.
var ErrNotConfirmed = errors.New("some transactions have not been confirmed")

// PoolError carries the node's reason for dropping a transaction.
type PoolError struct {
	TxID    string
	Message string
}

func (e *PoolError) Error() string {
	return e.Message
}

func errMissingPayload(address string) error {
	return pkgerrors.Newf(pkgerrors.CodeUnrecoverable, "transaction %s has no signed payload", address)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	DB      txRunner
	Repo    Repository
	Chain   algorand.Adapter
	Logger  *logger.Logger
	Metrics *metrics.TransactionMetrics
	Clock   func() time.Time
}

// Service is the transaction ledger recorder.
type Service struct {
	db      txRunner
	repo    Repository
	chain   algorand.Adapter
	logg    *logger.Logger
	metrics *metrics.TransactionMetrics
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	if params.Chain == nil {
		return nil, fmt.Errorf("algorand adapter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		db:      params.DB,
		repo:    params.Repo,
		chain:   params.Chain,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     clock,
	}, nil
}

// SaveSignedTransactions records one group plus a signed row per transaction.
// When tx is nil the writes run in their own transaction.
func (s *Service) SaveSignedTransactions(ctx context.Context, tx *gorm.DB, signed [][]byte, ids []string) (Batch, error) {
	if len(ids) == 0 {
		return Batch{}, pkgerrors.New(pkgerrors.CodeValidation, "no transactions to save")
	}
	if len(signed) != len(ids) {
		return Batch{}, pkgerrors.Newf(pkgerrors.CodeValidation, "%d signed transactions for %d ids", len(signed), len(ids))
	}

	var batch Batch
	save := func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		group := models.AlgorandTransactionGroup{ID: uuid.New()}
		if err := repo.CreateGroup(ctx, &group); err != nil {
			return fmt.Errorf("create transaction group: %w", err)
		}

		rows := make([]models.AlgorandTransaction, 0, len(ids))
		for i, id := range ids {
			order := i
			encoded := algorand.EncodeSignedTransaction(signed[i])
			rows = append(rows, models.AlgorandTransaction{
				ID:                       uuid.New(),
				Address:                  id,
				Status:                   enums.AlgorandTransactionStatusSigned,
				GroupID:                  &group.ID,
				OrderIndex:               &order,
				EncodedSignedTransaction: &encoded,
			})
		}
		if err := repo.CreateTransactions(ctx, rows); err != nil {
			return fmt.Errorf("create transactions: %w", err)
		}
		batch = Batch{GroupID: group.ID, Transactions: rows}
		return nil
	}

	var err error
	if tx != nil {
		err = save(tx)
	} else {
		err = s.db.WithTx(ctx, save)
	}
	if err != nil {
		return Batch{}, err
	}
	return batch, nil
}

// LoadBatch returns the group that transactionID belongs to.
func (s *Service) LoadBatch(ctx context.Context, transactionID uuid.UUID) (Batch, error) {
	row, err := s.repo.FindByID(ctx, transactionID)
	if err != nil {
		return Batch{}, fmt.Errorf("find transaction %s: %w", transactionID, err)
	}
	if row == nil {
		return Batch{}, pkgerrors.Newf(pkgerrors.CodeStateConflict, "transaction %s not found", transactionID)
	}
	if row.GroupID == nil {
		return Batch{}, pkgerrors.Newf(pkgerrors.CodeUnrecoverable, "transaction %s has no group", transactionID)
	}
	rows, err := s.repo.ListGroupTransactions(ctx, *row.GroupID)
	if err != nil {
		return Batch{}, fmt.Errorf("list group %s: %w", *row.GroupID, err)
	}
	if len(rows) == 0 {
		return Batch{}, pkgerrors.Newf(pkgerrors.CodeUnrecoverable, "transaction group %s is empty", *row.GroupID)
	}
	return Batch{GroupID: *row.GroupID, Transactions: rows}, nil
}

// SubmitAndWaitForTransactionsIfNecessary brings a recorded group to
// confirmed. Confirmed groups are left alone; pending groups are only polled;
// anything else is (re)submitted. Every failure marks the group failed before
// it is returned.
func (s *Service) SubmitAndWaitForTransactionsIfNecessary(ctx context.Context, signed [][]byte, ids []string) error {
	if len(ids) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "no transactions to submit")
	}

	err := s.submitAndWait(ctx, signed, ids)
	if err == nil {
		return nil
	}

	s.metrics.IncFailed()
	msg := err.Error()
	if _, markErr := s.repo.MarkStatuses(context.WithoutCancel(ctx), ids, enums.AlgorandTransactionStatusFailed, &msg, s.now()); markErr != nil {
		s.logg.Error(ctx, "failed to record transaction failure", markErr)
	}
	return err
}

func (s *Service) submitAndWait(ctx context.Context, signed [][]byte, ids []string) error {
	status, found, err := s.repo.LatestStatus(ctx, ids[0])
	if err != nil {
		return fmt.Errorf("lookup transaction status: %w", err)
	}
	if !found {
		return pkgerrors.Newf(pkgerrors.CodeUnrecoverable, "unable to lookup status of transaction %s", ids[0])
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"transaction_id": ids[0], "group_size": len(ids), "status": status})

	switch status {
	case enums.AlgorandTransactionStatusConfirmed:
		s.metrics.IncSubmission(metrics.SubmitSkipped)
		return nil
	case enums.AlgorandTransactionStatusPending:
		return s.waitAndMarkConfirmed(ctx, ids)
	}

	if err := s.chain.SubmitTransaction(ctx, signed); err != nil {
		switch algorand.Classify(err) {
		case algorand.ErrorClassAlreadyInLedger:
			s.metrics.IncSubmission(metrics.SubmitAlreadyInLedger)
			s.logg.Info(ctx, "transactions already in ledger")
			return s.markConfirmed(ctx, ids)
		case algorand.ErrorClassTransactionDead:
			s.metrics.IncSubmission(metrics.SubmitDead)
		default:
			s.metrics.IncSubmission(metrics.SubmitRejected)
		}
		return err
	}
	s.metrics.IncSubmission(metrics.SubmitAccepted)

	if _, err := s.repo.MarkStatuses(ctx, ids, enums.AlgorandTransactionStatusPending, nil, s.now()); err != nil {
		return fmt.Errorf("mark transactions pending: %w", err)
	}
	return s.waitAndMarkConfirmed(ctx, ids)
}

func (s *Service) waitAndMarkConfirmed(ctx context.Context, ids []string) error {
	infos, err := s.chain.WaitForAllConfirmations(ctx, ids)
	if err != nil {
		return fmt.Errorf("wait for confirmations: %w", err)
	}
	for _, info := range infos {
		if info.PoolError != "" {
			return &PoolError{TxID: info.TxID, Message: info.PoolError}
		}
	}
	if len(infos) != len(ids) {
		return ErrNotConfirmed
	}
	for _, info := range infos {
		if !info.Confirmed() {
			return ErrNotConfirmed
		}
	}
	return s.markConfirmed(ctx, ids)
}

func (s *Service) markConfirmed(ctx context.Context, ids []string) error {
	if _, err := s.repo.MarkStatuses(ctx, ids, enums.AlgorandTransactionStatusConfirmed, nil, s.now()); err != nil {
		return fmt.Errorf("mark transactions confirmed: %w", err)
	}
	s.metrics.IncConfirmed()
	s.logg.Info(ctx, "transactions confirmed")
	return nil
}

// RecoverDeadGroup detaches a group from its owner and deletes it so the next
// attempt signs fresh transactions. clear must null the owner's reference
// through the given transaction.
func (s *Service) RecoverDeadGroup(ctx context.Context, groupID uuid.UUID, clear func(tx *gorm.DB) error) error {
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if clear != nil {
			if err := clear(tx); err != nil {
				return fmt.Errorf("clear transaction reference: %w", err)
			}
		}
		if _, err := s.repo.WithTx(tx).DeleteGroup(ctx, groupID); err != nil {
			return fmt.Errorf("delete transaction group %s: %w", groupID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logg.Warn(s.logg.WithField(ctx, "group_id", groupID.String()), "dead transaction group discarded")
	return nil
}

// SettleBatch drives a recorded batch to confirmed. A dead group is discarded
// through clear before the original error is returned, so the next attempt
// starts from fresh transactions.
func (s *Service) SettleBatch(ctx context.Context, batch Batch, clear func(tx *gorm.DB) error) error {
	if batch.Confirmed() {
		return nil
	}
	signed, err := batch.SignedTransactions()
	if err != nil {
		return err
	}
	err = s.SubmitAndWaitForTransactionsIfNecessary(ctx, signed, batch.TransactionIDs())
	if err == nil {
		return nil
	}
	if algorand.IsTransactionDead(err) {
		if recoverErr := s.RecoverDeadGroup(ctx, batch.GroupID, clear); recoverErr != nil {
			return multierr.Append(err, recoverErr)
		}
	}
	return err
}
