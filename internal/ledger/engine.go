package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kelani/settled/internal/repository"
	"github.com/kelani/settled/internal/stream"
)

var (
	ErrCurrencyMismatch         = errors.New("currency mismatch")
	ErrInvalidDestinationWallet = errors.New("invalid destination wallet")
	ErrInvalidAmount            = errors.New("transfer amount must be greater than zero")
)

// Notifier receives fire-and-forget notifications once a transfer has
// committed. A delivery failure is logged, never propagated: the ledger
// mutation already happened.
type Notifier interface {
	TransactionCompleted(event *stream.TransactionCompletedEvent) error
}

// Engine moves funds between two wallets as one logical operation with a
// pending -> completed/failed transaction record around the mutation.
type Engine struct {
	wallets      repository.WalletRepository
	transactions repository.TransactionRepository
	notifier     Notifier
	logger       *slog.Logger
}

func New(wallets repository.WalletRepository, transactions repository.TransactionRepository, notifier Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		wallets:      wallets,
		transactions: transactions,
		notifier:     notifier,
		logger:       logger,
	}
}

func (e *Engine) Transfer(ctx context.Context, sourceWalletID, destinationWalletID string, amount decimal.Decimal, currency, note string) (*repository.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	if sourceWalletID == destinationWalletID {
		return nil, ErrInvalidDestinationWallet
	}

	source, found, err := e.wallets.GetOne(sourceWalletID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, repository.ErrWalletNotFound
	}
	if source.Status == repository.WalletLockedStatus {
		return nil, repository.ErrWalletLocked
	}

	destination, found, err := e.wallets.GetOne(destinationWalletID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrInvalidDestinationWallet
	}
	if destination.Status == repository.WalletLockedStatus {
		return nil, repository.ErrWalletLocked
	}

	if source.Currency != currency || destination.Currency != currency {
		return nil, ErrCurrencyMismatch
	}

	// This pre-check gives the caller a fast failure; the decrement below
	// re-validates sufficiency atomically.
	if source.Balance.LessThan(amount) {
		return nil, repository.ErrInsufficientFunds
	}

	transaction, err := e.transactions.Insert(&repository.WalletTransaction{
		SourceWalletID:      sourceWalletID,
		DestinationWalletID: destinationWalletID,
		Amount:              amount,
		Currency:            currency,
		Type:                classifyTransferType(destination),
		Note:                toNullString(note),
	})
	if err != nil {
		return nil, err
	}

	if _, err := e.wallets.Decrement(sourceWalletID, amount); err != nil {
		e.failTransaction(transaction.ID, err.Error())
		return nil, err
	}

	if _, err := e.wallets.Increment(destinationWalletID, amount); err != nil {
		e.compensate(transaction.ID, sourceWalletID, amount)
		e.failTransaction(transaction.ID, err.Error())
		return nil, err
	}

	completed, err := e.transactions.MarkCompleted(transaction.ID)
	if err != nil {
		return nil, err
	}
	if !completed {
		// someone else already finalized the record; never un-finalize
		return nil, fmt.Errorf("transaction %s was no longer pending", transaction.ID)
	}
	transaction.Status = repository.TransactionStatusCompleted

	if err := e.wallets.IncrementTxCount(sourceWalletID); err != nil {
		e.logger.Error("incrementing source wallet transaction count", "wallet_id", sourceWalletID, "error", err)
	}
	if err := e.wallets.IncrementTxCount(destinationWalletID); err != nil {
		e.logger.Error("incrementing destination wallet transaction count", "wallet_id", destinationWalletID, "error", err)
	}

	e.notifyCompleted(transaction)

	return transaction, nil
}

// compensate re-credits the source after a failed destination increment.
// If the compensation itself fails, funds are in limbo until an operator
// reconciles the failed transaction record; that is logged loudly.
func (e *Engine) compensate(transactionID, sourceWalletID string, amount decimal.Decimal) {
	if _, err := e.wallets.Increment(sourceWalletID, amount); err != nil {
		e.logger.Error("compensation failed, funds in limbo",
			"transaction_id", transactionID,
			"wallet_id", sourceWalletID,
			"amount", amount.String(),
			"error", err,
		)
	}
}

func (e *Engine) failTransaction(transactionID, note string) {
	if _, err := e.transactions.MarkFailed(transactionID, note); err != nil {
		e.logger.Error("marking transaction failed", "transaction_id", transactionID, "error", err)
	}
}

func (e *Engine) notifyCompleted(transaction *repository.WalletTransaction) {
	err := e.notifier.TransactionCompleted(&stream.TransactionCompletedEvent{
		TransactionID:       transaction.ID,
		SourceWalletID:      transaction.SourceWalletID,
		DestinationWalletID: transaction.DestinationWalletID,
		Amount:              transaction.Amount.String(),
		Currency:            transaction.Currency,
		Type:                transaction.Type,
		CompletedAt:         time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		e.logger.Error("publishing transaction completed notification", "transaction_id", transaction.ID, "error", err)
	}
}

func classifyTransferType(destination *repository.Wallet) string {
	switch destination.Role {
	case repository.WalletRoleEscrow:
		return repository.TransactionTypeToEscrow
	case repository.WalletRoleSystem:
		return repository.TransactionTypeToRevenue
	default:
		return repository.TransactionTypeToWallet
	}
}

func toNullString(s string) (ns sql.NullString) {
	if s != "" {
		ns.String = s
		ns.Valid = true
	}
	return ns
}
