package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type WalletExternalTransaction struct {
	ID           string          `db:"id"`
	WalletID     string          `db:"wallet_id"`
	Direction    string          `db:"direction"`
	Amount       decimal.Decimal `db:"amount"`
	Currency     string          `db:"currency"`
	Provider     string          `db:"provider"`
	ProviderTxID sql.NullString  `db:"provider_tx_id"`
	PaymentURL   sql.NullString  `db:"payment_url"`
	Status       string          `db:"status"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    sql.NullTime    `db:"updated_at"`
}

const (
	ExternalDirectionDeposit  = "deposit"
	ExternalDirectionWithdraw = "withdraw"
)

// The status graph is a DAG: pending -> ready_for_payment -> completed,
// with expired, rejected and cancelled as terminal exits. Nothing ever
// moves back to pending.
const (
	ExternalStatusPending         = "pending"
	ExternalStatusReadyForPayment = "ready_for_payment"
	ExternalStatusCompleted       = "completed"
	ExternalStatusExpired         = "expired"
	ExternalStatusRejected        = "rejected"
	ExternalStatusCancelled       = "cancelled"
)

type ExternalTransactionRepository interface {
	Insert(transaction *WalletExternalTransaction) (*WalletExternalTransaction, error)
	GetOne(id string) (*WalletExternalTransaction, bool, error)
	MarkReadyForPayment(id, paymentURL string) (bool, error)
	MarkCompleted(id, providerTxID string) (bool, error)
	// ReopenForPayment is the compensation for a completion whose balance
	// mutation failed; completed -> ready_for_payment.
	ReopenForPayment(id string) (bool, error)
	MarkRejected(id, providerTxID string) (bool, error)
	MarkExpired(id string) (bool, error)
	MarkCancelled(id string) (bool, error)
}

type ExternalTransactionRepositoryImpl struct {
	db *sqlx.DB
}

func NewExternalTransactionRepository(db *sqlx.DB) ExternalTransactionRepository {
	return &ExternalTransactionRepositoryImpl{db: db}
}

func (repo *ExternalTransactionRepositoryImpl) Insert(transaction *WalletExternalTransaction) (*WalletExternalTransaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var trans WalletExternalTransaction

	query := `
		INSERT INTO wallet_external_transactions (wallet_id, direction, amount, currency, provider)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, wallet_id, direction, amount, currency, provider, provider_tx_id, payment_url, status, created_at`

	err := repo.db.GetContext(ctx, &trans, query,
		transaction.WalletID,
		transaction.Direction,
		transaction.Amount,
		transaction.Currency,
		transaction.Provider,
	)
	if err != nil {
		return nil, err
	}

	return &trans, nil
}

func (repo *ExternalTransactionRepositoryImpl) GetOne(id string) (*WalletExternalTransaction, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var trans WalletExternalTransaction

	query := `
        SELECT id, wallet_id, direction, amount, currency, provider, provider_tx_id, payment_url, status, created_at, updated_at
        FROM wallet_external_transactions WHERE id=$1`

	err := repo.db.GetContext(ctx, &trans, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &trans, true, nil
}

func (repo *ExternalTransactionRepositoryImpl) MarkReadyForPayment(id, paymentURL string) (bool, error) {
	return repo.guardedTransition(
		`UPDATE wallet_external_transactions SET status=$1, payment_url=$2, updated_at=NOW()
		 WHERE id=$3 AND status=$4`,
		ExternalStatusReadyForPayment, paymentURL, id, ExternalStatusPending)
}

func (repo *ExternalTransactionRepositoryImpl) MarkCompleted(id, providerTxID string) (bool, error) {
	return repo.guardedTransition(
		`UPDATE wallet_external_transactions SET status=$1, provider_tx_id=$2, updated_at=NOW()
		 WHERE id=$3 AND status=$4`,
		ExternalStatusCompleted, providerTxID, id, ExternalStatusReadyForPayment)
}

// ReopenForPayment rolls a completed transaction back to ready_for_payment.
// Used when the balance mutation after completion failed, so the provider's
// retry can settle the transaction instead of bouncing off the status guard.
func (repo *ExternalTransactionRepositoryImpl) ReopenForPayment(id string) (bool, error) {
	return repo.guardedTransition(
		`UPDATE wallet_external_transactions SET status=$1, provider_tx_id=NULL, updated_at=NOW()
		 WHERE id=$2 AND status=$3`,
		ExternalStatusReadyForPayment, id, ExternalStatusCompleted)
}

func (repo *ExternalTransactionRepositoryImpl) MarkRejected(id, providerTxID string) (bool, error) {
	return repo.guardedTransition(
		`UPDATE wallet_external_transactions SET status=$1, provider_tx_id=$2, updated_at=NOW()
		 WHERE id=$3 AND status=$4`,
		ExternalStatusRejected, providerTxID, id, ExternalStatusReadyForPayment)
}

// MarkExpired closes transactions the provider never confirmed. Both pending
// and ready_for_payment rows can expire.
func (repo *ExternalTransactionRepositoryImpl) MarkExpired(id string) (bool, error) {
	return repo.guardedTransition(
		`UPDATE wallet_external_transactions SET status=$1, updated_at=NOW()
		 WHERE id=$2 AND status IN ($3, $4)`,
		ExternalStatusExpired, id, ExternalStatusPending, ExternalStatusReadyForPayment)
}

func (repo *ExternalTransactionRepositoryImpl) MarkCancelled(id string) (bool, error) {
	return repo.guardedTransition(
		`UPDATE wallet_external_transactions SET status=$1, updated_at=NOW()
		 WHERE id=$2 AND status IN ($3, $4)`,
		ExternalStatusCancelled, id, ExternalStatusPending, ExternalStatusReadyForPayment)
}

func (repo *ExternalTransactionRepositoryImpl) guardedTransition(query string, args ...any) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	result, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}
