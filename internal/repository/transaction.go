package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type WalletTransaction struct {
	ID                  string          `db:"id"`
	SourceWalletID      string          `db:"source_wallet_id"`
	DestinationWalletID string          `db:"destination_wallet_id"`
	Amount              decimal.Decimal `db:"amount"`
	Currency            string          `db:"currency"`
	Type                string          `db:"type"`
	Status              string          `db:"status"`
	Note                sql.NullString  `db:"note"`
	CreatedAt           time.Time       `db:"created_at"`
	UpdatedAt           sql.NullTime    `db:"updated_at"`
}

// define possible transaction status
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// transaction type is classified by the destination wallet's role
const (
	TransactionTypeToWallet  = "to_wallet"
	TransactionTypeToEscrow  = "to_escrow"
	TransactionTypeToRevenue = "to_revenue"
)

type TransactionRepository interface {
	Insert(transaction *WalletTransaction) (*WalletTransaction, error)
	GetOne(id string) (*WalletTransaction, bool, error)
	ListByWallet(walletID string, limit int) ([]WalletTransaction, error)
	MarkCompleted(id string) (bool, error)
	MarkFailed(id, note string) (bool, error)
}

type TransactionRepositoryImpl struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) TransactionRepository {
	return &TransactionRepositoryImpl{db: db}
}

func (repo *TransactionRepositoryImpl) Insert(transaction *WalletTransaction) (*WalletTransaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var trans WalletTransaction

	query := `
		INSERT INTO wallet_transactions (source_wallet_id, destination_wallet_id, amount, currency, type, note)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, source_wallet_id, destination_wallet_id, amount, currency, type, status, note, created_at`

	err := repo.db.GetContext(ctx, &trans, query,
		transaction.SourceWalletID,
		transaction.DestinationWalletID,
		transaction.Amount,
		transaction.Currency,
		transaction.Type,
		transaction.Note,
	)
	if err != nil {
		return nil, err
	}

	return &trans, nil
}

func (repo *TransactionRepositoryImpl) GetOne(id string) (*WalletTransaction, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var trans WalletTransaction

	query := `
        SELECT id, source_wallet_id, destination_wallet_id, amount, currency, type, status, note, created_at, updated_at
        FROM wallet_transactions WHERE id=$1`

	err := repo.db.GetContext(ctx, &trans, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &trans, true, nil
}

func (repo *TransactionRepositoryImpl) ListByWallet(walletID string, limit int) ([]WalletTransaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	var transactions []WalletTransaction

	query := `
        SELECT id, source_wallet_id, destination_wallet_id, amount, currency, type, status, note, created_at, updated_at
        FROM wallet_transactions
        WHERE source_wallet_id=$1 OR destination_wallet_id=$1
        ORDER BY created_at DESC
        LIMIT $2`

	err := repo.db.SelectContext(ctx, &transactions, query, walletID, limit)
	if err != nil {
		return nil, err
	}

	return transactions, nil
}

// MarkCompleted transitions pending -> completed. The status filter makes the
// transition one-directional; a record never re-enters pending.
func (repo *TransactionRepositoryImpl) MarkCompleted(id string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
        UPDATE wallet_transactions SET status=$1, updated_at=NOW()
        WHERE id=$2 AND status=$3`

	result, err := repo.db.ExecContext(ctx, query, TransactionStatusCompleted, id, TransactionStatusPending)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

func (repo *TransactionRepositoryImpl) MarkFailed(id, note string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
        UPDATE wallet_transactions SET status=$1, note=$2, updated_at=NOW()
        WHERE id=$3 AND status=$4`

	result, err := repo.db.ExecContext(ctx, query, TransactionStatusFailed, note, id, TransactionStatusPending)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}
