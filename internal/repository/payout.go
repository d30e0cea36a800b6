package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type Payout struct {
	ID                string          `db:"id"`
	EscrowWalletID    string          `db:"escrow_wallet_id"`
	RecipientWalletID string          `db:"recipient_wallet_id"`
	Amount            decimal.Decimal `db:"amount"`
	Currency          string          `db:"currency"`
	Status            string          `db:"status"`
	TransactionID     sql.NullString  `db:"transaction_id"`
	FailureReason     sql.NullString  `db:"failure_reason"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         sql.NullTime    `db:"updated_at"`
}

const (
	PayoutStatusScheduled = "scheduled"
	PayoutStatusReleasing = "releasing"
	PayoutStatusReleased  = "released"
	PayoutStatusFailed    = "failed"
)

type PayoutRepository interface {
	Insert(payout *Payout) (*Payout, error)
	GetOne(id string) (*Payout, bool, error)
	// BeginRelease claims the payout (scheduled -> releasing) so only one
	// handler run can move funds for it.
	BeginRelease(id string) (bool, error)
	// AbortRelease returns a claim whose transfer never happened
	// (releasing -> scheduled) so a retry can claim it again.
	AbortRelease(id string) (bool, error)
	MarkReleased(id, transactionID string) (bool, error)
	MarkFailed(id, reason string) (bool, error)
}

type PayoutRepositoryImpl struct {
	db *sqlx.DB
}

func NewPayoutRepository(db *sqlx.DB) PayoutRepository {
	return &PayoutRepositoryImpl{db: db}
}

func (repo *PayoutRepositoryImpl) Insert(payout *Payout) (*Payout, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var created Payout

	query := `
		INSERT INTO payouts (escrow_wallet_id, recipient_wallet_id, amount, currency)
		VALUES ($1, $2, $3, $4)
		RETURNING id, escrow_wallet_id, recipient_wallet_id, amount, currency, status, created_at`

	err := repo.db.GetContext(ctx, &created, query,
		payout.EscrowWalletID,
		payout.RecipientWalletID,
		payout.Amount,
		payout.Currency,
	)
	if err != nil {
		return nil, err
	}

	return &created, nil
}

func (repo *PayoutRepositoryImpl) GetOne(id string) (*Payout, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var payout Payout

	query := `
        SELECT id, escrow_wallet_id, recipient_wallet_id, amount, currency, status, transaction_id, failure_reason, created_at, updated_at
        FROM payouts WHERE id=$1`

	err := repo.db.GetContext(ctx, &payout, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &payout, true, nil
}

func (repo *PayoutRepositoryImpl) BeginRelease(id string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
        UPDATE payouts SET status=$1, updated_at=NOW()
        WHERE id=$2 AND status=$3`

	result, err := repo.db.ExecContext(ctx, query, PayoutStatusReleasing, id, PayoutStatusScheduled)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

func (repo *PayoutRepositoryImpl) AbortRelease(id string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
        UPDATE payouts SET status=$1, updated_at=NOW()
        WHERE id=$2 AND status=$3`

	result, err := repo.db.ExecContext(ctx, query, PayoutStatusScheduled, id, PayoutStatusReleasing)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

func (repo *PayoutRepositoryImpl) MarkReleased(id, transactionID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
        UPDATE payouts SET status=$1, transaction_id=$2, updated_at=NOW()
        WHERE id=$3 AND status=$4`

	result, err := repo.db.ExecContext(ctx, query, PayoutStatusReleased, transactionID, id, PayoutStatusReleasing)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

func (repo *PayoutRepositoryImpl) MarkFailed(id, reason string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
        UPDATE payouts SET status=$1, failure_reason=$2, updated_at=NOW()
        WHERE id=$3 AND status=$4`

	result, err := repo.db.ExecContext(ctx, query, PayoutStatusFailed, reason, id, PayoutStatusScheduled)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}
