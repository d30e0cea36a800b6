package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var (
	ErrWalletNotFound          = errors.New("wallet not found")
	ErrWalletLocked            = errors.New("wallet is locked")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrInsufficientLockedFunds = errors.New("insufficient locked funds")
)

type Wallet struct {
	ID                string          `db:"id"`
	UserID            sql.NullString  `db:"user_id"`
	Role              string          `db:"role"`
	Currency          string          `db:"currency"`
	Balance           decimal.Decimal `db:"balance"`
	LockedBalance     decimal.Decimal `db:"locked_balance"`
	TotalTransactions int64           `db:"total_transactions"`
	Status            string          `db:"status"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         sql.NullTime    `db:"updated_at"`
	DeletedAt         sql.NullTime    `db:"deleted_at"`
}

const (
	WalletActiveStatus = "active"
	WalletLockedStatus = "locked"

	WalletRoleUser   = "user"
	WalletRoleSystem = "system"
	WalletRoleEscrow = "escrow"
)

// WalletRepository is the ledger store. Every balance mutation is a single
// conditional UPDATE evaluated server-side, so two concurrent writers can
// never both pass a pre-check and over-draw a wallet.
type WalletRepository interface {
	Insert(wallet *Wallet, tx *sqlx.Tx) (string, error)
	GetOne(id string) (*Wallet, bool, error)
	FindByRole(role, currency string) (*Wallet, bool, error)
	Increment(id string, amount decimal.Decimal) (decimal.Decimal, error)
	Decrement(id string, amount decimal.Decimal) (decimal.Decimal, error)
	LockFunds(id string, amount decimal.Decimal) error
	UnlockFunds(id string, amount decimal.Decimal) error
	SpendLockedFunds(id string, amount decimal.Decimal) error
	IncrementTxCount(id string) error
	Freeze(id string) error
}

type WalletRepositoryImpl struct {
	db *sqlx.DB
}

func NewWalletRepository(db *sqlx.DB) WalletRepository {
	return &WalletRepositoryImpl{db: db}
}

func (repo *WalletRepositoryImpl) Insert(wallet *Wallet, tx *sqlx.Tx) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var id string

	query := `
		INSERT INTO wallets (user_id, role, currency)
		VALUES ($1, $2, $3)
		ON CONFLICT (role, currency) WHERE role <> 'user' AND deleted_at IS NULL DO NOTHING
		RETURNING id`
	if tx != nil {
		err := tx.QueryRowContext(ctx, query,
			wallet.UserID,
			wallet.Role,
			wallet.Currency,
		).Scan(&id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", nil
			}
			return "", err
		}
	} else {
		err := repo.db.GetContext(ctx, &id, query,
			wallet.UserID,
			wallet.Role,
			wallet.Currency,
		)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", nil
			}
			return "", err
		}
	}

	return id, nil
}

func (repo *WalletRepositoryImpl) GetOne(id string) (*Wallet, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var wallet Wallet

	query := `
        SELECT id, user_id, role, currency, balance, locked_balance, total_transactions, status, created_at, updated_at, deleted_at
        FROM wallets WHERE id=$1 AND deleted_at IS NULL`

	err := repo.db.GetContext(ctx, &wallet, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &wallet, true, nil
}

func (repo *WalletRepositoryImpl) FindByRole(role, currency string) (*Wallet, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var wallet Wallet

	query := `
        SELECT id, user_id, role, currency, balance, locked_balance, total_transactions, status, created_at, updated_at, deleted_at
        FROM wallets WHERE role=$1 AND currency=$2 AND deleted_at IS NULL`

	err := repo.db.GetContext(ctx, &wallet, query, role, currency)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &wallet, true, nil
}

func (repo *WalletRepositoryImpl) Increment(id string, amount decimal.Decimal) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var balance decimal.Decimal

	query := `
		UPDATE wallets SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND deleted_at IS NULL
		RETURNING balance`

	err := repo.db.GetContext(ctx, &balance, query, amount, id, WalletActiveStatus)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, repo.classifyFailedMutation(id, false)
		}
		return decimal.Zero, err
	}

	return balance, nil
}

func (repo *WalletRepositoryImpl) Decrement(id string, amount decimal.Decimal) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var balance decimal.Decimal

	// the sufficiency check and the subtraction happen in one statement
	query := `
		UPDATE wallets SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND balance >= $1 AND deleted_at IS NULL
		RETURNING balance`

	err := repo.db.GetContext(ctx, &balance, query, amount, id, WalletActiveStatus)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, repo.classifyFailedMutation(id, true)
		}
		return decimal.Zero, err
	}

	return balance, nil
}

func (repo *WalletRepositoryImpl) LockFunds(id string, amount decimal.Decimal) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		UPDATE wallets SET balance = balance - $1, locked_balance = locked_balance + $1, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND balance >= $1 AND deleted_at IS NULL`

	result, err := repo.db.ExecContext(ctx, query, amount, id, WalletActiveStatus)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repo.classifyFailedMutation(id, true)
	}

	return nil
}

func (repo *WalletRepositoryImpl) UnlockFunds(id string, amount decimal.Decimal) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		UPDATE wallets SET balance = balance + $1, locked_balance = locked_balance - $1, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND locked_balance >= $1 AND deleted_at IS NULL`

	result, err := repo.db.ExecContext(ctx, query, amount, id, WalletActiveStatus)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repo.classifyFailedLockedMutation(id)
	}

	return nil
}

func (repo *WalletRepositoryImpl) SpendLockedFunds(id string, amount decimal.Decimal) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		UPDATE wallets SET locked_balance = locked_balance - $1, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND locked_balance >= $1 AND deleted_at IS NULL`

	result, err := repo.db.ExecContext(ctx, query, amount, id, WalletActiveStatus)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repo.classifyFailedLockedMutation(id)
	}

	return nil
}

func (repo *WalletRepositoryImpl) IncrementTxCount(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `UPDATE wallets SET total_transactions = total_transactions + 1, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	_, err := repo.db.ExecContext(ctx, query, id)
	return err
}

func (repo *WalletRepositoryImpl) Freeze(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `UPDATE wallets SET status = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL`

	_, err := repo.db.ExecContext(ctx, query, WalletLockedStatus, id)
	return err
}

// classifyFailedMutation works out why a guarded balance update matched no
// rows, so callers get a specific error instead of a generic failure.
func (repo *WalletRepositoryImpl) classifyFailedMutation(id string, wasDebit bool) error {
	wallet, found, err := repo.GetOne(id)
	if err != nil {
		return err
	}
	if !found {
		return ErrWalletNotFound
	}
	if wallet.Status == WalletLockedStatus {
		return ErrWalletLocked
	}
	if wasDebit {
		return ErrInsufficientFunds
	}
	return ErrWalletNotFound
}

func (repo *WalletRepositoryImpl) classifyFailedLockedMutation(id string) error {
	wallet, found, err := repo.GetOne(id)
	if err != nil {
		return err
	}
	if !found {
		return ErrWalletNotFound
	}
	if wallet.Status == WalletLockedStatus {
		return ErrWalletLocked
	}
	return ErrInsufficientLockedFunds
}
