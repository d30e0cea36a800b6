package mocks

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/kelani/settled/internal/repository"
)

// StubDatabase is a repository.Database facade over individual repo mocks.
type StubDatabase struct {
	WalletRepo              repository.WalletRepository
	TransactionRepo         repository.TransactionRepository
	ExternalTransactionRepo repository.ExternalTransactionRepository
	ScheduledJobRepo        repository.ScheduledJobRepository
	BookingRepo             repository.BookingRepository
	PayoutRepo              repository.PayoutRepository
}

func (db *StubDatabase) Wallet() repository.WalletRepository { return db.WalletRepo }

func (db *StubDatabase) Transaction() repository.TransactionRepository { return db.TransactionRepo }

func (db *StubDatabase) ExternalTransaction() repository.ExternalTransactionRepository {
	return db.ExternalTransactionRepo
}

func (db *StubDatabase) ScheduledJob() repository.ScheduledJobRepository {
	return db.ScheduledJobRepo
}

func (db *StubDatabase) Booking() repository.BookingRepository { return db.BookingRepo }

func (db *StubDatabase) Payout() repository.PayoutRepository { return db.PayoutRepo }

func (db *StubDatabase) Close() error { return nil }

func (db *StubDatabase) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, nil
}
