package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/kelani/settled/assets"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/lib/pq"
)

const defaultTimeout = 3 * time.Second

// Database interface defines available repositories
type Database interface {
	Wallet() WalletRepository
	Transaction() TransactionRepository
	ExternalTransaction() ExternalTransactionRepository
	ScheduledJob() ScheduledJobRepository
	Booking() BookingRepository
	Payout() PayoutRepository

	Close() error
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// DatabaseImpl implements the Database interface
type DatabaseImpl struct {
	db                      *sqlx.DB
	walletRepo              WalletRepository
	transactionRepo         TransactionRepository
	externalTransactionRepo ExternalTransactionRepository
	scheduledJobRepo        ScheduledJobRepository
	bookingRepo             BookingRepository
	payoutRepo              PayoutRepository

	mu sync.Mutex
}

// New initializes a database connection and runs migrations if enabled
func New(dsn string, automigrate bool) (Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", "postgres://"+dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(2 * time.Hour)

	if automigrate {
		iofsDriver, err := iofs.New(assets.EmbeddedFiles, "migrations")
		if err != nil {
			return nil, err
		}

		migrator, err := migrate.NewWithSourceInstance("iofs", iofsDriver, "postgres://"+dsn)
		if err != nil {
			return nil, err
		}

		if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, err
		}
	}

	return &DatabaseImpl{db: db}, nil
}

func (d *DatabaseImpl) Close() error {
	return d.db.Close()
}

func (d *DatabaseImpl) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	tx, err := d.db.BeginTxx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (d *DatabaseImpl) Wallet() WalletRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.walletRepo == nil {
		d.walletRepo = NewWalletRepository(d.db)
	}
	return d.walletRepo
}

func (d *DatabaseImpl) Transaction() TransactionRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transactionRepo == nil {
		d.transactionRepo = NewTransactionRepository(d.db)
	}
	return d.transactionRepo
}

func (d *DatabaseImpl) ExternalTransaction() ExternalTransactionRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.externalTransactionRepo == nil {
		d.externalTransactionRepo = NewExternalTransactionRepository(d.db)
	}
	return d.externalTransactionRepo
}

func (d *DatabaseImpl) ScheduledJob() ScheduledJobRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.scheduledJobRepo == nil {
		d.scheduledJobRepo = NewScheduledJobRepository(d.db)
	}
	return d.scheduledJobRepo
}

func (d *DatabaseImpl) Booking() BookingRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bookingRepo == nil {
		d.bookingRepo = NewBookingRepository(d.db)
	}
	return d.bookingRepo
}

func (d *DatabaseImpl) Payout() PayoutRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.payoutRepo == nil {
		d.payoutRepo = NewPayoutRepository(d.db)
	}
	return d.payoutRepo
}
