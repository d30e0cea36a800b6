package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

type Booking struct {
	ID              string         `db:"id"`
	UserID          sql.NullString `db:"user_id"`
	Status          string         `db:"status"`
	SoftLockedUntil sql.NullTime   `db:"soft_locked_until"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       sql.NullTime   `db:"updated_at"`
}

const (
	BookingStatusAwaitingPayment      = "awaiting_payment"
	BookingStatusPaid                 = "paid"
	BookingStatusExpiredBeforePayment = "expired_before_payment"
	BookingStatusCancelled            = "cancelled"
)

type BookingRepository interface {
	Insert(booking *Booking) (*Booking, error)
	GetOne(id string) (*Booking, bool, error)
	// MarkPaid transitions awaiting_payment -> paid and clears the soft lock.
	MarkPaid(id string) (bool, error)
	// ExpireIfAwaitingPayment fires the soft-lock deadline. It re-checks live
	// state in the same statement, so a booking paid in the interim is untouched.
	ExpireIfAwaitingPayment(id string) (bool, error)
}

type BookingRepositoryImpl struct {
	db *sqlx.DB
}

func NewBookingRepository(db *sqlx.DB) BookingRepository {
	return &BookingRepositoryImpl{db: db}
}

func (repo *BookingRepositoryImpl) Insert(booking *Booking) (*Booking, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var created Booking

	query := `
		INSERT INTO bookings (user_id, status, soft_locked_until)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, status, soft_locked_until, created_at`

	err := repo.db.GetContext(ctx, &created, query,
		booking.UserID,
		BookingStatusAwaitingPayment,
		booking.SoftLockedUntil,
	)
	if err != nil {
		return nil, err
	}

	return &created, nil
}

func (repo *BookingRepositoryImpl) GetOne(id string) (*Booking, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var booking Booking

	query := `
        SELECT id, user_id, status, soft_locked_until, created_at, updated_at
        FROM bookings WHERE id=$1`

	err := repo.db.GetContext(ctx, &booking, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &booking, true, nil
}

func (repo *BookingRepositoryImpl) MarkPaid(id string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
        UPDATE bookings SET status=$1, soft_locked_until=NULL, updated_at=NOW()
        WHERE id=$2 AND status=$3`

	result, err := repo.db.ExecContext(ctx, query, BookingStatusPaid, id, BookingStatusAwaitingPayment)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

func (repo *BookingRepositoryImpl) ExpireIfAwaitingPayment(id string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
        UPDATE bookings SET status=$1, soft_locked_until=NULL, updated_at=NOW()
        WHERE id=$2 AND status=$3`

	result, err := repo.db.ExecContext(ctx, query, BookingStatusExpiredBeforePayment, id, BookingStatusAwaitingPayment)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}
