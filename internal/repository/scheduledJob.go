package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrJobNotFound = errors.New("scheduled job not found")

type ScheduledJob struct {
	ID          string         `db:"id"`
	JobType     string         `db:"job_type"`
	EntityID    string         `db:"entity_id"`
	Payload     []byte         `db:"payload"`
	ExecuteAt   time.Time      `db:"execute_at"`
	Status      string         `db:"status"`
	Attempts    int            `db:"attempts"`
	MaxAttempts int            `db:"max_attempts"`
	LastError   sql.NullString `db:"last_error"`
	ClosedAt    sql.NullTime   `db:"closed_at"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   sql.NullTime   `db:"updated_at"`
}

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusCancelled  = "cancelled"
)

// known job types
const (
	JobTypeBookingSoftLockExpiry     = "booking.soft_lock_expiry"
	JobTypeExternalTransactionExpiry = "external_transaction.expiry"
	JobTypePayoutRelease             = "payout.release"
)

type ScheduledJobRepository interface {
	Insert(job *ScheduledJob) (*ScheduledJob, error)
	GetOne(id string) (*ScheduledJob, bool, error)
	// Cancel is a silent no-op when the job is no longer pending;
	// cancellation racing with dispatch is expected.
	Cancel(id string) error
	CancelByEntity(jobType, entityID string) error
	// ClaimDue atomically flips due pending jobs to processing and returns
	// them. Two poller replicas can never claim the same job.
	ClaimDue(now time.Time, limit int) ([]ScheduledJob, error)
	// ReleaseStale frees processing claims whose worker died before
	// finishing; returns how many went back to the pending pool.
	ReleaseStale(olderThan time.Time) (int64, error)
	MarkCompleted(id string) error
	MarkFailed(id, reason string) error
	Reschedule(id string, at time.Time, reason string) error
}

type ScheduledJobRepositoryImpl struct {
	db *sqlx.DB
}

func NewScheduledJobRepository(db *sqlx.DB) ScheduledJobRepository {
	return &ScheduledJobRepositoryImpl{db: db}
}

func (repo *ScheduledJobRepositoryImpl) Insert(job *ScheduledJob) (*ScheduledJob, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var created ScheduledJob

	query := `
		INSERT INTO scheduled_jobs (job_type, entity_id, payload, execute_at, max_attempts)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, job_type, entity_id, payload, execute_at, status, attempts, max_attempts, last_error, closed_at, created_at, updated_at`

	err := repo.db.GetContext(ctx, &created, query,
		job.JobType,
		job.EntityID,
		job.Payload,
		job.ExecuteAt,
		maxAttempts,
	)
	if err != nil {
		return nil, err
	}

	return &created, nil
}

func (repo *ScheduledJobRepositoryImpl) GetOne(id string) (*ScheduledJob, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var job ScheduledJob

	query := `
        SELECT id, job_type, entity_id, payload, execute_at, status, attempts, max_attempts, last_error, closed_at, created_at, updated_at
        FROM scheduled_jobs WHERE id=$1`

	err := repo.db.GetContext(ctx, &job, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &job, true, nil
}

func (repo *ScheduledJobRepositoryImpl) Cancel(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
        UPDATE scheduled_jobs SET status=$1, closed_at=NOW(), updated_at=NOW()
        WHERE id=$2 AND status=$3`

	_, err := repo.db.ExecContext(ctx, query, JobStatusCancelled, id, JobStatusPending)
	return err
}

func (repo *ScheduledJobRepositoryImpl) CancelByEntity(jobType, entityID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
        UPDATE scheduled_jobs SET status=$1, closed_at=NOW(), updated_at=NOW()
        WHERE job_type=$2 AND entity_id=$3 AND status=$4`

	_, err := repo.db.ExecContext(ctx, query, JobStatusCancelled, jobType, entityID, JobStatusPending)
	return err
}

func (repo *ScheduledJobRepositoryImpl) ClaimDue(now time.Time, limit int) ([]ScheduledJob, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	var jobs []ScheduledJob

	// SKIP LOCKED keeps concurrent poller replicas from double-claiming
	query := `
		UPDATE scheduled_jobs SET status=$1, attempts=attempts+1, updated_at=NOW()
		WHERE id IN (
			SELECT id FROM scheduled_jobs
			WHERE status=$2 AND execute_at <= $3
			ORDER BY execute_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, job_type, entity_id, payload, execute_at, status, attempts, max_attempts, last_error, closed_at, created_at, updated_at`

	err := repo.db.SelectContext(ctx, &jobs, query, JobStatusProcessing, JobStatusPending, now, limit)
	if err != nil {
		return nil, err
	}

	return jobs, nil
}

// ReleaseStale recovers claims abandoned by a crashed worker. Processing
// rows untouched since olderThan go back to pending when attempts remain,
// otherwise they fail permanently.
func (repo *ScheduledJobRepositoryImpl) ReleaseStale(olderThan time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	releaseQuery := `
		UPDATE scheduled_jobs SET status=$1, updated_at=NOW()
		WHERE status=$2 AND updated_at < $3 AND attempts < max_attempts`

	result, err := repo.db.ExecContext(ctx, releaseQuery, JobStatusPending, JobStatusProcessing, olderThan)
	if err != nil {
		return 0, err
	}

	released, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	failQuery := `
		UPDATE scheduled_jobs SET status=$1, last_error=$2, closed_at=NOW(), updated_at=NOW()
		WHERE status=$3 AND updated_at < $4`

	_, err = repo.db.ExecContext(ctx, failQuery, JobStatusFailed, "claim expired with no attempts left", JobStatusProcessing, olderThan)
	if err != nil {
		return released, err
	}

	return released, nil
}

func (repo *ScheduledJobRepositoryImpl) MarkCompleted(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
        UPDATE scheduled_jobs SET status=$1, closed_at=NOW(), updated_at=NOW()
        WHERE id=$2 AND status=$3`

	return repo.expectOneRow(ctx, query, JobStatusCompleted, id, JobStatusProcessing)
}

func (repo *ScheduledJobRepositoryImpl) MarkFailed(id, reason string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
        UPDATE scheduled_jobs SET status=$1, last_error=$2, closed_at=NOW(), updated_at=NOW()
        WHERE id=$3 AND status=$4`

	return repo.expectOneRow(ctx, query, JobStatusFailed, reason, id, JobStatusProcessing)
}

// Reschedule puts a processing job back in the pending pool for a later
// attempt, recording why the last attempt failed.
func (repo *ScheduledJobRepositoryImpl) Reschedule(id string, at time.Time, reason string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
        UPDATE scheduled_jobs SET status=$1, execute_at=$2, last_error=$3, updated_at=NOW()
        WHERE id=$4 AND status=$5`

	return repo.expectOneRow(ctx, query, JobStatusPending, at, reason, id, JobStatusProcessing)
}

func (repo *ScheduledJobRepositoryImpl) expectOneRow(ctx context.Context, query string, args ...any) error {
	result, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrJobNotFound
	}

	return nil
}
