package worker

import (
	"context"
	"log/slog"

	"github.com/kelani/settled/internal/helper"
	"github.com/kelani/settled/internal/ledger"
	"github.com/kelani/settled/internal/repository"
	"github.com/kelani/settled/internal/scheduler"
	"github.com/kelani/settled/internal/smtp"
	"github.com/kelani/settled/internal/stream"
)

// consumer group ids
const (
	// transactionAlertGroupID is used for workers that react to completed
	// ledger transactions, e.g. sending alerts
	transactionAlertGroupID = "transaction-alert-group"
)

// Notifier publishes domain events after a deferred effect has been applied.
type Notifier interface {
	TransactionCompleted(event *stream.TransactionCompletedEvent) error
	BookingExpired(event *stream.BookingExpiredEvent) error
	PayoutReleased(event *stream.PayoutReleasedEvent) error
}

// Worker hosts the deferred-effect handlers fired by the due-job poller and
// the stream consumers that fan notifications out. Handlers never trust the
// job payload; they re-read live state, which makes a double-fire a no-op.
type Worker struct {
	DB          repository.Database
	KafkaStream *stream.KafkaStream
	Notifier    Notifier
	Ledger      *ledger.Engine
	Mailer      smtp.MailerInterface
	Helper      *helper.HelperRepository
	Logger      *slog.Logger
	Ctx         context.Context

	// NotificationsEmail receives transaction alert emails when set
	NotificationsEmail string
}

func New(wk *Worker) *Worker {
	return &Worker{
		DB:                 wk.DB,
		KafkaStream:        wk.KafkaStream,
		Notifier:           wk.Notifier,
		Ledger:             wk.Ledger,
		Mailer:             wk.Mailer,
		Helper:             wk.Helper,
		Logger:             wk.Logger,
		Ctx:                wk.Ctx,
		NotificationsEmail: wk.NotificationsEmail,
	}
}

// RegisterHandlers wires every deferred-effect handler into the poller.
func (wk *Worker) RegisterHandlers(s *scheduler.Scheduler) {
	s.Register(repository.JobTypeBookingSoftLockExpiry, scheduler.HandlerFunc(wk.HandleBookingSoftLockExpiry))
	s.Register(repository.JobTypeExternalTransactionExpiry, scheduler.HandlerFunc(wk.HandleExternalTransactionExpiry))
	s.Register(repository.JobTypePayoutRelease, scheduler.HandlerFunc(wk.HandlePayoutRelease))
}
