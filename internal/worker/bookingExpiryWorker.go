// A booking is soft-locked while payment is awaited. When the soft-lock
// deadline job fires we re-read the booking: if payment arrived in the
// interim the job is a no-op; otherwise the booking expires and the slot
// is released.
package worker

import (
	"context"
	"log"

	"github.com/kelani/settled/internal/repository"
	"github.com/kelani/settled/internal/stream"
)

func (wk *Worker) HandleBookingSoftLockExpiry(ctx context.Context, job *repository.ScheduledJob) error {
	expired, err := wk.DB.Booking().ExpireIfAwaitingPayment(job.EntityID)
	if err != nil {
		return err
	}

	if !expired {
		// already paid or cancelled; nothing to do
		log.Printf("Booking %s no longer awaiting payment, skipping expiry", job.EntityID)
		return nil
	}

	if err := wk.Notifier.BookingExpired(&stream.BookingExpiredEvent{BookingID: job.EntityID}); err != nil {
		wk.Logger.Error("publishing booking expired notification", "booking_id", job.EntityID, "error", err)
	}

	return nil
}
