package worker

import (
	"context"
	"fmt"
	"log"

	"github.com/kelani/settled/internal/repository"
	"github.com/kelani/settled/internal/stream"
)

// HandlePayoutRelease moves a scheduled payout out of escrow through the
// transfer engine. Re-checking the payout's live status makes the handler
// idempotent under a double-claim.
func (wk *Worker) HandlePayoutRelease(ctx context.Context, job *repository.ScheduledJob) error {
	payout, found, err := wk.DB.Payout().GetOne(job.EntityID)
	if err != nil {
		return err
	}
	if !found {
		log.Printf("Payout %s not found, skipping release", job.EntityID)
		return nil
	}

	if payout.Status != repository.PayoutStatusScheduled {
		return nil
	}

	// claim the payout before moving any funds; a retry after a partial
	// failure must never find it scheduled again unless no transfer ran
	claimed, err := wk.DB.Payout().BeginRelease(payout.ID)
	if err != nil {
		return err
	}
	if !claimed {
		log.Printf("Payout %s claimed elsewhere, skipping release", payout.ID)
		return nil
	}

	transaction, err := wk.Ledger.Transfer(ctx, payout.EscrowWalletID, payout.RecipientWalletID, payout.Amount, payout.Currency, "payout release")
	if err != nil {
		// no funds moved; hand the claim back so the retry can run
		if _, abortErr := wk.DB.Payout().AbortRelease(payout.ID); abortErr != nil {
			wk.Logger.Error("returning payout claim after failed transfer", "payout_id", payout.ID, "error", abortErr)
		}
		return fmt.Errorf("releasing payout %s: %w", payout.ID, err)
	}

	released, err := wk.DB.Payout().MarkReleased(payout.ID, transaction.ID)
	if err != nil {
		// funds already moved; the claim stays so no retry transfers again,
		// and the stuck releasing row is reconciled against the transaction
		wk.Logger.Error("payout funds moved but status update failed",
			"payout_id", payout.ID,
			"transaction_id", transaction.ID,
			"error", err,
		)
		return err
	}
	if !released {
		wk.Logger.Error("payout released twice, funds moved by transaction", "payout_id", payout.ID, "transaction_id", transaction.ID)
		return nil
	}

	if err := wk.Notifier.PayoutReleased(&stream.PayoutReleasedEvent{
		PayoutID:      payout.ID,
		TransactionID: transaction.ID,
		Amount:        payout.Amount.String(),
		Currency:      payout.Currency,
	}); err != nil {
		wk.Logger.Error("publishing payout released notification", "payout_id", payout.ID, "error", err)
	}

	return nil
}
