package worker

import (
	"context"
	"log"

	"github.com/kelani/settled/internal/repository"
)

// HandleExternalTransactionExpiry closes an external transaction whose
// payment window lapsed without a provider confirmation. For withdrawals
// the funds held in locked_balance go back to the spendable balance.
func (wk *Worker) HandleExternalTransactionExpiry(ctx context.Context, job *repository.ScheduledJob) error {
	transaction, found, err := wk.DB.ExternalTransaction().GetOne(job.EntityID)
	if err != nil {
		return err
	}
	if !found {
		log.Printf("External transaction %s not found, skipping expiry", job.EntityID)
		return nil
	}

	expired, err := wk.DB.ExternalTransaction().MarkExpired(transaction.ID)
	if err != nil {
		return err
	}
	if !expired {
		// confirmation won the race; the transaction is already terminal
		return nil
	}

	if transaction.Direction == repository.ExternalDirectionWithdraw {
		return wk.DB.Wallet().UnlockFunds(transaction.WalletID, transaction.Amount)
	}

	return nil
}
