package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kelani/settled/internal/gateway"
	"github.com/kelani/settled/internal/repository"
)

var (
	ErrDuplicateConfirmation = errors.New("duplicate provider confirmation")
	ErrCurrencyMismatch      = errors.New("confirmation currency does not match transaction")
	ErrUnknownReference      = errors.New("confirmation references an unknown transaction")
	ErrInvalidAmount         = errors.New("amount must be greater than zero")
)

// ConfirmationDeduper remembers provider transaction ids we have already
// processed. Backed by redis in production.
type ConfirmationDeduper interface {
	// Once returns true the first time key is seen within ttl.
	Once(key string, ttl time.Duration) (bool, error)
	// Delete releases a key so the provider's retry is not treated as a
	// replay of a confirmation that never actually applied.
	Delete(key string) error
}

// Service orchestrates deposits and withdrawals that cross the system
// boundary through the settlement gateway.
type Service struct {
	wallets  repository.WalletRepository
	external repository.ExternalTransactionRepository
	jobs     repository.ScheduledJobRepository
	gateway  gateway.SettlementGateway
	deduper  ConfirmationDeduper
	logger   *slog.Logger

	providerName  string
	returnURL     string
	paymentWindow time.Duration
}

type Config struct {
	ProviderName  string
	ReturnURL     string
	PaymentWindow time.Duration
}

const confirmationDedupeTTL = 24 * time.Hour

func New(wallets repository.WalletRepository, external repository.ExternalTransactionRepository, jobs repository.ScheduledJobRepository, gw gateway.SettlementGateway, deduper ConfirmationDeduper, logger *slog.Logger, cfg Config) *Service {
	paymentWindow := cfg.PaymentWindow
	if paymentWindow <= 0 {
		paymentWindow = 30 * time.Minute
	}

	return &Service{
		wallets:       wallets,
		external:      external,
		jobs:          jobs,
		gateway:       gw,
		deduper:       deduper,
		logger:        logger,
		providerName:  cfg.ProviderName,
		returnURL:     cfg.ReturnURL,
		paymentWindow: paymentWindow,
	}
}

// InitiateDeposit creates a pending external transaction, asks the provider
// for a hosted payment link, and schedules the payment-window expiry job.
func (s *Service) InitiateDeposit(ctx context.Context, walletID string, amount decimal.Decimal) (*repository.WalletExternalTransaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	wallet, found, err := s.wallets.GetOne(walletID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, repository.ErrWalletNotFound
	}
	if wallet.Status == repository.WalletLockedStatus {
		return nil, repository.ErrWalletLocked
	}

	transaction, err := s.external.Insert(&repository.WalletExternalTransaction{
		WalletID:  walletID,
		Direction: repository.ExternalDirectionDeposit,
		Amount:    amount,
		Currency:  wallet.Currency,
		Provider:  s.providerName,
	})
	if err != nil {
		return nil, err
	}

	link, err := s.gateway.CreatePaymentLink(ctx, amount, wallet.Currency, s.returnURL, transaction.ID)
	if err != nil {
		if _, cancelErr := s.external.MarkCancelled(transaction.ID); cancelErr != nil {
			s.logger.Error("cancelling external transaction after link failure", "transaction_id", transaction.ID, "error", cancelErr)
		}
		return nil, fmt.Errorf("creating payment link: %w", err)
	}

	if _, err := s.external.MarkReadyForPayment(transaction.ID, link.PaymentURL); err != nil {
		return nil, err
	}
	transaction.Status = repository.ExternalStatusReadyForPayment
	transaction.PaymentURL.String = link.PaymentURL
	transaction.PaymentURL.Valid = true

	s.scheduleExpiry(transaction.ID)

	return transaction, nil
}

// InitiateWithdrawal moves the amount into the wallet's locked balance and
// opens a pending external transaction. The provider confirms or rejects it
// later through the same webhook path as deposits.
func (s *Service) InitiateWithdrawal(ctx context.Context, walletID string, amount decimal.Decimal) (*repository.WalletExternalTransaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	wallet, found, err := s.wallets.GetOne(walletID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, repository.ErrWalletNotFound
	}

	if err := s.wallets.LockFunds(walletID, amount); err != nil {
		return nil, err
	}

	transaction, err := s.external.Insert(&repository.WalletExternalTransaction{
		WalletID:  walletID,
		Direction: repository.ExternalDirectionWithdraw,
		Amount:    amount,
		Currency:  wallet.Currency,
		Provider:  s.providerName,
	})
	if err != nil {
		// release the hold; without a row nothing will ever settle it
		if unlockErr := s.wallets.UnlockFunds(walletID, amount); unlockErr != nil {
			s.logger.Error("unlocking funds after failed withdrawal insert", "wallet_id", walletID, "error", unlockErr)
		}
		return nil, err
	}

	if _, err := s.external.MarkReadyForPayment(transaction.ID, ""); err != nil {
		return nil, err
	}
	transaction.Status = repository.ExternalStatusReadyForPayment

	s.scheduleExpiry(transaction.ID)

	return transaction, nil
}

// ConfirmSettlement applies a typed provider confirmation to the matching
// external transaction. Replays are safe twice over: the deduper rejects a
// provider transaction id we have seen, and the status transition out of
// ready_for_payment is guarded by current status.
func (s *Service) ConfirmSettlement(ctx context.Context, conf *gateway.Confirmation) error {
	dedupeKey := "settlement:confirmation:" + conf.ProviderTxID

	first, err := s.deduper.Once(dedupeKey, confirmationDedupeTTL)
	if err != nil {
		// the store guard below still protects correctness
		s.logger.Error("confirmation dedupe check failed", "provider_tx_id", conf.ProviderTxID, "error", err)
	} else if !first {
		return ErrDuplicateConfirmation
	}

	err = s.applyConfirmation(conf)
	if err != nil && !errors.Is(err, ErrDuplicateConfirmation) {
		// the confirmation did not apply; release the token so the
		// provider's retry is not bounced as a replay
		if delErr := s.deduper.Delete(dedupeKey); delErr != nil {
			s.logger.Error("releasing confirmation dedupe token", "provider_tx_id", conf.ProviderTxID, "error", delErr)
		}
	}

	return err
}

func (s *Service) applyConfirmation(conf *gateway.Confirmation) error {
	transaction, found, err := s.external.GetOne(conf.Reference)
	if err != nil {
		return err
	}
	if !found {
		return ErrUnknownReference
	}

	if conf.Currency != "" && conf.Currency != transaction.Currency {
		return ErrCurrencyMismatch
	}

	if !conf.Success {
		changed, err := s.external.MarkRejected(transaction.ID, conf.ProviderTxID)
		if err != nil {
			return err
		}
		if changed && transaction.Direction == repository.ExternalDirectionWithdraw {
			return s.wallets.UnlockFunds(transaction.WalletID, transaction.Amount)
		}
		return nil
	}

	// claim the transaction first so concurrent replays cannot both move
	// money, then mutate the balance. A failed mutation reopens the claim:
	// the row goes back to ready_for_payment and the retry settles it.
	changed, err := s.external.MarkCompleted(transaction.ID, conf.ProviderTxID)
	if err != nil {
		return err
	}
	if !changed {
		return ErrDuplicateConfirmation
	}

	if err := s.settleFunds(transaction); err != nil {
		reopened, reopenErr := s.external.ReopenForPayment(transaction.ID)
		if reopenErr != nil || !reopened {
			s.logger.Error("reopening transaction after failed settlement, funds in limbo",
				"transaction_id", transaction.ID,
				"wallet_id", transaction.WalletID,
				"error", reopenErr,
			)
		}
		return err
	}

	if err := s.jobs.CancelByEntity(repository.JobTypeExternalTransactionExpiry, transaction.ID); err != nil {
		s.logger.Error("cancelling expiry job", "transaction_id", transaction.ID, "error", err)
	}

	return nil
}

func (s *Service) settleFunds(transaction *repository.WalletExternalTransaction) error {
	switch transaction.Direction {
	case repository.ExternalDirectionDeposit:
		_, err := s.wallets.Increment(transaction.WalletID, transaction.Amount)
		return err
	case repository.ExternalDirectionWithdraw:
		return s.wallets.SpendLockedFunds(transaction.WalletID, transaction.Amount)
	}
	return nil
}

func (s *Service) scheduleExpiry(transactionID string) {
	_, err := s.jobs.Insert(&repository.ScheduledJob{
		JobType:   repository.JobTypeExternalTransactionExpiry,
		EntityID:  transactionID,
		ExecuteAt: time.Now().Add(s.paymentWindow),
	})
	if err != nil {
		s.logger.Error("scheduling payment window expiry", "transaction_id", transactionID, "error", err)
	}
}
