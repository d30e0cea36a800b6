package settlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kelani/settled/internal/gateway"
	"github.com/kelani/settled/internal/mocks"
	"github.com/kelani/settled/internal/repository"
)

type serviceMocks struct {
	wallets  *mocks.MockWalletRepo
	external *mocks.MockExternalTransactionRepo
	jobs     *mocks.MockScheduledJobRepo
	gateway  *mocks.MockGateway
	deduper  *mocks.MockDeduper
}

func newService(t *testing.T, cfg Config) (*Service, *serviceMocks) {
	t.Helper()

	m := &serviceMocks{
		wallets:  new(mocks.MockWalletRepo),
		external: new(mocks.MockExternalTransactionRepo),
		jobs:     new(mocks.MockScheduledJobRepo),
		gateway:  new(mocks.MockGateway),
		deduper:  new(mocks.MockDeduper),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(m.wallets, m.external, m.jobs, m.gateway, m.deduper, logger, cfg), m
}

func userWallet(id string, balance int64) *repository.Wallet {
	return &repository.Wallet{
		ID:       id,
		Role:     repository.WalletRoleUser,
		Currency: "NGN",
		Status:   repository.WalletActiveStatus,
		Balance:  decimal.NewFromInt(balance),
	}
}

func TestInitiateDepositCreatesLinkAndSchedulesExpiry(t *testing.T) {
	service, m := newService(t, Config{ProviderName: "mockpay", ReturnURL: "https://app.example/return", PaymentWindow: 30 * time.Minute})

	amount := decimal.NewFromInt(500)

	m.wallets.On("GetOne", "wallet-1").Return(userWallet("wallet-1", 0), true, nil)
	m.external.On("Insert", mock.MatchedBy(func(transaction *repository.WalletExternalTransaction) bool {
		return transaction.WalletID == "wallet-1" &&
			transaction.Direction == repository.ExternalDirectionDeposit &&
			transaction.Amount.Equal(amount) &&
			transaction.Provider == "mockpay"
	})).Return(&repository.WalletExternalTransaction{
		ID:        "ext-1",
		WalletID:  "wallet-1",
		Direction: repository.ExternalDirectionDeposit,
		Amount:    amount,
		Currency:  "NGN",
		Status:    repository.ExternalStatusPending,
	}, nil)

	m.gateway.On("CreatePaymentLink", mock.Anything, amount, "NGN", "https://app.example/return", "ext-1").
		Return(&gateway.PaymentLink{PaymentURL: "https://pay.mockpay.test/l/abc"}, nil)

	m.external.On("MarkReadyForPayment", "ext-1", "https://pay.mockpay.test/l/abc").Return(true, nil)

	m.jobs.On("Insert", mock.MatchedBy(func(job *repository.ScheduledJob) bool {
		return job.JobType == repository.JobTypeExternalTransactionExpiry &&
			job.EntityID == "ext-1" &&
			time.Until(job.ExecuteAt) > 29*time.Minute
	})).Return(&repository.ScheduledJob{ID: "job-1"}, nil)

	transaction, err := service.InitiateDeposit(context.Background(), "wallet-1", amount)
	require.NoError(t, err)
	require.Equal(t, repository.ExternalStatusReadyForPayment, transaction.Status)
	require.Equal(t, "https://pay.mockpay.test/l/abc", transaction.PaymentURL.String)

	m.external.AssertExpectations(t)
	m.gateway.AssertExpectations(t)
	m.jobs.AssertExpectations(t)
}

func TestInitiateDepositCancelsTransactionWhenLinkFails(t *testing.T) {
	service, m := newService(t, Config{ProviderName: "mockpay"})

	amount := decimal.NewFromInt(500)

	m.wallets.On("GetOne", "wallet-1").Return(userWallet("wallet-1", 0), true, nil)
	m.external.On("Insert", mock.Anything).Return(&repository.WalletExternalTransaction{ID: "ext-1"}, nil)
	m.gateway.On("CreatePaymentLink", mock.Anything, amount, "NGN", "", "ext-1").
		Return(nil, context.DeadlineExceeded)
	m.external.On("MarkCancelled", "ext-1").Return(true, nil)

	_, err := service.InitiateDeposit(context.Background(), "wallet-1", amount)
	require.Error(t, err)

	m.external.AssertExpectations(t)
	m.jobs.AssertNotCalled(t, "Insert", mock.Anything)
}

func TestInitiateDepositRejectsBadInput(t *testing.T) {
	t.Run("non positive amount", func(t *testing.T) {
		service, _ := newService(t, Config{})
		_, err := service.InitiateDeposit(context.Background(), "wallet-1", decimal.Zero)
		require.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("unknown wallet", func(t *testing.T) {
		service, m := newService(t, Config{})
		m.wallets.On("GetOne", "missing").Return(nil, false, nil)
		_, err := service.InitiateDeposit(context.Background(), "missing", decimal.NewFromInt(1))
		require.ErrorIs(t, err, repository.ErrWalletNotFound)
	})

	t.Run("locked wallet", func(t *testing.T) {
		service, m := newService(t, Config{})
		locked := userWallet("wallet-1", 0)
		locked.Status = repository.WalletLockedStatus
		m.wallets.On("GetOne", "wallet-1").Return(locked, true, nil)
		_, err := service.InitiateDeposit(context.Background(), "wallet-1", decimal.NewFromInt(1))
		require.ErrorIs(t, err, repository.ErrWalletLocked)
	})
}

func TestInitiateWithdrawalLocksFunds(t *testing.T) {
	service, m := newService(t, Config{ProviderName: "mockpay"})

	amount := decimal.NewFromInt(200)

	m.wallets.On("GetOne", "wallet-1").Return(userWallet("wallet-1", 1000), true, nil)
	m.wallets.On("LockFunds", "wallet-1", amount).Return(nil)
	m.external.On("Insert", mock.MatchedBy(func(transaction *repository.WalletExternalTransaction) bool {
		return transaction.Direction == repository.ExternalDirectionWithdraw
	})).Return(&repository.WalletExternalTransaction{ID: "ext-1", Direction: repository.ExternalDirectionWithdraw}, nil)
	m.external.On("MarkReadyForPayment", "ext-1", "").Return(true, nil)
	m.jobs.On("Insert", mock.Anything).Return(&repository.ScheduledJob{ID: "job-1"}, nil)

	transaction, err := service.InitiateWithdrawal(context.Background(), "wallet-1", amount)
	require.NoError(t, err)
	require.Equal(t, repository.ExternalStatusReadyForPayment, transaction.Status)

	m.wallets.AssertExpectations(t)
	m.external.AssertExpectations(t)
}

func TestInitiateWithdrawalReleasesHoldWhenInsertFails(t *testing.T) {
	service, m := newService(t, Config{})

	amount := decimal.NewFromInt(200)

	m.wallets.On("GetOne", "wallet-1").Return(userWallet("wallet-1", 1000), true, nil)
	m.wallets.On("LockFunds", "wallet-1", amount).Return(nil)
	m.external.On("Insert", mock.Anything).Return(nil, context.DeadlineExceeded)
	m.wallets.On("UnlockFunds", "wallet-1", amount).Return(nil)

	_, err := service.InitiateWithdrawal(context.Background(), "wallet-1", amount)
	require.Error(t, err)
	m.wallets.AssertExpectations(t)
}

func TestInitiateWithdrawalSurfacesInsufficientFunds(t *testing.T) {
	service, m := newService(t, Config{})

	amount := decimal.NewFromInt(5000)

	m.wallets.On("GetOne", "wallet-1").Return(userWallet("wallet-1", 10), true, nil)
	m.wallets.On("LockFunds", "wallet-1", amount).Return(repository.ErrInsufficientFunds)

	_, err := service.InitiateWithdrawal(context.Background(), "wallet-1", amount)
	require.ErrorIs(t, err, repository.ErrInsufficientFunds)
	m.external.AssertNotCalled(t, "Insert", mock.Anything)
}

func readyDeposit(id, walletID string, amount int64) *repository.WalletExternalTransaction {
	return &repository.WalletExternalTransaction{
		ID:        id,
		WalletID:  walletID,
		Direction: repository.ExternalDirectionDeposit,
		Amount:    decimal.NewFromInt(amount),
		Currency:  "NGN",
		Status:    repository.ExternalStatusReadyForPayment,
	}
}

func TestConfirmSettlementCreditsDeposit(t *testing.T) {
	service, m := newService(t, Config{})

	m.deduper.On("Once", "settlement:confirmation:prov-123", confirmationDedupeTTL).Return(true, nil)
	m.external.On("GetOne", "ext-1").Return(readyDeposit("ext-1", "wallet-1", 500), true, nil)
	m.external.On("MarkCompleted", "ext-1", "prov-123").Return(true, nil)
	m.wallets.On("Increment", "wallet-1", decimal.NewFromInt(500)).Return(decimal.NewFromInt(500), nil)
	m.jobs.On("CancelByEntity", repository.JobTypeExternalTransactionExpiry, "ext-1").Return(nil)

	err := service.ConfirmSettlement(context.Background(), &gateway.Confirmation{
		Success:      true,
		Amount:       decimal.NewFromInt(500),
		Currency:     "NGN",
		ProviderTxID: "prov-123",
		Reference:    "ext-1",
	})
	require.NoError(t, err)

	m.wallets.AssertExpectations(t)
	m.external.AssertExpectations(t)
	m.jobs.AssertExpectations(t)
}

func TestConfirmSettlementRejectsReplays(t *testing.T) {
	t.Run("deduper has seen the provider tx id", func(t *testing.T) {
		service, m := newService(t, Config{})

		m.deduper.On("Once", mock.Anything, mock.Anything).Return(false, nil)

		err := service.ConfirmSettlement(context.Background(), &gateway.Confirmation{
			Success:      true,
			ProviderTxID: "prov-123",
			Reference:    "ext-1",
		})
		require.ErrorIs(t, err, ErrDuplicateConfirmation)
		m.external.AssertNotCalled(t, "GetOne", mock.Anything)
		m.wallets.AssertNotCalled(t, "Increment", mock.Anything, mock.Anything)
	})

	t.Run("status guard catches a replay the deduper missed", func(t *testing.T) {
		service, m := newService(t, Config{})

		m.deduper.On("Once", mock.Anything, mock.Anything).Return(true, nil)
		m.external.On("GetOne", "ext-1").Return(readyDeposit("ext-1", "wallet-1", 500), true, nil)
		m.external.On("MarkCompleted", "ext-1", "prov-456").Return(false, nil)

		err := service.ConfirmSettlement(context.Background(), &gateway.Confirmation{
			Success:      true,
			Currency:     "NGN",
			ProviderTxID: "prov-456",
			Reference:    "ext-1",
		})
		require.ErrorIs(t, err, ErrDuplicateConfirmation)
		m.wallets.AssertNotCalled(t, "Increment", mock.Anything, mock.Anything)
		m.deduper.AssertNotCalled(t, "Delete", mock.Anything)
	})
}

func TestConfirmSettlementReleasesClaimWhenCreditFails(t *testing.T) {
	service, m := newService(t, Config{})

	creditErr := errors.New("wallet store unavailable")
	conf := &gateway.Confirmation{
		Success:      true,
		Currency:     "NGN",
		ProviderTxID: "prov-1",
		Reference:    "ext-1",
	}

	m.deduper.On("Once", "settlement:confirmation:prov-1", confirmationDedupeTTL).Return(true, nil)
	m.external.On("GetOne", "ext-1").Return(readyDeposit("ext-1", "wallet-1", 500), true, nil)
	m.external.On("MarkCompleted", "ext-1", "prov-1").Return(true, nil)
	m.wallets.On("Increment", "wallet-1", decimal.NewFromInt(500)).Return(decimal.Zero, creditErr).Once()
	m.external.On("ReopenForPayment", "ext-1").Return(true, nil)
	m.deduper.On("Delete", "settlement:confirmation:prov-1").Return(nil)

	err := service.ConfirmSettlement(context.Background(), conf)
	require.ErrorIs(t, err, creditErr)

	// the transaction was reopened and the dedupe token released, so the
	// provider's retry is a fresh confirmation rather than a bounced replay
	m.external.AssertCalled(t, "ReopenForPayment", "ext-1")
	m.deduper.AssertCalled(t, "Delete", "settlement:confirmation:prov-1")
	m.jobs.AssertNotCalled(t, "CancelByEntity", mock.Anything, mock.Anything)

	m.wallets.On("Increment", "wallet-1", decimal.NewFromInt(500)).Return(decimal.NewFromInt(500), nil).Once()
	m.jobs.On("CancelByEntity", repository.JobTypeExternalTransactionExpiry, "ext-1").Return(nil)

	require.NoError(t, service.ConfirmSettlement(context.Background(), conf))
	m.wallets.AssertExpectations(t)
	m.jobs.AssertExpectations(t)
}

func TestConfirmSettlementValidatesConfirmation(t *testing.T) {
	t.Run("unknown reference", func(t *testing.T) {
		service, m := newService(t, Config{})

		m.deduper.On("Once", mock.Anything, mock.Anything).Return(true, nil)
		m.deduper.On("Delete", mock.Anything).Return(nil)
		m.external.On("GetOne", "ghost").Return(nil, false, nil)

		err := service.ConfirmSettlement(context.Background(), &gateway.Confirmation{
			Success:      true,
			ProviderTxID: "prov-1",
			Reference:    "ghost",
		})
		require.ErrorIs(t, err, ErrUnknownReference)
		m.deduper.AssertCalled(t, "Delete", "settlement:confirmation:prov-1")
	})

	t.Run("currency mismatch", func(t *testing.T) {
		service, m := newService(t, Config{})

		m.deduper.On("Once", mock.Anything, mock.Anything).Return(true, nil)
		m.deduper.On("Delete", mock.Anything).Return(nil)
		m.external.On("GetOne", "ext-1").Return(readyDeposit("ext-1", "wallet-1", 500), true, nil)

		err := service.ConfirmSettlement(context.Background(), &gateway.Confirmation{
			Success:      true,
			Currency:     "USD",
			ProviderTxID: "prov-1",
			Reference:    "ext-1",
		})
		require.ErrorIs(t, err, ErrCurrencyMismatch)
		m.external.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything)
	})
}

func TestConfirmSettlementFailureUnlocksWithdrawal(t *testing.T) {
	service, m := newService(t, Config{})

	withdrawal := &repository.WalletExternalTransaction{
		ID:        "ext-1",
		WalletID:  "wallet-1",
		Direction: repository.ExternalDirectionWithdraw,
		Amount:    decimal.NewFromInt(200),
		Currency:  "NGN",
		Status:    repository.ExternalStatusReadyForPayment,
	}

	m.deduper.On("Once", mock.Anything, mock.Anything).Return(true, nil)
	m.external.On("GetOne", "ext-1").Return(withdrawal, true, nil)
	m.external.On("MarkRejected", "ext-1", "prov-9").Return(true, nil)
	m.wallets.On("UnlockFunds", "wallet-1", decimal.NewFromInt(200)).Return(nil)

	err := service.ConfirmSettlement(context.Background(), &gateway.Confirmation{
		Success:      false,
		Currency:     "NGN",
		ProviderTxID: "prov-9",
		Reference:    "ext-1",
	})
	require.NoError(t, err)
	m.wallets.AssertExpectations(t)
}

func TestConfirmSettlementSuccessSpendsLockedWithdrawal(t *testing.T) {
	service, m := newService(t, Config{})

	withdrawal := &repository.WalletExternalTransaction{
		ID:        "ext-1",
		WalletID:  "wallet-1",
		Direction: repository.ExternalDirectionWithdraw,
		Amount:    decimal.NewFromInt(200),
		Currency:  "NGN",
		Status:    repository.ExternalStatusReadyForPayment,
	}

	m.deduper.On("Once", mock.Anything, mock.Anything).Return(true, nil)
	m.external.On("GetOne", "ext-1").Return(withdrawal, true, nil)
	m.external.On("MarkCompleted", "ext-1", "prov-9").Return(true, nil)
	m.wallets.On("SpendLockedFunds", "wallet-1", decimal.NewFromInt(200)).Return(nil)
	m.jobs.On("CancelByEntity", repository.JobTypeExternalTransactionExpiry, "ext-1").Return(nil)

	err := service.ConfirmSettlement(context.Background(), &gateway.Confirmation{
		Success:      true,
		Currency:     "NGN",
		ProviderTxID: "prov-9",
		Reference:    "ext-1",
	})
	require.NoError(t, err)
	m.wallets.AssertExpectations(t)
	m.wallets.AssertNotCalled(t, "Increment", mock.Anything, mock.Anything)
}

func TestConfirmSettlementProceedsWhenDeduperIsDown(t *testing.T) {
	service, m := newService(t, Config{})

	m.deduper.On("Once", mock.Anything, mock.Anything).Return(false, context.DeadlineExceeded)
	m.external.On("GetOne", "ext-1").Return(readyDeposit("ext-1", "wallet-1", 500), true, nil)
	m.external.On("MarkCompleted", "ext-1", "prov-1").Return(true, nil)
	m.wallets.On("Increment", "wallet-1", decimal.NewFromInt(500)).Return(decimal.NewFromInt(500), nil)
	m.jobs.On("CancelByEntity", mock.Anything, mock.Anything).Return(nil)

	err := service.ConfirmSettlement(context.Background(), &gateway.Confirmation{
		Success:      true,
		Currency:     "NGN",
		ProviderTxID: "prov-1",
		Reference:    "ext-1",
	})
	require.NoError(t, err)
	m.external.AssertExpectations(t)
}
