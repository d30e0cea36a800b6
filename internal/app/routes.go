package app

import (
	"net/http"

	"github.com/kelani/settled/internal/handler"
	"github.com/kelani/settled/internal/middleware"
)

func (app *Application) routes() http.Handler {
	mux := http.NewServeMux()

	middlewareRepo := middleware.New(app.errorHandler, app.Logger)

	healthHandler := handler.NewHealthCheckHandler(app.errorHandler)

	walletHandler := handler.NewWalletHandler(&handler.WalletHandler{
		WalletRepo:      app.DB.Wallet(),
		TransactionRepo: app.DB.Transaction(),
		ErrHandler:      app.errorHandler,
	})

	transferHandler := handler.NewTransferHandler(&handler.TransferHandler{
		Ledger:     app.Ledger,
		ErrHandler: app.errorHandler,
	})

	settlementHandler := handler.NewSettlementHandler(&handler.SettlementHandler{
		Settlement: app.Settlement,
		ErrHandler: app.errorHandler,
	})

	webhookHandler := handler.NewWebhookHandler(&handler.WebhookHandler{
		Gateway:    app.Gateway,
		Settlement: app.Settlement,
		ErrHandler: app.errorHandler,
	})

	jobHandler := handler.NewJobHandler(&handler.JobHandler{
		JobRepo:    app.DB.ScheduledJob(),
		ErrHandler: app.errorHandler,
	})

	mux.HandleFunc("GET /status", healthHandler.HandleHealthCheck)

	mux.HandleFunc("GET /wallets/{id}/balance", walletHandler.HandleWalletBalance)
	mux.HandleFunc("GET /wallets/{id}/transactions", walletHandler.HandleWalletTransactions)

	mux.HandleFunc("POST /transfers", transferHandler.HandleTransferFunds)
	mux.HandleFunc("POST /deposits", settlementHandler.HandleInitiateDeposit)
	mux.HandleFunc("POST /withdrawals", settlementHandler.HandleInitiateWithdrawal)

	mux.HandleFunc("POST /webhooks/settlement", webhookHandler.HandleSettlementCallback)

	mux.HandleFunc("POST /jobs", jobHandler.HandleScheduleJob)
	mux.HandleFunc("DELETE /jobs/{id}", jobHandler.HandleCancelJob)

	return middlewareRepo.LogAccess(middlewareRepo.RecoverPanic(mux))
}
