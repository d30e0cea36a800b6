package seeder

import (
	"github.com/kelani/settled/internal/repository"
)

// seedSystemWallets makes sure the revenue and escrow wallets exist for
// every supported currency. Inserts are insert-if-missing, so running the
// seeder on every boot (or on several replicas at once) is safe.
func (seeder *Seeder) seedSystemWallets() error {
	roles := []string{repository.WalletRoleSystem, repository.WalletRoleEscrow}

	for _, currency := range seeder.Currencies {
		for _, role := range roles {
			id, err := seeder.DB.Wallet().Insert(&repository.Wallet{
				Role:     role,
				Currency: currency,
			}, nil)
			if err != nil {
				return err
			}

			if id != "" {
				seeder.Logger.Info("seeded system wallet", "role", role, "currency", currency, "wallet_id", id)
			}
		}
	}

	return nil
}
