package seeder

import (
	"log/slog"

	"github.com/kelani/settled/internal/repository"
)

// Seeder runs ordered, idempotent startup inserts. It replaces implicit
// framework lifecycle hooks with an explicit init step.
type Seeder struct {
	DB         repository.Database
	Logger     *slog.Logger
	Currencies []string
}

func New(db repository.Database, logger *slog.Logger, currencies []string) *Seeder {
	return &Seeder{
		DB:         db,
		Logger:     logger,
		Currencies: currencies,
	}
}

func (seeder *Seeder) Run() error {
	return seeder.seedSystemWallets()
}
