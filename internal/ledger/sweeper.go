package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/transactionhub/ledger-api/internal/types"
	"gorm.io/gorm"
)

// Sweeper periodically clears settlement locks on accounts whose PnL
// drifted back to zero between payments: a flat account has nothing left
// to settle, so the frozen share is released and the next non-zero PnL
// opens a fresh cycle.
type Sweeper struct {
	db         *Database
	sweepDelay time.Duration // Time between sweep attempts
}

func NewSweeper(db *Database) *Sweeper {
	return &Sweeper{
		db:         db,
		sweepDelay: 5 * time.Minute,
	}
}

// Start begins the sweep loop
func (s *Sweeper) Start(ctx context.Context) {
	logger := log.With().Str("component", "cycle_sweeper").Logger()
	logger.Info().Msg("starting settlement cycle sweeper")

	ticker := time.NewTicker(s.sweepDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down settlement cycle sweeper")
			return
		case <-ticker.C:
			if err := s.sweepFlatCycles(); err != nil {
				logger.Error().Err(err).Msg("failed to sweep settlement cycles")
			}
		}
	}
}

func (s *Sweeper) sweepFlatCycles() error {
	logger := log.With().Str("component", "cycle_sweeper").Logger()

	accounts, err := s.db.ListLockedAccounts()
	if err != nil {
		return err
	}

	logger.Debug().Int("locked_count", len(accounts)).Msg("inspecting open settlement cycles")

	for i := range accounts {
		accountID := accounts[i].AccountID

		// Re-read under the account lock; a payment may have landed
		// since the scan.
		l := s.db.accountLock(accountID)
		l.Lock()
		err := s.db.db.Transaction(func(tx *gorm.DB) error {
			var account types.LedgerAccount
			if err := tx.Where("account_id = ?", accountID).First(&account).Error; err != nil {
				return err
			}
			if account.InitialFinalShare == 0 || ClientPnl(&account) != 0 {
				return nil
			}

			resetCycle(&account)
			if err := tx.Save(&account).Error; err != nil {
				return err
			}

			logger.Info().
				Str("account_id", accountID).
				Msg("released settlement lock on flat account")
			return nil
		})
		l.Unlock()

		if err != nil {
			logger.Error().
				Err(err).
				Str("account_id", accountID).
				Msg("failed to release settlement lock")
			continue
		}
	}

	return nil
}
