package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/chain-engine/internal/chain"
	"github.com/ksred/chain-engine/internal/database/migrations"
)

// NewDatabase initializes and returns a new GORM DB connection at path.
// Contract state tables are created by contract deployment, not here; only
// the chain's own bookkeeping is migrated.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&chain.BlockRecord{},
		&chain.TransactionRecord{},
		&chain.PendingTransaction{},
	)
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddBookIndexes(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}
