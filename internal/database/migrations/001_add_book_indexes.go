package migrations

import (
	"gorm.io/gorm"
)

// AddBookIndexes creates the composite indexes the matching engine and the
// metrics window depend on. Using raw SQL for index creation to have more
// control over index types. The book tables only exist once the market
// contract has deployed, so this is a no-op on a fresh database.
func AddBookIndexes(db *gorm.DB) error {
	if !db.Migrator().HasTable("buyBook") {
		return nil
	}

	indexes := []string{
		// Matching order for buy-side candidates. priceDec is the
		// fixed-width sortable price rendering, so lexicographic order
		// here is numeric order.
		`CREATE INDEX IF NOT EXISTS idx_buy_book_symbol_price
		 ON buyBook(symbol, priceDec DESC, id)`,

		// Matching order for sell-side candidates
		`CREATE INDEX IF NOT EXISTS idx_sell_book_symbol_price
		 ON sellBook(symbol, priceDec, id)`,

		// Expiration sweeps
		`CREATE INDEX IF NOT EXISTS idx_buy_book_expiration
		 ON buyBook(expiration)`,
		`CREATE INDEX IF NOT EXISTS idx_sell_book_expiration
		 ON sellBook(expiration)`,

		// Rolling 24h volume purge
		`CREATE INDEX IF NOT EXISTS idx_trades_history_symbol_ts
		 ON tradesHistory(symbol, timestamp)`,
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			return err
		}
	}

	return nil
}
