package market

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/chain-engine/internal/store"
	"github.com/ksred/chain-engine/pkg/dec"
)

// matchPageSize bounds how many counterparty orders one matching pass loads
// at a time.
const matchPageSize = 1000

// Database wraps the store with the market's typed queries. Every finder
// carries an explicit ORDER BY ending in the primary key: result order is
// consensus-critical, price-then-insertion priority depends on it.
type Database struct {
	store *store.Store
}

// NewDatabase creates the market query layer over the shared store.
func NewDatabase(s *store.Store) *Database {
	return &Database{store: s}
}

// SellCandidates returns the best-priced page of resting asks for symbol.
// With a price bound it serves limit-buy matching (asks at or below the
// bid); without one it serves market buys.
func (d *Database) SellCandidates(symbol string, maxPrice *decimal.Decimal) ([]SellOrder, error) {
	q := d.store.Session().Where("symbol = ?", symbol)
	if maxPrice != nil {
		q = q.Where("priceDec <= ?", dec.SortKey(*maxPrice))
	}
	var out []SellOrder
	err := q.Order("priceDec asc, id asc").Limit(matchPageSize).Find(&out).Error
	return out, err
}

// BuyCandidates returns the best-priced page of resting bids for symbol,
// optionally bounded below by an ask price.
func (d *Database) BuyCandidates(symbol string, minPrice *decimal.Decimal) ([]BuyOrder, error) {
	q := d.store.Session().Where("symbol = ?", symbol)
	if minPrice != nil {
		q = q.Where("priceDec >= ?", dec.SortKey(*minPrice))
	}
	var out []BuyOrder
	err := q.Order("priceDec desc, id asc").Limit(matchPageSize).Find(&out).Error
	return out, err
}

// BuyOrderByTxID finds an account's resting bid by transaction id.
func (d *Database) BuyOrderByTxID(account, txID string) (*BuyOrder, error) {
	var o BuyOrder
	err := d.store.Session().Where("account = ? AND tx_id = ?", account, txID).
		Order("id asc").First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// BuyOrderByID finds an account's resting bid by collection _id.
func (d *Database) BuyOrderByID(account string, id uint) (*BuyOrder, error) {
	var o BuyOrder
	err := d.store.Session().Where("account = ? AND id = ?", account, id).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// SellOrderByTxID finds an account's resting ask by transaction id.
func (d *Database) SellOrderByTxID(account, txID string) (*SellOrder, error) {
	var o SellOrder
	err := d.store.Session().Where("account = ? AND tx_id = ?", account, txID).
		Order("id asc").First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// SellOrderByID finds an account's resting ask by collection _id.
func (d *Database) SellOrderByID(account string, id uint) (*SellOrder, error) {
	var o SellOrder
	err := d.store.Session().Where("account = ? AND id = ?", account, id).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ExpiredBuyOrders returns a page of bids whose expiration has passed.
func (d *Database) ExpiredBuyOrders(now int64) ([]BuyOrder, error) {
	var out []BuyOrder
	err := d.store.Session().Where("expiration <= ?", now).
		Order("id asc").Limit(matchPageSize).Find(&out).Error
	return out, err
}

// ExpiredSellOrders returns a page of asks whose expiration has passed.
func (d *Database) ExpiredSellOrders(now int64) ([]SellOrder, error) {
	var out []SellOrder
	err := d.store.Session().Where("expiration <= ?", now).
		Order("id asc").Limit(matchPageSize).Find(&out).Error
	return out, err
}

// HighestBid returns the top of the buy book for symbol, nil when empty.
func (d *Database) HighestBid(symbol string) (*BuyOrder, error) {
	var o BuyOrder
	err := d.store.Session().Where("symbol = ?", symbol).
		Order("priceDec desc, id asc").First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// LowestAsk returns the top of the sell book for symbol, nil when empty.
func (d *Database) LowestAsk(symbol string) (*SellOrder, error) {
	var o SellOrder
	err := d.store.Session().Where("symbol = ?", symbol).
		Order("priceDec asc, id asc").First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Metric returns the metrics row for symbol, nil when none exists yet.
func (d *Database) Metric(symbol string) (*Metric, error) {
	var m Metric
	err := d.store.Session().Where("symbol = ?", symbol).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// StaleTrades returns a page of trade-history rows older than the cutoff.
func (d *Database) StaleTrades(cutoff int64) ([]Trade, error) {
	var out []Trade
	err := d.store.Session().Where("timestamp < ?", cutoff).
		Order("id asc").Limit(matchPageSize).Find(&out).Error
	return out, err
}

// TradesBySymbol returns the most recent trades for symbol, newest first.
func (d *Database) TradesBySymbol(symbol string, limit int) ([]Trade, error) {
	var out []Trade
	err := d.store.Session().Where("symbol = ?", symbol).
		Order("timestamp desc, id desc").Limit(limit).Find(&out).Error
	return out, err
}

// OrderBook returns the resting orders of one side for symbol, best price
// first, for the query API.
func (d *Database) OrderBook(symbol string, buy bool, limit int) (interface{}, error) {
	if buy {
		var out []BuyOrder
		err := d.store.Session().Where("symbol = ?", symbol).
			Order("priceDec desc, id asc").Limit(limit).Find(&out).Error
		return out, err
	}
	var out []SellOrder
	err := d.store.Session().Where("symbol = ?", symbol).
		Order("priceDec asc, id asc").Limit(limit).Find(&out).Error
	return out, err
}
