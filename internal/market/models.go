package market

import "github.com/shopspring/decimal"

// Amount columns are TEXT on purpose: a decimal(n,m) column gets numeric
// affinity in sqlite and the stored value is silently converted to a binary
// float, corrupting anything beyond ~15 significant digits. The decimal's
// exact string form round-trips through TEXT untouched. PriceDec is the
// fixed-width sortable rendering of Price; it is what every price index,
// ORDER BY and range scan uses, since plain decimal strings do not sort
// numerically.

// BuyOrder is a resting bid. TokensLocked is the peg escrow backing the
// remaining quantity: always price × remaining quantity truncated to peg
// precision, decremented exactly as fills consume it and refunded in full on
// cancel, expiration or final fill.
type BuyOrder struct {
	ID           uint            `gorm:"primaryKey" json:"_id"`
	TxID         string          `gorm:"index" json:"txId"`
	Timestamp    int64           `json:"timestamp"`
	Account      string          `gorm:"index" json:"account"`
	Symbol       string          `gorm:"index" json:"symbol"`
	Quantity     decimal.Decimal `gorm:"type:text" json:"quantity"`
	Price        decimal.Decimal `gorm:"type:text" json:"price"`
	PriceDec     string          `gorm:"index;column:priceDec" json:"priceDec"`
	TokensLocked decimal.Decimal `gorm:"type:text" json:"tokensLocked"`
	Expiration   int64           `gorm:"index" json:"expiration"`
}

func (BuyOrder) TableName() string { return "buyBook" }

// SellOrder is a resting ask. The sold token itself is escrowed, so no
// separate locked amount is tracked; Quantity is both the remaining fill
// size and the remaining escrow.
type SellOrder struct {
	ID         uint            `gorm:"primaryKey" json:"_id"`
	TxID       string          `gorm:"index" json:"txId"`
	Timestamp  int64           `json:"timestamp"`
	Account    string          `gorm:"index" json:"account"`
	Symbol     string          `gorm:"index" json:"symbol"`
	Quantity   decimal.Decimal `gorm:"type:text" json:"quantity"`
	Price      decimal.Decimal `gorm:"type:text" json:"price"`
	PriceDec   string          `gorm:"index;column:priceDec" json:"priceDec"`
	Expiration int64           `gorm:"index" json:"expiration"`
}

func (SellOrder) TableName() string { return "sellBook" }

// Trade is one settled fill, retained for the rolling 24h metrics window.
// Volume is the peg consideration of the fill.
type Trade struct {
	ID        uint            `gorm:"primaryKey" json:"_id"`
	Type      string          `json:"type"`
	Buyer     string          `json:"buyer"`
	Seller    string          `json:"seller"`
	Symbol    string          `gorm:"index" json:"symbol"`
	Quantity  decimal.Decimal `gorm:"type:text" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:text" json:"price"`
	Timestamp int64           `gorm:"index" json:"timestamp"`
	Volume    decimal.Decimal `gorm:"type:text" json:"volume"`
	BuyTxID   string          `json:"buyTxId"`
	SellTxID  string          `json:"sellTxId"`
}

func (Trade) TableName() string { return "tradesHistory" }

// Metric is the per-symbol derived market state: rolling 24h volume and
// price change plus the current top of each book.
type Metric struct {
	ID                     uint            `gorm:"primaryKey" json:"_id"`
	Symbol                 string          `gorm:"uniqueIndex" json:"symbol"`
	Volume                 decimal.Decimal `gorm:"type:text" json:"volume"`
	VolumeExpiration       int64           `json:"volumeExpiration"`
	LastPrice              decimal.Decimal `gorm:"type:text" json:"lastPrice"`
	LowestAsk              decimal.Decimal `gorm:"type:text" json:"lowestAsk"`
	HighestBid             decimal.Decimal `gorm:"type:text" json:"highestBid"`
	LastDayPrice           decimal.Decimal `gorm:"type:text" json:"lastDayPrice"`
	LastDayPriceExpiration int64           `json:"lastDayPriceExpiration"`
	PriceChangePeg         decimal.Decimal `gorm:"type:text" json:"priceChangePeg"`
	PriceChangePercent     decimal.Decimal `gorm:"type:text" json:"priceChangePercent"`
}

func (Metric) TableName() string { return "metrics" }
