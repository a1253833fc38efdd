package market

import (
	"github.com/shopspring/decimal"

	"github.com/ksred/chain-engine/internal/contracts"
	"github.com/ksred/chain-engine/pkg/dec"
)

// metricsWindowSeconds is the rolling window for volume, price change and
// trade-history retention.
const metricsWindowSeconds = 24 * 3600

type tradeInput struct {
	Type     string
	Buyer    string
	Seller   string
	Symbol   string
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Volume   decimal.Decimal
	BuyTxID  string
	SellTxID string
}

// recordTrade purges trade-history rows that fell out of the 24h window
// (reversing their volume contribution), appends the new trade and rolls the
// volume and price metrics.
func (c *Contract) recordTrade(ctx *contracts.Context, in tradeInput) {
	d := NewDatabase(ctx.Store)
	now := ctx.Block.TimestampUnix

	for {
		stale, err := d.StaleTrades(now - metricsWindowSeconds)
		ctx.Assert(err == nil, "could not read trade history")
		if len(stale) == 0 {
			break
		}
		for i := range stale {
			t := stale[i]
			c.updateVolumeMetric(ctx, t.Symbol, t.Volume, false)
			ctx.Assert(ctx.Store.Remove(&t) == nil, "could not purge trade history")
		}
	}

	c.updateVolumeMetric(ctx, in.Symbol, in.Volume, true)

	ctx.Assert(ctx.Store.Insert(&Trade{
		Type:      in.Type,
		Buyer:     in.Buyer,
		Seller:    in.Seller,
		Symbol:    in.Symbol,
		Quantity:  in.Quantity,
		Price:     in.Price,
		Timestamp: now,
		Volume:    in.Volume,
		BuyTxID:   in.BuyTxID,
		SellTxID:  in.SellTxID,
	}) == nil, "could not record trade")

	c.updatePriceMetrics(ctx, in.Symbol, in.Price)
}

// updateVolumeMetric rolls the 24h volume window: additions reset the window
// once it has lapsed; subtractions (stale-trade purges) never do.
func (c *Contract) updateVolumeMetric(ctx *contracts.Context, symbol string, quantity decimal.Decimal, add bool) {
	m := c.metric(ctx, symbol)
	now := ctx.Block.TimestampUnix

	if add {
		if m.VolumeExpiration < now {
			m.Volume = decimal.Zero
			m.VolumeExpiration = now + metricsWindowSeconds
		}
		m.Volume = m.Volume.Add(quantity)
	} else {
		m.Volume = m.Volume.Sub(quantity)
		if m.Volume.IsNegative() {
			m.Volume = decimal.Zero
		}
	}
	ctx.Assert(ctx.Store.Update(m) == nil, "could not update metric")
}

// updatePriceMetrics records the last trade price and the 24h price change.
// The reference price resets on the first trade after the window lapses.
func (c *Contract) updatePriceMetrics(ctx *contracts.Context, symbol string, price decimal.Decimal) {
	m := c.metric(ctx, symbol)
	now := ctx.Block.TimestampUnix

	if m.LastDayPriceExpiration < now {
		m.LastDayPrice = price
		m.LastDayPriceExpiration = now + metricsWindowSeconds
		m.PriceChangePeg = decimal.Zero
		m.PriceChangePercent = decimal.Zero
	} else {
		m.PriceChangePeg = price.Sub(m.LastDayPrice)
		if m.LastDayPrice.IsPositive() {
			m.PriceChangePercent = dec.DivTruncate(m.PriceChangePeg.Mul(decimal.NewFromInt(100)), m.LastDayPrice, 2)
		}
	}
	m.LastPrice = price
	ctx.Assert(ctx.Store.Update(m) == nil, "could not update metric")
}

// updateBidMetric re-reads the top of the buy book, resetting to zero when
// the book is empty.
func (c *Contract) updateBidMetric(ctx *contracts.Context, symbol string) {
	d := NewDatabase(ctx.Store)
	m := c.metric(ctx, symbol)

	top, err := d.HighestBid(symbol)
	ctx.Assert(err == nil, "could not read buy book")
	if top == nil {
		m.HighestBid = decimal.Zero
	} else {
		m.HighestBid = top.Price
	}
	ctx.Assert(ctx.Store.Update(m) == nil, "could not update metric")
}

// updateAskMetric re-reads the top of the sell book, resetting to zero when
// the book is empty.
func (c *Contract) updateAskMetric(ctx *contracts.Context, symbol string) {
	d := NewDatabase(ctx.Store)
	m := c.metric(ctx, symbol)

	top, err := d.LowestAsk(symbol)
	ctx.Assert(err == nil, "could not read sell book")
	if top == nil {
		m.LowestAsk = decimal.Zero
	} else {
		m.LowestAsk = top.Price
	}
	ctx.Assert(ctx.Store.Update(m) == nil, "could not update metric")
}

// metric lazily creates a symbol's metrics row on first access.
func (c *Contract) metric(ctx *contracts.Context, symbol string) *Metric {
	d := NewDatabase(ctx.Store)
	m, err := d.Metric(symbol)
	ctx.Assert(err == nil, "could not read metrics")
	if m != nil {
		return m
	}
	m = &Metric{
		Symbol:             symbol,
		Volume:             decimal.Zero,
		LastPrice:          decimal.Zero,
		LowestAsk:          decimal.Zero,
		HighestBid:         decimal.Zero,
		LastDayPrice:       decimal.Zero,
		PriceChangePeg:     decimal.Zero,
		PriceChangePercent: decimal.Zero,
	}
	ctx.Assert(ctx.Store.Insert(m) == nil, "could not create metrics")
	return m
}
