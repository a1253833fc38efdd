package market

import (
	"github.com/shopspring/decimal"

	"github.com/ksred/chain-engine/internal/contracts"
	"github.com/ksred/chain-engine/pkg/dec"
)

// matchBuy walks the sell book for an incoming bid: cheapest first, oldest
// first within a price, page by page. Consumed rows are removed as the walk
// goes, so each page re-query starts at the current top of the book; a page
// that produces no fill ends the walk.
func (c *Contract) matchBuy(ctx *contracts.Context, order *BuyOrder) {
	c.sweepSellBook(ctx)
	d := NewDatabase(ctx.Store)

	closed := false
	for !closed && order.Quantity.IsPositive() {
		sells, err := d.SellCandidates(order.Symbol, &order.Price)
		ctx.Assert(err == nil, "could not read sell book")
		if len(sells) == 0 {
			break
		}

		progress := false
		for i := range sells {
			sell := &sells[i]

			fillQty := decimal.Min(order.Quantity, sell.Quantity)
			consideration := dec.MulTruncate(sell.Price, fillQty, dec.PegPrecision)
			if consideration.GreaterThan(order.TokensLocked) {
				// Never spend more than the escrow backs; truncation of
				// earlier fills can leave the lock a hair short.
				consideration = order.TokensLocked
			}
			if consideration.LessThan(dec.MinTradeUnit) {
				closed = true
				break
			}

			ctx.Assert(ctx.Tokens.TransferFromContract(ContractName, order.Account, order.Symbol, fillQty) == nil,
				"could not deliver tokens to buyer")
			ctx.Assert(ctx.Tokens.TransferFromContract(ContractName, sell.Account, dec.PegSymbol, consideration) == nil,
				"could not pay seller")

			order.TokensLocked = order.TokensLocked.Sub(consideration)
			c.reduceSellOrder(ctx, sell, fillQty)

			order.Quantity = order.Quantity.Sub(fillQty)
			closed = c.settleBuyOrder(ctx, order)

			c.recordTrade(ctx, tradeInput{
				Type: "buy", Buyer: order.Account, Seller: sell.Account,
				Symbol: order.Symbol, Quantity: fillQty, Price: sell.Price,
				Volume: consideration, BuyTxID: order.TxID, SellTxID: sell.TxID,
			})
			progress = true
			if closed {
				break
			}
		}
		if !progress {
			break
		}
	}

	c.updateAskMetric(ctx, order.Symbol)
	c.updateBidMetric(ctx, order.Symbol)
}

// matchSell is the mirror walk for an incoming ask: highest bid first,
// oldest first within a price.
func (c *Contract) matchSell(ctx *contracts.Context, order *SellOrder) {
	c.sweepBuyBook(ctx)
	d := NewDatabase(ctx.Store)

	closed := false
	for !closed && order.Quantity.IsPositive() {
		buys, err := d.BuyCandidates(order.Symbol, &order.Price)
		ctx.Assert(err == nil, "could not read buy book")
		if len(buys) == 0 {
			break
		}

		progress := false
		for i := range buys {
			buy := &buys[i]

			fillQty := decimal.Min(order.Quantity, buy.Quantity)
			consideration := dec.MulTruncate(buy.Price, fillQty, dec.PegPrecision)
			if consideration.GreaterThan(buy.TokensLocked) {
				consideration = buy.TokensLocked
			}
			if consideration.LessThan(dec.MinTradeUnit) {
				closed = true
				break
			}

			ctx.Assert(ctx.Tokens.TransferFromContract(ContractName, buy.Account, order.Symbol, fillQty) == nil,
				"could not deliver tokens to buyer")
			ctx.Assert(ctx.Tokens.TransferFromContract(ContractName, order.Account, dec.PegSymbol, consideration) == nil,
				"could not pay seller")

			buy.TokensLocked = buy.TokensLocked.Sub(consideration)
			buy.Quantity = buy.Quantity.Sub(fillQty)
			c.settleRestingBuy(ctx, buy)

			order.Quantity = order.Quantity.Sub(fillQty)
			closed = c.settleSellOrder(ctx, order)

			c.recordTrade(ctx, tradeInput{
				Type: "sell", Buyer: buy.Account, Seller: order.Account,
				Symbol: order.Symbol, Quantity: fillQty, Price: buy.Price,
				Volume: consideration, BuyTxID: buy.TxID, SellTxID: order.TxID,
			})
			progress = true
			if closed {
				break
			}
		}
		if !progress {
			break
		}
	}

	c.updateAskMetric(ctx, order.Symbol)
	c.updateBidMetric(ctx, order.Symbol)
}

// sweepMarketBuy spends the escrowed peg amount against the sell book with
// no price bound, refunding whatever the book could not absorb.
func (c *Contract) sweepMarketBuy(ctx *contracts.Context, account, symbol string, escrow decimal.Decimal) {
	c.sweepSellBook(ctx)
	d := NewDatabase(ctx.Store)
	precision, _ := ctx.Tokens.Precision(symbol)

	remaining := escrow
	done := false
	for !done {
		sells, err := d.SellCandidates(symbol, nil)
		ctx.Assert(err == nil, "could not read sell book")
		if len(sells) == 0 {
			break
		}

		progress := false
		for i := range sells {
			sell := &sells[i]
			if remaining.LessThan(dec.MinTradeUnit) {
				done = true
				break
			}

			var fillQty, consideration decimal.Decimal
			wholeCost := dec.MulTruncate(sell.Price, sell.Quantity, dec.PegPrecision)
			if wholeCost.LessThanOrEqual(remaining) {
				fillQty = sell.Quantity
				consideration = wholeCost
			} else {
				fillQty = dec.DivTruncate(remaining, sell.Price, precision)
				consideration = dec.MulTruncate(sell.Price, fillQty, dec.PegPrecision)
			}
			if !fillQty.IsPositive() || consideration.LessThan(dec.MinTradeUnit) {
				done = true
				break
			}

			ctx.Assert(ctx.Tokens.TransferFromContract(ContractName, account, symbol, fillQty) == nil,
				"could not deliver tokens to buyer")
			ctx.Assert(ctx.Tokens.TransferFromContract(ContractName, sell.Account, dec.PegSymbol, consideration) == nil,
				"could not pay seller")

			remaining = remaining.Sub(consideration)
			c.reduceSellOrder(ctx, sell, fillQty)

			c.recordTrade(ctx, tradeInput{
				Type: "buy", Buyer: account, Seller: sell.Account,
				Symbol: symbol, Quantity: fillQty, Price: sell.Price,
				Volume: consideration, BuyTxID: ctx.TxID, SellTxID: sell.TxID,
			})
			progress = true
		}
		if !progress {
			break
		}
	}

	if remaining.IsPositive() {
		ctx.Assert(ctx.Tokens.TransferFromContract(ContractName, account, dec.PegSymbol, remaining) == nil,
			"could not refund remainder")
	}

	c.updateAskMetric(ctx, symbol)
	c.updateBidMetric(ctx, symbol)
}

// sweepMarketSell sells the escrowed token amount into the buy book with no
// price bound, refunding whatever the book could not absorb.
func (c *Contract) sweepMarketSell(ctx *contracts.Context, account, symbol string, escrow decimal.Decimal) {
	c.sweepBuyBook(ctx)
	d := NewDatabase(ctx.Store)

	remaining := escrow
	done := false
	for !done && remaining.IsPositive() {
		buys, err := d.BuyCandidates(symbol, nil)
		ctx.Assert(err == nil, "could not read buy book")
		if len(buys) == 0 {
			break
		}

		progress := false
		for i := range buys {
			buy := &buys[i]
			if !remaining.IsPositive() {
				done = true
				break
			}

			fillQty := decimal.Min(remaining, buy.Quantity)
			consideration := dec.MulTruncate(buy.Price, fillQty, dec.PegPrecision)
			if consideration.GreaterThan(buy.TokensLocked) {
				consideration = buy.TokensLocked
			}
			if consideration.LessThan(dec.MinTradeUnit) {
				done = true
				break
			}

			ctx.Assert(ctx.Tokens.TransferFromContract(ContractName, buy.Account, symbol, fillQty) == nil,
				"could not deliver tokens to buyer")
			ctx.Assert(ctx.Tokens.TransferFromContract(ContractName, account, dec.PegSymbol, consideration) == nil,
				"could not pay seller")

			buy.TokensLocked = buy.TokensLocked.Sub(consideration)
			buy.Quantity = buy.Quantity.Sub(fillQty)
			c.settleRestingBuy(ctx, buy)

			remaining = remaining.Sub(fillQty)

			c.recordTrade(ctx, tradeInput{
				Type: "sell", Buyer: buy.Account, Seller: account,
				Symbol: symbol, Quantity: fillQty, Price: buy.Price,
				Volume: consideration, BuyTxID: buy.TxID, SellTxID: ctx.TxID,
			})
			progress = true
		}
		if !progress {
			break
		}
	}

	if remaining.IsPositive() {
		ctx.Assert(ctx.Tokens.TransferFromContract(ContractName, account, symbol, remaining) == nil,
			"could not refund remainder")
	}

	c.updateAskMetric(ctx, symbol)
	c.updateBidMetric(ctx, symbol)
}

// reduceSellOrder applies a fill to a resting ask, removing it once its
// remainder is empty or worth less than the minimum tradable unit. A below-
// minimum remainder is refunded to the seller rather than left resting.
func (c *Contract) reduceSellOrder(ctx *contracts.Context, sell *SellOrder, fillQty decimal.Decimal) {
	sell.Quantity = sell.Quantity.Sub(fillQty)
	remainderValue := dec.MulTruncate(sell.Price, sell.Quantity, dec.PegPrecision)
	if sell.Quantity.IsPositive() && remainderValue.GreaterThanOrEqual(dec.MinTradeUnit) {
		ctx.Assert(ctx.Store.Update(sell) == nil, "could not update sell order")
		return
	}
	if sell.Quantity.IsPositive() {
		ctx.Assert(ctx.Tokens.TransferFromContract(ContractName, sell.Account, sell.Symbol, sell.Quantity) == nil,
			"could not refund seller")
	}
	ctx.Assert(ctx.Store.Remove(sell) == nil, "could not close sell order")
	ctx.Emit("orderClosed", map[string]string{"account": sell.Account, "type": "sell", "txId": sell.TxID})
}

// settleBuyOrder persists the incoming bid's post-fill state, closing it
// (with full escrow refund of any remainder) when it can no longer fill.
// Reports whether the order was closed.
func (c *Contract) settleBuyOrder(ctx *contracts.Context, order *BuyOrder) bool {
	remainderValue := dec.MulTruncate(order.Price, order.Quantity, dec.PegPrecision)
	if order.Quantity.IsPositive() && remainderValue.GreaterThanOrEqual(dec.MinTradeUnit) {
		ctx.Assert(ctx.Store.Update(order) == nil, "could not update buy order")
		return false
	}
	if order.TokensLocked.IsPositive() {
		ctx.Assert(ctx.Tokens.TransferFromContract(ContractName, order.Account, dec.PegSymbol, order.TokensLocked) == nil,
			"could not refund buyer")
		order.TokensLocked = decimal.Zero
	}
	ctx.Assert(ctx.Store.Remove(order) == nil, "could not close buy order")
	ctx.Emit("orderClosed", map[string]string{"account": order.Account, "type": "buy", "txId": order.TxID})
	return true
}

// settleRestingBuy is settleBuyOrder for a counterparty bid hit by an
// incoming ask or market sell.
func (c *Contract) settleRestingBuy(ctx *contracts.Context, buy *BuyOrder) {
	remainderValue := dec.MulTruncate(buy.Price, buy.Quantity, dec.PegPrecision)
	if buy.Quantity.IsPositive() && remainderValue.GreaterThanOrEqual(dec.MinTradeUnit) {
		ctx.Assert(ctx.Store.Update(buy) == nil, "could not update buy order")
		return
	}
	if buy.TokensLocked.IsPositive() {
		ctx.Assert(ctx.Tokens.TransferFromContract(ContractName, buy.Account, dec.PegSymbol, buy.TokensLocked) == nil,
			"could not refund buyer")
		buy.TokensLocked = decimal.Zero
	}
	ctx.Assert(ctx.Store.Remove(buy) == nil, "could not close buy order")
	ctx.Emit("orderClosed", map[string]string{"account": buy.Account, "type": "buy", "txId": buy.TxID})
}

// settleSellOrder persists the incoming ask's post-fill state; mirror of
// settleBuyOrder.
func (c *Contract) settleSellOrder(ctx *contracts.Context, order *SellOrder) bool {
	remainderValue := dec.MulTruncate(order.Price, order.Quantity, dec.PegPrecision)
	if order.Quantity.IsPositive() && remainderValue.GreaterThanOrEqual(dec.MinTradeUnit) {
		ctx.Assert(ctx.Store.Update(order) == nil, "could not update sell order")
		return false
	}
	if order.Quantity.IsPositive() {
		ctx.Assert(ctx.Tokens.TransferFromContract(ContractName, order.Account, order.Symbol, order.Quantity) == nil,
			"could not refund seller")
	}
	ctx.Assert(ctx.Store.Remove(order) == nil, "could not close sell order")
	ctx.Emit("orderClosed", map[string]string{"account": order.Account, "type": "sell", "txId": order.TxID})
	return true
}

// sweepBuyBook expires every overdue bid, refunding its escrow, and
// refreshes the bid metric of each affected symbol.
func (c *Contract) sweepBuyBook(ctx *contracts.Context) {
	d := NewDatabase(ctx.Store)
	affected := newSymbolSet()

	for {
		expired, err := d.ExpiredBuyOrders(ctx.Block.TimestampUnix)
		ctx.Assert(err == nil, "could not read buy book")
		if len(expired) == 0 {
			break
		}
		for i := range expired {
			order := expired[i]
			if order.TokensLocked.IsPositive() {
				ctx.Assert(ctx.Tokens.TransferFromContract(ContractName, order.Account, dec.PegSymbol, order.TokensLocked) == nil,
					"could not refund expired order")
			}
			ctx.Assert(ctx.Store.Remove(&order) == nil, "could not remove expired order")
			ctx.Emit("orderExpired", map[string]string{"type": "buy", "txId": order.TxID})
			affected.add(order.Symbol)
		}
	}

	for _, symbol := range affected.symbols {
		c.updateBidMetric(ctx, symbol)
	}
}

// sweepSellBook expires every overdue ask, refunding the escrowed tokens,
// and refreshes the ask metric of each affected symbol.
func (c *Contract) sweepSellBook(ctx *contracts.Context) {
	d := NewDatabase(ctx.Store)
	affected := newSymbolSet()

	for {
		expired, err := d.ExpiredSellOrders(ctx.Block.TimestampUnix)
		ctx.Assert(err == nil, "could not read sell book")
		if len(expired) == 0 {
			break
		}
		for i := range expired {
			order := expired[i]
			if order.Quantity.IsPositive() {
				ctx.Assert(ctx.Tokens.TransferFromContract(ContractName, order.Account, order.Symbol, order.Quantity) == nil,
					"could not refund expired order")
			}
			ctx.Assert(ctx.Store.Remove(&order) == nil, "could not remove expired order")
			ctx.Emit("orderExpired", map[string]string{"type": "sell", "txId": order.TxID})
			affected.add(order.Symbol)
		}
	}

	for _, symbol := range affected.symbols {
		c.updateAskMetric(ctx, symbol)
	}
}

// symbolSet preserves first-seen order so metric refreshes after a sweep
// happen in a deterministic sequence.
type symbolSet struct {
	seen    map[string]bool
	symbols []string
}

func newSymbolSet() *symbolSet {
	return &symbolSet{seen: map[string]bool{}}
}

func (s *symbolSet) add(symbol string) {
	if !s.seen[symbol] {
		s.seen[symbol] = true
		s.symbols = append(s.symbols, symbol)
	}
}
