// Package market implements the on-chain order-matching engine: persisted
// buy/sell books matched as a continuous double auction with price-then-time
// priority, exact truncating decimal arithmetic, escrowed balances and
// rolling 24h market metrics.
package market

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/ksred/chain-engine/internal/contracts"
	"github.com/ksred/chain-engine/internal/store"
	"github.com/ksred/chain-engine/internal/types"
	"github.com/ksred/chain-engine/pkg/dec"
)

// ContractName is the custody account all escrow is held under.
const ContractName = "market"

// MaxExpirationSeconds caps an order's lifetime at 30 days; orders placed
// without an expiration get the maximum.
const MaxExpirationSeconds = 30 * 24 * 3600

const errActiveKey = "you must use a custom_json signed with your active key"

// Contract is the market contract. It is stateless; all state lives in the
// façade-backed collections.
type Contract struct{}

// NewContract creates the market contract.
func NewContract() *Contract {
	return &Contract{}
}

func (c *Contract) Name() string { return ContractName }

func (c *Contract) Actions() map[string]contracts.ActionFunc {
	return map[string]contracts.ActionFunc{
		"buy":                 c.buy,
		"sell":                c.sell,
		"marketBuy":           c.marketBuy,
		"marketSell":          c.marketSell,
		"cancel":              c.cancel,
		"removeExpiredOrders": c.removeExpiredOrders,
	}
}

// Setup creates the market collections.
func (c *Contract) Setup(ctx *contracts.Context) {
	for _, model := range []store.Doc{&BuyOrder{}, &SellOrder{}, &Trade{}, &Metric{}} {
		if err := ctx.Store.CreateTable(model); err != nil {
			ctx.Error("market setup failed: " + err.Error())
			return
		}
	}
}

// buy places a limit bid: peg escrow is locked up front, the order is
// inserted Resting, then immediately matched against the sell book.
func (c *Contract) buy(ctx *contracts.Context) {
	account := ctx.Account()
	ctx.Assert(ctx.AuthorizedSigner(), errActiveKey)

	symbol, quantity, price := c.validateOrderParams(ctx)

	tokensToLock := dec.MulTruncate(price, quantity, dec.PegPrecision)
	ctx.Assert(tokensToLock.GreaterThanOrEqual(dec.MinTradeUnit), "order cannot be placed as it cannot be filled")

	ctx.Assert(ctx.Tokens.TransferToContract(account, ContractName, dec.PegSymbol, tokensToLock) == nil,
		"insufficient balance")

	order := &BuyOrder{
		TxID:         ctx.TxID,
		Timestamp:    ctx.Block.TimestampUnix,
		Account:      account,
		Symbol:       symbol,
		Quantity:     quantity,
		Price:        price,
		PriceDec:     dec.SortKey(price),
		TokensLocked: tokensToLock,
		Expiration:   ctx.Block.TimestampUnix + c.expirationSeconds(ctx),
	}
	ctx.Assert(ctx.Store.Insert(order) == nil, "could not place order")

	c.matchBuy(ctx, order)
}

// sell places a limit ask: the sold token itself is escrowed, the order is
// inserted Resting, then immediately matched against the buy book.
func (c *Contract) sell(ctx *contracts.Context) {
	account := ctx.Account()
	ctx.Assert(ctx.AuthorizedSigner(), errActiveKey)

	symbol, quantity, price := c.validateOrderParams(ctx)

	orderValue := dec.MulTruncate(price, quantity, dec.PegPrecision)
	ctx.Assert(orderValue.GreaterThanOrEqual(dec.MinTradeUnit), "order cannot be placed as it cannot be filled")

	ctx.Assert(ctx.Tokens.TransferToContract(account, ContractName, symbol, quantity) == nil,
		"insufficient balance")

	order := &SellOrder{
		TxID:       ctx.TxID,
		Timestamp:  ctx.Block.TimestampUnix,
		Account:    account,
		Symbol:     symbol,
		Quantity:   quantity,
		Price:      price,
		PriceDec:   dec.SortKey(price),
		Expiration: ctx.Block.TimestampUnix + c.expirationSeconds(ctx),
	}
	ctx.Assert(ctx.Store.Insert(order) == nil, "could not place order")

	c.matchSell(ctx, order)
}

// marketBuy spends a fixed peg amount sweeping the sell book at whatever
// resting prices exist; unconsumed escrow is refunded.
func (c *Contract) marketBuy(ctx *contracts.Context) {
	account := ctx.Account()
	ctx.Assert(ctx.AuthorizedSigner(), errActiveKey)

	symbol := c.validateSymbol(ctx)
	_, ok := ctx.Tokens.Precision(symbol)
	ctx.Assert(ok, "symbol does not exist")

	quantityStr, _ := ctx.PayloadString("quantity")
	quantity, err := dec.FromString(quantityStr)
	ctx.Assert(err == nil && quantity.IsPositive(), "invalid quantity")
	ctx.Assert(dec.DecimalPlaces(quantity) <= dec.PegPrecision, "invalid quantity")
	ctx.Assert(quantity.GreaterThanOrEqual(dec.MinTradeUnit), "order cannot be placed as it cannot be filled")

	ctx.Assert(ctx.Tokens.TransferToContract(account, ContractName, dec.PegSymbol, quantity) == nil,
		"insufficient balance")

	c.sweepMarketBuy(ctx, account, symbol, quantity)
}

// marketSell sells a fixed token amount into the buy book at whatever
// resting prices exist; anything the book cannot absorb is refunded.
func (c *Contract) marketSell(ctx *contracts.Context) {
	account := ctx.Account()
	ctx.Assert(ctx.AuthorizedSigner(), errActiveKey)

	symbol := c.validateSymbol(ctx)
	precision, ok := ctx.Tokens.Precision(symbol)
	ctx.Assert(ok, "symbol does not exist")

	quantityStr, _ := ctx.PayloadString("quantity")
	quantity, err := dec.FromString(quantityStr)
	ctx.Assert(err == nil && quantity.IsPositive(), "invalid quantity")
	ctx.Assert(dec.DecimalPlaces(quantity) <= precision, "invalid quantity")

	ctx.Assert(ctx.Tokens.TransferToContract(account, ContractName, symbol, quantity) == nil,
		"insufficient balance")

	c.sweepMarketSell(ctx, account, symbol, quantity)
}

// cancel removes the owner's resting order by txId or numeric _id and
// refunds its remaining escrow.
func (c *Contract) cancel(ctx *contracts.Context) {
	account := ctx.Account()
	ctx.Assert(ctx.AuthorizedSigner(), errActiveKey)

	orderType, _ := ctx.PayloadString("type")
	ctx.Assert(orderType == "buy" || orderType == "sell", "invalid type")

	d := NewDatabase(ctx.Store)

	if orderType == "buy" {
		order := c.findBuyOrder(ctx, d, account)
		ctx.Assert(order != nil, "order does not exist")
		if order.TokensLocked.IsPositive() {
			ctx.Assert(ctx.Tokens.TransferFromContract(ContractName, account, dec.PegSymbol, order.TokensLocked) == nil,
				"could not refund order")
		}
		ctx.Assert(ctx.Store.Remove(order) == nil, "could not cancel order")
		ctx.Emit("orderExpired", map[string]string{"type": "buy", "txId": order.TxID})
		c.updateBidMetric(ctx, order.Symbol)
		return
	}

	order := c.findSellOrder(ctx, d, account)
	ctx.Assert(order != nil, "order does not exist")
	if order.Quantity.IsPositive() {
		ctx.Assert(ctx.Tokens.TransferFromContract(ContractName, account, order.Symbol, order.Quantity) == nil,
			"could not refund order")
	}
	ctx.Assert(ctx.Store.Remove(order) == nil, "could not cancel order")
	ctx.Emit("orderExpired", map[string]string{"type": "sell", "txId": order.TxID})
	c.updateAskMetric(ctx, order.Symbol)
}

// removeExpiredOrders is the scheduled sweep entrypoint, run per table as a
// virtual transaction.
func (c *Contract) removeExpiredOrders(ctx *contracts.Context) {
	ctx.Assert(ctx.Sender == types.SystemSender, "not authorized")

	table, _ := ctx.PayloadString("table")
	switch table {
	case "buyBook":
		c.sweepBuyBook(ctx)
	case "sellBook":
		c.sweepSellBook(ctx)
	default:
		ctx.Assert(false, "invalid table")
	}
}

// validateOrderParams checks the shared buy/sell parameters and returns the
// parsed symbol, quantity and price. Quantity precision is bounded by the
// token's own precision, price by the peg precision.
func (c *Contract) validateOrderParams(ctx *contracts.Context) (string, decimal.Decimal, decimal.Decimal) {
	symbol := c.validateSymbol(ctx)
	precision, ok := ctx.Tokens.Precision(symbol)
	ctx.Assert(ok, "symbol does not exist")

	quantityStr, _ := ctx.PayloadString("quantity")
	quantity, err := dec.FromString(quantityStr)
	ctx.Assert(err == nil && quantity.IsPositive(), "invalid quantity")
	ctx.Assert(dec.DecimalPlaces(quantity) <= precision, "invalid quantity")

	priceStr, _ := ctx.PayloadString("price")
	price, err := dec.FromString(priceStr)
	ctx.Assert(err == nil && price.IsPositive(), "invalid price")
	ctx.Assert(dec.DecimalPlaces(price) <= dec.PegPrecision, "invalid price")

	return symbol, quantity, price
}

func (c *Contract) validateSymbol(ctx *contracts.Context) string {
	symbol, _ := ctx.PayloadString("symbol")
	ctx.Assert(symbol != "" && symbol != dec.PegSymbol, "invalid symbol")
	return symbol
}

// expirationSeconds resolves the optional expiration payload field, capped
// at the 30 day maximum.
func (c *Contract) expirationSeconds(ctx *contracts.Context) int64 {
	if v, ok := ctx.PayloadInt64("expiration"); ok && v > 0 {
		if v > MaxExpirationSeconds {
			return MaxExpirationSeconds
		}
		return v
	}
	return MaxExpirationSeconds
}

func (c *Contract) findBuyOrder(ctx *contracts.Context, d *Database, account string) *BuyOrder {
	if id, ok := ctx.Payload["id"].(json.Number); ok {
		n, err := id.Int64()
		ctx.Assert(err == nil && n > 0, "invalid id")
		order, qerr := d.BuyOrderByID(account, uint(n))
		ctx.Assert(qerr == nil, "could not read order")
		return order
	}
	txID, _ := ctx.PayloadString("id")
	ctx.Assert(txID != "", "invalid id")
	order, err := d.BuyOrderByTxID(account, txID)
	ctx.Assert(err == nil, "could not read order")
	return order
}

func (c *Contract) findSellOrder(ctx *contracts.Context, d *Database, account string) *SellOrder {
	if id, ok := ctx.Payload["id"].(json.Number); ok {
		n, err := id.Int64()
		ctx.Assert(err == nil && n > 0, "invalid id")
		order, qerr := d.SellOrderByID(account, uint(n))
		ctx.Assert(qerr == nil, "could not read order")
		return order
	}
	txID, _ := ctx.PayloadString("id")
	ctx.Assert(txID != "", "invalid id")
	order, err := d.SellOrderByTxID(account, txID)
	ctx.Assert(err == nil, "could not read order")
	return order
}
