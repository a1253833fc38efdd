package tokens

import (
	"errors"
	"regexp"

	"gorm.io/gorm"

	"github.com/ksred/chain-engine/internal/contracts"
	"github.com/ksred/chain-engine/internal/store"
	"github.com/ksred/chain-engine/internal/types"
	"github.com/ksred/chain-engine/pkg/dec"
)

// UnstakeCooldownSeconds is how long unstaked tokens stay pending before the
// scheduled release sweep returns them.
const UnstakeCooldownSeconds = 7 * 24 * 3600

var symbolFormat = regexp.MustCompile(`^[A-Z]+(\.[A-Z]+)?$`)

// Contract is the tokens contract: asset creation, issuance, transfers and
// timed unstake releases.
type Contract struct {
	ledger *Ledger
}

// NewContract creates the tokens contract bound to its ledger.
func NewContract(ledger *Ledger) *Contract {
	return &Contract{ledger: ledger}
}

func (c *Contract) Name() string { return "tokens" }

func (c *Contract) Actions() map[string]contracts.ActionFunc {
	return map[string]contracts.ActionFunc{
		"create":               c.create,
		"issue":                c.issue,
		"transfer":             c.transfer,
		"unstake":              c.unstake,
		"checkPendingUnstakes": c.checkPendingUnstakes,
	}
}

// Setup creates the token collections and seeds the peg token, issued by
// the deploying account.
func (c *Contract) Setup(ctx *contracts.Context) {
	for _, model := range []store.Doc{&Token{}, &Balance{}, &ContractBalance{}, &PendingUnstake{}} {
		if err := ctx.Store.CreateTable(model); err != nil {
			ctx.Error("tokens setup failed: " + err.Error())
			return
		}
	}
	if err := ctx.Store.Insert(&Token{
		Symbol:    dec.PegSymbol,
		Precision: dec.PegPrecision,
		Issuer:    ctx.Sender,
		Supply:    dec.Zero,
	}); err != nil {
		ctx.Error("tokens setup failed: " + err.Error())
	}
}

func (c *Contract) create(ctx *contracts.Context) {
	account := ctx.Account()
	ctx.Assert(ctx.AuthorizedSigner(), "you must use a custom_json signed with your active key")

	symbol, _ := ctx.PayloadString("symbol")
	ctx.Assert(symbolFormat.MatchString(symbol) && len(symbol) <= 10, "invalid symbol")

	precision, ok := ctx.PayloadInt64("precision")
	ctx.Assert(ok && precision >= 0 && precision <= dec.PegPrecision, "invalid precision")

	var existing Token
	err := ctx.Store.Session().Where("symbol = ?", symbol).First(&existing).Error
	ctx.Assert(errors.Is(err, gorm.ErrRecordNotFound), "symbol already exists")

	ctx.Assert(ctx.Store.Insert(&Token{
		Symbol:    symbol,
		Precision: int32(precision),
		Issuer:    account,
		Supply:    dec.Zero,
	}) == nil, "could not create token")
	ctx.Emit("create", map[string]string{"symbol": symbol, "issuer": account})
}

func (c *Contract) issue(ctx *contracts.Context) {
	account := ctx.Account()
	ctx.Assert(ctx.AuthorizedSigner(), "you must use a custom_json signed with your active key")

	symbol, _ := ctx.PayloadString("symbol")
	to, _ := ctx.PayloadString("to")
	quantityStr, _ := ctx.PayloadString("quantity")
	ctx.Assert(to != "", "invalid to")

	token, err := c.ledger.token(symbol)
	ctx.Assert(err == nil, "symbol does not exist")
	ctx.Assert(token.Issuer == account, "not allowed to issue tokens")

	quantity, err := dec.FromString(quantityStr)
	ctx.Assert(err == nil && quantity.IsPositive(), "invalid quantity")
	ctx.Assert(dec.DecimalPlaces(quantity) <= token.Precision, "invalid quantity")

	token.Supply = token.Supply.Add(quantity)
	ctx.Assert(ctx.Store.Update(token) == nil, "could not update supply")
	ctx.Assert(c.ledger.creditAccount(to, symbol, quantity) == nil, "could not credit balance")

	ctx.Emit("issue", map[string]string{
		"to": to, "symbol": symbol, "quantity": dec.ToFixed(quantity, token.Precision),
	})
}

func (c *Contract) transfer(ctx *contracts.Context) {
	account := ctx.Account()
	ctx.Assert(ctx.AuthorizedSigner(), "you must use a custom_json signed with your active key")

	symbol, _ := ctx.PayloadString("symbol")
	to, _ := ctx.PayloadString("to")
	quantityStr, _ := ctx.PayloadString("quantity")
	ctx.Assert(to != "" && to != account, "invalid to")

	token, err := c.ledger.token(symbol)
	ctx.Assert(err == nil, "symbol does not exist")

	quantity, err := dec.FromString(quantityStr)
	ctx.Assert(err == nil && quantity.IsPositive(), "invalid quantity")
	ctx.Assert(dec.DecimalPlaces(quantity) <= token.Precision, "invalid quantity")

	ctx.Assert(c.ledger.Transfer(account, to, symbol, quantity) == nil, "insufficient balance")

	ctx.Emit("transfer", map[string]string{
		"from": account, "to": to, "symbol": symbol,
		"quantity": dec.ToFixed(quantity, token.Precision),
	})
}

// unstake debits the caller's balance now and schedules its release after
// the cooldown; the release itself happens in checkPendingUnstakes.
func (c *Contract) unstake(ctx *contracts.Context) {
	account := ctx.Account()
	ctx.Assert(ctx.AuthorizedSigner(), "you must use a custom_json signed with your active key")

	symbol, _ := ctx.PayloadString("symbol")
	quantityStr, _ := ctx.PayloadString("quantity")

	token, err := c.ledger.token(symbol)
	ctx.Assert(err == nil, "symbol does not exist")

	quantity, err := dec.FromString(quantityStr)
	ctx.Assert(err == nil && quantity.IsPositive(), "invalid quantity")
	ctx.Assert(dec.DecimalPlaces(quantity) <= token.Precision, "invalid quantity")

	ctx.Assert(c.ledger.debitAccount(account, symbol, quantity) == nil, "insufficient balance")
	ctx.Assert(ctx.Store.Insert(&PendingUnstake{
		Account:          account,
		Symbol:           symbol,
		Quantity:         quantity,
		ReleaseTimestamp: ctx.Block.TimestampUnix + UnstakeCooldownSeconds,
		TxID:             ctx.TxID,
	}) == nil, "could not schedule unstake")

	ctx.Emit("unstakeStart", map[string]string{
		"account": account, "symbol": symbol,
		"quantity": dec.ToFixed(quantity, token.Precision),
	})
}

// checkPendingUnstakes releases every pending unstake whose cooldown has
// elapsed. Runs only as a virtual transaction.
func (c *Contract) checkPendingUnstakes(ctx *contracts.Context) {
	ctx.Assert(ctx.Sender == types.SystemSender, "not authorized")

	for {
		var due []PendingUnstake
		err := ctx.Store.Session().
			Where("release_timestamp <= ?", ctx.Block.TimestampUnix).
			Order("id asc").Limit(1000).Find(&due).Error
		ctx.Assert(err == nil, "could not read pending unstakes")
		if len(due) == 0 {
			return
		}
		for i := range due {
			p := due[i]
			ctx.Assert(c.ledger.creditAccount(p.Account, p.Symbol, p.Quantity) == nil, "could not release unstake")
			ctx.Assert(ctx.Store.Remove(&p) == nil, "could not remove pending unstake")
			ctx.Emit("unstake", map[string]string{
				"account": p.Account, "symbol": p.Symbol, "txId": p.TxID,
			})
		}
	}
}
