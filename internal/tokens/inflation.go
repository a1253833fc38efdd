package tokens

import (
	"github.com/ksred/chain-engine/internal/contracts"
	"github.com/ksred/chain-engine/internal/types"
	"github.com/ksred/chain-engine/pkg/dec"

	"github.com/shopspring/decimal"
)

// InflationProperties holds the single row of inflation state: which token
// is inflated, by how much per tick, and into which account.
type InflationProperties struct {
	ID            uint            `gorm:"primarykey" json:"_id"`
	Symbol        string          `json:"symbol"`
	AmountPerTick decimal.Decimal `gorm:"type:text" json:"amountPerTick"`
	RewardAccount string          `json:"rewardAccount"`
}

func (InflationProperties) TableName() string { return "inflationProperties" }

// InflationContract mints a fixed tranche of the peg token into the reward
// pool on its virtual schedule.
type InflationContract struct {
	ledger *Ledger
}

// NewInflationContract creates the inflation contract bound to the shared
// ledger.
func NewInflationContract(ledger *Ledger) *InflationContract {
	return &InflationContract{ledger: ledger}
}

func (c *InflationContract) Name() string { return "inflation" }

func (c *InflationContract) Actions() map[string]contracts.ActionFunc {
	return map[string]contracts.ActionFunc{
		"issueNewTokens": c.issueNewTokens,
	}
}

// Setup creates the properties collection and seeds the default schedule.
func (c *InflationContract) Setup(ctx *contracts.Context) {
	if err := ctx.Store.CreateTable(&InflationProperties{}); err != nil {
		ctx.Error("inflation setup failed: " + err.Error())
		return
	}
	props := &InflationProperties{
		Symbol:        dec.PegSymbol,
		AmountPerTick: decimal.New(100, 0),
		RewardAccount: "reward-pool",
	}
	if err := ctx.Store.Insert(props); err != nil {
		ctx.Error("inflation setup failed: " + err.Error())
	}
}

// issueNewTokens mints one tranche. Runs only as a virtual transaction.
func (c *InflationContract) issueNewTokens(ctx *contracts.Context) {
	ctx.Assert(ctx.Sender == types.SystemSender, "not authorized")

	var props InflationProperties
	err := ctx.Store.Session().Order("id asc").First(&props).Error
	ctx.Assert(err == nil, "inflation properties missing")
	if !props.AmountPerTick.IsPositive() {
		return
	}

	token, err := c.ledger.token(props.Symbol)
	ctx.Assert(err == nil, "symbol does not exist")

	token.Supply = token.Supply.Add(props.AmountPerTick)
	ctx.Assert(ctx.Store.Update(token) == nil, "could not update supply")
	ctx.Assert(c.ledger.creditAccount(props.RewardAccount, props.Symbol, props.AmountPerTick) == nil,
		"could not credit reward pool")

	ctx.Emit("issueNewTokens", map[string]string{
		"symbol":   props.Symbol,
		"quantity": dec.ToFixed(props.AmountPerTick, token.Precision),
		"to":       props.RewardAccount,
	})
}
