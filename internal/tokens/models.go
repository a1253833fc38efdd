package tokens

import "github.com/shopspring/decimal"

// Token is a registered asset and its declared precision. Precision bounds
// the decimal places of every order quantity and balance of this token.
type Token struct {
	ID        uint            `gorm:"primaryKey" json:"_id"`
	Symbol    string          `gorm:"uniqueIndex" json:"symbol"`
	Precision int32           `json:"precision"`
	Issuer    string          `json:"issuer"`
	Supply    decimal.Decimal `gorm:"type:text" json:"supply"`
}

func (Token) TableName() string { return "tokens" }

// Balance is one account's holding of one token.
type Balance struct {
	ID      uint            `gorm:"primaryKey" json:"_id"`
	Account string          `gorm:"index:idx_balances_account_symbol" json:"account"`
	Symbol  string          `gorm:"index:idx_balances_account_symbol" json:"symbol"`
	Balance decimal.Decimal `gorm:"type:text" json:"balance"`
}

func (Balance) TableName() string { return "balances" }

// ContractBalance is custody held by a contract (order escrow and the like),
// kept apart from user balances so escrow conservation can be audited per
// contract.
type ContractBalance struct {
	ID       uint            `gorm:"primaryKey" json:"_id"`
	Contract string          `gorm:"index:idx_contract_balances_contract_symbol" json:"contract"`
	Symbol   string          `gorm:"index:idx_contract_balances_contract_symbol" json:"symbol"`
	Balance  decimal.Decimal `gorm:"type:text" json:"balance"`
}

func (ContractBalance) TableName() string { return "contractBalances" }

// PendingUnstake is a scheduled release of tokens back to an account,
// processed by the checkPendingUnstakes virtual transaction.
type PendingUnstake struct {
	ID               uint            `gorm:"primaryKey" json:"_id"`
	Account          string          `gorm:"index" json:"account"`
	Symbol           string          `json:"symbol"`
	Quantity         decimal.Decimal `gorm:"type:text" json:"quantity"`
	ReleaseTimestamp int64           `gorm:"index" json:"releaseTimestamp"`
	TxID             string          `json:"txId"`
}

func (PendingUnstake) TableName() string { return "pendingUnstakes" }
