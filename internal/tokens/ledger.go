// Package tokens provides the asset registry, the balance ledger used by the
// execution gateway's transfer capability, and the tokens contract itself.
package tokens

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/chain-engine/internal/store"
	"github.com/ksred/chain-engine/pkg/dec"
)

var (
	ErrUnknownToken        = errors.New("unknown token")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Ledger performs balance movements through the store façade so that every
// transfer folds into the running database hash.
type Ledger struct {
	store *store.Store
}

// NewLedger creates a ledger over the shared store.
func NewLedger(s *store.Store) *Ledger {
	return &Ledger{store: s}
}

// Precision returns a token's declared decimal places.
func (l *Ledger) Precision(symbol string) (int32, bool) {
	token, err := l.token(symbol)
	if err != nil {
		return 0, false
	}
	return token.Precision, true
}

// Transfer moves quantity of symbol between two user accounts.
func (l *Ledger) Transfer(from, to, symbol string, quantity decimal.Decimal) error {
	if err := l.validateQuantity(symbol, quantity); err != nil {
		return err
	}
	if err := l.debitAccount(from, symbol, quantity); err != nil {
		return err
	}
	return l.creditAccount(to, symbol, quantity)
}

// TransferToContract moves quantity from a user account into a contract's
// custody (escrow).
func (l *Ledger) TransferToContract(from, contract, symbol string, quantity decimal.Decimal) error {
	if err := l.validateQuantity(symbol, quantity); err != nil {
		return err
	}
	if err := l.debitAccount(from, symbol, quantity); err != nil {
		return err
	}
	return l.creditContract(contract, symbol, quantity)
}

// TransferFromContract releases quantity from a contract's custody back to a
// user account.
func (l *Ledger) TransferFromContract(contract, to, symbol string, quantity decimal.Decimal) error {
	if err := l.validateQuantity(symbol, quantity); err != nil {
		return err
	}
	if err := l.debitContract(contract, symbol, quantity); err != nil {
		return err
	}
	return l.creditAccount(to, symbol, quantity)
}

// AccountBalance returns an account's balance of symbol, zero if no row
// exists yet.
func (l *Ledger) AccountBalance(account, symbol string) decimal.Decimal {
	var b Balance
	err := l.store.Session().
		Where("account = ? AND symbol = ?", account, symbol).
		Order("id asc").First(&b).Error
	if err != nil {
		return decimal.Zero
	}
	return b.Balance
}

// ContractCustody returns a contract's custody balance of symbol.
func (l *Ledger) ContractCustody(contract, symbol string) decimal.Decimal {
	var b ContractBalance
	err := l.store.Session().
		Where("contract = ? AND symbol = ?", contract, symbol).
		Order("id asc").First(&b).Error
	if err != nil {
		return decimal.Zero
	}
	return b.Balance
}

func (l *Ledger) token(symbol string) (*Token, error) {
	var token Token
	if err := l.store.Session().Where("symbol = ?", symbol).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownToken
		}
		return nil, err
	}
	return &token, nil
}

func (l *Ledger) validateQuantity(symbol string, quantity decimal.Decimal) error {
	token, err := l.token(symbol)
	if err != nil {
		return err
	}
	if !quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if dec.DecimalPlaces(quantity) > token.Precision {
		return fmt.Errorf("%w: %s exceeds %d decimal places", ErrInvalidQuantity, quantity, token.Precision)
	}
	return nil
}

func (l *Ledger) debitAccount(account, symbol string, quantity decimal.Decimal) error {
	var b Balance
	err := l.store.Session().
		Where("account = ? AND symbol = ?", account, symbol).
		Order("id asc").First(&b).Error
	if err != nil || b.Balance.LessThan(quantity) {
		return ErrInsufficientBalance
	}
	b.Balance = b.Balance.Sub(quantity)
	return l.store.Update(&b)
}

func (l *Ledger) creditAccount(account, symbol string, quantity decimal.Decimal) error {
	var b Balance
	err := l.store.Session().
		Where("account = ? AND symbol = ?", account, symbol).
		Order("id asc").First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return l.store.Insert(&Balance{Account: account, Symbol: symbol, Balance: quantity})
	}
	if err != nil {
		return err
	}
	b.Balance = b.Balance.Add(quantity)
	return l.store.Update(&b)
}

func (l *Ledger) debitContract(contract, symbol string, quantity decimal.Decimal) error {
	var b ContractBalance
	err := l.store.Session().
		Where("contract = ? AND symbol = ?", contract, symbol).
		Order("id asc").First(&b).Error
	if err != nil || b.Balance.LessThan(quantity) {
		return ErrInsufficientBalance
	}
	b.Balance = b.Balance.Sub(quantity)
	return l.store.Update(&b)
}

func (l *Ledger) creditContract(contract, symbol string, quantity decimal.Decimal) error {
	var b ContractBalance
	err := l.store.Session().
		Where("contract = ? AND symbol = ?", contract, symbol).
		Order("id asc").First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return l.store.Insert(&ContractBalance{Contract: contract, Symbol: symbol, Balance: quantity})
	}
	if err != nil {
		return err
	}
	b.Balance = b.Balance.Add(quantity)
	return l.store.Update(&b)
}
