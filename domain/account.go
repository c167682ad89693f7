package domain

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"personal-ledger/shared"
)

// Account is a money container. Its balance never goes below zero: Withdraw
// refuses any amount larger than the current balance.
type Account struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"ownerId"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"createdAt"`

	mu sync.Mutex
}

func NewAccount(id, ownerID, name string, opening decimal.Decimal) (*Account, error) {
	if id == "" {
		return nil, NewDomainError("account ID cannot be empty")
	}
	if ownerID == "" {
		return nil, NewDomainError("account owner cannot be empty")
	}
	if opening.IsNegative() {
		return nil, NewDomainError("opening balance cannot be negative: %s", opening.String())
	}
	if name == "" {
		name = id
	}
	if !opening.Equal(opening.Truncate(AmountScale)) {
		return nil, fmt.Errorf("%w: opening balance %s has more than %d decimal places", ErrInvalidAmount, opening.String(), AmountScale)
	}
	return &Account{
		ID:        id,
		OwnerID:   ownerID,
		Name:      name,
		Balance:   opening,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (a *Account) Deposit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: deposit of %s into account %s", ErrInvalidAmount, amount.String(), a.ID)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Balance = a.Balance.Add(amount)
	return nil
}

func (a *Account) Withdraw(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: withdrawal of %s from account %s", ErrInvalidAmount, amount.String(), a.ID)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if amount.GreaterThan(a.Balance) {
		return fmt.Errorf("%w: account %s requested %s, available %s",
			ErrInsufficientFunds, a.ID, amount.String(), a.Balance.String())
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

// CurrentBalance reads the balance under the account lock.
func (a *Account) CurrentBalance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Balance
}

func (a *Account) Rename(name string) error {
	if name == "" {
		return NewDomainError("account name cannot be empty")
	}
	a.Name = name
	return nil
}

func (a *Account) EntityID() string              { return a.ID }
func (a *Account) EntityType() shared.EntityType { return shared.AccountEntity }
func (a *Account) Owner() string                 { return a.OwnerID }
func (a *Account) CurrentVersion() int           { return a.Version }
func (a *Account) SetVersion(v int)              { a.Version = v }
