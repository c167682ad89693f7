package store

import (
	"time"

	"github.com/shopspring/decimal"

	"personal-ledger/domain"
	"personal-ledger/events"
)

// AccountModel is the persisted shape of an account.
type AccountModel struct {
	ID        string          `gorm:"primaryKey;size:64"`
	OwnerID   string          `gorm:"index;size:64;not null"`
	Name      string          `gorm:"size:200"`
	Balance   decimal.Decimal `gorm:"type:numeric;not null"`
	Version   int             `gorm:"not null"`
	CreatedAt time.Time
}

func (AccountModel) TableName() string { return "accounts" }

type MovementModel struct {
	ID          string          `gorm:"primaryKey;size:64"`
	OwnerID     string          `gorm:"index:idx_movement_owner_kind;size:64;not null"`
	Kind        string          `gorm:"index:idx_movement_owner_kind;size:16;not null"`
	AccountID   string          `gorm:"index;size:64;not null"`
	Amount      decimal.Decimal `gorm:"type:numeric;not null"`
	Date        time.Time       `gorm:"index"`
	Description string          `gorm:"size:500"`
	Version     int             `gorm:"not null"`
}

func (MovementModel) TableName() string { return "movements" }

type TransferModel struct {
	ID                   string          `gorm:"primaryKey;size:64"`
	OwnerID              string          `gorm:"index;size:64;not null"`
	OriginAccountID      string          `gorm:"index;size:64;not null"`
	DestinationAccountID string          `gorm:"index;size:64;not null"`
	Amount               decimal.Decimal `gorm:"type:numeric;not null"`
	Date                 time.Time       `gorm:"index"`
	Description          string          `gorm:"size:500"`
	Version              int             `gorm:"not null"`
}

func (TransferModel) TableName() string { return "transfers" }

func accountModel(a *domain.Account) AccountModel {
	return AccountModel{
		ID:        a.ID,
		OwnerID:   a.OwnerID,
		Name:      a.Name,
		Balance:   a.CurrentBalance(),
		Version:   a.Version,
		CreatedAt: a.CreatedAt,
	}
}

func (m AccountModel) toDomain() *domain.Account {
	return &domain.Account{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		Name:      m.Name,
		Balance:   m.Balance,
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
	}
}

func movementModel(mv *domain.Movement) MovementModel {
	return MovementModel{
		ID:          mv.ID,
		OwnerID:     mv.OwnerID,
		Kind:        string(mv.Kind),
		AccountID:   mv.AccountID,
		Amount:      mv.Amount,
		Date:        mv.Date,
		Description: mv.Description,
		Version:     mv.Version,
	}
}

func (m MovementModel) toDomain() *domain.Movement {
	return &domain.Movement{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		Kind:        events.MovementKind(m.Kind),
		AccountID:   m.AccountID,
		Amount:      m.Amount,
		Date:        m.Date,
		Description: m.Description,
		Version:     m.Version,
	}
}

func transferModel(t *domain.Transfer) TransferModel {
	return TransferModel{
		ID:                   t.ID,
		OwnerID:              t.OwnerID,
		OriginAccountID:      t.OriginAccountID,
		DestinationAccountID: t.DestinationAccountID,
		Amount:               t.Amount,
		Date:                 t.Date,
		Description:          t.Description,
		Version:              t.Version,
	}
}

func (m TransferModel) toDomain() *domain.Transfer {
	return &domain.Transfer{
		ID:                   m.ID,
		OwnerID:              m.OwnerID,
		OriginAccountID:      m.OriginAccountID,
		DestinationAccountID: m.DestinationAccountID,
		Amount:               m.Amount,
		Date:                 m.Date,
		Description:          m.Description,
		Version:              m.Version,
	}
}
