package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TxCompleted TransactionStatus = "Completed"
	TxPending   TransactionStatus = "Pending"
	TxFailed    TransactionStatus = "Failed"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TxCompleted, TxPending, TxFailed:
		return true
	}
	return false
}

const (
	MethodManual = "manual"
	MethodCash   = "cash"
	MethodCard   = "card"
)

// Transaction is a ledger entry. MemberID becomes nil when the owning
// member is deleted; PayerName keeps the name it had at that point.
type Transaction struct {
	ID              uint              `gorm:"primaryKey"`
	MemberID        *uint             `gorm:"index"`
	PayerName       string            `gorm:"size:100;not null"`
	Amount          decimal.Decimal   `gorm:"type:numeric(12,2);not null"`
	PaymentMethod   string            `gorm:"size:30;not null"`
	ExternalRef     *string           `gorm:"size:100;uniqueIndex"`
	Status          TransactionStatus `gorm:"size:20;not null;index"`
	TransactionDate time.Time         `gorm:"index;not null"`
	DuesDueDate     *time.Time
	DisplayLabel    string `gorm:"size:100"`
	DemoSeed        bool   `gorm:"not null;index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (t *Transaction) Detached() bool { return t.MemberID == nil }
