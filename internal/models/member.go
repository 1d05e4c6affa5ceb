package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleMember    Role = "Member"
	RoleTreasurer Role = "Treasurer"
	RoleAdmin     Role = "Admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleTreasurer, RoleAdmin:
		return true
	}
	return false
}

// CanManage reports whether the role may run mutating operations.
// Admin and Treasurer are equivalent here.
func (r Role) CanManage() bool {
	return r == RoleAdmin || r == RoleTreasurer
}

type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "Paid"
	PaymentPending PaymentStatus = "Pending"
	PaymentOverdue PaymentStatus = "Overdue"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPaid, PaymentPending, PaymentOverdue:
		return true
	}
	return false
}

// Member is both a dues-paying account and a login identity.
// AmountPaid and PaymentStatus are derived from the ledger.
type Member struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"size:100;not null"`
	Email        string `gorm:"size:150;uniqueIndex;not null"`
	Phone        string `gorm:"size:30"`
	PasswordHash string `gorm:"size:255"`
	Role         Role   `gorm:"size:20;not null"`

	MemberClass *string         `gorm:"size:100;index"`
	DuesAmount  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	DueDate     *time.Time

	AmountPaid       decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	PaymentStatus    PaymentStatus   `gorm:"size:20;not null;index"`
	StatusOverridden bool            `gorm:"not null"`

	DemoSeed  bool `gorm:"not null;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Outstanding is what the member still owes, never negative.
func (m *Member) Outstanding() decimal.Decimal {
	rest := m.DuesAmount.Sub(m.AmountPaid)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

func (m *Member) ClassName() string {
	if m.MemberClass == nil {
		return ""
	}
	return *m.MemberClass
}
