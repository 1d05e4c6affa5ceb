package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense is money spent by the organization. It feeds net income and
// budget remaining in the stats.
type Expense struct {
	ID          uint            `gorm:"primaryKey"`
	Category    string          `gorm:"size:50;index;not null"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Description string          `gorm:"size:255"`
	EventName   string          `gorm:"size:100"`
	ExpenseDate time.Time       `gorm:"index;not null"`
	CreatedBy   *uint
	DemoSeed    bool `gorm:"not null;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
