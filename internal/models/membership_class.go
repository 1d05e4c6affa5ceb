package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// MembershipClass is a cohort with a default dues amount.
// Name is unique and case-sensitive.
type MembershipClass struct {
	ID         uint            `gorm:"primaryKey"`
	Name       string          `gorm:"size:100;uniqueIndex;not null"`
	DuesAmount decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	DemoSeed   bool            `gorm:"not null;index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DueDateRecord is one entry of the append-only due date trail.
type DueDateRecord struct {
	ID         uint           `gorm:"primaryKey"`
	DueDate    time.Time      `gorm:"not null;index"`
	ClassNames datatypes.JSON `gorm:"not null"`
	DemoSeed   bool           `gorm:"not null;index"`
	CreatedAt  time.Time
}

func (r *DueDateRecord) Classes() []string {
	var names []string
	if len(r.ClassNames) == 0 {
		return names
	}
	_ = json.Unmarshal(r.ClassNames, &names)
	return names
}

func (r *DueDateRecord) HasClass(name string) bool {
	for _, n := range r.Classes() {
		if n == name {
			return true
		}
	}
	return false
}

func ClassNamesJSON(names []string) datatypes.JSON {
	b, _ := json.Marshal(names)
	return datatypes.JSON(b)
}
