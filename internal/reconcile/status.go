// Package reconcile derives member payment state from the ledger and
// aggregates organization-wide statistics.
package reconcile

import (
	"time"

	"dues-backend/internal/models"

	"github.com/shopspring/decimal"
)

// DeriveStatus is the single payment status rule:
// Paid when paid >= dues (a zero-dues member is Paid), otherwise Overdue
// once now is past the due date, otherwise Pending.
func DeriveStatus(paid, dues decimal.Decimal, dueDate *time.Time, now time.Time) models.PaymentStatus {
	if paid.GreaterThanOrEqual(dues) {
		return models.PaymentPaid
	}
	if dueDate != nil && now.After(*dueDate) {
		return models.PaymentOverdue
	}
	return models.PaymentPending
}

// EffectiveStatus is what a reader should see right now: the manual
// override when one is set, otherwise the rule evaluated at now.
func EffectiveStatus(m *models.Member, now time.Time) models.PaymentStatus {
	if m.StatusOverridden {
		return m.PaymentStatus
	}
	return DeriveStatus(m.AmountPaid, m.DuesAmount, m.DueDate, now)
}

// ApplyEffective replaces each stored status with EffectiveStatus at now.
func ApplyEffective(list []models.Member, now time.Time) {
	for i := range list {
		list[i].PaymentStatus = EffectiveStatus(&list[i], now)
	}
}

// FilterStatus applies EffectiveStatus and keeps the members whose status
// is one of statuses.
func FilterStatus(list []models.Member, now time.Time, statuses ...models.PaymentStatus) []models.Member {
	ApplyEffective(list, now)
	out := list[:0]
	for _, m := range list {
		for _, st := range statuses {
			if m.PaymentStatus == st {
				out = append(out, m)
				break
			}
		}
	}
	return out
}
