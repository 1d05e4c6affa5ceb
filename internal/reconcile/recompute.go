package reconcile

import (
	"errors"
	"log"
	"time"

	"dues-backend/internal/apperr"
	"dues-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Mode int

const (
	// LedgerEvent follows a transaction change and always replaces a
	// manual status override.
	LedgerEvent Mode = iota
	// Refresh follows a due date or dues change, or the periodic sweep,
	// and leaves a manual override in place.
	Refresh
)

type Outcome struct {
	Member        *models.Member
	PaidChanged   bool
	StatusChanged bool
}

// LockMember loads the member row with SELECT ... FOR UPDATE.
// sqlite ignores the locking clause.
func LockMember(tx *gorm.DB, memberID uint) (*models.Member, error) {
	var m models.Member
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, memberID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("member %d not found", memberID)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SumCompleted adds up the member's Completed transactions. A Completed
// transaction with a non-positive amount is store corruption.
func SumCompleted(tx *gorm.DB, memberID uint) (decimal.Decimal, error) {
	var txs []models.Transaction
	if err := tx.Where("member_id = ? AND status = ?", memberID, models.TxCompleted).Find(&txs).Error; err != nil {
		return decimal.Zero, err
	}

	sum := decimal.Zero
	for _, t := range txs {
		if !t.Amount.IsPositive() {
			return decimal.Zero, apperr.Inconsistency(
				"completed transaction %d of member %d has non-positive amount %s", t.ID, memberID, t.Amount)
		}
		sum = sum.Add(t.Amount)
	}
	return sum, nil
}

// RecomputeMember rewrites amount_paid and payment_status from the ledger.
// It must run inside the transaction that changed the ledger.
func RecomputeMember(tx *gorm.DB, memberID uint, now time.Time, mode Mode) (*Outcome, error) {
	m, err := LockMember(tx, memberID)
	if err != nil {
		return nil, err
	}

	paid, err := SumCompleted(tx, memberID)
	if err != nil {
		if apperr.Is(err, apperr.KindInternalInconsistency) {
			log.Printf("[ERROR] recompute member %d: %v", memberID, err)
		}
		return nil, err
	}

	out := &Outcome{Member: m}
	updates := map[string]any{}

	if !m.AmountPaid.Equal(paid) {
		out.PaidChanged = true
		updates["amount_paid"] = paid
	}
	m.AmountPaid = paid

	if mode == LedgerEvent || !m.StatusOverridden {
		status := DeriveStatus(paid, m.DuesAmount, m.DueDate, now)
		if status != m.PaymentStatus {
			out.StatusChanged = true
			updates["payment_status"] = status
		}
		if m.StatusOverridden {
			updates["status_overridden"] = false
		}
		m.PaymentStatus = status
		m.StatusOverridden = false
	}

	if len(updates) == 0 {
		return out, nil
	}
	if err := tx.Model(&models.Member{}).Where("id = ?", memberID).Updates(updates).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func inconsistentTx(t models.Transaction) error {
	err := apperr.Inconsistency("completed transaction %d has non-positive amount %s", t.ID, t.Amount)
	log.Printf("[ERROR] %v", err)
	return err
}
