// Package ledger owns every write to the transaction table. Each write that
// can move a member's paid amount recomputes that member before commit.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dues-backend/internal/apperr"
	"dues-backend/internal/audit"
	"dues-backend/internal/models"
	"dues-backend/internal/reconcile"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db    *gorm.DB
	locks *reconcile.Locker
	Now   func() time.Time
}

func NewService(db *gorm.DB, locks *reconcile.Locker) *Service {
	return &Service{db: db, locks: locks, Now: time.Now}
}

type RecordInput struct {
	MemberID        uint
	Amount          decimal.Decimal
	PaymentMethod   string
	Status          models.TransactionStatus
	ExternalRef     string
	PayerName       string
	DisplayLabel    string
	TransactionDate *time.Time
	DemoSeed        bool
}

// Record appends a transaction for an existing member.
func (s *Service) Record(ctx context.Context, in RecordInput, actor audit.Actor) (*models.Transaction, error) {
	if !in.Amount.IsPositive() {
		return nil, apperr.Validation("amount must be greater than zero")
	}
	if in.Status == "" {
		in.Status = models.TxCompleted
	}
	if !in.Status.Valid() {
		return nil, apperr.Validation("unknown transaction status %q", in.Status)
	}
	if strings.TrimSpace(in.PaymentMethod) == "" {
		in.PaymentMethod = models.MethodManual
	}

	unlock := s.locks.Lock(in.MemberID)
	defer unlock()

	var created *models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := reconcile.LockMember(tx, in.MemberID)
		if err != nil {
			return err
		}

		t := &models.Transaction{
			MemberID:        &m.ID,
			PayerName:       firstNonEmpty(in.PayerName, m.Name),
			Amount:          in.Amount,
			PaymentMethod:   in.PaymentMethod,
			Status:          in.Status,
			TransactionDate: s.Now(),
			DuesDueDate:     m.DueDate,
			DisplayLabel:    in.DisplayLabel,
			DemoSeed:        in.DemoSeed,
		}
		if in.TransactionDate != nil {
			t.TransactionDate = *in.TransactionDate
		}
		if t.DisplayLabel == "" {
			t.DisplayLabel = displayLabel(m)
		}
		if ref := strings.TrimSpace(in.ExternalRef); ref != "" {
			var n int64
			if err := tx.Model(&models.Transaction{}).Where("external_ref = ?", ref).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return apperr.Conflict("transaction with reference %q already recorded", ref)
			}
			t.ExternalRef = &ref
		}

		if err := tx.Create(t).Error; err != nil {
			if apperr.IsDuplicate(err) && t.ExternalRef != nil {
				return apperr.Wrap(apperr.KindConflict, err, "transaction with reference %q already recorded", *t.ExternalRef)
			}
			return fmt.Errorf("create transaction: %w", err)
		}
		if t.Status == models.TxCompleted {
			if _, err := reconcile.RecomputeMember(tx, m.ID, s.Now(), reconcile.LedgerEvent); err != nil {
				return err
			}
		}
		created = t

		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  "transaction",
			EntityID:    t.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("%s %s payment for %s", t.Status, t.Amount.StringFixed(2), m.Name),
			After:       ToResponse(t),
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// MarkCompleted moves a Pending transaction to Completed.
func (s *Service) MarkCompleted(ctx context.Context, id uint, actor audit.Actor) (*models.Transaction, error) {
	return s.transition(ctx, id, models.TxCompleted, actor)
}

// MarkFailed moves a Pending transaction to Failed.
func (s *Service) MarkFailed(ctx context.Context, id uint, actor audit.Actor) (*models.Transaction, error) {
	return s.transition(ctx, id, models.TxFailed, actor)
}

// MarkByExternalRef applies a gateway outcome. Repeating the outcome the
// transaction already has is a no-op.
func (s *Service) MarkByExternalRef(ctx context.Context, ref string, status models.TransactionStatus, actor audit.Actor) (*models.Transaction, error) {
	t, err := s.FindByExternalRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if t.Status == status {
		return t, nil
	}
	return s.transition(ctx, t.ID, status, actor)
}

func (s *Service) FindByExternalRef(ctx context.Context, ref string) (*models.Transaction, error) {
	var t models.Transaction
	err := s.db.WithContext(ctx).Where("external_ref = ?", ref).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("transaction with reference %q not found", ref)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Service) transition(ctx context.Context, id uint, to models.TransactionStatus, actor audit.Actor) (*models.Transaction, error) {
	current, err := s.get(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if current.MemberID != nil {
		unlock := s.locks.Lock(*current.MemberID)
		defer unlock()
	}

	var updated *models.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.getForUpdate(tx, id)
		if err != nil {
			return err
		}
		if t.Status != models.TxPending {
			return apperr.Validation("transaction %d is %s, only Pending transactions can change status", t.ID, t.Status)
		}
		before := ToResponse(t)

		if err := tx.Model(t).Update("status", to).Error; err != nil {
			return err
		}
		t.Status = to

		if to == models.TxCompleted && t.MemberID != nil {
			if _, err := reconcile.RecomputeMember(tx, *t.MemberID, s.Now(), reconcile.LedgerEvent); err != nil {
				return err
			}
		}
		updated = t

		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  "transaction",
			EntityID:    t.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("transaction %d marked %s", t.ID, to),
			Before:      before,
			After:       ToResponse(t),
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a transaction. Removing a Completed one lowers the
// owner's paid amount in the same unit of work.
func (s *Service) Delete(ctx context.Context, id uint, actor audit.Actor) error {
	current, err := s.get(s.db.WithContext(ctx), id)
	if err != nil {
		return err
	}
	if current.MemberID != nil {
		unlock := s.locks.Lock(*current.MemberID)
		defer unlock()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.getForUpdate(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.Transaction{}, t.ID).Error; err != nil {
			return err
		}
		if t.Status == models.TxCompleted && t.MemberID != nil {
			if _, err := reconcile.RecomputeMember(tx, *t.MemberID, s.Now(), reconcile.LedgerEvent); err != nil {
				return err
			}
		}
		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  "transaction",
			EntityID:    t.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("deleted %s transaction of %s", t.Status, t.PayerName),
			Before:      ToResponse(t),
		})
	})
}

// DetachMember keeps a deleted member's transactions, freezing the payer
// name. Call it inside the transaction that deletes the member.
func DetachMember(tx *gorm.DB, m *models.Member) (int64, error) {
	res := tx.Model(&models.Transaction{}).
		Where("member_id = ?", m.ID).
		Updates(map[string]any{"member_id": nil, "payer_name": m.Name})
	return res.RowsAffected, res.Error
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Transaction, error) {
	return s.get(s.db.WithContext(ctx), id)
}

// ListFor returns the member's transactions, newest first.
func (s *Service) ListFor(ctx context.Context, memberID uint) ([]models.Transaction, error) {
	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&models.Member{}).Where("id = ?", memberID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperr.NotFound("member %d not found", memberID)
	}
	return s.ListAll(ctx, Filter{MemberID: memberID})
}

type Filter struct {
	MemberID uint
	Status   models.TransactionStatus
	Method   string
	From     *time.Time
	To       *time.Time
	Detached bool
	DemoOnly bool
}

// ListAll returns transactions matching f, newest first.
func (s *Service) ListAll(ctx context.Context, f Filter) ([]models.Transaction, error) {
	q := s.db.WithContext(ctx).Model(&models.Transaction{})
	if f.MemberID > 0 {
		q = q.Where("member_id = ?", f.MemberID)
	}
	if f.Detached {
		q = q.Where("member_id IS NULL")
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Method != "" {
		q = q.Where("payment_method = ?", f.Method)
	}
	if f.From != nil {
		q = q.Where("transaction_date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("transaction_date < ?", *f.To)
	}
	if f.DemoOnly {
		q = q.Where("demo_seed = ?", true)
	}

	var txs []models.Transaction
	if err := q.Order("transaction_date DESC, id DESC").Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *Service) get(db *gorm.DB, id uint) (*models.Transaction, error) {
	var t models.Transaction
	err := db.First(&t, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("transaction %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Service) getForUpdate(tx *gorm.DB, id uint) (*models.Transaction, error) {
	return s.get(tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func displayLabel(m *models.Member) string {
	if m.DueDate != nil {
		return fmt.Sprintf("Dues %s", m.DueDate.Format("Jan 2006"))
	}
	if c := m.ClassName(); c != "" {
		return fmt.Sprintf("%s dues", c)
	}
	return "Membership dues"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
