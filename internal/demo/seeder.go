// Package demo loads and removes a fixed sample dataset. Everything it
// creates carries demo_seed = true so Reset can find it again.
package demo

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"dues-backend/internal/apperr"
	"dues-backend/internal/audit"
	"dues-backend/internal/classes"
	"dues-backend/internal/ledger"
	"dues-backend/internal/models"
	"dues-backend/internal/reconcile"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Seeder struct {
	db    *gorm.DB
	locks *reconcile.Locker
	Now   func() time.Time
}

func NewSeeder(db *gorm.DB, locks *reconcile.Locker) *Seeder {
	return &Seeder{db: db, locks: locks, Now: time.Now}
}

type SeedResult struct {
	AlreadySeeded  bool `json:"already_seeded"`
	Classes        int  `json:"classes"`
	ClassesReused  int  `json:"classes_reused"`
	Members        int  `json:"members"`
	MembersSkipped int  `json:"members_skipped"`
	Transactions   int  `json:"transactions"`
	DueDates       int  `json:"due_dates"`
	Expenses       int  `json:"expenses"`
}

type ResetResult struct {
	Members              int64 `json:"members"`
	Transactions         int64 `json:"transactions"`
	TransactionsDetached int64 `json:"transactions_detached"`
	Classes              int64 `json:"classes"`
	DueDates             int64 `json:"due_dates"`
	Expenses             int64 `json:"expenses"`
	MembersRecomputed    int   `json:"members_recomputed"`
}

// Seeded reports whether any demo entity exists.
func Seeded(db *gorm.DB) (bool, error) {
	for _, model := range []any{
		&models.Member{}, &models.MembershipClass{}, &models.Transaction{},
		&models.DueDateRecord{}, &models.Expense{},
	} {
		var n int64
		if err := db.Model(model).Where("demo_seed = ?", true).Count(&n).Error; err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Seed inserts the sample dataset in one transaction. A second call while
// any demo data exists changes nothing.
func (s *Seeder) Seed(ctx context.Context, actor audit.Actor) (*SeedResult, error) {
	now := s.Now().UTC()
	ds := buildDataset(now)
	res := &SeedResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seeded, err := Seeded(tx)
		if err != nil {
			return err
		}
		if seeded {
			res.AlreadySeeded = true
			return nil
		}

		dues := make(map[string]decimal.Decimal, len(ds.classes))
		for _, c := range ds.classes {
			existing, err := classes.FindByName(tx, c.Name)
			switch {
			case err == nil:
				dues[c.Name] = existing.DuesAmount
				res.ClassesReused++
				continue
			case !apperr.Is(err, apperr.KindNotFound):
				return err
			}
			class := &models.MembershipClass{Name: c.Name, DuesAmount: c.Dues, DemoSeed: true}
			if err := tx.Create(class).Error; err != nil {
				return fmt.Errorf("seed class %s: %w", c.Name, err)
			}
			dues[c.Name] = class.DuesAmount
			res.Classes++
		}

		dueFor := map[string]time.Time{}
		for _, d := range ds.dueDates {
			rec := &models.DueDateRecord{
				DueDate:    d.At,
				ClassNames: models.ClassNamesJSON(d.Classes),
				DemoSeed:   true,
			}
			if err := tx.Create(rec).Error; err != nil {
				return fmt.Errorf("seed due date: %w", err)
			}
			for _, name := range d.Classes {
				dueFor[name] = d.At
			}
			res.DueDates++
		}

		for _, dm := range ds.members {
			var n int64
			if err := tx.Model(&models.Member{}).Where("email = ?", dm.Email).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				res.MembersSkipped++
				continue
			}

			class := dm.Class
			due := dueFor[class]
			m := &models.Member{
				Name:          dm.Name,
				Email:         dm.Email,
				Phone:         dm.Phone,
				Role:          models.RoleMember,
				MemberClass:   &class,
				DuesAmount:    dues[class],
				DueDate:       &due,
				AmountPaid:    decimal.Zero,
				PaymentStatus: reconcile.DeriveStatus(decimal.Zero, dues[class], &due, now),
				DemoSeed:      true,
			}
			if err := tx.Create(m).Error; err != nil {
				return fmt.Errorf("seed member %s: %w", dm.Email, err)
			}
			res.Members++

			for _, p := range dm.Payments {
				t := &models.Transaction{
					MemberID:        &m.ID,
					PayerName:       m.Name,
					Amount:          p.Amount,
					PaymentMethod:   p.Method,
					Status:          p.Status,
					TransactionDate: now.AddDate(0, 0, -p.DaysAgo),
					DuesDueDate:     m.DueDate,
					DisplayLabel:    fmt.Sprintf("%s dues", class),
					DemoSeed:        true,
				}
				if err := tx.Create(t).Error; err != nil {
					return fmt.Errorf("seed transaction for %s: %w", dm.Email, err)
				}
				res.Transactions++
			}
			if _, err := reconcile.RecomputeMember(tx, m.ID, now, reconcile.LedgerEvent); err != nil {
				return err
			}
		}

		for _, e := range ds.expenses {
			exp := &models.Expense{
				Category:    e.Category,
				Amount:      e.Amount,
				Description: e.Description,
				EventName:   e.EventName,
				ExpenseDate: now.AddDate(0, 0, -e.DaysAgo),
				DemoSeed:    true,
			}
			if err := tx.Create(exp).Error; err != nil {
				return fmt.Errorf("seed expense: %w", err)
			}
			res.Expenses++
		}

		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  "demo",
			Action:      models.AuditActionSeed,
			Description: fmt.Sprintf("seeded %d members, %d transactions", res.Members, res.Transactions),
			After:       res,
		})
	})
	if err != nil {
		return nil, err
	}
	if !res.AlreadySeeded {
		log.Printf("[INFO] demo data seeded: %d members (%d skipped), %d transactions", res.Members, res.MembersSkipped, res.Transactions)
	}
	return res, nil
}

// Reset removes every demo entity in one transaction. Non-demo
// transactions of demo members are detached rather than deleted, and
// non-demo members who lose demo transactions are recomputed.
func (s *Seeder) Reset(ctx context.Context, actor audit.Actor) (*ResetResult, error) {
	db := s.db.WithContext(ctx)

	survivors, err := affectedSurvivors(db)
	if err != nil {
		return nil, err
	}
	var demoIDs []uint
	if err := db.Model(&models.Member{}).Where("demo_seed = ?", true).Pluck("id", &demoIDs).Error; err != nil {
		return nil, err
	}
	// Demo members are locked too so no payment lands between detach and delete.
	for _, id := range lockOrder(survivors, demoIDs) {
		unlock := s.locks.Lock(id)
		defer unlock()
	}

	res := &ResetResult{}
	now := s.Now()
	err = db.Transaction(func(tx *gorm.DB) error {
		var demoMembers []models.Member
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("demo_seed = ?", true).
			Order("id").
			Find(&demoMembers).Error
		if err != nil {
			return err
		}

		del := tx.Where("demo_seed = ?", true).Delete(&models.Transaction{})
		if del.Error != nil {
			return del.Error
		}
		res.Transactions = del.RowsAffected

		for i := range demoMembers {
			n, err := ledger.DetachMember(tx, &demoMembers[i])
			if err != nil {
				return err
			}
			res.TransactionsDetached += n
		}

		steps := []struct {
			model any
			count *int64
		}{
			{&models.Member{}, &res.Members},
			{&models.DueDateRecord{}, &res.DueDates},
			{&models.MembershipClass{}, &res.Classes},
			{&models.Expense{}, &res.Expenses},
		}
		for _, st := range steps {
			del := tx.Where("demo_seed = ?", true).Delete(st.model)
			if del.Error != nil {
				return del.Error
			}
			*st.count = del.RowsAffected
		}

		for _, id := range survivors {
			if _, err := reconcile.RecomputeMember(tx, id, now, reconcile.LedgerEvent); err != nil {
				if apperr.Is(err, apperr.KindNotFound) {
					continue
				}
				return err
			}
			res.MembersRecomputed++
		}

		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  "demo",
			Action:      models.AuditActionReset,
			Description: fmt.Sprintf("removed %d demo members, %d transactions", res.Members, res.Transactions),
			Before:      res,
		})
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] demo data reset: %d members, %d transactions removed, %d detached", res.Members, res.Transactions, res.TransactionsDetached)
	return res, nil
}

// affectedSurvivors lists non-demo members owning demo transactions,
// sorted so locks are always taken in the same order.
func affectedSurvivors(db *gorm.DB) ([]uint, error) {
	var ids []uint
	err := db.Model(&models.Transaction{}).
		Distinct("transactions.member_id").
		Joins("JOIN members ON members.id = transactions.member_id").
		Where("transactions.demo_seed = ? AND members.demo_seed = ?", true, false).
		Pluck("transactions.member_id", &ids).Error
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func lockOrder(groups ...[]uint) []uint {
	seen := map[uint]bool{}
	var ids []uint
	for _, g := range groups {
		for _, id := range g {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
