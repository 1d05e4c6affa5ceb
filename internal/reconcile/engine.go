package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"time"

	"dues-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Engine struct {
	db     *gorm.DB
	locks  *Locker
	budget decimal.Decimal
	Now    func() time.Time
}

func NewEngine(db *gorm.DB, locks *Locker, budget decimal.Decimal) *Engine {
	return &Engine{db: db, locks: locks, budget: budget, Now: time.Now}
}

// Recompute runs RecomputeMember in its own transaction.
func (e *Engine) Recompute(ctx context.Context, memberID uint, mode Mode) (*models.Member, error) {
	unlock := e.locks.Lock(memberID)
	defer unlock()

	var out *Outcome
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = RecomputeMember(tx, memberID, e.Now(), mode)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out.Member, nil
}

type RefreshResult struct {
	Checked  int             `json:"checked"`
	Changed  int             `json:"changed"`
	Failures map[uint]string `json:"failures,omitempty"`
}

// RefreshAll re-evaluates every member, for example after due dates pass.
// A failing member is reported and the sweep continues.
func (e *Engine) RefreshAll(ctx context.Context) (RefreshResult, error) {
	var res RefreshResult

	var ids []uint
	if err := e.db.WithContext(ctx).Model(&models.Member{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return res, fmt.Errorf("list members: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++

		changed, err := e.refreshOne(ctx, id)
		if err != nil {
			if res.Failures == nil {
				res.Failures = make(map[uint]string)
			}
			res.Failures[id] = err.Error()
			log.Printf("[WARN] refresh member %d: %v", id, err)
			continue
		}
		if changed {
			res.Changed++
		}
	}
	return res, nil
}

func (e *Engine) refreshOne(ctx context.Context, id uint) (bool, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	var changed bool
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		out, err := RecomputeMember(tx, id, e.Now(), Refresh)
		if err != nil {
			return err
		}
		changed = out.PaidChanged || out.StatusChanged
		return nil
	})
	return changed, err
}

type Stats struct {
	TotalMembers   int64 `json:"total_members"`
	PaidMembers    int64 `json:"paid_members"`
	PendingMembers int64 `json:"pending_members"`
	OverdueMembers int64 `json:"overdue_members"`

	TotalExpected   decimal.Decimal `json:"total_expected"`
	TotalCollected  decimal.Decimal `json:"total_collected"`
	Outstanding     decimal.Decimal `json:"outstanding_balance"`
	CollectionRate  decimal.Decimal `json:"collection_rate"`
	TotalExpenses   decimal.Decimal `json:"total_expenses"`
	NetIncome       decimal.Decimal `json:"net_income"`
	Budget          decimal.Decimal `json:"budget"`
	BudgetRemaining decimal.Decimal `json:"budget_remaining"`

	GeneratedAt time.Time `json:"generated_at"`
}

var hundred = decimal.NewFromInt(100)

// readSnapshot runs fn in a read-only repeatable-read transaction so the
// figures come from one committed state.
func (e *Engine) readSnapshot(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return e.db.WithContext(ctx).Transaction(fn, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
}

func (e *Engine) ComputeStats(ctx context.Context) (*Stats, error) {
	now := e.Now()
	st := &Stats{
		TotalExpected:  decimal.Zero,
		TotalCollected: decimal.Zero,
		Outstanding:    decimal.Zero,
		CollectionRate: decimal.Zero,
		TotalExpenses:  decimal.Zero,
		Budget:         e.budget,
		GeneratedAt:    now,
	}

	err := e.readSnapshot(ctx, func(tx *gorm.DB) error {
		var members []models.Member
		if err := tx.Find(&members).Error; err != nil {
			return err
		}
		var completed []models.Transaction
		if err := tx.Where("status = ?", models.TxCompleted).Find(&completed).Error; err != nil {
			return err
		}
		var expenses []models.Expense
		if err := tx.Find(&expenses).Error; err != nil {
			return err
		}

		memberPaid := decimal.Zero
		for i := range members {
			m := &members[i]
			st.TotalMembers++
			switch EffectiveStatus(m, now) {
			case models.PaymentPaid:
				st.PaidMembers++
			case models.PaymentOverdue:
				st.OverdueMembers++
			default:
				st.PendingMembers++
			}
			st.TotalExpected = st.TotalExpected.Add(m.DuesAmount)
			st.Outstanding = st.Outstanding.Add(m.Outstanding())
			memberPaid = memberPaid.Add(m.AmountPaid)
		}

		for _, t := range completed {
			if !t.Amount.IsPositive() {
				return inconsistentTx(t)
			}
			st.TotalCollected = st.TotalCollected.Add(t.Amount)
		}
		for _, x := range expenses {
			st.TotalExpenses = st.TotalExpenses.Add(x.Amount)
		}

		if st.TotalExpected.IsPositive() {
			st.CollectionRate = memberPaid.Div(st.TotalExpected).Mul(hundred)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	st.NetIncome = st.TotalCollected.Sub(st.TotalExpenses)
	st.BudgetRemaining = st.Budget.Sub(st.TotalExpenses)
	return st, nil
}

type MonthlyPoint struct {
	Month    string          `json:"month"` // YYYY-MM
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
}

// ComputeMonthly buckets Completed income and expenses by calendar month
// (UTC). Months with neither are omitted. year == 0 means all time.
func (e *Engine) ComputeMonthly(ctx context.Context, year int) ([]MonthlyPoint, error) {
	buckets := map[string]*MonthlyPoint{}
	bucket := func(t time.Time) *MonthlyPoint {
		key := t.UTC().Format("2006-01")
		p, ok := buckets[key]
		if !ok {
			p = &MonthlyPoint{Month: key, Income: decimal.Zero, Expenses: decimal.Zero}
			buckets[key] = p
		}
		return p
	}

	err := e.readSnapshot(ctx, func(tx *gorm.DB) error {
		txq := tx.Where("status = ?", models.TxCompleted)
		exq := tx.Model(&models.Expense{})
		if year > 0 {
			from := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
			to := from.AddDate(1, 0, 0)
			txq = txq.Where("transaction_date >= ? AND transaction_date < ?", from, to)
			exq = exq.Where("expense_date >= ? AND expense_date < ?", from, to)
		}

		var completed []models.Transaction
		if err := txq.Find(&completed).Error; err != nil {
			return err
		}
		var expenses []models.Expense
		if err := exq.Find(&expenses).Error; err != nil {
			return err
		}

		for _, t := range completed {
			if !t.Amount.IsPositive() {
				return inconsistentTx(t)
			}
			p := bucket(t.TransactionDate)
			p.Income = p.Income.Add(t.Amount)
		}
		for _, x := range expenses {
			p := bucket(x.ExpenseDate)
			p.Expenses = p.Expenses.Add(x.Amount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	points := make([]MonthlyPoint, 0, len(buckets))
	for _, p := range buckets {
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Month < points[j].Month })
	return points, nil
}

func sumPoints(points []MonthlyPoint) (income, expenses decimal.Decimal) {
	income, expenses = decimal.Zero, decimal.Zero
	for _, p := range points {
		income = income.Add(p.Income)
		expenses = expenses.Add(p.Expenses)
	}
	return income, expenses
}
