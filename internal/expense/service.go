// Package expense records organization spending. Totals feed net income and
// budget remaining in the stats.
package expense

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"dues-backend/internal/apperr"
	"dues-backend/internal/audit"
	"dues-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	Now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, Now: time.Now}
}

type CreateInput struct {
	Category    string
	Amount      decimal.Decimal
	Description string
	EventName   string
	ExpenseDate *time.Time
	DemoSeed    bool
}

func (s *Service) Create(ctx context.Context, in CreateInput, actor audit.Actor) (*models.Expense, error) {
	in.Category = strings.TrimSpace(in.Category)
	if in.Category == "" {
		return nil, apperr.Validation("category is required")
	}
	if !in.Amount.IsPositive() {
		return nil, apperr.Validation("amount must be greater than zero")
	}

	exp := &models.Expense{
		Category:    in.Category,
		Amount:      in.Amount,
		Description: strings.TrimSpace(in.Description),
		EventName:   strings.TrimSpace(in.EventName),
		ExpenseDate: s.Now().UTC(),
		CreatedBy:   actor.ID,
		DemoSeed:    in.DemoSeed,
	}
	if in.ExpenseDate != nil {
		exp.ExpenseDate = in.ExpenseDate.UTC()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(exp).Error; err != nil {
			return fmt.Errorf("create expense: %w", err)
		}
		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  "expense",
			EntityID:    exp.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("expense %s %s", exp.Category, exp.Amount.StringFixed(2)),
			After:       ToResponse(exp),
		})
	})
	if err != nil {
		return nil, err
	}
	return exp, nil
}

// Filter bounds are inclusive; nil means open.
type Filter struct {
	From     *time.Time
	To       *time.Time
	Category string
}

func (s *Service) List(ctx context.Context, f Filter) ([]models.Expense, error) {
	q := s.db.WithContext(ctx).Model(&models.Expense{})
	if f.From != nil {
		q = q.Where("expense_date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("expense_date <= ?", *f.To)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	var rows []models.Expense
	if err := q.Order("expense_date asc, id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Service) Delete(ctx context.Context, id uint, actor audit.Actor) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exp models.Expense
		err := tx.First(&exp, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("expense %d not found", id)
		}
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.Expense{}, exp.ID).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  "expense",
			EntityID:    exp.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("expense %s %s deleted", exp.Category, exp.Amount.StringFixed(2)),
			Before:      ToResponse(&exp),
		})
	})
}

type CategoryTotal struct {
	Category string
	Total    decimal.Decimal
	Count    int
}

type MonthlySummary struct {
	Year       int
	Month      time.Month
	Items      []CategoryTotal
	GrandTotal decimal.Decimal
}

// MonthlySummary totals one UTC calendar month by category, largest first.
func (s *Service) MonthlySummary(ctx context.Context, year int, month time.Month) (*MonthlySummary, error) {
	if year < 1 || month < time.January || month > time.December {
		return nil, apperr.Validation("invalid year or month")
	}
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0).Add(-time.Nanosecond)

	rows, err := s.List(ctx, Filter{From: &from, To: &to})
	if err != nil {
		return nil, err
	}

	byCat := map[string]*CategoryTotal{}
	sum := &MonthlySummary{Year: year, Month: month, GrandTotal: decimal.Zero}
	for _, r := range rows {
		ct, ok := byCat[r.Category]
		if !ok {
			ct = &CategoryTotal{Category: r.Category, Total: decimal.Zero}
			byCat[r.Category] = ct
		}
		ct.Total = ct.Total.Add(r.Amount)
		ct.Count++
		sum.GrandTotal = sum.GrandTotal.Add(r.Amount)
	}
	for _, ct := range byCat {
		sum.Items = append(sum.Items, *ct)
	}
	sort.Slice(sum.Items, func(i, j int) bool {
		if c := sum.Items[i].Total.Cmp(sum.Items[j].Total); c != 0 {
			return c > 0
		}
		return sum.Items[i].Category < sum.Items[j].Category
	})
	return sum, nil
}
