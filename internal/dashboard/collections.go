// Package dashboard serves chart data for the treasurer dashboard.
package dashboard

import (
	"context"
	"sort"
	"time"

	"dues-backend/internal/apperr"
	"dues-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

var defaultCounts = map[Period]int{Daily: 7, Weekly: 8, Monthly: 12}

const maxCount = 366

type CollectionPoint struct {
	Label    string             `json:"label"` // first day of the bucket
	ByMethod map[string]float64 `json:"by_method"`
	Total    float64            `json:"total"`
}

type CollectionsResponse struct {
	Period      string             `json:"period"`
	From        string             `json:"from"`
	To          string             `json:"to"`
	Methods     []string           `json:"methods"`
	Points      []CollectionPoint  `json:"points"`
	GrandTotals map[string]float64 `json:"grand_totals"`
	GrandTotal  float64            `json:"grand_total"`
}

type Charts struct {
	db  *gorm.DB
	Now func() time.Time
}

func NewCharts(db *gorm.DB) *Charts {
	return &Charts{db: db, Now: time.Now}
}

// bucketStart truncates t to the start of its period in UTC. Weeks start
// on Monday.
func bucketStart(p Period, t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch p {
	case Weekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return day
}

func step(p Period, t time.Time, n int) time.Time {
	switch p {
	case Weekly:
		return t.AddDate(0, 0, 7*n)
	case Monthly:
		return t.AddDate(0, n, 0)
	}
	return t.AddDate(0, 0, n)
}

// Collections buckets Completed income for the last count periods, the
// current one included. Empty buckets are kept so charts have no gaps.
func (ch *Charts) Collections(ctx context.Context, p Period, count int) (*CollectionsResponse, error) {
	if _, ok := defaultCounts[p]; !ok {
		return nil, apperr.Validation("period must be daily, weekly or monthly")
	}
	if count <= 0 || count > maxCount {
		return nil, apperr.Validation("count must be between 1 and %d", maxCount)
	}

	last := bucketStart(p, ch.Now())
	start := step(p, last, -(count - 1))
	end := step(p, last, 1)

	var txs []models.Transaction
	err := ch.db.WithContext(ctx).
		Where("status = ? AND transaction_date >= ? AND transaction_date < ?", models.TxCompleted, start, end).
		Order("transaction_date asc").
		Find(&txs).Error
	if err != nil {
		return nil, err
	}

	type agg struct {
		byMethod map[string]decimal.Decimal
		total    decimal.Decimal
	}
	buckets := make(map[time.Time]*agg, count)
	keys := make([]time.Time, 0, count)
	for b := start; b.Before(end); b = step(p, b, 1) {
		buckets[b] = &agg{byMethod: map[string]decimal.Decimal{}, total: decimal.Zero}
		keys = append(keys, b)
	}

	grand := map[string]decimal.Decimal{}
	grandTotal := decimal.Zero
	for _, t := range txs {
		a, ok := buckets[bucketStart(p, t.TransactionDate)]
		if !ok {
			continue
		}
		a.byMethod[t.PaymentMethod] = a.byMethod[t.PaymentMethod].Add(t.Amount)
		a.total = a.total.Add(t.Amount)
		grand[t.PaymentMethod] = grand[t.PaymentMethod].Add(t.Amount)
		grandTotal = grandTotal.Add(t.Amount)
	}

	methods := make([]string, 0, len(grand))
	for m := range grand {
		methods = append(methods, m)
	}
	sort.Strings(methods)

	resp := &CollectionsResponse{
		Period:      string(p),
		From:        start.Format("2006-01-02"),
		To:          end.AddDate(0, 0, -1).Format("2006-01-02"),
		Methods:     methods,
		Points:      make([]CollectionPoint, 0, len(keys)),
		GrandTotals: make(map[string]float64, len(grand)),
		GrandTotal:  models.Money(grandTotal),
	}
	for _, k := range keys {
		a := buckets[k]
		pt := CollectionPoint{
			Label:    k.Format("2006-01-02"),
			ByMethod: make(map[string]float64, len(methods)),
			Total:    models.Money(a.total),
		}
		for _, m := range methods {
			pt.ByMethod[m] = models.Money(a.byMethod[m])
		}
		resp.Points = append(resp.Points, pt)
	}
	for m, v := range grand {
		resp.GrandTotals[m] = models.Money(v)
	}
	return resp, nil
}

// GET /api/dashboard/collections?period=weekly&count=8
func CollectionsHandler(ch *Charts) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := Period(c.Query("period", string(Daily)))
		def, ok := defaultCounts[p]
		if !ok {
			return apperr.Validation("period must be daily, weekly or monthly")
		}
		resp, err := ch.Collections(c.UserContext(), p, c.QueryInt("count", def))
		if err != nil {
			return err
		}
		return c.JSON(resp)
	}
}
