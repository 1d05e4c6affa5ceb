package reconcile

import (
	"dues-backend/internal/apperr"
	"dues-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type StatsResponse struct {
	TotalMembers       int64   `json:"total_members"`
	PaidMembers        int64   `json:"paid_members"`
	PendingMembers     int64   `json:"pending_members"`
	OverdueMembers     int64   `json:"overdue_members"`
	TotalExpected      float64 `json:"total_expected"`
	TotalCollected     float64 `json:"total_collected"`
	OutstandingBalance float64 `json:"outstanding_balance"`
	CollectionRate     float64 `json:"collection_rate"`
	TotalExpenses      float64 `json:"total_expenses"`
	NetIncome          float64 `json:"net_income"`
	Budget             float64 `json:"budget"`
	BudgetRemaining    float64 `json:"budget_remaining"`
	GeneratedAt        string  `json:"generated_at"`
}

type MonthlyPointResponse struct {
	Month    string  `json:"month"`
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
}

type MonthlyResponse struct {
	Year          int                    `json:"year,omitempty"`
	Points        []MonthlyPointResponse `json:"points"`
	TotalIncome   float64                `json:"total_income"`
	TotalExpenses float64                `json:"total_expenses"`
}

func ToStatsResponse(s *Stats) StatsResponse {
	return StatsResponse{
		TotalMembers:       s.TotalMembers,
		PaidMembers:        s.PaidMembers,
		PendingMembers:     s.PendingMembers,
		OverdueMembers:     s.OverdueMembers,
		TotalExpected:      models.Money(s.TotalExpected),
		TotalCollected:     models.Money(s.TotalCollected),
		OutstandingBalance: models.Money(s.Outstanding),
		CollectionRate:     models.Money(s.CollectionRate),
		TotalExpenses:      models.Money(s.TotalExpenses),
		NetIncome:          models.Money(s.NetIncome),
		Budget:             models.Money(s.Budget),
		BudgetRemaining:    models.Money(s.BudgetRemaining),
		GeneratedAt:        s.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// GET /api/stats
func StatsHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		st, err := e.ComputeStats(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(ToStatsResponse(st))
	}
}

// GET /api/stats/monthly?year=2025
func MonthlyStatsHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		year := c.QueryInt("year", 0)
		if year < 0 || year > 9999 {
			return apperr.Validation("year is invalid")
		}

		points, err := e.ComputeMonthly(c.UserContext(), year)
		if err != nil {
			return err
		}

		resp := MonthlyResponse{Year: year, Points: make([]MonthlyPointResponse, 0, len(points))}
		income, expenses := sumPoints(points)
		for _, p := range points {
			resp.Points = append(resp.Points, MonthlyPointResponse{
				Month:    p.Month,
				Income:   models.Money(p.Income),
				Expenses: models.Money(p.Expenses),
			})
		}
		resp.TotalIncome = models.Money(income)
		resp.TotalExpenses = models.Money(expenses)
		return c.JSON(resp)
	}
}
