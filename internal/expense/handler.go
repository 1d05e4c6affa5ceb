package expense

import (
	"time"

	"dues-backend/internal/apperr"
	"dues-backend/internal/auth"
	"dues-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type CreateExpenseRequest struct {
	Category    string  `json:"category" validate:"required,max=50"`
	Amount      float64 `json:"amount" validate:"gt=0"`
	Description string  `json:"description" validate:"max=255"`
	EventName   string  `json:"event_name" validate:"max=100"`
	ExpenseDate string  `json:"expense_date"` // "2025-03-01", defaults to today
}

type ExpenseResponse struct {
	ID          uint    `json:"id"`
	Category    string  `json:"category"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	EventName   string  `json:"event_name"`
	ExpenseDate string  `json:"expense_date"`
	DemoSeed    bool    `json:"demo_seed"`
}

type CategoryTotalResponse struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
}

type MonthlySummaryResponse struct {
	Year       int                     `json:"year"`
	Month      int                     `json:"month"`
	Items      []CategoryTotalResponse `json:"items"`
	GrandTotal float64                 `json:"grand_total"`
}

func ToResponse(e *models.Expense) ExpenseResponse {
	return ExpenseResponse{
		ID:          e.ID,
		Category:    e.Category,
		Amount:      models.Money(e.Amount),
		Description: e.Description,
		EventName:   e.EventName,
		ExpenseDate: e.ExpenseDate.UTC().Format("2006-01-02"),
		DemoSeed:    e.DemoSeed,
	}
}

// POST /api/expenses
func CreateExpenseHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateExpenseRequest
		if err := apperr.ParseBody(c, &body); err != nil {
			return err
		}
		in := CreateInput{
			Category:    body.Category,
			Amount:      models.DecimalFromFloat(body.Amount),
			Description: body.Description,
			EventName:   body.EventName,
		}
		if body.ExpenseDate != "" {
			d, err := time.Parse("2006-01-02", body.ExpenseDate)
			if err != nil {
				return apperr.Validation("expense_date must be YYYY-MM-DD")
			}
			in.ExpenseDate = &d
		}
		exp, err := svc.Create(c.UserContext(), in, auth.ActorFrom(c))
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(ToResponse(exp))
	}
}

// GET /api/expenses?from=2025-01-01&to=2025-03-31&category=Events
func ListExpensesHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := Filter{Category: c.Query("category")}
		if s := c.Query("from"); s != "" {
			from, err := time.Parse("2006-01-02", s)
			if err != nil {
				return apperr.Validation("invalid from date")
			}
			f.From = &from
		}
		if s := c.Query("to"); s != "" {
			to, err := time.Parse("2006-01-02", s)
			if err != nil {
				return apperr.Validation("invalid to date")
			}
			// inclusive of the whole day
			to = to.Add(24*time.Hour - time.Nanosecond)
			f.To = &to
		}

		rows, err := svc.List(c.UserContext(), f)
		if err != nil {
			return err
		}
		resp := make([]ExpenseResponse, 0, len(rows))
		for i := range rows {
			resp = append(resp, ToResponse(&rows[i]))
		}
		return c.JSON(resp)
	}
}

// DELETE /api/expenses/:id
func DeleteExpenseHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return apperr.Validation("invalid expense id")
		}
		if err := svc.Delete(c.UserContext(), uint(id), auth.ActorFrom(c)); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GET /api/expenses/summary/monthly?year=2025&month=3
func MonthlySummaryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		now := svc.Now().UTC()
		year := c.QueryInt("year", now.Year())
		month := c.QueryInt("month", int(now.Month()))

		sum, err := svc.MonthlySummary(c.UserContext(), year, time.Month(month))
		if err != nil {
			return err
		}
		resp := MonthlySummaryResponse{
			Year:       sum.Year,
			Month:      int(sum.Month),
			Items:      make([]CategoryTotalResponse, 0, len(sum.Items)),
			GrandTotal: models.Money(sum.GrandTotal),
		}
		for _, it := range sum.Items {
			resp.Items = append(resp.Items, CategoryTotalResponse{
				Category: it.Category,
				Total:    models.Money(it.Total),
				Count:    it.Count,
			})
		}
		return c.JSON(resp)
	}
}
