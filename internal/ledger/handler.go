package ledger

import (
	"strings"
	"time"

	"dues-backend/internal/apperr"
	"dues-backend/internal/auth"
	"dues-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type TransactionResponse struct {
	ID              uint    `json:"id"`
	MemberID        *uint   `json:"member_id"`
	PayerName       string  `json:"payer_name"`
	Amount          float64 `json:"amount"`
	PaymentMethod   string  `json:"payment_method"`
	ExternalRef     *string `json:"external_ref"`
	Status          string  `json:"status"`
	TransactionDate string  `json:"transaction_date"`
	DuesDueDate     *string `json:"dues_due_date"`
	DisplayLabel    string  `json:"display_label"`
	Detached        bool    `json:"detached"`
	DemoSeed        bool    `json:"demo_seed"`
}

type CreateTransactionRequest struct {
	MemberID        uint    `json:"member_id" validate:"required"`
	Amount          float64 `json:"amount" validate:"gt=0"`
	PaymentMethod   string  `json:"payment_method" validate:"omitempty,max=30"`
	Status          string  `json:"status" validate:"omitempty,oneof=Completed Pending Failed"`
	ExternalRef     string  `json:"external_ref" validate:"omitempty,max=100"`
	DisplayLabel    string  `json:"display_label" validate:"omitempty,max=100"`
	TransactionDate string  `json:"transaction_date"` // "2025-01-31", defaults to now
}

func ToResponse(t *models.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:              t.ID,
		MemberID:        t.MemberID,
		PayerName:       t.PayerName,
		Amount:          models.Money(t.Amount),
		PaymentMethod:   t.PaymentMethod,
		ExternalRef:     t.ExternalRef,
		Status:          string(t.Status),
		TransactionDate: t.TransactionDate.UTC().Format(time.RFC3339),
		DuesDueDate:     models.FormatDate(t.DuesDueDate),
		DisplayLabel:    t.DisplayLabel,
		Detached:        t.Detached(),
		DemoSeed:        t.DemoSeed,
	}
}

func toResponses(txs []models.Transaction) []TransactionResponse {
	resp := make([]TransactionResponse, 0, len(txs))
	for i := range txs {
		resp = append(resp, ToResponse(&txs[i]))
	}
	return resp
}

// POST /api/transactions  (manual entry by a treasurer)
func CreateTransactionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateTransactionRequest
		if err := apperr.ParseBody(c, &body); err != nil {
			return err
		}

		in := RecordInput{
			MemberID:      body.MemberID,
			Amount:        models.DecimalFromFloat(body.Amount),
			PaymentMethod: strings.TrimSpace(body.PaymentMethod),
			Status:        models.TransactionStatus(body.Status),
			ExternalRef:   body.ExternalRef,
			DisplayLabel:  body.DisplayLabel,
		}
		if body.TransactionDate != "" {
			d, err := time.Parse("2006-01-02", body.TransactionDate)
			if err != nil {
				return apperr.Validation("transaction_date must be YYYY-MM-DD")
			}
			in.TransactionDate = &d
		}

		t, err := svc.Record(c.UserContext(), in, auth.ActorFrom(c))
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(ToResponse(t))
	}
}

// GET /api/transactions?member_id=1&status=Completed&from=2025-01-01&to=2025-02-01&detached=true
// Members only ever see their own transactions.
func ListTransactionsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := auth.PrincipalFrom(c)
		if err != nil {
			return err
		}

		if !p.Role.CanManage() {
			txs, err := svc.ListFor(c.UserContext(), p.MemberID)
			if err != nil {
				return err
			}
			return c.JSON(toResponses(txs))
		}

		f, err := filterFromQuery(c)
		if err != nil {
			return err
		}
		if f.MemberID > 0 {
			txs, err := svc.ListFor(c.UserContext(), f.MemberID)
			if err != nil {
				return err
			}
			return c.JSON(toResponses(txs))
		}
		txs, err := svc.ListAll(c.UserContext(), f)
		if err != nil {
			return err
		}
		return c.JSON(toResponses(txs))
	}
}

// GET /api/transactions/:id
func GetTransactionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := auth.PrincipalFrom(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return apperr.Validation("invalid transaction id")
		}
		t, err := svc.Get(c.UserContext(), uint(id))
		if err != nil {
			return err
		}
		if !p.Role.CanManage() && (t.MemberID == nil || *t.MemberID != p.MemberID) {
			return apperr.Forbidden("members can only view their own transactions")
		}
		return c.JSON(ToResponse(t))
	}
}

// POST /api/transactions/:id/complete
func CompleteTransactionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return apperr.Validation("invalid transaction id")
		}
		t, err := svc.MarkCompleted(c.UserContext(), uint(id), auth.ActorFrom(c))
		if err != nil {
			return err
		}
		return c.JSON(ToResponse(t))
	}
}

// POST /api/transactions/:id/fail
func FailTransactionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return apperr.Validation("invalid transaction id")
		}
		t, err := svc.MarkFailed(c.UserContext(), uint(id), auth.ActorFrom(c))
		if err != nil {
			return err
		}
		return c.JSON(ToResponse(t))
	}
}

// DELETE /api/transactions/:id
func DeleteTransactionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return apperr.Validation("invalid transaction id")
		}
		if err := svc.Delete(c.UserContext(), uint(id), auth.ActorFrom(c)); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GET /api/transactions/export?from=2025-01-01&to=2025-07-01
func ExportTransactionsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := filterFromQuery(c)
		if err != nil {
			return err
		}
		data, err := svc.ExportXLSX(c.UserContext(), f)
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="transactions.xlsx"`)
		return c.Send(data)
	}
}

func filterFromQuery(c *fiber.Ctx) (Filter, error) {
	f := Filter{
		MemberID: uint(c.QueryInt("member_id", 0)),
		Method:   c.Query("payment_method"),
		Detached: c.QueryBool("detached", false),
	}
	if s := c.Query("status"); s != "" {
		f.Status = models.TransactionStatus(s)
		if !f.Status.Valid() {
			return f, apperr.Validation("unknown status %q", s)
		}
	}
	for _, q := range []struct {
		key string
		dst **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		v := c.Query(q.key)
		if v == "" {
			continue
		}
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, apperr.Validation("%s must be YYYY-MM-DD", q.key)
		}
		*q.dst = &d
	}
	return f, nil
}
