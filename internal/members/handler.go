package members

import (
	"time"

	"dues-backend/internal/apperr"
	"dues-backend/internal/auth"
	"dues-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type MemberResponse struct {
	ID               uint    `json:"id"`
	Name             string  `json:"name"`
	Email            string  `json:"email"`
	Phone            string  `json:"phone"`
	Role             string  `json:"role"`
	MemberClass      *string `json:"member_class"`
	DuesAmount       float64 `json:"dues_amount"`
	AmountPaid       float64 `json:"amount_paid"`
	Outstanding      float64 `json:"outstanding"`
	DueDate          *string `json:"due_date"`
	PaymentStatus    string  `json:"payment_status"`
	StatusOverridden bool    `json:"status_overridden"`
	DemoSeed         bool    `json:"demo_seed"`
	CreatedAt        string  `json:"created_at"`
}

type CreateMemberRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Email       string   `json:"email" validate:"required,email,max=150"`
	Phone       string   `json:"phone" validate:"omitempty,max=30"`
	Password    string   `json:"password" validate:"omitempty,min=6"`
	Role        string   `json:"role" validate:"omitempty,oneof=Member Treasurer Admin"`
	MemberClass string   `json:"member_class" validate:"omitempty,max=100"`
	DuesAmount  *float64 `json:"dues_amount" validate:"omitempty,gte=0"`
	DueDate     string   `json:"due_date"`
}

// UpdateMemberRequest uses pointers so absent fields stay untouched.
// amount_paid is accepted for compatibility and ignored.
type UpdateMemberRequest struct {
	Name          *string  `json:"name" validate:"omitempty,max=100"`
	Email         *string  `json:"email" validate:"omitempty,email,max=150"`
	Phone         *string  `json:"phone" validate:"omitempty,max=30"`
	Password      *string  `json:"password"`
	Role          *string  `json:"role" validate:"omitempty,oneof=Member Treasurer Admin"`
	MemberClass   *string  `json:"member_class" validate:"omitempty,max=100"`
	DuesAmount    *float64 `json:"dues_amount" validate:"omitempty,gte=0"`
	DueDate       *string  `json:"due_date"`
	PaymentStatus *string  `json:"payment_status" validate:"omitempty,oneof=Paid Pending Overdue"`
	AmountPaid    *float64 `json:"amount_paid"`
}

func ToResponse(m *models.Member) MemberResponse {
	return MemberResponse{
		ID:               m.ID,
		Name:             m.Name,
		Email:            m.Email,
		Phone:            m.Phone,
		Role:             string(m.Role),
		MemberClass:      m.MemberClass,
		DuesAmount:       models.Money(m.DuesAmount),
		AmountPaid:       models.Money(m.AmountPaid),
		Outstanding:      models.Money(m.Outstanding()),
		DueDate:          models.FormatDate(m.DueDate),
		PaymentStatus:    string(m.PaymentStatus),
		StatusOverridden: m.StatusOverridden,
		DemoSeed:         m.DemoSeed,
		CreatedAt:        m.CreatedAt.Format(time.RFC3339),
	}
}

// GET /api/members?status=Overdue&class=Tav&q=chen
func ListMembersHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := Filter{
			Class:  c.Query("class"),
			Role:   models.Role(c.Query("role")),
			Search: c.Query("q"),
		}
		if s := c.Query("status"); s != "" {
			f.Status = models.PaymentStatus(s)
			if !f.Status.Valid() {
				return apperr.Validation("unknown status %q", s)
			}
		}
		list, err := svc.List(c.UserContext(), f)
		if err != nil {
			return err
		}
		resp := make([]MemberResponse, 0, len(list))
		for i := range list {
			resp = append(resp, ToResponse(&list[i]))
		}
		return c.JSON(resp)
	}
}

// GET /api/members/:id  (guarded by auth.RequireSelfOrManager)
func GetMemberHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return apperr.Validation("invalid member id")
		}
		m, err := svc.Get(c.UserContext(), uint(id))
		if err != nil {
			return err
		}
		return c.JSON(ToResponse(m))
	}
}

// GET /api/members/me
func MeHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := auth.PrincipalFrom(c)
		if err != nil {
			return err
		}
		m, err := svc.Get(c.UserContext(), p.MemberID)
		if err != nil {
			return err
		}
		return c.JSON(ToResponse(m))
	}
}

// POST /api/members and POST /api/auth/add-member
func CreateMemberHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateMemberRequest
		if err := apperr.ParseBody(c, &body); err != nil {
			return err
		}

		in := CreateInput{
			Name:        body.Name,
			Email:       body.Email,
			Phone:       body.Phone,
			Password:    body.Password,
			Role:        models.Role(body.Role),
			MemberClass: body.MemberClass,
		}
		if body.DuesAmount != nil {
			d := models.DecimalFromFloat(*body.DuesAmount)
			in.DuesAmount = &d
		}
		if body.DueDate != "" {
			due, err := models.ParseDueDate(body.DueDate)
			if err != nil {
				return apperr.Validation("%v", err)
			}
			in.DueDate = &due
		}

		m, err := svc.Create(c.UserContext(), in, auth.ActorFrom(c))
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(ToResponse(m))
	}
}

// PATCH /api/members/:id
func UpdateMemberHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return apperr.Validation("invalid member id")
		}
		var body UpdateMemberRequest
		if err := apperr.ParseBody(c, &body); err != nil {
			return err
		}

		in, err := body.toInput()
		if err != nil {
			return err
		}
		m, err := svc.Update(c.UserContext(), uint(id), in, auth.ActorFrom(c))
		if err != nil {
			return err
		}
		return c.JSON(ToResponse(m))
	}
}

// DELETE /api/members/:id
func DeleteMemberHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return apperr.Validation("invalid member id")
		}
		res, err := svc.Delete(c.UserContext(), uint(id), auth.ActorFrom(c))
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

func (r UpdateMemberRequest) toInput() (UpdateInput, error) {
	in := UpdateInput{
		Name:        r.Name,
		Email:       r.Email,
		Phone:       r.Phone,
		Password:    r.Password,
		MemberClass: r.MemberClass,
	}
	if r.Role != nil {
		role := models.Role(*r.Role)
		in.Role = &role
	}
	if r.DuesAmount != nil {
		d := models.DecimalFromFloat(*r.DuesAmount)
		in.DuesAmount = &d
	}
	if r.DueDate != nil {
		if *r.DueDate == "" {
			in.ClearDueDate = true
		} else {
			due, err := models.ParseDueDate(*r.DueDate)
			if err != nil {
				return in, apperr.Validation("%v", err)
			}
			in.DueDate = &due
		}
	}
	if r.PaymentStatus != nil {
		st := models.PaymentStatus(*r.PaymentStatus)
		in.PaymentStatus = &st
	}
	return in, nil
}
