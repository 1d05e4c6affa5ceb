package auth

import (
	"context"
	"errors"
	"log"
	"strings"

	"dues-backend/internal/apperr"
	"dues-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	MemberID    uint        `json:"member_id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Role        models.Role `json:"role"`
}

type Service struct {
	db    *gorm.DB
	guard *JWTGuard
}

func NewService(db *gorm.DB, guard *JWTGuard) *Service {
	return &Service{db: db, guard: guard}
}

// Login checks credentials. Accounts without a password hash may sign in
// with their email alone, but only when their role is Member.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	var m models.Member
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorized("invalid email or password")
		}
		return nil, err
	}

	if m.PasswordHash != "" {
		if password == "" {
			return nil, apperr.Unauthorized("password is required")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)); err != nil {
			return nil, apperr.Unauthorized("invalid email or password")
		}
	} else if m.Role != models.RoleMember {
		return nil, apperr.Unauthorized("invalid email or password")
	}

	token, err := s.guard.Issue(&m)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		MemberID:    m.ID,
		Name:        m.Name,
		Email:       m.Email,
		Role:        m.Role,
	}, nil
}

// EnsureAdmin creates the bootstrap administrator if no member has the
// email yet. An existing account is left untouched.
func EnsureAdmin(db *gorm.DB, email, name, password string) (*models.Member, bool, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, false, nil
	}

	var existing models.Member
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, false, err
	}

	admin := models.Member{
		Name:          name,
		Email:         email,
		PasswordHash:  hash,
		Role:          models.RoleAdmin,
		DuesAmount:    decimal.Zero,
		AmountPaid:    decimal.Zero,
		PaymentStatus: models.PaymentPaid,
	}
	if err := db.Create(&admin).Error; err != nil {
		return nil, false, err
	}
	log.Printf("[INFO] bootstrap admin %s created", email)
	return &admin, true, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// POST /api/auth/login
func LoginHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := apperr.ParseBody(c, &body); err != nil {
			return err
		}

		resp, err := svc.Login(c.UserContext(), body.Email, body.Password)
		if err != nil {
			return err
		}
		return c.JSON(resp)
	}
}

// GET /api/auth/me
func MeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := PrincipalFrom(c)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"member_id": p.MemberID,
			"name":      p.Name,
			"email":     p.Email,
			"role":      p.Role,
		})
	}
}
