package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dues-backend/internal/apperr"
	"dues-backend/internal/database/dbtest"
	"dues-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func createMember(t *testing.T, db *gorm.DB, email string, role models.Role, password string) *models.Member {
	t.Helper()
	m := &models.Member{
		Name:          email,
		Email:         email,
		Role:          role,
		DuesAmount:    decimal.NewFromInt(100),
		AmountPaid:    decimal.Zero,
		PaymentStatus: models.PaymentPending,
	}
	if password != "" {
		hash, err := HashPassword(password)
		if err != nil {
			t.Fatal(err)
		}
		m.PasswordHash = hash
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatal(err)
	}
	return m
}

func TestGuardRoundTrip(t *testing.T) {
	g := NewJWTGuard(testSecret)
	token, err := g.Issue(&models.Member{ID: 3, Email: "a@b.c", Name: "Ann", Role: models.RoleTreasurer})
	if err != nil {
		t.Fatal(err)
	}
	p, err := g.Authorize(token)
	if err != nil {
		t.Fatal(err)
	}
	if p.MemberID != 3 || p.Role != models.RoleTreasurer || p.Name != "Ann" {
		t.Fatalf("unexpected principal %+v", p)
	}
}

func TestGuardRejectsBadTokens(t *testing.T) {
	g := NewJWTGuard(testSecret)

	other, _ := NewJWTGuard("another-secret-another-secret-xx").Issue(&models.Member{ID: 1, Role: models.RoleAdmin})
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTCustomClaims{
		MemberID: 1,
		Role:     models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	expiredStr, _ := expired.SignedString([]byte(testSecret))
	badRole := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTCustomClaims{MemberID: 1, Role: "Owner"})
	badRoleStr, _ := badRole.SignedString([]byte(testSecret))

	for name, tok := range map[string]string{
		"empty":        "",
		"garbage":      "abc.def.ghi",
		"wrong key":    other,
		"expired":      expiredStr,
		"unknown role": badRoleStr,
	} {
		if _, err := g.Authorize(tok); !apperr.Is(err, apperr.KindUnauthorized) {
			t.Errorf("%s: expected unauthorized, got %v", name, err)
		}
	}
}

func TestLoginRules(t *testing.T) {
	db := dbtest.New(t)
	svc := NewService(db, NewJWTGuard(testSecret))
	ctx := context.Background()

	createMember(t, db, "admin@org.test", models.RoleAdmin, "s3cret-pass")
	createMember(t, db, "member@org.test", models.RoleMember, "")
	createMember(t, db, "treasurer@org.test", models.RoleTreasurer, "")

	if _, err := svc.Login(ctx, "ADMIN@org.test ", "s3cret-pass"); err != nil {
		t.Fatalf("admin login failed: %v", err)
	}
	if _, err := svc.Login(ctx, "admin@org.test", ""); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("admin without password: %v", err)
	}
	if _, err := svc.Login(ctx, "admin@org.test", "wrong"); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("admin wrong password: %v", err)
	}
	resp, err := svc.Login(ctx, "member@org.test", "")
	if err != nil {
		t.Fatalf("passwordless member login failed: %v", err)
	}
	if resp.Role != models.RoleMember || resp.AccessToken == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if _, err := svc.Login(ctx, "treasurer@org.test", ""); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("passwordless treasurer must be refused: %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@org.test", "x"); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("unknown email: %v", err)
	}
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	db := dbtest.New(t)

	first, created, err := EnsureAdmin(db, "Boss@Org.test", "Boss", "pw-123456")
	if err != nil || !created {
		t.Fatalf("first call: created=%t err=%v", created, err)
	}
	second, created, err := EnsureAdmin(db, "boss@org.test", "Other", "changed")
	if err != nil || created {
		t.Fatalf("second call: created=%t err=%v", created, err)
	}
	if first.ID != second.ID || second.Name != "Boss" {
		t.Fatal("existing admin must not be modified")
	}
	if _, created, _ := EnsureAdmin(db, "", "x", "y"); created {
		t.Fatal("empty email must not create an admin")
	}
}

func TestMiddlewareAndRoleGuard(t *testing.T) {
	g := NewJWTGuard(testSecret)
	app := fiber.New(fiber.Config{ErrorHandler: apperr.ErrorHandler})
	protected := app.Group("", JWTMiddleware(g))
	protected.Get("/me", MeHandler())
	protected.Get("/managers", RequireManager(), func(c *fiber.Ctx) error { return c.SendString("ok") })
	protected.Get("/members/:id", RequireSelfOrManager("id"), func(c *fiber.Ctx) error { return c.SendString("ok") })

	memberTok, _ := g.Issue(&models.Member{ID: 5, Role: models.RoleMember})
	treasurerTok, _ := g.Issue(&models.Member{ID: 6, Role: models.RoleTreasurer})

	cases := []struct {
		path   string
		token  string
		status int
	}{
		{"/me", "", 401},
		{"/me", memberTok, 200},
		{"/managers", memberTok, 403},
		{"/managers", treasurerTok, 200},
		{"/members/5", memberTok, 200},
		{"/members/6", memberTok, 403},
		{"/members/5", treasurerTok, 200},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", tc.path, nil)
		if tc.token != "" {
			req.Header.Set("Authorization", "Bearer "+tc.token)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != tc.status {
			t.Errorf("%s: got %d, want %d", tc.path, resp.StatusCode, tc.status)
		}
	}
}

func TestLoginHandler(t *testing.T) {
	db := dbtest.New(t)
	createMember(t, db, "member@org.test", models.RoleMember, "pw")
	app := fiber.New(fiber.Config{ErrorHandler: apperr.ErrorHandler})
	app.Post("/login", LoginHandler(NewService(db, NewJWTGuard(testSecret))))

	post := func(body any) *http.Response {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest("POST", "/login", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		return resp
	}

	if resp := post(map[string]string{"email": "not-an-email"}); resp.StatusCode != 400 {
		t.Fatalf("invalid email status %d", resp.StatusCode)
	}
	resp := post(map[string]string{"email": "member@org.test", "password": "pw"})
	if resp.StatusCode != 200 {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	var body LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.AccessToken == "" {
		t.Fatalf("bad body %+v %v", body, err)
	}
}
