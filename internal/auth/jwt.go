package auth

import (
	"fmt"
	"time"

	"dues-backend/internal/apperr"
	"dues-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const tokenTTL = 24 * time.Hour

type JWTCustomClaims struct {
	MemberID uint        `json:"member_id"`
	Email    string      `json:"email"`
	Name     string      `json:"name"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	MemberID uint
	Email    string
	Name     string
	Role     models.Role
}

// Guard turns a bearer token into a principal.
type Guard interface {
	Authorize(token string) (*Principal, error)
}

type JWTGuard struct {
	secret []byte
}

func NewJWTGuard(secret string) *JWTGuard {
	return &JWTGuard{secret: []byte(secret)}
}

func (g *JWTGuard) Issue(m *models.Member) (string, error) {
	return GenerateToken(string(g.secret), m)
}

func (g *JWTGuard) Authorize(tokenStr string) (*Principal, error) {
	if tokenStr == "" {
		return nil, apperr.Unauthorized("missing token")
	}

	token, err := jwt.ParseWithClaims(tokenStr, &JWTCustomClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperr.Unauthorized("invalid or expired token")
	}

	claims, ok := token.Claims.(*JWTCustomClaims)
	if !ok || !claims.Role.Valid() || claims.MemberID == 0 {
		return nil, apperr.Unauthorized("malformed token claims")
	}

	return &Principal{
		MemberID: claims.MemberID,
		Email:    claims.Email,
		Name:     claims.Name,
		Role:     claims.Role,
	}, nil
}

func GenerateToken(secret string, m *models.Member) (string, error) {
	now := time.Now()
	claims := &JWTCustomClaims{
		MemberID: m.ID,
		Email:    m.Email,
		Name:     m.Name,
		Role:     m.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   fmt.Sprint(m.ID),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
