package auth

import (
	"strings"
	"time"

	"dues-backend/internal/apperr"
	"dues-backend/internal/audit"
	"dues-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

const (
	CtxPrincipalKey = "principal"
	CtxUserIDKey    = "user_id"
	CtxUserRoleKey  = "user_role"
)

func JWTMiddleware(guard Guard) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return apperr.Unauthorized("authorization header missing")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return apperr.Unauthorized("authorization header must be 'Bearer <token>'")
		}

		p, err := guard.Authorize(strings.TrimSpace(parts[1]))
		if err != nil {
			return err
		}

		c.Locals(CtxPrincipalKey, p)
		c.Locals(CtxUserIDKey, p.MemberID)
		c.Locals(CtxUserRoleKey, p.Role)

		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := PrincipalFrom(c)
		if err != nil {
			return err
		}

		for _, r := range allowedRoles {
			if r == p.Role {
				return c.Next()
			}
		}
		return apperr.Forbidden("you are not allowed to perform this action")
	}
}

// RequireManager admits Admin and Treasurer.
func RequireManager() fiber.Handler {
	return RequireRole(models.RoleAdmin, models.RoleTreasurer)
}

func PrincipalFrom(c *fiber.Ctx) (*Principal, error) {
	p, ok := c.Locals(CtxPrincipalKey).(*Principal)
	if !ok || p == nil {
		return nil, apperr.Unauthorized("not authenticated")
	}
	return p, nil
}

// ActorFrom describes the caller for audit entries.
func ActorFrom(c *fiber.Ctx) audit.Actor {
	p, err := PrincipalFrom(c)
	if err != nil {
		return audit.System("anonymous")
	}
	id := p.MemberID
	return audit.Actor{ID: &id, Name: p.Name}
}

// CanAccessMember: managers see everyone, a Member only itself.
func CanAccessMember(p *Principal, memberID uint) bool {
	return p.Role.CanManage() || p.MemberID == memberID
}

// RequireSelfOrManager checks the :id route param against the caller.
func RequireSelfOrManager(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := PrincipalFrom(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt(param)
		if err != nil || id <= 0 {
			return apperr.Validation("invalid %s", param)
		}
		if !CanAccessMember(p, uint(id)) {
			return apperr.Forbidden("members can only access their own record")
		}
		return c.Next()
	}
}

// LoginRateLimiter is stricter than the global limit.
func LoginRateLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        5,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many login attempts, try again in a minute",
			})
		},
	})
}
