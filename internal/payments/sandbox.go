package payments

import (
	"context"
	"crypto/subtle"
	"net/url"
	"strings"

	"dues-backend/internal/models"

	"github.com/google/uuid"
)

// SandboxGateway never leaves the process. Links point at a configurable
// checkout URL and every charge completes.
type SandboxGateway struct {
	baseURL   string
	serverKey string
}

func NewSandboxGateway(baseURL, serverKey string) *SandboxGateway {
	return &SandboxGateway{baseURL: strings.TrimRight(baseURL, "/"), serverKey: serverKey}
}

func (g *SandboxGateway) Name() string { return "sandbox" }

func (g *SandboxGateway) CreateLink(ctx context.Context, req LinkRequest) (*Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("order_id", req.OrderID)
	q.Set("amount", req.Amount.StringFixed(2))
	return &Link{
		OrderID: req.OrderID,
		URL:     g.baseURL + "?" + q.Encode(),
		Token:   uuid.NewString(),
	}, nil
}

func (g *SandboxGateway) Charge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Charge{
		OrderID:   req.OrderID,
		Reference: "sandbox-" + uuid.NewString(),
		Status:    models.TxCompleted,
		Amount:    req.Amount,
	}, nil
}

func (g *SandboxGateway) PublicConfig() map[string]any {
	return map[string]any{
		"gateway":     g.Name(),
		"environment": "sandbox",
	}
}

// VerifyNotification checks the callback signature. Without a server key
// nothing can be verified, so every callback is refused.
func (g *SandboxGateway) VerifyNotification(n Notification) bool {
	if g.serverKey == "" {
		return false
	}
	want := Signature(n.OrderID, n.StatusCode, n.GrossAmount, g.serverKey)
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(n.SignatureKey))) == 1
}
