package payments

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"dues-backend/internal/models"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
)

// MidtransGateway uses Snap for hosted payment links and the Core API for
// direct card charges. Midtrans settles whole currency units, so amounts
// are rounded before they are sent.
type MidtransGateway struct {
	serverKey  string
	clientKey  string
	production bool
	snap       snap.Client
	core       coreapi.Client
}

func NewMidtransGateway(serverKey, clientKey string, production bool) *MidtransGateway {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	g := &MidtransGateway{serverKey: serverKey, clientKey: clientKey, production: production}
	g.snap.New(serverKey, env)
	g.core.New(serverKey, env)
	return g
}

func (g *MidtransGateway) Name() string { return "midtrans" }

func (g *MidtransGateway) CreateLink(ctx context.Context, req LinkRequest) (*Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	gross := grossAmount(req.Amount)
	first, last := splitName(req.MemberName)

	sreq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: gross,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: first,
			LName: last,
			Email: req.MemberEmail,
			Phone: req.MemberPhone,
		},
		CreditCard: &snap.CreditCardDetails{Secure: true},
		Items: &[]midtrans.ItemDetails{{
			ID:       req.OrderID,
			Price:    gross,
			Qty:      1,
			Name:     truncate(req.Description, 50),
			Category: "Dues",
		}},
	}

	resp, merr := g.snap.CreateTransaction(sreq)
	if merr != nil {
		return nil, fmt.Errorf("midtrans snap %d: %s", merr.StatusCode, merr.Message)
	}
	return &Link{OrderID: req.OrderID, URL: resp.RedirectURL, Token: resp.Token}, nil
}

func (g *MidtransGateway) Charge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	first, last := splitName(req.MemberName)

	creq := &coreapi.ChargeReq{
		PaymentType: coreapi.PaymentTypeCreditCard,
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: grossAmount(req.Amount),
		},
		CreditCard: &coreapi.CreditCardDetails{
			TokenID: req.SourceID,
		},
		CustomerDetails: &midtrans.CustomerDetails{
			FName: first,
			LName: last,
			Email: req.MemberEmail,
		},
	}

	resp, merr := g.core.ChargeTransaction(creq)
	if merr != nil {
		return nil, fmt.Errorf("midtrans charge %d: %s", merr.StatusCode, merr.Message)
	}

	status := MapStatus(resp.TransactionStatus, resp.FraudStatus)
	if status == "" || status == models.TxFailed {
		return nil, fmt.Errorf("midtrans charge %s: %s (%s)", resp.TransactionStatus, resp.StatusMessage, resp.StatusCode)
	}
	amount, err := decimal.NewFromString(resp.GrossAmount)
	if err != nil {
		amount = req.Amount
	}
	return &Charge{
		OrderID:   req.OrderID,
		Reference: resp.TransactionID,
		Status:    status,
		Amount:    amount,
	}, nil
}

func (g *MidtransGateway) PublicConfig() map[string]any {
	env := "sandbox"
	if g.production {
		env = "production"
	}
	return map[string]any{
		"gateway":     g.Name(),
		"client_key":  g.clientKey,
		"environment": env,
	}
}

func (g *MidtransGateway) VerifyNotification(n Notification) bool {
	if n.SignatureKey == "" || g.serverKey == "" {
		return false
	}
	want := Signature(n.OrderID, n.StatusCode, n.GrossAmount, g.serverKey)
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(n.SignatureKey))) == 1
}

func grossAmount(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

func splitName(name string) (string, string) {
	first, last, _ := strings.Cut(strings.TrimSpace(name), " ")
	return first, strings.TrimSpace(last)
}

func truncate(s string, n int) string {
	if s == "" {
		return "Membership dues"
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
