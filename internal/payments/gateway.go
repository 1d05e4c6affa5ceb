// Package payments talks to the card payment gateway and turns confirmed
// charges into ledger transactions.
package payments

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"dues-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LinkRequest struct {
	OrderID     string
	Amount      decimal.Decimal
	MemberName  string
	MemberEmail string
	MemberPhone string
	Description string
}

type Link struct {
	OrderID string
	URL     string
	Token   string
}

type ChargeRequest struct {
	OrderID     string
	SourceID    string
	Amount      decimal.Decimal
	MemberName  string
	MemberEmail string
}

type Charge struct {
	OrderID   string
	Reference string
	Status    models.TransactionStatus
	Amount    decimal.Decimal
}

// Notification is the asynchronous status callback a gateway posts.
type Notification struct {
	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	SignatureKey      string `json:"signature_key"`
}

type Gateway interface {
	Name() string
	CreateLink(ctx context.Context, req LinkRequest) (*Link, error)
	Charge(ctx context.Context, req ChargeRequest) (*Charge, error)
	PublicConfig() map[string]any
	VerifyNotification(n Notification) bool
}

// NewOrderID embeds the member id so a late notification can be matched
// to its member even if no transaction was recorded yet.
func NewOrderID(memberID uint) string {
	return fmt.Sprintf("dues-%d-%s", memberID, uuid.NewString()[:8])
}

func MemberFromOrderID(orderID string) (uint, bool) {
	parts := strings.SplitN(orderID, "-", 3)
	if len(parts) != 3 || parts[0] != "dues" {
		return 0, false
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// Signature is SHA512(order_id + status_code + gross_amount + server_key).
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// MapStatus turns a gateway transaction status into a ledger status.
// An empty result means the notification carries no ledger change.
func MapStatus(transactionStatus, fraudStatus string) models.TransactionStatus {
	switch strings.ToLower(transactionStatus) {
	case "capture":
		switch strings.ToLower(fraudStatus) {
		case "", "accept":
			return models.TxCompleted
		case "challenge":
			return models.TxPending
		default:
			return models.TxFailed
		}
	case "settlement":
		return models.TxCompleted
	case "pending":
		return models.TxPending
	case "deny", "cancel", "expire", "failure":
		return models.TxFailed
	}
	return ""
}
