package payments

import (
	"context"
	"errors"
	"log"
	"strings"

	"dues-backend/internal/apperr"
	"dues-backend/internal/audit"
	"dues-backend/internal/ledger"
	"dues-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service calls the gateway before any ledger write, so no database
// transaction is ever open while waiting on the network.
type Service struct {
	db      *gorm.DB
	gateway Gateway
	ledger  *ledger.Service
}

func NewService(db *gorm.DB, gateway Gateway, l *ledger.Service) *Service {
	return &Service{db: db, gateway: gateway, ledger: l}
}

func (s *Service) Gateway() Gateway { return s.gateway }

type LinkResult struct {
	Link   *Link
	Amount decimal.Decimal
}

// CreateLink asks the gateway for a hosted payment page covering the
// member's outstanding dues. The ledger is not touched.
func (s *Service) CreateLink(ctx context.Context, memberID uint) (*LinkResult, error) {
	m, err := s.member(ctx, memberID)
	if err != nil {
		return nil, err
	}
	due := m.Outstanding()
	if !due.IsPositive() {
		return nil, apperr.Validation("%s has no outstanding dues", m.Name)
	}

	link, err := s.gateway.CreateLink(ctx, LinkRequest{
		OrderID:     NewOrderID(m.ID),
		Amount:      due,
		MemberName:  m.Name,
		MemberEmail: m.Email,
		MemberPhone: m.Phone,
		Description: describe(m),
	})
	if err != nil {
		return nil, apperr.Upstream(err, "payment gateway could not create a link")
	}
	return &LinkResult{Link: link, Amount: due}, nil
}

type ProcessInput struct {
	MemberID uint
	SourceID string
	Amount   decimal.Decimal
}

// Process charges a card token and records the outcome in the ledger.
func (s *Service) Process(ctx context.Context, in ProcessInput, actor audit.Actor) (*models.Transaction, error) {
	if !in.Amount.IsPositive() {
		return nil, apperr.Validation("amount must be greater than zero")
	}
	if strings.TrimSpace(in.SourceID) == "" {
		return nil, apperr.Validation("source_id is required")
	}
	m, err := s.member(ctx, in.MemberID)
	if err != nil {
		return nil, err
	}

	charge, err := s.gateway.Charge(ctx, ChargeRequest{
		OrderID:     NewOrderID(m.ID),
		SourceID:    in.SourceID,
		Amount:      in.Amount,
		MemberName:  m.Name,
		MemberEmail: m.Email,
	})
	if err != nil {
		return nil, apperr.Upstream(err, "payment was not completed by the gateway")
	}

	return s.ledger.Record(ctx, ledger.RecordInput{
		MemberID:      m.ID,
		Amount:        charge.Amount,
		PaymentMethod: s.gateway.Name(),
		Status:        charge.Status,
		ExternalRef:   charge.OrderID,
		DisplayLabel:  describe(m),
	}, actor)
}

type NotificationResult struct {
	Status        string                   `json:"status"`
	OrderID       string                   `json:"order_id"`
	TransactionID uint                     `json:"transaction_id,omitempty"`
	LedgerStatus  models.TransactionStatus `json:"ledger_status,omitempty"`
}

// HandleNotification applies a gateway callback. Replays are no-ops and
// unknown orders are acknowledged so the gateway stops retrying.
func (s *Service) HandleNotification(ctx context.Context, n Notification) (*NotificationResult, error) {
	if n.OrderID == "" {
		return nil, apperr.Validation("order_id is required")
	}
	if !s.gateway.VerifyNotification(n) {
		return nil, apperr.Unauthorized("invalid notification signature")
	}
	res := &NotificationResult{OrderID: n.OrderID, Status: "ignored"}
	actor := audit.System(s.gateway.Name() + " notification")

	status := MapStatus(n.TransactionStatus, n.FraudStatus)
	if status == "" {
		log.Printf("[INFO] %s notification %s: status %q ignored", s.gateway.Name(), n.OrderID, n.TransactionStatus)
		return res, nil
	}

	t, err := s.ledger.FindByExternalRef(ctx, n.OrderID)
	if apperr.Is(err, apperr.KindNotFound) {
		return s.recordLate(ctx, n, status, actor)
	}
	if err != nil {
		return nil, err
	}

	res.TransactionID = t.ID
	res.LedgerStatus = t.Status
	switch {
	case t.Status == status:
		res.Status = "duplicate"
		return res, nil
	case t.Status != models.TxPending:
		log.Printf("[WARN] %s notification %s: transaction %d already %s, got %s", s.gateway.Name(), n.OrderID, t.ID, t.Status, status)
		return res, nil
	case status == models.TxPending:
		return res, nil
	}

	updated, err := s.ledger.MarkByExternalRef(ctx, n.OrderID, status, actor)
	if err != nil {
		return nil, err
	}
	res.Status = "applied"
	res.LedgerStatus = updated.Status
	return res, nil
}

// recordLate handles a confirmed payment whose charge was never recorded,
// such as one paid through a hosted link.
func (s *Service) recordLate(ctx context.Context, n Notification, status models.TransactionStatus, actor audit.Actor) (*NotificationResult, error) {
	res := &NotificationResult{OrderID: n.OrderID, Status: "ignored"}
	if status != models.TxCompleted {
		return res, nil
	}
	memberID, ok := MemberFromOrderID(n.OrderID)
	if !ok {
		log.Printf("[WARN] %s notification %s: unrecognised order id", s.gateway.Name(), n.OrderID)
		return res, nil
	}
	amount, err := decimal.NewFromString(n.GrossAmount)
	if err != nil || !amount.IsPositive() {
		return nil, apperr.Validation("invalid gross_amount %q", n.GrossAmount)
	}

	t, err := s.ledger.Record(ctx, ledger.RecordInput{
		MemberID:      memberID,
		Amount:        amount,
		PaymentMethod: s.gateway.Name(),
		Status:        models.TxCompleted,
		ExternalRef:   n.OrderID,
	}, actor)
	switch {
	case apperr.Is(err, apperr.KindNotFound):
		log.Printf("[WARN] %s notification %s: member %d no longer exists", s.gateway.Name(), n.OrderID, memberID)
		return res, nil
	case apperr.Is(err, apperr.KindConflict):
		res.Status = "duplicate"
		return res, nil
	case err != nil:
		return nil, err
	}
	res.Status = "recorded"
	res.TransactionID = t.ID
	res.LedgerStatus = t.Status
	return res, nil
}

func (s *Service) member(ctx context.Context, id uint) (*models.Member, error) {
	var m models.Member
	err := s.db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("member %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func describe(m *models.Member) string {
	if c := m.ClassName(); c != "" {
		return c + " membership dues"
	}
	return "Membership dues"
}
