package members

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dues-backend/internal/apperr"
	"dues-backend/internal/audit"
	"dues-backend/internal/auth"
	"dues-backend/internal/classes"
	"dues-backend/internal/duedates"
	"dues-backend/internal/ledger"
	"dues-backend/internal/models"
	"dues-backend/internal/reconcile"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	locks *reconcile.Locker
	Now   func() time.Time
}

func NewService(db *gorm.DB, locks *reconcile.Locker) *Service {
	return &Service{db: db, locks: locks, Now: time.Now}
}

type CreateInput struct {
	Name        string
	Email       string
	Phone       string
	Password    string
	Role        models.Role
	MemberClass string
	DuesAmount  *decimal.Decimal
	DueDate     *time.Time
	DemoSeed    bool
}

// Create adds a member. Dues and due date default to the class amount and
// the newest due date recorded for the class.
func (s *Service) Create(ctx context.Context, in CreateInput, actor audit.Actor) (*models.Member, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.MemberClass = strings.TrimSpace(in.MemberClass)
	if in.Name == "" || in.Email == "" {
		return nil, apperr.Validation("name and email are required")
	}
	if in.Role == "" {
		in.Role = models.RoleMember
	}
	if !in.Role.Valid() {
		return nil, apperr.Validation("unknown role %q", in.Role)
	}
	if in.DuesAmount != nil && in.DuesAmount.IsNegative() {
		return nil, apperr.Validation("dues amount cannot be negative")
	}

	m := &models.Member{
		Name:       in.Name,
		Email:      in.Email,
		Phone:      strings.TrimSpace(in.Phone),
		Role:       in.Role,
		DuesAmount: decimal.Zero,
		AmountPaid: decimal.Zero,
		DueDate:    in.DueDate,
		DemoSeed:   in.DemoSeed,
	}
	if in.Password != "" {
		hash, err := auth.HashPassword(in.Password)
		if err != nil {
			return nil, err
		}
		m.PasswordHash = hash
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Member{}).Where("email = ?", m.Email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("a member with email %s already exists", m.Email)
		}

		if in.MemberClass != "" {
			class, err := classes.FindByName(tx, in.MemberClass)
			if err != nil {
				return err
			}
			m.MemberClass = &class.Name
			m.DuesAmount = class.DuesAmount
			if m.DueDate == nil {
				due, err := duedates.LatestFor(tx, class.Name)
				if err != nil {
					return err
				}
				m.DueDate = due
			}
		}
		if in.DuesAmount != nil {
			m.DuesAmount = *in.DuesAmount
		}
		m.PaymentStatus = reconcile.DeriveStatus(m.AmountPaid, m.DuesAmount, m.DueDate, s.Now())

		if err := tx.Create(m).Error; err != nil {
			if apperr.IsDuplicate(err) {
				return apperr.Wrap(apperr.KindConflict, err, "a member with email %s already exists", m.Email)
			}
			return fmt.Errorf("create member: %w", err)
		}
		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  "member",
			EntityID:    m.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("member %s added", m.Email),
			After:       ToResponse(m),
		})
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Get returns the member with its status evaluated at now.
func (s *Service) Get(ctx context.Context, id uint) (*models.Member, error) {
	m, err := get(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	m.PaymentStatus = reconcile.EffectiveStatus(m, s.Now())
	return m, nil
}

type Filter struct {
	Status models.PaymentStatus
	Class  string
	Role   models.Role
	Search string
}

func (s *Service) List(ctx context.Context, f Filter) ([]models.Member, error) {
	q := s.db.WithContext(ctx).Model(&models.Member{})
	if f.Class != "" {
		q = q.Where("member_class = ?", f.Class)
	}
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where("LOWER(name) LIKE ? OR email LIKE ?", like, like)
	}

	var list []models.Member
	if err := q.Order("name asc, id asc").Find(&list).Error; err != nil {
		return nil, err
	}
	// Stored statuses lag behind passed due dates until the next refresh.
	if f.Status != "" {
		return reconcile.FilterStatus(list, s.Now(), f.Status), nil
	}
	reconcile.ApplyEffective(list, s.Now())
	return list, nil
}

// UpdateInput carries the editable fields. Nil means unchanged.
// amount_paid is not editable; it only follows the ledger.
type UpdateInput struct {
	Name          *string
	Email         *string
	Phone         *string
	Role          *models.Role
	Password      *string
	MemberClass   *string
	DuesAmount    *decimal.Decimal
	DueDate       *time.Time
	ClearDueDate  bool
	PaymentStatus *models.PaymentStatus
}

// Update edits a member. A PaymentStatus value is a manual override that
// stays until the next transaction event for the member.
func (s *Service) Update(ctx context.Context, id uint, in UpdateInput, actor audit.Actor) (*models.Member, error) {
	if in.DuesAmount != nil && in.DuesAmount.IsNegative() {
		return nil, apperr.Validation("dues amount cannot be negative")
	}
	if in.Role != nil && !in.Role.Valid() {
		return nil, apperr.Validation("unknown role %q", *in.Role)
	}
	if in.PaymentStatus != nil && !in.PaymentStatus.Valid() {
		return nil, apperr.Validation("unknown payment status %q", *in.PaymentStatus)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	var result *models.Member
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := reconcile.LockMember(tx, id)
		if err != nil {
			return err
		}
		before := ToResponse(m)
		updates := map[string]any{}
		needsRefresh := false

		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return apperr.Validation("name cannot be empty")
			}
			updates["name"] = name
		}
		if in.Email != nil {
			email := strings.TrimSpace(strings.ToLower(*in.Email))
			if email == "" {
				return apperr.Validation("email cannot be empty")
			}
			if email != m.Email {
				var n int64
				if err := tx.Model(&models.Member{}).Where("email = ? AND id <> ?", email, id).Count(&n).Error; err != nil {
					return err
				}
				if n > 0 {
					return apperr.Conflict("a member with email %s already exists", email)
				}
				updates["email"] = email
			}
		}
		if in.Phone != nil {
			updates["phone"] = strings.TrimSpace(*in.Phone)
		}
		if in.Role != nil {
			updates["role"] = *in.Role
		}
		if in.Password != nil {
			if *in.Password == "" {
				updates["password_hash"] = ""
			} else {
				hash, err := auth.HashPassword(*in.Password)
				if err != nil {
					return err
				}
				updates["password_hash"] = hash
			}
		}
		if in.MemberClass != nil {
			name := strings.TrimSpace(*in.MemberClass)
			if name == "" {
				updates["member_class"] = nil
			} else if name != m.ClassName() {
				class, err := classes.FindByName(tx, name)
				if err != nil {
					return err
				}
				updates["member_class"] = class.Name
				if in.DuesAmount == nil {
					updates["dues_amount"] = class.DuesAmount
					needsRefresh = true
				}
				if in.DueDate == nil && !in.ClearDueDate {
					if due, err := duedates.LatestFor(tx, class.Name); err != nil {
						return err
					} else if due != nil {
						updates["due_date"] = *due
						needsRefresh = true
					}
				}
			}
		}
		if in.DuesAmount != nil {
			updates["dues_amount"] = *in.DuesAmount
			needsRefresh = true
		}
		if in.ClearDueDate {
			updates["due_date"] = nil
			needsRefresh = true
		} else if in.DueDate != nil {
			updates["due_date"] = *in.DueDate
			needsRefresh = true
		}

		if len(updates) > 0 {
			if err := tx.Model(&models.Member{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				if apperr.IsDuplicate(err) {
					return apperr.Wrap(apperr.KindConflict, err, "a member with that email already exists")
				}
				return err
			}
		}

		action := models.AuditActionUpdate
		if in.PaymentStatus != nil {
			action = models.AuditActionOverride
			if err := tx.Model(&models.Member{}).Where("id = ?", id).Updates(map[string]any{
				"payment_status":    *in.PaymentStatus,
				"status_overridden": true,
			}).Error; err != nil {
				return err
			}
		} else if needsRefresh {
			if _, err := reconcile.RecomputeMember(tx, id, s.Now(), reconcile.Refresh); err != nil {
				return err
			}
		}

		result, err = get(tx, id)
		if err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  "member",
			EntityID:    id,
			Action:      action,
			Description: fmt.Sprintf("member %s updated", result.Email),
			Before:      before,
			After:       ToResponse(result),
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type DeleteResult struct {
	TransactionsDetached int64 `json:"transactions_detached"`
}

// Delete removes the member and detaches its transactions so collected
// totals are unchanged.
func (s *Service) Delete(ctx context.Context, id uint, actor audit.Actor) (*DeleteResult, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	res := &DeleteResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := reconcile.LockMember(tx, id)
		if err != nil {
			return err
		}
		if actor.ID != nil && *actor.ID == id {
			return apperr.Validation("you cannot delete your own account")
		}

		n, err := ledger.DetachMember(tx, m)
		if err != nil {
			return err
		}
		res.TransactionsDetached = n

		if err := tx.Delete(&models.Member{}, id).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  "member",
			EntityID:    id,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("member %s deleted, %d transactions detached", m.Email, n),
			Before:      ToResponse(m),
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func get(db *gorm.DB, id uint) (*models.Member, error) {
	var m models.Member
	err := db.First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("member %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
