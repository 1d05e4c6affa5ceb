package classes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dues-backend/internal/apperr"
	"dues-backend/internal/audit"
	"dues-backend/internal/models"
	"dues-backend/internal/reconcile"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	Now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, Now: time.Now}
}

// Create registers a class. Names are compared case-sensitively.
func (s *Service) Create(ctx context.Context, name string, dues decimal.Decimal, actor audit.Actor) (*models.MembershipClass, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("class name is required")
	}
	if dues.IsNegative() {
		return nil, apperr.Validation("dues amount cannot be negative")
	}

	class := &models.MembershipClass{Name: name, DuesAmount: dues}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.MembershipClass{}).Where("name = ?", name).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("class %q already exists", name)
		}
		if err := tx.Create(class).Error; err != nil {
			if apperr.IsDuplicate(err) {
				return apperr.Wrap(apperr.KindConflict, err, "class %q already exists", name)
			}
			return fmt.Errorf("create class: %w", err)
		}
		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  "class",
			EntityID:    class.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("class %s created with dues %s", name, dues.StringFixed(2)),
			After:       ToResponse(class),
		})
	})
	if err != nil {
		return nil, err
	}
	return class, nil
}

func (s *Service) List(ctx context.Context) ([]models.MembershipClass, error) {
	var list []models.MembershipClass
	if err := s.db.WithContext(ctx).Order("name asc").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.MembershipClass, error) {
	return get(s.db.WithContext(ctx), id)
}

// FindByName returns the class with exactly this name.
func FindByName(db *gorm.DB, name string) (*models.MembershipClass, error) {
	var c models.MembershipClass
	err := db.Where("name = ?", name).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("class %q not found", name)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Delete removes the class row only. Members keep their class name, dues
// and due date; the ledger is untouched.
func (s *Service) Delete(ctx context.Context, id uint, actor audit.Actor) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := get(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.MembershipClass{}, c.ID).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  "class",
			EntityID:    c.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("class %s deleted", c.Name),
			Before:      ToResponse(c),
		})
	})
}

type UpdateResult struct {
	Class          *models.MembershipClass
	MembersUpdated int
}

// UpdateDues changes the class default. With propagate, current members
// of the class get the new dues and are re-evaluated; their paid amounts
// stay as they are.
func (s *Service) UpdateDues(ctx context.Context, id uint, dues decimal.Decimal, propagate bool, actor audit.Actor) (*UpdateResult, error) {
	if dues.IsNegative() {
		return nil, apperr.Validation("dues amount cannot be negative")
	}

	res := &UpdateResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := get(tx, id)
		if err != nil {
			return err
		}
		before := ToResponse(c)

		if err := tx.Model(c).Update("dues_amount", dues).Error; err != nil {
			return err
		}
		c.DuesAmount = dues
		res.Class = c

		if propagate {
			var ids []uint
			if err := tx.Model(&models.Member{}).Where("member_class = ?", c.Name).Order("id").Pluck("id", &ids).Error; err != nil {
				return err
			}
			if len(ids) > 0 {
				if err := tx.Model(&models.Member{}).Where("id IN ?", ids).Update("dues_amount", dues).Error; err != nil {
					return err
				}
			}
			now := s.Now()
			for _, mid := range ids {
				if _, err := reconcile.RecomputeMember(tx, mid, now, reconcile.Refresh); err != nil {
					return err
				}
			}
			res.MembersUpdated = len(ids)
		}

		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  "class",
			EntityID:    c.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("class %s dues set to %s (%d members updated)", c.Name, dues.StringFixed(2), res.MembersUpdated),
			Before:      before,
			After:       ToResponse(c),
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func get(db *gorm.DB, id uint) (*models.MembershipClass, error) {
	var c models.MembershipClass
	err := db.First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("class %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
