package reminders

import (
	"context"
	"errors"
	"time"

	"dues-backend/internal/apperr"
	"dues-backend/internal/models"
	"dues-backend/internal/reconcile"

	"gorm.io/gorm"
)

// Selector reads member state only. Statuses are evaluated at Now, not
// taken as stored.
type Selector struct {
	db  *gorm.DB
	Now func() time.Time
}

func NewSelector(db *gorm.DB) *Selector {
	return &Selector{db: db, Now: time.Now}
}

// SelectUnpaid returns exactly the Pending and Overdue members.
func (s *Selector) SelectUnpaid(ctx context.Context) ([]models.Member, error) {
	return s.SelectByStatus(ctx, models.PaymentPending, models.PaymentOverdue)
}

func (s *Selector) SelectByStatus(ctx context.Context, statuses ...models.PaymentStatus) ([]models.Member, error) {
	var list []models.Member
	if err := s.db.WithContext(ctx).Order("name asc, id asc").Find(&list).Error; err != nil {
		return nil, err
	}
	return reconcile.FilterStatus(list, s.Now(), statuses...), nil
}

func (s *Selector) SelectOne(ctx context.Context, id uint) (*models.Member, error) {
	var m models.Member
	err := s.db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("member %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	m.PaymentStatus = reconcile.EffectiveStatus(&m, s.Now())
	return &m, nil
}

// SelectIDs returns the listed members; any unknown id is NotFound.
func (s *Selector) SelectIDs(ctx context.Context, ids []uint) ([]models.Member, error) {
	var list []models.Member
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("name asc, id asc").Find(&list).Error; err != nil {
		return nil, err
	}
	found := make(map[uint]bool, len(list))
	for _, m := range list {
		found[m.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return nil, apperr.NotFound("member %d not found", id)
		}
	}
	reconcile.ApplyEffective(list, s.Now())
	return list, nil
}
