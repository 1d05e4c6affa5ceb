// Package duedates keeps the append-only due date trail and pushes each
// new due date onto the current members of the named classes.
package duedates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"dues-backend/internal/apperr"
	"dues-backend/internal/audit"
	"dues-backend/internal/models"
	"dues-backend/internal/reconcile"

	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	Now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, Now: time.Now}
}

type SetResult struct {
	Record         *models.DueDateRecord
	MembersUpdated int
}

// Set assigns dueDate to every current member of the given classes and
// appends a record. Earlier records are never modified.
func (s *Service) Set(ctx context.Context, dueDate time.Time, classNames []string, demo bool, actor audit.Actor) (*SetResult, error) {
	if dueDate.IsZero() {
		return nil, apperr.Validation("due date is required")
	}
	names := normalizeNames(classNames)
	if len(names) == 0 {
		return nil, apperr.Validation("at least one class is required")
	}

	res := &SetResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var found []string
		if err := tx.Model(&models.MembershipClass{}).Where("name IN ?", names).Pluck("name", &found).Error; err != nil {
			return err
		}
		if missing := difference(names, found); len(missing) > 0 {
			return apperr.NotFound("unknown classes: %s", strings.Join(missing, ", "))
		}

		var ids []uint
		if err := tx.Model(&models.Member{}).Where("member_class IN ?", names).Order("id").Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) > 0 {
			if err := tx.Model(&models.Member{}).Where("id IN ?", ids).Update("due_date", dueDate).Error; err != nil {
				return err
			}
		}
		now := s.Now()
		for _, id := range ids {
			if _, err := reconcile.RecomputeMember(tx, id, now, reconcile.Refresh); err != nil {
				return err
			}
		}

		rec := &models.DueDateRecord{
			DueDate:    dueDate,
			ClassNames: models.ClassNamesJSON(names),
			DemoSeed:   demo,
		}
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("create due date record: %w", err)
		}
		res.Record = rec
		res.MembersUpdated = len(ids)

		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  "due_date",
			EntityID:    rec.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("due date %s set for %s (%d members)", dueDate.UTC().Format("2006-01-02"), strings.Join(names, ", "), len(ids)),
			After:       ToResponse(rec),
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// List returns the trail, newest first.
func (s *Service) List(ctx context.Context) ([]models.DueDateRecord, error) {
	var recs []models.DueDateRecord
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// LatestFor returns the newest due date recorded for the class, or nil.
func LatestFor(db *gorm.DB, className string) (*time.Time, error) {
	var recs []models.DueDateRecord
	if err := db.Order("created_at DESC, id DESC").Find(&recs).Error; err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].HasClass(className) {
			d := recs[i].DueDate
			return &d, nil
		}
	}
	return nil, nil
}

// Latest returns the newest record overall.
func Latest(db *gorm.DB) (*models.DueDateRecord, error) {
	var rec models.DueDateRecord
	err := db.Order("created_at DESC, id DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func normalizeNames(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, n := range in {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func difference(want, have []string) []string {
	ok := map[string]bool{}
	for _, h := range have {
		ok[h] = true
	}
	var missing []string
	for _, w := range want {
		if !ok[w] {
			missing = append(missing, w)
		}
	}
	return missing
}
