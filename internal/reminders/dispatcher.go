package reminders

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"dues-backend/internal/apperr"
	"dues-backend/internal/audit"
	"dues-backend/internal/models"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Result struct {
	Attempted int  `json:"attempted"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Cancelled bool `json:"cancelled,omitempty"`
}

type BulkRequest struct {
	SendToAllUnpaid bool
	MemberIDs       []uint
}

// Dispatcher delivers reminders through a Notifier and records every
// attempt. It never holds a database transaction while the notifier runs.
type Dispatcher struct {
	db       *gorm.DB
	selector *Selector
	notifier Notifier
	workers  int
	Now      func() time.Time
}

func NewDispatcher(db *gorm.DB, notifier Notifier, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		db:       db,
		selector: NewSelector(db),
		notifier: notifier,
		workers:  workers,
		Now:      time.Now,
	}
	d.selector.Now = func() time.Time { return d.Now() }
	return d
}

func (d *Dispatcher) Selector() *Selector { return d.selector }

// SendIndividual reminds one member. A delivery failure is reported as an
// upstream error after the attempt is logged.
func (d *Dispatcher) SendIndividual(ctx context.Context, memberID uint, actor audit.Actor) (*Result, error) {
	m, err := d.selector.SelectOne(ctx, memberID)
	if err != nil {
		return nil, err
	}
	res := d.dispatch(ctx, []models.Member{*m}, models.ReminderIndividual, actor.ID)
	if res.Failed > 0 {
		return &res, apperr.Upstream(nil, "reminder for %s could not be delivered", m.Name)
	}
	return &res, nil
}

// SendBulk reminds every unpaid member or the listed ones. Failures are
// counted, never fatal; cancellation stops new attempts.
func (d *Dispatcher) SendBulk(ctx context.Context, req BulkRequest, actor audit.Actor) (*Result, error) {
	var (
		members []models.Member
		err     error
	)
	switch {
	case req.SendToAllUnpaid:
		members, err = d.selector.SelectUnpaid(ctx)
	case len(req.MemberIDs) > 0:
		members, err = d.selector.SelectIDs(ctx, req.MemberIDs)
	default:
		return nil, apperr.Validation("set send_to_all_unpaid or list member_ids")
	}
	if err != nil {
		return nil, err
	}

	res := d.dispatch(ctx, members, models.ReminderBulk, actor.ID)
	log.Printf("[INFO] bulk reminder: attempted=%d succeeded=%d failed=%d", res.Attempted, res.Succeeded, res.Failed)
	return &res, nil
}

// SendSummary posts one message listing members in the given statuses.
// It records a scheduled reminder for each member listed.
func (d *Dispatcher) SendSummary(ctx context.Context, title string, statuses ...models.PaymentStatus) (int, error) {
	members, err := d.selector.SelectByStatus(ctx, statuses...)
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}

	notices := make([]Notice, 0, len(members))
	for i := range members {
		notices = append(notices, NoticeFor(&members[i]))
	}
	sendErr := d.notifier.Send(ctx, SummaryMessage(title, notices, d.Now()))
	for i := range members {
		d.logAttempt(ctx, &members[i], models.ReminderScheduled, nil, sendErr)
	}
	if sendErr != nil {
		return 0, apperr.Upstream(sendErr, "summary %q could not be delivered", title)
	}
	return len(members), nil
}

// Notify sends a message that is not about a single member.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) error {
	if err := d.notifier.Send(ctx, msg); err != nil {
		return apperr.Upstream(err, "notification could not be delivered")
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, members []models.Member, kind models.ReminderKind, requestedBy *uint) Result {
	var attempted, succeeded, failed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(d.workers)
	for i := range members {
		if ctx.Err() != nil {
			break
		}
		m := &members[i]
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			attempted.Add(1)
			err := d.notifier.Send(ctx, ReminderMessage(NoticeFor(m), d.Now()))
			if err != nil {
				failed.Add(1)
				log.Printf("[WARN] reminder to member %d failed: %v", m.ID, err)
			} else {
				succeeded.Add(1)
			}
			d.logAttempt(ctx, m, kind, requestedBy, err)
			return nil
		})
	}
	_ = g.Wait()

	return Result{
		Attempted: int(attempted.Load()),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Cancelled: ctx.Err() != nil,
	}
}

func (d *Dispatcher) logAttempt(ctx context.Context, m *models.Member, kind models.ReminderKind, requestedBy *uint, sendErr error) {
	entry := models.ReminderLog{
		MemberID:    m.ID,
		MemberName:  m.Name,
		Kind:        kind,
		Channel:     d.notifier.Channel(),
		Status:      "sent",
		RequestedBy: requestedBy,
	}
	if sendErr != nil {
		entry.Status = "failed"
		entry.Error = sendErr.Error()
		if len(entry.Error) > 255 {
			entry.Error = entry.Error[:255]
		}
	}
	if err := d.db.WithContext(context.WithoutCancel(ctx)).Create(&entry).Error; err != nil {
		log.Printf("[ERROR] write reminder log for member %d: %v", m.ID, err)
	}
}

type LogFilter struct {
	MemberID uint
	Kind     models.ReminderKind
	Limit    int
}

// Logs returns reminder attempts, newest first.
func (d *Dispatcher) Logs(ctx context.Context, f LogFilter) ([]models.ReminderLog, error) {
	q := d.db.WithContext(ctx).Model(&models.ReminderLog{})
	if f.MemberID > 0 {
		q = q.Where("member_id = ?", f.MemberID)
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	var logs []models.ReminderLog
	err := q.Order("created_at DESC, id DESC").Limit(f.Limit).Find(&logs).Error
	return logs, err
}
