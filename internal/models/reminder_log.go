package models

import "time"

type ReminderKind string

const (
	ReminderIndividual ReminderKind = "individual"
	ReminderBulk       ReminderKind = "bulk"
	ReminderScheduled  ReminderKind = "scheduled"
)

// ReminderLog records that a reminder was requested for a member and
// what the notifier answered. MemberID is a plain column so logs outlive
// the member.
type ReminderLog struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time    `json:"created_at"`
	MemberID    uint         `gorm:"index" json:"member_id"`
	MemberName  string       `gorm:"size:100" json:"member_name"`
	Kind        ReminderKind `gorm:"size:20" json:"kind"`
	Channel     string       `gorm:"size:30" json:"channel"`
	Status      string       `gorm:"size:20" json:"status"`
	Error       string       `gorm:"size:255" json:"error,omitempty"`
	RequestedBy *uint        `json:"requested_by"`
}
