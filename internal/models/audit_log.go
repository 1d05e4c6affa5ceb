package models

import (
	"time"

	"gorm.io/datatypes"
)

type AuditAction string

const (
	AuditActionCreate   AuditAction = "create"
	AuditActionUpdate   AuditAction = "update"
	AuditActionDelete   AuditAction = "delete"
	AuditActionOverride AuditAction = "override"
	AuditActionSeed     AuditAction = "seed"
	AuditActionReset    AuditAction = "reset"
	AuditActionRemind   AuditAction = "remind"
)

type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	// Who did it. ActorID is nil for scheduler and CLI actions.
	ActorID   *uint  `json:"actor_id"`
	ActorName string `gorm:"size:100" json:"actor_name"`

	// e.g. "member", "transaction", "class", "due_date", "expense", "demo"
	EntityType string `gorm:"size:50;index" json:"entity_type"`
	EntityID   uint   `gorm:"index" json:"entity_id"`

	Action      AuditAction `gorm:"size:20" json:"action"`
	Description string      `gorm:"size:255" json:"description"`

	BeforeData datatypes.JSON `json:"before_data"`
	AfterData  datatypes.JSON `json:"after_data"`
}
