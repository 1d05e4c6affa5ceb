package audit

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"dues-backend/internal/database/dbtest"
	"dues-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

func TestWriteLogStoresSnapshots(t *testing.T) {
	db := dbtest.New(t)
	id := uint(4)

	err := WriteLog(db, LogOptions{
		Actor:       Actor{ID: &id, Name: "Treasurer"},
		EntityType:  "member",
		EntityID:    12,
		Action:      models.AuditActionUpdate,
		Description: "dues changed",
		Before:      map[string]any{"dues": 150},
		After:       map[string]any{"dues": 180},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteLog(db, LogOptions{Actor: System("scheduler"), EntityType: "member", EntityID: 13, Action: models.AuditActionRemind}); err != nil {
		t.Fatal(err)
	}

	logs, err := List(db, Filter{EntityType: "member", EntityID: 12})
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Fatalf("got %d logs, want 1", len(logs))
	}
	var after map[string]float64
	if err := json.Unmarshal(logs[0].AfterData, &after); err != nil {
		t.Fatal(err)
	}
	if after["dues"] != 180 {
		t.Fatalf("after snapshot %v", after)
	}

	sys, _ := List(db, Filter{EntityID: 13})
	if len(sys) != 1 || sys[0].ActorID != nil || string(sys[0].BeforeData) != "null" {
		t.Fatalf("system entry not stored as expected: %+v", sys)
	}
}

func TestListAuditLogsHandler(t *testing.T) {
	db := dbtest.New(t)
	for i := 0; i < 3; i++ {
		_ = WriteLog(db, LogOptions{Actor: System("cli"), EntityType: "class", EntityID: uint(i + 1), Action: models.AuditActionCreate})
	}

	app := fiber.New()
	app.Get("/audit-logs", ListAuditLogsHandler(db))

	resp, err := app.Test(httptest.NewRequest("GET", "/audit-logs?entity_type=class&limit=2", nil))
	if err != nil {
		t.Fatal(err)
	}
	var body []AuditLogResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body) != 2 {
		t.Fatalf("limit not applied: got %d", len(body))
	}
}
