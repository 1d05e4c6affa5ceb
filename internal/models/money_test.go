package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoneyRoundsToCents(t *testing.T) {
	d := decimal.RequireFromString("10.005")
	if got := Money(d); got != 10.01 {
		t.Fatalf("got %v, want 10.01", got)
	}
	if got := Money(decimal.RequireFromString("0.1").Add(decimal.RequireFromString("0.2"))); got != 0.3 {
		t.Fatalf("got %v, want 0.3", got)
	}
}

func TestParseDueDate(t *testing.T) {
	d, err := ParseDueDate("2024-09-01")
	if err != nil {
		t.Fatal(err)
	}
	if d.Format("2006-01-02 15:04:05") != "2024-09-01 23:59:59" {
		t.Fatalf("date-only input should land at end of day, got %s", d)
	}
	if _, err := ParseDueDate("2024-09-01T10:00:00Z"); err != nil {
		t.Fatalf("rfc3339 rejected: %v", err)
	}
	if _, err := ParseDueDate(""); err == nil {
		t.Fatal("empty date accepted")
	}
	if _, err := ParseDueDate("09/01/2024"); err == nil {
		t.Fatal("unknown layout accepted")
	}
}

func TestMemberOutstandingNeverNegative(t *testing.T) {
	m := Member{DuesAmount: decimal.NewFromInt(100), AmountPaid: decimal.NewFromInt(130)}
	if !m.Outstanding().IsZero() {
		t.Fatalf("overpaid member should owe nothing, got %s", m.Outstanding())
	}
	m.AmountPaid = decimal.NewFromInt(40)
	if !m.Outstanding().Equal(decimal.NewFromInt(60)) {
		t.Fatalf("got %s, want 60", m.Outstanding())
	}
}

func TestRoleCanManage(t *testing.T) {
	if !RoleAdmin.CanManage() || !RoleTreasurer.CanManage() {
		t.Fatal("admin and treasurer must be able to manage")
	}
	if RoleMember.CanManage() {
		t.Fatal("member must not manage")
	}
	if Role("Owner").Valid() {
		t.Fatal("unknown role accepted")
	}
}

func TestDueDateRecordClasses(t *testing.T) {
	r := DueDateRecord{ClassNames: ClassNamesJSON([]string{"Tav", "Shin"})}
	if !r.HasClass("Tav") || r.HasClass("tav") {
		t.Fatal("class lookup must be exact")
	}
	if len(r.Classes()) != 2 {
		t.Fatalf("got %v", r.Classes())
	}
}
