package expense

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"dues-backend/internal/apperr"
	"dues-backend/internal/audit"
	"dues-backend/internal/database/dbtest"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

var actor = audit.System("test")

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(dbtest.New(t))
	svc.Now = func() time.Time { return testNow }
	return svc
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestCreateValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	for _, in := range []CreateInput{
		{Category: " ", Amount: dec("10")},
		{Category: "Food", Amount: decimal.Zero},
		{Category: "Food", Amount: dec("-5")},
	} {
		if _, err := svc.Create(ctx, in, actor); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("%+v: %v", in, err)
		}
	}

	exp, err := svc.Create(ctx, CreateInput{Category: " Food ", Amount: dec("42.5")}, actor)
	if err != nil {
		t.Fatal(err)
	}
	if exp.Category != "Food" || !exp.ExpenseDate.Equal(testNow) {
		t.Errorf("expense = %+v", exp)
	}
}

func TestListAndDelete(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	svc.Create(ctx, CreateInput{Category: "Food", Amount: dec("10"), ExpenseDate: day(2025, 1, 10)}, actor)
	svc.Create(ctx, CreateInput{Category: "Venue", Amount: dec("200"), ExpenseDate: day(2025, 2, 1)}, actor)
	last, _ := svc.Create(ctx, CreateInput{Category: "Food", Amount: dec("15"), ExpenseDate: day(2025, 3, 3)}, actor)

	rows, err := svc.List(ctx, Filter{From: day(2025, 2, 1), To: day(2025, 3, 31)})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].Category != "Venue" {
		t.Errorf("ranged list = %+v", rows)
	}
	if rows, _ := svc.List(ctx, Filter{Category: "Food"}); len(rows) != 2 {
		t.Errorf("category list = %d", len(rows))
	}

	if err := svc.Delete(ctx, last.ID, actor); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, last.ID, actor); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("second delete: %v", err)
	}
	if rows, _ := svc.List(ctx, Filter{}); len(rows) != 2 {
		t.Errorf("after delete = %d", len(rows))
	}
}

func TestMonthlySummary(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	svc.Create(ctx, CreateInput{Category: "Food", Amount: dec("10.10"), ExpenseDate: day(2025, 3, 1)}, actor)
	svc.Create(ctx, CreateInput{Category: "Food", Amount: dec("20.20"), ExpenseDate: day(2025, 3, 31)}, actor)
	svc.Create(ctx, CreateInput{Category: "Venue", Amount: dec("100"), ExpenseDate: day(2025, 3, 15)}, actor)
	svc.Create(ctx, CreateInput{Category: "Venue", Amount: dec("999"), ExpenseDate: day(2025, 4, 1)}, actor)

	sum, err := svc.MonthlySummary(ctx, 2025, time.March)
	if err != nil {
		t.Fatal(err)
	}
	if !sum.GrandTotal.Equal(dec("130.30")) {
		t.Errorf("grand total = %s", sum.GrandTotal)
	}
	if len(sum.Items) != 2 || sum.Items[0].Category != "Venue" || sum.Items[1].Count != 2 || !sum.Items[1].Total.Equal(dec("30.30")) {
		t.Errorf("items = %+v", sum.Items)
	}
	if _, err := svc.MonthlySummary(ctx, 2025, 13); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("bad month: %v", err)
	}
}

func TestHandlers(t *testing.T) {
	svc := newService(t)
	app := fiber.New(fiber.Config{ErrorHandler: apperr.ErrorHandler})
	app.Post("/expenses", CreateExpenseHandler(svc))
	app.Get("/expenses", ListExpensesHandler(svc))
	app.Delete("/expenses/:id", DeleteExpenseHandler(svc))
	app.Get("/expenses/summary/monthly", MonthlySummaryHandler(svc))

	post := func(body string) int {
		req := httptest.NewRequest("POST", "/expenses", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		return resp.StatusCode
	}
	if code := post(`{"category":"Food","amount":12.345,"expense_date":"2025-03-31"}`); code != 201 {
		t.Errorf("create status %d", code)
	}
	if code := post(`{"category":"Food","amount":0}`); code != 400 {
		t.Errorf("zero amount status %d", code)
	}
	if code := post(`{"category":"Food","amount":1,"expense_date":"31/03/2025"}`); code != 400 {
		t.Errorf("bad date status %d", code)
	}

	resp, _ := app.Test(httptest.NewRequest("GET", "/expenses?from=2025-03-31&to=2025-03-31", nil))
	var list []ExpenseResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Amount != 12.35 || list[0].ExpenseDate != "2025-03-31" {
		t.Errorf("list = %+v", list)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/expenses/summary/monthly", nil))
	var sum MonthlySummaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&sum); err != nil {
		t.Fatal(err)
	}
	if sum.Month != 3 || sum.GrandTotal != 12.35 {
		t.Errorf("summary = %+v", sum)
	}

	resp, _ = app.Test(httptest.NewRequest("DELETE", "/expenses/"+strconv.FormatUint(uint64(list[0].ID), 10), nil))
	if resp.StatusCode != 204 {
		t.Errorf("delete status %d", resp.StatusCode)
	}
}
