package reconcile

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"dues-backend/internal/apperr"
	"dues-backend/internal/database/dbtest"
	"dues-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var testNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptrTime(t time.Time) *time.Time { return &t }

func seedMember(t *testing.T, db *gorm.DB, name string, dues string, due *time.Time) *models.Member {
	t.Helper()
	m := &models.Member{
		Name:          name,
		Email:         name + "@example.org",
		Role:          models.RoleMember,
		DuesAmount:    dec(dues),
		AmountPaid:    decimal.Zero,
		PaymentStatus: models.PaymentPending,
		DueDate:       due,
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("create member: %v", err)
	}
	return m
}

func seedTx(t *testing.T, db *gorm.DB, memberID *uint, amount string, status models.TransactionStatus, at time.Time) *models.Transaction {
	t.Helper()
	tx := &models.Transaction{
		MemberID:        memberID,
		PayerName:       "payer",
		Amount:          dec(amount),
		PaymentMethod:   models.MethodCash,
		Status:          status,
		TransactionDate: at,
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("create tx: %v", err)
	}
	return tx
}

func TestDeriveStatus(t *testing.T) {
	past := testNow.Add(-time.Hour)
	future := testNow.Add(time.Hour)

	cases := []struct {
		name string
		paid string
		dues string
		due  *time.Time
		want models.PaymentStatus
	}{
		{"zero dues is paid", "0", "0", &past, models.PaymentPaid},
		{"exact payment", "180", "180", &past, models.PaymentPaid},
		{"overpaid", "200", "180", nil, models.PaymentPaid},
		{"partial before due", "100", "180", &future, models.PaymentPending},
		{"partial after due", "100", "180", &past, models.PaymentOverdue},
		{"no due date", "0", "180", nil, models.PaymentPending},
		{"due exactly now", "0", "180", ptrTime(testNow), models.PaymentPending},
	}
	for _, tc := range cases {
		got := DeriveStatus(dec(tc.paid), dec(tc.dues), tc.due, testNow)
		if got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestRecomputeSumsCompletedOnly(t *testing.T) {
	db := dbtest.New(t)
	m := seedMember(t, db, "alex", "180", ptrTime(testNow.AddDate(0, 1, 0)))

	seedTx(t, db, &m.ID, "100", models.TxCompleted, testNow)
	seedTx(t, db, &m.ID, "50", models.TxPending, testNow)
	seedTx(t, db, &m.ID, "30", models.TxFailed, testNow)

	var out *Outcome
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = RecomputeMember(tx, m.ID, testNow, LedgerEvent)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Member.AmountPaid.Equal(dec("100")) || out.Member.PaymentStatus != models.PaymentPending {
		t.Fatalf("got paid=%s status=%s", out.Member.AmountPaid, out.Member.PaymentStatus)
	}
	if !out.PaidChanged {
		t.Fatal("expected paid change to be reported")
	}

	var stored models.Member
	db.First(&stored, m.ID)
	if !stored.AmountPaid.Equal(dec("100")) {
		t.Fatalf("stored paid %s", stored.AmountPaid)
	}
}

func TestOverrideSurvivesRefreshButNotLedgerEvent(t *testing.T) {
	db := dbtest.New(t)
	m := seedMember(t, db, "sarah", "150", ptrTime(testNow.AddDate(0, 0, -1)))
	db.Model(m).Updates(map[string]any{"payment_status": models.PaymentPaid, "status_overridden": true})

	engine := NewEngine(db, NewLocker(), decimal.NewFromInt(12000))
	engine.Now = func() time.Time { return testNow }

	got, err := engine.Recompute(context.Background(), m.ID, Refresh)
	if err != nil {
		t.Fatal(err)
	}
	if got.PaymentStatus != models.PaymentPaid || !got.StatusOverridden {
		t.Fatalf("refresh replaced override: %s overridden=%t", got.PaymentStatus, got.StatusOverridden)
	}

	got, err = engine.Recompute(context.Background(), m.ID, LedgerEvent)
	if err != nil {
		t.Fatal(err)
	}
	if got.PaymentStatus != models.PaymentOverdue || got.StatusOverridden {
		t.Fatalf("ledger event kept override: %s overridden=%t", got.PaymentStatus, got.StatusOverridden)
	}
}

func TestRecomputeFlagsCorruptAmount(t *testing.T) {
	db := dbtest.New(t)
	m := seedMember(t, db, "michael", "180", nil)
	other := seedMember(t, db, "emily", "180", nil)
	seedTx(t, db, &m.ID, "-5", models.TxCompleted, testNow)
	seedTx(t, db, &other.ID, "20", models.TxCompleted, testNow)

	engine := NewEngine(db, NewLocker(), decimal.Zero)
	engine.Now = func() time.Time { return testNow }

	_, err := engine.Recompute(context.Background(), m.ID, LedgerEvent)
	if !apperr.Is(err, apperr.KindInternalInconsistency) {
		t.Fatalf("expected internal inconsistency, got %v", err)
	}

	res, err := engine.RefreshAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Checked != 2 || len(res.Failures) != 1 || res.Failures[m.ID] == "" {
		t.Fatalf("unexpected refresh result %+v", res)
	}
	var ok models.Member
	db.First(&ok, other.ID)
	if !ok.AmountPaid.Equal(dec("20")) {
		t.Fatalf("healthy member not refreshed: %s", ok.AmountPaid)
	}
}

func TestRecomputeUnknownMember(t *testing.T) {
	db := dbtest.New(t)
	engine := NewEngine(db, NewLocker(), decimal.Zero)
	if _, err := engine.Recompute(context.Background(), 999, LedgerEvent); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRefreshAllMarksPastDueOverdue(t *testing.T) {
	db := dbtest.New(t)
	late := seedMember(t, db, "james", "180", ptrTime(testNow.AddDate(0, 0, -2)))
	fine := seedMember(t, db, "lisa", "180", ptrTime(testNow.AddDate(0, 0, 2)))

	engine := NewEngine(db, NewLocker(), decimal.Zero)
	engine.Now = func() time.Time { return testNow }

	res, err := engine.RefreshAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed != 1 {
		t.Fatalf("changed %d, want 1", res.Changed)
	}
	var a, b models.Member
	db.First(&a, late.ID)
	db.First(&b, fine.ID)
	if a.PaymentStatus != models.PaymentOverdue || b.PaymentStatus != models.PaymentPending {
		t.Fatalf("got %s and %s", a.PaymentStatus, b.PaymentStatus)
	}
}

func TestComputeStats(t *testing.T) {
	db := dbtest.New(t)
	engine := NewEngine(db, NewLocker(), dec("12000"))
	engine.Now = func() time.Time { return testNow }
	ctx := context.Background()

	paid := seedMember(t, db, "paid", "180", ptrTime(testNow.AddDate(0, 1, 0)))
	partial := seedMember(t, db, "partial", "150", ptrTime(testNow.AddDate(0, 0, -1)))
	seedMember(t, db, "none", "150", ptrTime(testNow.AddDate(0, 1, 0)))
	seedMember(t, db, "free", "0", nil)

	seedTx(t, db, &paid.ID, "180", models.TxCompleted, testNow)
	seedTx(t, db, &partial.ID, "50", models.TxCompleted, testNow)
	seedTx(t, db, nil, "25", models.TxCompleted, testNow) // detached
	seedTx(t, db, &partial.ID, "75", models.TxPending, testNow)

	for _, id := range []uint{paid.ID, partial.ID} {
		if _, err := engine.Recompute(ctx, id, LedgerEvent); err != nil {
			t.Fatal(err)
		}
	}
	db.Create(&models.Expense{Category: "Events", Amount: dec("300.25"), ExpenseDate: testNow})

	st, err := engine.ComputeStats(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if st.TotalMembers != 4 || st.PaidMembers != 2 || st.OverdueMembers != 1 || st.PendingMembers != 1 {
		t.Fatalf("counts %+v", st)
	}
	checks := map[string][2]decimal.Decimal{
		"expected":         {st.TotalExpected, dec("480")},
		"collected":        {st.TotalCollected, dec("255")},
		"outstanding":      {st.Outstanding, dec("250")},
		"expenses":         {st.TotalExpenses, dec("300.25")},
		"net":              {st.NetIncome, dec("-45.25")},
		"budget_remaining": {st.BudgetRemaining, dec("11699.75")},
	}
	for name, c := range checks {
		if !c[0].Equal(c[1]) {
			t.Errorf("%s: got %s, want %s", name, c[0], c[1])
		}
	}
	// 230 / 480 * 100
	if got := models.Money(st.CollectionRate); got != 47.92 {
		t.Errorf("collection rate %v", got)
	}
}

func TestComputeMonthlyBucketsAndOmitsEmptyMonths(t *testing.T) {
	db := dbtest.New(t)
	engine := NewEngine(db, NewLocker(), decimal.Zero)
	ctx := context.Background()
	m := seedMember(t, db, "alex", "500", nil)

	jan := time.Date(2025, 1, 31, 23, 0, 0, 0, time.UTC)
	mar := time.Date(2025, 3, 1, 0, 30, 0, 0, time.UTC)
	seedTx(t, db, &m.ID, "100", models.TxCompleted, jan)
	seedTx(t, db, &m.ID, "80.50", models.TxCompleted, mar)
	seedTx(t, db, nil, "20", models.TxCompleted, mar)
	seedTx(t, db, &m.ID, "999", models.TxFailed, mar)
	seedTx(t, db, &m.ID, "40", models.TxCompleted, time.Date(2024, 12, 5, 0, 0, 0, 0, time.UTC))
	db.Create(&models.Expense{Category: "Food", Amount: dec("60"), ExpenseDate: mar})

	points, err := engine.ComputeMonthly(ctx, 2025)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 2 || points[0].Month != "2025-01" || points[1].Month != "2025-03" {
		t.Fatalf("unexpected months %+v", points)
	}
	if !points[1].Income.Equal(dec("100.5")) || !points[1].Expenses.Equal(dec("60")) {
		t.Fatalf("march bucket %+v", points[1])
	}

	all, err := engine.ComputeMonthly(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	income, _ := sumPoints(all)
	st, err := engine.ComputeStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !income.Equal(st.TotalCollected) {
		t.Fatalf("monthly income %s != total collected %s", income, st.TotalCollected)
	}
	if all[0].Month != "2024-12" {
		t.Fatalf("months not ascending: %+v", all)
	}
}

func TestLockerSerializesSameMember(t *testing.T) {
	l := NewLocker()
	var mu sync.Mutex
	inside := 0
	maxInside := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock(7)
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("max concurrent holders %d", maxInside)
	}
	if len(l.locks) != 0 {
		t.Fatalf("locks not released: %d", len(l.locks))
	}
}

func TestStatsHandlersRoundMoney(t *testing.T) {
	db := dbtest.New(t)
	engine := NewEngine(db, NewLocker(), dec("100"))
	m := seedMember(t, db, "alex", "3", nil)
	seedTx(t, db, &m.ID, "1", models.TxCompleted, testNow)
	if _, err := engine.Recompute(context.Background(), m.ID, LedgerEvent); err != nil {
		t.Fatal(err)
	}

	app := fiber.New(fiber.Config{ErrorHandler: apperr.ErrorHandler})
	app.Get("/stats", StatsHandler(engine))
	app.Get("/stats/monthly", MonthlyStatsHandler(engine))

	resp, err := app.Test(httptest.NewRequest("GET", "/stats", nil))
	if err != nil {
		t.Fatal(err)
	}
	var body StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.CollectionRate != 33.33 || body.TotalCollected != 1 {
		t.Fatalf("unexpected body %+v", body)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/stats/monthly?year=-1", nil))
	if resp.StatusCode != 400 {
		t.Fatalf("bad year status %d", resp.StatusCode)
	}
}
