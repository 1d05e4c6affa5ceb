package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"dues-backend/internal/apperr"
	"dues-backend/internal/audit"
	"dues-backend/internal/auth"
	"dues-backend/internal/database/dbtest"
	"dues-backend/internal/models"
	"dues-backend/internal/reconcile"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

var testNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

var actor = audit.System("test")

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := dbtest.New(t)
	svc := NewService(db, reconcile.NewLocker())
	svc.Now = func() time.Time { return testNow }
	return svc, db
}

func addMember(t *testing.T, db *gorm.DB, name string, dues string, due time.Time) *models.Member {
	t.Helper()
	class := "Tav"
	m := &models.Member{
		Name:          name,
		Email:         strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.org",
		Role:          models.RoleMember,
		MemberClass:   &class,
		DuesAmount:    dec(dues),
		AmountPaid:    decimal.Zero,
		PaymentStatus: models.PaymentPending,
		DueDate:       &due,
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatal(err)
	}
	return m
}

func reload(t *testing.T, db *gorm.DB, id uint) models.Member {
	t.Helper()
	var m models.Member
	if err := db.First(&m, id).Error; err != nil {
		t.Fatal(err)
	}
	return m
}

func record(t *testing.T, svc *Service, memberID uint, amount string, status models.TransactionStatus) *models.Transaction {
	t.Helper()
	tx, err := svc.Record(context.Background(), RecordInput{
		MemberID: memberID,
		Amount:   dec(amount),
		Status:   status,
	}, actor)
	if err != nil {
		t.Fatalf("record %s: %v", amount, err)
	}
	return tx
}

func TestPartialPaymentsThenDelete(t *testing.T) {
	svc, db := newService(t)
	m := addMember(t, db, "Alex Johnson", "180", testNow.AddDate(0, 1, 0))

	record(t, svc, m.ID, "100", models.TxCompleted)
	got := reload(t, db, m.ID)
	if !got.AmountPaid.Equal(dec("100")) || got.PaymentStatus != models.PaymentPending {
		t.Fatalf("after 100: paid=%s status=%s", got.AmountPaid, got.PaymentStatus)
	}

	second := record(t, svc, m.ID, "80", models.TxCompleted)
	got = reload(t, db, m.ID)
	if !got.AmountPaid.Equal(dec("180")) || got.PaymentStatus != models.PaymentPaid {
		t.Fatalf("after 80: paid=%s status=%s", got.AmountPaid, got.PaymentStatus)
	}

	if err := svc.Delete(context.Background(), second.ID, actor); err != nil {
		t.Fatal(err)
	}
	got = reload(t, db, m.ID)
	if !got.AmountPaid.Equal(dec("100")) || got.PaymentStatus != models.PaymentPending {
		t.Fatalf("after delete: paid=%s status=%s", got.AmountPaid, got.PaymentStatus)
	}
}

func TestPendingAndFailedDoNotCount(t *testing.T) {
	svc, db := newService(t)
	m := addMember(t, db, "Sarah Chen", "150", testNow.AddDate(0, 0, -1))

	pending := record(t, svc, m.ID, "150", models.TxPending)
	record(t, svc, m.ID, "150", models.TxFailed)

	got := reload(t, db, m.ID)
	if !got.AmountPaid.IsZero() {
		t.Fatalf("paid = %s", got.AmountPaid)
	}

	if _, err := svc.MarkCompleted(context.Background(), pending.ID, actor); err != nil {
		t.Fatal(err)
	}
	got = reload(t, db, m.ID)
	if !got.AmountPaid.Equal(dec("150")) || got.PaymentStatus != models.PaymentPaid {
		t.Errorf("after complete: paid=%s status=%s", got.AmountPaid, got.PaymentStatus)
	}
}

func TestTransitionsOnlyFromPending(t *testing.T) {
	svc, db := newService(t)
	m := addMember(t, db, "Michael Brown", "150", testNow.AddDate(0, 1, 0))
	ctx := context.Background()

	done := record(t, svc, m.ID, "50", models.TxCompleted)
	if _, err := svc.MarkFailed(ctx, done.ID, actor); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("fail completed: %v", err)
	}

	p := record(t, svc, m.ID, "50", models.TxPending)
	failed, err := svc.MarkFailed(ctx, p.ID, actor)
	if err != nil || failed.Status != models.TxFailed {
		t.Fatalf("mark failed: %+v %v", failed, err)
	}
	if _, err := svc.MarkCompleted(ctx, p.ID, actor); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("complete failed: %v", err)
	}
	if _, err := svc.MarkCompleted(ctx, 9999, actor); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("unknown id: %v", err)
	}
}

func TestRecordValidation(t *testing.T) {
	svc, db := newService(t)
	m := addMember(t, db, "Emily Davis", "120", testNow.AddDate(0, 1, 0))
	ctx := context.Background()

	cases := []struct {
		name string
		in   RecordInput
		kind apperr.Kind
	}{
		{"zero amount", RecordInput{MemberID: m.ID, Amount: decimal.Zero}, apperr.KindValidation},
		{"negative amount", RecordInput{MemberID: m.ID, Amount: dec("-5")}, apperr.KindValidation},
		{"bad status", RecordInput{MemberID: m.ID, Amount: dec("5"), Status: "Refunded"}, apperr.KindValidation},
		{"unknown member", RecordInput{MemberID: 4242, Amount: dec("5")}, apperr.KindNotFound},
	}
	for _, tc := range cases {
		if _, err := svc.Record(ctx, tc.in, actor); !apperr.Is(err, tc.kind) {
			t.Errorf("%s: got %v, want %s", tc.name, err, tc.kind)
		}
	}
}

func TestExternalRefIsUnique(t *testing.T) {
	svc, db := newService(t)
	m := addMember(t, db, "James Wilson", "180", testNow.AddDate(0, 1, 0))
	ctx := context.Background()

	in := RecordInput{MemberID: m.ID, Amount: dec("180"), Status: models.TxPending, ExternalRef: "dues-1-abc"}
	if _, err := svc.Record(ctx, in, actor); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Record(ctx, in, actor); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("duplicate ref: %v", err)
	}

	tx, err := svc.MarkByExternalRef(ctx, "dues-1-abc", models.TxCompleted, actor)
	if err != nil || tx.Status != models.TxCompleted {
		t.Fatalf("mark by ref: %+v %v", tx, err)
	}
	if _, err := svc.MarkByExternalRef(ctx, "dues-1-abc", models.TxCompleted, actor); err != nil {
		t.Errorf("repeat should be a no-op: %v", err)
	}
	if got := reload(t, db, m.ID); !got.AmountPaid.Equal(dec("180")) {
		t.Errorf("paid = %s", got.AmountPaid)
	}
}

func TestExternalRefRaceIsConflict(t *testing.T) {
	svc, db := newService(t)
	m := addMember(t, db, "James Wilson", "180", testNow.AddDate(0, 1, 0))
	ref := "dues-1-race"
	dbtest.InterleaveCreate(t, db, "transactions", &models.Transaction{
		PayerName: "Webhook", Amount: dec("180"), PaymentMethod: "sandbox",
		Status: models.TxCompleted, TransactionDate: testNow, ExternalRef: &ref,
	})

	_, err := svc.Record(context.Background(), RecordInput{MemberID: m.ID, Amount: dec("180"), ExternalRef: ref}, actor)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("err = %v", err)
	}
	if got := reload(t, db, m.ID); !got.AmountPaid.IsZero() {
		t.Errorf("paid = %s", got.AmountPaid)
	}
}

func TestCompletedEventClearsOverride(t *testing.T) {
	svc, db := newService(t)
	m := addMember(t, db, "Lisa Anderson", "180", testNow.AddDate(0, 1, 0))
	db.Model(m).Updates(map[string]any{"payment_status": models.PaymentOverdue, "status_overridden": true})

	record(t, svc, m.ID, "20", models.TxCompleted)
	got := reload(t, db, m.ID)
	if got.StatusOverridden || got.PaymentStatus != models.PaymentPending {
		t.Errorf("status=%s overridden=%v", got.PaymentStatus, got.StatusOverridden)
	}
}

func TestConcurrentRecordsKeepSum(t *testing.T) {
	svc, db := newService(t)
	m := addMember(t, db, "David Martinez", "500", testNow.AddDate(0, 1, 0))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Record(context.Background(), RecordInput{MemberID: m.ID, Amount: dec("12.5")}, actor)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	got := reload(t, db, m.ID)
	if !got.AmountPaid.Equal(dec("250")) {
		t.Errorf("paid = %s, want 250", got.AmountPaid)
	}
}

func TestDetachMemberFreezesPayer(t *testing.T) {
	svc, db := newService(t)
	m := addMember(t, db, "Jennifer Garcia", "180", testNow.AddDate(0, 1, 0))
	record(t, svc, m.ID, "90", models.TxCompleted)
	record(t, svc, m.ID, "10", models.TxPending)

	var n int64
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		n, err = DetachMember(tx, m)
		if err != nil {
			return err
		}
		return tx.Delete(&models.Member{}, m.ID).Error
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("detached %d", n)
	}

	txs, err := svc.ListAll(context.Background(), Filter{Detached: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 2 {
		t.Fatalf("detached rows = %d", len(txs))
	}
	for _, tx := range txs {
		if tx.MemberID != nil || tx.PayerName != "Jennifer Garcia" || !tx.Detached() {
			t.Errorf("row %+v", tx)
		}
	}

	if _, err := svc.ListFor(context.Background(), m.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("list for deleted member: %v", err)
	}
}

func TestExportXLSX(t *testing.T) {
	svc, db := newService(t)
	m := addMember(t, db, "Robert Taylor", "180", testNow.AddDate(0, 1, 0))
	record(t, svc, m.ID, "100.10", models.TxCompleted)
	record(t, svc, m.ID, "0.20", models.TxCompleted)
	record(t, svc, m.ID, "50", models.TxPending)

	data, err := svc.ExportXLSX(context.Background(), Filter{})
	if err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := f.GetRows("Transactions")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 6 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0][0] != "ID" || rows[1][2] != "Robert Taylor" {
		t.Errorf("header/payer = %v / %v", rows[0], rows[1])
	}
	total := rows[5]
	if total[3] != "Completed total" || total[4] != "100.3" {
		t.Errorf("total row = %v", total)
	}
}

func TestListHandlerScopesMembers(t *testing.T) {
	svc, db := newService(t)
	alex := addMember(t, db, "Alex Johnson", "180", testNow.AddDate(0, 1, 0))
	sarah := addMember(t, db, "Sarah Chen", "150", testNow.AddDate(0, 1, 0))
	record(t, svc, alex.ID, "10", models.TxCompleted)
	record(t, svc, sarah.ID, "20", models.TxCompleted)
	record(t, svc, sarah.ID, "30", models.TxCompleted)

	guard := auth.NewJWTGuard("0123456789abcdef0123456789abcdef")
	app := fiber.New(fiber.Config{ErrorHandler: apperr.ErrorHandler})
	api := app.Group("", auth.JWTMiddleware(guard))
	api.Get("/transactions", ListTransactionsHandler(svc))
	api.Post("/transactions", auth.RequireManager(), CreateTransactionHandler(svc))

	alexTok, _ := guard.Issue(alex)
	adminTok, _ := guard.Issue(&models.Member{ID: 99, Name: "Admin", Role: models.RoleAdmin})

	list := func(tok, query string) []TransactionResponse {
		req := httptest.NewRequest("GET", "/transactions"+query, nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != 200 {
			t.Fatalf("status %d", resp.StatusCode)
		}
		var out []TransactionResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		return out
	}

	if got := list(alexTok, "?member_id="+itoa(sarah.ID)); len(got) != 1 || *got[0].MemberID != alex.ID {
		t.Errorf("member saw %+v", got)
	}
	if got := list(adminTok, ""); len(got) != 3 {
		t.Errorf("admin saw %d", len(got))
	}
	if got := list(adminTok, "?member_id="+itoa(sarah.ID)); len(got) != 2 {
		t.Errorf("admin filter saw %d", len(got))
	}

	body := `{"member_id":` + itoa(alex.ID) + `,"amount":25.5,"payment_method":"cash"}`
	req := httptest.NewRequest("POST", "/transactions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+alexTok)
	resp, _ := app.Test(req)
	if resp.StatusCode != 403 {
		t.Errorf("member create status %d", resp.StatusCode)
	}

	req = httptest.NewRequest("POST", "/transactions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminTok)
	resp, _ = app.Test(req)
	if resp.StatusCode != 201 {
		t.Errorf("admin create status %d", resp.StatusCode)
	}
	if got := reload(t, db, alex.ID); !got.AmountPaid.Equal(dec("35.5")) {
		t.Errorf("alex paid = %s", got.AmountPaid)
	}
}

func TestGetHandlerScopesMembers(t *testing.T) {
	svc, db := newService(t)
	alex := addMember(t, db, "Alex Johnson", "180", testNow.AddDate(0, 1, 0))
	sarah := addMember(t, db, "Sarah Chen", "150", testNow.AddDate(0, 1, 0))
	own := record(t, svc, alex.ID, "10", models.TxCompleted)
	other := record(t, svc, sarah.ID, "20", models.TxCompleted)

	guard := auth.NewJWTGuard("0123456789abcdef0123456789abcdef")
	app := fiber.New(fiber.Config{ErrorHandler: apperr.ErrorHandler})
	api := app.Group("", auth.JWTMiddleware(guard))
	api.Get("/transactions/:id<int>", GetTransactionHandler(svc))

	alexTok, _ := guard.Issue(alex)
	for _, tc := range []struct {
		id   uint
		want int
	}{
		{own.ID, 200},
		{other.ID, 403},
		{9999, 404},
	} {
		req := httptest.NewRequest("GET", "/transactions/"+itoa(tc.id), nil)
		req.Header.Set("Authorization", "Bearer "+alexTok)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != tc.want {
			t.Errorf("GET %d status %d, want %d", tc.id, resp.StatusCode, tc.want)
		}
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
