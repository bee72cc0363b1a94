package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/ledger"
	"github.com/tallyhq/tally/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type acctResp struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	Currency     string `json:"currency"`
	BalanceMinor int64  `json:"balance_minor"`
	Balance      string `json:"balance"`
	Active       bool   `json:"active"`
}

type txResp struct {
	ID                   string  `json:"id"`
	UserID               string  `json:"user_id"`
	SourceAccountID      string  `json:"source_account_id"`
	DestinationAccountID *string `json:"destination_account_id"`
	AmountMinor          int64   `json:"amount_minor"`
	Type                 string  `json:"type"`
	Category             string  `json:"category"`
	IsRecurring          bool    `json:"is_recurring"`
}

type txListResp struct {
	Transactions []txResp `json:"transactions"`
	NextCursor   string   `json:"next_cursor"`
}

type errResp struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func setup(t *testing.T) (*memory.Store, http.Handler, ledger.User, ledger.Account, ledger.Account) {
	t.Helper()
	store := memory.New()
	user, err := store.CreateUser(context.Background(), ledger.User{ID: uuid.New(), FamilyID: uuid.New()})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	current := ledger.Account{ID: uuid.New(), UserID: user.ID, Name: "Current",
		Category: ledger.AccountCategoryChecking, Currency: "GBP", BalanceMinor: 100_000, Active: true}
	savings := ledger.Account{ID: uuid.New(), UserID: user.ID, Name: "Savings",
		Category: ledger.AccountCategorySavings, Currency: "GBP", BalanceMinor: 50_000, Active: true}
	for _, a := range []ledger.Account{current, savings} {
		if _, err := store.CreateAccount(context.Background(), a); err != nil {
			t.Fatalf("seed account: %v", err)
		}
	}
	h := New(store, store, store, store, store, store, testLogger(), Options{}).Handler()
	return store, h, user, current, savings
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rr.Body.String())
	}
	return out
}

func accountBalance(t *testing.T, h http.Handler, id string) int64 {
	t.Helper()
	rr := doJSON(t, h, http.MethodGet, "/v1/accounts/"+id, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get account: status %d", rr.Code)
	}
	return decode[acctResp](t, rr).BalanceMinor
}

func TestPostAccount_ValidAndInvalid(t *testing.T) {
	_, h, user, _, _ := setup(t)

	rr := doJSON(t, h, http.MethodPost, "/v1/accounts", map[string]any{
		"user_id":       user.ID,
		"name":          "Holiday Fund",
		"category":      "savings",
		"currency":      "GBP",
		"balance_minor": 2_000,
	}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[acctResp](t, rr)
	if got.Name != "Holiday Fund" || !got.Active || got.BalanceMinor != 2_000 {
		t.Fatalf("unexpected account: %+v", got)
	}
	if got.Balance != "GBP 20.00" {
		t.Fatalf("expected formatted balance, got %q", got.Balance)
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/accounts", map[string]any{
		"user_id":  user.ID,
		"name":     "Bad",
		"category": "yacht",
		"currency": "GBP",
	}, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad category, got %d", rr.Code)
	}
}

func TestPostTransaction_BalanceEffects(t *testing.T) {
	_, h, user, current, savings := setup(t)

	// Expense debits the source.
	rr := doJSON(t, h, http.MethodPost, "/v1/transactions", map[string]any{
		"user_id":           user.ID,
		"source_account_id": current.ID,
		"amount_minor":      5_000,
		"type":              "expense",
		"category":          "groceries",
		"date":              time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := accountBalance(t, h, current.ID.String()); got != 95_000 {
		t.Fatalf("expected 95000 after expense, got %d", got)
	}

	// Transfer is zero-sum across the pair.
	rr = doJSON(t, h, http.MethodPost, "/v1/transactions", map[string]any{
		"user_id":                user.ID,
		"source_account_id":      current.ID,
		"destination_account_id": savings.ID,
		"amount_minor":           10_000,
		"type":                   "transfer",
		"date":                   time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 for transfer, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := accountBalance(t, h, current.ID.String()); got != 85_000 {
		t.Fatalf("expected 85000 after transfer, got %d", got)
	}
	if got := accountBalance(t, h, savings.ID.String()); got != 60_000 {
		t.Fatalf("expected 60000 after transfer, got %d", got)
	}
}

func TestPostTransaction_InvalidTransfer(t *testing.T) {
	_, h, user, current, _ := setup(t)

	rr := doJSON(t, h, http.MethodPost, "/v1/transactions", map[string]any{
		"user_id":                user.ID,
		"source_account_id":      current.ID,
		"destination_account_id": current.ID,
		"amount_minor":           100,
		"type":                   "transfer",
		"date":                   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if e := decode[errResp](t, rr); e.Code != "invalid_transfer" {
		t.Fatalf("expected invalid_transfer, got %q", e.Code)
	}
}

func TestPostTransaction_OverdraftPolicy(t *testing.T) {
	_, h, user, _, savings := setup(t)

	body := map[string]any{
		"user_id":           user.ID,
		"source_account_id": savings.ID,
		"amount_minor":      60_000, // savings holds 50_000
		"type":              "expense",
		"date":              time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	rr := doJSON(t, h, http.MethodPost, "/v1/transactions", body, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
	if e := decode[errResp](t, rr); e.Code != "insufficient_funds" {
		t.Fatalf("expected insufficient_funds, got %q", e.Code)
	}

	// Same request with allow_overdraft goes through and the balance goes
	// negative: policy lives here, not in the ledger.
	body["allow_overdraft"] = true
	rr = doJSON(t, h, http.MethodPost, "/v1/transactions", body, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 with allow_overdraft, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := accountBalance(t, h, savings.ID.String()); got != -10_000 {
		t.Fatalf("expected -10000, got %d", got)
	}
}

func TestUpdateTransaction_TypeFlip(t *testing.T) {
	_, h, user, current, _ := setup(t)

	rr := doJSON(t, h, http.MethodPost, "/v1/transactions", map[string]any{
		"user_id":           user.ID,
		"source_account_id": current.ID,
		"amount_minor":      30_000,
		"type":              "expense",
		"date":              time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d", rr.Code)
	}
	created := decode[txResp](t, rr)
	if got := accountBalance(t, h, current.ID.String()); got != 70_000 {
		t.Fatalf("expected 70000 after expense, got %d", got)
	}

	rr = doJSON(t, h, http.MethodPatch, "/v1/transactions/"+created.ID,
		map[string]any{"type": "income"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := accountBalance(t, h, current.ID.String()); got != 130_000 {
		t.Fatalf("expected 130000 after flip to income, got %d", got)
	}
}

func TestDeleteTransactionThenAccount(t *testing.T) {
	_, h, user, current, _ := setup(t)

	rr := doJSON(t, h, http.MethodPost, "/v1/transactions", map[string]any{
		"user_id":           user.ID,
		"source_account_id": current.ID,
		"amount_minor":      1_000,
		"type":              "expense",
		"date":              time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}, nil)
	created := decode[txResp](t, rr)

	// Account delete refused while the transaction references it.
	rr = doJSON(t, h, http.MethodDelete, "/v1/accounts/"+current.ID.String(), nil, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodDelete, "/v1/transactions/"+created.ID, nil, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if got := accountBalance(t, h, current.ID.String()); got != 100_000 {
		t.Fatalf("expected restored balance, got %d", got)
	}

	rr = doJSON(t, h, http.MethodDelete, "/v1/accounts/"+current.ID.String(), nil, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 after references removed, got %d", rr.Code)
	}
}

func TestListTransactions_Pagination(t *testing.T) {
	_, h, user, current, _ := setup(t)

	for i := 0; i < 5; i++ {
		rr := doJSON(t, h, http.MethodPost, "/v1/transactions", map[string]any{
			"user_id":           user.ID,
			"source_account_id": current.ID,
			"amount_minor":      100 + i,
			"type":              "income",
			"date":              time.Date(2025, 6, 10+i, 0, 0, 0, 0, time.UTC),
		}, nil)
		if rr.Code != http.StatusCreated {
			t.Fatalf("create %d: %d", i, rr.Code)
		}
	}

	rr := doJSON(t, h, http.MethodGet,
		fmt.Sprintf("/v1/transactions?user_id=%s&limit=2", user.ID), nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: %d", rr.Code)
	}
	page1 := decode[txListResp](t, rr)
	if len(page1.Transactions) != 2 || page1.NextCursor == "" {
		t.Fatalf("unexpected first page: %+v", page1)
	}
	// Newest first.
	if page1.Transactions[0].AmountMinor != 104 {
		t.Fatalf("expected newest first, got %d", page1.Transactions[0].AmountMinor)
	}

	rr = doJSON(t, h, http.MethodGet,
		fmt.Sprintf("/v1/transactions?user_id=%s&limit=2&cursor=%s", user.ID, page1.NextCursor), nil, nil)
	page2 := decode[txListResp](t, rr)
	if len(page2.Transactions) != 2 {
		t.Fatalf("unexpected second page: %+v", page2)
	}
	if page2.Transactions[0].ID == page1.Transactions[1].ID {
		t.Fatalf("page 2 repeats the cursor row")
	}

	rr = doJSON(t, h, http.MethodGet,
		fmt.Sprintf("/v1/transactions?user_id=%s&limit=2&cursor=%s", user.ID, page2.NextCursor), nil, nil)
	page3 := decode[txListResp](t, rr)
	if len(page3.Transactions) != 1 || page3.NextCursor != "" {
		t.Fatalf("unexpected last page: %+v", page3)
	}
}

func TestListTransactions_RequiresExactlyOneFilter(t *testing.T) {
	_, h, user, current, _ := setup(t)

	rr := doJSON(t, h, http.MethodGet, "/v1/transactions", nil, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 with no filter, got %d", rr.Code)
	}
	rr = doJSON(t, h, http.MethodGet,
		fmt.Sprintf("/v1/transactions?user_id=%s&account_id=%s", user.ID, current.ID), nil, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 with two filters, got %d", rr.Code)
	}
}

func TestListTransactions_ByFamily(t *testing.T) {
	store, h, user, current, _ := setup(t)

	partner, err := store.CreateUser(context.Background(), ledger.User{ID: uuid.New(), FamilyID: user.FamilyID})
	if err != nil {
		t.Fatal(err)
	}
	pAcc := ledger.Account{ID: uuid.New(), UserID: partner.ID, Name: "Partner",
		Category: ledger.AccountCategoryChecking, Currency: "GBP", BalanceMinor: 10_000, Active: true}
	if _, err := store.CreateAccount(context.Background(), pAcc); err != nil {
		t.Fatal(err)
	}

	for _, p := range []struct {
		user uuid.UUID
		acc  uuid.UUID
	}{{user.ID, current.ID}, {partner.ID, pAcc.ID}} {
		rr := doJSON(t, h, http.MethodPost, "/v1/transactions", map[string]any{
			"user_id":           p.user,
			"source_account_id": p.acc,
			"amount_minor":      500,
			"type":              "income",
			"date":              time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		}, nil)
		if rr.Code != http.StatusCreated {
			t.Fatalf("create: %d", rr.Code)
		}
	}

	rr := doJSON(t, h, http.MethodGet, "/v1/transactions?family_id="+user.FamilyID.String(), nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list by family: %d", rr.Code)
	}
	got := decode[txListResp](t, rr)
	if len(got.Transactions) != 2 {
		t.Fatalf("expected both members' transactions, got %d", len(got.Transactions))
	}
}

func TestRecurrenceEndpoints(t *testing.T) {
	_, h, user, current, _ := setup(t)

	rr := doJSON(t, h, http.MethodPost, "/v1/transactions", map[string]any{
		"user_id":           user.ID,
		"source_account_id": current.ID,
		"amount_minor":      2_000,
		"type":              "expense",
		"category":          "rent",
		"date":              time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		"is_recurring":      true,
		"frequency":         "monthly",
		"frequency_day":     31,
	}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create recurring: %d: %s", rr.Code, rr.Body.String())
	}
	created := decode[txResp](t, rr)

	// Day 31 exists in March but not in April.
	rr = doJSON(t, h, http.MethodGet, "/v1/transactions/"+created.ID+"/occurs?date=2025-03-31", nil, nil)
	if got := decode[map[string]any](t, rr); got["occurs"] != true {
		t.Fatalf("expected occurrence on 2025-03-31: %v", got)
	}
	rr = doJSON(t, h, http.MethodGet, "/v1/transactions/"+created.ID+"/occurs?date=2025-04-30", nil, nil)
	if got := decode[map[string]any](t, rr); got["occurs"] != false {
		t.Fatalf("expected no occurrence on 2025-04-30: %v", got)
	}

	rr = doJSON(t, h, http.MethodGet,
		"/v1/transactions/"+created.ID+"/occurrences?from=2025-01-01&to=2025-05-31", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("occurrences: %d", rr.Code)
	}
	got := decode[map[string]any](t, rr)
	// Jan, Mar, May have a day 31; Feb and Apr are skipped.
	if got["count"] != float64(3) {
		t.Fatalf("expected 3 occurrences, got %v", got["count"])
	}
}

func TestTransactionOccurrences_TimestampBoundsCountWholeDays(t *testing.T) {
	_, h, user, current, _ := setup(t)

	rr := doJSON(t, h, http.MethodPost, "/v1/transactions", map[string]any{
		"user_id":               user.ID,
		"source_account_id":     current.ID,
		"amount_minor":          700,
		"type":                  "expense",
		"category":              "subscriptions",
		"date":                  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		"is_recurring":          true,
		"frequency":             "custom",
		"frequency_custom_days": 7,
	}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create recurring: %d: %s", rr.Code, rr.Body.String())
	}
	created := decode[txResp](t, rr)

	// RFC3339 bounds with partial-day offsets still span Jan 1 through Jan 8
	// inclusive: 8 calendar days, two exact occurrences.
	rr = doJSON(t, h, http.MethodGet, "/v1/transactions/"+created.ID+
		"/occurrences?from=2025-01-01T23:30:00Z&to=2025-01-08T01:00:00Z", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("occurrences: %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[map[string]any](t, rr)
	if got["count"] != float64(2) {
		t.Fatalf("expected 2 occurrences, got %v", got["count"])
	}
	want := 8.0 / 7.0
	est, ok := got["estimate"].(float64)
	if !ok || est < want-1e-9 || est > want+1e-9 {
		t.Fatalf("expected estimate %v, got %v", want, got["estimate"])
	}
}

func TestForecastEndpoint(t *testing.T) {
	_, h, user, current, _ := setup(t)

	// A recurring expense on a fixed day shows up as a balance drop.
	rr := doJSON(t, h, http.MethodPost, "/v1/transactions", map[string]any{
		"user_id":           user.ID,
		"source_account_id": current.ID,
		"amount_minor":      5_000,
		"type":              "expense",
		"category":          "rent",
		"date":              time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		"is_recurring":      true,
		"frequency":         "custom",
		"frequency_custom_days": 7,
	}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create recurring: %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodGet,
		"/v1/forecast?user_id="+user.ID.String()+"&days=30&baseline=false", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("forecast: %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[struct {
		Points []forecastPointResponse `json:"points"`
	}](t, rr)
	if len(got.Points) != 31 {
		t.Fatalf("expected 31 points (today + 30), got %d", len(got.Points))
	}
	first := got.Points[0]
	last := got.Points[len(got.Points)-1]
	if first.BalanceMinor != 145_000 {
		t.Fatalf("expected starting balance 145000 (both accounts, expense applied), got %d", first.BalanceMinor)
	}
	if last.BalanceMinor >= first.BalanceMinor {
		t.Fatalf("expected recurring expense to lower the projection: %d -> %d",
			first.BalanceMinor, last.BalanceMinor)
	}
}

func TestIdempotentCreateReplays(t *testing.T) {
	_, h, user, current, _ := setup(t)

	body := map[string]any{
		"user_id":           user.ID,
		"source_account_id": current.ID,
		"amount_minor":      1_000,
		"type":              "expense",
		"date":              time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	hdr := map[string]string{"Idempotency-Key": "retry-123"}

	rr := doJSON(t, h, http.MethodPost, "/v1/transactions", body, hdr)
	if rr.Code != http.StatusCreated {
		t.Fatalf("first create: %d", rr.Code)
	}
	first := decode[txResp](t, rr)

	rr = doJSON(t, h, http.MethodPost, "/v1/transactions", body, hdr)
	if rr.Code != http.StatusCreated {
		t.Fatalf("replay: %d", rr.Code)
	}
	if rr.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("expected replay marker header")
	}
	second := decode[txResp](t, rr)
	if second.ID != first.ID {
		t.Fatalf("replay returned a different transaction: %s vs %s", second.ID, first.ID)
	}
	// The ledger was written once.
	if got := accountBalance(t, h, current.ID.String()); got != 99_000 {
		t.Fatalf("expected single debit, got balance %d", got)
	}
}

func TestDictionaryEndpoints(t *testing.T) {
	_, h, _, _, _ := setup(t)

	rr := doJSON(t, h, http.MethodGet, "/v1/dictionary/categories?type=expense", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("categories: %d", rr.Code)
	}
	got := decode[map[string][]map[string]string](t, rr)
	if len(got["categories"]) == 0 {
		t.Fatalf("expected curated expense categories")
	}

	rr = doJSON(t, h, http.MethodGet, "/v1/dictionary/account-categories", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("account categories: %d", rr.Code)
	}
}

func TestAuxEndpoints(t *testing.T) {
	_, h, _, _, _ := setup(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := doJSON(t, h, http.MethodGet, path, nil, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: %d", path, rr.Code)
		}
	}
	rr := doJSON(t, h, http.MethodGet, "/metrics", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics: %d", rr.Code)
	}
}
