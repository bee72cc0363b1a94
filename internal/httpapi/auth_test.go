package httpapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/ledger"
	"github.com/tallyhq/tally/internal/storage/memory"
)

const testJWTSecret = "auth-test-secret"

func mintToken(t *testing.T, secret string, sub uuid.UUID) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   sub.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func asUser(t *testing.T, sub uuid.UUID) map[string]string {
	t.Helper()
	return map[string]string{"Authorization": "Bearer " + mintToken(t, testJWTSecret, sub)}
}

// setupAuth seeds an owner and a same-family sibling, plus an outsider in a
// different family with an account of their own.
func setupAuth(t *testing.T) (http.Handler, ledger.User, ledger.User, ledger.User, ledger.Account, ledger.Account) {
	t.Helper()
	store := memory.New()
	family := uuid.New()
	owner, err := store.CreateUser(context.Background(), ledger.User{ID: uuid.New(), FamilyID: family})
	if err != nil {
		t.Fatalf("seed owner: %v", err)
	}
	sibling, err := store.CreateUser(context.Background(), ledger.User{ID: uuid.New(), FamilyID: family})
	if err != nil {
		t.Fatalf("seed sibling: %v", err)
	}
	outsider, err := store.CreateUser(context.Background(), ledger.User{ID: uuid.New(), FamilyID: uuid.New()})
	if err != nil {
		t.Fatalf("seed outsider: %v", err)
	}
	ownerAcc := ledger.Account{ID: uuid.New(), UserID: owner.ID, Name: "Owner Current",
		Category: ledger.AccountCategoryChecking, Currency: "GBP", BalanceMinor: 10_000, Active: true}
	outsiderAcc := ledger.Account{ID: uuid.New(), UserID: outsider.ID, Name: "Outsider Current",
		Category: ledger.AccountCategoryChecking, Currency: "GBP", BalanceMinor: 10_000, Active: true}
	for _, a := range []ledger.Account{ownerAcc, outsiderAcc} {
		if _, err := store.CreateAccount(context.Background(), a); err != nil {
			t.Fatalf("seed account: %v", err)
		}
	}
	h := New(store, store, store, store, store, store, testLogger(), Options{JWTSecret: testJWTSecret}).Handler()
	return h, owner, sibling, outsider, ownerAcc, outsiderAcc
}

func balanceAs(t *testing.T, h http.Handler, sub uuid.UUID, accountID uuid.UUID) int64 {
	t.Helper()
	rr := doJSON(t, h, http.MethodGet, "/v1/accounts/"+accountID.String(), nil, asUser(t, sub))
	if rr.Code != http.StatusOK {
		t.Fatalf("get account: status %d: %s", rr.Code, rr.Body.String())
	}
	return decode[acctResp](t, rr).BalanceMinor
}

func TestAuth_RejectsMissingOrBadToken(t *testing.T) {
	h, owner, _, _, ownerAcc, _ := setupAuth(t)

	rr := doJSON(t, h, http.MethodGet, "/v1/accounts/"+ownerAcc.ID.String(), nil, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodGet, "/v1/accounts/"+ownerAcc.ID.String(), nil,
		map[string]string{"Authorization": "Bearer not-a-jwt"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rr.Code)
	}

	forged := map[string]string{"Authorization": "Bearer " + mintToken(t, "wrong-secret", owner.ID)}
	rr = doJSON(t, h, http.MethodGet, "/v1/accounts/"+ownerAcc.ID.String(), nil, forged)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong-secret token, got %d", rr.Code)
	}

	// Operational and dictionary endpoints stay open.
	if rr := doJSON(t, h, http.MethodGet, "/healthz", nil, nil); rr.Code != http.StatusOK {
		t.Fatalf("expected open healthz, got %d", rr.Code)
	}
	if rr := doJSON(t, h, http.MethodGet, "/v1/dictionary/categories", nil, nil); rr.Code != http.StatusOK {
		t.Fatalf("expected open dictionary, got %d", rr.Code)
	}
}

func TestAuth_SameUserAndFamilyAllowed(t *testing.T) {
	h, owner, sibling, _, ownerAcc, _ := setupAuth(t)

	rr := doJSON(t, h, http.MethodPost, "/v1/transactions", map[string]any{
		"user_id":           owner.ID,
		"source_account_id": ownerAcc.ID,
		"amount_minor":      1_000,
		"type":              "expense",
		"category":          "groceries",
		"date":              time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}, asUser(t, owner.ID))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 for own account, got %d: %s", rr.Code, rr.Body.String())
	}

	// A family member may record against the owner's account.
	rr = doJSON(t, h, http.MethodPost, "/v1/transactions", map[string]any{
		"user_id":           sibling.ID,
		"source_account_id": ownerAcc.ID,
		"amount_minor":      500,
		"type":              "expense",
		"category":          "groceries",
		"date":              time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	}, asUser(t, sibling.ID))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 for family member, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := balanceAs(t, h, owner.ID, ownerAcc.ID); got != 8_500 {
		t.Fatalf("expected 8500 after both expenses, got %d", got)
	}
}

func TestAuth_CrossFamilyCreateDenied(t *testing.T) {
	h, owner, _, outsider, ownerAcc, _ := setupAuth(t)

	rr := doJSON(t, h, http.MethodPost, "/v1/transactions", map[string]any{
		"user_id":           outsider.ID,
		"source_account_id": ownerAcc.ID,
		"amount_minor":      5_000,
		"type":              "expense",
		"category":          "groceries",
		"date":              time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}, asUser(t, outsider.ID))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 against a stranger's account, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := balanceAs(t, h, owner.ID, ownerAcc.ID); got != 10_000 {
		t.Fatalf("stranger's account was mutated: balance %d", got)
	}

	// Recording under someone else's user_id is refused even earlier.
	rr = doJSON(t, h, http.MethodPost, "/v1/transactions", map[string]any{
		"user_id":           owner.ID,
		"source_account_id": ownerAcc.ID,
		"amount_minor":      5_000,
		"type":              "expense",
		"category":          "groceries",
		"date":              time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}, asUser(t, outsider.ID))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when recording as another user, got %d", rr.Code)
	}
}

func TestAuth_UpdateCannotRepointToForeignAccount(t *testing.T) {
	h, owner, _, outsider, ownerAcc, outsiderAcc := setupAuth(t)

	rr := doJSON(t, h, http.MethodPost, "/v1/transactions", map[string]any{
		"user_id":           outsider.ID,
		"source_account_id": outsiderAcc.ID,
		"amount_minor":      1_000,
		"type":              "expense",
		"category":          "groceries",
		"date":              time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}, asUser(t, outsider.ID))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 on own account, got %d: %s", rr.Code, rr.Body.String())
	}
	created := decode[txResp](t, rr)

	rr = doJSON(t, h, http.MethodPatch, "/v1/transactions/"+created.ID, map[string]any{
		"source_account_id": ownerAcc.ID,
	}, asUser(t, outsider.ID))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 re-pointing at a stranger's account, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := balanceAs(t, h, owner.ID, ownerAcc.ID); got != 10_000 {
		t.Fatalf("stranger's account was mutated: balance %d", got)
	}
	if got := balanceAs(t, h, outsider.ID, outsiderAcc.ID); got != 9_000 {
		t.Fatalf("expected outsider balance unchanged at 9000, got %d", got)
	}
}

func TestAuth_FamilyListing(t *testing.T) {
	h, owner, sibling, outsider, _, _ := setupAuth(t)

	rr := doJSON(t, h, http.MethodGet, "/v1/transactions?family_id="+owner.FamilyID.String(), nil, asUser(t, sibling.ID))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for family member, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodGet, "/v1/transactions?family_id="+owner.FamilyID.String(), nil, asUser(t, outsider.ID))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for outsider, got %d", rr.Code)
	}
}
