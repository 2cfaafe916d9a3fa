package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/blackroad/shainfinity/internal/auditlog"
	"github.com/blackroad/shainfinity/internal/server/handler"
)

func setupLedgerRouter(t *testing.T) (*gin.Engine, auditlog.Ledger) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ledger := auditlog.New()
	r := gin.New()
	handler.NewLedgerHandler(ledger, zap.NewNop()).Register(r.Group("/api/v1"))
	return r, ledger
}

func getJSON(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestLedgerSummary(t *testing.T) {
	router, ledger := setupLedgerRouter(t)
	ctx := context.Background()

	if _, err := ledger.Append(ctx, "task-1", auditlog.ActionTaskRegistered, "tester", nil); err != nil {
		t.Fatal(err)
	}

	w := getJSON(t, router, "/api/v1/ledger")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Entries int    `json:"entries"`
		Root    string `json:"root"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Entries != 2 {
		t.Errorf("entries: got %d, want 2", resp.Entries)
	}
	if resp.Root == "" || resp.Root == auditlog.GenesisHash {
		t.Errorf("root should reflect the appended entry, got %q", resp.Root)
	}
}

func TestLedgerVerify_valid(t *testing.T) {
	router, ledger := setupLedgerRouter(t)
	ctx := context.Background()

	for _, subject := range []string{"a", "b", "c"} {
		if _, err := ledger.Append(ctx, subject, auditlog.ActionFileRegistered, "tester", nil); err != nil {
			t.Fatal(err)
		}
	}

	w := getJSON(t, router, "/api/v1/ledger/verify")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Valid   bool `json:"valid"`
		Entries int  `json:"entries"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Valid {
		t.Error("expected valid chain")
	}
	if resp.Entries != 4 {
		t.Errorf("entries: got %d, want 4", resp.Entries)
	}
}

func TestLedgerListEntries_window(t *testing.T) {
	router, ledger := setupLedgerRouter(t)
	ctx := context.Background()

	for _, subject := range []string{"a", "b", "c", "d"} {
		if _, err := ledger.Append(ctx, subject, auditlog.ActionFileRegistered, "tester", nil); err != nil {
			t.Fatal(err)
		}
	}

	w := getJSON(t, router, "/api/v1/ledger/entries?from=2&limit=2")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		From    int               `json:"from"`
		Total   int               `json:"total"`
		Entries []*auditlog.Entry `json:"entries"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 5 {
		t.Errorf("total: got %d, want 5", resp.Total)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(resp.Entries))
	}
	if resp.Entries[0].Index != 2 || resp.Entries[1].Index != 3 {
		t.Errorf("window indexes: got %d,%d, want 2,3", resp.Entries[0].Index, resp.Entries[1].Index)
	}
}

func TestLedgerListEntries_400_badFrom(t *testing.T) {
	router, _ := setupLedgerRouter(t)

	w := getJSON(t, router, "/api/v1/ledger/entries?from=-1")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestLedgerGetEntry_genesis(t *testing.T) {
	router, _ := setupLedgerRouter(t)

	w := getJSON(t, router, "/api/v1/ledger/entries/0")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var entry auditlog.Entry
	json.Unmarshal(w.Body.Bytes(), &entry)
	if entry.Hash != auditlog.GenesisHash {
		t.Errorf("genesis hash: got %q, want %q", entry.Hash, auditlog.GenesisHash)
	}
}

func TestLedgerGetEntry_404_outOfRange(t *testing.T) {
	router, _ := setupLedgerRouter(t)

	w := getJSON(t, router, "/api/v1/ledger/entries/99")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
