package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"minewatch/internal/domain"
	"minewatch/internal/repository/sqlite"
	"minewatch/internal/service"
)

func newTestHandler(t *testing.T) (*Handler, *sqlite.Repository) {
	t.Helper()
	repo, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	cache := &service.Cache{}
	poller := service.NewPoller(repo, cache, 0, 0)
	return New(repo, cache, poller, nil), repo
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestAccountEndpoints(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := h.Routes()

	t.Run("create account", func(t *testing.T) {
		rec := doJSON(t, mux, "POST", "/api/accounts", CreateAccountRequest{
			Name: "loft", Address: "bc1qxyzabcdefghijklmnopqrstuv", PoolAdapter: "ckpool_btc",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		acct := decode[domain.Account](t, rec)
		if acct.Coin != "BTC" {
			t.Errorf("coin = %s, want BTC inferred from adapter", acct.Coin)
		}
		if !acct.Enabled {
			t.Error("new account should be enabled")
		}
	})

	t.Run("duplicate is a conflict", func(t *testing.T) {
		rec := doJSON(t, mux, "POST", "/api/accounts", CreateAccountRequest{
			Name: "again", Address: "bc1qxyzabcdefghijklmnopqrstuv", PoolAdapter: "ckpool_btc",
		})
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})

	t.Run("unknown adapter rejected", func(t *testing.T) {
		rec := doJSON(t, mux, "POST", "/api/accounts", CreateAccountRequest{
			Name: "x", Address: "bc1qxyzabcdefghijklmnopqrstuv", PoolAdapter: "nicehash",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("invalid address rejected", func(t *testing.T) {
		rec := doJSON(t, mux, "POST", "/api/accounts", CreateAccountRequest{
			Name: "x", Address: "short", PoolAdapter: "ckpool_btc",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("list accounts", func(t *testing.T) {
		rec := doJSON(t, mux, "GET", "/api/accounts", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		accounts := decode[[]domain.Account](t, rec)
		if len(accounts) != 1 {
			t.Errorf("accounts = %d, want 1", len(accounts))
		}
	})

	t.Run("disable account", func(t *testing.T) {
		enabled := false
		rec := doJSON(t, mux, "PATCH", "/api/accounts/1", UpdateAccountRequest{Enabled: &enabled})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		acct := decode[domain.Account](t, rec)
		if acct.Enabled {
			t.Error("account should be disabled")
		}
	})

	t.Run("non-numeric id rejected", func(t *testing.T) {
		rec := doJSON(t, mux, "GET", "/api/accounts/abc/stats", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("delete account", func(t *testing.T) {
		rec := doJSON(t, mux, "DELETE", "/api/accounts/1", nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d", rec.Code)
		}
		rec = doJSON(t, mux, "GET", "/api/accounts/1/history", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status after delete = %d, want 404", rec.Code)
		}
	})
}

func TestShareEndpoints(t *testing.T) {
	h, repo := newTestHandler(t)
	mux := h.Routes()
	ctx := t.Context()

	id, err := repo.AddAccount(ctx, "loft", "bc1qxyzabcdefghijklmnopqrstuv", "ckpool_btc", "BTC")
	if err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	base := fmt.Sprintf("/api/accounts/%d", id)

	t.Run("log and list shares", func(t *testing.T) {
		for _, diff := range []float64{1000, 2500, 400} {
			rec := doJSON(t, mux, "POST", base+"/shares", LogShareRequest{
				PoolName: "CKPool Solo", WorkerName: "rig1", Difficulty: diff,
			})
			if rec.Code != http.StatusCreated {
				t.Fatalf("log share: status = %d, body %s", rec.Code, rec.Body.String())
			}
		}

		rec := doJSON(t, mux, "GET", base+"/shares?limit=10", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("list shares: status = %d", rec.Code)
		}
		shares := decode[[]domain.ShareSubmission](t, rec)
		if len(shares) != 3 {
			t.Errorf("shares = %d, want 3", len(shares))
		}
	})

	t.Run("share statistics", func(t *testing.T) {
		rec := doJSON(t, mux, "GET", base+"/share-stats", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		stats := decode[domain.ShareStatistics](t, rec)
		if stats.TotalShares != 3 || stats.BestShare != 2500 {
			t.Errorf("stats = %+v", stats)
		}
	})

	t.Run("missing pool name rejected", func(t *testing.T) {
		rec := doJSON(t, mux, "POST", base+"/shares", LogShareRequest{Difficulty: 10})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("best share leaderboard", func(t *testing.T) {
		if _, err := repo.LogBestShare(ctx, id, "CKPool Solo", "rig1", 5e12, false); err != nil {
			t.Fatalf("LogBestShare: %v", err)
		}
		rec := doJSON(t, mux, "GET", "/api/best-shares", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		best := decode[[]domain.BestShare](t, rec)
		if len(best) != 1 || best[0].Difficulty != 5e12 {
			t.Errorf("best shares = %+v", best)
		}
	})
}

func TestDashboardWithoutAccounts(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := h.Routes()

	// No poll has run and no accounts exist: the handler refreshes
	// inline and returns an empty dashboard.
	rec := doJSON(t, mux, "GET", "/api/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	dash := decode[service.Dashboard](t, rec)
	if len(dash.Accounts) != 0 {
		t.Errorf("accounts = %d, want 0", len(dash.Accounts))
	}
	if dash.LastUpdated == "" {
		t.Error("dashboard should carry a timestamp")
	}

	// The inline refresh populated the cache.
	if h.cache.Get() == nil {
		t.Error("cache should be populated after first fetch")
	}
}

func TestMinerEndpoints(t *testing.T) {
	h, repo := newTestHandler(t)
	mux := h.Routes()
	ctx := t.Context()

	t.Run("unknown type rejected", func(t *testing.T) {
		rec := doJSON(t, mux, "POST", "/api/miners", CreateMinerRequest{
			MinerType: "whatsminer", IPAddress: "192.168.1.50",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("create fills defaults", func(t *testing.T) {
		rec := doJSON(t, mux, "POST", "/api/miners", CreateMinerRequest{
			MinerType: "cgminer", IPAddress: "192.168.1.50",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		m := decode[domain.Miner](t, rec)
		if m.APIPort != 4028 {
			t.Errorf("api_port = %d, want raw protocol default 4028", m.APIPort)
		}
		if m.Name != "cgminer_192.168.1.50" {
			t.Errorf("name = %s", m.Name)
		}
	})

	t.Run("miner types listed", func(t *testing.T) {
		rec := doJSON(t, mux, "GET", "/api/miner-types", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		types := decode[[]map[string]any](t, rec)
		if len(types) < 4 {
			t.Errorf("types = %d, want at least 4", len(types))
		}
	})

	t.Run("link lifecycle", func(t *testing.T) {
		acctID, err := repo.AddAccount(ctx, "loft", "bc1qxyzabcdefghijklmnopqrstuv", "ckpool_btc", "BTC")
		if err != nil {
			t.Fatalf("AddAccount: %v", err)
		}

		rec := doJSON(t, mux, "POST", "/api/miners/1/link-account", LinkAccountRequest{
			AccountID: acctID, PoolURL: "stratum+tcp://solo.ckpool.org:3333", WorkerName: "bc1q.rig",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("link: status = %d, body %s", rec.Code, rec.Body.String())
		}
		linkID := decode[map[string]int64](t, rec)["id"]

		rec = doJSON(t, mux, "GET", "/api/miners/1/links", nil)
		links := decode[[]domain.MinerLink](t, rec)
		if len(links) != 1 || links[0].AccountID != acctID {
			t.Fatalf("links = %+v", links)
		}

		rec = doJSON(t, mux, "DELETE", fmt.Sprintf("/api/links/%d", linkID), nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("unlink: status = %d", rec.Code)
		}
		rec = doJSON(t, mux, "GET", "/api/miners/1/links", nil)
		links = decode[[]domain.MinerLink](t, rec)
		if len(links) != 0 {
			t.Errorf("links after unlink = %+v", links)
		}
	})

	t.Run("link to missing account rejected", func(t *testing.T) {
		rec := doJSON(t, mux, "POST", "/api/miners/1/link-account", LinkAccountRequest{AccountID: 99})
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("delete miner", func(t *testing.T) {
		rec := doJSON(t, mux, "DELETE", "/api/miners/1", nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d", rec.Code)
		}
		rec = doJSON(t, mux, "GET", "/api/miners/1/info", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("info after delete = %d, want 404", rec.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("recover turns panic into 500", func(t *testing.T) {
		h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}), Recover)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})

	t.Run("cors preflight", func(t *testing.T) {
		h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("preflight should not reach the handler")
		}), CORS)
		req := httptest.NewRequest("OPTIONS", "/api/accounts", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
			t.Errorf("allow-origin = %q", got)
		}
	})
}
