// Package handler exposes the REST API: account CRUD, cached and live
// pool stats, telemetry history, device management and network scans.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"minewatch/internal/domain"
	"minewatch/internal/miner"
	"minewatch/internal/pool"
	"minewatch/internal/repository/sqlite"
	"minewatch/internal/service"
)

// Handler serves the HTTP API
type Handler struct {
	repo      *sqlite.Repository
	cache     *service.Cache
	poller    *service.Poller
	discovery *service.Discovery
}

// New creates an API handler
func New(repo *sqlite.Repository, cache *service.Cache, poller *service.Poller, discovery *service.Discovery) *Handler {
	return &Handler{repo: repo, cache: cache, poller: poller, discovery: discovery}
}

// Routes builds the API route table
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Pool metadata
	mux.HandleFunc("GET /api/pools", h.ListPools)

	// Account endpoints
	mux.HandleFunc("GET /api/accounts", h.ListAccounts)
	mux.HandleFunc("POST /api/accounts", h.CreateAccount)
	mux.HandleFunc("PATCH /api/accounts/{id}", h.UpdateAccount)
	mux.HandleFunc("DELETE /api/accounts/{id}", h.DeleteAccount)
	mux.HandleFunc("GET /api/accounts/{id}/stats", h.AccountStats)
	mux.HandleFunc("GET /api/accounts/{id}/history", h.AccountHistory)
	mux.HandleFunc("GET /api/accounts/{id}/shares", h.ListShares)
	mux.HandleFunc("POST /api/accounts/{id}/shares", h.LogShare)
	mux.HandleFunc("GET /api/accounts/{id}/share-stats", h.ShareStats)

	// Aggregate stats
	mux.HandleFunc("GET /api/stats", h.DashboardStats)
	mux.HandleFunc("GET /api/refresh", h.Refresh)
	mux.HandleFunc("GET /api/best-shares", h.BestShares)
	mux.HandleFunc("GET /api/summary", h.Summary)

	// Miner endpoints
	mux.HandleFunc("GET /api/miner-types", h.ListMinerTypes)
	mux.HandleFunc("GET /api/miners", h.ListMiners)
	mux.HandleFunc("POST /api/miners", h.CreateMiner)
	mux.HandleFunc("POST /api/miners/scan", h.ScanNetwork)
	mux.HandleFunc("PATCH /api/miners/{id}", h.UpdateMiner)
	mux.HandleFunc("DELETE /api/miners/{id}", h.DeleteMiner)
	mux.HandleFunc("GET /api/miners/{id}/info", h.MinerInfo)
	mux.HandleFunc("GET /api/miners/{id}/links", h.ListMinerLinks)
	mux.HandleFunc("POST /api/miners/{id}/link-account", h.LinkAccount)
	mux.HandleFunc("DELETE /api/links/{id}", h.UnlinkAccount)

	return mux
}

// ListPools returns the supported pool adapters
func (h *Handler) ListPools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, pool.List(), http.StatusOK)
}

// ListAccounts returns all tracked accounts
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	enabledOnly := r.URL.Query().Get("enabled") == "true"
	accounts, err := h.repo.GetAccounts(r.Context(), enabledOnly)
	if err != nil {
		log.Printf("Failed to list accounts: %v", err)
		writeError(w, "Failed to list accounts", err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, accounts, http.StatusOK)
}

// CreateAccountRequest is the payload for tracking a new account
type CreateAccountRequest struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	PoolAdapter string `json:"pool_adapter"`
}

// CreateAccount starts tracking a wallet address on a pool
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Address == "" {
		writeError(w, "Invalid request", "name and address are required", http.StatusBadRequest)
		return
	}

	adapter, err := pool.Get(req.PoolAdapter)
	if err != nil {
		writeError(w, "Unknown pool adapter", err.Error(), http.StatusBadRequest)
		return
	}
	if !adapter.ValidateAddress(req.Address) {
		writeError(w, "Invalid address", "address format not valid for "+adapter.PoolName(), http.StatusBadRequest)
		return
	}

	id, err := h.repo.AddAccount(r.Context(), req.Name, req.Address, req.PoolAdapter, adapter.Coin())
	if err != nil {
		if errors.Is(err, sqlite.ErrDuplicateAccount) {
			writeError(w, "Duplicate account", err.Error(), http.StatusConflict)
			return
		}
		log.Printf("Failed to create account: %v", err)
		writeError(w, "Failed to create account", err.Error(), http.StatusInternalServerError)
		return
	}

	acct, err := h.repo.GetAccount(r.Context(), id)
	if err != nil || acct == nil {
		w.WriteHeader(http.StatusCreated)
		return
	}
	writeJSON(w, acct, http.StatusCreated)
}

// UpdateAccountRequest carries the mutable account fields
type UpdateAccountRequest struct {
	Name    *string `json:"name,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// UpdateAccount renames or toggles an account
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.repo.UpdateAccount(r.Context(), id, req.Name, req.Enabled); err != nil {
		log.Printf("Failed to update account %d: %v", id, err)
		writeError(w, "Failed to update account", err.Error(), http.StatusInternalServerError)
		return
	}

	acct, err := h.repo.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, "Failed to load account", err.Error(), http.StatusInternalServerError)
		return
	}
	if acct == nil {
		writeError(w, "Not found", "no such account", http.StatusNotFound)
		return
	}
	writeJSON(w, acct, http.StatusOK)
}

// DeleteAccount removes an account and all its history
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.repo.DeleteAccount(r.Context(), id); err != nil {
		log.Printf("Failed to delete account %d: %v", id, err)
		writeError(w, "Failed to delete account", err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AccountStats runs a live pool fetch for one account
func (h *Handler) AccountStats(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.loadAccount(w, r)
	if !ok {
		return
	}

	data := h.poller.FetchAccountStats(r.Context(), *acct)
	writeJSON(w, data, http.StatusOK)
}

// AccountHistory returns persisted hashrate history for an account's pool
func (h *Handler) AccountHistory(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.loadAccount(w, r)
	if !ok {
		return
	}

	adapter, err := pool.Get(acct.PoolAdapter)
	if err != nil {
		writeError(w, "Unknown pool adapter", err.Error(), http.StatusInternalServerError)
		return
	}

	points, err := h.repo.HashrateHistory(r.Context(), adapter.PoolName(), queryInt(r, "hours", 24))
	if err != nil {
		log.Printf("Failed to load history: %v", err)
		writeError(w, "Failed to load history", err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, points, http.StatusOK)
}

// ListShares returns recent share submissions for an account
func (h *Handler) ListShares(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	shares, err := h.repo.ShareSubmissions(r.Context(), id, r.URL.Query().Get("pool"),
		queryInt(r, "hours", 24), queryInt(r, "limit", 100))
	if err != nil {
		log.Printf("Failed to load shares: %v", err)
		writeError(w, "Failed to load shares", err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, shares, http.StatusOK)
}

// LogShareRequest is a manually reported share submission
type LogShareRequest struct {
	PoolName   string  `json:"pool_name"`
	WorkerName string  `json:"worker_name,omitempty"`
	Difficulty float64 `json:"difficulty"`
	Accepted   *bool   `json:"accepted,omitempty"`
}

// LogShare records one share submission against an account
func (h *Handler) LogShare(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.loadAccount(w, r)
	if !ok {
		return
	}

	var req LogShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.PoolName == "" {
		writeError(w, "Invalid request", "pool_name is required", http.StatusBadRequest)
		return
	}
	accepted := true
	if req.Accepted != nil {
		accepted = *req.Accepted
	}

	shareID, err := h.repo.LogShareSubmission(r.Context(), acct.ID, 0, req.PoolName, req.WorkerName, req.Difficulty, accepted)
	if err != nil {
		log.Printf("Failed to log share: %v", err)
		writeError(w, "Failed to log share", err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int64{"id": shareID}, http.StatusCreated)
}

// ShareStats summarizes an account's share submissions
func (h *Handler) ShareStats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	stats, err := h.repo.ShareStatistics(r.Context(), id, queryInt(r, "hours", 24))
	if err != nil {
		log.Printf("Failed to load share stats: %v", err)
		writeError(w, "Failed to load share stats", err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats, http.StatusOK)
}

// DashboardStats returns the cached dashboard, refreshing once when no
// poll has completed yet
func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	if dash := h.cache.Get(); dash != nil {
		writeJSON(w, dash, http.StatusOK)
		return
	}

	dash, err := h.poller.RefreshPools(r.Context())
	if err != nil {
		log.Printf("Failed to refresh stats: %v", err)
		writeError(w, "Failed to fetch stats", err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dash, http.StatusOK)
}

// Refresh forces an immediate poll of all enabled accounts
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	dash, err := h.poller.RefreshPools(r.Context())
	if err != nil {
		log.Printf("Failed to refresh: %v", err)
		writeError(w, "Failed to refresh", err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dash, http.StatusOK)
}

// BestShares returns the best-share leaderboard
func (h *Handler) BestShares(w http.ResponseWriter, r *http.Request) {
	shares, err := h.repo.BestShares(r.Context(), r.URL.Query().Get("pool"), queryInt(r, "limit", 50))
	if err != nil {
		log.Printf("Failed to load best shares: %v", err)
		writeError(w, "Failed to load best shares", err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, shares, http.StatusOK)
}

// Summary returns aggregate statistics over the persisted history
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.repo.StatsSummary(r.Context(), r.URL.Query().Get("pool"))
	if err != nil {
		log.Printf("Failed to load summary: %v", err)
		writeError(w, "Failed to load summary", err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, summary, http.StatusOK)
}

// ListMinerTypes returns the supported device adapter types
func (h *Handler) ListMinerTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, miner.ListTypes(), http.StatusOK)
}

// ListMiners returns all registered devices
func (h *Handler) ListMiners(w http.ResponseWriter, r *http.Request) {
	enabledOnly := r.URL.Query().Get("enabled") == "true"
	miners, err := h.repo.GetMiners(r.Context(), enabledOnly)
	if err != nil {
		log.Printf("Failed to list miners: %v", err)
		writeError(w, "Failed to list miners", err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, miners, http.StatusOK)
}

// CreateMinerRequest registers a device manually
type CreateMinerRequest struct {
	Name      string `json:"name"`
	MinerType string `json:"miner_type"`
	IPAddress string `json:"ip_address"`
	APIPort   int    `json:"api_port,omitempty"`
}

// CreateMiner registers a device by IP; re-registering a known IP
// refreshes it instead of duplicating
func (h *Handler) CreateMiner(w http.ResponseWriter, r *http.Request) {
	var req CreateMinerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.IPAddress == "" {
		writeError(w, "Invalid request", "ip_address is required", http.StatusBadRequest)
		return
	}
	if miner.Get(req.MinerType) == nil {
		writeError(w, "Unknown miner type", req.MinerType, http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		req.Name = req.MinerType + "_" + req.IPAddress
	}
	if req.APIPort == 0 {
		req.APIPort = miner.DefaultPort(req.MinerType)
	}

	id, err := h.repo.UpsertMiner(r.Context(), &domain.Miner{
		Name:      req.Name,
		MinerType: req.MinerType,
		IPAddress: req.IPAddress,
		APIPort:   req.APIPort,
	})
	if err != nil {
		log.Printf("Failed to create miner: %v", err)
		writeError(w, "Failed to create miner", err.Error(), http.StatusInternalServerError)
		return
	}

	m, err := h.repo.GetMiner(r.Context(), id)
	if err != nil || m == nil {
		w.WriteHeader(http.StatusCreated)
		return
	}
	writeJSON(w, m, http.StatusCreated)
}

// ScanRequest selects the network to sweep
type ScanRequest struct {
	Network string `json:"network,omitempty"` // CIDR; empty = local /24
}

// ScanNetwork sweeps the network and registers every device found
func (h *Handler) ScanNetwork(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}
	}

	found, err := h.discovery.DiscoverAndRegister(r.Context(), req.Network)
	if err != nil {
		log.Printf("Scan failed: %v", err)
		writeError(w, "Scan failed", err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"discovered": len(found), "miners": found}, http.StatusOK)
}

// UpdateMinerRequest carries the mutable device fields
type UpdateMinerRequest struct {
	Name    *string `json:"name,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// UpdateMiner renames or toggles a device
func (h *Handler) UpdateMiner(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req UpdateMinerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.repo.UpdateMiner(r.Context(), id, req.Name, nil, req.Enabled, nil); err != nil {
		log.Printf("Failed to update miner %d: %v", id, err)
		writeError(w, "Failed to update miner", err.Error(), http.StatusInternalServerError)
		return
	}

	m, err := h.repo.GetMiner(r.Context(), id)
	if err != nil {
		writeError(w, "Failed to load miner", err.Error(), http.StatusInternalServerError)
		return
	}
	if m == nil {
		writeError(w, "Not found", "no such miner", http.StatusNotFound)
		return
	}
	writeJSON(w, m, http.StatusOK)
}

// DeleteMiner removes a device and its links
func (h *Handler) DeleteMiner(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.repo.DeleteMiner(r.Context(), id); err != nil {
		log.Printf("Failed to delete miner %d: %v", id, err)
		writeError(w, "Failed to delete miner", err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MinerInfo queries a device for live telemetry
func (h *Handler) MinerInfo(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMiner(w, r)
	if !ok {
		return
	}

	adapter := miner.Get(m.MinerType)
	if adapter == nil {
		writeError(w, "Unknown miner type", m.MinerType, http.StatusInternalServerError)
		return
	}
	port := m.APIPort
	if port == 0 {
		port = miner.DefaultPort(m.MinerType)
	}

	info, err := adapter.GetInfo(r.Context(), m.IPAddress, port)
	if err != nil {
		writeError(w, "Miner unreachable", err.Error(), http.StatusServiceUnavailable)
		return
	}

	now := time.Now()
	status := domain.MinerStatusIdle
	if info.Status == domain.MinerStatusOnline {
		status = domain.MinerStatusOnline
	}
	if err := h.repo.UpdateMiner(r.Context(), m.ID, nil, &status, nil, &now); err != nil {
		log.Printf("Failed to refresh miner %d: %v", m.ID, err)
	}

	writeJSON(w, info, http.StatusOK)
}

// ListMinerLinks returns a device's active account links
func (h *Handler) ListMinerLinks(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	links, err := h.repo.GetMinerLinks(r.Context(), id, 0)
	if err != nil {
		log.Printf("Failed to load links: %v", err)
		writeError(w, "Failed to load links", err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, links, http.StatusOK)
}

// LinkAccountRequest associates a device with an account
type LinkAccountRequest struct {
	AccountID  int64  `json:"account_id"`
	PoolURL    string `json:"pool_url,omitempty"`
	WorkerName string `json:"worker_name,omitempty"`
}

// LinkAccount links a device to a tracked account, superseding any
// previous link
func (h *Handler) LinkAccount(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMiner(w, r)
	if !ok {
		return
	}

	var req LinkAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	if req.AccountID != 0 {
		acct, err := h.repo.GetAccount(r.Context(), req.AccountID)
		if err != nil {
			writeError(w, "Failed to load account", err.Error(), http.StatusInternalServerError)
			return
		}
		if acct == nil {
			writeError(w, "Not found", "no such account", http.StatusNotFound)
			return
		}
	}

	linkID, err := h.repo.AddMinerLink(r.Context(), &domain.MinerLink{
		MinerID:    m.ID,
		AccountID:  req.AccountID,
		PoolURL:    req.PoolURL,
		WorkerName: req.WorkerName,
	})
	if err != nil {
		log.Printf("Failed to link miner %d: %v", m.ID, err)
		writeError(w, "Failed to link account", err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int64{"id": linkID}, http.StatusCreated)
}

// UnlinkAccount deactivates a miner-account link
func (h *Handler) UnlinkAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	active := false
	if err := h.repo.UpdateMinerLink(r.Context(), id, nil, &active); err != nil {
		log.Printf("Failed to unlink %d: %v", id, err)
		writeError(w, "Failed to unlink", err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Helper methods

func (h *Handler) loadAccount(w http.ResponseWriter, r *http.Request) (*domain.Account, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return nil, false
	}
	acct, err := h.repo.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, "Failed to load account", err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	if acct == nil {
		writeError(w, "Not found", "no such account", http.StatusNotFound)
		return nil, false
	}
	return acct, true
}

func (h *Handler) loadMiner(w http.ResponseWriter, r *http.Request) (*domain.Miner, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return nil, false
	}
	m, err := h.repo.GetMiner(r.Context(), id)
	if err != nil {
		writeError(w, "Failed to load miner", err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	if m == nil {
		writeError(w, "Not found", "no such miner", http.StatusNotFound)
		return nil, false
	}
	return m, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, "Invalid ID", "numeric ID required", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// ErrorResponse is the JSON error envelope
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON: %v", err)
	}
}

func writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		log.Printf("Failed to encode error response: %v", err)
	}
}
