package domain

import "time"

// MinerStatus reflects the last observed state of a device.
type MinerStatus string

const (
	MinerStatusOnline  MinerStatus = "online"
	MinerStatusIdle    MinerStatus = "idle"
	MinerStatusOffline MinerStatus = "offline"
	MinerStatusUnknown MinerStatus = "unknown"
)

// Miner is a physical mining device on the local network.
// IP is globally unique; re-discovering a known IP refreshes status and
// last-seen instead of creating a duplicate.
type Miner struct {
	ID             int64       `json:"id"`
	Name           string      `json:"name"`
	MinerType      string      `json:"miner_type"`
	IPAddress      string      `json:"ip_address"`
	MACAddress     string      `json:"mac_address,omitempty"`
	APIPort        int         `json:"api_port,omitempty"`
	Status         MinerStatus `json:"status"`
	Enabled        bool        `json:"enabled"`
	AutoDiscovered bool        `json:"auto_discovered"`
	CreatedAt      time.Time   `json:"created_at"`
	LastSeen       *time.Time  `json:"last_seen,omitempty"`
}

// MinerLink associates a miner with a tracked account, capturing the pool
// URL and worker string observed at detection time. Links are soft:
// superseded links are deactivated, never deleted, so at most one link per
// miner is active at a time.
type MinerLink struct {
	ID         int64     `json:"id"`
	MinerID    int64     `json:"miner_id"`
	AccountID  int64     `json:"account_id,omitempty"`
	PoolURL    string    `json:"pool_url,omitempty"`
	WorkerName string    `json:"worker_name,omitempty"`
	Active     bool      `json:"active"`
	DetectedAt time.Time `json:"detected_at"`
}

// MinerInfo is live telemetry read from a device.
type MinerInfo struct {
	MinerType       string         `json:"miner_type"`
	FirmwareVersion string         `json:"firmware_version,omitempty"`
	Hashrate        float64        `json:"hashrate"` // always H/s
	Temperature     float64        `json:"temperature,omitempty"`
	Uptime          int64          `json:"uptime,omitempty"`
	PoolURL         string         `json:"pool_url,omitempty"`
	PoolUser        string         `json:"pool_user,omitempty"` // usually wallet.worker
	Status          MinerStatus    `json:"status"`
	RawData         map[string]any `json:"raw_data,omitempty"`
}

// ShareInfo is one share reported by a device that exposes per-share
// history. Families without such an API simply report none.
type ShareInfo struct {
	Difficulty float64 `json:"difficulty"`
	WorkerName string  `json:"worker_name,omitempty"`
	Accepted   bool    `json:"accepted"`
	Timestamp  string  `json:"timestamp,omitempty"`
}
