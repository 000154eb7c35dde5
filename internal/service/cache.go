// Package service runs the polling loops that keep the dashboard cache
// and the telemetry history current, and the discovery flow that
// registers devices found on the network.
package service

import (
	"sync/atomic"

	"minewatch/internal/domain"
)

// AccountData is one account's slot in the dashboard: either live stats
// or the error that prevented them. Stats nil with an empty Error means
// the pool does not know the address.
type AccountData struct {
	AccountID   int64             `json:"account_id"`
	Name        string            `json:"name"`
	Address     string            `json:"address"`
	PoolAdapter string            `json:"pool_adapter"`
	Coin        string            `json:"coin"`
	Enabled     bool              `json:"enabled"`
	Stats       *domain.PoolStats `json:"stats,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Dashboard is the assembled view the API serves. Instances are
// immutable once published.
type Dashboard struct {
	Accounts            []AccountData      `json:"accounts"`
	LastUpdated         string             `json:"last_updated"`
	NetworkDifficulties map[string]float64 `json:"network_difficulties"`
}

// Cache is a single-writer cell holding the latest dashboard. The
// polling loop replaces it wholesale; readers always see a complete,
// consistent snapshot.
type Cache struct {
	cell atomic.Pointer[Dashboard]
}

// Get returns the latest dashboard, nil before the first refresh.
func (c *Cache) Get() *Dashboard {
	return c.cell.Load()
}

// Set publishes a new dashboard.
func (c *Cache) Set(d *Dashboard) {
	c.cell.Store(d)
}
