// Package miner talks to mining hardware on the local network. Each
// adapter knows one device family: how to detect it, how to read its
// telemetry, and where it hides its share counters.
package miner

import (
	"context"
	"net/http"
	"strings"
	"time"

	"minewatch/internal/cgminer"
	"minewatch/internal/domain"
)

// DetectTimeout bounds a single detection probe.
const DetectTimeout = 2 * time.Second

// InfoTimeout bounds a telemetry read.
const InfoTimeout = 5 * time.Second

// Ports devices expose their APIs on. Variables so tests can point
// adapters at local listeners.
var (
	webPort = 80
	rawPort = cgminer.DefaultPort
)

// Adapter is the capability set for one device family.
type Adapter interface {
	// MinerType returns the family identifier stored on miner rows.
	MinerType() string

	// Detect reports whether this family answers at ip.
	Detect(ctx context.Context, ip string) bool

	// GetInfo reads live telemetry. Hashrate is always normalized to
	// H/s regardless of the family's native unit. port 0 selects the
	// family default.
	GetInfo(ctx context.Context, ip string, port int) (*domain.MinerInfo, error)

	// RecentShares returns per-share history for families that expose
	// it; others return an empty slice without error.
	RecentShares(ctx context.Context, ip string, port, count int) ([]domain.ShareInfo, error)
}

// adapters is the family registry. Detection order matters: specific
// families go first, the generic CGMiner probe is the fallback because
// it matches almost everything speaking the raw protocol.
var adapters = map[string]Adapter{
	"nerdminer": &NerdMiner{},
	"avalon":    &Avalon{},
	"antminer":  &Antminer{},
	"cgminer":   &GenericCGMiner{},
}

var detectOrder = []string{"nerdminer", "avalon", "antminer", "cgminer"}

// Get returns the adapter for a family, nil when unknown.
func Get(minerType string) Adapter {
	return adapters[minerType]
}

// DetectType probes ip with each family in priority order and returns
// the first match, or "" when nothing answers.
func DetectType(ctx context.Context, ip string) string {
	for _, name := range detectOrder {
		if adapters[name].Detect(ctx, ip) {
			return name
		}
	}
	return ""
}

// DefaultPort returns the API port a family conventionally uses.
func DefaultPort(minerType string) int {
	if minerType == "nerdminer" {
		return webPort
	}
	return rawPort
}

// TypeInfo describes a supported family for discovery endpoints.
type TypeInfo struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// ListTypes returns the supported families in detection order.
func ListTypes() []TypeInfo {
	return []TypeInfo{
		{Type: "nerdminer", Name: "NerdMiner"},
		{Type: "avalon", Name: "Avalon (Nano/Q)"},
		{Type: "antminer", Name: "Bitmain Antminer"},
		{Type: "cgminer", Name: "Generic CGMiner"},
	}
}

// ExtractWalletWorker splits a stratum user string into wallet address
// and worker name. Devices configure "wallet.worker" or a bare wallet;
// anything with more dots is ambiguous and yields nothing.
func ExtractWalletWorker(poolUser string) (address, worker string) {
	if poolUser == "" {
		return "", ""
	}
	parts := strings.Split(poolUser, ".")
	switch len(parts) {
	case 1:
		return parts[0], ""
	case 2:
		return parts[0], parts[1]
	}
	return "", ""
}

// AcceptedShares digs the accepted-share counter and the pool difficulty
// out of a telemetry payload. The location depends on the family: raw
// protocol devices carry them in the POOLS section, NerdMiner under its
// stratum block. Unknown shapes yield zeros.
func AcceptedShares(minerType string, info *domain.MinerInfo) (count int64, difficulty float64) {
	if info == nil || info.RawData == nil {
		return 0, 0
	}

	switch minerType {
	case "avalon", "antminer", "cgminer":
		poolsObj, _ := info.RawData["pools"].(map[string]any)
		pool := cgminer.Section(poolsObj, "POOLS")
		if pool == nil {
			return 0, 0
		}
		accepted, _ := cgminer.Number(pool, "Accepted")
		diff, _ := cgminer.Number(pool, "Pool Difficulty", "Difficulty Accepted")
		return int64(accepted), diff

	case "nerdminer":
		stratum, _ := info.RawData["stratum"].(map[string]any)
		pools, _ := stratum["pools"].([]any)
		if len(pools) == 0 {
			return 0, 0
		}
		pool, _ := pools[0].(map[string]any)
		if pool == nil {
			return 0, 0
		}
		accepted, _ := cgminer.Number(pool, "accepted")
		diff, _ := cgminer.Number(pool, "poolDifficulty")
		return int64(accepted), diff
	}
	return 0, 0
}

// deviceClient is shared by the HTTP-speaking adapters; deadlines come
// from request contexts.
var deviceClient = &http.Client{Timeout: InfoTimeout}
