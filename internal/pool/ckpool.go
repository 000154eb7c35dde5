package pool

import (
	"context"
	"fmt"
	"strings"

	"minewatch/internal/domain"
)

// CKPool adapts the solo.ckpool.org user endpoint (BTC only). Hashrates
// arrive as SI-suffixed strings ("11.5T"), best shares as plain numbers.
type CKPool struct {
	baseURL string
}

// NewCKPool returns the solo.ckpool.org adapter.
func NewCKPool() *CKPool {
	return &CKPool{baseURL: "https://solo.ckpool.org"}
}

func (p *CKPool) PoolName() string { return "Solo CKPool" }
func (p *CKPool) Coin() string     { return "BTC" }

// ValidateAddress accepts the three mainnet BTC address families.
func (p *CKPool) ValidateAddress(address string) bool {
	if len(address) < 26 {
		return false
	}
	return strings.HasPrefix(address, "1") ||
		strings.HasPrefix(address, "3") ||
		strings.HasPrefix(address, "bc1")
}

type ckpoolUser struct {
	Hashrate1m any            `json:"hashrate1m"`
	Hashrate1h any            `json:"hashrate1hr"`
	LastShare  int64          `json:"lastshare"`
	BestShare  float64        `json:"bestshare"`
	BestEver   float64        `json:"bestever"`
	Workers    []ckpoolWorker `json:"worker"`
}

type ckpoolWorker struct {
	WorkerName string  `json:"workername"`
	Hashrate1m any     `json:"hashrate1m"`
	Hashrate1h any     `json:"hashrate1hr"`
	LastShare  int64   `json:"lastshare"`
	Shares     int64   `json:"shares"`
	BestShare  float64 `json:"bestshare"`
}

func (p *CKPool) FetchStats(ctx context.Context, address string) (*domain.PoolStats, error) {
	if !p.ValidateAddress(address) {
		return nil, fmt.Errorf("invalid BTC address %q", address)
	}

	var user ckpoolUser
	raw, err := getJSONRaw(ctx, fmt.Sprintf("%s/users/%s", p.baseURL, address), &user)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch ckpool stats: %w", err)
	}

	workers := make([]domain.WorkerStats, 0, len(user.Workers))
	online, offline := 0, 0
	for _, w := range user.Workers {
		hr := domain.ParseHashrate(w.Hashrate1m)
		hrAvg := domain.ParseHashrate(w.Hashrate1h)
		down := hr == 0 && hrAvg == 0
		if down {
			offline++
		} else {
			online++
		}
		workers = append(workers, domain.WorkerStats{
			Name:        workerSuffix(w.WorkerName),
			Hashrate:    hr,
			HashrateAvg: hrAvg,
			LastShare:   w.LastShare,
			SharesCount: w.Shares,
			Difficulty:  w.BestShare,
			Offline:     down,
		})
	}

	return &domain.PoolStats{
		PoolName:       p.PoolName(),
		Coin:           p.Coin(),
		Address:        address,
		Hashrate:       domain.ParseHashrate(user.Hashrate1m),
		HashrateAvg:    domain.ParseHashrate(user.Hashrate1h),
		WorkersOnline:  online,
		WorkersOffline: offline,
		BestShare:      user.BestShare,
		BestEver:       user.BestEver,
		LastShare:      user.LastShare,
		Workers:        workers,
		RawData:        raw,
	}, nil
}

// workerSuffix returns the part of a ckpool worker name after the last
// dot (names look like "bc1q...addr.workerlabel"), or "default" when the
// suffix is empty.
func workerSuffix(name string) string {
	parts := strings.Split(name, ".")
	suffix := parts[len(parts)-1]
	if suffix == "" {
		return "default"
	}
	return suffix
}
