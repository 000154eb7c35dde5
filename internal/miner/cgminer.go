package miner

import (
	"context"

	"minewatch/internal/cgminer"
	"minewatch/internal/domain"
)

// GenericCGMiner is the fallback for anything speaking the raw miner
// protocol that no specific family claimed. The native hashrate unit is
// unknown, so the summary is tried largest unit first.
type GenericCGMiner struct{}

func (a *GenericCGMiner) MinerType() string { return "cgminer" }

func (a *GenericCGMiner) Detect(ctx context.Context, ip string) bool {
	return rawVersionContains(ctx, ip, "cgminer", "bfgminer")
}

func (a *GenericCGMiner) GetInfo(ctx context.Context, ip string, port int) (*domain.MinerInfo, error) {
	t, err := queryRawTelemetry(ctx, ip, port)
	if err != nil {
		return nil, err
	}

	summary := t.summarySection()
	var hashrate float64
	for _, unit := range []struct {
		key  string
		mult float64
	}{
		{"GHS av", 1e9},
		{"MHS av", 1e6},
		{"KHS av", 1e3},
	} {
		if v, ok := cgminer.Number(summary, unit.key); ok {
			hashrate = v * unit.mult
			break
		}
	}

	info := t.info(a.MinerType(), hashrate)
	// Temperature is unreliable across generic firmware, drop it.
	info.Temperature = 0
	return info, nil
}

// RecentShares returns nothing; the raw protocol has no share history.
func (a *GenericCGMiner) RecentShares(ctx context.Context, ip string, port, count int) ([]domain.ShareInfo, error) {
	return nil, nil
}
