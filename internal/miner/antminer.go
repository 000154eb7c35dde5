package miner

import (
	"context"

	"minewatch/internal/cgminer"
	"minewatch/internal/domain"
)

// Antminer adapts Bitmain Antminer units. Same raw protocol as Avalon
// but average hashrate is reported in GH/s.
type Antminer struct{}

func (a *Antminer) MinerType() string { return "antminer" }

func (a *Antminer) Detect(ctx context.Context, ip string) bool {
	return webBodyContains(ctx, ip, "antminer", "bitmain")
}

func (a *Antminer) GetInfo(ctx context.Context, ip string, port int) (*domain.MinerInfo, error) {
	t, err := queryRawTelemetry(ctx, ip, port)
	if err != nil {
		return nil, err
	}
	ghs, _ := cgminer.Number(t.summarySection(), "GHS av")
	return t.info(a.MinerType(), ghs*1e9), nil
}

// RecentShares returns nothing: stock Antminer firmware exposes no
// per-share data.
func (a *Antminer) RecentShares(ctx context.Context, ip string, port, count int) ([]domain.ShareInfo, error) {
	return nil, nil
}
