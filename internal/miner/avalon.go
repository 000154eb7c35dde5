package miner

import (
	"context"

	"minewatch/internal/cgminer"
	"minewatch/internal/domain"
)

// Avalon adapts Canaan Avalon units (Nano, Q). They speak the raw miner
// protocol and report average hashrate in MH/s.
type Avalon struct{}

func (a *Avalon) MinerType() string { return "avalon" }

// Detect checks the web UI first; headless units are recognized by the
// vendor string in their raw version response.
func (a *Avalon) Detect(ctx context.Context, ip string) bool {
	if webBodyContains(ctx, ip, "avalon") {
		return true
	}
	return rawVersionContains(ctx, ip, "avalon", "canaan")
}

func (a *Avalon) GetInfo(ctx context.Context, ip string, port int) (*domain.MinerInfo, error) {
	t, err := queryRawTelemetry(ctx, ip, port)
	if err != nil {
		return nil, err
	}
	mhs, _ := cgminer.Number(t.summarySection(), "MHS av")
	return t.info(a.MinerType(), mhs*1e6), nil
}

// RecentShares synthesizes at most one entry from the cumulative
// counters; the protocol has no per-share history.
func (a *Avalon) RecentShares(ctx context.Context, ip string, port, count int) ([]domain.ShareInfo, error) {
	if port == 0 {
		port = rawPort
	}
	ctx, cancel := context.WithTimeout(ctx, InfoTimeout)
	defer cancel()

	data, err := cgminer.SendCommand(ctx, ip, port, "pools", cgminer.DefaultReadCap, InfoTimeout)
	if err != nil {
		return nil, err
	}
	pool := cgminer.Section(cgminer.ExtractJSON(data), "POOLS")
	if pool == nil {
		return nil, nil
	}

	accepted, _ := cgminer.Number(pool, "Accepted")
	if accepted <= 0 {
		return nil, nil
	}
	diff, _ := cgminer.Number(pool, "Pool Difficulty", "Difficulty Accepted")
	return []domain.ShareInfo{{
		Difficulty: diff,
		WorkerName: cgminer.String(pool, "User"),
		Accepted:   true,
	}}, nil
}
