package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"minewatch/internal/domain"
	"minewatch/internal/miner"
	"minewatch/internal/pool"
	"minewatch/internal/repository/sqlite"
)

// Poller drives the two polling loops: pool accounts on a slow cadence
// (upstream APIs are rate limited), devices on a fast one (LAN traffic
// is cheap and share counters move quickly).
type Poller struct {
	repo    *sqlite.Repository
	cache   *Cache
	tracker *ShareTracker

	poolInterval   time.Duration
	deviceInterval time.Duration
}

// NewPoller wires a poller; non-positive intervals fall back to 60s for
// pools and 30s for devices.
func NewPoller(repo *sqlite.Repository, cache *Cache, poolInterval, deviceInterval time.Duration) *Poller {
	if poolInterval <= 0 {
		poolInterval = 60 * time.Second
	}
	if deviceInterval <= 0 {
		deviceInterval = 30 * time.Second
	}
	return &Poller{
		repo:           repo,
		cache:          cache,
		tracker:        NewShareTracker(),
		poolInterval:   poolInterval,
		deviceInterval: deviceInterval,
	}
}

// Run blocks until ctx is canceled, executing both loops. Each loop
// runs a cycle immediately and then on its ticker; a failing cycle is
// logged and the loop keeps going.
func (p *Poller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(p.poolInterval)
		defer ticker.Stop()
		for {
			if _, err := p.RefreshPools(ctx); err != nil && ctx.Err() == nil {
				log.Printf("Pool poll: %v", err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(p.deviceInterval)
		defer ticker.Stop()
		for {
			if err := p.PollDevices(ctx); err != nil && ctx.Err() == nil {
				log.Printf("Device poll: %v", err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})

	return g.Wait()
}

// RefreshPools fetches every enabled account concurrently, persists
// snapshots, and publishes a fresh dashboard. One account failing never
// blocks the others; its slot carries the error instead.
func (p *Poller) RefreshPools(ctx context.Context) (*Dashboard, error) {
	accounts, err := p.repo.GetAccounts(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	coins := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		coins[a.Coin] = true
	}

	var diffs map[string]float64
	slots := make([]AccountData, len(accounts))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		diffs = pool.NetworkDifficulties(gctx, coins)
		return nil
	})
	for i, acct := range accounts {
		g.Go(func() error {
			slots[i] = p.pollAccount(gctx, acct)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Stamp each snapshot with the chain difficulty fetched alongside
	// it, then persist. Writes stay on one goroutine.
	for i := range slots {
		stats := slots[i].Stats
		if stats == nil {
			continue
		}
		if stats.NetworkDifficulty == 0 {
			stats.NetworkDifficulty = diffs[stats.Coin]
		}
		p.persistStats(ctx, slots[i].AccountID, stats)
	}

	dash := &Dashboard{
		Accounts:            slots,
		LastUpdated:         time.Now().UTC().Format(time.RFC3339),
		NetworkDifficulties: diffs,
	}
	p.cache.Set(dash)
	log.Printf("Pool poll: refreshed %d accounts", len(slots))
	return dash, nil
}

// FetchAccountStats runs one live fetch for a single account, outside
// the polling cadence.
func (p *Poller) FetchAccountStats(ctx context.Context, acct domain.Account) AccountData {
	return p.pollAccount(ctx, acct)
}

func (p *Poller) pollAccount(ctx context.Context, acct domain.Account) AccountData {
	slot := AccountData{
		AccountID:   acct.ID,
		Name:        acct.Name,
		Address:     acct.Address,
		PoolAdapter: acct.PoolAdapter,
		Coin:        acct.Coin,
		Enabled:     acct.Enabled,
	}

	adapter, err := pool.Get(acct.PoolAdapter)
	if err != nil {
		slot.Error = err.Error()
		return slot
	}

	fctx, cancel := context.WithTimeout(ctx, pool.FetchTimeout)
	defer cancel()
	stats, err := adapter.FetchStats(fctx, acct.Address)
	if err != nil {
		log.Printf("Pool poll: account %q: %v", acct.Name, err)
		slot.Error = err.Error()
		return slot
	}
	if stats == nil {
		slot.Error = "No data available"
		return slot
	}
	slot.Stats = stats
	return slot
}

// persistStats appends the pool snapshot, per-worker snapshots and the
// gated best-share record for one fetch. Persistence failures are
// logged, not propagated: history gaps are preferable to losing the
// live view.
func (p *Poller) persistStats(ctx context.Context, accountID int64, stats *domain.PoolStats) {
	if err := p.repo.SaveSnapshot(ctx, accountID, stats); err != nil {
		log.Printf("Pool poll: save snapshot for %s: %v", stats.PoolName, err)
	}
	for _, w := range stats.Workers {
		if err := p.repo.SaveWorkerSnapshot(ctx, accountID, stats.PoolName, w); err != nil {
			log.Printf("Pool poll: save worker %s: %v", w.Name, err)
		}
	}
	if stats.BestShare > 0 {
		if _, err := p.repo.LogBestShare(ctx, accountID, stats.PoolName, "", stats.BestShare, false); err != nil {
			log.Printf("Pool poll: log best share for %s: %v", stats.PoolName, err)
		}
	}
}

// PollDevices reads share counters from every enabled device and logs
// newly accepted shares against the linked account. Failures are
// isolated per device.
func (p *Poller) PollDevices(ctx context.Context) error {
	miners, err := p.repo.GetMiners(ctx, true)
	if err != nil {
		return fmt.Errorf("load miners: %w", err)
	}

	for _, m := range miners {
		if err := p.pollDevice(ctx, m); err != nil {
			log.Printf("Device poll: %s: %v", m.IPAddress, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (p *Poller) pollDevice(ctx context.Context, m domain.Miner) error {
	adapter := miner.Get(m.MinerType)
	if adapter == nil {
		return fmt.Errorf("no adapter for miner type %q", m.MinerType)
	}

	port := m.APIPort
	if port == 0 {
		port = miner.DefaultPort(m.MinerType)
	}
	info, err := adapter.GetInfo(ctx, m.IPAddress, port)
	if err != nil {
		return err
	}

	// Record new shares only for devices linked to an account.
	links, err := p.repo.GetMinerLinks(ctx, m.ID, 0)
	if err != nil {
		return err
	}
	if len(links) > 0 && links[0].AccountID != 0 {
		link := links[0]
		count, difficulty := miner.AcceptedShares(m.MinerType, info)
		if n := p.tracker.Advance(m.ID, count); n > 0 {
			log.Printf("Device poll: %s submitted %d new share(s), difficulty: %v", m.IPAddress, n, difficulty)
			poolName := link.PoolURL
			if poolName == "" {
				poolName = "unknown"
			}
			for range n {
				if _, err := p.repo.LogShareSubmission(ctx, link.AccountID, m.ID, poolName, info.PoolUser, difficulty, true); err != nil {
					return err
				}
			}
		}
	}

	status := domain.MinerStatusIdle
	if info.Status == domain.MinerStatusOnline {
		status = domain.MinerStatusOnline
	}
	now := time.Now()
	return p.repo.UpdateMiner(ctx, m.ID, nil, &status, nil, &now)
}
