package service

import (
	"context"
	"fmt"
	"log"

	"minewatch/internal/domain"
	"minewatch/internal/miner"
	"minewatch/internal/repository/sqlite"
	"minewatch/internal/scanner"
)

// Discovery runs network sweeps and registers what they find.
type Discovery struct {
	repo    *sqlite.Repository
	scanner *scanner.Scanner
	sweep   *scanner.NmapSweep

	// defaultCIDR is used when a sweep names no network; empty falls
	// back to the local /24.
	defaultCIDR string
}

// NewDiscovery wires the discovery flow.
func NewDiscovery(repo *sqlite.Repository, sc *scanner.Scanner) *Discovery {
	return &Discovery{repo: repo, scanner: sc, sweep: scanner.NewNmapSweep()}
}

// SetDefaultNetwork sets the CIDR used when a sweep names no network.
func (d *Discovery) SetDefaultNetwork(cidr string) {
	d.defaultCIDR = cidr
}

// SetNmapEnabled toggles the nmap pre-sweep; when disabled every sweep
// uses the built-in TCP probes.
func (d *Discovery) SetNmapEnabled(enabled bool) {
	if enabled {
		d.sweep = scanner.NewNmapSweep()
	} else {
		d.sweep = nil
	}
}

// RegisteredMiner is one discovery result after persistence.
type RegisteredMiner struct {
	scanner.Discovered
	MinerID   int64 `json:"miner_id"`
	AccountID int64 `json:"account_id,omitempty"`
}

// DiscoverAndRegister sweeps the network (the local /24 when cidr is
// empty), upserts every discovered device, and links each one to a
// tracked account when its stratum config matches. An nmap binary, when
// present, replaces the per-host TCP probes with one ranged port scan.
func (d *Discovery) DiscoverAndRegister(ctx context.Context, cidr string) ([]RegisteredMiner, error) {
	found, err := d.scan(ctx, cidr)
	if err != nil {
		return nil, err
	}

	accounts, err := d.repo.GetAccounts(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	registered := make([]RegisteredMiner, 0, len(found))
	for _, dev := range found {
		minerID, err := d.repo.UpsertMiner(ctx, &domain.Miner{
			Name:           dev.MinerType + "_" + dev.IPAddress,
			MinerType:      dev.MinerType,
			IPAddress:      dev.IPAddress,
			APIPort:        miner.DefaultPort(dev.MinerType),
			AutoDiscovered: true,
		})
		if err != nil {
			log.Printf("Scanner: register %s: %v", dev.IPAddress, err)
			continue
		}

		accountID := scanner.AutoMatch(dev.Info, accounts)
		if _, err := d.repo.AddMinerLink(ctx, &domain.MinerLink{
			MinerID:    minerID,
			AccountID:  accountID,
			PoolURL:    dev.Info.PoolURL,
			WorkerName: dev.Info.PoolUser,
		}); err != nil {
			log.Printf("Scanner: link %s: %v", dev.IPAddress, err)
		}
		if accountID != 0 {
			log.Printf("Scanner: auto-matched miner %s to account %d", dev.IPAddress, accountID)
		} else {
			log.Printf("Scanner: registered miner %s (no account match)", dev.IPAddress)
		}

		registered = append(registered, RegisteredMiner{
			Discovered: dev,
			MinerID:    minerID,
			AccountID:  accountID,
		})
	}
	return registered, nil
}

func (d *Discovery) scan(ctx context.Context, cidr string) ([]scanner.Discovered, error) {
	if cidr == "" {
		cidr = d.defaultCIDR
	}
	if cidr == "" {
		cidr = scanner.LocalNetwork()
	}
	log.Printf("Scanner: scanning network %s", cidr)

	if d.sweep != nil && d.sweep.Available(ctx) {
		hosts, err := d.sweep.LiveHosts(ctx, cidr)
		if err == nil {
			log.Printf("Scanner: nmap narrowed sweep to %d live hosts", len(hosts))
			return d.scanner.ScanHosts(ctx, hosts)
		}
		log.Printf("Scanner: nmap sweep failed, falling back to probes: %v", err)
	}
	return d.scanner.ScanNetwork(ctx, cidr)
}
