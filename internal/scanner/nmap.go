package scanner

import (
	"context"
	"fmt"
	"log"

	nmap "github.com/Ullaakut/nmap/v3"
)

// NmapSweep narrows a sweep with nmap when the binary is installed: one
// fast port scan of the whole range replaces hundreds of individual TCP
// probes, and only live hosts go through family detection. Callers fall
// back to the built-in probe when nmap is unavailable.
type NmapSweep struct {
	ports string
}

// NewNmapSweep prepares a sweep over the miner ports.
func NewNmapSweep() *NmapSweep {
	return &NmapSweep{ports: "80,4028"}
}

// Available reports whether the nmap binary can be executed.
func (s *NmapSweep) Available(ctx context.Context) bool {
	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets("localhost"),
		nmap.WithListScan(),
	)
	if err != nil {
		return false
	}
	_, _, err = scanner.Run()
	return err == nil
}

// LiveHosts returns the IPv4 addresses in cidr with at least one miner
// port open.
func (s *NmapSweep) LiveHosts(ctx context.Context, cidr string) ([]string, error) {
	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets(cidr),
		nmap.WithPorts(s.ports),
	)
	if err != nil {
		return nil, fmt.Errorf("create nmap scanner: %w", err)
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("nmap sweep of %s: %w", cidr, err)
	}
	if warnings != nil && len(*warnings) > 0 {
		log.Printf("Nmap: warnings for %s: %v", cidr, *warnings)
	}
	if result == nil {
		return nil, fmt.Errorf("nmap returned no result for %s", cidr)
	}

	var hosts []string
	for _, host := range result.Hosts {
		if host.Status.State != "up" {
			continue
		}
		open := false
		for _, port := range host.Ports {
			if port.State.State == "open" {
				open = true
				break
			}
		}
		if !open {
			continue
		}
		for _, addr := range host.Addresses {
			if addr.AddrType == "ipv4" {
				hosts = append(hosts, addr.Addr)
				break
			}
		}
	}
	return hosts, nil
}

// ScanHosts runs the detect/read pipeline against a pre-filtered host
// list, in the same batched fashion as a full sweep.
func (s *Scanner) ScanHosts(ctx context.Context, hosts []string) ([]Discovered, error) {
	return s.scanAll(ctx, hosts)
}
