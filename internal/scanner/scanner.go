// Package scanner discovers mining devices on the local network by
// sweeping a CIDR range, probing the ports miners listen on, and running
// family detection against hosts that answer.
package scanner

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"minewatch/internal/domain"
	"minewatch/internal/miner"
)

// MaxHosts caps a sweep; anything wider than a /22 is almost certainly
// a misconfigured CIDR.
const MaxHosts = 1024

// Config tunes a sweep.
type Config struct {
	// ProbePorts are tried in order; one open port marks the host live.
	ProbePorts []int
	// Timeout applies per port probe.
	Timeout time.Duration
	// BatchSize bounds concurrent host scans.
	BatchSize int
}

// DefaultConfig probes the miner web and API ports.
func DefaultConfig() Config {
	return Config{
		ProbePorts: []int{80, 4028},
		Timeout:    time.Second,
		BatchSize:  20,
	}
}

// Discovered is one device found by a sweep.
type Discovered struct {
	IPAddress string            `json:"ip_address"`
	MinerType string            `json:"miner_type"`
	Info      *domain.MinerInfo `json:"info"`
}

// Scanner sweeps networks for devices. The probe and detection steps are
// function fields so tests can scan synthetic networks.
type Scanner struct {
	cfg Config

	probe   func(ctx context.Context, ip string, ports []int, timeout time.Duration) bool
	detect  func(ctx context.Context, ip string) string
	getInfo func(ctx context.Context, minerType, ip string) (*domain.MinerInfo, error)
}

// New returns a scanner with the given config; zero fields fall back to
// defaults.
func New(cfg Config) *Scanner {
	def := DefaultConfig()
	if len(cfg.ProbePorts) == 0 {
		cfg.ProbePorts = def.ProbePorts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	return &Scanner{
		cfg:    cfg,
		probe:  probeHost,
		detect: miner.DetectType,
		getInfo: func(ctx context.Context, minerType, ip string) (*domain.MinerInfo, error) {
			a := miner.Get(minerType)
			if a == nil {
				return nil, fmt.Errorf("no adapter for miner type %q", minerType)
			}
			return a.GetInfo(ctx, ip, 0)
		},
	}
}

// ScanNetwork sweeps a CIDR and returns every device that answered
// detection. Hosts are scanned in fixed-size batches; a quiet network
// yields an empty slice, not an error.
func (s *Scanner) ScanNetwork(ctx context.Context, cidr string) ([]Discovered, error) {
	if cidr == "" {
		cidr = LocalNetwork()
	}
	hosts, err := ExpandCIDR(cidr)
	if err != nil {
		return nil, err
	}
	return s.scanAll(ctx, hosts)
}

// scanAll runs the probe pipeline over hosts in fixed-size batches.
func (s *Scanner) scanAll(ctx context.Context, hosts []string) ([]Discovered, error) {
	var discovered []Discovered
	for start := 0; start < len(hosts); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(hosts) {
			end = len(hosts)
		}

		results := make([]*Discovered, end-start)
		g, gctx := errgroup.WithContext(ctx)
		for i, ip := range hosts[start:end] {
			g.Go(func() error {
				results[i] = s.scanHost(gctx, ip)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return discovered, err
		}

		for _, r := range results {
			if r != nil {
				discovered = append(discovered, *r)
			}
		}
	}
	return discovered, nil
}

// scanHost runs the probe / detect / read pipeline for one address. Any
// failure along the way just means the host is not a usable miner.
func (s *Scanner) scanHost(ctx context.Context, ip string) *Discovered {
	if !s.probe(ctx, ip, s.cfg.ProbePorts, s.cfg.Timeout) {
		return nil
	}
	minerType := s.detect(ctx, ip)
	if minerType == "" {
		return nil
	}
	info, err := s.getInfo(ctx, minerType, ip)
	if err != nil || info == nil {
		return nil
	}
	return &Discovered{IPAddress: ip, MinerType: minerType, Info: info}
}

// probeHost reports whether any probe port accepts a TCP connection.
func probeHost(ctx context.Context, ip string, ports []int, timeout time.Duration) bool {
	dialer := net.Dialer{Timeout: timeout}
	for _, port := range ports {
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
		if err == nil {
			conn.Close()
			return true
		}
	}
	return false
}

// ExpandCIDR lists the usable host addresses of an IPv4 network,
// excluding the network and broadcast addresses.
func ExpandCIDR(cidr string) ([]string, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, fmt.Errorf("parse network %q: %w", cidr, err)
	}
	prefix = prefix.Masked()
	if !prefix.Addr().Is4() {
		return nil, fmt.Errorf("network %q is not IPv4", cidr)
	}

	var hosts []string
	first := true
	for addr := prefix.Addr(); prefix.Contains(addr); addr = addr.Next() {
		if first {
			// Network address.
			first = false
			continue
		}
		if !prefix.Contains(addr.Next()) {
			// Broadcast address.
			break
		}
		hosts = append(hosts, addr.String())
		if len(hosts) > MaxHosts {
			return nil, fmt.Errorf("network %q exceeds %d hosts", cidr, MaxHosts)
		}
	}
	return hosts, nil
}

// LocalNetwork guesses the machine's /24 by asking the kernel which
// source address routes to the public internet. No packet is sent.
func LocalNetwork() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "192.168.1.0/24"
	}
	defer conn.Close()

	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "192.168.1.0/24"
	}
	addr, ok := netip.AddrFromSlice(local.IP.To4())
	if !ok {
		return "192.168.1.0/24"
	}
	return netip.PrefixFrom(addr, 24).Masked().String()
}
