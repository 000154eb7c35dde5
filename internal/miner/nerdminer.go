package miner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"minewatch/internal/domain"
)

// NerdMiner adapts NerdMiner/NerdQAxe devices, which expose a plain HTTP
// JSON API on the web port instead of the raw miner protocol. Hashrate
// is reported in GH/s.
type NerdMiner struct{}

func (a *NerdMiner) MinerType() string { return "nerdminer" }

// nerdMinerMarkers are fields only the NerdMiner firmware family serves
// from its system-info endpoint.
var nerdMinerMarkers = []string{"deviceModel", "asicCount", "stratumURL", "ASICModel"}

func (a *NerdMiner) Detect(ctx context.Context, ip string) bool {
	ctx, cancel := context.WithTimeout(ctx, DetectTimeout)
	defer cancel()

	data, err := a.systemInfo(ctx, ip, webPort)
	if err != nil {
		return false
	}
	for _, marker := range nerdMinerMarkers {
		if _, ok := data[marker]; ok {
			return true
		}
	}
	return false
}

func (a *NerdMiner) GetInfo(ctx context.Context, ip string, port int) (*domain.MinerInfo, error) {
	if port == 0 {
		port = webPort
	}
	ctx, cancel := context.WithTimeout(ctx, InfoTimeout)
	defer cancel()

	data, err := a.systemInfo(ctx, ip, port)
	if err != nil {
		return nil, err
	}

	hashrateGH := numField(data, "hashRate")
	info := &domain.MinerInfo{
		MinerType:       a.MinerType(),
		FirmwareVersion: nerdMinerVersion(data),
		Hashrate:        hashrateGH * 1e9,
		Temperature:     numField(data, "temp"),
		PoolURL:         nerdMinerPoolURL(data),
		Status:          domain.MinerStatusOffline,
		RawData:         data,
	}
	info.PoolUser, _ = data["stratumUser"].(string)

	if hashrateGH > 0 {
		info.Status = domain.MinerStatusOnline
		// A present stratum block refines online into idle when the
		// pool connection is down.
		if stratum, ok := data["stratum"].(map[string]any); ok {
			if pools, ok := stratum["pools"].([]any); ok && len(pools) > 0 {
				first, _ := pools[0].(map[string]any)
				if connected, _ := first["connected"].(bool); !connected {
					info.Status = domain.MinerStatusIdle
				}
			}
		}
	}
	return info, nil
}

// RecentShares reads the per-share history endpoint, the only family
// that has one.
func (a *NerdMiner) RecentShares(ctx context.Context, ip string, port, count int) ([]domain.ShareInfo, error) {
	if port == 0 {
		port = webPort
	}
	ctx, cancel := context.WithTimeout(ctx, InfoTimeout)
	defer cancel()

	var payload struct {
		Shares []struct {
			Diff     float64 `json:"diff"`
			Accepted *bool   `json:"accepted"`
			Time     string  `json:"time"`
		} `json:"shares"`
	}
	if err := a.getJSON(ctx, ip, port, "/api/shares", &payload); err != nil {
		return nil, err
	}

	shares := make([]domain.ShareInfo, 0, count)
	for _, s := range payload.Shares {
		if len(shares) == count {
			break
		}
		accepted := true
		if s.Accepted != nil {
			accepted = *s.Accepted
		}
		shares = append(shares, domain.ShareInfo{
			Difficulty: s.Diff,
			Accepted:   accepted,
			Timestamp:  s.Time,
		})
	}
	return shares, nil
}

func (a *NerdMiner) systemInfo(ctx context.Context, ip string, port int) (map[string]any, error) {
	var data map[string]any
	if err := a.getJSON(ctx, ip, port, "/api/system/info", &data); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("nerdminer %s returned empty system info", ip)
	}
	return data, nil
}

func (a *NerdMiner) getJSON(ctx context.Context, ip string, port int, path string, out any) error {
	url := "http://" + net.JoinHostPort(ip, strconv.Itoa(port)) + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := deviceClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// nerdMinerVersion builds a display version from the model fields, e.g.
// "NerdQAxe+ (BM1368)".
func nerdMinerVersion(data map[string]any) string {
	var parts []string
	if model, _ := data["deviceModel"].(string); model != "" {
		parts = append(parts, model)
	}
	if asic, _ := data["ASICModel"].(string); asic != "" {
		parts = append(parts, "("+asic+")")
	}
	return strings.Join(parts, " ")
}

func nerdMinerPoolURL(data map[string]any) string {
	url, _ := data["stratumURL"].(string)
	if url == "" {
		return ""
	}
	switch port := data["stratumPort"].(type) {
	case float64:
		return fmt.Sprintf("%s:%d", url, int(port))
	case string:
		return url + ":" + port
	}
	return url
}

// numField reads a numeric JSON field that some firmware versions emit
// as a string.
func numField(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}
