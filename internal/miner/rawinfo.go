package miner

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"minewatch/internal/cgminer"
	"minewatch/internal/domain"
)

// rawTelemetry holds one summary+pools query round against a raw
// protocol device. The two commands use separate connections: reusing a
// socket confuses several firmwares.
type rawTelemetry struct {
	summary map[string]any // full "summary" response
	pools   map[string]any // full "pools" response, may be nil
}

func queryRawTelemetry(ctx context.Context, ip string, port int) (*rawTelemetry, error) {
	if port == 0 {
		port = rawPort
	}

	data, err := cgminer.SendCommand(ctx, ip, port, "summary", cgminer.DefaultReadCap, InfoTimeout)
	if err != nil {
		return nil, err
	}
	summary := cgminer.ExtractJSON(data)
	if summary == nil {
		return nil, fmt.Errorf("unparseable summary from %s", ip)
	}

	// Pool info is best-effort: a device with a broken pools response
	// still reports its hashrate.
	var pools map[string]any
	if data, err := cgminer.SendCommand(ctx, ip, port, "pools", cgminer.DefaultReadCap, InfoTimeout); err == nil {
		pools = cgminer.ExtractJSON(data)
	}

	return &rawTelemetry{summary: summary, pools: pools}, nil
}

// info assembles the common MinerInfo shape; hashrate is already
// normalized to H/s by the caller.
func (t *rawTelemetry) info(minerType string, hashrate float64) *domain.MinerInfo {
	summarySec := cgminer.Section(t.summary, "SUMMARY")
	poolSec := cgminer.Section(t.pools, "POOLS")

	status := domain.MinerStatusIdle
	if hashrate > 0 {
		status = domain.MinerStatusOnline
	}

	info := &domain.MinerInfo{
		MinerType: minerType,
		Hashrate:  hashrate,
		Status:    status,
		RawData:   map[string]any{"summary": t.summary, "pools": t.pools},
	}
	if summarySec != nil {
		if temp, ok := cgminer.Number(summarySec, "Temperature"); ok {
			info.Temperature = temp
		}
		if uptime, ok := cgminer.Number(summarySec, "Elapsed"); ok {
			info.Uptime = int64(uptime)
		}
	}
	if poolSec != nil {
		info.PoolURL = cgminer.String(poolSec, "URL")
		info.PoolUser = cgminer.String(poolSec, "User")
	}
	return info
}

// summarySection returns the SUMMARY record, never nil.
func (t *rawTelemetry) summarySection() map[string]any {
	if sec := cgminer.Section(t.summary, "SUMMARY"); sec != nil {
		return sec
	}
	return map[string]any{}
}

// rawVersionContains probes the version command and reports whether the
// response mentions any of the given vendor strings.
func rawVersionContains(ctx context.Context, ip string, markers ...string) bool {
	ctx, cancel := context.WithTimeout(ctx, DetectTimeout)
	defer cancel()

	data, err := cgminer.SendCommand(ctx, ip, rawPort, "version", 1024, DetectTimeout)
	if err != nil {
		return false
	}
	body := strings.ToLower(string(data))
	for _, m := range markers {
		if strings.Contains(body, m) {
			return true
		}
	}
	return false
}

// webBodyContains fetches the device's web root and reports whether the
// page mentions any of the given vendor strings.
func webBodyContains(ctx context.Context, ip string, markers ...string) bool {
	ctx, cancel := context.WithTimeout(ctx, DetectTimeout)
	defer cancel()

	url := "http://" + net.JoinHostPort(ip, strconv.Itoa(webPort)) + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := deviceClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256<<10))
	if err != nil {
		return false
	}
	page := strings.ToLower(string(body))
	for _, m := range markers {
		if strings.Contains(page, m) {
			return true
		}
	}
	return false
}
