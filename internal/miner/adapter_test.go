package miner

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"minewatch/internal/domain"
)

// hostPort splits an httptest server URL into dial parameters.
func hostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse %s: %v", rawURL, err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("port of %s: %v", rawURL, err)
	}
	return u.Hostname(), port
}

// fakeRawMiner serves the line-JSON device protocol: one command per
// connection, canned response, connection closed.
func fakeRawMiner(t *testing.T, responses map[string]string) (string, int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 256)
				n, _ := c.Read(buf)
				var req struct {
					Command string `json:"command"`
				}
				json.Unmarshal(buf[:n], &req)
				c.Write([]byte(responses[req.Command]))
			}(conn)
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func TestExtractWalletWorker(t *testing.T) {
	for _, tc := range []struct {
		in      string
		address string
		worker  string
	}{
		{"bc1qwallet.loftrig", "bc1qwallet", "loftrig"},
		{"bc1qwallet", "bc1qwallet", ""},
		{"a.b.c", "", ""},
		{"", "", ""},
	} {
		addr, worker := ExtractWalletWorker(tc.in)
		if addr != tc.address || worker != tc.worker {
			t.Errorf("ExtractWalletWorker(%q) = (%q, %q), want (%q, %q)",
				tc.in, addr, worker, tc.address, tc.worker)
		}
	}
}

func TestNerdMiner(t *testing.T) {
	systemInfo := map[string]any{
		"hashRate":    1.25, // GH/s
		"temp":        54.5,
		"deviceModel": "NerdQAxe+",
		"ASICModel":   "BM1368",
		"stratumURL":  "solo.ckpool.org",
		"stratumPort": float64(3333),
		"stratumUser": "bc1qwallet.loft",
		"stratum": map[string]any{
			"pools": []any{
				map[string]any{"connected": true, "accepted": float64(42), "poolDifficulty": float64(512)},
			},
		},
	}

	serve := func(t *testing.T, info map[string]any) (string, int) {
		t.Helper()
		mux := http.NewServeMux()
		mux.HandleFunc("/api/system/info", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(info)
		})
		mux.HandleFunc("/api/shares", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"shares":[{"diff":1024,"time":"2026-08-23T10:00:00Z"},{"diff":64,"accepted":false,"time":"2026-08-23T09:59:00Z"}]}`))
		})
		srv := httptest.NewServer(mux)
		t.Cleanup(srv.Close)
		return hostPort(t, srv.URL)
	}

	t.Run("info with connected pool", func(t *testing.T) {
		ip, port := serve(t, systemInfo)
		a := &NerdMiner{}

		info, err := a.GetInfo(context.Background(), ip, port)
		if err != nil {
			t.Fatalf("GetInfo: %v", err)
		}
		if info.Hashrate != 1.25e9 {
			t.Errorf("hashrate = %v, want 1.25e9 H/s", info.Hashrate)
		}
		if info.Status != domain.MinerStatusOnline {
			t.Errorf("status = %s, want online", info.Status)
		}
		if info.FirmwareVersion != "NerdQAxe+ (BM1368)" {
			t.Errorf("firmware = %q", info.FirmwareVersion)
		}
		if info.PoolURL != "solo.ckpool.org:3333" {
			t.Errorf("pool url = %q", info.PoolURL)
		}
		if info.PoolUser != "bc1qwallet.loft" {
			t.Errorf("pool user = %q", info.PoolUser)
		}
	})

	t.Run("disconnected pool means idle", func(t *testing.T) {
		idle := map[string]any{
			"hashRate": 0.8,
			"stratum": map[string]any{
				"pools": []any{map[string]any{"connected": false}},
			},
		}
		ip, port := serve(t, idle)
		info, err := (&NerdMiner{}).GetInfo(context.Background(), ip, port)
		if err != nil {
			t.Fatalf("GetInfo: %v", err)
		}
		if info.Status != domain.MinerStatusIdle {
			t.Errorf("status = %s, want idle", info.Status)
		}
	})

	t.Run("zero hashrate means offline", func(t *testing.T) {
		ip, port := serve(t, map[string]any{"hashRate": 0})
		info, err := (&NerdMiner{}).GetInfo(context.Background(), ip, port)
		if err != nil {
			t.Fatalf("GetInfo: %v", err)
		}
		if info.Status != domain.MinerStatusOffline {
			t.Errorf("status = %s, want offline", info.Status)
		}
	})

	t.Run("recent shares", func(t *testing.T) {
		ip, port := serve(t, systemInfo)
		shares, err := (&NerdMiner{}).RecentShares(context.Background(), ip, port, 10)
		if err != nil {
			t.Fatalf("RecentShares: %v", err)
		}
		if len(shares) != 2 {
			t.Fatalf("expected 2 shares, got %d", len(shares))
		}
		if shares[0].Difficulty != 1024 || !shares[0].Accepted {
			t.Errorf("first share = %+v", shares[0])
		}
		if shares[1].Accepted {
			t.Error("second share should be rejected")
		}
	})

	t.Run("share count capped", func(t *testing.T) {
		ip, port := serve(t, systemInfo)
		shares, err := (&NerdMiner{}).RecentShares(context.Background(), ip, port, 1)
		if err != nil {
			t.Fatalf("RecentShares: %v", err)
		}
		if len(shares) != 1 {
			t.Errorf("expected 1 share, got %d", len(shares))
		}
	})

	t.Run("detect by marker fields", func(t *testing.T) {
		ip, port := serve(t, systemInfo)
		savedWeb := webPort
		webPort = port
		defer func() { webPort = savedWeb }()

		if !(&NerdMiner{}).Detect(context.Background(), ip) {
			t.Error("expected detection with marker fields present")
		}
	})

	t.Run("detect rejects unrelated web servers", func(t *testing.T) {
		ip, port := serve(t, map[string]any{"hostname": "router"})
		savedWeb := webPort
		webPort = port
		defer func() { webPort = savedWeb }()

		if (&NerdMiner{}).Detect(context.Background(), ip) {
			t.Error("plain JSON endpoint should not detect as nerdminer")
		}
	})
}

const avalonSummary = `{"SUMMARY":[{"MHS av":3600000.0,"Temperature":71.0,"Elapsed":86400}]}`
const avalonPools = `{"POOLS":[{"URL":"stratum+tcp://solo.ckpool.org:3333","User":"bc1qwallet.nano","Accepted":512,"Pool Difficulty":4096}]}`

func TestAvalon(t *testing.T) {
	t.Run("info normalizes megahash", func(t *testing.T) {
		ip, port := fakeRawMiner(t, map[string]string{
			"summary": avalonSummary,
			"pools":   avalonPools,
		})

		info, err := (&Avalon{}).GetInfo(context.Background(), ip, port)
		if err != nil {
			t.Fatalf("GetInfo: %v", err)
		}
		if info.Hashrate != 3600000.0*1e6 {
			t.Errorf("hashrate = %v, want MHS av scaled to H/s", info.Hashrate)
		}
		if info.Temperature != 71.0 {
			t.Errorf("temperature = %v", info.Temperature)
		}
		if info.Uptime != 86400 {
			t.Errorf("uptime = %v", info.Uptime)
		}
		if info.PoolUser != "bc1qwallet.nano" {
			t.Errorf("pool user = %q", info.PoolUser)
		}
		if info.Status != domain.MinerStatusOnline {
			t.Errorf("status = %s", info.Status)
		}
	})

	t.Run("zero hashrate is idle", func(t *testing.T) {
		ip, port := fakeRawMiner(t, map[string]string{
			"summary": `{"SUMMARY":[{"MHS av":0}]}`,
		})
		info, err := (&Avalon{}).GetInfo(context.Background(), ip, port)
		if err != nil {
			t.Fatalf("GetInfo: %v", err)
		}
		if info.Status != domain.MinerStatusIdle {
			t.Errorf("status = %s, want idle", info.Status)
		}
	})

	t.Run("shares from cumulative counters", func(t *testing.T) {
		ip, port := fakeRawMiner(t, map[string]string{"pools": avalonPools})
		shares, err := (&Avalon{}).RecentShares(context.Background(), ip, port, 10)
		if err != nil {
			t.Fatalf("RecentShares: %v", err)
		}
		if len(shares) != 1 {
			t.Fatalf("expected 1 synthesized share, got %d", len(shares))
		}
		if shares[0].Difficulty != 4096 || shares[0].WorkerName != "bc1qwallet.nano" {
			t.Errorf("share = %+v", shares[0])
		}
	})

	t.Run("detect by raw vendor string", func(t *testing.T) {
		ip, port := fakeRawMiner(t, map[string]string{
			"version": `{"VERSION":[{"PROD":"AvalonNano3","CGMiner":"4.11.1"}]}`,
		})
		savedRaw, savedWeb := rawPort, webPort
		rawPort, webPort = port, 1 // web probe must fail fast
		defer func() { rawPort, webPort = savedRaw, savedWeb }()

		if !(&Avalon{}).Detect(context.Background(), ip) {
			t.Error("expected avalon detection from version response")
		}
	})
}

func TestAntminer(t *testing.T) {
	t.Run("info normalizes gigahash", func(t *testing.T) {
		ip, port := fakeRawMiner(t, map[string]string{
			"summary": `{"SUMMARY":[{"GHS av":95000.0,"Temperature":65.0,"Elapsed":3600}]}`,
			"pools":   `{"POOLS":[{"URL":"stratum+tcp://btc.2miners.com:1010","User":"bc1qwallet.s19"}]}`,
		})

		info, err := (&Antminer{}).GetInfo(context.Background(), ip, port)
		if err != nil {
			t.Fatalf("GetInfo: %v", err)
		}
		if info.Hashrate != 95000.0*1e9 {
			t.Errorf("hashrate = %v, want GHS av scaled to H/s", info.Hashrate)
		}
		if info.PoolURL != "stratum+tcp://btc.2miners.com:1010" {
			t.Errorf("pool url = %q", info.PoolURL)
		}
	})

	t.Run("detect by web banner", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html><title>Antminer S19</title></html>"))
		}))
		defer srv.Close()
		ip, port := hostPort(t, srv.URL)

		savedWeb := webPort
		webPort = port
		defer func() { webPort = savedWeb }()

		if !(&Antminer{}).Detect(context.Background(), ip) {
			t.Error("expected antminer detection from web banner")
		}
	})
}

func TestGenericCGMiner(t *testing.T) {
	t.Run("unit fallback order", func(t *testing.T) {
		for _, tc := range []struct {
			summary string
			want    float64
		}{
			{`{"SUMMARY":[{"GHS av":2.0,"MHS av":2000.0}]}`, 2.0e9},
			{`{"SUMMARY":[{"MHS av":500.0,"KHS av":500000.0}]}`, 500.0e6},
			{`{"SUMMARY":[{"KHS av":750.0}]}`, 750.0e3},
		} {
			ip, port := fakeRawMiner(t, map[string]string{"summary": tc.summary})
			info, err := (&GenericCGMiner{}).GetInfo(context.Background(), ip, port)
			if err != nil {
				t.Fatalf("GetInfo: %v", err)
			}
			if info.Hashrate != tc.want {
				t.Errorf("hashrate for %s = %v, want %v", tc.summary, info.Hashrate, tc.want)
			}
		}
	})

	t.Run("detect", func(t *testing.T) {
		ip, port := fakeRawMiner(t, map[string]string{
			"version": `{"VERSION":[{"CGMiner":"4.10.0","API":"3.7"}]}`,
		})
		savedRaw := rawPort
		rawPort = port
		defer func() { rawPort = savedRaw }()

		if !(&GenericCGMiner{}).Detect(context.Background(), ip) {
			t.Error("expected generic detection for cgminer version")
		}
	})
}

func TestDetectType(t *testing.T) {
	t.Run("falls through to generic", func(t *testing.T) {
		ip, port := fakeRawMiner(t, map[string]string{
			"version": `{"VERSION":[{"CGMiner":"4.9.2"}]}`,
		})
		savedRaw, savedWeb := rawPort, webPort
		rawPort, webPort = port, 1
		defer func() { rawPort, webPort = savedRaw, savedWeb }()

		if got := DetectType(context.Background(), ip); got != "cgminer" {
			t.Errorf("DetectType = %q, want cgminer", got)
		}
	})

	t.Run("specific family wins over generic", func(t *testing.T) {
		ip, port := fakeRawMiner(t, map[string]string{
			"version": `{"VERSION":[{"PROD":"AvalonQ","CGMiner":"4.11.1"}]}`,
		})
		savedRaw, savedWeb := rawPort, webPort
		rawPort, webPort = port, 1
		defer func() { rawPort, webPort = savedRaw, savedWeb }()

		if got := DetectType(context.Background(), ip); got != "avalon" {
			t.Errorf("DetectType = %q, want avalon", got)
		}
	})

	t.Run("nothing answers", func(t *testing.T) {
		savedRaw, savedWeb := rawPort, webPort
		rawPort, webPort = 1, 1
		defer func() { rawPort, webPort = savedRaw, savedWeb }()

		if got := DetectType(context.Background(), "127.0.0.1"); got != "" {
			t.Errorf("DetectType = %q, want empty", got)
		}
	})
}

func TestAcceptedShares(t *testing.T) {
	t.Run("raw protocol families", func(t *testing.T) {
		info := &domain.MinerInfo{RawData: map[string]any{
			"pools": map[string]any{
				"POOLS": []any{map[string]any{
					"Accepted":        float64(321),
					"Pool Difficulty": float64(2048),
				}},
			},
		}}
		count, diff := AcceptedShares("avalon", info)
		if count != 321 || diff != 2048 {
			t.Errorf("AcceptedShares = (%d, %v)", count, diff)
		}
	})

	t.Run("difficulty key fallback", func(t *testing.T) {
		info := &domain.MinerInfo{RawData: map[string]any{
			"pools": map[string]any{
				"POOLS": []any{map[string]any{
					"Accepted":            float64(7),
					"Difficulty Accepted": float64(131072),
				}},
			},
		}}
		count, diff := AcceptedShares("cgminer", info)
		if count != 7 || diff != 131072 {
			t.Errorf("AcceptedShares = (%d, %v)", count, diff)
		}
	})

	t.Run("nerdminer stratum block", func(t *testing.T) {
		info := &domain.MinerInfo{RawData: map[string]any{
			"stratum": map[string]any{
				"pools": []any{map[string]any{
					"accepted":       float64(42),
					"poolDifficulty": float64(512),
				}},
			},
		}}
		count, diff := AcceptedShares("nerdminer", info)
		if count != 42 || diff != 512 {
			t.Errorf("AcceptedShares = (%d, %v)", count, diff)
		}
	})

	t.Run("missing data yields zeros", func(t *testing.T) {
		if count, diff := AcceptedShares("avalon", nil); count != 0 || diff != 0 {
			t.Errorf("nil info = (%d, %v)", count, diff)
		}
		if count, diff := AcceptedShares("antminer", &domain.MinerInfo{RawData: map[string]any{}}); count != 0 || diff != 0 {
			t.Errorf("empty raw = (%d, %v)", count, diff)
		}
		if count, diff := AcceptedShares("unknown", &domain.MinerInfo{RawData: map[string]any{"x": 1}}); count != 0 || diff != 0 {
			t.Errorf("unknown type = (%d, %v)", count, diff)
		}
	})
}
