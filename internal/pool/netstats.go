package pool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"minewatch/internal/domain"
)

// netStatsSources is overridable for tests.
var netStatsSources = struct {
	btcPrimary  string
	btcFallback string
	bchStats    string
}{
	btcPrimary:  "https://blockchain.info/q/getdifficulty",
	btcFallback: "https://mempool.space/api/v1/difficulty-adjustment",
	bchStats:    "https://bch.2miners.com/api/stats",
}

// NetworkDifficulties fetches the chain difficulty for each requested
// coin. Coins with no known source, or whose sources all fail, are
// simply absent from the result; the caller degrades gracefully.
func NetworkDifficulties(ctx context.Context, coins map[string]bool) map[string]float64 {
	out := make(map[string]float64)
	if coins["BTC"] {
		if d, err := btcDifficulty(ctx); err == nil {
			out["BTC"] = d
		}
	}
	if coins["BCH"] {
		if d, err := bchDifficulty(ctx); err == nil {
			out["BCH"] = d
		}
	}
	return out
}

// btcDifficulty asks blockchain.info first (plain-text decimal body) and
// falls back to mempool.space's difficulty-adjustment endpoint.
func btcDifficulty(ctx context.Context) (float64, error) {
	if d, err := getText(ctx, netStatsSources.btcPrimary); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(d), 64); err == nil {
			return v, nil
		}
	}

	var adj struct {
		Difficulty float64 `json:"difficulty"`
	}
	if err := getJSON(ctx, netStatsSources.btcFallback, &adj); err != nil {
		return 0, fmt.Errorf("fetch BTC difficulty: %w", err)
	}
	if adj.Difficulty == 0 {
		return 0, fmt.Errorf("BTC difficulty unavailable")
	}
	return adj.Difficulty, nil
}

// bchDifficulty reads the first node entry of the 2miners BCH stats.
func bchDifficulty(ctx context.Context) (float64, error) {
	var node twoMinersNodeStats
	if err := getJSON(ctx, netStatsSources.bchStats, &node); err != nil {
		return 0, fmt.Errorf("fetch BCH difficulty: %w", err)
	}
	if len(node.Nodes) == 0 {
		return 0, fmt.Errorf("BCH stats carried no nodes")
	}
	d := domain.ParseHashrate(node.Nodes[0].Difficulty)
	if d == 0 {
		return 0, fmt.Errorf("BCH difficulty unavailable")
	}
	return d, nil
}

// getText fetches a plain-text endpoint without the retry wrapper;
// difficulty sources have a fallback instead.
func getText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
