// Package pool normalizes heterogeneous mining-pool HTTP/JSON APIs into
// the canonical PoolStats model. One adapter variant exists per pool+coin;
// each owns its upstream schema completely.
package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"minewatch/internal/domain"
)

// FetchTimeout bounds a single stats fetch including retries.
const FetchTimeout = 15 * time.Second

// Adapter is the capability set every pool variant implements.
type Adapter interface {
	// PoolName returns the human-readable pool name.
	PoolName() string

	// Coin returns the coin symbol this variant tracks.
	Coin() string

	// ValidateAddress is an advisory format check: a false negative
	// skips a guaranteed-failing round trip, a false positive just
	// yields an upstream error later.
	ValidateAddress(address string) bool

	// FetchStats retrieves stats for an address. (nil, nil) means the
	// pool has no such account (HTTP 404); a non-nil error is a
	// transport or payload failure.
	FetchStats(ctx context.Context, address string) (*domain.PoolStats, error)
}

// httpClient is shared by all adapters; per-request deadlines come from
// the caller's context.
var httpClient = &http.Client{Timeout: FetchTimeout}

// getJSON fetches a URL and decodes the body into out. A 404 returns
// errNotFound so callers can map it to the "no such account" outcome.
// Transient failures are retried with capped exponential backoff.
func getJSON(ctx context.Context, url string, out any) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(errNotFound)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode %s: %w", url, err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = FetchTimeout

	return backoff.Retry(op, backoff.WithMaxRetries(backoff.WithContext(bo, ctx), 2))
}

// getJSONRaw decodes into out and additionally returns the payload as a
// generic map so snapshots can carry the upstream response verbatim.
func getJSONRaw(ctx context.Context, url string, out any) (map[string]any, error) {
	var raw json.RawMessage
	if err := getJSON(ctx, url, &raw); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return m, nil
}

// errNotFound marks the 404 business outcome distinctly from transport
// failures.
var errNotFound = fmt.Errorf("not found")

// IsNotFound reports whether err is the no-such-account outcome.
func IsNotFound(err error) bool {
	return err == errNotFound
}
