package pool

import (
	"context"
	"fmt"

	"minewatch/internal/domain"
)

// twoMinersURLs maps coin to the regular (shared) pool API base.
var twoMinersURLs = map[string]string{
	"BCH": "https://bch.2miners.com/api",
	"BTC": "https://btc.2miners.com/api",
	"ETH": "https://eth.2miners.com/api",
	"RVN": "https://rvn.2miners.com/api",
}

// TwoMiners adapts the 2miners.com shared pool API. Unlike the solo
// variant it reports a credited balance and payment history, and never
// attempts a best-share figure.
type TwoMiners struct {
	coin    string
	baseURL string
}

// NewTwoMiners returns a shared-pool adapter for the given coin.
func NewTwoMiners(coin string) (*TwoMiners, error) {
	base, ok := twoMinersURLs[coin]
	if !ok {
		return nil, fmt.Errorf("coin %s not supported by 2miners, supported: %v", coin, supportedCoins(twoMinersURLs))
	}
	return &TwoMiners{coin: coin, baseURL: base}, nil
}

func (p *TwoMiners) PoolName() string { return "2Miners " + p.coin }
func (p *TwoMiners) Coin() string     { return p.coin }

func (p *TwoMiners) ValidateAddress(address string) bool {
	return len(address) > 20
}

func (p *TwoMiners) FetchStats(ctx context.Context, address string) (*domain.PoolStats, error) {
	if !p.ValidateAddress(address) {
		return nil, fmt.Errorf("invalid %s address %q", p.coin, address)
	}

	var acct twoMinersAccount
	raw, err := getJSONRaw(ctx, fmt.Sprintf("%s/accounts/%s", p.baseURL, address), &acct)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch 2miners stats: %w", err)
	}
	if _, ok := raw["workers"]; !ok {
		return nil, fmt.Errorf("2miners returned payload without workers for %s", address)
	}

	var totalPaid float64
	for _, pay := range acct.Payments {
		totalPaid += pay.Amount
	}

	return &domain.PoolStats{
		PoolName:       p.PoolName(),
		Coin:           p.coin,
		Address:        address,
		Hashrate:       acct.CurrentHashrate,
		HashrateAvg:    acct.Hashrate,
		WorkersOnline:  acct.WorkersOnline,
		WorkersOffline: acct.WorkersOffline,
		Balance:        acct.Stats.Balance / 1e8,
		Paid:           totalPaid / 1e8,
		LastShare:      acct.Stats.LastShare,
		Workers:        twoMinersWorkers(acct.Workers),
		RawData:        raw,
	}, nil
}
