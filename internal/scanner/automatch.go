package scanner

import (
	"strings"

	"minewatch/internal/domain"
	"minewatch/internal/miner"
)

// poolDomainAdapters maps known stratum endpoints to the pool adapter
// key an account must be configured with for a link to be trustworthy.
var poolDomainAdapters = map[string]string{
	"solo.ckpool.org":      "ckpool_btc",
	"solo-bch.2miners.com": "2miners_solo_bch",
	"solo-btc.2miners.com": "2miners_solo_btc",
	"bch.2miners.com":      "2miners_bch",
	"btc.2miners.com":      "2miners_btc",
}

// AutoMatch correlates a device with a tracked account using its stratum
// configuration: the wallet part of the user string must appear in the
// account address (case-insensitive), and the stratum domain must map to
// the account's pool adapter. Returns 0 when nothing matches.
func AutoMatch(info *domain.MinerInfo, accounts []domain.Account) int64 {
	if info == nil || info.PoolURL == "" || info.PoolUser == "" {
		return 0
	}
	wallet, _ := miner.ExtractWalletWorker(info.PoolUser)
	if wallet == "" {
		return 0
	}
	wallet = strings.ToLower(wallet)
	poolDomain := stratumDomain(info.PoolURL)

	for _, acct := range accounts {
		if !strings.Contains(strings.ToLower(acct.Address), wallet) {
			continue
		}
		for dom, adapterKey := range poolDomainAdapters {
			if strings.Contains(poolDomain, dom) && acct.PoolAdapter == adapterKey {
				return acct.ID
			}
		}
	}
	return 0
}

// stratumDomain strips scheme, path and port from a pool URL. Device
// configs carry anything from "stratum+tcp://host:3333" to "host:3333".
func stratumDomain(poolURL string) string {
	host := poolURL
	if i := strings.Index(host, "//"); i >= 0 {
		host = host[i+2:]
	}
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}
