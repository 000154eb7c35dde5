package pool

import (
	"fmt"
	"sort"
)

// factories maps adapter keys to constructors. Keys are stable API
// identifiers stored on accounts; renaming one is a breaking change.
var factories = map[string]func() (Adapter, error){
	"ckpool_btc":       func() (Adapter, error) { return NewCKPool(), nil },
	"2miners_solo_bch": func() (Adapter, error) { return NewTwoMinersSolo("BCH") },
	"2miners_solo_btc": func() (Adapter, error) { return NewTwoMinersSolo("BTC") },
	"2miners_bch":      func() (Adapter, error) { return NewTwoMiners("BCH") },
	"2miners_btc":      func() (Adapter, error) { return NewTwoMiners("BTC") },
	"2miners_eth":      func() (Adapter, error) { return NewTwoMiners("ETH") },
	"2miners_rvn":      func() (Adapter, error) { return NewTwoMiners("RVN") },
}

// Get constructs the adapter registered under key.
func Get(key string) (Adapter, error) {
	factory, ok := factories[key]
	if !ok {
		return nil, fmt.Errorf("unknown pool adapter %q", key)
	}
	return factory()
}

// Keys returns the registered adapter keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(factories))
	for k := range factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Info describes one registered adapter for discovery endpoints.
type Info struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Coin string `json:"coin"`
}

// List returns descriptions of every registered adapter.
func List() []Info {
	infos := make([]Info, 0, len(factories))
	for _, key := range Keys() {
		a, err := Get(key)
		if err != nil {
			continue
		}
		infos = append(infos, Info{Key: key, Name: a.PoolName(), Coin: a.Coin()})
	}
	return infos
}
