package domain

import "time"

// Account is a tracked mining account: one wallet address on one pool.
// Identity is (Address, PoolAdapter) and the store enforces uniqueness.
type Account struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	PoolAdapter string    `json:"pool_adapter"`
	Coin        string    `json:"coin"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewAccount creates an enabled account for the given pool adapter key.
func NewAccount(name, address, poolAdapter, coin string) *Account {
	return &Account{
		Name:        name,
		Address:     address,
		PoolAdapter: poolAdapter,
		Coin:        coin,
		Enabled:     true,
		CreatedAt:   time.Now(),
	}
}
