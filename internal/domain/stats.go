package domain

// WorkerStats is per-worker telemetry from a single pool fetch.
type WorkerStats struct {
	Name        string  `json:"name"`
	Hashrate    float64 `json:"hashrate"`
	HashrateAvg float64 `json:"hashrate_avg,omitempty"`
	LastShare   int64   `json:"last_share,omitempty"`
	SharesCount int64   `json:"shares_count,omitempty"`
	Difficulty  float64 `json:"difficulty,omitempty"`
	Offline     bool    `json:"offline"`
}

// PoolStats is the canonical snapshot model every pool adapter maps its
// upstream schema into. Missing numerics are zero, missing optionals are
// zero/nil; RawData carries the upstream payload verbatim.
type PoolStats struct {
	PoolName    string  `json:"pool_name"`
	Coin        string  `json:"coin"`
	Address     string  `json:"address"`
	Hashrate    float64 `json:"hashrate"`
	HashrateAvg float64 `json:"hashrate_avg,omitempty"`

	WorkersOnline  int     `json:"workers_online"`
	WorkersOffline int     `json:"workers_offline"`
	Balance        float64 `json:"balance"`
	Paid           float64 `json:"paid"`

	BestShare float64 `json:"best_share,omitempty"`
	BestEver  float64 `json:"best_ever,omitempty"`
	// BestShareEstimated marks BestShare as a derived approximation
	// (network difficulty based) rather than a pool-reported value.
	BestShareEstimated bool `json:"best_share_estimated,omitempty"`

	NetworkDifficulty float64 `json:"network_difficulty,omitempty"`
	LastShare         int64   `json:"last_share,omitempty"`

	Workers []WorkerStats  `json:"workers,omitempty"`
	RawData map[string]any `json:"raw_data,omitempty"`
}

// SnapshotPoint is one row of persisted hashrate history.
type SnapshotPoint struct {
	Timestamp         string  `json:"timestamp"`
	Hashrate          float64 `json:"hashrate"`
	HashrateAvg       float64 `json:"hashrate_avg"`
	NetworkDifficulty float64 `json:"network_difficulty"`
}

// BestShare is a persisted best-share record. Rows are only written when
// the difficulty strictly exceeds the previous high-water mark for the
// (account, pool) pair.
type BestShare struct {
	Timestamp  string  `json:"timestamp"`
	AccountID  int64   `json:"account_id,omitempty"`
	PoolName   string  `json:"pool_name"`
	WorkerName string  `json:"worker_name,omitempty"`
	Difficulty float64 `json:"difficulty"`
	IsBestEver bool    `json:"is_best_ever"`
}

// ShareSubmission is one accepted (or rejected) share, either synthesized
// from device counter deltas or logged through the API.
type ShareSubmission struct {
	Timestamp  string  `json:"timestamp"`
	AccountID  int64   `json:"account_id,omitempty"`
	MinerID    int64   `json:"miner_id,omitempty"`
	PoolName   string  `json:"pool_name"`
	WorkerName string  `json:"worker_name,omitempty"`
	Difficulty float64 `json:"difficulty"`
	Accepted   bool    `json:"accepted"`
}

// ShareStatistics summarizes share submissions over a window.
type ShareStatistics struct {
	TotalShares    int64   `json:"total_shares"`
	AcceptedShares int64   `json:"accepted_shares"`
	RejectedShares int64   `json:"rejected_shares"`
	BestShare      float64 `json:"best_share"`
	AvgDifficulty  float64 `json:"avg_difficulty"`
}
