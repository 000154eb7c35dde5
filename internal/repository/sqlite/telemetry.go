package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"minewatch/internal/domain"
)

// SaveSnapshot appends one pool-level snapshot. Snapshots are never
// updated or rewritten.
func (r *Repository) SaveSnapshot(ctx context.Context, accountID int64, stats *domain.PoolStats) error {
	var rawJSON sql.NullString
	if stats.RawData != nil {
		if data, err := json.Marshal(stats.RawData); err == nil {
			rawJSON = sql.NullString{String: string(data), Valid: true}
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pool_snapshots
		(account_id, pool_name, coin, hashrate, hashrate_avg, workers_online,
		 workers_offline, balance, best_share, best_ever, network_difficulty, raw_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, nullable(accountID), stats.PoolName, stats.Coin, stats.Hashrate, stats.HashrateAvg,
		stats.WorkersOnline, stats.WorkersOffline, stats.Balance,
		stats.BestShare, stats.BestEver, stats.NetworkDifficulty, rawJSON)
	if err != nil {
		return fmt.Errorf("failed to insert pool snapshot: %w", err)
	}
	return nil
}

// SaveWorkerSnapshot appends one per-worker snapshot.
func (r *Repository) SaveWorkerSnapshot(ctx context.Context, accountID int64, poolName string, w domain.WorkerStats) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO worker_snapshots
		(account_id, pool_name, worker_name, hashrate, hashrate_avg, best_share, shares_count, offline)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, nullable(accountID), poolName, w.Name, w.Hashrate, w.HashrateAvg, w.Difficulty, w.SharesCount, w.Offline)
	if err != nil {
		return fmt.Errorf("failed to insert worker snapshot: %w", err)
	}
	return nil
}

// LogBestShare records a best share only when difficulty strictly
// exceeds the stored high-water mark for the (account, pool) pair.
// Reports whether a row was written.
func (r *Repository) LogBestShare(ctx context.Context, accountID int64, poolName, workerName string, difficulty float64, isBestEver bool) (bool, error) {
	var best sql.NullFloat64
	var err error
	if accountID != 0 {
		err = r.db.QueryRowContext(ctx, `
			SELECT MAX(difficulty) FROM best_shares
			WHERE pool_name = ? AND account_id = ?
		`, poolName, accountID).Scan(&best)
	} else {
		err = r.db.QueryRowContext(ctx, `
			SELECT MAX(difficulty) FROM best_shares
			WHERE pool_name = ?
		`, poolName).Scan(&best)
	}
	if err != nil {
		return false, fmt.Errorf("failed to query best share: %w", err)
	}
	if best.Valid && difficulty <= best.Float64 {
		return false, nil
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO best_shares (account_id, pool_name, worker_name, difficulty, is_best_ever)
		VALUES (?, ?, ?, ?, ?)
	`, nullable(accountID), poolName, nullStr(workerName), difficulty, isBestEver)
	if err != nil {
		return false, fmt.Errorf("failed to insert best share: %w", err)
	}
	return true, nil
}

// LogShareSubmission appends one share record and returns its ID.
func (r *Repository) LogShareSubmission(ctx context.Context, accountID, minerID int64, poolName, workerName string, difficulty float64, accepted bool) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO share_submissions (account_id, miner_id, pool_name, worker_name, difficulty, accepted)
		VALUES (?, ?, ?, ?, ?, ?)
	`, nullable(accountID), nullable(minerID), poolName, nullStr(workerName), difficulty, accepted)
	if err != nil {
		return 0, fmt.Errorf("failed to insert share submission: %w", err)
	}
	return res.LastInsertId()
}

// HashrateHistory returns pool snapshots within the window, oldest
// first.
func (r *Repository) HashrateHistory(ctx context.Context, poolName string, hours int) ([]domain.SnapshotPoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT timestamp, hashrate, hashrate_avg, network_difficulty
		FROM pool_snapshots
		WHERE pool_name = ? AND timestamp > ?
		ORDER BY timestamp ASC
	`, poolName, hoursAgo(hours))
	if err != nil {
		return nil, fmt.Errorf("failed to query hashrate history: %w", err)
	}
	defer rows.Close()

	var points []domain.SnapshotPoint
	for rows.Next() {
		var p domain.SnapshotPoint
		var hashrate, avg, diff sql.NullFloat64
		if err := rows.Scan(&p.Timestamp, &hashrate, &avg, &diff); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		p.Hashrate = hashrate.Float64
		p.HashrateAvg = avg.Float64
		p.NetworkDifficulty = diff.Float64
		points = append(points, p)
	}
	return points, rows.Err()
}

// BestShares returns the most recent best-share records, newest first.
// An empty poolName spans all pools.
func (r *Repository) BestShares(ctx context.Context, poolName string, limit int) ([]domain.BestShare, error) {
	query := `
		SELECT timestamp, account_id, pool_name, worker_name, difficulty, is_best_ever
		FROM best_shares
	`
	var args []any
	if poolName != "" {
		query += ` WHERE pool_name = ?`
		args = append(args, poolName)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query best shares: %w", err)
	}
	defer rows.Close()

	var shares []domain.BestShare
	for rows.Next() {
		var s domain.BestShare
		var accountID sql.NullInt64
		var worker sql.NullString
		if err := rows.Scan(&s.Timestamp, &accountID, &s.PoolName, &worker, &s.Difficulty, &s.IsBestEver); err != nil {
			return nil, fmt.Errorf("failed to scan best share: %w", err)
		}
		s.AccountID = accountID.Int64
		s.WorkerName = worker.String
		shares = append(shares, s)
	}
	return shares, rows.Err()
}

// WorkerHistoryPoint is one row of persisted per-worker history.
type WorkerHistoryPoint struct {
	Timestamp   string  `json:"timestamp"`
	Hashrate    float64 `json:"hashrate"`
	HashrateAvg float64 `json:"hashrate_avg"`
	BestShare   float64 `json:"best_share"`
	SharesCount int64   `json:"shares_count"`
}

// WorkerHistory returns snapshots for one worker, oldest first.
func (r *Repository) WorkerHistory(ctx context.Context, poolName, workerName string, hours int) ([]WorkerHistoryPoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT timestamp, hashrate, hashrate_avg, best_share, shares_count
		FROM worker_snapshots
		WHERE pool_name = ? AND worker_name = ? AND timestamp > ?
		ORDER BY timestamp ASC
	`, poolName, workerName, hoursAgo(hours))
	if err != nil {
		return nil, fmt.Errorf("failed to query worker history: %w", err)
	}
	defer rows.Close()

	var points []WorkerHistoryPoint
	for rows.Next() {
		var p WorkerHistoryPoint
		var hashrate, avg, best sql.NullFloat64
		var count sql.NullInt64
		if err := rows.Scan(&p.Timestamp, &hashrate, &avg, &best, &count); err != nil {
			return nil, fmt.Errorf("failed to scan worker snapshot: %w", err)
		}
		p.Hashrate = hashrate.Float64
		p.HashrateAvg = avg.Float64
		p.BestShare = best.Float64
		p.SharesCount = count.Int64
		points = append(points, p)
	}
	return points, rows.Err()
}

// ShareSubmissions returns recent shares, newest first. accountID 0 and
// poolName "" act as wildcards.
func (r *Repository) ShareSubmissions(ctx context.Context, accountID int64, poolName string, hours, limit int) ([]domain.ShareSubmission, error) {
	query := `
		SELECT timestamp, account_id, miner_id, pool_name, worker_name, difficulty, accepted
		FROM share_submissions
		WHERE timestamp > ?
	`
	args := []any{hoursAgo(hours)}
	if accountID != 0 {
		query += ` AND account_id = ?`
		args = append(args, accountID)
	}
	if poolName != "" {
		query += ` AND pool_name = ?`
		args = append(args, poolName)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query share submissions: %w", err)
	}
	defer rows.Close()

	var shares []domain.ShareSubmission
	for rows.Next() {
		var s domain.ShareSubmission
		var account, minerID sql.NullInt64
		var worker sql.NullString
		if err := rows.Scan(&s.Timestamp, &account, &minerID, &s.PoolName, &worker, &s.Difficulty, &s.Accepted); err != nil {
			return nil, fmt.Errorf("failed to scan share submission: %w", err)
		}
		s.AccountID = account.Int64
		s.MinerID = minerID.Int64
		s.WorkerName = worker.String
		shares = append(shares, s)
	}
	return shares, rows.Err()
}

// ShareStatistics aggregates one account's share submissions over the
// window.
func (r *Repository) ShareStatistics(ctx context.Context, accountID int64, hours int) (*domain.ShareStatistics, error) {
	var stats domain.ShareStatistics
	var accepted, rejected sql.NullInt64
	var best, avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			SUM(CASE WHEN accepted = 1 THEN 1 ELSE 0 END),
			SUM(CASE WHEN accepted = 0 THEN 1 ELSE 0 END),
			MAX(difficulty),
			AVG(difficulty)
		FROM share_submissions
		WHERE account_id = ? AND timestamp > ?
	`, accountID, hoursAgo(hours)).Scan(&stats.TotalShares, &accepted, &rejected, &best, &avg)
	if err != nil {
		return nil, fmt.Errorf("failed to query share statistics: %w", err)
	}
	stats.AcceptedShares = accepted.Int64
	stats.RejectedShares = rejected.Int64
	stats.BestShare = best.Float64
	stats.AvgDifficulty = avg.Float64
	return &stats, nil
}

// StatsSummary aggregates snapshot counts, the all-time best share, and
// the 24h average hashrate. An empty poolName spans all pools.
func (r *Repository) StatsSummary(ctx context.Context, poolName string) (map[string]any, error) {
	filter, args := "", []any{}
	if poolName != "" {
		filter = ` WHERE pool_name = ?`
		args = []any{poolName}
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pool_snapshots`+filter, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count snapshots: %w", err)
	}

	var best sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(difficulty) FROM best_shares`+filter, args...).Scan(&best); err != nil {
		return nil, fmt.Errorf("failed to query best share ever: %w", err)
	}

	avgQuery := `SELECT AVG(hashrate) FROM pool_snapshots WHERE timestamp > ?`
	avgArgs := []any{hoursAgo(24)}
	if poolName != "" {
		avgQuery += ` AND pool_name = ?`
		avgArgs = append(avgArgs, poolName)
	}
	var avg sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, avgQuery, avgArgs...).Scan(&avg); err != nil {
		return nil, fmt.Errorf("failed to query average hashrate: %w", err)
	}

	return map[string]any{
		"total_snapshots":  total,
		"best_share_ever":  best.Float64,
		"avg_hashrate_24h": avg.Float64,
	}, nil
}

// CleanupOldData prunes snapshots older than days. Best shares are kept
// three times longer, and best-ever records are never pruned.
func (r *Repository) CleanupOldData(ctx context.Context, days int) error {
	cutoff := daysAgo(days)
	for _, stmt := range []string{
		`DELETE FROM pool_snapshots WHERE timestamp < ?`,
		`DELETE FROM worker_snapshots WHERE timestamp < ?`,
		`DELETE FROM share_submissions WHERE timestamp < ?`,
	} {
		if _, err := r.db.ExecContext(ctx, stmt, cutoff); err != nil {
			return fmt.Errorf("failed to prune telemetry: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, `
		DELETE FROM best_shares WHERE timestamp < ? AND is_best_ever = FALSE
	`, daysAgo(days*3))
	if err != nil {
		return fmt.Errorf("failed to prune best shares: %w", err)
	}
	return nil
}
