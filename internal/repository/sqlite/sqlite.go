// Package sqlite persists accounts, devices and append-only telemetry
// history in a single SQLite file.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Repository wraps the SQLite handle. All telemetry tables are
// append-only; only accounts, miners and miner_links are mutated.
type Repository struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies the schema.
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return repo, nil
}

// Close releases the database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		address TEXT NOT NULL,
		pool_adapter TEXT NOT NULL,
		coin TEXT NOT NULL,
		enabled BOOLEAN DEFAULT TRUE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(address, pool_adapter)
	);

	CREATE TABLE IF NOT EXISTS pool_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		account_id INTEGER,
		pool_name TEXT NOT NULL,
		coin TEXT NOT NULL,
		hashrate REAL,
		hashrate_avg REAL,
		workers_online INTEGER,
		workers_offline INTEGER,
		balance REAL,
		best_share REAL,
		best_ever REAL,
		network_difficulty REAL,
		raw_json TEXT,
		FOREIGN KEY (account_id) REFERENCES accounts (id)
	);

	CREATE TABLE IF NOT EXISTS worker_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		account_id INTEGER,
		pool_name TEXT NOT NULL,
		worker_name TEXT NOT NULL,
		hashrate REAL,
		hashrate_avg REAL,
		best_share REAL,
		shares_count INTEGER,
		offline BOOLEAN,
		FOREIGN KEY (account_id) REFERENCES accounts (id)
	);

	CREATE TABLE IF NOT EXISTS best_shares (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		account_id INTEGER,
		pool_name TEXT NOT NULL,
		worker_name TEXT,
		difficulty REAL NOT NULL,
		is_best_ever BOOLEAN DEFAULT FALSE,
		FOREIGN KEY (account_id) REFERENCES accounts (id)
	);

	CREATE TABLE IF NOT EXISTS share_submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		account_id INTEGER,
		miner_id INTEGER,
		pool_name TEXT NOT NULL,
		worker_name TEXT,
		difficulty REAL NOT NULL,
		accepted BOOLEAN DEFAULT TRUE,
		FOREIGN KEY (account_id) REFERENCES accounts (id),
		FOREIGN KEY (miner_id) REFERENCES miners (id)
	);

	CREATE TABLE IF NOT EXISTS miners (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		miner_type TEXT NOT NULL,
		ip_address TEXT,
		mac_address TEXT,
		api_port INTEGER,
		status TEXT DEFAULT 'unknown',
		enabled BOOLEAN DEFAULT TRUE,
		auto_discovered BOOLEAN DEFAULT FALSE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_seen DATETIME,
		UNIQUE(ip_address)
	);

	CREATE TABLE IF NOT EXISTS miner_links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		miner_id INTEGER NOT NULL,
		account_id INTEGER,
		pool_url TEXT,
		worker_name TEXT,
		active BOOLEAN DEFAULT TRUE,
		detected_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (miner_id) REFERENCES miners (id) ON DELETE CASCADE,
		FOREIGN KEY (account_id) REFERENCES accounts (id) ON DELETE SET NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_enabled ON accounts(enabled);
	CREATE INDEX IF NOT EXISTS idx_pool_snapshots_time ON pool_snapshots(timestamp, pool_name);
	CREATE INDEX IF NOT EXISTS idx_pool_snapshots_account ON pool_snapshots(account_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_worker_snapshots_time ON worker_snapshots(timestamp, pool_name, worker_name);
	CREATE INDEX IF NOT EXISTS idx_worker_snapshots_account ON worker_snapshots(account_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_best_shares_time ON best_shares(timestamp, pool_name);
	CREATE INDEX IF NOT EXISTS idx_best_shares_account ON best_shares(account_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_share_submissions_account ON share_submissions(account_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_share_submissions_time ON share_submissions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_miners_ip ON miners(ip_address);
	CREATE INDEX IF NOT EXISTS idx_miners_enabled ON miners(enabled);
	CREATE INDEX IF NOT EXISTS idx_miner_links_miner ON miner_links(miner_id);
	CREATE INDEX IF NOT EXISTS idx_miner_links_account ON miner_links(account_id);
	`

	_, err := r.db.Exec(schema)
	return err
}

// sqliteTime is the literal layout SQLite's CURRENT_TIMESTAMP produces;
// cutoffs are formatted the same way so string comparison orders
// correctly.
const sqliteTime = "2006-01-02 15:04:05"

func hoursAgo(hours int) string {
	return time.Now().UTC().Add(-time.Duration(hours) * time.Hour).Format(sqliteTime)
}

func daysAgo(days int) string {
	return time.Now().UTC().AddDate(0, 0, -days).Format(sqliteTime)
}

// nullable converts zero IDs to SQL NULL; telemetry rows may predate the
// account or device they belong to.
func nullable(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
