package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"minewatch/internal/domain"

	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// ErrDuplicateAccount is returned when an (address, pool adapter) pair
// is already tracked.
var ErrDuplicateAccount = errors.New("account already tracked for this pool")

// AddAccount inserts a tracked account and returns its ID.
func (r *Repository) AddAccount(ctx context.Context, name, address, poolAdapter, coin string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (name, address, pool_adapter, coin)
		VALUES (?, ?, ?, ?)
	`, name, address, poolAdapter, coin)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateAccount
		}
		return 0, fmt.Errorf("failed to insert account: %w", err)
	}
	return res.LastInsertId()
}

// GetAccounts returns tracked accounts, newest first.
func (r *Repository) GetAccounts(ctx context.Context, enabledOnly bool) ([]domain.Account, error) {
	query := `
		SELECT id, name, address, pool_adapter, coin, enabled, created_at
		FROM accounts
	`
	if enabledOnly {
		query += ` WHERE enabled = TRUE`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Address, &a.PoolAdapter, &a.Coin, &a.Enabled, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetAccount returns one account, or (nil, nil) when it does not exist.
func (r *Repository) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	var a domain.Account
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, address, pool_adapter, coin, enabled, created_at
		FROM accounts
		WHERE id = ?
	`, id).Scan(&a.ID, &a.Name, &a.Address, &a.PoolAdapter, &a.Coin, &a.Enabled, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account %d: %w", id, err)
	}
	return &a, nil
}

// UpdateAccount changes the mutable account fields; nil pointers leave a
// field untouched.
func (r *Repository) UpdateAccount(ctx context.Context, id int64, name *string, enabled *bool) error {
	var sets []string
	var args []any
	if name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *name)
	}
	if enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, *enabled)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	_, err := r.db.ExecContext(ctx, `UPDATE accounts SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update account %d: %w", id, err)
	}
	return nil
}

// DeleteAccount removes an account and its telemetry history.
func (r *Repository) DeleteAccount(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM pool_snapshots WHERE account_id = ?`,
		`DELETE FROM worker_snapshots WHERE account_id = ?`,
		`DELETE FROM best_shares WHERE account_id = ?`,
		`DELETE FROM share_submissions WHERE account_id = ?`,
		`UPDATE miner_links SET account_id = NULL WHERE account_id = ?`,
		`DELETE FROM accounts WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete account %d: %w", id, err)
		}
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var serr *sqlite3.Error
	if errors.As(err, &serr) {
		code := serr.Code()
		return code == sqlite3lib.SQLITE_CONSTRAINT ||
			code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE ||
			code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
