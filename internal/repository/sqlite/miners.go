package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"minewatch/internal/domain"
)

// UpsertMiner registers a device. IP addresses are unique: re-seeing a
// known IP refreshes its status and last-seen time and returns the
// existing row ID.
func (r *Repository) UpsertMiner(ctx context.Context, m *domain.Miner) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO miners (name, miner_type, ip_address, mac_address, api_port, auto_discovered, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.Name, m.MinerType, m.IPAddress, nullStr(m.MACAddress), m.APIPort, m.AutoDiscovered, time.Now().UTC().Format(sqliteTime))
	if err == nil {
		return res.LastInsertId()
	}
	if !isUniqueViolation(err) {
		return 0, fmt.Errorf("failed to insert miner: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE miners SET last_seen = ?, status = 'online' WHERE ip_address = ?
	`, time.Now().UTC().Format(sqliteTime), m.IPAddress)
	if err != nil {
		return 0, fmt.Errorf("failed to refresh miner %s: %w", m.IPAddress, err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, `SELECT id FROM miners WHERE ip_address = ?`, m.IPAddress).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to resolve miner %s: %w", m.IPAddress, err)
	}
	return id, nil
}

const minerColumns = `id, name, miner_type, ip_address, mac_address, api_port,
	status, enabled, auto_discovered, created_at, last_seen`

func scanMiner(scan func(...any) error) (*domain.Miner, error) {
	var m domain.Miner
	var mac sql.NullString
	var port sql.NullInt64
	var lastSeen sql.NullTime
	err := scan(&m.ID, &m.Name, &m.MinerType, &m.IPAddress, &mac, &port,
		&m.Status, &m.Enabled, &m.AutoDiscovered, &m.CreatedAt, &lastSeen)
	if err != nil {
		return nil, err
	}
	m.MACAddress = mac.String
	m.APIPort = int(port.Int64)
	if lastSeen.Valid {
		t := lastSeen.Time
		m.LastSeen = &t
	}
	return &m, nil
}

// GetMiners lists devices, most recently seen first.
func (r *Repository) GetMiners(ctx context.Context, enabledOnly bool) ([]domain.Miner, error) {
	query := `SELECT ` + minerColumns + ` FROM miners`
	if enabledOnly {
		query += ` WHERE enabled = TRUE`
	}
	query += ` ORDER BY last_seen DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query miners: %w", err)
	}
	defer rows.Close()

	var miners []domain.Miner
	for rows.Next() {
		m, err := scanMiner(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan miner: %w", err)
		}
		miners = append(miners, *m)
	}
	return miners, rows.Err()
}

// GetMiner returns one device, or (nil, nil) when it does not exist.
func (r *Repository) GetMiner(ctx context.Context, id int64) (*domain.Miner, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+minerColumns+` FROM miners WHERE id = ?`, id)
	m, err := scanMiner(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query miner %d: %w", id, err)
	}
	return m, nil
}

// UpdateMiner changes mutable device fields; nil pointers leave a field
// untouched.
func (r *Repository) UpdateMiner(ctx context.Context, id int64, name *string, status *domain.MinerStatus, enabled *bool, lastSeen *time.Time) error {
	var sets []string
	var args []any
	if name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *name)
	}
	if status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*status))
	}
	if enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, *enabled)
	}
	if lastSeen != nil {
		sets = append(sets, "last_seen = ?")
		args = append(args, lastSeen.UTC().Format(sqliteTime))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	_, err := r.db.ExecContext(ctx, `UPDATE miners SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update miner %d: %w", id, err)
	}
	return nil
}

// DeleteMiner removes a device and its links.
func (r *Repository) DeleteMiner(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM miner_links WHERE miner_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete miner links: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM miners WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete miner %d: %w", id, err)
	}
	return tx.Commit()
}

// AddMinerLink records a device's stratum configuration, optionally
// bound to an account. The previous active link, if any, is deactivated
// rather than deleted so detection history survives.
func (r *Repository) AddMinerLink(ctx context.Context, link *domain.MinerLink) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin link: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE miner_links SET active = FALSE WHERE miner_id = ? AND active = TRUE
	`, link.MinerID); err != nil {
		return 0, fmt.Errorf("failed to deactivate previous links: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO miner_links (miner_id, account_id, pool_url, worker_name)
		VALUES (?, ?, ?, ?)
	`, link.MinerID, nullable(link.AccountID), nullStr(link.PoolURL), nullStr(link.WorkerName))
	if err != nil {
		return 0, fmt.Errorf("failed to insert miner link: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// GetMinerLinks returns active links. minerID and accountID act as
// filters when non-zero.
func (r *Repository) GetMinerLinks(ctx context.Context, minerID, accountID int64) ([]domain.MinerLink, error) {
	query := `
		SELECT id, miner_id, account_id, pool_url, worker_name, active, detected_at
		FROM miner_links
		WHERE active = TRUE
	`
	var args []any
	if minerID != 0 {
		query += ` AND miner_id = ?`
		args = append(args, minerID)
	}
	if accountID != 0 {
		query += ` AND account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY detected_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query miner links: %w", err)
	}
	defer rows.Close()

	var links []domain.MinerLink
	for rows.Next() {
		var l domain.MinerLink
		var account sql.NullInt64
		var poolURL, worker sql.NullString
		if err := rows.Scan(&l.ID, &l.MinerID, &account, &poolURL, &worker, &l.Active, &l.DetectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan miner link: %w", err)
		}
		l.AccountID = account.Int64
		l.PoolURL = poolURL.String
		l.WorkerName = worker.String
		links = append(links, l)
	}
	return links, rows.Err()
}

// UpdateMinerLink rebinds a link to an account or toggles it.
func (r *Repository) UpdateMinerLink(ctx context.Context, id int64, accountID *int64, active *bool) error {
	var sets []string
	var args []any
	if accountID != nil {
		sets = append(sets, "account_id = ?")
		args = append(args, nullable(*accountID))
	}
	if active != nil {
		sets = append(sets, "active = ?")
		args = append(args, *active)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	_, err := r.db.ExecContext(ctx, `UPDATE miner_links SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update miner link %d: %w", id, err)
	}
	return nil
}
