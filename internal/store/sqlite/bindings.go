package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AddAccount binds proxyURL to email, creating the account row on first
// sight. It returns false without mutating anything when the proxy is empty
// or already bound to any account; a duplicate-proxy race between two workers
// resolves to exactly one winner through the transaction plus the UNIQUE
// constraint on proxies.url.
func (s *Store) AddAccount(ctx context.Context, email, proxyURL string) (bool, error) {
	if proxyURL == "" {
		return false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var bound int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM proxies WHERE url = ?`, proxyURL).Scan(&bound)
	if err != nil {
		return false, err
	}
	if bound > 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (email) VALUES (?)
		ON CONFLICT(email) DO NOTHING
	`, email); err != nil {
		return false, err
	}

	var accountID int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM accounts WHERE email = ?`, email).Scan(&accountID); err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO proxies (url, account_id) VALUES (?, ?)
	`, proxyURL, accountID); err != nil {
		// Lost the race on the unique url index.
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ProxyOwner reports the email a proxy is bound to, if any. Seeding uses it
// to skip pairs that survived from a previous run.
func (s *Store) ProxyOwner(ctx context.Context, proxyURL string) (string, bool, error) {
	var email string
	err := s.db.QueryRowContext(ctx, `
		SELECT a.email FROM proxies p JOIN accounts a ON a.id = p.account_id
		WHERE p.url = ?
	`, proxyURL).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return email, true, nil
}

// ProxiesForAccount lists an account's proxies in binding-creation order.
func (s *Store) ProxiesForAccount(ctx context.Context, email string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.url FROM proxies p JOIN accounts a ON a.id = p.account_id
		WHERE a.email = ? ORDER BY p.id
	`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		out = append(out, url)
	}
	return out, rows.Err()
}

// WithdrawExtraProxy pops the most recently inserted unassigned proxy.
// Withdrawal and deletion happen in one transaction so no proxy is handed
// out twice.
func (s *Store) WithdrawExtraProxy(ctx context.Context) (string, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback()

	var id int64
	var url string
	err = tx.QueryRowContext(ctx, `
		SELECT id, url FROM extra_proxies ORDER BY id DESC LIMIT 1
	`).Scan(&id, &url)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM extra_proxies WHERE id = ?`, id); err != nil {
		return "", false, err
	}
	if err := tx.Commit(); err != nil {
		return "", false, err
	}
	return url, true, nil
}

// PushExtraProxies stashes surplus proxies for later assignment. Pool
// entries are not unique-constrained; duplicates across calls are tolerated.
func (s *Store) PushExtraProxies(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, url := range urls {
		if _, err := tx.ExecContext(ctx, `INSERT INTO extra_proxies (url) VALUES (?)`, url); err != nil {
			return fmt.Errorf("push extra proxy: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) ClearExtraProxies(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM extra_proxies`)
	return err
}
