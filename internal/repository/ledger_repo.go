package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InsufficientBalanceError is returned by Append when the entry would drive
// the account balance negative. Nothing is written in that case.
type InsufficientBalanceError struct {
	Balance   int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient_balance: have %d, requested %d", e.Balance, e.Requested)
}

// LedgerRepository is the append-only store of credit movements. Balance is
// always derived from entries; there is no separately writable balance
// column that could drift.
type LedgerRepository interface {
	// Append atomically inserts entry and returns the resulting balance for
	// entry's account. If an entry with the same idempotency key already
	// exists, no row is written and Append returns the balance as of the
	// original entry with replayed=true. An append that would leave the
	// balance negative fails with *InsufficientBalanceError and writes
	// nothing.
	Append(ctx context.Context, entry model.LedgerEntry) (balance int64, replayed bool, err error)
	// BalanceOf returns the sum of all entry amounts for the account.
	BalanceOf(ctx context.Context, accountID string) (int64, error)
	// EntriesOf returns up to limit entries for the account, newest first.
	// Audit and debugging only; decisions go through Append.
	EntriesOf(ctx context.Context, accountID string, limit int) ([]model.LedgerEntry, error)
}

type ledgerRepo struct {
	pool *pgxpool.Pool
}

// NewLedgerRepo creates a Postgres-backed LedgerRepository.
func NewLedgerRepo(pool *pgxpool.Pool) LedgerRepository {
	return &ledgerRepo{pool: pool}
}

// Append serializes writers per account with a transaction-scoped advisory
// lock, so the replay check, the balance check and the insert are one
// critical section. Two concurrent debits can never both pass the balance
// check on funds that only cover one of them.
func (r *ledgerRepo) Append(ctx context.Context, entry model.LedgerEntry) (int64, bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, false, fmt.Errorf("starting ledger append transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, entry.AccountID); err != nil {
		return 0, false, fmt.Errorf("acquiring account lock for %s: %w", entry.AccountID, err)
	}

	// Replay: a reused key surfaces the original entry's resulting balance,
	// never a second movement.
	var origID int64
	var origAccount string
	err = tx.QueryRow(ctx,
		`SELECT id, account_id FROM ledger_entries WHERE idempotency_key = $1`,
		entry.IdempotencyKey,
	).Scan(&origID, &origAccount)
	if err == nil {
		var balance int64
		const prefixQ = `
			SELECT COALESCE(SUM(amount), 0)
			FROM ledger_entries
			WHERE account_id = $1 AND id <= $2
		`
		if err := tx.QueryRow(ctx, prefixQ, origAccount, origID).Scan(&balance); err != nil {
			return 0, false, fmt.Errorf("computing replayed balance for %s: %w", origAccount, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return 0, false, fmt.Errorf("committing ledger replay read: %w", err)
		}
		return balance, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("checking idempotency key: %w", err)
	}

	var balance int64
	const balanceQ = `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1`
	if err := tx.QueryRow(ctx, balanceQ, entry.AccountID).Scan(&balance); err != nil {
		return 0, false, fmt.Errorf("reading balance for %s: %w", entry.AccountID, err)
	}
	if balance+entry.Amount < 0 {
		return 0, false, &InsufficientBalanceError{Balance: balance, Requested: -entry.Amount}
	}

	meta := entry.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return 0, false, fmt.Errorf("marshalling entry metadata: %w", err)
	}
	const insertQ = `
		INSERT INTO ledger_entries (account_id, amount, source, ref_type, ref_id, idempotency_key, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.Exec(ctx, insertQ,
		entry.AccountID, entry.Amount, string(entry.Source),
		entry.RefType, entry.RefID, entry.IdempotencyKey, rawMeta,
	); err != nil {
		return 0, false, fmt.Errorf("inserting ledger entry for %s: %w", entry.AccountID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("committing ledger entry for %s: %w", entry.AccountID, err)
	}
	return balance + entry.Amount, false, nil
}

// BalanceOf returns the derived balance for the account.
func (r *ledgerRepo) BalanceOf(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	const q = `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1`
	if err := r.pool.QueryRow(ctx, q, accountID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("reading balance for %s: %w", accountID, err)
	}
	return balance, nil
}

// EntriesOf lists recent entries for the account, newest first.
func (r *ledgerRepo) EntriesOf(ctx context.Context, accountID string, limit int) ([]model.LedgerEntry, error) {
	const q = `
		SELECT id, account_id, amount, source, ref_type, ref_id, idempotency_key, metadata, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, q, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing entries for %s: %w", accountID, err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var source string
		var rawMeta []byte
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Amount, &source, &e.RefType, &e.RefID, &e.IdempotencyKey, &rawMeta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger entry for %s: %w", accountID, err)
		}
		e.Source = model.Source(source)
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshalling metadata for entry %d: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries for %s: %w", accountID, err)
	}
	return entries, nil
}
