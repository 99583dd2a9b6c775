package repository

import (
	"context"
	"sync"
	"time"

	"app/internal/model"
)

// MemoryLedger is an in-memory LedgerRepository with the same semantics as
// the Postgres implementation. It backs isolated tests and local development
// without a database.
type MemoryLedger struct {
	mu      sync.Mutex
	entries []model.LedgerEntry
	byKey   map[string]int // idempotency key -> index into entries
	nextID  int64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{byKey: make(map[string]int), nextID: 1}
}

func (m *MemoryLedger) Append(ctx context.Context, entry model.LedgerEntry) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idx, ok := m.byKey[entry.IdempotencyKey]; ok {
		orig := m.entries[idx]
		return m.balanceThrough(orig.AccountID, orig.ID), true, nil
	}

	balance := m.balanceThrough(entry.AccountID, int64(1<<62))
	if balance+entry.Amount < 0 {
		return 0, false, &InsufficientBalanceError{Balance: balance, Requested: -entry.Amount}
	}

	entry.ID = m.nextID
	m.nextID++
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.entries = append(m.entries, entry)
	m.byKey[entry.IdempotencyKey] = len(m.entries) - 1
	return balance + entry.Amount, false, nil
}

func (m *MemoryLedger) BalanceOf(ctx context.Context, accountID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balanceThrough(accountID, int64(1<<62)), nil
}

func (m *MemoryLedger) EntriesOf(ctx context.Context, accountID string, limit int) ([]model.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.LedgerEntry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].AccountID == accountID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

// balanceThrough sums the account's entries with id <= maxID. Callers hold mu.
func (m *MemoryLedger) balanceThrough(accountID string, maxID int64) int64 {
	var sum int64
	for _, e := range m.entries {
		if e.AccountID == accountID && e.ID <= maxID {
			sum += e.Amount
		}
	}
	return sum
}
