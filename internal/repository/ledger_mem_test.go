package repository

import (
	"context"
	"sync"
	"testing"

	"app/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func credit(account string, amount int64, key string) model.LedgerEntry {
	return model.LedgerEntry{
		AccountID:      account,
		Amount:         amount,
		Source:         model.SourcePurchase,
		IdempotencyKey: key,
	}
}

func debit(account string, amount int64, key string) model.LedgerEntry {
	return model.LedgerEntry{
		AccountID:      account,
		Amount:         -amount,
		Source:         model.SourceUsage,
		IdempotencyKey: key,
	}
}

func TestAppendDerivesBalanceFromEntries(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	balance, replayed, err := ledger.Append(ctx, credit("acct", 100, "k1"))
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.EqualValues(t, 100, balance)

	balance, _, err = ledger.Append(ctx, debit("acct", 30, "k2"))
	require.NoError(t, err)
	assert.EqualValues(t, 70, balance)

	// Balance always equals the sum of entries.
	entries, err := ledger.EntriesOf(ctx, "acct", 100)
	require.NoError(t, err)
	var sum int64
	for _, e := range entries {
		sum += e.Amount
	}
	got, err := ledger.BalanceOf(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, sum, got)
}

func TestAppendReplaySurfacesOriginalBalance(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	_, _, err := ledger.Append(ctx, credit("acct", 100, "k1"))
	require.NoError(t, err)
	balance, _, err := ledger.Append(ctx, debit("acct", 30, "k2"))
	require.NoError(t, err)
	assert.EqualValues(t, 70, balance)

	// Later movement changes the current balance...
	_, _, err = ledger.Append(ctx, credit("acct", 500, "k3"))
	require.NoError(t, err)

	// ...but replaying k2 still observes the balance as of the original
	// entry, and writes nothing.
	for i := 0; i < 3; i++ {
		balance, replayed, err := ledger.Append(ctx, debit("acct", 30, "k2"))
		require.NoError(t, err)
		assert.True(t, replayed)
		assert.EqualValues(t, 70, balance)
	}
	entries, err := ledger.EntriesOf(ctx, "acct", 100)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestAppendRejectsOverdraft(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	_, _, err := ledger.Append(ctx, credit("acct", 70, "k1"))
	require.NoError(t, err)

	_, _, err = ledger.Append(ctx, debit("acct", 1000, "k2"))
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.EqualValues(t, 70, insufficient.Balance)
	assert.EqualValues(t, 1000, insufficient.Requested)

	// Failed debit must not mutate the ledger.
	balance, err := ledger.BalanceOf(ctx, "acct")
	require.NoError(t, err)
	assert.EqualValues(t, 70, balance)
	entries, err := ledger.EntriesOf(ctx, "acct", 100)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAppendAccountsAreIndependent(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	_, _, err := ledger.Append(ctx, credit("a", 10, "ka"))
	require.NoError(t, err)
	_, _, err = ledger.Append(ctx, credit("b", 20, "kb"))
	require.NoError(t, err)

	ba, err := ledger.BalanceOf(ctx, "a")
	require.NoError(t, err)
	bb, err := ledger.BalanceOf(ctx, "b")
	require.NoError(t, err)
	assert.EqualValues(t, 10, ba)
	assert.EqualValues(t, 20, bb)
}

func TestEntriesOfNewestFirst(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	_, _, err := ledger.Append(ctx, credit("acct", 1, "k1"))
	require.NoError(t, err)
	_, _, err = ledger.Append(ctx, credit("acct", 2, "k2"))
	require.NoError(t, err)
	_, _, err = ledger.Append(ctx, credit("acct", 3, "k3"))
	require.NoError(t, err)

	entries, err := ledger.EntriesOf(ctx, "acct", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.EqualValues(t, 3, entries[0].Amount)
	assert.EqualValues(t, 2, entries[1].Amount)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	_, _, err := ledger.Append(ctx, credit("acct", 100, "seed"))
	require.NoError(t, err)

	// Two concurrent debits of 60 against a balance of 100: exactly one
	// may land.
	const workers = 2
	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, results[i] = ledger.Append(ctx, debit("acct", 60, "key-"+string(rune('a'+i))))
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			var insufficient *InsufficientBalanceError
			require.ErrorAs(t, err, &insufficient)
		}
	}
	assert.Equal(t, 1, succeeded)

	balance, err := ledger.BalanceOf(ctx, "acct")
	require.NoError(t, err)
	assert.EqualValues(t, 40, balance)
	assert.GreaterOrEqual(t, balance, int64(0))
}

func TestConcurrentSameKeyAppliesOnce(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	_, _, err := ledger.Append(ctx, credit("acct", 100, "seed"))
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := ledger.Append(ctx, debit("acct", 30, "same-key"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := ledger.BalanceOf(ctx, "acct")
	require.NoError(t, err)
	assert.EqualValues(t, 70, balance)
}
