package hub

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/hub/model"
)

func TestSweepStuckTransactions(t *testing.T) {
	th := newTestHub(t)
	ctx := context.Background()

	_, err := th.RecordTransaction(ctx, newTxn("REF-SWEEP-001", 1000))
	require.NoError(t, err)

	result, err := th.SweepStuckTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)

	th.clock.Advance(31 * time.Minute)
	result, err = th.SweepStuckTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Rescheduled: 1}, result)
	assert.Len(t, th.scheduler.runs(), 2)
}

func TestSweepStuckTransactions_DueRetry(t *testing.T) {
	th := newTestHub(t)
	ctx := context.Background()

	_, err := th.RecordTransaction(ctx, newTxn("REF-SWEEP-002", 1000))
	require.NoError(t, err)
	th.source.SetUnavailable(true)
	txn, err := th.ProcessTransaction(ctx, "REF-SWEEP-002")
	require.NoError(t, err)
	require.True(t, txn.RetryPending())

	th.clock.Advance(11 * time.Second)
	result, err := th.SweepStuckTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Rescheduled: 1}, result)

	runs := th.scheduler.runs()
	assert.Equal(t, scheduledRun{ReferenceID: "REF-SWEEP-002"}, runs[len(runs)-1])
}

func TestSweepStuckTransactions_BudgetExhausted(t *testing.T) {
	th := newTestHub(t)
	ctx := context.Background()

	txn, err := th.RecordTransaction(ctx, newTxn("REF-SWEEP-003", 1000))
	require.NoError(t, err)
	require.NoError(t, th.balances.Freeze(ctx, originator, txn.Amount, txn.ID, nil))
	txn.Status = model.StatusProcessing
	txn.RetryCount = 3
	txn.FundsFrozen = true
	require.NoError(t, th.store.UpdateTransaction(ctx, txn))

	th.clock.Advance(time.Hour)
	result, err := th.SweepStuckTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Failed: 1}, result)

	stored, err := th.GetTransactionByRef(ctx, "REF-SWEEP-003")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, stored.Status)
	assert.Equal(t, "Retry budget exhausted", stored.StatusDetail)
	assertBalance(t, th.balance(t, originator), 10_000_000, 0, 10_000_000)
}

func TestExpireHold(t *testing.T) {
	ctx := context.Background()

	t.Run("pending transaction", func(t *testing.T) {
		th := newTestHub(t)
		txn, err := th.RecordTransaction(ctx, newTxn("REF-EXPIRE-01", 1000))
		require.NoError(t, err)
		require.NoError(t, th.balances.Freeze(ctx, originator, txn.Amount, txn.ID, nil))

		// not expired yet
		require.NoError(t, th.ExpireHold(ctx, originator, txn.ID))
		assertBalance(t, th.balance(t, originator), 9_999_000, 1000, 10_000_000)

		th.clock.Advance(25 * time.Hour)
		require.NoError(t, th.ExpireHold(ctx, originator, txn.ID))
		assertBalance(t, th.balance(t, originator), 10_000_000, 0, 10_000_000)
	})

	t.Run("authorized transaction keeps its hold", func(t *testing.T) {
		th := newTestHub(t)
		txn := th.recordAndAuthorize(t, "REF-EXPIRE-02", 1000)

		th.clock.Advance(25 * time.Hour)
		require.NoError(t, th.ExpireHold(ctx, originator, txn.ID))
		assertBalance(t, th.balance(t, originator), 9_999_000, 1000, 10_000_000)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		th := newTestHub(t)
		require.NoError(t, th.balances.Freeze(ctx, originator, decimal.NewFromInt(500), "txn_ghost", nil))

		th.clock.Advance(25 * time.Hour)
		require.NoError(t, th.ExpireHold(ctx, originator, "txn_ghost"))
		assertBalance(t, th.balance(t, originator), 10_000_000, 0, 10_000_000)
	})

	t.Run("no hold", func(t *testing.T) {
		th := newTestHub(t)
		require.NoError(t, th.ExpireHold(ctx, originator, "txn_none"))
	})
}
