package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/hub/internal/apierror"
	"github.com/blnkfinance/hub/model"
)

func newTestBalanceStore(t *testing.T, opening int64) (*BalanceStore, *memStore, *clock) {
	t.Helper()
	store := newMemStore()
	c := &clock{now: time.Date(2024, 6, 12, 12, 0, 0, 0, time.UTC)}
	b := NewBalanceStore(store, nil)
	b.now = c.Now
	_, err := b.OpenAccount(context.Background(), originator, "", decimal.NewFromInt(opening))
	require.NoError(t, err)
	return b, store, c
}

func assertBalance(t *testing.T, b *model.AccountBalance, available, reserved, current int64) {
	t.Helper()
	assert.True(t, b.AvailableBalance.Equal(decimal.NewFromInt(available)), "available: got %s want %d", b.AvailableBalance, available)
	assert.True(t, b.ReservedBalance.Equal(decimal.NewFromInt(reserved)), "reserved: got %s want %d", b.ReservedBalance, reserved)
	assert.True(t, b.CurrentBalance.Equal(decimal.NewFromInt(current)), "current: got %s want %d", b.CurrentBalance, current)
	assert.NoError(t, b.CheckInvariant())
}

func TestOpenAccount(t *testing.T) {
	b, _, _ := newTestBalanceStore(t, 1000)

	bal, err := b.GetBalance(context.Background(), originator)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultCurrency, bal.Currency)
	assertBalance(t, bal, 1000, 0, 1000)

	_, err = b.OpenAccount(context.Background(), "IR9990000000000009", "IRR", decimal.NewFromInt(-1))
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))
}

func TestFreezeAndRelease(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newTestBalanceStore(t, 1000)

	require.NoError(t, b.Freeze(ctx, originator, decimal.NewFromInt(300), "txn_1", nil))
	bal, _ := b.GetBalance(ctx, originator)
	assertBalance(t, bal, 700, 300, 1000)

	err := b.Freeze(ctx, originator, decimal.NewFromInt(300), "txn_1", nil)
	assert.True(t, apierror.Is(err, apierror.ErrConflict))

	require.NoError(t, b.Release(ctx, originator, "txn_1"))
	bal, _ = b.GetBalance(ctx, originator)
	assertBalance(t, bal, 1000, 0, 1000)

	err = b.Release(ctx, originator, "txn_1")
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
	assert.ErrorIs(t, err, model.ErrHoldClosed)
}

func TestFreeze_Errors(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newTestBalanceStore(t, 1000)

	tests := []struct {
		name    string
		account string
		amount  int64
		code    apierror.ErrorCode
	}{
		{"insufficient funds", originator, 1001, apierror.ErrInsufficientFunds},
		{"zero amount", originator, 0, apierror.ErrInvalidInput},
		{"unknown account", "IR0000000000000404", 10, apierror.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.Freeze(ctx, tt.account, decimal.NewFromInt(tt.amount), "txn_"+tt.name, nil)
			require.Error(t, err)
			assert.Equal(t, tt.code, apierror.CodeOf(err))
		})
	}

	bal, _ := b.GetBalance(ctx, originator)
	assertBalance(t, bal, 1000, 0, 1000)
}

func TestFreeze_ConcurrentNeverOverdraws(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newTestBalanceStore(t, 200)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := b.Freeze(ctx, originator, decimal.NewFromInt(10), model.GenerateUUIDWithSuffix("txn"), nil)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.True(t, apierror.Is(err, apierror.ErrInsufficientFunds))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, success)
	bal, _ := b.GetBalance(ctx, originator)
	assertBalance(t, bal, 0, 200, 200)
}

func TestDebit(t *testing.T) {
	ctx := context.Background()

	t.Run("consumes the hold", func(t *testing.T) {
		b, _, _ := newTestBalanceStore(t, 1000)
		require.NoError(t, b.Freeze(ctx, originator, decimal.NewFromInt(300), "txn_1", nil))
		require.NoError(t, b.Debit(ctx, originator, decimal.NewFromInt(300), "txn_1"))

		bal, _ := b.GetBalance(ctx, originator)
		assertBalance(t, bal, 700, 0, 700)

		// debiting a used hold again changes nothing
		require.NoError(t, b.Debit(ctx, originator, decimal.NewFromInt(300), "txn_1"))
		bal, _ = b.GetBalance(ctx, originator)
		assertBalance(t, bal, 700, 0, 700)
	})

	// the hold is taken as frozen whatever amount the caller passes
	for _, tc := range []struct {
		name   string
		amount int64
	}{
		{"more than the hold", 400},
		{"less than the hold", 250},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b, _, _ := newTestBalanceStore(t, 1000)
			require.NoError(t, b.Freeze(ctx, originator, decimal.NewFromInt(300), "txn_1", nil))
			require.NoError(t, b.Debit(ctx, originator, decimal.NewFromInt(tc.amount), "txn_1"))
			bal, _ := b.GetBalance(ctx, originator)
			assertBalance(t, bal, 700, 0, 700)
		})
	}

	t.Run("without a hold", func(t *testing.T) {
		b, _, _ := newTestBalanceStore(t, 1000)
		require.NoError(t, b.Debit(ctx, originator, decimal.NewFromInt(100), "txn_2"))
		bal, _ := b.GetBalance(ctx, originator)
		assertBalance(t, bal, 900, 0, 900)

		err := b.Debit(ctx, originator, decimal.NewFromInt(5000), "txn_3")
		assert.True(t, apierror.Is(err, apierror.ErrInsufficientFunds))
	})

	t.Run("invalid amount", func(t *testing.T) {
		b, _, _ := newTestBalanceStore(t, 1000)
		err := b.Debit(ctx, originator, decimal.Zero, "txn_1")
		assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))
	})
}

func TestCreditAndAvailability(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newTestBalanceStore(t, 100)

	require.NoError(t, b.Credit(ctx, originator, decimal.NewFromInt(50)))
	ok, err := b.CheckAvailability(ctx, originator, decimal.NewFromInt(150))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.CheckAvailability(ctx, originator, decimal.NewFromInt(151))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = b.CheckAvailability(ctx, "IR0000000000000404", decimal.NewFromInt(1))
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}

func TestReleaseExpiredHold(t *testing.T) {
	ctx := context.Background()
	b, _, c := newTestBalanceStore(t, 1000)

	expires := c.Now().Add(time.Hour)
	require.NoError(t, b.Freeze(ctx, originator, decimal.NewFromInt(300), "txn_1", &expires))

	require.NoError(t, b.ReleaseExpiredHold(ctx, originator, "txn_1"))
	bal, _ := b.GetBalance(ctx, originator)
	assertBalance(t, bal, 700, 300, 1000)

	c.Advance(2 * time.Hour)
	require.NoError(t, b.ReleaseExpiredHold(ctx, originator, "txn_1"))
	bal, _ = b.GetBalance(ctx, originator)
	assertBalance(t, bal, 1000, 0, 1000)

	// already released and unknown holds are no-ops
	require.NoError(t, b.ReleaseExpiredHold(ctx, originator, "txn_1"))
	require.NoError(t, b.ReleaseExpiredHold(ctx, originator, "txn_unknown"))
}

func TestSettle(t *testing.T) {
	ctx := context.Background()
	b, store, _ := newTestBalanceStore(t, 1000)

	txn := newTxn("REF-SETTLE-1", 300)
	txn.ID = "txn_1"
	require.NoError(t, store.CreateTransaction(ctx, txn))
	require.NoError(t, b.Freeze(ctx, originator, decimal.NewFromInt(300), "txn_1", nil))

	tests := []struct {
		name    string
		id      string
		ref     string
		amount  int64
		success bool
		message string
	}{
		{"unknown transaction", "txn_404", "", 300, false, "Transaction not found"},
		{"reference mismatch", "txn_1", "REF-OTHER-1", 300, false, "Reference mismatch"},
		{"amount mismatch", "txn_1", "REF-SETTLE-1", 299, false, "Amount mismatch: expected 300"},
		{"settles", "txn_1", "REF-SETTLE-1", 300, true, "Transaction settled successfully"},
		{"idempotent", "txn_1", "REF-SETTLE-1", 300, true, "Transaction already settled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := b.Settle(ctx, tt.id, tt.ref, decimal.NewFromInt(tt.amount))
			require.NoError(t, err)
			assert.Equal(t, tt.success, res.Success)
			assert.Equal(t, tt.message, res.Message)
		})
	}

	bal, _ := b.GetBalance(ctx, originator)
	assertBalance(t, bal, 700, 0, 700)
}

func TestSettle_ReleasedHold(t *testing.T) {
	ctx := context.Background()
	b, store, _ := newTestBalanceStore(t, 1000)

	txn := newTxn("REF-SETTLE-2", 300)
	txn.ID = "txn_2"
	require.NoError(t, store.CreateTransaction(ctx, txn))
	require.NoError(t, b.Freeze(ctx, originator, decimal.NewFromInt(300), "txn_2", nil))
	require.NoError(t, b.Release(ctx, originator, "txn_2"))

	res, err := b.Settle(ctx, "txn_2", "", decimal.NewFromInt(300))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Frozen funds were released", res.Message)
}
