package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldpass/festival-engine/core"
	"github.com/fieldpass/festival-engine/core/store"
)

func seedType(t *testing.T, m *store.Memory) {
	t.Helper()
	require.NoError(t, m.CreateFestival(context.Background(), &core.Festival{
		ID: "fest-1", Name: "Test", PromoterID: "promoter-1", State: core.FestivalPublished,
	}))
	require.NoError(t, m.CreateTicketType(context.Background(), &core.TicketType{
		ID: "tt-1", FestivalID: "fest-1", Name: "GA",
		Price: core.MustParseMoney("10.00"), Stock: 5,
	}))
}

// =============================================================================
// LOCK BEHAVIOR
// =============================================================================

func TestLockTicketType_ContendedRowReturnsBusy(t *testing.T) {
	// GIVEN: A transaction holding the row lock past the lock wait
	// WHEN: A second transaction tries to lock the same row
	// THEN: It gives up with ErrBusy instead of waiting forever

	m := store.NewMemoryWithLockWait(20 * time.Millisecond)
	ctx := context.Background()
	seedType(t, m)

	holding := make(chan struct{})
	releaseHolder := make(chan struct{})
	go func() {
		_ = m.WithTx(ctx, func(tx core.Tx) error {
			_, err := tx.LockTicketType(ctx, "tt-1")
			if err != nil {
				return err
			}
			close(holding)
			<-releaseHolder
			return nil
		})
	}()

	<-holding
	err := m.WithTx(ctx, func(tx core.Tx) error {
		_, err := tx.LockTicketType(ctx, "tt-1")
		return err
	})
	assert.ErrorIs(t, err, core.ErrBusy)
	close(releaseHolder)
}

func TestLockTicketType_ReleasedOnCommitAndRollback(t *testing.T) {
	m := store.NewMemoryWithLockWait(50 * time.Millisecond)
	ctx := context.Background()
	seedType(t, m)

	// Commit path releases the row.
	require.NoError(t, m.WithTx(ctx, func(tx core.Tx) error {
		_, err := tx.LockTicketType(ctx, "tt-1")
		return err
	}))
	// Error path releases it too.
	boom := errors.New("boom")
	require.ErrorIs(t, m.WithTx(ctx, func(tx core.Tx) error {
		if _, err := tx.LockTicketType(ctx, "tt-1"); err != nil {
			return err
		}
		return boom
	}), boom)

	// The row must be free again.
	require.NoError(t, m.WithTx(ctx, func(tx core.Tx) error {
		_, err := tx.LockTicketType(ctx, "tt-1")
		return err
	}))
}

func TestLockTicketType_UnknownRow(t *testing.T) {
	m := store.NewMemory()
	err := m.WithTx(context.Background(), func(tx core.Tx) error {
		_, err := tx.LockTicketType(context.Background(), "missing")
		return err
	})
	assert.ErrorIs(t, err, core.ErrTicketTypeNotFound)
}

func TestLockWristbandByUID_HoldsRowEvenWhenMissing(t *testing.T) {
	// Locking an unseen uid keeps the row reserved so the caller can create
	// the wristband inside the same transaction without losing a race.
	m := store.NewMemoryWithLockWait(20 * time.Millisecond)
	ctx := context.Background()

	reserved := make(chan struct{})
	releaseHolder := make(chan struct{})
	go func() {
		_ = m.WithTx(ctx, func(tx core.Tx) error {
			_, err := tx.LockWristbandByUID(ctx, "nfc-001")
			if !errors.Is(err, core.ErrWristbandNotFound) {
				return err
			}
			close(reserved)
			<-releaseHolder
			return tx.InsertWristband(ctx, &core.Wristband{
				ID: "wb-1", UID: "nfc-001", FestivalID: "fest-1",
				Balance: core.MoneyZero(), Active: true,
			})
		})
	}()

	<-reserved
	err := m.WithTx(ctx, func(tx core.Tx) error {
		_, err := tx.LockWristbandByUID(ctx, "nfc-001")
		return err
	})
	assert.ErrorIs(t, err, core.ErrBusy)
	close(releaseHolder)
}

// =============================================================================
// ROLLBACK
// =============================================================================

func TestWithTx_ErrorRollsBackAllWrites(t *testing.T) {
	// GIVEN: A transaction that inserts, updates, and appends before failing
	// WHEN: The callback returns an error
	// THEN: Every write is undone and nothing leaks into reads

	m := store.NewMemory()
	ctx := context.Background()
	seedType(t, m)

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(tx core.Tx) error {
		tt, err := tx.LockTicketType(ctx, "tt-1")
		if err != nil {
			return err
		}
		if err := tx.InsertPurchase(ctx, &core.Purchase{ID: "p-1", BuyerID: "b-1", Total: core.MustParseMoney("10.00")}); err != nil {
			return err
		}
		if err := tx.InsertTickets(ctx, []core.AssignedTicket{{
			ID: "t-1", TicketTypeID: "tt-1", QRCode: "qr-1", State: core.TicketActive,
		}}); err != nil {
			return err
		}
		tt.Stock--
		if err := tx.UpdateTicketType(ctx, tt); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	tt, err := m.GetTicketType(ctx, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 5, tt.Stock)

	_, err = m.GetTicket(ctx, "t-1")
	assert.ErrorIs(t, err, core.ErrTicketNotFound)
	_, err = m.GetTicketByQR(ctx, "qr-1")
	assert.ErrorIs(t, err, core.ErrTicketNotFound)

	tickets, err := m.TicketsByType(ctx, "tt-1")
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestWithTx_JournalAppendRolledBack(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, m.WithTx(ctx, func(tx core.Tx) error {
		_, err := tx.LockWristbandByUID(ctx, "nfc-001")
		if !errors.Is(err, core.ErrWristbandNotFound) {
			return err
		}
		return tx.InsertWristband(ctx, &core.Wristband{
			ID: "wb-1", UID: "nfc-001", FestivalID: "fest-1",
			Balance: core.MoneyZero(), Active: true,
		})
	}))

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(tx core.Tx) error {
		w, err := tx.LockWristbandByUID(ctx, "nfc-001")
		if err != nil {
			return err
		}
		if err := tx.AppendRecharge(ctx, core.RechargeRecord{
			ID: "r-1", WristbandID: w.ID, Amount: core.MustParseMoney("10.00"), At: time.Now().UTC(),
		}); err != nil {
			return err
		}
		w.Balance = w.Balance.Add(core.MustParseMoney("10.00"))
		if err := tx.UpdateWristband(ctx, w); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	w, err := m.GetWristbandByUID(ctx, "nfc-001")
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())

	totals, err := m.JournalTotals(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, totals.Recharged.IsZero())
	assert.True(t, w.Balance.Equal(totals.Net()))
}

// =============================================================================
// READ ISOLATION
// =============================================================================

func TestReads_ReturnCopies(t *testing.T) {
	// Mutating a returned row must not leak into the store.
	m := store.NewMemory()
	ctx := context.Background()
	seedType(t, m)

	tt, err := m.GetTicketType(ctx, "tt-1")
	require.NoError(t, err)
	tt.Stock = 0

	again, err := m.GetTicketType(ctx, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 5, again.Stock)
}
