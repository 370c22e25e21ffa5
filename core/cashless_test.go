package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldpass/festival-engine/core"
)

// =============================================================================
// RECHARGE TESTS
// =============================================================================

func TestRecharge_RaisesBalanceAndJournals(t *testing.T) {
	// GIVEN: A bound wristband with zero balance
	// WHEN: Recharging 50.00
	// THEN: Balance is 50.00 and the journal holds one matching entry

	e := newTestEngine(t)
	ctx := context.Background()
	e.seedFestival(t, "fest-1", core.FestivalPublished)
	e.seedTicketType(t, "tt-1", "fest-1", "10.00", 5, false)
	e.boundWristband(t, "tt-1", "nfc-001")

	wristband, err := e.cashless.Recharge(ctx, core.RechargeRequest{
		WristbandUID: "nfc-001", FestivalID: "fest-1",
		Amount: core.MustParseMoney("50.00"), PaymentMethod: "card", Actor: cashier,
	})
	require.NoError(t, err)
	assert.True(t, wristband.Balance.Equal(core.MustParseMoney("50.00")))

	statement, err := e.cashless.StatementFor(ctx, "nfc-001")
	require.NoError(t, err)
	require.Len(t, statement.Recharges, 1)
	assert.True(t, statement.Recharges[0].Amount.Equal(core.MustParseMoney("50.00")))
	assert.Equal(t, cashier.ID, statement.Recharges[0].CashierID)
	assert.True(t, statement.Reconciled())
}

func TestRecharge_UnknownUIDNeverCreates(t *testing.T) {
	// Only association creates wristbands. A top-up against an unseen uid
	// must not conjure one.
	e := newTestEngine(t)
	e.seedFestival(t, "fest-1", core.FestivalPublished)

	_, err := e.cashless.Recharge(context.Background(), core.RechargeRequest{
		WristbandUID: "nfc-ghost", FestivalID: "fest-1",
		Amount: core.MustParseMoney("10.00"), Actor: cashier,
	})
	assert.ErrorIs(t, err, core.ErrWristbandNotFound)

	_, err = e.store.GetWristbandByUID(context.Background(), "nfc-ghost")
	assert.ErrorIs(t, err, core.ErrWristbandNotFound)
}

func TestRecharge_NonPositiveAmountRejected(t *testing.T) {
	e := newTestEngine(t)
	e.seedFestival(t, "fest-1", core.FestivalPublished)
	e.seedTicketType(t, "tt-1", "fest-1", "10.00", 5, false)
	e.boundWristband(t, "tt-1", "nfc-001")

	for _, amount := range []string{"0.00", "-5.00"} {
		_, err := e.cashless.Recharge(context.Background(), core.RechargeRequest{
			WristbandUID: "nfc-001", FestivalID: "fest-1",
			Amount: core.MustParseMoney(amount), Actor: cashier,
		})
		assert.ErrorIs(t, err, core.ErrInvalidArgument, "amount %s", amount)
	}
}

func TestRecharge_FestivalMismatch(t *testing.T) {
	e := newTestEngine(t)
	e.seedFestival(t, "fest-1", core.FestivalPublished)
	e.seedFestival(t, "fest-2", core.FestivalPublished)
	e.seedTicketType(t, "tt-1", "fest-1", "10.00", 5, false)
	e.boundWristband(t, "tt-1", "nfc-001")

	_, err := e.cashless.Recharge(context.Background(), core.RechargeRequest{
		WristbandUID: "nfc-001", FestivalID: "fest-2",
		Amount: core.MustParseMoney("10.00"), Actor: cashier,
	})
	assert.ErrorIs(t, err, core.ErrFestivalMismatch)
}

func TestRecharge_InactiveWristbandRejected(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.seedFestival(t, "fest-1", core.FestivalPublished)
	e.seedTicketType(t, "tt-1", "fest-1", "10.00", 5, false)
	e.boundWristband(t, "tt-1", "nfc-001")
	require.NoError(t, e.binder.Deactivate(ctx, "nfc-001", promoter))

	_, err := e.cashless.Recharge(ctx, core.RechargeRequest{
		WristbandUID: "nfc-001", FestivalID: "fest-1",
		Amount: core.MustParseMoney("10.00"), Actor: cashier,
	})
	assert.ErrorIs(t, err, core.ErrInactiveWristband)
}

// =============================================================================
// CONSUMPTION TESTS
// =============================================================================

func TestConsume_DebitsAndJournals(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.seedFestival(t, "fest-1", core.FestivalPublished)
	e.seedTicketType(t, "tt-1", "fest-1", "10.00", 5, false)
	e.boundWristband(t, "tt-1", "nfc-001")
	e.recharge(t, "nfc-001", "fest-1", "30.00")

	wristband, err := e.cashless.Consume(ctx, core.ConsumeRequest{
		WristbandUID: "nfc-001", FestivalID: "fest-1",
		Amount: core.MustParseMoney("12.50"), Description: "2x beer",
		PointOfSale: "bar-north", Actor: cashier,
	})
	require.NoError(t, err)
	assert.True(t, wristband.Balance.Equal(core.MustParseMoney("17.50")))

	statement, err := e.cashless.StatementFor(ctx, "nfc-001")
	require.NoError(t, err)
	require.Len(t, statement.Consumptions, 1)
	assert.Equal(t, "2x beer", statement.Consumptions[0].Description)
	assert.Equal(t, "bar-north", statement.Consumptions[0].PointOfSale)
	assert.True(t, statement.Reconciled())
}

func TestConsume_InsufficientBalance(t *testing.T) {
	// GIVEN: A wristband holding 10.00
	// WHEN: Spending 10.01
	// THEN: InsufficientBalance with the exact amounts, balance untouched

	e := newTestEngine(t)
	ctx := context.Background()
	e.seedFestival(t, "fest-1", core.FestivalPublished)
	e.seedTicketType(t, "tt-1", "fest-1", "10.00", 5, false)
	e.boundWristband(t, "tt-1", "nfc-001")
	e.recharge(t, "nfc-001", "fest-1", "10.00")

	_, err := e.cashless.Consume(ctx, core.ConsumeRequest{
		WristbandUID: "nfc-001", FestivalID: "fest-1",
		Amount: core.MustParseMoney("10.01"), Description: "merch", Actor: cashier,
	})
	require.ErrorIs(t, err, core.ErrInsufficientBalance)

	var balErr *core.InsufficientBalanceError
	require.ErrorAs(t, err, &balErr)
	assert.True(t, balErr.Available.Equal(core.MustParseMoney("10.00")))
	assert.True(t, balErr.Requested.Equal(core.MustParseMoney("10.01")))

	balance, err := e.cashless.Balance(ctx, "nfc-001")
	require.NoError(t, err)
	assert.True(t, balance.Equal(core.MustParseMoney("10.00")))
}

func TestConsume_ExactBalanceToZero(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.seedFestival(t, "fest-1", core.FestivalPublished)
	e.seedTicketType(t, "tt-1", "fest-1", "10.00", 5, false)
	e.boundWristband(t, "tt-1", "nfc-001")
	e.recharge(t, "nfc-001", "fest-1", "15.00")

	wristband, err := e.cashless.Consume(ctx, core.ConsumeRequest{
		WristbandUID: "nfc-001", FestivalID: "fest-1",
		Amount: core.MustParseMoney("15.00"), Description: "festival dinner", Actor: cashier,
	})
	require.NoError(t, err)
	assert.True(t, wristband.Balance.IsZero())
}

func TestConsume_MissingDescriptionRejected(t *testing.T) {
	e := newTestEngine(t)
	e.seedFestival(t, "fest-1", core.FestivalPublished)
	e.seedTicketType(t, "tt-1", "fest-1", "10.00", 5, false)
	e.boundWristband(t, "tt-1", "nfc-001")
	e.recharge(t, "nfc-001", "fest-1", "10.00")

	_, err := e.cashless.Consume(context.Background(), core.ConsumeRequest{
		WristbandUID: "nfc-001", FestivalID: "fest-1",
		Amount: core.MustParseMoney("1.00"), Actor: cashier,
	})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestConsume_ConcurrentPointsOfSale_NeverOverdraw(t *testing.T) {
	// GIVEN: 50.00 on the band and 20 concurrent 10.00 debits
	// WHEN: All points of sale hit at once
	// THEN: Exactly 5 succeed, balance is 0.00, journal reconciles

	e := newTestEngine(t)
	ctx := context.Background()
	e.seedFestival(t, "fest-1", core.FestivalPublished)
	e.seedTicketType(t, "tt-1", "fest-1", "10.00", 5, false)
	e.boundWristband(t, "tt-1", "nfc-001")
	e.recharge(t, "nfc-001", "fest-1", "50.00")

	const attempts = 20
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.cashless.Consume(ctx, core.ConsumeRequest{
				WristbandUID: "nfc-001", FestivalID: "fest-1",
				Amount: core.MustParseMoney("10.00"), Description: "drink",
				PointOfSale: "bar", Actor: cashier,
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	succeeded, refused := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, core.ErrInsufficientBalance):
			refused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 15, refused)

	statement, err := e.cashless.StatementFor(ctx, "nfc-001")
	require.NoError(t, err)
	assert.True(t, statement.Wristband.Balance.IsZero())
	assert.Len(t, statement.Consumptions, 5)
	assert.True(t, statement.Reconciled())
}

func TestConcurrentRechargesAndConsumptions_JournalReconciles(t *testing.T) {
	// Mixed load: every committed mutation pairs a journal row with the
	// balance update, so whatever interleaving wins, the statement reconciles.
	e := newTestEngine(t)
	ctx := context.Background()
	e.seedFestival(t, "fest-1", core.FestivalPublished)
	e.seedTicketType(t, "tt-1", "fest-1", "10.00", 5, false)
	e.boundWristband(t, "tt-1", "nfc-001")
	e.recharge(t, "nfc-001", "fest-1", "100.00")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := e.cashless.Recharge(ctx, core.RechargeRequest{
				WristbandUID: "nfc-001", FestivalID: "fest-1",
				Amount: core.MustParseMoney("5.00"), Actor: cashier,
			})
			require.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := e.cashless.Consume(ctx, core.ConsumeRequest{
				WristbandUID: "nfc-001", FestivalID: "fest-1",
				Amount: core.MustParseMoney("3.00"), Description: "snack", Actor: cashier,
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	statement, err := e.cashless.StatementFor(ctx, "nfc-001")
	require.NoError(t, err)
	// 100 + 10*5 - 10*3 = 120
	assert.True(t, statement.Wristband.Balance.Equal(core.MustParseMoney("120.00")))
	assert.Len(t, statement.Recharges, 11)
	assert.Len(t, statement.Consumptions, 10)
	assert.True(t, statement.Reconciled())
}

// =============================================================================
// AUTHORIZATION AND READ TESTS
// =============================================================================

func TestCashless_Authorization(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.seedFestival(t, "fest-1", core.FestivalPublished)
	e.seedTicketType(t, "tt-1", "fest-1", "10.00", 5, false)
	e.boundWristband(t, "tt-1", "nfc-001")

	// A promoter who does not own the festival cannot touch its ledger.
	_, err := e.cashless.Recharge(ctx, core.RechargeRequest{
		WristbandUID: "nfc-001", FestivalID: "fest-1",
		Amount: core.MustParseMoney("10.00"), Actor: rivalProm,
	})
	assert.ErrorIs(t, err, core.ErrForbidden)

	// Owning promoter and admin both can.
	for _, actor := range []core.Actor{promoter, admin} {
		_, err := e.cashless.Recharge(ctx, core.RechargeRequest{
			WristbandUID: "nfc-001", FestivalID: "fest-1",
			Amount: core.MustParseMoney("10.00"), Actor: actor,
		})
		assert.NoError(t, err, "actor %s", actor.ID)
	}
}

func TestStatementFor_UnknownUID(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.cashless.StatementFor(context.Background(), "nfc-ghost")
	assert.ErrorIs(t, err, core.ErrWristbandNotFound)
}

// recharge tops up a wristband through the ledger, failing the test on error.
func (e *engine) recharge(t *testing.T, uid, festivalID, amount string) {
	t.Helper()
	_, err := e.cashless.Recharge(context.Background(), core.RechargeRequest{
		WristbandUID: uid,
		FestivalID:   core.FestivalID(festivalID),
		Amount:       core.MustParseMoney(amount),
		Actor:        cashier,
	})
	require.NoError(t, err)
}
