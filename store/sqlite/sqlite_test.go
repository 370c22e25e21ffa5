package sqlite_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldpass/festival-engine/core"
	"github.com/fieldpass/festival-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	promoter = core.Actor{ID: "promoter-1", Role: core.RolePromoter}
	cashier  = core.Actor{ID: "cashier-1", Role: core.RoleCashier}
)

// newTestStore opens a store backed by a file in a per-test temp dir so the
// connection pool shares one database.
func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "festival.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type engine struct {
	store     *sqlite.Store
	inventory *core.TicketInventory
	cashless  *core.CashlessLedger
	binder    *core.WristbandBinder
	festivals *core.FestivalLifecycle
}

func newTestEngine(t *testing.T) *engine {
	t.Helper()
	s := newTestStore(t)

	log := logrus.New()
	log.SetOutput(io.Discard)

	guard := core.NewOwnershipGuard()
	return &engine{
		store:     s,
		inventory: core.NewTicketInventory(s, core.NewUUIDTokens(), guard, core.NopNotifier{}, log),
		cashless:  core.NewCashlessLedger(s, guard, log),
		binder:    core.NewWristbandBinder(s, guard, log),
		festivals: core.NewFestivalLifecycle(s, guard, log),
	}
}

func (e *engine) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.store.CreateFestival(ctx, &core.Festival{
		ID: "fest-1", Name: "Summer Fest", PromoterID: promoter.ID, State: core.FestivalPublished,
	}))
	require.NoError(t, e.store.CreateTicketType(ctx, &core.TicketType{
		ID: "tt-1", FestivalID: "fest-1", Name: "General Admission",
		Price: core.MustParseMoney("45.00"), Stock: 10,
	}))
}

// =============================================================================
// END-TO-END FLOW
// =============================================================================

func TestFullFlow_SellAssociateRechargeConsume(t *testing.T) {
	// GIVEN: A published festival with stock
	// WHEN: A full attendee journey runs: buy, bind a band, top up, spend
	// THEN: Every row round-trips through SQLite and the statement reconciles

	e := newTestEngine(t)
	ctx := context.Background()
	e.seed(t)

	// Sell.
	sale, err := e.inventory.SellTickets(ctx, core.SellRequest{
		TicketTypeID: "tt-1", BuyerID: "buyer-1", Quantity: 2,
	})
	require.NoError(t, err)
	require.Len(t, sale.Tickets, 2)
	assert.True(t, sale.Purchase.Total.Equal(core.MustParseMoney("90.00")))

	tt, err := e.store.GetTicketType(ctx, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 8, tt.Stock)

	// Associate at the gate via QR.
	ticket := sale.Tickets[0]
	wristband, err := e.binder.AssociateByQR(ctx, "nfc-001", ticket.QRCode, cashier)
	require.NoError(t, err)
	assert.Equal(t, core.FestivalID("fest-1"), wristband.FestivalID)

	bound, err := e.store.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TicketUsed, bound.State)
	assert.Equal(t, wristband.ID, bound.WristbandID)

	// Recharge, consume.
	_, err = e.cashless.Recharge(ctx, core.RechargeRequest{
		WristbandUID: "nfc-001", FestivalID: "fest-1",
		Amount: core.MustParseMoney("60.00"), PaymentMethod: "card", Actor: cashier,
	})
	require.NoError(t, err)

	_, err = e.cashless.Consume(ctx, core.ConsumeRequest{
		WristbandUID: "nfc-001", FestivalID: "fest-1",
		Amount: core.MustParseMoney("17.50"), Description: "food", PointOfSale: "stand-3", Actor: cashier,
	})
	require.NoError(t, err)

	statement, err := e.cashless.StatementFor(ctx, "nfc-001")
	require.NoError(t, err)
	assert.True(t, statement.Wristband.Balance.Equal(core.MustParseMoney("42.50")))
	assert.Len(t, statement.Recharges, 1)
	assert.Len(t, statement.Consumptions, 1)
	assert.True(t, statement.Reconciled())
}

func TestFullFlow_InsufficientBalanceRollsBack(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.seed(t)

	sale, err := e.inventory.SellTickets(ctx, core.SellRequest{
		TicketTypeID: "tt-1", BuyerID: "buyer-1", Quantity: 1,
	})
	require.NoError(t, err)
	_, err = e.binder.Associate(ctx, "nfc-001", sale.Tickets[0].ID, cashier)
	require.NoError(t, err)
	_, err = e.cashless.Recharge(ctx, core.RechargeRequest{
		WristbandUID: "nfc-001", FestivalID: "fest-1",
		Amount: core.MustParseMoney("5.00"), Actor: cashier,
	})
	require.NoError(t, err)

	_, err = e.cashless.Consume(ctx, core.ConsumeRequest{
		WristbandUID: "nfc-001", FestivalID: "fest-1",
		Amount: core.MustParseMoney("9.99"), Description: "drink", Actor: cashier,
	})
	require.ErrorIs(t, err, core.ErrInsufficientBalance)

	// The refused debit left no journal row behind.
	statement, err := e.cashless.StatementFor(ctx, "nfc-001")
	require.NoError(t, err)
	assert.Empty(t, statement.Consumptions)
	assert.True(t, statement.Wristband.Balance.Equal(core.MustParseMoney("5.00")))
	assert.True(t, statement.Reconciled())
}

func TestFullFlow_OversellRollsBack(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.seed(t)

	_, err := e.inventory.SellTickets(ctx, core.SellRequest{
		TicketTypeID: "tt-1", BuyerID: "buyer-1", Quantity: 11,
	})
	require.ErrorIs(t, err, core.ErrInsufficientStock)

	tt, err := e.store.GetTicketType(ctx, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 10, tt.Stock)
	tickets, err := e.store.TicketsByType(ctx, "tt-1")
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

// =============================================================================
// PERSISTENCE ROUND-TRIPS
// =============================================================================

func TestTicketRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.seed(t)

	sale, err := e.inventory.SellTickets(ctx, core.SellRequest{
		TicketTypeID: "tt-1", BuyerID: "buyer-1", Quantity: 1,
	})
	require.NoError(t, err)
	minted := sale.Tickets[0]

	byID, err := e.store.GetTicket(ctx, minted.ID)
	require.NoError(t, err)
	byQR, err := e.store.GetTicketByQR(ctx, minted.QRCode)
	require.NoError(t, err)

	assert.Equal(t, byID.ID, byQR.ID)
	assert.Equal(t, minted.LineItemID, byID.LineItemID)
	assert.Equal(t, core.TicketActive, byID.State)
	assert.Nil(t, byID.NominatedAt)
	assert.Nil(t, byID.UsedAt)

	require.NoError(t, e.inventory.Nominate(ctx, minted.ID, "attendee-1", promoter))
	nominated, err := e.store.GetTicket(ctx, minted.ID)
	require.NoError(t, err)
	assert.Equal(t, core.AttendeeID("attendee-1"), nominated.AttendeeID)
	require.NotNil(t, nominated.NominatedAt)
	assert.False(t, nominated.NominatedAt.IsZero())
}

func TestWristbandRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.seed(t)

	sale, err := e.inventory.SellTickets(ctx, core.SellRequest{
		TicketTypeID: "tt-1", BuyerID: "buyer-1", Quantity: 1,
	})
	require.NoError(t, err)
	_, err = e.binder.Associate(ctx, "nfc-001", sale.Tickets[0].ID, cashier)
	require.NoError(t, err)

	w, err := e.store.GetWristbandByUID(ctx, "nfc-001")
	require.NoError(t, err)
	assert.Equal(t, "nfc-001", w.UID)
	assert.Equal(t, sale.Tickets[0].ID, w.TicketID)
	assert.True(t, w.Active)
	assert.True(t, w.Balance.IsZero())
	require.NotNil(t, w.BoundAt)

	byFestival, err := e.store.WristbandsByFestival(ctx, "fest-1")
	require.NoError(t, err)
	require.Len(t, byFestival, 1)
	assert.Equal(t, w.ID, byFestival[0].ID)
}

func TestJournalTotals_SumDecimalAmounts(t *testing.T) {
	// Cent-sized amounts must sum exactly; 0.10 three times is 0.30, not
	// 0.30000000000000004.
	e := newTestEngine(t)
	ctx := context.Background()
	e.seed(t)

	sale, err := e.inventory.SellTickets(ctx, core.SellRequest{
		TicketTypeID: "tt-1", BuyerID: "buyer-1", Quantity: 1,
	})
	require.NoError(t, err)
	_, err = e.binder.Associate(ctx, "nfc-001", sale.Tickets[0].ID, cashier)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := e.cashless.Recharge(ctx, core.RechargeRequest{
			WristbandUID: "nfc-001", FestivalID: "fest-1",
			Amount: core.MustParseMoney("0.10"), Actor: cashier,
		})
		require.NoError(t, err)
	}
	_, err = e.cashless.Consume(ctx, core.ConsumeRequest{
		WristbandUID: "nfc-001", FestivalID: "fest-1",
		Amount: core.MustParseMoney("0.10"), Description: "sticker", Actor: cashier,
	})
	require.NoError(t, err)

	w, err := e.store.GetWristbandByUID(ctx, "nfc-001")
	require.NoError(t, err)
	totals, err := e.store.JournalTotals(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, totals.Recharged.Equal(core.MustParseMoney("0.30")))
	assert.True(t, totals.Consumed.Equal(core.MustParseMoney("0.10")))
	assert.True(t, w.Balance.Equal(totals.Net()))
}

func TestFestivalStateRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.store.CreateFestival(ctx, &core.Festival{
		ID: "fest-1", Name: "Summer Fest", PromoterID: promoter.ID, State: core.FestivalDraft,
	}))

	_, err := e.festivals.ChangeState(ctx, "fest-1", core.FestivalPublished, promoter)
	require.NoError(t, err)

	f, err := e.store.GetFestival(ctx, "fest-1")
	require.NoError(t, err)
	assert.Equal(t, core.FestivalPublished, f.State)
}
