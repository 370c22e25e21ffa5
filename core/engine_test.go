package core_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/fieldpass/festival-engine/core"
	"github.com/fieldpass/festival-engine/core/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	admin     = core.Actor{ID: "admin-1", Role: core.RoleAdmin}
	promoter  = core.Actor{ID: "promoter-1", Role: core.RolePromoter}
	rivalProm = core.Actor{ID: "promoter-2", Role: core.RolePromoter}
	cashier   = core.Actor{ID: "cashier-1", Role: core.RoleCashier}
)

type engine struct {
	store     *store.Memory
	inventory *core.TicketInventory
	cashless  *core.CashlessLedger
	binder    *core.WristbandBinder
	festivals *core.FestivalLifecycle
}

func newTestEngine(t *testing.T) *engine {
	t.Helper()
	// Generous lock wait so contention tests exercise the invariants, not
	// the busy path.
	mem := store.NewMemoryWithLockWait(5 * time.Second)

	log := logrus.New()
	log.SetOutput(io.Discard)

	guard := core.NewOwnershipGuard()
	return &engine{
		store:     mem,
		inventory: core.NewTicketInventory(mem, core.NewUUIDTokens(), guard, core.NopNotifier{}, log),
		cashless:  core.NewCashlessLedger(mem, guard, log),
		binder:    core.NewWristbandBinder(mem, guard, log),
		festivals: core.NewFestivalLifecycle(mem, guard, log),
	}
}

func (e *engine) seedFestival(t *testing.T, id string, state core.FestivalState) {
	t.Helper()
	err := e.store.CreateFestival(context.Background(), &core.Festival{
		ID:         core.FestivalID(id),
		Name:       "Test Festival",
		PromoterID: promoter.ID,
		State:      state,
	})
	require.NoError(t, err)
}

func (e *engine) seedTicketType(t *testing.T, id, festivalID, price string, stock int, requiresNomination bool) {
	t.Helper()
	err := e.store.CreateTicketType(context.Background(), &core.TicketType{
		ID:                 core.TicketTypeID(id),
		FestivalID:         core.FestivalID(festivalID),
		Name:               "General Admission",
		Price:              core.MustParseMoney(price),
		Stock:              stock,
		RequiresNomination: requiresNomination,
	})
	require.NoError(t, err)
}

// sellOne buys a single ticket and returns it.
func (e *engine) sellOne(t *testing.T, typeID string) core.AssignedTicket {
	t.Helper()
	result, err := e.inventory.SellTickets(context.Background(), core.SellRequest{
		TicketTypeID: core.TicketTypeID(typeID),
		BuyerID:      "buyer-1",
		Quantity:     1,
	})
	require.NoError(t, err)
	require.Len(t, result.Tickets, 1)
	return result.Tickets[0]
}

// boundWristband sells a ticket and binds a fresh wristband to it.
func (e *engine) boundWristband(t *testing.T, typeID, uid string) *core.Wristband {
	t.Helper()
	ticket := e.sellOne(t, typeID)
	wristband, err := e.binder.Associate(context.Background(), uid, ticket.ID, cashier)
	require.NoError(t, err)
	return wristband
}
