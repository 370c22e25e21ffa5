/*
store.go - Persistence and locking interface for the engine

PURPOSE:
  Defines the boundary between the five operations and the database. The store
  owns transactions and row locks; the operations own the business rules that
  run between lock acquisition and commit.

KEY INTERFACES:
  LedgerStore: entry point; WithTx plus read-side queries
  Tx:          everything an operation may do inside one transaction

LOCKING CONTRACT:
  LockTicketType and LockWristbandByUID acquire an exclusive row lock that is
  held until the enclosing transaction commits or rolls back. A concurrent
  transaction holding the same row blocks the caller; when the configured
  lock-wait timeout elapses the lock call returns ErrBusy and no data has been
  touched. No operation takes more than one such lock, so there is no lock
  ordering to get wrong.

JOURNAL CONTRACT:
  AppendRecharge and AppendConsumption are append-only. No update or delete
  methods exist for journal rows; corrections are new journal entries.

IMPLEMENTATIONS:
  - core/store: in-memory, for tests and development
  - store/sqlite: SQLite, single-node deployments
  - store/postgres: PostgreSQL with SELECT ... FOR UPDATE, multi-instance

SEE ALSO:
  - inventory.go, cashless.go, binder.go: The operations using this interface
*/
package core

import "context"

// =============================================================================
// LEDGER STORE - Entry point
// =============================================================================

// LedgerStore is durable storage for ticket stock, assigned tickets,
// wristbands, and the recharge/consumption journals.
type LedgerStore interface {
	Reader

	// WithTx executes fn inside one storage transaction. If fn returns an
	// error the transaction is rolled back and that error is returned;
	// otherwise the transaction commits. Lock-wait timeouts surface as
	// ErrBusy from the Tx lock methods.
	WithTx(ctx context.Context, fn func(Tx) error) error

	// CreateFestival and CreateTicketType seed the rows the operations work
	// against. Festival/ticket-type administration beyond state and stock is
	// the CRUD collaborator's job, not the engine's.
	CreateFestival(ctx context.Context, f *Festival) error
	CreateTicketType(ctx context.Context, tt *TicketType) error
}

// Reader is the non-transactional read side: lookups and projections that
// take no locks.
type Reader interface {
	GetFestival(ctx context.Context, id FestivalID) (*Festival, error)
	GetTicketType(ctx context.Context, id TicketTypeID) (*TicketType, error)
	GetTicket(ctx context.Context, id TicketID) (*AssignedTicket, error)
	GetTicketByQR(ctx context.Context, qrCode string) (*AssignedTicket, error)
	GetWristbandByUID(ctx context.Context, uid string) (*Wristband, error)

	// TicketsByType returns every ticket minted from a type, newest last.
	// Used by the stock invariant check and the purchase listing.
	TicketsByType(ctx context.Context, id TicketTypeID) ([]AssignedTicket, error)

	// WristbandsByFestival returns every wristband confined to a festival.
	WristbandsByFestival(ctx context.Context, id FestivalID) ([]Wristband, error)

	// Recharges and Consumptions return a wristband's journal, oldest first.
	Recharges(ctx context.Context, id WristbandID) ([]RechargeRecord, error)
	Consumptions(ctx context.Context, id WristbandID) ([]ConsumptionRecord, error)

	// JournalTotals reconstructs the balance from the journal. The result's
	// Net() must always equal the materialized wristband balance.
	JournalTotals(ctx context.Context, id WristbandID) (JournalTotals, error)
}

// =============================================================================
// TX - One transaction's worth of storage operations
// =============================================================================

// Tx is the handle an operation uses inside WithTx. All writes become visible
// atomically at commit.
type Tx interface {
	// LockTicketType returns the ticket type with its row exclusively locked
	// for the remainder of the transaction. ErrTicketTypeNotFound if absent,
	// ErrBusy on lock-wait timeout.
	LockTicketType(ctx context.Context, id TicketTypeID) (*TicketType, error)

	// LockWristbandByUID returns the wristband with its row exclusively
	// locked. ErrWristbandNotFound if the uid is unseen, ErrBusy on timeout.
	LockWristbandByUID(ctx context.Context, uid string) (*Wristband, error)

	// Plain reads inside the transaction.
	GetFestival(ctx context.Context, id FestivalID) (*Festival, error)
	GetTicketType(ctx context.Context, id TicketTypeID) (*TicketType, error)
	GetTicket(ctx context.Context, id TicketID) (*AssignedTicket, error)
	GetTicketByQR(ctx context.Context, qrCode string) (*AssignedTicket, error)

	// Inventory writes. InsertTickets persists the whole minted batch.
	InsertPurchase(ctx context.Context, p *Purchase) error
	InsertLineItem(ctx context.Context, li *PurchaseLineItem) error
	InsertTickets(ctx context.Context, ts []AssignedTicket) error
	UpdateTicketType(ctx context.Context, tt *TicketType) error

	// UpdateTicket is a compare-and-set: the write applies only while the
	// stored state still equals expected, and returns
	// ErrInvalidStateTransition otherwise. Ticket rows have no lock of their
	// own (operations lock the ticket-type or wristband aggregate), so this
	// is what keeps two transactions holding different aggregate locks from
	// both transitioning the same ticket.
	UpdateTicket(ctx context.Context, t *AssignedTicket, expected TicketState) error

	// Wristband writes. InsertWristband registers a lazily created wristband;
	// the new row is covered by the transaction like a locked one.
	InsertWristband(ctx context.Context, w *Wristband) error
	UpdateWristband(ctx context.Context, w *Wristband) error

	// Journal appends. Append-only by contract.
	AppendRecharge(ctx context.Context, r RechargeRecord) error
	AppendConsumption(ctx context.Context, c ConsumptionRecord) error

	// Festival state write, for the publication state machine.
	UpdateFestival(ctx context.Context, f *Festival) error
}
