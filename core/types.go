/*
Package core implements the festival ticketing and cashless payment engine.

PURPOSE:
  This package contains the domain types and the five guarded operations that
  keep two numeric invariants true under concurrent access:
    1. Ticket-type stock never goes negative and always equals the originally
       minted count minus the live tickets issued from that type.
    2. A wristband's balance never goes negative and always equals the sum of
       its recharge journal minus its consumption journal.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: a monetary amount backed by decimal.Decimal (no float arithmetic)
  - TicketType / AssignedTicket / Purchase / PurchaseLineItem: inventory side
  - Wristband / RechargeRecord / ConsumptionRecord: cashless side
  - Actor / Role: the trusted identity supplied by the session collaborator

DESIGN PRINCIPLES:
  1. Journals are append-only; balances are materialized aggregates that the
     journal must always reconstruct to the same value.
  2. Every mutation of stock, balance, or binding happens under an exclusive
     row lock inside a single store transaction.
  3. Strong typing for identifiers prevents mixing ticket/wristband/festival ids.

SEE ALSO:
  - errors.go: Error taxonomy for all operations
  - store.go: LedgerStore interface (locking + persistence)
  - inventory.go, cashless.go, binder.go: The operations themselves
*/
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal-backed monetary amount
// =============================================================================

// Money is a monetary amount. Backed by decimal.Decimal so that recharge,
// consumption, and price arithmetic is exact.
type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money        { return Money{Value: decimal.NewFromFloat(value)} }
func NewMoneyFromInt(value int64) Money   { return Money{Value: decimal.NewFromInt(value)} }
func MoneyZero() Money                    { return Money{Value: decimal.Zero} }

// MustParseMoney parses a decimal string, returning zero on malformed input.
func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return MoneyZero()
	}
	return Money{Value: d}
}

func (m Money) Add(o Money) Money          { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money          { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) MulInt(n int) Money         { return Money{Value: m.Value.Mul(decimal.NewFromInt(int64(n)))} }
func (m Money) IsNegative() bool           { return m.Value.IsNegative() }
func (m Money) IsPositive() bool           { return m.Value.IsPositive() }
func (m Money) IsZero() bool               { return m.Value.IsZero() }
func (m Money) LessThan(o Money) bool      { return m.Value.LessThan(o.Value) }
func (m Money) Equal(o Money) bool         { return m.Value.Equal(o.Value) }
func (m Money) String() string             { return m.Value.StringFixed(2) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type FestivalID string
type TicketTypeID string
type TicketID string
type PurchaseID string
type LineItemID string
type WristbandID string
type AttendeeID string
type ActorID string

// =============================================================================
// ACTOR - Trusted identity from the session collaborator
// =============================================================================

// Role is the coarse permission level of an acting principal. The core trusts
// the (id, role) pair handed to it; credential checks happen upstream.
type Role string

const (
	RoleAdmin    Role = "admin"
	RolePromoter Role = "promoter"
	RoleCashier  Role = "cashier"
)

// Actor is the principal performing an operation.
type Actor struct {
	ID   ActorID
	Role Role
}

// =============================================================================
// FESTIVAL - Publication state gates sales and associations
// =============================================================================

type FestivalState string

const (
	FestivalDraft     FestivalState = "draft"
	FestivalPublished FestivalState = "published"
	FestivalCancelled FestivalState = "cancelled"
	FestivalFinished  FestivalState = "finished"
)

// Festival carries only the fields the core needs: ownership for the
// authorization check and publication state for the sale gate. Descriptive
// metadata lives with the CRUD collaborator.
type Festival struct {
	ID         FestivalID
	Name       string
	PromoterID ActorID
	State      FestivalState
}

// CanTransitionTo reports whether the festival may move to the target state.
// Strict graph: draft -> {published, cancelled}; published -> {cancelled,
// finished}; cancelled and finished are terminal.
func (f *Festival) CanTransitionTo(next FestivalState) bool {
	switch f.State {
	case FestivalDraft:
		return next == FestivalPublished || next == FestivalCancelled
	case FestivalPublished:
		return next == FestivalCancelled || next == FestivalFinished
	default:
		return false
	}
}

// =============================================================================
// TICKET INVENTORY - Stock, purchases, minted tickets
// =============================================================================

// TicketType is a purchasable ticket category. Stock is the mutable aggregate:
// it is decremented on sale and incremented on cancellation, always under an
// exclusive row lock held by TicketInventory.
//
// INVARIANT: stock == originally minted count - live tickets of this type.
type TicketType struct {
	ID                 TicketTypeID
	FestivalID         FestivalID
	Name               string
	Price              Money
	Stock              int
	RequiresNomination bool
}

type TicketState string

const (
	TicketActive    TicketState = "active"
	TicketUsed      TicketState = "used"
	TicketCancelled TicketState = "cancelled"
)

// AssignedTicket is one individually QR-coded ticket minted by a sale.
// State transitions: active -> used (wristband hand-out) or active ->
// cancelled (restocks). Used and cancelled are terminal. QRCode is globally
// unique and immutable once set.
type AssignedTicket struct {
	ID           TicketID
	LineItemID   LineItemID
	TicketTypeID TicketTypeID
	QRCode       string
	State        TicketState
	AttendeeID   AttendeeID  // empty until nominated
	WristbandID  WristbandID // empty until bound
	NominatedAt  *time.Time
	UsedAt       *time.Time
}

// Nominated reports whether the ticket has a named attendee.
func (t *AssignedTicket) Nominated() bool { return t.AttendeeID != "" }

// Purchase is the append-only record of one sale transaction.
type Purchase struct {
	ID          PurchaseID
	BuyerID     AttendeeID
	Total       Money
	ConfirmedAt time.Time
}

// PurchaseLineItem snapshots unit price and quantity at sale time. Later price
// changes on the ticket type never alter historical purchases.
type PurchaseLineItem struct {
	ID           LineItemID
	PurchaseID   PurchaseID
	TicketTypeID TicketTypeID
	UnitPrice    Money
	Quantity     int
}

// =============================================================================
// CASHLESS - Wristbands and their journals
// =============================================================================

// Wristband is a physical NFC payment token. FestivalID is empty until the
// first bind and immutable afterwards: a wristband is confined to one festival
// for its lifetime. Balance is a materialized aggregate of the journal,
// mutated only by CashlessLedger under the wristband row lock.
//
// INVARIANT: balance == sum(recharges) - sum(consumptions), and balance >= 0.
type Wristband struct {
	ID         WristbandID
	UID        string // physical NFC uid, globally unique
	FestivalID FestivalID
	Balance    Money
	Active     bool
	TicketID   TicketID // currently bound ticket, empty if unbound
	BoundAt    *time.Time
}

// Confined reports whether the wristband is already pinned to a festival.
func (w *Wristband) Confined() bool { return w.FestivalID != "" }

// RechargeRecord is an immutable credit journal entry. Never updated, never
// deleted.
type RechargeRecord struct {
	ID            string
	WristbandID   WristbandID
	Amount        Money
	PaymentMethod string
	CashierID     ActorID
	At            time.Time
}

// ConsumptionRecord is an immutable debit journal entry, tagged with the
// festival it was spent at.
type ConsumptionRecord struct {
	ID          string
	WristbandID WristbandID
	FestivalID  FestivalID
	Amount      Money
	Description string
	PointOfSale string
	ActorID     ActorID
	At          time.Time
}

// JournalTotals is the reconstructed view of a wristband's journal, used to
// verify the materialized balance.
type JournalTotals struct {
	Recharged Money
	Consumed  Money
}

// Net returns recharged minus consumed, which must equal the wristband balance.
func (jt JournalTotals) Net() Money { return jt.Recharged.Sub(jt.Consumed) }
