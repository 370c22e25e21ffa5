/*
inventory.go - Ticket stock and the sale/cancellation critical sections

PURPOSE:
  TicketInventory owns the stock invariant. A sale decrements stock and mints
  tickets in one transaction under the ticket-type row lock; a cancellation
  increments stock back under the same lock discipline. Nothing else in the
  system writes stock or creates purchase/line-item/ticket rows.

CRITICAL INVARIANTS:
  1. stock >= 0 at all times
  2. stock + live tickets of the type == originally minted count
  3. InsufficientStock is decided strictly after the lock is acquired;
     check-then-act never leaves the critical section
  4. A failed sale leaves no partial rows behind (all-or-nothing commit)

SEE ALSO:
  - store.go: Locking contract
  - notify.go: Post-commit projection of minted tickets
*/
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// TICKET INVENTORY
// =============================================================================

// TicketInventory sells, cancels, and nominates tickets. Stateless apart from
// its injected collaborators; safe for concurrent use.
type TicketInventory struct {
	store  LedgerStore
	tokens TokenGenerator
	guard  *OwnershipGuard
	notify Notifier
	log    *logrus.Entry
}

func NewTicketInventory(store LedgerStore, tokens TokenGenerator, guard *OwnershipGuard, notifier Notifier, log *logrus.Logger) *TicketInventory {
	return &TicketInventory{
		store:  store,
		tokens: tokens,
		guard:  guard,
		notify: notifier,
		log:    log.WithField("component", "inventory"),
	}
}

// SellRequest describes one sale: a quantity of one ticket type for one buyer.
type SellRequest struct {
	TicketTypeID TicketTypeID
	BuyerID      AttendeeID
	Quantity     int
	Actor        Actor
}

// SaleResult is returned to the caller and, as a projection, to the
// notification collaborator.
type SaleResult struct {
	Purchase Purchase
	LineItem PurchaseLineItem
	Tickets  []AssignedTicket
}

// SellTickets mints Quantity tickets of one type inside a single transaction:
// lock the ticket-type row, verify the festival is published, verify stock,
// create purchase + line item + tickets, decrement stock. Any failure after
// the lock rolls the whole sale back.
func (inv *TicketInventory) SellTickets(ctx context.Context, req SellRequest) (*SaleResult, error) {
	if req.TicketTypeID == "" || req.BuyerID == "" {
		return nil, fmt.Errorf("%w: ticket type and buyer are required", ErrInvalidArgument)
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidArgument, req.Quantity)
	}

	var result SaleResult
	err := inv.store.WithTx(ctx, func(tx Tx) error {
		tt, err := tx.LockTicketType(ctx, req.TicketTypeID)
		if err != nil {
			return err
		}
		festival, err := tx.GetFestival(ctx, tt.FestivalID)
		if err != nil {
			return err
		}
		if festival.State != FestivalPublished {
			return fmt.Errorf("%w: festival %s is %s", ErrFestivalNotPublished, festival.ID, festival.State)
		}
		// Stock check happens here, under the lock, and nowhere else.
		if tt.Stock < req.Quantity {
			return &InsufficientStockError{TicketTypeID: tt.ID, Available: tt.Stock, Requested: req.Quantity}
		}

		now := time.Now().UTC()
		purchase := Purchase{
			ID:          PurchaseID(NewID()),
			BuyerID:     req.BuyerID,
			Total:       tt.Price.MulInt(req.Quantity),
			ConfirmedAt: now,
		}
		if err := tx.InsertPurchase(ctx, &purchase); err != nil {
			return err
		}

		lineItem := PurchaseLineItem{
			ID:           LineItemID(NewID()),
			PurchaseID:   purchase.ID,
			TicketTypeID: tt.ID,
			UnitPrice:    tt.Price, // price snapshot, immune to later changes
			Quantity:     req.Quantity,
		}
		if err := tx.InsertLineItem(ctx, &lineItem); err != nil {
			return err
		}

		tickets := make([]AssignedTicket, req.Quantity)
		for i := range tickets {
			tickets[i] = AssignedTicket{
				ID:           TicketID(NewID()),
				LineItemID:   lineItem.ID,
				TicketTypeID: tt.ID,
				QRCode:       inv.tokens.NewToken(),
				State:        TicketActive,
			}
		}
		if err := tx.InsertTickets(ctx, tickets); err != nil {
			return err
		}

		tt.Stock -= req.Quantity
		if err := tx.UpdateTicketType(ctx, tt); err != nil {
			return err
		}

		result = SaleResult{Purchase: purchase, LineItem: lineItem, Tickets: tickets}
		return nil
	})
	if err != nil {
		return nil, err
	}

	inv.log.WithFields(logrus.Fields{
		"purchase":    result.Purchase.ID,
		"ticket_type": req.TicketTypeID,
		"quantity":    req.Quantity,
	}).Info("sale confirmed")

	inv.publishSale(ctx, req, result)
	return &result, nil
}

// publishSale hands the minted tickets to the notification collaborator.
// Runs after commit; failure is logged, never propagated.
func (inv *TicketInventory) publishSale(ctx context.Context, req SellRequest, result SaleResult) {
	tt, err := inv.store.GetTicketType(ctx, req.TicketTypeID)
	if err != nil {
		inv.log.WithError(err).Warn("skipping sale notification, ticket type lookup failed")
		return
	}
	ev := SaleEvent{
		PurchaseID:   result.Purchase.ID,
		FestivalID:   tt.FestivalID,
		TicketTypeID: tt.ID,
		BuyerID:      req.BuyerID,
		Total:        result.Purchase.Total.String(),
		At:           result.Purchase.ConfirmedAt,
	}
	for _, t := range result.Tickets {
		ev.Tickets = append(ev.Tickets, MintedTicket{TicketID: t.ID, QRCode: t.QRCode})
	}
	if err := inv.notify.TicketsMinted(ctx, ev); err != nil {
		inv.log.WithError(err).WithField("purchase", result.Purchase.ID).
			Warn("sale notification failed")
	}
}

// CancelTicket moves an active ticket to cancelled and restocks its type.
// The ticket-type row lock makes the increment safe against racing sales;
// the ticket state is re-read and checked only after the lock is held, so a
// double cancellation restocks exactly once.
func (inv *TicketInventory) CancelTicket(ctx context.Context, ticketID TicketID, actor Actor) error {
	if ticketID == "" {
		return fmt.Errorf("%w: ticket id is required", ErrInvalidArgument)
	}

	err := inv.store.WithTx(ctx, func(tx Tx) error {
		// First read is only to find the owning type; the authoritative state
		// check happens after the lock below.
		probe, err := tx.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		tt, err := tx.LockTicketType(ctx, probe.TicketTypeID)
		if err != nil {
			return err
		}
		festival, err := tx.GetFestival(ctx, tt.FestivalID)
		if err != nil {
			return err
		}
		if err := inv.guard.Authorize(actor, festival, RolePromoter); err != nil {
			return err
		}

		ticket, err := tx.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if ticket.State != TicketActive {
			return fmt.Errorf("%w: ticket %s is %s, only active tickets can be cancelled",
				ErrInvalidStateTransition, ticket.ID, ticket.State)
		}

		ticket.State = TicketCancelled
		if err := tx.UpdateTicket(ctx, ticket, TicketActive); err != nil {
			return err
		}
		tt.Stock++
		return tx.UpdateTicketType(ctx, tt)
	})
	if err != nil {
		return err
	}

	inv.log.WithField("ticket", ticketID).Info("ticket cancelled, stock restored")
	return nil
}

// =============================================================================
// NOMINATION
// =============================================================================

// Nominate names an attendee on an active, not-yet-nominated ticket. Guarded:
// promoters of the owning festival and admins only.
func (inv *TicketInventory) Nominate(ctx context.Context, ticketID TicketID, attendeeID AttendeeID, actor Actor) error {
	if ticketID == "" || attendeeID == "" {
		return fmt.Errorf("%w: ticket id and attendee id are required", ErrInvalidArgument)
	}
	return inv.nominate(ctx, func(tx Tx) (*AssignedTicket, error) {
		ticket, err := tx.GetTicket(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		tt, err := tx.GetTicketType(ctx, ticket.TicketTypeID)
		if err != nil {
			return nil, err
		}
		festival, err := tx.GetFestival(ctx, tt.FestivalID)
		if err != nil {
			return nil, err
		}
		if err := inv.guard.Authorize(actor, festival, RolePromoter); err != nil {
			return nil, err
		}
		return ticket, nil
	}, attendeeID)
}

// NominateByQR is the public self-service path: the QR code itself is the
// capability, so no ownership check applies.
func (inv *TicketInventory) NominateByQR(ctx context.Context, qrCode string, attendeeID AttendeeID) error {
	if qrCode == "" || attendeeID == "" {
		return fmt.Errorf("%w: qr code and attendee id are required", ErrInvalidArgument)
	}
	return inv.nominate(ctx, func(tx Tx) (*AssignedTicket, error) {
		return tx.GetTicketByQR(ctx, qrCode)
	}, attendeeID)
}

func (inv *TicketInventory) nominate(ctx context.Context, resolve func(Tx) (*AssignedTicket, error), attendeeID AttendeeID) error {
	var nominated AssignedTicket
	err := inv.store.WithTx(ctx, func(tx Tx) error {
		// First resolution locates the owning type; nominations of the same
		// ticket serialize on the type row, like cancellations.
		probe, err := resolve(tx)
		if err != nil {
			return err
		}
		if _, err := tx.LockTicketType(ctx, probe.TicketTypeID); err != nil {
			return err
		}
		ticket, err := tx.GetTicket(ctx, probe.ID)
		if err != nil {
			return err
		}
		if ticket.State != TicketActive {
			return fmt.Errorf("%w: only active tickets can be nominated, ticket %s is %s",
				ErrInvalidStateTransition, ticket.ID, ticket.State)
		}
		if ticket.Nominated() {
			return fmt.Errorf("%w: ticket %s", ErrAlreadyNominated, ticket.ID)
		}
		now := time.Now().UTC()
		ticket.AttendeeID = attendeeID
		ticket.NominatedAt = &now
		if err := tx.UpdateTicket(ctx, ticket, TicketActive); err != nil {
			return err
		}
		nominated = *ticket
		return nil
	})
	if err != nil {
		return err
	}

	ev := NominationEvent{
		TicketID:   nominated.ID,
		QRCode:     nominated.QRCode,
		AttendeeID: attendeeID,
		At:         *nominated.NominatedAt,
	}
	if err := inv.notify.TicketNominated(ctx, ev); err != nil {
		inv.log.WithError(err).WithField("ticket", nominated.ID).Warn("nomination notification failed")
	}
	inv.log.WithFields(logrus.Fields{"ticket": nominated.ID, "attendee": attendeeID}).Info("ticket nominated")
	return nil
}
