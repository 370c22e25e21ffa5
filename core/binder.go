/*
binder.go - Associating NFC wristbands with assigned tickets

PURPOSE:
  WristbandBinder turns a paid ticket into a live cashless wristband. The
  wristband row is locked (or lazily created inside the transaction) so two
  simultaneous association attempts against the same physical band serialize;
  the loser sees the state the winner left behind.

BINDING RULES:
  - Only active tickets bind; a used or cancelled ticket is rejected.
  - Types that require nomination reject un-nominated tickets.
  - A wristband already bound to a *different* still-active ticket refuses a
    rebind. Rebinding after the previous ticket was cancelled is allowed.
  - A wristband is confined to one festival for life; a ticket from another
    festival is a mismatch, never a migration.
  - Binding marks the ticket used, so the same ticket cannot activate a
    second wristband.
*/
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// WRISTBAND BINDER
// =============================================================================

// WristbandBinder associates wristbands with tickets. Safe for concurrent use.
type WristbandBinder struct {
	store LedgerStore
	guard *OwnershipGuard
	log   *logrus.Entry
}

func NewWristbandBinder(store LedgerStore, guard *OwnershipGuard, log *logrus.Logger) *WristbandBinder {
	return &WristbandBinder{
		store: store,
		guard: guard,
		log:   log.WithField("component", "binder"),
	}
}

// Associate binds the wristband identified by its NFC uid to the ticket
// identified by id. Staff path: promoters of the owning festival, cashiers,
// and admins.
func (b *WristbandBinder) Associate(ctx context.Context, uid string, ticketID TicketID, actor Actor) (*Wristband, error) {
	if uid == "" || ticketID == "" {
		return nil, fmt.Errorf("%w: wristband uid and ticket id are required", ErrInvalidArgument)
	}
	return b.associate(ctx, uid, actor, false, func(tx Tx) (*AssignedTicket, error) {
		return tx.GetTicket(ctx, ticketID)
	})
}

// AssociateByQR binds a wristband to the ticket a scanned QR code resolves
// to. This is the gate-entry path, so it additionally requires the festival
// to still be published.
func (b *WristbandBinder) AssociateByQR(ctx context.Context, uid string, qrCode string, actor Actor) (*Wristband, error) {
	if uid == "" || qrCode == "" {
		return nil, fmt.Errorf("%w: wristband uid and qr code are required", ErrInvalidArgument)
	}
	return b.associate(ctx, uid, actor, true, func(tx Tx) (*AssignedTicket, error) {
		return tx.GetTicketByQR(ctx, qrCode)
	})
}

func (b *WristbandBinder) associate(ctx context.Context, uid string, actor Actor, requirePublished bool, resolve func(Tx) (*AssignedTicket, error)) (*Wristband, error) {
	var bound Wristband
	err := b.store.WithTx(ctx, func(tx Tx) error {
		// First resolution only locates the type and festival; the
		// authoritative ticket-state check happens after the wristband lock
		// below.
		probe, err := resolve(tx)
		if err != nil {
			return err
		}
		tt, err := tx.GetTicketType(ctx, probe.TicketTypeID)
		if err != nil {
			return err
		}
		festival, err := tx.GetFestival(ctx, tt.FestivalID)
		if err != nil {
			return err
		}
		if err := b.guard.Authorize(actor, festival, RolePromoter, RoleCashier); err != nil {
			return err
		}
		if requirePublished && festival.State != FestivalPublished {
			return fmt.Errorf("%w: festival %s is %s", ErrFestivalNotPublished, festival.ID, festival.State)
		}

		now := time.Now().UTC()
		wristband, err := tx.LockWristbandByUID(ctx, uid)
		switch {
		case errors.Is(err, ErrWristbandNotFound):
			// First sighting of this uid: register it inside the same
			// transaction, confined to the festival from birth.
			wristband = &Wristband{
				ID:         WristbandID(NewID()),
				UID:        uid,
				FestivalID: festival.ID,
				Balance:    MoneyZero(),
				Active:     true,
			}
			if err := tx.InsertWristband(ctx, wristband); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if !wristband.Active {
				return fmt.Errorf("%w: wristband %s", ErrInactiveWristband, uid)
			}
			if wristband.FestivalID != festival.ID {
				return fmt.Errorf("%w: wristband %s belongs to festival %s, ticket is for %s",
					ErrFestivalMismatch, uid, wristband.FestivalID, festival.ID)
			}
			if wristband.TicketID != "" && wristband.TicketID != probe.ID {
				prev, err := tx.GetTicket(ctx, wristband.TicketID)
				if err != nil && !errors.Is(err, ErrTicketNotFound) {
					return err
				}
				// Rebinding is only refused while the previous ticket is
				// still live; a cancelled ticket frees the band.
				if prev != nil && prev.State != TicketCancelled {
					return fmt.Errorf("%w: wristband %s is bound to ticket %s",
						ErrAlreadyBound, uid, wristband.TicketID)
				}
			}
		}

		// The ticket row carries no lock of its own, so its state is checked
		// only now, with the wristband row held; a cancellation racing in
		// from under the ticket-type lock is caught here or, failing that,
		// by the compare-and-set write below.
		ticket, err := tx.GetTicket(ctx, probe.ID)
		if err != nil {
			return err
		}
		if ticket.State != TicketActive {
			return fmt.Errorf("%w: ticket %s is %s, only active tickets can be associated",
				ErrInvalidStateTransition, ticket.ID, ticket.State)
		}
		if tt.RequiresNomination && !ticket.Nominated() {
			return fmt.Errorf("%w: ticket %s must name an attendee before association", ErrNotNominated, ticket.ID)
		}

		wristband.TicketID = ticket.ID
		wristband.BoundAt = &now
		if err := tx.UpdateWristband(ctx, wristband); err != nil {
			return err
		}

		ticket.State = TicketUsed
		ticket.UsedAt = &now
		ticket.WristbandID = wristband.ID
		if err := tx.UpdateTicket(ctx, ticket, TicketActive); err != nil {
			return err
		}

		bound = *wristband
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.log.WithFields(logrus.Fields{
		"wristband": bound.UID,
		"ticket":    bound.TicketID,
		"festival":  bound.FestivalID,
	}).Info("wristband associated")
	return &bound, nil
}

// Deactivate takes a wristband out of service (lost band, fraud hold). The
// balance stays on the row; only recharges and consumptions are blocked.
func (b *WristbandBinder) Deactivate(ctx context.Context, uid string, actor Actor) error {
	if uid == "" {
		return fmt.Errorf("%w: wristband uid is required", ErrInvalidArgument)
	}
	err := b.store.WithTx(ctx, func(tx Tx) error {
		wristband, err := tx.LockWristbandByUID(ctx, uid)
		if err != nil {
			return err
		}
		festival, err := tx.GetFestival(ctx, wristband.FestivalID)
		if err != nil {
			return err
		}
		if err := b.guard.Authorize(actor, festival, RolePromoter); err != nil {
			return err
		}
		if !wristband.Active {
			return nil // already off, nothing to do
		}
		wristband.Active = false
		return tx.UpdateWristband(ctx, wristband)
	})
	if err != nil {
		return err
	}
	b.log.WithField("wristband", uid).Info("wristband deactivated")
	return nil
}
