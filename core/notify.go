/*
notify.go - Post-commit projection to the notification collaborator

PURPOSE:
  After a sale or nomination commits, downstream systems (email, PDF/QR
  rendering) receive a read-only projection of what happened. Publication is
  strictly outside the transaction: a failing notifier never rolls back a
  committed sale. Operations log notifier errors and move on.
*/
package core

import (
	"context"
	"time"
)

// MintedTicket is the projection of one freshly minted ticket.
type MintedTicket struct {
	TicketID TicketID `json:"ticket_id"`
	QRCode   string   `json:"qr_code"`
}

// SaleEvent is published after a sale commits.
type SaleEvent struct {
	PurchaseID   PurchaseID     `json:"purchase_id"`
	FestivalID   FestivalID     `json:"festival_id"`
	TicketTypeID TicketTypeID   `json:"ticket_type_id"`
	BuyerID      AttendeeID     `json:"buyer_id"`
	Total        string         `json:"total"`
	Tickets      []MintedTicket `json:"tickets"`
	At           time.Time      `json:"at"`
}

// NominationEvent is published after a ticket nomination commits.
type NominationEvent struct {
	TicketID   TicketID   `json:"ticket_id"`
	QRCode     string     `json:"qr_code"`
	AttendeeID AttendeeID `json:"attendee_id"`
	At         time.Time  `json:"at"`
}

// Notifier receives post-commit projections. Implementations live in the
// notify package; NopNotifier is the default.
type Notifier interface {
	TicketsMinted(ctx context.Context, ev SaleEvent) error
	TicketNominated(ctx context.Context, ev NominationEvent) error
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) TicketsMinted(context.Context, SaleEvent) error       { return nil }
func (NopNotifier) TicketNominated(context.Context, NominationEvent) error { return nil }
