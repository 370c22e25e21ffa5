/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags; handlers run the shared
  validator before touching the engine so malformed bodies never reach a
  transaction.

SEE ALSO:
  - handlers.go: Uses these types
  - core/types.go: The domain model these project
*/
package api

import (
	"time"

	"github.com/fieldpass/festival-engine/core"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// SellTicketsRequest buys a quantity of one ticket type.
type SellTicketsRequest struct {
	BuyerID  string `json:"buyer_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

// NominateRequest names an attendee on a ticket.
type NominateRequest struct {
	AttendeeID string `json:"attendee_id" validate:"required"`
}

// NominateByQRRequest is the public self-service nomination.
type NominateByQRRequest struct {
	QRCode     string `json:"qr_code" validate:"required"`
	AttendeeID string `json:"attendee_id" validate:"required"`
}

// AssociateRequest binds a wristband to a ticket, either by ticket id
// (staff console) or by scanned QR code (gate entry).
type AssociateRequest struct {
	TicketID string `json:"ticket_id" validate:"required_without=QRCode,excluded_with=QRCode"`
	QRCode   string `json:"qr_code" validate:"required_without=TicketID"`
}

// RechargeRequest loads value onto a wristband.
type RechargeRequest struct {
	FestivalID    string `json:"festival_id" validate:"required"`
	Amount        string `json:"amount" validate:"required"`
	PaymentMethod string `json:"payment_method"`
}

// ConsumeRequest spends value at a point of sale.
type ConsumeRequest struct {
	FestivalID  string `json:"festival_id" validate:"required"`
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description" validate:"required"`
	PointOfSale string `json:"point_of_sale"`
}

// CreateFestivalRequest registers a festival in draft state.
type CreateFestivalRequest struct {
	ID         string `json:"id" validate:"required"`
	Name       string `json:"name" validate:"required"`
	PromoterID string `json:"promoter_id" validate:"required"`
}

// CreateTicketTypeRequest registers a purchasable ticket category.
type CreateTicketTypeRequest struct {
	ID                 string `json:"id" validate:"required"`
	Name               string `json:"name" validate:"required"`
	Price              string `json:"price" validate:"required"`
	Stock              int    `json:"stock" validate:"gte=0"`
	RequiresNomination bool   `json:"requires_nomination"`
}

// FestivalStateRequest moves a festival through its state machine.
type FestivalStateRequest struct {
	State string `json:"state" validate:"required,oneof=draft published cancelled finished"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// TicketDTO represents one minted ticket.
type TicketDTO struct {
	ID          string `json:"id"`
	QRCode      string `json:"qr_code"`
	State       string `json:"state"`
	AttendeeID  string `json:"attendee_id,omitempty"`
	WristbandID string `json:"wristband_id,omitempty"`
	NominatedAt string `json:"nominated_at,omitempty"`
	UsedAt      string `json:"used_at,omitempty"`
}

// SaleDTO is the response to a confirmed sale.
type SaleDTO struct {
	PurchaseID  string      `json:"purchase_id"`
	Total       string      `json:"total"`
	ConfirmedAt string      `json:"confirmed_at"`
	Tickets     []TicketDTO `json:"tickets"`
}

// WristbandDTO represents a wristband with its materialized balance.
type WristbandDTO struct {
	ID         string `json:"id"`
	UID        string `json:"uid"`
	FestivalID string `json:"festival_id,omitempty"`
	Balance    string `json:"balance"`
	Active     bool   `json:"active"`
	TicketID   string `json:"ticket_id,omitempty"`
	BoundAt    string `json:"bound_at,omitempty"`
}

// RechargeDTO is one credit journal entry.
type RechargeDTO struct {
	ID            string `json:"id"`
	Amount        string `json:"amount"`
	PaymentMethod string `json:"payment_method,omitempty"`
	CashierID     string `json:"cashier_id,omitempty"`
	At            string `json:"at"`
}

// ConsumptionDTO is one debit journal entry.
type ConsumptionDTO struct {
	ID          string `json:"id"`
	FestivalID  string `json:"festival_id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	PointOfSale string `json:"point_of_sale,omitempty"`
	At          string `json:"at"`
}

// StatementDTO is a wristband's journal with the reconstructed totals.
type StatementDTO struct {
	Wristband    WristbandDTO     `json:"wristband"`
	Recharges    []RechargeDTO    `json:"recharges"`
	Consumptions []ConsumptionDTO `json:"consumptions"`
	Recharged    string           `json:"recharged"`
	Consumed     string           `json:"consumed"`
	Reconciled   bool             `json:"reconciled"`
}

// FestivalDTO represents a festival's engine-relevant fields.
type FestivalDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PromoterID string `json:"promoter_id"`
	State      string `json:"state"`
}

// ErrorResponse is the JSON error body for all failures.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// PROJECTIONS
// =============================================================================

func toTicketDTO(t core.AssignedTicket) TicketDTO {
	return TicketDTO{
		ID:          string(t.ID),
		QRCode:      t.QRCode,
		State:       string(t.State),
		AttendeeID:  string(t.AttendeeID),
		WristbandID: string(t.WristbandID),
		NominatedAt: formatTime(t.NominatedAt),
		UsedAt:      formatTime(t.UsedAt),
	}
}

func toWristbandDTO(w core.Wristband) WristbandDTO {
	return WristbandDTO{
		ID:         string(w.ID),
		UID:        w.UID,
		FestivalID: string(w.FestivalID),
		Balance:    w.Balance.String(),
		Active:     w.Active,
		TicketID:   string(w.TicketID),
		BoundAt:    formatTime(w.BoundAt),
	}
}

func toFestivalDTO(f core.Festival) FestivalDTO {
	return FestivalDTO{
		ID:         string(f.ID),
		Name:       f.Name,
		PromoterID: string(f.PromoterID),
		State:      string(f.State),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
