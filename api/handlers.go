/*
handlers.go - HTTP API handlers for the festival engine

PURPOSE:
  Exposes the engine's operations via REST. Handles HTTP request/response,
  JSON serialization, input validation, and delegates to the core
  components. No business rule lives here.

ENDPOINTS:
  Sales:
    POST /api/ticket-types/{id}/sell     Sell tickets (public)
    GET  /api/ticket-types/{id}/tickets  Minted tickets of a type

  Tickets:
    GET  /api/tickets/{id}               Ticket details
    POST /api/tickets/{id}/cancel        Cancel + restock (staff)
    POST /api/tickets/{id}/nominate      Name an attendee (staff)
    POST /api/public/nominate            Name an attendee by QR (public)

  Wristbands:
    POST /api/wristbands/{uid}/associate  Bind to a ticket (staff)
    POST /api/wristbands/{uid}/recharge   Credit balance (staff)
    POST /api/wristbands/{uid}/consume    Debit balance (staff)
    POST /api/wristbands/{uid}/deactivate Take out of service (staff)
    GET  /api/wristbands/{uid}            Current balance
    GET  /api/wristbands/{uid}/statement  Journal + reconciliation

  Festivals:
    POST /api/festivals                     Register (admin)
    GET  /api/festivals/{id}                Engine-relevant fields
    POST /api/festivals/{id}/state          State machine transition (staff)
    POST /api/festivals/{id}/ticket-types   Register ticket type (admin)
    GET  /api/festivals/{id}/wristbands     Wristbands of a festival

AUTHENTICATION:
  None. The upstream gateway authenticates and forwards the verified
  identity in X-Actor-ID and X-Actor-Role headers; this layer trusts them.

ERROR HANDLING:
  Domain errors map to HTTP status by kind:
  - 400: invalid argument / malformed body
  - 403: forbidden
  - 404: festival/type/ticket/wristband not found
  - 409: state conflicts, insufficient stock/balance
  - 503: row busy (Retry-After: 1)
  - 500: storage failures

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/fieldpass/festival-engine/core"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Inventory *core.TicketInventory
	Cashless  *core.CashlessLedger
	Binder    *core.WristbandBinder
	Festivals *core.FestivalLifecycle
	Store     core.LedgerStore

	validate *validator.Validate
	log      *logrus.Entry
}

func NewHandler(
	inventory *core.TicketInventory,
	cashless *core.CashlessLedger,
	binder *core.WristbandBinder,
	festivals *core.FestivalLifecycle,
	store core.LedgerStore,
	log *logrus.Logger,
) *Handler {
	return &Handler{
		Inventory: inventory,
		Cashless:  cashless,
		Binder:    binder,
		Festivals: festivals,
		Store:     store,
		validate:  validator.New(),
		log:       log.WithField("component", "api"),
	}
}

// actorFrom reads the trusted identity headers set by the gateway.
func actorFrom(r *http.Request) core.Actor {
	return core.Actor{
		ID:   core.ActorID(r.Header.Get("X-Actor-ID")),
		Role: core.Role(r.Header.Get("X-Actor-Role")),
	}
}

// decodeValid decodes the JSON body into dst and runs struct validation.
func (h *Handler) decodeValid(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

// =============================================================================
// SALES
// =============================================================================

// SellTickets handles POST /api/ticket-types/{id}/sell.
func (h *Handler) SellTickets(w http.ResponseWriter, r *http.Request) {
	var req SellTicketsRequest
	if err := h.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid sale request", err)
		return
	}

	result, err := h.Inventory.SellTickets(r.Context(), core.SellRequest{
		TicketTypeID: core.TicketTypeID(chi.URLParam(r, "id")),
		BuyerID:      core.AttendeeID(req.BuyerID),
		Quantity:     req.Quantity,
		Actor:        actorFrom(r),
	})
	if err != nil {
		h.writeDomainError(w, "Sale failed", err)
		return
	}

	dto := SaleDTO{
		PurchaseID:  string(result.Purchase.ID),
		Total:       result.Purchase.Total.String(),
		ConfirmedAt: result.Purchase.ConfirmedAt.Format(timeRFC3339),
	}
	for _, t := range result.Tickets {
		dto.Tickets = append(dto.Tickets, toTicketDTO(t))
	}
	writeJSON(w, http.StatusCreated, dto)
}

// TicketsByType handles GET /api/ticket-types/{id}/tickets.
func (h *Handler) TicketsByType(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.Store.TicketsByType(r.Context(), core.TicketTypeID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to list tickets", err)
		return
	}
	dtos := make([]TicketDTO, len(tickets))
	for i, t := range tickets {
		dtos[i] = toTicketDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// TICKETS
// =============================================================================

// GetTicket handles GET /api/tickets/{id}.
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.Store.GetTicket(r.Context(), core.TicketID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to load ticket", err)
		return
	}
	writeJSON(w, http.StatusOK, toTicketDTO(*ticket))
}

// CancelTicket handles POST /api/tickets/{id}/cancel.
func (h *Handler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	err := h.Inventory.CancelTicket(r.Context(), core.TicketID(chi.URLParam(r, "id")), actorFrom(r))
	if err != nil {
		h.writeDomainError(w, "Cancellation failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Nominate handles POST /api/tickets/{id}/nominate.
func (h *Handler) Nominate(w http.ResponseWriter, r *http.Request) {
	var req NominateRequest
	if err := h.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid nomination request", err)
		return
	}
	err := h.Inventory.Nominate(r.Context(),
		core.TicketID(chi.URLParam(r, "id")), core.AttendeeID(req.AttendeeID), actorFrom(r))
	if err != nil {
		h.writeDomainError(w, "Nomination failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NominateByQR handles POST /api/public/nominate.
func (h *Handler) NominateByQR(w http.ResponseWriter, r *http.Request) {
	var req NominateByQRRequest
	if err := h.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid nomination request", err)
		return
	}
	err := h.Inventory.NominateByQR(r.Context(), req.QRCode, core.AttendeeID(req.AttendeeID))
	if err != nil {
		h.writeDomainError(w, "Nomination failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// WRISTBANDS
// =============================================================================

// Associate handles POST /api/wristbands/{uid}/associate.
func (h *Handler) Associate(w http.ResponseWriter, r *http.Request) {
	var req AssociateRequest
	if err := h.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid association request", err)
		return
	}

	uid := chi.URLParam(r, "uid")
	actor := actorFrom(r)
	var (
		wristband *core.Wristband
		err       error
	)
	if req.TicketID != "" {
		wristband, err = h.Binder.Associate(r.Context(), uid, core.TicketID(req.TicketID), actor)
	} else {
		wristband, err = h.Binder.AssociateByQR(r.Context(), uid, req.QRCode, actor)
	}
	if err != nil {
		h.writeDomainError(w, "Association failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toWristbandDTO(*wristband))
}

// Recharge handles POST /api/wristbands/{uid}/recharge.
func (h *Handler) Recharge(w http.ResponseWriter, r *http.Request) {
	var req RechargeRequest
	if err := h.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid recharge request", err)
		return
	}

	wristband, err := h.Cashless.Recharge(r.Context(), core.RechargeRequest{
		WristbandUID:  chi.URLParam(r, "uid"),
		FestivalID:    core.FestivalID(req.FestivalID),
		Amount:        core.MustParseMoney(req.Amount),
		PaymentMethod: req.PaymentMethod,
		Actor:         actorFrom(r),
	})
	if err != nil {
		h.writeDomainError(w, "Recharge failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toWristbandDTO(*wristband))
}

// Consume handles POST /api/wristbands/{uid}/consume.
func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	var req ConsumeRequest
	if err := h.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid consumption request", err)
		return
	}

	wristband, err := h.Cashless.Consume(r.Context(), core.ConsumeRequest{
		WristbandUID: chi.URLParam(r, "uid"),
		FestivalID:   core.FestivalID(req.FestivalID),
		Amount:       core.MustParseMoney(req.Amount),
		Description:  req.Description,
		PointOfSale:  req.PointOfSale,
		Actor:        actorFrom(r),
	})
	if err != nil {
		h.writeDomainError(w, "Consumption failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toWristbandDTO(*wristband))
}

// Deactivate handles POST /api/wristbands/{uid}/deactivate.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	err := h.Binder.Deactivate(r.Context(), chi.URLParam(r, "uid"), actorFrom(r))
	if err != nil {
		h.writeDomainError(w, "Deactivation failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetWristband handles GET /api/wristbands/{uid}.
func (h *Handler) GetWristband(w http.ResponseWriter, r *http.Request) {
	wristband, err := h.Store.GetWristbandByUID(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		h.writeDomainError(w, "Failed to load wristband", err)
		return
	}
	writeJSON(w, http.StatusOK, toWristbandDTO(*wristband))
}

// GetStatement handles GET /api/wristbands/{uid}/statement.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	stmt, err := h.Cashless.StatementFor(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		h.writeDomainError(w, "Failed to load statement", err)
		return
	}

	dto := StatementDTO{
		Wristband:    toWristbandDTO(stmt.Wristband),
		Recharges:    make([]RechargeDTO, len(stmt.Recharges)),
		Consumptions: make([]ConsumptionDTO, len(stmt.Consumptions)),
		Recharged:    stmt.Totals.Recharged.String(),
		Consumed:     stmt.Totals.Consumed.String(),
		Reconciled:   stmt.Reconciled(),
	}
	for i, rec := range stmt.Recharges {
		dto.Recharges[i] = RechargeDTO{
			ID:            rec.ID,
			Amount:        rec.Amount.String(),
			PaymentMethod: rec.PaymentMethod,
			CashierID:     string(rec.CashierID),
			At:            rec.At.Format(timeRFC3339),
		}
	}
	for i, c := range stmt.Consumptions {
		dto.Consumptions[i] = ConsumptionDTO{
			ID:          c.ID,
			FestivalID:  string(c.FestivalID),
			Amount:      c.Amount.String(),
			Description: c.Description,
			PointOfSale: c.PointOfSale,
			At:          c.At.Format(timeRFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// FESTIVALS
// =============================================================================

// CreateFestival handles POST /api/festivals. Admin only; festivals start
// in draft.
func (h *Handler) CreateFestival(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor.Role != core.RoleAdmin {
		writeError(w, http.StatusForbidden, "Only admins may register festivals", nil)
		return
	}

	var req CreateFestivalRequest
	if err := h.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid festival request", err)
		return
	}

	festival := core.Festival{
		ID:         core.FestivalID(req.ID),
		Name:       req.Name,
		PromoterID: core.ActorID(req.PromoterID),
		State:      core.FestivalDraft,
	}
	if err := h.Store.CreateFestival(r.Context(), &festival); err != nil {
		h.writeDomainError(w, "Failed to create festival", err)
		return
	}
	writeJSON(w, http.StatusCreated, toFestivalDTO(festival))
}

// GetFestival handles GET /api/festivals/{id}.
func (h *Handler) GetFestival(w http.ResponseWriter, r *http.Request) {
	festival, err := h.Store.GetFestival(r.Context(), core.FestivalID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to load festival", err)
		return
	}
	writeJSON(w, http.StatusOK, toFestivalDTO(*festival))
}

// ChangeFestivalState handles POST /api/festivals/{id}/state.
func (h *Handler) ChangeFestivalState(w http.ResponseWriter, r *http.Request) {
	var req FestivalStateRequest
	if err := h.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid state request", err)
		return
	}

	festival, err := h.Festivals.ChangeState(r.Context(),
		core.FestivalID(chi.URLParam(r, "id")), core.FestivalState(req.State), actorFrom(r))
	if err != nil {
		h.writeDomainError(w, "State change failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toFestivalDTO(*festival))
}

// CreateTicketType handles POST /api/festivals/{id}/ticket-types.
func (h *Handler) CreateTicketType(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor.Role != core.RoleAdmin && actor.Role != core.RolePromoter {
		writeError(w, http.StatusForbidden, "Only staff may register ticket types", nil)
		return
	}

	var req CreateTicketTypeRequest
	if err := h.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ticket type request", err)
		return
	}

	tt := core.TicketType{
		ID:                 core.TicketTypeID(req.ID),
		FestivalID:         core.FestivalID(chi.URLParam(r, "id")),
		Name:               req.Name,
		Price:              core.MustParseMoney(req.Price),
		Stock:              req.Stock,
		RequiresNomination: req.RequiresNomination,
	}
	if err := h.Store.CreateTicketType(r.Context(), &tt); err != nil {
		h.writeDomainError(w, "Failed to create ticket type", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

// WristbandsByFestival handles GET /api/festivals/{id}/wristbands.
func (h *Handler) WristbandsByFestival(w http.ResponseWriter, r *http.Request) {
	wristbands, err := h.Store.WristbandsByFestival(r.Context(), core.FestivalID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to list wristbands", err)
		return
	}
	dtos := make([]WristbandDTO, len(wristbands))
	for i, wb := range wristbands {
		dtos[i] = toWristbandDTO(wb)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

const timeRFC3339 = "2006-01-02T15:04:05Z07:00"

func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrForbidden):
		status = http.StatusForbidden
	case core.IsNotFound(err):
		status = http.StatusNotFound
	case core.IsConflict(err),
		errors.Is(err, core.ErrInsufficientStock),
		errors.Is(err, core.ErrInsufficientBalance):
		status = http.StatusConflict
	case errors.Is(err, core.ErrBusy):
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	}

	if status == http.StatusInternalServerError {
		h.log.WithError(err).Error(message)
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
