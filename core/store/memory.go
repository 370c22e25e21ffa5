/*
Package store provides the in-memory LedgerStore implementation, used by
tests and single-process development runs.

LOCKING:
  Each ticket type and wristband row has its own semaphore. Lock methods wait
  up to the configured lockWait for it and return core.ErrBusy on timeout, so
  the busy path behaves like a real database lock-wait timeout instead of
  silently serializing everything behind one mutex.

ROLLBACK:
  Writes inside a transaction record undo closures. When the transaction
  callback fails, undos run in reverse order while the row semaphore is still
  held, so no other transaction can observe the half-applied state.

READ CONSISTENCY:
  Writes land in the live maps as they happen, so non-transactional Reader
  calls can observe a transaction's writes before its WithTx callback
  returns (read-uncommitted, unlike the SQL stores). Transactions never see
  each other's half-applied state on the rows they lock; plain reads might.
  Acceptable for the test/dev role this store plays.
*/
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fieldpass/festival-engine/core"
)

// DefaultLockWait bounds how long a lock method blocks on a contended row
// before giving up with core.ErrBusy.
const DefaultLockWait = 250 * time.Millisecond

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	festivals       map[core.FestivalID]core.Festival
	ticketTypes     map[core.TicketTypeID]core.TicketType
	tickets         map[core.TicketID]core.AssignedTicket
	ticketIDsByQR   map[string]core.TicketID
	ticketIDsByType map[core.TicketTypeID][]core.TicketID
	purchases       map[core.PurchaseID]core.Purchase
	lineItems       map[core.LineItemID]core.PurchaseLineItem
	wristbands      map[core.WristbandID]core.Wristband
	wristbandIDsByUID map[string]core.WristbandID
	recharges       map[core.WristbandID][]core.RechargeRecord
	consumptions    map[core.WristbandID][]core.ConsumptionRecord

	rowMu    sync.Mutex
	rowLocks map[string]chan struct{}
	lockWait time.Duration
}

func NewMemory() *Memory {
	return NewMemoryWithLockWait(DefaultLockWait)
}

func NewMemoryWithLockWait(lockWait time.Duration) *Memory {
	if lockWait <= 0 {
		lockWait = DefaultLockWait
	}
	return &Memory{
		festivals:         make(map[core.FestivalID]core.Festival),
		ticketTypes:       make(map[core.TicketTypeID]core.TicketType),
		tickets:           make(map[core.TicketID]core.AssignedTicket),
		ticketIDsByQR:     make(map[string]core.TicketID),
		ticketIDsByType:   make(map[core.TicketTypeID][]core.TicketID),
		purchases:         make(map[core.PurchaseID]core.Purchase),
		lineItems:         make(map[core.LineItemID]core.PurchaseLineItem),
		wristbands:        make(map[core.WristbandID]core.Wristband),
		wristbandIDsByUID: make(map[string]core.WristbandID),
		recharges:         make(map[core.WristbandID][]core.RechargeRecord),
		consumptions:      make(map[core.WristbandID][]core.ConsumptionRecord),
		rowLocks:          make(map[string]chan struct{}),
		lockWait:          lockWait,
	}
}

// acquireRow takes the row semaphore for key, waiting at most lockWait.
func (m *Memory) acquireRow(ctx context.Context, key string) (func(), error) {
	m.rowMu.Lock()
	sem, ok := m.rowLocks[key]
	if !ok {
		sem = make(chan struct{}, 1)
		m.rowLocks[key] = sem
	}
	m.rowMu.Unlock()

	timer := time.NewTimer(m.lockWait)
	defer timer.Stop()
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-timer.C:
		return nil, core.ErrBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// =============================================================================
// SEEDING
// =============================================================================

func (m *Memory) CreateFestival(_ context.Context, f *core.Festival) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.festivals[f.ID] = *f
	return nil
}

func (m *Memory) CreateTicketType(_ context.Context, tt *core.TicketType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticketTypes[tt.ID] = *tt
	return nil
}

// =============================================================================
// READER
// =============================================================================

func (m *Memory) GetFestival(_ context.Context, id core.FestivalID) (*core.Festival, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getFestivalLocked(id)
}

func (m *Memory) getFestivalLocked(id core.FestivalID) (*core.Festival, error) {
	f, ok := m.festivals[id]
	if !ok {
		return nil, core.ErrFestivalNotFound
	}
	return &f, nil
}

func (m *Memory) GetTicketType(_ context.Context, id core.TicketTypeID) (*core.TicketType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTicketTypeLocked(id)
}

func (m *Memory) getTicketTypeLocked(id core.TicketTypeID) (*core.TicketType, error) {
	tt, ok := m.ticketTypes[id]
	if !ok {
		return nil, core.ErrTicketTypeNotFound
	}
	return &tt, nil
}

func (m *Memory) GetTicket(_ context.Context, id core.TicketID) (*core.AssignedTicket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTicketLocked(id)
}

func (m *Memory) getTicketLocked(id core.TicketID) (*core.AssignedTicket, error) {
	t, ok := m.tickets[id]
	if !ok {
		return nil, core.ErrTicketNotFound
	}
	return &t, nil
}

func (m *Memory) GetTicketByQR(_ context.Context, qrCode string) (*core.AssignedTicket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTicketByQRLocked(qrCode)
}

func (m *Memory) getTicketByQRLocked(qrCode string) (*core.AssignedTicket, error) {
	id, ok := m.ticketIDsByQR[qrCode]
	if !ok {
		return nil, core.ErrTicketNotFound
	}
	return m.getTicketLocked(id)
}

func (m *Memory) GetWristbandByUID(_ context.Context, uid string) (*core.Wristband, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getWristbandByUIDLocked(uid)
}

func (m *Memory) getWristbandByUIDLocked(uid string) (*core.Wristband, error) {
	id, ok := m.wristbandIDsByUID[uid]
	if !ok {
		return nil, core.ErrWristbandNotFound
	}
	w := m.wristbands[id]
	return &w, nil
}

func (m *Memory) TicketsByType(_ context.Context, id core.TicketTypeID) ([]core.AssignedTicket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.ticketIDsByType[id]
	result := make([]core.AssignedTicket, 0, len(ids))
	for _, tid := range ids {
		result = append(result, m.tickets[tid])
	}
	return result, nil
}

func (m *Memory) WristbandsByFestival(_ context.Context, id core.FestivalID) ([]core.Wristband, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []core.Wristband
	for _, w := range m.wristbands {
		if w.FestivalID == id {
			result = append(result, w)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UID < result[j].UID })
	return result, nil
}

func (m *Memory) Recharges(_ context.Context, id core.WristbandID) ([]core.RechargeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.RechargeRecord(nil), m.recharges[id]...), nil
}

func (m *Memory) Consumptions(_ context.Context, id core.WristbandID) ([]core.ConsumptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.ConsumptionRecord(nil), m.consumptions[id]...), nil
}

func (m *Memory) JournalTotals(_ context.Context, id core.WristbandID) (core.JournalTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	totals := core.JournalTotals{Recharged: core.MoneyZero(), Consumed: core.MoneyZero()}
	for _, r := range m.recharges[id] {
		totals.Recharged = totals.Recharged.Add(r.Amount)
	}
	for _, c := range m.consumptions[id] {
		totals.Consumed = totals.Consumed.Add(c.Amount)
	}
	return totals, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn against a transactional view. On error, recorded undos run
// in reverse while the row semaphores are still held, then the error is
// returned unchanged.
func (m *Memory) WithTx(ctx context.Context, fn func(core.Tx) error) error {
	tx := &memTx{m: m}
	defer tx.releaseRows()
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

type memTx struct {
	m        *Memory
	releases []func()
	undos    []func()
}

func (tx *memTx) releaseRows() {
	for i := len(tx.releases) - 1; i >= 0; i-- {
		tx.releases[i]()
	}
	tx.releases = nil
}

func (tx *memTx) rollback() {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	for i := len(tx.undos) - 1; i >= 0; i-- {
		tx.undos[i]()
	}
	tx.undos = nil
}

// --- Locks ---

func (tx *memTx) LockTicketType(ctx context.Context, id core.TicketTypeID) (*core.TicketType, error) {
	tx.m.mu.RLock()
	_, ok := tx.m.ticketTypes[id]
	tx.m.mu.RUnlock()
	if !ok {
		return nil, core.ErrTicketTypeNotFound
	}
	release, err := tx.m.acquireRow(ctx, "tickettype/"+string(id))
	if err != nil {
		return nil, err
	}
	tx.releases = append(tx.releases, release)

	// Re-read after acquiring the semaphore: the previous holder may have
	// committed a new stock value.
	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	return tx.m.getTicketTypeLocked(id)
}

func (tx *memTx) LockWristbandByUID(ctx context.Context, uid string) (*core.Wristband, error) {
	release, err := tx.m.acquireRow(ctx, "wristband/"+uid)
	if err != nil {
		return nil, err
	}
	tx.releases = append(tx.releases, release)

	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	w, err := tx.m.getWristbandByUIDLocked(uid)
	if err != nil {
		// The semaphore stays held: a not-found lock is how Associate
		// reserves an unseen uid before creating it.
		return nil, err
	}
	return w, nil
}

// --- Reads ---

func (tx *memTx) GetFestival(_ context.Context, id core.FestivalID) (*core.Festival, error) {
	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	return tx.m.getFestivalLocked(id)
}

func (tx *memTx) GetTicketType(_ context.Context, id core.TicketTypeID) (*core.TicketType, error) {
	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	return tx.m.getTicketTypeLocked(id)
}

func (tx *memTx) GetTicket(_ context.Context, id core.TicketID) (*core.AssignedTicket, error) {
	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	return tx.m.getTicketLocked(id)
}

func (tx *memTx) GetTicketByQR(_ context.Context, qrCode string) (*core.AssignedTicket, error) {
	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	return tx.m.getTicketByQRLocked(qrCode)
}

// --- Inventory writes ---

func (tx *memTx) InsertPurchase(_ context.Context, p *core.Purchase) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	id := p.ID
	tx.m.purchases[id] = *p
	tx.undos = append(tx.undos, func() { delete(tx.m.purchases, id) })
	return nil
}

func (tx *memTx) InsertLineItem(_ context.Context, li *core.PurchaseLineItem) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	id := li.ID
	tx.m.lineItems[id] = *li
	tx.undos = append(tx.undos, func() { delete(tx.m.lineItems, id) })
	return nil
}

func (tx *memTx) InsertTickets(_ context.Context, ts []core.AssignedTicket) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	for _, t := range ts {
		t := t
		tx.m.tickets[t.ID] = t
		tx.m.ticketIDsByQR[t.QRCode] = t.ID
		tx.m.ticketIDsByType[t.TicketTypeID] = append(tx.m.ticketIDsByType[t.TicketTypeID], t.ID)
		tx.undos = append(tx.undos, func() {
			delete(tx.m.tickets, t.ID)
			delete(tx.m.ticketIDsByQR, t.QRCode)
			ids := tx.m.ticketIDsByType[t.TicketTypeID]
			tx.m.ticketIDsByType[t.TicketTypeID] = ids[:len(ids)-1]
		})
	}
	return nil
}

func (tx *memTx) UpdateTicketType(_ context.Context, tt *core.TicketType) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	old, ok := tx.m.ticketTypes[tt.ID]
	if !ok {
		return core.ErrTicketTypeNotFound
	}
	tx.m.ticketTypes[tt.ID] = *tt
	tx.undos = append(tx.undos, func() { tx.m.ticketTypes[old.ID] = old })
	return nil
}

func (tx *memTx) UpdateTicket(_ context.Context, t *core.AssignedTicket, expected core.TicketState) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	old, ok := tx.m.tickets[t.ID]
	if !ok {
		return core.ErrTicketNotFound
	}
	// Compare-and-set: the read-check-write of the caller may have raced a
	// transaction holding a different aggregate lock.
	if old.State != expected {
		return fmt.Errorf("%w: ticket %s is %s, expected %s",
			core.ErrInvalidStateTransition, t.ID, old.State, expected)
	}
	tx.m.tickets[t.ID] = *t
	tx.undos = append(tx.undos, func() { tx.m.tickets[old.ID] = old })
	return nil
}

// --- Wristband writes ---

func (tx *memTx) InsertWristband(_ context.Context, w *core.Wristband) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	stored := *w
	tx.m.wristbands[stored.ID] = stored
	tx.m.wristbandIDsByUID[stored.UID] = stored.ID
	tx.undos = append(tx.undos, func() {
		delete(tx.m.wristbands, stored.ID)
		delete(tx.m.wristbandIDsByUID, stored.UID)
	})
	return nil
}

func (tx *memTx) UpdateWristband(_ context.Context, w *core.Wristband) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	old, ok := tx.m.wristbands[w.ID]
	if !ok {
		return core.ErrWristbandNotFound
	}
	tx.m.wristbands[w.ID] = *w
	tx.undos = append(tx.undos, func() { tx.m.wristbands[old.ID] = old })
	return nil
}

// --- Journal appends ---

func (tx *memTx) AppendRecharge(_ context.Context, r core.RechargeRecord) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	id := r.WristbandID
	tx.m.recharges[id] = append(tx.m.recharges[id], r)
	tx.undos = append(tx.undos, func() {
		rs := tx.m.recharges[id]
		tx.m.recharges[id] = rs[:len(rs)-1]
	})
	return nil
}

func (tx *memTx) AppendConsumption(_ context.Context, c core.ConsumptionRecord) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	id := c.WristbandID
	tx.m.consumptions[id] = append(tx.m.consumptions[id], c)
	tx.undos = append(tx.undos, func() {
		cs := tx.m.consumptions[id]
		tx.m.consumptions[id] = cs[:len(cs)-1]
	})
	return nil
}

// --- Festival write ---

func (tx *memTx) UpdateFestival(_ context.Context, f *core.Festival) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	old, ok := tx.m.festivals[f.ID]
	if !ok {
		return core.ErrFestivalNotFound
	}
	tx.m.festivals[f.ID] = *f
	tx.undos = append(tx.undos, func() { tx.m.festivals[old.ID] = old })
	return nil
}
