/*
Package sqlite provides a SQLite-backed LedgerStore for single-node
deployments.

PURPOSE:
  Implements core.LedgerStore on SQLite. The same schema and query shapes
  carry over to the PostgreSQL store; only the locking mechanics differ.

LOCKING:
  SQLite has no row-level SELECT ... FOR UPDATE; the whole database takes a
  single write lock. Write transactions are therefore funneled through one
  writer slot acquired with a bounded wait, and a wait that times out
  surfaces as core.ErrBusy exactly like a lock-wait timeout would on a real
  row lock. Reads run concurrently under WAL.

APPEND-ONLY ENFORCEMENT:
  recharges and consumptions have no UPDATE or DELETE statements anywhere in
  this package. The materialized wristband balance is the only mutable
  cashless value, and it changes in the same transaction as the journal
  append.

KEY TABLES:
  festivals:           publication state + promoter ownership
  ticket_types:        price, stock (the mutable inventory aggregate)
  tickets:             individually QR-coded minted tickets
  purchases:           one row per confirmed sale
  purchase_line_items: price/quantity snapshot per sale
  wristbands:          NFC uid, festival confinement, materialized balance
  recharges:           append-only credit journal
  consumptions:        append-only debit journal

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - core/store.go: Interface definitions
  - core/store/memory.go: In-memory implementation for testing
  - store/postgres: Row-locking implementation for multi-instance runs
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fieldpass/festival-engine/core"
)

// DefaultLockWait bounds how long WithTx waits for the writer slot before
// reporting core.ErrBusy.
const DefaultLockWait = 500 * time.Millisecond

// Store implements core.LedgerStore using SQLite.
type Store struct {
	db       *sql.DB
	writer   chan struct{}
	lockWait time.Duration
}

// New creates a SQLite store at dbPath. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=500")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:       db,
		writer:   make(chan struct{}, 1),
		lockWait: DefaultLockWait,
	}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS festivals (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		promoter_id TEXT NOT NULL,
		state TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ticket_types (
		id TEXT PRIMARY KEY,
		festival_id TEXT NOT NULL REFERENCES festivals(id),
		name TEXT NOT NULL,
		price TEXT NOT NULL,
		stock INTEGER NOT NULL CHECK (stock >= 0),
		requires_nomination BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_ticket_types_festival
		ON ticket_types(festival_id);

	CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL,
		total TEXT NOT NULL,
		confirmed_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS purchase_line_items (
		id TEXT PRIMARY KEY,
		purchase_id TEXT NOT NULL REFERENCES purchases(id),
		ticket_type_id TEXT NOT NULL REFERENCES ticket_types(id),
		unit_price TEXT NOT NULL,
		quantity INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_line_items_purchase
		ON purchase_line_items(purchase_id);

	CREATE TABLE IF NOT EXISTS tickets (
		id TEXT PRIMARY KEY,
		line_item_id TEXT NOT NULL REFERENCES purchase_line_items(id),
		ticket_type_id TEXT NOT NULL REFERENCES ticket_types(id),
		qr_code TEXT NOT NULL UNIQUE,
		state TEXT NOT NULL,
		attendee_id TEXT NOT NULL DEFAULT '',
		wristband_id TEXT NOT NULL DEFAULT '',
		nominated_at TEXT,
		used_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_tickets_type
		ON tickets(ticket_type_id);

	CREATE TABLE IF NOT EXISTS wristbands (
		id TEXT PRIMARY KEY,
		uid TEXT NOT NULL UNIQUE,
		festival_id TEXT NOT NULL,
		balance TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		ticket_id TEXT NOT NULL DEFAULT '',
		bound_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_wristbands_festival
		ON wristbands(festival_id);

	-- Append-only credit journal. No UPDATE/DELETE in this package.
	CREATE TABLE IF NOT EXISTS recharges (
		id TEXT PRIMARY KEY,
		wristband_id TEXT NOT NULL REFERENCES wristbands(id),
		amount TEXT NOT NULL,
		payment_method TEXT NOT NULL DEFAULT '',
		cashier_id TEXT NOT NULL DEFAULT '',
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_recharges_wristband
		ON recharges(wristband_id, at);

	-- Append-only debit journal. No UPDATE/DELETE in this package.
	CREATE TABLE IF NOT EXISTS consumptions (
		id TEXT PRIMARY KEY,
		wristband_id TEXT NOT NULL REFERENCES wristbands(id),
		festival_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT NOT NULL,
		point_of_sale TEXT NOT NULL DEFAULT '',
		actor_id TEXT NOT NULL DEFAULT '',
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_consumptions_wristband
		ON consumptions(wristband_id, at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SEEDING
// =============================================================================

func (s *Store) CreateFestival(ctx context.Context, f *core.Festival) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO festivals (id, name, promoter_id, state) VALUES (?, ?, ?, ?)`,
		string(f.ID), f.Name, string(f.PromoterID), string(f.State),
	)
	if err != nil {
		return fmt.Errorf("failed to create festival: %w", err)
	}
	return nil
}

func (s *Store) CreateTicketType(ctx context.Context, tt *core.TicketType) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ticket_types (id, festival_id, name, price, stock, requires_nomination)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(tt.ID), string(tt.FestivalID), tt.Name, tt.Price.Value.String(), tt.Stock, tt.RequiresNomination,
	)
	if err != nil {
		return fmt.Errorf("failed to create ticket type: %w", err)
	}
	return nil
}

// =============================================================================
// READER
// =============================================================================

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) GetFestival(ctx context.Context, id core.FestivalID) (*core.Festival, error) {
	return getFestival(ctx, s.db, id)
}

func getFestival(ctx context.Context, q querier, id core.FestivalID) (*core.Festival, error) {
	var f core.Festival
	err := q.QueryRowContext(ctx,
		`SELECT id, name, promoter_id, state FROM festivals WHERE id = ?`, string(id),
	).Scan(&f.ID, &f.Name, &f.PromoterID, &f.State)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrFestivalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load festival: %w", err)
	}
	return &f, nil
}

func (s *Store) GetTicketType(ctx context.Context, id core.TicketTypeID) (*core.TicketType, error) {
	return getTicketType(ctx, s.db, id)
}

func getTicketType(ctx context.Context, q querier, id core.TicketTypeID) (*core.TicketType, error) {
	var (
		tt    core.TicketType
		price string
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, festival_id, name, price, stock, requires_nomination
		 FROM ticket_types WHERE id = ?`, string(id),
	).Scan(&tt.ID, &tt.FestivalID, &tt.Name, &price, &tt.Stock, &tt.RequiresNomination)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrTicketTypeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ticket type: %w", err)
	}
	tt.Price = core.MustParseMoney(price)
	return &tt, nil
}

const ticketColumns = `id, line_item_id, ticket_type_id, qr_code, state, attendee_id, wristband_id, nominated_at, used_at`

func (s *Store) GetTicket(ctx context.Context, id core.TicketID) (*core.AssignedTicket, error) {
	return getTicket(ctx, s.db, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, string(id))
}

func (s *Store) GetTicketByQR(ctx context.Context, qrCode string) (*core.AssignedTicket, error) {
	return getTicket(ctx, s.db, `SELECT `+ticketColumns+` FROM tickets WHERE qr_code = ?`, qrCode)
}

func getTicket(ctx context.Context, q querier, query string, arg any) (*core.AssignedTicket, error) {
	row := q.QueryRowContext(ctx, query, arg)
	t, err := scanTicketRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ticket: %w", err)
	}
	return t, nil
}

func scanTicketRow(scan func(dest ...any) error) (*core.AssignedTicket, error) {
	var (
		t                   core.AssignedTicket
		nominatedAt, usedAt sql.NullString
	)
	if err := scan(&t.ID, &t.LineItemID, &t.TicketTypeID, &t.QRCode, &t.State,
		&t.AttendeeID, &t.WristbandID, &nominatedAt, &usedAt); err != nil {
		return nil, err
	}
	t.NominatedAt = parseTimePtr(nominatedAt)
	t.UsedAt = parseTimePtr(usedAt)
	return &t, nil
}

func (s *Store) GetWristbandByUID(ctx context.Context, uid string) (*core.Wristband, error) {
	return getWristbandByUID(ctx, s.db, uid)
}

func getWristbandByUID(ctx context.Context, q querier, uid string) (*core.Wristband, error) {
	var (
		w       core.Wristband
		balance string
		boundAt sql.NullString
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, uid, festival_id, balance, active, ticket_id, bound_at
		 FROM wristbands WHERE uid = ?`, uid,
	).Scan(&w.ID, &w.UID, &w.FestivalID, &balance, &w.Active, &w.TicketID, &boundAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrWristbandNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load wristband: %w", err)
	}
	w.Balance = core.MustParseMoney(balance)
	w.BoundAt = parseTimePtr(boundAt)
	return &w, nil
}

func (s *Store) TicketsByType(ctx context.Context, id core.TicketTypeID) ([]core.AssignedTicket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE ticket_type_id = ? ORDER BY rowid ASC`,
		string(id),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets: %w", err)
	}
	defer rows.Close()

	var tickets []core.AssignedTicket
	for rows.Next() {
		t, err := scanTicketRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

func (s *Store) WristbandsByFestival(ctx context.Context, id core.FestivalID) ([]core.Wristband, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, uid, festival_id, balance, active, ticket_id, bound_at
		 FROM wristbands WHERE festival_id = ? ORDER BY uid ASC`, string(id),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query wristbands: %w", err)
	}
	defer rows.Close()

	var wristbands []core.Wristband
	for rows.Next() {
		var (
			w       core.Wristband
			balance string
			boundAt sql.NullString
		)
		if err := rows.Scan(&w.ID, &w.UID, &w.FestivalID, &balance, &w.Active, &w.TicketID, &boundAt); err != nil {
			return nil, fmt.Errorf("failed to scan wristband: %w", err)
		}
		w.Balance = core.MustParseMoney(balance)
		w.BoundAt = parseTimePtr(boundAt)
		wristbands = append(wristbands, w)
	}
	return wristbands, rows.Err()
}

func (s *Store) Recharges(ctx context.Context, id core.WristbandID) ([]core.RechargeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, wristband_id, amount, payment_method, cashier_id, at
		 FROM recharges WHERE wristband_id = ? ORDER BY at ASC, rowid ASC`, string(id),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recharges: %w", err)
	}
	defer rows.Close()

	var records []core.RechargeRecord
	for rows.Next() {
		var (
			r      core.RechargeRecord
			amount string
			at     string
		)
		if err := rows.Scan(&r.ID, &r.WristbandID, &amount, &r.PaymentMethod, &r.CashierID, &at); err != nil {
			return nil, fmt.Errorf("failed to scan recharge: %w", err)
		}
		r.Amount = core.MustParseMoney(amount)
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) Consumptions(ctx context.Context, id core.WristbandID) ([]core.ConsumptionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, wristband_id, festival_id, amount, description, point_of_sale, actor_id, at
		 FROM consumptions WHERE wristband_id = ? ORDER BY at ASC, rowid ASC`, string(id),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query consumptions: %w", err)
	}
	defer rows.Close()

	var records []core.ConsumptionRecord
	for rows.Next() {
		var (
			c      core.ConsumptionRecord
			amount string
			at     string
		)
		if err := rows.Scan(&c.ID, &c.WristbandID, &c.FestivalID, &amount, &c.Description, &c.PointOfSale, &c.ActorID, &at); err != nil {
			return nil, fmt.Errorf("failed to scan consumption: %w", err)
		}
		c.Amount = core.MustParseMoney(amount)
		c.At, _ = time.Parse(time.RFC3339Nano, at)
		records = append(records, c)
	}
	return records, rows.Err()
}

func (s *Store) JournalTotals(ctx context.Context, id core.WristbandID) (core.JournalTotals, error) {
	totals := core.JournalTotals{Recharged: core.MoneyZero(), Consumed: core.MoneyZero()}

	// Amounts are stored as decimal text, so the sums are computed in Go
	// rather than trusting SQLite float arithmetic.
	recharges, err := s.Recharges(ctx, id)
	if err != nil {
		return totals, err
	}
	for _, r := range recharges {
		totals.Recharged = totals.Recharged.Add(r.Amount)
	}
	consumptions, err := s.Consumptions(ctx, id)
	if err != nil {
		return totals, err
	}
	for _, c := range consumptions {
		totals.Consumed = totals.Consumed.Add(c.Amount)
	}
	return totals, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn inside a database transaction behind the single writer
// slot. Waiting longer than lockWait for the slot reports core.ErrBusy
// without touching the database.
func (s *Store) WithTx(ctx context.Context, fn func(core.Tx) error) error {
	timer := time.NewTimer(s.lockWait)
	defer timer.Stop()
	select {
	case s.writer <- struct{}{}:
	case <-timer.C:
		return core.ErrBusy
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.writer }()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		if isBusyError(err) {
			return core.ErrBusy
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		if isBusyError(err) {
			return core.ErrBusy
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

// LockTicketType reads the row. The writer slot already serializes all write
// transactions, so the read is as exclusive as a row lock.
func (ts *txStore) LockTicketType(ctx context.Context, id core.TicketTypeID) (*core.TicketType, error) {
	return getTicketType(ctx, ts.tx, id)
}

func (ts *txStore) LockWristbandByUID(ctx context.Context, uid string) (*core.Wristband, error) {
	return getWristbandByUID(ctx, ts.tx, uid)
}

func (ts *txStore) GetFestival(ctx context.Context, id core.FestivalID) (*core.Festival, error) {
	return getFestival(ctx, ts.tx, id)
}

func (ts *txStore) GetTicketType(ctx context.Context, id core.TicketTypeID) (*core.TicketType, error) {
	return getTicketType(ctx, ts.tx, id)
}

func (ts *txStore) GetTicket(ctx context.Context, id core.TicketID) (*core.AssignedTicket, error) {
	return getTicket(ctx, ts.tx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, string(id))
}

func (ts *txStore) GetTicketByQR(ctx context.Context, qrCode string) (*core.AssignedTicket, error) {
	return getTicket(ctx, ts.tx, `SELECT `+ticketColumns+` FROM tickets WHERE qr_code = ?`, qrCode)
}

func (ts *txStore) InsertPurchase(ctx context.Context, p *core.Purchase) error {
	_, err := ts.tx.ExecContext(ctx,
		`INSERT INTO purchases (id, buyer_id, total, confirmed_at) VALUES (?, ?, ?, ?)`,
		string(p.ID), string(p.BuyerID), p.Total.Value.String(), p.ConfirmedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert purchase: %w", err)
	}
	return nil
}

func (ts *txStore) InsertLineItem(ctx context.Context, li *core.PurchaseLineItem) error {
	_, err := ts.tx.ExecContext(ctx,
		`INSERT INTO purchase_line_items (id, purchase_id, ticket_type_id, unit_price, quantity)
		 VALUES (?, ?, ?, ?, ?)`,
		string(li.ID), string(li.PurchaseID), string(li.TicketTypeID), li.UnitPrice.Value.String(), li.Quantity,
	)
	if err != nil {
		return fmt.Errorf("failed to insert line item: %w", err)
	}
	return nil
}

func (ts *txStore) InsertTickets(ctx context.Context, tickets []core.AssignedTicket) error {
	for _, t := range tickets {
		_, err := ts.tx.ExecContext(ctx,
			`INSERT INTO tickets (id, line_item_id, ticket_type_id, qr_code, state, attendee_id, wristband_id, nominated_at, used_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(t.ID), string(t.LineItemID), string(t.TicketTypeID), t.QRCode, string(t.State),
			string(t.AttendeeID), string(t.WristbandID), formatTimePtr(t.NominatedAt), formatTimePtr(t.UsedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert ticket: %w", err)
		}
	}
	return nil
}

func (ts *txStore) UpdateTicketType(ctx context.Context, tt *core.TicketType) error {
	res, err := ts.tx.ExecContext(ctx,
		`UPDATE ticket_types SET name = ?, price = ?, stock = ?, requires_nomination = ? WHERE id = ?`,
		tt.Name, tt.Price.Value.String(), tt.Stock, tt.RequiresNomination, string(tt.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update ticket type: %w", err)
	}
	return requireRow(res, core.ErrTicketTypeNotFound)
}

// UpdateTicket writes the ticket only while its stored state still matches
// expected. Matching zero rows means another transaction transitioned the
// ticket first.
func (ts *txStore) UpdateTicket(ctx context.Context, t *core.AssignedTicket, expected core.TicketState) error {
	res, err := ts.tx.ExecContext(ctx,
		`UPDATE tickets SET state = ?, attendee_id = ?, wristband_id = ?, nominated_at = ?, used_at = ?
		 WHERE id = ? AND state = ?`,
		string(t.State), string(t.AttendeeID), string(t.WristbandID),
		formatTimePtr(t.NominatedAt), formatTimePtr(t.UsedAt), string(t.ID), string(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to update ticket: %w", err)
	}
	return requireRow(res, fmt.Errorf("%w: ticket %s no longer %s",
		core.ErrInvalidStateTransition, t.ID, expected))
}

func (ts *txStore) InsertWristband(ctx context.Context, w *core.Wristband) error {
	_, err := ts.tx.ExecContext(ctx,
		`INSERT INTO wristbands (id, uid, festival_id, balance, active, ticket_id, bound_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(w.ID), w.UID, string(w.FestivalID), w.Balance.Value.String(), w.Active,
		string(w.TicketID), formatTimePtr(w.BoundAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert wristband: %w", err)
	}
	return nil
}

func (ts *txStore) UpdateWristband(ctx context.Context, w *core.Wristband) error {
	res, err := ts.tx.ExecContext(ctx,
		`UPDATE wristbands SET festival_id = ?, balance = ?, active = ?, ticket_id = ?, bound_at = ?
		 WHERE id = ?`,
		string(w.FestivalID), w.Balance.Value.String(), w.Active, string(w.TicketID),
		formatTimePtr(w.BoundAt), string(w.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update wristband: %w", err)
	}
	return requireRow(res, core.ErrWristbandNotFound)
}

func (ts *txStore) AppendRecharge(ctx context.Context, r core.RechargeRecord) error {
	_, err := ts.tx.ExecContext(ctx,
		`INSERT INTO recharges (id, wristband_id, amount, payment_method, cashier_id, at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.WristbandID), r.Amount.Value.String(), r.PaymentMethod, string(r.CashierID),
		r.At.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append recharge: %w", err)
	}
	return nil
}

func (ts *txStore) AppendConsumption(ctx context.Context, c core.ConsumptionRecord) error {
	_, err := ts.tx.ExecContext(ctx,
		`INSERT INTO consumptions (id, wristband_id, festival_id, amount, description, point_of_sale, actor_id, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(c.WristbandID), string(c.FestivalID), c.Amount.Value.String(),
		c.Description, c.PointOfSale, string(c.ActorID), c.At.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append consumption: %w", err)
	}
	return nil
}

func (ts *txStore) UpdateFestival(ctx context.Context, f *core.Festival) error {
	res, err := ts.tx.ExecContext(ctx,
		`UPDATE festivals SET name = ?, promoter_id = ?, state = ? WHERE id = ?`,
		f.Name, string(f.PromoterID), string(f.State), string(f.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update festival: %w", err)
	}
	return requireRow(res, core.ErrFestivalNotFound)
}

// =============================================================================
// HELPERS
// =============================================================================

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func isBusyError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "database is locked") ||
		strings.Contains(err.Error(), "SQLITE_BUSY"))
}
