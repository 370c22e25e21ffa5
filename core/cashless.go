/*
cashless.go - The wristband balance ledger

PURPOSE:
  CashlessLedger is the only writer of wristband balances and the only
  appender of journal rows. Every balance mutation happens under the
  wristband row lock, pairs exactly one journal row with exactly one balance
  update, and commits or rolls back as a unit.

CRITICAL INVARIANTS:
  1. balance >= 0 at all times
  2. balance == sum(recharges) - sum(consumptions), always, because the
     journal append and the balance update share a transaction
  3. InsufficientBalance is decided under the lock; a racing recharge that
     commits first is honored, one that commits later is not
  4. Recharge and Consume never create wristbands; an unseen uid is NotFound
*/
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// CASHLESS LEDGER
// =============================================================================

// CashlessLedger records recharges and consumptions against wristbands.
// Safe for concurrent use.
type CashlessLedger struct {
	store LedgerStore
	guard *OwnershipGuard
	log   *logrus.Entry
}

func NewCashlessLedger(store LedgerStore, guard *OwnershipGuard, log *logrus.Logger) *CashlessLedger {
	return &CashlessLedger{
		store: store,
		guard: guard,
		log:   log.WithField("component", "cashless"),
	}
}

// RechargeRequest loads value onto a wristband at a top-up point.
type RechargeRequest struct {
	WristbandUID  string
	FestivalID    FestivalID
	Amount        Money
	PaymentMethod string
	Actor         Actor
}

// ConsumeRequest spends value at a point of sale inside the festival.
type ConsumeRequest struct {
	WristbandUID string
	FestivalID   FestivalID
	Amount       Money
	Description  string
	PointOfSale  string
	Actor        Actor
}

// Recharge credits Amount to the wristband: lock the row, verify it is
// active and confined to the stated festival, append the journal entry, and
// raise the materialized balance. Returns the wristband as committed.
func (l *CashlessLedger) Recharge(ctx context.Context, req RechargeRequest) (*Wristband, error) {
	if req.WristbandUID == "" || req.FestivalID == "" {
		return nil, fmt.Errorf("%w: wristband uid and festival id are required", ErrInvalidArgument)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: recharge amount must be positive, got %s", ErrInvalidArgument, req.Amount)
	}

	var updated Wristband
	err := l.store.WithTx(ctx, func(tx Tx) error {
		festival, err := tx.GetFestival(ctx, req.FestivalID)
		if err != nil {
			return err
		}
		if err := l.guard.Authorize(req.Actor, festival, RolePromoter, RoleCashier); err != nil {
			return err
		}
		wristband, err := tx.LockWristbandByUID(ctx, req.WristbandUID)
		if err != nil {
			return err
		}
		if wristband.FestivalID != req.FestivalID {
			return fmt.Errorf("%w: wristband %s belongs to festival %s",
				ErrFestivalMismatch, req.WristbandUID, wristband.FestivalID)
		}
		if !wristband.Active {
			return fmt.Errorf("%w: wristband %s", ErrInactiveWristband, req.WristbandUID)
		}

		record := RechargeRecord{
			ID:            NewID(),
			WristbandID:   wristband.ID,
			Amount:        req.Amount,
			PaymentMethod: req.PaymentMethod,
			CashierID:     req.Actor.ID,
			At:            time.Now().UTC(),
		}
		if err := tx.AppendRecharge(ctx, record); err != nil {
			return err
		}
		wristband.Balance = wristband.Balance.Add(req.Amount)
		if err := tx.UpdateWristband(ctx, wristband); err != nil {
			return err
		}
		updated = *wristband
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"wristband": req.WristbandUID,
		"amount":    req.Amount.String(),
		"balance":   updated.Balance.String(),
	}).Info("wristband recharged")
	return &updated, nil
}

// Consume debits Amount from the wristband. The balance check happens under
// the row lock; a wristband can never be driven below zero no matter how
// many points of sale hit it at once.
func (l *CashlessLedger) Consume(ctx context.Context, req ConsumeRequest) (*Wristband, error) {
	if req.WristbandUID == "" || req.FestivalID == "" {
		return nil, fmt.Errorf("%w: wristband uid and festival id are required", ErrInvalidArgument)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: consumption amount must be positive, got %s", ErrInvalidArgument, req.Amount)
	}
	if req.Description == "" {
		return nil, fmt.Errorf("%w: consumption description is required", ErrInvalidArgument)
	}

	var updated Wristband
	err := l.store.WithTx(ctx, func(tx Tx) error {
		festival, err := tx.GetFestival(ctx, req.FestivalID)
		if err != nil {
			return err
		}
		if err := l.guard.Authorize(req.Actor, festival, RolePromoter, RoleCashier); err != nil {
			return err
		}
		wristband, err := tx.LockWristbandByUID(ctx, req.WristbandUID)
		if err != nil {
			return err
		}
		if wristband.FestivalID != req.FestivalID {
			return fmt.Errorf("%w: wristband %s belongs to festival %s",
				ErrFestivalMismatch, req.WristbandUID, wristband.FestivalID)
		}
		if !wristband.Active {
			return fmt.Errorf("%w: wristband %s", ErrInactiveWristband, req.WristbandUID)
		}
		// Overdraw check, strictly under the lock.
		if wristband.Balance.LessThan(req.Amount) {
			return &InsufficientBalanceError{
				WristbandUID: wristband.UID,
				Available:    wristband.Balance,
				Requested:    req.Amount,
			}
		}

		record := ConsumptionRecord{
			ID:          NewID(),
			WristbandID: wristband.ID,
			FestivalID:  req.FestivalID,
			Amount:      req.Amount,
			Description: req.Description,
			PointOfSale: req.PointOfSale,
			ActorID:     req.Actor.ID,
			At:          time.Now().UTC(),
		}
		if err := tx.AppendConsumption(ctx, record); err != nil {
			return err
		}
		wristband.Balance = wristband.Balance.Sub(req.Amount)
		if err := tx.UpdateWristband(ctx, wristband); err != nil {
			return err
		}
		updated = *wristband
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"wristband": req.WristbandUID,
		"amount":    req.Amount.String(),
		"balance":   updated.Balance.String(),
		"pos":       req.PointOfSale,
	}).Info("consumption recorded")
	return &updated, nil
}

// Balance returns the current materialized balance of a wristband.
func (l *CashlessLedger) Balance(ctx context.Context, uid string) (Money, error) {
	if uid == "" {
		return Money{}, fmt.Errorf("%w: wristband uid is required", ErrInvalidArgument)
	}
	wristband, err := l.store.GetWristbandByUID(ctx, uid)
	if err != nil {
		return Money{}, err
	}
	return wristband.Balance, nil
}

// Statement is a wristband's full journal plus its materialized balance.
type Statement struct {
	Wristband    Wristband
	Recharges    []RechargeRecord
	Consumptions []ConsumptionRecord
	Totals       JournalTotals
}

// Reconciled reports whether the materialized balance matches the journal.
func (s Statement) Reconciled() bool {
	return s.Wristband.Balance.Equal(s.Totals.Net())
}

// StatementFor reads a wristband's journal and totals. Callers use
// Reconciled to audit the materialized balance against the journal.
func (l *CashlessLedger) StatementFor(ctx context.Context, uid string) (*Statement, error) {
	if uid == "" {
		return nil, fmt.Errorf("%w: wristband uid is required", ErrInvalidArgument)
	}
	wristband, err := l.store.GetWristbandByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	recharges, err := l.store.Recharges(ctx, wristband.ID)
	if err != nil {
		return nil, err
	}
	consumptions, err := l.store.Consumptions(ctx, wristband.ID)
	if err != nil {
		return nil, err
	}
	totals, err := l.store.JournalTotals(ctx, wristband.ID)
	if err != nil {
		return nil, err
	}
	return &Statement{
		Wristband:    *wristband,
		Recharges:    recharges,
		Consumptions: consumptions,
		Totals:       totals,
	}, nil
}
