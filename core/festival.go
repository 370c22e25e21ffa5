/*
festival.go - Festival publication state machine

PURPOSE:
  Sales and gate-entry associations are gated on the festival being published.
  FestivalLifecycle owns the only write path for that state and enforces the
  strict transition graph declared on Festival.CanTransitionTo.
*/
package core

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// FestivalLifecycle moves festivals through draft/published/cancelled/finished.
type FestivalLifecycle struct {
	store LedgerStore
	guard *OwnershipGuard
	log   *logrus.Entry
}

func NewFestivalLifecycle(store LedgerStore, guard *OwnershipGuard, log *logrus.Logger) *FestivalLifecycle {
	return &FestivalLifecycle{
		store: store,
		guard: guard,
		log:   log.WithField("component", "festival"),
	}
}

// ChangeState transitions a festival to the target state. Promoters may move
// their own festivals, admins any. An off-graph transition is rejected without
// writing, including no-op transitions to the current state.
func (fl *FestivalLifecycle) ChangeState(ctx context.Context, id FestivalID, next FestivalState, actor Actor) (*Festival, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: festival id is required", ErrInvalidArgument)
	}
	switch next {
	case FestivalDraft, FestivalPublished, FestivalCancelled, FestivalFinished:
	default:
		return nil, fmt.Errorf("%w: unknown festival state %q", ErrInvalidArgument, next)
	}

	var updated Festival
	err := fl.store.WithTx(ctx, func(tx Tx) error {
		festival, err := tx.GetFestival(ctx, id)
		if err != nil {
			return err
		}
		if err := fl.guard.Authorize(actor, festival, RolePromoter); err != nil {
			return err
		}
		if !festival.CanTransitionTo(next) {
			return fmt.Errorf("%w: festival %s cannot move from %s to %s",
				ErrInvalidStateTransition, festival.ID, festival.State, next)
		}
		festival.State = next
		if err := tx.UpdateFestival(ctx, festival); err != nil {
			return err
		}
		updated = *festival
		return nil
	})
	if err != nil {
		return nil, err
	}

	fl.log.WithFields(logrus.Fields{"festival": id, "state": next}).Info("festival state changed")
	return &updated, nil
}
