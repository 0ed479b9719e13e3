// Package saga runs a write that spans two stores as one logical unit.
package saga

import (
	"context"
	"time"
)

// Outcome is the terminal state of a two-step write.
type Outcome int

const (
	// Committed means both steps succeeded.
	Committed Outcome = iota
	// Aborted means the first step failed; nothing needs undoing.
	Aborted
	// RolledBack means the second step failed and the first was undone.
	RolledBack
	// RollbackFailed means the second step failed and undoing the first also failed.
	// The first step's effect is left behind (orphan risk).
	RollbackFailed
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	case RolledBack:
		return "rolled_back"
	case RollbackFailed:
		return "rollback_failed"
	default:
		return "unknown"
	}
}

// Result captures what happened. Err is always the original failure; UndoErr
// is only set for RollbackFailed.
type Result struct {
	Outcome Outcome
	Err     error
	UndoErr error
}

// Step is a single side effect.
type Step func(ctx context.Context) error

// TwoStep describes "write A, write B, on B failure undo A".
type TwoStep struct {
	First  Step
	Second Step
	Undo   Step
	// UndoTimeout bounds the compensating action. It runs detached from the
	// caller's cancellation so a client disconnect cannot skip cleanup.
	UndoTimeout time.Duration
}

const defaultUndoTimeout = 15 * time.Second

// Run executes the steps in order.
func (s TwoStep) Run(ctx context.Context) Result {
	if err := s.First(ctx); err != nil {
		return Result{Outcome: Aborted, Err: err}
	}
	if err := s.Second(ctx); err != nil {
		if s.Undo == nil {
			return Result{Outcome: RollbackFailed, Err: err}
		}
		timeout := s.UndoTimeout
		if timeout <= 0 {
			timeout = defaultUndoTimeout
		}
		undoCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if undoErr := s.Undo(undoCtx); undoErr != nil {
			return Result{Outcome: RollbackFailed, Err: err, UndoErr: undoErr}
		}
		return Result{Outcome: RolledBack, Err: err}
	}
	return Result{Outcome: Committed}
}
