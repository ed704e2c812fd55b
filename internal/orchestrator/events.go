package orchestrator

import (
	"context"

	"github.com/dvloznov/openfinance/internal/logger"
)

// MirrorOp names a mirror-side step.
type MirrorOp string

const (
	OpProject   MirrorOp = "project"
	OpReproject MirrorOp = "reproject"
	OpRetire    MirrorOp = "retire"
	OpBackfill  MirrorOp = "backfill"
)

// MirrorOutcome is how a mirror-side step ended.
type MirrorOutcome string

const (
	OutcomeSucceeded MirrorOutcome = "succeeded"
	OutcomeFailed    MirrorOutcome = "failed"
	OutcomeSkipped   MirrorOutcome = "skipped"
)

// MirrorEvent describes one mirror-side step.
type MirrorEvent struct {
	Op            MirrorOp
	Outcome       MirrorOutcome
	TransactionID string
	MirrorRef     string
	Reason        string // why the step was skipped
	Err           error  // why the step failed
}

// Observer receives every mirror event. It is called synchronously.
type Observer interface {
	ObserveMirror(ctx context.Context, event MirrorEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event MirrorEvent)

// ObserveMirror implements Observer.
func (f ObserverFunc) ObserveMirror(ctx context.Context, event MirrorEvent) {
	f(ctx, event)
}

func (o *Orchestrator) emit(ctx context.Context, event MirrorEvent) {
	log := logger.FromContext(ctx)

	entry := log.Debug()
	switch event.Outcome {
	case OutcomeFailed:
		entry = log.Warn().Err(event.Err)
	case OutcomeSucceeded:
		entry = log.Info()
	}

	entry.
		Str("mirror_op", string(event.Op)).
		Str("outcome", string(event.Outcome)).
		Str("transaction_id", event.TransactionID).
		Str("mirror_ref", event.MirrorRef).
		Str("reason", event.Reason).
		Msg("Mirror step finished")

	if o.observer != nil {
		o.observer.ObserveMirror(ctx, event)
	}
}
