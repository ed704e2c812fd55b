// Package orchestrator coordinates the authoritative store with the
// best-effort mirror. The primary write always happens first and its outcome
// is what callers see; mirror outcomes are only logged and observed.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/openfinance/internal/domain"
	"github.com/dvloznov/openfinance/internal/logger"
	"github.com/dvloznov/openfinance/internal/store"
)

// Mirror is the secondary store. *notionsync.Mirror implements it.
type Mirror interface {
	Project(ctx context.Context, tx domain.Transaction) (string, error)
	Reproject(ctx context.Context, mirrorRef string, patch domain.Patch) error
	Retire(ctx context.Context, mirrorRef string) error
	CheckReachable(ctx context.Context) (bool, error)
}

// Orchestrator runs create, update and delete across both stores.
type Orchestrator struct {
	store    store.Store
	mirror   Mirror
	observer Observer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMirror enables mirroring. Without it every mirror step is skipped.
func WithMirror(m Mirror) Option {
	return func(o *Orchestrator) {
		o.mirror = m
	}
}

// WithObserver registers a receiver for mirror events.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		o.observer = obs
	}
}

// New creates an orchestrator over the given primary store.
func New(s store.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{store: s}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Create persists draft and then mirrors it. Only a primary store failure is
// returned. The returned record carries mirror_ref only when the back-fill
// reached the primary store too.
func (o *Orchestrator) Create(ctx context.Context, draft domain.Draft) (domain.Transaction, error) {
	log := logger.FromContext(ctx)

	tx, err := o.store.Create(ctx, draft)
	if err != nil {
		log.Error().Err(err).Msg("Failed to persist transaction")
		return domain.Transaction{}, fmt.Errorf("Create: persist: %w", err)
	}

	log.Info().Str("transaction_id", tx.ID).Float64("amount", tx.Amount).Msg("Transaction persisted")

	if o.mirror == nil {
		o.emit(ctx, MirrorEvent{Op: OpProject, Outcome: OutcomeSkipped, TransactionID: tx.ID, Reason: "mirror disabled"})
		return tx, nil
	}

	ref, err := o.mirror.Project(ctx, tx)
	if err != nil {
		o.emit(ctx, failureEvent(OpProject, tx.ID, "", err))
		return tx, nil
	}
	o.emit(ctx, MirrorEvent{Op: OpProject, Outcome: OutcomeSucceeded, TransactionID: tx.ID, MirrorRef: ref})

	backfilled, err := o.store.Update(ctx, tx.ID, domain.Patch{MirrorRef: &ref})
	if err != nil {
		o.emit(ctx, MirrorEvent{Op: OpBackfill, Outcome: OutcomeFailed, TransactionID: tx.ID, MirrorRef: ref, Err: err})
		return tx, nil
	}
	o.emit(ctx, MirrorEvent{Op: OpBackfill, Outcome: OutcomeSucceeded, TransactionID: tx.ID, MirrorRef: ref})

	return backfilled, nil
}

// Get returns the transaction with the given id.
func (o *Orchestrator) Get(ctx context.Context, id string) (domain.Transaction, error) {
	tx, found, err := o.store.FindByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("Get: find: %w", err)
	}
	if !found {
		return domain.Transaction{}, &domain.NotFoundError{ID: id}
	}
	return tx, nil
}

// List returns transactions matching filters, newest first.
func (o *Orchestrator) List(ctx context.Context, filters domain.Filters) ([]domain.Transaction, error) {
	txs, err := o.store.FindMany(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("List: find many: %w", err)
	}
	return txs, nil
}

// Update applies patch to the primary record and, when the record was
// mirrored, forwards the same fields to the mirror.
func (o *Orchestrator) Update(ctx context.Context, id string, patch domain.Patch) (domain.Transaction, error) {
	log := logger.FromContext(ctx)

	// The mirror reference is never client-controlled.
	patch.MirrorRef = nil

	before, found, err := o.store.FindByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("Update: find: %w", err)
	}
	if !found {
		return domain.Transaction{}, &domain.NotFoundError{ID: id}
	}

	updated, err := o.store.Update(ctx, id, patch)
	if err != nil {
		log.Error().Err(err).Str("transaction_id", id).Msg("Failed to update transaction")
		return domain.Transaction{}, fmt.Errorf("Update: persist: %w", err)
	}

	log.Info().Str("transaction_id", id).Msg("Transaction updated")

	switch {
	case !before.HasMirror():
		o.emit(ctx, MirrorEvent{Op: OpReproject, Outcome: OutcomeSkipped, TransactionID: id, Reason: "no mirror reference"})
	case o.mirror == nil:
		o.emit(ctx, MirrorEvent{Op: OpReproject, Outcome: OutcomeSkipped, TransactionID: id, MirrorRef: before.MirrorRef, Reason: "mirror disabled"})
	default:
		if err := o.mirror.Reproject(ctx, before.MirrorRef, patch); err != nil {
			o.emit(ctx, failureEvent(OpReproject, id, before.MirrorRef, err))
		} else {
			o.emit(ctx, MirrorEvent{Op: OpReproject, Outcome: OutcomeSucceeded, TransactionID: id, MirrorRef: before.MirrorRef})
		}
	}

	return updated, nil
}

// Delete removes the primary record and retires its mirror page, if any.
// Deleting an absent record succeeds without touching either store.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	log := logger.FromContext(ctx)

	before, found, err := o.store.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("Delete: find: %w", err)
	}
	if !found {
		log.Debug().Str("transaction_id", id).Msg("Transaction already absent")
		return nil
	}

	if err := o.store.Delete(ctx, id); err != nil {
		log.Error().Err(err).Str("transaction_id", id).Msg("Failed to delete transaction")
		return fmt.Errorf("Delete: persist: %w", err)
	}

	log.Info().Str("transaction_id", id).Msg("Transaction deleted")

	switch {
	case !before.HasMirror():
		o.emit(ctx, MirrorEvent{Op: OpRetire, Outcome: OutcomeSkipped, TransactionID: id, Reason: "no mirror reference"})
	case o.mirror == nil:
		o.emit(ctx, MirrorEvent{Op: OpRetire, Outcome: OutcomeSkipped, TransactionID: id, MirrorRef: before.MirrorRef, Reason: "mirror disabled"})
	default:
		if err := o.mirror.Retire(ctx, before.MirrorRef); err != nil {
			o.emit(ctx, failureEvent(OpRetire, id, before.MirrorRef, err))
		} else {
			o.emit(ctx, MirrorEvent{Op: OpRetire, Outcome: OutcomeSucceeded, TransactionID: id, MirrorRef: before.MirrorRef})
		}
	}

	return nil
}

// CheckStore pings the primary store.
func (o *Orchestrator) CheckStore(ctx context.Context) error {
	return o.store.Ping(ctx)
}

// CheckMirror reports whether the mirror is reachable.
func (o *Orchestrator) CheckMirror(ctx context.Context) (bool, error) {
	if o.mirror == nil {
		return false, &domain.ConfigurationError{Reason: "mirror disabled"}
	}
	return o.mirror.CheckReachable(ctx)
}

// failureEvent classifies a mirror error. A configuration problem means the
// step never ran, so it is reported as skipped.
func failureEvent(op MirrorOp, id, ref string, err error) MirrorEvent {
	var cfgErr *domain.ConfigurationError
	if errors.As(err, &cfgErr) {
		return MirrorEvent{Op: op, Outcome: OutcomeSkipped, TransactionID: id, MirrorRef: ref, Reason: cfgErr.Reason}
	}
	return MirrorEvent{Op: op, Outcome: OutcomeFailed, TransactionID: id, MirrorRef: ref, Err: err}
}
