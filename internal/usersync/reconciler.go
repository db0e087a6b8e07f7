package usersync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Reconciler applies identity events to the user store. Applying the same event
// twice, or events for one user out of order, converges on the same record.
type Reconciler struct {
	repo   Repository
	logger *slog.Logger
}

// NewReconciler constructs a Reconciler over the given store.
func NewReconciler(repo Repository, logger *slog.Logger) (*Reconciler, error) {
	if repo == nil {
		return nil, errors.New("repo is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{repo: repo, logger: logger}, nil
}

// Reconcile applies one event. Failures are always *ReconcileError.
func (r *Reconciler) Reconcile(ctx context.Context, ev Event) (Result, error) {
	logger := r.logger.With(slog.String("event", string(ev.Kind)), slog.String("userId", ev.Payload.ID))

	var (
		res Result
		err error
	)
	switch ev.Kind {
	case KindCreated:
		res, err = r.create(ctx, ev)
	case KindUpdated:
		res, err = r.update(ctx, ev)
	case KindDeleted:
		res, err = r.delete(ctx, ev)
	default:
		err = fail(KindValidation, ev, fmt.Errorf("%w: %q", ErrUnknownEventType, ev.Kind))
	}

	if err != nil {
		logger.Error("reconcile failed", slog.Any("error", err))
		return Result{}, err
	}
	logger.Info("reconciled", slog.String("outcome", string(res.Outcome)))
	return res, nil
}

func (r *Reconciler) create(ctx context.Context, ev Event) (Result, error) {
	fields, err := deriveFields(ev.Payload)
	if err != nil {
		return Result{}, fail(KindValidation, ev, err)
	}
	return r.insertOrUpsert(ctx, ev, fields)
}

// update writes fields in place; an absent record means the create has not
// landed yet, so the update stands in for it.
func (r *Reconciler) update(ctx context.Context, ev Event) (Result, error) {
	fields, err := deriveFields(ev.Payload)
	if err != nil {
		return Result{}, fail(KindValidation, ev, err)
	}

	rec, err := r.repo.UpdateFields(ctx, ev.Payload.ID, fields)
	switch {
	case err == nil:
		return done(ev, OutcomeUpdated, &rec), nil
	case errors.Is(err, ErrNotFound):
		r.logger.Debug("update for absent user, creating", slog.String("userId", ev.Payload.ID))
		return r.insertOrUpsert(ctx, ev, fields)
	case errors.Is(err, ErrConflict):
		return Result{}, fail(KindConflict, ev, err)
	default:
		return Result{}, fail(KindTransient, ev, err)
	}
}

// insertOrUpsert inserts a fresh record and folds a uniqueness violation into a
// field update of the existing one. The cart is only ever set by the insert.
func (r *Reconciler) insertOrUpsert(ctx context.Context, ev Event, fields Fields) (Result, error) {
	id := ev.Payload.ID

	rec, err := r.repo.Insert(ctx, id, fields)
	if err == nil {
		return done(ev, OutcomeCreated, &rec), nil
	}
	if !errors.Is(err, ErrConflict) {
		return Result{}, fail(KindTransient, ev, err)
	}

	rec, err = r.repo.UpdateFields(ctx, id, fields)
	switch {
	case err == nil:
		return done(ev, OutcomeUpserted, &rec), nil
	case errors.Is(err, ErrNotFound):
		// The email belongs to a different user.
		return Result{}, fail(KindConflict, ev, fmt.Errorf("%w: email %q is held by another user", ErrConflict, fields.Email))
	case errors.Is(err, ErrConflict):
		return Result{}, fail(KindConflict, ev, err)
	default:
		return Result{}, fail(KindTransient, ev, err)
	}
}

func (r *Reconciler) delete(ctx context.Context, ev Event) (Result, error) {
	if strings.TrimSpace(ev.Payload.ID) == "" {
		return Result{}, fail(KindValidation, ev, ErrMissingUserID)
	}

	err := r.repo.Delete(ctx, ev.Payload.ID)
	switch {
	case err == nil:
		return done(ev, OutcomeDeleted, nil), nil
	case errors.Is(err, ErrNotFound):
		return done(ev, OutcomeNotFound, nil), nil
	default:
		return Result{}, fail(KindTransient, ev, err)
	}
}

func done(ev Event, outcome Outcome, rec *UserRecord) Result {
	return Result{Kind: ev.Kind, UserID: ev.Payload.ID, Outcome: outcome, Record: rec}
}

func fail(kind ErrorKind, ev Event, err error) error {
	return &ReconcileError{Kind: kind, Event: ev, Err: err}
}
