package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/quickcart/usersync/internal/config"
	"github.com/quickcart/usersync/internal/storage"
	"github.com/quickcart/usersync/internal/usersync"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	File string
}

// ReconcileOutput is the result of a direct reconciliation.
type ReconcileOutput struct {
	Event   usersync.Kind    `json:"event"`
	UserID  string           `json:"userId"`
	Outcome usersync.Outcome `json:"outcome"`
	Backend string           `json:"backend"`
}

func (o ReconcileOutput) String() string {
	return fmt.Sprintf("%s %s: %s (%s)", o.Event, o.UserID, o.Outcome, o.Backend)
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Apply one identity event directly to the store",
		Long: `Apply a webhook-shaped identity event ({type, data}) to the configured store
using the same reconciliation rules as the server.

Exit codes:
  0 - Event applied
  1 - Event rejected or store unavailable
  2 - Command error (unreadable input, invalid configuration)

Examples:
  usersyncctl reconcile --file user-created.json
  cat event.yaml | usersyncctl reconcile --file - --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "event file in JSON or YAML, - for stdin (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runReconcile(opts *ReconcileOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	envelope, err := readEnvelope(opts.File, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read event", err)
	}
	ev, err := envelope.Event()
	if err != nil {
		_ = out.Error("E_UNSUPPORTED", fmt.Sprintf("event type %q is not handled", envelope.Type), nil)
		return WrapExitError(ExitFailure, "event not handled", err)
	}

	cfg, err := config.LoadStore()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	logger := opts.logger(cmd, cfg.Environment == "development")

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	store, err := storage.Open(ctx, cfg.Store, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() {
		if err := store.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("store close failed", slog.Any("error", err))
		}
	}()

	out.VerboseLog("store: %s %s", store.Store.Backend(), store.Redacted)
	if err := storage.Prepare(ctx, store.Store); err != nil {
		out.VerboseLog("indexes not ensured: %v", err)
	}

	reconciler, err := usersync.NewReconciler(store.Store, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create reconciler", err)
	}

	res, err := reconciler.Reconcile(ctx, ev)
	if err != nil {
		code := "E_TRANSIENT"
		var rerr *usersync.ReconcileError
		if errors.As(err, &rerr) {
			code = "E_" + string(rerr.Kind)
		}
		_ = out.Error(code, err.Error(), map[string]string{"userId": ev.Payload.ID})
		return WrapExitError(ExitFailure, "reconcile failed", err)
	}

	return out.Success(ReconcileOutput{
		Event:   res.Kind,
		UserID:  res.UserID,
		Outcome: res.Outcome,
		Backend: store.Store.Backend(),
	})
}
