package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/quickcart/usersync/internal/config"
	"github.com/quickcart/usersync/internal/platform/dto"
	"github.com/quickcart/usersync/internal/storage"
)

type checkOutput struct {
	dto.StoreReport
}

func (o checkOutput) String() string {
	return fmt.Sprintf("%s store %s (%s): %d users, collections [%s]",
		o.Backend, o.Status, o.Connection, o.UserCount, strings.Join(o.Collections, ", "))
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check store connectivity and report the user count",
		Long: `Dial the configured store with a throwaway connection, then count user
records and list collections.

Exit codes:
  0 - Store reachable
  1 - Store unreachable or inspection failed
  2 - Invalid configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, cmd)
		},
	}
}

func runCheck(opts *RootOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

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

	report := dto.StoreReport{
		Backend:     store.Store.Backend(),
		Database:    store.Store.Database(),
		Connection:  store.Redacted,
		Environment: cfg.Environment,
	}

	if err := store.Store.Ping(ctx); err != nil {
		report.Status = "failed"
		report.Error = err.Error()
		_ = out.Error("E_UNREACHABLE", "store unreachable", report)
		return WrapExitError(ExitFailure, "store unreachable", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := store.Store.Count(gctx)
		report.UserCount = n
		return err
	})
	g.Go(func() error {
		names, err := store.Store.Collections(gctx)
		report.Collections = names
		return err
	})
	if err := g.Wait(); err != nil {
		report.Status = "failed"
		report.Error = err.Error()
		_ = out.Error("E_INSPECT", "store inspection failed", report)
		return WrapExitError(ExitFailure, "store inspection failed", err)
	}

	report.Status = "success"
	report.CacheState = store.Store.CacheState()
	return out.Success(checkOutput{report})
}
