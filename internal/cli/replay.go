package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quickcart/usersync/internal/config"
	"github.com/quickcart/usersync/internal/eventbus"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	File string
}

// ReplayOutput lists the event ids accepted by the bus.
type ReplayOutput struct {
	Event  string   `json:"event"`
	UserID string   `json:"userId"`
	IDs    []string `json:"ids"`
}

func (o ReplayOutput) String() string {
	return fmt.Sprintf("%s %s queued: %s", o.Event, o.UserID, strings.Join(o.IDs, ", "))
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Send an identity event to the event bus for asynchronous sync",
		Long: `Send a webhook-shaped identity event ({type, data}) to the event bus. The
matching sync function picks it up with the bus's retry policy.

Requires EVENTBUS_EVENT_KEY.

Examples:
  usersyncctl replay --file user-updated.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "event file in JSON or YAML, - for stdin (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
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
	if strings.TrimSpace(ev.Payload.ID) == "" {
		return NewExitError(ExitCommandError, "event data has no id")
	}

	cfg, err := config.LoadStore()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	busEvent, err := eventbus.UserEvent(ev)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode event", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	out.VerboseLog("sending %s to %s", busEvent.Name, cfg.EventBus.BaseURL)
	busCfg := eventbus.Config{
		AppID:    cfg.EventBus.AppID,
		BaseURL:  cfg.EventBus.BaseURL,
		EventKey: cfg.EventBus.EventKey,
		Dev:      cfg.EventBus.Dev,
	}
	client, err := eventbus.NewClient(busCfg, opts.logger(cmd, cfg.Environment == "development"))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid event bus configuration", err)
	}
	ids, err := eventbus.NewPublisher(client, busCfg).Send(ctx, busEvent)
	if err != nil {
		if errors.Is(err, eventbus.ErrMissingEventKey) {
			return WrapExitError(ExitCommandError, "EVENTBUS_EVENT_KEY is not set", err)
		}
		_ = out.Error("E_SEND", err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to send event", err)
	}

	return out.Success(ReplayOutput{Event: busEvent.Name, UserID: ev.Payload.ID, IDs: ids})
}
