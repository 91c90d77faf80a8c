package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/listsync/internal/config"
	"github.com/roach88/listsync/internal/engine"
	"github.com/roach88/listsync/internal/object"
	"github.com/roach88/listsync/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Activity string
	Config   string // optional - apply the recorded view's filter and prune
}

// ReplayResult holds the replay result.
type ReplayResult struct {
	Activity       string `json:"activity"`
	View           string `json:"view"`
	Kind           string `json:"kind"`
	Pages          int    `json:"pages"`
	Items          int    `json:"items"`
	Filtered       int    `json:"filtered"`
	ItemsDigest    string `json:"items_digest"`
	FilteredDigest string `json:"filtered_digest"`
	Deterministic  bool   `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run the sync machine against recorded pages",
		Long: `Re-run the sync machine against the pages one activity recorded and
report the resulting view.

The replay runs twice and both results must produce identical digests.
With --config the recorded view's filter and prune projection apply.

Exit codes:
  0 - Replay completed deterministically
  1 - Replay failed (missing page, non-deterministic result)
  2 - Command error (journal not found, etc.)

Examples:
  listsync replay --db ./journal.db --activity 0190c1d2-...
  listsync replay --db ./journal.db --activity 0190c1d2-... --config ./views.cue`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the page journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Activity, "activity", "", "activity ID to replay (required)")
	_ = cmd.MarkFlagRequired("activity")
	cmd.Flags().StringVar(&opts.Config, "config", "", "view configuration to apply")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	src, err := store.NewReplaySource(ctx, st, opts.Activity)
	if errors.Is(err, store.ErrNotFound) {
		return formatter.Failure(ExitFailure, ErrCodeActivityNotFound, fmt.Sprintf("activity not recorded: %s", opts.Activity), nil)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load activity", err)
	}
	act := src.Activity()

	start := engine.StartFetch{}
	if opts.Config != "" {
		cfg, err := config.Load(opts.Config)
		if err != nil {
			return formatter.Failure(ExitFailure, ErrCodeConfig, err.Error(), nil)
		}
		view, err := cfg.View(act.View)
		if err != nil {
			return formatter.Failure(ExitFailure, ErrCodeViewNotFound, err.Error(), nil)
		}
		start = view.StartFetch()
		start.Limit = 0
		start.RefreshInterval = 0
	}
	start.Namespaces = src.Namespaces()

	first, pages, err := replayActivity(ctx, src, start, logger)
	if err != nil {
		return formatter.Failure(ExitFailure, ErrCodeReplay, err.Error(), map[string]any{"pages": pages})
	}
	second, _, err := replayActivity(ctx, src, start, logger)
	if err != nil {
		return formatter.Failure(ExitFailure, ErrCodeReplay, err.Error(), nil)
	}

	result := ReplayResult{
		Activity:       act.ID,
		View:           act.View,
		Kind:           act.Kind,
		Pages:          pages,
		Items:          len(first.Items),
		Filtered:       len(first.FilteredItems),
		ItemsDigest:    object.MustDigest(first.Items),
		FilteredDigest: object.MustDigest(first.FilteredItems),
	}
	result.Deterministic = result.ItemsDigest == object.MustDigest(second.Items) &&
		result.FilteredDigest == object.MustDigest(second.FilteredItems)

	if !result.Deterministic {
		return formatter.Failure(ExitFailure, ErrCodeReplay, "replay is not deterministic", result)
	}

	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Replayed %s (%s, view %s)\n", result.Activity, result.Kind, result.View)
		fmt.Fprintf(w, "  pages:    %d\n", result.Pages)
		fmt.Fprintf(w, "  items:    %d  %.12s\n", result.Items, result.ItemsDigest)
		fmt.Fprintf(w, "  filtered: %d  %.12s\n", result.Filtered, result.FilteredDigest)
		fmt.Fprintln(w, "✓ deterministic")
	})
}

// replayActivity drives a machine over src until it wants no more pages
// or the recording ends. The replayed activity keeps its recorded ID.
func replayActivity(ctx context.Context, src *store.ReplaySource, start engine.StartFetch, logger *slog.Logger) (*engine.State, int, error) {
	id := src.Activity().ID
	m := engine.NewMachine(
		engine.WithActivityIDs(engine.NewFixedGenerator(id)),
		engine.WithLogger(logger),
	)

	st, err := m.Reduce(nil, start)
	if err != nil {
		return nil, 0, err
	}

	pages := 0
	for {
		req, ok := st.NextRequest()
		if !ok || (pages > 0 && !src.Has(req)) {
			return st, pages, nil
		}
		page, err := src.FetchPage(ctx, req)
		if err != nil {
			return st, pages, err
		}
		pages++
		st, err = m.Reduce(st, engine.PageArrived{
			ActivityID: id,
			Items:      page.Items,
			Continue:   page.Continue,
		})
		if err != nil {
			return st, pages, err
		}
	}
}
