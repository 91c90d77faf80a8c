package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/listsync/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Activity string // optional - show the pages of one activity
	View     string // optional - filter activities by view
}

// ActivitySummary describes one recorded activity.
type ActivitySummary struct {
	Seq   int64  `json:"seq"`
	ID    string `json:"id"`
	View  string `json:"view"`
	Kind  string `json:"kind"`
	Pages int    `json:"pages"`
	Items int    `json:"items"`
}

// PageSummary describes one recorded page.
type PageSummary struct {
	Seq         int64    `json:"seq"`
	Namespace   string   `json:"namespace"`
	ContinueIn  string   `json:"continue_in"`
	ContinueOut string   `json:"continue_out"`
	Keys        []string `json:"keys"`
	Digest      string   `json:"digest"`
}

// TraceResult holds the trace output.
type TraceResult struct {
	Activities []ActivitySummary `json:"activities,omitempty"`
	Activity   *ActivitySummary  `json:"activity,omitempty"`
	Pages      []PageSummary     `json:"pages,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show recorded fetch activities and pages",
		Long: `Show what a watch recorded in its page journal.

Without --activity, lists every recorded initial fetch and refresh sweep
with page and item counts. With --activity, lists that activity's pages
in fetch order with their continuation tokens and content digests.

Examples:
  listsync trace --db ./journal.db
  listsync trace --db ./journal.db --view workshops
  listsync trace --db ./journal.db --activity 0190c1d2-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the page journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Activity, "activity", "", "activity ID to show pages for")
	cmd.Flags().StringVar(&opts.View, "view", "", "only list activities of this view")

	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	if opts.Activity != "" {
		return traceActivity(ctx, st, opts.Activity, formatter)
	}

	acts, err := st.ReadActivities(ctx, opts.View)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read activities", err)
	}

	result := TraceResult{Activities: make([]ActivitySummary, 0, len(acts))}
	for _, a := range acts {
		pages, err := st.ReadPages(ctx, a.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read pages", err)
		}
		result.Activities = append(result.Activities, summarizeActivity(a, pages))
	}

	return formatter.Success(result, func(w io.Writer) {
		if len(result.Activities) == 0 {
			fmt.Fprintln(w, "No activities recorded.")
			return
		}
		for _, a := range result.Activities {
			fmt.Fprintf(w, "%4d  %-8s %s  view=%s pages=%d items=%d\n",
				a.Seq, a.Kind, a.ID, a.View, a.Pages, a.Items)
		}
	})
}

func traceActivity(ctx context.Context, st *store.Store, id string, formatter *OutputFormatter) error {
	act, err := st.ReadActivity(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return formatter.Failure(ExitFailure, ErrCodeActivityNotFound, fmt.Sprintf("activity not recorded: %s", id), nil)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read activity", err)
	}
	pages, err := st.ReadPages(ctx, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read pages", err)
	}

	summary := summarizeActivity(act, pages)
	result := TraceResult{Activity: &summary, Pages: make([]PageSummary, 0, len(pages))}
	for _, p := range pages {
		keys := make([]string, len(p.Items))
		for i, o := range p.Items {
			keys[i] = o.Key()
		}
		result.Pages = append(result.Pages, PageSummary{
			Seq:         p.Seq,
			Namespace:   p.Namespace,
			ContinueIn:  p.ContinueIn,
			ContinueOut: p.ContinueOut,
			Keys:        keys,
			Digest:      p.Digest,
		})
	}

	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Activity %s (%s, view %s)\n", act.ID, act.Kind, act.View)
		for _, p := range result.Pages {
			ns := p.Namespace
			if ns == "" {
				ns = "*"
			}
			fmt.Fprintf(w, "%4d  %s  %q -> %q  %d item(s)  %.12s\n",
				p.Seq, ns, p.ContinueIn, p.ContinueOut, len(p.Keys), p.Digest)
		}
	})
}

func summarizeActivity(a store.Activity, pages []store.Page) ActivitySummary {
	items := 0
	for _, p := range pages {
		items += len(p.Items)
	}
	return ActivitySummary{
		Seq:   a.Seq,
		ID:    a.ID,
		View:  a.View,
		Kind:  a.Kind,
		Pages: len(pages),
		Items: items,
	}
}
