package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/listsync/internal/config"
	"github.com/roach88/listsync/internal/engine"
	"github.com/roach88/listsync/internal/metrics"
	"github.com/roach88/listsync/internal/source"
	"github.com/roach88/listsync/internal/source/kube"
	"github.com/roach88/listsync/internal/store"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Config      string
	View        string
	Database    string // optional - journal fetched pages
	MetricsAddr string // optional - serve /metrics
	Kubeconfig  string
	Once        bool

	// Source replaces the Kubernetes source when set.
	Source source.Source
}

// SnapshotSummary is one line of watch output.
type SnapshotSummary struct {
	Seq         int64    `json:"seq"`
	Activity    string   `json:"activity,omitempty"`
	Items       int      `json:"items"`
	Filtered    int      `json:"filtered"`
	Finished    bool     `json:"finished"`
	Refreshing  bool     `json:"refreshing"`
	CanContinue bool     `json:"can_continue"`
	Keys        []string `json:"keys"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Mirror a view and print its snapshots",
		Long: `Mirror the collection a view describes and print a snapshot after
every committed transition.

The watch pages through the view's namespaces, then re-sweeps the
collection every refresh interval until interrupted. With --once it
exits as soon as initial paging is done.

Examples:
  listsync watch --config ./views.cue --view workshops
  listsync watch --config ./views.cue --view workshops --db ./journal.db
  listsync watch --config ./views.cue --view providers --metrics-addr :9090
  listsync watch --config ./views.cue --view workshops --once --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "view configuration file or directory (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().StringVar(&opts.View, "view", "", "view to watch (required)")
	_ = cmd.MarkFlagRequired("view")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record fetched pages to this journal")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&opts.Kubeconfig, "kubeconfig", "", "path to kubeconfig (default: in-cluster or $KUBECONFIG)")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "exit after initial paging completes")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return formatter.Failure(ExitFailure, ErrCodeConfig, err.Error(), nil)
	}
	view, err := cfg.View(opts.View)
	if err != nil {
		return formatter.Failure(ExitFailure, ErrCodeViewNotFound, err.Error(), map[string]any{"views": cfg.Names()})
	}

	src := opts.Source
	if src == nil {
		c, err := kube.NewClient(opts.Kubeconfig)
		if err != nil {
			return formatter.Failure(ExitCommandError, ErrCodeSource, err.Error(), nil)
		}
		src = kube.New(c, view.GVK(), kube.WithLabels(view.Labels), kube.WithLogger(logger))
	}

	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer st.Close()
		src = store.NewRecorder(src, st, view.Name, store.WithRecorderLogger(logger))
		formatter.VerboseLog("Recording pages to %s", opts.Database)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if opts.MetricsAddr != "" {
		srv := serveMetrics(opts.MetricsAddr, reg, logger)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var (
		mu      sync.Mutex
		lastErr error
		d       *engine.Driver
	)
	emit := snapshotPrinter(formatter)
	d = engine.NewDriver(src,
		engine.WithObserver(m),
		engine.WithDriverLogger(logger),
		engine.OnSnapshot(func(s engine.Snapshot) {
			emit(s)
			if opts.Once && s.Seq > 0 && !s.WantsFetch && !s.Refreshing {
				d.Stop()
			}
		}),
		engine.OnError(func(err error) {
			logger.Error("fetch aborted", "view", view.Name, "error", err)
			mu.Lock()
			lastErr = err
			mu.Unlock()
		}),
	)

	logger.Info("watching view", "view", view.Name, "gvk", view.GVK().String(), "namespaces", view.Namespaces)
	d.Dispatch(view.StartFetch())

	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "watch failed", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if opts.Once && lastErr != nil {
		return formatter.Failure(ExitFailure, ErrCodeSource, lastErr.Error(), nil)
	}
	return nil
}

// snapshotPrinter returns a function writing one summary per snapshot:
// a JSON object per line, or a text line with the filtered keys when
// verbose.
func snapshotPrinter(f *OutputFormatter) func(engine.Snapshot) {
	var enc *json.Encoder
	if f.JSON() {
		enc = json.NewEncoder(f.Writer)
	}
	return func(s engine.Snapshot) {
		sum := summarizeSnapshot(s)
		if enc != nil {
			_ = enc.Encode(sum)
			return
		}
		printSnapshotText(f.Writer, sum, f.Verbose)
	}
}

func summarizeSnapshot(s engine.Snapshot) SnapshotSummary {
	keys := make([]string, len(s.FilteredItems))
	for i, o := range s.FilteredItems {
		keys[i] = o.Key()
	}
	return SnapshotSummary{
		Seq:         s.Seq,
		Activity:    s.ActivityID,
		Items:       len(s.Items),
		Filtered:    len(s.FilteredItems),
		Finished:    s.Finished,
		Refreshing:  s.Refreshing,
		CanContinue: s.CanContinue,
		Keys:        keys,
	}
}

func printSnapshotText(w io.Writer, s SnapshotSummary, verbose bool) {
	fmt.Fprintf(w, "seq=%d items=%d filtered=%d finished=%t refreshing=%t can_continue=%t\n",
		s.Seq, s.Items, s.Filtered, s.Finished, s.Refreshing, s.CanContinue)
	if !verbose {
		return
	}
	for _, k := range s.Keys {
		fmt.Fprintf(w, "  %s\n", k)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}
