package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/listsync/internal/source"
)

// Recorder is a source.Source that journals every page it returns.
//
// Pages are attributed to the activity carried by the request context
// (source.WithActivity); requests without one pass through unrecorded.
// A journal write failure is logged and never fails the fetch.
type Recorder struct {
	inner  source.Source
	store  *Store
	view   string
	logger *slog.Logger

	mu    sync.Mutex
	known map[string]bool
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the logger. Default: slog.Default().
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = l
	}
}

// NewRecorder wraps inner, recording its pages under view.
func NewRecorder(inner source.Source, st *Store, view string, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		inner:  inner,
		store:  st,
		view:   view,
		logger: slog.Default(),
		known:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FetchPage implements source.Source.
func (r *Recorder) FetchPage(ctx context.Context, req source.Request) (source.Page, error) {
	page, err := r.inner.FetchPage(ctx, req)
	if err != nil {
		return page, err
	}

	act, ok := source.ActivityFromContext(ctx)
	if !ok {
		return page, nil
	}

	// Recorded even if the fetch is cancelled after resolving.
	wctx := context.WithoutCancel(ctx)
	if err := r.record(wctx, act, req, page); err != nil {
		r.logger.Warn("journal write failed",
			"activity", act.ID,
			"namespace", req.Namespace,
			"continue", req.Continue,
			"error", err,
		)
	}
	return page, nil
}

func (r *Recorder) record(ctx context.Context, act source.Activity, req source.Request, page source.Page) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.known[act.ID] {
		kind := KindInitial
		if act.Refresh {
			kind = KindRefresh
		}
		if err := r.store.WriteActivity(ctx, Activity{ID: act.ID, View: r.view, Kind: kind}); err != nil {
			return err
		}
		r.known[act.ID] = true
	}

	return r.store.WritePage(ctx, Page{
		ActivityID:  act.ID,
		Namespace:   req.Namespace,
		ContinueIn:  req.Continue,
		ContinueOut: page.Continue,
		Items:       page.Items,
	})
}
