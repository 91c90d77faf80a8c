package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/listsync/internal/source"
)

// ErrPageNotRecorded is returned by ReplaySource for a position the
// activity never fetched.
var ErrPageNotRecorded = errors.New("page not recorded")

// ReplaySource serves the pages of one recorded activity.
//
// Pages are looked up by (namespace, continue_in), so replay follows the
// recorded tokens regardless of the requested page size.
type ReplaySource struct {
	activity Activity
	pages    map[string]Page
	order    []string
}

// NewReplaySource loads the pages of activityID.
func NewReplaySource(ctx context.Context, st *Store, activityID string) (*ReplaySource, error) {
	act, err := st.ReadActivity(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	pages, err := st.ReadPages(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	r := &ReplaySource{
		activity: act,
		pages:    make(map[string]Page, len(pages)),
	}
	for _, p := range pages {
		r.pages[replayKey(p.Namespace, p.ContinueIn)] = p
		if len(r.order) == 0 || r.order[len(r.order)-1] != p.Namespace {
			r.order = append(r.order, p.Namespace)
		}
	}
	return r, nil
}

func replayKey(namespace, cont string) string {
	return namespace + "\x00" + cont
}

// Activity returns the replayed activity record.
func (r *ReplaySource) Activity() Activity {
	return r.activity
}

// Namespaces returns the namespaces in the order the activity visited them.
func (r *ReplaySource) Namespaces() []string {
	return append([]string(nil), r.order...)
}

// Has reports whether the activity recorded the page req asks for.
// An activity that paused at its limit stops short of its last token, so
// the first unrecorded position after a recorded one marks the end.
func (r *ReplaySource) Has(req source.Request) bool {
	_, ok := r.pages[replayKey(req.Namespace, req.Continue)]
	return ok
}

// FetchPage implements source.Source.
func (r *ReplaySource) FetchPage(ctx context.Context, req source.Request) (source.Page, error) {
	if err := ctx.Err(); err != nil {
		return source.Page{}, err
	}
	p, ok := r.pages[replayKey(req.Namespace, req.Continue)]
	if !ok {
		return source.Page{}, fmt.Errorf("namespace %q continue %q: %w", req.Namespace, req.Continue, ErrPageNotRecorded)
	}
	return source.Page{Items: p.Items, Continue: p.ContinueOut}, nil
}
