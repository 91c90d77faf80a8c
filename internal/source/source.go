// Package source defines the paged list contract the sync engine consumes
// and provides an in-memory implementation of it.
//
// A Source returns one page of objects per call together with an opaque
// continuation token. An empty token means the namespace is exhausted.
// Sources never see engine state; the embedding loop decides which page to
// request next.
package source

//go:generate mockgen -source=source.go -destination=mocks/source_mock.go -package=mocks

import (
	"context"

	"github.com/roach88/listsync/internal/object"
)

// AllNamespaces requests a server-side fan-out across every namespace.
const AllNamespaces = ""

// Request identifies one page to fetch.
type Request struct {
	// Namespace to list; AllNamespaces lists across the cluster.
	Namespace string

	// Continue is the token returned with the previous page, empty for the first.
	Continue string

	// Limit is the page size; zero or less asks for everything at once.
	Limit int
}

// Page is one batch of objects plus the token for the following page.
type Page struct {
	Items    []object.Tracked
	Continue string
}

// Source is a paged list API.
type Source interface {
	// FetchPage returns the page described by req.
	// Implementations must honor ctx cancellation.
	FetchPage(ctx context.Context, req Request) (Page, error)
}

// Func adapts an ordinary function to the Source interface.
type Func func(ctx context.Context, req Request) (Page, error)

// FetchPage calls f(ctx, req).
func (f Func) FetchPage(ctx context.Context, req Request) (Page, error) {
	return f(ctx, req)
}

type activityKey struct{}

// Activity identifies the engine activity a request is made for.
// Decorating sources, such as the page journal, read it from the context.
type Activity struct {
	ID      string
	Refresh bool
}

// WithActivity returns a context carrying a.
func WithActivity(ctx context.Context, a Activity) context.Context {
	return context.WithValue(ctx, activityKey{}, a)
}

// ActivityFromContext returns the activity stored by WithActivity.
func ActivityFromContext(ctx context.Context) (Activity, bool) {
	a, ok := ctx.Value(activityKey{}).(Activity)
	return a, ok
}
