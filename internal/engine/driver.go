package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/roach88/listsync/internal/source"
)

// Guard reasons reported to Observer.GuardTripped.
const (
	GuardPageBudget    = "page_budget"
	GuardContinueCycle = "continue_cycle"
)

// Observer receives driver instrumentation. metrics.Metrics implements it.
type Observer interface {
	FetchCompleted(refresh bool, elapsed time.Duration, err error)
	TransitionApplied(kind string)
	ItemsChanged(items, filtered int)
	PageDropped()
	GuardTripped(reason string)
}

type nopObserver struct{}

func (nopObserver) FetchCompleted(bool, time.Duration, error) {}
func (nopObserver) TransitionApplied(string)                  {}
func (nopObserver) ItemsChanged(int, int)                     {}
func (nopObserver) PageDropped()                              {}
func (nopObserver) GuardTripped(string)                       {}

// Driver is the single-writer event loop embedding one sync state.
//
// The driver applies actions one at a time, asks the state which page it
// wants next, fetches it in a separate goroutine and feeds the result back
// through the queue as a PageArrived action.
//
// Thread-safety model:
//   - Dispatch(), Snapshot(), Stop(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//
// Fetch errors never reach the machine: the driver retries with backoff and
// then cancels the activity and reports through OnError.
type Driver struct {
	machine *Machine
	source  source.Source
	queue   *eventQueue
	logger  *slog.Logger

	newBackoff func() retry.Backoff
	maxPages   int
	observer   Observer
	onSnapshot func(Snapshot)
	onError    func(error)

	// Loop-owned.
	state      *State
	inflight   string
	stopFetch  context.CancelFunc
	budgetFor  string
	budget     *PageBudget
	cycles     *ContinueCycleDetector
	machineOps []MachineOption

	mu       sync.RWMutex
	snapshot Snapshot
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithMachineOptions passes options to the Machine the driver creates.
// WithRefreshHandler is always overridden by the driver.
func WithMachineOptions(opts ...MachineOption) DriverOption {
	return func(d *Driver) {
		d.machineOps = append(d.machineOps, opts...)
	}
}

// WithMaxPages sets the page budget per activity.
// Default: DefaultMaxPages.
func WithMaxPages(n int) DriverOption {
	return func(d *Driver) {
		d.maxPages = n
	}
}

// WithBackoff sets the retry policy for failed fetches. The factory is
// called once per fetch because backoffs are stateful.
// Default: exponential from 100ms, at most 4 retries, capped at 5s.
func WithBackoff(f func() retry.Backoff) DriverOption {
	return func(d *Driver) {
		d.newBackoff = f
	}
}

// WithObserver sets the instrumentation sink.
func WithObserver(o Observer) DriverOption {
	return func(d *Driver) {
		if o != nil {
			d.observer = o
		}
	}
}

// OnSnapshot registers a callback invoked on the loop goroutine after
// every committed transition.
func OnSnapshot(f func(Snapshot)) DriverOption {
	return func(d *Driver) {
		d.onSnapshot = f
	}
}

// OnError registers a callback for fetch failures, guard trips and
// refused transitions.
func OnError(f func(error)) DriverOption {
	return func(d *Driver) {
		d.onError = f
	}
}

// WithDriverLogger sets the logger for the driver and its machine.
func WithDriverLogger(l *slog.Logger) DriverOption {
	return func(d *Driver) {
		d.logger = l
	}
}

// DefaultBackoff is the retry policy used when none is configured.
func DefaultBackoff() retry.Backoff {
	b := retry.NewExponential(100 * time.Millisecond)
	b = retry.WithCappedDuration(5*time.Second, b)
	return retry.WithMaxRetries(4, b)
}

// NewDriver creates a driver fetching from src.
func NewDriver(src source.Source, opts ...DriverOption) *Driver {
	d := &Driver{
		source:     src,
		queue:      newEventQueue(),
		logger:     slog.Default(),
		newBackoff: DefaultBackoff,
		maxPages:   DefaultMaxPages,
		observer:   nopObserver{},
		cycles:     NewContinueCycleDetector(),
		snapshot:   (*State)(nil).Snapshot(),
	}
	for _, opt := range opts {
		opt(d)
	}

	mopts := append([]MachineOption{WithLogger(d.logger)}, d.machineOps...)
	mopts = append(mopts, WithRefreshHandler(d.refreshDue))
	d.machine = NewMachine(mopts...)
	return d
}

// Dispatch submits an action to the loop.
// Returns false if the driver has stopped.
func (d *Driver) Dispatch(a Action) bool {
	return d.queue.Enqueue(event{action: a})
}

// Snapshot returns the view after the last committed transition.
func (d *Driver) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot
}

// Stop closes the queue; Run returns once it has drained.
func (d *Driver) Stop() {
	d.queue.Close()
}

func (d *Driver) refreshDue(activityID string) {
	d.queue.Enqueue(event{action: StartRefreshSweep{ActivityID: activityID}})
}

// Run starts the single-writer event loop.
// Blocks until ctx is cancelled or Stop() is called and the queue drained.
//
// On return the current activity is cancelled, which stops its refresh
// timer and discards any fetch still in flight.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("driver starting")
	defer d.shutdown()

	for {
		ev, ok := d.queue.TryDequeue()
		if ok {
			d.process(ctx, ev)
			continue
		}

		select {
		case <-ctx.Done():
			d.logger.Info("driver stopping: context cancelled")
			d.queue.Close()
			return ctx.Err()

		case <-d.queue.Wait():
			if d.queue.Closed() && d.queue.Len() == 0 {
				d.logger.Info("driver stopping: queue closed")
				return nil
			}
		}
	}
}

func (d *Driver) shutdown() {
	if d.state != nil {
		d.state.Activity.cancel()
	}
	if d.stopFetch != nil {
		d.stopFetch()
	}
}

// process handles one event.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (d *Driver) process(ctx context.Context, ev event) {
	if ev.fetch != nil {
		d.fetchDone(ev.fetch)
	} else {
		d.apply(ev.action)
	}
	d.pump(ctx)
}

func (d *Driver) fetchDone(res *fetchResult) {
	if d.inflight == res.activityID {
		d.inflight = ""
	}
	d.observer.FetchCompleted(res.refresh, res.elapsed, res.err)

	if res.activityID != d.state.ActivityID() || d.state.Activity.Canceled() {
		d.logger.Debug("fetch result dropped: activity cancelled", "activity", res.activityID)
		d.observer.PageDropped()
		return
	}

	if res.err != nil {
		d.logger.Error("page fetch failed",
			"activity", res.activityID,
			"namespace", res.request.Namespace,
			"continue", res.request.Continue,
			"error", res.err,
		)
		d.report(res.err)
		d.apply(Cancel{})
		return
	}

	d.apply(PageArrived{
		ActivityID: res.activityID,
		Refresh:    res.refresh,
		Items:      res.page.Items,
		Continue:   res.page.Continue,
	})
}

// apply runs one transition and publishes the result.
func (d *Driver) apply(a Action) {
	prevID := d.state.ActivityID()
	next, err := d.machine.Reduce(d.state, a)
	if err != nil {
		d.logger.Error("transition refused", "error", err)
		d.report(err)
		return
	}
	if next == d.state {
		return
	}
	d.state = next

	if next.ActivityID() != prevID || next.Activity.Canceled() {
		if next.ActivityID() != prevID {
			d.cycles.Clear(prevID)
		}
		if d.stopFetch != nil {
			d.stopFetch()
			d.stopFetch = nil
		}
	}

	snap := next.Snapshot()
	d.mu.Lock()
	d.snapshot = snap
	d.mu.Unlock()

	d.observer.TransitionApplied(a.Kind())
	d.observer.ItemsChanged(len(snap.Items), len(snap.FilteredItems))
	if d.onSnapshot != nil {
		d.onSnapshot(snap)
	}
}

// pump starts a fetch if the state wants one and none is in flight for
// the current activity.
func (d *Driver) pump(ctx context.Context) {
	id := d.state.ActivityID()
	if d.inflight != "" && d.inflight == id {
		return
	}
	req, ok := d.state.NextRequest()
	if !ok {
		return
	}

	if err := d.guard(id, req); err != nil {
		d.report(err)
		d.apply(Cancel{})
		return
	}

	refresh := d.state.Refreshing
	fctx, cancel := context.WithCancel(source.WithActivity(ctx, source.Activity{ID: id, Refresh: refresh}))
	d.stopFetch = cancel
	d.inflight = id

	d.logger.Debug("fetching page",
		"activity", id,
		"refresh", refresh,
		"namespace", req.Namespace,
		"continue", req.Continue,
		"limit", req.Limit,
	)

	go func() {
		defer cancel()
		start := time.Now()
		var page source.Page
		err := retry.Do(fctx, d.newBackoff(), func(ctx context.Context) error {
			p, err := d.source.FetchPage(ctx, req)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, source.ErrInvalidContinue) {
					return err
				}
				return retry.RetryableError(err)
			}
			page = p
			return nil
		})
		d.queue.Enqueue(event{fetch: &fetchResult{
			activityID: id,
			refresh:    refresh,
			request:    req,
			page:       page,
			err:        err,
			elapsed:    time.Since(start),
		}})
	}()
}

func (d *Driver) guard(id string, req source.Request) error {
	if d.budgetFor != id {
		d.budgetFor = id
		d.budget = NewPageBudget(d.maxPages)
	}
	if err := d.budget.Check(id); err != nil {
		d.logger.Error("page budget exceeded",
			"activity", id,
			"pages", d.budget.Current(),
			"limit", d.maxPages,
		)
		d.observer.GuardTripped(GuardPageBudget)
		return err
	}
	if err := d.cycles.Record(id, req.Namespace, req.Continue); err != nil {
		d.logger.Error("continue token cycle",
			"activity", id,
			"namespace", req.Namespace,
			"continue", req.Continue,
		)
		d.observer.GuardTripped(GuardContinueCycle)
		return err
	}
	return nil
}

func (d *Driver) report(err error) {
	if d.onError != nil {
		d.onError(err)
	}
}
