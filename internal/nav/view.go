package nav

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"folio/internal/toc"
)

// DefaultSettleDelays are the passes run after Mount while late content
// (lazy loading, entrance animations) settles.
var DefaultSettleDelays = []time.Duration{
	100 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

const defaultMutationDebounce = 50 * time.Millisecond

// View binds the heading index of a surface to a Tracker for the lifetime
// of one mounted page.
type View struct {
	surface  Surface
	tracker  *Tracker
	logger   *zap.Logger
	delays   []time.Duration
	debounce time.Duration
	onChange func([]toc.Heading)

	passMu sync.Mutex

	mu       sync.Mutex
	mounted  bool
	closed   bool
	timers   []*time.Timer
	pending  *time.Timer
	mutSub   Subscription
	headings []toc.Heading
	inflight sync.WaitGroup
}

// ViewOption configures a View.
type ViewOption func(*View)

// WithSettleDelays replaces DefaultSettleDelays.
func WithSettleDelays(delays ...time.Duration) ViewOption {
	return func(v *View) { v.delays = delays }
}

// WithMutationDebounce sets how long a burst of mutations is coalesced.
func WithMutationDebounce(d time.Duration) ViewOption {
	return func(v *View) { v.debounce = d }
}

// WithHeadingsListener is called with every newly published heading list.
func WithHeadingsListener(fn func([]toc.Heading)) ViewOption {
	return func(v *View) { v.onChange = fn }
}

func NewView(surface Surface, tracker *Tracker, logger *zap.Logger, opts ...ViewOption) *View {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &View{
		surface:  surface,
		tracker:  tracker,
		logger:   logger,
		delays:   DefaultSettleDelays,
		debounce: defaultMutationDebounce,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var (
	ErrViewClosed  = errors.New("nav: view closed")
	ErrViewMounted = errors.New("nav: view already mounted")
)

// Mount schedules the settle passes and starts watching for mutations.
func (v *View) Mount() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrViewClosed
	}
	if v.mounted {
		v.mu.Unlock()
		return ErrViewMounted
	}
	v.mounted = true
	for _, d := range v.delays {
		v.timers = append(v.timers, time.AfterFunc(d, v.runPass))
	}
	v.mu.Unlock()

	sub, err := v.surface.ObserveMutations(v.contentChanged)
	if err != nil {
		v.logger.Warn("mutation observation unavailable", zap.Error(err))
		return nil
	}
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return sub.Close()
	}
	v.mutSub = sub
	v.mu.Unlock()
	return nil
}

func (v *View) contentChanged() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if v.pending != nil {
		v.pending.Stop()
	}
	v.pending = time.AfterFunc(v.debounce, v.runPass)
}

func (v *View) runPass() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.inflight.Add(1)
	v.mu.Unlock()
	defer v.inflight.Done()

	v.Refresh()
}

// Refresh re-indexes the surface now and hands the result to the tracker.
// The tracker re-observes on every completed pass because a re-render can
// replace heading elements without changing their text. The headings
// listener only fires when the list itself changed. Passes are serialized,
// so the last one to finish is what the tracker observes.
func (v *View) Refresh() []toc.Heading {
	v.passMu.Lock()
	defer v.passMu.Unlock()

	root, err := v.surface.Root()
	if err != nil {
		v.logger.Debug("read content root", zap.Error(err))
		return v.Headings()
	}
	headings := toc.Index(root)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return headings
	}
	changed := v.headings == nil || !toc.Equal(headings, v.headings)
	v.headings = headings
	v.mu.Unlock()

	v.tracker.SetHeadings(headings)
	if changed {
		v.logger.Debug("headings indexed", zap.Int("count", len(headings)))
		if v.onChange != nil {
			v.onChange(headings)
		}
	}
	return headings
}

// Headings returns the last published list.
func (v *View) Headings() []toc.Heading {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]toc.Heading, len(v.headings))
	copy(out, v.headings)
	return out
}

// Close cancels pending passes, releases every observation and waits for a
// pass already running to finish.
func (v *View) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	for _, t := range v.timers {
		t.Stop()
	}
	v.timers = nil
	if v.pending != nil {
		v.pending.Stop()
		v.pending = nil
	}
	mutSub := v.mutSub
	v.mutSub = nil
	v.mu.Unlock()

	var errs []error
	if mutSub != nil {
		if err := mutSub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	v.inflight.Wait()
	if err := v.tracker.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
