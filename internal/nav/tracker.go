package nav

import (
	"sync"

	"go.uber.org/zap"

	"folio/internal/toc"
)

// Tracker holds the single active section of a page. Only band-entering
// events change it; leaving the band does not clear it, so scrolling past
// the last heading keeps that heading active.
type Tracker struct {
	surface Surface
	band    Band
	logger  *zap.Logger
	strip   Strip

	mu        sync.Mutex
	active    string
	headings  []toc.Heading
	sub       Subscription
	gen       uint64
	listeners []func(string)
	closed    bool
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithStrip centers the active entry of a narrow-viewport strip on change.
func WithStrip(strip Strip) TrackerOption {
	return func(t *Tracker) { t.strip = strip }
}

// WithBand overrides DefaultBand.
func WithBand(band Band) TrackerOption {
	return func(t *Tracker) { t.band = band }
}

func NewTracker(surface Surface, logger *zap.Logger, opts ...TrackerOption) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{surface: surface, band: DefaultBand, logger: logger}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Active returns the active heading id, if any.
func (t *Tracker) Active() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active, t.active != ""
}

// Headings returns the list currently observed.
func (t *Tracker) Headings() []toc.Heading {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]toc.Heading, len(t.headings))
	copy(out, t.headings)
	return out
}

// OnChange registers fn to run after every change of the active id.
func (t *Tracker) OnChange(fn func(id string)) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// SetHeadings releases the observation of the previous list and observes the
// new one. Events still in flight from the old observation are dropped.
func (t *Tracker) SetHeadings(headings []toc.Heading) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	old := t.sub
	t.sub = nil
	t.gen++
	gen := t.gen
	t.headings = append([]toc.Heading(nil), headings...)
	t.mu.Unlock()

	t.release(old)
	if len(headings) == 0 {
		return
	}

	ids := make([]string, len(headings))
	for i, h := range headings {
		ids[i] = h.ID
	}
	sub, err := t.surface.ObserveVisibility(ids, t.band, func(ev VisibilityEvent) {
		t.handle(gen, ev)
	})
	if err != nil {
		t.logger.Debug("observe headings failed", zap.Int("headings", len(ids)), zap.Error(err))
		return
	}

	t.mu.Lock()
	if t.closed || t.gen != gen {
		t.mu.Unlock()
		t.release(sub)
		return
	}
	t.sub = sub
	t.mu.Unlock()
}

// Deliver feeds a visibility event for the current heading list.
func (t *Tracker) Deliver(ev VisibilityEvent) {
	t.mu.Lock()
	gen := t.gen
	t.mu.Unlock()
	t.handle(gen, ev)
}

func (t *Tracker) handle(gen uint64, ev VisibilityEvent) {
	if !ev.Intersecting || ev.ID == "" {
		return
	}
	t.mu.Lock()
	if t.closed || gen != t.gen || t.active == ev.ID {
		t.mu.Unlock()
		return
	}
	t.active = ev.ID
	listeners := append([]func(string){}, t.listeners...)
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(ev.ID)
	}
	t.centerStrip(ev.ID)
}

func (t *Tracker) centerStrip(id string) {
	if t.strip == nil || !t.strip.Narrow() {
		return
	}
	m, ok := t.strip.Metrics(id)
	if !ok {
		return
	}
	t.strip.ScrollLeft(CenterOffset(m))
}

// Select scrolls to the heading. The active id follows once the scroll
// brings the heading into the band.
func (t *Tracker) Select(id string) {
	t.surface.ScrollTo(id)
}

// Close stops observing. Later events are ignored.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	sub := t.sub
	t.sub = nil
	t.mu.Unlock()
	return t.release(sub)
}

func (t *Tracker) release(sub Subscription) error {
	if sub == nil {
		return nil
	}
	if err := sub.Close(); err != nil {
		t.logger.Debug("release visibility observation", zap.Error(err))
		return err
	}
	return nil
}
