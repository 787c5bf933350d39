package nav

import (
	"errors"
	"sync"

	"folio/internal/toc"
)

type fakeNode struct {
	level int
	text  string
	id    string
	// top/bottom are viewport coordinates of the element's box.
	top, bottom float64
}

func (n *fakeNode) Level() int      { return n.level }
func (n *fakeNode) Text() string    { return n.text }
func (n *fakeNode) ID() string      { return n.id }
func (n *fakeNode) SetID(id string) { n.id = id }

type fakeSurface struct {
	mu        sync.Mutex
	nodes     []*fakeNode
	rootErr   error
	viewport  float64
	observed  map[string]int
	visFns    map[int]func(VisibilityEvent)
	visIDs    map[int][]string
	visNodes  map[int][]*fakeNode
	mutFns    map[int]func()
	nextSub   int
	scrolls   []string
	observeFn func(ids []string) error
	rootCalls int
	// observeCalls counts ObserveVisibility calls.
	observeCalls int
	// rootGate, when set, parks the next Root call after it has captured
	// the current nodes. rootEntered is signalled first.
	rootGate    chan struct{}
	rootEntered chan struct{}
}

func newFakeSurface(nodes ...*fakeNode) *fakeSurface {
	return &fakeSurface{
		nodes:    nodes,
		viewport: 1000,
		observed: map[string]int{},
		visFns:   map[int]func(VisibilityEvent){},
		visIDs:   map[int][]string{},
		visNodes: map[int][]*fakeNode{},
		mutFns:   map[int]func(){},
	}
}

func (s *fakeSurface) Root() (toc.Root, error) {
	s.mu.Lock()
	s.rootCalls++
	if s.rootErr != nil {
		s.mu.Unlock()
		return nil, s.rootErr
	}
	elements := make([]toc.Element, len(s.nodes))
	for i, n := range s.nodes {
		elements[i] = n
	}
	gate, entered := s.rootGate, s.rootEntered
	s.rootGate, s.rootEntered = nil, nil
	s.mu.Unlock()

	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-gate
	}
	return staticRoot(elements), nil
}

type staticRoot []toc.Element

func (r staticRoot) Headings() []toc.Element { return r }

func (s *fakeSurface) ObserveVisibility(ids []string, band Band, fn func(VisibilityEvent)) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.observeFn != nil {
		if err := s.observeFn(ids); err != nil {
			return nil, err
		}
	}
	s.observeCalls++
	s.nextSub++
	key := s.nextSub
	var tracked []string
	var nodes []*fakeNode
	for _, id := range ids {
		n := s.nodeLocked(id)
		if n == nil {
			continue
		}
		s.observed[id]++
		tracked = append(tracked, id)
		nodes = append(nodes, n)
	}
	s.visFns[key] = fn
	s.visIDs[key] = tracked
	s.visNodes[key] = nodes
	return SubscriptionFunc(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.visFns[key]; !ok {
			return errors.New("already released")
		}
		for _, id := range s.visIDs[key] {
			s.observed[id]--
			if s.observed[id] == 0 {
				delete(s.observed, id)
			}
		}
		delete(s.visFns, key)
		delete(s.visIDs, key)
		delete(s.visNodes, key)
		return nil
	}), nil
}

func (s *fakeSurface) ObserveMutations(fn func()) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	key := s.nextSub
	s.mutFns[key] = fn
	return SubscriptionFunc(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.mutFns, key)
		return nil
	}), nil
}

func (s *fakeSurface) ScrollTo(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrolls = append(s.scrolls, id)
}

func (s *fakeSurface) nodeLocked(id string) *fakeNode {
	for _, n := range s.nodes {
		if n.id == id {
			return n
		}
	}
	return nil
}

// emit delivers a band event for id to every live observation of it.
func (s *fakeSurface) emit(id string, intersecting bool) {
	s.mu.Lock()
	var fns []func(VisibilityEvent)
	for key, ids := range s.visIDs {
		for _, tracked := range ids {
			if tracked == id {
				fns = append(fns, s.visFns[key])
			}
		}
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(VisibilityEvent{ID: id, Intersecting: intersecting})
	}
}

// scroll moves every attached node by dy and emits band crossings to the
// observations holding that exact node. Detached nodes never report.
func (s *fakeSurface) scroll(dy float64) {
	s.mu.Lock()
	type delivery struct {
		fn func(VisibilityEvent)
		ev VisibilityEvent
	}
	var deliveries []delivery
	for _, n := range s.nodes {
		before := DefaultBand.Intersects(n.top, n.bottom, s.viewport)
		n.top -= dy
		n.bottom -= dy
		after := DefaultBand.Intersects(n.top, n.bottom, s.viewport)
		if before == after || n.id == "" {
			continue
		}
		for key, nodes := range s.visNodes {
			for _, tracked := range nodes {
				if tracked == n {
					deliveries = append(deliveries, delivery{s.visFns[key], VisibilityEvent{ID: n.id, Intersecting: after}})
				}
			}
		}
	}
	s.mu.Unlock()
	for _, d := range deliveries {
		d.fn(d.ev)
	}
}

func (s *fakeSurface) observeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observeCalls
}

func (s *fakeSurface) mutate(fn func(s *fakeSurface)) {
	s.mu.Lock()
	fn(s)
	fns := make([]func(), 0, len(s.mutFns))
	for _, f := range s.mutFns {
		fns = append(fns, f)
	}
	s.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

func (s *fakeSurface) liveVisibility() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visFns)
}

func (s *fakeSurface) liveMutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mutFns)
}

func (s *fakeSurface) observedIDs() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.observed))
	for k, v := range s.observed {
		out[k] = v
	}
	return out
}

func (s *fakeSurface) scrolled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.scrolls...)
}

type fakeStrip struct {
	mu      sync.Mutex
	narrow  bool
	metrics map[string]StripMetrics
	lefts   []float64
}

func (f *fakeStrip) Narrow() bool { return f.narrow }

func (f *fakeStrip) Metrics(id string) (StripMetrics, bool) {
	m, ok := f.metrics[id]
	return m, ok
}

func (f *fakeStrip) ScrollLeft(x float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lefts = append(f.lefts, x)
}
