package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"folio/internal/nav"
	"folio/internal/toc"
)

// bridgeScript installs observers that queue events in the page. Go drains
// the queue by polling.
const bridgeScript = `(() => {
  if (window.__folio) return true;
  const state = { queue: [], observers: {}, mutated: {} };
  state.headings = () => {
    const root = document.querySelector('main') || document.body;
    const out = [];
    root.querySelectorAll('h1, h2, h3').forEach((el, i) => {
      el.setAttribute('data-folio-idx', String(i));
      out.push({ idx: i, level: Number(el.tagName.substring(1)), text: el.textContent || '', id: el.id || '' });
    });
    return out;
  };
  state.setID = (idx, id) => {
    const el = document.querySelector('[data-folio-idx="' + idx + '"]');
    if (el) el.id = id;
    return !!el;
  };
  state.observe = (sub, ids, rootMargin) => {
    const io = new IntersectionObserver((entries) => {
      entries.forEach((e) => state.queue.push({ sub: sub, id: e.target.id, intersecting: e.isIntersecting }));
    }, { rootMargin: rootMargin, threshold: 0 });
    ids.forEach((id) => { const el = document.getElementById(id); if (el) io.observe(el); });
    state.observers[sub] = io;
    return true;
  };
  state.watch = (sub) => {
    const mo = new MutationObserver(() => { state.mutated[sub] = true; });
    mo.observe(document.body, { childList: true, subtree: true, characterData: true });
    state.observers[sub] = mo;
    return true;
  };
  state.release = (sub) => {
    const o = state.observers[sub];
    if (o) o.disconnect();
    delete state.observers[sub];
    delete state.mutated[sub];
    return true;
  };
  state.drain = () => {
    const events = state.queue;
    state.queue = [];
    const mutated = Object.keys(state.mutated).map(Number);
    state.mutated = {};
    return { events: events, mutated: mutated };
  };
  window.__folio = state;
  return true;
})()`

type jsHeading struct {
	Idx   int    `json:"idx"`
	Level int    `json:"level"`
	Text  string `json:"text"`
	ID    string `json:"id"`
}

type drained struct {
	Events []struct {
		Sub          int    `json:"sub"`
		ID           string `json:"id"`
		Intersecting bool   `json:"intersecting"`
	} `json:"events"`
	Mutated []int `json:"mutated"`
}

// Page is a loaded page in headless Chrome that implements nav.Surface.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	poll   time.Duration

	mu       sync.Mutex
	nextSub  int
	visFns   map[int]func(nav.VisibilityEvent)
	mutFns   map[int]func()
	closed   bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

var _ nav.Surface = (*Page)(nil)

// Open loads url and starts polling observer events every poll interval.
func Open(ctx context.Context, url string, poll time.Duration, logger *zap.Logger) (*Page, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}

	allocCtx, cancelAlloc, err := NewAllocator(ctx)
	if err != nil {
		return nil, err
	}
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	cancel := func() {
		cancelTab()
		cancelAlloc()
	}

	var ok bool
	if err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(1280, 900),
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Evaluate(bridgeScript, &ok),
	); err != nil {
		cancel()
		return nil, fmt.Errorf("load %s: %w", url, err)
	}

	p := &Page{
		ctx:    tabCtx,
		cancel: cancel,
		logger: logger,
		poll:   poll,
		visFns: map[int]func(nav.VisibilityEvent){},
		mutFns: map[int]func(){},
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go p.pollLoop()
	return p, nil
}

func (p *Page) eval(expr string, out any) error {
	return chromedp.Run(p.ctx, chromedp.Evaluate(expr, out))
}

func jsArgs(args ...any) string {
	b, _ := json.Marshal(args)
	s := string(b)
	return s[1 : len(s)-1]
}

func (p *Page) Root() (toc.Root, error) {
	var headings []jsHeading
	if err := p.eval(`window.__folio.headings()`, &headings); err != nil {
		return nil, fmt.Errorf("read headings: %w", err)
	}
	root := &pageRoot{}
	for _, h := range headings {
		root.elements = append(root.elements, &pageHeading{page: p, h: h})
	}
	return root, nil
}

func (p *Page) ObserveVisibility(ids []string, band nav.Band, fn func(nav.VisibilityEvent)) (nav.Subscription, error) {
	sub := p.register(func(id int) { p.visFns[id] = fn })
	if sub < 0 {
		return nil, errors.New("page closed")
	}
	var ok bool
	if err := p.eval(fmt.Sprintf(`window.__folio.observe(%s)`, jsArgs(sub, ids, band.RootMargin())), &ok); err != nil {
		p.unregister(sub)
		return nil, fmt.Errorf("observe visibility: %w", err)
	}
	return p.subscription(sub), nil
}

func (p *Page) ObserveMutations(fn func()) (nav.Subscription, error) {
	sub := p.register(func(id int) { p.mutFns[id] = fn })
	if sub < 0 {
		return nil, errors.New("page closed")
	}
	var ok bool
	if err := p.eval(fmt.Sprintf(`window.__folio.watch(%s)`, jsArgs(sub)), &ok); err != nil {
		p.unregister(sub)
		return nil, fmt.Errorf("observe mutations: %w", err)
	}
	return p.subscription(sub), nil
}

func (p *Page) ScrollTo(id string) {
	expr := fmt.Sprintf(`(() => { const el = document.getElementById(%s); if (el) el.scrollIntoView({behavior: 'smooth', block: 'start'}); return !!el; })()`, jsArgs(id))
	var found bool
	if err := p.eval(expr, &found); err != nil {
		p.logger.Debug("scroll failed", zap.String("id", id), zap.Error(err))
	}
}

// ScrollBy scrolls the window instantly.
func (p *Page) ScrollBy(dy float64) error {
	var ok bool
	return p.eval(fmt.Sprintf(`(() => { window.scrollBy(0, %s); return true; })()`, jsArgs(dy)), &ok)
}

// Close stops polling and shuts the browser down.
func (p *Page) Close() error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.stopCh)
		<-p.doneCh
		p.cancel()
	})
	return nil
}

func (p *Page) register(add func(id int)) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return -1
	}
	p.nextSub++
	add(p.nextSub)
	return p.nextSub
}

func (p *Page) unregister(sub int) {
	p.mu.Lock()
	delete(p.visFns, sub)
	delete(p.mutFns, sub)
	p.mu.Unlock()
}

func (p *Page) subscription(sub int) nav.Subscription {
	var once sync.Once
	return nav.SubscriptionFunc(func() error {
		var err error
		once.Do(func() {
			p.unregister(sub)
			p.mu.Lock()
			closed := p.closed
			p.mu.Unlock()
			if closed {
				return
			}
			var ok bool
			err = p.eval(fmt.Sprintf(`window.__folio.release(%s)`, jsArgs(sub)), &ok)
		})
		return err
	})
}

func (p *Page) pollLoop() {
	defer close(p.doneCh)
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			var d drained
			if err := p.eval(`window.__folio.drain()`, &d); err != nil {
				p.logger.Debug("drain observer queue failed", zap.Error(err))
				continue
			}
			p.dispatch(d)
		}
	}
}

func (p *Page) dispatch(d drained) {
	type visCall struct {
		fn func(nav.VisibilityEvent)
		ev nav.VisibilityEvent
	}
	var visCalls []visCall
	var mutCalls []func()

	p.mu.Lock()
	for _, ev := range d.Events {
		if fn, ok := p.visFns[ev.Sub]; ok {
			visCalls = append(visCalls, visCall{fn: fn, ev: nav.VisibilityEvent{ID: ev.ID, Intersecting: ev.Intersecting}})
		}
	}
	for _, sub := range d.Mutated {
		if fn, ok := p.mutFns[sub]; ok {
			mutCalls = append(mutCalls, fn)
		}
	}
	p.mu.Unlock()

	for _, c := range visCalls {
		c.fn(c.ev)
	}
	for _, fn := range mutCalls {
		fn()
	}
}

type pageRoot struct {
	elements []toc.Element
}

func (r *pageRoot) Headings() []toc.Element { return r.elements }

type pageHeading struct {
	page *Page
	h    jsHeading
}

func (e *pageHeading) Level() int   { return e.h.Level }
func (e *pageHeading) Text() string { return e.h.Text }
func (e *pageHeading) ID() string   { return e.h.ID }

func (e *pageHeading) SetID(id string) {
	var ok bool
	if err := e.page.eval(fmt.Sprintf(`window.__folio.setID(%s)`, jsArgs(e.h.Idx, id)), &ok); err != nil {
		e.page.logger.Debug("set heading id failed", zap.String("id", id), zap.Error(err))
		return
	}
	e.h.ID = id
}
