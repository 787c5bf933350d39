package browser

import (
	"fmt"

	"go.uber.org/zap"

	"folio/internal/nav"
)

// NarrowBreakpoint is the viewport width below which the navigation is a
// horizontal strip.
const NarrowBreakpoint = 1024

type pageStrip struct {
	page     *Page
	selector string
}

// Strip returns the navigation strip matched by selector.
func (p *Page) Strip(selector string) nav.Strip {
	return &pageStrip{page: p, selector: selector}
}

func (s *pageStrip) Narrow() bool {
	var narrow bool
	if err := s.page.eval(fmt.Sprintf(`window.innerWidth < %d`, NarrowBreakpoint), &narrow); err != nil {
		s.page.logger.Debug("read viewport width failed", zap.Error(err))
		return false
	}
	return narrow
}

func (s *pageStrip) Metrics(id string) (nav.StripMetrics, bool) {
	expr := fmt.Sprintf(`(() => {
  const strip = document.querySelector(%s);
  if (!strip) return null;
  const item = strip.querySelector('[href="#' + CSS.escape(%s) + '"]');
  if (!item) return null;
  const sr = strip.getBoundingClientRect();
  const ir = item.getBoundingClientRect();
  return { itemLeft: ir.left - sr.left, itemWidth: ir.width, containerWidth: strip.clientWidth, scrollLeft: strip.scrollLeft };
})()`, jsArgs(s.selector), jsArgs(id))

	var m *struct {
		ItemLeft       float64 `json:"itemLeft"`
		ItemWidth      float64 `json:"itemWidth"`
		ContainerWidth float64 `json:"containerWidth"`
		ScrollLeft     float64 `json:"scrollLeft"`
	}
	if err := s.page.eval(expr, &m); err != nil {
		s.page.logger.Debug("read strip metrics failed", zap.String("id", id), zap.Error(err))
		return nav.StripMetrics{}, false
	}
	if m == nil {
		return nav.StripMetrics{}, false
	}
	return nav.StripMetrics{
		ItemLeft:       m.ItemLeft,
		ItemWidth:      m.ItemWidth,
		ContainerWidth: m.ContainerWidth,
		ScrollLeft:     m.ScrollLeft,
	}, true
}

func (s *pageStrip) ScrollLeft(x float64) {
	expr := fmt.Sprintf(`(() => { const strip = document.querySelector(%s); if (strip) strip.scrollTo({left: %s, behavior: 'smooth'}); return !!strip; })()`, jsArgs(s.selector), jsArgs(x))
	var ok bool
	if err := s.page.eval(expr, &ok); err != nil {
		s.page.logger.Debug("scroll strip failed", zap.Error(err))
	}
}
