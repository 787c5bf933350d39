// Package nav keeps the "currently reading" section of a page in sync with
// the viewport and drives the section navigation.
package nav

import (
	"fmt"
	"math"
	"strconv"

	"folio/internal/toc"
)

// Band is the part of the viewport in which a heading counts as visible,
// given as the fractions cut off the top and the bottom.
type Band struct {
	Top    float64
	Bottom float64
}

// DefaultBand ignores the top 20% and bottom 35% of the viewport.
var DefaultBand = Band{Top: 0.20, Bottom: 0.35}

// RootMargin renders the band as an IntersectionObserver rootMargin.
func (b Band) RootMargin() string {
	return fmt.Sprintf("-%s%% 0%% -%s%% 0%%", percent(b.Top), percent(b.Bottom))
}

// Intersects reports whether an element spanning [top, bottom] in viewport
// coordinates overlaps the band of a viewport of the given height.
func (b Band) Intersects(top, bottom, viewport float64) bool {
	if viewport <= 0 || bottom < top {
		return false
	}
	bandTop := viewport * b.Top
	bandBottom := viewport * (1 - b.Bottom)
	return bottom >= bandTop && top <= bandBottom
}

func percent(f float64) string {
	return strconv.FormatFloat(math.Round(f*1e4)/1e2, 'f', -1, 64)
}

// VisibilityEvent reports that a tracked heading entered or left the band.
type VisibilityEvent struct {
	ID           string
	Intersecting bool
}

// Subscription is a live observation that must be released.
type Subscription interface {
	Close() error
}

// SubscriptionFunc adapts a release function to Subscription.
type SubscriptionFunc func() error

func (f SubscriptionFunc) Close() error { return f() }

// Surface is the presentation surface a page is rendered onto.
type Surface interface {
	// Root returns the current content tree.
	Root() (toc.Root, error)
	// ObserveVisibility reports band crossings of the elements with the given
	// ids. Ids with no element are skipped.
	ObserveVisibility(ids []string, band Band, fn func(VisibilityEvent)) (Subscription, error)
	// ObserveMutations calls fn whenever the content tree changes.
	ObserveMutations(fn func()) (Subscription, error)
	// ScrollTo starts a smooth scroll that brings the element to the top.
	ScrollTo(id string)
}

// Strip is the horizontally scrolling navigation used on narrow viewports.
type Strip interface {
	Narrow() bool
	Metrics(id string) (StripMetrics, bool)
	ScrollLeft(x float64)
}

// StripMetrics describes an entry relative to its strip.
type StripMetrics struct {
	// ItemLeft is the entry's left edge relative to the strip's visible left
	// edge; ScrollLeft is the strip's current horizontal scroll.
	ItemLeft       float64
	ItemWidth      float64
	ContainerWidth float64
	ScrollLeft     float64
}

// CenterOffset is the strip scroll position that centers the entry.
func CenterOffset(m StripMetrics) float64 {
	itemLeft := m.ItemLeft + m.ScrollLeft
	return itemLeft - m.ContainerWidth/2 + m.ItemWidth/2
}
