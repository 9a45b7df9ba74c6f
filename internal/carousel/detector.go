// Package carousel picks the active slide of a horizontally snapping carousel.
package carousel

import (
	"math"
	"sync"
)

// Rect is the horizontal extent of a box in scroll coordinates.
type Rect struct {
	Left  float64
	Width float64
}

// Center returns the x coordinate of the middle of r.
func (r Rect) Center() float64 {
	return r.Left + r.Width/2
}

// ActiveIndex returns the index of the child whose center is nearest the container center.
// Children are scanned in order with a strict less-than, so the lower index wins a tie.
// No children yields 0.
func ActiveIndex(container Rect, children []Rect) int {
	center := container.Center()
	best := 0
	bestDist := math.Inf(1)
	for i, child := range children {
		if d := math.Abs(child.Center() - center); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// Detector recomputes the active index on every scroll notification and remembers the result.
type Detector struct {
	mu     sync.Mutex
	active int
	onMove func(index int)
}

// NewDetector returns a detector. onMove, if set, is called whenever the active index changes.
func NewDetector(onMove func(index int)) *Detector {
	return &Detector{onMove: onMove}
}

// OnScroll handles one scroll notification.
func (d *Detector) OnScroll(container Rect, children []Rect) int {
	idx := ActiveIndex(container, children)

	d.mu.Lock()
	changed := idx != d.active
	d.active = idx
	fn := d.onMove
	d.mu.Unlock()

	if changed && fn != nil {
		fn(idx)
	}
	return idx
}

// Active returns the index computed by the last OnScroll.
func (d *Detector) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// FixedLayout lays out n children of equal width separated by gap and returns the viewport of the
// given width scrolled to scrollLeft, together with the child rects.
func FixedLayout(n int, childWidth, gap, viewportWidth, scrollLeft float64) (Rect, []Rect) {
	children := make([]Rect, n)
	for i := range children {
		children[i] = Rect{Left: float64(i) * (childWidth + gap), Width: childWidth}
	}
	return Rect{Left: scrollLeft, Width: viewportWidth}, children
}

// ScrollTo returns the scroll offset that centers child index in a viewport of the given width.
func ScrollTo(children []Rect, index int, viewportWidth float64) float64 {
	if index < 0 || index >= len(children) {
		return 0
	}
	return children[index].Center() - viewportWidth/2
}
