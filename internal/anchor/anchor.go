// Package anchor converts text selections inside an HTML subtree into absolute
// offsets over the subtree's visible text, and back.
//
// Offsets survive re-renders of the page as long as the visible text does not
// change: wrapping text in extra elements, or splitting and merging text
// nodes, leaves every offset intact.
package anchor

import (
	"strings"

	"golang.org/x/net/html"
)

// Point is a DOM boundary point. For a text node Offset counts UTF-16 units
// into its data; for an element it is a child index.
type Point struct {
	Node   *html.Node
	Offset int
}

// Range is the span between two boundary points.
type Range struct {
	Start Point
	End   Point
}

// Collapsed reports whether both boundary points are the same.
func (r Range) Collapsed() bool {
	return r.Start == r.End
}

// String returns the text between the boundary points. Hidden subtrees
// (script, style, template, noscript) are not included.
func (r Range) String() string {
	if r.Start.Node == nil || r.End.Node == nil {
		return ""
	}

	f := flatten(topmost(r.Start.Node))
	si, so, ok := f.resolve(r.Start)
	if !ok {
		return ""
	}
	ei, eo, ok := f.resolve(r.End)
	if !ok {
		return ""
	}
	if before(ei, eo, si, so) {
		return ""
	}
	return f.between(si, so, ei, eo)
}

// Selection is a captured range expressed as absolute offsets.
type Selection struct {
	StartAbs int
	EndAbs   int
	Quote    string
}

// Capture converts r into absolute offsets within container.
// It returns false when either boundary lies outside container, when the range
// is collapsed, or when the selected text is only whitespace.
func Capture(r Range, container *html.Node) (Selection, bool) {
	if container == nil || r.Start.Node == nil || r.End.Node == nil {
		return Selection{}, false
	}
	if !contains(container, r.Start.Node) || !contains(container, r.End.Node) {
		return Selection{}, false
	}

	f := flatten(container)
	si, so, ok := f.resolve(r.Start)
	if !ok {
		return Selection{}, false
	}
	ei, eo, ok := f.resolve(r.End)
	if !ok {
		return Selection{}, false
	}
	if before(ei, eo, si, so) {
		si, so, ei, eo = ei, eo, si, so
	}

	start, end := f.abs(si, so), f.abs(ei, eo)
	if start >= end {
		return Selection{}, false
	}

	quote := strings.TrimSpace(f.between(si, so, ei, eo))
	if quote == "" {
		return Selection{}, false
	}

	return Selection{StartAbs: start, EndAbs: end, Quote: quote}, true
}

// Locate rebuilds a range from absolute offsets. It returns false when the
// offsets are negative, reversed, or run past the end of the visible text.
func Locate(startAbs, endAbs int, container *html.Node) (Range, bool) {
	if container == nil || startAbs < 0 || endAbs < startAbs {
		return Range{}, false
	}

	f := flatten(container)
	if endAbs > f.length {
		return Range{}, false
	}

	var (
		start, end         Point
		haveStart, haveEnd bool
		lastNode           *html.Node
		lastUnits          int
	)
	for _, e := range f.texts {
		if !e.visible {
			continue
		}
		lastNode, lastUnits = e.node, e.units
		if !haveStart && startAbs < e.start+e.units {
			start = Point{Node: e.node, Offset: startAbs - e.start}
			haveStart = true
		}
		if !haveEnd && endAbs <= e.start+e.units {
			end = Point{Node: e.node, Offset: endAbs - e.start}
			haveEnd = true
		}
		if haveStart && haveEnd {
			break
		}
	}

	if lastNode == nil {
		return Range{}, false
	}
	if !haveStart {
		// startAbs == endAbs == length: a collapsed range at the very end.
		start = Point{Node: lastNode, Offset: lastUnits}
	}
	if !haveEnd {
		end = Point{Node: lastNode, Offset: lastUnits}
	}

	return Range{Start: start, End: end}, true
}

// Slice is the part of one text node covered by a range, in UTF-16 units.
type Slice struct {
	Node  *html.Node
	Start int
	End   int
}

// Slices lists the non-empty portions of visible text nodes covered by r, in
// document order.
func Slices(r Range, container *html.Node) []Slice {
	if container == nil {
		return nil
	}

	f := flatten(container)
	si, so, ok := f.resolve(r.Start)
	if !ok {
		return nil
	}
	ei, eo, ok := f.resolve(r.End)
	if !ok {
		return nil
	}
	if before(ei, eo, si, so) {
		return nil
	}

	var out []Slice
	for i := si; i <= ei; i++ {
		e := f.texts[i]
		if !e.visible {
			continue
		}
		from, to := 0, e.units
		if i == si {
			from = so
		}
		if i == ei {
			to = eo
		}
		if to > from {
			out = append(out, Slice{Node: e.node, Start: from, End: to})
		}
	}
	return out
}

// Text returns the visible text of container.
func Text(container *html.Node) string {
	if container == nil {
		return ""
	}
	return flatten(container).visibleText()
}

// TextLength returns the length of the visible text in UTF-16 units.
func TextLength(container *html.Node) int {
	if container == nil {
		return 0
	}
	return flatten(container).length
}

// Nearest finds the occurrence of quote in the container text whose start is
// closest to near. Ties go to the earlier occurrence. The text searched keeps
// whitespace-only nodes, as quotes from Capture do, while the returned offsets
// are visible-text offsets.
func Nearest(container *html.Node, quote string, near int) (int, int, bool) {
	if container == nil || quote == "" {
		return 0, 0, false
	}

	f := flatten(container)
	text, starts := f.fullText()

	best, bestEnd, bestDist := -1, 0, 0
	from := 0
	for from <= len(text) {
		i := strings.Index(text[from:], quote)
		if i < 0 {
			break
		}
		pos := from + i
		start := f.visibleAt(starts, pos, false)
		dist := start - near
		if dist < 0 {
			dist = -dist
		}
		if best < 0 || dist < bestDist {
			best, bestDist = start, dist
			bestEnd = f.visibleAt(starts, pos+len(quote), true)
		}
		from = pos + 1
	}

	if best < 0 {
		return 0, 0, false
	}
	return best, bestEnd, true
}

// before reports whether position (ai, ao) precedes (bi, bo).
func before(ai, ao, bi, bo int) bool {
	if ai != bi {
		return ai < bi
	}
	return ao < bo
}
