package anchor

import (
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Elements whose text never counts as visible content.
var hiddenElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Template: true,
	atom.Noscript: true,
}

func isHidden(n *html.Node) bool {
	return n.Type == html.ElementNode && hiddenElements[n.DataAtom]
}

// isVisibleText reports whether a text node contributes to offsets.
// Whitespace-only nodes (indentation between block elements) are skipped.
func isVisibleText(n *html.Node) bool {
	return n.Type == html.TextNode && strings.TrimSpace(n.Data) != ""
}

// textEntry is one text node of a flattened subtree.
type textEntry struct {
	node    *html.Node
	order   int // preorder index within the subtree
	units   int
	visible bool
	start   int // visible units preceding this node
}

// flatTree is a document-order snapshot of a subtree. It is rebuilt for every
// operation because the tree may have been mutated in between.
type flatTree struct {
	root   *html.Node
	order  map[*html.Node]int
	end    map[*html.Node]int // preorder index just past the node's subtree
	texts  []textEntry
	byNode map[*html.Node]int
	length int
}

func flatten(root *html.Node) *flatTree {
	f := &flatTree{
		root:   root,
		order:  make(map[*html.Node]int),
		end:    make(map[*html.Node]int),
		byNode: make(map[*html.Node]int),
	}

	idx := 0
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		f.order[n] = idx
		idx++

		if n.Type == html.TextNode {
			e := textEntry{
				node:    n,
				order:   f.order[n],
				units:   unitLen(n.Data),
				visible: isVisibleText(n),
				start:   f.length,
			}
			f.byNode[n] = len(f.texts)
			f.texts = append(f.texts, e)
			if e.visible {
				f.length += e.units
			}
		}

		if n == root || !isHidden(n) {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
		f.end[n] = idx
	}
	walk(root)

	return f
}

// resolve maps a boundary point to a text entry and a unit offset inside it.
// Element points and points inside hidden subtrees are moved to the nearest
// text position that follows them, or precede them when nothing follows.
func (f *flatTree) resolve(p Point) (int, int, bool) {
	if p.Node == nil || len(f.texts) == 0 {
		return 0, 0, false
	}

	if i, ok := f.byNode[p.Node]; ok {
		return i, clamp(p.Offset, 0, f.texts[i].units), true
	}

	n := p.Node
	climbed := false
	for n != nil {
		if _, ok := f.order[n]; ok {
			break
		}
		n = n.Parent
		climbed = true
	}
	if n == nil {
		return 0, 0, false
	}

	var boundary int
	switch {
	case climbed:
		boundary = f.order[n]
		if n.Type == html.TextNode {
			// The point was below a text node, which cannot have children.
			boundary = f.end[n]
		}
	case n.Type == html.TextNode:
		boundary = f.order[n]
	default:
		if child := childAt(n, p.Offset); child != nil {
			boundary = f.order[child]
		} else {
			boundary = f.end[n]
		}
	}

	i := sort.Search(len(f.texts), func(i int) bool {
		return f.texts[i].order >= boundary
	})
	if i < len(f.texts) {
		return i, 0, true
	}
	last := len(f.texts) - 1
	return last, f.texts[last].units, true
}

// abs converts a resolved position into a visible-text offset.
func (f *flatTree) abs(i, off int) int {
	e := f.texts[i]
	if !e.visible {
		return e.start
	}
	return e.start + off
}

// between returns the text from (si, so) to (ei, eo), whitespace-only nodes included.
func (f *flatTree) between(si, so, ei, eo int) string {
	if si == ei {
		return sliceUnits(f.texts[si].node.Data, so, eo)
	}

	var b strings.Builder
	b.WriteString(sliceUnits(f.texts[si].node.Data, so, f.texts[si].units))
	for i := si + 1; i < ei; i++ {
		b.WriteString(f.texts[i].node.Data)
	}
	b.WriteString(sliceUnits(f.texts[ei].node.Data, 0, eo))
	return b.String()
}

// fullText concatenates every text node outside hidden subtrees, whitespace-only
// nodes included, and returns the byte index at which each entry starts.
func (f *flatTree) fullText() (string, []int) {
	var b strings.Builder
	starts := make([]int, len(f.texts))
	for i, e := range f.texts {
		starts[i] = b.Len()
		b.WriteString(e.node.Data)
	}
	return b.String(), starts
}

// visibleAt maps a byte index of fullText to a visible-text offset. With end
// set, an index on an entry boundary belongs to the preceding entry.
func (f *flatTree) visibleAt(starts []int, pos int, end bool) int {
	i := sort.Search(len(starts), func(i int) bool {
		if end {
			return starts[i] >= pos
		}
		return starts[i] > pos
	}) - 1
	if i < 0 {
		return 0
	}

	e := f.texts[i]
	if !e.visible {
		return e.start
	}
	return e.start + unitLen(e.node.Data[:pos-starts[i]])
}

// visibleText concatenates the visible text nodes.
func (f *flatTree) visibleText() string {
	var b strings.Builder
	for _, e := range f.texts {
		if e.visible {
			b.WriteString(e.node.Data)
		}
	}
	return b.String()
}

func childAt(n *html.Node, i int) *html.Node {
	if i < 0 {
		return nil
	}
	c := n.FirstChild
	for ; c != nil && i > 0; c = c.NextSibling {
		i--
	}
	return c
}

func childCount(n *html.Node) int {
	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		count++
	}
	return count
}

func topmost(n *html.Node) *html.Node {
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

func contains(container, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == container {
			return true
		}
	}
	return false
}
