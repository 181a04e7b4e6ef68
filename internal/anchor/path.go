package anchor

import (
	"golang.org/x/net/html"
)

// Path anchors a range by child-index paths from the container to each
// boundary node. Unlike absolute offsets it depends on the exact tree shape,
// so it is used only to ship a selection from a client that renders the same
// document.
type Path struct {
	StartPath   []int `json:"startPath"`
	StartOffset int   `json:"startOffset"`
	EndPath     []int `json:"endPath"`
	EndOffset   int   `json:"endOffset"`
}

// SerializePath records r as paths relative to container.
func SerializePath(r Range, container *html.Node) (Path, bool) {
	sp, ok := nodePath(r.Start.Node, container)
	if !ok {
		return Path{}, false
	}
	ep, ok := nodePath(r.End.Node, container)
	if !ok {
		return Path{}, false
	}
	return Path{
		StartPath:   sp,
		StartOffset: r.Start.Offset,
		EndPath:     ep,
		EndOffset:   r.End.Offset,
	}, true
}

// RestorePath resolves p against container. Offsets beyond the end of the
// resolved node are clamped.
func RestorePath(p Path, container *html.Node) (Range, bool) {
	start, ok := followPath(p.StartPath, container)
	if !ok {
		return Range{}, false
	}
	end, ok := followPath(p.EndPath, container)
	if !ok {
		return Range{}, false
	}
	return Range{
		Start: Point{Node: start, Offset: clamp(p.StartOffset, 0, nodeLen(start))},
		End:   Point{Node: end, Offset: clamp(p.EndOffset, 0, nodeLen(end))},
	}, true
}

func nodePath(n, container *html.Node) ([]int, bool) {
	if n == nil || container == nil {
		return nil, false
	}

	var rev []int
	for n != container {
		if n.Parent == nil {
			return nil, false
		}
		idx := 0
		for s := n.PrevSibling; s != nil; s = s.PrevSibling {
			idx++
		}
		rev = append(rev, idx)
		n = n.Parent
	}

	path := make([]int, len(rev))
	for i, v := range rev {
		path[len(rev)-1-i] = v
	}
	return path, true
}

func followPath(path []int, container *html.Node) (*html.Node, bool) {
	if container == nil {
		return nil, false
	}
	n := container
	for _, idx := range path {
		n = childAt(n, idx)
		if n == nil {
			return nil, false
		}
	}
	return n, true
}

func nodeLen(n *html.Node) int {
	if n.Type == html.TextNode {
		return unitLen(n.Data)
	}
	return childCount(n)
}
