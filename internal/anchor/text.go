package anchor

import "golang.org/x/net/html"

// UnitLen returns the length of s in UTF-16 code units.
func UnitLen(s string) int {
	return unitLen(s)
}

// SplitText splits text node n at offset (UTF-16 units) like DOM splitText:
// n keeps the text before offset and a new sibling holding the rest is
// inserted right after it and returned.
func SplitText(n *html.Node, offset int) *html.Node {
	if n == nil || n.Type != html.TextNode {
		return nil
	}

	offset = clamp(offset, 0, unitLen(n.Data))
	i := byteIndex(n.Data, offset)

	rest := &html.Node{Type: html.TextNode, Data: n.Data[i:]}
	n.Data = n.Data[:i]
	if n.Parent != nil {
		n.Parent.InsertBefore(rest, n.NextSibling)
	}
	return rest
}

// Normalize merges adjacent text nodes under n and drops empty ones, like
// DOM normalize.
func Normalize(n *html.Node) {
	if n == nil {
		return
	}

	c := n.FirstChild
	for c != nil {
		next := c.NextSibling
		switch {
		case c.Type == html.TextNode && c.Data == "":
			n.RemoveChild(c)
		case c.Type == html.TextNode:
			for next != nil && next.Type == html.TextNode {
				c.Data += next.Data
				after := next.NextSibling
				n.RemoveChild(next)
				next = after
			}
		default:
			Normalize(c)
		}
		c = next
	}
}
