package anchor

import (
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Container returns the first element of doc matching selector. When the
// selector is empty or matches nothing, the <body> element is used, and the
// document itself when there is no body.
func Container(doc *html.Node, selector string) *html.Node {
	if doc == nil {
		return nil
	}

	d := goquery.NewDocumentFromNode(doc)
	if selector != "" {
		if sel := d.Find(selector).First(); sel.Length() > 0 {
			return sel.Get(0)
		}
	}
	if body := d.Find("body").First(); body.Length() > 0 {
		return body.Get(0)
	}
	return doc
}

var headingAtoms = map[atom.Atom]bool{
	atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true,
}

const headingSelector = "h1[id], h2[id], h3[id], h4[id], h5[id], h6[id]"

// NearestHeadingID returns the id of the heading that owns the start of r:
// the heading containing it, else the last heading before it, else the first
// heading in container. It returns "" when container has no headings with ids.
func NearestHeadingID(r Range, container *html.Node) string {
	if container == nil || r.Start.Node == nil {
		return ""
	}

	startEl := r.Start.Node
	if startEl.Type != html.ElementNode {
		startEl = startEl.Parent
	}
	for n := startEl; n != nil && n != container.Parent; n = n.Parent {
		if n.Type == html.ElementNode && headingAtoms[n.DataAtom] {
			if id := attr(n, "id"); id != "" {
				return id
			}
		}
	}

	headings := goquery.NewDocumentFromNode(container).Find(headingSelector)
	if headings.Length() == 0 {
		return ""
	}

	f := flatten(container)
	pos, ok := f.order[startEl]
	if !ok {
		return attr(headings.Get(0), "id")
	}

	var lastBefore string
	headings.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		o, ok := f.order[s.Get(0)]
		if !ok || o > pos {
			return false
		}
		lastBefore, _ = s.Attr("id")
		return true
	})
	if lastBefore != "" {
		return lastBefore
	}
	return attr(headings.Get(0), "id")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}
