package render_test

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/renderinc/report-highlights/internal/anchor"
	"github.com/renderinc/report-highlights/internal/highlight"
	"github.com/renderinc/report-highlights/internal/render"
)

func container(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return anchor.Container(doc, "article")
}

func outer(t *testing.T, n *html.Node) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, html.Render(&buf, n))
	return buf.String()
}

func spans(n *html.Node) *goquery.Selection {
	return goquery.NewDocumentFromNode(n).Find("span." + render.ClassName)
}

func record(id, group int64, start, end int, color highlight.Color) highlight.Record {
	return highlight.Record{ID: id, GroupID: group, URLKey: "/r", Color: color, StartAbs: start, EndAbs: end}
}

func TestPassWrapsStoredRecord(t *testing.T) {
	t.Parallel()

	c := container(t, `<article><p id="text">Hello world from IFRC</p></article>`)

	st := render.Pass(c, []highlight.Record{record(1, 999, 0, 5, highlight.Yellow)})
	assert.Equal(t, render.Stats{Rendered: 1, Spans: 1}, st)

	sel := spans(c)
	require.Equal(t, 1, sel.Length())
	assert.Equal(t, "Hello", sel.Text())
	assert.Equal(t, "999", sel.AttrOr(render.AttrGroup, ""))
	assert.Equal(t, "1", sel.AttrOr(render.AttrID, ""))
	assert.Equal(t, "yellow", sel.AttrOr(render.AttrColor, ""))
	assert.Contains(t, sel.AttrOr("style", ""), "rgba(253, 224, 71, 0.55)")

	group, ok := render.GroupAt(sel.Nodes[0].FirstChild)
	require.True(t, ok)
	assert.Equal(t, int64(999), group)

	_, ok = render.GroupAt(sel.Nodes[0].NextSibling)
	assert.False(t, ok)

	assert.Equal(t, "Hello world from IFRC", anchor.Text(c))
}

func TestPassIsIdempotent(t *testing.T) {
	t.Parallel()

	c := container(t, `<article><p>Hello <b>brave</b> new world</p><p>Second paragraph</p></article>`)
	recs := []highlight.Record{
		record(1, 1, 3, 14, highlight.Pink),
		record(2, 2, 6, 11, highlight.Blue),
		record(3, 3, 18, 27, highlight.Green),
	}

	render.Pass(c, recs)
	first := outer(t, c)
	render.Pass(c, recs)
	assert.Equal(t, first, outer(t, c))
	assert.Equal(t, 0, spans(c).Find("span."+render.ClassName+" > span."+render.ClassName+" > span."+render.ClassName).Length())
}

func TestUnwrapRestoresPlainText(t *testing.T) {
	t.Parallel()

	src := `<article><p>Hello <b>brave</b> new world</p></article>`
	c := container(t, src)
	plain := outer(t, c)

	render.Pass(c, []highlight.Record{record(1, 1, 2, 13, highlight.Yellow), record(2, 2, 4, 8, highlight.Blue)})
	require.Positive(t, spans(c).Length())

	removed := render.Unwrap(c)
	assert.Equal(t, 5, removed)
	assert.Equal(t, plain, outer(t, c))
}

func TestPassNestsOverlaps(t *testing.T) {
	t.Parallel()

	c := container(t, `<article><p>Hello world from IFRC</p></article>`)

	st := render.Pass(c, []highlight.Record{
		record(2, 2, 6, 11, highlight.Blue),
		record(1, 1, 0, 16, highlight.Yellow),
	})
	assert.Equal(t, 2, st.Rendered)

	outerSpan := goquery.NewDocumentFromNode(c).Find("p > span." + render.ClassName)
	require.Equal(t, 1, outerSpan.Length())
	assert.Equal(t, "1", outerSpan.AttrOr(render.AttrID, ""))
	assert.Equal(t, "Hello world from", outerSpan.Text())

	inner := outerSpan.Find("span." + render.ClassName)
	require.Equal(t, 1, inner.Length())
	assert.Equal(t, "2", inner.AttrOr(render.AttrID, ""))
	assert.Equal(t, "world", inner.Text())
}

func TestPassPartialOverlapSplitsSpans(t *testing.T) {
	t.Parallel()

	c := container(t, `<article><p>Hello world from IFRC</p></article>`)

	render.Pass(c, []highlight.Record{
		record(1, 1, 0, 8, highlight.Yellow),
		record(2, 2, 6, 16, highlight.Pink),
	})

	second := spans(c).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.AttrOr(render.AttrID, "") == "2"
	})
	require.Equal(t, 2, second.Length())
	assert.Equal(t, "wo", second.Eq(0).Text())
	assert.Equal(t, "rld from", second.Eq(1).Text())
	assert.Equal(t, "Hello world from IFRC", anchor.Text(c))
}

func TestPassAcrossElements(t *testing.T) {
	t.Parallel()

	c := container(t, `<article><p>Hello <b>brave</b> new world</p></article>`)
	st := render.Pass(c, []highlight.Record{record(1, 7, 3, 14, highlight.Green)})
	assert.Equal(t, 3, st.Spans)

	var parts []string
	spans(c).Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, s.Text())
		assert.Equal(t, "7", s.AttrOr(render.AttrGroup, ""))
	})
	assert.Equal(t, []string{"lo ", "brave", " ne"}, parts)
}

func TestPassSkipsRecordsPastTheEnd(t *testing.T) {
	t.Parallel()

	c := container(t, `<article><p>Hello world</p></article>`)
	recs := []highlight.Record{record(1, 1, 0, 5, highlight.Yellow), record(2, 2, 6, 11, highlight.Blue)}
	render.Pass(c, recs)

	// Replace the content with shorter text.
	p := goquery.NewDocumentFromNode(c).Find("p").Nodes[0]
	for p.FirstChild != nil {
		p.RemoveChild(p.FirstChild)
	}
	p.AppendChild(&html.Node{Type: html.TextNode, Data: "Hi there"})

	st := render.Pass(c, recs)
	assert.Equal(t, 1, st.Rendered)
	assert.Equal(t, 1, st.Skipped)
	require.Equal(t, 1, spans(c).Length())
	assert.Equal(t, "Hi th", spans(c).Text())

	short := container(t, `<article><p>Hi</p></article>`)
	st = render.Pass(short, []highlight.Record{record(1, 1, 0, 5, highlight.Yellow)})
	assert.Equal(t, render.Stats{Skipped: 1}, st)
	assert.Zero(t, spans(short).Length())
}

func TestPassQuoteFallback(t *testing.T) {
	t.Parallel()

	rec := record(1, 1, 6, 10, highlight.Yellow)
	rec.Quote = "beta"

	// Two words were inserted in front of the highlighted text.
	c := container(t, `<article><p>new words alpha beta gamma beta</p></article>`)

	st := render.Pass(c, []highlight.Record{rec}, render.WithQuoteFallback(true))
	assert.Equal(t, 1, st.Relocated)
	assert.Equal(t, "beta", spans(c).Text())

	plain := container(t, `<article><p>new words alpha beta gamma beta</p></article>`)
	render.Pass(plain, []highlight.Record{rec})
	assert.Equal(t, "rds ", spans(plain).Text())

	gone := container(t, `<article><p>new words alpha gamma</p></article>`)
	st = render.Pass(gone, []highlight.Record{rec}, render.WithQuoteFallback(true))
	assert.Zero(t, st.Relocated)
	assert.Equal(t, "rds ", spans(gone).Text())
}

func TestPassQuoteFallbackAcrossBlocks(t *testing.T) {
	t.Parallel()

	rec := record(1, 1, 5, 15, highlight.Blue)
	rec.Quote = "Hello\nWorld"

	c := container(t, "<article><p>New</p>\n<p>Intro</p>\n<p>Hello</p>\n<p>World</p></article>")
	st := render.Pass(c, []highlight.Record{rec}, render.WithQuoteFallback(true))
	assert.Equal(t, 1, st.Relocated)
	assert.Equal(t, 1, st.Rendered)
	assert.Equal(t, "HelloWorld", spans(c).Text())
}

func TestOffsetsSurviveRendering(t *testing.T) {
	t.Parallel()

	c := container(t, `<article><p>Hello <b>brave</b> new world</p></article>`)
	render.Pass(c, []highlight.Record{record(1, 1, 3, 14, highlight.Pink)})

	r, ok := anchor.Locate(6, 11, c)
	require.True(t, ok)
	sel, ok := anchor.Capture(r, c)
	require.True(t, ok)
	assert.Equal(t, anchor.Selection{StartAbs: 6, EndAbs: 11, Quote: "brave"}, sel)
}

func TestRendererDiscardsStaleGenerations(t *testing.T) {
	t.Parallel()

	c := container(t, `<article><p>Hello world</p></article>`)
	r := render.New(c)

	older := r.Trigger()
	newer := r.Trigger()

	_, err := r.Apply(older, []highlight.Record{record(1, 1, 0, 5, highlight.Yellow)})
	assert.ErrorIs(t, err, render.ErrStaleRender)
	assert.Zero(t, spans(c).Length())

	st, err := r.Apply(newer, []highlight.Record{record(2, 2, 6, 11, highlight.Blue)})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Rendered)
	assert.Equal(t, "world", spans(c).Text())
	assert.Equal(t, st, r.Last())

	group, ok := r.GroupAt(spans(c).Nodes[0].FirstChild)
	require.True(t, ok)
	assert.Equal(t, int64(2), group)

	r.Clear()
	assert.Zero(t, spans(c).Length())
}

func TestRendererSerializesPasses(t *testing.T) {
	t.Parallel()

	c := container(t, `<article><p>Hello <b>brave</b> new world</p><p>Second paragraph</p></article>`)
	r := render.New(c)
	recs := []highlight.Record{record(1, 1, 0, 14, highlight.Yellow), record(2, 2, 6, 30, highlight.Blue)}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Render(recs)
		}()
	}
	wg.Wait()

	_, err := r.Render(recs)
	require.NoError(t, err)
	want := outer(t, c)

	fresh := container(t, `<article><p>Hello <b>brave</b> new world</p><p>Second paragraph</p></article>`)
	render.Pass(fresh, recs)
	assert.Equal(t, outer(t, fresh), want)
	assert.Equal(t, "Hello brave new worldSecond paragraph", anchor.Text(c))
}
