// Package pages loads the HTML of report pages so highlights can be anchored
// and rendered against them.
package pages

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"time"

	"golang.org/x/net/html"

	"github.com/renderinc/report-highlights/internal/anchor"
)

// Page is a fetched report page
type Page struct {
	URL       string
	HTML      []byte
	Hash      string
	FetchedAt time.Time
}

// Source fetches pages by URL
type Source interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// ContentHash returns the hex md5 of b
func ContentHash(b []byte) string {
	return fmt.Sprintf("%x", md5.Sum(b))
}

func newPage(rawURL string, body []byte) Page {
	return Page{
		URL:       rawURL,
		HTML:      body,
		Hash:      ContentHash(body),
		FetchedAt: time.Now(),
	}
}

// Parse parses the page into a fresh document tree
func (p Page) Parse() (*html.Node, error) {
	doc, err := html.Parse(bytes.NewReader(p.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", p.URL, err)
	}
	return doc, nil
}

// Load fetches rawURL and returns its document and the highlight container
// matching selector.
func Load(ctx context.Context, src Source, rawURL, selector string) (*html.Node, *html.Node, error) {
	p, err := src.Fetch(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}
	doc, err := p.Parse()
	if err != nil {
		return nil, nil, err
	}
	return doc, anchor.Container(doc, selector), nil
}
