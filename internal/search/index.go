package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/renderinc/report-highlights/internal/highlight"
)

// DefaultLimit caps results when the caller does not.
const DefaultLimit = 20

// Index wraps a Bleve index of highlight quotes
type Index struct {
	index bleve.Index
}

var _ highlight.Indexer = (*Index)(nil)

// IndexedQuote represents a highlight in the search index
type IndexedQuote struct {
	ID        string
	GroupID   float64
	URLKey    string
	Color     string
	Quote     string
	CreatedAt float64
}

// Result represents a search hit
type Result struct {
	ID        int64               `json:"id"`
	GroupID   int64               `json:"groupId"`
	URLKey    string              `json:"urlKey"`
	Color     string              `json:"color"`
	Quote     string              `json:"quote"`
	Score     float64             `json:"score"`
	Fragments map[string][]string `json:"fragments,omitempty"` // Highlighted snippets
}

// Source lists every stored highlight.
type Source interface {
	All(ctx context.Context) ([]highlight.Record, error)
}

// Open opens or creates a Bleve index
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &Index{index: idx}, nil
}

// NewMemory creates an index that lives in memory only
func NewMemory() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Index{index: idx}, nil
}

// buildIndexMapping analyzes quotes as English text and keeps page keys and
// colors as exact keywords
func buildIndexMapping() mapping.IndexMapping {
	quoteFieldMapping := bleve.NewTextFieldMapping()
	quoteFieldMapping.Analyzer = "en"

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("Quote", quoteFieldMapping)
	docMapping.AddFieldMappingsAt("URLKey", bleve.NewKeywordFieldMapping())
	docMapping.AddFieldMappingsAt("Color", bleve.NewKeywordFieldMapping())
	docMapping.AddFieldMappingsAt("GroupID", bleve.NewNumericFieldMapping())
	docMapping.AddFieldMappingsAt("CreatedAt", bleve.NewNumericFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

// Close closes the index
func (i *Index) Close() error {
	return i.index.Close()
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func indexed(rec highlight.Record) *IndexedQuote {
	return &IndexedQuote{
		ID:        docID(rec.ID),
		GroupID:   float64(rec.Group()),
		URLKey:    rec.URLKey,
		Color:     string(rec.Color),
		Quote:     rec.Quote,
		CreatedAt: float64(rec.CreatedAt),
	}
}

// IndexRecord adds or updates a highlight. Records without a quote are
// removed from the index.
func (i *Index) IndexRecord(rec highlight.Record) error {
	if strings.TrimSpace(rec.Quote) == "" {
		return i.DeleteRecord(rec.ID)
	}
	return i.index.Index(docID(rec.ID), indexed(rec))
}

// DeleteRecord removes a highlight
func (i *Index) DeleteRecord(id int64) error {
	return i.index.Delete(docID(id))
}

// Search runs a query string over quotes, optionally restricted to one page
func (i *Index) Search(queryStr, urlKey string, limit int) ([]*Result, error) {
	queryStr = strings.TrimSpace(queryStr)
	if queryStr == "" {
		return nil, fmt.Errorf("search: %w: empty query", highlight.ErrInvalid)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	// Supports quotes, boolean operators and fuzzy ~
	qs := bleve.NewQueryStringQuery(queryStr)
	var q query.Query = qs
	if urlKey != "" {
		page := bleve.NewTermQuery(urlKey)
		page.SetField("URLKey")
		q = bleve.NewConjunctionQuery(qs, page)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Highlight.AddField("Quote")
	req.Fields = []string{"GroupID", "URLKey", "Color", "Quote"}

	results, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	out := make([]*Result, 0, len(results.Hits))
	for _, hit := range results.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		r := &Result{ID: id, Score: hit.Score, Fragments: hit.Fragments}
		if g, ok := hit.Fields["GroupID"].(float64); ok {
			r.GroupID = int64(g)
		}
		if key, ok := hit.Fields["URLKey"].(string); ok {
			r.URLKey = key
		}
		if color, ok := hit.Fields["Color"].(string); ok {
			r.Color = color
		}
		if quote, ok := hit.Fields["Quote"].(string); ok {
			r.Quote = quote
		}
		out = append(out, r)
	}

	return out, nil
}

// Rebuild makes the index mirror src: every stored highlight is indexed and
// documents for highlights that no longer exist are removed.
func (i *Index) Rebuild(ctx context.Context, src Source) (int, error) {
	recs, err := src.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("list highlights: %w", err)
	}

	keep := make(map[string]bool, len(recs))
	batch := i.index.NewBatch()
	for _, rec := range recs {
		if strings.TrimSpace(rec.Quote) == "" {
			continue
		}
		doc := indexed(rec)
		keep[doc.ID] = true
		if err := batch.Index(doc.ID, doc); err != nil {
			return 0, fmt.Errorf("batch index %s: %w", doc.ID, err)
		}
	}

	stale, err := i.ids()
	if err != nil {
		return 0, err
	}
	for _, id := range stale {
		if !keep[id] {
			batch.Delete(id)
		}
	}

	if err := i.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}

	return len(keep), nil
}

func (i *Index) ids() ([]string, error) {
	n, err := i.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(n), 0, false)
	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Count returns the number of documents in the index
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}
