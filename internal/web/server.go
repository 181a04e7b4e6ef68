package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/renderinc/report-highlights/internal/anchor"
	"github.com/renderinc/report-highlights/internal/highlight"
	"github.com/renderinc/report-highlights/internal/pages"
	"github.com/renderinc/report-highlights/internal/render"
	"github.com/renderinc/report-highlights/internal/search"
	"github.com/renderinc/report-highlights/internal/share"
	"github.com/renderinc/report-highlights/internal/storage"
)

const maxBodyBytes = 1 << 20

var errNoDatabase = fmt.Errorf("database: %w", highlight.ErrUnavailable)

// Options configures a Server.
type Options struct {
	// Selector finds the highlight container in fetched pages.
	Selector string
	// QuoteFallback relocates drifted highlights when pages are rendered.
	QuoteFallback bool
	// Hashtag is appended to Facebook share links.
	Hashtag string
	// Separator joins text and URL in WhatsApp share links.
	Separator string
	Limiter   *RateLimiter
}

type Server struct {
	svc    *highlight.Service
	db     *storage.DB
	idx    *search.Index
	source pages.Source
	opts   Options
}

// CreateRequest is the body of POST /api/highlights. A selection is given
// either as absolute offsets or as a child-index path into the rendered page.
type CreateRequest struct {
	URL       string       `json:"url"`
	Color     string       `json:"color"`
	StartAbs  *int         `json:"startAbs,omitempty"`
	EndAbs    *int         `json:"endAbs,omitempty"`
	Quote     string       `json:"quote,omitempty"`
	Selection *anchor.Path `json:"selection,omitempty"`
}

type CreateResponse struct {
	Records  []highlight.Record `json:"records"`
	Removed  []int64            `json:"removed,omitempty"`
	Degraded bool               `json:"degraded"`
	Links    share.Links        `json:"links"`
}

type ListResponse struct {
	URLKey  string             `json:"urlKey"`
	Records []highlight.Record `json:"records"`
	Count   int                `json:"count"`
}

type SearchResponse struct {
	Results []*search.Result `json:"results"`
	Query   string           `json:"query"`
	Count   int              `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer creates the HTTP API. db, idx and source are optional: without a
// database /health reports "degraded" and bookmarks answer 503, without an
// index /api/search answers 503, without a source highlights must be posted
// as offsets with a quote and /view is unavailable.
func NewServer(svc *highlight.Service, db *storage.DB, idx *search.Index, source pages.Source, opts Options) *Server {
	return &Server{
		svc:    svc,
		db:     db,
		idx:    idx,
		source: source,
		opts:   opts,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/highlights", s.handleList)
	mux.HandleFunc("POST /api/highlights", s.handleCreate)
	mux.HandleFunc("DELETE /api/highlights/{id}", s.handleDelete)
	mux.HandleFunc("DELETE /api/groups/{groupId}", s.handleDeleteGroup)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/bookmarks", s.handleBookmarks)
	mux.HandleFunc("POST /api/bookmarks/{section}", s.handleToggleBookmark)
	mux.HandleFunc("GET /view", s.handleView)

	ms := []Middleware{WithRequestID, WithAccessLog, WithServerTiming}
	if s.opts.Limiter != nil {
		ms = append(ms, s.opts.Limiter.Middleware)
	}
	return Chain(mux, ms...)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "ok"

	var (
		dbCount int
		version int64
	)
	if s.db == nil {
		status = "degraded"
	} else {
		n, err := s.db.Count(ctx)
		if err != nil {
			status = "degraded"
			log.Warn().Err(err).Msg("health: count highlights")
		}
		dbCount = n
		version, _ = s.db.SchemaVersion(ctx)
	}

	var indexCount uint64
	if s.idx != nil {
		indexCount, _ = s.idx.Count()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":              status,
		"highlights_in_db":    dbCount,
		"highlights_in_index": indexCount,
		"schema_version":      version,
		"overlap_mode":        s.svc.Mode(),
		"search_available":    s.idx != nil,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	key, err := highlight.URLKey(raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	recs, err := s.svc.ListKey(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []highlight.Record{}
	}
	writeJSON(w, http.StatusOK, ListResponse{URLKey: key, Records: recs, Count: len(recs)})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: decode body: %v", highlight.ErrInvalid, err))
		return
	}

	color := highlight.DefaultColor
	if req.Color != "" {
		c, err := highlight.ParseColor(req.Color)
		if err != nil {
			writeError(w, r, err)
			return
		}
		color = c
	}

	frag, text, err := s.fragment(r, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.svc.Create(r.Context(), highlight.Request{
		URL:       req.URL,
		Color:     color,
		Fragments: []highlight.Fragment{frag},
		Text:      text,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateResponse{
		Records:  res.Records,
		Removed:  res.Removed,
		Degraded: res.Degraded,
		Links:    share.LinksFor(frag.Quote, req.URL, s.opts.Hashtag, s.opts.Separator),
	})
}

// fragment resolves the selection of req against the current page. Path
// selections refer to the page as /view renders it, highlights included.
func (s *Server) fragment(r *http.Request, req CreateRequest) (highlight.Fragment, func(int, int) string, error) {
	if s.source == nil {
		if req.Selection != nil {
			return highlight.Fragment{}, nil, fmt.Errorf("%w: path selections need a page source", highlight.ErrInvalid)
		}
		if req.StartAbs == nil || req.EndAbs == nil {
			return highlight.Fragment{}, nil, fmt.Errorf("%w: startAbs and endAbs are required", highlight.ErrInvalid)
		}
		return highlight.Fragment{StartAbs: *req.StartAbs, EndAbs: *req.EndAbs, Quote: req.Quote}, nil, nil
	}

	_, container, err := s.rendered(r, req.URL)
	if err != nil {
		return highlight.Fragment{}, nil, err
	}
	text := func(start, end int) string {
		rng, ok := anchor.Locate(start, end, container)
		if !ok {
			return ""
		}
		return strings.TrimSpace(rng.String())
	}

	var rng anchor.Range
	switch {
	case req.Selection != nil:
		var ok bool
		rng, ok = anchor.RestorePath(*req.Selection, container)
		if !ok {
			return highlight.Fragment{}, nil, fmt.Errorf("%w: selection does not match the page", highlight.ErrInvalid)
		}
	case req.StartAbs != nil && req.EndAbs != nil:
		var ok bool
		rng, ok = anchor.Locate(*req.StartAbs, *req.EndAbs, container)
		if !ok {
			return highlight.Fragment{}, nil, fmt.Errorf("%w: offsets outside the page text", highlight.ErrInvalid)
		}
	default:
		return highlight.Fragment{}, nil, fmt.Errorf("%w: selection or startAbs and endAbs are required", highlight.ErrInvalid)
	}

	sel, ok := anchor.Capture(rng, container)
	if !ok {
		return highlight.Fragment{}, nil, fmt.Errorf("%w: empty selection", highlight.ErrInvalid)
	}
	return highlight.Fragment{StartAbs: sel.StartAbs, EndAbs: sel.EndAbs, Quote: sel.Quote}, text, nil
}

// rendered loads rawURL and renders its stored highlights into it.
func (s *Server) rendered(r *http.Request, rawURL string) (*html.Node, *html.Node, error) {
	if s.source == nil {
		return nil, nil, fmt.Errorf("page source: %w", highlight.ErrUnavailable)
	}
	ctx := r.Context()

	stop := timing(ctx, "fetch")
	doc, container, err := pages.Load(ctx, s.source, rawURL, s.opts.Selector)
	stop()
	if err != nil {
		return nil, nil, err
	}

	recs, err := s.svc.List(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}

	stop = timing(ctx, "render")
	st := render.Pass(container, recs, render.WithQuoteFallback(s.opts.QuoteFallback))
	stop()
	if st.Skipped > 0 {
		log.Debug().Int("skipped", st.Skipped).Str("url", rawURL).Str("request_id", RequestID(ctx)).Msg("highlights no longer match the page")
	}
	return doc, container, nil
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Remove(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "groupId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.svc.RemoveGroup(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groupId": id, "removed": n})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.idx == nil {
		writeError(w, r, fmt.Errorf("search index: %w", highlight.ErrUnavailable))
		return
	}

	q := r.URL.Query()
	query := q.Get("q")

	var key string
	if raw := q.Get("url"); raw != "" {
		k, err := highlight.URLKey(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		key = k
	}

	limit := search.DefaultLimit
	if limitStr := q.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	stop := timing(r.Context(), "search")
	results, err := s.idx.Search(query, key, limit)
	stop()
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{Results: results, Query: query, Count: len(results)})
}

func (s *Server) handleBookmarks(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, r, errNoDatabase)
		return
	}
	bms, err := s.db.Bookmarks(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if bms == nil {
		bms = []storage.Bookmark{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookmarks": bms})
}

func (s *Server) handleToggleBookmark(w http.ResponseWriter, r *http.Request) {
	section := strings.TrimSpace(r.PathValue("section"))
	if section == "" {
		writeError(w, r, fmt.Errorf("%w: missing section", highlight.ErrInvalid))
		return
	}
	if s.db == nil {
		writeError(w, r, errNoDatabase)
		return
	}
	on, err := s.db.ToggleBookmark(r.Context(), section)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"section": section, "bookmarked": on})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if _, err := highlight.URLKey(raw); err != nil {
		writeError(w, r, err)
		return
	}

	doc, _, err := s.rendered(r, raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		writeError(w, r, fmt.Errorf("render page: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad %s %q", highlight.ErrInvalid, name, r.PathValue(name))
	}
	return id, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, highlight.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, highlight.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, highlight.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, highlight.ErrGroupPartial):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Str("request_id", RequestID(r.Context())).Msg("request failed")
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}
