package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/renderinc/report-highlights/internal/anchor"
	"github.com/renderinc/report-highlights/internal/config"
	"github.com/renderinc/report-highlights/internal/highlight"
	"github.com/renderinc/report-highlights/internal/pages"
	"github.com/renderinc/report-highlights/internal/render"
	"github.com/renderinc/report-highlights/internal/search"
	"github.com/renderinc/report-highlights/internal/share"
	"github.com/renderinc/report-highlights/internal/storage"
	"github.com/renderinc/report-highlights/internal/verify"
	"github.com/renderinc/report-highlights/internal/web"
)

func main() {
	_ = godotenv.Load()

	globalFlags := flag.NewFlagSet("global", flag.ExitOnError)
	configPath := globalFlags.String("config", "", "Path to config.yaml (default: $CONFIG_PATH or ./config.yaml)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Find where the command starts (skip global flags)
	commandIdx := len(os.Args)
	for i := 1; i < len(os.Args); i++ {
		if !strings.HasPrefix(os.Args[i], "-") {
			commandIdx = i
			break
		}
	}
	globalFlags.Parse(os.Args[1:commandIdx])
	if commandIdx == len(os.Args) {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg.SetupLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg}
	command, args := os.Args[commandIdx], os.Args[commandIdx+1:]

	switch command {
	case "serve":
		err = a.runServe(ctx, args)
	case "list":
		err = a.runList(ctx, args)
	case "add":
		err = a.runAdd(ctx, args)
	case "delete":
		err = a.runDelete(ctx, args)
	case "delete-group":
		err = a.runDeleteGroup(ctx, args)
	case "render":
		err = a.runRender(ctx, args)
	case "share":
		err = a.runShare(args)
	case "verify":
		err = a.runVerify(ctx)
	case "reindex":
		err = a.runReindex(ctx)
	case "search":
		err = a.runSearch(ctx, args)
	case "stats":
		err = a.runStats(ctx)
	case "migrate":
		err = a.runMigrate(ctx, args)
	case "bookmark":
		err = a.runBookmark(ctx, args)
	case "config":
		err = cfg.Print(os.Stdout)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	a.close()
	if err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("command failed")
	}
}

func printUsage() {
	fmt.Println("Report Highlights - Persistent text highlights for report pages")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  report-highlights [global-flags] <command> [flags] [args]")
	fmt.Println()
	fmt.Println("Global Flags:")
	fmt.Println("  -config=<path>  Config file (default: $CONFIG_PATH or ./config.yaml)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve [flags]                       Start the HTTP API")
	fmt.Println("  list <url>                          List highlights of a page")
	fmt.Println("  add [flags] <url> <start> <end>     Highlight text between two offsets")
	fmt.Println("  delete <id>                         Delete one highlight")
	fmt.Println("  delete-group <group-id>             Delete every highlight of a group")
	fmt.Println("  render [-o file] <url>              Print a page with its highlights")
	fmt.Println("  share [-copy] <url> <text>          Print share links for a quote")
	fmt.Println("  verify                              Re-anchor every highlight against its page")
	fmt.Println("  reindex                             Rebuild the quote search index")
	fmt.Println("  search [-url=<url>] <query>         Search highlighted quotes")
	fmt.Println("  stats                               Show storage statistics")
	fmt.Println("  migrate [-to=<version>]             Apply pending schema migrations")
	fmt.Println("  bookmark [section]                  List bookmarks or toggle one")
	fmt.Println("  config                              Print the effective configuration")
	fmt.Println()
	fmt.Println("Serve Flags:")
	fmt.Println("  -host=<host>      Host to bind to (default: server.host)")
	fmt.Println("  -port=<port>      Port to listen on (default: server.port)")
	fmt.Println()
	fmt.Println("Add Flags:")
	fmt.Println("  -color=<color>    yellow, green, blue or pink (default: yellow)")
	fmt.Println("  -quote=<text>     Quote to store when no page source is configured")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  report-highlights serve -port=3000")
	fmt.Println("  report-highlights add -color=pink /2024/annual 120 168")
	fmt.Println("  report-highlights search -url=/2024/annual 'flood~'")
	fmt.Println("  report-highlights -config=prod.yaml verify")
}

// app opens components lazily so each command only pays for what it uses.
type app struct {
	cfg     *config.Config
	db      *storage.DB
	session *storage.SessionStore
	idx     *search.Index
	source  pages.Source
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}

func (a *app) openDB(ctx context.Context, opts ...storage.Option) (*storage.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	path := a.cfg.Database.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w: %v", highlight.ErrUnavailable, err)
	}

	opts = append(opts, storage.WithBusyTimeout(a.cfg.Database.BusyTimeout))
	db, err := storage.Open(ctx, path, opts...)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)
	return db, nil
}

// openIndex returns nil when search is disabled.
func (a *app) openIndex() (*search.Index, error) {
	if a.idx != nil || a.cfg.Search.Disabled {
		return a.idx, nil
	}
	path := a.cfg.Search.IndexPath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	idx, err := search.Open(path)
	if err != nil {
		return nil, err
	}
	a.idx = idx
	a.closers = append(a.closers, idx.Close)
	return idx, nil
}

// service builds the highlight service. When the database cannot be opened
// it runs on the session store alone and a.db stays nil.
func (a *app) service(ctx context.Context) (*highlight.Service, error) {
	var primary highlight.Store
	db, err := a.openDB(ctx)
	switch {
	case errors.Is(err, highlight.ErrUnavailable):
		log.Warn().Err(err).Str("path", a.cfg.Database.Path).Msg("database unavailable, highlights are kept for this session only")
		primary = highlight.OfflineStore{Err: err}
	case err != nil:
		return nil, err
	default:
		primary = db
	}

	if a.session == nil {
		session, err := storage.NewSessionStore(a.cfg.Database.SessionPath)
		if err != nil {
			return nil, err
		}
		a.session = session
		a.closers = append(a.closers, session.Close)
	}

	opts := []highlight.Option{
		highlight.WithSession(a.session),
		highlight.WithMode(a.cfg.Mode()),
	}

	idx, err := a.openIndex()
	if err != nil {
		log.Warn().Err(err).Msg("search index unavailable, quotes will not be indexed")
	} else if idx != nil {
		opts = append(opts, highlight.WithIndexer(idx))
	}

	return highlight.NewService(primary, opts...), nil
}

// pageSource returns nil when neither a directory nor a base URL is
// configured.
func (a *app) pageSource() (pages.Source, error) {
	if a.source != nil {
		return a.source, nil
	}

	var src pages.Source
	switch {
	case a.cfg.Pages.Dir != "":
		src = pages.NewDirSource(a.cfg.Pages.Dir)
	case a.cfg.Pages.BaseURL != "":
		src = pages.NewClient(
			pages.WithBaseURL(a.cfg.Pages.BaseURL),
			pages.WithHTTPClient(&http.Client{Timeout: a.cfg.Pages.Timeout}),
		)
	default:
		return nil, nil
	}

	if a.cfg.Pages.CacheSize > 0 {
		cache, err := pages.NewCache(src, a.cfg.Pages.CacheSize, a.cfg.Pages.CacheTTL)
		if err != nil {
			return nil, err
		}
		src = cache
	}
	a.source = src
	return src, nil
}

func (a *app) requireSource() (pages.Source, error) {
	src, err := a.pageSource()
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: set pages.dir or pages.base_url", highlight.ErrUnavailable)
	}
	return src, nil
}

// handler wires the HTTP API.
func (a *app) handler(ctx context.Context) (http.Handler, error) {
	svc, err := a.service(ctx)
	if err != nil {
		return nil, err
	}
	src, err := a.pageSource()
	if err != nil {
		return nil, err
	}

	opts := web.Options{
		Selector:      a.cfg.Highlight.ContainerSelector,
		QuoteFallback: a.cfg.Highlight.QuoteFallback,
		Hashtag:       a.cfg.Share.Hashtag,
		Separator:     a.cfg.Share.Separator,
	}
	if a.cfg.Server.RateLimit > 0 {
		opts.Limiter = web.NewRateLimiter(a.cfg.Server.RateLimit, a.cfg.Server.RateBurst)
	}

	log.Info().
		Str("mode", string(svc.Mode())).
		Bool("database", a.db != nil).
		Bool("pages", src != nil).
		Bool("search", a.idx != nil).
		Msg("api ready")
	return web.NewServer(svc, a.db, a.idx, src, opts).Handler(), nil
}

func (a *app) runServe(ctx context.Context, args []string) error {
	serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)
	host := serveFlags.String("host", a.cfg.Server.Host, "Host to bind to")
	port := serveFlags.Int("port", a.cfg.Server.Port, "Port to listen on")
	serveFlags.Parse(args)

	h, err := a.handler(ctx)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", *host, *port),
		Handler:      h,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *app) runList(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: usage: list <url>", highlight.ErrInvalid)
	}
	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	recs, err := svc.List(ctx, args[0])
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No highlights found")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tGROUP\tCOLOR\tSTART\tEND\tQUOTE")
	for _, rec := range recs {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%d\t%s\n", rec.ID, rec.Group(), rec.Color, rec.StartAbs, rec.EndAbs, truncate(rec.Quote, 60))
	}
	return tw.Flush()
}

func (a *app) runAdd(ctx context.Context, args []string) error {
	addFlags := flag.NewFlagSet("add", flag.ExitOnError)
	colorName := addFlags.String("color", string(highlight.DefaultColor), "Highlight color")
	quote := addFlags.String("quote", "", "Quote to store")
	addFlags.Parse(args)

	if addFlags.NArg() < 3 {
		return fmt.Errorf("%w: usage: add [flags] <url> <start> <end>", highlight.ErrInvalid)
	}
	rawURL := addFlags.Arg(0)
	start, err1 := strconv.Atoi(addFlags.Arg(1))
	end, err2 := strconv.Atoi(addFlags.Arg(2))
	if err := errors.Join(err1, err2); err != nil {
		return fmt.Errorf("%w: offsets: %v", highlight.ErrInvalid, err)
	}
	color, err := highlight.ParseColor(*colorName)
	if err != nil {
		return err
	}

	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	src, err := a.pageSource()
	if err != nil {
		return err
	}

	req := highlight.Request{
		URL:       rawURL,
		Color:     color,
		Fragments: []highlight.Fragment{{StartAbs: start, EndAbs: end, Quote: *quote}},
	}
	if src != nil {
		_, container, err := pages.Load(ctx, src, rawURL, a.cfg.Highlight.ContainerSelector)
		if err != nil {
			return err
		}
		r, ok := anchor.Locate(start, end, container)
		if !ok {
			return fmt.Errorf("%w: offsets %d-%d are outside the page text", highlight.ErrInvalid, start, end)
		}
		sel, ok := anchor.Capture(r, container)
		if !ok {
			return fmt.Errorf("%w: offsets %d-%d select only whitespace", highlight.ErrInvalid, start, end)
		}
		req.Fragments[0] = highlight.Fragment{StartAbs: sel.StartAbs, EndAbs: sel.EndAbs, Quote: sel.Quote}
		req.Text = textBetween(container)
	}

	res, err := svc.Create(ctx, req)
	if err != nil {
		return err
	}
	for _, rec := range res.Records {
		fmt.Printf("Added highlight %d (group %d): %q\n", rec.ID, rec.Group(), rec.Quote)
	}
	if len(res.Removed) > 0 {
		fmt.Printf("Replaced highlights: %v\n", res.Removed)
	}
	if res.Degraded {
		fmt.Println("Warning: database unavailable, highlight kept for this session only")
	}
	return nil
}

func textBetween(container *html.Node) func(start, end int) string {
	return func(start, end int) string {
		r, ok := anchor.Locate(start, end, container)
		if !ok {
			return ""
		}
		return strings.TrimSpace(r.String())
	}
}

func parseID(args []string, usage string) (int64, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("%w: usage: %s", highlight.ErrInvalid, usage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: id %q", highlight.ErrInvalid, args[0])
	}
	return id, nil
}

func (a *app) runDelete(ctx context.Context, args []string) error {
	id, err := parseID(args, "delete <id>")
	if err != nil {
		return err
	}
	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	if err := svc.Remove(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Deleted highlight %d\n", id)
	return nil
}

func (a *app) runDeleteGroup(ctx context.Context, args []string) error {
	id, err := parseID(args, "delete-group <group-id>")
	if err != nil {
		return err
	}
	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	n, err := svc.RemoveGroup(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d highlights of group %d\n", n, id)
	return nil
}

func (a *app) runRender(ctx context.Context, args []string) error {
	renderFlags := flag.NewFlagSet("render", flag.ExitOnError)
	out := renderFlags.String("o", "", "Write to file instead of stdout")
	renderFlags.Parse(args)

	if renderFlags.NArg() < 1 {
		return fmt.Errorf("%w: usage: render [-o file] <url>", highlight.ErrInvalid)
	}
	rawURL := renderFlags.Arg(0)

	src, err := a.requireSource()
	if err != nil {
		return err
	}
	svc, err := a.service(ctx)
	if err != nil {
		return err
	}

	doc, container, err := pages.Load(ctx, src, rawURL, a.cfg.Highlight.ContainerSelector)
	if err != nil {
		return err
	}
	recs, err := svc.List(ctx, rawURL)
	if err != nil {
		return err
	}
	st := render.Pass(container, recs, render.WithQuoteFallback(a.cfg.Highlight.QuoteFallback))
	log.Info().
		Int("rendered", st.Rendered).
		Int("skipped", st.Skipped).
		Int("relocated", st.Relocated).
		Int("spans", st.Spans).
		Msg("rendered highlights")

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	return html.Render(w, doc)
}

func (a *app) runShare(args []string) error {
	shareFlags := flag.NewFlagSet("share", flag.ExitOnError)
	copyText := shareFlags.Bool("copy", false, "Copy the quote to the system clipboard")
	shareFlags.Parse(args)

	if shareFlags.NArg() < 2 {
		return fmt.Errorf("%w: usage: share [-copy] <url> <text>", highlight.ErrInvalid)
	}
	pageURL := shareFlags.Arg(0)
	text := strings.Join(shareFlags.Args()[1:], " ")

	links := share.LinksFor(text, pageURL, a.cfg.Share.Hashtag, a.cfg.Share.Separator)
	fmt.Printf("WhatsApp: %s\n", links.WhatsApp)
	fmt.Printf("Facebook: %s\n", links.Facebook)
	fmt.Printf("LinkedIn: %s\n", links.LinkedIn)

	if *copyText {
		if err := share.Copy(share.SystemClipboard{}, text); err != nil {
			return err
		}
		fmt.Println("Copied to clipboard")
	}
	return nil
}

func (a *app) runVerify(ctx context.Context) error {
	src, err := a.requireSource()
	if err != nil {
		return err
	}
	db, err := a.openDB(ctx)
	if err != nil {
		return err
	}

	worker := verify.NewWorker(db, src, a.cfg.Highlight.ContainerSelector, a.cfg.Verify.Concurrency)
	stats, err := worker.Run(ctx)
	if err != nil {
		return err
	}

	if len(stats.Issues) > 0 {
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tGROUP\tKIND\tPAGE\tQUOTE\tFOUND")
		for _, is := range stats.Issues {
			found := is.Found
			if is.Moved {
				found = fmt.Sprintf("%s (moved to %d)", found, is.MovedTo)
			}
			fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n", is.ID, is.GroupID, is.Kind, is.URLKey, truncate(is.Quote, 40), truncate(found, 40))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Println()
	fmt.Println("=== Verify Complete ===")
	fmt.Printf("Pages:         %d\n", stats.Pages)
	fmt.Printf("Highlights:    %d\n", stats.Records)
	fmt.Printf("Anchored:      %d\n", stats.Anchored)
	fmt.Printf("Drifted:       %d\n", stats.Drifted)
	fmt.Printf("Stale:         %d\n", stats.Stale)
	fmt.Printf("Errors:        %d\n", stats.Errors)
	fmt.Printf("Duration:      %v\n", stats.Duration)
	return nil
}

func (a *app) runReindex(ctx context.Context) error {
	if a.cfg.Search.Disabled {
		return fmt.Errorf("%w: search is disabled", highlight.ErrUnavailable)
	}
	db, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	idx, err := a.openIndex()
	if err != nil {
		return err
	}

	fmt.Println("Rebuilding quote index...")
	n, err := idx.Rebuild(ctx, db)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d highlights\n", n)
	return nil
}

func (a *app) runSearch(ctx context.Context, args []string) error {
	searchFlags := flag.NewFlagSet("search", flag.ExitOnError)
	pageURL := searchFlags.String("url", "", "Only search highlights of this page")
	limit := searchFlags.Int("limit", 10, "Maximum number of results")
	searchFlags.Parse(args)

	if searchFlags.NArg() < 1 {
		return fmt.Errorf("%w: usage: search [-url=<url>] <query>", highlight.ErrInvalid)
	}
	query := strings.Join(searchFlags.Args(), " ")

	var key string
	if *pageURL != "" {
		k, err := highlight.URLKey(*pageURL)
		if err != nil {
			return err
		}
		key = k
	}

	if a.cfg.Search.Disabled {
		return fmt.Errorf("%w: search is disabled", highlight.ErrUnavailable)
	}
	idx, err := a.openIndex()
	if err != nil {
		return err
	}

	results, err := idx.Search(query, key, *limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No results found")
		return nil
	}

	fmt.Printf("\nFound %d results:\n\n", len(results))
	for i, res := range results {
		fmt.Printf("%d. %q\n", i+1, truncate(res.Quote, 100))
		fmt.Printf("   Page: %s\n", res.URLKey)
		fmt.Printf("   Highlight: %d (group %d, %s)\n", res.ID, res.GroupID, res.Color)
		fmt.Printf("   Score: %.3f\n", res.Score)
		if snippets, ok := res.Fragments["Quote"]; ok && len(snippets) > 0 {
			fmt.Printf("   Preview: %s\n", snippets[0])
		}
		fmt.Println()
	}
	return nil
}

func (a *app) runStats(ctx context.Context) error {
	db, err := a.openDB(ctx)
	if err != nil {
		return err
	}

	count, err := db.Count(ctx)
	if err != nil {
		return err
	}
	keys, err := db.URLKeys(ctx)
	if err != nil {
		return err
	}
	version, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	marks, err := db.Bookmarks(ctx)
	if err != nil {
		return err
	}

	fmt.Println("=== Highlight Statistics ===")
	fmt.Printf("Schema version:         %d\n", version)
	fmt.Printf("Highlights in database: %d\n", count)
	fmt.Printf("Pages with highlights:  %d\n", len(keys))
	fmt.Printf("Bookmarks:              %d\n", len(marks))

	if !a.cfg.Search.Disabled {
		idx, err := a.openIndex()
		if err != nil {
			return err
		}
		n, err := idx.Count()
		if err != nil {
			return err
		}
		fmt.Printf("Highlights in index:    %d\n", n)
	}
	return nil
}

func (a *app) runMigrate(ctx context.Context, args []string) error {
	migrateFlags := flag.NewFlagSet("migrate", flag.ExitOnError)
	to := migrateFlags.Int64("to", -1, "Target schema version (default: latest)")
	migrateFlags.Parse(args)

	db, err := a.openDB(ctx, storage.WithoutMigrations())
	if err != nil {
		return err
	}

	if *to < 0 {
		err = db.Migrate(ctx)
	} else {
		err = db.MigrateTo(ctx, *to)
	}
	if err != nil {
		return err
	}

	version, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Schema version: %d\n", version)
	return nil
}

func (a *app) runBookmark(ctx context.Context, args []string) error {
	db, err := a.openDB(ctx)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		marks, err := db.Bookmarks(ctx)
		if err != nil {
			return err
		}
		if len(marks) == 0 {
			fmt.Println("No bookmarks")
			return nil
		}
		for _, m := range marks {
			fmt.Printf("%d. %s\n", m.ID, m.SectionName)
		}
		return nil
	}

	section := strings.Join(args, " ")
	marked, err := db.ToggleBookmark(ctx, section)
	if err != nil {
		return err
	}
	if marked {
		fmt.Printf("Bookmarked %q\n", section)
	} else {
		fmt.Printf("Removed bookmark %q\n", section)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
