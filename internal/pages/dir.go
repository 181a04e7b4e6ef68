package pages

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/renderinc/report-highlights/internal/highlight"
)

// DirSource serves pages from a directory of exported HTML files. The URL
// path "/2024/annual" maps to "2024/annual.html" or "2024/annual/index.html".
type DirSource struct {
	fsys fs.FS
}

// NewDirSource serves pages from root.
func NewDirSource(root string) *DirSource {
	return &DirSource{fsys: os.DirFS(root)}
}

// NewFSSource serves pages from fsys.
func NewFSSource(fsys fs.FS) *DirSource {
	return &DirSource{fsys: fsys}
}

// Fetch reads the file for rawURL.
func (d *DirSource) Fetch(ctx context.Context, rawURL string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Page{}, fmt.Errorf("%w: %v", highlight.ErrInvalid, err)
	}

	name := strings.TrimPrefix(path.Clean("/"+u.Path), "/")
	candidates := []string{"index.html"}
	if name != "" {
		candidates = []string{name, name + ".html", path.Join(name, "index.html")}
	}

	for _, c := range candidates {
		if !fs.ValidPath(c) {
			continue
		}
		info, err := fs.Stat(d.fsys, c)
		if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
			continue
		}
		if err != nil {
			return Page{}, fmt.Errorf("stat %s: %w", filepath.FromSlash(c), err)
		}
		body, err := fs.ReadFile(d.fsys, c)
		if err != nil {
			return Page{}, fmt.Errorf("read %s: %w", filepath.FromSlash(c), err)
		}
		return newPage(rawURL, body), nil
	}
	return Page{}, fmt.Errorf("page %s: %w", u.Path, highlight.ErrNotFound)
}
