package catalog

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/inful/mdfp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/linkscan/internal/foundation/errors"
	"git.home.luguber.info/inful/linkscan/internal/logfields"
	"git.home.luguber.info/inful/linkscan/internal/model"
)

// FSOptions configures a filesystem catalog.
type FSOptions struct {
	Root        string
	SiteURL     string
	PublicTypes []string
}

// FSCatalog serves documents from a content directory of Markdown and HTML
// files with optional YAML front matter. Markdown is rendered to HTML.
type FSCatalog struct {
	root  string
	site  string
	types []string
	md    goldmark.Markdown

	mu sync.RWMutex
	ix *index
	// public types derived from content when none are configured
	seen []string
}

// NewFS creates a filesystem catalog and loads it once.
func NewFS(ctx context.Context, opts FSOptions) (*FSCatalog, error) {
	if opts.Root == "" {
		return nil, errors.ConfigError("catalog root is required").Build()
	}
	c := &FSCatalog{
		root:  filepath.Clean(opts.Root),
		site:  strings.TrimRight(opts.SiteURL, "/"),
		types: opts.PublicTypes,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		),
		ix: newIndex(nil),
	}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *FSCatalog) SiteURL() string { return c.site }

// Root is the content directory.
func (c *FSCatalog) Root() string { return c.root }

func (c *FSCatalog) PublicTypes(context.Context) ([]string, error) {
	if len(c.types) > 0 {
		return append([]string(nil), c.types...), nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.seen...), nil
}

func (c *FSCatalog) Documents(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ix.documents(q), nil
}

func (c *FSCatalog) Lookup(_ context.Context, rawURL string) (DocID, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.ix.lookup(rawURL)
	return id, ok, nil
}

func (c *FSCatalog) Status(_ context.Context, id DocID) (Status, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ix.status(id)
}

// Reload rescans the content directory and swaps in the new document set.
// Files that fail to parse are skipped with a warning.
func (c *FSCatalog) Reload(ctx context.Context) error {
	var docs []Document
	var seen []string
	err := filepath.WalkDir(c.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if p != c.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !isContentFile(p) {
			return nil
		}
		doc, loadErr := c.load(p, d)
		if loadErr != nil {
			slog.Warn("Skipping unreadable content file", logfields.Path(p), logfields.Error(loadErr))
			return nil
		}
		doc.ID = DocID(len(docs) + 1)
		docs = append(docs, doc)
		seen = appendUnique(seen, doc.Type)
		return nil
	})
	if err != nil {
		return errors.WrapError(err, errors.CategoryCatalog, "failed to load content directory").
			WithContext("root", c.root).Build()
	}

	c.mu.Lock()
	changed := countChanged(c.ix.docs, docs)
	c.ix = newIndex(docs)
	c.seen = orderTypes(seen)
	c.mu.Unlock()

	slog.Info("Content catalog loaded",
		logfields.Path(c.root),
		slog.Int("documents", len(docs)),
		slog.Int("changed", changed))
	return nil
}

func (c *FSCatalog) load(p string, d fs.DirEntry) (Document, error) {
	raw, err := os.ReadFile(filepath.Clean(p))
	if err != nil {
		return Document{}, err
	}
	fmRaw, body, err := splitFrontMatter(raw)
	if err != nil {
		return Document{}, err
	}
	fm, err := parseFrontMatter(fmRaw)
	if err != nil {
		return Document{}, err
	}

	rel, err := filepath.Rel(c.root, p)
	if err != nil {
		return Document{}, err
	}
	rel = filepath.ToSlash(rel)

	content := string(body)
	if isMarkdown(p) {
		var buf bytes.Buffer
		if err := c.md.Convert(body, &buf); err != nil {
			return Document{}, err
		}
		content = buf.String()
	}

	doc := Document{
		Type:        docType(fm.Type, rel),
		Title:       fm.Title,
		Content:     content,
		Permalink:   c.permalink(fm, rel),
		Status:      fm.status(),
		Fingerprint: mdfp.CalculateFingerprintFromParts(strings.TrimRight(fmRaw, "\n"), string(body)),
	}
	if doc.Title == "" {
		doc.Title = strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	}
	if t, ok := fm.date(); ok {
		doc.PublishedAt = t
	} else if info, infoErr := d.Info(); infoErr == nil {
		doc.PublishedAt = info.ModTime()
	}
	return doc, nil
}

// permalink builds site + /dir/slug/. An explicit url in front matter wins.
func (c *FSCatalog) permalink(fm frontMatter, rel string) string {
	if fm.URL != "" {
		if strings.HasPrefix(fm.URL, "http://") || strings.HasPrefix(fm.URL, "https://") {
			return fm.URL
		}
		return c.site + "/" + strings.Trim(fm.URL, "/") + "/"
	}
	dir := path.Dir(rel)
	name := strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	if fm.Slug != "" {
		name = fm.Slug
	}
	var parts []string
	if dir != "." {
		for _, seg := range strings.Split(dir, "/") {
			parts = append(parts, Slugify(seg))
		}
	}
	if name != "index" && name != "_index" {
		parts = append(parts, Slugify(name))
	}
	if len(parts) == 0 {
		return c.site + "/"
	}
	return c.site + "/" + strings.Join(parts, "/") + "/"
}

// docType uses the declared type, else the top-level directory in singular
// form. Files at the root are pages.
func docType(declared, rel string) string {
	if declared != "" {
		return strings.ToLower(declared)
	}
	top, _, found := strings.Cut(rel, "/")
	if !found {
		return model.TypePage
	}
	return strings.TrimSuffix(strings.ToLower(top), "s")
}

// Slugify lowercases s, applies NFC normalization and replaces runs of
// separators with a single dash.
func Slugify(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case r == '.' || r == '_' || r == '-' || unicode.IsSpace(r):
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

func isContentFile(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".md", ".markdown", ".html", ".htm":
		return true
	}
	return false
}

func isMarkdown(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	return ext == ".md" || ext == ".markdown"
}

func countChanged(prev, next []Document) int {
	old := make(map[string]string, len(prev))
	for _, d := range prev {
		old[d.Permalink] = d.Fingerprint
	}
	n := 0
	for _, d := range next {
		if fp, ok := old[d.Permalink]; !ok || fp != d.Fingerprint {
			n++
		}
	}
	return n
}
