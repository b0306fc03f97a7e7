package webtemplate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/itease/webtpl/pkg/blocktpl"
)

// File is a page template loaded from disk together with the resources whose
// lifetime is bound to it. A File is not safe for concurrent use.
type File struct {
	path     string
	root     *blocktpl.Block
	cacheDir string
	cached   string // last cache file written
	logger   *slog.Logger
}

type Option func(*File)

// WithCacheDir sets the directory CacheFile writes into.
func WithCacheDir(dir string) Option {
	return func(f *File) { f.cacheDir = dir }
}

func WithLogger(logger *slog.Logger) Option {
	return func(f *File) { f.logger = logger }
}

// DefaultCacheDir is used when no cache directory is configured.
func DefaultCacheDir() string {
	return filepath.Join(os.TempDir(), "webtpl-cache")
}

// New wraps an already parsed tree.
func New(path string, root *blocktpl.Block, opts ...Option) *File {
	f := &File{path: path, root: root, cacheDir: DefaultCacheDir(), logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Open parses the template at path.
func Open(path string, opts ...Option) (*File, error) {
	root, err := parseFile(path)
	if err != nil {
		return nil, err
	}
	return New(path, root, opts...), nil
}

func (f *File) Path() string { return f.path }

// Template returns the root block of the page.
func (f *File) Template() *blocktpl.Block { return f.root }

// Apply fills the page from a data document.
func (f *File) Apply(d Data) error {
	if err := d.ApplyTo(f.root); err != nil {
		return fmt.Errorf("%s: %w", f.path, err)
	}
	return nil
}

func (f *File) SetVar(name, value string) { f.root.SetVar(name, value) }

func (f *File) GetVar(name string) string { return f.root.GetVar(name) }

// Block resolves a block path below the page root. A missing block yields a
// new detached block of that name, which callers may fill and Attach.
func (f *File) Block(blockPath string) *blocktpl.Block {
	if b := f.root.Find(blockPath); b != nil {
		return b
	}
	return blocktpl.NewBlock(path.Base(blockPath))
}

func (f *File) Enable(segment string)  { f.root.EnableSegment(segment) }
func (f *File) Disable(segment string) { f.root.DisableSegment(segment) }

func (f *File) AddBlock(name string) (*blocktpl.Block, error)    { return f.root.AddBlock(name) }
func (f *File) InsertBlock(name string) (*blocktpl.Block, error) { return f.root.InsertBlock(name) }

// Render renders the page with an empty scope.
func (f *File) Render() (string, error) {
	var buf bytes.Buffer
	if err := f.RenderTo(&buf, nil); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderTo renders the page against scope into w.
func (f *File) RenderTo(w io.Writer, scope blocktpl.Scope) error {
	return f.root.Render(w, scope)
}

// CacheFile renders the page into the cache directory under name and returns
// the URL path it is served at. A previous cache file of this page is
// removed when the name changes.
func (f *File) CacheFile(name string) (string, error) {
	if err := checkCacheName(name); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := f.root.Render(&buf, nil); err != nil {
		return "", err
	}
	dst := filepath.Join(f.cacheDir, name)
	if err := writeAtomic(&buf, dst, 0o644); err != nil {
		return "", fmt.Errorf("writing cache file: %w", err)
	}
	if f.cached != "" && f.cached != dst {
		f.removeCached()
	}
	f.cached = dst
	f.logger.Debug("wrote cache file", "template", f.path, "file", dst)
	return CachePrefix + name, nil
}

// CacheFileRandom is CacheFile with a random name between prefix and suffix.
func (f *File) CacheFileRandom(prefix, suffix string) (string, error) {
	name, err := randomName(prefix, suffix)
	if err != nil {
		return "", err
	}
	return f.CacheFile(name)
}

// CachedPath returns the file system path of the current cache file, if any.
func (f *File) CachedPath() string { return f.cached }

// Close releases the cache file.
func (f *File) Close() error {
	if f.cached == "" {
		return nil
	}
	err := os.Remove(f.cached)
	f.cached = ""
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing cache file: %w", err)
	}
	return nil
}

func (f *File) removeCached() {
	if !fileExists(f.cached) {
		return
	}
	if err := os.Remove(f.cached); err != nil {
		f.logger.Warn("removing stale cache file", "file", f.cached, "error", err)
	}
}
