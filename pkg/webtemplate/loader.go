package webtemplate

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/itease/webtpl/pkg/blocktpl"
	"golang.org/x/sync/singleflight"
)

// Mode selects whether a Loader keeps parsed templates between loads.
type Mode int

const (
	// Production parses each template once and hands out copies.
	Production Mode = iota
	// Development reparses on every load so edits show up immediately.
	Development
)

func (m Mode) String() string {
	if m == Development {
		return "development"
	}
	return "production"
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "production", "prod":
		return Production, nil
	case "development", "dev":
		return Development, nil
	}
	return Production, fmt.Errorf("unknown mode %q", s)
}

// Loader opens page templates below Dir. It is safe for concurrent use and
// every returned tree is independent of the others.
type Loader struct {
	Dir      string
	Mode     Mode
	CacheDir string
	Logger   *slog.Logger

	mu    sync.Mutex
	trees map[string]*blocktpl.Block
	group singleflight.Group
}

func NewLoader(dir string, mode Mode) *Loader {
	return &Loader{Dir: dir, Mode: mode, CacheDir: DefaultCacheDir(), Logger: slog.Default()}
}

// resolve maps a template name to a file below Dir.
func (l *Loader) resolve(name string) (string, error) {
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("template %q is outside the template directory", name)
	}
	abs, err := filepath.Abs(filepath.Join(l.Dir, name))
	if err != nil {
		return "", err
	}
	return abs, nil
}

// Load returns a private copy of the named template tree.
func (l *Loader) Load(name string) (*blocktpl.Block, error) {
	path, err := l.resolve(name)
	if err != nil {
		return nil, err
	}
	if l.Mode == Development {
		return parseFile(path)
	}

	l.mu.Lock()
	tree, ok := l.trees[path]
	l.mu.Unlock()
	if ok {
		return tree.Copy(), nil
	}

	v, err, _ := l.group.Do(path, func() (any, error) {
		tree, err := parseFile(path)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		if l.trees == nil {
			l.trees = make(map[string]*blocktpl.Block)
		}
		l.trees[path] = tree
		l.mu.Unlock()
		l.logger().Debug("parsed template", "path", path)
		return tree, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*blocktpl.Block).Copy(), nil
}

// Open loads the named template as a File.
func (l *Loader) Open(name string) (*File, error) {
	root, err := l.Load(name)
	if err != nil {
		return nil, err
	}
	path, _ := l.resolve(name)
	return New(path, root, WithCacheDir(l.CacheDir), WithLogger(l.logger())), nil
}

// Forget drops every cached tree.
func (l *Loader) Forget() {
	l.mu.Lock()
	l.trees = nil
	l.mu.Unlock()
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func parseFile(path string) (*blocktpl.Block, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening template: %w", err)
	}
	defer r.Close()
	root, err := blocktpl.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return root, nil
}
