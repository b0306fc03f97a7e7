package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/abiiranathan/rex"
	"github.com/itease/webtpl/pkg/blocktpl"
	"github.com/itease/webtpl/pkg/config"
	"github.com/itease/webtpl/pkg/starlark"
	"github.com/itease/webtpl/pkg/webtemplate"
)

// Server serves the configured routes. Each request gets its own copy of the
// route's template, so handlers never share mutable trees.
type Server struct {
	cfg    *config.Config
	loader *webtemplate.Loader
	logger *slog.Logger
	router *rex.Router
	ttl    time.Duration

	mu       sync.Mutex
	expiring map[*webtemplate.File]*time.Timer // pages whose cache file is still served
}

func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mode, err := webtemplate.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	loader := webtemplate.NewLoader(cfg.TemplateDir, mode)
	loader.Logger = logger
	if cfg.CacheDir != "" {
		loader.CacheDir = cfg.CacheDir
	}

	s := &Server{cfg: cfg, loader: loader, logger: logger, router: rex.NewRouter(), ttl: cfg.CacheTTL}
	if s.ttl == 0 {
		s.ttl = config.DefaultCacheTTL
	}
	for _, route := range cfg.Routes {
		s.router.GET(route.Path, s.page(route))
		logger.Debug("registered route", "path", route.Path, "template", route.Template)
	}
	return s, nil
}

// Handler returns the HTTP handler: cache files under /cache/ and the page
// routes everywhere else.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(webtemplate.CachePrefix, http.StripPrefix(webtemplate.CachePrefix, http.FileServer(http.Dir(s.loader.CacheDir))))
	mux.Handle("/", s.router)
	return mux
}

// ListenAndServe serves until ctx is cancelled. Cache files written by page
// scripts are removed on return.
func (s *Server) ListenAndServe(ctx context.Context) error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Warn("removing cache files", "error", err)
		}
	}()
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Listen, "mode", s.loader.Mode)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

var paramPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)(?:\.\.\.)?\}`)

// routeParams lists the wildcard names of a route pattern.
func routeParams(pattern string) []string {
	var names []string
	for _, m := range paramPattern.FindAllStringSubmatch(pattern, -1) {
		names = append(names, m[1])
	}
	return names
}

func (s *Server) page(route config.Route) rex.HandlerFunc {
	params := routeParams(route.Path)
	return func(c *rex.Context) error {
		start := time.Now()
		logger := s.logger.With("route", route.Path, "template", route.Template)

		values := make(map[string]string, len(params))
		for _, name := range params {
			values[name] = c.Param(name)
		}
		html, err := s.renderPage(route, c.Request, values, logger)
		if err != nil {
			logger.Error("rendering page", "error", err)
			return err
		}
		logger.Debug("rendered page", "bytes", len(html), "elapsed", time.Since(start))
		return c.HTML(html)
	}
}

// renderPage loads the route's template, applies its data document, runs its
// controller script and renders the result.
func (s *Server) renderPage(route config.Route, req *http.Request, params map[string]string, logger *slog.Logger) (string, error) {
	f, err := s.loader.Open(route.Template)
	if err != nil {
		return "", err
	}
	defer s.release(f)

	if route.Data != "" {
		d, err := webtemplate.LoadData(filepath.Join(s.cfg.DataDir, route.Data))
		if err != nil {
			return "", err
		}
		if err := f.Apply(d); err != nil {
			return "", err
		}
	}

	scope := make(blocktpl.Scope, len(route.Vars)+len(params))
	for k, v := range route.Vars {
		scope[k] = v
	}
	for k, v := range params {
		scope[k] = v
	}

	if route.Script != "" {
		if err := s.runScript(route, f, req, params, logger); err != nil {
			return "", err
		}
	}

	var buf bytes.Buffer
	if err := f.RenderTo(&buf, scope); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// runScript executes the route's controller script. A script may act at top
// level or define handle(page, request), which is then called.
func (s *Server) runScript(route config.Route, f *webtemplate.File, req *http.Request, params map[string]string, logger *slog.Logger) error {
	path := filepath.Join(s.cfg.ScriptDir, route.Script)
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading script: %w", err)
	}

	request := starlark.ConvertToStarlark(map[string]any{
		"method": req.Method,
		"path":   req.URL.Path,
		"query":  map[string][]string(req.URL.Query()),
		"params": params,
	})
	return starlark.NewEvaluator(logger).RunPage(path, src, starlark.NewPageValue(f.Template(), f), request)
}

// release closes f once its request is done. A page whose script wrote a
// cache file keeps it until the TTL expires so /cache/ can serve it.
func (s *Server) release(f *webtemplate.File) {
	if f.CachedPath() == "" {
		_ = f.Close()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiring == nil {
		s.expiring = make(map[*webtemplate.File]*time.Timer)
	}
	s.expiring[f] = time.AfterFunc(s.ttl, func() { s.expire(f) })
	s.logger.Debug("serving cache file", "file", f.CachedPath(), "ttl", s.ttl)
}

func (s *Server) expire(f *webtemplate.File) {
	s.mu.Lock()
	delete(s.expiring, f)
	s.mu.Unlock()
	if err := f.Close(); err != nil {
		s.logger.Warn("expiring cache file", "error", err)
	}
}

// Close removes every cache file that is still being served.
func (s *Server) Close() error {
	s.mu.Lock()
	pending := s.expiring
	s.expiring = nil
	s.mu.Unlock()

	var errs []error
	for f, timer := range pending {
		// a timer that already fired closes its file itself
		if timer.Stop() {
			errs = append(errs, f.Close())
		}
	}
	return errors.Join(errs...)
}
