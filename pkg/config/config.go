package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	v "github.com/itease/webtpl/pkg/validator"

	"gopkg.in/yaml.v3"
)

// Route binds a URL pattern to a page template, an optional controller
// script and an optional data document.
type Route struct {
	Path     string            `yaml:"path"`
	Template string            `yaml:"template"`
	Script   string            `yaml:"script,omitempty"`
	Data     string            `yaml:"data,omitempty"`
	Vars     map[string]string `yaml:"vars,omitempty"`
}

func (r Route) Validate() error {
	return v.All(
		v.NotEmpty(r.Path, "route path"),
		v.HasPrefix(r.Path, "/", "route path"),
		v.NotEmpty(r.Template, fmt.Sprintf("template of route %q", r.Path)),
		v.MapDict(r.Vars, func(key string, value string) error {
			return v.All(
				v.Identifier(key, fmt.Sprintf("variable of route %q", r.Path)),
				v.HasNoTags(value, fmt.Sprintf("variable %q of route %q", key, r.Path)),
			)
		}),
	)
}

type Config struct {
	Listen      string        `yaml:"listen"`
	Mode        string        `yaml:"mode,omitempty"`
	TemplateDir string        `yaml:"template_dir"`
	ScriptDir   string        `yaml:"script_dir,omitempty"`
	DataDir     string        `yaml:"data_dir,omitempty"`
	CacheDir    string        `yaml:"cache_dir,omitempty"`
	CacheTTL    time.Duration `yaml:"cache_ttl,omitempty"`
	Routes      []Route       `yaml:"routes"`
}

// DefaultCacheTTL is how long a cache file written by a page script stays
// served when cache_ttl is not configured.
const DefaultCacheTTL = 10 * time.Minute

var modes = []string{"", "production", "prod", "development", "dev"}

func (c *Config) Validate() error {
	paths := make([]string, len(c.Routes))
	for i, r := range c.Routes {
		paths[i] = r.Path
	}
	return v.All(
		v.NotEmpty(c.Listen, "listen"),
		v.MatchesAllowed(c.Mode, modes, "mode"),
		v.NotEmpty(c.TemplateDir, "template_dir"),
		nonNegative(c.CacheTTL, "cache_ttl"),
		v.Each(c.Routes),
		v.NoDuplicates(paths, "route paths"),
	)
}

// Decode reads a configuration document. Unknown fields are rejected.
func Decode(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Load reads the configuration at path. Relative directories are resolved
// against the directory holding the file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()
	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Resolve(filepath.Dir(path))
	return cfg, nil
}

// Resolve makes every configured directory absolute relative to base.
func (c *Config) Resolve(base string) {
	for _, dir := range []*string{&c.TemplateDir, &c.ScriptDir, &c.DataDir, &c.CacheDir} {
		if *dir != "" && !filepath.IsAbs(*dir) {
			*dir = filepath.Join(base, *dir)
		}
	}
	if c.ScriptDir == "" {
		c.ScriptDir = c.TemplateDir
	}
	if c.DataDir == "" {
		c.DataDir = c.TemplateDir
	}
}

func nonNegative(d time.Duration, description string) error {
	if d < 0 {
		return fmt.Errorf("%s must not be negative, got %s", description, d)
	}
	return nil
}
