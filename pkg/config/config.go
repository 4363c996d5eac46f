// Package config loads mirror configuration files.
//
// A configuration names the target environments, the top-level requirements
// and optional mirror and cache settings. Three formats are accepted, chosen
// by file extension:
//
//   - .ini in the morgan.ini layout:
//
//     [env.linux310]
//     python_version = 3.10
//     sys_platform = linux
//     platform_machine = x86_64
//
//     [requirements]
//     requests = >=2.28
//     numpy =
//     >=1.26
//     <1.26,>=1.24
//
//   - .toml with the same tables; a requirement value is a string or an
//     array of strings.
//   - .yaml / .yml with the same mappings.
//
// Environments and requirements keep their declaration order in every
// format. Each line of a multi-line requirement value forms one independent
// requirement.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/matzehuels/wheelhouse/pkg/env"
	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
	"github.com/matzehuels/wheelhouse/pkg/selector"
)

// Candidates are the file names Find looks for, in order.
var Candidates = []string{"wheelhouse.toml", "wheelhouse.yaml", "wheelhouse.yml", "wheelhouse.ini", "morgan.ini"}

// Cache backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Config is a loaded configuration file.
type Config struct {
	Path         string
	Environments []Environment
	Requirements []Requirement
	Mirror       MirrorOptions
	Cache        CacheOptions
}

// Environment is one named [env.<name>] block.
type Environment struct {
	Name   string
	Values map[string]string
}

// Requirement is one package entry with its specifier lines.
type Requirement struct {
	Name       string
	Specifiers []string
}

// MirrorOptions tunes a mirror run.
type MirrorOptions struct {
	IndexURL                string
	AllVersions             bool
	BestWheelPerEnvironment bool
	PackageTypes            []string
	Concurrency             int
	FileConcurrency         int
	Timeout                 time.Duration
}

// CacheOptions selects the listing cache.
type CacheOptions struct {
	Backend  string
	Dir      string
	RedisURL string
	TTL      time.Duration
}

// Defaults returns the options used when a file sets none.
func Defaults() (MirrorOptions, CacheOptions) {
	return MirrorOptions{
			Concurrency:     1,
			FileConcurrency: 1,
			Timeout:         5 * time.Minute,
		}, CacheOptions{
			Backend: BackendMemory,
			TTL:     10 * time.Minute,
		}
}

func newConfig(path string) *Config {
	m, c := Defaults()
	return &Config{Path: path, Mirror: m, Cache: c}
}

// Load reads path, picking the format from its extension.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}
	var cfg *Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".ini", ".cfg":
		cfg, err = ParseINI(path, data)
	case ".toml":
		cfg, err = ParseTOML(path, data)
	case ".yaml", ".yml":
		cfg, err = ParseYAML(path, data)
	default:
		return nil, errors.New(errors.ErrCodeInvalidConfig, "config %s: unsupported format %q", path, ext)
	}
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Find returns the first candidate file present in dir.
func Find(dir string) (string, error) {
	for _, name := range Candidates {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", errors.New(errors.ErrCodeInvalidConfig, "no configuration file in %s (looked for %s)", dir, strings.Join(Candidates, ", "))
}

// Validate checks the options and that at least one environment exists.
func (c *Config) Validate() error {
	if len(c.Environments) == 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "config %s: no [env.<name>] sections", c.Path)
	}
	if c.Mirror.Concurrency < 0 || c.Mirror.FileConcurrency < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "config %s: concurrency must not be negative", c.Path)
	}
	if c.Mirror.Timeout < 0 || c.Cache.TTL < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "config %s: durations must not be negative", c.Path)
	}
	if c.Mirror.IndexURL != "" {
		if err := errors.ValidateURL(c.Mirror.IndexURL); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "config %s: index_url", c.Path)
		}
	}
	switch c.Cache.Backend {
	case BackendMemory, BackendFile, BackendNone:
	case BackendRedis:
		if c.Cache.RedisURL == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "config %s: redis cache needs redis_url", c.Path)
		}
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "config %s: unknown cache backend %q", c.Path, c.Cache.Backend)
	}
	if _, err := selector.ExtensionsFor(c.Mirror.PackageTypes); err != nil {
		return err
	}
	return nil
}

// EnvironmentSet builds the ordered environment set.
func (c *Config) EnvironmentSet() (*env.Set, error) {
	envs := make([]env.Environment, 0, len(c.Environments))
	for _, e := range c.Environments {
		built, err := env.New(e.Name, e.Values)
		if err != nil {
			return nil, err
		}
		envs = append(envs, built)
	}
	return env.NewSet(envs...)
}

// ParsedRequirements returns one requirement per specifier line, in
// declaration order. A package with no lines yields one unconstrained
// requirement.
func (c *Config) ParsedRequirements() ([]requirement.Requirement, error) {
	var out []requirement.Requirement
	for _, r := range c.Requirements {
		lines := r.Specifiers
		if len(lines) == 0 {
			lines = []string{""}
		}
		for _, line := range lines {
			req, err := requirement.Parse(r.Name + line)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "config %s: requirement %s", c.Path, r.Name)
			}
			out = append(out, req)
		}
	}
	return out, nil
}

// SelectorOptions converts the mirror options for the file selector.
func (c *Config) SelectorOptions() (selector.Options, error) {
	exts, err := selector.ExtensionsFor(c.Mirror.PackageTypes)
	if err != nil {
		return selector.Options{}, err
	}
	return selector.Options{
		AllVersions:             c.Mirror.AllVersions,
		BestWheelPerEnvironment: c.Mirror.BestWheelPerEnvironment,
		Extensions:              exts,
	}, nil
}

func (c *Config) addRequirement(name string, lines []string) {
	var specs []string
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			specs = append(specs, l)
		}
	}
	c.Requirements = append(c.Requirements, Requirement{Name: strings.TrimSpace(name), Specifiers: specs})
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
