package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/wheelhouse/pkg/errors"
)

// duration decodes "30s"-style strings in TOML and YAML.
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

type mirrorSection struct {
	IndexURL                string    `toml:"index_url" yaml:"index_url"`
	AllVersions             *bool     `toml:"all_versions" yaml:"all_versions"`
	BestWheelPerEnvironment *bool     `toml:"best_wheel_per_environment" yaml:"best_wheel_per_environment"`
	PackageTypes            []string  `toml:"package_types" yaml:"package_types"`
	Concurrency             *int      `toml:"concurrency" yaml:"concurrency"`
	FileConcurrency         *int      `toml:"file_concurrency" yaml:"file_concurrency"`
	Timeout                 *duration `toml:"timeout" yaml:"timeout"`
}

type cacheSection struct {
	Backend  string    `toml:"backend" yaml:"backend"`
	Dir      string    `toml:"dir" yaml:"dir"`
	RedisURL string    `toml:"redis_url" yaml:"redis_url"`
	TTL      *duration `toml:"ttl" yaml:"ttl"`
}

func (s mirrorSection) apply(m *MirrorOptions) {
	if s.IndexURL != "" {
		m.IndexURL = s.IndexURL
	}
	if s.AllVersions != nil {
		m.AllVersions = *s.AllVersions
	}
	if s.BestWheelPerEnvironment != nil {
		m.BestWheelPerEnvironment = *s.BestWheelPerEnvironment
	}
	if s.PackageTypes != nil {
		m.PackageTypes = s.PackageTypes
	}
	if s.Concurrency != nil {
		m.Concurrency = *s.Concurrency
	}
	if s.FileConcurrency != nil {
		m.FileConcurrency = *s.FileConcurrency
	}
	if s.Timeout != nil {
		m.Timeout = time.Duration(*s.Timeout)
	}
}

func (s cacheSection) apply(c *CacheOptions) {
	if s.Backend != "" {
		c.Backend = strings.ToLower(s.Backend)
	}
	if s.Dir != "" {
		c.Dir = s.Dir
	}
	if s.RedisURL != "" {
		c.RedisURL = s.RedisURL
	}
	if s.TTL != nil {
		c.TTL = time.Duration(*s.TTL)
	}
}

type tomlFile struct {
	Mirror       mirrorSection                `toml:"mirror"`
	Cache        cacheSection                 `toml:"cache"`
	Env          map[string]map[string]string `toml:"env"`
	Requirements map[string]any               `toml:"requirements"`
}

// ParseTOML parses a TOML configuration. Declaration order is recovered
// from the decoder's key list.
func ParseTOML(path string, data []byte) (*Config, error) {
	var raw tomlFile
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "parse %s: unknown key %s", path, undecoded[0])
	}

	cfg := newConfig(path)
	raw.Mirror.apply(&cfg.Mirror)
	raw.Cache.apply(&cfg.Cache)

	for _, key := range md.Keys() {
		if len(key) != 2 {
			continue
		}
		switch key[0] {
		case "env":
			cfg.Environments = append(cfg.Environments, Environment{Name: key[1], Values: raw.Env[key[1]]})
		case "requirements":
			lines, err := specifierLines(raw.Requirements[key[1]])
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s: requirement %s", path, key[1])
			}
			cfg.addRequirement(key[1], lines)
		}
	}
	return cfg, nil
}

func specifierLines(v any) ([]string, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.Split(v, "\n"), nil
	case []any:
		lines := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("specifier %v is not a string", item)
			}
			lines = append(lines, s)
		}
		return lines, nil
	}
	return nil, fmt.Errorf("value %v is neither a string nor a list of strings", v)
}
