package config

import (
	"strings"

	"gopkg.in/ini.v1"

	"github.com/matzehuels/wheelhouse/pkg/errors"
)

// ParseINI parses the morgan.ini layout. Inline comments are not stripped,
// so requirement markers containing ";" survive.
func ParseINI(path string, data []byte) (*Config, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:        true,
		AllowPythonMultilineValues: true,
	}, data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
	}

	cfg := newConfig(path)
	for _, sec := range f.Sections() {
		name := sec.Name()
		switch {
		case strings.HasPrefix(name, "env."):
			values := make(map[string]string, len(sec.Keys()))
			for _, k := range sec.Keys() {
				values[k.Name()] = k.String()
			}
			cfg.Environments = append(cfg.Environments, Environment{Name: strings.TrimPrefix(name, "env."), Values: values})
		case name == "requirements":
			for _, k := range sec.Keys() {
				cfg.addRequirement(k.Name(), strings.Split(k.Value(), "\n"))
			}
		case name == "mirror":
			if err := iniMirror(sec, &cfg.Mirror); err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s [mirror]", path)
			}
		case name == "cache":
			if err := iniCache(sec, &cfg.Cache); err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s [cache]", path)
			}
		}
	}
	return cfg, nil
}

func iniMirror(sec *ini.Section, m *MirrorOptions) error {
	var err error
	if k := sec.Key("index_url"); k.String() != "" {
		m.IndexURL = k.String()
	}
	if sec.HasKey("all_versions") {
		if m.AllVersions, err = sec.Key("all_versions").Bool(); err != nil {
			return err
		}
	}
	if sec.HasKey("best_wheel_per_environment") {
		if m.BestWheelPerEnvironment, err = sec.Key("best_wheel_per_environment").Bool(); err != nil {
			return err
		}
	}
	if sec.HasKey("package_types") {
		m.PackageTypes = splitList(sec.Key("package_types").String())
	}
	if sec.HasKey("concurrency") {
		if m.Concurrency, err = sec.Key("concurrency").Int(); err != nil {
			return err
		}
	}
	if sec.HasKey("file_concurrency") {
		if m.FileConcurrency, err = sec.Key("file_concurrency").Int(); err != nil {
			return err
		}
	}
	if sec.HasKey("timeout") {
		if m.Timeout, err = sec.Key("timeout").Duration(); err != nil {
			return err
		}
	}
	return nil
}

func iniCache(sec *ini.Section, c *CacheOptions) error {
	if k := sec.Key("backend"); k.String() != "" {
		c.Backend = strings.ToLower(k.String())
	}
	c.Dir = sec.Key("dir").String()
	c.RedisURL = sec.Key("redis_url").String()
	if sec.HasKey("ttl") {
		ttl, err := sec.Key("ttl").Duration()
		if err != nil {
			return err
		}
		c.TTL = ttl
	}
	return nil
}
