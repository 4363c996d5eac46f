package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/wheelhouse/pkg/errors"
)

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

type yamlFile struct {
	Mirror       mirrorSection `yaml:"mirror"`
	Cache        cacheSection  `yaml:"cache"`
	Env          yaml.Node     `yaml:"env"`
	Requirements yaml.Node     `yaml:"requirements"`
}

// ParseYAML parses a YAML configuration. The env and requirements mappings
// are walked as nodes so declaration order is kept.
func ParseYAML(path string, data []byte) (*Config, error) {
	var raw yamlFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
	}

	cfg := newConfig(path)
	raw.Mirror.apply(&cfg.Mirror)
	raw.Cache.apply(&cfg.Cache)

	err := eachPair(&raw.Env, func(name string, value *yaml.Node) error {
		values := map[string]string{}
		if err := eachPair(value, func(k string, v *yaml.Node) error {
			if v.Kind != yaml.ScalarNode {
				return fmt.Errorf("env %s: %s must be a scalar", name, k)
			}
			values[k] = v.Value
			return nil
		}); err != nil {
			return err
		}
		cfg.Environments = append(cfg.Environments, Environment{Name: name, Values: values})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
	}

	err = eachPair(&raw.Requirements, func(name string, value *yaml.Node) error {
		var lines []string
		switch value.Kind {
		case yaml.ScalarNode:
			if value.Tag != "!!null" {
				lines = []string{value.Value}
			}
		case yaml.SequenceNode:
			for _, item := range value.Content {
				if item.Kind != yaml.ScalarNode {
					return fmt.Errorf("requirement %s: specifiers must be strings", name)
				}
				lines = append(lines, item.Value)
			}
		default:
			return fmt.Errorf("requirement %s: value must be a string or a list", name)
		}
		cfg.addRequirement(name, lines)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
	}
	return cfg, nil
}

// eachPair visits a mapping node in order. A zero node is an empty mapping.
func eachPair(n *yaml.Node, fn func(key string, value *yaml.Node) error) error {
	if n.Kind == 0 || (n.Kind == yaml.ScalarNode && n.Tag == "!!null") {
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if err := fn(n.Content[i].Value, n.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}
