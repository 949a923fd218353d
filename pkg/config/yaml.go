package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/psaab/frpd/pkg/frp"
)

// yamlRule is the on-disk form of a rule in a YAML rule file.
type yamlRule struct {
	ID          int32  `yaml:"id"`
	MatchType   string `yaml:"match-type"`
	Match       string `yaml:"match"`
	Offset      uint8  `yaml:"offset"`
	Action      string `yaml:"action"`
	LinkTo      *int32 `yaml:"link-to"`
	DMAChannels uint32 `yaml:"dma-channels"`
}

// LoadRulesYAML reads a YAML rule file.
func LoadRulesYAML(path string) ([]frp.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read rule file: %w", err)
	}
	return ParseRulesYAML(data)
}

// ParseRulesYAML converts a YAML document with a top-level "rules" list.
// Missing match-type and action default to normal and route.
func ParseRulesYAML(data []byte) ([]frp.Rule, error) {
	var raw struct {
		Rules []yamlRule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("could not parse yaml: %w", err)
	}

	rules := make([]frp.Rule, 0, len(raw.Rules))
	for i, yr := range raw.Rules {
		r, err := yr.rule()
		if err != nil {
			return nil, fmt.Errorf("rule #%d (id %d): %w", i+1, yr.ID, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func (yr yamlRule) rule() (frp.Rule, error) {
	r := frp.Rule{ID: yr.ID, Offset: yr.Offset, DMAChannels: yr.DMAChannels}
	if yr.ID < 0 {
		return r, fmt.Errorf("invalid id %d", yr.ID)
	}

	var err error
	if yr.MatchType != "" {
		if r.Kind, err = frp.ParseMatchKind(yr.MatchType); err != nil {
			return r, err
		}
	}
	if yr.Action != "" {
		if r.Mode, err = frp.ParseFilterMode(yr.Action); err != nil {
			return r, err
		}
	}
	if yr.Match == "" {
		return r, fmt.Errorf("missing match")
	}
	if r.Match, err = ParseMatch(r.Kind, yr.Match); err != nil {
		return r, err
	}

	if yr.LinkTo != nil {
		if !r.Mode.IsLink() {
			return r, fmt.Errorf("link-to requires a link action, have %s", r.Mode)
		}
		r.LinkID = *yr.LinkTo
	} else if r.Mode.IsLink() {
		return r, fmt.Errorf("action %s requires link-to", r.Mode)
	}
	return r, nil
}
