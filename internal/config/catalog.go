package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/LJTian/HoopsHub/internal/collector"
)

//go:embed sources.yaml
var defaultCatalog []byte

// Link is a stable quick link shown next to the feed.
type Link struct {
	Label string `yaml:"label" json:"label"`
	URL   string `yaml:"url" json:"url"`
}

// Catalog is the static source list plus classifier overrides and UI links.
type Catalog struct {
	Sources        []collector.Source `yaml:"sources"`
	Rules          *collector.Rules   `yaml:"rules"`
	Links          []Link             `yaml:"links"`
	CuratedSources []string           `yaml:"curated_sources"`
}

// LoadCatalog reads path, or the embedded catalog when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", path, err)
		}
		data = b
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if len(c.Sources) == 0 {
		return nil, fmt.Errorf("catalog: no sources")
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Format == "" {
			s.Format = collector.FormatRSS
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate source name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return &c, nil
}

// ClassifierRules returns the default rules with every non-empty catalog list swapped in.
func (c *Catalog) ClassifierRules() collector.Rules {
	rules := collector.DefaultRules()
	if c.Rules == nil {
		return rules
	}
	o := c.Rules
	override := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = src
		}
	}
	override(&rules.Negative, o.Negative)
	override(&rules.Team, o.Team)
	override(&rules.Topic, o.Topic)
	override(&rules.Entities, o.Entities)
	override(&rules.TrustedSources, o.TrustedSources)
	override(&rules.TrustedDomains, o.TrustedDomains)
	rules.MatchLink = rules.MatchLink || o.MatchLink
	return rules
}
