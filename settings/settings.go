// Package settings loads the user's settings.yaml: matching presets,
// alias pairs, ecosystem rule overrides, score weights, and enrichment
// providers, cache root and TTL. Missing file means defaults.
package settings

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/sbomtools/sbomdiff/common"
	"github.com/sbomtools/sbomdiff/diffing"
	"github.com/sbomtools/sbomdiff/enrichment"
	"github.com/sbomtools/sbomdiff/matching"
)

var Global *Settings

type Settings struct {
	Matching   MatchingSection   `yaml:"matching"`
	Scoring    ScoringSection    `yaml:"scoring"`
	Enrichment EnrichmentSection `yaml:"enrichment"`
}

type MatchingSection struct {
	Preset  string              `yaml:"preset"`
	Aliases []AliasEntry        `yaml:"aliases"`
	Rules   []string            `yaml:"rules"`
	Lsh     LshSection          `yaml:"lsh"`
	Ecosystems map[string]RuleSection `yaml:"ecosystems"`
}

type AliasEntry struct {
	Canonical string   `yaml:"canonical"`
	Aliases   []string `yaml:"aliases"`
}

type LshSection struct {
	NumHashes       int `yaml:"num_hashes"`
	Bands           int `yaml:"bands"`
	RowsPerBand     int `yaml:"rows_per_band"`
	ShingleSize     int `yaml:"shingle_size"`
	DirectScanLimit int `yaml:"direct_scan_limit"`
}

type RuleSection struct {
	StripPrefixes      []string `yaml:"strip_prefixes"`
	StripSuffixes      []string `yaml:"strip_suffixes"`
	CollapseSeparators bool     `yaml:"collapse_separators"`
}

type ScoringSection struct {
	Components   float64 `yaml:"components"`
	Dependencies float64 `yaml:"dependencies"`
	Vulns        float64 `yaml:"vulnerabilities"`
	Licenses     float64 `yaml:"licenses"`
	CostProfile  string  `yaml:"cost_profile"`
}

type EnrichmentSection struct {
	Providers  []string `yaml:"providers"`
	CacheRoot  string   `yaml:"cache_root"`
	TtlHours   int      `yaml:"ttl_hours"`
}

func settingsLocation() string {
	return filepath.Join(common.Home(), "settings.yaml")
}

// SummonSettings loads and caches the global settings document.
func SummonSettings() (*Settings, error) {
	if Global != nil {
		return Global, nil
	}
	result := &Settings{}
	data, err := os.ReadFile(settingsLocation())
	if err == nil {
		if err := yaml.Unmarshal(data, result); err != nil {
			return nil, err
		}
		common.Debug("settings loaded from %q", settingsLocation())
	}
	Global = result
	return Global, nil
}

func (it *Settings) Preset() matching.Preset {
	if preset, err := matching.ParsePreset(it.Matching.Preset); err == nil {
		return preset
	}
	return matching.PresetBalanced
}

func (it *Settings) AliasPairs() [][2]string {
	pairs := make([][2]string, 0, len(it.Matching.Aliases))
	for _, entry := range it.Matching.Aliases {
		for _, alias := range entry.Aliases {
			pairs = append(pairs, [2]string{entry.Canonical, alias})
		}
	}
	return pairs
}

func (it *Settings) EcosystemRules() map[string]matching.EcosystemRule {
	if len(it.Matching.Ecosystems) == 0 {
		return nil
	}
	rules := make(map[string]matching.EcosystemRule, len(it.Matching.Ecosystems))
	for name, section := range it.Matching.Ecosystems {
		rules[name] = matching.EcosystemRule{
			StripPrefixes:      section.StripPrefixes,
			StripSuffixes:      section.StripSuffixes,
			CollapseSeparators: section.CollapseSeparators,
		}
	}
	return rules
}

func (it *Settings) Lsh() matching.LshConfig {
	cfg := matching.DefaultLshConfig()
	section := it.Matching.Lsh
	if section.NumHashes > 0 {
		cfg.NumHashes = section.NumHashes
	}
	if section.Bands > 0 {
		cfg.Bands = section.Bands
	}
	if section.RowsPerBand > 0 {
		cfg.RowsPerBand = section.RowsPerBand
	}
	if section.ShingleSize > 0 {
		cfg.ShingleSize = section.ShingleSize
	}
	if section.DirectScanLimit > 0 {
		cfg.DirectScanLimit = section.DirectScanLimit
	}
	return cfg
}

func (it *Settings) Weights() diffing.ScoreWeights {
	section := it.Scoring
	if section.Components == 0 && section.Dependencies == 0 && section.Vulns == 0 && section.Licenses == 0 {
		return diffing.DefaultScoreWeights()
	}
	return diffing.ScoreWeights{
		Components:   section.Components,
		Dependencies: section.Dependencies,
		Vulns:        section.Vulns,
		Licenses:     section.Licenses,
	}
}

func (it *Settings) Costs() diffing.CostModel {
	switch it.Scoring.CostProfile {
	case "security":
		return diffing.SecurityFocusedCostModel()
	case "compliance":
		return diffing.ComplianceFocusedCostModel()
	default:
		return diffing.DefaultCostModel()
	}
}

// DiffConfig assembles the full engine configuration from the settings
// document plus command-line overrides.
func (it *Settings) DiffConfig(preset string, graphDiff, explain bool) (diffing.DiffConfig, error) {
	cfg := diffing.DefaultDiffConfig()
	cfg.Preset = it.Preset()
	if len(preset) > 0 {
		parsed, err := matching.ParsePreset(preset)
		if err != nil {
			return cfg, err
		}
		cfg.Preset = parsed
	}
	cfg.GraphDiff = graphDiff
	cfg.ExplainMatches = explain
	cfg.AliasPairs = it.AliasPairs()
	cfg.Rules = it.Matching.Rules
	cfg.EcosystemRules = it.EcosystemRules()
	cfg.Lsh = it.Lsh()
	cfg.Weights = it.Weights()
	cfg.Costs = it.Costs()
	return cfg, nil
}

func (it *Settings) EnrichmentConfig(offline bool) enrichment.Config {
	cfg := enrichment.DefaultConfig()
	if len(it.Enrichment.Providers) > 0 {
		cfg.Providers = it.Enrichment.Providers
	}
	if len(it.Enrichment.CacheRoot) > 0 {
		cfg.CacheRoot = common.ExpandPath(it.Enrichment.CacheRoot)
	}
	if it.Enrichment.TtlHours > 0 {
		cfg.Ttl = time.Duration(it.Enrichment.TtlHours) * time.Hour
	}
	cfg.Offline = offline
	return cfg
}
