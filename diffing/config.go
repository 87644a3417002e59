package diffing

import "github.com/sbomtools/sbomdiff/matching"

// ScoreWeights distribute the composite score across dimensions.
// Defaults: components 0.5, dependencies 0.2, vulnerabilities 0.2,
// licenses 0.1.
type ScoreWeights struct {
	Components   float64
	Dependencies float64
	Vulns        float64
	Licenses     float64
}

func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		Components:   0.5,
		Dependencies: 0.2,
		Vulns:        0.2,
		Licenses:     0.1,
	}
}

// CostModel prices individual changes for the semantic cost total.
type CostModel struct {
	ComponentAdded   int
	ComponentRemoved int
	VersionPatch     int
	VersionMinor     int
	VersionMajor     int
	LicenseChanged   int
	SupplierChanged  int
	VulnIntroduced   int
	VulnResolved     int
	DependencyAdded  int
	DependencyRemoved int
	HashMismatch     int
}

func DefaultCostModel() CostModel {
	return CostModel{
		ComponentAdded:    10,
		ComponentRemoved:  10,
		VersionPatch:      2,
		VersionMinor:      4,
		VersionMajor:      7,
		LicenseChanged:    6,
		SupplierChanged:   4,
		VulnIntroduced:    15,
		VulnResolved:      -3,
		DependencyAdded:   5,
		DependencyRemoved: 5,
		HashMismatch:      8,
	}
}

// SecurityFocusedCostModel weights integrity and vulnerability churn up.
func SecurityFocusedCostModel() CostModel {
	model := DefaultCostModel()
	model.VulnIntroduced = 25
	model.VulnResolved = -5
	model.HashMismatch = 15
	model.SupplierChanged = 8
	return model
}

// ComplianceFocusedCostModel weights license and supplier churn up.
func ComplianceFocusedCostModel() CostModel {
	model := DefaultCostModel()
	model.LicenseChanged = 12
	model.SupplierChanged = 8
	return model
}

// DiffConfig carries everything one diff invocation needs.
type DiffConfig struct {
	Preset         matching.Preset
	GraphDiff      bool
	AliasPairs     [][2]string
	Rules          []string
	EcosystemRules map[string]matching.EcosystemRule
	Lsh            matching.LshConfig
	Weights        ScoreWeights
	Costs          CostModel
	ExplainMatches bool
	// MaxGraphNodes caps the structural graph phase; larger graphs fall
	// back to edge-only diff with an annotation on the result.
	MaxGraphNodes int
}

func DefaultDiffConfig() DiffConfig {
	return DiffConfig{
		Preset:        matching.PresetBalanced,
		GraphDiff:     true,
		Lsh:           matching.DefaultLshConfig(),
		Weights:       DefaultScoreWeights(),
		Costs:         DefaultCostModel(),
		MaxGraphNodes: 1 << 20,
	}
}

func (it DiffConfig) matchConfig() matching.MatchConfig {
	cfg := matching.DefaultMatchConfig()
	cfg.Preset = it.Preset
	if len(cfg.Preset) == 0 {
		cfg.Preset = matching.PresetBalanced
	}
	cfg.AliasPairs = it.AliasPairs
	cfg.Rules = it.Rules
	cfg.EcosystemRules = it.EcosystemRules
	if it.Lsh.NumHashes > 0 {
		cfg.Lsh = it.Lsh
	}
	cfg.ExplainMatches = it.ExplainMatches
	return cfg
}

func (it ScoreWeights) normalized() ScoreWeights {
	total := it.Components + it.Dependencies + it.Vulns + it.Licenses
	if total <= 0 {
		return DefaultScoreWeights()
	}
	return ScoreWeights{
		Components:   it.Components / total,
		Dependencies: it.Dependencies / total,
		Vulns:        it.Vulns / total,
		Licenses:     it.Licenses / total,
	}
}
