package matching

import "fmt"

// Preset picks the base acceptance threshold.
type Preset string

const (
	PresetStrict     Preset = "strict"
	PresetBalanced   Preset = "balanced"
	PresetPermissive Preset = "permissive"
)

var presetThresholds = map[Preset]float64{
	PresetStrict:     0.95,
	PresetBalanced:   0.82,
	PresetPermissive: 0.70,
}

func ParsePreset(label string) (Preset, error) {
	candidate := Preset(label)
	if _, ok := presetThresholds[candidate]; !ok {
		return "", fmt.Errorf("unknown matching preset %q (strict, balanced, permissive)", label)
	}
	return candidate, nil
}

// LshConfig exposes the candidate-index parameters. NumHashes must equal
// Bands times RowsPerBand.
type LshConfig struct {
	NumHashes   int
	Bands       int
	RowsPerBand int
	ShingleSize int
	// DirectScanLimit skips the index entirely for small inputs: when
	// len(a)+len(b) stays at or below it, all pairs are scored.
	DirectScanLimit int
}

// DefaultLshConfig is tuned so the band collision curve inflects near
// the balanced preset threshold.
func DefaultLshConfig() LshConfig {
	return LshConfig{
		NumHashes:       128,
		Bands:           32,
		RowsPerBand:     4,
		ShingleSize:     3,
		DirectScanLimit: 2048,
	}
}

func (it LshConfig) validate() error {
	if it.Bands*it.RowsPerBand != it.NumHashes {
		return fmt.Errorf("lsh bands (%d) times rows (%d) must equal signature width (%d)", it.Bands, it.RowsPerBand, it.NumHashes)
	}
	if it.ShingleSize < 1 {
		return fmt.Errorf("lsh shingle size must be positive, got %d", it.ShingleSize)
	}
	return nil
}

// MatchConfig configures one matching engine instance.
type MatchConfig struct {
	Preset Preset
	// AliasPairs extend the built-in alias table; each pair is symmetric.
	AliasPairs [][2]string
	// Rules are user-supplied matcher rules in the textual rule language.
	Rules []string
	// EcosystemRules override or extend the built-in normalization rules.
	EcosystemRules map[string]EcosystemRule
	Lsh            LshConfig
	// ExplainMatches attaches explanation records to emitted pairs.
	// Computing them never changes the matching outcome.
	ExplainMatches bool
	// ParallelResidual is the residual component count beyond which
	// fuzzy scoring fans out to worker shards.
	ParallelResidual int
	// AdaptiveMinSamples degrades the percentile step to the base
	// threshold when fewer raw scores were observed.
	AdaptiveMinSamples int
}

func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		Preset:             PresetBalanced,
		Lsh:                DefaultLshConfig(),
		ParallelResidual:   50,
		AdaptiveMinSamples: 20,
	}
}

func (it MatchConfig) baseThreshold() float64 {
	if threshold, ok := presetThresholds[it.Preset]; ok {
		return threshold
	}
	return presetThresholds[PresetBalanced]
}
