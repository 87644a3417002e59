package matching

// Tier identifies which resolution tier produced a pair.
type Tier string

const (
	TierExact     Tier = "exact-id"
	TierPurl      Tier = "purl"
	TierAlias     Tier = "alias"
	TierEcosystem Tier = "ecosystem-normalized"
	TierFuzzy     Tier = "fuzzy"
	TierRule      Tier = "rule"
	TierNone      Tier = "none"
)

// SubScores are the fuzzy components behind a tier-4 score.
type SubScores struct {
	JaroWinkler     float64
	Levenshtein     float64
	Phonetic        float64
	VersionAffinity float64
}

// Explanation records why a pair was emitted. Computing it never
// changes the matching outcome.
type Explanation struct {
	Tier Tier
	// Fields that drove the decision, e.g. "purl", "name", "version".
	Fields []string
	// Sub carries the fuzzy sub-scores for tier-4 pairs.
	Sub *SubScores
	// CrossEcosystemPenalty notes that the 0.7 multiplier applied.
	CrossEcosystemPenalty bool
	// Threshold is the active threshold the score was held against.
	Threshold float64
}
