package matching

import (
	"context"
	"sort"

	"github.com/dchest/siphash"

	"github.com/sbomtools/sbomdiff/anywork"
	"github.com/sbomtools/sbomdiff/common"
	"github.com/sbomtools/sbomdiff/model"
)

// Pair is one emitted match. Each component appears in at most one pair.
type Pair struct {
	A           *model.Component
	B           *model.Component
	Score       float64
	Tier        Tier
	Explanation *Explanation
}

// MatchingSet is the deterministic outcome of one Match invocation.
type MatchingSet struct {
	Pairs      []Pair
	UnmatchedA []*model.Component
	UnmatchedB []*model.Component
	// Threshold is the active (possibly adapted) tier-4 threshold.
	Threshold float64
}

// Engine scores component pairs through the resolution tiers and picks
// a maximum-weight matching greedily. All state is read-only after
// construction and safe to share across goroutines.
type Engine struct {
	cfg        MatchConfig
	aliases    *AliasTable
	normalizer *Normalizer
	rules      *compiledRules
}

func NewEngine(cfg MatchConfig) (*Engine, error) {
	if cfg.Lsh.NumHashes == 0 {
		cfg.Lsh = DefaultLshConfig()
	}
	if err := cfg.Lsh.validate(); err != nil {
		return nil, &MatchingError{Kind: KindInvalidRule, Message: err.Error()}
	}
	if cfg.ParallelResidual == 0 {
		cfg.ParallelResidual = 50
	}
	if cfg.AdaptiveMinSamples == 0 {
		cfg.AdaptiveMinSamples = 20
	}
	rules, err := compileRules(cfg.Rules)
	if err != nil {
		return nil, err
	}
	aliases := NewAliasTable(append(append([][2]string{}, cfg.AliasPairs...), rules.aliasPairs...))
	return &Engine{
		cfg:        cfg,
		aliases:    aliases,
		normalizer: NewNormalizer(rules.mergeInto(cfg.EcosystemRules)),
		rules:      rules,
	}, nil
}

type scoredPair struct {
	a, b  int
	score float64
	tier  Tier
}

// MatchComponents is the one-shot entry point: compile the config, run
// one matching, throw the engine away.
func MatchComponents(ctx context.Context, left, right []*model.Component, cfg MatchConfig) (*MatchingSet, error) {
	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	return engine.Match(ctx, left, right)
}

// Match aligns the two component sets. An empty side yields an empty
// matching; the matcher never fails on document data.
func (it *Engine) Match(ctx context.Context, left, right []*model.Component) (*MatchingSet, error) {
	stopwatch := common.Stopwatch("matching %d x %d components", len(left), len(right))
	defer stopwatch.Debug()

	if len(left) == 0 || len(right) == 0 {
		return &MatchingSet{
			UnmatchedA: sortedByIdentity(left),
			UnmatchedB: sortedByIdentity(right),
			Threshold:  it.cfg.baseThreshold(),
		}, nil
	}

	namesLeft := it.normalizedNames(left)
	namesRight := it.normalizedNames(right)

	candidates := it.candidatePairs(left, right, namesLeft, namesRight)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scored := it.scoreCandidates(left, right, namesLeft, namesRight, candidates)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	threshold := it.adaptiveThreshold(scored)
	accepted := make([]scoredPair, 0, len(scored))
	for _, candidate := range scored {
		switch {
		case candidate.tier == TierFuzzy && candidate.score >= threshold:
			accepted = append(accepted, candidate)
		case candidate.tier != TierFuzzy && candidate.tier != TierNone && candidate.score >= it.cfg.baseThreshold():
			accepted = append(accepted, candidate)
		}
	}

	return it.assign(left, right, namesLeft, namesRight, accepted, threshold), nil
}

func (it *Engine) normalizedNames(components []*model.Component) []string {
	names := make([]string, len(components))
	for at, component := range components {
		names[at] = it.normalizer.NormalizeComponent(component)
	}
	return names
}

type candidate struct {
	a, b int
}

// candidatePairs is all-pairs for small inputs; beyond the direct-scan
// limit an LSH index over the right side prunes the search.
func (it *Engine) candidatePairs(left, right []*model.Component, namesLeft, namesRight []string) []candidate {
	if len(left)+len(right) <= it.cfg.Lsh.DirectScanLimit {
		result := make([]candidate, 0, len(left)*len(right))
		for a := range left {
			for b := range right {
				result = append(result, candidate{a: a, b: b})
			}
		}
		return result
	}

	common.Debug("building lsh index over %d components (%d bands x %d rows)",
		len(right), it.cfg.Lsh.Bands, it.cfg.Lsh.RowsPerBand)
	index := NewIndex(it.cfg.Lsh)
	for b, name := range namesRight {
		index.Add(b, name)
	}
	result := make([]candidate, 0, len(left)*4)
	for a, name := range namesLeft {
		for _, b := range index.Candidates(name) {
			result = append(result, candidate{a: a, b: b})
		}
	}
	return result
}

// scoreCandidates fans out to worker shards once the left side exceeds
// the parallel residual limit. Shards are keyed by identity hash so the
// partition is deterministic; the merge re-sorts with the sequential
// sort key, so the outcome is identical either way.
func (it *Engine) scoreCandidates(left, right []*model.Component, namesLeft, namesRight []string, candidates []candidate) []scoredPair {
	if len(left) <= it.cfg.ParallelResidual {
		return it.scoreShard(left, right, namesLeft, namesRight, candidates)
	}

	shardCount := int(anywork.Scale())
	if shardCount < 2 {
		shardCount = 2
	}
	shards := make([][]candidate, shardCount)
	for _, entry := range candidates {
		shard := int(siphash.Hash(shingleKeyLeft, shingleKeyRight, []byte(left[entry.a].Id.Key())) % uint64(shardCount))
		shards[shard] = append(shards[shard], entry)
	}

	results := make([][]scoredPair, shardCount)
	for at := range shards {
		shard := at
		anywork.Backlog(func() {
			results[shard] = it.scoreShard(left, right, namesLeft, namesRight, shards[shard])
		})
	}
	if err := anywork.Sync(); err != nil {
		common.Error("matching shards", err)
	}

	merged := make([]scoredPair, 0, len(candidates))
	for _, part := range results {
		merged = append(merged, part...)
	}
	return merged
}

func (it *Engine) scoreShard(left, right []*model.Component, namesLeft, namesRight []string, candidates []candidate) []scoredPair {
	result := make([]scoredPair, 0, len(candidates))
	for _, entry := range candidates {
		score, tier := it.scorePair(left[entry.a], right[entry.b], namesLeft[entry.a], namesRight[entry.b])
		if tier == TierNone {
			continue
		}
		result = append(result, scoredPair{a: entry.a, b: entry.b, score: score, tier: tier})
	}
	return result
}

// scorePair walks the tiers; the first matching tier wins.
func (it *Engine) scorePair(a, b *model.Component, nameA, nameB string) (float64, Tier) {
	if it.rules.never[pairKey(a.Id.Name, b.Id.Name)] {
		return 0.0, TierNone
	}
	if it.rules.always[pairKey(a.Id.Name, b.Id.Name)] {
		return 1.0, TierRule
	}
	if len(a.Purl) > 0 && len(b.Purl) > 0 && a.Purl == b.Purl {
		return 1.0, TierPurl
	}
	if it.aliases.Matches(a.Id.Name, b.Id.Name) {
		return 0.95, TierAlias
	}
	if a.Id.Ecosystem == b.Id.Ecosystem && len(nameA) > 0 && nameA == nameB {
		return 0.90, TierEcosystem
	}
	score := it.fuzzyScore(a, b, nameA, nameB, nil)
	if score <= 0 {
		return 0.0, TierNone
	}
	return score, TierFuzzy
}

func (it *Engine) fuzzyScore(a, b *model.Component, nameA, nameB string, sub *SubScores) float64 {
	jaro := JaroWinkler(nameA, nameB)
	longest := max(len(nameA), len(nameB))
	editScore := 0.0
	if longest > 0 {
		editScore = 1.0 - float64(Levenshtein(nameA, nameB))/float64(longest)
	}
	phonetic := 0.0
	if code := Soundex(nameA); len(code) > 0 && code == Soundex(nameB) {
		phonetic = 1.0
	}
	affinity := VersionAffinity(a.Id, b.Id)

	score := 0.55*jaro + 0.25*editScore + 0.10*phonetic + 0.10*affinity

	ecosystemsAgree := a.Id.Ecosystem == b.Id.Ecosystem || a.Id.Ecosystem.IsUnknown() || b.Id.Ecosystem.IsUnknown()
	typesAgree := a.Type == b.Type || len(a.Type) == 0 || len(b.Type) == 0
	penalized := !(ecosystemsAgree && typesAgree)
	if penalized {
		score *= 0.7
	}

	if sub != nil {
		sub.JaroWinkler = jaro
		sub.Levenshtein = editScore
		sub.Phonetic = phonetic
		sub.VersionAffinity = affinity
	}
	return score
}

// adaptiveThreshold clamps the preset base with the 75th percentile of
// raw fuzzy scores: strong candidate sets reject implausible matches,
// weak distributions fall back to the base. Small samples skip the
// percentile step entirely.
func (it *Engine) adaptiveThreshold(scored []scoredPair) float64 {
	base := it.cfg.baseThreshold()
	raw := make([]float64, 0, len(scored))
	for _, entry := range scored {
		if entry.tier == TierFuzzy {
			raw = append(raw, entry.score)
		}
	}
	if len(raw) < it.cfg.AdaptiveMinSamples {
		return base
	}
	sort.Float64s(raw)
	p75 := raw[(len(raw)*3)/4]
	active := p75 - 0.05
	if active < base {
		return base
	}
	common.Debug("adaptive threshold raised to %.3f (base %.3f, p75 %.3f, %d samples)", active, base, p75, len(raw))
	return active
}

// assign sorts by (score desc, a.id, b.id) and greedily accepts pairs
// whose endpoints are both free. Deterministic regardless of shard
// count.
func (it *Engine) assign(left, right []*model.Component, namesLeft, namesRight []string, accepted []scoredPair, threshold float64) *MatchingSet {
	sort.Slice(accepted, func(one, two int) bool {
		if accepted[one].score != accepted[two].score {
			return accepted[one].score > accepted[two].score
		}
		keyOneA := left[accepted[one].a].Id.Key()
		keyTwoA := left[accepted[two].a].Id.Key()
		if keyOneA != keyTwoA {
			return keyOneA < keyTwoA
		}
		return right[accepted[one].b].Id.Key() < right[accepted[two].b].Id.Key()
	})

	takenA := make([]bool, len(left))
	takenB := make([]bool, len(right))
	result := &MatchingSet{Threshold: threshold}
	for _, entry := range accepted {
		if takenA[entry.a] || takenB[entry.b] {
			continue
		}
		takenA[entry.a] = true
		takenB[entry.b] = true
		pair := Pair{
			A:     left[entry.a],
			B:     right[entry.b],
			Score: entry.score,
			Tier:  entry.tier,
		}
		if it.cfg.ExplainMatches {
			pair.Explanation = it.explain(entry, left[entry.a], right[entry.b], namesLeft[entry.a], namesRight[entry.b], threshold)
		}
		result.Pairs = append(result.Pairs, pair)
	}
	for at, component := range left {
		if !takenA[at] {
			result.UnmatchedA = append(result.UnmatchedA, component)
		}
	}
	for at, component := range right {
		if !takenB[at] {
			result.UnmatchedB = append(result.UnmatchedB, component)
		}
	}
	result.UnmatchedA = sortedByIdentity(result.UnmatchedA)
	result.UnmatchedB = sortedByIdentity(result.UnmatchedB)
	return result
}

func (it *Engine) explain(entry scoredPair, a, b *model.Component, nameA, nameB string, threshold float64) *Explanation {
	explanation := &Explanation{Tier: entry.tier, Threshold: threshold}
	switch entry.tier {
	case TierPurl:
		explanation.Fields = []string{"purl"}
	case TierAlias, TierEcosystem, TierRule:
		explanation.Fields = []string{"name"}
	case TierFuzzy:
		explanation.Fields = []string{"name", "version"}
		sub := &SubScores{}
		it.fuzzyScore(a, b, nameA, nameB, sub)
		explanation.Sub = sub
		ecosystemsAgree := a.Id.Ecosystem == b.Id.Ecosystem || a.Id.Ecosystem.IsUnknown() || b.Id.Ecosystem.IsUnknown()
		typesAgree := a.Type == b.Type || len(a.Type) == 0 || len(b.Type) == 0
		explanation.CrossEcosystemPenalty = !(ecosystemsAgree && typesAgree)
	}
	return explanation
}

func sortedByIdentity(components []*model.Component) []*model.Component {
	result := append([]*model.Component{}, components...)
	sort.Slice(result, func(one, two int) bool {
		return result[one].Id.Less(result[two].Id)
	})
	return result
}
