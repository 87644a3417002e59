package matching

import (
	"context"
	"fmt"
	"testing"

	"github.com/sbomtools/sbomdiff/model"
)

func npmComponent(name, version string) *model.Component {
	id := model.NewCanonicalId(model.EcosystemNpm, "", name, version)
	return &model.Component{
		Id:          id,
		Type:        model.TypeLibrary,
		DisplayName: name,
		Purl:        fmt.Sprintf("pkg:npm/%s@%s", id.Name, version),
	}
}

func bareComponent(name, version string) *model.Component {
	return &model.Component{
		Id:          model.NewCanonicalId(model.EcosystemUnknown, "", name, version),
		Type:        model.TypeLibrary,
		DisplayName: name,
	}
}

func mustEngine(t *testing.T, cfg MatchConfig) *Engine {
	t.Helper()
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	return engine
}

func mustMatch(t *testing.T, engine *Engine, left, right []*model.Component) *MatchingSet {
	t.Helper()
	result, err := engine.Match(context.Background(), left, right)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	return result
}

func TestEmptySidesYieldEmptyMatching(t *testing.T) {
	engine := mustEngine(t, DefaultMatchConfig())
	result := mustMatch(t, engine, nil, []*model.Component{npmComponent("lodash", "1.0.0")})
	if len(result.Pairs) != 0 {
		t.Errorf("empty left side must produce no pairs")
	}
	if len(result.UnmatchedB) != 1 {
		t.Errorf("right side must come back unmatched")
	}
}

func TestTierOnePurlEquality(t *testing.T) {
	engine := mustEngine(t, DefaultMatchConfig())
	result := mustMatch(t, engine,
		[]*model.Component{npmComponent("lodash", "4.17.21")},
		[]*model.Component{npmComponent("lodash", "4.17.21")})
	if len(result.Pairs) != 1 {
		t.Fatalf("expected one pair, got %d", len(result.Pairs))
	}
	pair := result.Pairs[0]
	if pair.Tier != TierPurl || pair.Score != 1.0 {
		t.Errorf("equal purls must match at tier 1 with score 1.0, got %s %.2f", pair.Tier, pair.Score)
	}
}

func TestTierTwoAlias(t *testing.T) {
	engine := mustEngine(t, DefaultMatchConfig())
	result := mustMatch(t, engine,
		[]*model.Component{bareComponent("pillow", "9.0.0")},
		[]*model.Component{bareComponent("PIL", "9.0.0")})
	if len(result.Pairs) != 1 {
		t.Fatalf("expected alias pair, got %d pairs", len(result.Pairs))
	}
	if result.Pairs[0].Tier != TierAlias || result.Pairs[0].Score != 0.95 {
		t.Errorf("alias tier expected, got %s %.2f", result.Pairs[0].Tier, result.Pairs[0].Score)
	}
}

// Scenario: "lodash.js" vs "lodash" in the npm ecosystem under the
// balanced preset match at tier 3 with score 0.90 via the npm suffix
// rule.
func TestTierThreeEcosystemNormalization(t *testing.T) {
	left := bareComponent("lodash.js", "4.17.21")
	left.Id = model.NewCanonicalId(model.EcosystemNpm, "", "lodash.js", "4.17.21")
	right := bareComponent("lodash", "4.17.21")
	right.Id = model.NewCanonicalId(model.EcosystemNpm, "", "lodash", "4.17.21")

	engine := mustEngine(t, DefaultMatchConfig())
	result := mustMatch(t, engine, []*model.Component{left}, []*model.Component{right})
	if len(result.Pairs) != 1 {
		t.Fatalf("expected normalized-name pair, got %d pairs", len(result.Pairs))
	}
	if result.Pairs[0].Tier != TierEcosystem || result.Pairs[0].Score != 0.90 {
		t.Errorf("tier 3 with 0.90 expected, got %s %.2f", result.Pairs[0].Tier, result.Pairs[0].Score)
	}
}

// Single-component documents with no PURL and matching ecosystem-
// normalized names still align at tier 3.
func TestBareNameMatchesAtTierThree(t *testing.T) {
	engine := mustEngine(t, DefaultMatchConfig())
	result := mustMatch(t, engine,
		[]*model.Component{bareComponent("Requests", "2.28.0")},
		[]*model.Component{bareComponent("requests", "2.28.0")})
	if len(result.Pairs) != 1 || result.Pairs[0].Tier != TierEcosystem {
		t.Fatalf("bare names with equal normalization must pair at tier 3")
	}
}

// The strict preset only admits scores at or above 0.95, so tier-3
// pairs (0.90) are rejected and only exact PURLs survive.
func TestStrictPresetRejectsTierThree(t *testing.T) {
	cfg := DefaultMatchConfig()
	cfg.Preset = PresetStrict
	engine := mustEngine(t, cfg)

	left := bareComponent("lodash.js", "4.17.21")
	left.Id = model.NewCanonicalId(model.EcosystemNpm, "", "lodash.js", "4.17.21")
	right := bareComponent("lodash", "4.17.21")
	right.Id = model.NewCanonicalId(model.EcosystemNpm, "", "lodash", "4.17.21")

	result := mustMatch(t, engine, []*model.Component{left}, []*model.Component{right})
	if len(result.Pairs) != 0 {
		t.Errorf("strict preset must reject tier-3 pairs, got %d", len(result.Pairs))
	}

	exact := mustMatch(t, engine,
		[]*model.Component{npmComponent("lodash", "4.17.21")},
		[]*model.Component{npmComponent("lodash", "4.17.21")})
	if len(exact.Pairs) != 1 {
		t.Errorf("strict preset must keep exact purl pairs")
	}
}

func TestFuzzyTierMatchesTyposquats(t *testing.T) {
	cfg := DefaultMatchConfig()
	cfg.Preset = PresetPermissive
	engine := mustEngine(t, cfg)

	result := mustMatch(t, engine,
		[]*model.Component{bareComponent("requests", "2.28.0")},
		[]*model.Component{bareComponent("reqeusts", "2.28.0")})
	if len(result.Pairs) != 1 {
		t.Fatalf("permissive preset should recover the rename")
	}
	pair := result.Pairs[0]
	if pair.Tier != TierFuzzy {
		t.Errorf("expected fuzzy tier, got %s", pair.Tier)
	}
	if pair.Score < 0.70 || pair.Score >= 1.0 {
		t.Errorf("fuzzy score %.3f out of expected range", pair.Score)
	}
}

func TestCrossEcosystemPenalty(t *testing.T) {
	engine := mustEngine(t, DefaultMatchConfig())
	left := bareComponent("requests", "2.28.0")
	left.Id = model.NewCanonicalId(model.EcosystemPypi, "", "requests", "2.28.0")
	right := bareComponent("requests", "2.28.0")
	right.Id = model.NewCanonicalId(model.EcosystemNpm, "", "requests", "2.28.0")

	score, tier := engine.scorePair(left, right,
		engine.normalizer.NormalizeComponent(left),
		engine.normalizer.NormalizeComponent(right))
	if tier != TierFuzzy {
		t.Fatalf("different ecosystems cannot pass tier 3, got %s", tier)
	}
	// Identical names would score ~1.0 fuzzily; the 0.7 penalty caps it.
	if score > 0.75 {
		t.Errorf("cross-ecosystem penalty missing: score %.3f", score)
	}
}

func TestMatchingIsDeterministic(t *testing.T) {
	left := make([]*model.Component, 0, 80)
	right := make([]*model.Component, 0, 80)
	for at := 0; at < 80; at++ {
		left = append(left, bareComponent(fmt.Sprintf("package-%03d", at), "1.0.0"))
		right = append(right, bareComponent(fmt.Sprintf("package-%03dx", at), "1.0.0"))
	}
	cfg := DefaultMatchConfig()
	cfg.Preset = PresetPermissive
	engine := mustEngine(t, cfg)

	first := mustMatch(t, engine, left, right)
	for round := 0; round < 5; round++ {
		again := mustMatch(t, engine, left, right)
		if len(again.Pairs) != len(first.Pairs) {
			t.Fatalf("pair count varies across runs: %d vs %d", len(again.Pairs), len(first.Pairs))
		}
		for at := range again.Pairs {
			if again.Pairs[at].A != first.Pairs[at].A || again.Pairs[at].B != first.Pairs[at].B {
				t.Fatalf("pair %d differs across runs", at)
			}
			if again.Pairs[at].Score != first.Pairs[at].Score {
				t.Fatalf("score %d differs across runs", at)
			}
		}
	}
}

// 80 left components exceed the default parallel residual limit, so the
// first engine runs the sharded path; the second engine raises the limit
// and matches the same 80 sequentially. Outcomes must agree.
func TestParallelShardsMatchSequentialOutcome(t *testing.T) {
	build := func(count int) ([]*model.Component, []*model.Component) {
		left := make([]*model.Component, 0, count)
		right := make([]*model.Component, 0, count)
		for at := 0; at < count; at++ {
			left = append(left, bareComponent(fmt.Sprintf("lib-%04d", at), "1.0.0"))
			right = append(right, bareComponent(fmt.Sprintf("lib-%04dy", at), "1.0.0"))
		}
		return left, right
	}

	cfg := DefaultMatchConfig()
	cfg.Preset = PresetPermissive
	parallel := mustEngine(t, cfg)

	sequentialCfg := cfg
	sequentialCfg.ParallelResidual = 100000
	sequential := mustEngine(t, sequentialCfg)

	left, right := build(80)
	one := mustMatch(t, parallel, left, right)
	two := mustMatch(t, sequential, left, right)
	if len(one.Pairs) != len(two.Pairs) {
		t.Fatalf("parallel and sequential disagree: %d vs %d pairs", len(one.Pairs), len(two.Pairs))
	}
	for at := range one.Pairs {
		if one.Pairs[at].A.Id.Key() != two.Pairs[at].A.Id.Key() ||
			one.Pairs[at].B.Id.Key() != two.Pairs[at].B.Id.Key() {
			t.Fatalf("pair %d differs between parallel and sequential runs", at)
		}
	}
}

func TestGreedyAssignmentIsAMatching(t *testing.T) {
	cfg := DefaultMatchConfig()
	cfg.Preset = PresetPermissive
	engine := mustEngine(t, cfg)

	left := []*model.Component{
		npmComponent("lodash", "1.0.0"),
		npmComponent("lodash2", "1.0.0"),
	}
	right := []*model.Component{npmComponent("lodash", "1.0.0")}

	result := mustMatch(t, engine, left, right)
	if len(result.Pairs) != 1 {
		t.Fatalf("one right component supports at most one pair, got %d", len(result.Pairs))
	}
	if result.Pairs[0].A.Id.Name != "lodash" {
		t.Errorf("exact name must win the greedy assignment")
	}
	if len(result.UnmatchedA) != 1 || result.UnmatchedA[0].Id.Name != "lodash2" {
		t.Errorf("loser must come back unmatched")
	}
}

func TestExplanationsDoNotChangeOutcome(t *testing.T) {
	plain := mustEngine(t, DefaultMatchConfig())
	explained := DefaultMatchConfig()
	explained.ExplainMatches = true
	verbose := mustEngine(t, explained)

	left := []*model.Component{npmComponent("lodash", "4.17.20"), bareComponent("reqeusts", "1.0.0")}
	right := []*model.Component{npmComponent("lodash", "4.17.20"), bareComponent("requests", "1.0.0")}

	one := mustMatch(t, plain, left, right)
	two := mustMatch(t, verbose, left, right)
	if len(one.Pairs) != len(two.Pairs) {
		t.Fatalf("explanations changed the outcome: %d vs %d", len(one.Pairs), len(two.Pairs))
	}
	for at := range one.Pairs {
		if one.Pairs[at].Score != two.Pairs[at].Score {
			t.Errorf("score drift with explanations on pair %d", at)
		}
		if two.Pairs[at].Explanation == nil {
			t.Errorf("explanation missing on pair %d", at)
		}
		if one.Pairs[at].Explanation != nil {
			t.Errorf("explanations must stay off unless requested")
		}
	}
	for _, pair := range two.Pairs {
		if pair.Tier == TierFuzzy && pair.Explanation.Sub == nil {
			t.Errorf("fuzzy pairs must expose their sub-scores")
		}
	}
}

func TestUserRules(t *testing.T) {
	cfg := DefaultMatchConfig()
	cfg.Rules = []string{
		"never lodash lodash",
		"always leftpad left-pad-ng",
	}
	engine := mustEngine(t, cfg)

	blocked := mustMatch(t, engine,
		[]*model.Component{npmComponent("lodash", "4.17.21")},
		[]*model.Component{npmComponent("lodash", "4.17.21")})
	if len(blocked.Pairs) != 0 {
		t.Errorf("never rule must forbid the pair")
	}

	forced := mustMatch(t, engine,
		[]*model.Component{bareComponent("leftpad", "1.0.0")},
		[]*model.Component{bareComponent("left-pad-ng", "2.0.0")})
	if len(forced.Pairs) != 1 || forced.Pairs[0].Tier != TierRule {
		t.Errorf("always rule must force the pair")
	}
}

func TestInvalidRuleSurfacesError(t *testing.T) {
	cfg := DefaultMatchConfig()
	cfg.Rules = []string{"teleport lodash underscore"}
	_, err := NewEngine(cfg)
	if err == nil {
		t.Fatalf("unknown rule verb must fail engine construction")
	}
	matchingErr, ok := err.(*MatchingError)
	if !ok || matchingErr.Kind != KindInvalidRule {
		t.Errorf("expected invalid-rule error, got %v", err)
	}
}

func TestAdaptiveThresholdDegradesOnSmallSamples(t *testing.T) {
	engine := mustEngine(t, DefaultMatchConfig())
	scored := []scoredPair{{score: 0.99, tier: TierFuzzy}, {score: 0.98, tier: TierFuzzy}}
	if got := engine.adaptiveThreshold(scored); got != engine.cfg.baseThreshold() {
		t.Errorf("fewer than the minimum samples must keep the base threshold, got %.3f", got)
	}
}

func TestAdaptiveThresholdRisesWithStrongCandidates(t *testing.T) {
	engine := mustEngine(t, DefaultMatchConfig())
	scored := make([]scoredPair, 0, 40)
	for at := 0; at < 40; at++ {
		scored = append(scored, scoredPair{score: 0.97, tier: TierFuzzy})
	}
	got := engine.adaptiveThreshold(scored)
	expected := 0.97 - 0.05
	if got < expected-1e-9 || got > expected+1e-9 {
		t.Errorf("p75 - 0.05 expected (%.3f), got %.3f", expected, got)
	}
}
