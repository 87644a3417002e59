package diffing

import (
	"context"
	"fmt"
	"testing"

	"github.com/sbomtools/sbomdiff/matching"
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

func document(name string, components ...*model.Component) *model.NormalizedSbom {
	sbom := model.NewNormalizedSbom(model.DocumentMeta{Name: name})
	for _, component := range components {
		if err := sbom.AddComponent(component); err != nil {
			panic(err)
		}
	}
	sbom.RecomputeContentHash()
	return sbom
}

func mustDiff(t *testing.T, oldSbom, newSbom *model.NormalizedSbom, cfg DiffConfig) *DiffResult {
	t.Helper()
	result, err := Diff(context.Background(), oldSbom, newSbom, cfg)
	if err != nil {
		t.Fatalf("diff failed: %v", err)
	}
	return result
}

func TestDiffOfIdenticalDocumentIsEmpty(t *testing.T) {
	sbom := document("app", npmComponent("lodash", "4.17.21"), npmComponent("express", "4.18.0"))
	result := mustDiff(t, sbom, sbom, DefaultDiffConfig())

	if !result.Empty() {
		t.Errorf("diff(s, s) must be empty")
	}
	if result.Score != 100.0 {
		t.Errorf("identical documents score 100, got %.1f", result.Score)
	}
	summary := result.Summary()
	if summary.Unchanged != 2 || summary.Total != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestFastPathOnEqualContentHash(t *testing.T) {
	one := document("app", npmComponent("lodash", "4.17.21"))
	two := document("app", npmComponent("lodash", "4.17.21"))
	if one.ContentHash != two.ContentHash {
		t.Fatalf("fixture hashes should agree")
	}
	result := mustDiff(t, one, two, DefaultDiffConfig())
	if !result.Empty() || result.Score != 100.0 {
		t.Errorf("equal hashes must short-circuit to the empty result")
	}
}

// Scenario 1: lodash 4.17.20 -> 4.17.21 is one modified component, no
// license or vulnerability changes, score below 100.
func TestVersionBumpIsModification(t *testing.T) {
	oldSbom := document("app", npmComponent("lodash", "4.17.20"))
	newSbom := document("app", npmComponent("lodash", "4.17.21"))
	result := mustDiff(t, oldSbom, newSbom, DefaultDiffConfig())

	summary := result.Summary()
	if summary.Modified != 1 || summary.Added != 0 || summary.Removed != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.LicenseChanges != 0 || summary.VulnsIntroduced != 0 || summary.VulnsResolved != 0 {
		t.Errorf("no license or vulnerability changes expected: %+v", summary)
	}
	if result.Score >= 100.0 {
		t.Errorf("score must drop below 100, got %.1f", result.Score)
	}

	var versionChange *FieldChange
	for _, change := range result.Components {
		for at, field := range change.Fields {
			if field.Field == "version" {
				versionChange = &change.Fields[at]
			}
		}
	}
	if versionChange == nil || versionChange.Old != "4.17.20" || versionChange.New != "4.17.21" {
		t.Errorf("version field change missing or wrong: %+v", versionChange)
	}
}

// Scenario 2: a component missing from the new document is one removal.
func TestRemovalIsCounted(t *testing.T) {
	oldSbom := document("app", npmComponent("body-parser", "1.20.2"), npmComponent("express", "4.18.0"))
	newSbom := document("app", npmComponent("express", "4.18.0"))
	result := mustDiff(t, oldSbom, newSbom, DefaultDiffConfig())

	summary := result.Summary()
	if summary.Removed != 1 {
		t.Errorf("summary.removed = %d, want 1", summary.Removed)
	}
	if summary.Added != 0 || summary.Modified != 0 || summary.Unchanged != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

// Scenario 3: CVE-2024-29041 against express 4.18.0 with affected range
// "< 4.19.2" disappears after upgrading to 4.19.2: ResolvedByUpgrade.
func TestResolvedByUpgrade(t *testing.T) {
	vulnerable := npmComponent("express", "4.18.0")
	vulnerable.AddVuln(model.Vulnerability{
		Id:            "CVE-2024-29041",
		Severity:      model.SeverityHigh,
		AffectedRange: "< 4.19.2",
		Source:        model.SourceInBand,
	})
	oldSbom := document("app", vulnerable)
	newSbom := document("app", npmComponent("express", "4.19.2"))

	result := mustDiff(t, oldSbom, newSbom, DefaultDiffConfig())
	if len(result.Vulns) != 1 {
		t.Fatalf("expected one vulnerability transition, got %d", len(result.Vulns))
	}
	change := result.Vulns[0]
	if change.VulnId != "CVE-2024-29041" || change.Transition != TransitionResolvedByUpgrade {
		t.Errorf("transition = %+v", change)
	}
	if result.Summary().VulnsResolved != 1 {
		t.Errorf("resolved count missing")
	}
}

func TestNewlyIntroducedOnDowngrade(t *testing.T) {
	oldSbom := document("app", npmComponent("express", "4.19.2"))
	vulnerable := npmComponent("express", "4.18.0")
	vulnerable.AddVuln(model.Vulnerability{
		Id:            "CVE-2024-29041",
		Severity:      model.SeverityHigh,
		AffectedRange: "< 4.19.2",
		Source:        model.SourceInBand,
	})
	newSbom := document("app", vulnerable)

	result := mustDiff(t, oldSbom, newSbom, DefaultDiffConfig())
	if len(result.Vulns) != 1 || result.Vulns[0].Transition != TransitionNewlyIntroduced {
		t.Errorf("downgrade must report newly-introduced, got %+v", result.Vulns)
	}
}

func TestPersistingVulnerability(t *testing.T) {
	build := func(version string) *model.NormalizedSbom {
		component := npmComponent("express", version)
		component.AddVuln(model.Vulnerability{
			Id:       "CVE-2024-29041",
			Severity: model.SeverityHigh,
			Source:   model.SourceInBand,
		})
		return document("app", component)
	}
	result := mustDiff(t, build("4.18.0"), build("4.18.1"), DefaultDiffConfig())
	if len(result.Vulns) != 1 || result.Vulns[0].Transition != TransitionPersisting {
		t.Errorf("same advisory on both sides must persist, got %+v", result.Vulns)
	}
}

// Scenario 4: identical component sets with a reversed edge report one
// edge removal and one addition while reachability stays unchanged.
func TestReversedEdgeGraphDiff(t *testing.T) {
	buildWithEdge := func(from, to string) *model.NormalizedSbom {
		a := npmComponent("a", "1.0.0")
		b := npmComponent("b", "1.0.0")
		sbom := model.NewNormalizedSbom(model.DocumentMeta{Name: "app"})
		sbom.AddComponent(a)
		sbom.AddComponent(b)
		sbom.AddEdge(model.DependencyEdge{
			From:  model.NewCanonicalId(model.EcosystemNpm, "", from, "1.0.0"),
			To:    model.NewCanonicalId(model.EcosystemNpm, "", to, "1.0.0"),
			Scope: model.ScopeRuntime,
		})
		sbom.RecomputeContentHash()
		return sbom
	}

	cfg := DefaultDiffConfig()
	result := mustDiff(t, buildWithEdge("a", "b"), buildWithEdge("b", "a"), cfg)

	summary := result.Summary()
	if summary.Added != 0 || summary.Removed != 0 || summary.Modified != 0 {
		t.Errorf("components must be unchanged: %+v", summary)
	}
	if summary.EdgesAdded != 1 || summary.EdgesRemoved != 1 {
		t.Errorf("expected one edge added and one removed: %+v", summary)
	}
	if result.Graph == nil {
		t.Fatalf("graph delta missing")
	}
	if len(result.Graph.NewlyReachable) != 0 || len(result.Graph.LostReachability) != 0 {
		t.Errorf("reachability must not change: %+v", result.Graph)
	}
}

func TestGraphDiffDisabled(t *testing.T) {
	cfg := DefaultDiffConfig()
	cfg.GraphDiff = false
	oldSbom := document("app", npmComponent("a", "1.0.0"))
	newSbom := document("app", npmComponent("a", "2.0.0"))
	result := mustDiff(t, oldSbom, newSbom, cfg)
	if result.Graph != nil || len(result.Dependencies) != 0 {
		t.Errorf("graph phase must be skipped when disabled")
	}
}

// Partition property: added, removed, modified, and unchanged together
// cover the id universe exactly once under exact matching.
func TestComponentChangesPartitionTheUniverse(t *testing.T) {
	oldSbom := document("app",
		npmComponent("a", "1.0.0"),
		npmComponent("b", "1.0.0"),
		npmComponent("c", "1.0.0"))
	newSbom := document("app",
		npmComponent("a", "1.0.0"),
		npmComponent("b", "2.0.0"),
		npmComponent("d", "1.0.0"))

	cfg := DefaultDiffConfig()
	cfg.Preset = matching.PresetStrict
	result := mustDiff(t, oldSbom, newSbom, cfg)

	seen := make(map[string]int)
	for _, change := range result.Components {
		if change.Old != nil {
			seen[change.Old.Id.VersionlessKey()] += 1
		}
		if change.New != nil && (change.Old == nil || change.New.Id.VersionlessKey() != change.Old.Id.VersionlessKey()) {
			seen[change.New.Id.VersionlessKey()] += 1
		}
	}
	for _, name := range []string{"a", "b", "c", "d"} {
		key := model.NewCanonicalId(model.EcosystemNpm, "", name, "").VersionlessKey()
		if seen[key] == 0 {
			t.Errorf("component %q missing from the partition", name)
		}
	}
	total := 0
	for _, count := range seen {
		total += count
	}
	if total != 4+1 {
		// b appears once as a pair under fuzzy version alignment or
		// twice (removed+added) under strict; both cover the universe.
		if total != 4 {
			t.Errorf("unexpected universe coverage %d: %v", total, seen)
		}
	}
}

// Symmetry: total change counts agree between diff(a,b) and diff(b,a).
func TestDiffTotalsAreSymmetric(t *testing.T) {
	one := document("app",
		npmComponent("a", "1.0.0"),
		npmComponent("b", "1.0.0"),
		npmComponent("c", "3.1.4"))
	two := document("app",
		npmComponent("a", "1.0.1"),
		npmComponent("d", "1.0.0"))

	forward := mustDiff(t, one, two, DefaultDiffConfig()).Summary()
	backward := mustDiff(t, two, one, DefaultDiffConfig()).Summary()
	if forward.Total != backward.Total {
		t.Errorf("totals must be symmetric: %d vs %d", forward.Total, backward.Total)
	}
	if forward.Added != backward.Removed || forward.Removed != backward.Added {
		t.Errorf("added/removed must mirror: %+v vs %+v", forward, backward)
	}
}

func TestEmptySidesProduceAllAddedOrRemoved(t *testing.T) {
	empty := document("empty")
	full := document("app", npmComponent("a", "1.0.0"), npmComponent("b", "1.0.0"))

	added := mustDiff(t, empty, full, DefaultDiffConfig()).Summary()
	if added.Added != 2 || added.Removed != 0 {
		t.Errorf("empty old side must yield all-added: %+v", added)
	}
	removed := mustDiff(t, full, empty, DefaultDiffConfig()).Summary()
	if removed.Removed != 2 || removed.Added != 0 {
		t.Errorf("empty new side must yield all-removed: %+v", removed)
	}
}

func TestLicenseDiff(t *testing.T) {
	oldComponent := npmComponent("left-pad", "1.3.0")
	oldComponent.AddLicense("MIT")
	newComponent := npmComponent("left-pad", "1.3.0")
	newComponent.AddLicense("Apache-2.0")

	result := mustDiff(t, document("app", oldComponent), document("app", newComponent), DefaultDiffConfig())
	if len(result.Licenses) != 1 {
		t.Fatalf("expected one license change, got %d", len(result.Licenses))
	}
	change := result.Licenses[0]
	if len(change.Added) != 1 || change.Added[0] != "Apache-2.0" {
		t.Errorf("added licenses = %v", change.Added)
	}
	if len(change.Removed) != 1 || change.Removed[0] != "MIT" {
		t.Errorf("removed licenses = %v", change.Removed)
	}

	delta := result.LicenseFrequencyDelta()
	if delta["Apache-2.0"] != 1 || delta["MIT"] != -1 {
		t.Errorf("document-level frequency delta = %v", delta)
	}
}

func TestDiffObservesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	oldSbom := document("app", npmComponent("a", "1.0.0"))
	newSbom := document("app", npmComponent("b", "1.0.0"))
	_, err := Diff(ctx, oldSbom, newSbom, DefaultDiffConfig())
	if err == nil {
		t.Fatalf("cancelled context must fail the diff")
	}
	diffErr, ok := err.(*DiffError)
	if !ok || diffErr.Kind != KindCancelled {
		t.Errorf("expected cancelled kind, got %v", err)
	}
}

func TestInvalidMatcherRuleFailsDiff(t *testing.T) {
	cfg := DefaultDiffConfig()
	cfg.Rules = []string{"bogus verb here"}
	_, err := Diff(context.Background(), document("a"), document("b"), cfg)
	if err == nil {
		t.Fatalf("invalid rule must fail the invocation")
	}
	diffErr, ok := err.(*DiffError)
	if !ok || diffErr.Kind != KindMatcherRule {
		t.Errorf("expected matcher-rule kind, got %v", err)
	}
}

func TestDeterministicResults(t *testing.T) {
	oldSbom := document("app",
		npmComponent("a", "1.0.0"),
		npmComponent("b", "1.0.0"),
		npmComponent("c", "1.0.0"))
	newSbom := document("app",
		npmComponent("a", "1.0.1"),
		npmComponent("b2", "1.0.0"),
		npmComponent("c", "1.0.0"))

	first := mustDiff(t, oldSbom, newSbom, DefaultDiffConfig())
	for round := 0; round < 3; round++ {
		again := mustDiff(t, oldSbom, newSbom, DefaultDiffConfig())
		if len(again.Components) != len(first.Components) {
			t.Fatalf("component change lists differ in length")
		}
		for at := range again.Components {
			if again.Components[at].Kind != first.Components[at].Kind ||
				again.Components[at].Id().Key() != first.Components[at].Id().Key() {
				t.Fatalf("change %d differs across runs", at)
			}
		}
		if again.Score != first.Score {
			t.Fatalf("score differs across runs: %f vs %f", again.Score, first.Score)
		}
	}
}

func TestScoreWeightsNormalize(t *testing.T) {
	weights := ScoreWeights{Components: 5, Dependencies: 2, Vulns: 2, Licenses: 1}.normalized()
	total := weights.Components + weights.Dependencies + weights.Vulns + weights.Licenses
	if total < 0.999 || total > 1.001 {
		t.Errorf("normalized weights must sum to 1, got %f", total)
	}
	if weights.Components != 0.5 {
		t.Errorf("components weight = %f, want 0.5", weights.Components)
	}
}

func TestCostModelPricesVersionChanges(t *testing.T) {
	costs := DefaultCostModel()
	tests := []struct {
		name     string
		old, new string
		expected int
	}{
		{"patch", "1.0.0", "1.0.1", costs.VersionPatch},
		{"minor", "1.0.0", "1.1.0", costs.VersionMinor},
		{"major", "1.0.0", "2.0.0", costs.VersionMajor},
		{"identical", "1.0.0", "1.0.0", 0},
		{"unparseable", "abc", "def", costs.VersionMinor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := versionChangeCost(costs, tt.old, tt.new); got != tt.expected {
				t.Errorf("versionChangeCost(%q, %q) = %d, want %d", tt.old, tt.new, got, tt.expected)
			}
		})
	}
}
