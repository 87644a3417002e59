package diffing

import (
	"context"
	"fmt"

	"github.com/sbomtools/sbomdiff/common"
	"github.com/sbomtools/sbomdiff/matching"
	"github.com/sbomtools/sbomdiff/model"
	"github.com/sbomtools/sbomdiff/set"
)

// Diff compares two normalized SBOMs through the seven phases. The
// cancellation token is observed between phases; on cancellation no
// partial result is published.
func Diff(ctx context.Context, oldSbom, newSbom *model.NormalizedSbom, cfg DiffConfig) (*DiffResult, error) {
	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	return engine.Diff(ctx, oldSbom, newSbom)
}

// Engine holds the compiled matcher so multi-SBOM runs reuse rule
// compilation and the candidate index configuration.
type Engine struct {
	cfg     DiffConfig
	matcher *matching.Engine
}

func NewEngine(cfg DiffConfig) (*Engine, error) {
	if cfg.Weights == (ScoreWeights{}) {
		cfg.Weights = DefaultScoreWeights()
	}
	if cfg.Costs == (CostModel{}) {
		cfg.Costs = DefaultCostModel()
	}
	if cfg.MaxGraphNodes == 0 {
		cfg.MaxGraphNodes = 1 << 20
	}
	matcher, err := matching.NewEngine(cfg.matchConfig())
	if err != nil {
		return nil, &DiffError{Kind: KindMatcherRule, Message: err.Error(), Wrapped: err}
	}
	return &Engine{cfg: cfg, matcher: matcher}, nil
}

func (it *Engine) Diff(ctx context.Context, oldSbom, newSbom *model.NormalizedSbom) (*DiffResult, error) {
	stopwatch := common.Stopwatch("diff %q vs %q", oldSbom.Meta.Name, newSbom.Meta.Name)
	defer stopwatch.Debug()

	result := &DiffResult{
		OldMeta: oldSbom.Meta,
		NewMeta: newSbom.Meta,
		OldHash: oldSbom.ContentHash,
		NewHash: newSbom.ContentHash,
	}

	// Fast path: content-identical documents diff to the empty result.
	if len(oldSbom.ContentHash) > 0 && oldSbom.ContentHash == newSbom.ContentHash {
		for _, component := range oldSbom.SortedComponents() {
			result.Components = append(result.Components, ComponentChange{
				Kind: ChangeUnchanged,
				Old:  component,
				New:  newSbom.Lookup(component.Id),
			})
		}
		result.Score = 100.0
		return result, nil
	}

	pairs, err := it.align(ctx, oldSbom, newSbom, result)
	if err != nil {
		return nil, err
	}
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	it.classifyComponents(pairs, result)
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	if it.cfg.GraphDiff {
		if err := it.diffGraphs(oldSbom, newSbom, pairs, result); err != nil {
			return nil, err
		}
		if err := checkpoint(ctx); err != nil {
			return nil, err
		}
	}

	it.diffLicenses(pairs, result)
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	it.diffVulns(pairs, result)
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	result.sortChanges()
	it.score(oldSbom, newSbom, result)
	return result, nil
}

func checkpoint(ctx context.Context) error {
	if ctx.Err() != nil {
		return cancelled()
	}
	return nil
}

// alignedPair couples the two sides of one matched component.
type alignedPair struct {
	old   *model.Component
	new   *model.Component
	score float64
	tier  matching.Tier
	explanation *matching.Explanation
}

// align runs phase 1 (exact CanonicalId equality consumes both sides
// first) and phase 2 (fuzzy alignment over the residual).
func (it *Engine) align(ctx context.Context, oldSbom, newSbom *model.NormalizedSbom, result *DiffResult) ([]alignedPair, error) {
	pairs := make([]alignedPair, 0, len(oldSbom.Components))
	residualOld := make([]*model.Component, 0)
	matchedNew := make(map[string]bool, len(newSbom.Components))

	for _, oldComponent := range oldSbom.Components {
		if newComponent := newSbom.Lookup(oldComponent.Id); newComponent != nil {
			pairs = append(pairs, alignedPair{
				old:   oldComponent,
				new:   newComponent,
				score: 1.0,
				tier:  matching.TierExact,
			})
			matchedNew[newComponent.Id.Key()] = true
			continue
		}
		residualOld = append(residualOld, oldComponent)
	}
	residualNew := make([]*model.Component, 0)
	for _, newComponent := range newSbom.Components {
		if !matchedNew[newComponent.Id.Key()] {
			residualNew = append(residualNew, newComponent)
		}
	}
	common.Debug("exact alignment matched %d pairs; %d old and %d new residual",
		len(pairs), len(residualOld), len(residualNew))

	matched, err := it.matcher.Match(ctx, residualOld, residualNew)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled()
		}
		return nil, internalError("matcher failed: %v", err)
	}
	result.Threshold = matched.Threshold
	for _, pair := range matched.Pairs {
		pairs = append(pairs, alignedPair{
			old:         pair.A,
			new:         pair.B,
			score:       pair.Score,
			tier:        pair.Tier,
			explanation: pair.Explanation,
		})
	}
	for _, component := range matched.UnmatchedA {
		pairs = append(pairs, alignedPair{old: component})
	}
	for _, component := range matched.UnmatchedB {
		pairs = append(pairs, alignedPair{new: component})
	}
	return pairs, nil
}

// classifyComponents is phase 3: a matched pair is modified when any of
// version, licenses, hashes, supplier, or declared vulnerabilities
// differ.
func (it *Engine) classifyComponents(pairs []alignedPair, result *DiffResult) {
	for _, pair := range pairs {
		switch {
		case pair.old == nil:
			result.Components = append(result.Components, ComponentChange{Kind: ChangeAdded, New: pair.new})
		case pair.new == nil:
			result.Components = append(result.Components, ComponentChange{Kind: ChangeRemoved, Old: pair.old})
		default:
			fields := fieldChanges(pair.old, pair.new)
			kind := ChangeUnchanged
			if len(fields) > 0 {
				kind = ChangeModified
			}
			result.Components = append(result.Components, ComponentChange{
				Kind:        kind,
				Old:         pair.old,
				New:         pair.new,
				Fields:      fields,
				MatchScore:  pair.score,
				MatchTier:   pair.tier,
				Explanation: pair.explanation,
			})
		}
	}
}

func fieldChanges(oldComponent, newComponent *model.Component) []FieldChange {
	changes := make([]FieldChange, 0, 4)
	if oldComponent.Id.Version != newComponent.Id.Version {
		changes = append(changes, FieldChange{Field: "version", Old: oldComponent.Id.Version, New: newComponent.Id.Version})
	}
	if !set.Equal(oldComponent.Licenses, newComponent.Licenses) {
		changes = append(changes, FieldChange{
			Field: "licenses",
			Old:   fmt.Sprintf("%v", oldComponent.Licenses),
			New:   fmt.Sprintf("%v", newComponent.Licenses),
		})
	}
	if hashesDiffer(oldComponent.Hashes, newComponent.Hashes) {
		changes = append(changes, FieldChange{Field: "hashes"})
	}
	if oldComponent.Supplier != newComponent.Supplier {
		changes = append(changes, FieldChange{Field: "supplier", Old: oldComponent.Supplier, New: newComponent.Supplier})
	}
	if !set.Equal(oldComponent.VulnIds(), newComponent.VulnIds()) {
		changes = append(changes, FieldChange{
			Field: "vulnerabilities",
			Old:   fmt.Sprintf("%v", oldComponent.VulnIds()),
			New:   fmt.Sprintf("%v", newComponent.VulnIds()),
		})
	}
	return changes
}

// hashesDiffer only fires on conflicting digests for a shared
// algorithm; one side missing an algorithm is not integrity-relevant.
func hashesDiffer(oldHashes, newHashes map[string]string) bool {
	for algorithm, digest := range oldHashes {
		if other, ok := newHashes[algorithm]; ok && other != digest {
			return true
		}
	}
	return false
}

// diffLicenses is phase 5: per-component symmetric set difference.
// The document-level frequency delta is derivable from the change list
// and the component lists.
func (it *Engine) diffLicenses(pairs []alignedPair, result *DiffResult) {
	for _, pair := range pairs {
		if pair.old == nil || pair.new == nil {
			continue
		}
		added := set.Difference(pair.new.Licenses, pair.old.Licenses)
		removed := set.Difference(pair.old.Licenses, pair.new.Licenses)
		if len(added) > 0 || len(removed) > 0 {
			result.Licenses = append(result.Licenses, LicenseChange{
				ComponentId: pair.new.Id,
				Added:       added,
				Removed:     removed,
			})
		}
	}
}

// LicenseFrequencyDelta is the document-level license count delta,
// derived on demand from the change lists.
func (it *DiffResult) LicenseFrequencyDelta() map[string]int {
	delta := make(map[string]int)
	for _, change := range it.Components {
		switch change.Kind {
		case ChangeAdded:
			for _, license := range change.New.Licenses {
				delta[license] += 1
			}
		case ChangeRemoved:
			for _, license := range change.Old.Licenses {
				delta[license] -= 1
			}
		}
	}
	for _, change := range it.Licenses {
		for _, license := range change.Added {
			delta[license] += 1
		}
		for _, license := range change.Removed {
			delta[license] -= 1
		}
	}
	for license, count := range delta {
		if count == 0 {
			delete(delta, license)
		}
	}
	return delta
}

// diffVulns is phase 6: symmetric difference on vuln ids per aligned
// component, with upgrade-aware transitions when the version changed.
func (it *Engine) diffVulns(pairs []alignedPair, result *DiffResult) {
	for _, pair := range pairs {
		switch {
		case pair.old == nil:
			for _, id := range pair.new.VulnIds() {
				result.Vulns = append(result.Vulns, VulnChange{
					VulnId:      id,
					ComponentId: pair.new.Id,
					Transition:  TransitionIntroduced,
					Severity:    severityOf(pair.new, id),
				})
			}
		case pair.new == nil:
			for _, id := range pair.old.VulnIds() {
				result.Vulns = append(result.Vulns, VulnChange{
					VulnId:      id,
					ComponentId: pair.old.Id,
					Transition:  TransitionResolved,
					Severity:    severityOf(pair.old, id),
				})
			}
		default:
			it.diffPairVulns(pair, result)
		}
	}
}

func (it *Engine) diffPairVulns(pair alignedPair, result *DiffResult) {
	oldIds := pair.old.VulnIds()
	newIds := pair.new.VulnIds()
	versionChanged := pair.old.Id.Version != pair.new.Id.Version

	for _, id := range set.Difference(oldIds, newIds) {
		transition := TransitionResolved
		if versionChanged {
			vuln := pair.old.FindVuln(id)
			if vuln != nil && vuln.Affects(pair.old.Id.Version) && !vuln.Affects(pair.new.Id.Version) {
				transition = TransitionResolvedByUpgrade
			}
		}
		result.Vulns = append(result.Vulns, VulnChange{
			VulnId:      id,
			ComponentId: pair.new.Id,
			Transition:  transition,
			Severity:    severityOf(pair.old, id),
		})
	}
	for _, id := range set.Difference(newIds, oldIds) {
		transition := TransitionIntroduced
		if versionChanged {
			vuln := pair.new.FindVuln(id)
			if vuln != nil && vuln.Affects(pair.new.Id.Version) && !vuln.Affects(pair.old.Id.Version) {
				transition = TransitionNewlyIntroduced
			}
		}
		result.Vulns = append(result.Vulns, VulnChange{
			VulnId:      id,
			ComponentId: pair.new.Id,
			Transition:  transition,
			Severity:    severityOf(pair.new, id),
		})
	}
	for _, id := range set.Intersection(oldIds, newIds) {
		result.Vulns = append(result.Vulns, VulnChange{
			VulnId:      id,
			ComponentId: pair.new.Id,
			Transition:  TransitionPersisting,
			Severity:    severityOf(pair.new, id),
		})
	}
}

func severityOf(component *model.Component, id string) model.Severity {
	if vuln := component.FindVuln(id); vuln != nil {
		return vuln.Severity
	}
	return model.SeverityUnknown
}
