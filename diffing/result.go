package diffing

import (
	"sort"

	"github.com/sbomtools/sbomdiff/matching"
	"github.com/sbomtools/sbomdiff/model"
)

type ChangeKind string

const (
	ChangeAdded     ChangeKind = "added"
	ChangeRemoved   ChangeKind = "removed"
	ChangeModified  ChangeKind = "modified"
	ChangeUnchanged ChangeKind = "unchanged"
)

// FieldChange is one attribute delta on a modified component pair.
type FieldChange struct {
	Field string
	Old   string
	New   string
}

// ComponentChange pairs old and new sides of one aligned component, or
// carries a single side for additions and removals.
type ComponentChange struct {
	Kind        ChangeKind
	Old         *model.Component
	New         *model.Component
	Fields      []FieldChange
	MatchScore  float64
	MatchTier   matching.Tier
	Explanation *matching.Explanation
}

// Id prefers the new side so additions and modifications key naturally.
func (it ComponentChange) Id() model.CanonicalId {
	if it.New != nil {
		return it.New.Id
	}
	return it.Old.Id
}

type DependencyChange struct {
	Kind ChangeKind
	Edge model.DependencyEdge
}

// LicenseChange is a per-component license set delta.
type LicenseChange struct {
	ComponentId model.CanonicalId
	Added       []string
	Removed     []string
}

// VulnTransition classifies what happened to one advisory id on one
// component across the diff.
type VulnTransition string

const (
	TransitionIntroduced        VulnTransition = "introduced"
	TransitionNewlyIntroduced   VulnTransition = "newly-introduced"
	TransitionResolved          VulnTransition = "resolved"
	TransitionResolvedByUpgrade VulnTransition = "resolved-by-upgrade"
	TransitionPersisting        VulnTransition = "persisting"
)

type VulnChange struct {
	VulnId      string
	ComponentId model.CanonicalId
	Transition  VulnTransition
	Severity    model.Severity
}

// GraphDelta is the structural part of the dependency diff.
type GraphDelta struct {
	NewlyReachable   []model.CanonicalId
	LostReachability []model.CanonicalId
	CyclesBefore     int
	CyclesAfter      int
	// EdgeOnly notes that the structural phase was skipped and only the
	// edge set difference was computed.
	EdgeOnly bool
}

// Summary is always derived from the change lists; there is no stored
// counter anywhere to drift out of sync.
type Summary struct {
	Added        int
	Removed      int
	Modified     int
	Unchanged    int
	EdgesAdded   int
	EdgesRemoved int
	VulnsIntroduced int
	VulnsResolved   int
	VulnsPersisting int
	LicenseChanges  int
	// Total is the symmetric change count: identical inputs reversed
	// produce the same total.
	Total int
	// SeverityCounts buckets introduced vulnerabilities by severity.
	SeverityCounts map[model.Severity]int
}

// DiffResult is the complete outcome of one diff. Byte-identical across
// repeated runs over identical inputs.
type DiffResult struct {
	OldMeta model.DocumentMeta
	NewMeta model.DocumentMeta
	OldHash string
	NewHash string

	Components   []ComponentChange
	Dependencies []DependencyChange
	Licenses     []LicenseChange
	Vulns        []VulnChange
	Graph        *GraphDelta

	// Score is the composite semantic score in [0, 100]; 100 means
	// identical documents.
	Score float64
	// Cost is the cost-model total for the change set.
	Cost int

	Threshold float64
	Warnings  []string
}

// Empty reports the fast-path outcome for content-identical inputs.
func (it *DiffResult) Empty() bool {
	for _, change := range it.Components {
		if change.Kind != ChangeUnchanged {
			return false
		}
	}
	return len(it.Dependencies) == 0 && len(it.Vulns) == 0 && len(it.Licenses) == 0
}

// Summary derives the counters from the change lists.
func (it *DiffResult) Summary() Summary {
	summary := Summary{SeverityCounts: make(map[model.Severity]int)}
	for _, change := range it.Components {
		switch change.Kind {
		case ChangeAdded:
			summary.Added += 1
		case ChangeRemoved:
			summary.Removed += 1
		case ChangeModified:
			summary.Modified += 1
		case ChangeUnchanged:
			summary.Unchanged += 1
		}
	}
	for _, change := range it.Dependencies {
		switch change.Kind {
		case ChangeAdded:
			summary.EdgesAdded += 1
		case ChangeRemoved:
			summary.EdgesRemoved += 1
		}
	}
	for _, change := range it.Vulns {
		switch change.Transition {
		case TransitionIntroduced, TransitionNewlyIntroduced:
			summary.VulnsIntroduced += 1
			summary.SeverityCounts[change.Severity] += 1
		case TransitionResolved, TransitionResolvedByUpgrade:
			summary.VulnsResolved += 1
		case TransitionPersisting:
			summary.VulnsPersisting += 1
		}
	}
	summary.LicenseChanges = len(it.Licenses)
	summary.Total = summary.Added + summary.Removed + summary.Modified +
		summary.EdgesAdded + summary.EdgesRemoved +
		summary.VulnsIntroduced + summary.VulnsResolved + summary.LicenseChanges
	return summary
}

func (it *DiffResult) sortChanges() {
	sort.Slice(it.Components, func(one, two int) bool {
		return it.Components[one].Id().Less(it.Components[two].Id())
	})
	sort.Slice(it.Dependencies, func(one, two int) bool {
		left, right := it.Dependencies[one], it.Dependencies[two]
		if left.Edge.Key() != right.Edge.Key() {
			return left.Edge.Key() < right.Edge.Key()
		}
		return left.Kind < right.Kind
	})
	sort.Slice(it.Licenses, func(one, two int) bool {
		return it.Licenses[one].ComponentId.Less(it.Licenses[two].ComponentId)
	})
	sort.Slice(it.Vulns, func(one, two int) bool {
		left, right := it.Vulns[one], it.Vulns[two]
		if left.VulnId != right.VulnId {
			return left.VulnId < right.VulnId
		}
		return left.ComponentId.Less(right.ComponentId)
	})
}
