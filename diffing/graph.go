package diffing

import (
	"github.com/sbomtools/sbomdiff/common"
	"github.com/sbomtools/sbomdiff/model"
)

// diffGraphs is phase 4: edge set difference in the new id space, plus
// structural deltas (reachability from roots, cycle structure). Very
// large graphs skip the structural part and annotate the result.
func (it *Engine) diffGraphs(oldSbom, newSbom *model.NormalizedSbom, pairs []alignedPair, result *DiffResult) error {
	oldToNew := make(map[string]model.CanonicalId, len(pairs))
	newToOld := make(map[string]model.CanonicalId, len(pairs))
	for _, pair := range pairs {
		if pair.old != nil && pair.new != nil {
			oldToNew[pair.old.Id.Key()] = pair.new.Id
			newToOld[pair.new.Id.Key()] = pair.old.Id
		}
	}

	oldEdges := make(map[string]model.DependencyEdge, len(oldSbom.Edges))
	for _, edge := range oldSbom.Edges {
		resolved := edge
		if mapped, ok := oldToNew[edge.From.Key()]; ok {
			resolved.From = mapped
		}
		if mapped, ok := oldToNew[edge.To.Key()]; ok {
			resolved.To = mapped
		}
		oldEdges[resolved.Key()] = resolved
	}
	newEdges := make(map[string]model.DependencyEdge, len(newSbom.Edges))
	for _, edge := range newSbom.Edges {
		newEdges[edge.Key()] = edge
	}

	for key, edge := range oldEdges {
		if _, ok := newEdges[key]; !ok {
			result.Dependencies = append(result.Dependencies, DependencyChange{Kind: ChangeRemoved, Edge: edge})
		}
	}
	for key, edge := range newEdges {
		if _, ok := oldEdges[key]; !ok {
			result.Dependencies = append(result.Dependencies, DependencyChange{Kind: ChangeAdded, Edge: edge})
		}
	}

	if len(oldSbom.Components) > it.cfg.MaxGraphNodes || len(newSbom.Components) > it.cfg.MaxGraphNodes {
		common.Debug("graph structural phase skipped: %d/%d nodes over limit %d",
			len(oldSbom.Components), len(newSbom.Components), it.cfg.MaxGraphNodes)
		result.Graph = &GraphDelta{EdgeOnly: true}
		result.Warnings = append(result.Warnings, "graph diff fell back to edge-only comparison")
		return nil
	}

	oldArena := model.NewArena(oldSbom)
	newArena := model.NewArena(newSbom)
	oldReachable := oldArena.Reachable(oldArena.Roots())
	newReachable := newArena.Reachable(newArena.Roots())

	delta := &GraphDelta{
		CyclesBefore: len(oldArena.CyclicGroups()),
		CyclesAfter:  len(newArena.CyclicGroups()),
	}
	for at, component := range newSbom.Components {
		oldId, paired := newToOld[component.Id.Key()]
		if !paired {
			continue
		}
		oldAt, ok := oldSbom.IndexOf(oldId)
		if !ok {
			return internalError("paired component %q missing from old index", oldId.Key())
		}
		if newReachable[at] && !oldReachable[oldAt] {
			delta.NewlyReachable = append(delta.NewlyReachable, component.Id)
		}
		if !newReachable[at] && oldReachable[oldAt] {
			delta.LostReachability = append(delta.LostReachability, component.Id)
		}
	}
	result.Graph = delta
	return nil
}
