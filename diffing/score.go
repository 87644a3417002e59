package diffing

import (
	"github.com/Masterminds/semver"
	"github.com/sbomtools/sbomdiff/model"
)

// score is phase 7: each dimension contributes its change ratio, the
// configured weights blend them, and the composite lands in [0, 100]
// with 100 meaning identical. The cost-model total rides along for
// reporting.
func (it *Engine) score(oldSbom, newSbom *model.NormalizedSbom, result *DiffResult) {
	summary := result.Summary()
	weights := it.cfg.Weights.normalized()

	componentUniverse := summary.Added + summary.Removed + summary.Modified + summary.Unchanged
	edgeUniverse := len(oldSbom.Edges)
	if len(newSbom.Edges) > edgeUniverse {
		edgeUniverse = len(newSbom.Edges)
	}
	vulnUniverse := summary.VulnsIntroduced + summary.VulnsResolved + summary.VulnsPersisting
	licenseUniverse := countLicenses(oldSbom)
	if other := countLicenses(newSbom); other > licenseUniverse {
		licenseUniverse = other
	}

	penalty := weights.Components*ratio(summary.Added+summary.Removed+summary.Modified, componentUniverse) +
		weights.Dependencies*ratio(summary.EdgesAdded+summary.EdgesRemoved, edgeUniverse) +
		weights.Vulns*ratio(summary.VulnsIntroduced+summary.VulnsResolved, vulnUniverse) +
		weights.Licenses*ratio(summary.LicenseChanges, licenseUniverse)

	score := 100.0 * (1.0 - penalty)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	result.Score = score
	result.Cost = it.cost(result)
}

func ratio(changed, universe int) float64 {
	if universe <= 0 {
		if changed > 0 {
			return 1.0
		}
		return 0.0
	}
	value := float64(changed) / float64(universe)
	if value > 1.0 {
		return 1.0
	}
	return value
}

func countLicenses(sbom *model.NormalizedSbom) int {
	count := 0
	for _, component := range sbom.Components {
		count += len(component.Licenses)
	}
	return count
}

func (it *Engine) cost(result *DiffResult) int {
	costs := it.cfg.Costs
	total := 0
	for _, change := range result.Components {
		switch change.Kind {
		case ChangeAdded:
			total += costs.ComponentAdded
		case ChangeRemoved:
			total += costs.ComponentRemoved
		case ChangeModified:
			for _, field := range change.Fields {
				switch field.Field {
				case "version":
					total += versionChangeCost(costs, field.Old, field.New)
				case "licenses":
					total += costs.LicenseChanged
				case "supplier":
					total += costs.SupplierChanged
				case "hashes":
					total += costs.HashMismatch
				}
			}
		}
	}
	for _, change := range result.Dependencies {
		switch change.Kind {
		case ChangeAdded:
			total += costs.DependencyAdded
		case ChangeRemoved:
			total += costs.DependencyRemoved
		}
	}
	for _, change := range result.Vulns {
		switch change.Transition {
		case TransitionIntroduced, TransitionNewlyIntroduced:
			total += costs.VulnIntroduced
		case TransitionResolved, TransitionResolvedByUpgrade:
			total += costs.VulnResolved
		}
	}
	if total < 0 {
		total = 0
	}
	return total
}

func versionChangeCost(costs CostModel, oldVersion, newVersion string) int {
	oldParsed, errOld := semver.NewVersion(oldVersion)
	newParsed, errNew := semver.NewVersion(newVersion)
	if errOld != nil || errNew != nil {
		return costs.VersionMinor
	}
	switch {
	case oldParsed.Major() != newParsed.Major():
		return costs.VersionMajor
	case oldParsed.Minor() != newParsed.Minor():
		return costs.VersionMinor
	case oldParsed.Patch() != newParsed.Patch():
		return costs.VersionPatch
	}
	return 0
}
