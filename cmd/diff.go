package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sbomtools/sbomdiff/common"
	"github.com/sbomtools/sbomdiff/diffing"
	"github.com/sbomtools/sbomdiff/enrichment"
	"github.com/sbomtools/sbomdiff/journal"
	"github.com/sbomtools/sbomdiff/pretty"
	"github.com/sbomtools/sbomdiff/settings"
)

var (
	diffPreset       string
	diffGraph        bool
	diffExplain      bool
	diffEnrich       bool
	diffOffline      bool
	diffFailOnChange bool
	diffFailOnVuln   bool
	diffOutput       string
)

var diffCmd = &cobra.Command{
	Use:   "diff <old-sbom> <new-sbom>",
	Short: "Compare two SBOM documents semantically.",
	Long: `Compare two SBOM documents semantically.

Both documents are normalized into one canonical model, components are
aligned through the tiered matcher (exact id, PURL, aliases, ecosystem
normalization, fuzzy similarity), and the result covers component,
dependency, license, and vulnerability changes plus a composite score.

Examples:
  # Basic comparison with the balanced preset
  sbomdiff diff old.cdx.json new.cdx.json

  # Strict matching, machine-readable output, CI gating on changes
  sbomdiff diff --preset strict --json --fail-on-change old.spdx new.spdx

  # Enrich both sides from OSV/KEV before comparing
  sbomdiff diff --enrich old.cdx.json new.cdx.json`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if common.DebugFlag() {
			defer common.Stopwatch("Diff command lasted").Report()
		}
		ctx := context.Background()

		oldSbom, err := loadSbom(ctx, args[0])
		pretty.Guard(err == nil, 3, "Failed to parse %q: %v", args[0], err)
		newSbom, err := loadSbom(ctx, args[1])
		pretty.Guard(err == nil, 3, "Failed to parse %q: %v", args[1], err)

		if diffEnrich {
			cfg := settings.Global.EnrichmentConfig(diffOffline)
			oldStats, err := enrichment.Enrich(ctx, oldSbom, cfg)
			if err != nil {
				pretty.Warning("Enrichment unavailable for %q: %v", args[0], err)
			} else {
				common.Debug("enriched %q: %d vulns, %d eol records", args[0], oldStats.VulnsAdded, oldStats.EolAdded)
			}
			newStats, err := enrichment.Enrich(ctx, newSbom, cfg)
			if err != nil {
				pretty.Warning("Enrichment unavailable for %q: %v", args[1], err)
			} else {
				common.Debug("enriched %q: %d vulns, %d eol records", args[1], newStats.VulnsAdded, newStats.EolAdded)
			}
		}

		cfg, err := settings.Global.DiffConfig(diffPreset, diffGraph, diffExplain)
		pretty.Guard(err == nil, 3, "%v", err)

		result, err := diffing.Diff(ctx, oldSbom, newSbom, cfg)
		pretty.Guard(err == nil, 3, "Diff failed: %v", err)

		summary := result.Summary()
		journal.Post("diff", "compared",
			"%s vs %s: %d added, %d removed, %d modified, score %.1f",
			args[0], args[1], summary.Added, summary.Removed, summary.Modified, result.Score)

		emitDiffResult(result)

		pretty.Guard(!(diffFailOnVuln && summary.VulnsIntroduced > 0), 2,
			"%d new vulnerabilities introduced", summary.VulnsIntroduced)
		pretty.Guard(!(diffFailOnChange && summary.Total > 0), 1,
			"%d changes present", summary.Total)
		pretty.Ok()
	},
}

func emitDiffResult(result *diffing.DiffResult) {
	if jsonFlag || len(diffOutput) > 0 {
		payload := map[string]interface{}{
			"old":       result.OldMeta,
			"new":       result.NewMeta,
			"summary":   result.Summary(),
			"score":     result.Score,
			"cost":      result.Cost,
			"threshold": result.Threshold,
			"components":   result.Components,
			"dependencies": result.Dependencies,
			"licenses":     result.Licenses,
			"vulnerabilities": result.Vulns,
			"graph":    result.Graph,
			"warnings": result.Warnings,
		}
		nice, err := json.MarshalIndent(payload, "", "  ")
		pretty.Guard(err == nil, 3, "%v", err)
		if len(diffOutput) > 0 {
			err = os.WriteFile(diffOutput, append(nice, '\n'), 0o644)
			pretty.Guard(err == nil, 3, "Failed to write %q: %v", diffOutput, err)
		} else {
			common.Stdout("%s\n", nice)
		}
		return
	}

	summary := result.Summary()
	pretty.Highlight("Score: %.1f / 100 (cost %d)", result.Score, result.Cost)
	common.Log("Components: %d added, %d removed, %d modified, %d unchanged",
		summary.Added, summary.Removed, summary.Modified, summary.Unchanged)
	if summary.EdgesAdded+summary.EdgesRemoved > 0 {
		common.Log("Dependencies: %d added, %d removed", summary.EdgesAdded, summary.EdgesRemoved)
	}
	if summary.VulnsIntroduced+summary.VulnsResolved+summary.VulnsPersisting > 0 {
		common.Log("Vulnerabilities: %d introduced, %d resolved, %d persisting",
			summary.VulnsIntroduced, summary.VulnsResolved, summary.VulnsPersisting)
	}
	if summary.LicenseChanges > 0 {
		common.Log("License changes: %d", summary.LicenseChanges)
	}
	for _, change := range result.Components {
		switch change.Kind {
		case diffing.ChangeAdded:
			common.Log("  %s+ %s%s", pretty.Green, change.Id().Key(), pretty.Reset)
		case diffing.ChangeRemoved:
			common.Log("  %s- %s%s", pretty.Red, change.Id().Key(), pretty.Reset)
		case diffing.ChangeModified:
			common.Log("  %s~ %s%s", pretty.Yellow, change.Id().Key(), pretty.Reset)
			for _, field := range change.Fields {
				common.Log("      %s: %q -> %q", field.Field, field.Old, field.New)
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().StringVarP(&diffPreset, "preset", "p", "", "matching preset: strict, balanced, or permissive")
	diffCmd.Flags().BoolVarP(&diffGraph, "graph", "g", true, "include dependency graph diff")
	diffCmd.Flags().BoolVarP(&diffExplain, "explain", "e", false, "attach match explanations to the result")
	diffCmd.Flags().BoolVarP(&diffEnrich, "enrich", "", false, "enrich both documents before comparing")
	diffCmd.Flags().BoolVarP(&diffOffline, "offline", "", false, "enrichment uses cached data only")
	diffCmd.Flags().BoolVarP(&diffFailOnChange, "fail-on-change", "", false, "exit 1 when any change is present")
	diffCmd.Flags().BoolVarP(&diffFailOnVuln, "fail-on-vuln", "", false, "exit 2 when new vulnerabilities appear")
	diffCmd.Flags().StringVarP(&diffOutput, "output", "o", "", "write the JSON result to a file")
}
