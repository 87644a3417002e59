package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/sbomtools/sbomdiff/common"
	"github.com/sbomtools/sbomdiff/journal"
	"github.com/sbomtools/sbomdiff/model"
	"github.com/sbomtools/sbomdiff/multi"
	"github.com/sbomtools/sbomdiff/pretty"
	"github.com/sbomtools/sbomdiff/settings"
)

var multiPreset string

func loadMany(ctx context.Context, paths []string) []*model.NormalizedSbom {
	sboms := make([]*model.NormalizedSbom, len(paths))
	for at, path := range paths {
		sbom, err := loadSbom(ctx, path)
		pretty.Guard(err == nil, 3, "Failed to parse %q: %v", path, err)
		sboms[at] = sbom
	}
	return sboms
}

var timelineCmd = &cobra.Command{
	Use:   "timeline <sbom> <sbom>...",
	Short: "Diff consecutive SBOM snapshots and track drift.",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg, err := settings.Global.DiffConfig(multiPreset, true, false)
		pretty.Guard(err == nil, 3, "%v", err)

		steps, err := multi.Timeline(ctx, loadMany(ctx, args), args, cfg)
		pretty.Guard(err == nil, 3, "Timeline failed: %v", err)
		journal.Post("timeline", "compared", "%d steps over %d documents", len(steps), len(args))

		if jsonFlag {
			nice, err := json.MarshalIndent(steps, "", "  ")
			pretty.Guard(err == nil, 3, "%v", err)
			common.Stdout("%s\n", nice)
		} else {
			for _, step := range steps {
				common.Log("%s -> %s: %d changes (drift %d, score %.1f)",
					step.From, step.To, step.Changes, step.Drift, step.Result.Score)
			}
		}
		pretty.Ok()
	},
}

var matrixCmd = &cobra.Command{
	Use:   "matrix <sbom> <sbom>...",
	Short: "Diff every unordered pair of SBOM documents.",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg, err := settings.Global.DiffConfig(multiPreset, false, false)
		pretty.Guard(err == nil, 3, "%v", err)

		result, err := multi.Matrix(ctx, loadMany(ctx, args), args, cfg)
		pretty.Guard(err == nil, 3, "Matrix failed: %v", err)
		journal.Post("matrix", "compared", "%d documents, %d pairs", len(args), len(result.Cells))

		if jsonFlag {
			nice, err := json.MarshalIndent(result, "", "  ")
			pretty.Guard(err == nil, 3, "%v", err)
			common.Stdout("%s\n", nice)
		} else {
			for _, cell := range result.Cells {
				common.Log("%s vs %s: score %.1f",
					result.Names[cell.Row], result.Names[cell.Column], cell.Result.Score)
			}
		}
		pretty.Ok()
	},
}

var baselineCmd = &cobra.Command{
	Use:   "baseline <baseline> <target>...",
	Short: "Diff every target against one baseline.",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg, err := settings.Global.DiffConfig(multiPreset, true, false)
		pretty.Guard(err == nil, 3, "%v", err)

		sboms := loadMany(ctx, args)
		result, err := multi.DiffMulti(ctx, sboms[0], sboms[1:], args[1:], cfg)
		pretty.Guard(err == nil, 3, "Baseline diff failed: %v", err)
		journal.Post("baseline", "compared", "%q against %d targets", args[0], len(args)-1)

		if jsonFlag {
			nice, err := json.MarshalIndent(result, "", "  ")
			pretty.Guard(err == nil, 3, "%v", err)
			common.Stdout("%s\n", nice)
		} else {
			for _, diff := range result.Diffs {
				summary := diff.Result.Summary()
				common.Log("%s: %d added, %d removed, %d modified, score %.1f",
					diff.Target, summary.Added, summary.Removed, summary.Modified, diff.Result.Score)
			}
		}
		pretty.Ok()
	},
}

func init() {
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(matrixCmd)
	rootCmd.AddCommand(baselineCmd)
	for _, command := range []*cobra.Command{timelineCmd, matrixCmd, baselineCmd} {
		command.Flags().StringVarP(&multiPreset, "preset", "p", "", "matching preset: strict, balanced, or permissive")
	}
}
