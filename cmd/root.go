package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sbomtools/sbomdiff/common"
	"github.com/sbomtools/sbomdiff/pretty"
	"github.com/sbomtools/sbomdiff/settings"
)

var (
	debugFlag  bool
	traceFlag  bool
	silentFlag bool
	jsonFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "sbomdiff",
	Short: "Compare, analyze, and score Software Bills of Materials.",
	Long: `sbomdiff compares SBOM documents semantically: component-level
additions, removals and modifications, dependency graph deltas,
vulnerability transitions, and license changes across CycloneDX and
SPDX dialects.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		common.DefineVerbosity(silentFlag, debugFlag, traceFlag)
		pretty.Setup()
		_, err := settings.SummonSettings()
		pretty.Guard(err == nil, 3, "Settings are broken: %v", err)
	},
}

func Execute() {
	defer common.WaitLogs()
	if err := rootCmd.Execute(); err != nil {
		pretty.Guard(false, 3, "%v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "", false, "to get debug output where available")
	rootCmd.PersistentFlags().BoolVarP(&traceFlag, "trace", "", false, "to get trace output where available")
	rootCmd.PersistentFlags().BoolVarP(&silentFlag, "silent", "", false, "to reduce output")
	rootCmd.PersistentFlags().BoolVarP(&jsonFlag, "json", "j", false, "output in JSON format")
}
