package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/sbomtools/sbomdiff/common"
	"github.com/sbomtools/sbomdiff/enrichment"
	"github.com/sbomtools/sbomdiff/journal"
	"github.com/sbomtools/sbomdiff/model"
	"github.com/sbomtools/sbomdiff/parsers"
	"github.com/sbomtools/sbomdiff/pretty"
	"github.com/sbomtools/sbomdiff/settings"
)

var (
	enrichOutput  string
	enrichOffline bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <sbom>",
	Short: "Enrich one SBOM with vulnerability and EOL data.",
	Long: `Enrich one SBOM with vulnerability and EOL data.

Advisories come from OSV, the CISA KEV catalog, and endoflife.date,
through the file-backed cache under the product home. Enrichment only
ever adds data; the content hash is recomputed afterwards.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		sbom, err := loadSbom(ctx, args[0])
		pretty.Guard(err == nil, 3, "Failed to parse %q: %v", args[0], err)

		stats, err := enrichment.Enrich(ctx, sbom, settings.Global.EnrichmentConfig(enrichOffline))
		pretty.Guard(err == nil, 3, "Enrichment failed: %v", err)
		journal.Post("enrich", "enriched", "%s: %d vulns, %d eol records", args[0], stats.VulnsAdded, stats.EolAdded)

		common.Log("Enriched %d components: %d vulnerabilities, %d EOL records added", stats.ComponentsSeen, stats.VulnsAdded, stats.EolAdded)
		common.Debug("cache: %d hits (%d stale), %d fetches", stats.CacheHits, stats.CacheStale, stats.Fetches)
		for _, warning := range stats.Warnings {
			pretty.Warning("%s", warning)
		}

		if len(enrichOutput) > 0 {
			data, err := parsers.Serialize(sbom, model.DialectCycloneDXJson)
			pretty.Guard(err == nil, 3, "Failed to serialize: %v", err)
			err = os.WriteFile(enrichOutput, data, 0o644)
			pretty.Guard(err == nil, 3, "Failed to write %q: %v", enrichOutput, err)
			common.Log("Enriched document written to %s", enrichOutput)
		}
		pretty.Ok()
	},
}

func init() {
	rootCmd.AddCommand(enrichCmd)
	enrichCmd.Flags().StringVarP(&enrichOutput, "output", "o", "", "write the enriched document (CycloneDX JSON)")
	enrichCmd.Flags().BoolVarP(&enrichOffline, "offline", "", false, "use cached advisory data only")
}
