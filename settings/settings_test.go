package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sbomtools/sbomdiff/common"
	"github.com/sbomtools/sbomdiff/diffing"
	"github.com/sbomtools/sbomdiff/matching"
)

func summonFrom(t *testing.T, content string) *Settings {
	t.Helper()
	home := t.TempDir()
	os.Setenv(common.SBOMDIFF_HOME_VARIABLE, home)
	t.Cleanup(func() { os.Unsetenv(common.SBOMDIFF_HOME_VARIABLE) })
	if len(content) > 0 {
		if err := os.WriteFile(filepath.Join(home, "settings.yaml"), []byte(content), 0o640); err != nil {
			t.Fatalf("write settings: %v", err)
		}
	}
	Global = nil
	loaded, err := SummonSettings()
	if err != nil {
		t.Fatalf("summon failed: %v", err)
	}
	return loaded
}

func TestDefaultsWithoutSettingsFile(t *testing.T) {
	sut := summonFrom(t, "")
	if sut.Preset() != matching.PresetBalanced {
		t.Errorf("default preset must be balanced")
	}
	if sut.Weights() != diffing.DefaultScoreWeights() {
		t.Errorf("default weights expected")
	}
	if sut.Lsh() != matching.DefaultLshConfig() {
		t.Errorf("default lsh parameters expected")
	}
	cfg := sut.EnrichmentConfig(false)
	if len(cfg.Providers) != 3 {
		t.Errorf("default providers = %v", cfg.Providers)
	}
}

func TestSettingsDocumentOverrides(t *testing.T) {
	sut := summonFrom(t, `
matching:
  preset: strict
  aliases:
    - canonical: mylib
      aliases: [my-lib-fork, mylib2]
  lsh:
    bands: 16
    rows_per_band: 8
scoring:
  components: 0.7
  dependencies: 0.1
  vulnerabilities: 0.1
  licenses: 0.1
  cost_profile: security
enrichment:
  providers: [osv]
  ttl_hours: 48
`)
	if sut.Preset() != matching.PresetStrict {
		t.Errorf("preset override lost")
	}
	pairs := sut.AliasPairs()
	if len(pairs) != 2 || pairs[0][0] != "mylib" {
		t.Errorf("alias pairs = %v", pairs)
	}
	lsh := sut.Lsh()
	if lsh.Bands != 16 || lsh.RowsPerBand != 8 {
		t.Errorf("lsh overrides lost: %+v", lsh)
	}
	if lsh.NumHashes != 128 {
		t.Errorf("unset lsh fields keep defaults: %+v", lsh)
	}
	if sut.Weights().Components != 0.7 {
		t.Errorf("weights override lost")
	}
	if sut.Costs() != diffing.SecurityFocusedCostModel() {
		t.Errorf("cost profile lost")
	}
	enrich := sut.EnrichmentConfig(true)
	if len(enrich.Providers) != 1 || enrich.Providers[0] != "osv" {
		t.Errorf("providers override lost: %v", enrich.Providers)
	}
	if !enrich.Offline {
		t.Errorf("offline flag must pass through")
	}
}

func TestDiffConfigAssembly(t *testing.T) {
	sut := summonFrom(t, "")
	cfg, err := sut.DiffConfig("permissive", true, true)
	if err != nil {
		t.Fatalf("assembly failed: %v", err)
	}
	if cfg.Preset != matching.PresetPermissive || !cfg.GraphDiff || !cfg.ExplainMatches {
		t.Errorf("overrides lost: %+v", cfg)
	}
	if _, err := sut.DiffConfig("bogus", false, false); err == nil {
		t.Errorf("unknown preset must be rejected")
	}
}
