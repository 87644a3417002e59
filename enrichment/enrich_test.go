package enrichment

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sbomtools/sbomdiff/model"
)

func fixtureSbom() *model.NormalizedSbom {
	sbom := model.NewNormalizedSbom(model.DocumentMeta{Name: "fixture"})
	sbom.AddComponent(&model.Component{
		Id:          model.NewCanonicalId(model.EcosystemNpm, "", "lodash", "4.17.19"),
		Type:        model.TypeLibrary,
		DisplayName: "lodash",
		Purl:        "pkg:npm/lodash@4.17.19",
	})
	sbom.RecomputeContentHash()
	return sbom
}

func seedOsvResponse(t *testing.T, root string) {
	t.Helper()
	cache := NewFileCache(root, time.Hour)
	payload := osvQueryResponse{Vulns: []osvVulnerability{{
		Id:       "GHSA-p6mc-m468-83gw",
		Summary:  "Prototype pollution in lodash",
		Severity: []osvSeverity{{Type: "CVSS_V3", Score: "7.4"}},
		Affected: []osvAffected{{Ranges: []osvRange{{
			Type:   "SEMVER",
			Events: []osvEvent{{Introduced: "0"}, {Fixed: "4.17.20"}},
		}}}},
		References: []osvReference{{Type: "ADVISORY", Url: "https://github.com/advisories/GHSA-p6mc-m468-83gw"}},
	}}}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := cache.Store("osv", "pkg:npm/lodash@4.17.19", data); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

// Offline enrichment against a seeded cache exercises the full provider
// path without any network.
func TestEnrichFromCachedOsvData(t *testing.T) {
	root := t.TempDir()
	seedOsvResponse(t, root)
	sbom := fixtureSbom()
	hashBefore := sbom.ContentHash

	stats, err := Enrich(context.Background(), sbom, Config{
		Providers: []string{"osv"},
		CacheRoot: root,
		Ttl:       time.Hour,
		Offline:   true,
	})
	if err != nil {
		t.Fatalf("enrich failed: %v", err)
	}
	if stats.VulnsAdded != 1 {
		t.Fatalf("expected one added vulnerability, got %d", stats.VulnsAdded)
	}
	if stats.CacheHits != 1 {
		t.Errorf("cache hit not counted: %+v", stats)
	}

	component := sbom.Components[0]
	if len(component.Vulns) != 1 {
		t.Fatalf("vulnerability not attached")
	}
	vuln := component.Vulns[0]
	if vuln.Id != "GHSA-p6mc-m468-83gw" || vuln.Source != model.SourceOsv {
		t.Errorf("vulnerability = %+v", vuln)
	}
	if vuln.Severity != model.SeverityHigh {
		t.Errorf("7.4 maps to high, got %v", vuln.Severity)
	}
	if vuln.FixedVersion != "4.17.20" {
		t.Errorf("fixed version = %q", vuln.FixedVersion)
	}

	if sbom.ContentHash == hashBefore {
		t.Errorf("content hash must be recomputed after enrichment")
	}
}

// Idempotency: a second run over the same cache snapshot adds nothing.
func TestEnrichIsIdempotent(t *testing.T) {
	root := t.TempDir()
	seedOsvResponse(t, root)
	sbom := fixtureSbom()
	cfg := Config{Providers: []string{"osv"}, CacheRoot: root, Ttl: time.Hour, Offline: true}

	if _, err := Enrich(context.Background(), sbom, cfg); err != nil {
		t.Fatalf("first enrich failed: %v", err)
	}
	hashAfterFirst := sbom.ContentHash

	stats, err := Enrich(context.Background(), sbom, cfg)
	if err != nil {
		t.Fatalf("second enrich failed: %v", err)
	}
	if stats.VulnsAdded != 0 {
		t.Errorf("second run must add nothing, got %d", stats.VulnsAdded)
	}
	if sbom.ContentHash != hashAfterFirst {
		t.Errorf("hash must be stable across idempotent runs")
	}
	if len(sbom.Components[0].Vulns) != 1 {
		t.Errorf("vulnerability duplicated")
	}
}

// Offline with an empty cache: the provider is unavailable, the
// document is untouched, and the caller gets the enrichment error to
// flag and proceed.
func TestEnrichUnavailableIsReported(t *testing.T) {
	sbom := fixtureSbom()
	_, err := Enrich(context.Background(), sbom, Config{
		Providers: []string{"osv"},
		CacheRoot: t.TempDir(),
		Ttl:       time.Hour,
		Offline:   true,
	})
	if err == nil {
		t.Fatalf("fully unavailable provider must surface an error")
	}
	if len(sbom.Components[0].Vulns) != 0 {
		t.Errorf("document must stay untouched")
	}
}

func TestUnknownProviderIsRejected(t *testing.T) {
	_, err := Enrich(context.Background(), fixtureSbom(), Config{
		Providers: []string{"astrology"},
		CacheRoot: t.TempDir(),
	})
	if err == nil {
		t.Fatalf("unknown provider must surface an error")
	}
}

func TestKevSeverityFloor(t *testing.T) {
	root := t.TempDir()
	catalog := kevCatalog{Vulnerabilities: []kevVulnerability{{CveID: "CVE-2021-44228", DueDate: "2021-12-24"}}}
	data, err := json.Marshal(catalog)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	cache := NewFileCache(root, time.Hour)
	if err := cache.Store("kev", kevCacheKey, data); err != nil {
		t.Fatalf("seed: %v", err)
	}

	sbom := fixtureSbom()
	sbom.Components[0].AddVuln(model.Vulnerability{
		Id:       "CVE-2021-44228",
		Severity: model.SeverityMedium,
		Source:   model.SourceOsv,
	})

	stats, err := Enrich(context.Background(), sbom, Config{
		Providers: []string{"kev"},
		CacheRoot: root,
		Ttl:       time.Hour,
		Offline:   true,
	})
	if err != nil {
		t.Fatalf("enrich failed: %v", err)
	}
	if stats.VulnsAdded != 1 {
		t.Fatalf("kev record not attached: %+v", stats)
	}
	kevRecord := (*model.Vulnerability)(nil)
	for at := range sbom.Components[0].Vulns {
		if sbom.Components[0].Vulns[at].Source == model.SourceKev {
			kevRecord = &sbom.Components[0].Vulns[at]
		}
	}
	if kevRecord == nil {
		t.Fatalf("kev-sourced record missing")
	}
	if kevRecord.Severity < model.SeverityHigh {
		t.Errorf("known-exploited findings floor at high severity, got %v", kevRecord.Severity)
	}
}
