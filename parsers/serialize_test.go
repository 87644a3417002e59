package parsers

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sbomtools/sbomdiff/model"
)

func canonicalFixture(t *testing.T) *model.NormalizedSbom {
	t.Helper()
	sbom := model.NewNormalizedSbom(model.DocumentMeta{Name: "webshop"})

	root := &model.Component{
		Id:          model.NewCanonicalId(model.EcosystemUnknown, "", "webshop", "1.0.0"),
		Type:        model.TypeApplication,
		DisplayName: "webshop",
	}
	lodash := &model.Component{
		Id:          model.NewCanonicalId(model.EcosystemNpm, "", "lodash", "4.17.21"),
		Type:        model.TypeLibrary,
		DisplayName: "lodash",
		Purl:        "pkg:npm/lodash@4.17.21",
		Supplier:    "OpenJS Foundation",
	}
	lodash.AddLicense("MIT")
	lodash.AddHash("SHA-256", "abcdef012345")
	express := &model.Component{
		Id:          model.NewCanonicalId(model.EcosystemNpm, "", "express", "4.18.0"),
		Type:        model.TypeLibrary,
		DisplayName: "express",
		Purl:        "pkg:npm/express@4.18.0",
	}
	express.AddVuln(model.Vulnerability{
		Id:            "CVE-2024-29041",
		Severity:      model.SeverityHigh,
		CvssScore:     7.5,
		AffectedRange: "< 4.19.2",
		Source:        model.SourceInBand,
	})

	for _, component := range []*model.Component{root, lodash, express} {
		if err := sbom.AddComponent(component); err != nil {
			t.Fatalf("add component: %v", err)
		}
	}
	sbom.AddEdge(model.DependencyEdge{From: root.Id, To: express.Id, Scope: model.ScopeRuntime})
	sbom.AddEdge(model.DependencyEdge{From: express.Id, To: lodash.Id, Scope: model.ScopeRuntime})
	sbom.RecomputeContentHash()
	return sbom
}

// The round-trip property: parse(serialize(s)) matches s on the
// canonical projection, x-original-* properties aside.
func TestRoundTripCycloneDXJson(t *testing.T) {
	original := canonicalFixture(t)
	data, err := Serialize(original, model.DialectCycloneDXJson)
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	parsed, err := ParseBytes(context.Background(), data, "roundtrip.cdx.json", Options{})
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}

	if diff := cmp.Diff(componentKeys(original), componentKeys(parsed)); diff != "" {
		t.Errorf("component identities diverge:\n%s", diff)
	}
	if original.ContentHash != parsed.ContentHash {
		t.Errorf("canonical projection diverged: %s vs %s", original.ContentHash, parsed.ContentHash)
	}
	if len(parsed.Edges) != 2 {
		t.Errorf("edges = %d, want 2", len(parsed.Edges))
	}

	express := parsed.Lookup(model.NewCanonicalId(model.EcosystemNpm, "", "express", "4.18.0"))
	if express == nil || len(express.Vulns) != 1 {
		t.Fatalf("in-band vulnerability lost in round trip")
	}
	if express.Vulns[0].AffectedRange != "< 4.19.2" {
		t.Errorf("affected range lost: %q", express.Vulns[0].AffectedRange)
	}
}

func TestRoundTripCycloneDXXml(t *testing.T) {
	original := canonicalFixture(t)
	data, err := Serialize(original, model.DialectCycloneDXXml)
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	parsed, err := ParseBytes(context.Background(), data, "roundtrip.cdx.xml", Options{})
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}
	if diff := cmp.Diff(componentKeys(original), componentKeys(parsed)); diff != "" {
		t.Errorf("component identities diverge:\n%s", diff)
	}
}

func TestRoundTripSpdxJson(t *testing.T) {
	original := canonicalFixture(t)
	data, err := Serialize(original, model.DialectSpdxJson)
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	parsed, err := ParseBytes(context.Background(), data, "roundtrip.spdx.json", Options{})
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}
	if diff := cmp.Diff(componentKeys(original), componentKeys(parsed)); diff != "" {
		t.Errorf("component identities diverge:\n%s", diff)
	}
	if len(parsed.Edges) != len(original.Edges) {
		t.Errorf("edges = %d, want %d", len(parsed.Edges), len(original.Edges))
	}
}

func TestSerialNumberIsDeterministic(t *testing.T) {
	sbom := canonicalFixture(t)
	first, err := Serialize(sbom, model.DialectCycloneDXJson)
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	second, err := Serialize(sbom, model.DialectCycloneDXJson)
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	firstParsed, err := ParseBytes(context.Background(), first, "a.cdx.json", Options{})
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}
	secondParsed, err := ParseBytes(context.Background(), second, "b.cdx.json", Options{})
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}
	if firstParsed.Meta.SerialNumber != secondParsed.Meta.SerialNumber {
		t.Errorf("serial number must be content-derived and stable")
	}
}
