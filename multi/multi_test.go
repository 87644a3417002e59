package multi

import (
	"context"
	"fmt"
	"testing"

	"github.com/sbomtools/sbomdiff/diffing"
	"github.com/sbomtools/sbomdiff/model"
)

func snapshot(name string, versions map[string]string) *model.NormalizedSbom {
	sbom := model.NewNormalizedSbom(model.DocumentMeta{Name: name})
	for component, version := range versions {
		id := model.NewCanonicalId(model.EcosystemNpm, "", component, version)
		sbom.AddComponent(&model.Component{
			Id:          id,
			Type:        model.TypeLibrary,
			DisplayName: component,
			Purl:        fmt.Sprintf("pkg:npm/%s@%s", id.Name, version),
		})
	}
	sbom.RecomputeContentHash()
	return sbom
}

func TestTimelineTracksDrift(t *testing.T) {
	snapshots := []*model.NormalizedSbom{
		snapshot("v1", map[string]string{"a": "1.0.0", "b": "1.0.0"}),
		snapshot("v2", map[string]string{"a": "1.0.1", "b": "1.0.0"}),
		snapshot("v3", map[string]string{"a": "1.0.1", "b": "1.0.0", "c": "1.0.0"}),
	}
	steps, err := Timeline(context.Background(), snapshots, []string{"v1", "v2", "v3"}, diffing.DefaultDiffConfig())
	if err != nil {
		t.Fatalf("timeline failed: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].Changes != 1 || steps[0].Drift != 1 {
		t.Errorf("step 1 = %+v", steps[0])
	}
	if steps[1].Changes != 1 || steps[1].Drift != 2 {
		t.Errorf("cumulative drift must accumulate: %+v", steps[1])
	}
	if steps[0].From != "v1" || steps[1].To != "v3" {
		t.Errorf("step naming wrong: %+v", steps)
	}
}

func TestTimelineNeedsTwoDocuments(t *testing.T) {
	_, err := Timeline(context.Background(),
		[]*model.NormalizedSbom{snapshot("only", nil)}, nil, diffing.DefaultDiffConfig())
	if err == nil {
		t.Fatalf("single-document timeline must fail")
	}
}

func TestMatrixCoversAllPairs(t *testing.T) {
	snapshots := []*model.NormalizedSbom{
		snapshot("v1", map[string]string{"a": "1.0.0"}),
		snapshot("v2", map[string]string{"a": "2.0.0"}),
		snapshot("v3", map[string]string{"b": "1.0.0"}),
		snapshot("v4", map[string]string{"a": "1.0.0"}),
	}
	result, err := Matrix(context.Background(), snapshots, []string{"v1", "v2", "v3", "v4"}, diffing.DefaultDiffConfig())
	if err != nil {
		t.Fatalf("matrix failed: %v", err)
	}
	if len(result.Cells) != 6 {
		t.Fatalf("4 documents give 6 unordered pairs, got %d", len(result.Cells))
	}
	for _, cell := range result.Cells {
		if cell.Result == nil {
			t.Fatalf("cell %d/%d missing result", cell.Row, cell.Column)
		}
		if cell.Row >= cell.Column {
			t.Errorf("cells must hold row < column, got %d/%d", cell.Row, cell.Column)
		}
	}
	// v1 and v4 share identical content; their cell scores 100.
	for _, cell := range result.Cells {
		if cell.Row == 0 && cell.Column == 3 {
			if cell.Result.Score != 100.0 {
				t.Errorf("identical snapshots must score 100, got %.1f", cell.Result.Score)
			}
		}
	}
}

func TestDiffMultiKeepsTargetOrder(t *testing.T) {
	baseline := snapshot("base", map[string]string{"a": "1.0.0"})
	targets := []*model.NormalizedSbom{
		snapshot("t1", map[string]string{"a": "1.0.1"}),
		snapshot("t2", map[string]string{"a": "1.0.0", "b": "1.0.0"}),
		snapshot("t3", map[string]string{}),
	}
	result, err := DiffMulti(context.Background(), baseline, targets, []string{"t1", "t2", "t3"}, diffing.DefaultDiffConfig())
	if err != nil {
		t.Fatalf("diff-multi failed: %v", err)
	}
	if len(result.Diffs) != 3 {
		t.Fatalf("expected 3 diffs, got %d", len(result.Diffs))
	}
	if result.Diffs[0].Target != "t1" || result.Diffs[2].Target != "t3" {
		t.Errorf("target order must be preserved: %+v", result.Diffs)
	}
	if result.Diffs[1].Result.Summary().Added != 1 {
		t.Errorf("t2 adds one component, got %+v", result.Diffs[1].Result.Summary())
	}
	if result.Diffs[2].Result.Summary().Removed != 1 {
		t.Errorf("t3 removes one component, got %+v", result.Diffs[2].Result.Summary())
	}
}
