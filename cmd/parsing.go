package cmd

import (
	"context"
	"os"

	"github.com/sbomtools/sbomdiff/common"
	"github.com/sbomtools/sbomdiff/model"
	"github.com/sbomtools/sbomdiff/parsers"
	"github.com/sbomtools/sbomdiff/pretty"
)

// loadSbom parses one document with a progress bar on big interactive
// reads.
func loadSbom(ctx context.Context, path string) (*model.NormalizedSbom, error) {
	options := parsers.Options{}
	if stat, err := os.Stat(path); err == nil && stat.Size() > parsers.ProgressChunk {
		bar := pretty.NewByteBar("Reading "+path, stat.Size())
		bar.Start()
		defer bar.Stop(true)
		options.Progress = func(read, total int64) {
			bar.Update(read, "")
		}
	}
	sbom, err := parsers.ParseFile(ctx, path, options)
	if err != nil {
		return nil, err
	}
	for _, warning := range sbom.Warnings {
		pretty.Warning("%s: %s", path, warning)
	}
	common.Debug("parsed %q: %d components, %d edges, hash %s",
		path, len(sbom.Components), len(sbom.Edges), sbom.ContentHash)
	return sbom, nil
}
