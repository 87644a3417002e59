package parsers

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/sbomtools/sbomdiff/common"
	"github.com/sbomtools/sbomdiff/model"
)

const (
	// DefaultStreamingThreshold switches to the incremental reader.
	DefaultStreamingThreshold int64 = 512 << 20
	// ProgressChunk is the maximum byte distance between two progress
	// callbacks and cancellation checks.
	ProgressChunk int64 = 4 << 20
)

// ProgressFunc receives bytes read so far and the total size, or -1
// when the total is unknown.
type ProgressFunc func(bytesRead, totalBytes int64)

type Options struct {
	Progress           ProgressFunc
	StreamingThreshold int64
	// RetainRaw keeps the source payload on the result for viewers.
	// Never set on the streaming path.
	RetainRaw bool
}

func (it Options) threshold() int64 {
	if it.StreamingThreshold > 0 {
		return it.StreamingThreshold
	}
	return DefaultStreamingThreshold
}

// ParseFile parses an SBOM document from disk, choosing the streaming
// reader for very large documents.
func ParseFile(ctx context.Context, path string, opts Options) (*model.NormalizedSbom, error) {
	handle, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	stat, err := handle.Stat()
	if err != nil {
		return nil, err
	}
	return Parse(ctx, handle, stat.Size(), path, opts)
}

// ParseBytes parses an in-memory document.
func ParseBytes(ctx context.Context, data []byte, hint string, opts Options) (*model.NormalizedSbom, error) {
	return Parse(ctx, bytes.NewReader(data), int64(len(data)), hint, opts)
}

// Parse detects the dialect from the stream prefix and hint, then routes
// to the dialect parser. Size below zero means unknown and disables the
// streaming decision.
func Parse(ctx context.Context, source io.Reader, size int64, hint string, opts Options) (*model.NormalizedSbom, error) {
	stopwatch := common.Stopwatch("parse of %q", hint)
	defer stopwatch.Debug()

	prefix := make([]byte, SniffWindow)
	count, err := io.ReadFull(source, prefix)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	prefix = prefix[:count]

	dialect, confidence := Detect(prefix, hint)
	common.Debug("detected dialect %s (%s) for %q", dialect, confidence, hint)
	if dialect == model.DialectUnknown {
		return nil, &ParseError{Kind: UnsupportedFormat, Message: "could not detect SBOM dialect", Subject: hint}
	}

	rejoined := io.MultiReader(bytes.NewReader(prefix), source)
	counting := newCountingReader(ctx, rejoined, size, opts.Progress)

	streaming := size > opts.threshold()
	sbom, err := parseDialect(ctx, dialect, counting, streaming, opts)
	if err != nil {
		return nil, err
	}
	if err := sbom.Validate(); err != nil {
		return nil, invalidReference(err.Error())
	}
	sbom.RecomputeContentHash()
	return sbom, nil
}

func parseDialect(ctx context.Context, dialect model.Dialect, source *countingReader, streaming bool, opts Options) (*model.NormalizedSbom, error) {
	switch dialect {
	case model.DialectCycloneDXJson:
		if streaming {
			return streamCycloneDXJson(ctx, source)
		}
		return wholeDocument(source, opts, parseCycloneDXJson)
	case model.DialectCycloneDXXml:
		// No incremental XML reader; large XML documents are read
		// whole and the result carries a warning.
		sbom, err := wholeDocument(source, opts, parseCycloneDXXml)
		if sbom != nil && streaming {
			sbom.Warn("document over streaming threshold was read whole (xml)")
		}
		return sbom, err
	case model.DialectSpdxJson:
		if streaming {
			return streamSpdxJson(ctx, source)
		}
		return wholeDocument(source, opts, parseSpdxJson)
	case model.DialectSpdxTagValue:
		// Tag-value is line-oriented; the same incremental reader
		// serves every document size.
		return parseSpdxTagValue(ctx, source)
	case model.DialectSpdxRdf:
		sbom, err := wholeDocument(source, opts, parseSpdxRdf)
		if sbom != nil && streaming {
			sbom.Warn("document over streaming threshold was read whole (rdf)")
		}
		return sbom, err
	}
	return nil, &ParseError{Kind: UnsupportedFormat, Message: "could not detect SBOM dialect"}
}

func wholeDocument(source *countingReader, opts Options, parse func([]byte) (*model.NormalizedSbom, error)) (*model.NormalizedSbom, error) {
	data, err := io.ReadAll(source)
	if err != nil {
		return nil, err
	}
	sbom, err := parse(data)
	if err != nil {
		return nil, err
	}
	if opts.RetainRaw {
		sbom.Raw = data
	}
	return sbom, nil
}

// countingReader tracks progress and observes cancellation at chunk
// granularity.
type countingReader struct {
	ctx      context.Context
	source   io.Reader
	total    int64
	read     int64
	reported int64
	progress ProgressFunc
}

func newCountingReader(ctx context.Context, source io.Reader, total int64, progress ProgressFunc) *countingReader {
	return &countingReader{ctx: ctx, source: source, total: total, progress: progress}
}

func (it *countingReader) Read(target []byte) (int, error) {
	if err := it.ctx.Err(); err != nil {
		return 0, cancelledError()
	}
	count, err := it.source.Read(target)
	it.read += int64(count)
	if it.progress != nil && (it.read-it.reported >= ProgressChunk || err == io.EOF) {
		it.reported = it.read
		total := it.total
		if total <= 0 {
			total = -1
		}
		it.progress(it.read, total)
	}
	return count, err
}

func (it *countingReader) BytesRead() int64 {
	return it.read
}
