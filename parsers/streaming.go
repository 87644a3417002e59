package parsers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/spdx/tools-golang/spdx"

	"github.com/sbomtools/sbomdiff/common"
	"github.com/sbomtools/sbomdiff/model"
)

// The streaming readers hold at most one in-flight component plus the
// reference tables needed to resolve dependencies at the end. They serve
// documents beyond the streaming threshold where decoding the whole
// document would break the memory ceiling.

func streamCycloneDXJson(ctx context.Context, source io.Reader) (*model.NormalizedSbom, error) {
	decoder := json.NewDecoder(source)
	assembler := &cdxAssembler{refToId: make(map[string]model.CanonicalId), scopes: make(map[string]model.Scope)}

	if err := expectDelim(decoder, '{'); err != nil {
		return nil, err
	}
	for decoder.More() {
		if err := ctx.Err(); err != nil {
			return nil, cancelledError()
		}
		key, err := stringToken(decoder)
		if err != nil {
			return nil, err
		}
		if err := assembler.handleKey(ctx, decoder, key); err != nil {
			return nil, err
		}
	}
	return assembler.finish()
}

type cdxAssembler struct {
	bomFormat       string
	specVersion     string
	serialNumber    string
	docVersion      int
	metadata        *cdx.Metadata
	metadataAdopted bool
	sbom            *model.NormalizedSbom
	refToId         map[string]model.CanonicalId
	scopes          map[string]model.Scope
	dependencies    []cdx.Dependency
	vulns           []cdx.Vulnerability
	pending         []*pendingComponent
}

type pendingComponent struct {
	component *model.Component
	bomRef    string
}

func (it *cdxAssembler) handleKey(ctx context.Context, decoder *json.Decoder, key string) error {
	switch key {
	case "bomFormat":
		return decoder.Decode(&it.bomFormat)
	case "specVersion":
		return decoder.Decode(&it.specVersion)
	case "serialNumber":
		return decoder.Decode(&it.serialNumber)
	case "version":
		return decoder.Decode(&it.docVersion)
	case "metadata":
		it.metadata = new(cdx.Metadata)
		if err := decoder.Decode(it.metadata); err != nil {
			return err
		}
		// Metadata arriving after the document was materialized still
		// lands on it, root component included.
		if it.sbom != nil {
			it.sbom.Meta = it.documentMeta()
			return it.adoptMetadataComponent()
		}
		return nil
	case "components":
		return eachElement(ctx, decoder, func() error {
			component := new(cdx.Component)
			if err := decoder.Decode(component); err != nil {
				return syntaxError(decoder.InputOffset(), err)
			}
			return it.takeComponent(component)
		})
	case "dependencies":
		return eachElement(ctx, decoder, func() error {
			dependency := cdx.Dependency{}
			if err := decoder.Decode(&dependency); err != nil {
				return syntaxError(decoder.InputOffset(), err)
			}
			it.dependencies = append(it.dependencies, dependency)
			return nil
		})
	case "vulnerabilities":
		return eachElement(ctx, decoder, func() error {
			vulnerability := cdx.Vulnerability{}
			if err := decoder.Decode(&vulnerability); err != nil {
				return syntaxError(decoder.InputOffset(), err)
			}
			it.vulns = append(it.vulns, vulnerability)
			return nil
		})
	default:
		return skipValue(decoder)
	}
}

// takeComponent converts immediately so only one dialect-shaped record
// is alive at a time. The document materializes as soon as the header
// fields have been seen; until then (a document with its components
// array ahead of the header) converted records queue in a bounded
// window.
func (it *cdxAssembler) takeComponent(source *cdx.Component) error {
	if it.sbom == nil && it.headerSeen() {
		if err := it.ensureSbom(); err != nil {
			return err
		}
	}
	target := it.sbom
	if target == nil {
		target = model.NewNormalizedSbom(model.DocumentMeta{})
	}
	component, err := convertCdxComponent(source, target)
	if err != nil {
		return err
	}
	if source.Scope == cdx.ScopeOptional {
		it.scopes[source.BOMRef] = model.ScopeOptional
	} else {
		it.scopes[source.BOMRef] = model.ScopeRuntime
	}
	it.pending = append(it.pending, &pendingComponent{component: component, bomRef: source.BOMRef})
	if it.sbom == nil && len(it.pending) > 4096 {
		return &ParseError{Kind: MalformedSyntax, Message: "components array precedes bomFormat header beyond sanity window"}
	}
	return it.flushPending()
}

func (it *cdxAssembler) headerSeen() bool {
	_, supported := cdxSpecVersionOf(it.specVersion)
	return it.bomFormat == "CycloneDX" && supported
}

func (it *cdxAssembler) flushPending() error {
	if it.sbom == nil {
		return nil
	}
	for _, entry := range it.pending {
		if err := it.sbom.AddComponent(entry.component); err != nil {
			return duplicateComponent(entry.component.Id.Key())
		}
		if len(entry.bomRef) > 0 {
			it.refToId[entry.bomRef] = entry.component.Id
		}
	}
	it.pending = it.pending[:0]
	return nil
}

func (it *cdxAssembler) documentMeta() model.DocumentMeta {
	version, _ := cdxSpecVersionOf(it.specVersion)
	shell := &cdx.BOM{
		SpecVersion:  version,
		SerialNumber: it.serialNumber,
		Version:      it.docVersion,
		Metadata:     it.metadata,
	}
	return cycloneDXMeta(shell, model.DialectCycloneDXJson)
}

func (it *cdxAssembler) ensureSbom() error {
	if it.sbom != nil {
		return nil
	}
	if it.bomFormat != "CycloneDX" {
		return &ParseError{Kind: MalformedSyntax, Message: "bomFormat is not CycloneDX", Subject: it.bomFormat}
	}
	if _, supported := cdxSpecVersionOf(it.specVersion); !supported {
		return schemaError(it.specVersion)
	}
	it.sbom = model.NewNormalizedSbom(it.documentMeta())
	return it.adoptMetadataComponent()
}

// adoptMetadataComponent folds the document subject into the component
// collection, matching the whole-document reader.
func (it *cdxAssembler) adoptMetadataComponent() error {
	if it.sbom == nil || it.metadata == nil || it.metadata.Component == nil || it.metadataAdopted {
		return nil
	}
	it.metadataAdopted = true
	component, err := convertCdxComponent(it.metadata.Component, it.sbom)
	if err != nil {
		return err
	}
	if err := it.sbom.AddComponent(component); err != nil {
		return duplicateComponent(component.Id.Key())
	}
	if ref := it.metadata.Component.BOMRef; len(ref) > 0 {
		it.refToId[ref] = component.Id
	}
	return nil
}

func (it *cdxAssembler) finish() (*model.NormalizedSbom, error) {
	if err := it.ensureSbom(); err != nil {
		return nil, err
	}
	if err := it.flushPending(); err != nil {
		return nil, err
	}
	for _, dependency := range it.dependencies {
		from, ok := it.refToId[dependency.Ref]
		if !ok {
			return nil, invalidReference(dependency.Ref)
		}
		if dependency.Dependencies == nil {
			continue
		}
		for _, target := range *dependency.Dependencies {
			to, ok := it.refToId[target]
			if !ok {
				return nil, invalidReference(target)
			}
			it.sbom.AddEdge(model.DependencyEdge{From: from, To: to, Scope: it.scopes[target]})
		}
	}
	if len(it.vulns) > 0 {
		attachCdxVulnerabilities(it.sbom, it.vulns, it.refToId)
	}
	return it.sbom, nil
}

func cdxSpecVersionOf(label string) (cdx.SpecVersion, bool) {
	switch label {
	case "1.4":
		return cdx.SpecVersion1_4, true
	case "1.5":
		return cdx.SpecVersion1_5, true
	case "1.6":
		return cdx.SpecVersion1_6, true
	}
	return 0, false
}

func streamSpdxJson(ctx context.Context, source io.Reader) (*model.NormalizedSbom, error) {
	decoder := json.NewDecoder(source)
	document := &spdx.Document{CreationInfo: &spdx.CreationInfo{}}
	state := &tagValueState{document: document, dialect: model.DialectSpdxJson}

	var packagesSeen bool
	if err := expectDelim(decoder, '{'); err != nil {
		return nil, err
	}
	for decoder.More() {
		if err := ctx.Err(); err != nil {
			return nil, cancelledError()
		}
		key, err := stringToken(decoder)
		if err != nil {
			return nil, err
		}
		switch key {
		case "spdxVersion":
			if err := decoder.Decode(&document.SPDXVersion); err != nil {
				return nil, syntaxError(decoder.InputOffset(), err)
			}
			if !supportedSpdxVersions[document.SPDXVersion] {
				return nil, schemaError(document.SPDXVersion)
			}
		case "name":
			if err := decoder.Decode(&document.DocumentName); err != nil {
				return nil, syntaxError(decoder.InputOffset(), err)
			}
		case "documentNamespace":
			if err := decoder.Decode(&document.DocumentNamespace); err != nil {
				return nil, syntaxError(decoder.InputOffset(), err)
			}
		case "creationInfo":
			if err := decoder.Decode(document.CreationInfo); err != nil {
				return nil, syntaxError(decoder.InputOffset(), err)
			}
		case "packages":
			packagesSeen = true
			err := eachElement(ctx, decoder, func() error {
				pkg := new(spdx.Package)
				if err := decoder.Decode(pkg); err != nil {
					return syntaxError(decoder.InputOffset(), err)
				}
				state.current = pkg
				return state.finishPackage()
			})
			if err != nil {
				return nil, err
			}
		case "relationships":
			err := eachElement(ctx, decoder, func() error {
				relationship := new(spdx.Relationship)
				if err := decoder.Decode(relationship); err != nil {
					return syntaxError(decoder.InputOffset(), err)
				}
				state.relationships = append(state.relationships, relationship)
				return nil
			})
			if err != nil {
				return nil, err
			}
		default:
			if err := skipValue(decoder); err != nil {
				return nil, err
			}
		}
	}

	if len(document.SPDXVersion) == 0 {
		return nil, missingField("spdxVersion")
	}
	if !packagesSeen {
		common.Debug("spdx document %q carries no packages", document.DocumentName)
	}
	for _, relationship := range state.relationships {
		if err := convertSpdxRelationship(state.sbom(), relationship, state.idByElement); err != nil {
			return nil, err
		}
	}
	return state.sbom(), nil
}

func expectDelim(decoder *json.Decoder, expected rune) error {
	token, err := decoder.Token()
	if err != nil {
		return syntaxError(decoder.InputOffset(), err)
	}
	delim, ok := token.(json.Delim)
	if !ok || rune(delim) != expected {
		return syntaxError(decoder.InputOffset(), fmt.Errorf("expected %q, got %v", expected, token))
	}
	return nil
}

func stringToken(decoder *json.Decoder) (string, error) {
	token, err := decoder.Token()
	if err != nil {
		return "", syntaxError(decoder.InputOffset(), err)
	}
	text, ok := token.(string)
	if !ok {
		return "", syntaxError(decoder.InputOffset(), fmt.Errorf("expected object key, got %v", token))
	}
	return text, nil
}

func eachElement(ctx context.Context, decoder *json.Decoder, each func() error) error {
	if err := expectDelim(decoder, '['); err != nil {
		return err
	}
	for decoder.More() {
		if err := ctx.Err(); err != nil {
			return cancelledError()
		}
		if err := each(); err != nil {
			return err
		}
	}
	return expectDelim(decoder, ']')
}

func skipValue(decoder *json.Decoder) error {
	token, err := decoder.Token()
	if err != nil {
		return syntaxError(decoder.InputOffset(), err)
	}
	delim, ok := token.(json.Delim)
	if !ok {
		return nil
	}
	if delim == '[' || delim == '{' {
		for decoder.More() {
			if err := skipValue(decoder); err != nil {
				return err
			}
		}
		_, err := decoder.Token()
		if err != nil {
			return syntaxError(decoder.InputOffset(), err)
		}
	}
	return nil
}
