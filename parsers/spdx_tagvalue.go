package parsers

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spdx/tools-golang/spdx"
	"github.com/spdx/tools-golang/spdx/v2/common"

	"github.com/sbomtools/sbomdiff/model"
)

// parseSpdxTagValue is a line-oriented incremental reader: it holds at
// most one in-flight package plus the relationship triples, so the same
// code path serves both small and multi-gigabyte documents.
func parseSpdxTagValue(ctx context.Context, source io.Reader) (*model.NormalizedSbom, error) {
	reader := bufio.NewReaderSize(source, 64*1024)
	state := &tagValueState{
		document: &spdx.Document{CreationInfo: &spdx.CreationInfo{}},
		dialect:  model.DialectSpdxTagValue,
	}

	line := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, cancelledError()
		}
		text, err := reader.ReadString('\n')
		if len(text) > 0 {
			line += 1
			if handleErr := state.handleLine(line, strings.TrimRight(text, "\r\n"), reader); handleErr != nil {
				return nil, handleErr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	if len(state.document.SPDXVersion) == 0 {
		return nil, missingField("SPDXVersion")
	}
	if !supportedSpdxVersions[state.document.SPDXVersion] {
		return nil, schemaError(state.document.SPDXVersion)
	}
	if err := state.finishPackage(); err != nil {
		return nil, err
	}
	for _, relationship := range state.relationships {
		if err := convertSpdxRelationship(state.sbom(), relationship, state.idByElement); err != nil {
			return nil, err
		}
	}
	return state.sbom(), nil
}

type tagValueState struct {
	document      *spdx.Document
	dialect       model.Dialect
	current       *spdx.Package
	result        *model.NormalizedSbom
	idByElement   map[common.ElementID]model.CanonicalId
	relationships []*spdx.Relationship
}

func (it *tagValueState) sbom() *model.NormalizedSbom {
	if it.result == nil {
		it.result = model.NewNormalizedSbom(spdxMeta(it.document, it.dialect))
		it.idByElement = make(map[common.ElementID]model.CanonicalId)
	}
	return it.result
}

func (it *tagValueState) handleLine(line int, text string, reader *bufio.Reader) error {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) == 0 || strings.HasPrefix(trimmed, "##") {
		return nil
	}
	tag, value, ok := strings.Cut(trimmed, ":")
	if !ok {
		return &ParseError{Kind: MalformedSyntax, Message: "expected 'Tag: value'", Line: line}
	}
	tag = strings.TrimSpace(tag)
	value = strings.TrimSpace(value)

	// Multi-line values open with <text> and run verbatim until a line
	// whose trailing content closes with </text>; the terminator may
	// share its line with text.
	if strings.HasPrefix(value, "<text>") {
		full, err := readTextBlock(strings.TrimPrefix(value, "<text>"), reader)
		if err == errTextBlockTooLarge {
			return &ParseError{Kind: OversizedField, Message: "text block exceeds the field size limit", Line: line, Subject: tag}
		}
		if err != nil {
			return &ParseError{Kind: MalformedSyntax, Message: "unterminated <text> block", Line: line}
		}
		value = full
	}
	return it.handleTag(line, tag, value)
}

// maxTextBlockBytes bounds a single <text> value so one runaway field
// cannot defeat the streaming memory ceiling.
const maxTextBlockBytes = 16 << 20

var errTextBlockTooLarge = fmt.Errorf("text block over %d bytes", maxTextBlockBytes)

func readTextBlock(first string, reader *bufio.Reader) (string, error) {
	if closed, ok := strings.CutSuffix(first, "</text>"); ok {
		return closed, nil
	}
	builder := strings.Builder{}
	builder.WriteString(first)
	for {
		if builder.Len() > maxTextBlockBytes {
			return "", errTextBlockTooLarge
		}
		text, err := reader.ReadString('\n')
		if len(text) > 0 {
			chunk := strings.TrimRight(text, "\r\n")
			if closed, ok := strings.CutSuffix(chunk, "</text>"); ok {
				builder.WriteString("\n")
				builder.WriteString(closed)
				return builder.String(), nil
			}
			builder.WriteString("\n")
			builder.WriteString(chunk)
		}
		if err != nil {
			return "", err
		}
	}
}

func (it *tagValueState) handleTag(line int, tag, value string) error {
	switch tag {
	case "SPDXVersion":
		it.document.SPDXVersion = value
	case "DocumentName":
		it.document.DocumentName = value
	case "DocumentNamespace":
		it.document.DocumentNamespace = value
	case "Created":
		it.document.CreationInfo.Created = value
	case "Creator":
		kind, who, ok := strings.Cut(value, ":")
		if ok {
			it.document.CreationInfo.Creators = append(it.document.CreationInfo.Creators,
				common.Creator{CreatorType: strings.TrimSpace(kind), Creator: strings.TrimSpace(who)})
		}
	case "PackageName":
		if err := it.finishPackage(); err != nil {
			return err
		}
		it.current = &spdx.Package{PackageName: value}
	case "SPDXID":
		if it.current != nil {
			it.current.PackageSPDXIdentifier = common.ElementID(strings.TrimPrefix(value, "SPDXRef-"))
		}
	case "PackageVersion":
		if it.current != nil {
			it.current.PackageVersion = value
		}
	case "PackageSupplier":
		it.setActor(value, func(pkg *spdx.Package, actor common.Supplier) {
			pkg.PackageSupplier = &actor
		})
	case "PackageOriginator":
		if it.current != nil {
			kind, who, ok := strings.Cut(value, ":")
			if ok {
				it.current.PackageOriginator = &common.Originator{
					OriginatorType: strings.TrimSpace(kind),
					Originator:     strings.TrimSpace(who),
				}
			}
		}
	case "PackageLicenseConcluded":
		if it.current != nil {
			it.current.PackageLicenseConcluded = value
		}
	case "PackageLicenseDeclared":
		if it.current != nil {
			it.current.PackageLicenseDeclared = value
		}
	case "PackageChecksum":
		if it.current != nil {
			algorithm, digest, ok := strings.Cut(value, ":")
			if ok {
				it.current.PackageChecksums = append(it.current.PackageChecksums, common.Checksum{
					Algorithm: common.ChecksumAlgorithm(strings.TrimSpace(algorithm)),
					Value:     strings.TrimSpace(digest),
				})
			}
		}
	case "ExternalRef":
		if it.current != nil {
			fields := strings.Fields(value)
			if len(fields) == 3 {
				it.current.PackageExternalReferences = append(it.current.PackageExternalReferences,
					&spdx.PackageExternalReference{Category: fields[0], RefType: fields[1], Locator: fields[2]})
			}
		}
	case "PackageComment":
		if it.current != nil {
			it.current.PackageComment = value
		}
	case "PackageDownloadLocation":
		if it.current != nil {
			it.current.PackageDownloadLocation = value
		}
	case "PackageCopyrightText":
		if it.current != nil {
			it.current.PackageCopyrightText = value
		}
	case "PrimaryPackagePurpose":
		if it.current != nil {
			it.current.PrimaryPackagePurpose = value
		}
	case "Relationship":
		fields := strings.Fields(value)
		if len(fields) != 3 {
			return &ParseError{Kind: MalformedSyntax, Message: "expected 'Relationship: A TYPE B'", Line: line}
		}
		it.relationships = append(it.relationships, &spdx.Relationship{
			RefA:         common.DocElementID{ElementRefID: common.ElementID(strings.TrimPrefix(fields[0], "SPDXRef-"))},
			Relationship: fields[1],
			RefB:         common.DocElementID{ElementRefID: common.ElementID(strings.TrimPrefix(fields[2], "SPDXRef-"))},
		})
	}
	return nil
}

func (it *tagValueState) setActor(value string, assign func(*spdx.Package, common.Supplier)) {
	if it.current == nil {
		return
	}
	kind, who, ok := strings.Cut(value, ":")
	if !ok {
		return
	}
	assign(it.current, common.Supplier{
		SupplierType: strings.TrimSpace(kind),
		Supplier:     strings.TrimSpace(who),
	})
}

func (it *tagValueState) finishPackage() error {
	if it.current == nil {
		return nil
	}
	pkg := it.current
	it.current = nil
	component, err := convertSpdxPackage(pkg, it.sbom())
	if err != nil {
		return err
	}
	if err := it.sbom().AddComponent(component); err != nil {
		return duplicateComponent(component.Id.Key())
	}
	it.idByElement[pkg.PackageSPDXIdentifier] = component.Id
	return nil
}
