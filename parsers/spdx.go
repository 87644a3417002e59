package parsers

import (
	"bytes"
	"strings"
	"time"

	spdxjson "github.com/spdx/tools-golang/json"
	spdxrdf "github.com/spdx/tools-golang/rdf"
	"github.com/spdx/tools-golang/spdx"
	"github.com/spdx/tools-golang/spdx/v2/common"

	"github.com/sbomtools/sbomdiff/model"
)

var supportedSpdxVersions = map[string]bool{
	"SPDX-2.2": true,
	"SPDX-2.3": true,
}

func parseSpdxJson(data []byte) (*model.NormalizedSbom, error) {
	document, err := spdxjson.Read(bytes.NewReader(data))
	if err != nil {
		return nil, syntaxError(0, err)
	}
	return convertSpdxDocument(document, model.DialectSpdxJson)
}

func parseSpdxRdf(data []byte) (*model.NormalizedSbom, error) {
	document, err := spdxrdf.Read(bytes.NewReader(data))
	if err != nil {
		return nil, syntaxError(0, err)
	}
	return convertSpdxDocument(document, model.DialectSpdxRdf)
}

func convertSpdxDocument(document *spdx.Document, dialect model.Dialect) (*model.NormalizedSbom, error) {
	if !supportedSpdxVersions[document.SPDXVersion] {
		return nil, schemaError(document.SPDXVersion)
	}
	sbom := model.NewNormalizedSbom(spdxMeta(document, dialect))

	idByElement := make(map[common.ElementID]model.CanonicalId, len(document.Packages))
	for _, pkg := range document.Packages {
		component, err := convertSpdxPackage(pkg, sbom)
		if err != nil {
			return nil, err
		}
		if err := sbom.AddComponent(component); err != nil {
			return nil, duplicateComponent(component.Id.Key())
		}
		idByElement[pkg.PackageSPDXIdentifier] = component.Id
	}

	for _, relationship := range document.Relationships {
		if relationship == nil {
			continue
		}
		if err := convertSpdxRelationship(sbom, relationship, idByElement); err != nil {
			return nil, err
		}
	}
	return sbom, nil
}

func spdxMeta(document *spdx.Document, dialect model.Dialect) model.DocumentMeta {
	meta := model.DocumentMeta{
		Dialect:      dialect,
		SpecVersion:  document.SPDXVersion,
		Name:         document.DocumentName,
		SerialNumber: document.DocumentNamespace,
	}
	if document.CreationInfo != nil {
		if created, err := time.Parse(time.RFC3339, document.CreationInfo.Created); err == nil {
			meta.Created = created.UTC()
		}
		for _, creator := range document.CreationInfo.Creators {
			switch creator.CreatorType {
			case "Tool":
				if len(meta.Tool) == 0 {
					meta.Tool = creator.Creator
				}
			case "Organization":
				if len(meta.Supplier) == 0 {
					meta.Supplier = creator.Creator
				}
			}
		}
	}
	return meta
}

func convertSpdxPackage(pkg *spdx.Package, sbom *model.NormalizedSbom) (*model.Component, error) {
	if pkg == nil || len(pkg.PackageName) == 0 {
		return nil, missingField("PackageName")
	}
	component := &model.Component{
		Type:        spdxPurposeToType(pkg.PrimaryPackagePurpose),
		DisplayName: pkg.PackageName,
		Description: pkg.PackageDescription,
	}

	for _, reference := range pkg.PackageExternalReferences {
		if reference == nil {
			continue
		}
		switch strings.ToLower(reference.RefType) {
		case "purl":
			if len(component.Purl) > 0 {
				continue
			}
			id, canonical, err := NormalizePurl(reference.Locator)
			if err != nil {
				sbom.Warn("package %q carries unparseable purl %q", pkg.PackageName, reference.Locator)
				continue
			}
			component.Id = id
			component.Purl = canonical
		case "cpe23type", "cpe22type":
			if len(component.Cpe) == 0 {
				component.Cpe = reference.Locator
			}
		}
	}
	if len(component.Purl) == 0 {
		component.Id = model.NewCanonicalId(model.EcosystemUnknown, "", pkg.PackageName, pkg.PackageVersion)
	}

	if pkg.PackageSupplier != nil && pkg.PackageSupplier.Supplier != "NOASSERTION" {
		component.Supplier = pkg.PackageSupplier.Supplier
	}
	if pkg.PackageOriginator != nil && pkg.PackageOriginator.Originator != "NOASSERTION" {
		component.Author = pkg.PackageOriginator.Originator
	}
	addSpdxLicense(component, pkg.PackageLicenseConcluded)
	addSpdxLicense(component, pkg.PackageLicenseDeclared)
	for _, checksum := range pkg.PackageChecksums {
		component.AddHash(string(checksum.Algorithm), checksum.Value)
	}

	component.SetProperty("x-original-spdx-SPDXID", string(pkg.PackageSPDXIdentifier))
	if len(pkg.PackageDownloadLocation) > 0 && pkg.PackageDownloadLocation != "NOASSERTION" {
		component.SetProperty("x-original-spdx-PackageDownloadLocation", pkg.PackageDownloadLocation)
	}
	if len(pkg.PackageComment) > 0 {
		component.SetProperty("x-original-spdx-PackageComment", pkg.PackageComment)
	}
	if len(pkg.PackageCopyrightText) > 0 && pkg.PackageCopyrightText != "NOASSERTION" {
		component.SetProperty("x-original-spdx-PackageCopyrightText", pkg.PackageCopyrightText)
	}
	return component, nil
}

func addSpdxLicense(component *model.Component, expression string) {
	if len(expression) == 0 || expression == "NOASSERTION" || expression == "NONE" {
		return
	}
	component.AddLicense(expression)
}

func spdxPurposeToType(purpose string) model.ComponentType {
	switch strings.ToUpper(purpose) {
	case "APPLICATION":
		return model.TypeApplication
	case "FRAMEWORK":
		return model.TypeFramework
	case "CONTAINER":
		return model.TypeContainer
	case "OPERATING-SYSTEM":
		return model.TypeOS
	case "DEVICE":
		return model.TypeDevice
	case "FILE":
		return model.TypeFile
	default:
		return model.TypeLibrary
	}
}

// Dependency-bearing SPDX relationship types and their edge direction.
// "reversed" means RefB depends-wise precedes RefA
// (X DEPENDENCY_OF Y: Y depends on X).
var spdxRelationshipScopes = map[string]struct {
	scope    model.Scope
	reversed bool
}{
	"DEPENDS_ON":             {model.ScopeRuntime, false},
	"DEPENDENCY_OF":          {model.ScopeRuntime, true},
	"RUNTIME_DEPENDENCY_OF":  {model.ScopeRuntime, true},
	"DEV_DEPENDENCY_OF":      {model.ScopeDev, true},
	"BUILD_DEPENDENCY_OF":    {model.ScopeDev, true},
	"OPTIONAL_DEPENDENCY_OF": {model.ScopeOptional, true},
	"TEST_DEPENDENCY_OF":     {model.ScopeTest, true},
}

func convertSpdxRelationship(sbom *model.NormalizedSbom, relationship *spdx.Relationship, idByElement map[common.ElementID]model.CanonicalId) error {
	mapping, relevant := spdxRelationshipScopes[strings.ToUpper(relationship.Relationship)]
	if !relevant {
		return nil
	}
	if isSpecialSpdxRef(relationship.RefA) || isSpecialSpdxRef(relationship.RefB) {
		return nil
	}
	from, okFrom := idByElement[relationship.RefA.ElementRefID]
	to, okTo := idByElement[relationship.RefB.ElementRefID]
	if !okFrom {
		return invalidReference(string(relationship.RefA.ElementRefID))
	}
	if !okTo {
		return invalidReference(string(relationship.RefB.ElementRefID))
	}
	if mapping.reversed {
		from, to = to, from
	}
	sbom.AddEdge(model.DependencyEdge{From: from, To: to, Scope: mapping.scope})
	return nil
}

func isSpecialSpdxRef(ref common.DocElementID) bool {
	if len(ref.SpecialID) > 0 {
		return true
	}
	element := string(ref.ElementRefID)
	return element == "DOCUMENT" || strings.HasPrefix(element, "DocumentRef-")
}
