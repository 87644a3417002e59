package parsers

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/sbomtools/sbomdiff/model"
)

func parseCycloneDXJson(data []byte) (*model.NormalizedSbom, error) {
	return parseCycloneDX(data, cdx.BOMFileFormatJSON, model.DialectCycloneDXJson)
}

func parseCycloneDXXml(data []byte) (*model.NormalizedSbom, error) {
	return parseCycloneDX(data, cdx.BOMFileFormatXML, model.DialectCycloneDXXml)
}

func parseCycloneDX(data []byte, format cdx.BOMFileFormat, dialect model.Dialect) (*model.NormalizedSbom, error) {
	bom := new(cdx.BOM)
	decoder := cdx.NewBOMDecoder(bytes.NewReader(data), format)
	if err := decoder.Decode(bom); err != nil {
		return nil, syntaxError(0, err)
	}
	return convertCycloneDX(bom, dialect)
}

func convertCycloneDX(bom *cdx.BOM, dialect model.Dialect) (*model.NormalizedSbom, error) {
	if bom.SpecVersion < cdx.SpecVersion1_4 || bom.SpecVersion > cdx.SpecVersion1_6 {
		return nil, schemaError(bom.SpecVersion.String())
	}

	sbom := model.NewNormalizedSbom(cycloneDXMeta(bom, dialect))

	refToId := make(map[string]model.CanonicalId)
	if bom.Metadata != nil && bom.Metadata.Component != nil {
		component, err := convertCdxComponent(bom.Metadata.Component, sbom)
		if err != nil {
			return nil, err
		}
		if err := addCdxComponent(sbom, component, bom.Metadata.Component.BOMRef, refToId); err != nil {
			return nil, err
		}
	}
	if bom.Components != nil {
		for at := range *bom.Components {
			source := &(*bom.Components)[at]
			component, err := convertCdxComponent(source, sbom)
			if err != nil {
				return nil, err
			}
			if err := addCdxComponent(sbom, component, source.BOMRef, refToId); err != nil {
				return nil, err
			}
		}
	}

	scopeOf := cdxScopes(bom)
	if bom.Dependencies != nil {
		for _, dependency := range *bom.Dependencies {
			from, ok := refToId[dependency.Ref]
			if !ok {
				return nil, invalidReference(dependency.Ref)
			}
			if dependency.Dependencies == nil {
				continue
			}
			for _, target := range *dependency.Dependencies {
				to, ok := refToId[target]
				if !ok {
					return nil, invalidReference(target)
				}
				sbom.AddEdge(model.DependencyEdge{From: from, To: to, Scope: scopeOf[target]})
			}
		}
	}

	if bom.Vulnerabilities != nil {
		attachCdxVulnerabilities(sbom, *bom.Vulnerabilities, refToId)
	}
	return sbom, nil
}

func cycloneDXMeta(bom *cdx.BOM, dialect model.Dialect) model.DocumentMeta {
	meta := model.DocumentMeta{
		Dialect:      dialect,
		SpecVersion:  bom.SpecVersion.String(),
		SerialNumber: bom.SerialNumber,
		DocVersion:   fmt.Sprintf("%d", bom.Version),
	}
	if bom.Metadata == nil {
		return meta
	}
	if created, err := time.Parse(time.RFC3339, bom.Metadata.Timestamp); err == nil {
		meta.Created = created.UTC()
	}
	if bom.Metadata.Component != nil {
		meta.Name = bom.Metadata.Component.Name
	}
	if bom.Metadata.Supplier != nil {
		meta.Supplier = bom.Metadata.Supplier.Name
	}
	if bom.Metadata.Tools != nil {
		if bom.Metadata.Tools.Components != nil && len(*bom.Metadata.Tools.Components) > 0 {
			tool := (*bom.Metadata.Tools.Components)[0]
			meta.Tool = strings.TrimSpace(tool.Name + " " + tool.Version)
		} else if bom.Metadata.Tools.Tools != nil && len(*bom.Metadata.Tools.Tools) > 0 {
			tool := (*bom.Metadata.Tools.Tools)[0]
			meta.Tool = strings.TrimSpace(tool.Name + " " + tool.Version)
		}
	}
	return meta
}

func cdxScopes(bom *cdx.BOM) map[string]model.Scope {
	scopes := make(map[string]model.Scope)
	if bom.Components == nil {
		return scopes
	}
	for _, component := range *bom.Components {
		if component.Scope == cdx.ScopeOptional {
			scopes[component.BOMRef] = model.ScopeOptional
		} else {
			scopes[component.BOMRef] = model.ScopeRuntime
		}
	}
	return scopes
}

func addCdxComponent(sbom *model.NormalizedSbom, component *model.Component, bomRef string, refToId map[string]model.CanonicalId) error {
	if err := sbom.AddComponent(component); err != nil {
		return duplicateComponent(component.Id.Key())
	}
	if len(bomRef) > 0 {
		refToId[bomRef] = component.Id
	}
	return nil
}

func convertCdxComponent(source *cdx.Component, sbom *model.NormalizedSbom) (*model.Component, error) {
	if len(source.Name) == 0 {
		return nil, missingField("component.name")
	}
	component := &model.Component{
		Type:        model.ComponentType(source.Type),
		DisplayName: source.Name,
		Cpe:         source.CPE,
		Author:      source.Author,
		Description: source.Description,
	}
	if len(component.Type) == 0 {
		component.Type = model.TypeLibrary
	}

	if len(source.PackageURL) > 0 {
		id, canonical, err := NormalizePurl(source.PackageURL)
		if err != nil {
			sbom.Warn("component %q carries unparseable purl %q", source.Name, source.PackageURL)
		} else {
			component.Id = id
			component.Purl = canonical
		}
	}
	if len(component.Purl) == 0 {
		component.Id = model.NewCanonicalId(model.EcosystemUnknown, source.Group, source.Name, source.Version)
	}

	if source.Supplier != nil {
		component.Supplier = source.Supplier.Name
	}
	if source.Licenses != nil {
		for _, choice := range *source.Licenses {
			switch {
			case len(choice.Expression) > 0:
				component.AddLicense(choice.Expression)
			case choice.License != nil && len(choice.License.ID) > 0:
				component.AddLicense(choice.License.ID)
			case choice.License != nil && len(choice.License.Name) > 0:
				component.AddLicense(choice.License.Name)
			}
		}
	}
	if source.Hashes != nil {
		for _, hash := range *source.Hashes {
			component.AddHash(string(hash.Algorithm), hash.Value)
		}
	}
	if source.Properties != nil {
		for _, property := range *source.Properties {
			component.SetProperty(property.Name, property.Value)
		}
	}

	// Fields with no canonical equivalent are kept under the lossy
	// normalization prefix.
	if len(source.BOMRef) > 0 {
		component.SetProperty("x-original-cyclonedx-bom-ref", source.BOMRef)
	}
	if len(source.Publisher) > 0 {
		component.SetProperty("x-original-cyclonedx-publisher", source.Publisher)
	}
	if len(source.Copyright) > 0 {
		component.SetProperty("x-original-cyclonedx-copyright", source.Copyright)
	}
	if len(source.Scope) > 0 {
		component.SetProperty("x-original-cyclonedx-scope", string(source.Scope))
	}
	return component, nil
}

func attachCdxVulnerabilities(sbom *model.NormalizedSbom, vulnerabilities []cdx.Vulnerability, refToId map[string]model.CanonicalId) {
	for at := range vulnerabilities {
		source := &vulnerabilities[at]
		if len(source.ID) == 0 || source.Affects == nil {
			continue
		}
		vuln := model.Vulnerability{
			Id:     source.ID,
			Source: model.SourceInBand,
		}
		vuln.Severity = model.SeverityUnknown
		if source.Ratings != nil {
			for _, rating := range *source.Ratings {
				if len(rating.Severity) > 0 && vuln.Severity == model.SeverityUnknown {
					vuln.Severity = model.SeverityOf(string(rating.Severity))
				}
				if rating.Score != nil && vuln.CvssScore == 0 {
					vuln.CvssScore = *rating.Score
				}
				if len(rating.Vector) > 0 && len(vuln.CvssVector) == 0 {
					vuln.CvssVector = rating.Vector
				}
			}
		}
		if source.Advisories != nil && len(*source.Advisories) > 0 {
			vuln.AdvisoryUrl = (*source.Advisories)[0].URL
		}
		for _, affected := range *source.Affects {
			target, ok := refToId[affected.Ref]
			if !ok {
				sbom.Warn("vulnerability %s affects unknown ref %q", source.ID, affected.Ref)
				continue
			}
			entry := vuln
			if affected.Range != nil {
				for _, versions := range *affected.Range {
					if len(versions.Range) > 0 && len(entry.AffectedRange) == 0 {
						entry.AffectedRange = versions.Range
					}
				}
			}
			if component := sbom.Lookup(target); component != nil {
				component.AddVuln(entry)
			}
		}
	}
}
