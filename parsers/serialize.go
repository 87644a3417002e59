package parsers

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/google/uuid"
	spdxjson "github.com/spdx/tools-golang/json"
	"github.com/spdx/tools-golang/spdx"
	"github.com/spdx/tools-golang/spdx/v2/common"
	"github.com/spdx/tools-golang/tagvalue"

	appcommon "github.com/sbomtools/sbomdiff/common"
	sbommodel "github.com/sbomtools/sbomdiff/model"
)

// Serialize renders the canonical model back into a concrete dialect.
// The canonical projection survives a serialize/parse round trip. Of the
// x-original-* properties, only the CycloneDX bom-ref, publisher and
// copyright and the SPDX download location and comment are written back
// to native fields by their own dialect's writer; the rest are dropped.
func Serialize(sbom *sbommodel.NormalizedSbom, dialect sbommodel.Dialect) ([]byte, error) {
	switch dialect {
	case sbommodel.DialectCycloneDXJson:
		return serializeCycloneDX(sbom, cdx.BOMFileFormatJSON)
	case sbommodel.DialectCycloneDXXml:
		return serializeCycloneDX(sbom, cdx.BOMFileFormatXML)
	case sbommodel.DialectSpdxJson:
		return serializeSpdx(sbom, func(document *spdx.Document, buffer *bytes.Buffer) error {
			return spdxjson.Write(document, buffer)
		})
	case sbommodel.DialectSpdxTagValue:
		return serializeSpdx(sbom, func(document *spdx.Document, buffer *bytes.Buffer) error {
			return tagvalue.Write(document, buffer)
		})
	}
	return nil, fmt.Errorf("no writer for dialect %q", dialect)
}

func serialNumberFor(sbom *sbommodel.NormalizedSbom) string {
	if len(sbom.Meta.SerialNumber) > 0 {
		return sbom.Meta.SerialNumber
	}
	// Deterministic serial keyed on content so re-renders stay stable.
	return "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte("sbomdiff:"+sbom.ContentHash)).String()
}

func serializeCycloneDX(sbom *sbommodel.NormalizedSbom, format cdx.BOMFileFormat) ([]byte, error) {
	bom := cdx.NewBOM()
	bom.SerialNumber = serialNumberFor(sbom)
	bom.SpecVersion = cdx.SpecVersion1_6
	if version, supported := cdxSpecVersionOf(sbom.Meta.SpecVersion); supported {
		bom.SpecVersion = version
	}
	bom.Version = 1
	if version := sbom.Meta.DocVersion; len(version) > 0 {
		fmt.Sscanf(version, "%d", &bom.Version)
	}

	created := sbom.Meta.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	bom.Metadata = &cdx.Metadata{
		Timestamp: created.Format(time.RFC3339),
		Tools: &cdx.ToolsChoice{
			Components: &[]cdx.Component{{
				Type:    cdx.ComponentTypeApplication,
				Name:    "sbomdiff",
				Version: appcommon.Version,
			}},
		},
	}
	// The document subject renders as metadata.component and stays out
	// of the components array; parsing folds it back into the
	// collection, so the projection survives the round trip.
	var rootComponent *sbommodel.Component
	if len(sbom.Meta.Name) > 0 {
		for _, component := range sbom.Components {
			if component.DisplayName == sbom.Meta.Name && component.Type == sbommodel.TypeApplication {
				rootComponent = component
				break
			}
		}
	}
	if rootComponent != nil {
		converted := toCdxComponent(rootComponent)
		bom.Metadata.Component = &converted
	}
	if len(sbom.Meta.Supplier) > 0 {
		bom.Metadata.Supplier = &cdx.OrganizationalEntity{Name: sbom.Meta.Supplier}
	}

	components := make([]cdx.Component, 0, len(sbom.Components))
	vulnerabilities := make([]cdx.Vulnerability, 0)
	for _, component := range sbom.SortedComponents() {
		converted := toCdxComponent(component)
		if component != rootComponent {
			components = append(components, converted)
		}
		vulnerabilities = append(vulnerabilities, toCdxVulnerabilities(component, converted.BOMRef)...)
	}
	bom.Components = &components
	if len(vulnerabilities) > 0 {
		bom.Vulnerabilities = &vulnerabilities
	}

	dependencies := toCdxDependencies(sbom)
	if len(dependencies) > 0 {
		bom.Dependencies = &dependencies
	}

	buffer := bytes.Buffer{}
	encoder := cdx.NewBOMEncoder(&buffer, format)
	encoder.SetPretty(true)
	if err := encoder.Encode(bom); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func bomRefFor(component *sbommodel.Component) string {
	if ref, ok := component.Properties["x-original-cyclonedx-bom-ref"]; ok {
		return ref
	}
	return component.Id.Key()
}

func toCdxComponent(component *sbommodel.Component) cdx.Component {
	converted := cdx.Component{
		BOMRef:      bomRefFor(component),
		Type:        cdx.ComponentType(component.Type),
		Name:        component.DisplayName,
		Group:       component.Id.Namespace,
		Version:     component.Id.Version,
		PackageURL:  component.Purl,
		CPE:         component.Cpe,
		Author:      component.Author,
		Description: component.Description,
	}
	if len(converted.Type) == 0 {
		converted.Type = cdx.ComponentTypeLibrary
	}
	if len(component.Supplier) > 0 {
		converted.Supplier = &cdx.OrganizationalEntity{Name: component.Supplier}
	}
	if len(component.Licenses) > 0 {
		licenses := make(cdx.Licenses, 0, len(component.Licenses))
		for _, expression := range component.Licenses {
			if strings.ContainsAny(expression, " ()") {
				licenses = append(licenses, cdx.LicenseChoice{Expression: expression})
			} else {
				licenses = append(licenses, cdx.LicenseChoice{License: &cdx.License{ID: expression}})
			}
		}
		converted.Licenses = &licenses
	}
	if len(component.Hashes) > 0 {
		hashes := make([]cdx.Hash, 0, len(component.Hashes))
		algorithms := make([]string, 0, len(component.Hashes))
		for algorithm := range component.Hashes {
			algorithms = append(algorithms, algorithm)
		}
		sort.Strings(algorithms)
		for _, algorithm := range algorithms {
			hashes = append(hashes, cdx.Hash{Algorithm: cdx.HashAlgorithm(algorithm), Value: component.Hashes[algorithm]})
		}
		converted.Hashes = &hashes
	}
	properties := make([]cdx.Property, 0)
	for _, key := range propertyKeys(component.Properties) {
		if strings.HasPrefix(key, "x-original-") {
			continue
		}
		properties = append(properties, cdx.Property{Name: key, Value: component.Properties[key]})
	}
	if len(properties) > 0 {
		converted.Properties = &properties
	}
	if publisher, ok := component.Properties["x-original-cyclonedx-publisher"]; ok {
		converted.Publisher = publisher
	}
	if copyright, ok := component.Properties["x-original-cyclonedx-copyright"]; ok {
		converted.Copyright = copyright
	}
	return converted
}

func toCdxVulnerabilities(component *sbommodel.Component, bomRef string) []cdx.Vulnerability {
	result := make([]cdx.Vulnerability, 0, len(component.Vulns))
	for _, vuln := range component.Vulns {
		converted := cdx.Vulnerability{
			ID: vuln.Id,
			Affects: &[]cdx.Affects{{
				Ref: bomRef,
			}},
		}
		if len(vuln.AffectedRange) > 0 {
			ranges := []cdx.AffectedVersions{{Range: vuln.AffectedRange, Status: cdx.VulnerabilityStatusAffected}}
			(*converted.Affects)[0].Range = &ranges
		}
		rating := cdx.VulnerabilityRating{
			Severity: cdx.Severity(vuln.Severity.String()),
			Vector:   vuln.CvssVector,
		}
		if vuln.CvssScore > 0 {
			score := vuln.CvssScore
			rating.Score = &score
		}
		converted.Ratings = &[]cdx.VulnerabilityRating{rating}
		if len(vuln.AdvisoryUrl) > 0 {
			converted.Advisories = &[]cdx.Advisory{{URL: vuln.AdvisoryUrl}}
		}
		result = append(result, converted)
	}
	return result
}

func toCdxDependencies(sbom *sbommodel.NormalizedSbom) []cdx.Dependency {
	grouped := make(map[string][]string)
	for _, edge := range sbom.SortedEdges() {
		fromRef := bomRefFor(sbom.Lookup(edge.From))
		toRef := bomRefFor(sbom.Lookup(edge.To))
		grouped[fromRef] = append(grouped[fromRef], toRef)
	}
	froms := make([]string, 0, len(grouped))
	for from := range grouped {
		froms = append(froms, from)
	}
	sort.Strings(froms)
	result := make([]cdx.Dependency, 0, len(froms))
	for _, from := range froms {
		targets := grouped[from]
		result = append(result, cdx.Dependency{Ref: from, Dependencies: &targets})
	}
	return result
}

func serializeSpdx(sbom *sbommodel.NormalizedSbom, write func(*spdx.Document, *bytes.Buffer) error) ([]byte, error) {
	version := sbom.Meta.SpecVersion
	if !supportedSpdxVersions[version] {
		version = "SPDX-2.3"
	}
	created := sbom.Meta.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	name := sbom.Meta.Name
	if len(name) == 0 {
		name = "sbomdiff-export"
	}
	document := &spdx.Document{
		SPDXVersion:       version,
		DataLicense:       "CC0-1.0",
		SPDXIdentifier:    "DOCUMENT",
		DocumentName:      name,
		DocumentNamespace: serialNumberFor(sbom),
		CreationInfo: &spdx.CreationInfo{
			Created: created.Format(time.RFC3339),
			Creators: []common.Creator{
				{CreatorType: "Tool", Creator: "sbomdiff-" + appcommon.Version},
			},
		},
	}

	elementFor := make(map[string]common.ElementID, len(sbom.Components))
	for at, component := range sbom.SortedComponents() {
		element := common.ElementID(fmt.Sprintf("Package-%d", at))
		elementFor[component.Id.Key()] = element
		document.Packages = append(document.Packages, toSpdxPackage(component, element))
		document.Relationships = append(document.Relationships, &spdx.Relationship{
			RefA:         common.DocElementID{ElementRefID: "DOCUMENT"},
			Relationship: "DESCRIBES",
			RefB:         common.DocElementID{ElementRefID: element},
		})
	}
	for _, edge := range sbom.SortedEdges() {
		from := common.DocElementID{ElementRefID: elementFor[edge.From.Key()]}
		to := common.DocElementID{ElementRefID: elementFor[edge.To.Key()]}
		relationship := "DEPENDS_ON"
		// Scoped dependencies only exist as *_DEPENDENCY_OF types,
		// which run in the opposite direction.
		switch edge.Scope {
		case sbommodel.ScopeDev:
			relationship = "DEV_DEPENDENCY_OF"
			from, to = to, from
		case sbommodel.ScopeOptional:
			relationship = "OPTIONAL_DEPENDENCY_OF"
			from, to = to, from
		case sbommodel.ScopeTest:
			relationship = "TEST_DEPENDENCY_OF"
			from, to = to, from
		}
		document.Relationships = append(document.Relationships, &spdx.Relationship{
			RefA:         from,
			Relationship: relationship,
			RefB:         to,
		})
	}

	buffer := bytes.Buffer{}
	if err := write(document, &buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func toSpdxPackage(component *sbommodel.Component, element common.ElementID) *spdx.Package {
	pkg := &spdx.Package{
		PackageName:             component.DisplayName,
		PackageSPDXIdentifier:   element,
		PackageVersion:          component.Id.Version,
		PackageDownloadLocation: "NOASSERTION",
		PackageDescription:      component.Description,
		PrimaryPackagePurpose:   strings.ToUpper(string(component.Type)),
	}
	if len(component.Supplier) > 0 {
		pkg.PackageSupplier = &common.Supplier{SupplierType: "Organization", Supplier: component.Supplier}
	}
	if len(component.Author) > 0 {
		pkg.PackageOriginator = &common.Originator{OriginatorType: "Person", Originator: component.Author}
	}
	if len(component.Licenses) > 0 {
		pkg.PackageLicenseDeclared = strings.Join(component.Licenses, " AND ")
	}
	for _, algorithm := range propertyKeys(component.Hashes) {
		pkg.PackageChecksums = append(pkg.PackageChecksums, common.Checksum{
			Algorithm: common.ChecksumAlgorithm(algorithm),
			Value:     component.Hashes[algorithm],
		})
	}
	if len(component.Purl) > 0 {
		pkg.PackageExternalReferences = append(pkg.PackageExternalReferences, &spdx.PackageExternalReference{
			Category: "PACKAGE-MANAGER",
			RefType:  "purl",
			Locator:  component.Purl,
		})
	}
	if len(component.Cpe) > 0 {
		pkg.PackageExternalReferences = append(pkg.PackageExternalReferences, &spdx.PackageExternalReference{
			Category: "SECURITY",
			RefType:  "cpe23Type",
			Locator:  component.Cpe,
		})
	}
	if location, ok := component.Properties["x-original-spdx-PackageDownloadLocation"]; ok {
		pkg.PackageDownloadLocation = location
	}
	if comment, ok := component.Properties["x-original-spdx-PackageComment"]; ok {
		pkg.PackageComment = comment
	}
	return pkg
}

func propertyKeys(entries map[string]string) []string {
	result := make([]string, 0, len(entries))
	for key := range entries {
		result = append(result, key)
	}
	sort.Strings(result)
	return result
}
