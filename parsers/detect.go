package parsers

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/sbomtools/sbomdiff/model"
)

// Confidence names what the detection decision was based on.
type Confidence string

const (
	ConfidenceMagic     Confidence = "magic"
	ConfidenceExtension Confidence = "extension"
	ConfidenceAmbiguous Confidence = "ambiguous"
)

// SniffWindow is how much of the document prefix detection inspects.
const SniffWindow = 4096

// Detect sniffs the dialect from the first bytes of the document, falling
// back to the file name hint. Returns DialectUnknown with ambiguous
// confidence when neither settles it.
func Detect(prefix []byte, hint string) (model.Dialect, Confidence) {
	if len(prefix) > SniffWindow {
		prefix = prefix[:SniffWindow]
	}
	trimmed := bytes.TrimLeft(prefix, " \t\r\n\ufeff")

	if len(trimmed) > 0 && trimmed[0] == '{' {
		if bytes.Contains(trimmed, []byte(`"bomFormat"`)) {
			return model.DialectCycloneDXJson, ConfidenceMagic
		}
		if bytes.Contains(trimmed, []byte(`"spdxVersion"`)) {
			return model.DialectSpdxJson, ConfidenceMagic
		}
	}

	if len(trimmed) > 0 && trimmed[0] == '<' {
		if dialect, found := sniffXmlRoot(trimmed); found {
			return dialect, ConfidenceMagic
		}
	}

	if firstLine := firstNonBlankLine(trimmed); strings.HasPrefix(firstLine, "SPDXVersion:") {
		return model.DialectSpdxTagValue, ConfidenceMagic
	}

	if dialect, found := byExtension(hint); found {
		return dialect, ConfidenceExtension
	}
	return model.DialectUnknown, ConfidenceAmbiguous
}

// sniffXmlRoot walks past processing instructions and comments to the
// root element and matches it against the known namespaces.
func sniffXmlRoot(prefix []byte) (model.Dialect, bool) {
	decoder := xml.NewDecoder(bytes.NewReader(prefix))
	for {
		token, err := decoder.Token()
		if err == io.EOF || err != nil {
			// A truncated prefix can fail mid-element; the root may
			// still have been seen before the error.
			return model.DialectUnknown, false
		}
		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		space := strings.ToLower(start.Name.Space)
		local := strings.ToLower(start.Name.Local)
		if local == "bom" && strings.Contains(space, "cyclonedx") {
			return model.DialectCycloneDXXml, true
		}
		if local == "rdf" && containsSpdxNamespace(start) {
			return model.DialectSpdxRdf, true
		}
		return model.DialectUnknown, false
	}
}

func containsSpdxNamespace(start xml.StartElement) bool {
	if strings.Contains(strings.ToLower(start.Name.Space), "rdf-syntax") {
		for _, attribute := range start.Attr {
			if strings.Contains(strings.ToLower(attribute.Value), "spdx.org") {
				return true
			}
		}
	}
	return false
}

func firstNonBlankLine(prefix []byte) string {
	for _, line := range strings.Split(string(prefix), "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 0 {
			return line
		}
	}
	return ""
}

func byExtension(hint string) (model.Dialect, bool) {
	lower := strings.ToLower(hint)
	switch {
	case strings.HasSuffix(lower, ".cdx.json"):
		return model.DialectCycloneDXJson, true
	case strings.HasSuffix(lower, ".cdx.xml"):
		return model.DialectCycloneDXXml, true
	case strings.HasSuffix(lower, ".spdx.json"):
		return model.DialectSpdxJson, true
	case strings.HasSuffix(lower, ".spdx.rdf"), strings.HasSuffix(lower, ".rdf.xml"), strings.HasSuffix(lower, ".rdf"):
		return model.DialectSpdxRdf, true
	case strings.HasSuffix(lower, ".spdx"):
		return model.DialectSpdxTagValue, true
	case strings.HasSuffix(lower, ".xml"):
		return model.DialectCycloneDXXml, true
	}
	return model.DialectUnknown, false
}
