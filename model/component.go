package model

import (
	"sort"
	"strings"
)

// ComponentType follows CycloneDX component classification; SPDX packages
// map to "library" unless the document says otherwise.
type ComponentType string

const (
	TypeApplication ComponentType = "application"
	TypeLibrary     ComponentType = "library"
	TypeFramework   ComponentType = "framework"
	TypeContainer   ComponentType = "container"
	TypeOS          ComponentType = "operating-system"
	TypeDevice      ComponentType = "device"
	TypeFile        ComponentType = "file"
)

// Component is the single canonical record all dialect parsers collapse
// into. Id uniquely keys a component within one SBOM.
type Component struct {
	Id          CanonicalId
	Type        ComponentType
	DisplayName string
	Purl        string
	Cpe         string
	Licenses    []string
	Hashes      map[string]string
	Supplier    string
	Author      string
	Description string
	Eol         *EolInfo
	Vulns       []Vulnerability
	Properties  map[string]string
}

// SetProperty records an ecosystem-specific or lossy-normalization field.
// Dropped dialect fields land here under an "x-original-" prefix.
func (it *Component) SetProperty(key, value string) {
	if it.Properties == nil {
		it.Properties = make(map[string]string)
	}
	it.Properties[key] = value
}

func (it *Component) AddHash(algorithm, digest string) {
	if it.Hashes == nil {
		it.Hashes = make(map[string]string)
	}
	it.Hashes[strings.ToUpper(strings.TrimSpace(algorithm))] = strings.ToLower(strings.TrimSpace(digest))
}

func (it *Component) AddLicense(expression string) {
	normalized := NormalizeLicense(expression)
	if len(normalized) == 0 {
		return
	}
	for _, existing := range it.Licenses {
		if existing == normalized {
			return
		}
	}
	it.Licenses = append(it.Licenses, normalized)
	sort.Strings(it.Licenses)
}

// AddVuln appends a vulnerability unless the same id from the same source
// is already attached. Enrichment relies on this for idempotency.
func (it *Component) AddVuln(incoming Vulnerability) bool {
	for _, existing := range it.Vulns {
		if existing.Id == incoming.Id && existing.Source == incoming.Source {
			return false
		}
	}
	it.Vulns = append(it.Vulns, incoming)
	sort.Slice(it.Vulns, func(left, right int) bool {
		if it.Vulns[left].Id != it.Vulns[right].Id {
			return it.Vulns[left].Id < it.Vulns[right].Id
		}
		return it.Vulns[left].Source < it.Vulns[right].Source
	})
	return true
}

// VulnIds returns the sorted distinct vulnerability ids on this component.
func (it *Component) VulnIds() []string {
	seen := make(map[string]bool, len(it.Vulns))
	result := make([]string, 0, len(it.Vulns))
	for _, vuln := range it.Vulns {
		if !seen[vuln.Id] {
			seen[vuln.Id] = true
			result = append(result, vuln.Id)
		}
	}
	sort.Strings(result)
	return result
}

func (it *Component) FindVuln(id string) *Vulnerability {
	for at, vuln := range it.Vulns {
		if vuln.Id == id {
			return &it.Vulns[at]
		}
	}
	return nil
}

// Clone is a deep copy, used where enrichment must not leak into a
// shared baseline.
func (it *Component) Clone() *Component {
	duplicate := *it
	duplicate.Licenses = append([]string{}, it.Licenses...)
	duplicate.Vulns = append([]Vulnerability{}, it.Vulns...)
	if it.Hashes != nil {
		duplicate.Hashes = make(map[string]string, len(it.Hashes))
		for key, value := range it.Hashes {
			duplicate.Hashes[key] = value
		}
	}
	if it.Properties != nil {
		duplicate.Properties = make(map[string]string, len(it.Properties))
		for key, value := range it.Properties {
			duplicate.Properties[key] = value
		}
	}
	if it.Eol != nil {
		eol := *it.Eol
		duplicate.Eol = &eol
	}
	return &duplicate
}
