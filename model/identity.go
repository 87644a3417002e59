package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver"
)

// Ecosystem tags the package ecosystem a component identity belongs to.
// Values follow PURL type names. Types outside the known set are carried
// as-is and report IsKnown() == false.
type Ecosystem string

const (
	EcosystemNpm      Ecosystem = "npm"
	EcosystemPypi     Ecosystem = "pypi"
	EcosystemMaven    Ecosystem = "maven"
	EcosystemGolang   Ecosystem = "golang"
	EcosystemCargo    Ecosystem = "cargo"
	EcosystemGem      Ecosystem = "gem"
	EcosystemNuget    Ecosystem = "nuget"
	EcosystemComposer Ecosystem = "composer"
	EcosystemConda    Ecosystem = "conda"
	EcosystemApk      Ecosystem = "apk"
	EcosystemDeb      Ecosystem = "deb"
	EcosystemRpm      Ecosystem = "rpm"
	EcosystemGeneric  Ecosystem = "generic"
	EcosystemUnknown  Ecosystem = ""
)

var knownEcosystems = map[Ecosystem]bool{
	EcosystemNpm:      true,
	EcosystemPypi:     true,
	EcosystemMaven:    true,
	EcosystemGolang:   true,
	EcosystemCargo:    true,
	EcosystemGem:      true,
	EcosystemNuget:    true,
	EcosystemComposer: true,
	EcosystemConda:    true,
	EcosystemApk:      true,
	EcosystemDeb:      true,
	EcosystemRpm:      true,
	EcosystemGeneric:  true,
}

// EcosystemOf maps a PURL type to an ecosystem tag. Unknown types pass
// through lowercased so equality still works within the unknown type.
func EcosystemOf(purlType string) Ecosystem {
	candidate := Ecosystem(strings.ToLower(strings.TrimSpace(purlType)))
	if candidate == "" {
		return EcosystemUnknown
	}
	return candidate
}

func (it Ecosystem) IsKnown() bool {
	return knownEcosystems[it]
}

func (it Ecosystem) IsUnknown() bool {
	return it == EcosystemUnknown || !knownEcosystems[it]
}

func (it Ecosystem) String() string {
	if it == EcosystemUnknown {
		return "unknown"
	}
	return string(it)
}

// CanonicalId is the stable identity of a component across SBOM dialects.
// All fields are stored normalized; two ids are equal iff every normalized
// field matches. Ordering is lexicographic on
// (ecosystem, namespace, name, version).
type CanonicalId struct {
	Ecosystem  Ecosystem
	Namespace  string
	Name       string
	Version    string
	Semver     *semver.Version
	Qualifiers map[string]string
}

// NewCanonicalId normalizes name casing and parses the version triple
// when it is semver-parseable.
func NewCanonicalId(ecosystem Ecosystem, namespace, name, version string) CanonicalId {
	id := CanonicalId{
		Ecosystem: ecosystem,
		Namespace: strings.TrimSpace(namespace),
		Name:      strings.ToLower(strings.TrimSpace(name)),
		Version:   strings.TrimSpace(version),
	}
	if len(id.Version) > 0 {
		if parsed, err := semver.NewVersion(strings.TrimPrefix(id.Version, "v")); err == nil {
			id.Semver = parsed
		}
	}
	return id
}

func (it CanonicalId) WithQualifiers(qualifiers map[string]string) CanonicalId {
	if len(qualifiers) == 0 {
		return it
	}
	it.Qualifiers = make(map[string]string, len(qualifiers))
	for key, value := range qualifiers {
		it.Qualifiers[strings.ToLower(key)] = value
	}
	return it
}

func (it CanonicalId) Equal(other CanonicalId) bool {
	if it.Ecosystem != other.Ecosystem || it.Namespace != other.Namespace {
		return false
	}
	if it.Name != other.Name || it.Version != other.Version {
		return false
	}
	if len(it.Qualifiers) != len(other.Qualifiers) {
		return false
	}
	for key, value := range it.Qualifiers {
		if other.Qualifiers[key] != value {
			return false
		}
	}
	return true
}

func (it CanonicalId) Less(other CanonicalId) bool {
	if it.Ecosystem != other.Ecosystem {
		return it.Ecosystem < other.Ecosystem
	}
	if it.Namespace != other.Namespace {
		return it.Namespace < other.Namespace
	}
	if it.Name != other.Name {
		return it.Name < other.Name
	}
	return it.Version < other.Version
}

// Key is the canonical string form, usable as a map key. Qualifiers are
// serialized in sorted key order so the form is stable.
func (it CanonicalId) Key() string {
	builder := strings.Builder{}
	builder.WriteString(it.Ecosystem.String())
	builder.WriteByte('/')
	if len(it.Namespace) > 0 {
		builder.WriteString(it.Namespace)
		builder.WriteByte('/')
	}
	builder.WriteString(it.Name)
	if len(it.Version) > 0 {
		builder.WriteByte('@')
		builder.WriteString(it.Version)
	}
	if len(it.Qualifiers) > 0 {
		keys := make([]string, 0, len(it.Qualifiers))
		for key := range it.Qualifiers {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		separator := byte('?')
		for _, key := range keys {
			builder.WriteByte(separator)
			separator = '&'
			builder.WriteString(fmt.Sprintf("%s=%s", key, it.Qualifiers[key]))
		}
	}
	return builder.String()
}

func (it CanonicalId) String() string {
	return it.Key()
}

// VersionlessKey identifies the component line without its version.
func (it CanonicalId) VersionlessKey() string {
	versionless := it
	versionless.Version = ""
	versionless.Semver = nil
	versionless.Qualifiers = nil
	return versionless.Key()
}
