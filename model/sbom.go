package model

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dchest/siphash"
)

// Scope tags a dependency edge with its resolution class.
type Scope string

const (
	ScopeRuntime  Scope = "runtime"
	ScopeDev      Scope = "dev"
	ScopeOptional Scope = "optional"
	ScopeTest     Scope = "test"
)

func ScopeOf(label string) Scope {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "dev", "development", "dev_dependency", "devdependencies":
		return ScopeDev
	case "optional":
		return ScopeOptional
	case "test":
		return ScopeTest
	default:
		return ScopeRuntime
	}
}

// DependencyEdge is a directed edge in the (possibly cyclic) dependency
// multigraph. Both endpoints must exist in the owning SBOM.
type DependencyEdge struct {
	From  CanonicalId
	To    CanonicalId
	Scope Scope
}

func (it DependencyEdge) Key() string {
	return it.From.Key() + " -> " + it.To.Key() + " [" + string(it.Scope) + "]"
}

// Dialect names the source format of a parsed document.
type Dialect string

const (
	DialectCycloneDXJson Dialect = "cyclonedx-json"
	DialectCycloneDXXml  Dialect = "cyclonedx-xml"
	DialectSpdxJson      Dialect = "spdx-json"
	DialectSpdxTagValue  Dialect = "spdx-tag-value"
	DialectSpdxRdf       Dialect = "spdx-rdf-xml"
	DialectUnknown       Dialect = "unknown"
)

// DocumentMeta is the metadata subset that survives normalization. Of
// it, only Name and Supplier participate in the content hash.
type DocumentMeta struct {
	Dialect      Dialect
	SpecVersion  string
	Name         string
	Tool         string
	Supplier     string
	SerialNumber string
	DocVersion   string
	Created      time.Time
}

// NormalizedSbom is the canonical in-memory document. It is immutable
// after parsing except for enrichment, which adds vulnerability and EOL
// data in place and then recomputes the content hash.
type NormalizedSbom struct {
	Meta       DocumentMeta
	Components []*Component
	Edges      []DependencyEdge

	ContentHash string
	Raw         []byte

	// Warnings collect non-fatal findings (dropped unknown fields,
	// stale cache notes). They never contribute to the content hash.
	Warnings []string

	index map[string]int
}

func (it *NormalizedSbom) Warn(format string, details ...interface{}) {
	it.Warnings = append(it.Warnings, fmt.Sprintf(format, details...))
}

func NewNormalizedSbom(meta DocumentMeta) *NormalizedSbom {
	return &NormalizedSbom{
		Meta:  meta,
		index: make(map[string]int),
	}
}

// AddComponent keeps the component collection keyed by CanonicalId.
// A second component with the same id is a document defect.
func (it *NormalizedSbom) AddComponent(component *Component) error {
	key := component.Id.Key()
	if _, exists := it.index[key]; exists {
		return fmt.Errorf("duplicate component %q", key)
	}
	it.index[key] = len(it.Components)
	it.Components = append(it.Components, component)
	return nil
}

func (it *NormalizedSbom) AddEdge(edge DependencyEdge) {
	it.Edges = append(it.Edges, edge)
}

func (it *NormalizedSbom) Lookup(id CanonicalId) *Component {
	if at, ok := it.index[id.Key()]; ok {
		return it.Components[at]
	}
	return nil
}

func (it *NormalizedSbom) IndexOf(id CanonicalId) (int, bool) {
	at, ok := it.index[id.Key()]
	return at, ok
}

func (it *NormalizedSbom) Len() int {
	return len(it.Components)
}

// Reindex rebuilds the id index, needed after deserialization.
func (it *NormalizedSbom) Reindex() error {
	it.index = make(map[string]int, len(it.Components))
	for at, component := range it.Components {
		key := component.Id.Key()
		if _, exists := it.index[key]; exists {
			return fmt.Errorf("duplicate component %q", key)
		}
		it.index[key] = at
	}
	return nil
}

// Validate enforces the structural invariants: unique ids and no edge
// pointing outside the component collection.
func (it *NormalizedSbom) Validate() error {
	if it.index == nil || len(it.index) != len(it.Components) {
		if err := it.Reindex(); err != nil {
			return err
		}
	}
	for _, edge := range it.Edges {
		if _, ok := it.index[edge.From.Key()]; !ok {
			return fmt.Errorf("edge references missing component %q", edge.From.Key())
		}
		if _, ok := it.index[edge.To.Key()]; !ok {
			return fmt.Errorf("edge references missing component %q", edge.To.Key())
		}
	}
	return nil
}

// SortedComponents returns components ordered by canonical id. The
// receiver's collection order is left alone.
func (it *NormalizedSbom) SortedComponents() []*Component {
	result := append([]*Component{}, it.Components...)
	sort.Slice(result, func(left, right int) bool {
		return result[left].Id.Less(result[right].Id)
	})
	return result
}

// SortedEdges returns edges in canonical order.
func (it *NormalizedSbom) SortedEdges() []DependencyEdge {
	result := append([]DependencyEdge{}, it.Edges...)
	sort.Slice(result, func(left, right int) bool {
		return result[left].Key() < result[right].Key()
	})
	return result
}

// Content hashing uses keyed siphash over the canonical projection:
// sorted components, sorted edges, and the stable metadata subset.
// Raw payload, property insertion order, and x-original-* properties do
// not contribute.
const (
	hashKeyLeft  uint64 = 0x7361626f6d746f6f
	hashKeyRight uint64 = 0x6c73646966666572
)

func (it *NormalizedSbom) RecomputeContentHash() string {
	digest := siphash.New(hashKeyBytes())
	write := func(parts ...string) {
		for _, part := range parts {
			digest.Write([]byte(part))
			digest.Write([]byte{0})
		}
	}
	// The metadata subset is dialect-neutral so the same inventory
	// rendered in another dialect hashes identically.
	write("meta", it.Meta.Name, it.Meta.Supplier)
	for _, component := range it.SortedComponents() {
		write("component", component.Id.Key(), string(component.Type), component.Purl, component.Cpe, component.Supplier)
		write(component.Licenses...)
		for _, algorithm := range sortedKeys(component.Hashes) {
			write(algorithm, component.Hashes[algorithm])
		}
		for _, vuln := range component.Vulns {
			write("vuln", vuln.Id, string(vuln.Source), vuln.Severity.String())
		}
		if component.Eol != nil {
			write("eol", component.Eol.Cycle, component.Eol.EolDate, fmt.Sprintf("%v", component.Eol.IsEol))
		}
		for _, key := range sortedKeys(component.Properties) {
			if strings.HasPrefix(key, "x-original-") {
				continue
			}
			write(key, component.Properties[key])
		}
	}
	for _, edge := range it.SortedEdges() {
		write("edge", edge.Key())
	}
	it.ContentHash = fmt.Sprintf("%016x", digest.Sum64())
	return it.ContentHash
}

func hashKeyBytes() []byte {
	key := make([]byte, 16)
	left, right := hashKeyLeft, hashKeyRight
	for at := 0; at < 8; at++ {
		key[at] = byte(left >> (8 * at))
		key[8+at] = byte(right >> (8 * at))
	}
	return key
}

func sortedKeys(entries map[string]string) []string {
	result := make([]string, 0, len(entries))
	for key := range entries {
		result = append(result, key)
	}
	sort.Strings(result)
	return result
}
