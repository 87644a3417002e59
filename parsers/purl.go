package parsers

import (
	"fmt"
	"sync"

	"github.com/package-url/packageurl-go"
	"github.com/sbomtools/sbomdiff/model"
)

// purlCache memoizes PURL normalization; read-mostly after the first
// pass over a document, safe to share across matcher shards.
var purlCache = struct {
	sync.RWMutex
	entries map[string]purlEntry
}{entries: make(map[string]purlEntry)}

type purlEntry struct {
	id        model.CanonicalId
	canonical string
	err       error
}

// NormalizePurl parses a PURL into a canonical id plus its canonical
// string form. Unknown PURL types keep their type name as an unknown
// ecosystem tag.
func NormalizePurl(raw string) (model.CanonicalId, string, error) {
	purlCache.RLock()
	cached, hit := purlCache.entries[raw]
	purlCache.RUnlock()
	if hit {
		return cached.id, cached.canonical, cached.err
	}

	id, canonical, err := normalizePurl(raw)
	purlCache.Lock()
	purlCache.entries[raw] = purlEntry{id: id, canonical: canonical, err: err}
	purlCache.Unlock()
	return id, canonical, err
}

func normalizePurl(raw string) (model.CanonicalId, string, error) {
	parsed, err := packageurl.FromString(raw)
	if err != nil {
		return model.CanonicalId{}, "", fmt.Errorf("invalid purl %q: %w", raw, err)
	}
	id := model.NewCanonicalId(
		model.EcosystemOf(parsed.Type),
		parsed.Namespace,
		parsed.Name,
		parsed.Version,
	).WithQualifiers(parsed.Qualifiers.Map())
	return id, parsed.ToString(), nil
}

// PurlFor reserializes a canonical id back to PURL form. Used when a
// component had no PURL but has a fully known identity.
func PurlFor(id model.CanonicalId) string {
	if id.Ecosystem.IsUnknown() || len(id.Name) == 0 {
		return ""
	}
	qualifiers := packageurl.Qualifiers{}
	if len(id.Qualifiers) > 0 {
		qualifiers = packageurl.QualifiersFromMap(id.Qualifiers)
	}
	return packageurl.NewPackageURL(string(id.Ecosystem), id.Namespace, id.Name, id.Version, qualifiers, "").ToString()
}
