package matching

import "strings"

// AliasTable groups names known to denote the same package under a
// canonical entry. Lookups are symmetric: two names match when they
// share a canonical group.
type AliasTable struct {
	aliasToCanonical map[string]string
}

// Curated pairs where the distributed name and the referenced name
// diverge (distribution vs import names, split packages).
var builtinAliases = map[string][]string{
	"pillow":              {"pil", "python-pillow"},
	"scikit-learn":        {"sklearn", "scikit_learn"},
	"beautifulsoup4":      {"bs4", "beautifulsoup"},
	"pyyaml":              {"yaml"},
	"opencv-python":       {"cv2", "opencv-python-headless", "opencv"},
	"python-dateutil":     {"dateutil"},
	"attrs":               {"attr"},
	"importlib-metadata":  {"importlib_metadata"},
	"typing-extensions":   {"typing_extensions"},
	"lodash":              {"lodash-es", "lodash.merge", "lodash.get"},
	"react":               {"react-dom"},
	"webpack":             {"webpack-cli"},
}

func NewAliasTable(extra [][2]string) *AliasTable {
	table := &AliasTable{aliasToCanonical: make(map[string]string)}
	for canonical, aliases := range builtinAliases {
		table.Add(canonical, aliases...)
	}
	for _, pair := range extra {
		table.Add(pair[0], pair[1])
	}
	return table
}

// Add links aliases to a canonical name. When the canonical name is
// itself already an alias, the group is extended instead of split.
func (it *AliasTable) Add(canonical string, aliases ...string) {
	canonical = strings.ToLower(strings.TrimSpace(canonical))
	if resolved, ok := it.aliasToCanonical[canonical]; ok {
		canonical = resolved
	}
	it.aliasToCanonical[canonical] = canonical
	for _, alias := range aliases {
		alias = strings.ToLower(strings.TrimSpace(alias))
		if len(alias) > 0 {
			it.aliasToCanonical[alias] = canonical
		}
	}
}

// Matches reports whether both names resolve to the same alias group.
func (it *AliasTable) Matches(left, right string) bool {
	canonicalLeft, okLeft := it.aliasToCanonical[strings.ToLower(left)]
	canonicalRight, okRight := it.aliasToCanonical[strings.ToLower(right)]
	return okLeft && okRight && canonicalLeft == canonicalRight
}
