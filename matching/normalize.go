package matching

import (
	"regexp"
	"strings"

	"golang.org/x/mod/module"

	"github.com/sbomtools/sbomdiff/model"
)

// EcosystemRule normalizes component names the way the ecosystem itself
// treats them as equal.
type EcosystemRule struct {
	StripPrefixes []string
	StripSuffixes []string
	// CollapseSeparators folds runs of [-_.] into a single dash the way
	// PEP-503 does for Python distributions.
	CollapseSeparators bool
	// SplitNamespace tokenizes "group:artifact" style names.
	SplitNamespace string
	// StripMajorSuffix removes Go-style /vN module path suffixes.
	StripMajorSuffix bool
}

var separatorRuns = regexp.MustCompile(`[-_.]+`)

var builtinRules = map[model.Ecosystem]EcosystemRule{
	model.EcosystemPypi: {
		StripPrefixes:      []string{"python-", "py-", "lib"},
		StripSuffixes:      []string{"-python", "-py"},
		CollapseSeparators: true,
	},
	model.EcosystemNpm: {
		StripPrefixes: []string{"node-", "@types/"},
		StripSuffixes: []string{"-js", ".js", "-node"},
	},
	model.EcosystemMaven: {
		SplitNamespace: ":",
	},
	model.EcosystemGolang: {
		StripMajorSuffix: true,
	},
	model.EcosystemCargo: {
		StripPrefixes: []string{"rust-", "lib"},
		StripSuffixes: []string{"-rs", "-rust"},
	},
	model.EcosystemGem: {
		StripPrefixes: []string{"ruby-"},
		StripSuffixes: []string{"-ruby", "-rb"},
	},
}

// Normalizer resolves ecosystem-specific name equality. Rules are
// read-only after construction and safe to share across shards.
type Normalizer struct {
	rules map[model.Ecosystem]EcosystemRule
}

func NewNormalizer(overrides map[string]EcosystemRule) *Normalizer {
	rules := make(map[model.Ecosystem]EcosystemRule, len(builtinRules)+len(overrides))
	for ecosystem, rule := range builtinRules {
		rules[ecosystem] = rule
	}
	for name, override := range overrides {
		ecosystem := model.EcosystemOf(name)
		merged := rules[ecosystem]
		merged.StripPrefixes = append(merged.StripPrefixes, override.StripPrefixes...)
		merged.StripSuffixes = append(merged.StripSuffixes, override.StripSuffixes...)
		merged.CollapseSeparators = merged.CollapseSeparators || override.CollapseSeparators
		merged.StripMajorSuffix = merged.StripMajorSuffix || override.StripMajorSuffix
		if len(override.SplitNamespace) > 0 {
			merged.SplitNamespace = override.SplitNamespace
		}
		rules[ecosystem] = merged
	}
	return &Normalizer{rules: rules}
}

// Normalize lowercases and applies the ecosystem rule. The result is
// what tier-3 equality and the fuzzy metrics operate on.
func (it *Normalizer) Normalize(ecosystem model.Ecosystem, name string) string {
	result := strings.ToLower(strings.TrimSpace(name))
	rule, found := it.rules[ecosystem]
	if !found {
		return result
	}
	if rule.StripMajorSuffix {
		if prefix, version, ok := module.SplitPathVersion(result); ok && len(version) > 0 {
			result = prefix
		}
	}
	for _, prefix := range rule.StripPrefixes {
		if strings.HasPrefix(result, prefix) && len(result) > len(prefix) {
			result = result[len(prefix):]
			break
		}
	}
	for _, suffix := range rule.StripSuffixes {
		if strings.HasSuffix(result, suffix) && len(result) > len(suffix) {
			result = result[:len(result)-len(suffix)]
			break
		}
	}
	if rule.CollapseSeparators {
		result = separatorRuns.ReplaceAllString(result, "-")
	}
	if len(rule.SplitNamespace) > 0 {
		// group:artifact forms compare on the artifact token; the group
		// already lives in the namespace field.
		if _, artifact, ok := strings.Cut(result, rule.SplitNamespace); ok {
			result = artifact
		}
	}
	return result
}

// NormalizeComponent is Normalize over the component's ecosystem and
// name; the namespace does not take part.
func (it *Normalizer) NormalizeComponent(component *model.Component) string {
	return it.Normalize(component.Id.Ecosystem, component.Id.Name)
}
