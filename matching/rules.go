package matching

import (
	"strings"

	"github.com/google/shlex"
)

// User-supplied matcher rules, one per line:
//
//	alias <name> <name>...      extend the alias table
//	always <name> <name>        force the pair (score 1.0)
//	never <name> <name>         forbid the pair
//	strip-prefix <ecosystem> <prefix>
//	strip-suffix <ecosystem> <suffix>
//
// Tokenization is shell-like so names with spaces can be quoted.
type compiledRules struct {
	aliasPairs   [][2]string
	always       map[[2]string]bool
	never        map[[2]string]bool
	prefixRules  map[string][]string
	suffixRules  map[string][]string
}

func pairKey(left, right string) [2]string {
	left = strings.ToLower(strings.TrimSpace(left))
	right = strings.ToLower(strings.TrimSpace(right))
	if right < left {
		left, right = right, left
	}
	return [2]string{left, right}
}

func compileRules(rules []string) (*compiledRules, error) {
	compiled := &compiledRules{
		always:      make(map[[2]string]bool),
		never:       make(map[[2]string]bool),
		prefixRules: make(map[string][]string),
		suffixRules: make(map[string][]string),
	}
	for _, rule := range rules {
		trimmed := strings.TrimSpace(rule)
		if len(trimmed) == 0 || strings.HasPrefix(trimmed, "#") {
			continue
		}
		tokens, err := shlex.Split(trimmed)
		if err != nil {
			return nil, invalidRule(rule, "tokenization failed: %v", err)
		}
		if len(tokens) < 3 {
			return nil, invalidRule(rule, "expected at least a verb and two operands")
		}
		verb, operands := strings.ToLower(tokens[0]), tokens[1:]
		switch verb {
		case "alias":
			for _, alias := range operands[1:] {
				compiled.aliasPairs = append(compiled.aliasPairs, [2]string{operands[0], alias})
			}
		case "always":
			if len(operands) != 2 {
				return nil, invalidRule(rule, "always takes exactly two names")
			}
			compiled.always[pairKey(operands[0], operands[1])] = true
		case "never":
			if len(operands) != 2 {
				return nil, invalidRule(rule, "never takes exactly two names")
			}
			compiled.never[pairKey(operands[0], operands[1])] = true
		case "strip-prefix":
			if len(operands) != 2 {
				return nil, invalidRule(rule, "strip-prefix takes ecosystem and prefix")
			}
			ecosystem := strings.ToLower(operands[0])
			compiled.prefixRules[ecosystem] = append(compiled.prefixRules[ecosystem], strings.ToLower(operands[1]))
		case "strip-suffix":
			if len(operands) != 2 {
				return nil, invalidRule(rule, "strip-suffix takes ecosystem and suffix")
			}
			ecosystem := strings.ToLower(operands[0])
			compiled.suffixRules[ecosystem] = append(compiled.suffixRules[ecosystem], strings.ToLower(operands[1]))
		default:
			return nil, invalidRule(rule, "unknown verb %q", verb)
		}
	}
	return compiled, nil
}

// mergeInto folds rule-derived normalization extensions over the
// configured ecosystem rules.
func (it *compiledRules) mergeInto(overrides map[string]EcosystemRule) map[string]EcosystemRule {
	if len(it.prefixRules) == 0 && len(it.suffixRules) == 0 {
		return overrides
	}
	merged := make(map[string]EcosystemRule, len(overrides))
	for name, rule := range overrides {
		merged[name] = rule
	}
	for ecosystem, prefixes := range it.prefixRules {
		rule := merged[ecosystem]
		rule.StripPrefixes = append(rule.StripPrefixes, prefixes...)
		merged[ecosystem] = rule
	}
	for ecosystem, suffixes := range it.suffixRules {
		rule := merged[ecosystem]
		rule.StripSuffixes = append(rule.StripSuffixes, suffixes...)
		merged[ecosystem] = rule
	}
	return merged
}
