package matching

import (
	"strings"

	"github.com/sbomtools/sbomdiff/model"
)

// JaroWinkler similarity in [0, 1] with the standard 0.1 prefix scale
// over at most four leading characters.
func JaroWinkler(left, right string) float64 {
	jaro := jaroSimilarity(left, right)
	if jaro <= 0.7 {
		return jaro
	}
	prefix := 0
	for at := 0; at < len(left) && at < len(right) && at < 4; at++ {
		if left[at] != right[at] {
			break
		}
		prefix += 1
	}
	return jaro + float64(prefix)*0.1*(1.0-jaro)
}

func jaroSimilarity(left, right string) float64 {
	if left == right {
		return 1.0
	}
	lenLeft, lenRight := len(left), len(right)
	if lenLeft == 0 || lenRight == 0 {
		return 0.0
	}
	window := max(lenLeft, lenRight)/2 - 1
	if window < 0 {
		window = 0
	}

	matchedLeft := make([]bool, lenLeft)
	matchedRight := make([]bool, lenRight)
	matches := 0
	for at := 0; at < lenLeft; at++ {
		low := max(0, at-window)
		high := min(lenRight-1, at+window)
		for other := low; other <= high; other++ {
			if matchedRight[other] || left[at] != right[other] {
				continue
			}
			matchedLeft[at] = true
			matchedRight[other] = true
			matches += 1
			break
		}
	}
	if matches == 0 {
		return 0.0
	}

	transpositions := 0
	other := 0
	for at := 0; at < lenLeft; at++ {
		if !matchedLeft[at] {
			continue
		}
		for !matchedRight[other] {
			other += 1
		}
		if left[at] != right[other] {
			transpositions += 1
		}
		other += 1
	}

	floatMatches := float64(matches)
	return (floatMatches/float64(lenLeft) +
		floatMatches/float64(lenRight) +
		(floatMatches-float64(transpositions)/2.0)/floatMatches) / 3.0
}

// Levenshtein edit distance with the classic two-row table.
func Levenshtein(left, right string) int {
	if left == right {
		return 0
	}
	if len(left) == 0 {
		return len(right)
	}
	if len(right) == 0 {
		return len(left)
	}

	previous := make([]int, len(right)+1)
	current := make([]int, len(right)+1)
	for at := range previous {
		previous[at] = at
	}
	for at := 1; at <= len(left); at++ {
		current[0] = at
		for other := 1; other <= len(right); other++ {
			cost := 1
			if left[at-1] == right[other-1] {
				cost = 0
			}
			current[other] = min(min(current[other-1]+1, previous[other]+1), previous[other-1]+cost)
		}
		previous, current = current, previous
	}
	return previous[len(right)]
}

// Soundex encodes ASCII-alphabetic content into the classic 4-character
// phonetic code. Non-alphabetic runes are dropped first.
func Soundex(name string) string {
	upper := strings.Builder{}
	for _, letter := range strings.ToUpper(name) {
		if letter >= 'A' && letter <= 'Z' {
			upper.WriteRune(letter)
		}
	}
	cleaned := upper.String()
	if len(cleaned) == 0 {
		return ""
	}

	code := strings.Builder{}
	code.WriteByte(cleaned[0])
	lastDigit := soundexDigit(rune(cleaned[0]))
	for _, letter := range cleaned[1:] {
		digit := soundexDigit(letter)
		if digit != '0' && digit != lastDigit {
			code.WriteRune(digit)
			if code.Len() == 4 {
				break
			}
		}
		if digit != '0' {
			lastDigit = digit
		} else if letter != 'H' && letter != 'W' {
			lastDigit = '0'
		}
	}
	result := code.String()
	for len(result) < 4 {
		result += "0"
	}
	return result
}

func soundexDigit(letter rune) rune {
	switch letter {
	case 'B', 'F', 'P', 'V':
		return '1'
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return '2'
	case 'D', 'T':
		return '3'
	case 'L':
		return '4'
	case 'M', 'N':
		return '5'
	case 'R':
		return '6'
	default:
		return '0'
	}
}

// VersionAffinity per the scoring model: 1.0 when parsed semver majors
// agree, 0.5 when only the first version token agrees, else 0.0.
func VersionAffinity(left, right model.CanonicalId) float64 {
	if left.Semver != nil && right.Semver != nil {
		if left.Semver.Major() == right.Semver.Major() {
			return 1.0
		}
		return 0.0
	}
	tokenLeft := firstVersionToken(left.Version)
	tokenRight := firstVersionToken(right.Version)
	if len(tokenLeft) > 0 && tokenLeft == tokenRight {
		return 0.5
	}
	return 0.0
}

func firstVersionToken(version string) string {
	fields := strings.FieldsFunc(version, func(letter rune) bool {
		return letter == '.' || letter == '-' || letter == '+' || letter == '_'
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
