package matching

import (
	"testing"

	"github.com/sbomtools/sbomdiff/model"
)

func TestJaroWinkler(t *testing.T) {
	tests := []struct {
		left, right string
		minimum     float64
		maximum     float64
	}{
		{"lodash", "lodash", 1.0, 1.0},
		{"", "lodash", 0.0, 0.0},
		{"lodash", "lodahs", 0.90, 1.0},
		{"martha", "marhta", 0.95, 0.97},
		{"lodash", "zzzzzz", 0.0, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.left+"/"+tt.right, func(t *testing.T) {
			got := JaroWinkler(tt.left, tt.right)
			if got < tt.minimum || got > tt.maximum {
				t.Errorf("JaroWinkler(%q, %q) = %.4f, want within [%.2f, %.2f]", tt.left, tt.right, got, tt.minimum, tt.maximum)
			}
		})
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		left, right string
		distance    int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"lodash", "lodash", 0},
		{"lodash", "lodash.js", 3},
	}
	for _, tt := range tests {
		t.Run(tt.left+"/"+tt.right, func(t *testing.T) {
			if got := Levenshtein(tt.left, tt.right); got != tt.distance {
				t.Errorf("Levenshtein(%q, %q) = %d, want %d", tt.left, tt.right, got, tt.distance)
			}
		})
	}
}

func TestSoundex(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Robert", "R163"},
		{"Rupert", "R163"},
		{"Tymczak", "T522"},
		{"Pfister", "P236"},
		{"", ""},
		{"123", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Soundex(tt.input); got != tt.expected {
				t.Errorf("Soundex(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestVersionAffinity(t *testing.T) {
	tests := []struct {
		name     string
		left     model.CanonicalId
		right    model.CanonicalId
		expected float64
	}{
		{
			"same major",
			model.NewCanonicalId(model.EcosystemNpm, "", "a", "4.17.20"),
			model.NewCanonicalId(model.EcosystemNpm, "", "a", "4.19.2"),
			1.0,
		},
		{
			"different major",
			model.NewCanonicalId(model.EcosystemNpm, "", "a", "4.17.20"),
			model.NewCanonicalId(model.EcosystemNpm, "", "a", "5.0.0"),
			0.0,
		},
		{
			"unparseable, first token agrees",
			model.NewCanonicalId(model.EcosystemUnknown, "", "a", "2024a"),
			model.NewCanonicalId(model.EcosystemUnknown, "", "a", "2024a.rev1"),
			0.5,
		},
		{
			"missing versions",
			model.NewCanonicalId(model.EcosystemNpm, "", "a", ""),
			model.NewCanonicalId(model.EcosystemNpm, "", "a", ""),
			0.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VersionAffinity(tt.left, tt.right); got != tt.expected {
				t.Errorf("VersionAffinity = %.2f, want %.2f", got, tt.expected)
			}
		})
	}
}
