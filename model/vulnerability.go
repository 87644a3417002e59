package model

import (
	"strings"

	"github.com/Masterminds/semver"
)

// Severity is ordered so transitions can be compared:
// None < Low < Medium < High < Critical < Unknown.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
	SeverityUnknown
)

var severityNames = map[Severity]string{
	SeverityNone:     "none",
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
	SeverityUnknown:  "unknown",
}

func (it Severity) String() string {
	if name, ok := severityNames[it]; ok {
		return name
	}
	return "unknown"
}

func SeverityOf(label string) Severity {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "none", "info", "informational":
		return SeverityNone
	case "low":
		return SeverityLow
	case "medium", "moderate":
		return SeverityMedium
	case "high", "important":
		return SeverityHigh
	case "critical":
		return SeverityCritical
	default:
		return SeverityUnknown
	}
}

// SeverityFromScore maps a CVSS base score to the v3 rating bands.
func SeverityFromScore(score float64) Severity {
	switch {
	case score <= 0:
		return SeverityNone
	case score < 4.0:
		return SeverityLow
	case score < 7.0:
		return SeverityMedium
	case score < 9.0:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

type VulnSource string

const (
	SourceInBand VulnSource = "in-band"
	SourceOsv    VulnSource = "osv"
	SourceKev    VulnSource = "kev"
)

// Vulnerability as attached to a component, declared in-band by the
// document or added by enrichment.
type Vulnerability struct {
	Id            string
	Severity      Severity
	CvssVector    string
	CvssScore     float64
	AffectedRange string
	FixedVersion  string
	Source        VulnSource
	AdvisoryUrl   string
}

// Affects reports whether the advisory's affected range covers the given
// version. An empty range or an unparseable version is inconclusive and
// reports false.
func (it Vulnerability) Affects(version string) bool {
	if len(it.AffectedRange) == 0 || len(version) == 0 {
		return false
	}
	constraint, err := semver.NewConstraint(it.AffectedRange)
	if err != nil {
		return false
	}
	parsed, err := semver.NewVersion(strings.TrimPrefix(version, "v"))
	if err != nil {
		return false
	}
	return constraint.Check(parsed)
}

// EolInfo carries end-of-life status from enrichment or document data.
type EolInfo struct {
	Cycle       string
	EolDate     string
	IsEol       bool
	LatestInCycle string
	Source      string
}
