package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sbomtools/sbomdiff/model"
)

const osvEndpoint = "https://api.osv.dev"

// OSV query API request and response subset.
type osvQueryRequest struct {
	Package osvPackage `json:"package"`
	Version string     `json:"version,omitempty"`
}

type osvPackage struct {
	Purl      string `json:"purl,omitempty"`
	Name      string `json:"name,omitempty"`
	Ecosystem string `json:"ecosystem,omitempty"`
}

type osvQueryResponse struct {
	Vulns []osvVulnerability `json:"vulns"`
}

type osvVulnerability struct {
	Id         string         `json:"id"`
	Summary    string         `json:"summary"`
	Severity   []osvSeverity  `json:"severity"`
	Affected   []osvAffected  `json:"affected"`
	References []osvReference `json:"references"`
}

type osvSeverity struct {
	Type  string `json:"type"`
	Score string `json:"score"`
}

type osvAffected struct {
	Ranges []osvRange `json:"ranges"`
}

type osvRange struct {
	Type   string     `json:"type"`
	Events []osvEvent `json:"events"`
}

type osvEvent struct {
	Introduced string `json:"introduced"`
	Fixed      string `json:"fixed"`
}

type osvReference struct {
	Type string `json:"type"`
	Url  string `json:"url"`
}

type osvProvider struct {
	client Client
	cache  *FileCache
}

func newOsvProvider(cache *FileCache) (*osvProvider, error) {
	client, err := NewClient(osvEndpoint)
	if err != nil {
		return nil, err
	}
	return &osvProvider{client: client.Uncritical(), cache: cache}, nil
}

func (it *osvProvider) Name() string {
	return "osv"
}

// EnrichComponent queries OSV by PURL (preferred) or name+version and
// attaches the advisories, counting additions in stats.VulnsAdded.
func (it *osvProvider) EnrichComponent(ctx context.Context, component *model.Component, stats *Stats) error {
	if len(component.Purl) == 0 && component.Id.Ecosystem.IsUnknown() {
		return nil
	}
	key := component.Purl
	if len(key) == 0 {
		key = component.Id.Key()
	}

	payload, freshness := it.cache.Lookup(it.Name(), key)
	if freshness == CacheMiss || freshness == CacheExpired {
		fetched, err := it.fetch(ctx, component)
		if err != nil {
			if freshness == CacheExpired {
				stats.Warn("osv: refetch failed for %s, serving expired entry: %v", key, err)
			} else {
				return err
			}
		} else {
			payload = fetched
			stats.Fetches += 1
			if err := it.cache.Store(it.Name(), key, payload); err != nil {
				stats.Warn("osv: cache write failed for %s: %v", key, err)
			}
		}
	} else {
		stats.CacheHits += 1
		if freshness == CacheStale {
			stats.CacheStale += 1
			stats.Warn("osv: stale cache entry served for %s", key)
		}
	}

	response := osvQueryResponse{}
	if err := json.Unmarshal(payload, &response); err != nil {
		return fmt.Errorf("osv payload for %s: %w", key, err)
	}
	for at := range response.Vulns {
		if component.AddVuln(toModelVuln(&response.Vulns[at])) {
			stats.VulnsAdded += 1
		}
	}
	return nil
}

func (it *osvProvider) fetch(ctx context.Context, component *model.Component) (json.RawMessage, error) {
	query := osvQueryRequest{}
	if len(component.Purl) > 0 {
		query.Package.Purl = component.Purl
	} else {
		query.Package.Name = component.Id.Name
		query.Package.Ecosystem = osvEcosystemName(component.Id.Ecosystem)
		query.Version = component.Id.Version
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	response := it.client.Post(ctx, &Request{
		Url:     "/v1/query",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    bytes.NewReader(body),
	})
	if response.Err != nil {
		return nil, response.Err
	}
	if response.Status != 200 {
		return nil, fmt.Errorf("osv query returned status %d", response.Status)
	}
	return response.Body, nil
}

func toModelVuln(source *osvVulnerability) model.Vulnerability {
	vuln := model.Vulnerability{
		Id:       source.Id,
		Severity: model.SeverityUnknown,
		Source:   model.SourceOsv,
	}
	for _, severity := range source.Severity {
		if strings.HasPrefix(severity.Type, "CVSS") {
			// OSV puts either a numeric score or a CVSS vector in the
			// score slot; vectors keep the severity unknown.
			vuln.CvssVector = severity.Score
			if score, err := strconv.ParseFloat(severity.Score, 64); err == nil {
				vuln.CvssScore = score
				vuln.Severity = model.SeverityFromScore(score)
			}
		}
	}
	for _, affected := range source.Affected {
		for _, entry := range affected.Ranges {
			if entry.Type != "SEMVER" && entry.Type != "ECOSYSTEM" {
				continue
			}
			for _, event := range entry.Events {
				if len(event.Fixed) > 0 {
					vuln.FixedVersion = event.Fixed
					vuln.AffectedRange = "< " + event.Fixed
				}
			}
		}
	}
	for _, reference := range source.References {
		if reference.Type == "ADVISORY" {
			vuln.AdvisoryUrl = reference.Url
			break
		}
	}
	return vuln
}

func osvEcosystemName(ecosystem model.Ecosystem) string {
	switch ecosystem {
	case model.EcosystemNpm:
		return "npm"
	case model.EcosystemPypi:
		return "PyPI"
	case model.EcosystemMaven:
		return "Maven"
	case model.EcosystemGolang:
		return "Go"
	case model.EcosystemCargo:
		return "crates.io"
	case model.EcosystemGem:
		return "RubyGems"
	case model.EcosystemNuget:
		return "NuGet"
	case model.EcosystemComposer:
		return "Packagist"
	default:
		return string(ecosystem)
	}
}
