package enrichment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sbomtools/sbomdiff/model"
)

const (
	kevEndpoint = "https://www.cisa.gov"
	kevPath     = "/sites/default/files/feeds/known_exploited_vulnerabilities.json"
	kevCacheKey = "catalog"
)

type kevCatalog struct {
	Title           string             `json:"title"`
	CatalogVersion  string             `json:"catalogVersion"`
	Vulnerabilities []kevVulnerability `json:"vulnerabilities"`
}

type kevVulnerability struct {
	CveID             string `json:"cveID"`
	VendorProject     string `json:"vendorProject"`
	Product           string `json:"product"`
	VulnerabilityName string `json:"vulnerabilityName"`
	ShortDescription  string `json:"shortDescription"`
	DueDate           string `json:"dueDate"`
}

// kevProvider cross-references component vulnerabilities against the
// CISA Known-Exploited-Vulnerabilities catalog. A KEV hit attaches a
// kev-sourced record next to the original advisory; known-exploited
// findings are never dropped, only added.
type kevProvider struct {
	client  Client
	cache   *FileCache
	catalog map[string]kevVulnerability
}

func newKevProvider(cache *FileCache) (*kevProvider, error) {
	client, err := NewClient(kevEndpoint)
	if err != nil {
		return nil, err
	}
	return &kevProvider{client: client.Uncritical(), cache: cache}, nil
}

func (it *kevProvider) Name() string {
	return "kev"
}

// loadCatalog fetches the catalog once per run, cache permitting.
func (it *kevProvider) loadCatalog(ctx context.Context, stats *Stats) error {
	if it.catalog != nil {
		return nil
	}
	payload, freshness := it.cache.Lookup(it.Name(), kevCacheKey)
	if freshness == CacheMiss || freshness == CacheExpired {
		response := it.client.Get(ctx, &Request{Url: kevPath})
		if response.Err != nil || response.Status != 200 {
			if payload == nil {
				if response.Err != nil {
					return response.Err
				}
				return fmt.Errorf("kev catalog returned status %d", response.Status)
			}
			stats.Warn("kev: refetch failed, serving expired catalog")
		} else {
			payload = response.Body
			stats.Fetches += 1
			if err := it.cache.Store(it.Name(), kevCacheKey, payload); err != nil {
				stats.Warn("kev: cache write failed: %v", err)
			}
		}
	} else {
		stats.CacheHits += 1
		if freshness == CacheStale {
			stats.CacheStale += 1
			stats.Warn("kev: stale catalog served")
		}
	}

	catalog := kevCatalog{}
	if err := json.Unmarshal(payload, &catalog); err != nil {
		return fmt.Errorf("kev catalog payload: %w", err)
	}
	it.catalog = make(map[string]kevVulnerability, len(catalog.Vulnerabilities))
	for _, entry := range catalog.Vulnerabilities {
		it.catalog[entry.CveID] = entry
	}
	return nil
}

func (it *kevProvider) EnrichComponent(ctx context.Context, component *model.Component, stats *Stats) error {
	if err := it.loadCatalog(ctx, stats); err != nil {
		return err
	}
	for _, existing := range append([]model.Vulnerability{}, component.Vulns...) {
		entry, exploited := it.catalog[existing.Id]
		if !exploited {
			continue
		}
		severity := existing.Severity
		if severity < model.SeverityHigh || severity == model.SeverityUnknown {
			severity = model.SeverityHigh
		}
		added := component.AddVuln(model.Vulnerability{
			Id:            existing.Id,
			Severity:      severity,
			CvssVector:    existing.CvssVector,
			CvssScore:     existing.CvssScore,
			AffectedRange: existing.AffectedRange,
			FixedVersion:  existing.FixedVersion,
			Source:        model.SourceKev,
			AdvisoryUrl:   "https://www.cisa.gov/known-exploited-vulnerabilities-catalog",
		})
		if added {
			stats.VulnsAdded += 1
			stats.Warn("kev: %s on %s is in the known-exploited catalog (due %s)",
				entry.CveID, component.Id.Key(), entry.DueDate)
		}
	}
	return nil
}
