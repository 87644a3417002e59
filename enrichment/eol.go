package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sbomtools/sbomdiff/model"
)

const eolEndpoint = "https://endoflife.date"

// endoflife.date cycles respond with either a boolean or an ISO date in
// the eol field.
type eolCycle struct {
	Cycle  string          `json:"cycle"`
	Eol    json.RawMessage `json:"eol"`
	Latest string          `json:"latest"`
}

// Products tracked by endoflife.date that map cleanly onto package
// identities seen in SBOMs.
var eolProducts = map[string]string{
	"golang/go":     "go",
	"pypi/django":   "django",
	"npm/angular":   "angular",
	"gem/rails":     "rails",
	"maven/spring-framework": "spring-framework",
	"generic/python": "python",
	"generic/nodejs": "nodejs",
	"generic/openssl": "openssl",
	"generic/postgresql": "postgresql",
	"generic/redis": "redis",
	"generic/nginx": "nginx",
	"generic/debian": "debian",
	"generic/ubuntu": "ubuntu",
	"generic/alpine": "alpine",
}

type eolProvider struct {
	client Client
	cache  *FileCache
}

func newEolProvider(cache *FileCache) (*eolProvider, error) {
	client, err := NewClient(eolEndpoint)
	if err != nil {
		return nil, err
	}
	return &eolProvider{client: client.Uncritical(), cache: cache}, nil
}

func (it *eolProvider) Name() string {
	return "eol"
}

func productFor(component *model.Component) string {
	name := strings.ToLower(component.Id.Name)
	if product, ok := eolProducts[component.Id.Ecosystem.String()+"/"+name]; ok {
		return product
	}
	if product, ok := eolProducts["generic/"+name]; ok {
		return product
	}
	return ""
}

func (it *eolProvider) EnrichComponent(ctx context.Context, component *model.Component, stats *Stats) error {
	if component.Eol != nil {
		return nil
	}
	product := productFor(component)
	if len(product) == 0 {
		return nil
	}

	payload, freshness := it.cache.Lookup(it.Name(), product)
	if freshness == CacheMiss || freshness == CacheExpired {
		response := it.client.Get(ctx, &Request{Url: "/api/" + product + ".json"})
		if response.Err != nil || response.Status != 200 {
			if payload == nil {
				if response.Err != nil {
					return response.Err
				}
				return fmt.Errorf("eol lookup for %q returned status %d", product, response.Status)
			}
			stats.Warn("eol: refetch failed for %q, serving expired entry", product)
		} else {
			payload = response.Body
			stats.Fetches += 1
			if err := it.cache.Store(it.Name(), product, payload); err != nil {
				stats.Warn("eol: cache write failed for %q: %v", product, err)
			}
		}
	} else {
		stats.CacheHits += 1
		if freshness == CacheStale {
			stats.CacheStale += 1
		}
	}

	cycles := []eolCycle{}
	if err := json.Unmarshal(payload, &cycles); err != nil {
		return fmt.Errorf("eol payload for %q: %w", product, err)
	}
	cycle := matchCycle(cycles, component.Id.Version)
	if cycle == nil {
		return nil
	}
	info := &model.EolInfo{
		Cycle:         cycle.Cycle,
		LatestInCycle: cycle.Latest,
		Source:        "endoflife.date",
	}
	info.IsEol, info.EolDate = decodeEolField(cycle.Eol)
	component.Eol = info
	stats.EolAdded += 1
	return nil
}

// matchCycle picks the cycle whose label prefixes the component version.
func matchCycle(cycles []eolCycle, version string) *eolCycle {
	for at := range cycles {
		cycle := cycles[at].Cycle
		if len(version) >= len(cycle) && strings.HasPrefix(version, cycle) {
			return &cycles[at]
		}
	}
	return nil
}

func decodeEolField(raw json.RawMessage) (bool, string) {
	var flag bool
	if err := json.Unmarshal(raw, &flag); err == nil {
		return flag, ""
	}
	var date string
	if err := json.Unmarshal(raw, &date); err == nil {
		return false, date
	}
	return false, ""
}
