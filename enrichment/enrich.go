// Package enrichment adds vulnerability and end-of-life data to parsed
// SBOMs. It is the only side-effectful stage: it owns the document for
// the duration of Enrich, only ever adds data, and recomputes the
// content hash before handing the document back.
package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/sbomtools/sbomdiff/common"
	"github.com/sbomtools/sbomdiff/model"
)

// Config selects the providers and cache behavior.
type Config struct {
	// Providers in invocation order; default osv, kev, eol.
	Providers []string
	CacheRoot string
	Ttl       time.Duration
	// Offline serves only cached data and never touches the network.
	Offline bool
}

func DefaultConfig() Config {
	return Config{
		Providers: []string{"osv", "kev", "eol"},
		Ttl:       24 * time.Hour,
	}
}

// Stats reports what one enrichment run did.
type Stats struct {
	ComponentsSeen int
	VulnsAdded     int
	EolAdded       int
	CacheHits      int
	CacheStale     int
	Fetches        int
	Warnings       []string
}

func (it *Stats) Warn(format string, details ...interface{}) {
	it.Warnings = append(it.Warnings, fmt.Sprintf(format, details...))
}

// EnrichmentError reports a provider being entirely unavailable. It is
// non-fatal to comparisons: the diff proceeds without enriched data and
// the condition is flagged on the result.
type EnrichmentError struct {
	Provider string
	Wrapped  error
}

func (it *EnrichmentError) Error() string {
	return fmt.Sprintf("enrichment-unavailable: provider %q: %v", it.Provider, it.Wrapped)
}

func (it *EnrichmentError) Unwrap() error {
	return it.Wrapped
}

type provider interface {
	Name() string
	EnrichComponent(ctx context.Context, component *model.Component, stats *Stats) error
}

// Enrich mutates the document in place, add-only, and recomputes the
// content hash afterwards. Given a fixed cache snapshot the operation
// is idempotent: re-running adds nothing new. Provider failures are
// collected; an error is returned only when every requested provider
// was unavailable.
func Enrich(ctx context.Context, sbom *model.NormalizedSbom, cfg Config) (*Stats, error) {
	stopwatch := common.Stopwatch("enrichment of %d components", len(sbom.Components))
	defer stopwatch.Debug()

	if len(cfg.Providers) == 0 {
		cfg.Providers = DefaultConfig().Providers
	}
	cache := NewFileCache(cfg.CacheRoot, cfg.Ttl)

	stats := &Stats{}
	var failures *multierror.Error
	active := 0
	for _, name := range cfg.Providers {
		instance, err := makeProvider(name, cache, cfg.Offline)
		if err != nil {
			failures = multierror.Append(failures, &EnrichmentError{Provider: name, Wrapped: err})
			continue
		}
		broken := false
		for _, component := range sbom.Components {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			stats.ComponentsSeen += 1
			if err := instance.EnrichComponent(ctx, component, stats); err != nil {
				stats.Warn("%s: %s: %v", name, component.Id.Key(), err)
				broken = true
			}
		}
		if broken && stats.Fetches == 0 && stats.CacheHits == 0 {
			failures = multierror.Append(failures, &EnrichmentError{
				Provider: name,
				Wrapped:  fmt.Errorf("no data could be retrieved"),
			})
			continue
		}
		active += 1
	}

	// Enrichment is the mutation boundary; downstream consumers see an
	// immutable document with a hash matching its enriched content.
	sbom.RecomputeContentHash()
	sbom.Warnings = append(sbom.Warnings, stats.Warnings...)

	if active == 0 && failures != nil {
		return stats, failures.ErrorOrNil()
	}
	return stats, nil
}

func makeProvider(name string, cache *FileCache, offline bool) (provider, error) {
	switch name {
	case "osv":
		osv, err := newOsvProvider(cache)
		if err != nil {
			return nil, err
		}
		if offline {
			osv.client = offlineClient{}
		}
		return osv, nil
	case "kev":
		kev, err := newKevProvider(cache)
		if err != nil {
			return nil, err
		}
		if offline {
			kev.client = offlineClient{}
		}
		return kev, nil
	case "eol":
		eol, err := newEolProvider(cache)
		if err != nil {
			return nil, err
		}
		if offline {
			eol.client = offlineClient{}
		}
		return eol, nil
	}
	return nil, fmt.Errorf("unknown enrichment provider %q", name)
}

// offlineClient refuses every request so offline runs serve cached data
// only; providers already degrade to stale and expired entries.
type offlineClient struct{}

func (offlineClient) Endpoint() string { return "offline" }

func (offlineClient) Get(context.Context, *Request) *Response {
	return &Response{Err: fmt.Errorf("offline mode, network disabled")}
}

func (offlineClient) Post(context.Context, *Request) *Response {
	return &Response{Err: fmt.Errorf("offline mode, network disabled")}
}

func (offlineClient) WithTimeout(time.Duration) Client { return offlineClient{} }

func (offlineClient) Uncritical() Client { return offlineClient{} }
