package enrichment

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sbomtools/sbomdiff/common"
)

const cacheSchemaVersion = 1

// cacheEntry is the on-disk layout under
// <root>/<provider>/<keyhash>.json.
type cacheEntry struct {
	FetchedAt     time.Time       `json:"fetched_at"`
	TtlSeconds    int64           `json:"ttl_seconds"`
	Payload       json.RawMessage `json:"payload"`
	SchemaVersion int             `json:"schema_version"`
}

// Freshness of a cache hit. Stale entries are still returned, flagged;
// expired entries force a refetch.
type Freshness int

const (
	CacheMiss Freshness = iota
	CacheFresh
	CacheStale
	CacheExpired
)

// FileCache is the provider-keyed advisory cache. Writers take an
// advisory lock file; readers proceed optimistically and tolerate
// stale reads up to the configured TTL.
type FileCache struct {
	root string
	ttl  time.Duration
}

func NewFileCache(root string, ttl time.Duration) *FileCache {
	if len(root) == 0 {
		root = common.CacheLocation()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &FileCache{root: root, ttl: ttl}
}

func keyHash(key string) string {
	digest := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", digest[:16])
}

func (it *FileCache) entryPath(provider, key string) string {
	return filepath.Join(it.root, provider, keyHash(key)+".json")
}

// Lookup reads without locking. A decode failure counts as a miss; the
// next write replaces the entry.
func (it *FileCache) Lookup(provider, key string) (json.RawMessage, Freshness) {
	data, err := os.ReadFile(it.entryPath(provider, key))
	if err != nil {
		return nil, CacheMiss
	}
	entry := cacheEntry{}
	if err := json.Unmarshal(data, &entry); err != nil || entry.SchemaVersion != cacheSchemaVersion {
		return nil, CacheMiss
	}
	ttl := time.Duration(entry.TtlSeconds) * time.Second
	age := time.Since(entry.FetchedAt)
	switch {
	case age <= ttl:
		return entry.Payload, CacheFresh
	case age <= 2*ttl:
		return entry.Payload, CacheStale
	default:
		return entry.Payload, CacheExpired
	}
}

// Store writes under an advisory lock file. Losing the lock race means
// another process just wrote the same key; skipping is fine.
func (it *FileCache) Store(provider, key string, payload json.RawMessage) error {
	directory := filepath.Join(it.root, provider)
	if err := os.MkdirAll(directory, 0o750); err != nil {
		return err
	}
	target := it.entryPath(provider, key)
	lockPath := target + ".lock"
	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		common.Trace("cache lock busy for %q, skipping write", target)
		return nil
	}
	defer func() {
		lock.Close()
		os.Remove(lockPath)
	}()

	entry := cacheEntry{
		FetchedAt:     time.Now().UTC(),
		TtlSeconds:    int64(it.ttl.Seconds()),
		Payload:       payload,
		SchemaVersion: cacheSchemaVersion,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	temp := target + ".tmp"
	if err := os.WriteFile(temp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(temp, target)
}
