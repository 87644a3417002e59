package matching

import (
	"encoding/binary"
	"sort"

	"github.com/dchest/siphash"
)

// MinHash-LSH index over token shingles of normalized component names.
// A pair is a candidate iff it collides in at least one band. The index
// is read-only once every member has been added and is shared across
// matcher shards without locking.
type Index struct {
	cfg     LshConfig
	buckets []map[uint64][]int
}

const (
	shingleKeyLeft  uint64 = 0x736269676e617475
	shingleKeyRight uint64 = 0x72656d696e686173
	mixerOffset     uint64 = 0x9e3779b97f4a7c15
)

func NewIndex(cfg LshConfig) *Index {
	buckets := make([]map[uint64][]int, cfg.Bands)
	for at := range buckets {
		buckets[at] = make(map[uint64][]int)
	}
	return &Index{cfg: cfg, buckets: buckets}
}

// Shingles are lowercase n-grams of the normalized name. A name shorter
// than the shingle size contributes itself as the single shingle.
func shingles(name string, size int) []string {
	if len(name) <= size {
		return []string{name}
	}
	result := make([]string, 0, len(name)-size+1)
	for at := 0; at+size <= len(name); at++ {
		result = append(result, name[at:at+size])
	}
	return result
}

// Signature computes the MinHash signature. Hash function i is derived
// from two independent siphash values via the standard h1 + i*h2 mix.
func Signature(cfg LshConfig, name string) []uint64 {
	signature := make([]uint64, cfg.NumHashes)
	for at := range signature {
		signature[at] = ^uint64(0)
	}
	for _, shingle := range shingles(name, cfg.ShingleSize) {
		data := []byte(shingle)
		first := siphash.Hash(shingleKeyLeft, shingleKeyRight, data)
		second := siphash.Hash(shingleKeyRight, shingleKeyLeft, data) | 1
		for at := 0; at < cfg.NumHashes; at++ {
			mixed := first + uint64(at)*second + mixerOffset
			if mixed < signature[at] {
				signature[at] = mixed
			}
		}
	}
	return signature
}

func (it *Index) bandHashes(signature []uint64) []uint64 {
	hashes := make([]uint64, it.cfg.Bands)
	row := make([]byte, 8*it.cfg.RowsPerBand)
	for band := 0; band < it.cfg.Bands; band++ {
		start := band * it.cfg.RowsPerBand
		for at := 0; at < it.cfg.RowsPerBand; at++ {
			binary.LittleEndian.PutUint64(row[8*at:], signature[start+at])
		}
		hashes[band] = siphash.Hash(uint64(band)+1, shingleKeyLeft, row)
	}
	return hashes
}

// Add indexes a member under its name's band hashes.
func (it *Index) Add(member int, name string) {
	for band, hash := range it.bandHashes(Signature(it.cfg, name)) {
		it.buckets[band][hash] = append(it.buckets[band][hash], member)
	}
}

// Candidates returns the sorted distinct members colliding with the
// name in at least one band.
func (it *Index) Candidates(name string) []int {
	seen := make(map[int]bool)
	for band, hash := range it.bandHashes(Signature(it.cfg, name)) {
		for _, member := range it.buckets[band][hash] {
			seen[member] = true
		}
	}
	result := make([]int, 0, len(seen))
	for member := range seen {
		result = append(result, member)
	}
	sort.Ints(result)
	return result
}
