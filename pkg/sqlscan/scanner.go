// Package sqlscan provides cached structural analysis of SQL text:
// pattern normalization, quick clause flags, and join extraction.
//
// All operations are memoized per distinct statement text in an injected
// Scanner, so batches dominated by repeated statements cost one parse per
// unique text. Results are best effort and never fail; malformed SQL
// degrades to partial facts rather than errors.
package sqlscan

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ekaya-inc/querypatrol/pkg/models"
)

// Scanner memoizes normalization and extraction results keyed by a content
// hash of the raw statement text. It is safe for concurrent use: entries
// are insert-only, and racing writers compute identical values so either
// insert is correct.
type Scanner struct {
	mu      sync.RWMutex
	entries map[string]*entry

	hits   atomic.Int64
	misses atomic.Int64
}

// entry holds everything derived from one distinct statement text.
// Computed once, read many times; fields are never mutated after insert.
type entry struct {
	norm     models.NormalizedSQL
	flags    Flags
	joins    []JoinDescriptor
	main     TableRef
	hasMain  bool
	scrubbed string
}

// CacheStats is a point-in-time snapshot of cache effectiveness.
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Entries int     `json:"entries"`
	HitRate float64 `json:"hit_rate"`
}

// NewScanner returns an empty scanner cache.
func NewScanner() *Scanner {
	return &Scanner{entries: make(map[string]*entry)}
}

// Normalize returns the canonical pattern form of sql and its pattern
// hash. The hash is computed from the canonical form, so statements that
// differ only in literals or placeholder spelling share a hash.
func (s *Scanner) Normalize(sql string) models.NormalizedSQL {
	return s.lookup(sql).norm
}

// QuickFlags returns cheap structural facts about sql.
func (s *Scanner) QuickFlags(sql string) Flags {
	return s.lookup(sql).flags
}

// ExtractJoins returns the joins of sql. The returned slice is shared
// cache state; callers must not modify it.
func (s *Scanner) ExtractJoins(sql string) []JoinDescriptor {
	return s.lookup(sql).joins
}

// CountJoins returns the number of joins in sql.
func (s *Scanner) CountJoins(sql string) int {
	return len(s.lookup(sql).joins)
}

// MainTable returns the first top-level FROM target of sql.
func (s *Scanner) MainTable(sql string) (TableRef, bool) {
	e := s.lookup(sql)
	return e.main, e.hasMain
}

// AliasUsedElsewhere reports whether "alias." is referenced in sql outside
// the given ON clause text. Pass the JoinDescriptor's OnClause so the
// join's own condition does not count as usage.
func (s *Scanner) AliasUsedElsewhere(sql, alias, excludingOn string) bool {
	return aliasReferenced(s.lookup(sql).scrubbed, alias, excludingOn)
}

// WarmUp primes the cache for a batch. Records are deduplicated by
// content hash first, so parsing runs once per distinct text no matter
// how many times a statement repeats; each record costs one hash beyond
// that. Safe to call concurrently with lookups.
func (s *Scanner) WarmUp(records []models.QueryRecord) {
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		key := contentKey(rec.SQL)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		s.lookupKeyed(key, rec.SQL)
	}
}

// Stats returns a snapshot of hit/miss counters and cache size.
func (s *Scanner) Stats() CacheStats {
	s.mu.RLock()
	entries := len(s.entries)
	s.mu.RUnlock()

	hits := s.hits.Load()
	misses := s.misses.Load()
	stats := CacheStats{Hits: hits, Misses: misses, Entries: entries}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}

// Reset drops all cached entries and zeroes the counters.
func (s *Scanner) Reset() {
	s.mu.Lock()
	s.entries = make(map[string]*entry)
	s.mu.Unlock()
	s.hits.Store(0)
	s.misses.Store(0)
}

func (s *Scanner) lookup(sql string) *entry {
	return s.lookupKeyed(contentKey(sql), sql)
}

// lookupKeyed returns the cached entry for key, computing and inserting it
// on a miss. Computation happens outside the lock; if another goroutine
// inserted the same key meanwhile, the existing entry wins.
func (s *Scanner) lookupKeyed(key, sql string) *entry {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		s.hits.Add(1)
		return e
	}

	s.misses.Add(1)
	e = computeEntry(sql)

	s.mu.Lock()
	if existing, ok := s.entries[key]; ok {
		e = existing
	} else {
		s.entries[key] = e
	}
	s.mu.Unlock()
	return e
}

// computeEntry runs every analyzer once over a distinct statement text.
func computeEntry(sql string) *entry {
	canonical := normalizeSQL(sql)
	scrubbed := scrubStrings(sql)
	lower := strings.ToLower(scrubbed)
	main, hasMain := mainTable(scrubbed, lower)
	return &entry{
		norm: models.NormalizedSQL{
			Canonical: canonical,
			Hash:      hashText(canonical),
		},
		flags:    computeFlags(canonical),
		joins:    extractJoins(scrubbed, lower),
		main:     main,
		hasMain:  hasMain,
		scrubbed: scrubbed,
	}
}

// contentKey is the memoization key: a hash of the raw text, distinct from
// the pattern hash on NormalizedSQL which is computed from the canonical
// form.
func contentKey(sql string) string {
	return hashText(sql)
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
