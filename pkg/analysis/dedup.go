package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/querypatrol/pkg/models"
	"github.com/ekaya-inc/querypatrol/pkg/sqlscan"
)

// countPattern matches a standalone number in a finding title. Digits
// embedded in identifiers ("users2") do not count as a magnitude.
var countPattern = regexp.MustCompile(`\b\d+\b`)

// Deduplicate groups findings by root-cause signature, keeps the most
// actionable finding of each group, and attaches the rest to its
// suppressed list. Survivors come back sorted by severity, descending.
//
// A burst of identical statements can simultaneously look like "too many
// joins" and "repeated statement"; grouping by signature surfaces one
// explanation while preserving the others as context.
func Deduplicate(findings []*models.Finding, sc *sqlscan.Scanner) []*models.Finding {
	if len(findings) == 0 {
		return nil
	}

	index := make(map[string]int, len(findings))
	var buckets [][]*models.Finding
	for _, f := range findings {
		sig := signatureFor(f, sc)
		i, ok := index[sig]
		if !ok {
			i = len(buckets)
			index[sig] = i
			buckets = append(buckets, nil)
		}
		buckets[i] = append(buckets[i], f)
	}

	survivors := make([]*models.Finding, 0, len(buckets))
	for _, bucket := range buckets {
		winner := bucket[0]
		for _, f := range bucket[1:] {
			if outranks(f, winner) {
				winner = f
			}
		}
		for _, f := range bucket {
			if f != winner {
				winner.Suppress(f)
			}
		}
		survivors = append(survivors, winner)
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].Severity.Weight() > survivors[j].Severity.Weight()
	})
	return survivors
}

// signatureFor computes a finding's root-cause signature. Signatures are
// tried per issue family:
//
//   - Frequency and join-shape findings whose title carries a magnitude
//     share an entity signature, so a burst on a table absorbs the join
//     findings born from the same statements.
//   - Scan-family findings share a per-table signature so several scan
//     complaints about one table collapse.
//   - Everything else keys on kind plus statement pattern. The unsafe
//     limit finding lands here on purpose: it is unconditionally
//     CRITICAL and must never be absorbed by a co-located burst.
func signatureFor(f *models.Finding, sc *sqlscan.Scanner) string {
	entity := findingEntity(f, sc)

	switch f.Kind {
	case models.KindRepeatedStatement, models.KindUnusedJoin, models.KindOverEagerJoin:
		if entity != "" && countPattern.MatchString(f.Title) {
			return "entity:" + inflection.Singular(entity)
		}
	case models.KindSelectStar, models.KindUnboundedScan, models.KindOrderedScanWithoutLimit, models.KindDeepOffsetPagination:
		if entity != "" {
			return "scan:" + inflection.Singular(entity)
		}
	}

	if len(f.EvidenceQueries) > 0 {
		return "sql:" + f.Kind + ":" + sc.Normalize(f.EvidenceQueries[0].SQL).Hash
	}
	return "fallback:" + hashSignature(f.Title, entity)
}

// outranks reports whether a should replace b as a group's survivor:
// higher family priority wins, then higher severity. Ties keep the
// earlier finding.
func outranks(a, b *models.Finding) bool {
	pa, pb := familyPriority(a.Kind), familyPriority(b.Kind)
	if pa != pb {
		return pa > pb
	}
	return a.Severity.Weight() > b.Severity.Weight()
}

// familyPriority ranks issue families: frequency findings outrank
// join-shape findings outrank everything else.
func familyPriority(kind string) int {
	switch kind {
	case models.KindRepeatedStatement:
		return 3
	case models.KindUnusedJoin, models.KindOverEagerJoin, models.KindUnsafeLimitCollectionJoin:
		return 2
	default:
		return 1
	}
}

// findingEntity resolves the table a finding is about from its first
// evidence statement, lowercased and without schema prefix.
func findingEntity(f *models.Finding, sc *sqlscan.Scanner) string {
	if len(f.EvidenceQueries) == 0 {
		return ""
	}
	main, ok := sc.MainTable(f.EvidenceQueries[0].SQL)
	if !ok {
		return ""
	}
	return strings.ToLower(stripSchema(main.Table))
}

func hashSignature(title, entity string) string {
	sum := sha256.Sum256([]byte(title + "|" + entity))
	return hex.EncodeToString(sum[:])
}
