package sqlscan

import "strings"

// Flags are cheap structural facts about a statement, computed from its
// canonical form so string literals and comments cannot fake a keyword.
type Flags struct {
	IsSelect   bool `json:"is_select"`
	HasJoin    bool `json:"has_join"`
	HasWhere   bool `json:"has_where"`
	HasOrderBy bool `json:"has_order_by"`
	HasGroupBy bool `json:"has_group_by"`
	HasLimit   bool `json:"has_limit"`
	HasOffset  bool `json:"has_offset"`
}

// computeFlags scans the canonical (uppercased, whitespace-collapsed) text.
func computeFlags(canonical string) Flags {
	return Flags{
		IsSelect: strings.HasPrefix(canonical, "SELECT") ||
			(strings.HasPrefix(canonical, "WITH") && containsWord(canonical, "SELECT")),
		HasJoin:    containsWord(canonical, "JOIN"),
		HasWhere:   containsWord(canonical, "WHERE"),
		HasOrderBy: strings.Contains(canonical, "ORDER BY"),
		HasGroupBy: strings.Contains(canonical, "GROUP BY"),
		HasLimit: containsWord(canonical, "LIMIT") ||
			strings.Contains(canonical, "FETCH FIRST") ||
			strings.Contains(canonical, "FETCH NEXT"),
		HasOffset: containsWord(canonical, "OFFSET"),
	}
}

// containsWord reports whether word appears as a standalone word in s.
func containsWord(s, word string) bool {
	for from := 0; ; {
		k := strings.Index(s[from:], word)
		if k < 0 {
			return false
		}
		k += from
		if hasWordAt(s, k, word) {
			return true
		}
		from = k + 1
	}
}
