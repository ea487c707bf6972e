package sqlscan

import (
	"regexp"
	"strings"
)

// JoinType classifies a join for row-multiplication analysis.
type JoinType string

const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinRight JoinType = "RIGHT"
)

// JoinDescriptor is one join extracted from a statement.
type JoinDescriptor struct {
	Type  JoinType `json:"type"`
	Table string   `json:"table"`
	// Alias is empty for unaliased joins; the table name then stands in as
	// the reference prefix.
	Alias string `json:"alias,omitempty"`
	// OnLeft and OnRight are the first qualified column pair equated in the
	// ON clause ("o.customer_id"). Empty when the ON expression has no
	// qualified equality.
	OnLeft  string `json:"on_left,omitempty"`
	OnRight string `json:"on_right,omitempty"`
	// OnClause is the raw ON expression text, used to exclude the join's
	// own clause from alias-usage searches.
	OnClause string `json:"on_clause,omitempty"`
}

// Ref returns the prefix that references this join's rows in the rest of
// the statement: the alias when present, otherwise the table name.
func (j JoinDescriptor) Ref() string {
	if j.Alias != "" {
		return j.Alias
	}
	return j.Table
}

// TableRef is a FROM-clause target with its optional alias.
type TableRef struct {
	Table string `json:"table"`
	Alias string `json:"alias,omitempty"`
}

// Ref returns the alias when present, otherwise the table name.
func (t TableRef) Ref() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Table
}

// onPairPattern matches the first qualified column equality in an ON
// expression, e.g. "o.customer_id = c.id".
var onPairPattern = regexp.MustCompile(`([A-Za-z_][\w$]*\.[A-Za-z_][\w$]*)\s*=\s*([A-Za-z_][\w$]*\.[A-Za-z_][\w$]*)`)

// clauseKeywords are words that terminate a table alias position.
var clauseKeywords = map[string]bool{
	"on": true, "using": true, "where": true, "join": true,
	"inner": true, "left": true, "right": true, "full": true,
	"cross": true, "natural": true, "outer": true, "straight_join": true,
	"group": true, "order": true, "having": true, "limit": true,
	"offset": true, "union": true, "intersect": true, "except": true,
	"set": true, "returning": true, "for": true, "window": true,
	"fetch": true, "as": true, "and": true, "or": true,
}

// onBoundaryKeywords terminate an ON expression when seen at the clause's
// own paren depth.
var onBoundaryKeywords = []string{
	"join", "inner", "left", "right", "full", "cross", "natural",
	"straight_join", "where", "group", "order", "having", "limit",
	"offset", "union", "intersect", "except", "returning", "window",
	"for", "fetch",
}

// extractJoins scans a scrubbed statement for JOIN clauses. It handles
// INNER/LEFT/RIGHT/FULL/CROSS [OUTER] JOIN spellings, AS and bare aliases
// and ON column pairs, at any nesting depth. lower must be the lowercase
// form of scrubbed.
//
// Limitations (like the SELECT-list parser this grew out of):
// - sub-selects as join targets are skipped (no table name to report)
// - USING(...) joins carry no ON pair
// - assumes roughly well-formed SQL; garbage in, best effort out
func extractJoins(scrubbed, lower string) []JoinDescriptor {
	n := len(lower)

	var joins []JoinDescriptor
	for i := 0; i < n; i++ {
		if lower[i] != 'j' || !hasWordAt(lower, i, "join") {
			continue
		}

		jt := classifyJoinAt(lower, i)
		pos := skipSpaces(scrubbed, i+len("join"))

		table, pos := readIdentifier(scrubbed, pos)
		if table == "" {
			// Sub-select or malformed target.
			continue
		}

		alias, pos := readAlias(scrubbed, lower, pos)

		var onClause string
		onStart := skipSpaces(scrubbed, pos)
		if hasWordAt(lower, onStart, "on") {
			onClause, pos = captureOnClause(scrubbed, lower, onStart+len("on"))
		}

		join := JoinDescriptor{
			Type:     jt,
			Table:    table,
			Alias:    alias,
			OnClause: onClause,
		}
		if m := onPairPattern.FindStringSubmatch(onClause); m != nil {
			join.OnLeft, join.OnRight = m[1], m[2]
		}
		joins = append(joins, join)

		if pos > i {
			i = pos - 1
		}
	}
	return joins
}

// mainTable returns the first top-level FROM target. ok is false when the
// statement has no FROM clause or its target is a sub-select.
func mainTable(scrubbed, lower string) (TableRef, bool) {
	depth := 0
	for i := 0; i < len(lower); i++ {
		switch lower[i] {
		case '(':
			depth++
		case ')':
			depth--
		case 'f':
			if depth == 0 && hasWordAt(lower, i, "from") {
				pos := skipSpaces(scrubbed, i+len("from"))
				table, pos := readIdentifier(scrubbed, pos)
				if table == "" {
					return TableRef{}, false
				}
				alias, _ := readAlias(scrubbed, lower, pos)
				return TableRef{Table: table, Alias: alias}, true
			}
		}
	}
	return TableRef{}, false
}

// aliasReferenced reports whether "alias." appears in the scrubbed
// statement outside the given ON clause. The first occurrence of
// excludingOn is blanked before searching, so a join's own ON columns do
// not count as usage.
func aliasReferenced(scrubbed, alias, excludingOn string) bool {
	if alias == "" {
		return false
	}

	text := strings.ToLower(scrubbed)
	if excludingOn != "" {
		if idx := strings.Index(text, strings.ToLower(excludingOn)); idx >= 0 {
			text = text[:idx] + strings.Repeat(" ", len(excludingOn)) + text[idx+len(excludingOn):]
		}
	}

	needle := strings.ToLower(alias) + "."
	for from := 0; ; {
		k := strings.Index(text[from:], needle)
		if k < 0 {
			return false
		}
		k += from
		if k == 0 || !isWordByte(text[k-1]) {
			return true
		}
		from = k + 1
	}
}

// classifyJoinAt inspects the words before the JOIN keyword at idx.
func classifyJoinAt(lower string, idx int) JoinType {
	word, start := prevWord(lower, idx)
	if word == "outer" {
		word, _ = prevWord(lower, start)
	}
	switch word {
	case "left":
		return JoinLeft
	case "right":
		return JoinRight
	case "full":
		// Preserves unmatched rows like LEFT.
		return JoinLeft
	default:
		// INNER, CROSS, NATURAL or a bare JOIN.
		return JoinInner
	}
}

// captureOnClause reads the ON expression starting after the ON keyword at
// start. It stops at the next clause keyword or comma at the clause's own
// paren depth, or at the closing paren of an enclosing sub-select.
// Returns the trimmed expression and the scan position of the boundary.
func captureOnClause(scrubbed, lower string, start int) (string, int) {
	n := len(lower)
	begin := skipSpaces(scrubbed, start)
	depth := 0

	i := begin
	for ; i < n; i++ {
		switch c := lower[i]; {
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return strings.TrimSpace(scrubbed[begin:i]), i
			}
		case c == ',' && depth == 0:
			return strings.TrimSpace(scrubbed[begin:i]), i
		case depth == 0 && isWordByte(c) && (i == 0 || !isWordByte(lower[i-1])):
			if boundaryKeywordAt(lower, i) {
				return strings.TrimSpace(scrubbed[begin:i]), i
			}
		}
	}
	return strings.TrimSpace(scrubbed[begin:]), n
}

// boundaryKeywordAt reports whether an ON-terminating keyword starts at i.
// A keyword immediately followed by '(' is a function call (LEFT, RIGHT),
// not a clause boundary.
func boundaryKeywordAt(lower string, i int) bool {
	for _, kw := range onBoundaryKeywords {
		if !hasWordAt(lower, i, kw) {
			continue
		}
		next := skipSpaces(lower, i+len(kw))
		if next < len(lower) && lower[next] == '(' {
			return false
		}
		return true
	}
	return false
}

// readIdentifier reads a (possibly schema-qualified or quoted) identifier
// starting at or after pos. Returns the identifier with original spelling,
// quotes stripped, and the position after it.
func readIdentifier(scrubbed string, pos int) (string, int) {
	n := len(scrubbed)
	i := skipSpaces(scrubbed, pos)
	if i >= n {
		return "", i
	}

	if q := scrubbed[i]; q == '"' || q == '`' {
		j := i + 1
		for j < n && scrubbed[j] != q {
			j++
		}
		if j >= n {
			return "", n
		}
		return scrubbed[i+1 : j], j + 1
	}

	j := i
	for j < n && (isWordByte(scrubbed[j]) || scrubbed[j] == '.') {
		j++
	}
	if j == i {
		return "", i
	}
	return scrubbed[i:j], j
}

// readAlias reads an optional table alias at pos: either "AS name" or a
// bare identifier that is not a clause keyword.
func readAlias(scrubbed, lower string, pos int) (string, int) {
	i := skipSpaces(scrubbed, pos)
	if hasWordAt(lower, i, "as") {
		alias, next := readIdentifier(scrubbed, i+len("as"))
		return alias, next
	}

	word, next := readIdentifier(scrubbed, i)
	if word == "" || clauseKeywords[strings.ToLower(word)] {
		return "", pos
	}
	return word, next
}

// hasWordAt reports whether word occupies a standalone word position at i.
func hasWordAt(lower string, i int, word string) bool {
	if i < 0 || i+len(word) > len(lower) || lower[i:i+len(word)] != word {
		return false
	}
	if i > 0 && isWordByte(lower[i-1]) {
		return false
	}
	if end := i + len(word); end < len(lower) && isWordByte(lower[end]) {
		return false
	}
	return true
}

// prevWord returns the word immediately before position i (skipping
// whitespace) and its start index. Empty when i is preceded by
// punctuation or the start of text.
func prevWord(lower string, i int) (string, int) {
	j := i - 1
	for j >= 0 && isSpaceByte(lower[j]) {
		j--
	}
	end := j + 1
	for j >= 0 && isWordByte(lower[j]) {
		j--
	}
	if j+1 == end {
		return "", end
	}
	return lower[j+1 : end], j + 1
}

func skipSpaces(s string, i int) int {
	for i < len(s) && isSpaceByte(s[i]) {
		i++
	}
	return i
}

func isSpaceByte(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}
