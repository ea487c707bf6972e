package sqlscan

import (
	"strings"
)

// normalizeSQL produces the canonical pattern form of a statement:
// string and numeric literals become '?', bind placeholders ($1, :name,
// @p1, ?) fold to '?', comments are dropped, whitespace collapses to
// single spaces and everything is uppercased. Two statements that differ
// only in bound values normalize to the same canonical text.
//
// Malformed SQL never fails: unterminated literals and comments are
// consumed to the end of the text and the best-effort result is returned.
//
// Limitations:
// - PostgreSQL dollar-quoted bodies ($$...$$) are normalized as SQL text
// - double-quoted segments are kept as identifiers (MySQL ANSI_QUOTES off
//   would treat them as strings)
func normalizeSQL(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))

	// prev is the last byte written; pendingSpace records collapsed
	// whitespace awaiting the next emission.
	var prev byte
	pendingSpace := false

	emit := func(c byte) {
		if pendingSpace {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
		}
		b.WriteByte(c)
		prev = c
	}

	n := len(sql)
	for i := 0; i < n; i++ {
		c := sql[i]
		switch {
		case c == '\'':
			i = skipSingleQuoted(sql, i)
			emit('?')

		case c == '"' || c == '`':
			// Quoted identifier: carry through verbatim, uppercased for
			// canonical comparison.
			quote := c
			emit(c)
			for i++; i < n; i++ {
				emit(upperByte(sql[i]))
				if sql[i] == quote {
					if i+1 < n && sql[i+1] == quote {
						i++
						emit(quote)
						continue
					}
					break
				}
			}

		case c == '-' && i+1 < n && sql[i+1] == '-':
			for i += 2; i < n && sql[i] != '\n'; i++ {
			}
			pendingSpace = true

		case c == '/' && i+1 < n && sql[i+1] == '*':
			i += 2
			for ; i < n; i++ {
				if sql[i] == '*' && i+1 < n && sql[i+1] == '/' {
					i++
					break
				}
			}
			pendingSpace = true

		case c == '$' && i+1 < n && isDigitByte(sql[i+1]):
			for i++; i+1 < n && isDigitByte(sql[i+1]); i++ {
			}
			emit('?')

		case c == ':' && i+1 < n && sql[i+1] == ':':
			// PostgreSQL cast, not a named parameter.
			emit(':')
			emit(':')
			i++

		case c == ':' && i+1 < n && isIdentStartByte(sql[i+1]):
			for i++; i+1 < n && isWordByte(sql[i+1]); i++ {
			}
			emit('?')

		case c == '@' && i+1 < n && (isIdentStartByte(sql[i+1]) || sql[i+1] == '@'):
			if sql[i+1] == '@' {
				i++
			}
			for ; i+1 < n && isWordByte(sql[i+1]); i++ {
			}
			emit('?')

		case isDigitByte(c) && prev != 0 && isWordByte(prev) && !pendingSpace:
			// Digit inside an identifier such as "users2".
			emit(c)

		case isDigitByte(c):
			i = skipNumber(sql, i)
			if prev == '?' && !pendingSpace {
				// "?1" style placeholder index, already emitted.
				continue
			}
			emit('?')

		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			pendingSpace = true

		default:
			emit(upperByte(c))
		}
	}

	canonical := b.String()
	for {
		trimmed := strings.TrimRight(canonical, " ")
		if !strings.HasSuffix(trimmed, ";") {
			canonical = trimmed
			break
		}
		canonical = strings.TrimSuffix(trimmed, ";")
	}
	return canonical
}

// skipSingleQuoted returns the index of the closing quote of the literal
// starting at sql[start] (or the last index when unterminated). Handles
// backslash escapes and SQL standard '' doubling.
func skipSingleQuoted(sql string, start int) int {
	n := len(sql)
	i := start + 1
	for i < n {
		switch sql[i] {
		case '\\':
			i += 2
		case '\'':
			if i+1 < n && sql[i+1] == '\'' {
				i += 2
				continue
			}
			return i
		default:
			i++
		}
	}
	return n - 1
}

// skipNumber returns the index of the last byte of the numeric literal
// starting at sql[start]. Accepts decimals and exponents.
func skipNumber(sql string, start int) int {
	n := len(sql)
	i := start
	for i+1 < n && isDigitByte(sql[i+1]) {
		i++
	}
	if i+1 < n && sql[i+1] == '.' {
		i++
		for i+1 < n && isDigitByte(sql[i+1]) {
			i++
		}
	}
	if i+1 < n && (sql[i+1] == 'e' || sql[i+1] == 'E') {
		j := i + 2
		if j < n && (sql[j] == '+' || sql[j] == '-') {
			j++
		}
		if j < n && isDigitByte(sql[j]) {
			i = j
			for i+1 < n && isDigitByte(sql[i+1]) {
				i++
			}
		}
	}
	return i
}

// scrubStrings returns a same-length copy of sql with single-quoted
// literals and comments blanked to spaces. Byte offsets stay aligned with
// the input, so identifier slices taken from the result preserve the
// original spelling. Double-quoted and backtick-quoted identifiers are
// kept.
func scrubStrings(sql string) string {
	out := []byte(sql)
	n := len(out)
	for i := 0; i < n; i++ {
		switch out[i] {
		case '\'':
			end := skipSingleQuoted(sql, i)
			for k := i; k <= end && k < n; k++ {
				out[k] = ' '
			}
			i = end
		case '-':
			if i+1 < n && out[i+1] == '-' {
				for ; i < n && out[i] != '\n'; i++ {
					out[i] = ' '
				}
			}
		case '/':
			if i+1 < n && out[i+1] == '*' {
				for ; i < n; i++ {
					if out[i] == '*' && i+1 < n && out[i+1] == '/' {
						out[i] = ' '
						out[i+1] = ' '
						i++
						break
					}
					out[i] = ' '
				}
			}
		}
	}
	return string(out)
}

func upperByte(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

func isDigitByte(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStartByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

// isWordByte reports whether c can appear inside an identifier. Bytes
// above 0x7f are treated as identifier bytes so multi-byte characters
// never split a word.
func isWordByte(c byte) bool {
	return isIdentStartByte(c) || isDigitByte(c) || c == '$'
}
