package sqlt

import (
	"fmt"
	"strings"
)

// checkArgs verifies that args fills exactly the positional placeholders of q.
// Mismatches are reported as Binding errors before any connection is touched.
func checkArgs(dialect Dialect, q string, args []any) error {
	want := countPlaceholders(dialect, q)
	if want != len(args) {
		return &Error{
			Kind: Binding,
			Err:  fmt.Errorf("%w: placeholders=%d, args=%d", ErrPlaceholderMismatch, want, len(args)),
		}
	}
	return nil
}

// countPlaceholders walks q and returns the number of arguments the statement
// expects. It skips string literals, quoted identifiers, comments and
// dollar-quoted bodies. For numbered styles ($n, @pN, SQLite ?NNN) the highest
// index wins, since the same slot may be referenced more than once.
// Backslash escapes apply only to MySQL strings and Postgres E'...' literals.
func countPlaceholders(dialect Dialect, q string) int {
	n := 0
	var dqTag string // active dollar-quoted tag (Postgres-like)
	escapes := false // backslash escapes the next byte in the current literal

	// State machine for safe scanning through strings, comments, identifiers, etc.
	const (
		sText = iota
		sSQ   // '...'
		sDQ   // "..."
		sBT   // `...` (MySQL/SQLite)
		sBR   // [...] (SQL Server)
		sLC   // line comment -- or # (MySQL only)
		sBC   // block comment /* ... */
		sDQD  // $tag$ ... $tag$ (dollar-quoted)
	)
	state := sText

	for i := 0; i < len(q); {
		c := q[i]

		switch state {
		case sText:
			if c == '-' && i+1 < len(q) && q[i+1] == '-' {
				state = sLC
				i += 2
				continue
			}
			if c == '#' && dialect == MySQL {
				state = sLC
				i++
				continue
			}
			if c == '/' && i+1 < len(q) && q[i+1] == '*' {
				state = sBC
				i += 2
				continue
			}
			if c == '\'' {
				state = sSQ
				escapes = dialect == MySQL || (dialect == Postgres && isEscapePrefix(q, i))
				i++
				continue
			}
			if c == '"' {
				state = sDQ
				escapes = dialect == MySQL
				i++
				continue
			}
			if c == '`' && (dialect == MySQL || dialect == SQLite) {
				state = sBT
				i++
				continue
			}
			if c == '[' && dialect == SQLServer {
				state = sBR
				i++
				continue
			}

			switch dialect {
			case Postgres:
				if c == '$' {
					if idx, k, ok := readIndex(q, i+1); ok {
						n = max(n, idx)
						i = k
						continue
					}
					if tag, ok := readDollarTag(q[i:]); ok {
						state = sDQD
						dqTag = tag
						i += len(tag)
						continue
					}
				}
			case SQLServer:
				if c == '@' && i+1 < len(q) && (q[i+1] == 'p' || q[i+1] == 'P') {
					if idx, k, ok := readIndex(q, i+2); ok {
						n = max(n, idx)
						i = k
						continue
					}
				}
			case SQLite:
				if c == '?' {
					// ?NNN names a slot; a bare ? takes the next one
					if idx, k, ok := readIndex(q, i+1); ok {
						n = max(n, idx)
						i = k
						continue
					}
					n++
				}
			default: // MySQL
				if c == '?' {
					n++
				}
			}
			i++

		case sSQ:
			if c == '\\' && escapes {
				i += 2
				continue
			}
			i++
			if c == '\'' {
				if i < len(q) && q[i] == '\'' {
					i++
				} else {
					state = sText
				}
			}

		case sDQ:
			if c == '\\' && escapes {
				i += 2
				continue
			}
			i++
			if c == '"' {
				if i < len(q) && q[i] == '"' {
					i++
				} else {
					state = sText
				}
			}

		case sBT:
			i++
			if c == '`' {
				if i < len(q) && q[i] == '`' {
					i++
				} else {
					state = sText
				}
			}

		case sBR:
			i++
			if c == ']' {
				if i < len(q) && q[i] == ']' {
					i++
				} else {
					state = sText
				}
			}

		case sLC:
			i++
			if c == '\n' || c == '\r' {
				state = sText
			}

		case sBC:
			i++
			if c == '*' && i < len(q) && q[i] == '/' {
				i++
				state = sText
			}

		case sDQD:
			p := strings.Index(q[i:], dqTag)
			if p < 0 {
				i = len(q)
			} else {
				i += p + len(dqTag)
				dqTag = ""
				state = sText
			}
		}
	}

	return n
}

// --------------------------------
// Utils
// --------------------------------

// isAlphaNumUnderscore reports whether b is [A-Za-z0-9_] .
func isAlphaNumUnderscore(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9') || b == '_'
}

// isEscapePrefix reports whether the quote at q[i] opens a Postgres E'...'
// literal.
func isEscapePrefix(q string, i int) bool {
	if i == 0 || (q[i-1] != 'E' && q[i-1] != 'e') {
		return false
	}
	return i == 1 || !isAlphaNumUnderscore(q[i-2])
}

// readIndex parses a positive decimal placeholder index starting at i.
// It returns the index, the position after the digits, and whether an index
// was found. Digits followed by an identifier character are not an index.
func readIndex(q string, i int) (int, int, bool) {
	j := i
	v := 0
	for j < len(q) && q[j] >= '0' && q[j] <= '9' {
		v = v*10 + int(q[j]-'0')
		j++
	}
	if j == i || v == 0 {
		return 0, i, false
	}
	if j < len(q) && (isAlphaNumUnderscore(q[j]) || q[j] == '$') {
		return 0, i, false
	}
	return v, j, true
}

// readDollarTag detects a dollar-quoted opening tag ("$tag$") at the start of s.
// It returns the full tag (e.g. "$tag$") and true if found.
func readDollarTag(s string) (string, bool) {
	if len(s) < 2 || s[0] != '$' {
		return "", false
	}
	j := 1
	for j < len(s) && isAlphaNumUnderscore(s[j]) {
		j++
	}
	if j < len(s) && s[j] == '$' {
		return s[:j+1], true
	}
	return "", false
}
