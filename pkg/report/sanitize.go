package report

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// sanitizeTerminal rewrites control characters and invalid UTF-8 in text read from
// inside a container as visible escapes, so a command line cannot drive the
// operator's terminal. Tabs survive; newlines do not, since one row is one line.
func sanitizeTerminal(s string) string {
	clean := true
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if (r == utf8.RuneError && size == 1) || (r != '\t' && unicode.IsControl(r)) {
			clean = false
			break
		}
		i += size
	}
	if clean {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			fmt.Fprintf(&b, `\x%02x`, s[i])
		case r == '\t' || !unicode.IsControl(r):
			b.WriteString(s[i : i+size])
		default:
			fmt.Fprintf(&b, `\x%02x`, r)
		}
		i += size
	}
	return b.String()
}
