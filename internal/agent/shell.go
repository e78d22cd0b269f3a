package agent

import "strings"

// quoteForShell wraps s in double quotes, escaping the characters POSIX
// shells treat specially inside a double-quoted string (backslash,
// double quote, dollar, backtick) so that after shell parsing the
// argument reproduces s byte-for-byte, including when s embeds a literal
// `"` or ends in `\`.
func quoteForShell(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\', '"', '$', '`':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// quoteSingle wraps s in single quotes, the quoting style the Kilocode
// adapter uses for its --prompt argument: a literal `'`
// cannot appear inside a single-quoted string, so it is closed, an
// escaped quote spliced in, and reopened.
func quoteSingle(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
