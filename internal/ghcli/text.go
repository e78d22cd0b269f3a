package ghcli

import "strings"

// stripANSI removes terminal color/cursor escape sequences gh emits even
// with NO_COLOR set in some terminals, so JSON payloads parse cleanly.
func stripANSI(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '\x1b' && i+1 < len(runes) && runes[i+1] == '[' {
			i += 2
			for i < len(runes) && !isANSITerminator(runes[i]) {
				i++
			}
			continue
		}
		b.WriteRune(runes[i])
	}
	return b.String()
}

func isANSITerminator(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// combineOutput joins stdout and stderr for URL scanning: `gh pr create`
// sometimes prints the PR URL to stderr alongside warnings on stdout.
func combineOutput(out Output) string {
	switch {
	case out.Stderr == "":
		return out.Stdout
	case out.Stdout == "":
		return out.Stderr
	default:
		return out.Stdout + "\n" + out.Stderr
	}
}

// extractPRURL finds the first https://github.com/.../pull/N token in
// free-form command output.
func extractPRURL(text string) string {
	for _, token := range strings.Fields(text) {
		cleaned := strings.Trim(token, "()[]{}<>,.;")
		if strings.HasPrefix(cleaned, "https://github.com/") && strings.Contains(cleaned, "/pull/") {
			return cleaned
		}
	}
	return ""
}
