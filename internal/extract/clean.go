package extract

import (
	"regexp"
	"strings"
)

var blankLineRun = regexp.MustCompile(`\n\s*\n\s*\n+`)

// CleanText normalizes extracted text: unified newlines, no NBSP, trimmed
// lines and never more than one blank line in a row.
func CleanText(txt string) string {
	if txt == "" {
		return ""
	}
	txt = strings.ReplaceAll(txt, "\r\n", "\n")
	txt = strings.ReplaceAll(txt, "\r", "\n")
	txt = strings.ReplaceAll(txt, "\u00a0", " ")
	txt = blankLineRun.ReplaceAllString(txt, "\n\n")

	lines := strings.Split(txt, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	txt = strings.Join(lines, "\n")
	txt = blankLineRun.ReplaceAllString(txt, "\n\n")
	return strings.TrimSpace(txt)
}
