package textclean

import (
	"html"
	"regexp"
	"strings"
)

var (
	scriptPattern  = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	stylePattern   = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	navPattern     = regexp.MustCompile(`(?is)<nav[^>]*>.*?</nav>`)
	headerPattern  = regexp.MustCompile(`(?is)<header[^>]*>.*?</header>`)
	footerPattern  = regexp.MustCompile(`(?is)<footer[^>]*>.*?</footer>`)
	asidePattern   = regexp.MustCompile(`(?is)<aside[^>]*>.*?</aside>`)
	commentPattern = regexp.MustCompile(`(?s)<!--.*?-->`)

	blockTagPattern = regexp.MustCompile(`(?i)</?(p|div|h[1-6]|article|section|li|br)[^>]*>`)
	anyTagPattern   = regexp.MustCompile(`<[^>]+>`)
	manyNewlines    = regexp.MustCompile(`\n{3,}`)
	spaceRuns       = regexp.MustCompile(`[ \t]+`)
)

// Clean turns HTML or raw text into normalized plain text. Boilerplate
// blocks and comments are removed, paragraph-like tags become newlines so
// paragraph structure survives tag stripping, entities are decoded, and
// whitespace is normalized: runs of 3+ newlines collapse to a blank line,
// runs of spaces and tabs collapse to one space, each line is trimmed.
// The function is deterministic: same input, same output.
func Clean(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	text := scriptPattern.ReplaceAllString(raw, "")
	text = stylePattern.ReplaceAllString(text, "")
	text = navPattern.ReplaceAllString(text, "")
	text = headerPattern.ReplaceAllString(text, "")
	text = footerPattern.ReplaceAllString(text, "")
	text = asidePattern.ReplaceAllString(text, "")
	text = commentPattern.ReplaceAllString(text, "")

	text = blockTagPattern.ReplaceAllString(text, "\n")
	text = anyTagPattern.ReplaceAllString(text, "")
	text = html.UnescapeString(text)

	text = manyNewlines.ReplaceAllString(text, "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
