package newsdetect

import (
	"encoding/json"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/language"
)

// MaxBodyTextLength bounds the derived plain body text as a resource-safety
// limit.
const MaxBodyTextLength = 50000

// Result is the classifier verdict plus normalized metadata. All fields
// beyond IsNewsArticle are meaningful only when IsNewsArticle is true.
type Result struct {
	IsNewsArticle bool
	Title         string
	Author        *string
	Description   *string
	ImageURL      *string
	PublishedAt   *time.Time
	Language      string
	BodyText      string
	JSONLD        json.RawMessage
}

// Classifier decides whether a fetched page is a news article by inspecting
// its JSON-LD metadata, and extracts display fields with fallback chains.
type Classifier struct {
	logger zerolog.Logger
}

func NewClassifier(logger zerolog.Logger) *Classifier {
	return &Classifier{logger: logger}
}

// Classify parses the HTML once and applies the NewsArticle decision rule:
// the page is a news article iff at least one JSON-LD node carries the
// NewsArticle type.
func (c *Classifier) Classify(htmlContent, sourceURL string) Result {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		c.logger.Warn().Err(err).Str("url", sourceURL).Msg("failed to parse HTML document")
		return Result{}
	}

	nodes := c.extractJSONLD(doc, sourceURL)
	if !hasNewsArticleNode(nodes) {
		return Result{}
	}

	jsonldRaw, err := json.Marshal(nodes)
	if err != nil {
		jsonldRaw = nil
	}

	return Result{
		IsNewsArticle: true,
		Title:         extractTitle(nodes, doc),
		Author:        extractAuthor(nodes),
		Description:   extractDescription(nodes, doc),
		ImageURL:      extractImageURL(nodes),
		PublishedAt:   extractPublishedAt(nodes),
		Language:      extractLanguage(nodes),
		BodyText:      extractBodyText(htmlContent),
		JSONLD:        jsonldRaw,
	}
}

// extractJSONLD collects every application/ld+json block, flattening arrays
// and @graph wrappers into a single node list. A block that fails to parse
// is logged and skipped without failing the document.
func (c *Classifier) extractJSONLD(doc *goquery.Document, sourceURL string) []map[string]any {
	var nodes []map[string]any

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, script *goquery.Selection) {
		cleaned := strings.TrimSpace(script.Text())
		cleaned = strings.TrimPrefix(cleaned, "<![CDATA[")
		cleaned = strings.TrimSuffix(cleaned, "]]>")
		if cleaned == "" {
			return
		}

		var parsed any
		if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
			c.logger.Warn().Err(err).Str("url", sourceURL).Msg("failed to parse JSON-LD block")
			return
		}
		nodes = appendJSONLDNodes(nodes, parsed)
	})

	return nodes
}

func appendJSONLDNodes(nodes []map[string]any, parsed any) []map[string]any {
	switch value := parsed.(type) {
	case []any:
		for _, item := range value {
			if node, ok := item.(map[string]any); ok {
				nodes = append(nodes, node)
			}
		}
	case map[string]any:
		if graph, ok := value["@graph"].([]any); ok {
			for _, item := range graph {
				if node, ok := item.(map[string]any); ok {
					nodes = append(nodes, node)
				}
			}
			return nodes
		}
		nodes = append(nodes, value)
	}
	return nodes
}

func hasNewsArticleNode(nodes []map[string]any) bool {
	for _, node := range nodes {
		if isNewsArticleType(node["@type"]) {
			return true
		}
	}
	return false
}

func isNewsArticleType(value any) bool {
	switch typed := value.(type) {
	case string:
		return typed == "NewsArticle" ||
			typed == "https://schema.org/NewsArticle" ||
			typed == "http://schema.org/NewsArticle"
	case []any:
		for _, item := range typed {
			if isNewsArticleType(item) {
				return true
			}
		}
	}
	return false
}

func newsArticleNodes(nodes []map[string]any) []map[string]any {
	var matched []map[string]any
	for _, node := range nodes {
		if isNewsArticleType(node["@type"]) {
			matched = append(matched, node)
		}
	}
	return matched
}

func extractTitle(nodes []map[string]any, doc *goquery.Document) string {
	for _, node := range newsArticleNodes(nodes) {
		if headline, ok := node["headline"].(string); ok && headline != "" {
			return normalizeDisplayText(headline)
		}
	}

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return normalizeDisplayText(title)
	}

	if ogTitle, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if trimmed := strings.TrimSpace(ogTitle); trimmed != "" {
			return normalizeDisplayText(trimmed)
		}
	}

	return ""
}

// extractAuthor handles the author appearing as an object, a bare string, or
// an array of objects; the first usable name/@value wins.
func extractAuthor(nodes []map[string]any) *string {
	for _, node := range newsArticleNodes(nodes) {
		author := node["author"]
		if author == nil {
			continue
		}
		if name := authorName(author); name != "" {
			normalized := normalizeDisplayText(name)
			return &normalized
		}
	}
	return nil
}

func authorName(author any) string {
	switch typed := author.(type) {
	case string:
		return typed
	case map[string]any:
		if name, ok := typed["name"].(string); ok && name != "" {
			return name
		}
		if value, ok := typed["@value"].(string); ok && value != "" {
			return value
		}
	case []any:
		if len(typed) > 0 {
			return authorName(typed[0])
		}
	}
	return ""
}

// extractPublishedAt parses datePublished. Unparsable values yield nil and
// never fail classification.
func extractPublishedAt(nodes []map[string]any) *time.Time {
	for _, node := range newsArticleNodes(nodes) {
		raw, ok := node["datePublished"].(string)
		if !ok || raw == "" {
			continue
		}
		if parsed, ok := parseFlexibleTime(raw); ok {
			return &parsed
		}
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseFlexibleTime(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

func extractDescription(nodes []map[string]any, doc *goquery.Document) *string {
	for _, node := range newsArticleNodes(nodes) {
		if description, ok := node["description"].(string); ok && description != "" {
			normalized := normalizeDisplayText(description)
			return &normalized
		}
	}

	for _, selector := range []string{`meta[property="og:description"]`, `meta[name="description"]`} {
		if content, ok := doc.Find(selector).First().Attr("content"); ok {
			if trimmed := strings.TrimSpace(content); trimmed != "" {
				normalized := normalizeDisplayText(trimmed)
				return &normalized
			}
		}
	}
	return nil
}

func extractImageURL(nodes []map[string]any) *string {
	for _, node := range newsArticleNodes(nodes) {
		image := node["image"]
		if image == nil {
			continue
		}
		if url := imageURL(image); url != "" {
			trimmed := strings.TrimSpace(url)
			return &trimmed
		}
	}
	return nil
}

func imageURL(image any) string {
	switch typed := image.(type) {
	case string:
		return typed
	case map[string]any:
		if url, ok := typed["url"].(string); ok && url != "" {
			return url
		}
		if value, ok := typed["@value"].(string); ok && value != "" {
			return value
		}
	case []any:
		for _, item := range typed {
			if url := imageURL(item); url != "" {
				return url
			}
		}
	}
	return ""
}

func extractLanguage(nodes []map[string]any) string {
	for _, node := range newsArticleNodes(nodes) {
		switch typed := node["inLanguage"].(type) {
		case string:
			if code := language.NormalizeCode(typed); code != "" {
				return code
			}
		case map[string]any:
			if name, ok := typed["name"].(string); ok {
				if code := language.NormalizeCode(name); code != "" {
					return code
				}
			}
		}
	}
	return ""
}

// normalizeDisplayText entity-decodes and collapses all whitespace runs,
// newlines included, to single spaces.
func normalizeDisplayText(raw string) string {
	decoded := html.UnescapeString(raw)
	return strings.Join(strings.Fields(decoded), " ")
}

var (
	scriptPattern   = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	stylePattern    = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	blockTagPattern = regexp.MustCompile(`(?i)</?(p|div|h[1-6]|article|section|li|br)[^>]*>`)
	anyTagPattern   = regexp.MustCompile(`<[^>]+>`)
	manyNewlines    = regexp.MustCompile(`\n{3,}`)
	spaceRuns       = regexp.MustCompile(`[ \t]+`)
)

// extractBodyText derives best-effort plain text from the page: scripts and
// styles removed, block tags converted to newlines so paragraph breaks
// survive, remaining tags stripped, entities decoded, whitespace normalized,
// then truncated to MaxBodyTextLength.
func extractBodyText(htmlContent string) string {
	text := scriptPattern.ReplaceAllString(htmlContent, "")
	text = stylePattern.ReplaceAllString(text, "")
	text = blockTagPattern.ReplaceAllString(text, "\n")
	text = anyTagPattern.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.TrimSpace(strings.Join(lines, "\n"))

	runes := []rune(text)
	if len(runes) > MaxBodyTextLength {
		text = string(runes[:MaxBodyTextLength])
	}
	return text
}
