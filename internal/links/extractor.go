package links

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/bsky"
	eventschema "github.com/skybrief/skybrief/schema"
)

const (
	repostCollection = "app.bsky.feed.repost"
	linkFacetType    = "app.bsky.richtext.facet#link"
)

var urlPattern = regexp.MustCompile(`https?://[^\s)]+`)

// PostLookup resolves a post by at:// URI from the public read API.
// Failures are non-fatal to extraction.
type PostLookup interface {
	GetPost(ctx context.Context, uri string) (*bsky.PostView, error)
}

// Extractor turns a raw post event into an ordered, de-duplicated list of
// candidate article URLs, resolving one level of repost/quote indirection.
type Extractor struct {
	lookup PostLookup
	logger zerolog.Logger
}

func NewExtractor(lookup PostLookup, logger zerolog.Logger) *Extractor {
	return &Extractor{
		lookup: lookup,
		logger: logger,
	}
}

// Extract collects candidate links from an event. A pure repost contributes
// no links of its own; only the referenced original is inspected.
func (e *Extractor) Extract(ctx context.Context, event *eventschema.PostEvent) []string {
	if event == nil || event.Commit == nil {
		return nil
	}

	var links []string

	if event.Commit.Collection == repostCollection {
		record := event.Commit.Record
		if record != nil && record.Subject != nil && record.Subject.URI != "" {
			links = e.appendOriginalPostLinks(ctx, record.Subject.URI, links)
		}
		return dedupe(links)
	}

	record := event.Commit.Record
	if record == nil {
		return nil
	}

	links = appendFacetLinks(record.Facets, links)

	switch embed := decodeEmbed(record.Embed); embed.kind {
	case embedExternal:
		if embed.externalURI != "" {
			links = append(links, embed.externalURI)
		}
	case embedRecord, embedRecordWithMedia:
		if embed.recordURI != "" {
			links = e.appendOriginalPostLinks(ctx, embed.recordURI, links)
		}
	case embedUnknown:
		// no link-bearing embed
	}

	if len(links) == 0 {
		links = appendTextLinks(record.Text, links)
	}

	return dedupe(links)
}

// appendOriginalPostLinks fetches a referenced post and collects its facet
// links and external-embed link. Lookup failures contribute nothing.
func (e *Extractor) appendOriginalPostLinks(ctx context.Context, uri string, links []string) []string {
	if e.lookup == nil {
		return links
	}

	view, err := e.lookup.GetPost(ctx, uri)
	if err != nil {
		e.logger.Warn().Err(err).Str("uri", uri).Msg("failed to resolve referenced post")
		return links
	}
	if view == nil || view.Record == nil {
		return links
	}

	links = appendFacetLinks(view.Record.Facets, links)

	if embed := decodeEmbed(view.Record.Embed); embed.kind == embedExternal && embed.externalURI != "" {
		links = append(links, embed.externalURI)
	}
	return links
}

func appendFacetLinks(facets []eventschema.Facet, links []string) []string {
	for _, facet := range facets {
		for _, feature := range facet.Features {
			if feature.Type == linkFacetType && feature.URI != "" {
				links = append(links, feature.URI)
			}
		}
	}
	return links
}

// appendTextLinks scans raw text for URL-shaped substrings, stripping
// trailing punctuation. Used only when no structured link was found.
func appendTextLinks(text string, links []string) []string {
	for _, match := range urlPattern.FindAllString(text, -1) {
		cleaned := strings.TrimRight(match, ".,;:!?")
		if cleaned != "" {
			links = append(links, cleaned)
		}
	}
	return links
}

func dedupe(links []string) []string {
	if len(links) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(links))
	unique := make([]string, 0, len(links))
	for _, link := range links {
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		unique = append(unique, link)
	}
	return unique
}
