package links

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/bsky"
	eventschema "github.com/skybrief/skybrief/schema"
)

type fakeLookup struct {
	posts map[string]*bsky.PostView
	err   error
	calls []string
}

func (f *fakeLookup) GetPost(_ context.Context, uri string) (*bsky.PostView, error) {
	f.calls = append(f.calls, uri)
	if f.err != nil {
		return nil, f.err
	}
	return f.posts[uri], nil
}

func postEvent(collection string, record *eventschema.Record) *eventschema.PostEvent {
	return &eventschema.PostEvent{
		DID: "did:plc:alice",
		Commit: &eventschema.Commit{
			Collection: collection,
			RKey:       "3kabc",
			Record:     record,
		},
	}
}

func linkFacet(uri string) eventschema.Facet {
	return eventschema.Facet{
		Features: []eventschema.FacetFeature{
			{Type: "app.bsky.richtext.facet#link", URI: uri},
		},
	}
}

func TestExtractFacetAndExternalEmbed(t *testing.T) {
	t.Parallel()

	embed := json.RawMessage(`{
		"$type": "app.bsky.embed.external",
		"external": {"uri": "https://news.example.com/embedded"}
	}`)
	event := postEvent("app.bsky.feed.post", &eventschema.Record{
		Text:   "ignored because structured links exist https://news.example.com/text",
		Facets: []eventschema.Facet{linkFacet("https://news.example.com/faceted")},
		Embed:  embed,
	})

	extractor := NewExtractor(nil, zerolog.Nop())
	got := extractor.Extract(context.Background(), event)

	want := []string{"https://news.example.com/faceted", "https://news.example.com/embedded"}
	if len(got) != len(want) {
		t.Fatalf("expected %d links, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("link %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestExtractTextFallbackStripsTrailingPunctuation(t *testing.T) {
	t.Parallel()

	event := postEvent("app.bsky.feed.post", &eventschema.Record{
		Text: "read this: https://news.example.com/story.",
	})

	extractor := NewExtractor(nil, zerolog.Nop())
	got := extractor.Extract(context.Background(), event)

	if len(got) != 1 || got[0] != "https://news.example.com/story" {
		t.Fatalf("expected trimmed text link, got %v", got)
	}
}

func TestExtractTextFallbackSkippedWhenFacetPresent(t *testing.T) {
	t.Parallel()

	event := postEvent("app.bsky.feed.post", &eventschema.Record{
		Text:   "https://news.example.com/from-text",
		Facets: []eventschema.Facet{linkFacet("https://news.example.com/from-facet")},
	})

	extractor := NewExtractor(nil, zerolog.Nop())
	got := extractor.Extract(context.Background(), event)

	if len(got) != 1 || got[0] != "https://news.example.com/from-facet" {
		t.Fatalf("expected only the facet link, got %v", got)
	}
}

func TestExtractRepostReturnsOnlyOriginalLinks(t *testing.T) {
	t.Parallel()

	originalURI := "at://did:plc:bob/app.bsky.feed.post/3korig"
	lookup := &fakeLookup{
		posts: map[string]*bsky.PostView{
			originalURI: {
				URI: originalURI,
				Record: &eventschema.Record{
					Text:   "original https://news.example.com/should-not-matter",
					Facets: []eventschema.Facet{linkFacet("https://news.example.com/original")},
				},
			},
		},
	}

	event := postEvent("app.bsky.feed.repost", &eventschema.Record{
		Text:    "https://news.example.com/reposter-own-text",
		Subject: &eventschema.StrongRef{URI: originalURI},
	})

	extractor := NewExtractor(lookup, zerolog.Nop())
	got := extractor.Extract(context.Background(), event)

	if len(got) != 1 || got[0] != "https://news.example.com/original" {
		t.Fatalf("expected only the original post's link, got %v", got)
	}
	if len(lookup.calls) != 1 || lookup.calls[0] != originalURI {
		t.Fatalf("expected one lookup of %q, got %v", originalURI, lookup.calls)
	}
}

func TestExtractQuotePostMergesOwnAndQuotedLinks(t *testing.T) {
	t.Parallel()

	quotedURI := "at://did:plc:bob/app.bsky.feed.post/3kquoted"
	lookup := &fakeLookup{
		posts: map[string]*bsky.PostView{
			quotedURI: {
				URI: quotedURI,
				Record: &eventschema.Record{
					Facets: []eventschema.Facet{linkFacet("https://news.example.com/quoted")},
				},
			},
		},
	}

	embed := json.RawMessage(fmt.Sprintf(`{
		"$type": "app.bsky.embed.record",
		"record": {"uri": %q}
	}`, quotedURI))
	event := postEvent("app.bsky.feed.post", &eventschema.Record{
		Facets: []eventschema.Facet{linkFacet("https://news.example.com/own")},
		Embed:  embed,
	})

	extractor := NewExtractor(lookup, zerolog.Nop())
	got := extractor.Extract(context.Background(), event)

	want := []string{"https://news.example.com/own", "https://news.example.com/quoted"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestExtractLookupFailureDegradesGracefully(t *testing.T) {
	t.Parallel()

	lookup := &fakeLookup{err: fmt.Errorf("appview unavailable")}
	event := postEvent("app.bsky.feed.repost", &eventschema.Record{
		Subject: &eventschema.StrongRef{URI: "at://did:plc:bob/app.bsky.feed.post/3kgone"},
	})

	extractor := NewExtractor(lookup, zerolog.Nop())
	if got := extractor.Extract(context.Background(), event); got != nil {
		t.Fatalf("expected no links when lookup fails, got %v", got)
	}
}

func TestExtractDeduplicatesPreservingOrder(t *testing.T) {
	t.Parallel()

	embed := json.RawMessage(`{
		"$type": "app.bsky.embed.external",
		"external": {"uri": "https://news.example.com/story"}
	}`)
	event := postEvent("app.bsky.feed.post", &eventschema.Record{
		Facets: []eventschema.Facet{
			linkFacet("https://news.example.com/story"),
			linkFacet("https://news.example.com/other"),
			linkFacet("https://news.example.com/story"),
		},
		Embed: embed,
	})

	extractor := NewExtractor(nil, zerolog.Nop())
	got := extractor.Extract(context.Background(), event)

	want := []string{"https://news.example.com/story", "https://news.example.com/other"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestExtractNilEvent(t *testing.T) {
	t.Parallel()

	extractor := NewExtractor(nil, zerolog.Nop())
	if got := extractor.Extract(context.Background(), nil); got != nil {
		t.Fatalf("expected nil for nil event, got %v", got)
	}
}
