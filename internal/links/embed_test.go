package links

import (
	"encoding/json"
	"testing"
)

func TestDecodeEmbedVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    string
		kind   embedKind
		extURI string
		recURI string
	}{
		{
			name:   "external",
			raw:    `{"$type": "app.bsky.embed.external", "external": {"uri": "https://example.com/a"}}`,
			kind:   embedExternal,
			extURI: "https://example.com/a",
		},
		{
			name:   "record",
			raw:    `{"$type": "app.bsky.embed.record", "record": {"uri": "at://did:plc:x/app.bsky.feed.post/1"}}`,
			kind:   embedRecord,
			recURI: "at://did:plc:x/app.bsky.feed.post/1",
		},
		{
			name:   "record with media",
			raw:    `{"$type": "app.bsky.embed.recordWithMedia", "record": {"record": {"uri": "at://did:plc:x/app.bsky.feed.post/2"}}}`,
			kind:   embedRecordWithMedia,
			recURI: "at://did:plc:x/app.bsky.feed.post/2",
		},
		{
			name: "images embed carries no link",
			raw:  `{"$type": "app.bsky.embed.images", "images": []}`,
			kind: embedUnknown,
		},
		{
			name: "malformed",
			raw:  `{"$type": "app.bsky.embed.record", "record": 7}`,
			kind: embedUnknown,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := decodeEmbed(json.RawMessage(tt.raw))
			if got.kind != tt.kind {
				t.Fatalf("expected kind %d, got %d", tt.kind, got.kind)
			}
			if got.externalURI != tt.extURI {
				t.Fatalf("expected external URI %q, got %q", tt.extURI, got.externalURI)
			}
			if got.recordURI != tt.recURI {
				t.Fatalf("expected record URI %q, got %q", tt.recURI, got.recordURI)
			}
		})
	}
}

func TestDecodeEmbedEmpty(t *testing.T) {
	t.Parallel()

	if got := decodeEmbed(nil); got.kind != embedUnknown {
		t.Fatalf("expected unknown kind for nil embed, got %d", got.kind)
	}
}
