package links

import "encoding/json"

// embedKind enumerates the closed set of link-bearing embed variants.
type embedKind int

const (
	embedUnknown embedKind = iota
	embedExternal
	embedRecord
	embedRecordWithMedia
)

type embedVariant struct {
	kind        embedKind
	externalURI string
	recordURI   string
}

type rawEmbed struct {
	Type     string `json:"$type"`
	External *struct {
		URI string `json:"uri"`
	} `json:"external"`
	Record json.RawMessage `json:"record"`
}

type rawRecordRef struct {
	URI    string `json:"uri"`
	Record *struct {
		URI string `json:"uri"`
	} `json:"record"`
}

// decodeEmbed resolves the embed's $type once into a tagged variant so
// callers dispatch on kind rather than matching type strings.
func decodeEmbed(raw json.RawMessage) embedVariant {
	if len(raw) == 0 {
		return embedVariant{kind: embedUnknown}
	}

	var embed rawEmbed
	if err := json.Unmarshal(raw, &embed); err != nil {
		return embedVariant{kind: embedUnknown}
	}

	switch embed.Type {
	case "app.bsky.embed.external":
		if embed.External == nil {
			return embedVariant{kind: embedUnknown}
		}
		return embedVariant{kind: embedExternal, externalURI: embed.External.URI}
	case "app.bsky.embed.record":
		var ref rawRecordRef
		if err := json.Unmarshal(embed.Record, &ref); err != nil {
			return embedVariant{kind: embedUnknown}
		}
		return embedVariant{kind: embedRecord, recordURI: ref.URI}
	case "app.bsky.embed.recordWithMedia":
		var ref rawRecordRef
		if err := json.Unmarshal(embed.Record, &ref); err != nil {
			return embedVariant{kind: embedUnknown}
		}
		if ref.Record == nil {
			return embedVariant{kind: embedRecordWithMedia}
		}
		return embedVariant{kind: embedRecordWithMedia, recordURI: ref.Record.URI}
	default:
		return embedVariant{kind: embedUnknown}
	}
}
