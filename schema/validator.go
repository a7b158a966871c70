package eventschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed post_event.schema.json
var postEventSchemaJSON string

// PostEvent is one raw event from the work queue: a commit to a repo
// identified by its DID.
type PostEvent struct {
	DID    string  `json:"did"`
	Commit *Commit `json:"commit"`
}

// Commit carries the record and the components of its at:// URI.
type Commit struct {
	Collection string  `json:"collection"`
	RKey       string  `json:"rkey"`
	Record     *Record `json:"record"`
}

// Record is the post record payload. Embed stays raw because its shape is a
// closed set of variants decoded where links are extracted.
type Record struct {
	Text      string          `json:"text"`
	CreatedAt string          `json:"createdAt"`
	Facets    []Facet         `json:"facets"`
	Embed     json.RawMessage `json:"embed"`
	Subject   *StrongRef      `json:"subject"`
	URI       string          `json:"uri"`
}

// Facet is a rich-text annotation over a byte range of the post text.
type Facet struct {
	Features []FacetFeature `json:"features"`
}

// FacetFeature is one annotation feature; link features carry a URI.
type FacetFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri"`
}

// StrongRef points at another record, as used by repost subjects.
type StrongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidatePostEvent validates a raw queue payload against the event schema
// and decodes it. Malformed events are never retriable.
func ValidatePostEvent(payload json.RawMessage) (*PostEvent, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode event JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var event PostEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	if strings.TrimSpace(event.DID) == "" {
		return nil, fmt.Errorf("did must not be blank")
	}
	if event.Commit == nil {
		return nil, fmt.Errorf("commit is required")
	}

	return &event, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("post_event.schema.json", strings.NewReader(postEventSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("post_event.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("event payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("event payload contains trailing content")
	}

	return value, nil
}
