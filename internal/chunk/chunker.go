package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

const (
	// TargetTokens is the per-chunk token budget, estimated at roughly four
	// characters per token.
	TargetTokens    = 300
	OverlapFraction = 0.12

	charsPerToken = 4

	// maxChunksPerParagraph caps the sliding window as a runaway-loop bound.
	maxChunksPerParagraph = 1000
)

var (
	paragraphSplit   = regexp.MustCompile(`\n{2,}`)
	sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)
)

// Chunk is one bounded slice of cleaned article text sized for embedding.
type Chunk struct {
	Text       string
	Index      int
	TokenCount int
	Checksum   string
}

// Split segments cleaned text into chunks. Paragraphs within the token
// budget become single chunks; over-long paragraphs are cut by a sliding
// window with overlap and sentence-boundary snapping. Indexes are monotonic
// across the whole text, never reset per paragraph. Empty input yields nil.
func Split(cleanedText string) []Chunk {
	if strings.TrimSpace(cleanedText) == "" {
		return nil
	}

	var paragraphs []string
	for _, paragraph := range paragraphSplit.Split(cleanedText, -1) {
		trimmed := strings.TrimSpace(paragraph)
		if trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []Chunk
	for _, paragraph := range paragraphs {
		if EstimateTokens(paragraph) <= TargetTokens {
			chunks = append(chunks, newChunk(paragraph, len(chunks)))
			continue
		}
		chunks = appendWindowChunks(chunks, paragraph)
	}
	return chunks
}

// EstimateTokens approximates the token count at ~4 characters per token,
// rounding up.
func EstimateTokens(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// appendWindowChunks slides a window of roughly TargetTokens*4 characters
// over an over-long paragraph, advancing by the window size minus the
// overlap, always at least one character to guarantee termination.
func appendWindowChunks(chunks []Chunk, text string) []Chunk {
	targetChars := TargetTokens * charsPerToken
	overlapChars := int(float64(targetChars) * OverlapFraction)

	produced := 0
	start := 0
	for start < len(text) {
		end := min(start+targetChars, len(text))

		// Snap to a sentence boundary found within the final 20% of the
		// window. No boundary there means a raw character cut; the search
		// never looks further back.
		if end < len(text) {
			searchStart := max(end-targetChars/5, start)
			if loc := sentenceBoundary.FindStringIndex(text[searchStart:end]); loc != nil {
				end = searchStart + loc[0] + 1
			}
		}

		chunkText := strings.TrimSpace(text[start:end])
		if chunkText != "" {
			chunks = append(chunks, newChunk(chunkText, len(chunks)))
			produced++
		}

		// The last window consumed the rest of the text; stepping back by
		// the overlap here would re-emit shrinking tail fragments forever.
		if end == len(text) {
			break
		}

		start = max(end-overlapChars, start+1)
		if produced >= maxChunksPerParagraph {
			break
		}
	}
	return chunks
}

func newChunk(text string, index int) Chunk {
	sum := sha256.Sum256([]byte(text))
	return Chunk{
		Text:       text,
		Index:      index,
		TokenCount: EstimateTokens(text),
		Checksum:   hex.EncodeToString(sum[:]),
	}
}
