package citation

import (
	"regexp"
	"strconv"

	"coverage-rag-be/pkg/search"
)

// DefaultThreshold hides citations whose relevance score is not strictly
// above this value, even when the model referenced them.
const DefaultThreshold = 0.7

var markerPattern = regexp.MustCompile(`\[(\d+)\]`)

// Citation surfaces one cited retrieval result to the client.
type Citation struct {
	Document string  `json:"document"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
}

// Resolve scans text for bracketed ordinal markers "[k]" and maps each
// distinct in-range k to results[k-1]. Markers outside [1, len(results)] are
// ignored; the model may cite a stale or hallucinated index. The returned
// list keeps only results with score > threshold, ordered by original result
// position rather than marker appearance. Resolve is pure and idempotent.
func Resolve(text string, results []search.Result, threshold float64) []Citation {
	cited := make(map[int]bool)

	for _, match := range markerPattern.FindAllStringSubmatch(text, -1) {
		k, err := strconv.Atoi(match[1])
		if err != nil {
			continue // digits too long for an int are not a real marker
		}
		if k < 1 || k > len(results) {
			continue
		}
		cited[k] = true
	}

	citations := make([]Citation, 0, len(cited))
	for i, result := range results {
		if !cited[i+1] {
			continue
		}
		if result.Score <= threshold {
			continue
		}
		citations = append(citations, Citation{
			Document: result.Document,
			Content:  result.Content,
			Score:    result.Score,
		})
	}

	return citations
}
