package rag

// Chunk is a bounded span of extracted document text, the unit of
// embedding and retrieval.
type Chunk struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Index  int    `json:"index"`
}

// Payload is the data stored alongside a vector in the index.
type Payload struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// ScoredPoint is a single similarity-search hit.
type ScoredPoint struct {
	ID      string  `json:"id"`
	Score   float32 `json:"score"`
	Payload Payload `json:"payload"`
}

// RetrievalResult holds the ranked context texts for a query together
// with the distinct source ids they came from, in first-seen order.
// Contexts keeps duplicates; Sources does not.
type RetrievalResult struct {
	Contexts []string `json:"contexts"`
	Sources  []string `json:"sources"`
}

// Empty reports whether the search returned no usable context.
func (r RetrievalResult) Empty() bool {
	return len(r.Contexts) == 0
}

// NewRetrievalResult assembles the retrieval view of ranked search
// hits: every context text in rank order, sources deduplicated in
// first-seen order.
func NewRetrievalResult(points []ScoredPoint) RetrievalResult {
	result := RetrievalResult{
		Contexts: []string{},
		Sources:  []string{},
	}
	seen := make(map[string]bool)

	for _, p := range points {
		if p.Payload.Text != "" {
			result.Contexts = append(result.Contexts, p.Payload.Text)
		}
		if p.Payload.Source != "" && !seen[p.Payload.Source] {
			seen[p.Payload.Source] = true
			result.Sources = append(result.Sources, p.Payload.Source)
		}
	}

	return result
}

// Answer is the final result of a retrieval run.
type Answer struct {
	Text        string   `json:"answer"`
	Sources     []string `json:"sources"`
	NumContexts int      `json:"num_contexts"`
}
