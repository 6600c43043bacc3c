package models

// SearchRequest is the body of a collection search call.
type SearchRequest struct {
	Query   string         `json:"query"`
	Filters map[string]any `json:"filters,omitempty"`
	Limit   int            `json:"limit,omitempty"`
}

// QueryRequest is the body of a relational filter query.
type QueryRequest struct {
	Filters map[string]any `json:"filters"`
	Limit   int            `json:"limit,omitempty"`
	Offset  int            `json:"offset,omitempty"`
}

// Highlight is one matching chunk inside a search result.
type Highlight struct {
	Field      string  `json:"field"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
}

// SearchResult is one record grouped from its matching vector points. Score
// is the best point score; Record is the hydrated relational row with
// presigned file URLs attached.
type SearchResult struct {
	ID         string         `json:"id"`
	Score      float32        `json:"score"`
	Record     map[string]any `json:"record"`
	Highlights []Highlight    `json:"highlights"`
}

// SearchResponse is the body of a search reply. TookMS is rounded to two
// decimals.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
	TookMS  float64        `json:"took_ms"`
}
