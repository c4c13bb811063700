// internal/models/context.go
package models

// ContextSource is one retrieved excerpt.
type ContextSource struct {
	Title   string  `json:"title"`
	Excerpt string  `json:"excerpt"`
	URL     string  `json:"url"`
	Score   float64 `json:"score,omitempty"`
}

// ContextBundle is built once per request by a retriever and never modified
// afterwards.
type ContextBundle struct {
	Summary  string          `json:"summary"`
	Sources  []ContextSource `json:"sources"`
	Provider string          `json:"provider,omitempty"`
}

// NewContextBundle copies sources so later changes by the caller are not visible.
func NewContextBundle(summary string, sources []ContextSource, provider string) *ContextBundle {
	copied := make([]ContextSource, len(sources))
	copy(copied, sources)
	return &ContextBundle{Summary: summary, Sources: copied, Provider: provider}
}

// IsEmpty reports whether the bundle carries no usable text.
func (b *ContextBundle) IsEmpty() bool {
	return b == nil || (b.Summary == "" && len(b.Sources) == 0)
}
