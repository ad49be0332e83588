package schema

// Usage records token accounting for one message
type Usage struct {
	InputTokens      int      `json:"input_tokens"`
	OutputTokens     int      `json:"output_tokens"`
	ReasoningTokens  int      `json:"reasoning_tokens,omitempty"`
	CacheReadTokens  int      `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int      `json:"cache_write_tokens,omitempty"`
	Cost             *float64 `json:"cost,omitempty"`
}
