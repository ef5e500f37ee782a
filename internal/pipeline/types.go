package pipeline

// Source types carried on retrieved documents.
const (
	SourceChunk                = "chunk"
	SourceFullTranscript       = "full_transcript"
	SourceFullTranscriptDirect = "full_transcript_direct"
	SourceExternal             = "external"
)

// RetrievedDocument is one piece of context assembled for a query. It
// lives for the duration of a single query only.
type RetrievedDocument struct {
	Text       string
	SourceType string
	Similarity float64
	StartTime  float64
	EndTime    float64
	VideoID    string
}

// SourceRef is the caller-facing projection of a RetrievedDocument.
type SourceRef struct {
	VideoID    string  `json:"video_id,omitempty"`
	SourceType string  `json:"source_type"`
	Similarity float64 `json:"similarity,omitempty"`
	StartTime  float64 `json:"start_time,omitempty"`
	EndTime    float64 `json:"end_time,omitempty"`
	Preview    string  `json:"preview"`
}

// QueryResult is the structured outcome of one pipeline query.
type QueryResult struct {
	Answer   string      `json:"answer"`
	Sources  []SourceRef `json:"sources"`
	Metadata Metadata    `json:"metadata"`
}

// ModelSelection records which chat model answered and why.
type ModelSelection struct {
	ModelName       string `json:"model_name"`
	SelectionReason string `json:"selection_reason"`
}

// PronounResolution records the reference-resolution stage outcome.
type PronounResolution struct {
	Used             bool   `json:"used"`
	OriginalQuestion string `json:"original_question"`
	ResolvedQuestion string `json:"resolved_question"`
	HadPronouns      bool   `json:"had_pronouns"`
	MemoryAvailable  bool   `json:"memory_available"`
}

// ExternalSearch records the external knowledge fallback outcome.
type ExternalSearch struct {
	Triggered      bool `json:"triggered"`
	Success        bool `json:"success"`
	ResponseLength int  `json:"response_length"`
	UsedInContext  bool `json:"used_in_context"`
}

// Metadata enumerates everything observable about one query.
type Metadata struct {
	ProcessingTimeMs    int64             `json:"processing_time_ms"`
	SourceCount         int               `json:"source_count"`
	RetrievalMethod     string            `json:"retrieval_method"`
	ContextLength       int               `json:"context_length"`
	AnswerLength        int               `json:"answer_length"`
	CompressionRatio    float64           `json:"compression_ratio"`
	LLMTimeMs           int64             `json:"llm_time_ms"`
	ModelSelection      ModelSelection    `json:"model_selection"`
	PronounResolution   PronounResolution `json:"pronoun_resolution"`
	ExternalSearch      ExternalSearch    `json:"external_search"`
	PipelineAttribution AttributionRecord `json:"pipeline_attribution"`
	MemoryUsed          bool              `json:"memory_used"`
	MemoryContextLength int               `json:"memory_context_length"`
	SessionID           string            `json:"session_id,omitempty"`
	Error               string            `json:"error,omitempty"`
}

// estimateTokens approximates token count from text length. Four
// characters per token is the rule of thumb the whole pipeline uses.
func estimateTokens(s string) int {
	return len(s) / 4
}

// preview truncates text for source projections.
func preview(s string, max int) string {
	if max <= 0 {
		max = 200
	}
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
