package dto

import "time"

type QueryRequest struct {
	Query     string                 `json:"query" validate:"required,min=1,max=2000"`
	SessionID string                 `json:"session_id,omitempty"`
	TopK      int                    `json:"top_k,omitempty" validate:"omitempty,min=1,max=50"`
	Debug     bool                   `json:"debug,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

type CandidateSummaryResponse struct {
	Name     string                 `json:"name"`
	Summary  string                 `json:"summary"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Score    float64                `json:"score"`
}

type QueryResponse struct {
	Success    bool                       `json:"success"`
	Response   string                     `json:"response"`
	Candidates []CandidateSummaryResponse `json:"candidates,omitempty"`
	Sources    []string                   `json:"sources,omitempty"`
	Error      string                     `json:"error,omitempty"`
	Debug      map[string]interface{}     `json:"debug,omitempty"`
}

type MemoryEntryResponse struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	Query           string    `json:"query"`
	ResponseSummary string    `json:"response_summary"`
	Timestamp       time.Time `json:"timestamp"`
}

type HistoryResponse struct {
	Email   string                `json:"email"`
	Entries []MemoryEntryResponse `json:"entries"`
}
