// Package summarizer turns the aggregated candidate context into one
// natural-language report via the LLM collaborator.
package summarizer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cv-search-be/pkg/llm"
	"cv-search-be/pkg/rag/retriever"
)

// Static fallbacks. The summarizer never propagates an error upward.
const (
	ErrorMessage      = "Unable to generate response due to system error."
	NoContextMessage  = "No relevant candidate information found to process."
	ProcessingFailure = "An error occurred while processing the candidate information."
)

const (
	defaultMaxWorkers = 3
	defaultMaxChunks  = 10
)

// Summarizer formats candidate fragments and asks the model for a report.
type Summarizer struct {
	provider   llm.Provider
	maxWorkers int
	maxChunks  int
}

func NewSummarizer(provider llm.Provider) *Summarizer {
	return &Summarizer{
		provider:   provider,
		maxWorkers: defaultMaxWorkers,
		maxChunks:  defaultMaxChunks,
	}
}

// Summarize produces the answer text for the query from the top matches.
func (s *Summarizer) Summarize(ctx context.Context, matches []retriever.Match, query string) string {
	formatted := s.FormatChunks(matches)
	if strings.TrimSpace(formatted) == "" {
		return NoContextMessage
	}
	return s.GenerateResponse(ctx, formatted, query)
}

// FormatChunks renders the highest-scoring fragments as labeled context
// blocks. Formatting fans out over a bounded worker pool but the output is
// always joined in the original (score-sorted) order.
func (s *Summarizer) FormatChunks(matches []retriever.Match) string {
	if len(matches) == 0 {
		return ""
	}

	chunks := make([]retriever.Match, len(matches))
	copy(chunks, matches)
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
	if len(chunks) > s.maxChunks {
		chunks = chunks[:s.maxChunks]
	}

	formatted := make([]string, len(chunks))
	sem := make(chan struct{}, s.maxWorkers)
	var wg sync.WaitGroup

	for idx, chunk := range chunks {
		wg.Add(1)
		go func(idx int, chunk retriever.Match) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			formatted[idx] = formatChunk(chunk, idx)
		}(idx, chunk)
	}
	wg.Wait()

	nonEmpty := make([]string, 0, len(formatted))
	for _, block := range formatted {
		if block != "" {
			nonEmpty = append(nonEmpty, block)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

func formatChunk(chunk retriever.Match, idx int) string {
	header := fmt.Sprintf("Candidate %d:", idx+1)
	if name, ok := chunk.Metadata["NAME"].(string); ok && name != "" {
		header += " " + name
	}
	if location, ok := chunk.Metadata["LOCATION"].(string); ok && location != "" {
		header += " (" + location + ")"
	}
	header += fmt.Sprintf(" [Score: %.2f]", chunk.Score)

	return header + "\n" + strings.TrimSpace(chunk.Text)
}

// GenerateResponse asks the model for the final report following a fixed
// structural template.
func (s *Summarizer) GenerateResponse(ctx context.Context, contextText, query string) string {
	if s.provider == nil {
		return ErrorMessage
	}

	response, err := s.provider.Generate(ctx, buildReportPrompt(contextText, query))
	if err != nil {
		return ErrorMessage
	}
	return strings.TrimSpace(response)
}

func buildReportPrompt(contextText, query string) string {
	return fmt.Sprintf(`[INSTRUCTIONS]
Analyze these candidate profiles and create a detailed report answering:
"%s"

[REQUIREMENTS]
1. For EACH candidate, include ALL of these sections if available:
   - Full Name
   - Current/Most Recent Role
   - All Education (institutions, degrees, fields of study, dates)
   - All Work Experience (companies, positions, durations, key achievements)
   - All Skills (technical and soft skills)
   - Location
   - Contact Information (if available)
   - Any other relevant details

2. Format:
   - Use clear section headers (##, ###)
   - Use bullet points for lists
   - Include all relevant details, not just one item per category
   - Keep the response organized and easy to read

3. Additional Instructions:
   - Don't skip any fields that are present in the candidate data
   - If a candidate has multiple items in a category (e.g., multiple degrees), list them all
   - Keep the total response under 500 words

[CANDIDATE DATA]
%s

[RESPONSE FORMAT]
# Candidate Report for: [Query]

## [Candidate Full Name]
### Current/Most Recent Role
- [Role] at [Company] (if available)

### Education
- [Degree] in [Field], [Institution] ([Years])
- [Additional degrees...]

### Work Experience
- [Job Title] at [Company] ([Duration])
  - [Key achievement/responsibility]

### Skills
- [Skill 1], [Skill 2], [Skill 3], ...

### Location
- [City, Country]

[Repeat for each candidate]

## Summary
[Brief summary of findings]`, query, contextText)
}
