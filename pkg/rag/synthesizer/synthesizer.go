// Package synthesizer produces one structured profile and short summary per
// candidate from the final match list.
package synthesizer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"cv-search-be/pkg/llm"
	"cv-search-be/pkg/rag/retriever"
)

// Summary fallbacks.
const (
	SummaryUnavailable = "Summary not available"
	PlaceholderSummary = "Summary not available due to processing error"
)

const defaultBatchSize = 10

// CandidateSummary is the per-candidate synthesis result.
type CandidateSummary struct {
	Name     string                 `json:"name"`
	Summary  string                 `json:"summary"`
	Metadata map[string]interface{} `json:"metadata"`
	Score    float64                `json:"score"`
}

// Synthesizer builds query-aware candidate summaries. When the provider
// supports batched generation, one call covers a whole batch; otherwise the
// batch degrades to sequential calls, and a failing candidate gets a
// placeholder summary.
type Synthesizer struct {
	provider  llm.Provider
	batchSize int
}

func NewSynthesizer(provider llm.Provider) *Synthesizer {
	return &Synthesizer{provider: provider, batchSize: defaultBatchSize}
}

// Synthesize summarizes every match, sorted descending by retrieval score.
func (s *Synthesizer) Synthesize(ctx context.Context, matches []retriever.Match, query string) []CandidateSummary {
	if len(matches) == 0 {
		return nil
	}

	var summaries []CandidateSummary
	for start := 0; start < len(matches); start += s.batchSize {
		end := start + s.batchSize
		if end > len(matches) {
			end = len(matches)
		}
		summaries = append(summaries, s.processBatch(ctx, matches[start:end], query)...)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Score > summaries[j].Score
	})
	return summaries
}

func (s *Synthesizer) processBatch(ctx context.Context, batch []retriever.Match, query string) []CandidateSummary {
	prompts := make([]string, len(batch))
	for i, m := range batch {
		prompts[i] = buildSummaryPrompt(m.Metadata, query)
	}

	texts, ok := s.tryBatch(ctx, prompts)
	if !ok {
		texts = make([]string, len(batch))
		for i, prompt := range prompts {
			texts[i] = s.generateOne(ctx, prompt)
		}
	}

	out := make([]CandidateSummary, len(batch))
	for i, m := range batch {
		out[i] = CandidateSummary{
			Name:     candidateName(m.Metadata),
			Summary:  texts[i],
			Metadata: m.Metadata,
			Score:    m.Score,
		}
	}
	return out
}

func (s *Synthesizer) tryBatch(ctx context.Context, prompts []string) ([]string, bool) {
	batcher, ok := s.provider.(llm.BatchProvider)
	if !ok {
		return nil, false
	}
	responses, err := batcher.GenerateBatch(ctx, prompts)
	if err != nil || len(responses) != len(prompts) {
		return nil, false
	}
	for i, r := range responses {
		responses[i] = strings.TrimSpace(r)
	}
	return responses, true
}

func (s *Synthesizer) generateOne(ctx context.Context, prompt string) string {
	if s.provider == nil {
		return PlaceholderSummary
	}
	response, err := s.provider.Generate(ctx, prompt)
	if err != nil {
		return PlaceholderSummary
	}
	return strings.TrimSpace(response)
}

func candidateName(metadata map[string]interface{}) string {
	for _, key := range []string{"NAME", "name"} {
		if name, ok := metadata[key].(string); ok && name != "" {
			return name
		}
	}
	return "Unknown"
}

// buildSummaryPrompt produces a query-aware prompt when a query is present,
// otherwise a plain summarization request over the raw metadata.
func buildSummaryPrompt(metadata map[string]interface{}, query string) string {
	if strings.TrimSpace(query) == "" {
		encoded, err := json.MarshalIndent(metadata, "", "  ")
		if err != nil {
			encoded = []byte("{}")
		}
		return fmt.Sprintf("Summarize this candidate: %s", encoded)
	}

	parts := []string{
		fmt.Sprintf("Create a professional summary for %s", candidateName(metadata)),
		fmt.Sprintf("focusing on aspects relevant to: '%s'", query),
		"\nKey Qualifications:",
	}

	focus := queryFocus(query)
	if focus["experience"] {
		if entries := parseList(metadata["EXPERIENCE"]); len(entries) > 0 {
			parts = append(parts, fmt.Sprintf("- Experience: %d relevant positions", len(entries)))
		}
	}
	if focus["skills"] {
		if skills := formatSkills(metadata["SKILLS"]); skills != "" {
			parts = append(parts, "- Skills: "+skills)
		}
	}
	if focus["education"] {
		if education := formatEducation(parseList(metadata["EDUCATION"])); education != "" {
			parts = append(parts, "- Education: "+education)
		}
	}
	if focus["location"] {
		if location, ok := metadata["LOCATION"].(string); ok && location != "" {
			parts = append(parts, "- Location: "+location)
		}
	}

	parts = append(parts, "\nConcise Professional Summary:")
	return strings.Join(parts, "\n")
}

var fieldTriggers = map[string][]string{
	"experience": {"experience", "years", "senior", "junior"},
	"skills":     {"skill", "technology", "python", "java", "aws", "react"},
	"education":  {"education", "degree", "university", "college"},
	"location":   {"location", "city", "remote", "hybrid"},
}

func queryFocus(query string) map[string]bool {
	lower := strings.ToLower(query)
	focus := map[string]bool{}
	for field, triggers := range fieldTriggers {
		for _, trigger := range triggers {
			if strings.Contains(lower, trigger) {
				focus[field] = true
				break
			}
		}
	}
	return focus
}

// parseList reads a field that may be a native list or a JSON-encoded one.
func parseList(value interface{}) []map[string]interface{} {
	switch v := value.(type) {
	case []interface{}:
		var out []map[string]interface{}
		for _, item := range v {
			if entry, ok := item.(map[string]interface{}); ok {
				out = append(out, entry)
			}
		}
		return out
	case []map[string]interface{}:
		return v
	case string:
		var items []map[string]interface{}
		if err := json.Unmarshal([]byte(v), &items); err != nil {
			return nil
		}
		return items
	default:
		return nil
	}
}

func formatSkills(value interface{}) string {
	parsed := value
	if s, ok := value.(string); ok {
		var decoded interface{}
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return ""
		}
		parsed = decoded
	}

	switch v := parsed.(type) {
	case map[string]interface{}:
		categories := make([]string, 0, len(v))
		for category := range v {
			categories = append(categories, category)
		}
		sort.Strings(categories)

		var out []string
		for _, category := range categories {
			items := stringItems(v[category])
			if len(items) > 3 {
				items = items[:3]
			}
			out = append(out, fmt.Sprintf("%s: %s", category, strings.Join(items, ", ")))
		}
		return strings.Join(out, ", ")
	case []interface{}:
		items := stringItems(v)
		if len(items) > 5 {
			items = items[:5]
		}
		return strings.Join(items, ", ")
	default:
		return ""
	}
}

func formatEducation(education []map[string]interface{}) string {
	if len(education) > 3 {
		education = education[:3]
	}

	var formatted []string
	for _, edu := range education {
		parts := []string{
			stringOr(edu, "DEGREE", "Degree"),
			stringOr(edu, "INSTITUTION", ""),
		}
		if loc := stringOr(edu, "LOCATION", ""); loc != "" {
			parts = append(parts, loc)
		}
		if grade := stringOr(edu, "GRADE", ""); grade != "" {
			parts = append(parts, "Grade: "+grade)
		}
		formatted = append(formatted, strings.Join(parts, " - "))
	}
	return strings.Join(formatted, "; ")
}

func stringItems(value interface{}) []string {
	items, ok := value.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, fmt.Sprintf("%v", item))
	}
	return out
}

func stringOr(m map[string]interface{}, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
