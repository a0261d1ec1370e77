// Package aggregator groups retrieved fragments into per-candidate records
// and renders them as a markdown report for the answer stage.
package aggregator

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"cv-search-be/pkg/rag/retriever"
	"cv-search-be/pkg/rag/scoring"
)

// NoMatchesMessage is returned when there is nothing to aggregate.
const NoMatchesMessage = "No matching candidates found."

// DefaultMaxCandidates caps how many raw matches feed one report.
const DefaultMaxCandidates = 10

const memoryFetchLimit = 10

// MemorySearcher finds prior query results relevant to the current query.
type MemorySearcher interface {
	Search(ctx context.Context, query string, limit int) ([]retriever.Match, error)
}

// Fragment is one text chunk contributing to a candidate.
type Fragment struct {
	Text  string
	Score float64
}

// CandidateRecord is the per-candidate aggregation unit.
type CandidateRecord struct {
	Identity   string
	Metadata   map[string]interface{}
	Experience []map[string]interface{}
	Skills     interface{}
	Score      float64
	Fragments  []Fragment
}

// Aggregator renders experience-prioritized candidate reports. The memory
// collaborator is optional; failures there degrade to fresh results only.
type Aggregator struct {
	Scorer *scoring.Scorer

	query           string
	requestedFields []string
	memory          MemorySearcher
	maxCandidates   int
}

// Option configures optional aggregation settings.
type Option func(*Aggregator)

// WithMaxCandidates raises or lowers the candidate cap, so the report can
// cover as many matches as the retrieval stage was asked for.
func WithMaxCandidates(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxCandidates = n
		}
	}
}

func NewAggregator(query string, requestedFields []string, memory MemorySearcher, opts ...Option) *Aggregator {
	lowered := make([]string, len(requestedFields))
	for i, f := range requestedFields {
		lowered[i] = strings.ToLower(f)
	}
	a := &Aggregator{
		Scorer:          scoring.NewScorer(query),
		query:           query,
		requestedFields: lowered,
		memory:          memory,
		maxCandidates:   DefaultMaxCandidates,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate produces the full report text for the given fresh matches.
func (a *Aggregator) Aggregate(ctx context.Context, matches []retriever.Match) string {
	if len(matches) == 0 {
		return NoMatchesMessage
	}

	sorted := make([]retriever.Match, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	if len(sorted) > a.maxCandidates {
		sorted = sorted[:a.maxCandidates]
	}

	records := a.ProcessResults(ctx, sorted)

	out := []string{
		fmt.Sprintf("# Candidate Search Results (%d matches)", len(records)),
		fmt.Sprintf("**Query:** %s", a.query),
		"**Sorted by:** Experience Score + Relevance\n",
	}
	for _, record := range records {
		out = append(out, a.renderProfile(record), "\n---")
	}
	return strings.Join(out, "\n")
}

// ProcessResults merges fresh and memory matches into scored candidate
// records, ordered by experience score then metadata relevance. Fresh
// matches are grouped first so a memory entry never overwrites the record
// of a candidate already seen fresh.
func (a *Aggregator) ProcessResults(ctx context.Context, matches []retriever.Match) []CandidateRecord {
	combined := append([]retriever.Match{}, matches...)
	combined = append(combined, a.fetchMemory(ctx)...)

	byIdentity := map[string]*CandidateRecord{}
	var order []string

	for _, m := range combined {
		identity := candidateIdentity(m.Metadata)

		record, ok := byIdentity[identity]
		if !ok {
			record = &CandidateRecord{
				Identity:   identity,
				Metadata:   m.Metadata,
				Experience: parseEntries(m.Metadata, "EXPERIENCE"),
				Skills:     parseSkills(m.Metadata),
			}
			record.Score = a.Scorer.ScoreCandidate(record.Experience)
			byIdentity[identity] = record
			order = append(order, identity)
		}

		if strings.TrimSpace(m.Text) != "" {
			record.Fragments = append(record.Fragments, Fragment{Text: m.Text, Score: m.Score})
		}
	}

	records := make([]CandidateRecord, 0, len(order))
	for _, identity := range order {
		records = append(records, *byIdentity[identity])
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return relevanceOf(records[i].Metadata) > relevanceOf(records[j].Metadata)
	})
	return records
}

func (a *Aggregator) fetchMemory(ctx context.Context) []retriever.Match {
	if a.memory == nil || strings.TrimSpace(a.query) == "" {
		return nil
	}
	results, err := a.memory.Search(ctx, a.query, memoryFetchLimit)
	if err != nil {
		return nil
	}
	return results
}

// candidateIdentity derives the deduplication key: explicit id, then email,
// then a stable hash of the metadata mapping.
func candidateIdentity(metadata map[string]interface{}) string {
	if id, ok := metadata["id"].(string); ok && id != "" {
		return id
	}
	if email, ok := metadata["EMAIL"].(string); ok && email != "" {
		return email
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		encoded = []byte(fmt.Sprintf("%v", metadata))
	}
	sum := md5.Sum(encoded)
	return hex.EncodeToString(sum[:])
}

func relevanceOf(metadata map[string]interface{}) float64 {
	switch v := metadata["RELEVANCE"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f
		}
	}
	return 0
}

// parseEntries reads a metadata field holding a list of objects, accepting
// both native lists and JSON-encoded strings.
func parseEntries(metadata map[string]interface{}, field string) []map[string]interface{} {
	value, ok := metadata[field]
	if !ok || value == nil {
		return nil
	}

	var items []interface{}
	switch v := value.(type) {
	case []interface{}:
		items = v
	case []map[string]interface{}:
		out := make([]map[string]interface{}, len(v))
		copy(out, v)
		return out
	case string:
		if err := json.Unmarshal([]byte(v), &items); err != nil {
			return nil
		}
	default:
		return nil
	}

	var out []map[string]interface{}
	for _, item := range items {
		if entry, ok := item.(map[string]interface{}); ok {
			out = append(out, entry)
		}
	}
	return out
}

// parseSkills reads the SKILLS field, which may be a flat list or a mapping
// of category to items, possibly JSON-encoded.
func parseSkills(metadata map[string]interface{}) interface{} {
	value, ok := metadata["SKILLS"]
	if !ok || value == nil {
		return nil
	}
	if s, isStr := value.(string); isStr {
		var parsed interface{}
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			if s == "" {
				return nil
			}
			return []interface{}{s}
		}
		return parsed
	}
	return value
}

func (a *Aggregator) fieldRequested(field string) bool {
	if len(a.requestedFields) == 0 {
		return true
	}
	for _, f := range a.requestedFields {
		if f == field {
			return true
		}
	}
	return false
}

func (a *Aggregator) renderProfile(candidate CandidateRecord) string {
	meta := candidate.Metadata
	parts := []string{
		fmt.Sprintf("\n## %s (Experience Score: %.1f)", stringField(meta, "NAME", "Unnamed Candidate"), candidate.Score),
	}

	if a.fieldRequested("contact") {
		var contact []string
		if email := stringField(meta, "EMAIL", ""); email != "" {
			contact = append(contact, "✉️ "+email)
		}
		if phone := stringField(meta, "PHONE", ""); phone != "" {
			contact = append(contact, "📞 "+phone)
		}
		if linkedin := stringField(meta, "LINKEDIN", ""); linkedin != "" {
			contact = append(contact, "🔗 "+linkedin)
		}
		if len(contact) > 0 {
			parts = append(parts, "\n"+strings.Join(contact, " | "))
		}
	}

	if a.fieldRequested("location") {
		if location := stringField(meta, "LOCATION", ""); location != "" {
			parts = append(parts, fmt.Sprintf("**Location:** %s", location))
		}
		if company := stringField(meta, "CURRENT_COMPANY", ""); company != "" {
			parts = append(parts, fmt.Sprintf("**Current Role:** %s", company))
		}
	}

	if a.fieldRequested("experience") && len(candidate.Experience) > 0 {
		parts = append(parts, "\n### Professional Experience")
		jobs := make([]map[string]interface{}, len(candidate.Experience))
		copy(jobs, candidate.Experience)
		sort.SliceStable(jobs, func(i, j int) bool {
			return a.Scorer.PositionScore(jobs[i]) > a.Scorer.PositionScore(jobs[j])
		})
		if len(jobs) > 3 {
			jobs = jobs[:3]
		}
		for _, job := range jobs {
			parts = append(parts, fmt.Sprintf("- **%s** at *%s* (%s)",
				stringField(job, "TITLE", "Unknown Position"),
				stringField(job, "COMPANY", "Unknown"),
				stringField(job, "DURATION", "N/A")))
			for _, resp := range responsibilitiesOf(job) {
				parts = append(parts, "  - "+a.highlightQueryTerms(resp))
			}
		}
	}

	if a.fieldRequested("skills") && candidate.Skills != nil {
		if rendered := renderSkills(candidate.Skills); len(rendered) > 0 {
			parts = append(parts, "\n### Technical Skills")
			parts = append(parts, rendered...)
		}
	}

	if a.fieldRequested("excerpts") && len(candidate.Fragments) > 0 {
		parts = append(parts, "\n### Relevant Experience Highlights")
		fragments := make([]Fragment, len(candidate.Fragments))
		copy(fragments, candidate.Fragments)
		sort.SliceStable(fragments, func(i, j int) bool {
			return fragments[i].Score > fragments[j].Score
		})
		if len(fragments) > 2 {
			fragments = fragments[:2]
		}
		for i, chunk := range fragments {
			highlighted := a.highlightQueryTerms(chunk.Text)
			parts = append(parts, fmt.Sprintf("\n**Excerpt %d** (Relevance: %.2f):\n> %s",
				i+1, chunk.Score, truncateRunes(highlighted, 300)))
		}
	}

	return strings.Join(parts, "\n")
}

// responsibilitiesOf returns at most two responsibility lines, splitting
// semicolon-separated strings.
func responsibilitiesOf(job map[string]interface{}) []string {
	var all []string
	switch v := job["RESPONSIBILITIES"].(type) {
	case string:
		for _, part := range strings.Split(v, ";") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				all = append(all, trimmed)
			}
		}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				all = append(all, s)
			}
		}
	case []string:
		all = v
	}
	if len(all) > 2 {
		all = all[:2]
	}
	return all
}

func renderSkills(skills interface{}) []string {
	switch v := skills.(type) {
	case map[string]interface{}:
		categories := make([]string, 0, len(v))
		for category := range v {
			categories = append(categories, category)
		}
		sort.Strings(categories)

		var out []string
		for _, category := range categories {
			items := asStrings(v[category])
			suffix := ""
			if len(items) > 8 {
				items = items[:8]
				suffix = "..."
			}
			out = append(out, fmt.Sprintf("- **%s:** %s%s", strings.Title(category), strings.Join(items, ", "), suffix))
		}
		return out
	case []interface{}:
		items := asStrings(v)
		if len(items) == 0 {
			return nil
		}
		if len(items) > 15 {
			items = items[:15]
		}
		return []string{"- " + strings.Join(items, ", ")}
	default:
		return nil
	}
}

func asStrings(value interface{}) []string {
	switch v := value.(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case []string:
		return v
	case string:
		return []string{v}
	default:
		return nil
	}
}

var queryWordPattern = regexp.MustCompile(`\w+`)

// highlightQueryTerms wraps query terms longer than three characters in
// markdown emphasis. Terms are applied in sorted order so repeated calls
// give byte-identical output.
func (a *Aggregator) highlightQueryTerms(text string) string {
	if a.query == "" {
		return text
	}

	seen := map[string]bool{}
	var terms []string
	for _, term := range queryWordPattern.FindAllString(strings.ToLower(a.query), -1) {
		if len(term) > 3 && !seen[term] {
			seen[term] = true
			terms = append(terms, term)
		}
	}
	sort.Strings(terms)

	for _, term := range terms {
		re, err := regexp.Compile("(?i)(" + regexp.QuoteMeta(term) + ")")
		if err != nil {
			continue
		}
		text = re.ReplaceAllString(text, "**$1**")
	}
	return text
}

func stringField(m map[string]interface{}, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
