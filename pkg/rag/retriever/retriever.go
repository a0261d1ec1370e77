// Package retriever runs the vector search stage. It embeds the query,
// applies plan filters, post-filters by keyword and optionally reranks the
// hits with the LLM collaborator.
package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"cv-search-be/pkg/embedding"
	"cv-search-be/pkg/llm"
	"cv-search-be/pkg/vectorstore"
)

// Match is one retrieved fragment. Score is the retrieval-stage relevance
// and is never overwritten; a rerank pass attaches RerankScore separately.
type Match struct {
	ID          string
	Score       float64
	RerankScore *float64
	Metadata    map[string]interface{}
	Text        string
}

// Retriever wraps the vector store and embedding collaborators. The LLM
// provider is optional and only used for reranking.
type Retriever struct {
	store    vectorstore.Store
	embedder embedding.Provider
	provider llm.Provider
}

func NewRetriever(store vectorstore.Store, embedder embedding.Provider, provider llm.Provider) *Retriever {
	return &Retriever{store: store, embedder: embedder, provider: provider}
}

// Retrieve runs the full retrieval sequence. It never returns an error: any
// failure degrades to a single direct unfiltered query, and a failure there
// yields an empty result.
func (r *Retriever) Retrieve(ctx context.Context, query string, filters map[string]vectorstore.Filter, topK int, rerank bool) []Match {
	if topK < 1 {
		topK = 1
	}

	matches, err := r.retrieveFiltered(ctx, query, filters, topK, rerank)
	if err == nil {
		return matches
	}

	return r.directQuery(ctx, query, topK)
}

func (r *Retriever) retrieveFiltered(ctx context.Context, query string, filters map[string]vectorstore.Filter, topK int, rerank bool) ([]Match, error) {
	vector, err := r.embedQuery(query)
	if err != nil {
		return nil, err
	}

	// Over-fetch to leave room for post-filtering and reranking.
	hits, err := r.store.Query(ctx, vector, combineFilters(filters), topK*3)
	if err != nil {
		return nil, err
	}

	processed := standardize(hits)
	processed = postFilterByKeyword(processed, query)

	sort.SliceStable(processed, func(i, j int) bool {
		return processed[i].Score > processed[j].Score
	})

	if rerank && r.provider != nil {
		return r.rerank(ctx, processed, query, topK), nil
	}
	return truncate(processed, topK), nil
}

func (r *Retriever) embedQuery(query string) ([]float32, error) {
	if r.embedder == nil {
		return nil, fmt.Errorf("no embedding provider configured")
	}
	res, err := r.embedder.Generate(query, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return res.Embedding.Values, nil
}

// combineFilters joins per-field predicates into one namespaced expression.
func combineFilters(filters map[string]vectorstore.Filter) vectorstore.Filter {
	if len(filters) == 0 {
		return nil
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]vectorstore.Filter, 0, len(keys))
	for _, k := range keys {
		clauses = append(clauses, filters[k])
	}

	if len(clauses) == 1 {
		return vectorstore.Namespace(clauses[0])
	}
	return vectorstore.Namespace(vectorstore.And{Clauses: clauses})
}

// standardize converts raw hits into Match records, generating an id when
// the store returned none.
func standardize(hits []vectorstore.Hit) []Match {
	out := make([]Match, 0, len(hits))
	for _, hit := range hits {
		id := hit.ID
		if id == "" {
			id = uuid.NewString()
		}
		metadata := hit.Metadata
		if metadata == nil {
			metadata = map[string]interface{}{}
		}
		out = append(out, Match{
			ID:       id,
			Score:    hit.Score,
			Metadata: metadata,
			Text:     hit.Text,
		})
	}
	return out
}

// postFilterByKeyword keeps only matches whose text or language metadata
// contains the query as a substring. When that would discard everything the
// unfiltered set is kept, so the precision pass never empties a non-empty
// result.
func postFilterByKeyword(matches []Match, query string) []Match {
	keyword := strings.ToLower(strings.TrimSpace(query))
	if keyword == "" {
		return matches
	}

	var filtered []Match
	for _, m := range matches {
		if strings.Contains(strings.ToLower(m.Text), keyword) || languageMatch(m.Metadata, keyword) {
			filtered = append(filtered, m)
		}
	}

	if len(filtered) == 0 {
		return matches
	}
	return filtered
}

func languageMatch(metadata map[string]interface{}, keyword string) bool {
	for _, lang := range extractLanguages(metadata) {
		if strings.Contains(strings.ToLower(lang), keyword) {
			return true
		}
	}
	return false
}

// extractLanguages reads the languages metadata field, accepting list,
// JSON-encoded-list and plain string representations.
func extractLanguages(metadata map[string]interface{}) []string {
	for _, key := range []string{"languages", "LANGUAGES"} {
		value, ok := metadata[key]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case []string:
			return v
		case []interface{}:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case string:
			trimmed := strings.TrimSpace(v)
			if strings.HasPrefix(trimmed, "[") {
				var parsed []string
				if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
					return parsed
				}
				return nil
			}
			return []string{v}
		default:
			return []string{fmt.Sprintf("%v", v)}
		}
	}
	return nil
}

// rerank asks the model to score at most topK*2 fragments against the
// query. A score that fails to parse falls back to the retrieval score.
func (r *Retriever) rerank(ctx context.Context, matches []Match, query string, topK int) []Match {
	limit := topK * 2
	if len(matches) < limit {
		limit = len(matches)
	}

	reranked := make([]Match, limit)
	for i := 0; i < limit; i++ {
		m := matches[i]
		score := r.relevanceScore(ctx, m, query)
		m.RerankScore = &score
		reranked[i] = m
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return *reranked[i].RerankScore > *reranked[j].RerankScore
	})
	return truncate(reranked, topK)
}

func (r *Retriever) relevanceScore(ctx context.Context, m Match, query string) float64 {
	prompt := fmt.Sprintf(`Rate the relevance of this CV excerpt to the search query.
Respond ONLY with a number between 0 (irrelevant) and 1 (perfect match).

Query: %s
Excerpt: %s
Score: `, query, m.Text)

	response, err := r.provider.Generate(ctx, prompt)
	if err != nil {
		return m.Score
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(response), 64)
	if err != nil {
		return m.Score
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// directQuery is the last-resort fallback: one unfiltered search capped at
// topK, empty on any further failure.
func (r *Retriever) directQuery(ctx context.Context, query string, topK int) []Match {
	vector, err := r.embedQuery(query)
	if err != nil {
		return nil
	}
	hits, err := r.store.Query(ctx, vector, nil, topK)
	if err != nil {
		return nil
	}
	return standardize(hits)
}

func truncate(matches []Match, topK int) []Match {
	if len(matches) > topK {
		return matches[:topK]
	}
	return matches
}
