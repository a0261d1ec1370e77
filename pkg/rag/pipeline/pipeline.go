// Package pipeline orchestrates the full query flow: memory context, query
// analysis, intent extraction, planning, retrieval, aggregation and answer
// synthesis. Each stage can short-circuit to a terminal response; nothing
// below this package raises across its contract.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"cv-search-be/pkg/embedding"
	"cv-search-be/pkg/events"
	"cv-search-be/pkg/llm"
	"cv-search-be/pkg/rag/aggregator"
	"cv-search-be/pkg/rag/analyzer"
	"cv-search-be/pkg/rag/intent"
	"cv-search-be/pkg/rag/memory"
	"cv-search-be/pkg/rag/planner"
	"cv-search-be/pkg/rag/retriever"
	"cv-search-be/pkg/rag/summarizer"
	"cv-search-be/pkg/rag/synthesizer"
	"cv-search-be/pkg/vectorstore"
)

// User-facing terminal messages.
const (
	msgRephraseProfessionally = "Please rephrase your query professionally"
	msgLowConfidence          = "Could not understand your query. Please try rephrasing."
	msgCannotProcess          = "Query cannot be processed"
	msgNoMatches              = "No matching candidates found"
	msgGenericFailure         = "An error occurred while processing your query"
)

const defaultMemoryContextLimit = 3

// Request is one pipeline invocation.
type Request struct {
	Query       string
	Email       string
	SessionID   string
	TopK        int
	Debug       bool
	UserContext map[string]interface{}
}

// Response is the single terminal shape of a run.
type Response struct {
	Success    bool                           `json:"success"`
	Response   string                         `json:"response,omitempty"`
	Candidates []synthesizer.CandidateSummary `json:"candidates,omitempty"`
	Sources    []string                       `json:"sources,omitempty"`
	Error      string                         `json:"error,omitempty"`
	Debug      map[string]interface{}         `json:"debug,omitempty"`
}

// Logger is the subset of the application logger the pipeline needs.
type Logger interface {
	Info(module, message string, details map[string]interface{})
	Warn(module, message string, details map[string]interface{})
	Error(module, message string, details map[string]interface{})
}

// Publisher emits audit events. Publishing is always best-effort.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Pipeline wires all stages together.
type Pipeline struct {
	analyzer    *analyzer.Analyzer
	intents     *intent.Extractor
	retriever   *retriever.Retriever
	summarizer  *summarizer.Summarizer
	synthesizer *synthesizer.Synthesizer

	memory             *memory.Manager
	publisher          Publisher
	logger             Logger
	memoryContextLimit int
}

// Option configures optional collaborators.
type Option func(*Pipeline)

func WithMemory(m *memory.Manager) Option {
	return func(p *Pipeline) { p.memory = m }
}

func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

func WithLogger(l Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func WithMemoryContextLimit(limit int) Option {
	return func(p *Pipeline) { p.memoryContextLimit = limit }
}

// New builds a pipeline over the given collaborators.
func New(provider llm.Provider, embedder embedding.Provider, store vectorstore.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		analyzer:           analyzer.NewAnalyzer(provider),
		intents:            intent.NewExtractor(provider),
		retriever:          retriever.NewRetriever(store, embedder, provider),
		summarizer:         summarizer.NewSummarizer(provider),
		synthesizer:        synthesizer.NewSynthesizer(provider),
		memoryContextLimit: defaultMemoryContextLimit,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the state machine for one request. It always returns exactly
// one terminal Response; panics from any stage are converted to a generic
// failure at this boundary.
func (p *Pipeline) Run(ctx context.Context, req Request) (resp Response) {
	started := time.Now()
	trace := map[string]interface{}{"original_query": req.Query}

	defer func() {
		if r := recover(); r != nil {
			p.logError("pipeline", "unexpected failure", map[string]interface{}{"panic": fmt.Sprintf("%v", r)})
			resp = Response{
				Success:  false,
				Error:    fmt.Sprintf("%v", r),
				Response: msgGenericFailure,
			}
		}
		p.publishCompleted(ctx, req, resp, time.Since(started))
	}()

	// 1. Memory context
	combinedQuery := p.combineWithMemory(ctx, req)

	// 2. Query analysis
	analysis := p.analyzer.Analyze(ctx, combinedQuery)
	trace["query_analysis"] = analysis

	if analysis.ImmediateResponse != "" {
		return p.finish(Response{Success: true, Response: analysis.ImmediateResponse}, trace, req.Debug)
	}
	if analysis.IsToxic && !analysis.ShouldProcess {
		p.publishRejected(ctx, req, analysis.RejectionReason)
		return p.finish(Response{
			Success:  false,
			Error:    analysis.RejectionReason,
			Response: msgRephraseProfessionally,
		}, trace, req.Debug)
	}

	processedQuery := analysis.ModifiedQuery
	if processedQuery == "" {
		processedQuery = combinedQuery
	}

	// 3. Intent extraction
	in := p.intents.Extract(ctx, processedQuery)
	trace["intent_detection"] = in

	if in.Confidence < 0.3 {
		return p.finish(Response{
			Success:  false,
			Error:    "Low intent confidence",
			Response: msgLowConfidence,
		}, trace, req.Debug)
	}

	// 4. Planning
	plan := planner.Build(in, analysis)
	trace["query_planning"] = plan

	if plan.Route == planner.RouteReject {
		p.publishRejected(ctx, req, plan.RejectionReason)
		return p.finish(Response{
			Success:  false,
			Error:    plan.RejectionReason,
			Response: msgCannotProcess,
		}, trace, req.Debug)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = plan.SuggestedTopK
	}

	// 5. Retrieval, with one unfiltered retry
	results := p.retriever.Retrieve(ctx, processedQuery, plan.MetadataFilters, topK, plan.RequiresReranking)
	if len(results) == 0 && len(plan.MetadataFilters) > 0 {
		p.logInfo("pipeline", "no results with filters, retrying without", nil)
		results = p.retriever.Retrieve(ctx, processedQuery, nil, topK, plan.RequiresReranking)
	}
	trace["retrieval"] = map[string]interface{}{"num_results": len(results)}

	if len(results) == 0 {
		return p.finish(Response{Success: true, Response: msgNoMatches}, trace, req.Debug)
	}

	// 6. Aggregation (memory-augmented), capped at the effective topK
	agg := aggregator.NewAggregator(processedQuery, plan.RequestedFields, p.memorySearcher(),
		aggregator.WithMaxCandidates(topK))
	contextText := agg.Aggregate(ctx, results)
	trace["context_aggregation"] = map[string]interface{}{"context_length": len(contextText)}

	// 7. Answer generation
	answer := p.summarizer.GenerateResponse(ctx, contextText, processedQuery)
	trace["candidate_summarization"] = map[string]interface{}{"answer_snippet": snippet(answer, 200)}

	// 8. Structured candidate synthesis
	candidates := p.synthesizer.Synthesize(ctx, results, processedQuery)
	trace["synthesis"] = map[string]interface{}{"num_summaries": len(candidates)}

	// 9. Best-effort memory save
	p.saveMemory(ctx, req, answer)

	// 10. Terminal success
	return p.finish(Response{
		Success:    true,
		Response:   answer,
		Candidates: candidates,
		Sources:    sourcesOf(results),
	}, trace, req.Debug)
}

func (p *Pipeline) finish(resp Response, trace map[string]interface{}, debug bool) Response {
	if debug {
		resp.Debug = trace
	}
	return resp
}

// combineWithMemory prefixes the query with recent conversation context for
// the same user and session. Memory failures degrade to the bare query.
func (p *Pipeline) combineWithMemory(ctx context.Context, req Request) string {
	if p.memory == nil {
		return req.Query
	}

	entries, err := p.memory.Recent(ctx, req.Email, req.SessionID, p.memoryContextLimit)
	if err != nil {
		p.logWarn("pipeline", "memory context load failed", map[string]interface{}{"error": err.Error()})
		return req.Query
	}
	if len(entries) == 0 {
		return req.Query
	}

	// Oldest first so the conversation reads top down.
	contextText := ""
	for i := len(entries) - 1; i >= 0; i-- {
		if contextText != "" {
			contextText += "\n"
		}
		contextText += fmt.Sprintf("Q: %s\nA: %s", entries[i].Query, entries[i].ResponseSummary)
	}
	return fmt.Sprintf("%s\n\nNew Query: %s", contextText, req.Query)
}

func (p *Pipeline) memorySearcher() aggregator.MemorySearcher {
	if p.memory == nil {
		return nil
	}
	return memorySearchAdapter{manager: p.memory}
}

// memorySearchAdapter exposes stored entries as pseudo-matches so the
// aggregator can union them with fresh retrieval results.
type memorySearchAdapter struct {
	manager *memory.Manager
}

func (a memorySearchAdapter) Search(ctx context.Context, query string, limit int) ([]retriever.Match, error) {
	entries, err := a.manager.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	matches := make([]retriever.Match, 0, len(entries))
	for _, entry := range entries {
		matches = append(matches, retriever.Match{
			ID:   entry.ID,
			Text: entry.Query + "\n" + entry.ResponseSummary,
			Metadata: map[string]interface{}{
				"source":    "memory",
				"EMAIL":     entry.Email,
				"timestamp": entry.Timestamp.Format(time.RFC3339),
			},
		})
	}
	return matches, nil
}

func (p *Pipeline) saveMemory(ctx context.Context, req Request, answer string) {
	if p.memory == nil {
		return
	}
	if err := p.memory.Save(ctx, req.Email, req.SessionID, req.Query, answer, req.UserContext); err != nil {
		p.logError("pipeline", "memory save failed", map[string]interface{}{"error": err.Error()})
	}
}

func (p *Pipeline) publishCompleted(ctx context.Context, req Request, resp Response, elapsed time.Duration) {
	if p.publisher == nil {
		return
	}
	event := events.NewQueryCompleted(
		req.Email, req.SessionID, req.Query,
		resp.Success, len(resp.Candidates), elapsed.Milliseconds(),
	)
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logWarn("pipeline", "audit event publish failed", map[string]interface{}{"error": err.Error()})
	}
}

func (p *Pipeline) publishRejected(ctx context.Context, req Request, reason string) {
	if p.publisher == nil {
		return
	}
	event := events.NewQueryRejected(req.Email, req.SessionID, req.Query, reason)
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logWarn("pipeline", "audit event publish failed", map[string]interface{}{"error": err.Error()})
	}
}

// sourcesOf lists one source string per match, defaulting when absent.
func sourcesOf(matches []retriever.Match) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		source := "Unknown source"
		if v, ok := m.Metadata["source"]; ok && v != nil {
			source = fmt.Sprintf("%v", v)
		}
		out = append(out, source)
	}
	return out
}

func snippet(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func (p *Pipeline) logInfo(module, message string, details map[string]interface{}) {
	if p.logger != nil {
		p.logger.Info(module, message, details)
	}
}

func (p *Pipeline) logWarn(module, message string, details map[string]interface{}) {
	if p.logger != nil {
		p.logger.Warn(module, message, details)
	}
}

func (p *Pipeline) logError(module, message string, details map[string]interface{}) {
	if p.logger != nil {
		p.logger.Error(module, message, details)
	}
}
