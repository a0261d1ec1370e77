// Package analyzer screens incoming queries before they reach the retrieval
// pipeline. It answers greetings directly, blocks or rewrites toxic input
// and passes everything else through unchanged.
package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"cv-search-be/pkg/llm"
)

// ToxicityLevel grades how severe a toxicity match is.
type ToxicityLevel int

const (
	LevelNone     ToxicityLevel = 0
	LevelMild     ToxicityLevel = 1
	LevelModerate ToxicityLevel = 2
	LevelSevere   ToxicityLevel = 3
)

// Result is the outcome of analyzing one query.
type Result struct {
	ShouldProcess      bool
	ImmediateResponse  string
	ModifiedQuery      string
	RejectionReason    string
	IsToxic            bool
	ToxicityLevel      ToxicityLevel
	ToxicityCategories []string
	IsGreeting         bool

	// RequiresGeneralKnowledge marks questions that are not about the CV
	// corpus at all. The planner redirects these instead of searching.
	RequiresGeneralKnowledge bool
}

const fallbackGreeting = "Hello! I'm your CV search assistant. How can I help?"

var greetings = []string{
	"hello", "hi", "hey", "greetings",
	"good morning", "good afternoon", "good evening",
}

var smallTalkPhrases = []string{
	"how are you", "what's up", "who are you",
	"what can you do", "tell me about yourself",
}

type toxicRule struct {
	pattern  *regexp.Regexp
	level    ToxicityLevel
	category string
}

var toxicRules = []toxicRule{
	{regexp.MustCompile(`(?i)\b(dumb|stupid|idiot|fool|shit|damn)\b`), LevelMild, "profanity"},
	{regexp.MustCompile(`(?i)\b(retard|moron|asshole|bitch|bastard)\b`), LevelModerate, "insult"},
	{regexp.MustCompile(`(?i)\b(hate\b.*\b(you|people))\b`), LevelModerate, "hate_speech"},
	{regexp.MustCompile(`(?i)\b(kill\b.*\b(yourself|others))\b`), LevelSevere, "threat"},
	{regexp.MustCompile(`(?i)\b(rape|murder|suicide)\b`), LevelSevere, "violence"},
	{regexp.MustCompile(`(?i)\b(women|men|blacks|whites)\s+(are|should)\s+(stupid|die)\b`), LevelSevere, "discrimination"},
}

// Analyzer screens queries. The LLM collaborator is used for greeting
// responses and toxic-query rewrites; both calls degrade to static defaults
// when it fails.
type Analyzer struct {
	provider llm.Provider
}

func NewAnalyzer(provider llm.Provider) *Analyzer {
	return &Analyzer{provider: provider}
}

// Analyze screens one query. It never returns an error; every failure path
// folds into the result.
func (a *Analyzer) Analyze(ctx context.Context, query string) Result {
	if strings.TrimSpace(query) == "" {
		return Result{
			ImmediateResponse: "Please provide a search query about candidates.",
		}
	}

	if a.isGreeting(query) || a.isSmallTalk(query) {
		return Result{
			ImmediateResponse: a.generateGreeting(ctx, query),
			IsGreeting:        true,
		}
	}

	level, categories := detectToxicity(query)
	if level > LevelNone {
		safeQuery := a.rewriteQuery(ctx, query, level)
		return Result{
			ShouldProcess:      safeQuery != "",
			ModifiedQuery:      safeQuery,
			RejectionReason:    rejectionMessage(level),
			IsToxic:            true,
			ToxicityLevel:      level,
			ToxicityCategories: categories,
		}
	}

	return Result{
		ShouldProcess: true,
		ModifiedQuery: query,
	}
}

func (a *Analyzer) isGreeting(query string) bool {
	clean := strings.Trim(strings.ToLower(query), "?!., ")
	for _, g := range greetings {
		if clean == g || strings.HasPrefix(clean, g) {
			return true
		}
	}
	return false
}

func (a *Analyzer) isSmallTalk(query string) bool {
	lower := strings.ToLower(query)
	for _, phrase := range smallTalkPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// detectToxicity evaluates every rule and keeps the maximum severity, so a
// query matching a mild and a severe rule is treated as severe.
func detectToxicity(query string) (ToxicityLevel, []string) {
	level := LevelNone
	var categories []string
	seen := map[string]bool{}

	for _, rule := range toxicRules {
		if !rule.pattern.MatchString(query) {
			continue
		}
		if rule.level > level {
			level = rule.level
		}
		if !seen[rule.category] {
			seen[rule.category] = true
			categories = append(categories, rule.category)
		}
	}
	return level, categories
}

func rejectionMessage(level ToxicityLevel) string {
	switch level {
	case LevelMild:
		return "Please maintain professional language"
	case LevelModerate:
		return "Inappropriate language detected"
	default:
		return "Query violates content policy"
	}
}

func (a *Analyzer) generateGreeting(ctx context.Context, query string) string {
	if a.provider == nil {
		return fallbackGreeting
	}

	prompt := fmt.Sprintf(`You're a professional CV search assistant. Respond to this user message in 1-2 sentences:

User: %s

Professional Response:`, query)

	response, err := a.provider.Generate(ctx, prompt)
	if err != nil || strings.TrimSpace(response) == "" {
		return fallbackGreeting
	}
	return strings.TrimSpace(response)
}

// rewriteQuery asks the model for a sanitized version of a toxic query.
// Higher severities get stricter instructions. An empty string means the
// rewrite failed and the query must be rejected outright.
func (a *Analyzer) rewriteQuery(ctx context.Context, query string, level ToxicityLevel) string {
	if a.provider == nil {
		return ""
	}

	intentRule := "Keep original intent"
	if level >= LevelModerate {
		intentRule = "Only preserve core meaning"
	}
	extraRule := ""
	if level == LevelSevere {
		extraRule = "\n4. Remove any discriminatory content"
	}

	prompt := fmt.Sprintf(`Rewrite this query to be professional while preserving intent:

Original: %s

Rules:
1. Remove all inappropriate language
2. Maintain professional tone
3. %s%s

Rewritten Query:`, query, intentRule, extraRule)

	response, err := a.provider.Generate(ctx, prompt)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(response)
}
