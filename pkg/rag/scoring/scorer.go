// Package scoring weighs candidate work-history entries so that search
// results can be ordered by practical experience rather than raw vector
// similarity alone.
package scoring

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Metadata keys used by the ingestion pipeline for experience entries.
const (
	keyTitle            = "TITLE"
	keyCompany          = "COMPANY"
	keyDuration         = "DURATION"
	keyResponsibilities = "RESPONSIBILITIES"
)

// seniorityWeights is ordered by priority. The first keyword found in a
// position title decides the multiplier.
var seniorityWeights = []struct {
	term   string
	weight float64
}{
	{"principal", 1.5},
	{"lead", 1.4},
	{"senior", 1.3},
	{"manager", 1.3},
	{"mid", 1.1},
	{"engineer", 1.0},
	{"developer", 1.0},
	{"junior", 0.9},
	{"intern", 0.6},
	{"entry", 0.8},
}

var wordPattern = regexp.MustCompile(`\w+`)

// Scorer computes experience scores for candidates. The current year is
// fixed at construction so that scoring stays deterministic within a run.
type Scorer struct {
	currentYear int
	queryTerms  []string
}

// NewScorer builds a scorer for the given query using the wall-clock year.
func NewScorer(query string) *Scorer {
	return NewScorerAt(query, time.Now().Year())
}

// NewScorerAt builds a scorer with an explicit current year.
func NewScorerAt(query string, currentYear int) *Scorer {
	terms := wordPattern.FindAllString(strings.ToLower(query), -1)
	return &Scorer{currentYear: currentYear, queryTerms: terms}
}

// ParseDuration extracts start and end years from a duration string.
// Accepted shapes are "YYYY - present", "YYYY - YYYY" and
// "MM/YYYY - MM/YYYY". Anything else reports ok=false.
func (s *Scorer) ParseDuration(duration string) (start, end int, ok bool) {
	duration = strings.TrimSpace(duration)
	if duration == "" {
		return 0, 0, false
	}

	if strings.Contains(strings.ToLower(duration), "present") {
		parts := strings.Split(duration, "-")
		startYear, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return 0, 0, false
		}
		return startYear, s.currentYear, true
	}

	if strings.Contains(duration, "/") {
		var dates []string
		for _, part := range strings.Split(duration, "-") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				dates = append(dates, trimmed)
			}
		}
		if len(dates) < 2 {
			return 0, 0, false
		}
		startYear, okStart := yearOfMonthYear(dates[0])
		endYear, okEnd := yearOfMonthYear(dates[1])
		if !okStart || !okEnd {
			return 0, 0, false
		}
		return startYear, endYear, true
	}

	if strings.Contains(duration, "-") {
		parts := strings.SplitN(duration, "-", 2)
		startYear, errStart := strconv.Atoi(strings.TrimSpace(parts[0]))
		endYear, errEnd := strconv.Atoi(strings.TrimSpace(parts[1]))
		if errStart != nil || errEnd != nil {
			return 0, 0, false
		}
		return startYear, endYear, true
	}

	return 0, 0, false
}

func yearOfMonthYear(date string) (int, bool) {
	parts := strings.SplitN(date, "/", 2)
	if len(parts) != 2 {
		return 0, false
	}
	year, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, false
	}
	return year, true
}

// PositionScore computes the weighted score of a single experience entry.
func (s *Scorer) PositionScore(job map[string]interface{}) float64 {
	startYear, endYear, ok := s.ParseDuration(fieldText(job, keyDuration))
	if !ok {
		return 0.0
	}

	years := float64(endYear - startYear)
	if years < 1 {
		years = 1
	}
	baseValue := years * (1 + 0.1*years)

	yearsAgo := float64(s.currentYear - endYear)
	recency := math.Max(0.8, 1.2-yearsAgo*0.04)

	title := strings.ToLower(fieldText(job, keyTitle))
	seniority := 1.0
	for _, sw := range seniorityWeights {
		if strings.Contains(title, sw.term) {
			seniority = sw.weight
			break
		}
	}

	domainBoost := 1.0
	jobDesc := strings.ToLower(fieldText(job, keyTitle) + " " + fieldText(job, keyCompany) + " " + fieldText(job, keyResponsibilities))
	for _, term := range s.queryTerms {
		if len(term) > 3 && strings.Contains(jobDesc, term) {
			domainBoost = 1.3
			break
		}
	}

	return baseValue * recency * seniority * domainBoost
}

// ScoreCandidate totals the per-position scores for a candidate. Candidates
// with three or more positions receive a breadth bonus. The result is
// rounded to two decimal places.
func (s *Scorer) ScoreCandidate(experience []map[string]interface{}) float64 {
	if len(experience) == 0 {
		return 0.0
	}

	total := 0.0
	for _, job := range experience {
		total += s.PositionScore(job)
	}

	if len(experience) >= 3 {
		total *= 1.1
	}

	return math.Round(total*100) / 100
}

// fieldText renders an entry field as plain text, joining list values with
// spaces so keyword checks see every element.
func fieldText(job map[string]interface{}, key string) string {
	switch v := job[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, " ")
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}
