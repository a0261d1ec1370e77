// Package intent turns a free-form candidate search query into a structured
// Intent describing what the user asked for.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cv-search-be/pkg/llm"
)

// Intent labels.
const (
	LabelGeneralInfo      = "GeneralInfo"
	LabelSkillMatch       = "SkillMatch"
	LabelRoleSearch       = "RoleSearch"
	LabelExperienceFilter = "ExperienceFilter"
	LabelLocationSearch   = "LocationSearch"
	LabelEducationSearch  = "EducationSearch"
	LabelMultiCriteria    = "MultiCriteria"
)

// extractableFields is the fixed vocabulary for requested_fields, in the
// order predicates are built downstream.
var extractableFields = []string{
	"skills", "experience", "roles", "location",
	"education", "certifications", "projects", "languages",
}

// ExperienceRange holds optional experience bounds in years.
type ExperienceRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Empty reports whether neither bound is set.
func (r ExperienceRange) Empty() bool {
	return r.Min == nil && r.Max == nil
}

// Intent is the structured reading of one search query.
type Intent struct {
	Label           string          `json:"intent"`
	Name            string          `json:"name,omitempty"`
	Skills          []string        `json:"skills"`
	Experience      ExperienceRange `json:"experience"`
	Roles           []string        `json:"roles"`
	Location        string          `json:"location,omitempty"`
	Education       []string        `json:"education"`
	Certifications  []string        `json:"certifications"`
	Projects        []string        `json:"projects"`
	Languages       []string        `json:"languages"`
	Confidence      float64         `json:"confidence"`
	RequestedFields []string        `json:"requested_fields"`
}

// Extractor resolves intents via the LLM collaborator. A parse failure or
// model error always degrades to a zero-confidence Intent, never an error.
type Extractor struct {
	provider llm.Provider
}

func NewExtractor(provider llm.Provider) *Extractor {
	return &Extractor{provider: provider}
}

// Extract analyzes one query.
func (e *Extractor) Extract(ctx context.Context, query string) Intent {
	lower := strings.ToLower(query)
	if strings.HasPrefix(lower, "who is") {
		return Intent{
			Label:           LabelGeneralInfo,
			Name:            strings.TrimSpace(query[len("who is"):]),
			Confidence:      0.95,
			RequestedFields: []string{"name"},
		}
	}

	if e.provider == nil {
		return fallbackIntent()
	}

	response, err := e.provider.Generate(ctx, buildPrompt(query))
	if err != nil {
		return fallbackIntent()
	}

	jsonStart := strings.Index(response, "{")
	jsonEnd := strings.LastIndex(response, "}")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd < jsonStart {
		return fallbackIntent()
	}

	var parsed Intent
	if err := json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &parsed); err != nil {
		return fallbackIntent()
	}

	parsed.RequestedFields = normalizeRequestedFields(parsed)
	return parsed
}

// fallbackIntent is the recoverable zero-confidence result.
func fallbackIntent() Intent {
	return Intent{Confidence: 0.0}
}

// normalizeRequestedFields enforces that a requested field carries a
// non-empty extracted value. The model-declared list wins when present but
// is filtered against the populated fields; otherwise the populated fields
// themselves become the list.
func normalizeRequestedFields(in Intent) []string {
	populated := map[string]bool{"name": in.Name != ""}
	for _, field := range extractableFields {
		populated[field] = fieldPopulated(in, field)
	}

	if len(in.RequestedFields) > 0 {
		var out []string
		for _, field := range in.RequestedFields {
			if populated[strings.ToLower(field)] {
				out = append(out, strings.ToLower(field))
			}
		}
		return out
	}

	var out []string
	for _, field := range extractableFields {
		if populated[field] {
			out = append(out, field)
		}
	}
	return out
}

func fieldPopulated(in Intent, field string) bool {
	switch field {
	case "skills":
		return len(in.Skills) > 0
	case "experience":
		return !in.Experience.Empty()
	case "roles":
		return len(in.Roles) > 0
	case "location":
		return in.Location != ""
	case "education":
		return len(in.Education) > 0
	case "certifications":
		return len(in.Certifications) > 0
	case "projects":
		return len(in.Projects) > 0
	case "languages":
		return len(in.Languages) > 0
	default:
		return false
	}
}

func buildPrompt(query string) string {
	return fmt.Sprintf(`Analyze the following job candidate search query and extract structured information.

AVAILABLE FIELDS TO EXTRACT
---------------------------
- SKILLS: Technical skills, tools, programming languages (e.g., "Python", "React", "AWS")
- EXPERIENCE: Years of experience (e.g., "5+", "junior", "senior")
- ROLES: Job titles or roles (e.g., "developer", "data scientist")
- LOCATION: Geographic location (e.g., "Kathmandu", "remote")
- EDUCATION: Degrees or education level (e.g., "PhD", "computer science")
- CERTIFICATIONS: Professional certifications (e.g., "AWS Certified")
- PROJECTS: Specific project experience (e.g., "machine learning project")
- LANGUAGES: Spoken languages (e.g., "English", "Nepali")

RESPONSE FORMAT
---------------
Return a JSON object with these fields:
- intent: One of ["GeneralInfo", "SkillMatch", "RoleSearch", "ExperienceFilter", "LocationSearch", "EducationSearch", "MultiCriteria"]
- name: Extracted name if query is a "who is" question
- skills: List of extracted skills/tools/languages
- experience: Object with min/max years if specified
- roles: List of job titles/roles
- location: Location string if specified
- education: List of education criteria
- certifications: List of certifications
- projects: List of project experiences
- languages: List of spoken languages
- confidence: Float between 0 and 1
- requested_fields: List of fields explicitly requested by the user in the query (e.g., ["skills", "location"])

EXAMPLES
--------
Query: "Senior Python developers in Kathmandu with 5+ years experience"
{
    "intent": "MultiCriteria",
    "skills": ["Python"],
    "experience": {"min": 5},
    "roles": ["developer"],
    "location": "Kathmandu",
    "confidence": 0.95,
    "requested_fields": ["skills", "experience", "roles", "location"]
}

Query: "Show me candidates who know React and Node.js"
{
    "intent": "SkillMatch",
    "skills": ["React", "Node.js"],
    "confidence": 0.9,
    "requested_fields": ["skills"]
}

ACTUAL QUERY TO PROCESS
-----------------------
Query: %s

Respond ONLY with the JSON object, no other text or explanation.`, query)
}
