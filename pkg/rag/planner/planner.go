// Package planner converts a structured Intent into a retrieval plan. The
// plan carries the metadata predicates, result budget and routing decision
// used by the retriever.
package planner

import (
	"strings"

	"cv-search-be/pkg/rag/analyzer"
	"cv-search-be/pkg/rag/intent"
	"cv-search-be/pkg/vectorstore"
)

// Query types.
const (
	MetadataQuery  = "MetadataQuery"
	CVContentQuery = "CVContentQuery"
	MultiHopQuery  = "MultiHopQuery"
	GeneralQuery   = "GeneralQuery"
	BlockedQuery   = "BlockedQuery"
)

// Routes.
const (
	RouteProcess  = "process"
	RouteClarify  = "clarify"
	RouteReject   = "reject"
	RouteRedirect = "redirect"
)

// Metadata keys predicates are built against.
const (
	FieldSkills         = "skills.technical"
	FieldExperience     = "experience_years"
	FieldLocation       = "location"
	FieldRoles          = "current_role"
	FieldEducation      = "education"
	FieldCertifications = "certifications"
	FieldProjects       = "projects"
	FieldLanguages      = "languages"
)

// Plan is the complete retrieval strategy for one query.
type Plan struct {
	QueryType            string
	MetadataFilters      map[string]vectorstore.Filter
	SuggestedTopK        int
	RequiresReranking    bool
	Route                string
	RejectionReason      string
	HandlingInstructions string
	RequestedFields      []string
}

// Build produces a plan from the intent and the analysis verdict. It is a
// pure function of its inputs and never fails; an internal problem degrades
// to an unfiltered general plan.
func Build(in intent.Intent, analysis analyzer.Result) (plan Plan) {
	defer func() {
		if r := recover(); r != nil {
			plan = Plan{
				QueryType:            GeneralQuery,
				SuggestedTopK:        5,
				Route:                RouteProcess,
				HandlingInstructions: "Fallback plan due to error",
			}
		}
	}()

	if analysis.IsToxic {
		return Plan{
			QueryType:            BlockedQuery,
			SuggestedTopK:        5,
			Route:                RouteReject,
			RejectionReason:      analysis.RejectionReason,
			HandlingInstructions: "Query contained inappropriate language",
		}
	}

	if analysis.RequiresGeneralKnowledge {
		return Plan{
			QueryType:            GeneralQuery,
			SuggestedTopK:        5,
			Route:                RouteRedirect,
			HandlingInstructions: "Focus on CV-related aspects",
		}
	}

	filters := buildFilters(in)

	queryType := GeneralQuery
	switch len(filters) {
	case 0:
	case 1:
		queryType = MetadataQuery
	default:
		queryType = MultiHopQuery
	}

	topK := 5 + int(10*in.Confidence)
	if topK < 1 {
		topK = 1
	}
	if topK > 20 {
		topK = 20
	}

	return Plan{
		QueryType:         queryType,
		MetadataFilters:   filters,
		SuggestedTopK:     topK,
		RequiresReranking: len(filters) > 0,
		Route:             RouteProcess,
		RequestedFields:   in.RequestedFields,
	}
}

// buildFilters builds one predicate per requested field. Fields the user did
// not ask about contribute nothing even when the intent has values for them.
func buildFilters(in intent.Intent) map[string]vectorstore.Filter {
	filters := map[string]vectorstore.Filter{}

	for _, field := range in.RequestedFields {
		switch field {
		case "skills":
			if len(in.Skills) > 0 {
				filters[FieldSkills] = vectorstore.In{Key: FieldSkills, Values: lowered(in.Skills)}
			}
		case "experience":
			if !in.Experience.Empty() {
				filters[FieldExperience] = vectorstore.Range{
					Key: FieldExperience,
					Min: in.Experience.Min,
					Max: in.Experience.Max,
				}
			}
		case "location":
			if in.Location != "" {
				filters[FieldLocation] = vectorstore.Eq{Key: FieldLocation, Value: in.Location}
			}
		case "roles":
			if len(in.Roles) > 0 {
				filters[FieldRoles] = vectorstore.In{Key: FieldRoles, Values: lowered(in.Roles)}
			}
		case "education":
			if len(in.Education) > 0 {
				filters[FieldEducation] = vectorstore.In{Key: FieldEducation, Values: lowered(in.Education)}
			}
		case "certifications":
			if len(in.Certifications) > 0 {
				filters[FieldCertifications] = vectorstore.In{Key: FieldCertifications, Values: lowered(in.Certifications)}
			}
		case "projects":
			if len(in.Projects) > 0 {
				filters[FieldProjects] = vectorstore.In{Key: FieldProjects, Values: lowered(in.Projects)}
			}
		case "languages":
			if len(in.Languages) > 0 {
				filters[FieldLanguages] = vectorstore.In{Key: FieldLanguages, Values: lowered(in.Languages)}
			}
		}
	}

	return filters
}

func lowered(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}
