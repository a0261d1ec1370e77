package vectorstore

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MetadataPrefix namespaces filter keys under the stored metadata mapping.
const MetadataPrefix = "metadata."

// Filter is one node of a metadata filter expression. Stores interpret the
// tree however suits them: the pgvector store compiles it to SQL, the
// chromem store evaluates it in-process via Matches.
type Filter interface {
	filterNode()
}

// Eq matches when the metadata value equals the given string (case-insensitive).
type Eq struct {
	Key   string
	Value string
}

// In matches when any element of the metadata value (string, list, or a
// JSON-encoded list) equals one of the given values (case-insensitive).
type In struct {
	Key    string
	Values []string
}

// Range matches when the numeric metadata value falls inside the bounds.
// A nil bound is open.
type Range struct {
	Key string
	Min *float64
	Max *float64
}

// Regex matches the metadata value against a case-insensitive pattern.
type Regex struct {
	Key     string
	Pattern string
}

// And matches when every clause matches.
type And struct {
	Clauses []Filter
}

// Or matches when at least one clause matches.
type Or struct {
	Clauses []Filter
}

func (Eq) filterNode()    {}
func (In) filterNode()    {}
func (Range) filterNode() {}
func (Regex) filterNode() {}
func (And) filterNode()   {}
func (Or) filterNode()    {}

// Namespace rewrites every key in the expression under the metadata prefix.
// Keys already prefixed pass through unchanged, so the operation is
// idempotent; logical clauses are namespaced recursively.
func Namespace(f Filter) Filter {
	switch node := f.(type) {
	case nil:
		return nil
	case Eq:
		node.Key = prefixKey(node.Key)
		return node
	case In:
		node.Key = prefixKey(node.Key)
		return node
	case Range:
		node.Key = prefixKey(node.Key)
		return node
	case Regex:
		node.Key = prefixKey(node.Key)
		return node
	case And:
		clauses := make([]Filter, len(node.Clauses))
		for i, c := range node.Clauses {
			clauses[i] = Namespace(c)
		}
		return And{Clauses: clauses}
	case Or:
		clauses := make([]Filter, len(node.Clauses))
		for i, c := range node.Clauses {
			clauses[i] = Namespace(c)
		}
		return Or{Clauses: clauses}
	default:
		return f
	}
}

func prefixKey(key string) string {
	if strings.HasPrefix(key, MetadataPrefix) {
		return key
	}
	return MetadataPrefix + key
}

// KeyPath resolves a (possibly namespaced) dotted key into path segments
// relative to the metadata mapping.
func KeyPath(key string) []string {
	key = strings.TrimPrefix(key, MetadataPrefix)
	return strings.Split(key, ".")
}

// CountClauses returns the number of leaf predicates in the expression.
func CountClauses(f Filter) int {
	switch node := f.(type) {
	case nil:
		return 0
	case And:
		total := 0
		for _, c := range node.Clauses {
			total += CountClauses(c)
		}
		return total
	case Or:
		total := 0
		for _, c := range node.Clauses {
			total += CountClauses(c)
		}
		return total
	default:
		return 1
	}
}

// Matches evaluates the expression against a metadata mapping in-process.
// A nil filter matches everything.
func Matches(f Filter, metadata map[string]interface{}) bool {
	switch node := f.(type) {
	case nil:
		return true
	case Eq:
		value, ok := lookup(metadata, node.Key)
		if !ok {
			return false
		}
		return strings.EqualFold(stringify(value), node.Value)
	case In:
		value, ok := lookup(metadata, node.Key)
		if !ok {
			return false
		}
		elements := elementsOf(value)
		for _, elem := range elements {
			for _, want := range node.Values {
				if strings.EqualFold(elem, want) {
					return true
				}
			}
		}
		return false
	case Range:
		value, ok := lookup(metadata, node.Key)
		if !ok {
			return false
		}
		num, ok := asNumber(value)
		if !ok {
			return false
		}
		if node.Min != nil && num < *node.Min {
			return false
		}
		if node.Max != nil && num > *node.Max {
			return false
		}
		return true
	case Regex:
		value, ok := lookup(metadata, node.Key)
		if !ok {
			return false
		}
		re, err := regexp.Compile("(?i)" + node.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(stringify(value))
	case And:
		for _, c := range node.Clauses {
			if !Matches(c, metadata) {
				return false
			}
		}
		return true
	case Or:
		for _, c := range node.Clauses {
			if Matches(c, metadata) {
				return true
			}
		}
		return len(node.Clauses) == 0
	default:
		return false
	}
}

// lookup walks a dotted key through nested mappings.
func lookup(metadata map[string]interface{}, key string) (interface{}, bool) {
	path := KeyPath(key)
	var current interface{} = metadata
	for _, segment := range path {
		m, ok := current.(map[string]interface{})
		if !ok {
			// A nested object may be stored as a JSON string
			if s, isStr := current.(string); isStr {
				var parsed map[string]interface{}
				if err := json.Unmarshal([]byte(s), &parsed); err != nil {
					return nil, false
				}
				m = parsed
			} else {
				return nil, false
			}
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// elementsOf normalizes a metadata value into a list of strings, accepting
// scalar, list, and JSON-encoded-list representations.
func elementsOf(value interface{}) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, stringify(item))
		}
		return out
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "[") {
			var parsed []interface{}
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				return elementsOf(parsed)
			}
		}
		return []string{v}
	default:
		return []string{stringify(value)}
	}
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
