package api

import (
	"fmt"
	"strings"
)

const searchTermSeparator = " OR "

// SearchTerm is one field:value clause of a search query.
type SearchTerm struct {
	Field string
	Value string
}

// ParseSearchQuery splits a query of the form "field:value OR field:value" into its terms.
// Whitespace inside a term is ignored, matching how the service reads it.
func ParseSearchQuery(query string) ([]SearchTerm, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is empty")
	}
	clauses := strings.Split(query, searchTermSeparator)
	terms := make([]SearchTerm, 0, len(clauses))
	for _, clause := range clauses {
		field, value, found := strings.Cut(strings.ReplaceAll(clause, " ", ""), ":")
		if !found || field == "" || value == "" {
			return nil, fmt.Errorf("term %q is not of the form field:value", strings.TrimSpace(clause))
		}
		if strings.Contains(value, ":") {
			return nil, fmt.Errorf("term %q has more than one ':'", strings.TrimSpace(clause))
		}
		terms = append(terms, SearchTerm{Field: field, Value: value})
	}
	return terms, nil
}

// FormatSearchQuery is the inverse of ParseSearchQuery.
func FormatSearchQuery(terms []SearchTerm) string {
	clauses := make([]string, len(terms))
	for i, t := range terms {
		clauses[i] = t.Field + ":" + t.Value
	}
	return strings.Join(clauses, searchTermSeparator)
}
