// Package querybuilder compiles a structured query description into the
// bracket-notation query string understood by the Strapi v5 REST API.
//
// Every function in this package is pure: no I/O, no shared state, and the
// same input always yields byte-identical output.
package querybuilder

import (
	"strconv"
	"strings"
)

// BuildFields builds the fields parameter, keeping the selection order
func BuildFields(fields []string) string {
	if len(fields) == 0 {
		return ""
	}
	return "fields=" + strings.Join(fields, ",")
}

// BuildPopulate builds the populate parameters using LHS bracket notation.
//
// A node with a field restriction emits <path>[fields]=..., a node with children
// recurses under <path>[populate], and a bare node emits <path>=true. A node that
// has both fields and children never gets the =true marker.
func BuildPopulate(populate []PopulateField) string {
	if len(populate) == 0 {
		return ""
	}
	params := appendPopulateParams(nil, populate, "populate")
	return strings.Join(params, "&")
}

func appendPopulateParams(params []string, nodes []PopulateField, prefix string) []string {
	for _, node := range nodes {
		path := prefix + "[" + node.Field + "]"
		hasFields := len(node.Fields) > 0
		hasChildren := len(node.Populate) > 0

		if hasFields {
			params = append(params, path+"[fields]="+strings.Join(node.Fields, ","))
		}

		switch {
		case hasChildren:
			params = appendPopulateParams(params, node.Populate, path+"[populate]")
		case !hasFields:
			params = append(params, path+"=true")
		}
	}
	return params
}

// BuildSort builds the sort parameter as field:order pairs in list order
func BuildSort(sort []SortOption) string {
	if len(sort) == 0 {
		return ""
	}
	entries := make([]string, len(sort))
	for i, s := range sort {
		entries[i] = s.Field + ":" + string(s.Order)
	}
	return "sort=" + strings.Join(entries, ",")
}

// BuildFilters builds the filters parameter: the filter tree as percent-encoded JSON.
// A nil root yields an empty string, as does a tree holding values JSON cannot represent.
func BuildFilters(root FilterNode) string {
	if isNilNode(root) {
		return ""
	}
	payload, err := marshalJSON(FilterObject(root))
	if err != nil {
		return ""
	}
	return "filters=" + EncodeURIComponent(payload)
}

// FilterObject transforms a filter node into the nested structure Strapi expects.
// Groups become {"$and": [...]} / {"$or": [...]}, conditions become {field: {op: value}}.
func FilterObject(node FilterNode) map[string]any {
	switch n := node.(type) {
	case *FilterGroup:
		if n == nil {
			return nil
		}
		children := make([]any, 0, len(n.Conditions))
		for _, child := range n.Conditions {
			children = append(children, FilterObject(child))
		}
		return map[string]any{string(n.Operator): children}
	case *FilterCondition:
		if n == nil {
			return nil
		}
		return map[string]any{n.Field: map[string]any{string(n.Operator): n.Value}}
	}
	return nil
}

// BuildPagination emits one pagination[key]=value pair per defined field,
// in the order page, pageSize, start, limit. Zero is a defined value.
func BuildPagination(p Pagination) string {
	params := make([]string, 0, 4)
	if p.Page != nil {
		params = append(params, "pagination[page]="+strconv.Itoa(*p.Page))
	}
	if p.PageSize != nil {
		params = append(params, "pagination[pageSize]="+strconv.Itoa(*p.PageSize))
	}
	if p.Start != nil {
		params = append(params, "pagination[start]="+strconv.Itoa(*p.Start))
	}
	if p.Limit != nil {
		params = append(params, "pagination[limit]="+strconv.Itoa(*p.Limit))
	}
	return strings.Join(params, "&")
}

// BuildQueryString assembles fields, populate, sort, filters and pagination,
// in that order, skipping empty segments
func BuildQueryString(q Query) string {
	parts := []string{
		BuildFields(q.Fields),
		BuildPopulate(q.Populate),
		BuildSort(q.Sort),
		BuildFilters(q.Filters),
	}
	if q.Pagination != nil {
		parts = append(parts, BuildPagination(*q.Pagination))
	}

	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "&")
}
