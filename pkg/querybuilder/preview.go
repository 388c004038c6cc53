package querybuilder

import "strings"

// BuildURL returns <base>/api/<collection>[?query]. It is empty when no
// collection is selected.
func BuildURL(baseURL, collection, queryString string) string {
	if collection == "" {
		return ""
	}
	u := strings.TrimSuffix(baseURL, "/") + "/api/" + collection
	if queryString != "" {
		u += "?" + queryString
	}
	return u
}

// Summary is the short overview shown next to a query preview
type Summary struct {
	Collection       string `json:"collection"`
	Fields           int    `json:"fields"`
	Relations        int    `json:"relations"`
	SortCriteria     int    `json:"sort_criteria"`
	FilterConditions int    `json:"filter_conditions"`
	Page             int    `json:"page"`
	PageSize         int    `json:"page_size"`
}

// Summarize counts the top-level parts of q. Page and page size fall back to
// 1 and 25 when unset or zero.
func Summarize(collection string, q Query) Summary {
	s := Summary{
		Collection:   collection,
		Fields:       len(q.Fields),
		Relations:    len(q.Populate),
		SortCriteria: len(q.Sort),
		Page:         1,
		PageSize:     25,
	}

	switch n := q.Filters.(type) {
	case *FilterGroup:
		if n != nil {
			s.FilterConditions = len(n.Conditions)
		}
	case *FilterCondition:
		if n != nil {
			s.FilterConditions = 1
		}
	}

	if q.Pagination != nil {
		if q.Pagination.Page != nil && *q.Pagination.Page != 0 {
			s.Page = *q.Pagination.Page
		}
		if q.Pagination.PageSize != nil && *q.Pagination.PageSize != 0 {
			s.PageSize = *q.Pagination.PageSize
		}
	}
	return s
}
