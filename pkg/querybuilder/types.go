package querybuilder

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SortOrder is the direction of a sort entry
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Valid reports whether the order is one Strapi understands
func (o SortOrder) Valid() bool {
	return o == SortAsc || o == SortDesc
}

// SortOption is a single (field, direction) pair of the sort list
type SortOption struct {
	Field string    `json:"field"`
	Order SortOrder `json:"order"`
}

// PopulateField is a node of the populate tree.
// Fields restricts the projection of the related record, Populate holds nested relations.
type PopulateField struct {
	Field    string          `json:"field"`
	Fields   []string        `json:"fields,omitempty"`
	Populate []PopulateField `json:"populate,omitempty"`
}

// Pagination holds both pagination models. A nil pointer means "not set";
// a pointer to zero is a defined value and is emitted.
type Pagination struct {
	Page     *int `json:"page,omitempty"`
	PageSize *int `json:"pageSize,omitempty"`
	Start    *int `json:"start,omitempty"`
	Limit    *int `json:"limit,omitempty"`
}

// IntPtr returns a pointer to v, handy for building Pagination literals
func IntPtr(v int) *int {
	return &v
}

// Merge overlays the defined values of other onto a copy of p
func (p Pagination) Merge(other Pagination) Pagination {
	if other.Page != nil {
		p.Page = IntPtr(*other.Page)
	}
	if other.PageSize != nil {
		p.PageSize = IntPtr(*other.PageSize)
	}
	if other.Start != nil {
		p.Start = IntPtr(*other.Start)
	}
	if other.Limit != nil {
		p.Limit = IntPtr(*other.Limit)
	}
	return p
}

// DefaultPagination is the pagination applied on an explicit reset
func DefaultPagination() Pagination {
	return Pagination{Page: IntPtr(1), PageSize: IntPtr(25)}
}

// Query is the complete query description compiled by BuildQueryString
type Query struct {
	Fields     []string        `json:"fields"`
	Populate   []PopulateField `json:"populate"`
	Sort       []SortOption    `json:"sort"`
	Filters    FilterNode      `json:"filters"`
	Pagination *Pagination     `json:"pagination,omitempty"`
}

// UnmarshalJSON decodes the polymorphic filter root
func (q *Query) UnmarshalJSON(data []byte) error {
	type plain Query
	var raw struct {
		plain
		Filters json.RawMessage `json:"filters"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	node, err := DecodeFilterNode(raw.Filters)
	if err != nil {
		return fmt.Errorf("invalid filters: %w", err)
	}

	*q = Query(raw.plain)
	q.Filters = node
	return nil
}

// Clone returns a deep copy of the query so callers can mutate it freely
func (q Query) Clone() Query {
	out := Query{
		Fields:   append([]string(nil), q.Fields...),
		Populate: clonePopulate(q.Populate),
		Sort:     append([]SortOption(nil), q.Sort...),
		Filters:  CloneFilterNode(q.Filters),
	}
	if q.Pagination != nil {
		p := Pagination{}.Merge(*q.Pagination)
		out.Pagination = &p
	}
	return out
}

func clonePopulate(nodes []PopulateField) []PopulateField {
	if nodes == nil {
		return nil
	}
	out := make([]PopulateField, len(nodes))
	for i, n := range nodes {
		out[i] = PopulateField{
			Field:    n.Field,
			Fields:   append([]string(nil), n.Fields...),
			Populate: clonePopulate(n.Populate),
		}
	}
	return out
}

// decodeValue keeps numbers as json.Number so they serialize exactly as received
func decodeValue(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
