package querybuilder

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Operator is a Strapi filter operator token
type Operator string

const (
	OpEq           Operator = "$eq"
	OpNe           Operator = "$ne"
	OpLt           Operator = "$lt"
	OpLte          Operator = "$lte"
	OpGt           Operator = "$gt"
	OpGte          Operator = "$gte"
	OpIn           Operator = "$in"
	OpNotIn        Operator = "$notIn"
	OpContains     Operator = "$contains"
	OpNotContains  Operator = "$notContains"
	OpContainsi    Operator = "$containsi"
	OpNotContainsi Operator = "$notContainsi"
	OpNull         Operator = "$null"
	OpNotNull      Operator = "$notNull"
	OpStartsWith   Operator = "$startsWith"
	OpEndsWith     Operator = "$endsWith"

	// OpBetween is accepted and passed through, the editor never builds it
	OpBetween Operator = "$between"
)

var operatorLabels = []struct {
	op    Operator
	label string
}{
	{OpEq, "Equals"},
	{OpNe, "Not Equals"},
	{OpLt, "Less Than"},
	{OpLte, "Less Than or Equal"},
	{OpGt, "Greater Than"},
	{OpGte, "Greater Than or Equal"},
	{OpIn, "In Array"},
	{OpNotIn, "Not In Array"},
	{OpContains, "Contains"},
	{OpNotContains, "Not Contains"},
	{OpContainsi, "Contains (case insensitive)"},
	{OpNotContainsi, "Not Contains (case insensitive)"},
	{OpNull, "Is Null"},
	{OpNotNull, "Is Not Null"},
	{OpStartsWith, "Starts With"},
	{OpEndsWith, "Ends With"},
}

// Operators returns the operators offered by the editor, in display order
func Operators() []Operator {
	out := make([]Operator, len(operatorLabels))
	for i, l := range operatorLabels {
		out[i] = l.op
	}
	return out
}

// Label returns the human readable name of the operator
func (o Operator) Label() string {
	for _, l := range operatorLabels {
		if l.op == o {
			return l.label
		}
	}
	if o == OpBetween {
		return "Between"
	}
	return string(o)
}

// Valid reports whether the operator is one the editor may construct
func (o Operator) Valid() bool {
	for _, l := range operatorLabels {
		if l.op == o {
			return true
		}
	}
	return false
}

// NeedsValue is false for the null checks, which carry a null value
func (o Operator) NeedsValue() bool {
	return o != OpNull && o != OpNotNull
}

// IsList reports whether the operator takes a list of scalars
func (o Operator) IsList() bool {
	return o == OpIn || o == OpNotIn
}

// Combinator joins the children of a filter group
type Combinator string

const (
	And Combinator = "$and"
	Or  Combinator = "$or"
)

// FilterNode is either a *FilterCondition or a *FilterGroup
type FilterNode interface {
	filterNode()
}

// FilterCondition is a leaf predicate: field, operator and value.
// Value is nil for null checks, a slice for $in/$notIn, a scalar otherwise.
type FilterCondition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// FilterGroup combines its children with $and / $or, in order
type FilterGroup struct {
	Operator   Combinator   `json:"operator"`
	Conditions []FilterNode `json:"conditions"`
}

func (*FilterCondition) filterNode() {}
func (*FilterGroup) filterNode()     {}

// UnmarshalJSON keeps numeric values as json.Number
func (c *FilterCondition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Field    string          `json:"field"`
		Operator Operator        `json:"operator"`
		Value    json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	value, err := decodeValue(raw.Value)
	if err != nil {
		return fmt.Errorf("invalid value for %q: %w", raw.Field, err)
	}
	c.Field = raw.Field
	c.Operator = raw.Operator
	c.Value = value
	return nil
}

// UnmarshalJSON decodes the polymorphic children of the group
func (g *FilterGroup) UnmarshalJSON(data []byte) error {
	var raw struct {
		Operator   Combinator        `json:"operator"`
		Conditions []json.RawMessage `json:"conditions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	g.Operator = raw.Operator
	g.Conditions = make([]FilterNode, 0, len(raw.Conditions))
	for i, child := range raw.Conditions {
		node, err := DecodeFilterNode(child)
		if err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
		g.Conditions = append(g.Conditions, node)
	}
	return nil
}

// DecodeFilterNode decodes a JSON filter node. An object carrying "conditions"
// is a group, anything else is a condition. null decodes to a nil node.
func DecodeFilterNode(data []byte) (FilterNode, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var shape map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &shape); err != nil {
		return nil, err
	}

	if _, ok := shape["conditions"]; ok {
		var g FilterGroup
		if err := json.Unmarshal(trimmed, &g); err != nil {
			return nil, err
		}
		return &g, nil
	}

	var c FilterCondition
	if err := json.Unmarshal(trimmed, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// CloneFilterNode deep-copies a filter tree. Condition values are shared,
// they are treated as immutable.
func CloneFilterNode(node FilterNode) FilterNode {
	switch n := node.(type) {
	case *FilterGroup:
		if n == nil {
			return nil
		}
		out := &FilterGroup{Operator: n.Operator, Conditions: make([]FilterNode, 0, len(n.Conditions))}
		for _, c := range n.Conditions {
			out.Conditions = append(out.Conditions, CloneFilterNode(c))
		}
		return out
	case *FilterCondition:
		if n == nil {
			return nil
		}
		c := *n
		return &c
	}
	return nil
}

func isNilNode(node FilterNode) bool {
	switch n := node.(type) {
	case nil:
		return true
	case *FilterGroup:
		return n == nil
	case *FilterCondition:
		return n == nil
	}
	return false
}
