package session

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/bitechdev/StrapiSpec/pkg/querybuilder"
)

// AddCondition appends a condition to the root group, creating an $and root
// when there are no filters yet. raw is the value as typed by the editor and
// is coerced with querybuilder.ParseFilterValue.
func (s *Session) AddCondition(field string, op querybuilder.Operator, raw string) error {
	if field == "" {
		return fmt.Errorf("%w: empty filter field", ErrUnknownField)
	}
	if !op.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOperator, op)
	}
	if op.NeedsValue() && raw == "" {
		return fmt.Errorf("%w: %s %s", ErrMissingValue, field, op)
	}

	cond := &querybuilder.FilterCondition{
		Field:    field,
		Operator: op,
		Value:    querybuilder.ParseFilterValue(op, raw),
	}

	switch root := s.Query.Filters.(type) {
	case *querybuilder.FilterGroup:
		if root != nil {
			root.Conditions = append(root.Conditions, cond)
			return nil
		}
	case *querybuilder.FilterCondition:
		if root != nil {
			s.Query.Filters = &querybuilder.FilterGroup{
				Operator:   querybuilder.And,
				Conditions: []querybuilder.FilterNode{root, cond},
			}
			return nil
		}
	}

	s.Query.Filters = &querybuilder.FilterGroup{
		Operator:   querybuilder.And,
		Conditions: []querybuilder.FilterNode{cond},
	}
	return nil
}

// RemoveCondition removes the root condition at index. Removing the last one
// clears the filters.
func (s *Session) RemoveCondition(index int) error {
	switch root := s.Query.Filters.(type) {
	case *querybuilder.FilterGroup:
		if root == nil || index < 0 || index >= len(root.Conditions) {
			return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
		}
		root.Conditions = append(root.Conditions[:index:index], root.Conditions[index+1:]...)
		if len(root.Conditions) == 0 {
			s.Query.Filters = nil
		}
		return nil
	case *querybuilder.FilterCondition:
		if root == nil || index != 0 {
			return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
		}
		s.Query.Filters = nil
		return nil
	}
	return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
}

// ClearFilters removes every filter
func (s *Session) ClearFilters() {
	s.Query.Filters = nil
}

// SetFilters replaces the filter tree after validating it
func (s *Session) SetFilters(root querybuilder.FilterNode) error {
	if err := ValidateFilter(root); err != nil {
		return err
	}
	s.Query.Filters = root
	return nil
}

// ValidateFilter checks combinators, operators and that value-bearing
// conditions carry a value. A nil tree is valid.
func ValidateFilter(node querybuilder.FilterNode) error {
	switch n := node.(type) {
	case nil:
		return nil
	case *querybuilder.FilterGroup:
		if n == nil {
			return nil
		}
		if n.Operator != querybuilder.And && n.Operator != querybuilder.Or {
			return fmt.Errorf("%w: group operator %q", ErrInvalidOperator, n.Operator)
		}
		for i, child := range n.Conditions {
			if child == nil {
				return fmt.Errorf("%w: condition %d is empty", ErrInvalidFilter, i)
			}
			if err := ValidateFilter(child); err != nil {
				return err
			}
		}
		return nil
	case *querybuilder.FilterCondition:
		if n == nil {
			return nil
		}
		if n.Field == "" {
			return fmt.Errorf("%w: condition without field", ErrInvalidFilter)
		}
		if !n.Operator.Valid() && n.Operator != querybuilder.OpBetween {
			return fmt.Errorf("%w: %q", ErrInvalidOperator, n.Operator)
		}
		if n.Operator.NeedsValue() && n.Value == nil {
			return fmt.Errorf("%w: %s %s", ErrMissingValue, n.Field, n.Operator)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown node %T", ErrInvalidFilter, node)
}

// filterDocument renders the filter tree as JSON for path edits
func (s *Session) filterDocument() ([]byte, error) {
	if s.Query.Filters == nil {
		return []byte(`{"operator":"$and","conditions":[]}`), nil
	}
	return json.Marshal(s.Query.Filters)
}

// FilterValue returns the JSON at path inside the filter tree, using gjson
// path syntax ("conditions.0.value"). An empty path returns the whole tree.
func (s *Session) FilterValue(path string) (json.RawMessage, bool) {
	if s.Query.Filters == nil {
		return nil, false
	}
	doc, err := json.Marshal(s.Query.Filters)
	if err != nil {
		return nil, false
	}
	if path == "" {
		return doc, true
	}
	res := gjson.GetBytes(doc, path)
	if !res.Exists() {
		return nil, false
	}
	return json.RawMessage(res.Raw), true
}

// PatchFilter sets the JSON value at path inside the filter tree, using sjson
// path syntax ("conditions.1.operator", "conditions.-1" to append). An empty
// value deletes the path. The result must still be a valid tree.
func (s *Session) PatchFilter(path string, value json.RawMessage) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidFilter)
	}

	doc, err := s.filterDocument()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}

	if len(value) == 0 {
		if !gjson.GetBytes(doc, path).Exists() {
			return fmt.Errorf("%w: nothing at %q", ErrInvalidFilter, path)
		}
		doc, err = sjson.DeleteBytes(doc, path)
	} else {
		if !json.Valid(value) {
			return fmt.Errorf("%w: value is not JSON", ErrInvalidFilter)
		}
		doc, err = sjson.SetRawBytes(doc, path, value)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}

	root, err := querybuilder.DecodeFilterNode(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	if g, ok := root.(*querybuilder.FilterGroup); ok && len(g.Conditions) == 0 {
		root = nil
	}
	if err := ValidateFilter(root); err != nil {
		return err
	}

	s.Query.Filters = root
	return nil
}
