package session

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bitechdev/StrapiSpec/pkg/querybuilder"
	"github.com/bitechdev/StrapiSpec/pkg/strapi"
)

// ParsePath splits a dotted populate path ("author.avatar") into segments.
// The empty string is the root.
func ParsePath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// findNode walks the populate tree along path and returns a pointer to the
// addressed node's slot, so callers can mutate it in place.
func findNode(nodes []querybuilder.PopulateField, path []string) (*querybuilder.PopulateField, error) {
	var node *querybuilder.PopulateField
	level := nodes
	for depth, segment := range path {
		idx := slices.IndexFunc(level, func(n querybuilder.PopulateField) bool { return n.Field == segment })
		if idx < 0 {
			return nil, fmt.Errorf("%w: %q is not populated", ErrInvalidPath, strings.Join(path[:depth+1], "."))
		}
		node = &level[idx]
		level = node.Populate
	}
	return node, nil
}

// AddPopulate populates the relation field below path (nil for the top level).
// With a known schema the relation must exist on the type at path, and below
// the top level it may not lead back to a type already on the path.
func (s *Session) AddPopulate(path []string, field string) error {
	if field == "" {
		return fmt.Errorf("%w: empty relation name", ErrInvalidPath)
	}
	if s.SelectedCollection == "" {
		return ErrNoCollection
	}
	if err := s.checkRelation(path, field); err != nil {
		return err
	}

	if len(path) == 0 {
		if slices.ContainsFunc(s.Query.Populate, func(n querybuilder.PopulateField) bool { return n.Field == field }) {
			return fmt.Errorf("%w: %s", ErrDuplicateRelation, field)
		}
		s.Query.Populate = append(s.Query.Populate, querybuilder.PopulateField{Field: field})
		return nil
	}

	parent, err := findNode(s.Query.Populate, path)
	if err != nil {
		return err
	}
	if slices.ContainsFunc(parent.Populate, func(n querybuilder.PopulateField) bool { return n.Field == field }) {
		return fmt.Errorf("%w: %s.%s", ErrDuplicateRelation, strings.Join(path, "."), field)
	}
	parent.Populate = append(parent.Populate, querybuilder.PopulateField{Field: field})
	return nil
}

func (s *Session) checkRelation(path []string, field string) error {
	if !s.hasSchema() {
		return nil
	}

	parent, err := strapi.ResolvePath(s.ContentTypes, s.SelectedCollection, path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	attr, ok := parent.Attributes[field]
	if !ok || !attr.IsRelation() {
		return fmt.Errorf("%w: %s is not a relation of %s", ErrInvalidPath, field, parent.CollectionName())
	}

	if len(path) > 0 && attr.Target != "" {
		visited := strapi.VisitedUIDs(s.ContentTypes, s.SelectedCollection, path)
		if _, seen := visited[attr.Target]; seen {
			return fmt.Errorf("%w: %s -> %s", ErrCircularRelation, field, attr.Target)
		}
	}
	return nil
}

// RemovePopulate removes the node at path together with its subtree
func (s *Session) RemovePopulate(path []string) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	field := path[len(path)-1]
	match := func(n querybuilder.PopulateField) bool { return n.Field == field }

	if len(path) == 1 {
		if !slices.ContainsFunc(s.Query.Populate, match) {
			return fmt.Errorf("%w: %q is not populated", ErrInvalidPath, field)
		}
		s.Query.Populate = slices.DeleteFunc(s.Query.Populate, match)
		return nil
	}

	parent, err := findNode(s.Query.Populate, path[:len(path)-1])
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(parent.Populate, match) {
		return fmt.Errorf("%w: %q is not populated", ErrInvalidPath, strings.Join(path, "."))
	}
	parent.Populate = slices.DeleteFunc(parent.Populate, match)
	return nil
}

// AddPopulateField restricts the populated relation at path to also select
// field. Adding a field twice is a no-op.
func (s *Session) AddPopulateField(path []string, field string) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if field == "" {
		return fmt.Errorf("%w: empty field name", ErrUnknownField)
	}

	node, err := findNode(s.Query.Populate, path)
	if err != nil {
		return err
	}

	if s.hasSchema() {
		target, err := strapi.ResolvePath(s.ContentTypes, s.SelectedCollection, path)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
		if attr, ok := target.Attributes[field]; !ok || attr.IsRelation() {
			return fmt.Errorf("%w: %s on %s", ErrUnknownField, field, target.CollectionName())
		}
	}

	if !slices.Contains(node.Fields, field) {
		node.Fields = append(node.Fields, field)
	}
	return nil
}

// RemovePopulateField drops field from the projection of the relation at path
func (s *Session) RemovePopulateField(path []string, field string) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	node, err := findNode(s.Query.Populate, path)
	if err != nil {
		return err
	}
	node.Fields = slices.DeleteFunc(node.Fields, func(f string) bool { return f == field })
	return nil
}

// SetPopulate replaces the whole populate tree. Every node is checked the way
// AddPopulate checks it, so a tree can only hold what could be built edit by edit.
func (s *Session) SetPopulate(tree []querybuilder.PopulateField) error {
	if len(tree) > 0 && s.SelectedCollection == "" {
		return ErrNoCollection
	}
	if err := s.validateTree(tree, nil); err != nil {
		return err
	}
	s.Query.Populate = tree
	return nil
}

// validateTree rejects unnamed nodes, siblings sharing a name and, with a
// known schema, unknown or circular relations below path
func (s *Session) validateTree(nodes []querybuilder.PopulateField, path []string) error {
	seen := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if n.Field == "" {
			return fmt.Errorf("%w: unnamed relation under %q", ErrInvalidPath, strings.Join(path, "."))
		}
		if _, dup := seen[n.Field]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateRelation, strings.Join(append(slices.Clone(path), n.Field), "."))
		}
		seen[n.Field] = struct{}{}

		if err := s.checkRelation(path, n.Field); err != nil {
			return err
		}
		if err := s.validateTree(n.Populate, append(slices.Clone(path), n.Field)); err != nil {
			return err
		}
	}
	return nil
}
