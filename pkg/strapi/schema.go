package strapi

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrContentTypeNotFound is returned when no content type matches a collection or uid
	ErrContentTypeNotFound = errors.New("content type not found")

	// ErrNotRelation is returned when a path segment is not a relational attribute
	ErrNotRelation = errors.New("attribute is not a relation")
)

// FindContentType returns the content type addressed by collection, matched
// against the plural name first and the API id second.
func FindContentType(cts []ContentType, collection string) (*ContentType, bool) {
	if collection == "" {
		return nil, false
	}
	for i := range cts {
		if cts[i].Info.PluralName == collection || cts[i].APIID == collection {
			return &cts[i], true
		}
	}
	return nil, false
}

// FindByUID returns the content type with the given uid
func FindByUID(cts []ContentType, uid string) (*ContentType, bool) {
	for i := range cts {
		if cts[i].UID == uid {
			return &cts[i], true
		}
	}
	return nil, false
}

// CollectionName is the path segment used to query ct
func (ct ContentType) CollectionName() string {
	if ct.Info.PluralName != "" {
		return ct.Info.PluralName
	}
	return ct.APIID
}

// ScalarFields returns the sorted names of non-relational attributes
func ScalarFields(ct *ContentType) []string {
	return attributeNames(ct, func(a Attribute) bool { return !a.IsRelation() })
}

// RelationFields returns the sorted names of relational attributes
func RelationFields(ct *ContentType) []string {
	return attributeNames(ct, Attribute.IsRelation)
}

func attributeNames(ct *ContentType, keep func(Attribute) bool) []string {
	if ct == nil {
		return nil
	}
	names := make([]string, 0, len(ct.Attributes))
	for name, attr := range ct.Attributes {
		if keep(attr) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// RelationTarget returns the content type the relational attribute field of ct points at
func RelationTarget(cts []ContentType, ct *ContentType, field string) (*ContentType, error) {
	if ct == nil {
		return nil, ErrContentTypeNotFound
	}
	attr, ok := ct.Attributes[field]
	if !ok || attr.Target == "" {
		return nil, fmt.Errorf("%w: %s.%s", ErrNotRelation, ct.CollectionName(), field)
	}
	target, ok := FindByUID(cts, attr.Target)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContentTypeNotFound, attr.Target)
	}
	return target, nil
}

// ResolvePath follows path, a chain of relation names starting at
// collection, and returns the content type at its end. An empty path
// resolves to the collection itself.
func ResolvePath(cts []ContentType, collection string, path []string) (*ContentType, error) {
	current, ok := FindContentType(cts, collection)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContentTypeNotFound, collection)
	}
	for _, field := range path {
		next, err := RelationTarget(cts, current, field)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

// VisitedUIDs returns the uids of collection and of every relation target
// along path. Segments that cannot be followed end the walk.
func VisitedUIDs(cts []ContentType, collection string, path []string) map[string]struct{} {
	visited := make(map[string]struct{})

	current, ok := FindContentType(cts, collection)
	if !ok {
		return visited
	}
	visited[current.UID] = struct{}{}

	for _, field := range path {
		attr, ok := current.Attributes[field]
		if !ok || attr.Target == "" {
			break
		}
		visited[attr.Target] = struct{}{}
		if current, ok = FindByUID(cts, attr.Target); !ok {
			break
		}
	}

	return visited
}

// RelationCandidates lists the relations that may be populated below path.
// Relations leading back to a content type already on the path are left out.
func RelationCandidates(cts []ContentType, collection string, path []string) ([]string, error) {
	ct, err := ResolvePath(cts, collection, path)
	if err != nil {
		return nil, err
	}

	// Only nested levels exclude visited types; the top level offers every relation.
	if len(path) == 0 {
		return RelationFields(ct), nil
	}

	visited := VisitedUIDs(cts, collection, path)
	var out []string
	for _, name := range RelationFields(ct) {
		if target := ct.Attributes[name].Target; target != "" {
			if _, seen := visited[target]; seen {
				continue
			}
		}
		out = append(out, name)
	}
	return out, nil
}
