package strapi

import "encoding/json"

// Content type kinds
const (
	KindCollectionType = "collectionType"
	KindSingleType     = "singleType"
)

// ContentType is the schema of one Strapi content type as returned by the
// content-type builder.
type ContentType struct {
	UID        string               `json:"uid"`
	APIID      string               `json:"apiID"`
	Kind       string               `json:"kind,omitempty"`
	Info       Info                 `json:"info"`
	Options    Options              `json:"options"`
	Attributes map[string]Attribute `json:"attributes,omitempty"`
}

// Info holds the naming of a content type
type Info struct {
	SingularName string `json:"singularName,omitempty"`
	PluralName   string `json:"pluralName,omitempty"`
	DisplayName  string `json:"displayName,omitempty"`
	Description  string `json:"description,omitempty"`
}

// Options holds content type options
type Options struct {
	DraftAndPublish *bool `json:"draftAndPublish,omitempty"`
}

// Attribute describes one field of a content type. Relation is set only for
// relational attributes.
type Attribute struct {
	Type       string `json:"type"`
	Required   bool   `json:"required,omitempty"`
	Unique     bool   `json:"unique,omitempty"`
	MinLength  *int   `json:"minLength,omitempty"`
	MaxLength  *int   `json:"maxLength,omitempty"`
	Relation   string `json:"relation,omitempty"`
	Target     string `json:"target,omitempty"`
	InversedBy string `json:"inversedBy,omitempty"`
	MappedBy   string `json:"mappedBy,omitempty"`
}

// IsRelation reports whether the attribute points at another content type
func (a Attribute) IsRelation() bool {
	return a.Relation != ""
}

// Response is the body of a successful collection query
type Response struct {
	Data json.RawMessage `json:"data"`
	Meta *Meta           `json:"meta,omitempty"`
}

// Meta carries response metadata
type Meta struct {
	Pagination *PaginationMeta `json:"pagination,omitempty"`
}

// PaginationMeta is the pagination block Strapi returns with page based pagination
type PaginationMeta struct {
	Page      int `json:"page"`
	PageSize  int `json:"pageSize"`
	PageCount int `json:"pageCount"`
	Total     int `json:"total"`
}
