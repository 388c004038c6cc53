package strapi

// blogSchema is a small content-type set: articles -> author -> articles and
// articles -> category, plus a plugin type that must be ignored.
func blogSchema() []ContentType {
	return []ContentType{
		{
			UID:   "api::article.article",
			APIID: "article",
			Kind:  KindCollectionType,
			Info:  Info{SingularName: "article", PluralName: "articles", DisplayName: "Article"},
			Attributes: map[string]Attribute{
				"title":    {Type: "string", Required: true},
				"slug":     {Type: "uid"},
				"body":     {Type: "richtext"},
				"author":   {Type: "relation", Relation: "manyToOne", Target: "api::author.author", InversedBy: "articles"},
				"category": {Type: "relation", Relation: "manyToOne", Target: "api::category.category"},
				"related":  {Type: "relation", Relation: "manyToMany", Target: "api::article.article"},
			},
		},
		{
			UID:   "api::author.author",
			APIID: "author",
			Kind:  KindCollectionType,
			Info:  Info{SingularName: "author", PluralName: "authors", DisplayName: "Author"},
			Attributes: map[string]Attribute{
				"name":     {Type: "string"},
				"articles": {Type: "relation", Relation: "oneToMany", Target: "api::article.article", MappedBy: "author"},
				"avatar":   {Type: "relation", Relation: "oneToOne", Target: "api::image.image"},
			},
		},
		{
			UID:   "api::category.category",
			APIID: "category",
			Kind:  KindCollectionType,
			Info:  Info{SingularName: "category", PluralName: "categories", DisplayName: "Category"},
			Attributes: map[string]Attribute{
				"name":   {Type: "string"},
				"parent": {Type: "relation", Relation: "manyToOne", Target: "api::category.category"},
			},
		},
		{
			UID:   "api::image.image",
			APIID: "image",
			Kind:  KindCollectionType,
			Info:  Info{SingularName: "image", PluralName: "images", DisplayName: "Image"},
			Attributes: map[string]Attribute{
				"url": {Type: "string"},
			},
		},
	}
}
