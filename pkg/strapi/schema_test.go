package strapi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindContentType(t *testing.T) {
	cts := blogSchema()

	ct, ok := FindContentType(cts, "articles")
	require.True(t, ok)
	assert.Equal(t, "api::article.article", ct.UID)

	ct, ok = FindContentType(cts, "author")
	require.True(t, ok, "apiID should match too")
	assert.Equal(t, "authors", ct.CollectionName())

	_, ok = FindContentType(cts, "")
	assert.False(t, ok)
	_, ok = FindContentType(cts, "tags")
	assert.False(t, ok)
}

func TestScalarAndRelationFields(t *testing.T) {
	ct, _ := FindContentType(blogSchema(), "articles")

	assert.Equal(t, []string{"body", "slug", "title"}, ScalarFields(ct))
	assert.Equal(t, []string{"author", "category", "related"}, RelationFields(ct))
	assert.Nil(t, ScalarFields(nil))
}

func TestResolvePath(t *testing.T) {
	cts := blogSchema()

	tests := []struct {
		name    string
		path    []string
		wantUID string
		wantErr error
	}{
		{"root", nil, "api::article.article", nil},
		{"one level", []string{"author"}, "api::author.author", nil},
		{"two levels", []string{"author", "avatar"}, "api::image.image", nil},
		{"scalar segment", []string{"title"}, "", ErrNotRelation},
		{"unknown segment", []string{"author", "nope"}, "", ErrNotRelation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := ResolvePath(cts, "articles", tt.path)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUID, ct.UID)
		})
	}

	_, err := ResolvePath(cts, "tags", nil)
	assert.True(t, errors.Is(err, ErrContentTypeNotFound))
}

func TestRelationTargetMissingType(t *testing.T) {
	cts := blogSchema()[:1]
	_, err := RelationTarget(cts, &cts[0], "author")
	assert.True(t, errors.Is(err, ErrContentTypeNotFound))
}

func TestRelationCandidates(t *testing.T) {
	cts := blogSchema()

	top, err := RelationCandidates(cts, "articles", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"author", "category", "related"}, top)

	// author.articles leads back to articles and is excluded
	nested, err := RelationCandidates(cts, "articles", []string{"author"})
	require.NoError(t, err)
	assert.Equal(t, []string{"avatar"}, nested)

	// category.parent points at category itself, which is already visited
	nested, err = RelationCandidates(cts, "articles", []string{"category"})
	require.NoError(t, err)
	assert.Empty(t, nested)

	_, err = RelationCandidates(cts, "articles", []string{"title"})
	assert.Error(t, err)
}

func TestVisitedUIDs(t *testing.T) {
	visited := VisitedUIDs(blogSchema(), "articles", []string{"author", "avatar"})
	assert.Len(t, visited, 3)
	assert.Contains(t, visited, "api::image.image")

	assert.Empty(t, VisitedUIDs(blogSchema(), "missing", nil))
}
