package query

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keel-api/keel/internal/apierror"
	"github.com/keel-api/keel/internal/filter"
	"github.com/keel-api/keel/internal/schema"
)

func testLimits() Limits {
	return Limits{
		PageSize:        25,
		MaxPageSize:     100,
		MaxIncludeDepth: 3,
	}
}

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	r := schema.NewRegistry()

	r.MustRegister(schema.NewResource("article", "articles").
		Attr("title", schema.TypeString).
		NullableAttr("body", schema.TypeText).
		ToOne("author", "person", "author_id").
		ToMany("comments", "comment", "article_id").
		MustBuild())

	r.MustRegister(schema.NewResource("person", "people").
		Attr("name", schema.TypeString).
		ToMany("articles", "article", "author_id").
		MustBuild())

	r.MustRegister(schema.NewResource("comment", "comments").
		Attr("text", schema.TypeText).
		ToOne("article", "article", "article_id").
		ToOne("author", "person", "author_id").
		MustBuild())

	require.NoError(t, r.ValidateAll())
	return r
}

func parseQuery(t *testing.T, rawQuery string) (*Params, error) {
	t.Helper()
	registry := testRegistry(t)
	resource, err := registry.Resolve("article")
	require.NoError(t, err)
	values, err := url.ParseQuery(rawQuery)
	require.NoError(t, err)
	return Parse(values, testLimits(), registry, resource)
}

func TestParseDefaults(t *testing.T) {
	params, err := parseQuery(t, "")
	require.NoError(t, err)

	assert.Nil(t, params.Filter)
	assert.Empty(t, params.Sort)
	assert.Empty(t, params.Include)
	assert.Equal(t, Page{Number: 1, Size: 25}, params.Page)
	assert.Empty(t, params.Fields)
}

func TestParseFilterTree(t *testing.T) {
	params, err := parseQuery(t, `filter=[{"name":"title","op":"eq","val":"Go"}]`)
	require.NoError(t, err)

	require.NotNil(t, params.Filter)
	assert.True(t, params.Filter.IsTerminal())
	assert.Equal(t, []string{"title"}, params.Filter.Path)
}

func TestParseFilterInvalid(t *testing.T) {
	_, err := parseQuery(t, `filter={"title":"Go"}`)
	require.Error(t, err)

	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, 400, apiErr.Status)
	assert.Equal(t, "filter", apiErr.Parameter)
}

func TestParseSimpleFilterShorthand(t *testing.T) {
	params, err := parseQuery(t, `filter[title]=Go&filter[body]=intro`)
	require.NoError(t, err)

	require.NotNil(t, params.Filter)
	assert.Equal(t, filter.LogicAnd, params.Filter.Logic)
	require.Len(t, params.Filter.Children, 2)

	// Shorthand entries are ordered by field name
	assert.Equal(t, []string{"body"}, params.Filter.Children[0].Path)
	assert.Equal(t, []string{"title"}, params.Filter.Children[1].Path)
	assert.Equal(t, filter.OpEq, params.Filter.Children[0].Op)
}

func TestParseFilterMerge(t *testing.T) {
	params, err := parseQuery(t, `filter=[{"name":"title","op":"ne","val":"x"}]&filter[body]=y`)
	require.NoError(t, err)

	require.NotNil(t, params.Filter)
	assert.Equal(t, filter.LogicAnd, params.Filter.Logic)
	assert.Len(t, params.Filter.Children, 2)
}

func TestParseSimpleFilterEmptyValue(t *testing.T) {
	_, err := parseQuery(t, `filter[title]=`)
	require.Error(t, err)

	apiErr, _ := apierror.As(err)
	assert.Equal(t, "filter[title]", apiErr.Parameter)
}

func TestParseSort(t *testing.T) {
	params, err := parseQuery(t, `sort=-title,body`)
	require.NoError(t, err)

	assert.Equal(t, []SortField{
		{Field: "title", Desc: true},
		{Field: "body"},
	}, params.Sort)
}

func TestParseSortRejectsRelationship(t *testing.T) {
	_, err := parseQuery(t, `sort=author`)
	require.Error(t, err)

	apiErr, _ := apierror.As(err)
	assert.Equal(t, "sort", apiErr.Parameter)
	assert.Contains(t, apiErr.Detail, "can't sort by relationship")
}

func TestParseSortRejectsUnknownField(t *testing.T) {
	_, err := parseQuery(t, `sort=color`)
	require.Error(t, err)

	apiErr, _ := apierror.As(err)
	assert.Contains(t, apiErr.Detail, `has no attribute "color"`)
}

func TestParseInclude(t *testing.T) {
	params, err := parseQuery(t, `include=author,comments.author`)
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"author"},
		{"comments", "author"},
	}, params.Include)
}

func TestParseIncludeUnknownRelationship(t *testing.T) {
	_, err := parseQuery(t, `include=reviewers`)
	require.Error(t, err)

	apiErr, _ := apierror.As(err)
	assert.Equal(t, "include", apiErr.Parameter)
	assert.Contains(t, apiErr.Detail, `has no relationship "reviewers"`)
}

func TestParseIncludeDepthLimit(t *testing.T) {
	// author.articles.comments.author is four segments, limit is three
	_, err := parseQuery(t, `include=author.articles.comments.author`)
	require.Error(t, err)

	apiErr, _ := apierror.As(err)
	assert.Contains(t, apiErr.Detail, "more than 3 relationships")
}

func TestParsePage(t *testing.T) {
	params, err := parseQuery(t, `page[number]=3&page[size]=10`)
	require.NoError(t, err)

	assert.Equal(t, Page{Number: 3, Size: 10}, params.Page)
	assert.Equal(t, 20, params.Page.Offset())
}

func TestParsePageErrors(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		parameter string
		detail    string
	}{
		{"not an integer", `page[size]=ten`, "page[size]", "not an integer"},
		{"zero number", `page[number]=0`, "page[number]", "must be 1 or greater"},
		{"negative size", `page[size]=-1`, "page[size]", "must not be negative"},
		{"disable not allowed", `page[size]=0`, "page[size]", "cannot be disabled"},
		{"over max", `page[size]=101`, "page[size]", "greater than 100"},
		{"unsupported", `page[offset]=5`, "page[offset]", "unsupported pagination parameter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseQuery(t, tt.query)
			require.Error(t, err)

			apiErr, ok := apierror.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.parameter, apiErr.Parameter)
			assert.Contains(t, apiErr.Detail, tt.detail)
		})
	}
}

func TestParsePageSizeZeroAllowed(t *testing.T) {
	registry := testRegistry(t)
	resource, err := registry.Resolve("article")
	require.NoError(t, err)

	limits := testLimits()
	limits.AllowDisablePagination = true

	values, _ := url.ParseQuery(`page[size]=0`)
	params, err := Parse(values, limits, registry, resource)
	require.NoError(t, err)
	assert.Equal(t, 0, params.Page.Size)
}

func TestParseFields(t *testing.T) {
	params, err := parseQuery(t, `fields[article]=title,author&fields[person]=name`)
	require.NoError(t, err)

	assert.Equal(t, []string{"title", "author"}, params.Fields["article"])
	assert.Equal(t, []string{"name"}, params.Fields["person"])
}

func TestParseFieldsEmptySet(t *testing.T) {
	params, err := parseQuery(t, `fields[article]=`)
	require.NoError(t, err)

	fields, ok := params.Fields["article"]
	require.True(t, ok)
	assert.Empty(t, fields)
}

func TestParseFieldsUnknownType(t *testing.T) {
	_, err := parseQuery(t, `fields[spaceship]=name`)
	require.Error(t, err)

	apiErr, _ := apierror.As(err)
	assert.Equal(t, "fields[spaceship]", apiErr.Parameter)
}

func TestParseFieldsUnknownField(t *testing.T) {
	_, err := parseQuery(t, `fields[article]=color`)
	require.Error(t, err)

	apiErr, _ := apierror.As(err)
	assert.Contains(t, apiErr.Detail, `has no field "color"`)
}

func TestFieldset(t *testing.T) {
	params := &Params{Fields: map[string][]string{"article": {"title"}}}

	allowed, restricted := params.Fieldset("article")
	assert.True(t, restricted)
	assert.Equal(t, []string{"title"}, allowed)

	_, restricted = params.Fieldset("person")
	assert.False(t, restricted)
}
