package datalayer

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keel-api/keel/internal/query"
	"github.com/keel-api/keel/internal/schema"
)

func TestGetCollectionIncludesToOne(t *testing.T) {
	layer, mock := newTestLayer(t)
	article := mustResolve(t, layer, "article")

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "articles"$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`SELECT .+ FROM "articles"$`).
		WillReturnRows(articleRows().
			AddRow("a1", "one", nil, "p1").
			AddRow("a2", "two", nil, "p1").
			AddRow("a3", "three", nil, nil))
	// One batched load per path segment; the shared author id appears once
	mock.ExpectQuery(`SELECT .+ FROM "people" WHERE "people"\."id" = ANY\(\$1\) ORDER BY "people"\."id"$`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("p1", "Ada"))

	_, _, included, err := layer.GetCollection(
		context.Background(), article, nil, nil, query.Page{},
		[][]string{{"author"}},
	)
	require.NoError(t, err)

	assert.Equal(t, 1, included.Len())
	assert.True(t, included.Has("person", "p1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDetailIncludesNestedPath(t *testing.T) {
	layer, mock := newTestLayer(t)
	article := mustResolve(t, layer, "article")

	mock.ExpectQuery(`SELECT .+ FROM "articles" WHERE "articles"\."id" = \$1$`).
		WithArgs("a1").
		WillReturnRows(articleRows().AddRow("a1", "Hello", nil, "p1"))
	// comments.article walks two segments
	mock.ExpectQuery(`SELECT .+ FROM "comments" WHERE "comments"\."article_id" = ANY\(\$1\) ORDER BY "comments"\."id"$`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text", "article_id"}).
			AddRow("c1", "hi", "a1").
			AddRow("c2", "hey", "a1"))
	mock.ExpectQuery(`SELECT .+ FROM "articles" WHERE "articles"\."id" = ANY\(\$1\) ORDER BY "articles"\."id"$`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(articleRows().AddRow("a1", "Hello", nil, "p1"))

	_, included, err := layer.GetDetail(context.Background(), article, "a1",
		[][]string{{"comments", "article"}})
	require.NoError(t, err)

	assert.Equal(t, 3, included.Len())
	assert.True(t, included.Has("comment", "c1"))
	assert.True(t, included.Has("comment", "c2"))
	assert.True(t, included.Has("article", "a1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDetailIncludesManyToMany(t *testing.T) {
	layer, mock := newTestLayer(t)
	article := mustResolve(t, layer, "article")

	mock.ExpectQuery(`SELECT .+ FROM "articles" WHERE "articles"\."id" = \$1$`).
		WithArgs("a1").
		WillReturnRows(articleRows().AddRow("a1", "Hello", nil, nil))
	mock.ExpectQuery(`SELECT .+ FROM "tags" WHERE "tags"\."id" IN \(SELECT "tag_id" FROM "article_tags" WHERE "article_id" = ANY\(\$1\)\) ORDER BY "tags"\."id"$`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow("t1", "go").
			AddRow("t2", "sql"))

	_, included, err := layer.GetDetail(context.Background(), article, "a1",
		[][]string{{"tags"}})
	require.NoError(t, err)

	assert.Equal(t, 2, included.Len())
	assert.True(t, included.Has("tag", "t1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncludesDeduplicateAcrossPaths(t *testing.T) {
	layer, mock := newTestLayer(t)
	comment := mustResolve(t, layer, "comment")

	mock.ExpectQuery(`SELECT .+ FROM "comments" WHERE "comments"\."id" = \$1$`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "text", "article_id"}).AddRow("c1", "hi", "a1"))
	// Both paths start at article; the article record is loaded per path
	// but included only once
	mock.ExpectQuery(`SELECT .+ FROM "articles" WHERE "articles"\."id" = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(articleRows().AddRow("a1", "Hello", nil, "p1"))
	mock.ExpectQuery(`SELECT .+ FROM "articles" WHERE "articles"\."id" = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(articleRows().AddRow("a1", "Hello", nil, "p1"))
	mock.ExpectQuery(`SELECT .+ FROM "people" WHERE "people"\."id" = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("p1", "Ada"))

	_, included, err := layer.GetDetail(context.Background(), comment, "c1",
		[][]string{{"article"}, {"article", "author"}})
	require.NoError(t, err)

	assert.Equal(t, 2, included.Len())
	assert.True(t, included.Has("article", "a1"))
	assert.True(t, included.Has("person", "p1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncludesStopOnEmptyLevel(t *testing.T) {
	layer, mock := newTestLayer(t)
	article := mustResolve(t, layer, "article")

	mock.ExpectQuery(`SELECT .+ FROM "articles" WHERE "articles"\."id" = \$1$`).
		WithArgs("a1").
		WillReturnRows(articleRows().AddRow("a1", "Hello", nil, "p1"))
	mock.ExpectQuery(`SELECT .+ FROM "comments" WHERE "comments"\."article_id" = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text", "article_id"}))

	// No comments: the article segment of the path is never queried
	_, included, err := layer.GetDetail(context.Background(), article, "a1",
		[][]string{{"comments", "article"}})
	require.NoError(t, err)
	assert.Equal(t, 0, included.Len())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncludesUnknownRelationship(t *testing.T) {
	layer, mock := newTestLayer(t)
	article := mustResolve(t, layer, "article")

	mock.ExpectQuery(`SELECT .+ FROM "articles" WHERE "articles"\."id" = \$1$`).
		WithArgs("a1").
		WillReturnRows(articleRows().AddRow("a1", "Hello", nil, nil))

	_, _, err := layer.GetDetail(context.Background(), article, "a1",
		[][]string{{"nope"}})
	assert.ErrorIs(t, err, schema.ErrUnknownRelationship)
}
