package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDuplicateAttribute(t *testing.T) {
	_, err := NewResource("article", "articles").
		Attr("title", TypeString).
		Attr("title", TypeText).
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared twice")
}

func TestBuilderDuplicateRelationship(t *testing.T) {
	_, err := NewResource("article", "articles").
		ToOne("author", "person", "author_id").
		ToOne("author", "person", "editor_id").
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared twice")
}

func TestBuilderAttributeRelationshipCollision(t *testing.T) {
	_, err := NewResource("article", "articles").
		Attr("author", TypeString).
		ToOne("author", "person", "author_id").
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collides")
}

func TestBuilderIDFieldOverride(t *testing.T) {
	s, err := NewResource("legacy", "legacy_rows").
		IDField("row_id").
		Attr("value", TypeInt).
		Build()
	require.NoError(t, err)
	assert.Equal(t, "row_id", s.IDField)
	assert.Equal(t, []string{"row_id", "value"}, s.Columns())
}

func TestBuilderClientID(t *testing.T) {
	s := NewResource("device", "devices").
		ClientID().
		Attr("label", TypeString).
		MustBuild()
	assert.True(t, s.ClientID)
}

func TestParseFieldType(t *testing.T) {
	for _, name := range []string{"string", "text", "int", "bigint", "float", "bool", "timestamp", "date", "uuid", "json"} {
		ft, err := ParseFieldType(name)
		require.NoError(t, err)
		assert.Equal(t, name, ft.String())
	}

	_, err := ParseFieldType("decimal")
	require.Error(t, err)
}
