package jsonapi

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDocument(t *testing.T) {
	r := httptest.NewRequest("POST", "/article", strings.NewReader(`{
		"data": {
			"type": "article",
			"attributes": {"title": "Go"},
			"relationships": {
				"author": {"data": {"type": "person", "id": "p1"}}
			}
		}
	}`))

	doc, err := DecodeDocument(r)
	require.NoError(t, err)
	assert.Equal(t, "article", doc.Data.Type)
	assert.Equal(t, "Go", doc.Data.Attributes["title"])
	require.Contains(t, doc.Data.Relationships, "author")
	assert.Equal(t, "p1", doc.Data.Relationships["author"].Data.One.ID)
}

func TestDecodeDocumentErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty body", ``, "empty or truncated"},
		{"malformed", `{"data":`, "empty or truncated"},
		{"syntax error", `{"data"}`, "malformed JSON"},
		{"no data", `{"meta": {}}`, "no data member"},
		{"null data", `{"data": null}`, "no data member"},
		{"no type", `{"data": {"attributes": {}}}`, "no type member"},
		{"trailing document", `{"data": {"type": "a"}} {"data": {"type": "b"}}`, "more than one JSON document"},
		{"wrong field type", `{"data": {"type": "a", "attributes": []}}`, "invalid value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/article", strings.NewReader(tt.body))
			_, err := DecodeDocument(r)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDecodeDocumentBodyLimit(t *testing.T) {
	huge := `{"data": {"type": "article", "attributes": {"body": "` +
		strings.Repeat("x", maxBodySize) + `"}}}`

	r := httptest.NewRequest("POST", "/article", strings.NewReader(huge))
	_, err := DecodeDocument(r)
	require.Error(t, err)
}

func TestDecodeRelationshipDocument(t *testing.T) {
	r := httptest.NewRequest("PATCH", "/article/a1/relationships/tags", strings.NewReader(`{
		"data": [{"type": "tag", "id": "t1"}]
	}`))

	doc, err := DecodeRelationshipDocument(r)
	require.NoError(t, err)
	assert.True(t, doc.Data.Many)
	require.Len(t, doc.Data.List, 1)
}

func TestDecodeOperations(t *testing.T) {
	r := httptest.NewRequest("POST", "/operations", strings.NewReader(`{
		"atomic:operations": [{"op": "remove", "ref": {"type": "article", "id": "a1"}}]
	}`))

	req, err := DecodeOperations(r)
	require.NoError(t, err)
	require.Len(t, req.Operations, 1)
	assert.Equal(t, OpRemove, req.Operations[0].Op)
}
