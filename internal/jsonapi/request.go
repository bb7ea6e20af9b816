package jsonapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxBodySize = 1 << 20 // 1 MB

// RelationshipIn is a relationship member of an inbound resource object
type RelationshipIn struct {
	Data Linkage `json:"data"`
}

// ResourceIn is an inbound resource object as it appears in create and
// update request bodies and in atomic operation data
type ResourceIn struct {
	Type          string                    `json:"type"`
	ID            string                    `json:"id,omitempty"`
	Lid           string                    `json:"lid,omitempty"`
	Attributes    map[string]any            `json:"attributes,omitempty"`
	Relationships map[string]RelationshipIn `json:"relationships,omitempty"`
}

// DocumentIn is an inbound top-level document carrying one resource object
type DocumentIn struct {
	Data *ResourceIn `json:"data"`
}

// RelationshipDocumentIn is an inbound document for relationship endpoints,
// carrying only linkage
type RelationshipDocumentIn struct {
	Data Linkage `json:"data"`
}

// DecodeDocument reads and decodes a single-resource request body. The
// decoder is strict: unknown top-level members and trailing data fail.
func DecodeDocument(r *http.Request) (*DocumentIn, error) {
	var doc DocumentIn
	if err := decodeBody(r, &doc); err != nil {
		return nil, err
	}
	if doc.Data == nil {
		return nil, errors.New("request document has no data member")
	}
	if doc.Data.Type == "" {
		return nil, errors.New("resource object has no type member")
	}
	return &doc, nil
}

// DecodeRelationshipDocument reads and decodes a relationship request body
func DecodeRelationshipDocument(r *http.Request) (*RelationshipDocumentIn, error) {
	var doc RelationshipDocumentIn
	if err := decodeBody(r, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DecodeOperations reads and decodes an atomic operations request body
func DecodeOperations(r *http.Request) (*OperationsRequest, error) {
	var req OperationsRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func decodeBody(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodySize)

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		return rewriteDecodeError(err)
	}

	// Reject trailing content after the document
	if decoder.More() {
		return errors.New("request body contains more than one JSON document")
	}
	return nil
}

// rewriteDecodeError turns encoding/json errors into messages usable in a
// client-facing error document
func rewriteDecodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Errorf("request body contains malformed JSON at offset %d", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		if typeErr.Field != "" {
			return fmt.Errorf("request body has an invalid value for field %q", typeErr.Field)
		}
		return fmt.Errorf("request body has an invalid value at offset %d", typeErr.Offset)
	case errors.As(err, &maxBytesErr):
		return fmt.Errorf("request body exceeds %d bytes", maxBytesErr.Limit)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return errors.New("request body is empty or truncated")
	default:
		if strings.Contains(err.Error(), "relationship linkage") {
			return err
		}
		return fmt.Errorf("request body could not be decoded: %w", err)
	}
}
