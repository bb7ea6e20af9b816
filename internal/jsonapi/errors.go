package jsonapi

// ErrorSource locates the origin of an error in the request: a document
// pointer for body errors, a parameter name for query-string errors
type ErrorSource struct {
	Pointer   string `json:"pointer,omitempty"`
	Parameter string `json:"parameter,omitempty"`
}

// ErrorObject is a JSON:API error object
type ErrorObject struct {
	Status string         `json:"status"`
	Title  string         `json:"title"`
	Detail string         `json:"detail,omitempty"`
	Source *ErrorSource   `json:"source,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// ErrorDocument is a JSON:API top-level error document
type ErrorDocument struct {
	Errors  []*ErrorObject `json:"errors"`
	JSONAPI *VersionObject `json:"jsonapi,omitempty"`
}

// NewErrorDocument wraps error objects into a document
func NewErrorDocument(errs ...*ErrorObject) *ErrorDocument {
	return &ErrorDocument{
		Errors:  errs,
		JSONAPI: NewVersionObject(),
	}
}
