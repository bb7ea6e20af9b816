package jsonapi

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"
)

// Render marshals payload and writes it with the JSON:API media type.
// Marshaling happens before any write so a failure never produces a
// partially written response.
func Render(w http.ResponseWriter, status int, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", MediaType)
	w.WriteHeader(status)
	_, err = w.Write(data)
	return err
}

// IsJSONAPIContentType reports whether the given Content-Type header value
// names the JSON:API media type without parameters. JSON:API requires
// servers to reject media type parameters on the request content type.
func IsJSONAPIContentType(value string) bool {
	mediaType, params, err := mime.ParseMediaType(value)
	if err != nil {
		return false
	}
	return mediaType == MediaType && len(params) == 0
}

// AcceptsJSONAPI reports whether an Accept header allows the JSON:API media
// type. An absent header accepts everything; at least one acceptable
// JSON:API entry must carry no media type parameters.
func AcceptsJSONAPI(accept string) bool {
	if accept == "" {
		return true
	}

	for _, part := range strings.Split(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		switch mediaType {
		case "*/*", "application/*":
			return true
		case MediaType:
			// q is the only parameter that does not disqualify the entry
			delete(params, "q")
			if len(params) == 0 {
				return true
			}
		}
	}
	return false
}
