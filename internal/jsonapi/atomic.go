package jsonapi

import (
	"errors"
	"fmt"
)

// Atomic operations extension, https://jsonapi.org/ext/atomic/

// OperationCode is the `op` member of an atomic operation
type OperationCode string

const (
	OpAdd    OperationCode = "add"
	OpUpdate OperationCode = "update"
	OpRemove OperationCode = "remove"
)

// OperationRef targets a resource in an atomic operation. Exactly one of
// ID and Lid must be set. The optional Relationship member targets a
// relationship of the resource; relationship-level atomic operations are
// accepted in the document shape but rejected during validation because
// they are intentionally unsupported.
type OperationRef struct {
	Type         string `json:"type"`
	ID           string `json:"id,omitempty"`
	Lid          string `json:"lid,omitempty"`
	Relationship string `json:"relationship,omitempty"`
}

// Validate checks the ref member combinations allowed by the extension
func (r *OperationRef) Validate() error {
	if r.Type == "" {
		return errors.New("operation ref requires a type")
	}
	if (r.ID == "") == (r.Lid == "") {
		return errors.New("operation ref requires exactly one of id and lid")
	}
	return nil
}

// Operation is one entry of an atomic operations request
type Operation struct {
	Op   OperationCode  `json:"op"`
	Ref  *OperationRef  `json:"ref,omitempty"`
	Href string         `json:"href,omitempty"`
	Data *ResourceIn    `json:"data,omitempty"`
	Meta map[string]any `json:"meta,omitempty"`
}

// Validate checks the operation against the extension's shape requirements
func (o *Operation) Validate() error {
	switch o.Op {
	case OpAdd, OpUpdate, OpRemove:
	default:
		return fmt.Errorf("unknown operation code %q", string(o.Op))
	}

	if o.Href != "" {
		return errors.New("href operation targets are not supported, use ref")
	}
	if o.Ref != nil {
		if err := o.Ref.Validate(); err != nil {
			return err
		}
		if o.Ref.Relationship != "" {
			return errors.New("relationship operations are not supported")
		}
	}

	switch o.Op {
	case OpAdd:
		if o.Ref != nil {
			return errors.New("add operations must not carry a ref")
		}
		if o.Data == nil {
			return errors.New("add operations require a data member")
		}
		if o.Data.Type == "" {
			return errors.New("add operation data requires a type")
		}
	case OpUpdate:
		if o.Data == nil {
			return errors.New("update operations require a data member")
		}
		if o.Data.Type == "" {
			return errors.New("update operation data requires a type")
		}
		if o.Data.ID == "" && o.Data.Lid == "" && o.Ref == nil {
			return errors.New("update operations require an id or lid")
		}
	case OpRemove:
		if o.Ref == nil {
			return errors.New("remove operations require a ref")
		}
	}

	return nil
}

// ResourceType returns the resource type the operation targets
func (o *Operation) ResourceType() string {
	if o.Ref != nil {
		return o.Ref.Type
	}
	if o.Data != nil {
		return o.Data.Type
	}
	return ""
}

// TargetID returns the id or lid the operation addresses, preferring the
// ref over the data member. The second return reports whether the value is
// a lid.
func (o *Operation) TargetID() (value string, isLid bool) {
	if o.Ref != nil {
		if o.Ref.ID != "" {
			return o.Ref.ID, false
		}
		return o.Ref.Lid, true
	}
	if o.Data != nil {
		if o.Data.ID != "" {
			return o.Data.ID, false
		}
		return o.Data.Lid, true
	}
	return "", false
}

// OperationsRequest is the atomic extension request document
type OperationsRequest struct {
	Operations []Operation `json:"atomic:operations"`
}

// OperationsResponse is the atomic extension response document. Results
// holds one entry per operation in request order; an all-remove batch
// yields an empty array.
type OperationsResponse struct {
	Results []OperationResult `json:"atomic:results"`
	JSONAPI *VersionObject    `json:"jsonapi,omitempty"`
}

// OperationResult is one entry of an atomic response. Data is null for
// operations that produce no resource.
type OperationResult struct {
	Data *Resource      `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}
