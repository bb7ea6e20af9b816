package atomic

import (
	"fmt"

	"github.com/keel-api/keel/internal/apierror"
)

// lidTable maps local ids declared by add operations to the server ids
// they were assigned. The table lives for one batch; forward references
// are errors because operations run strictly in request order.
type lidTable struct {
	ids map[string]string
}

func newLidTable() *lidTable {
	return &lidTable{ids: make(map[string]string)}
}

func (t *lidTable) define(lid, id string) error {
	if _, exists := t.ids[lid]; exists {
		return apierror.BadRequest(fmt.Sprintf("local id %q is declared more than once", lid))
	}
	t.ids[lid] = id
	return nil
}

func (t *lidTable) resolve(lid string) (string, error) {
	id, ok := t.ids[lid]
	if !ok {
		return "", apierror.BadRequest(
			fmt.Sprintf("local id %q is not defined by an earlier operation in the batch", lid))
	}
	return id, nil
}
