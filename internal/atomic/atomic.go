// Package atomic implements the JSON:API atomic operations extension:
// a batch of add/update/remove operations executed in request order
// inside one database transaction, with local id (lid) references from
// later operations to resources created earlier in the same batch.
package atomic

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/keel-api/keel/internal/apierror"
	"github.com/keel-api/keel/internal/datalayer"
	"github.com/keel-api/keel/internal/jsonapi"
	"github.com/keel-api/keel/internal/schema"
	"github.com/keel-api/keel/internal/view"
)

// metaOperationIndex marks which batch entry an error document refers to
const metaOperationIndex = "operationIndex"

// Coordinator executes atomic operation batches through the view layer's
// resource operations, all inside a single transaction
type Coordinator struct {
	views  *view.Views
	dl     datalayer.DataLayer
	logger *zap.Logger
}

// NewCoordinator wires the coordinator. The data layer must support
// transactions; batches without rollback cannot be atomic.
func NewCoordinator(views *view.Views, logger *zap.Logger) (*Coordinator, error) {
	dl := views.DataLayer()
	if !dl.SupportsTransactions() {
		return nil, datalayer.ErrTransactionUnsupported
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{views: views, dl: dl, logger: logger}, nil
}

// Handler serves POST requests carrying an atomic:operations document
func (c *Coordinator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := jsonapi.DecodeOperations(r)
		if err != nil {
			c.respondError(w, apierror.BadRequest(err.Error()).WithCause(err))
			return
		}
		if len(req.Operations) == 0 {
			c.respondError(w, apierror.BadRequest("an atomic batch requires at least one operation"))
			return
		}

		results, touched, err := c.Execute(r.Context(), req.Operations)
		if err != nil {
			c.respondError(w, err)
			return
		}
		c.views.InvalidateCounts(r.Context(), touched)

		resp := &jsonapi.OperationsResponse{
			Results: results,
			JSONAPI: jsonapi.NewVersionObject(),
		}
		if err := jsonapi.Render(w, http.StatusOK, resp); err != nil {
			c.logger.Error("failed to render atomic response", zap.Error(err))
		}
	}
}

// Execute runs the batch in order inside one transaction. Any failure
// rolls back every operation; the returned error carries the index of the
// operation that failed. On success it returns one result per operation
// (empty when no operation produced a resource) and the resource types
// the batch mutated.
func (c *Coordinator) Execute(ctx context.Context, ops []jsonapi.Operation) ([]jsonapi.OperationResult, []string, error) {
	// Validate shape up front so a malformed trailing operation never
	// starts a transaction
	for i := range ops {
		if err := ops[i].Validate(); err != nil {
			return nil, nil, atOperation(apierror.BadRequest(err.Error()), i)
		}
	}

	results := make([]jsonapi.OperationResult, len(ops))
	producedData := false
	touched := make(map[string]struct{})
	lids := newLidTable()

	err := c.dl.WithTransaction(ctx, func(tx datalayer.DataLayer) error {
		for i := range ops {
			op := &ops[i]

			resource, err := c.views.Registry().Resolve(op.ResourceType())
			if err != nil {
				return atOperation(
					apierror.BadRequest(fmt.Sprintf("unknown resource type %q", op.ResourceType())).WithCause(err), i)
			}

			result, err := c.executeOne(ctx, tx, resource, op, lids)
			if err != nil {
				return atOperation(err, i)
			}

			results[i] = result
			if result.Data != nil {
				producedData = true
			}
			touched[resource.Type] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	// A batch where nothing produced a resource, e.g. all removes,
	// answers with an empty results array
	if !producedData {
		results = []jsonapi.OperationResult{}
	}

	types := make([]string, 0, len(touched))
	for resourceType := range touched {
		types = append(types, resourceType)
	}
	sort.Strings(types)
	return results, types, nil
}

func (c *Coordinator) executeOne(
	ctx context.Context,
	tx datalayer.DataLayer,
	resource *schema.ResourceSchema,
	op *jsonapi.Operation,
	lids *lidTable,
) (jsonapi.OperationResult, error) {
	switch op.Op {
	case jsonapi.OpAdd:
		record, err := c.views.CreateResource(ctx, tx, resource, op.Data, lids.resolve)
		if err != nil {
			return jsonapi.OperationResult{}, err
		}
		if op.Data.Lid != "" {
			if err := lids.define(op.Data.Lid, recordID(resource, record)); err != nil {
				return jsonapi.OperationResult{}, err
			}
		}
		return jsonapi.OperationResult{Data: c.views.SerializeResource(resource, record, nil)}, nil

	case jsonapi.OpUpdate:
		id, err := c.targetID(op, lids)
		if err != nil {
			return jsonapi.OperationResult{}, err
		}
		record, err := c.views.UpdateResource(ctx, tx, resource, id, op.Data, lids.resolve)
		if err != nil {
			return jsonapi.OperationResult{}, err
		}
		return jsonapi.OperationResult{Data: c.views.SerializeResource(resource, record, nil)}, nil

	case jsonapi.OpRemove:
		id, err := c.targetID(op, lids)
		if err != nil {
			return jsonapi.OperationResult{}, err
		}
		if err := c.views.DeleteResource(ctx, tx, resource, id); err != nil {
			return jsonapi.OperationResult{}, err
		}
		return jsonapi.OperationResult{}, nil
	}

	return jsonapi.OperationResult{}, apierror.BadRequest(fmt.Sprintf("unknown operation code %q", op.Op))
}

// targetID resolves the id an update or remove addresses, translating a
// lid through the batch's lid table
func (c *Coordinator) targetID(op *jsonapi.Operation, lids *lidTable) (string, error) {
	value, isLid := op.TargetID()
	if value == "" {
		return "", apierror.BadRequest("operation does not identify a resource")
	}
	if !isLid {
		return value, nil
	}
	return lids.resolve(value)
}

func (c *Coordinator) respondError(w http.ResponseWriter, err error) {
	apiErr, ok := apierror.As(err)
	if !ok {
		c.logger.Error("atomic batch failed", zap.Error(err))
		apiErr = apierror.Internal(err)
	}
	if renderErr := jsonapi.Render(w, apiErr.Status, apiErr.Document()); renderErr != nil {
		c.logger.Error("failed to render error response", zap.Error(renderErr))
	}
}

// atOperation annotates an error with the index of the failing operation
func atOperation(err error, index int) error {
	if apiErr, ok := apierror.As(err); ok {
		return apiErr.WithMeta(metaOperationIndex, index)
	}
	return apierror.Internal(err).WithMeta(metaOperationIndex, index)
}

func recordID(resource *schema.ResourceSchema, record datalayer.Record) string {
	if v, ok := record[resource.IDField]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}
