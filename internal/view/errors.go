package view

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/keel-api/keel/internal/apierror"
	"github.com/keel-api/keel/internal/datalayer"
	"github.com/keel-api/keel/internal/jsonapi"
	"github.com/keel-api/keel/internal/schema"
)

// toAPIError maps any error reaching the HTTP boundary onto an
// *apierror.Error. Filter-compile and data layer failures caused by the
// request are client errors; everything unrecognized is a 500.
func toAPIError(err error) *apierror.Error {
	if apiErr, ok := apierror.As(err); ok {
		return apiErr
	}

	switch {
	case errors.Is(err, datalayer.ErrNotFound):
		return apierror.RelatedNotFound("the requested object was not found").WithCause(err)
	case errors.Is(err, datalayer.ErrConflict):
		return apierror.Conflict("an object with this id already exists").WithCause(err)
	case errors.Is(err, datalayer.ErrForeignKeyViolation):
		return apierror.RelatedNotFound("a related object was not found").WithCause(err)
	case errors.Is(err, datalayer.ErrNotNullViolation),
		errors.Is(err, datalayer.ErrCheckViolation),
		errors.Is(err, datalayer.ErrRelationshipNotNullable):
		return &apierror.Error{
			Status: http.StatusUnprocessableEntity,
			Title:  "Validation error",
			Detail: err.Error(),
		}
	case errors.Is(err, datalayer.ErrLinkageCardinality):
		return apierror.BadRequest(err.Error()).WithCause(err)
	case errors.Is(err, schema.ErrUnknownResourceType),
		errors.Is(err, schema.ErrUnknownRelationship):
		return apierror.RelatedNotFound(err.Error()).WithCause(err)
	default:
		return apierror.Internal(err)
	}
}

// respondError renders an error as a JSON:API error document. When
// exception catching is disabled, unexpected errors propagate by panic so
// the host's recovery/error handling takes over; request-caused errors
// are still rendered.
func (v *Views) respondError(w http.ResponseWriter, err error) {
	apiErr := toAPIError(err)

	if apiErr.Status >= http.StatusInternalServerError {
		if !v.catchExceptions {
			panic(err)
		}
		v.logger.Error("request failed", zap.Error(err))
	} else {
		v.logger.Debug("request rejected", zap.Int("status", apiErr.Status), zap.Error(err))
	}

	if renderErr := jsonapi.Render(w, apiErr.Status, apiErr.Document()); renderErr != nil {
		v.logger.Error("failed to render error document", zap.Error(renderErr))
	}
}
