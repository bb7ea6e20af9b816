// Package view orchestrates single resource operations: it parses and
// validates the request, invokes the data layer, and assembles the
// JSON:API response document.
package view

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/keel-api/keel/internal/apierror"
	"github.com/keel-api/keel/internal/datalayer"
	"github.com/keel-api/keel/internal/filter"
	"github.com/keel-api/keel/internal/jsonapi"
	"github.com/keel-api/keel/internal/query"
	"github.com/keel-api/keel/internal/schema"
)

// Views serves the CRUD and relationship endpoints for every registered
// resource type
type Views struct {
	registry *schema.Registry
	dl       datalayer.DataLayer
	compiler *filter.Compiler
	limits   query.Limits
	counts   CountInvalidator
	logger   *zap.Logger

	catchExceptions bool
}

// CountInvalidator drops cached collection totals after a mutation. The
// read-through side of the cache lives in the data layer.
type CountInvalidator interface {
	Invalidate(ctx context.Context, resourceType string) error
}

// Options configures optional collaborators of the view layer
type Options struct {
	Counts          CountInvalidator
	Logger          *zap.Logger
	CatchExceptions bool
}

// NewViews creates the view layer for a registry and data layer
func NewViews(registry *schema.Registry, dl datalayer.DataLayer, compiler *filter.Compiler, limits query.Limits, opts Options) *Views {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Views{
		registry:        registry,
		dl:              dl,
		compiler:        compiler,
		limits:          limits,
		counts:          opts.Counts,
		logger:          logger,
		catchExceptions: opts.CatchExceptions,
	}
}

// Registry returns the schema registry the views serve
func (v *Views) Registry() *schema.Registry {
	return v.registry
}

// DataLayer returns the configured data layer
func (v *Views) DataLayer() datalayer.DataLayer {
	return v.dl
}

// RegisterRoutes mounts list/detail/relationship routes for every
// registered resource type
func (v *Views) RegisterRoutes(r chi.Router) {
	for _, resourceType := range v.registry.Types() {
		resource, err := v.registry.Resolve(resourceType)
		if err != nil {
			continue
		}
		v.mountResource(r, resource)
	}
}

func (v *Views) mountResource(r chi.Router, resource *schema.ResourceSchema) {
	base := "/" + resource.Type
	r.Get(base, v.handleList(resource))
	r.Post(base, v.handleCreate(resource))
	r.Get(base+"/{id}", v.handleDetail(resource))
	r.Patch(base+"/{id}", v.handleUpdate(resource))
	r.Delete(base+"/{id}", v.handleDelete(resource))
	r.Get(base+"/{id}/relationships/{relationship}", v.handleGetRelationship(resource))
	r.Patch(base+"/{id}/relationships/{relationship}", v.handlePatchRelationship(resource))
	r.Get(base+"/{id}/{relationship}", v.handleRelated(resource))
}

func (v *Views) handleList(resource *schema.ResourceSchema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := query.Parse(r.URL.Query(), v.limits, v.registry, resource)
		if err != nil {
			v.respondError(w, err)
			return
		}

		predicate, err := v.compiler.Compile(params.Filter, resource)
		if err != nil {
			v.respondError(w, apierror.InvalidFilters(err.Error()).WithCause(err))
			return
		}

		total, records, included, err := v.dl.GetCollection(
			r.Context(), resource, predicate, params.Sort, params.Page, params.Include)
		if err != nil {
			v.respondError(w, err)
			return
		}

		data := make([]*jsonapi.Resource, len(records))
		for i, record := range records {
			data[i] = v.SerializeResource(resource, record, params.Fields)
		}

		doc := &jsonapi.Document{
			Data:     data,
			Included: v.serializeIncluded(included, params.Fields),
			Meta:     collectionMeta(total, params.Page),
			Links:    collectionLinks(r.URL, total, params.Page),
			JSONAPI:  jsonapi.NewVersionObject(),
		}
		v.render(w, http.StatusOK, doc)
	}
}

func (v *Views) handleDetail(resource *schema.ResourceSchema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		params, err := query.Parse(r.URL.Query(), v.limits, v.registry, resource)
		if err != nil {
			v.respondError(w, err)
			return
		}

		record, included, err := v.dl.GetDetail(r.Context(), resource, id, params.Include)
		if err != nil {
			if datalayer.IsNotFound(err) {
				v.respondError(w, apierror.NotFound(resource.Type, id).WithCause(err))
				return
			}
			v.respondError(w, err)
			return
		}

		doc := &jsonapi.Document{
			Data:     v.SerializeResource(resource, record, params.Fields),
			Included: v.serializeIncluded(included, params.Fields),
			Links:    &jsonapi.Links{Self: r.URL.RequestURI()},
			JSONAPI:  jsonapi.NewVersionObject(),
		}
		v.render(w, http.StatusOK, doc)
	}
}

func (v *Views) handleCreate(resource *schema.ResourceSchema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := jsonapi.DecodeDocument(r)
		if err != nil {
			v.respondError(w, apierror.BadRequest(err.Error()).WithCause(err))
			return
		}

		record, err := v.CreateResource(r.Context(), v.dl, resource, doc.Data, nil)
		if err != nil {
			v.respondError(w, err)
			return
		}
		v.invalidateCount(r.Context(), resource.Type)

		out := &jsonapi.Document{
			Data:    v.SerializeResource(resource, record, nil),
			JSONAPI: jsonapi.NewVersionObject(),
		}
		v.render(w, http.StatusCreated, out)
	}
}

func (v *Views) handleUpdate(resource *schema.ResourceSchema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		doc, err := jsonapi.DecodeDocument(r)
		if err != nil {
			v.respondError(w, apierror.BadRequest(err.Error()).WithCause(err))
			return
		}
		if doc.Data.ID != "" && doc.Data.ID != id {
			v.respondError(w, apierror.Conflict(
				fmt.Sprintf("document id %q does not match URL id %q", doc.Data.ID, id)))
			return
		}

		record, err := v.UpdateResource(r.Context(), v.dl, resource, id, doc.Data, nil)
		if err != nil {
			v.respondError(w, err)
			return
		}

		out := &jsonapi.Document{
			Data:    v.SerializeResource(resource, record, nil),
			JSONAPI: jsonapi.NewVersionObject(),
		}
		v.render(w, http.StatusOK, out)
	}
}

func (v *Views) handleDelete(resource *schema.ResourceSchema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := v.DeleteResource(r.Context(), v.dl, resource, id); err != nil {
			v.respondError(w, err)
			return
		}
		v.invalidateCount(r.Context(), resource.Type)

		w.WriteHeader(http.StatusNoContent)
	}
}

func (v *Views) handleGetRelationship(resource *schema.ResourceSchema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		relationship := chi.URLParam(r, "relationship")

		linkage, err := v.dl.GetRelationship(r.Context(), resource, id, relationship)
		if err != nil {
			v.respondError(w, err)
			return
		}

		doc := &jsonapi.Document{
			Data:    linkageToWire(linkage),
			Links:   &jsonapi.Links{Self: r.URL.RequestURI()},
			JSONAPI: jsonapi.NewVersionObject(),
		}
		v.render(w, http.StatusOK, doc)
	}
}

func (v *Views) handlePatchRelationship(resource *schema.ResourceSchema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		relationship := chi.URLParam(r, "relationship")

		rel, err := v.registry.ResolveRelationship(resource.Type, relationship)
		if err != nil {
			v.respondError(w, err)
			return
		}

		doc, err := jsonapi.DecodeRelationshipDocument(r)
		if err != nil {
			v.respondError(w, apierror.BadRequest(err.Error()).WithCause(err))
			return
		}

		linkage, err := convertLinkage(rel, doc.Data, "/data", nil)
		if err != nil {
			v.respondError(w, err)
			return
		}

		if err := v.dl.UpdateRelationship(r.Context(), resource, id, relationship, linkage); err != nil {
			v.respondError(w, err)
			return
		}

		// Re-read so the response reflects post-mutation state
		updated, err := v.dl.GetRelationship(r.Context(), resource, id, relationship)
		if err != nil {
			v.respondError(w, err)
			return
		}

		out := &jsonapi.Document{
			Data:    linkageToWire(updated),
			Links:   &jsonapi.Links{Self: r.URL.RequestURI()},
			JSONAPI: jsonapi.NewVersionObject(),
		}
		v.render(w, http.StatusOK, out)
	}
}

func (v *Views) handleRelated(resource *schema.ResourceSchema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		relationship := chi.URLParam(r, "relationship")

		rel, err := v.registry.ResolveRelationship(resource.Type, relationship)
		if err != nil {
			v.respondError(w, err)
			return
		}
		target, err := v.registry.Resolve(rel.Target)
		if err != nil {
			v.respondError(w, err)
			return
		}

		records, err := v.dl.GetRelated(r.Context(), resource, id, relationship)
		if err != nil {
			v.respondError(w, err)
			return
		}

		var data any
		if rel.Kind == schema.ToOne {
			if len(records) == 0 {
				data = (*jsonapi.Resource)(nil)
			} else {
				data = v.SerializeResource(target, records[0], nil)
			}
		} else {
			out := make([]*jsonapi.Resource, len(records))
			for i, record := range records {
				out[i] = v.SerializeResource(target, record, nil)
			}
			data = out
		}

		doc := &jsonapi.Document{
			Data:    data,
			Links:   &jsonapi.Links{Self: r.URL.RequestURI()},
			JSONAPI: jsonapi.NewVersionObject(),
		}
		v.render(w, http.StatusOK, doc)
	}
}

// CreateResource validates an inbound resource object and persists it
// through the given data layer. The layer may be transaction-bound when
// called from the atomic coordinator; resolve maps lids in that case.
func (v *Views) CreateResource(
	ctx context.Context,
	dl datalayer.DataLayer,
	resource *schema.ResourceSchema,
	in *jsonapi.ResourceIn,
	resolve LidResolver,
) (datalayer.Record, error) {
	if in.Type != resource.Type {
		return nil, apierror.Conflict(
			fmt.Sprintf("document type %q does not match resource type %q", in.Type, resource.Type))
	}

	attrs, err := validateAttributes(resource, in.Attributes)
	if err != nil {
		return nil, err
	}

	if in.ID != "" {
		if !resource.ClientID {
			return nil, apierror.Forbidden(
				fmt.Sprintf("%s does not accept client-generated ids", resource.Type))
		}
		attrs[resource.IDField] = in.ID
	}

	rels, err := resolveRelationships(resource, in.Relationships, resolve)
	if err != nil {
		return nil, err
	}

	record, err := dl.Create(ctx, resource, attrs, rels)
	if err != nil {
		return nil, toAPIError(err)
	}
	return record, nil
}

// UpdateResource validates an inbound resource object and applies it as a
// partial update
func (v *Views) UpdateResource(
	ctx context.Context,
	dl datalayer.DataLayer,
	resource *schema.ResourceSchema,
	id string,
	in *jsonapi.ResourceIn,
	resolve LidResolver,
) (datalayer.Record, error) {
	if in.Type != resource.Type {
		return nil, apierror.Conflict(
			fmt.Sprintf("document type %q does not match resource type %q", in.Type, resource.Type))
	}

	attrs, err := validateAttributes(resource, in.Attributes)
	if err != nil {
		return nil, err
	}
	rels, err := resolveRelationships(resource, in.Relationships, resolve)
	if err != nil {
		return nil, err
	}

	record, err := dl.Update(ctx, resource, id, attrs, rels)
	if err != nil {
		if datalayer.IsNotFound(err) {
			return nil, apierror.NotFound(resource.Type, id).WithCause(err)
		}
		return nil, toAPIError(err)
	}
	return record, nil
}

// DeleteResource removes one resource
func (v *Views) DeleteResource(ctx context.Context, dl datalayer.DataLayer, resource *schema.ResourceSchema, id string) error {
	if err := dl.Delete(ctx, resource, id); err != nil {
		if datalayer.IsNotFound(err) {
			return apierror.NotFound(resource.Type, id).WithCause(err)
		}
		return toAPIError(err)
	}
	return nil
}

// InvalidateCounts drops cached totals for the given types, e.g. after an
// atomic batch commits
func (v *Views) InvalidateCounts(ctx context.Context, resourceTypes []string) {
	for _, resourceType := range resourceTypes {
		v.invalidateCount(ctx, resourceType)
	}
}

func (v *Views) invalidateCount(ctx context.Context, resourceType string) {
	if v.counts == nil {
		return
	}
	if err := v.counts.Invalidate(ctx, resourceType); err != nil {
		v.logger.Warn("count cache invalidation failed", zap.String("resource", resourceType), zap.Error(err))
	}
}

func (v *Views) render(w http.ResponseWriter, status int, payload any) {
	if err := jsonapi.Render(w, status, payload); err != nil {
		v.logger.Error("failed to render response", zap.Error(err))
	}
}

func linkageToWire(linkage datalayer.Linkage) *jsonapi.Linkage {
	if linkage.Many {
		refs := make([]jsonapi.IdentifierRef, len(linkage.List))
		for i, ref := range linkage.List {
			refs[i] = jsonapi.IdentifierRef{Type: ref.Type, ID: ref.ID}
		}
		return jsonapi.ToManyLinkage(refs)
	}
	if linkage.One == nil {
		return jsonapi.ToOneLinkage(nil)
	}
	return jsonapi.ToOneLinkage(&jsonapi.IdentifierRef{Type: linkage.One.Type, ID: linkage.One.ID})
}
