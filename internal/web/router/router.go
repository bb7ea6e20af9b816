// Package router assembles the HTTP surface: middleware, the per-resource
// CRUD routes, and the atomic operations endpoint.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/keel-api/keel/internal/apierror"
	"github.com/keel-api/keel/internal/atomic"
	"github.com/keel-api/keel/internal/jsonapi"
	"github.com/keel-api/keel/internal/view"
	"github.com/keel-api/keel/internal/web/middleware"
)

// Options configures the assembled router
type Options struct {
	// AtomicPath mounts the atomic operations endpoint; empty disables it
	AtomicPath string

	Logger *zap.Logger
}

// Build wires the middleware chain around the resource routes. Every
// response, including middleware rejections and 404s, is a JSON:API
// document.
func Build(views *view.Views, coordinator *atomic.Coordinator, opts Options) http.Handler {
	r := chi.NewRouter()

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apiErr := apierror.BadRequest("unknown route " + req.URL.Path)
		apiErr.Status = http.StatusNotFound
		apiErr.Title = "Not found"
		_ = jsonapi.Render(w, apiErr.Status, apiErr.Document())
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apiErr := apierror.BadRequest(req.Method + " is not supported on " + req.URL.Path)
		apiErr.Status = http.StatusMethodNotAllowed
		apiErr.Title = "Method not allowed"
		_ = jsonapi.Render(w, apiErr.Status, apiErr.Document())
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Content negotiation covers the API routes only; health checks come
	// from probes that do not speak JSON:API
	r.Group(func(api chi.Router) {
		api.Use(middleware.ContentNegotiation())

		views.RegisterRoutes(api)

		if coordinator != nil && opts.AtomicPath != "" {
			api.Post(opts.AtomicPath, coordinator.Handler())
		}
	})

	chain := middleware.NewChain(
		middleware.RequestID(),
		middleware.Logging(opts.Logger),
		middleware.Recovery(opts.Logger),
	)
	return chain.Then(r)
}
