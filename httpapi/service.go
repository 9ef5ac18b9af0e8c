// Package httpapi exposes the intake pipeline over HTTP: upload, record
// browsing, manifest and dataset downloads, plus the password-gated admin
// surface.
package httpapi

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/codexa/admin"
	"github.com/hazyhaar/codexa/idgen"
	"github.com/hazyhaar/codexa/ingest"
	"github.com/hazyhaar/codexa/kit"
	"github.com/hazyhaar/codexa/manifest"
)

// Service wires the HTTP surface over one ingester.
type Service struct {
	ing      *ingest.Ingester
	adm      *admin.Admin
	logger   *slog.Logger
	obsDB    *sql.DB // nil disables the heartbeat section of /v1/health
	sanitize *bluemonday.Policy
	reqIDGen idgen.Generator
}

// New creates the service. obsDB may be nil.
func New(ing *ingest.Ingester, adm *admin.Admin, logger *slog.Logger, obsDB *sql.DB) *Service {
	return &Service{
		ing:      ing,
		adm:      adm,
		logger:   logger,
		obsDB:    obsDB,
		sanitize: bluemonday.StrictPolicy(),
		reqIDGen: idgen.Prefixed("req_", idgen.Default),
	}
}

// RegisterHTTP registers all endpoints on the router.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Use(s.contextMiddleware)

	r.Post("/v1/ingest", s.handleIngest)
	r.Get("/v1/records", s.handleListRecords)
	r.Get("/v1/records/{digest}", s.handleGetRecord)
	r.Get("/v1/records/{digest}/content", s.handleRecordContent)
	r.Get("/v1/manifest", s.handleManifest)
	r.Get("/v1/dataset.jsonl", s.handleDataset)
	r.Get("/v1/uploaders/{id}", s.handleUploader)
	r.Get("/v1/health", s.handleHealth)

	r.Route("/v1/admin", func(ar chi.Router) {
		ar.Use(s.adminOnly)
		ar.Post("/clear", s.handleAdminClear)
		ar.Get("/index", s.handleAdminExportIndex)
		ar.Put("/index", s.handleAdminReplaceIndex)
		ar.Delete("/records/{digest}", s.handleAdminDeleteRecord)
		ar.Post("/records/{digest}/contract", s.handleAdminOverrideContract)
		ar.Post("/records/{digest}/view", s.handleAdminOverrideView)
		ar.Post("/recompute-tokens", s.handleAdminRecomputeTokens)
		ar.Post("/rebuild-metadata", s.handleAdminRebuildMetadata)
		ar.Post("/reclean", s.handleAdminReclean)
		ar.Get("/dataset.jsonl", s.handleDataset)
	})
}

// contextMiddleware enriches the request context with kit values so audit
// entries can correlate, and echoes the request ID back to the client.
func (s *Service) contextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		reqID := s.reqIDGen()
		ctx = kit.WithRequestID(ctx, reqID)
		ctx = kit.WithTransport(ctx, "http")
		ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)

		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminOnly gates a subtree behind the admin password, carried in the
// X-Admin-Password header.
func (s *Service) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.adm.Gate.Check(r.Header.Get("X-Admin-Password")); err != nil {
			status := http.StatusUnauthorized
			if err == admin.ErrDisabled {
				status = http.StatusForbidden
			}
			http.Error(w, err.Error(), status)
			return
		}
		ctx := kit.WithRole(r.Context(), "admin")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Service) manifestBuilder() *manifest.Builder {
	return manifest.NewBuilder(
		manifest.WithIDGenerator(s.ing.NewID),
		manifest.WithClock(s.ing.Now),
	)
}
