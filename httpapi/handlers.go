package httpapi

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/codexa/catalog"
	"github.com/hazyhaar/codexa/ingest"
	"github.com/hazyhaar/codexa/kit"
	"github.com/hazyhaar/codexa/manifest"
	"github.com/hazyhaar/codexa/observability"
	"github.com/hazyhaar/codexa/safefile"
)

// handleIngest accepts a multipart upload. One or more "file" parts; form
// fields carry the contract and manual metadata. Manual free-text fields are
// HTML-stripped before they reach the index.
func (s *Service) handleIngest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.ing.Config.MaxFileBytes()); err != nil {
		http.Error(w, fmt.Sprintf("parse form: %v", err), http.StatusBadRequest)
		return
	}

	opts := ingest.Options{
		ContractKey: r.FormValue("contract"),
		UploaderID:  s.sanitize.Sanitize(r.FormValue("uploader_id")),
		Clean:       s.ing.Config.CleanOnUpload,
		PIIScrub:    s.ing.Config.PIIScrubDefault,
	}
	if v := r.FormValue("pii_scrub"); v != "" {
		opts.PIIScrub = v == "true" || v == "1"
	}
	opts.Manual = catalog.ManualMetadata{
		Language: s.sanitize.Sanitize(r.FormValue("language")),
		Genre:    s.sanitize.Sanitize(r.FormValue("genre")),
	}
	if tags := r.FormValue("tags"); tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			tag = s.sanitize.Sanitize(strings.TrimSpace(tag))
			if tag != "" {
				opts.Manual.Tags = append(opts.Manual.Tags, tag)
			}
		}
	}

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}

	var batch []ingest.BatchFile
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			http.Error(w, fmt.Sprintf("open part %s: %v", fh.Filename, err), http.StatusBadRequest)
			return
		}
		data, err := safefile.LimitedReadAll(f, s.ing.Config.MaxFileBytes())
		f.Close()
		if err != nil {
			http.Error(w, fmt.Sprintf("read part %s: %v", fh.Filename, err), http.StatusBadRequest)
			return
		}
		batch = append(batch, ingest.BatchFile{Name: fh.Filename, Data: data})
	}

	if len(batch) == 1 {
		res, err := s.ing.Ingest(r.Context(), batch[0].Name, batch[0].Data, opts)
		if err != nil {
			s.logger.Error("ingest", "request_id", kit.GetRequestID(r.Context()), "file", batch[0].Name, "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		status := http.StatusCreated
		if res.Status == catalog.StatusDuplicate {
			status = http.StatusConflict
		}
		s.writeJSON(w, status, res)
		return
	}

	results := s.ing.IngestBatch(r.Context(), batch, opts)
	s.writeJSON(w, http.StatusMultiStatus, results)
}

// handleListRecords returns all records, optionally filtered with the same
// query parameters as the manifest, sorted by original name.
func (s *Service) handleListRecords(w http.ResponseWriter, r *http.Request) {
	index, err := s.ing.Store.Load()
	if err != nil {
		s.logger.Error("load index", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	q := queryFromRequest(r)
	records := make([]catalog.Record, 0, len(index))
	for _, rec := range index {
		if q.Matches(rec) {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].OriginalName != records[j].OriginalName {
			return records[i].OriginalName < records[j].OriginalName
		}
		return records[i].Digest < records[j].Digest
	})
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"records": records,
	})
}

func (s *Service) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	digest := chi.URLParam(r, "digest")
	rec, ok, err := s.ing.Store.Get(digest)
	if err != nil {
		s.logger.Error("load index", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// handleRecordContent serves a record's cleaned text. Viewing is gated: the
// record's view override must be on, or the caller must present the admin
// password.
func (s *Service) handleRecordContent(w http.ResponseWriter, r *http.Request) {
	digest := chi.URLParam(r, "digest")
	rec, ok, err := s.ing.Store.Get(digest)
	if err != nil {
		s.logger.Error("load index", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	if !rec.ViewOverride && s.adm.Gate.Check(r.Header.Get("X-Admin-Password")) != nil {
		http.Error(w, "viewing disabled for this record", http.StatusForbidden)
		return
	}
	if !rec.HasCleanText() {
		http.Error(w, "no extracted text for this record", http.StatusNotFound)
		return
	}
	data, err := os.ReadFile(rec.CleanPath)
	if err != nil {
		s.logger.Error("read clean file", "digest", digest, "error", err)
		http.Error(w, "stored text unavailable", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(data)
}

func (s *Service) handleManifest(w http.ResponseWriter, r *http.Request) {
	index, err := s.ing.Store.Load()
	if err != nil {
		s.logger.Error("load index", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	start := time.Now()
	m := s.manifestBuilder().Build(index, queryFromRequest(r))
	if s.ing.Metrics != nil {
		s.ing.Metrics.RecordSimple(observability.MetricManifestBuildMs,
			float64(time.Since(start).Milliseconds()), "milliseconds")
	}
	s.writeJSON(w, http.StatusOK, m)
}

func (s *Service) handleDataset(w http.ResponseWriter, r *http.Request) {
	index, err := s.ing.Store.Load()
	if err != nil {
		s.logger.Error("load index", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/jsonl")
	w.Header().Set("Content-Disposition", `attachment; filename="dataset.jsonl"`)
	if _, _, err := manifest.WriteDataset(w, index); err != nil {
		s.logger.Error("dataset export", "error", err)
	}
}

// handleUploader returns an uploader's profile: their records and totals.
func (s *Service) handleUploader(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	index, err := s.ing.Store.Load()
	if err != nil {
		s.logger.Error("load index", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	var (
		records    []catalog.Record
		totalBytes int64
		totalToks  int
	)
	for _, rec := range index {
		if rec.UploaderID == id {
			records = append(records, rec)
			totalBytes += rec.SizeBytes
			totalToks += rec.Inferred.Tokens
		}
	}
	if len(records) == 0 {
		http.Error(w, "uploader not found", http.StatusNotFound)
		return
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].UploadedAt.Before(records[j].UploadedAt)
	})
	s.writeJSON(w, http.StatusOK, map[string]any{
		"uploader_id":      id,
		"files":            len(records),
		"total_size_bytes": totalBytes,
		"total_est_tokens": totalToks,
		"records":          records,
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Staleness threshold = 3x heartbeat interval.
	const stalenessThreshold = 45 * time.Second

	index, err := s.ing.Store.Load()
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error"})
		return
	}
	resp := map[string]any{
		"status":  "ok",
		"records": len(index),
	}
	if s.obsDB != nil {
		hb, err := observability.LatestHeartbeat(r.Context(), s.obsDB, observability.ServiceName, stalenessThreshold)
		if err == nil && hb != nil {
			resp["heartbeat"] = hb
			if !hb.Alive {
				resp["status"] = "degraded"
			}
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func queryFromRequest(r *http.Request) manifest.Query {
	return manifest.Query{
		Contract: r.URL.Query().Get("contract"),
		Language: r.URL.Query().Get("language"),
		Uploader: r.URL.Query().Get("uploader"),
	}
}
