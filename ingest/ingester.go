// Package ingest orchestrates the intake pipeline: dedupe by content digest,
// store the raw upload, extract and clean text, infer metadata, and record
// everything in the catalog index.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/codexa/catalog"
	"github.com/hazyhaar/codexa/cleanse"
	"github.com/hazyhaar/codexa/docpipe"
	"github.com/hazyhaar/codexa/idgen"
	"github.com/hazyhaar/codexa/infer"
	"github.com/hazyhaar/codexa/observability"
	"github.com/hazyhaar/codexa/safefile"
)

// Ingester is the main pipeline orchestrator.
type Ingester struct {
	Config  *Config
	Store   *catalog.Store
	Pipe    *docpipe.Registry
	Inferer *infer.Inferer
	Audit   *observability.AuditLogger
	Metrics *observability.MetricsManager
	Events  *observability.EventLogger
	Logger  *slog.Logger
	NewID   idgen.Generator
	Now     func() time.Time

	// Serializes index read-modify-write cycles within this process.
	mu sync.Mutex
}

// IngesterOption configures an Ingester.
type IngesterOption func(*Ingester)

// WithAudit sets the audit logger.
func WithAudit(a *observability.AuditLogger) IngesterOption {
	return func(ing *Ingester) { ing.Audit = a }
}

// WithMetrics sets the metrics manager.
func WithMetrics(m *observability.MetricsManager) IngesterOption {
	return func(ing *Ingester) { ing.Metrics = m }
}

// WithEvents sets the event logger.
func WithEvents(e *observability.EventLogger) IngesterOption {
	return func(ing *Ingester) { ing.Events = e }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) IngesterOption {
	return func(ing *Ingester) { ing.Logger = l }
}

// WithIDGenerator sets the ID generator for manifest IDs.
func WithIDGenerator(g idgen.Generator) IngesterOption {
	return func(ing *Ingester) { ing.NewID = g }
}

// WithClock sets the timestamp source used for storage names and records.
func WithClock(now func() time.Time) IngesterOption {
	return func(ing *Ingester) { ing.Now = now }
}

// NewIngester creates a fully wired ingester and ensures the storage
// directories exist.
func NewIngester(cfg *Config, opts ...IngesterOption) (*Ingester, error) {
	caps := docpipe.AllCapabilities()
	if len(cfg.Capabilities) > 0 {
		caps = docpipe.Capabilities{}
		for _, c := range cfg.Capabilities {
			caps[docpipe.Capability(c)] = true
		}
	}
	ing := &Ingester{
		Config:  cfg,
		Store:   catalog.NewStore(cfg.IndexPath),
		Pipe:    docpipe.New(docpipe.Config{Capabilities: caps, MaxFileSize: cfg.MaxFileBytes()}),
		Inferer: infer.New(),
		Logger:  slog.Default(),
		NewID:   idgen.Prefixed("man_", idgen.Default),
		Now:     time.Now,
	}
	for _, o := range opts {
		o(ing)
	}
	for _, dir := range []string{cfg.OriginalDir(), cfg.StandardDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	return ing, nil
}

// Close releases observability resources.
func (ing *Ingester) Close() error {
	if ing.Audit != nil {
		ing.Audit.Close()
	}
	if ing.Metrics != nil {
		ing.Metrics.Close()
	}
	return nil
}

// Options are the per-upload knobs.
type Options struct {
	ContractKey string
	Manual      catalog.ManualMetadata
	UploaderID  string
	Clean       bool
	PIIScrub    bool
}

// Result reports one pipeline run. Duplicate is transient: it is returned to
// the caller but never written to the index.
type Result struct {
	Digest    string             `json:"digest"`
	Status    string             `json:"status"`
	Record    *catalog.Record    `json:"record,omitempty"`
	Duplicate *DuplicateReport   `json:"duplicate,omitempty"`
	Warnings  []string           `json:"warnings,omitempty"`
}

// DuplicateReport points a rejected upload at the record that already owns
// its content.
type DuplicateReport struct {
	AttemptedName string    `json:"attempted_name"`
	ExistingName  string    `json:"existing_name"`
	FirstSeen     time.Time `json:"first_seen"`
}

// Ingest runs the full pipeline for a single upload:
//  1. Hash and dedupe against the index
//  2. Store the raw original
//  3. Extract text (degrading to warnings when a parser is unavailable)
//  4. Clean the text and store the standard copy
//  5. Infer metadata
//  6. Record in the index
//
// A file whose text cannot be extracted is still ingested; the record carries
// the warnings and byte-estimated metadata.
func (ing *Ingester) Ingest(ctx context.Context, filename string, data []byte, opts Options) (*Result, error) {
	start := time.Now()

	contract, ok := catalog.ContractByKey(opts.ContractKey)
	if !ok {
		return nil, fmt.Errorf("unknown contract %q", opts.ContractKey)
	}
	if int64(len(data)) > ing.Config.MaxFileBytes() {
		return nil, fmt.Errorf("file exceeds limit of %d MB", ing.Config.MaxFileMB)
	}

	digest := catalog.Digest(data)

	ing.mu.Lock()
	defer ing.mu.Unlock()

	index, err := ing.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}

	if existing, ok := index[digest]; ok {
		ing.auditLog("intake.upload.duplicate", opts.UploaderID, filename, digest, nil, time.Since(start))
		ing.recordMetric(observability.MetricDuplicatesCount, 1, "count")
		return &Result{
			Digest: digest,
			Status: catalog.StatusDuplicate,
			Duplicate: &DuplicateReport{
				AttemptedName: filename,
				ExistingName:  existing.OriginalName,
				FirstSeen:     existing.UploadedAt,
			},
		}, nil
	}

	now := ing.Now().UTC()
	rawName := safefile.StorageName(now, digest, filename)
	rawPath := filepath.Join(ing.Config.OriginalDir(), rawName)
	if err := os.WriteFile(rawPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("store original: %w", err)
	}

	text, warnings := ing.Pipe.Extract(filename, data)

	cleanPath := ""
	finalText := text
	if opts.Clean && text != "" {
		finalText = cleanse.Clean(text, opts.PIIScrub)
		cleanName := strings.TrimSuffix(rawName, filepath.Ext(rawName)) + ".clean.txt"
		cleanPath = filepath.Join(ing.Config.StandardDir(), cleanName)
		if err := os.WriteFile(cleanPath, []byte(finalText), 0o644); err != nil {
			return nil, fmt.Errorf("store clean text: %w", err)
		}
	}

	meta := ing.Inferer.Infer(filename, finalText, int64(len(data)))

	rec := catalog.Record{
		Digest:        digest,
		OriginalName:  filename,
		RawPath:       rawPath,
		CleanPath:     cleanPath,
		ContractKey:   contract.Key,
		ContractLabel: contract.Label,
		SizeBytes:     int64(len(data)),
		UploadedAt:    now,
		UploaderID:    opts.UploaderID,
		Manual:        opts.Manual,
		Inferred:      meta,
		Warnings:      warnings,
		Status:        catalog.StatusOK,
	}
	index[digest] = rec
	if err := ing.Store.Save(index); err != nil {
		return nil, fmt.Errorf("save index: %w", err)
	}

	duration := time.Since(start)
	ing.auditLog("intake.upload.ingested", opts.UploaderID, filename,
		fmt.Sprintf("digest=%s size=%d warnings=%d", digest, len(data), len(warnings)), nil, duration)
	ing.recordEvent(ctx, "upload", digest, opts.UploaderID, "ingested",
		fmt.Sprintf(`{"name":%q,"contract":%q}`, filename, contract.Key), true)
	ing.recordMetric(observability.MetricIngestDurationMs, float64(duration.Milliseconds()), "milliseconds")
	ing.recordMetric(observability.MetricFilesIngestedCount, 1, "count")

	return &Result{
		Digest:   digest,
		Status:   catalog.StatusOK,
		Record:   &rec,
		Warnings: warnings,
	}, nil
}

// BatchFile is one input of a batch ingest.
type BatchFile struct {
	Name string
	Data []byte
}

// BatchResult pairs a batch input with its outcome. Err is set when the
// pipeline failed for that file; other files are unaffected.
type BatchResult struct {
	Name   string  `json:"name"`
	Result *Result `json:"result,omitempty"`
	Err    string  `json:"error,omitempty"`
}

// IngestBatch runs the pipeline for each file in order. A failure on one file
// is recorded in its BatchResult and does not stop the rest.
func (ing *Ingester) IngestBatch(ctx context.Context, files []BatchFile, opts Options) []BatchResult {
	results := make([]BatchResult, 0, len(files))
	for _, f := range files {
		res, err := ing.Ingest(ctx, f.Name, f.Data, opts)
		br := BatchResult{Name: f.Name, Result: res}
		if err != nil {
			br.Err = err.Error()
			ing.Logger.Error("batch ingest", "file", f.Name, "error", err)
		}
		results = append(results, br)
	}
	return results
}

func (ing *Ingester) auditLog(operation, userID string, params, result any, err error, duration time.Duration) {
	if ing.Audit == nil {
		return
	}
	entry := ing.Audit.NewAuditEntry("codexa", operation, params, result, err, duration)
	entry.UserID = userID
	ing.Audit.LogAsync(entry)
}

func (ing *Ingester) recordEvent(ctx context.Context, eventType, entityID, userID, action, details string, success bool) {
	if ing.Events == nil {
		return
	}
	ing.Events.LogEvent(ctx, observability.BusinessEvent{
		EventType:   eventType,
		ServiceName: "codexa",
		EntityType:  "document",
		EntityID:    entityID,
		UserID:      userID,
		Action:      action,
		Details:     details,
		Success:     success,
	})
}

func (ing *Ingester) recordMetric(name string, value float64, unit string) {
	if ing.Metrics == nil {
		return
	}
	ing.Metrics.RecordSimple(name, value, unit)
}
