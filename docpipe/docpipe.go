// Package docpipe extracts plain text from uploaded documents.
//
// Dispatch is by lowercase file extension through a registry of strategies.
// Strategies that depend on an optional parsing capability (pdf, docx, html)
// are gated on a Capabilities set resolved once at process start and injected
// via Config, so tests can simulate a missing parser deterministically.
//
// Extraction never fails outward: malformed input, missing capabilities and
// decode ambiguity all degrade to empty text plus a warning string.
//
// Usage:
//
//	reg := docpipe.New(docpipe.Config{})
//	text, warnings := reg.Extract("report.pdf", data)
package docpipe

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
)

// Capability identifies an optional parsing facility.
type Capability string

const (
	// CapPDF gates PDF content-stream extraction (pdfcpu).
	CapPDF Capability = "pdf"
	// CapDOCX gates office archive parsing (.docx, .odt).
	CapDOCX Capability = "docx"
	// CapHTML gates HTML DOM parsing (x/net/html).
	CapHTML Capability = "html"
)

// Capabilities is the set of optional parsers available to a Registry.
type Capabilities map[Capability]bool

// AllCapabilities returns the full set. This is what production wiring uses;
// every parser here is pure Go and compiled in.
func AllCapabilities() Capabilities {
	return Capabilities{CapPDF: true, CapDOCX: true, CapHTML: true}
}

// Has reports whether c contains cap. A nil Capabilities set has nothing.
func (c Capabilities) Has(cap Capability) bool {
	return c != nil && c[cap]
}

// Config configures a Registry.
type Config struct {
	// Capabilities available to gated strategies. Nil means AllCapabilities.
	Capabilities Capabilities

	// MaxFileSize is the largest input accepted, in bytes (default 100 MB).
	// Oversized input degrades to empty text plus a warning.
	MaxFileSize int64

	// Logger for debug messages.
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Capabilities == nil {
		c.Capabilities = AllCapabilities()
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Strategy extracts text from raw bytes. Parse failures are returned as an
// error; the Registry converts them to warnings. Non-fatal observations
// (e.g. a PDF with no text layer) go in warnings alongside a result.
type Strategy struct {
	// Name identifies the strategy in warnings ("pdf", "csv", ...).
	Name string
	// Requires names the optional capability this strategy needs, if any.
	Requires Capability
	// Fn performs the extraction.
	Fn func(data []byte) (text string, warnings []string, err error)
}

// Registry maps file extensions to extraction strategies.
type Registry struct {
	cfg      Config
	logger   *slog.Logger
	byExt    map[string]Strategy
	fallback Strategy
}

// New creates a Registry with the built-in strategy table.
func New(cfg Config) *Registry {
	cfg.defaults()
	r := &Registry{
		cfg:    cfg,
		logger: cfg.Logger,
		byExt:  make(map[string]Strategy),
	}

	plain := Strategy{Name: "text", Fn: extractPlain}
	r.fallback = plain

	r.Register(".txt", plain)
	r.Register(".md", plain)
	r.Register(".csv", Strategy{Name: "csv", Fn: extractCSV})
	r.Register(".json", Strategy{Name: "json", Fn: extractJSON})
	r.Register(".html", Strategy{Name: "html", Requires: CapHTML, Fn: extractHTML})
	r.Register(".htm", Strategy{Name: "html", Requires: CapHTML, Fn: extractHTML})
	r.Register(".pdf", Strategy{Name: "pdf", Requires: CapPDF, Fn: extractPDF})
	r.Register(".docx", Strategy{Name: "docx", Requires: CapDOCX, Fn: extractDocx})
	r.Register(".odt", Strategy{Name: "odt", Requires: CapDOCX, Fn: extractODT})
	return r
}

// Register installs (or replaces) the strategy for an extension.
// Callers of Extract never change when new extensions are added.
func (r *Registry) Register(ext string, s Strategy) {
	r.byExt[strings.ToLower(ext)] = s
}

// SupportedExtensions lists registered extensions, sorted.
func (r *Registry) SupportedExtensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract produces best-effort text for filename's content. It never returns
// an error: every failure mode is reported through the warnings slice with
// empty text, and the pipeline continues.
func (r *Registry) Extract(filename string, data []byte) (string, []string) {
	if int64(len(data)) > r.cfg.MaxFileSize {
		return "", []string{fmt.Sprintf("file too large: %d bytes (max %d)", len(data), r.cfg.MaxFileSize)}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	s, ok := r.byExt[ext]
	if !ok {
		// Unknown extensions get the best-effort plain decode.
		s = r.fallback
	}

	if s.Requires != "" && !r.cfg.Capabilities.Has(s.Requires) {
		return "", []string{fmt.Sprintf("%s extraction skipped: %s capability unavailable", s.Name, s.Requires)}
	}

	r.logger.Debug("extracting", "file", filename, "strategy", s.Name)

	text, warnings, err := s.Fn(data)
	if err != nil {
		return "", append(warnings, fmt.Sprintf("%s extraction failed: %v", s.Name, err))
	}
	return text, warnings
}
