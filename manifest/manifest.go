// Package manifest projects filtered index records into self-describing
// summary documents: the manifest JSON handed out for download, and the
// JSONL dataset export.
package manifest

import (
	"sort"
	"time"

	"github.com/hazyhaar/codexa/catalog"
	"github.com/hazyhaar/codexa/idgen"
	"github.com/hazyhaar/codexa/infer"
)

// Version is the manifest document format version.
const Version = 1

// Query is the filter that produced a manifest; it is echoed verbatim in the
// output so every manifest states what it contains.
type Query struct {
	Contract string `json:"contract,omitempty"`
	Language string `json:"language,omitempty"`
	Uploader string `json:"uploader,omitempty"`
}

// Matches reports whether rec passes the filter. Empty fields match all.
// Language matches the uploader-supplied value first, the inferred one as a
// fallback.
func (q Query) Matches(rec catalog.Record) bool {
	if q.Contract != "" && rec.ContractKey != q.Contract {
		return false
	}
	if q.Uploader != "" && rec.UploaderID != q.Uploader {
		return false
	}
	if q.Language != "" {
		lang := rec.Manual.Language
		if lang == "" {
			lang = rec.Inferred.Language
		}
		if lang != q.Language {
			return false
		}
	}
	return true
}

// Stats aggregates the selected records.
type Stats struct {
	Files          int   `json:"files"`
	TotalEstTokens int   `json:"total_est_tokens"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
}

// FileEntry is the per-record projection included in a manifest.
type FileEntry struct {
	Digest       string                 `json:"digest"`
	OriginalName string                 `json:"original_name"`
	RawPath      string                 `json:"raw_path"`
	CleanPath    string                 `json:"clean_path,omitempty"`
	Contract     string                 `json:"contract"`
	Manual       catalog.ManualMetadata `json:"manual_metadata"`
	Inferred     infer.Metadata         `json:"inferred_metadata"`
}

// Manifest is the downloadable summary document.
type Manifest struct {
	ManifestID string      `json:"manifest_id"`
	CreatedAt  time.Time   `json:"created_at"`
	Query      Query       `json:"query"`
	Stats      Stats       `json:"stats"`
	Files      []FileEntry `json:"files"`
	Version    int         `json:"version"`
}

// Builder produces manifests. ID generation and the clock are injectable so
// tests can pin them.
type Builder struct {
	newID idgen.Generator
	now   func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithIDGenerator sets the manifest ID generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(b *Builder) { b.newID = gen }
}

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates a Builder with "man_"-prefixed UUIDv7 IDs.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		newID: idgen.Prefixed("man_", idgen.Default),
		now:   time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build filters index by q and assembles the manifest. Files are ordered by
// original name, tie-broken by digest, so identical input and query always
// yield identical stats and files sections (the id and timestamp aside).
func (b *Builder) Build(index map[string]catalog.Record, q Query) *Manifest {
	var selected []catalog.Record
	for _, rec := range index {
		if q.Matches(rec) {
			selected = append(selected, rec)
		}
	}
	sort.Slice(selected, func(i, j int) bool {
		if selected[i].OriginalName != selected[j].OriginalName {
			return selected[i].OriginalName < selected[j].OriginalName
		}
		return selected[i].Digest < selected[j].Digest
	})

	m := &Manifest{
		ManifestID: b.newID(),
		CreatedAt:  b.now().UTC(),
		Query:      q,
		Version:    Version,
		Files:      make([]FileEntry, 0, len(selected)),
	}
	for _, rec := range selected {
		m.Files = append(m.Files, FileEntry{
			Digest:       rec.Digest,
			OriginalName: rec.OriginalName,
			RawPath:      rec.RawPath,
			CleanPath:    rec.CleanPath,
			Contract:     rec.ContractKey,
			Manual:       rec.Manual,
			Inferred:     rec.Inferred,
		})
		m.Stats.Files++
		m.Stats.TotalEstTokens += rec.Inferred.Tokens
		m.Stats.TotalSizeBytes += rec.SizeBytes
	}
	return m
}
