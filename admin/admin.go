// Package admin implements the maintenance surface: destructive index and
// storage operations guarded by a password gate. Operations report partial
// failures instead of rolling back; the index is the source of truth and a
// failed file removal leaves at worst an orphan on disk.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/hazyhaar/codexa/catalog"
	"github.com/hazyhaar/codexa/cleanse"
	"github.com/hazyhaar/codexa/ingest"
	"github.com/hazyhaar/codexa/manifest"
)

// Admin performs maintenance operations on an ingester's index and storage.
type Admin struct {
	Ing  *ingest.Ingester
	Gate *Gate
}

// New wires an Admin over the ingester.
func New(ing *ingest.Ingester, gate *Gate) *Admin {
	return &Admin{Ing: ing, Gate: gate}
}

// DeleteReport describes one record removal. Problems lists the steps that
// failed; the remaining steps still ran.
type DeleteReport struct {
	Digest       string   `json:"digest"`
	RawRemoved   bool     `json:"raw_removed"`
	CleanRemoved bool     `json:"clean_removed"`
	IndexRemoved bool     `json:"index_removed"`
	Problems     []string `json:"problems,omitempty"`
}

// DeleteRecord removes a record's stored files and its index entry, in that
// order. A file already gone from disk counts as removed. There is no
// rollback: whatever was removed stays removed, and Problems records the
// rest.
func (a *Admin) DeleteRecord(ctx context.Context, digest string) (*DeleteReport, error) {
	start := time.Now()
	rec, ok, err := a.Ing.Store.Get(digest)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no record for digest %s", digest)
	}

	report := &DeleteReport{Digest: digest}
	report.RawRemoved, report.Problems = removeFile(rec.RawPath, report.Problems)
	if rec.CleanPath != "" {
		report.CleanRemoved, report.Problems = removeFile(rec.CleanPath, report.Problems)
	} else {
		report.CleanRemoved = true
	}

	if err := a.Ing.Store.Delete(digest); err != nil {
		report.Problems = append(report.Problems, fmt.Sprintf("index: %v", err))
	} else {
		report.IndexRemoved = true
	}

	a.audit(ctx, "admin.record.delete", digest, fmt.Sprintf("problems=%d", len(report.Problems)), time.Since(start))
	return report, nil
}

func removeFile(path string, problems []string) (bool, []string) {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, append(problems, fmt.Sprintf("%s: %v", path, err))
	}
	return true, problems
}

// ClearReport summarizes a full wipe.
type ClearReport struct {
	Deleted  int      `json:"deleted"`
	Problems []string `json:"problems,omitempty"`
}

// ClearAll deletes every record and its files. Partial failures are collected
// and the wipe continues.
func (a *Admin) ClearAll(ctx context.Context) (*ClearReport, error) {
	index, err := a.Ing.Store.Load()
	if err != nil {
		return nil, err
	}
	report := &ClearReport{}
	for digest := range index {
		dr, err := a.DeleteRecord(ctx, digest)
		if err != nil {
			report.Problems = append(report.Problems, fmt.Sprintf("%s: %v", digest, err))
			continue
		}
		report.Deleted++
		report.Problems = append(report.Problems, dr.Problems...)
	}
	a.audit(ctx, "admin.index.clear", "", fmt.Sprintf("deleted=%d", report.Deleted), 0)
	return report, nil
}

// ExportIndex writes the whole index document to w as indented JSON.
func (a *Admin) ExportIndex(w io.Writer) error {
	index, err := a.Ing.Store.Load()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(index)
}

// ReplaceIndex swaps the index document for the one read from r. Records are
// validated minimally: every entry must carry its own digest and a known
// contract. Storage files are not touched or checked.
func (a *Admin) ReplaceIndex(ctx context.Context, r io.Reader) (int, error) {
	var index map[string]catalog.Record
	if err := json.NewDecoder(r).Decode(&index); err != nil {
		return 0, fmt.Errorf("parse index: %w", err)
	}
	for digest, rec := range index {
		if rec.Digest != digest {
			return 0, fmt.Errorf("entry %s: digest field %q does not match key", digest, rec.Digest)
		}
		if _, ok := catalog.ContractByKey(rec.ContractKey); !ok {
			return 0, fmt.Errorf("entry %s: unknown contract %q", digest, rec.ContractKey)
		}
	}
	if err := a.Ing.Store.Replace(index); err != nil {
		return 0, err
	}
	a.audit(ctx, "admin.index.replace", "", fmt.Sprintf("records=%d", len(index)), 0)
	return len(index), nil
}

// RebuildReport counts a metadata or text rebuild pass.
type RebuildReport struct {
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// RecomputeTokens re-derives word and token estimates for every record from
// its cleaned text, falling back to byte estimates when no clean copy exists.
// Records whose clean file went missing are skipped and counted.
func (a *Admin) RecomputeTokens(ctx context.Context) (*RebuildReport, error) {
	return a.rebuild(ctx, "admin.tokens.recompute", func(rec *catalog.Record, text string) {
		meta := a.Ing.Inferer.Infer(rec.OriginalName, text, rec.SizeBytes)
		rec.Inferred.Words = meta.Words
		rec.Inferred.Tokens = meta.Tokens
		rec.Inferred.FromBytes = meta.FromBytes
	})
}

// RebuildMetadata re-runs the full inference pass (language, year, title,
// counts) for every record. Manual metadata is untouched.
func (a *Admin) RebuildMetadata(ctx context.Context) (*RebuildReport, error) {
	return a.rebuild(ctx, "admin.metadata.rebuild", func(rec *catalog.Record, text string) {
		rec.Inferred = a.Ing.Inferer.Infer(rec.OriginalName, text, rec.SizeBytes)
	})
}

func (a *Admin) rebuild(ctx context.Context, op string, apply func(*catalog.Record, string)) (*RebuildReport, error) {
	start := time.Now()
	index, err := a.Ing.Store.Load()
	if err != nil {
		return nil, err
	}
	report := &RebuildReport{}
	for digest, rec := range index {
		// Records ingested without a stored clean copy still carry
		// text-derived metadata; re-extract from the raw file so the rebuild
		// reproduces it instead of flipping them to byte estimates.
		var text string
		if rec.HasCleanText() {
			data, err := os.ReadFile(rec.CleanPath)
			if err != nil {
				report.Skipped++
				continue
			}
			text = string(data)
		} else {
			data, err := os.ReadFile(rec.RawPath)
			if err != nil {
				report.Skipped++
				continue
			}
			text, _ = a.Ing.Pipe.Extract(rec.OriginalName, data)
		}
		apply(&rec, text)
		index[digest] = rec
		report.Updated++
	}
	if err := a.Ing.Store.Replace(index); err != nil {
		return nil, err
	}
	a.audit(ctx, op, "", fmt.Sprintf("updated=%d skipped=%d", report.Updated, report.Skipped), time.Since(start))
	return report, nil
}

// RecleanAll re-extracts every record's raw file and rewrites its standard
// copy with the current cleaning rules. Records whose raw file went missing
// are skipped and counted.
func (a *Admin) RecleanAll(ctx context.Context, piiScrub bool) (*RebuildReport, error) {
	start := time.Now()
	index, err := a.Ing.Store.Load()
	if err != nil {
		return nil, err
	}
	report := &RebuildReport{}
	for digest, rec := range index {
		data, err := os.ReadFile(rec.RawPath)
		if err != nil {
			report.Skipped++
			continue
		}
		text, warnings := a.Ing.Pipe.Extract(rec.OriginalName, data)
		rec.Warnings = warnings
		if text != "" && rec.CleanPath != "" {
			cleaned := cleanse.Clean(text, piiScrub)
			if err := os.WriteFile(rec.CleanPath, []byte(cleaned), 0o644); err != nil {
				report.Skipped++
				continue
			}
			rec.Inferred = a.Ing.Inferer.Infer(rec.OriginalName, cleaned, rec.SizeBytes)
		} else {
			rec.Inferred = a.Ing.Inferer.Infer(rec.OriginalName, "", rec.SizeBytes)
		}
		index[digest] = rec
		report.Updated++
	}
	if err := a.Ing.Store.Replace(index); err != nil {
		return nil, err
	}
	a.audit(ctx, "admin.reclean.all", "", fmt.Sprintf("updated=%d skipped=%d", report.Updated, report.Skipped), time.Since(start))
	return report, nil
}

// OverrideContract reassigns a record to another contract.
func (a *Admin) OverrideContract(ctx context.Context, digest, contractKey string) (*catalog.Record, error) {
	contract, ok := catalog.ContractByKey(contractKey)
	if !ok {
		return nil, fmt.Errorf("unknown contract %q", contractKey)
	}
	var updated catalog.Record
	err := a.Ing.Store.Update(digest, func(rec *catalog.Record) {
		rec.ContractKey = contract.Key
		rec.ContractLabel = contract.Label
		updated = *rec
	})
	if err != nil {
		return nil, err
	}
	a.audit(ctx, "admin.contract.override", digest, contract.Key, 0)
	return &updated, nil
}

// OverrideView sets the per-record view override. With it on, the stored
// content is served to non-admin readers; with it off, only an admin can
// view it.
func (a *Admin) OverrideView(ctx context.Context, digest string, allowed bool) (*catalog.Record, error) {
	var updated catalog.Record
	err := a.Ing.Store.Update(digest, func(rec *catalog.Record) {
		rec.ViewOverride = allowed
		updated = *rec
	})
	if err != nil {
		return nil, err
	}
	a.audit(ctx, "admin.view.override", digest, fmt.Sprintf("allowed=%t", allowed), 0)
	return &updated, nil
}

// ExportDataset streams the JSONL export of every cleaned record to w.
func (a *Admin) ExportDataset(w io.Writer) (written, skipped int, err error) {
	index, err := a.Ing.Store.Load()
	if err != nil {
		return 0, 0, err
	}
	return manifest.WriteDataset(w, index)
}

func (a *Admin) audit(_ context.Context, operation, params, result string, duration time.Duration) {
	if a.Ing.Audit == nil {
		return
	}
	entry := a.Ing.Audit.NewAuditEntry("codexa", operation, params, result, nil, duration)
	a.Ing.Audit.LogAsync(entry)
}
