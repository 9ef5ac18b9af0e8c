package ingest

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/codexa/catalog"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.StorageDir = filepath.Join(dir, "storage")
	cfg.IndexPath = filepath.Join(dir, "storage", "index.json")
	cfg.ObsDBPath = filepath.Join(dir, "obs.db")
	return cfg
}

func testIngester(t *testing.T, opts ...IngesterOption) *Ingester {
	t.Helper()
	opts = append(opts, WithClock(func() time.Time {
		return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	}))
	ing, err := NewIngester(testConfig(t), opts...)
	if err != nil {
		t.Fatalf("NewIngester: %v", err)
	}
	t.Cleanup(func() { ing.Close() })
	return ing
}

func TestIngestStoresAndIndexes(t *testing.T) {
	ing := testIngester(t)
	data := []byte("Annual Report 2019\n\nRevenue grew in every quarter.")

	res, err := ing.Ingest(context.Background(), "report 2019.txt", data, Options{
		ContractKey: "pretrain_v1",
		UploaderID:  "up-1",
		Clean:       true,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Status != catalog.StatusOK {
		t.Fatalf("status = %q", res.Status)
	}
	if res.Digest != catalog.Digest(data) {
		t.Fatalf("digest mismatch")
	}
	rec := res.Record
	if rec == nil {
		t.Fatal("no record in result")
	}
	if rec.OriginalName != "report 2019.txt" {
		t.Fatalf("OriginalName = %q", rec.OriginalName)
	}
	wantRaw := "20250314T092653Z__" + res.Digest[:8] + "__report_2019.txt"
	if filepath.Base(rec.RawPath) != wantRaw {
		t.Fatalf("raw name = %q, want %q", filepath.Base(rec.RawPath), wantRaw)
	}
	if _, err := os.Stat(rec.RawPath); err != nil {
		t.Fatalf("raw file missing: %v", err)
	}
	wantClean := "20250314T092653Z__" + res.Digest[:8] + "__report_2019.clean.txt"
	if filepath.Base(rec.CleanPath) != wantClean {
		t.Fatalf("clean name = %q", filepath.Base(rec.CleanPath))
	}
	clean, err := os.ReadFile(rec.CleanPath)
	if err != nil {
		t.Fatalf("clean file missing: %v", err)
	}
	if string(clean) != "Annual Report 2019\n\nRevenue grew in every quarter." {
		t.Fatalf("clean text = %q", clean)
	}
	if rec.Inferred.Year != 2019 {
		t.Fatalf("year = %d", rec.Inferred.Year)
	}
	if rec.ContractLabel != "Pretrain v1 (prototype only)" {
		t.Fatalf("contract label = %q", rec.ContractLabel)
	}

	// The record survives a fresh store read.
	index, err := catalog.NewStore(ing.Config.IndexPath).Load()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := index[res.Digest]; !ok {
		t.Fatal("record not persisted to index")
	}
}

func TestIngestDuplicate(t *testing.T) {
	ing := testIngester(t)
	data := []byte("same bytes either way")

	first, err := ing.Ingest(context.Background(), "first.txt", data, Options{ContractKey: "pretrain_v1", Clean: true})
	if err != nil {
		t.Fatal(err)
	}
	second, err := ing.Ingest(context.Background(), "second.txt", data, Options{ContractKey: "research_v1", Clean: true})
	if err != nil {
		t.Fatal(err)
	}
	if second.Status != catalog.StatusDuplicate {
		t.Fatalf("status = %q, want %q", second.Status, catalog.StatusDuplicate)
	}
	if second.Digest != first.Digest {
		t.Fatal("duplicate must reference the same digest")
	}
	if second.Duplicate == nil {
		t.Fatal("no duplicate report")
	}
	if second.Duplicate.AttemptedName != "second.txt" || second.Duplicate.ExistingName != "first.txt" {
		t.Fatalf("report = %+v", second.Duplicate)
	}

	// The index still holds exactly one record, under the first name.
	index, err := ing.Store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(index) != 1 {
		t.Fatalf("index has %d records", len(index))
	}
	rec := index[first.Digest]
	if rec.OriginalName != "first.txt" {
		t.Fatalf("OriginalName = %q", rec.OriginalName)
	}
	if rec.ContractKey != "pretrain_v1" {
		t.Fatalf("contract overwritten: %q", rec.ContractKey)
	}
}

func TestIngestSameNameSameSecondKeepsSeparateFiles(t *testing.T) {
	// The clock is pinned, so both uploads land in the same second under the
	// same original name. Each record must own its raw file exclusively.
	ing := testIngester(t)
	first, err := ing.Ingest(context.Background(), "report.txt", []byte("first body"),
		Options{ContractKey: "pretrain_v1", Clean: true})
	if err != nil {
		t.Fatal(err)
	}
	second, err := ing.Ingest(context.Background(), "report.txt", []byte("second, different body"),
		Options{ContractKey: "pretrain_v1", Clean: true})
	if err != nil {
		t.Fatal(err)
	}
	if first.Record.RawPath == second.Record.RawPath {
		t.Fatalf("records share a raw path: %q", first.Record.RawPath)
	}
	raw, err := os.ReadFile(first.Record.RawPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "first body" {
		t.Fatalf("first record's raw bytes overwritten: %q", raw)
	}
	if first.Record.CleanPath == second.Record.CleanPath {
		t.Fatalf("records share a clean path: %q", first.Record.CleanPath)
	}
}

func TestIngestDegradesWithoutCapability(t *testing.T) {
	cfg := testConfig(t)
	cfg.Capabilities = []string{"html"} // no pdf parser
	ing, err := NewIngester(cfg, WithClock(func() time.Time {
		return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	}))
	if err != nil {
		t.Fatal(err)
	}
	defer ing.Close()

	data := []byte("%PDF-1.4 not really a pdf")
	res, err := ing.Ingest(context.Background(), "scan.pdf", data, Options{ContractKey: "pretrain_v1", Clean: true})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Status != catalog.StatusOK {
		t.Fatalf("status = %q, want ok despite missing parser", res.Status)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected a degradation warning")
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "capability unavailable") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v", res.Warnings)
	}
	rec := res.Record
	if rec.CleanPath != "" {
		t.Fatalf("no clean copy expected, got %q", rec.CleanPath)
	}
	if !rec.Inferred.FromBytes {
		t.Fatal("metadata should fall back to byte estimates")
	}
	if rec.Inferred.Tokens != 6 { // round(25/4)
		t.Fatalf("tokens = %d", rec.Inferred.Tokens)
	}
}

func TestIngestUnknownContract(t *testing.T) {
	ing := testIngester(t)
	if _, err := ing.Ingest(context.Background(), "a.txt", []byte("x"), Options{ContractKey: "nope"}); err == nil {
		t.Fatal("expected error for unknown contract")
	}
}

func TestIngestRejectsOversize(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxFileMB = 1
	ing, err := NewIngester(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer ing.Close()

	big := make([]byte, cfg.MaxFileBytes()+1)
	if _, err := ing.Ingest(context.Background(), "big.bin", big, Options{ContractKey: "pretrain_v1"}); err == nil {
		t.Fatal("expected size limit error")
	}
}

func TestIngestBatchIsolatesFailures(t *testing.T) {
	ing := testIngester(t)
	files := []BatchFile{
		{Name: "ok.txt", Data: []byte("fine content here")},
		{Name: "dup.txt", Data: []byte("fine content here")},
		{Name: "also_ok.md", Data: []byte("different content")},
	}
	results := ing.IngestBatch(context.Background(), files, Options{ContractKey: "finetune_v1", Clean: true})
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Result.Status != catalog.StatusOK {
		t.Fatalf("first: %+v", results[0])
	}
	if results[1].Result.Status != catalog.StatusDuplicate {
		t.Fatalf("second should be duplicate: %+v", results[1])
	}
	if results[2].Result.Status != catalog.StatusOK {
		t.Fatalf("third: %+v", results[2])
	}
}

func TestIngestBatchLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	ing := testIngester(t, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	results := ing.IngestBatch(context.Background(), []BatchFile{
		{Name: "bad.txt", Data: []byte("rejected for its contract")},
	}, Options{ContractKey: "bogus"})
	if results[0].Err == "" {
		t.Fatal("expected a per-file error")
	}
	if !strings.Contains(buf.String(), "bad.txt") {
		t.Fatalf("failure not logged: %q", buf.String())
	}
}

func TestIngestPIIScrub(t *testing.T) {
	ing := testIngester(t)
	data := []byte("Write to alice@example.com for the details of the 2019 audit.")
	res, err := ing.Ingest(context.Background(), "contact.txt", data, Options{
		ContractKey: "research_v1",
		Clean:       true,
		PIIScrub:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	clean, err := os.ReadFile(res.Record.CleanPath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(clean), "alice@example.com") {
		t.Fatal("email not scrubbed")
	}
	if !strings.Contains(string(clean), "[EMAIL]") {
		t.Fatalf("clean = %q", clean)
	}
	if !strings.Contains(string(clean), "2019") {
		t.Fatal("year must survive the scrub")
	}
}

func TestLoadConfigDefaultsAndValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codexa.yaml")
	if err := os.WriteFile(path, []byte("listen: \":9999\"\nmax_file_mb: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9999" || cfg.MaxFileMB != 10 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.StorageDir != "storage" {
		t.Fatalf("default storage dir lost: %q", cfg.StorageDir)
	}

	bad := DefaultConfig()
	bad.MaxFileMB = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}
