package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/hazyhaar/codexa/catalog"
	"github.com/hazyhaar/codexa/infer"
)

func fixedBuilder() *Builder {
	n := 0
	return NewBuilder(
		WithIDGenerator(func() string { n++; return "man_test" }),
		WithClock(func() time.Time { return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC) }),
	)
}

func sampleIndex() map[string]catalog.Record {
	return map[string]catalog.Record{
		"bbb": {
			Digest:       "bbb",
			OriginalName: "report_2019.txt",
			RawPath:      "storage/original/20250314T092653Z__report_2019.txt",
			CleanPath:    "storage/standard/20250314T092653Z__report_2019.clean.txt",
			ContractKey:  "pretrain_v1",
			UploaderID:   "up-1",
			SizeBytes:    120,
			Inferred:     infer.Metadata{Language: "english", Tokens: 9, Words: 7},
			Status:       catalog.StatusOK,
		},
		"aaa": {
			Digest:       "aaa",
			OriginalName: "notes.md",
			RawPath:      "storage/original/20250314T092700Z__notes.md",
			ContractKey:  "research_v1",
			UploaderID:   "up-2",
			SizeBytes:    80,
			Inferred:     infer.Metadata{Language: "unknown", Tokens: 20, Words: 15, FromBytes: true},
			Status:       catalog.StatusOK,
		},
		"ccc": {
			Digest:       "ccc",
			OriginalName: "notes.md",
			RawPath:      "storage/original/20250314T092710Z__notes.md",
			ContractKey:  "pretrain_v1",
			UploaderID:   "up-1",
			SizeBytes:    40,
			Inferred:     infer.Metadata{Language: "french", Tokens: 5, Words: 4},
			Status:       catalog.StatusOK,
		},
	}
}

func TestBuildOrderingAndStats(t *testing.T) {
	m := fixedBuilder().Build(sampleIndex(), Query{})
	if m.ManifestID != "man_test" {
		t.Fatalf("ManifestID = %q", m.ManifestID)
	}
	if m.Version != 1 {
		t.Fatalf("Version = %d", m.Version)
	}
	var got []string
	for _, f := range m.Files {
		got = append(got, f.Digest)
	}
	// "notes.md" sorts before "report_2019.txt"; the notes.md pair breaks
	// the tie on digest.
	want := []string{"aaa", "ccc", "bbb"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("file order = %v, want %v", got, want)
	}
	if m.Stats.Files != 3 || m.Stats.TotalEstTokens != 34 || m.Stats.TotalSizeBytes != 240 {
		t.Fatalf("stats = %+v", m.Stats)
	}
}

func TestBuildDeterministic(t *testing.T) {
	b := NewBuilder()
	first := b.Build(sampleIndex(), Query{Contract: "pretrain_v1"})
	for i := 0; i < 10; i++ {
		again := b.Build(sampleIndex(), Query{Contract: "pretrain_v1"})
		if !reflect.DeepEqual(first.Files, again.Files) {
			t.Fatalf("files section differs on run %d", i)
		}
		if first.Stats != again.Stats {
			t.Fatalf("stats differ on run %d: %+v vs %+v", i, first.Stats, again.Stats)
		}
	}
}

func TestQueryFilters(t *testing.T) {
	idx := sampleIndex()
	tests := []struct {
		name  string
		q     Query
		wants []string
	}{
		{"all", Query{}, []string{"aaa", "ccc", "bbb"}},
		{"contract", Query{Contract: "research_v1"}, []string{"aaa"}},
		{"uploader", Query{Uploader: "up-1"}, []string{"ccc", "bbb"}},
		{"language inferred", Query{Language: "french"}, []string{"ccc"}},
		{"no match", Query{Contract: "finetune_v1"}, nil},
	}
	b := fixedBuilder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := b.Build(idx, tt.q)
			var got []string
			for _, f := range m.Files {
				got = append(got, f.Digest)
			}
			if !reflect.DeepEqual(got, tt.wants) {
				t.Fatalf("digests = %v, want %v", got, tt.wants)
			}
			if m.Query != tt.q {
				t.Fatalf("query echo = %+v, want %+v", m.Query, tt.q)
			}
		})
	}
}

func TestQueryManualLanguageWins(t *testing.T) {
	rec := catalog.Record{
		Digest:   "ddd",
		Manual:   catalog.ManualMetadata{Language: "german"},
		Inferred: infer.Metadata{Language: "english"},
	}
	if !(Query{Language: "german"}).Matches(rec) {
		t.Fatal("manual language should match")
	}
	if (Query{Language: "english"}).Matches(rec) {
		t.Fatal("inferred language should not match when manual is set")
	}
}

func TestWriteDataset(t *testing.T) {
	dir := t.TempDir()
	cleanPath := filepath.Join(dir, "a.clean.txt")
	if err := os.WriteFile(cleanPath, []byte("Annual Report 2019\n\nRevenue grew."), 0o644); err != nil {
		t.Fatal(err)
	}
	idx := map[string]catalog.Record{
		"aaa": {
			Digest:       "aaa",
			OriginalName: "report.txt",
			RawPath:      filepath.Join(dir, "a.txt"),
			CleanPath:    cleanPath,
			ContractKey:  "pretrain_v1",
			UploaderID:   "up-1",
			Inferred:     infer.Metadata{Language: "english", Tokens: 9},
			Status:       catalog.StatusOK,
		},
		// No clean text: excluded from the export.
		"bbb": {
			Digest:       "bbb",
			OriginalName: "scan.pdf",
			RawPath:      filepath.Join(dir, "b.pdf"),
			ContractKey:  "pretrain_v1",
			Status:       catalog.StatusOK,
		},
		// Clean file gone from disk: skipped, counted.
		"ccc": {
			Digest:       "ccc",
			OriginalName: "lost.txt",
			RawPath:      filepath.Join(dir, "c.txt"),
			CleanPath:    filepath.Join(dir, "missing.clean.txt"),
			ContractKey:  "pretrain_v1",
			Status:       catalog.StatusOK,
		},
	}

	var buf bytes.Buffer
	written, skipped, err := WriteDataset(&buf, idx)
	if err != nil {
		t.Fatalf("WriteDataset: %v", err)
	}
	if written != 1 || skipped != 1 {
		t.Fatalf("written=%d skipped=%d, want 1 and 1", written, skipped)
	}

	sc := bufio.NewScanner(&buf)
	if !sc.Scan() {
		t.Fatal("no dataset lines")
	}
	var line DatasetLine
	if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal line: %v", err)
	}
	if line.ID != "aaa" || line.License != "pretrain_v1" || line.UploaderID != "up-1" {
		t.Fatalf("line = %+v", line)
	}
	if line.Text != "Annual Report 2019\n\nRevenue grew." {
		t.Fatalf("text = %q", line.Text)
	}
	if line.Paths.Standard != cleanPath {
		t.Fatalf("standard path = %q", line.Paths.Standard)
	}
	if sc.Scan() {
		t.Fatalf("unexpected extra line: %s", sc.Text())
	}
}
