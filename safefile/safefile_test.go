package safefile

import (
	"strings"
	"testing"
	"time"
)

func TestSafePath(t *testing.T) {
	tests := []struct {
		base, input string
		wantErr     bool
	}{
		{"/data/storage", "abc/def.txt", false},
		{"/data/storage", "../etc/passwd", true},
		{"/data/storage", "abc/../def", true},
		{"/data/storage", "abc/../../outside", true},
		{"/data/storage", "20250101T000000Z__report.txt", false},
	}
	for _, tt := range tests {
		_, err := SafePath(tt.base, tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("SafePath(%q, %q) error=%v, wantErr=%v", tt.base, tt.input, err, tt.wantErr)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report 2019.txt", "report_2019.txt"},
		{"../../etc/passwd", "passwd"},
		{"..\\..\\evil.exe", "evil.exe"},
		{"résumé.pdf", "rsum.pdf"},
		{"normal-file_v2.md", "normal-file_v2.md"},
		{"", "upload"},
		{"???", "upload"},
		{"...", "upload"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeFilename_Length(t *testing.T) {
	long := strings.Repeat("a", 500) + ".txt"
	got := SanitizeFilename(long)
	if len(got) > MaxUploadNameLen {
		t.Fatalf("sanitized name too long: %d", len(got))
	}
}

func TestStorageName(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	got := StorageName(ts, "a1b2c3d4e5f6", "my report.pdf")
	want := "20250314T092653Z__a1b2c3d4__my_report.pdf"
	if got != want {
		t.Fatalf("StorageName = %q, want %q", got, want)
	}
}

func TestStorageName_DistinctContentDistinctNames(t *testing.T) {
	// Same filename, same second: the digest prefix must keep the paths apart.
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := StorageName(ts, "aaaa1111bbbb", "report.txt")
	b := StorageName(ts, "cccc2222dddd", "report.txt")
	if a == b {
		t.Fatalf("colliding storage names: %q", a)
	}
}

func TestStem(t *testing.T) {
	tests := []struct{ in, want string }{
		{"report.txt", "report"},
		{"archive.tar.gz", "archive.tar"},
		{"noext", "noext"},
		{"dir/file.pdf", "file"},
	}
	for _, tt := range tests {
		if got := Stem(tt.in); got != tt.want {
			t.Errorf("Stem(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	data, err := LimitedReadAll(strings.NewReader("hello"), 10)
	if err != nil || string(data) != "hello" {
		t.Fatalf("LimitedReadAll under limit: %q, %v", data, err)
	}
	if _, err := LimitedReadAll(strings.NewReader("hello world"), 5); err == nil {
		t.Fatal("expected error for input over limit")
	}
}
