package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"

	"github.com/hazyhaar/codexa/catalog"
	"github.com/hazyhaar/codexa/infer"
)

// DatasetLine is one JSONL record of the dataset export.
type DatasetLine struct {
	ID         string                 `json:"id"`
	Text       string                 `json:"text"`
	License    string                 `json:"license"`
	ManualMeta catalog.ManualMetadata `json:"manual_meta"`
	AutoMeta   infer.Metadata         `json:"auto_meta"`
	UploaderID string                 `json:"uploader_id"`
	Paths      DatasetPaths           `json:"paths"`
}

// DatasetPaths points a dataset line back to its stored artifacts.
type DatasetPaths struct {
	Original string `json:"original"`
	Standard string `json:"standard"`
}

// WriteDataset streams the JSONL export to w. Only records with cleaned text
// are included; the text is read back from the standard copy on disk. Records
// whose clean file went missing are skipped and counted, not fatal. Returns
// the number of lines written and the number of records skipped for a missing
// file.
func WriteDataset(w io.Writer, index map[string]catalog.Record) (written, skipped int, err error) {
	recs := make([]catalog.Record, 0, len(index))
	for _, rec := range index {
		if rec.HasCleanText() {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].OriginalName != recs[j].OriginalName {
			return recs[i].OriginalName < recs[j].OriginalName
		}
		return recs[i].Digest < recs[j].Digest
	})

	enc := json.NewEncoder(w)
	for _, rec := range recs {
		text, readErr := os.ReadFile(rec.CleanPath)
		if readErr != nil {
			if errors.Is(readErr, fs.ErrNotExist) {
				skipped++
				continue
			}
			return written, skipped, fmt.Errorf("read clean text for %s: %w", rec.Digest, readErr)
		}
		line := DatasetLine{
			ID:         rec.Digest,
			Text:       string(text),
			License:    rec.ContractKey,
			ManualMeta: rec.Manual,
			AutoMeta:   rec.Inferred,
			UploaderID: rec.UploaderID,
			Paths: DatasetPaths{
				Original: rec.RawPath,
				Standard: rec.CleanPath,
			},
		}
		if err := enc.Encode(line); err != nil {
			return written, skipped, fmt.Errorf("encode dataset line for %s: %w", rec.Digest, err)
		}
		written++
	}
	return written, skipped, nil
}
