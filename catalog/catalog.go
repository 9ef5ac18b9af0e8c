// Package catalog defines the upload record model and the JSON index store
// keyed by content digest. The digest is the dedupe identity: one record per
// distinct byte sequence, surviving filename changes.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hazyhaar/codexa/infer"
)

// Digest returns the lowercase hex SHA-256 of data. Pure; used as the dedupe
// key and as stable record identity.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Contract is a usage-rights label from the fixed closed set. It classifies
// an upload; nothing here enforces permissions.
type Contract struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Contracts is the closed set of accepted usage contracts.
var Contracts = []Contract{
	{Key: "pretrain_v1", Label: "Pretrain v1 (prototype only)"},
	{Key: "finetune_v1", Label: "Finetune v1 (prototype only)"},
	{Key: "research_v1", Label: "Research v1 (internal evaluation)"},
}

// ContractByKey resolves a contract key against the closed set.
func ContractByKey(key string) (Contract, bool) {
	for _, c := range Contracts {
		if c.Key == key {
			return c, true
		}
	}
	return Contract{}, false
}

// Record statuses. Duplicates are never persisted as records; the duplicate
// status appears only in transient ingest reports referencing the original.
const (
	StatusOK        = "ok"
	StatusDuplicate = "duplicate"
)

// ManualMetadata is supplied by the uploader at ingest time and never
// auto-overwritten.
type ManualMetadata struct {
	Language string   `json:"language,omitempty"`
	Genre    string   `json:"genre,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Record is one accepted upload, keyed by Digest in the index.
//
// Digest, SizeBytes, UploadedAt and UploaderID are immutable after creation.
// Inferred is recomputable at any time from the stored files plus
// OriginalName; Manual is only ever changed by the uploader or an admin.
type Record struct {
	Digest       string `json:"digest"`
	OriginalName string `json:"original_name"`
	RawPath      string `json:"raw_path"`
	CleanPath    string `json:"clean_path,omitempty"`

	ContractKey   string `json:"contract_key"`
	ContractLabel string `json:"contract_label"`

	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
	UploaderID string    `json:"uploader_id,omitempty"`

	Manual   ManualMetadata `json:"manual_metadata"`
	Inferred infer.Metadata `json:"inferred_metadata"`

	// ViewOverride opens the stored content to non-admin readers. Off by
	// default; only an admin flips it.
	ViewOverride bool `json:"view_override,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
	Status   string   `json:"status"`
}

// HasCleanText reports whether extraction produced a stored cleaned text.
func (r *Record) HasCleanText() bool {
	return r.CleanPath != ""
}
