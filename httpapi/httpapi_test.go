package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/codexa/admin"
	"github.com/hazyhaar/codexa/catalog"
	"github.com/hazyhaar/codexa/ingest"
	"github.com/hazyhaar/codexa/manifest"
)

const testAdminPass = "letmein"

func testServer(t *testing.T) (*httptest.Server, *ingest.Ingester) {
	t.Helper()
	dir := t.TempDir()
	cfg := ingest.DefaultConfig()
	cfg.StorageDir = filepath.Join(dir, "storage")
	cfg.IndexPath = filepath.Join(dir, "storage", "index.json")
	hash, err := admin.HashPassword(testAdminPass)
	if err != nil {
		t.Fatal(err)
	}
	cfg.AdminPassHash = hash

	ing, err := ingest.NewIngester(cfg, ingest.WithClock(func() time.Time {
		return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	}))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ing.Close() })

	adm := admin.New(ing, admin.NewGate(cfg.AdminPassHash))
	svc := New(ing, adm, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	r := chi.NewRouter()
	svc.RegisterHTTP(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, ing
}

func multipartUpload(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for name, data := range files {
		part, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, srv *httptest.Server, name string, data []byte) *ingest.Result {
	t.Helper()
	body, ctype := multipartUpload(t,
		map[string]string{"contract": "pretrain_v1", "uploader_id": "up-1"},
		map[string][]byte{name: data},
	)
	resp, err := http.Post(srv.URL+"/v1/ingest", ctype, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload status %d: %s", resp.StatusCode, raw)
	}
	var res ingest.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	return &res
}

func TestIngestEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	res := upload(t, srv, "report_2019.txt", []byte("Annual Report 2019\n\nAll numbers up."))
	if res.Status != catalog.StatusOK {
		t.Fatalf("status = %q", res.Status)
	}
	if res.Record.Inferred.Year != 2019 {
		t.Fatalf("year = %d", res.Record.Inferred.Year)
	}
}

func TestIngestDuplicateGets409(t *testing.T) {
	srv, _ := testServer(t)
	upload(t, srv, "a.txt", []byte("same content"))

	body, ctype := multipartUpload(t,
		map[string]string{"contract": "pretrain_v1"},
		map[string][]byte{"b.txt": []byte("same content")},
	)
	resp, err := http.Post(srv.URL+"/v1/ingest", ctype, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var res ingest.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Duplicate == nil || res.Duplicate.ExistingName != "a.txt" {
		t.Fatalf("duplicate = %+v", res.Duplicate)
	}
}

func TestIngestSanitizesManualMetadata(t *testing.T) {
	srv, ing := testServer(t)
	body, ctype := multipartUpload(t,
		map[string]string{
			"contract": "research_v1",
			"genre":    `essay<script>alert("x")</script>`,
			"tags":     "history, <b>bold</b> ",
		},
		map[string][]byte{"tagged.txt": []byte("tagged content")},
	)
	resp, err := http.Post(srv.URL+"/v1/ingest", ctype, body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	index, err := ing.Store.Load()
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range index {
		if strings.Contains(rec.Manual.Genre, "<script>") {
			t.Fatalf("genre not sanitized: %q", rec.Manual.Genre)
		}
		if len(rec.Manual.Tags) != 2 || rec.Manual.Tags[1] != "bold" {
			t.Fatalf("tags = %v", rec.Manual.Tags)
		}
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := testServer(t)
	resp, err := http.Get(srv.URL + "/v1/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if id := resp.Header.Get("X-Request-ID"); !strings.HasPrefix(id, "req_") {
		t.Fatalf("X-Request-ID = %q", id)
	}
}

func TestRecordsEndpoints(t *testing.T) {
	srv, _ := testServer(t)
	res := upload(t, srv, "findable.txt", []byte("some findable text"))

	resp, err := http.Get(srv.URL + "/v1/records")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var list struct {
		Count   int              `json:"count"`
		Records []catalog.Record `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 1 || list.Records[0].Digest != res.Digest {
		t.Fatalf("list = %+v", list)
	}

	one, err := http.Get(srv.URL + "/v1/records/" + res.Digest)
	if err != nil {
		t.Fatal(err)
	}
	one.Body.Close()
	if one.StatusCode != http.StatusOK {
		t.Fatalf("get record status = %d", one.StatusCode)
	}

	missing, err := http.Get(srv.URL + "/v1/records/deadbeef")
	if err != nil {
		t.Fatal(err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing record status = %d", missing.StatusCode)
	}
}

func TestManifestEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	upload(t, srv, "one.txt", []byte("first document text"))
	upload(t, srv, "two.txt", []byte("second document text"))

	resp, err := http.Get(srv.URL + "/v1/manifest?contract=pretrain_v1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var m manifest.Manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(m.ManifestID, "man_") {
		t.Fatalf("manifest id = %q", m.ManifestID)
	}
	if m.Stats.Files != 2 || len(m.Files) != 2 {
		t.Fatalf("stats = %+v", m.Stats)
	}
	if m.Query.Contract != "pretrain_v1" {
		t.Fatalf("query echo = %+v", m.Query)
	}
}

func TestDatasetEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	upload(t, srv, "line.txt", []byte("dataset line content"))

	resp, err := http.Get(srv.URL + "/v1/dataset.jsonl")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(raw), &line); err != nil {
		t.Fatalf("bad jsonl %q: %v", raw, err)
	}
	if line["text"] != "dataset line content" {
		t.Fatalf("line = %v", line)
	}
}

func TestUploaderEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	upload(t, srv, "mine.txt", []byte("uploader owned content"))

	resp, err := http.Get(srv.URL + "/v1/uploaders/up-1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var profile struct {
		UploaderID string `json:"uploader_id"`
		Files      int    `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		t.Fatal(err)
	}
	if profile.UploaderID != "up-1" || profile.Files != 1 {
		t.Fatalf("profile = %+v", profile)
	}

	missing, err := http.Get(srv.URL + "/v1/uploaders/nobody")
	if err != nil {
		t.Fatal(err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown uploader status = %d", missing.StatusCode)
	}
}

func adminReq(t *testing.T, srv *httptest.Server, method, path, pass string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, body)
	if err != nil {
		t.Fatal(err)
	}
	if pass != "" {
		req.Header.Set("X-Admin-Password", pass)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestAdminGate(t *testing.T) {
	srv, _ := testServer(t)

	resp := adminReq(t, srv, http.MethodPost, "/v1/admin/clear", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no password: status = %d", resp.StatusCode)
	}

	resp = adminReq(t, srv, http.MethodPost, "/v1/admin/clear", "wrong", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password: status = %d", resp.StatusCode)
	}

	resp = adminReq(t, srv, http.MethodPost, "/v1/admin/clear", testAdminPass, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("correct password: status = %d", resp.StatusCode)
	}
}

func TestAdminDeleteAndContract(t *testing.T) {
	srv, _ := testServer(t)
	res := upload(t, srv, "managed.txt", []byte("managed record content"))

	resp := adminReq(t, srv, http.MethodPost, "/v1/admin/records/"+res.Digest+"/contract",
		testAdminPass, strings.NewReader(`{"contract":"finetune_v1"}`))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("override status = %d", resp.StatusCode)
	}
	var rec catalog.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatal(err)
	}
	if rec.ContractKey != "finetune_v1" {
		t.Fatalf("contract = %q", rec.ContractKey)
	}

	del := adminReq(t, srv, http.MethodDelete, "/v1/admin/records/"+res.Digest, testAdminPass, nil)
	del.Body.Close()
	if del.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", del.StatusCode)
	}

	gone, err := http.Get(srv.URL + "/v1/records/" + res.Digest)
	if err != nil {
		t.Fatal(err)
	}
	gone.Body.Close()
	if gone.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted record still served: %d", gone.StatusCode)
	}
}

func TestRecordContentViewGating(t *testing.T) {
	srv, _ := testServer(t)
	res := upload(t, srv, "gated.txt", []byte("content behind the view gate"))

	// Not viewable by default.
	blocked, err := http.Get(srv.URL + "/v1/records/" + res.Digest + "/content")
	if err != nil {
		t.Fatal(err)
	}
	blocked.Body.Close()
	if blocked.StatusCode != http.StatusForbidden {
		t.Fatalf("gated content status = %d", blocked.StatusCode)
	}

	// The admin password bypasses the gate.
	asAdmin := adminReq(t, srv, http.MethodGet, "/v1/records/"+res.Digest+"/content", testAdminPass, nil)
	asAdmin.Body.Close()
	if asAdmin.StatusCode != http.StatusOK {
		t.Fatalf("admin content status = %d", asAdmin.StatusCode)
	}

	// Flip the override, then anyone can read it.
	flip := adminReq(t, srv, http.MethodPost, "/v1/admin/records/"+res.Digest+"/view",
		testAdminPass, strings.NewReader(`{"allowed":true}`))
	flip.Body.Close()
	if flip.StatusCode != http.StatusOK {
		t.Fatalf("view override status = %d", flip.StatusCode)
	}

	open, err := http.Get(srv.URL + "/v1/records/" + res.Digest + "/content")
	if err != nil {
		t.Fatal(err)
	}
	defer open.Body.Close()
	if open.StatusCode != http.StatusOK {
		t.Fatalf("open content status = %d", open.StatusCode)
	}
	raw, _ := io.ReadAll(open.Body)
	if !strings.Contains(string(raw), "content behind the view gate") {
		t.Fatalf("content = %q", raw)
	}
}

func TestAdminIndexRoundTrip(t *testing.T) {
	srv, _ := testServer(t)
	res := upload(t, srv, "export_me.txt", []byte("round trip content"))

	exp := adminReq(t, srv, http.MethodGet, "/v1/admin/index", testAdminPass, nil)
	raw, _ := io.ReadAll(exp.Body)
	exp.Body.Close()
	if exp.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d", exp.StatusCode)
	}

	wipe := adminReq(t, srv, http.MethodPost, "/v1/admin/clear", testAdminPass, nil)
	wipe.Body.Close()

	put := adminReq(t, srv, http.MethodPut, "/v1/admin/index", testAdminPass, bytes.NewReader(raw))
	put.Body.Close()
	if put.StatusCode != http.StatusOK {
		t.Fatalf("replace status = %d", put.StatusCode)
	}

	back, err := http.Get(srv.URL + "/v1/records/" + res.Digest)
	if err != nil {
		t.Fatal(err)
	}
	back.Body.Close()
	if back.StatusCode != http.StatusOK {
		t.Fatalf("restored record status = %d", back.StatusCode)
	}
}
