package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testPassword = "Sufficiently1LongPw"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := New(context.Background(), Config{DataDir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func registerAndLogin(t *testing.T, ts *httptest.Server, username string) string {
	t.Helper()
	if code, body := doJSON(t, ts, http.MethodPost, "/api/register", "", map[string]string{
		"username": username, "password": testPassword,
	}); code != http.StatusCreated {
		t.Fatalf("register: %d %v", code, body)
	}
	code, body := doJSON(t, ts, http.MethodPost, "/api/login", "", map[string]string{
		"username": username, "password": testPassword,
	})
	if code != http.StatusOK {
		t.Fatalf("login: %d %v", code, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("login returned no token")
	}
	return token
}

func TestRegisterLoginAndKeyLifecycle(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts, "sam")

	code, body := doJSON(t, ts, http.MethodGet, "/api/key/status", token, nil)
	if code != http.StatusOK || body["status"] != "missing" {
		t.Fatalf("status before generate: %d %v", code, body)
	}

	code, body = doJSON(t, ts, http.MethodPost, "/api/key/generate", token, map[string]string{
		"passphrase": testPassword,
	})
	if code != http.StatusCreated {
		t.Fatalf("generate: %d %v", code, body)
	}
	words, _ := body["recovery_phrase"].(string)
	if len(strings.Fields(words)) != 24 {
		t.Fatalf("expected 24-word phrase, got %q", words)
	}

	// second generate must refuse
	if code, _ := doJSON(t, ts, http.MethodPost, "/api/key/generate", token, map[string]string{
		"passphrase": testPassword,
	}); code != http.StatusConflict {
		t.Fatalf("second generate: %d", code)
	}

	if code, body := doJSON(t, ts, http.MethodGet, "/api/key/status", token, nil); body["status"] != "ready" {
		t.Fatalf("status after generate: %d %v", code, body)
	}

	if code, _ := doJSON(t, ts, http.MethodPost, "/api/key/lock", token, nil); code != http.StatusOK {
		t.Fatalf("lock: %d", code)
	}
	if _, body := doJSON(t, ts, http.MethodGet, "/api/key/status", token, nil); body["status"] != "locked" {
		t.Fatalf("status after lock: %v", body)
	}

	if code, _ := doJSON(t, ts, http.MethodPost, "/api/key/unlock", token, map[string]string{
		"passphrase": "Wrong1Passphrase",
	}); code != http.StatusUnauthorized {
		t.Fatalf("wrong passphrase unlock: %d", code)
	}
	if code, _ := doJSON(t, ts, http.MethodPost, "/api/key/unlock", token, map[string]string{
		"passphrase": testPassword,
	}); code != http.StatusOK {
		t.Fatalf("unlock: %d", code)
	}

	// recover with the one-time phrase and set a new passphrase
	if code, _ := doJSON(t, ts, http.MethodPost, "/api/key/lock", token, nil); code != http.StatusOK {
		t.Fatalf("lock: %d", code)
	}
	code, body = doJSON(t, ts, http.MethodPost, "/api/key/recover", token, map[string]string{
		"phrase": words, "new_passphrase": "Another1LongPw!!",
	})
	if code != http.StatusOK {
		t.Fatalf("recover: %d %v", code, body)
	}
}

func TestDocumentRoundTripThroughAPI(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts, "jo")

	// documents are refused while no key is unlocked
	if code, _ := doJSON(t, ts, http.MethodPut, "/api/documents/journal/day-1", token, map[string]any{
		"title": "first entry",
	}); code != http.StatusConflict {
		t.Fatalf("put without key: %d", code)
	}

	if code, _ := doJSON(t, ts, http.MethodPost, "/api/key/generate", token, map[string]string{
		"passphrase": testPassword,
	}); code != http.StatusCreated {
		t.Fatalf("generate: %d", code)
	}

	doc := map[string]any{
		"title": "first entry",
		"body":  "wrote some Go today",
		"tags":  []any{"go", "journal"},
		"mood":  "good",
	}
	if code, body := doJSON(t, ts, http.MethodPut, "/api/documents/journal/day-1", token, doc); code != http.StatusOK {
		t.Fatalf("put: %d %v", code, body)
	}

	code, got := doJSON(t, ts, http.MethodGet, "/api/documents/journal/day-1", token, nil)
	if code != http.StatusOK {
		t.Fatalf("get: %d %v", code, got)
	}
	if got["title"] != "first entry" || got["body"] != "wrote some Go today" || got["mood"] != "good" {
		t.Fatalf("decrypted document mismatch: %v", got)
	}

	code, body := doJSON(t, ts, http.MethodPost, "/api/documents/journal", token, doc)
	if code != http.StatusCreated || body["id"] == "" {
		t.Fatalf("create: %d %v", code, body)
	}

	if code, _ := doJSON(t, ts, http.MethodDelete, "/api/documents/journal/day-1", token, nil); code != http.StatusOK {
		t.Fatalf("delete: %d", code)
	}
	if code, _ := doJSON(t, ts, http.MethodGet, "/api/documents/journal/day-1", token, nil); code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", code)
	}
}

func TestMigrateEndpoint(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts, "kim")

	if code, _ := doJSON(t, ts, http.MethodPost, "/api/key/generate", token, map[string]string{
		"passphrase": testPassword,
	}); code != http.StatusCreated {
		t.Fatalf("generate: %d", code)
	}

	entries := []map[string]any{
		{"id": "g-1", "collection": "journal", "doc": map[string]any{"title": "guest one", "body": "a"}},
		{"id": "g-2", "collection": "journal", "doc": map[string]any{"title": "guest two", "body": "b"}},
	}
	code, body := doJSON(t, ts, http.MethodPost, "/api/migrate", token, map[string]any{"entries": entries})
	if code != http.StatusOK {
		t.Fatalf("migrate: %d %v", code, body)
	}

	code, got := doJSON(t, ts, http.MethodGet, "/api/documents/journal/g-1", token, nil)
	if code != http.StatusOK || got["title"] != "guest one" {
		t.Fatalf("migrated doc: %d %v", code, got)
	}
}

func TestRoutesRequireAuth(t *testing.T) {
	ts := newTestServer(t)
	cases := []struct{ method, path string }{
		{http.MethodGet, "/api/key/status"},
		{http.MethodPost, "/api/key/unlock"},
		{http.MethodGet, "/api/documents/journal/x"},
		{http.MethodPost, "/api/migrate"},
	}
	for _, c := range cases {
		code, _ := doJSON(t, ts, c.method, c.path, "", nil)
		if code != http.StatusUnauthorized {
			t.Fatalf("%s %s without token: %d", c.method, c.path, code)
		}
	}
}
