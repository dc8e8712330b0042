package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gisman/bigcache/internal/lifecycle"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctrl, err := lifecycle.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("lifecycle.Open: %v", err)
	}
	t.Cleanup(func() { _ = ctrl.Shutdown() })

	cfg := DefaultConfig()
	srv := httptest.NewServer(NewHandler(ctrl, cfg))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestSetAndGetWithDuration(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/cache/test_key", map[string]any{
		"value":    "test_value",
		"duration": "10s",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /cache: status %d", resp.StatusCode)
	}
	var setResp setResponse
	decodeJSON(t, resp, &setResp)
	if setResp.Key != "test_key" || setResp.Expire == nil {
		t.Fatalf("unexpected set response: %+v", setResp)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/cache/test_key", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /cache: status %d", resp.StatusCode)
	}
	var getResp getResponse
	decodeJSON(t, resp, &getResp)
	if string(getResp.Value) != `"test_value"` {
		t.Fatalf("Value = %s, want \"test_value\"", getResp.Value)
	}
}

func TestExpirationFlow(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/cache/test_key", map[string]any{
		"value":    "test_value",
		"duration": "1s",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /cache: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	time.Sleep(2 * time.Second)

	resp = doJSON(t, http.MethodGet, srv.URL+"/cache/test_key", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("first GET after expiry: status %d, want 404", resp.StatusCode)
	}
	var msg messageResponse
	decodeJSON(t, resp, &msg)
	if msg.Message != "expired" {
		t.Fatalf("message = %q, want expired", msg.Message)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/cache/test_key", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second GET: status %d, want 404", resp.StatusCode)
	}
	decodeJSON(t, resp, &msg)
	if msg.Message != "miss" {
		t.Fatalf("message = %q, want miss", msg.Message)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/stat", nil)
	var stats statsResponse
	decodeJSON(t, resp, &stats)
	if stats.Stats.Expire != 1 || stats.Stats.Miss != 1 {
		t.Fatalf("stats = %+v, want expire=1 miss=1", stats.Stats)
	}
}

func TestDeleteFlow(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/cache/test_key", map[string]any{"value": "v"}).Body.Close()

	resp := doJSON(t, http.MethodDelete, srv.URL+"/cache/test_key", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("DELETE: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/cache/test_key", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, srv.URL+"/cache/unknown_key", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("DELETE unknown key: status %d", resp.StatusCode)
	}
}

func TestPrefixDelete(t *testing.T) {
	srv := newTestServer(t)

	for _, k := range []string{"a/1", "a/2", "a/3", "b/1"} {
		doJSON(t, http.MethodPost, srv.URL+"/cache/"+k, map[string]any{"value": "v"}).Body.Close()
	}

	resp := doJSON(t, http.MethodDelete, srv.URL+"/prefix/a/", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("DELETE /prefix: status %d", resp.StatusCode)
	}
	var body map[string]any
	decodeJSON(t, resp, &body)
	if int(body["count"].(float64)) != 3 {
		t.Fatalf("deleted count = %v, want 3", body["count"])
	}

	for _, k := range []string{"a/1", "a/2", "a/3"} {
		resp := doJSON(t, http.MethodGet, srv.URL+"/cache/"+k, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("GET %s after prefix delete: status %d", k, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/cache/b/1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET b/1: status %d", resp.StatusCode)
	}
}

func TestOpaqueRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	blob := []byte{0x00, 0x01, 0xFF, 0x7F}
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/pickle/blob", bytes.NewReader(blob))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /pickle: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /pickle: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/pickle/blob", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /pickle: status %d", resp.StatusCode)
	}
	defer resp.Body.Close()
	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Equal(got, blob) {
		t.Fatalf("got %v, want %v", got, blob)
	}
}

func TestSlashNormalization(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/cache//a/b//", map[string]any{"value": "v"}).Body.Close()

	for _, path := range []string{"/cache/a/b", "/cache//a/b/"} {
		resp := doJSON(t, http.MethodGet, srv.URL+path, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: status %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestClearResetsCountAndCounters(t *testing.T) {
	srv := newTestServer(t)

	for _, k := range []string{"a", "b", "c"} {
		doJSON(t, http.MethodPost, srv.URL+"/cache/"+k, map[string]any{"value": "v"}).Body.Close()
	}
	doJSON(t, http.MethodGet, srv.URL+"/cache/a", nil).Body.Close()
	doJSON(t, http.MethodGet, srv.URL+"/cache/missing", nil).Body.Close()

	resp := doJSON(t, http.MethodGet, srv.URL+"/clear", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /clear: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/stat/count", nil)
	var cr countResponse
	decodeJSON(t, resp, &cr)
	if cr.Count != 0 {
		t.Fatalf("count after clear = %d, want 0", cr.Count)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/stat", nil)
	var stats statsResponse
	decodeJSON(t, resp, &stats)
	if stats.Stats.Hit != 0 || stats.Stats.Miss != 0 || stats.Stats.Expire != 0 || stats.Stats.Delete != 0 {
		t.Fatalf("stats after clear = %+v, want all zero", stats.Stats)
	}
}

func TestEmptyPrefixIsBadRequest(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodDelete, srv.URL+"/prefix/", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("DELETE /prefix/: status %d, want 400", resp.StatusCode)
	}
}
