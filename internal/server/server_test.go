package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/moegate-ai/moegate/internal/config"
	"github.com/moegate-ai/moegate/internal/expert"
	"github.com/moegate-ai/moegate/internal/gate"
	"github.com/moegate-ai/moegate/internal/pipeline"
)

func baseTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Addr:                ":8080",
			MaxRequestBodyBytes: 1 << 20,
			RequestTTLMinutes:   30,
		},
		Experts: []config.ExpertConfig{
			{Name: "byt5", Type: "echo"},
			{Name: "longformer", Type: "echo"},
		},
		Gate: config.GateConfig{Seed: 42},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	registry, err := expert.BuildRegistry(cfg.Experts)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	g, err := gate.New(registry.Len(), cfg.Gate.Seed)
	if err != nil {
		t.Fatalf("gate.New: %v", err)
	}
	proc := pipeline.New(registry, g, nil, nil)
	return New(cfg, proc, registry, "initialized")
}

func postJSON(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) apiErrorBody {
	t.Helper()
	var body apiErrorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error json: %v (%s)", err, rr.Body.String())
	}
	return body
}

func TestProcessSyncHappyPath(t *testing.T) {
	s := newTestServer(t, baseTestConfig())

	rr := postJSON(t, s, "/process/sync", `{"text":"hello world"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp processResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Result == "" {
		t.Fatalf("empty result")
	}
	if resp.ExpertUsed != "byt5" && resp.ExpertUsed != "longformer" {
		t.Fatalf("unexpected expert %q", resp.ExpertUsed)
	}
	if resp.Confidence <= 0 || resp.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", resp.Confidence)
	}
	if resp.RequestID == "" {
		t.Fatalf("missing request_id")
	}
	if len(resp.InputFeatures) != 5 {
		t.Fatalf("input_features: %v", resp.InputFeatures)
	}
	if rr.Header().Get("X-Moegate-Request-Id") != resp.RequestID {
		t.Fatalf("request id header mismatch")
	}
}

func TestProcessAsyncMatchesSyncRoute(t *testing.T) {
	s := newTestServer(t, baseTestConfig())

	syncRR := postJSON(t, s, "/process/sync", `{"text":"same text both ways"}`)
	asyncRR := postJSON(t, s, "/process", `{"text":"same text both ways"}`)

	if syncRR.Code != http.StatusOK || asyncRR.Code != http.StatusOK {
		t.Fatalf("expected 200/200, got %d/%d", syncRR.Code, asyncRR.Code)
	}

	var syncResp, asyncResp processResponse
	if err := json.Unmarshal(syncRR.Body.Bytes(), &syncResp); err != nil {
		t.Fatalf("sync json: %v", err)
	}
	if err := json.Unmarshal(asyncRR.Body.Bytes(), &asyncResp); err != nil {
		t.Fatalf("async json: %v", err)
	}
	if syncResp.Result != asyncResp.Result || syncResp.ExpertUsed != asyncResp.ExpertUsed {
		t.Fatalf("entry points disagree: %+v vs %+v", syncResp, asyncResp)
	}
}

func TestProcessWithOptions(t *testing.T) {
	s := newTestServer(t, baseTestConfig())

	rr := postJSON(t, s, "/process/sync",
		`{"text":"hello","options":{"truncate_length":9,"to_uppercase":true,"force_expert":"longformer"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp processResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.ExpertUsed != "longformer" {
		t.Fatalf("force_expert not honored: %q", resp.ExpertUsed)
	}
	if resp.Confidence != 1.0 {
		t.Fatalf("forced confidence: got %v", resp.Confidence)
	}
	if resp.Result != "PROCESSED..." {
		t.Fatalf("postprocess: got %q", resp.Result)
	}
}

func TestProcessUnknownForceExpert(t *testing.T) {
	s := newTestServer(t, baseTestConfig())

	rr := postJSON(t, s, "/process/sync", `{"text":"hello","options":{"force_expert":"gpt9"}}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	body := decodeError(t, rr)
	if body.Error.Type != "unknown_expert" {
		t.Fatalf("error type: got %q", body.Error.Type)
	}
	if !strings.Contains(body.Error.Message, "gpt9") {
		t.Fatalf("error message should name the expert: %q", body.Error.Message)
	}
}

func TestProcessUnsupportedTask(t *testing.T) {
	s := newTestServer(t, baseTestConfig())

	rr := postJSON(t, s, "/process/sync", `{"text":"hello","task":"translate"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	body := decodeError(t, rr)
	if body.Error.Type != "unsupported_task" {
		t.Fatalf("error type: got %q", body.Error.Type)
	}
}

func TestProcessInvalidJSON(t *testing.T) {
	s := newTestServer(t, baseTestConfig())

	rr := postJSON(t, s, "/process/sync", `{"text": `)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestProcessBodyTooLarge(t *testing.T) {
	cfg := baseTestConfig()
	cfg.Server.MaxRequestBodyBytes = 64
	s := newTestServer(t, cfg)

	body := `{"text":"` + strings.Repeat("a", 200) + `"}`
	rr := postJSON(t, s, "/process/sync", body)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}

func TestProcessMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, baseTestConfig())

	for _, path := range []string{"/process", "/process/sync"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)
		if rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected 405, got %d", path, rr.Code)
		}
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, baseTestConfig())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Status != "healthy" {
		t.Fatalf("status: got %q", resp.Status)
	}
	if !resp.ModelsLoaded {
		t.Fatalf("models_loaded should be true")
	}
	if len(resp.Experts) != 2 {
		t.Fatalf("experts: %v", resp.Experts)
	}
	if resp.GateSource != "initialized" {
		t.Fatalf("gate_source: got %q", resp.GateSource)
	}
}

func TestRequestStatusAfterProcess(t *testing.T) {
	s := newTestServer(t, baseTestConfig())

	rr := postJSON(t, s, "/process/sync", `{"text":"hello"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp processResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/requests/"+resp.RequestID, nil)
	statusRR := httptest.NewRecorder()
	s.Handler().ServeHTTP(statusRR, req)

	if statusRR.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", statusRR.Code)
	}
	var status struct {
		RequestID  string  `json:"request_id"`
		Status     string  `json:"status"`
		ExpertUsed string  `json:"expert_used"`
		Confidence float32 `json:"confidence"`
	}
	if err := json.Unmarshal(statusRR.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if status.Status != "completed" {
		t.Fatalf("status: got %q", status.Status)
	}
	if status.ExpertUsed != resp.ExpertUsed {
		t.Fatalf("expert mismatch: %q vs %q", status.ExpertUsed, resp.ExpertUsed)
	}
}

func TestRequestStatusUnknownID(t *testing.T) {
	s := newTestServer(t, baseTestConfig())

	req := httptest.NewRequest(http.MethodGet, "/requests/deadbeef", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestRequestStoreExpiry(t *testing.T) {
	store := newRequestStore(10 * time.Millisecond)
	store.Start("abc", "process")
	store.Complete("abc", "byt5", 0.9)

	if _, ok := store.Get("abc"); !ok {
		t.Fatalf("entry should be visible before expiry")
	}

	time.Sleep(25 * time.Millisecond)
	if _, ok := store.Get("abc"); ok {
		t.Fatalf("entry should expire")
	}
}

func TestRequestIDsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := newRequestID()
		if len(id) != 32 {
			t.Fatalf("request id length: got %d", len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate request id %q", id)
		}
		seen[id] = true
	}
}
