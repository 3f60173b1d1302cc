package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"relaygate/internal/config"
	"relaygate/internal/pool"
	"relaygate/internal/upstream"

	"github.com/gin-gonic/gin"
)

func newTestPipeline(t *testing.T, upstreamURL string, tokens ...string) *Pipeline {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	actor := pool.NewActor(nil, nil)
	handle := actor.Start(ctx, nil, nil, nil)
	for _, tok := range tokens {
		if err := handle.Submit(context.Background(), &pool.Credential{Token: tok}); err != nil {
			t.Fatalf("Submit() error: %v", err)
		}
	}
	cfg := &config.Config{}
	cfg.Upstream.BaseURL = upstreamURL
	return NewPipeline(handle, upstream.New(cfg))
}

// nativeSuccessHandler simulates a healthy upstream message-API response
// carrying usage metrics the pipeline should apply on Return.
func nativeSuccessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"stop_reason": "end_turn",
			"content": [{"type": "text", "text": "hello back"}],
			"usage": {
				"input_tokens": 10,
				"output_tokens": 5,
				"subscription_tier": "pro",
				"session": {"utilization": 7, "resets_at": 9999999999, "has_reset": false}
			}
		}`))
	}
}

func TestPipelineHandleNativeSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)

	server := httptest.NewServer(nativeSuccessHandler())
	defer server.Close()

	p := newTestPipeline(t, server.URL, "tok-a")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body := []byte(`{"model":"claude-3-opus","messages":[{"role":"user","content":"hi"}]}`)
	c.Request = httptest.NewRequest("POST", "/v1/messages", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	p.HandleNative(c)

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}

	status, err := p.pool.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if len(status.Valid) != 1 {
		t.Fatalf("expected credential returned to active, got %+v", status.Valid)
	}
	if status.Valid[0].Session.Usage != 7 {
		t.Errorf("Session.Usage = %d, want 7", status.Valid[0].Session.Usage)
	}
}

func TestPipelineHandleNativeNoCredential(t *testing.T) {
	gin.SetMode(gin.TestMode)

	server := httptest.NewServer(nativeSuccessHandler())
	defer server.Close()

	p := newTestPipeline(t, server.URL)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body := []byte(`{"model":"claude-3-opus","messages":[{"role":"user","content":"hi"}]}`)
	c.Request = httptest.NewRequest("POST", "/v1/messages", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	p.HandleNative(c)

	if w.Code != 503 {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestPipelineHandleOpenAITranslates(t *testing.T) {
	gin.SetMode(gin.TestMode)

	server := httptest.NewServer(nativeSuccessHandler())
	defer server.Close()

	p := newTestPipeline(t, server.URL, "tok-b")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body := []byte(`{"model":"claude-3-opus","messages":[{"role":"system","content":"be terse"},{"role":"user","content":"hi"}]}`)
	c.Request = httptest.NewRequest("POST", "/v1/chat/completions", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	p.HandleOpenAI(c)

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["object"] != "chat.completion" {
		t.Errorf("object = %v, want chat.completion", resp["object"])
	}
}
