package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"relaygate/internal/pool"

	"github.com/gin-gonic/gin"
)

func newTestAdmin(t *testing.T) *Admin {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	actor := pool.NewActor(nil, nil)
	handle := actor.Start(ctx, nil, nil, nil)
	return NewAdmin(handle, nil, nil, "test-version")
}

func TestAdminSubmitRejectsEmptyToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	admin := newTestAdmin(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/api/cookie", bytes.NewReader([]byte(`{"token":""}`)))
	c.Request.Header.Set("Content-Type", "application/json")

	admin.Submit(c)

	if w.Code != 400 {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAdminSubmitAccepts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	admin := newTestAdmin(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/api/cookie", bytes.NewReader([]byte(`{"token":"tok-1","subscription_tier":"pro"}`)))
	c.Request.Header.Set("Content-Type", "application/json")

	admin.Submit(c)

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}

	status, err := admin.pool.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if len(status.Valid) != 1 || status.Valid[0].Token != "tok-1" {
		t.Errorf("expected tok-1 in active pool, got %+v", status.Valid)
	}
}

func TestAdminDeleteNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	admin := newTestAdmin(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("DELETE", "/api/cookie", bytes.NewReader([]byte(`{"token":"missing"}`)))
	c.Request.Header.Set("Content-Type", "application/json")

	admin.Delete(c)

	if w.Code != 500 {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestAdminDeleteSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	admin := newTestAdmin(t)
	if err := admin.pool.Submit(context.Background(), &pool.Credential{Token: "tok-2"}); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("DELETE", "/api/cookie", bytes.NewReader([]byte(`{"token":"tok-2"}`)))
	c.Request.Header.Set("Content-Type", "application/json")

	admin.Delete(c)

	if w.Code != 204 {
		t.Errorf("status = %d, want 204", w.Code)
	}
}

func TestAdminListCacheHitOnSecondCall(t *testing.T) {
	gin.SetMode(gin.TestMode)
	admin := newTestAdmin(t)
	if err := admin.pool.Submit(context.Background(), &pool.Credential{Token: "tok-3"}); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	w1 := httptest.NewRecorder()
	c1, _ := gin.CreateTestContext(w1)
	c1.Request = httptest.NewRequest("GET", "/api/cookies", nil)
	admin.List(c1)

	if got := w1.Header().Get("X-Cache-Status"); got != "MISS" {
		t.Errorf("first call X-Cache-Status = %q, want MISS", got)
	}

	w2 := httptest.NewRecorder()
	c2, _ := gin.CreateTestContext(w2)
	c2.Request = httptest.NewRequest("GET", "/api/cookies", nil)
	admin.List(c2)

	if got := w2.Header().Get("X-Cache-Status"); got != "HIT" {
		t.Errorf("second call X-Cache-Status = %q, want HIT", got)
	}

	var snap enrichedSnapshot
	if err := json.Unmarshal(w2.Body.Bytes(), &snap); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(snap.Valid) != 1 || snap.Valid[0].Token != "tok-3" {
		t.Errorf("expected tok-3 in valid list, got %+v", snap.Valid)
	}
}

func TestAdminAuthAndVersion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	admin := newTestAdmin(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	admin.Auth(c)
	if w.Code != 200 {
		t.Errorf("Auth() status = %d, want 200", w.Code)
	}

	w2 := httptest.NewRecorder()
	c2, _ := gin.CreateTestContext(w2)
	admin.Version(c2)
	var body map[string]string
	if err := json.Unmarshal(w2.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body["version"] != "test-version" {
		t.Errorf("version = %q, want test-version", body["version"])
	}
}
