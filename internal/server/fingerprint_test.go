package server

import "testing"

func TestFingerprintRequestStable(t *testing.T) {
	a := fingerprintRequest("claude-3-opus", "hello there")
	b := fingerprintRequest("claude-3-opus", "hello there")
	if a != b {
		t.Errorf("fingerprintRequest() not stable: %d != %d", a, b)
	}
}

func TestFingerprintRequestDiffersByModel(t *testing.T) {
	a := fingerprintRequest("claude-3-opus", "hello there")
	b := fingerprintRequest("claude-3-sonnet", "hello there")
	if a == b {
		t.Error("fingerprintRequest() should differ across models")
	}
}

func TestFingerprintRequestDiffersByMessage(t *testing.T) {
	a := fingerprintRequest("claude-3-opus", "hello there")
	b := fingerprintRequest("claude-3-opus", "goodbye there")
	if a == b {
		t.Error("fingerprintRequest() should differ across first messages")
	}
}

func TestFirstMessageContentString(t *testing.T) {
	raw := map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": "hi"},
		},
	}
	if got := firstMessageContent(raw); got != "hi" {
		t.Errorf("firstMessageContent() = %q, want %q", got, "hi")
	}
}

func TestFirstMessageContentParts(t *testing.T) {
	raw := map[string]any{
		"messages": []any{
			map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{"type": "text", "text": "part one"},
				},
			},
		},
	}
	if got := firstMessageContent(raw); got != "part one" {
		t.Errorf("firstMessageContent() = %q, want %q", got, "part one")
	}
}

func TestFirstMessageContentEmpty(t *testing.T) {
	if got := firstMessageContent(map[string]any{}); got != "" {
		t.Errorf("firstMessageContent() = %q, want empty", got)
	}
	if got := firstMessageContent(map[string]any{"messages": []any{}}); got != "" {
		t.Errorf("firstMessageContent() = %q, want empty", got)
	}
}
