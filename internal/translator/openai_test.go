package translator

import (
	"bufio"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestOpenAIRequestToNative(t *testing.T) {
	req := []byte(`{
		"max_tokens": 256,
		"temperature": 0.5,
		"messages": [
			{"role": "system", "content": "be terse"},
			{"role": "user", "content": "hello"},
			{"role": "assistant", "content": "hi there"}
		]
	}`)

	out := openAIRequestToNative("claude-3-opus", req, true)
	root := gjson.ParseBytes(out)

	if root.Get("model").String() != "claude-3-opus" {
		t.Errorf("model = %q", root.Get("model").String())
	}
	if !root.Get("stream").Bool() {
		t.Error("stream should be true")
	}
	if root.Get("max_tokens").Int() != 256 {
		t.Errorf("max_tokens = %d, want 256", root.Get("max_tokens").Int())
	}
	if root.Get("system").String() != "be terse" {
		t.Errorf("system = %q, want %q", root.Get("system").String(), "be terse")
	}
	messages := root.Get("messages").Array()
	if len(messages) != 2 {
		t.Fatalf("messages length = %d, want 2", len(messages))
	}
	if messages[0].Get("role").String() != "user" {
		t.Errorf("messages[0].role = %q, want user", messages[0].Get("role").String())
	}
}

func TestOpenAIRequestToNativeDefaultMaxTokens(t *testing.T) {
	req := []byte(`{"messages":[{"role":"user","content":"hi"}]}`)
	out := openAIRequestToNative("claude-3-haiku", req, false)
	root := gjson.ParseBytes(out)
	if root.Get("max_tokens").Int() != 4096 {
		t.Errorf("max_tokens = %d, want default 4096", root.Get("max_tokens").Int())
	}
}

func TestFlattenOpenAIContentString(t *testing.T) {
	res := gjson.Parse(`"plain text"`)
	if got := flattenOpenAIContent(res); got != "plain text" {
		t.Errorf("flattenOpenAIContent() = %q", got)
	}
}

func TestFlattenOpenAIContentParts(t *testing.T) {
	res := gjson.Parse(`[{"type":"text","text":"part a"},{"type":"text","text":"part b"}]`)
	if got := flattenOpenAIContent(res); got != "part apart b" {
		t.Errorf("flattenOpenAIContent() = %q, want %q", got, "part apart b")
	}
}

func TestNativeResponseToOpenAI(t *testing.T) {
	native := []byte(`{
		"id": "msg_1",
		"stop_reason": "end_turn",
		"content": [{"type": "text", "text": "hello back"}],
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`)

	out, err := nativeResponseToOpenAI(context.Background(), "claude-3-opus", native)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	root := gjson.ParseBytes(out)
	if root.Get("object").String() != "chat.completion" {
		t.Errorf("object = %q", root.Get("object").String())
	}
	if root.Get("choices.0.message.content").String() != "hello back" {
		t.Errorf("content = %q", root.Get("choices.0.message.content").String())
	}
	if root.Get("choices.0.finish_reason").String() != "stop" {
		t.Errorf("finish_reason = %q, want stop", root.Get("choices.0.finish_reason").String())
	}
	if root.Get("usage.total_tokens").Int() != 15 {
		t.Errorf("total_tokens = %d, want 15", root.Get("usage.total_tokens").Int())
	}
}

func TestMapStopReason(t *testing.T) {
	cases := map[string]string{
		"end_turn":      "stop",
		"stop_sequence": "stop",
		"max_tokens":    "length",
		"":               "stop",
		"anything_else": "stop",
	}
	for in, want := range cases {
		if got := mapStopReason(in); got != want {
			t.Errorf("mapStopReason(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNativeStreamToOpenAI(t *testing.T) {
	sse := "data: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"hi\"}}\n\n" +
		"data: {\"type\":\"message_stop\"}\n\n" +
		"data: [DONE]\n\n"

	out, err := nativeStreamToOpenAI(context.Background(), "claude-3-opus", strings.NewReader(sse))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	scanner := bufio.NewScanner(out)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		t.Fatalf("scan error: %v", err)
	}

	if len(lines) != 3 {
		t.Fatalf("got %d non-empty lines, want 3: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], `"delta":{"content":"hi"}`) && !strings.Contains(lines[0], `"content":"hi"`) {
		t.Errorf("first chunk missing delta content: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"finish_reason":"stop"`) {
		t.Errorf("second chunk missing finish_reason: %s", lines[1])
	}
	if strings.TrimSpace(lines[2]) != "data: [DONE]" {
		t.Errorf("final line = %q, want data: [DONE]", lines[2])
	}
}
