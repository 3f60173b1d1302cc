package translator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// init registers the OpenAI chat-completions <-> native message translators
// against the default registry, so any pipeline dispatching with
// FormatOpenAI on one side gets a working translation instead of a
// passthrough. The reverse (native request) direction needs no translator:
// it is already the wire format the upstream speaks.
func init() {
	Register(FormatOpenAI, FormatNative, TranslatorConfig{
		RequestTransform: openAIRequestToNative,
	})
	Register(FormatNative, FormatOpenAI, TranslatorConfig{
		ResponseTransform: nativeResponseToOpenAI,
		StreamTransform:   nativeStreamToOpenAI,
	})
}

// openAIRequestToNative rewrites an OpenAI chat-completions request body
// into the native message-request shape: a top-level "system" string
// pulled out of any leading system message, and a "messages" array holding
// only user/assistant turns.
func openAIRequestToNative(model string, rawJSON []byte, stream bool) []byte {
	root := gjson.ParseBytes(rawJSON)

	out := `{}`
	out, _ = sjson.Set(out, "model", model)
	out, _ = sjson.Set(out, "stream", stream)

	if mt := root.Get("max_tokens"); mt.Exists() {
		out, _ = sjson.Set(out, "max_tokens", mt.Int())
	} else {
		out, _ = sjson.Set(out, "max_tokens", 4096)
	}
	if temp := root.Get("temperature"); temp.Exists() {
		out, _ = sjson.Set(out, "temperature", temp.Float())
	}

	var system strings.Builder
	messages := make([]map[string]any, 0)
	root.Get("messages").ForEach(func(_, msg gjson.Result) bool {
		role := msg.Get("role").String()
		content := flattenOpenAIContent(msg.Get("content"))
		if role == "system" {
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(content)
			return true
		}
		messages = append(messages, map[string]any{"role": role, "content": content})
		return true
	})

	if system.Len() > 0 {
		out, _ = sjson.Set(out, "system", system.String())
	}
	out, _ = sjson.Set(out, "messages", messages)
	return []byte(out)
}

// flattenOpenAIContent handles both the plain-string and the
// content-parts-array forms OpenAI clients send, collapsing either into a
// single string of concatenated text parts.
func flattenOpenAIContent(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	if content.IsArray() {
		var sb strings.Builder
		content.ForEach(func(_, part gjson.Result) bool {
			if text := part.Get("text"); text.Exists() {
				sb.WriteString(text.String())
			}
			return true
		})
		return sb.String()
	}
	return ""
}

// nativeResponseToOpenAI converts a buffered native message response into
// an OpenAI chat-completion response object.
func nativeResponseToOpenAI(_ context.Context, model string, responseBody []byte) ([]byte, error) {
	root := gjson.ParseBytes(responseBody)

	var text strings.Builder
	root.Get("content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			text.WriteString(block.Get("text").String())
		}
		return true
	})

	finish := mapStopReason(root.Get("stop_reason").String())

	out := `{"object":"chat.completion"}`
	out, _ = sjson.Set(out, "id", root.Get("id").String())
	out, _ = sjson.Set(out, "model", model)
	out, _ = sjson.Set(out, "choices.0.index", 0)
	out, _ = sjson.Set(out, "choices.0.message.role", "assistant")
	out, _ = sjson.Set(out, "choices.0.message.content", text.String())
	out, _ = sjson.Set(out, "choices.0.finish_reason", finish)
	out, _ = sjson.Set(out, "usage.prompt_tokens", root.Get("usage.input_tokens").Int())
	out, _ = sjson.Set(out, "usage.completion_tokens", root.Get("usage.output_tokens").Int())
	out, _ = sjson.Set(out, "usage.total_tokens", root.Get("usage.input_tokens").Int()+root.Get("usage.output_tokens").Int())
	return []byte(out), nil
}

func mapStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	default:
		return "stop"
	}
}

// nativeStreamToOpenAI reads native message-stream SSE events and emits
// OpenAI chat-completion-chunk SSE events, line by line, so the pipeline can
// forward the returned reader straight into an SSE writer.
func nativeStreamToOpenAI(_ context.Context, model string, reader io.Reader) (io.Reader, error) {
	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()
		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		chunkIndex := 0
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				_, _ = io.WriteString(pw, "data: [DONE]\n\n")
				return
			}
			evt := gjson.Parse(payload)
			switch evt.Get("type").String() {
			case "content_block_delta":
				text := evt.Get("delta.text").String()
				if text == "" {
					continue
				}
				chunk := `{"object":"chat.completion.chunk"}`
				chunk, _ = sjson.Set(chunk, "model", model)
				chunk, _ = sjson.Set(chunk, "choices.0.index", chunkIndex)
				chunk, _ = sjson.Set(chunk, "choices.0.delta.content", text)
				_, _ = fmt.Fprintf(pw, "data: %s\n\n", chunk)
				chunkIndex++
			case "message_stop":
				chunk := `{"object":"chat.completion.chunk"}`
				chunk, _ = sjson.Set(chunk, "model", model)
				chunk, _ = sjson.Set(chunk, "choices.0.index", chunkIndex)
				chunk, _ = sjson.Set(chunk, "choices.0.finish_reason", "stop")
				_, _ = fmt.Fprintf(pw, "data: %s\n\n", chunk)
			}
		}
	}()
	return pr, nil
}
