package server

import "hash/fnv"

// fingerprintRequest derives a 64-bit affinity key from a stable subset of
// the inbound request: the model name and the first message, which
// together identify "the same conversation" well enough to pin it to one
// credential without the pool needing to understand message semantics.
// Hashing here is a policy choice of the caller; the pool treats the
// fingerprint as opaque.
func fingerprintRequest(model string, firstMessage string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(model))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(firstMessage))
	return h.Sum64()
}

// firstMessageContent extracts a stable text excerpt from a parsed
// messages array for fingerprinting purposes. Returns "" if it cannot
// find one, in which case the caller should fingerprint on model alone.
func firstMessageContent(raw map[string]any) string {
	messages, ok := raw["messages"].([]any)
	if !ok || len(messages) == 0 {
		return ""
	}
	first, ok := messages[0].(map[string]any)
	if !ok {
		return ""
	}
	switch v := first["content"].(type) {
	case string:
		return v
	case []any:
		for _, part := range v {
			if m, ok := part.(map[string]any); ok {
				if text, ok := m["text"].(string); ok && text != "" {
					return text
				}
			}
		}
	}
	return ""
}
