package core

import "strings"

// SanitizeMessages returns a cleaned copy of messages suitable for a model
// request. In assistant messages every text block is trimmed and blocks that
// end up empty are dropped; tool blocks and user messages are kept as they are.
// The input is never modified and applying the function twice is a no-op.
func SanitizeMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	for i, m := range messages {
		if m.Role != RoleAssistant {
			out[i] = m
			continue
		}
		out[i] = sanitizeAssistant(m)
	}
	return out
}

func sanitizeAssistant(m Message) Message {
	blocks := make([]Block, 0, len(m.Content))
	for _, b := range m.Content {
		tb, ok := b.(TextBlock)
		if !ok {
			blocks = append(blocks, b)
			continue
		}
		text := strings.TrimSpace(tb.Text)
		if text == "" {
			continue
		}
		blocks = append(blocks, TextBlock{Text: text})
	}
	return Message{Role: m.Role, Content: blocks}
}
