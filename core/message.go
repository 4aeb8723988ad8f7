package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author of a Message.
type Role string

const (
	// RoleUser marks messages authored by the application (prompts, tool results).
	RoleUser Role = "user"
	// RoleAssistant marks messages produced by the model.
	RoleAssistant Role = "assistant"
)

// Block is one element of a message's content. The variant set is closed:
// TextBlock, ToolUseBlock and ToolResultBlock.
type Block interface {
	// BlockType returns the wire discriminator ("text", "tool_use", "tool_result").
	BlockType() string
	isBlock()
}

// TextBlock carries free text.
type TextBlock struct {
	Text string `json:"text"`
}

// ToolUseBlock is a model request to invoke a named tool with a JSON input.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultBlock answers exactly one ToolUseBlock identified by ToolUseID.
type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

func (TextBlock) BlockType() string       { return "text" }
func (ToolUseBlock) BlockType() string    { return "tool_use" }
func (ToolResultBlock) BlockType() string { return "tool_result" }

func (TextBlock) isBlock()       {}
func (ToolUseBlock) isBlock()    {}
func (ToolResultBlock) isBlock() {}

// Message is one entry of the conversation history. Plain-text content is
// represented as a single TextBlock.
type Message struct {
	Role    Role    `json:"role"`
	Content []Block `json:"content"`
}

// NewUserMessage creates a user message carrying a single text block.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []Block{TextBlock{Text: text}}}
}

// NewAssistantMessage creates an assistant message from the given blocks.
func NewAssistantMessage(blocks ...Block) Message {
	return Message{Role: RoleAssistant, Content: blocks}
}

// NewToolResultMessage creates the user message that carries one batch of tool results.
func NewToolResultMessage(results ...ToolResultBlock) Message {
	blocks := make([]Block, len(results))
	for i, r := range results {
		blocks[i] = r
	}
	return Message{Role: RoleUser, Content: blocks}
}

// ToolUses returns the tool use blocks of the message in order.
func (m Message) ToolUses() []ToolUseBlock {
	var uses []ToolUseBlock
	for _, b := range m.Content {
		if tu, ok := b.(ToolUseBlock); ok {
			uses = append(uses, tu)
		}
	}
	return uses
}

// ToolResults returns the tool result blocks of the message in order.
func (m Message) ToolResults() []ToolResultBlock {
	var results []ToolResultBlock
	for _, b := range m.Content {
		if tr, ok := b.(ToolResultBlock); ok {
			results = append(results, tr)
		}
	}
	return results
}

// Text concatenates all text blocks of the message.
func (m Message) Text() string {
	var sb strings.Builder
	for _, b := range m.Content {
		if tb, ok := b.(TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String()
}

// Clone returns a copy whose content slice can be modified independently.
func (m Message) Clone() Message {
	c := Message{Role: m.Role, Content: make([]Block, len(m.Content))}
	copy(c.Content, m.Content)
	return c
}

type wireBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type wireMessage struct {
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"`
}

// MarshalJSON encodes the message with a "type" discriminator per block.
func (m Message) MarshalJSON() ([]byte, error) {
	blocks := make([]wireBlock, 0, len(m.Content))
	for _, b := range m.Content {
		switch v := b.(type) {
		case TextBlock:
			blocks = append(blocks, wireBlock{Type: v.BlockType(), Text: v.Text})
		case ToolUseBlock:
			input := v.Input
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			blocks = append(blocks, wireBlock{Type: v.BlockType(), ID: v.ID, Name: v.Name, Input: input})
		case ToolResultBlock:
			blocks = append(blocks, wireBlock{Type: v.BlockType(), ToolUseID: v.ToolUseID, Content: v.Content, IsError: v.IsError})
		default:
			return nil, fmt.Errorf("unsupported block type %T", b)
		}
	}
	raw, err := json.Marshal(blocks)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{Role: m.Role, Content: raw})
}

// UnmarshalJSON decodes a message whose content is either a plain string or
// an array of type-tagged blocks.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wm wireMessage
	if err := json.Unmarshal(data, &wm); err != nil {
		return err
	}
	m.Role = wm.Role
	m.Content = nil

	if len(wm.Content) == 0 || string(wm.Content) == "null" {
		return nil
	}

	var text string
	if err := json.Unmarshal(wm.Content, &text); err == nil {
		m.Content = []Block{TextBlock{Text: text}}
		return nil
	}

	var blocks []wireBlock
	if err := json.Unmarshal(wm.Content, &blocks); err != nil {
		return fmt.Errorf("decode message content: %w", err)
	}
	for i, b := range blocks {
		switch b.Type {
		case "text":
			m.Content = append(m.Content, TextBlock{Text: b.Text})
		case "tool_use":
			m.Content = append(m.Content, ToolUseBlock{ID: b.ID, Name: b.Name, Input: b.Input})
		case "tool_result":
			m.Content = append(m.Content, ToolResultBlock{ToolUseID: b.ToolUseID, Content: b.Content, IsError: b.IsError})
		default:
			return fmt.Errorf("content[%d]: unknown block type %q", i, b.Type)
		}
	}
	return nil
}
