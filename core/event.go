package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType categorizes a conversation Event.
type EventType string

const (
	// EventTurnStarted is emitted before each model call.
	EventTurnStarted EventType = "turn_started"
	// EventTextDelta carries one streamed text fragment of the assistant reply.
	EventTextDelta EventType = "text_delta"
	// EventAssistantMessage carries the finalized assistant message of a turn.
	EventAssistantMessage EventType = "assistant_message"
	// EventToolCall is emitted before a tool use is dispatched.
	EventToolCall EventType = "tool_call"
	// EventToolResult carries the result fed back for a tool use. Results of
	// a turn are emitted after all its tool calls, and only when no control
	// action ended or replaced the conversation.
	EventToolResult EventType = "tool_result"
	// EventUserMessage carries a synthetic user message appended by the driver.
	EventUserMessage EventType = "user_message"
	// EventConversationReplaced is emitted when a NewConversation action takes over.
	EventConversationReplaced EventType = "conversation_replaced"
	// EventConversationEnded is emitted once the conversation terminated normally.
	EventConversationEnded EventType = "conversation_ended"
)

// Event is an observable step of a running conversation. After emission it
// should be treated as immutable.
type Event struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	Type           EventType        `json:"type"`
	Turn           int              `json:"turn"`
	Timestamp      time.Time        `json:"timestamp"`
	Delta          string           `json:"delta,omitempty"`
	Message        *Message         `json:"message,omitempty"`
	ToolUse        *ToolUseBlock    `json:"tool_use,omitempty"`
	ToolResult     *ToolResultBlock `json:"tool_result,omitempty"`
}

// NewEvent creates a bare event of the given type bound to a conversation.
func NewEvent(conversationID string, typ EventType, turn int) Event {
	return Event{
		ID:             NewID(),
		ConversationID: conversationID,
		Type:           typ,
		Turn:           turn,
		Timestamp:      time.Now().UTC(),
	}
}

// NewID generates a new unique identifier for conversations and events.
func NewID() string { return uuid.NewString() }

// IsPartial reports whether the event is a streaming fragment.
func (e Event) IsPartial() bool { return e.Type == EventTextDelta }

// IsTerminal reports whether the event closes the conversation.
func (e Event) IsTerminal() bool { return e.Type == EventConversationEnded }
