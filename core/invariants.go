package core

import "fmt"

// CheckMessages enforces the message-list invariants required before every
// model call: non-empty, odd length, strictly alternating roles starting and
// ending with the user.
func CheckMessages(messages []Message) error {
	if len(messages) == 0 {
		return &InvariantError{Index: -1, Reason: "at least one message is required"}
	}
	if len(messages)%2 == 0 {
		return &InvariantError{Index: -1, Reason: fmt.Sprintf("expected an odd number of messages, got %d", len(messages))}
	}
	for i, m := range messages {
		want := RoleUser
		if i%2 == 1 {
			want = RoleAssistant
		}
		if m.Role != want {
			return &InvariantError{Index: i, Reason: fmt.Sprintf("expected role %q, got %q", want, m.Role)}
		}
	}
	return nil
}

// CheckTools enforces non-empty, unique tool names.
func CheckTools(tools []Tool) error {
	seen := make(map[string]struct{}, len(tools))
	for i, t := range tools {
		if t == nil {
			return &InvariantError{Index: -1, Reason: fmt.Sprintf("tool %d is nil", i)}
		}
		name := t.Name()
		if name == "" {
			return &InvariantError{Index: -1, Reason: fmt.Sprintf("tool %d has an empty name", i)}
		}
		if _, dup := seen[name]; dup {
			return &InvariantError{Index: -1, Reason: fmt.Sprintf("duplicate tool name %q", name)}
		}
		seen[name] = struct{}{}
	}
	return nil
}

// CheckOptions validates everything the driver needs from a ConversationOptions.
func CheckOptions(opts ConversationOptions) error {
	if err := CheckMessages(opts.Messages); err != nil {
		return err
	}
	if err := CheckTools(opts.Tools); err != nil {
		return err
	}
	if opts.MaxTurns < 0 {
		return &InvariantError{Index: -1, Reason: "max turns must not be negative"}
	}
	return nil
}
