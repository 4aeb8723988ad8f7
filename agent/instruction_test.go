package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	text string
	err  error
}

func (m mockProvider) Instruction(context.Context, map[string]any) (string, error) {
	return m.text, m.err
}

func TestInstruction_Static(t *testing.T) {
	inst := NewInstructionFromText("static instruction")
	if !inst.IsStatic() {
		t.Fatalf("expected static instruction")
	}
	got, err := inst.Resolve(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "static instruction" {
		t.Fatalf("expected 'static instruction', got %q", got)
	}
}

func TestInstruction_Template(t *testing.T) {
	inst := NewInstructionFromText("You are {{.agent_name}}. Answer in {{.language | default \"English\"}}.")

	got, err := inst.Resolve(context.Background(), map[string]any{"agent_name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "You are Ada. Answer in English.", got)

	got, err = inst.Resolve(context.Background(), map[string]any{"agent_name": "Ada", "language": "German"})
	require.NoError(t, err)
	assert.Equal(t, "You are Ada. Answer in German.", got)
}

func TestInstruction_BadTemplate(t *testing.T) {
	_, err := NewInstructionFromText("{{.broken").Resolve(context.Background(), nil)
	assert.Error(t, err)
}

func TestInstruction_NewInstructionFromFunc(t *testing.T) {
	inst := NewInstructionFromFunc(func(_ context.Context, data map[string]any) (string, error) {
		return "dynamic for " + data["user"].(string), nil
	})
	if inst.IsStatic() {
		t.Fatalf("expected dynamic instruction")
	}
	got, err := inst.Resolve(context.Background(), map[string]any{"user": "bob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "dynamic for bob" {
		t.Fatalf("expected 'dynamic for bob', got %q", got)
	}
}

func TestInstruction_NewInstructionFromProvider(t *testing.T) {
	inst := NewInstructionFromProvider(mockProvider{text: "provider {{.ignored}} text"})
	if inst.IsStatic() {
		t.Fatalf("expected dynamic instruction")
	}
	got, err := inst.Resolve(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "provider {{.ignored}} text" {
		t.Fatalf("expected provider text untouched, got %q", got)
	}
}

func TestInstruction_ErrorPropagation(t *testing.T) {
	expectedErr := errors.New("boom")
	inst := NewInstructionFromProvider(mockProvider{err: expectedErr})
	_, err := inst.Resolve(context.Background(), nil)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !errors.Is(err, expectedErr) {
		t.Fatalf("expected error %v, got %v", expectedErr, err)
	}
}
