package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/tool"
)

const defaultRunSystem = "You are a careful assistant. Work on the task step by step using the scratchpad for notes. " +
	"Call end_conversation once the task is complete."

// RunCmd runs a task with the built-in tools.
type RunCmd struct {
	Task    []string      `arg:"" help:"Task description"`
	System  string        `short:"s" help:"Override the system prompt"`
	Timeout time.Duration `default:"5m" help:"Abort the conversation after this duration"`
	JSON    bool          `help:"Print events as JSON lines"`
}

// Run executes the run command.
func (cmd *RunCmd) Run(ctx *kong.Context, cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	loop, _, err := cli.newLoop(cfg, os.Stderr)
	if err != nil {
		return err
	}

	system := defaultRunSystem
	switch {
	case cmd.System != "":
		system = cmd.System
	case cfg.System != "":
		system = cfg.System
	}

	runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if cmd.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, cmd.Timeout)
		defer cancel()
	}

	_, events, errs, err := loop.Start(runCtx, core.ConversationOptions{
		Model:    cfg.ModelOptions(),
		System:   system,
		Messages: []core.Message{core.NewUserMessage(strings.Join(cmd.Task, " "))},
		Tools: []core.Tool{
			tool.NewScratchpadTool(),
			tool.NewEndConversationTool("Call this when the task is complete."),
		},
		MaxTurns: cfg.MaxTurns,
	})
	if err != nil {
		return err
	}

	emit := printEvent
	if cmd.JSON {
		emit = printEventJSON
	}
	for ev := range events {
		if err := emit(ctx.Stdout, ev); err != nil {
			cancel()
		}
	}
	return <-errs
}

// printEvent renders one event for humans.
func printEvent(w io.Writer, ev core.Event) error {
	var err error
	switch ev.Type {
	case core.EventTextDelta:
		_, err = io.WriteString(w, ev.Delta)
	case core.EventAssistantMessage:
		if text := ev.Message.Text(); text != "" {
			_, err = fmt.Fprintf(w, "\nassistant: %s\n", text)
		}
	case core.EventToolCall:
		_, err = fmt.Fprintf(w, "-> %s %s\n", ev.ToolUse.Name, string(ev.ToolUse.Input))
	case core.EventToolResult:
		prefix := "<-"
		if ev.ToolResult.IsError {
			prefix = "<- error:"
		}
		_, err = fmt.Fprintf(w, "%s %s\n", prefix, ev.ToolResult.Content)
	case core.EventConversationReplaced:
		_, err = fmt.Fprintf(w, "== conversation replaced (turn %d)\n", ev.Turn)
	case core.EventConversationEnded:
		_, err = fmt.Fprintf(w, "== done after %d turns\n", ev.Turn)
	}
	return err
}

// printEventJSON writes one JSON object per event.
func printEventJSON(w io.Writer, ev core.Event) error {
	return json.NewEncoder(w).Encode(ev)
}
