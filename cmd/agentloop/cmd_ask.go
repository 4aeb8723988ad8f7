package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/hupe1980/agentloop"
)

// AskCmd asks a single question.
type AskCmd struct {
	Question []string `arg:"" help:"Question to ask"`
	System   string   `short:"s" help:"Override the configured system prompt"`
}

// Run executes the ask command.
func (cmd *AskCmd) Run(ctx *kong.Context, cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	loop, logger, err := cli.newLoop(cfg, os.Stderr)
	if err != nil {
		return err
	}

	system := cfg.System
	if cmd.System != "" {
		system = cmd.System
	}

	question := strings.Join(cmd.Question, " ")
	logger.Debug("cli.ask.start", "provider", cfg.Provider, "model", cfg.Model)

	answer, err := loop.Ask(context.Background(), question, func(o *agentloop.AskOptions) {
		o.System = system
		o.Model = cfg.ModelOptions()
		o.MaxTurns = cfg.MaxTurns
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(ctx.Stdout, answer)
	return err
}
