package main

import (
	"fmt"

	"github.com/alecthomas/kong"
)

// CheckCmd validates the configuration.
type CheckCmd struct{}

// Run executes the check command.
func (cmd *CheckCmd) Run(ctx *kong.Context, cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	model := cfg.Model
	if model == "" {
		model = "(provider default)"
	}
	_, err = fmt.Fprintf(ctx.Stdout, "config ok: provider=%s model=%s max_turns=%d retry=%t stream=%t\n",
		cfg.Provider, model, cfg.MaxTurns, cfg.RetryOptions() != nil, cfg.Engine.Stream)
	return err
}
