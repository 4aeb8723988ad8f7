// Command agentloop drives tool-augmented conversations from the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

// CLI represents the main CLI structure
type CLI struct {
	Config   string `short:"c" type:"path" env:"AGENTLOOP_CONFIG" help:"YAML configuration file"`
	APIKey   string `env:"AGENTLOOP_API_KEY" help:"API key of the configured provider (falls back to the provider's own variable)"`
	LogLevel string `help:"Override the configured log level"`

	Ask   AskCmd   `cmd:"" help:"Ask a question and print the answer"`
	Run   RunCmd   `cmd:"" help:"Run a task with the built-in tools and print every event"`
	Check CheckCmd `cmd:"" help:"Validate the configuration"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("agentloop"),
		kong.Description("Multi-turn, tool-augmented LLM conversations"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	err := ctx.Run(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
