package main

import (
	"io"

	"github.com/hupe1980/agentloop"
	"github.com/hupe1980/agentloop/config"
	"github.com/hupe1980/agentloop/logging"
)

// loadConfig reads the configured file, or the defaults when none is given,
// and applies the flag overrides.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if c.Config != "" {
		var err error
		if cfg, err = config.Load(c.Config); err != nil {
			return nil, err
		}
	}

	if c.LogLevel != "" {
		cfg.Log.Level = c.LogLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newLoop wires model, retry policy and engine settings from cfg.
func (c *CLI) newLoop(cfg *config.Config, logOut io.Writer) (*agentloop.Loop, logging.Logger, error) {
	logger, err := cfg.Logger(logOut)
	if err != nil {
		return nil, nil, err
	}

	m, err := cfg.NewModel(c.APIKey)
	if err != nil {
		return nil, nil, err
	}

	opts := []func(o *agentloop.Options){
		agentloop.WithLogger(logger),
		agentloop.WithEngineConfig(cfg.EngineConfig()),
	}
	if r := cfg.RetryOptions(); r != nil {
		opts = append(opts, agentloop.WithRetry(*r))
	} else {
		opts = append(opts, agentloop.WithoutRetry())
	}

	return agentloop.New(m, opts...), logger, nil
}
