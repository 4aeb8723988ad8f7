// Package model defines the backend adapter contract used by the conversation
// driver, a Collect helper that drains an adapter's streams, a retry decorator
// with exponential backoff, and ScriptedModel, a deterministic in-memory model
// for tests and examples.
//
// Provider adapters live in sub-packages (model/anthropic, model/openai).
// Each receives its SDK client explicitly so tests and callers can inject
// their own.
package model
