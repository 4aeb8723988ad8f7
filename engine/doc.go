// Package engine runs many independent conversations concurrently.
//
// The Engine wraps a single flow.Driver and adds what a long-running
// service needs around it: bounded concurrency, per-conversation event
// streams, cancellation by id, lifecycle callbacks and a registry of named
// agents.
//
// # Core Responsibilities
//
// Conversation Orchestration:
//   - Asynchronous (Start) and synchronous (Run) execution patterns
//   - Bounded concurrency with a configurable number of slots
//   - Context-aware cancellation, also by id through Stop
//
// Event Processing:
//   - Event streaming with configurable buffering
//   - OnEvent callbacks before every delivery
//
// Callback System:
//   - Hooks around conversations, model calls and tool executions
//   - Built-in implementations for logging and state validation
//
// # Usage Patterns
//
// Streaming Execution:
//
//	eng := engine.New(m, engine.WithLogger(logger))
//	id, events, errs, err := eng.Start(ctx, opts)
//	if err != nil {
//	    return err
//	}
//	_ = id // use for cancellation or tracking
//	for event := range events {
//	    handleEvent(event)
//	}
//	if err := <-errs; err != nil {
//	    return err
//	}
//
// Synchronous Execution:
//
//	_, events, err := eng.Run(ctx, opts)
//
// Agent Registration:
//
//	eng.Register(agent.New("support", agent.WithTools(lookup, done)))
//	id, events, errs, err := eng.StartAgent(ctx, "support", "Where is my order?", nil)
//
// # Concurrency Model
//
// Every conversation runs on its own goroutine with its own context and
// channels. Within one conversation tool uses are dispatched strictly in
// order. The engine performs no rollback of tool side effects when a
// conversation is cancelled.
//
// # Error Handling
//
//   - Immediate errors: invalid options and unknown agents are returned by Start
//   - Terminal errors: delivered once on the error channel
//   - Cancellation: surfaces as context.Canceled on the error channel
package engine
