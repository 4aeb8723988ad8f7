// Package core defines the conversation data model shared by every other
// package: messages and their content blocks, the actions tools and handlers
// return, conversation options, the invariants checked before each model
// call, the message sanitizer, typed errors and the per-conversation
// RunContext / ToolContext.
//
// The package has no dependency on a model provider; adapters translate
// core.Message values to and from their wire formats.
package core
