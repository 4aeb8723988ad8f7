// Package agent contains reusable conversation templates.
//
// An Agent bundles everything that describes one role in a conversation:
//
//  1. A system instruction (static template or dynamic provider)
//  2. The tools the model may call
//  3. Model options and turn cap
//  4. Optional sub-agents the model can hand the conversation over to
//
// An Agent does not talk to a model itself. It renders into a
// core.ConversationOptions that any flow.Driver, engine.Engine or the
// agentloop façade can run. Hand-offs between agents are ordinary tools
// returning core.NewConversation, so chains of agents run through the
// driver's trampoline without nesting.
package agent
