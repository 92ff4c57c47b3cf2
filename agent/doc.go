// Package agent drives a conversation with a language model.
//
// An Agent owns a conversation tree and a tool registry and sends its turns
// through a mailbox.Mailbox. Respond performs one exchange; RespondAuto keeps
// answering tool requests until the model stops asking for tools or the
// cycle cap is reached:
//
//	mb := mailbox.New(provider)
//	a := agent.New(mb, agent.WithName("Claude"))
//	a.AddTool(add)
//	reply, err := a.RespondAuto(ctx, "What is 2+3?", "", 0)
//
// The current node can be moved anywhere in the tree with SetCurrent, so a
// new Respond branches the conversation from that point. State, Save and
// Load persist the agent without credentials.
package agent
