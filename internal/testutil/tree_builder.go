package testutil

import (
	"github.com/benbuzz790/llm-utilities/conversation"
	"github.com/benbuzz790/llm-utilities/core"
)

// TreeBuilder provides a fluent helper for growing a linear conversation.
// Example:
//
//	node := NewTreeBuilder().User("hi").Assistant("hello").Node()
type TreeBuilder struct {
	current *conversation.Node
}

// NewTreeBuilder starts from the empty sentinel.
func NewTreeBuilder() *TreeBuilder { return &TreeBuilder{current: conversation.NewEmpty()} }

// From continues growing below an existing node (chainable).
func From(n *conversation.Node) *TreeBuilder { return &TreeBuilder{current: n} }

// User appends a user turn (chainable).
func (b *TreeBuilder) User(text string) *TreeBuilder {
	b.current = b.current.AddReply(core.Text(text), core.RoleUser, nil)
	return b
}

// Assistant appends an assistant turn (chainable).
func (b *TreeBuilder) Assistant(text string) *TreeBuilder {
	b.current = b.current.AddReply(core.Text(text), core.RoleAssistant, nil)
	return b
}

// Reply appends an arbitrary turn (chainable).
func (b *TreeBuilder) Reply(role string, content core.Content, meta core.Metadata) *TreeBuilder {
	b.current = b.current.AddReply(content, role, meta)
	return b
}

// Node returns the last appended node.
func (b *TreeBuilder) Node() *conversation.Node { return b.current }

// Root returns the root of the tree.
func (b *TreeBuilder) Root() *conversation.Node { return b.current.Root() }
