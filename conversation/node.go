package conversation

import (
	"github.com/benbuzz790/llm-utilities/core"
)

// Node is a single turn in a conversation tree.
type Node struct {
	ID      string
	Role    string
	Content core.Content
	Meta    core.Metadata

	replies []*Node
	parent  *Node

	// Set on nodes created by Propose until they are committed.
	staged   bool
	replaces *Node
}

// NewEmpty returns the sentinel root of a conversation that has not started.
func NewEmpty() *Node {
	return &Node{Role: core.RoleEmpty}
}

// IsEmpty reports whether n is the not-yet-started sentinel.
func (n *Node) IsEmpty() bool {
	return n.Role == core.RoleEmpty && n.parent == nil && len(n.replies) == 0 && n.Content.IsZero()
}

// AddReply appends a new turn below n and returns it. On the empty sentinel
// the sentinel itself is reinitialized and returned instead of gaining a
// child.
func (n *Node) AddReply(content core.Content, role string, meta core.Metadata) *Node {
	return n.Propose(content, role, meta).Commit()
}

// Propose stages a reply below n without attaching it. The staged node
// linearizes as if it were attached but is invisible from n until Commit is
// called, so an abandoned proposal leaves the tree unchanged.
func (n *Node) Propose(content core.Content, role string, meta core.Metadata) *Node {
	child := &Node{
		ID:      core.NewID(),
		Role:    role,
		Content: content,
		Meta:    meta,
		staged:  true,
	}
	if n.IsEmpty() {
		child.replaces = n
		return child
	}
	child.parent = n
	return child
}

// Staged reports whether n was proposed and not yet committed.
func (n *Node) Staged() bool { return n.staged }

// Commit attaches a staged node to its parent and returns the live node. When
// the proposal was made on the empty sentinel, the sentinel is reinitialized
// in place and returned. Committing a live node is a no-op.
func (n *Node) Commit() *Node {
	if !n.staged {
		return n
	}
	n.staged = false
	if target := n.replaces; target != nil {
		n.replaces = nil
		target.ID = n.ID
		target.Role = n.Role
		target.Content = n.Content
		target.Meta = n.Meta
		return target
	}
	n.parent.replies = append(n.parent.replies, n)
	return n
}

// Parent returns the parent node, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Replies returns the child nodes in insertion order.
func (n *Node) Replies() []*Node {
	out := make([]*Node, len(n.replies))
	copy(out, n.replies)
	return out
}

// SetMeta records a metadata attribute on the node.
func (n *Node) SetMeta(key string, attr core.Attr) {
	if n.Meta == nil {
		n.Meta = core.Metadata{}
	}
	n.Meta[key] = attr
}

// Root returns the root of the tree containing n.
func (n *Node) Root() *Node {
	cur := n
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Depth returns the number of edges between n and the root.
func (n *Node) Depth() int {
	d := 0
	for cur := n.parent; cur != nil; cur = cur.parent {
		d++
	}
	return d
}

// Path returns the nodes from the root to n, root first.
func (n *Node) Path() []*Node {
	if n.IsEmpty() {
		return nil
	}
	path := make([]*Node, n.Depth()+1)
	for i, cur := len(path)-1, n; cur != nil; i, cur = i-1, cur.parent {
		path[i] = cur
	}
	return path
}

// Linearize returns the dialogue from the root to n as provider messages,
// root first. The sentinel linearizes to an empty sequence.
func (n *Node) Linearize() []core.Message {
	path := n.Path()
	msgs := make([]core.Message, len(path))
	for i, node := range path {
		msgs[i] = core.Message{Role: node.Role, Content: node.Content.Clone()}
	}
	return msgs
}

// CountNodes returns the number of nodes in the whole tree containing n.
func (n *Node) CountNodes() int {
	return n.Root().countSubtree()
}

func (n *Node) countSubtree() int {
	total := 1
	for _, r := range n.replies {
		total += r.countSubtree()
	}
	return total
}

// Walk visits n and its descendants depth first in reply order. Returning
// false from fn stops the walk.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, r := range n.replies {
		if !r.Walk(fn) {
			return false
		}
	}
	return true
}

// FindByID searches the tree containing n for a node with the given id.
func (n *Node) FindByID(id string) *Node {
	var found *Node
	n.Root().Walk(func(cur *Node) bool {
		if cur.ID == id {
			found = cur
			return false
		}
		return true
	})
	return found
}
