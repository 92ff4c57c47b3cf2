package conversation

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/benbuzz790/llm-utilities/core"
)

// SchemaVersion is the version written by ToPortable.
const SchemaVersion = 1

// ErrUnsupportedVersion is returned when hydrating a tree written by an
// unknown schema version.
var ErrUnsupportedVersion = errors.New("unsupported conversation schema version")

// PortableTree is the persisted form of a whole conversation.
type PortableTree struct {
	Version int          `json:"version"`
	Root    PortableNode `json:"root"`
}

// PortableNode is the persisted form of a node. Parent links are implied by
// nesting and rebuilt on hydration.
type PortableNode struct {
	ID      string         `json:"id"`
	Role    string         `json:"role"`
	Content core.Content   `json:"content"`
	Meta    core.Metadata  `json:"meta,omitempty"`
	Replies []PortableNode `json:"replies"`
}

// ToPortable snapshots the whole tree containing n, starting at its root.
func (n *Node) ToPortable() PortableTree {
	return PortableTree{Version: SchemaVersion, Root: n.Root().toPortable()}
}

func (n *Node) toPortable() PortableNode {
	p := PortableNode{
		ID:      n.ID,
		Role:    n.Role,
		Content: n.Content.Clone(),
		Meta:    n.Meta.Clone(),
		Replies: make([]PortableNode, 0, len(n.replies)),
	}
	for _, r := range n.replies {
		p.Replies = append(p.Replies, r.toPortable())
	}
	return p
}

// FromPortable rebuilds a tree and returns its root.
func FromPortable(p PortableTree) (*Node, error) {
	if p.Version != SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, p.Version)
	}
	return hydrate(p.Root, nil), nil
}

func hydrate(p PortableNode, parent *Node) *Node {
	n := &Node{
		ID:      p.ID,
		Role:    p.Role,
		Content: p.Content.Clone(),
		Meta:    p.Meta.Clone(),
		parent:  parent,
	}
	if n.ID == "" && n.Role != core.RoleEmpty {
		n.ID = core.NewID()
	}
	if len(p.Replies) > 0 {
		n.replies = make([]*Node, 0, len(p.Replies))
		for _, r := range p.Replies {
			n.replies = append(n.replies, hydrate(r, n))
		}
	}
	return n
}

// Marshal encodes the tree containing n as JSON.
func Marshal(n *Node) ([]byte, error) {
	return json.MarshalIndent(n.ToPortable(), "", "  ")
}

// Unmarshal decodes a tree written by Marshal and returns its root.
func Unmarshal(data []byte) (*Node, error) {
	var p PortableTree
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	return FromPortable(p)
}
