// Package conversation implements the branching dialogue history of an agent.
//
// A conversation is a tree of Nodes. Each path from the root to a node is one
// linear dialogue; siblings are alternative continuations kept in insertion
// order. The tree is append-only: nodes are added with AddReply (or staged
// with Propose and attached with Commit) and never removed.
//
// A fresh conversation starts as the empty sentinel returned by NewEmpty. The
// first real turn reinitializes the sentinel in place, so references to the
// root stay valid.
//
// Trees are not safe for concurrent mutation; the owning agent serializes
// access.
package conversation
