// Package core provides the foundational data types shared by the conversation
// runtime:
//
//   - Part / Content (plain text or ordered text, tool use and tool result segments)
//   - MergeContent (loss-free joining of partial replies)
//   - Metadata (closed-variant extra attributes attached to conversation nodes)
//   - Message (a linearized turn as handed to a provider)
//   - CycleBudget (send cap of one automatic tool-cycle turn)
//
// Persistence, transport and tool execution live in their own packages and
// depend on core, never the other way round.
package core
