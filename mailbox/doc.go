// Package mailbox turns a linearized conversation into exactly one logical
// provider reply.
//
// A Mailbox wraps a model.Provider. Each Deliver call builds a private
// exchange that splices pending tool requests and results into the payload,
// retries transient provider failures with exponential backoff and jitter,
// resends truncated replies until they complete, hands tool-use replies to
// the tool registry, and appends every outbound payload and final reply to
// an audit log. Exchanges share no mutable state, so one Mailbox may serve
// concurrent calls from independent agents.
package mailbox
