// Package model defines the provider-agnostic contract between the mailbox
// and language model vendors.
//
// Core goals:
//   - One blocking Send call per outbound payload; retries live in the mailbox
//   - Canonical messages (core.Message) and tool schemas (tool.Schema) in,
//     normalized Response out
//   - Every vendor error classified as transient (retried) or fatal
//   - Lightweight scripted mocking for tests (MockProvider)
//
// Providers (Anthropic, OpenAI, Bedrock, Gemini) live in sub-packages and
// implement Provider so the agent and the conversation tree never branch on
// vendor identity.
package model
