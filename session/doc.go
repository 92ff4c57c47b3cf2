// Package session stores saved agent state. The Store contract deals in
// opaque bytes so agents decide their own encoding; InMemoryStore serves
// tests and ephemeral use, FileStore writes one .bot file per save through
// an afero filesystem.
package session
