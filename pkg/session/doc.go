// Package session maps messaging-platform users to conversation sessions.
//
// Invariants:
// - FindOrCreate is idempotent per external user id for the lifetime of the store.
// - Session ids are random UUIDs; concurrent creations never collide.
// - The external user id of a session never changes.
// - Get returns a snapshot; callers write back through Update.
// - Access to an unknown session id is logged at error level and returns ErrSessionNotFound.
//
// Usage:
//
//	store := session.NewStore(session.WithLogger(logger))
//	id, _ := store.FindOrCreate("1234567890")
//	s, _ := store.Get(id)
//	s.Context.Set("greetings", "hi")
//	_ = store.Update(id, s.Context)
package session
