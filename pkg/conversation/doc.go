// Package conversation defines the per-conversation state bag and the entity payloads
// extracted by the NLU engine.
//
// Invariants:
// - A missing key is distinct from a key holding a falsy value; Delete removes the key.
// - Context is an open map; each action owns the keys it writes.
// - Only the first entity candidate is authoritative.
//
// Usage:
//
//	c := conversation.New()
//	c.Set("forecast", "54°F with light rain in Boston")
//	c.Delete("missingLocation")
//	loc, ok := entities.FirstValue("location")
package conversation
