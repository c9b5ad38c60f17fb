// Package dispatch turns one inbound Messenger event into a session update.
//
// Invariants:
// - The session is resolved (and created on first contact) before anything else.
// - Attachment messages never reach the NLU engine; they get FallbackReply.
// - Action sequences of one session run one at a time, in arrival order.
// - A failed run leaves the session Context at its last committed value.
// - Redelivered message ids are skipped.
//
// Usage:
//
//	d, err := dispatch.New(dispatch.Config{Sessions: store, Runner: runner, Deliverer: client, Lanes: queue})
//	outcome, err := d.Dispatch(ctx, dispatch.Inbound{SenderID: "123", MessageID: "mid.1", Text: "hello"})
package dispatch
