// Package actions implements the named operations the NLU engine invokes while
// handling one inbound message.
//
// Actions come in two kinds. A Transformer reads entities and the current
// Context and returns the next Context. A Sender performs an outbound side
// effect (delivering text to the user) and leaves the Context untouched.
//
// Invariants:
// - Every Execute call returns exactly once; panics inside an action are
//   recovered and surfaced as errors.
// - Transformers receive a private copy of the Context; a failed action never
//   leaves a half-written Context behind.
// - An action writes only the keys listed in its Definition.
// - Missing entities set a missing-slot flag instead of failing.
// - External-service and delivery failures are logged and absorbed.
//
// Usage:
//
//	reg := actions.NewRegistry(logger)
//	_ = actions.RegisterBuiltins(reg, actions.Dependencies{...})
//	res, err := reg.Execute(ctx, "getForecast", actions.Request{SessionID: id, Context: c, Entities: e})
package actions
