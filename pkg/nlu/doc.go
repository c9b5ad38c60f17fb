// Package nlu contains the engines that turn one inbound message into a
// sequence of action invocations.
//
// Engines:
// - WitRunner: Wit.ai converse loop over HTTP.
// - LLMRunner: tool-calling loop backed by Anthropic or OpenAI.
// - PatternRunner: regular-expression intents, for development and tests.
//
// Invariants:
// - Every engine threads the Context returned by one action into the next.
// - A run stops after Steps.Max engine round trips with ErrTooManySteps.
// - On error the caller keeps its own Context; engines never return a
//   partially applied Context alongside an error.
//
// Usage:
//
//	runner, err := nlu.New(nlu.Options{Provider: "wit", Token: token}, registry, logger)
//	final, err := runner.RunActions(ctx, sessionID, "weather in Boston", current)
package nlu
