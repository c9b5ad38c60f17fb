// Package messenger holds the Messenger Platform wire types, webhook
// signature verification and the Send API client.
//
// Invariants:
// - Signatures are compared in constant time; sha256 is preferred over sha1.
// - Deliver never sends a message longer than MaxTextLength; longer text is split.
// - Send API failures surface the Graph API error message.
package messenger
