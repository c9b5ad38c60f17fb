package actions

import (
	"context"
	"errors"

	"github.com/harun/shinimi/pkg/conversation"
)

// ErrUnknownAction is returned when no action is registered under a name.
var ErrUnknownAction = errors.New("unknown action")

// Kind distinguishes pure transformers from side-effecting senders.
type Kind string

const (
	KindTransformer Kind = "transformer"
	KindSender      Kind = "sender"
)

// Context keys owned by the built-in actions.
const (
	KeyGreetings       = "greetings"
	KeyJokes           = "jokes"
	KeyForecast        = "forecast"
	KeyMissingLocation = "missingLocation"
	KeyCurrentTime     = "currentTime"
	KeyMissingTimeZone = "missingTimeZone"
	KeyNewVersion      = "newVersion"
)

// Entity names consumed by the built-in actions.
const (
	EntityLocation = "location"
	EntityPhrase   = "phrase_to_translate"
	EntityLanguage = "language"
)

// Definition describes an action to the registry and to engines that need to
// advertise it (tool schemas, help text).
type Definition struct {
	Name        string
	Description string
	Kind        Kind
	// Entities lists the entity names the action reads.
	Entities []string
	// Writes lists the Context keys the action owns.
	Writes []string
}

// Request is the input to one action invocation.
type Request struct {
	SessionID string
	Context   conversation.Context
	Entities  conversation.Entities
	// Text is the reply body for senders.
	Text string
}

// Result is the outcome of one action invocation.
type Result struct {
	Context conversation.Context
	// Done is set by senders: the engine may end the sequence here.
	Done bool
}

// Action is anything the registry can hold.
type Action interface {
	Definition() Definition
}

// Transformer is a pure context transformer.
type Transformer interface {
	Action
	Transform(ctx context.Context, req Request) (conversation.Context, error)
}

// Sender is a side-effecting action. Implementations absorb delivery failures.
type Sender interface {
	Action
	Send(ctx context.Context, req Request) error
}

// Deliverer pushes text to an external user.
type Deliverer interface {
	Deliver(ctx context.Context, recipientID, text string) error
}
