package messenger

import "encoding/json"

// ObjectPage is the webhook object type for page subscriptions
const ObjectPage = "page"

// Payload is the body of a webhook POST
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the events for one page
type Entry struct {
	ID        string  `json:"id"`
	Time      int64   `json:"time"`
	Messaging []Event `json:"messaging"`
}

// Event is one messaging event
type Event struct {
	Sender    User            `json:"sender"`
	Recipient User            `json:"recipient"`
	Timestamp int64           `json:"timestamp"`
	Message   *Message        `json:"message,omitempty"`
	Postback  *Postback       `json:"postback,omitempty"`
	Delivery  json.RawMessage `json:"delivery,omitempty"`
	Read      json.RawMessage `json:"read,omitempty"`
}

// User identifies a page-scoped user or the page itself
type User struct {
	ID string `json:"id"`
}

// Message is an inbound message
type Message struct {
	MID         string       `json:"mid"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	IsEcho      bool         `json:"is_echo,omitempty"`
}

// HasAttachments reports whether the message carries non-text content
func (m *Message) HasAttachments() bool {
	return m != nil && len(m.Attachments) > 0
}

// Attachment is non-text message content
type Attachment struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Postback is a button tap
type Postback struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// Kind classifies an event for logging and metrics
func (e Event) Kind() string {
	switch {
	case e.Message != nil && e.Message.IsEcho:
		return "echo"
	case e.Message.HasAttachments():
		return "attachment"
	case e.Message != nil && e.Message.Text != "":
		return "text"
	case e.Message != nil:
		return "empty"
	case e.Postback != nil:
		return "postback"
	case len(e.Delivery) > 0:
		return "delivery"
	case len(e.Read) > 0:
		return "read"
	default:
		return "other"
	}
}

type sendRequest struct {
	MessagingType string      `json:"messaging_type"`
	Recipient     User        `json:"recipient"`
	Message       sendMessage `json:"message"`
}

type sendMessage struct {
	Text string `json:"text"`
}

type graphError struct {
	Error *struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}
