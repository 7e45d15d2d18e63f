// Package messenger holds the Messenger Platform webhook event model and a thin
// Graph API client for outbound sends.
package messenger

import "encoding/json"

// ObjectPage is the only webhook object type the bot processes.
const ObjectPage = "page"

// WebhookPayload is the body of a webhook POST.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the messaging events delivered for one page.
type Entry struct {
	ID        string  `json:"id"`
	Time      int64   `json:"time"`
	Messaging []Event `json:"messaging"`
}

// User identifies a page-scoped user or the page itself.
type User struct {
	ID string `json:"id"`
}

// Event is one messaging event. Exactly one of the pointer fields is usually set.
type Event struct {
	Sender    User  `json:"sender"`
	Recipient User  `json:"recipient"`
	Timestamp int64 `json:"timestamp"`

	Message        *Message        `json:"message,omitempty"`
	Postback       *Postback       `json:"postback,omitempty"`
	Delivery       *Delivery       `json:"delivery,omitempty"`
	Read           *Read           `json:"read,omitempty"`
	Optin          *Optin          `json:"optin,omitempty"`
	AccountLinking *AccountLinking `json:"account_linking,omitempty"`
	Payment        json.RawMessage `json:"payment,omitempty"`
}

// Message is an inbound message.
type Message struct {
	Mid         string              `json:"mid"`
	Text        string              `json:"text,omitempty"`
	IsEcho      bool                `json:"is_echo,omitempty"`
	QuickReply  *QuickReplyResponse `json:"quick_reply,omitempty"`
	Attachments []Attachment        `json:"attachments,omitempty"`
}

// QuickReplyResponse carries the payload of a tapped quick reply.
type QuickReplyResponse struct {
	Payload string `json:"payload"`
}

// Attachment is an inbound attachment (image, audio, location, ...).
type Attachment struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Postback is sent when the user taps a postback button.
type Postback struct {
	Title   string `json:"title,omitempty"`
	Payload string `json:"payload"`
}

// Delivery confirms messages were delivered.
type Delivery struct {
	Mids      []string `json:"mids,omitempty"`
	Watermark int64    `json:"watermark"`
}

// Read marks all messages before the watermark as read.
type Read struct {
	Watermark int64 `json:"watermark"`
}

// Optin is sent for Send-to-Messenger and checkbox plugin authentication.
type Optin struct {
	Ref     string `json:"ref,omitempty"`
	UserRef string `json:"user_ref,omitempty"`
}

// AccountLinking reports a link or unlink.
type AccountLinking struct {
	Status            string `json:"status"`
	AuthorizationCode string `json:"authorization_code,omitempty"`
}

// EventKind is the routing category of an Event.
type EventKind string

// Event kinds, named after the listener categories bots subscribe to.
const (
	KindAuthentication EventKind = "authentication"
	KindMessage        EventKind = "message"
	KindQuickReply     EventKind = "quick_reply"
	KindAttachment     EventKind = "attachment"
	KindPostback       EventKind = "postback"
	KindDelivery       EventKind = "delivery"
	KindRead           EventKind = "read"
	KindAccountLinking EventKind = "account_linking"
	KindPayment        EventKind = "payment"
	KindUnknown        EventKind = "unknown"
)

// Kind classifies the event. Checks run in a fixed order, so an optin that
// also carries a message is still authentication.
func (e *Event) Kind() EventKind {
	switch {
	case e.Optin != nil:
		return KindAuthentication
	case e.Message != nil && e.Message.Text != "":
		return KindMessage
	case e.Message != nil && len(e.Message.Attachments) > 0:
		return KindAttachment
	case e.Postback != nil:
		return KindPostback
	case e.Delivery != nil:
		return KindDelivery
	case e.Read != nil:
		return KindRead
	case e.AccountLinking != nil:
		return KindAccountLinking
	case len(e.Payment) > 0:
		return KindPayment
	default:
		return KindUnknown
	}
}

// IsEcho reports whether the event is the page's own outbound message echoed back.
func (e *Event) IsEcho() bool {
	return e.Message != nil && e.Message.IsEcho
}

// MessageID returns the message mid, or "" if the event carries no message.
func (e *Event) MessageID() string {
	if e.Message == nil {
		return ""
	}
	return e.Message.Mid
}

// Text returns the message text, or "" if the event carries no message.
func (e *Event) Text() string {
	if e.Message == nil {
		return ""
	}
	return e.Message.Text
}

// HasAttachments reports whether the message carries attachments.
func (e *Event) HasAttachments() bool {
	return e.Message != nil && len(e.Message.Attachments) > 0
}

// Outbound payloads.

// Recipient addresses an outbound message.
type Recipient struct {
	ID string `json:"id"`
}

// QuickReply is an outbound quick reply button.
type QuickReply struct {
	ContentType string `json:"content_type,omitempty"`
	Title       string `json:"title,omitempty"`
	Payload     string `json:"payload,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// OutboundMessage is the message body of a send request.
type OutboundMessage struct {
	Text         string       `json:"text,omitempty"`
	QuickReplies []QuickReply `json:"quick_replies,omitempty"`
}

// SendRequest is the body POSTed to the messages endpoint.
type SendRequest struct {
	Recipient Recipient       `json:"recipient"`
	Message   OutboundMessage `json:"message"`
}
