package webhook

import (
	"encoding/json"
	"fmt"
)

// Notification is the body of an inbound messaging-platform webhook POST.
type Notification struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the changes for one business account.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change is a single field update within an entry.
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue carries the messages of a "messages" change.
// Messages stay raw so the stored snapshot keeps fields this service does not model.
type ChangeValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         Metadata          `json:"metadata"`
	Contacts         []Contact         `json:"contacts,omitempty"`
	Messages         []json.RawMessage `json:"messages,omitempty"`
}

// Metadata identifies the receiving business number.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact is the sender profile attached to a message.
type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// Message is an inbound user message.
type Message struct {
	ID          string       `json:"id"`
	From        string       `json:"from"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *Text        `json:"text,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`

	// Raw is the message exactly as received.
	Raw json.RawMessage `json:"-"`
}

// Text is the body of a plain text message.
type Text struct {
	Body string `json:"body"`
}

// Interactive is a reply to an interactive message (button or flow).
type Interactive struct {
	Type        string       `json:"type"`
	ButtonReply *ButtonReply `json:"button_reply,omitempty"`
	NFMReply    *NFMReply    `json:"nfm_reply,omitempty"`
}

// ButtonReply is sent when the user taps a reply button.
type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// NFMReply is sent when the user completes a flow.
type NFMReply struct {
	Name         string `json:"name"`
	Body         string `json:"body"`
	ResponseJSON string `json:"response_json"`
}

// FlowCompletion is the decoded response_json of a completed flow.
type FlowCompletion struct {
	FlowToken     string `json:"flow_token"`
	PreferredDate string `json:"preferred_date,omitempty"`
	PreferredTime string `json:"preferred_time,omitempty"`
}

// ParseNotification decodes a webhook body.
func ParseNotification(body []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	return &n, nil
}

// FirstMessage returns entry[0].changes[0].value.messages[0], or nil when the
// notification carries no message (status updates, empty batches).
func (n *Notification) FirstMessage() (*Message, error) {
	if len(n.Entry) == 0 || len(n.Entry[0].Changes) == 0 {
		return nil, nil
	}
	msgs := n.Entry[0].Changes[0].Value.Messages
	if len(msgs) == 0 {
		return nil, nil
	}

	var m Message
	if err := json.Unmarshal(msgs[0], &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	m.Raw = append(json.RawMessage(nil), msgs[0]...)
	return &m, nil
}

// ParseFlowCompletion decodes the response_json of an nfm_reply.
func (r *NFMReply) ParseFlowCompletion() (*FlowCompletion, error) {
	var fc FlowCompletion
	if err := json.Unmarshal([]byte(r.ResponseJSON), &fc); err != nil {
		return nil, fmt.Errorf("decode response_json: %w", err)
	}
	if fc.FlowToken == "" {
		return nil, fmt.Errorf("response_json has no flow_token")
	}
	return &fc, nil
}
