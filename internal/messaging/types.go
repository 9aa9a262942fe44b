package messaging

const product = "whatsapp"

// Button is a quick-reply button. Titles are limited to 20 characters by the platform.
type Button struct {
	ID    string
	Title string
}

// Buttons is an interactive reply-button message.
type Buttons struct {
	Header  string
	Body    string
	Footer  string
	Buttons []Button
}

// Flow is an interactive flow message that opens Screen with Data.
type Flow struct {
	FlowID    string
	FlowToken string
	CTA       string
	// Mode is "published" or "draft".
	Mode   string
	Body   string
	Footer string
	Screen string
	Data   map[string]any
}

// Template is a pre-approved template message with positional body parameters.
type Template struct {
	Name       string
	Language   string
	BodyParams []string
}

// Wire shapes for POST {phone_number_id}/messages.

type textBody struct {
	Text string `json:"text"`
}

type statusRequest struct {
	MessagingProduct string           `json:"messaging_product"`
	Status           string           `json:"status"`
	MessageID        string           `json:"message_id"`
	TypingIndicator  *typingIndicator `json:"typing_indicator,omitempty"`
}

type typingIndicator struct {
	Type string `json:"type"`
}

type messageRequest struct {
	MessagingProduct string        `json:"messaging_product"`
	RecipientType    string        `json:"recipient_type,omitempty"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *textMessage  `json:"text,omitempty"`
	Interactive      *interactive  `json:"interactive,omitempty"`
	Template         *templateBody `json:"template,omitempty"`
}

type textMessage struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

type interactive struct {
	Type   string      `json:"type"`
	Header *headerBody `json:"header,omitempty"`
	Body   *textBody   `json:"body,omitempty"`
	Footer *textBody   `json:"footer,omitempty"`
	Action any         `json:"action"`
}

type headerBody struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type replyButton struct {
	Type  string     `json:"type"`
	Reply replyTitle `json:"reply"`
}

type replyTitle struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type flowAction struct {
	Name       string         `json:"name"`
	Parameters flowParameters `json:"parameters"`
}

type flowParameters struct {
	FlowMessageVersion string            `json:"flow_message_version"`
	FlowToken          string            `json:"flow_token"`
	FlowID             string            `json:"flow_id"`
	FlowCTA            string            `json:"flow_cta"`
	FlowAction         string            `json:"flow_action"`
	Mode               string            `json:"mode,omitempty"`
	FlowActionPayload  flowActionPayload `json:"flow_action_payload"`
}

type flowActionPayload struct {
	Screen string         `json:"screen"`
	Data   map[string]any `json:"data,omitempty"`
}

type templateBody struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []templateComponent `json:"components,omitempty"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateComponent struct {
	Type       string              `json:"type"`
	Parameters []templateParameter `json:"parameters"`
}

type templateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
