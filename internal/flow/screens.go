package flow

import (
	"encoding/json"
	"maps"
)

// Screen ids returned to the client.
const (
	ScreenUserDetails              = "user_details"
	ScreenUserDetailsCommunityTrip = "user_details_communityTrip"
	ScreenAvailableSlots           = "available_slots"
	ScreenError                    = "error"
	ScreenSuccess                  = "SUCCESS"
)

// Screen is the data for the next screen shown to the user. The set of
// implementations is closed; see screenID.
type Screen interface {
	isScreen()
}

// Option is one entry of a dropdown or radio list.
type Option struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// AvailableSlots asks the user for a preferred callback date and time window.
type AvailableSlots struct {
	PhoneNumber string   `json:"phone_number,omitempty"`
	Time        []Option `json:"time"`
	MinDate     string   `json:"min_date"`
	MaxDate     string   `json:"max_date"`
}

// Success closes the flow. Params arrive back on the webhook as the
// nfm_reply response_json.
type Success struct {
	ExtensionMessageResponse ExtensionMessageResponse `json:"extension_message_response"`
}

// ExtensionMessageResponse wraps the params handed back to the chat thread.
type ExtensionMessageResponse struct {
	Params CompletionParams `json:"params"`
}

// CompletionParams are the values the webhook receives in response_json.
type CompletionParams struct {
	FlowToken     string `json:"flow_token"`
	PreferredDate string `json:"preferred_date"`
	PreferredTime string `json:"preferred_time"`
}

// ErrorScreen is the in-band error shown for unsupported actions and screens.
// The submitted data is echoed alongside the error text.
type ErrorScreen struct {
	Head string
	Text string
	Data map[string]any
}

// MarshalJSON flattens Data next to error_head and error_text. The error keys
// win over submitted fields of the same name.
func (e ErrorScreen) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Data)+2)
	maps.Copy(out, e.Data)
	out["error_head"] = e.Head
	out["error_text"] = e.Text
	return json.Marshal(out)
}

func (AvailableSlots) isScreen() {}
func (Success) isScreen()        {}
func (ErrorScreen) isScreen()    {}

func screenID(s Screen) string {
	switch s.(type) {
	case AvailableSlots, *AvailableSlots:
		return ScreenAvailableSlots
	case Success, *Success:
		return ScreenSuccess
	case ErrorScreen, *ErrorScreen:
		return ScreenError
	default:
		panic("flow: unknown screen type")
	}
}
