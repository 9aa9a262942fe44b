// Package flow is the business dispatch for decrypted flow data exchange payloads.
//
// Handle maps a Request onto the next screen. Unsupported actions and screens
// become an in-band error screen; only storage failures are returned as errors.
package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/flowgate/internal/config"
	"github.com/mattjoyce/flowgate/internal/conversation"
	"github.com/mattjoyce/flowgate/internal/token"
)

// Actions sent by the client.
const (
	ActionPing         = "ping"
	ActionDataExchange = "data_exchange"
)

const dateLayout = "2006-01-02"

// Request is the decrypted payload.
type Request struct {
	Version   json.RawMessage `json:"version,omitempty"`
	Action    string          `json:"action"`
	Screen    string          `json:"screen,omitempty"`
	Data      map[string]any  `json:"data,omitempty"`
	FlowToken string          `json:"flow_token,omitempty"`
}

// ParseRequest decodes a decrypted payload.
func ParseRequest(payload []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return Request{}, fmt.Errorf("decode flow request: %w", err)
	}
	return req, nil
}

// Response is encrypted and returned to the client. Version always equals
// the request version.
type Response struct {
	Version json.RawMessage `json:"version,omitempty"`
	Screen  string          `json:"screen,omitempty"`
	Data    any             `json:"data"`
}

type healthData struct {
	Status string `json:"status"`
}

type ackData struct {
	Acknowledged bool `json:"acknowledged"`
}

// Store is the part of the conversation store the flow needs.
type Store interface {
	Update(ctx context.Context, tok string, p conversation.Patch) (*conversation.Record, error)
}

// Options configures the available_slots screen.
type Options struct {
	CallingTimes   []config.CallingTimeConfig
	DateWindowDays int
	Location       *time.Location
}

// Service dispatches decrypted requests.
type Service struct {
	store  Store
	opts   Options
	now    func() time.Time
	logger *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source used for the date window.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithLogger overrides the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService returns a Service backed by store. A nil Options.Location means UTC.
func NewService(store Store, opts Options, sopts ...ServiceOption) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	s := &Service{
		store:  store,
		opts:   opts,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range sopts {
		o(s)
	}
	return s
}

// Handle returns the response for req.
func (s *Service) Handle(ctx context.Context, req Request) (Response, error) {
	switch req.Action {
	case ActionPing:
		return Response{Version: req.Version, Data: healthData{Status: "active"}}, nil
	case ActionDataExchange:
		if _, ok := req.Data["error"]; ok {
			s.logger.Warn("client reported flow error",
				"screen", req.Screen, "error", req.Data["error"], "error_message", req.Data["error_message"])
			return Response{Version: req.Version, Data: ackData{Acknowledged: true}}, nil
		}
		screen, err := s.dataExchange(ctx, req)
		if err != nil {
			return Response{}, err
		}
		return render(req, screen), nil
	default:
		s.logger.Error("invalid action received", "action", req.Action)
		return render(req, ErrorScreen{
			Head: "Invalid Action",
			Text: "The action is not supported.",
			Data: req.Data,
		}), nil
	}
}

func render(req Request, screen Screen) Response {
	return Response{Version: req.Version, Screen: screenID(screen), Data: screen}
}

func (s *Service) dataExchange(ctx context.Context, req Request) (Screen, error) {
	switch req.Screen {
	case ScreenUserDetails, ScreenUserDetailsCommunityTrip:
		return s.userDetails(ctx, req)
	case ScreenAvailableSlots:
		return s.availableSlots(ctx, req)
	default:
		s.logger.Error("screen does not exist", "screen", req.Screen)
		return ErrorScreen{
			Head: "Screen does not exist",
			Text: "Please try again.",
			Data: req.Data,
		}, nil
	}
}

func (s *Service) userDetails(ctx context.Context, req Request) (Screen, error) {
	booking, err := json.Marshal(req.Data)
	if err != nil {
		return nil, fmt.Errorf("encode booking data: %w", err)
	}
	_, err = s.store.Update(ctx, req.FlowToken, conversation.Patch{
		Status:      conversation.Ptr(conversation.StatusInitiatedForm),
		BookingData: booking,
	})
	if screen, ok := s.sessionError(req, err); ok {
		return screen, nil
	}
	if err != nil {
		return nil, fmt.Errorf("save user details: %w", err)
	}

	today := s.now().In(s.opts.Location)
	slots := AvailableSlots{
		PhoneNumber: stringField(req.Data, "phone_number"),
		Time:        make([]Option, 0, len(s.opts.CallingTimes)),
		MinDate:     today.Format(dateLayout),
		MaxDate:     today.AddDate(0, 0, s.opts.DateWindowDays).Format(dateLayout),
	}
	for _, ct := range s.opts.CallingTimes {
		slots.Time = append(slots.Time, Option{ID: ct.ID, Title: ct.Title})
	}
	return slots, nil
}

func (s *Service) availableSlots(ctx context.Context, req Request) (Screen, error) {
	date := stringField(req.Data, "preferred_date")
	slot := stringField(req.Data, "preferred_time")
	if date == "" || slot == "" {
		return ErrorScreen{
			Head: "Missing selection",
			Text: "Please choose a date and a time.",
			Data: req.Data,
		}, nil
	}
	if _, err := time.ParseInLocation(dateLayout, date, s.opts.Location); err != nil {
		return ErrorScreen{
			Head: "Invalid date",
			Text: "Please choose a date from the calendar.",
			Data: req.Data,
		}, nil
	}

	booking, err := json.Marshal(map[string]string{
		"preferred_date": date,
		"preferred_time": slot,
	})
	if err != nil {
		return nil, fmt.Errorf("encode booking data: %w", err)
	}
	_, err = s.store.Update(ctx, req.FlowToken, conversation.Patch{
		BookingData:   booking,
		PreferredDate: conversation.Ptr(date),
		PreferredTime: conversation.Ptr(slot),
	})
	if screen, ok := s.sessionError(req, err); ok {
		return screen, nil
	}
	if err != nil {
		return nil, fmt.Errorf("save slot selection: %w", err)
	}

	return Success{ExtensionMessageResponse: ExtensionMessageResponse{
		Params: CompletionParams{
			FlowToken:     req.FlowToken,
			PreferredDate: date,
			PreferredTime: slot,
		},
	}}, nil
}

// sessionError maps token and lookup failures onto an in-band error screen.
func (s *Service) sessionError(req Request, err error) (Screen, bool) {
	switch {
	case err == nil:
		return nil, false
	case errors.Is(err, token.ErrExpired):
		s.logger.Warn("flow token expired", "screen", req.Screen)
		return ErrorScreen{Head: "Session expired", Text: "Please start a new conversation.", Data: req.Data}, true
	case errors.Is(err, token.ErrInvalidToken), errors.Is(err, conversation.ErrNotFound):
		s.logger.Warn("flow token rejected", "screen", req.Screen, "error", err)
		return ErrorScreen{Head: "Session not found", Text: "Please start a new conversation.", Data: req.Data}, true
	default:
		return nil, false
	}
}

func stringField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
