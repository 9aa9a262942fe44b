package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/mattjoyce/flowgate/internal/config"
	"github.com/mattjoyce/flowgate/internal/messaging"
	"github.com/mattjoyce/flowgate/internal/webhook"
)

//go:generate mockgen -destination=mocks/mock_messenger.go -package=mocks github.com/mattjoyce/flowgate/internal/conversation Messenger

// Messenger sends outbound replies. Implemented by *messaging.Client.
type Messenger interface {
	MarkRead(ctx context.Context, messageID string) error
	SendText(ctx context.Context, to, body string) error
	SendButtons(ctx context.Context, to string, msg messaging.Buttons) error
	SendFlow(ctx context.Context, to string, msg messaging.Flow) error
	SendTemplate(ctx context.Context, to string, msg messaging.Template) error
}

// TokenIssuer issues correlation tokens. Implemented by *token.Issuer.
type TokenIssuer interface {
	Issue(subject, messageID string) (string, error)
}

// Outcome describes what Handle did with a message.
type Outcome string

const (
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeText       Outcome = "text"
	OutcomeButton     Outcome = "button_reply"
	OutcomeCompletion Outcome = "flow_completion"
	OutcomeOther      Outcome = "other"
)

// Processor runs the post-acknowledgement work for one inbound message.
type Processor struct {
	store     *Store
	messenger Messenger
	issuer    TokenIssuer
	replies   config.ConversationConfig
	logger    *slog.Logger
}

// NewProcessor returns a Processor. A nil logger means slog.Default().
func NewProcessor(store *Store, messenger Messenger, issuer TokenIssuer, replies config.ConversationConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:     store,
		messenger: messenger,
		issuer:    issuer,
		replies:   replies,
		logger:    logger,
	}
}

// Handle processes msg: dedupe, read receipt, token issuance and record
// insert, then the reply for its type.
func (p *Processor) Handle(ctx context.Context, msg *webhook.Message) (Outcome, error) {
	if msg == nil || msg.ID == "" || msg.From == "" {
		return OutcomeOther, errors.New("message is missing id or sender")
	}
	logger := p.logger.With("message_id", msg.ID)

	first, err := p.store.MarkSeen(ctx, msg.ID)
	if err != nil {
		return OutcomeOther, err
	}
	if !first {
		logger.Debug("duplicate message ignored")
		return OutcomeDuplicate, nil
	}

	if err := p.messenger.MarkRead(ctx, msg.ID); err != nil {
		logger.Warn("mark read failed", "error", err)
	}

	tok, err := p.issuer.Issue(msg.From, msg.ID)
	if err != nil {
		return OutcomeOther, fmt.Errorf("issue token: %w", err)
	}
	if err := p.store.Insert(ctx, &Record{
		Token:       tok,
		PhoneNumber: msg.From,
		MessageID:   msg.ID,
		Message:     msg.Raw,
		Status:      StatusReceived,
	}); err != nil {
		return OutcomeOther, err
	}

	switch {
	case msg.Text != nil:
		return OutcomeText, p.sendWelcome(ctx, msg.From)
	case msg.Interactive != nil && msg.Interactive.NFMReply != nil:
		return OutcomeCompletion, p.completeFlow(ctx, msg.Interactive.NFMReply)
	case msg.Interactive != nil && msg.Interactive.ButtonReply != nil:
		return OutcomeButton, p.handleButton(ctx, msg.From, tok, msg.Interactive.ButtonReply)
	default:
		logger.Debug("message type has no reply", "type", msg.Type)
		return OutcomeOther, nil
	}
}

func (p *Processor) sendWelcome(ctx context.Context, to string) error {
	if len(p.replies.Buttons) == 0 {
		return nil
	}
	buttons := make([]messaging.Button, 0, len(p.replies.Buttons))
	for _, b := range p.replies.Buttons {
		buttons = append(buttons, messaging.Button{Title: b.Title})
	}
	return p.messenger.SendButtons(ctx, to, messaging.Buttons{
		Header:  p.replies.Welcome.Header,
		Body:    p.replies.Welcome.Body,
		Footer:  p.replies.Welcome.Footer,
		Buttons: buttons,
	})
}

func (p *Processor) handleButton(ctx context.Context, from, tok string, reply *webhook.ButtonReply) error {
	if _, err := p.store.Update(ctx, tok, Patch{TripPreference: Ptr(reply.Title)}); err != nil {
		return fmt.Errorf("record trip preference: %w", err)
	}

	button, ok := p.replies.ButtonByTitle(reply.Title)
	if !ok || button.Flow == nil {
		return nil
	}
	launch := button.Flow

	data := make(map[string]any, len(launch.Data)+1)
	maps.Copy(data, launch.Data)
	data["phone_number"] = from

	return p.messenger.SendFlow(ctx, from, messaging.Flow{
		FlowID:    launch.ID,
		FlowToken: tok,
		CTA:       launch.CTA,
		Mode:      launch.Mode,
		Body:      launch.Body,
		Footer:    launch.Footer,
		Screen:    launch.Screen,
		Data:      data,
	})
}

func (p *Processor) completeFlow(ctx context.Context, reply *webhook.NFMReply) error {
	completion, err := reply.ParseFlowCompletion()
	if err != nil {
		return err
	}
	rec, err := p.store.FindByToken(ctx, completion.FlowToken)
	if err != nil {
		return fmt.Errorf("find conversation: %w", err)
	}

	rec.PreferredDate = completion.PreferredDate
	rec.PreferredTime = completion.PreferredTime

	var sendErr error
	switch {
	case p.replies.CompletionTemplate != nil:
		sendErr = p.messenger.SendTemplate(ctx, rec.PhoneNumber, completionTemplate(p.replies.CompletionTemplate, rec))
	case p.replies.ThankYou != "":
		sendErr = p.messenger.SendText(ctx, rec.PhoneNumber, p.replies.ThankYou)
	}
	_, err = p.store.Update(ctx, completion.FlowToken, Patch{
		PreferredDate: Ptr(completion.PreferredDate),
		PreferredTime: Ptr(completion.PreferredTime),
		Status:        Ptr(StatusCompleted),
	})
	if err != nil {
		err = fmt.Errorf("complete conversation: %w", err)
	}
	return errors.Join(sendErr, err)
}

func completionTemplate(tpl *config.TemplateConfig, rec *Record) messaging.Template {
	params := make([]string, 0, len(tpl.BodyParams))
	for _, field := range tpl.BodyParams {
		switch field {
		case "phone_number":
			params = append(params, rec.PhoneNumber)
		case "trip_preference":
			params = append(params, rec.TripPreference)
		case "preferred_date":
			params = append(params, rec.PreferredDate)
		case "preferred_time":
			params = append(params, rec.PreferredTime)
		default:
			params = append(params, "")
		}
	}
	return messaging.Template{Name: tpl.Name, Language: tpl.Language, BodyParams: params}
}
