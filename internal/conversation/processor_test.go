package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/flowgate/internal/config"
	"github.com/mattjoyce/flowgate/internal/conversation/mocks"
	"github.com/mattjoyce/flowgate/internal/messaging"
	"github.com/mattjoyce/flowgate/internal/token"
	"github.com/mattjoyce/flowgate/internal/webhook"
)

func testReplies() config.ConversationConfig {
	return config.ConversationConfig{
		Welcome:  config.WelcomeConfig{Header: "Welcome", Body: "Pick one", Footer: "FOOT"},
		ThankYou: "Thanks, we will call you.",
		Buttons: []config.ButtonConfig{
			{
				Title: "Customize Trip",
				Flow: &config.FlowLaunchConfig{
					ID:     "flow-1",
					Mode:   "published",
					Screen: "user_details",
					CTA:    "Customize Your Trip",
					Body:   "Click Below to Start Flow",
					Data:   map[string]any{"location": []any{"Goa"}},
				},
			},
			{Title: "Community Trip"},
		},
	}
}

func newIssuer(t *testing.T) *token.Issuer {
	t.Helper()
	iss, err := token.NewIssuer("s3cret", 0, token.WithClock(func() time.Time {
		return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	}))
	require.NoError(t, err)
	return iss
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func parseMessage(t *testing.T, body string) *webhook.Message {
	t.Helper()
	n, err := webhook.ParseNotification([]byte(`{"entry":[{"changes":[{"value":{"messages":[` + body + `]}}]}]}`))
	require.NoError(t, err)
	msg, err := n.FirstMessage()
	require.NoError(t, err)
	require.NotNil(t, msg)
	return msg
}

func TestProcessorTextSendsWelcome(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := openStore(t)
	messenger := mocks.NewMockMessenger(ctrl)
	iss := newIssuer(t)
	p := NewProcessor(store, messenger, iss, testReplies(), quietLogger())

	msg := parseMessage(t, `{"id":"wamid.A","from":"91900000001","type":"text","text":{"body":"Hi"}}`)

	gomock.InOrder(
		messenger.EXPECT().MarkRead(gomock.Any(), "wamid.A").Return(nil),
		messenger.EXPECT().SendButtons(gomock.Any(), "91900000001", messaging.Buttons{
			Header:  "Welcome",
			Body:    "Pick one",
			Footer:  "FOOT",
			Buttons: []messaging.Button{{Title: "Customize Trip"}, {Title: "Community Trip"}},
		}).Return(nil),
	)

	outcome, err := p.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeText, outcome)

	tok, err := iss.Issue("91900000001", "wamid.A")
	require.NoError(t, err)
	rec, err := store.FindByToken(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, rec.Status)
	assert.Contains(t, string(rec.Message), `"Hi"`)
}

func TestProcessorDuplicateIsIgnored(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := openStore(t)
	messenger := mocks.NewMockMessenger(ctrl)
	p := NewProcessor(store, messenger, newIssuer(t), testReplies(), quietLogger())
	msg := parseMessage(t, `{"id":"wamid.A","from":"91900000001","type":"text","text":{"body":"Hi"}}`)

	messenger.EXPECT().MarkRead(gomock.Any(), "wamid.A").Return(nil).Times(1)
	messenger.EXPECT().SendButtons(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)

	_, err := p.Handle(context.Background(), msg)
	require.NoError(t, err)

	outcome, err := p.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
}

func TestProcessorButtonLaunchesFlow(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := openStore(t)
	messenger := mocks.NewMockMessenger(ctrl)
	iss := newIssuer(t)
	p := NewProcessor(store, messenger, iss, testReplies(), quietLogger())

	msg := parseMessage(t, `{"id":"wamid.B","from":"91900000001","type":"interactive",
		"interactive":{"type":"button_reply","button_reply":{"id":"replyButton1","title":"Customize Trip"}}}`)
	wantToken, err := iss.Issue("91900000001", "wamid.B")
	require.NoError(t, err)

	messenger.EXPECT().MarkRead(gomock.Any(), "wamid.B").Return(errors.New("typing indicator down"))
	messenger.EXPECT().SendFlow(gomock.Any(), "91900000001", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, f messaging.Flow) error {
			assert.Equal(t, "flow-1", f.FlowID)
			assert.Equal(t, wantToken, f.FlowToken)
			assert.Equal(t, "user_details", f.Screen)
			assert.Equal(t, "91900000001", f.Data["phone_number"])
			assert.Equal(t, []any{"Goa"}, f.Data["location"])
			return nil
		})

	outcome, err := p.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeButton, outcome)

	rec, err := store.FindByToken(context.Background(), wantToken)
	require.NoError(t, err)
	assert.Equal(t, "Customize Trip", rec.TripPreference)
}

func TestProcessorButtonWithoutFlow(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	messenger := mocks.NewMockMessenger(ctrl)
	p := NewProcessor(openStore(t), messenger, newIssuer(t), testReplies(), quietLogger())
	msg := parseMessage(t, `{"id":"wamid.C","from":"9190","type":"interactive",
		"interactive":{"type":"button_reply","button_reply":{"id":"replyButton2","title":"Community Trip"}}}`)

	messenger.EXPECT().MarkRead(gomock.Any(), "wamid.C").Return(nil)

	outcome, err := p.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeButton, outcome)
}

func TestProcessorFlowCompletion(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := openStore(t)
	messenger := mocks.NewMockMessenger(ctrl)
	iss := newIssuer(t)
	p := NewProcessor(store, messenger, iss, testReplies(), quietLogger())
	ctx := context.Background()

	flowToken, err := iss.Issue("91900000001", "wamid.A")
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, &Record{Token: flowToken, PhoneNumber: "91900000001", MessageID: "wamid.A"}))

	msg := parseMessage(t, `{"id":"wamid.D","from":"91900000001","type":"interactive",
		"interactive":{"type":"nfm_reply","nfm_reply":{"name":"flow","body":"Sent",
		"response_json":"{\"flow_token\":\"`+flowToken+`\",\"preferred_date\":\"2026-10-17\",\"preferred_time\":\"10_12\"}"}}}`)

	messenger.EXPECT().MarkRead(gomock.Any(), "wamid.D").Return(nil)
	messenger.EXPECT().SendText(gomock.Any(), "91900000001", "Thanks, we will call you.").Return(nil)

	outcome, err := p.Handle(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompletion, outcome)

	rec, err := store.FindByToken(ctx, flowToken)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, "2026-10-17", rec.PreferredDate)
	assert.Equal(t, "10_12", rec.PreferredTime)
}

func TestProcessorFlowCompletionSendsTemplate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := openStore(t)
	messenger := mocks.NewMockMessenger(ctrl)
	iss := newIssuer(t)
	replies := testReplies()
	replies.CompletionTemplate = &config.TemplateConfig{
		Name:       "callback_booked",
		Language:   "en_US",
		BodyParams: []string{"trip_preference", "preferred_date", "preferred_time"},
	}
	p := NewProcessor(store, messenger, iss, replies, quietLogger())
	ctx := context.Background()

	flowToken, err := iss.Issue("91900000001", "wamid.A")
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, &Record{Token: flowToken, PhoneNumber: "91900000001", MessageID: "wamid.A"}))
	_, err = store.Update(ctx, flowToken, Patch{TripPreference: Ptr("Customize Trip")})
	require.NoError(t, err)

	msg := parseMessage(t, `{"id":"wamid.F","from":"91900000001","type":"interactive",
		"interactive":{"type":"nfm_reply","nfm_reply":{"name":"flow","body":"Sent",
		"response_json":"{\"flow_token\":\"`+flowToken+`\",\"preferred_date\":\"2026-10-17\",\"preferred_time\":\"10_12\"}"}}}`)

	messenger.EXPECT().MarkRead(gomock.Any(), "wamid.F").Return(nil)
	messenger.EXPECT().SendTemplate(gomock.Any(), "91900000001", messaging.Template{
		Name:       "callback_booked",
		Language:   "en_US",
		BodyParams: []string{"Customize Trip", "2026-10-17", "10_12"},
	}).Return(nil)

	outcome, err := p.Handle(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompletion, outcome)

	rec, err := store.FindByToken(ctx, flowToken)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
}

func TestProcessorFlowCompletionRejectsForgedToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	iss := newIssuer(t)
	store := openStore(t, WithTokenCheck(iss))
	messenger := mocks.NewMockMessenger(ctrl)
	p := NewProcessor(store, messenger, iss, testReplies(), quietLogger())
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &Record{Token: "forged", PhoneNumber: "9190", MessageID: "m"}))
	msg := parseMessage(t, `{"id":"wamid.E","from":"9190","type":"interactive",
		"interactive":{"type":"nfm_reply","nfm_reply":{"response_json":"{\"flow_token\":\"forged\"}"}}}`)

	messenger.EXPECT().MarkRead(gomock.Any(), "wamid.E").Return(nil)

	_, err := p.Handle(ctx, msg)
	assert.ErrorIs(t, err, token.ErrInvalidToken)

	rec, err := openStoreLookup(store, "forged")
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, rec.Status, "forged token must not complete the record")
}

// openStoreLookup reads a record bypassing the token check.
func openStoreLookup(s *Store, tok string) (*Record, error) {
	return scanRecord(s.db.QueryRowContext(context.Background(), selectRecord+` WHERE token = ?;`, tok))
}

func TestProcessorRejectsIncompleteMessage(t *testing.T) {
	p := NewProcessor(openStore(t), nil, newIssuer(t), testReplies(), quietLogger())
	_, err := p.Handle(context.Background(), &webhook.Message{ID: "x"})
	assert.Error(t, err)
}
