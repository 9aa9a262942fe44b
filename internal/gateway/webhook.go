package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/flowgate/internal/events"
	"github.com/mattjoyce/flowgate/internal/webhook"
	"github.com/mattjoyce/flowgate/internal/worker"
)

// TaskInboundMessage names the background task that processes a webhook message.
const TaskInboundMessage = "inbound_message"

// handleVerify answers the platform's GET verification handshake.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := webhook.VerifySubscription(
		q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"), s.config.VerifyToken)
	if !ok {
		s.logger.Warn("webhook verification failed", "mode", q.Get("hub.mode"))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	s.logger.Info("webhook verified successfully")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// handleWebhook acknowledges an inbound notification with 200 before doing
// anything slow, then hands the message to the worker pool.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With("request_id", middleware.GetReqID(r.Context()))

	body, readErr := readBody(r, s.config.MaxBodyBytes)
	verified := readErr == nil && s.deps.Verifier.Verify(body, r.Header.Get(s.config.SignatureHeader))

	w.WriteHeader(http.StatusOK)
	if err := http.NewResponseController(w).Flush(); err != nil {
		logger.Debug("response flush not supported", "error", err)
	}

	if readErr != nil {
		logger.Warn("webhook body rejected", "error", readErr)
		return
	}
	if !verified {
		s.deps.Metrics.SignatureRejected("webhook")
		logger.Warn("webhook signature rejected, notification dropped")
		return
	}

	s.dispatchNotification(logger, body)
}

func (s *Server) dispatchNotification(logger *slog.Logger, body []byte) {
	n, err := webhook.ParseNotification(body)
	if err != nil {
		logger.Warn("webhook notification could not be decoded", "error", err)
		s.deps.Metrics.WebhookMessage("invalid")
		return
	}
	msg, err := n.FirstMessage()
	if err != nil {
		logger.Warn("webhook message could not be decoded", "error", err)
		s.deps.Metrics.WebhookMessage("invalid")
		return
	}
	if msg == nil {
		s.deps.Metrics.WebhookMessage("none")
		return
	}
	s.deps.Metrics.WebhookMessage(messageKind(msg))

	task := worker.NewTask(TaskInboundMessage, func(ctx context.Context) error {
		outcome, err := s.deps.Messages.Handle(ctx, msg)
		if err == nil {
			s.logger.Debug("inbound message processed", "message_id", msg.ID, "outcome", string(outcome))
		}
		return err
	})
	if err := s.deps.Tasks.Submit(task); err != nil {
		logger.Error("inbound message dropped", "message_id", msg.ID, "task_id", task.ID, "error", err)
		s.deps.Events.Publish(events.TypeTaskDropped, worker.Outcome{
			Task:   task.Name,
			ID:     task.ID,
			Result: worker.ResultFailed,
			Error:  err.Error(),
		})
		s.deps.Metrics.TaskFinished(task.Name, "dropped")
		return
	}
	logger.Debug("inbound message queued", "message_id", msg.ID, "task_id", task.ID)
}

func messageKind(msg *webhook.Message) string {
	switch {
	case msg.Text != nil:
		return "text"
	case msg.Interactive != nil && msg.Interactive.NFMReply != nil:
		return "nfm_reply"
	case msg.Interactive != nil && msg.Interactive.ButtonReply != nil:
		return "button_reply"
	default:
		return "other"
	}
}
