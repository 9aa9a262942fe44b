package gateway

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/flowgate/internal/flow"
	"github.com/mattjoyce/flowgate/internal/flowcrypto"
	"github.com/mattjoyce/flowgate/internal/metrics"
)

var errBodyTooLarge = errors.New("request body too large")

// statusError carries an HTTP status through the error chain.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string   { return e.err.Error() }
func (e *statusError) Unwrap() error   { return e.err }
func (e *statusError) HTTPStatus() int { return e.status }

// StatusOf returns the status hint of the first error in the chain that
// implements HTTPStatus() int, or 500.
func StatusOf(err error) int {
	var hinted interface{ HTTPStatus() int }
	if errors.As(err, &hinted) {
		if status := hinted.HTTPStatus(); status != 0 {
			return status
		}
	}
	return http.StatusInternalServerError
}

// readBody reads at most limit bytes and fails with 413 beyond that.
func readBody(r *http.Request, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, &statusError{status: http.StatusBadRequest, err: err}
	}
	if int64(len(body)) > limit {
		return nil, &statusError{status: http.StatusRequestEntityTooLarge, err: errBodyTooLarge}
	}
	return body, nil
}

// handleFlow handles the encrypted data exchange: verify, decrypt, dispatch,
// encrypt. Every failure is a bare status code with an empty body.
func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger := s.logger.With("request_id", middleware.GetReqID(r.Context()))

	fail := func(outcome string, err error) {
		status := StatusOf(err)
		s.deps.Metrics.ObserveFlow(outcome, time.Since(start))
		w.WriteHeader(status)
	}

	body, err := readBody(r, s.config.MaxBodyBytes)
	if err != nil {
		logger.Warn("flow request body rejected", "error", err)
		fail(metrics.OutcomeTooLarge, err)
		return
	}

	if !s.deps.Verifier.Verify(body, r.Header.Get(s.config.SignatureHeader)) {
		s.deps.Metrics.SignatureRejected("flow")
		fail(metrics.OutcomeSignature, &statusError{status: s.config.RejectionStatus, err: errors.New("signature rejected")})
		return
	}

	x, err := s.deps.Cipher.DecryptBody(body)
	if err != nil {
		if flowcrypto.IsCryptographic(err) {
			logger.Warn("flow request could not be decrypted", "kind", flowcrypto.KindOf(err).String())
			fail(metrics.OutcomeDecryptFailure, err)
			return
		}
		logger.Error("decrypted flow payload is invalid", "error", err)
		fail(metrics.OutcomeInternal, err)
		return
	}
	defer x.Wipe()

	req, err := flow.ParseRequest(x.Payload)
	if err != nil {
		logger.Error("decrypted flow payload is invalid", "error", err)
		fail(metrics.OutcomeInternal, err)
		return
	}

	resp, err := s.deps.Flows.Handle(r.Context(), req)
	if err != nil {
		logger.Error("flow dispatch failed", "action", req.Action, "screen", req.Screen, "error", err)
		fail(metrics.OutcomeInternal, err)
		return
	}

	out, err := s.deps.Cipher.EncryptResponse(x, resp)
	if err != nil {
		logger.Error("flow response could not be encrypted", "error", err)
		fail(metrics.OutcomeInternal, err)
		return
	}

	s.deps.Metrics.ObserveFlow(metrics.OutcomeOK, time.Since(start))
	logger.Debug("flow request handled", "action", req.Action, "screen", req.Screen, "next_screen", resp.Screen)

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, out)
}
