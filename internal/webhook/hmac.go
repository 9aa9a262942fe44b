package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"strings"
)

// SignaturePrefix is the fixed prefix of the X-Hub-Signature-256 header value.
const SignaturePrefix = "sha256="

// VerifySignature reports whether signatureHeader carries the HMAC-SHA256 of rawBody under secret.
//
// rawBody must be the exact bytes received on the wire, before any JSON parsing.
// An empty secret verifies everything (signing not configured); a missing header never verifies.
// The hex digests are compared with crypto/subtle so timing does not depend on where they differ.
func VerifySignature(rawBody []byte, signatureHeader string, secret []byte) bool {
	if len(secret) == 0 {
		return true
	}
	if signatureHeader == "" {
		return false
	}

	expected := computeExpectedSignature(rawBody, secret)
	provided := strings.TrimPrefix(signatureHeader, SignaturePrefix)

	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

// Sign returns the header value the platform would send for body: "sha256=<hex>".
func Sign(body, secret []byte) string {
	return formatSignature(computeExpectedSignature(body, secret))
}

// computeExpectedSignature computes the HMAC-SHA256 signature for a body.
// Returns the lowercase hex-encoded digest.
func computeExpectedSignature(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func formatSignature(hexSig string) string {
	return SignaturePrefix + hexSig
}

// Verifier checks inbound request signatures against the app secret.
// It is safe for concurrent use; the secret is never mutated after construction.
type Verifier struct {
	secret        []byte
	allowUnsigned bool
	logger        *slog.Logger
}

// NewVerifier creates a Verifier. When secret is empty, allowUnsigned decides whether
// requests pass (signing not configured for this environment) or are all rejected.
func NewVerifier(secret string, allowUnsigned bool, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		secret:        []byte(secret),
		allowUnsigned: allowUnsigned,
		logger:        logger,
	}
}

// Enabled reports whether an app secret is configured.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify reports whether the request may be processed.
func (v *Verifier) Verify(rawBody []byte, signatureHeader string) bool {
	if !v.Enabled() {
		if v.allowUnsigned {
			v.logger.Warn("app secret is not set up, skipping request validation")
			return true
		}
		v.logger.Error("app secret is not set up and unsigned requests are disallowed")
		return false
	}

	if signatureHeader == "" {
		v.logger.Warn("missing signature header")
		return false
	}

	if !VerifySignature(rawBody, signatureHeader, v.secret) {
		v.logger.Warn("request signature did not match")
		return false
	}
	return true
}
