package webhook

import "crypto/subtle"

// ModeSubscribe is the only hub.mode accepted during webhook verification.
const ModeSubscribe = "subscribe"

// VerifySubscription checks a GET verification request.
// It returns the challenge to echo and true when mode is "subscribe" and the
// provided token matches the configured one. An unconfigured token never matches.
func VerifySubscription(mode, token, challenge, verifyToken string) (string, bool) {
	if mode != ModeSubscribe || verifyToken == "" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(verifyToken)) != 1 {
		return "", false
	}
	return challenge, true
}
