// Package webhook verifies and decodes inbound messaging-platform webhooks.
//
// The platform signs every POST with an HMAC-SHA256 of the raw request body using
// the app secret, and sends it as:
//
//	X-Hub-Signature-256: sha256=<hex>
//
// # Security Model
//
//   - The digest is computed over the exact bytes received, captured before JSON parsing.
//     Re-serialising a parsed body can change bytes and break verification.
//   - Hex digests are compared with crypto/subtle (constant time).
//   - A missing header never verifies.
//   - An empty app secret verifies everything. This is an operational allowance for
//     environments without signing configured and is controlled by the
//     signature.allow_unsigned toggle on Verifier.
//   - Callers reject failed requests without revealing why (432 with an empty body on
//     the flow data-exchange path).
//
// # Verification Requests
//
// GET requests carrying hub.mode, hub.verify_token and hub.challenge are answered by
// VerifySubscription: the challenge is echoed only for mode "subscribe" with a matching token.
//
// # Notifications
//
// ParseNotification decodes the entry/changes/value/messages structure. FirstMessage
// returns the first message together with its raw JSON so the stored conversation
// snapshot keeps fields this package does not model.
package webhook
