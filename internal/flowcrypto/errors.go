package flowcrypto

import (
	"errors"
	"fmt"
	"net/http"
)

// DefaultFailureStatus is returned to the platform when a request cannot be decrypted.
// 421 tells the client to re-fetch the endpoint public key and retry with a fresh envelope.
const DefaultFailureStatus = 421

// Kind classifies a flowcrypto failure.
type Kind int

const (
	// KindEnvelope: a field is missing, not base64, or has the wrong length.
	KindEnvelope Kind = iota + 1
	// KindKeyUnwrap: RSA-OAEP could not recover a 128-bit key.
	KindKeyUnwrap
	// KindAuthentication: the AES-GCM tag did not verify.
	KindAuthentication
	// KindPayload: the plaintext authenticated but is not a JSON object.
	KindPayload
	// KindEncrypt: the response could not be serialised or sealed.
	KindEncrypt
)

func (k Kind) String() string {
	switch k {
	case KindEnvelope:
		return "envelope"
	case KindKeyUnwrap:
		return "key unwrap"
	case KindAuthentication:
		return "authentication"
	case KindPayload:
		return "payload"
	case KindEncrypt:
		return "encrypt"
	default:
		return "unknown"
	}
}

// Cryptographic reports whether the kind means the envelope itself is bad
// (tampered, corrupted, or wrapped for another key), as opposed to an internal defect.
func (k Kind) Cryptographic() bool {
	return k == KindEnvelope || k == KindKeyUnwrap || k == KindAuthentication
}

// Error carries a failure kind and the HTTP status the gateway should answer with.
type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("flowcrypto %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the status hint for this failure.
func (e *Error) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// IsCryptographic reports whether err is a cryptographic failure.
func IsCryptographic(err error) bool {
	return KindOf(err).Cryptographic()
}

func (c *Cipher) fail(kind Kind, err error) *Error {
	status := http.StatusInternalServerError
	if kind.Cryptographic() {
		status = c.failureStatus
	}
	return &Error{Kind: kind, Status: status, Err: err}
}
