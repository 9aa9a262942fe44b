package flowcrypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Sealed is a request built by SealRequest together with the secrets needed to
// read the endpoint's response.
type Sealed struct {
	Envelope *Envelope
	AESKey   []byte
	IV       []byte
}

// SealRequest builds an encrypted request the way the platform client does: a
// fresh AES-128 key and 16-byte IV, the payload sealed with AES-GCM, and the key
// wrapped with RSA-OAEP SHA-256 for pub. Used by `flowgate flow ping` and tests.
func SealRequest(pub *rsa.PublicKey, payload any) (*Sealed, error) {
	key := make([]byte, KeySize)
	iv := make([]byte, IVSize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	plaintext, err := marshalJSON(payload)
	if err != nil {
		return nil, err
	}
	sealed, err := aesGCMSeal(key, iv, plaintext)
	if err != nil {
		return nil, err
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return nil, fmt.Errorf("wrap key: %w", err)
	}

	return &Sealed{
		Envelope: &Envelope{
			EncryptedFlowData: base64.StdEncoding.EncodeToString(sealed),
			EncryptedAESKey:   base64.StdEncoding.EncodeToString(wrapped),
			InitialVector:     base64.StdEncoding.EncodeToString(iv),
		},
		AESKey: key,
		IV:     iv,
	}, nil
}

// OpenResponse decrypts a base64 response body produced for s.
func (s *Sealed) OpenResponse(body string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("response base64: %w", err)
	}
	return aesGCMOpen(s.AESKey, FlipIV(s.IV), raw)
}
