package flowcrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Cipher decrypts flow data-exchange requests and encrypts their responses.
// It holds the endpoint RSA private key and is safe for concurrent use.
type Cipher struct {
	key           *rsa.PrivateKey
	failureStatus int
}

// Option configures a Cipher.
type Option func(*Cipher)

// WithFailureStatus sets the status attached to cryptographic failures.
func WithFailureStatus(status int) Option {
	return func(c *Cipher) {
		if status > 0 {
			c.failureStatus = status
		}
	}
}

// New returns a Cipher for key.
func New(key *rsa.PrivateKey, opts ...Option) (*Cipher, error) {
	if key == nil {
		return nil, errors.New("flowcrypto: private key is required")
	}
	c := &Cipher{key: key, failureStatus: DefaultFailureStatus}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PublicKey returns the public half of the endpoint key.
func (c *Cipher) PublicKey() *rsa.PublicKey {
	return &c.key.PublicKey
}

// Exchange is a decrypted request. AESKey and RequestIV are needed to encrypt the
// response and must not outlive the request; call Wipe when done.
type Exchange struct {
	Payload   json.RawMessage
	AESKey    []byte
	RequestIV []byte
}

// Wipe zeroes the per-request key material.
func (x *Exchange) Wipe() {
	if x == nil {
		return
	}
	wipe(x.AESKey)
	wipe(x.RequestIV)
}

// Decrypt unwraps the AES key with RSA-OAEP (SHA-256, MGF1 SHA-256, empty label),
// then opens encrypted_flow_data with AES-128-GCM using initial_vector as the nonce.
// Every failure is an *Error; only KindPayload is not cryptographic.
func (c *Cipher) Decrypt(env *Envelope) (*Exchange, error) {
	fields, err := env.decode()
	if err != nil {
		return nil, c.fail(KindEnvelope, err)
	}

	aesKey, err := rsa.DecryptOAEP(sha256.New(), nil, c.key, fields.encryptedKey, nil)
	if err != nil {
		return nil, c.fail(KindKeyUnwrap, err)
	}
	if len(aesKey) != KeySize {
		wipe(aesKey)
		return nil, c.fail(KindKeyUnwrap, fmt.Errorf("unwrapped key is %d bytes, want %d", len(aesKey), KeySize))
	}

	plaintext, err := aesGCMOpen(aesKey, fields.iv, fields.flowData)
	if err != nil {
		wipe(aesKey)
		return nil, c.fail(KindAuthentication, err)
	}

	if !isJSONObject(plaintext) {
		wipe(aesKey)
		return nil, c.fail(KindPayload, errors.New("decrypted payload is not a JSON object"))
	}

	return &Exchange{Payload: plaintext, AESKey: aesKey, RequestIV: fields.iv}, nil
}

// DecryptBody decodes a raw request body as an Envelope and decrypts it.
// A body that is not a JSON envelope fails with KindEnvelope.
func (c *Cipher) DecryptBody(body []byte) (*Exchange, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, c.fail(KindEnvelope, fmt.Errorf("decode envelope: %w", err))
	}
	return c.Decrypt(&env)
}

// Encrypt serialises payload as JSON and seals it with AES-128-GCM under aesKey,
// using the bitwise complement of requestIV as the nonce. The result is
// ciphertext followed by the 16-byte tag.
func (c *Cipher) Encrypt(payload any, aesKey, requestIV []byte) ([]byte, error) {
	if len(aesKey) != KeySize {
		return nil, c.fail(KindEncrypt, fmt.Errorf("key is %d bytes, want %d", len(aesKey), KeySize))
	}
	if len(requestIV) != IVSize {
		return nil, c.fail(KindEncrypt, fmt.Errorf("iv is %d bytes, want %d", len(requestIV), IVSize))
	}
	plaintext, err := marshalJSON(payload)
	if err != nil {
		return nil, c.fail(KindEncrypt, err)
	}
	sealed, err := aesGCMSeal(aesKey, FlipIV(requestIV), plaintext)
	if err != nil {
		return nil, c.fail(KindEncrypt, err)
	}
	return sealed, nil
}

// EncryptResponse encrypts payload for x and returns it base64-encoded, ready to
// be written as the response body.
func (c *Cipher) EncryptResponse(x *Exchange, payload any) (string, error) {
	if x == nil {
		return "", c.fail(KindEncrypt, errors.New("nil exchange"))
	}
	sealed, err := c.Encrypt(payload, x.AESKey, x.RequestIV)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// FlipIV returns a new slice holding the bitwise complement of iv.
func FlipIV(iv []byte) []byte {
	out := make([]byte, len(iv))
	for i, b := range iv {
		out[i] = ^b
	}
	return out
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return gcm, nil
}

func aesGCMOpen(key, nonce, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("nonce is %d bytes, want %d", len(nonce), gcm.NonceSize())
	}
	if len(ciphertext) < gcm.Overhead() {
		return nil, errors.New("ciphertext shorter than tag")
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("gcm open: %w", err)
	}
	return plaintext, nil
}

func aesGCMSeal(key, nonce, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("nonce is %d bytes, want %d", len(nonce), gcm.NonceSize())
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nil
}

func isJSONObject(b []byte) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return false
	}
	return obj != nil
}

// marshalJSON encodes v without HTML escaping so the plaintext matches what the
// client would produce for the same value.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
