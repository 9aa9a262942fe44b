// Package flowcrypto implements the hybrid encryption used by flow data-exchange
// endpoints.
//
// A request carries an AES-128 key wrapped with the endpoint's RSA public key
// (OAEP, SHA-256), a 16-byte IV, and a JSON payload sealed with AES-128-GCM
// (ciphertext followed by a 16-byte tag). The response is sealed under the same
// key with the bitwise complement of the request IV and returned base64-encoded.
//
// Decrypt failures are *Error values. Envelope, key-unwrap and authentication
// failures carry the configured decryption-failure status; payload and encrypt
// failures carry 500.
package flowcrypto
