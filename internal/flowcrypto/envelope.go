package flowcrypto

import (
	"encoding/base64"
	"fmt"
)

const (
	// KeySize is the AES-128 key length carried inside encrypted_aes_key.
	KeySize = 16
	// IVSize is the length of initial_vector, used directly as the GCM nonce.
	IVSize = 16
	// TagSize is the GCM authentication tag appended to encrypted_flow_data.
	TagSize = 16
)

// Envelope is the JSON body of a flow data-exchange request. All fields are base64.
type Envelope struct {
	EncryptedFlowData string `json:"encrypted_flow_data"`
	EncryptedAESKey   string `json:"encrypted_aes_key"`
	InitialVector     string `json:"initial_vector"`
}

type envelopeFields struct {
	flowData     []byte
	encryptedKey []byte
	iv           []byte
}

func (e *Envelope) decode() (*envelopeFields, error) {
	if e == nil {
		return nil, fmt.Errorf("nil envelope")
	}
	flowData, err := decodeField("encrypted_flow_data", e.EncryptedFlowData)
	if err != nil {
		return nil, err
	}
	if len(flowData) < TagSize {
		return nil, fmt.Errorf("encrypted_flow_data must be at least %d bytes, got %d", TagSize, len(flowData))
	}
	encryptedKey, err := decodeField("encrypted_aes_key", e.EncryptedAESKey)
	if err != nil {
		return nil, err
	}
	iv, err := decodeField("initial_vector", e.InitialVector)
	if err != nil {
		return nil, err
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("initial_vector must be %d bytes, got %d", IVSize, len(iv))
	}
	return &envelopeFields{flowData: flowData, encryptedKey: encryptedKey, iv: iv}, nil
}

func decodeField(name, value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("%s is missing", name)
	}
	b, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%s base64: %w", name, err)
	}
	return b, nil
}
