package flowcrypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/youmark/pkcs8"
)

// DefaultKeyBits is the modulus size used by GenerateKey when none is given.
const DefaultKeyBits = 2048

// ParsePrivateKey decodes a PEM RSA private key. Supported blocks:
//
//	RSA PRIVATE KEY            PKCS#1, optionally with legacy Proc-Type encryption
//	PRIVATE KEY                PKCS#8
//	ENCRYPTED PRIVATE KEY      PKCS#8 with PBES2
//
// Keys pasted into environment variables often carry literal "\n" sequences;
// those are expanded before decoding.
func ParsePrivateKey(pemData []byte, passphrase string) (*rsa.PrivateKey, error) {
	pemData = expandEscapedNewlines(pemData)
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("no PEM block found in private key")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		der := block.Bytes
		//nolint:staticcheck // legacy encrypted PEM is still emitted by openssl genrsa -aes256
		if x509.IsEncryptedPEMBlock(block) {
			if passphrase == "" {
				return nil, errors.New("private key is encrypted but no passphrase was provided")
			}
			//nolint:staticcheck
			plain, err := x509.DecryptPEMBlock(block, []byte(passphrase))
			if err != nil {
				return nil, fmt.Errorf("decrypt private key: %w", err)
			}
			der = plain
		}
		key, err := x509.ParsePKCS1PrivateKey(der)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS#1 private key: %w", err)
		}
		return key, nil

	case "PRIVATE KEY":
		key, err := pkcs8.ParsePKCS8PrivateKeyRSA(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS#8 private key: %w", err)
		}
		return key, nil

	case "ENCRYPTED PRIVATE KEY":
		if passphrase == "" {
			return nil, errors.New("private key is encrypted but no passphrase was provided")
		}
		key, err := pkcs8.ParsePKCS8PrivateKeyRSA(block.Bytes, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("decrypt PKCS#8 private key: %w", err)
		}
		return key, nil

	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}

// LoadPrivateKey reads and parses a PEM private key file.
func LoadPrivateKey(path, passphrase string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return ParsePrivateKey(data, passphrase)
}

// GenerateKey creates an RSA key pair and returns the private key as PEM
// (encrypted PKCS#8 when passphrase is set, plain PKCS#8 otherwise) and the
// public key as a PKIX PEM suitable for upload to the platform.
func GenerateKey(bits int, passphrase string) (privatePEM, publicPEM []byte, err error) {
	if bits == 0 {
		bits = DefaultKeyBits
	}
	if bits < 2048 {
		return nil, nil, fmt.Errorf("key size %d is too small, minimum is 2048", bits)
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}

	var block *pem.Block
	if passphrase != "" {
		der, err := pkcs8.MarshalPrivateKey(key, []byte(passphrase), nil)
		if err != nil {
			return nil, nil, fmt.Errorf("encrypt private key: %w", err)
		}
		block = &pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: der}
	} else {
		der, err := pkcs8.MarshalPrivateKey(key, nil, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal private key: %w", err)
		}
		block = &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(block), pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), nil
}

// MarshalPublicKey returns the PKIX PEM encoding of pub.
func MarshalPublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

func expandEscapedNewlines(b []byte) []byte {
	s := string(b)
	if strings.Contains(s, "\n") || !strings.Contains(s, `\n`) {
		return b
	}
	return []byte(strings.ReplaceAll(s, `\n`, "\n"))
}
