package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrCiphertextTooShort is returned for sealed values shorter than a nonce.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Encryption seals credentials with AES-GCM. Sealed values are base64 of
// nonce || ciphertext.
type Encryption struct {
	aead cipher.AEAD
}

func validKeySize(n int) bool {
	return n == 16 || n == 24 || n == 32
}

// NewEncryption creates an encryption service. The key must be 16, 24 or 32
// bytes (AES-128, AES-192 or AES-256).
func NewEncryption(key []byte) (*Encryption, error) {
	if !validKeySize(len(key)) {
		return nil, fmt.Errorf("invalid key size: must be 16, 24, or 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Encryption{aead: aead}, nil
}

// NewEncryptionFromBase64 creates an encryption service from a base64 key,
// the form used in ENCRYPTION_KEY.
func NewEncryptionFromBase64(encodedKey string) (*Encryption, error) {
	if encodedKey == "" {
		return nil, fmt.Errorf("encryption key cannot be empty")
	}

	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 key: %w", err)
	}
	return NewEncryption(key)
}

// GenerateKey returns a random base64 key of keySize bytes.
func GenerateKey(keySize int) (string, error) {
	if !validKeySize(keySize) {
		return "", fmt.Errorf("invalid key size: must be 16, 24, or 32 bytes")
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate random key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Encrypt seals plaintext with no associated data.
func (e *Encryption) Encrypt(plaintext []byte) (string, error) {
	return e.seal(plaintext, nil)
}

// Decrypt opens a value produced by Encrypt.
func (e *Encryption) Decrypt(sealed string) ([]byte, error) {
	return e.open(sealed, nil)
}

func (e *Encryption) seal(plaintext, additional []byte) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := e.aead.Seal(nonce, nonce, plaintext, additional)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (e *Encryption) open(sealed string, additional []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	n := e.aead.NonceSize()
	if len(raw) < n {
		return nil, ErrCiphertextTooShort
	}
	plaintext, err := e.aead.Open(nil, raw[:n], raw[n:], additional)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// EncryptString seals a credential. Empty input stays empty.
func (e *Encryption) EncryptString(plaintext string) (string, error) {
	return e.SealFor(plaintext, "")
}

// DecryptString opens a value produced by EncryptString.
func (e *Encryption) DecryptString(sealed string) (string, error) {
	return e.OpenFor(sealed, "")
}

// SealFor seals a credential bound to owner. The result only opens with the
// same owner, so a sealed key copied to another user's record is rejected.
func (e *Encryption) SealFor(plaintext, owner string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return e.seal([]byte(plaintext), additionalData(owner))
}

// OpenFor opens a value produced by SealFor with the same owner.
func (e *Encryption) OpenFor(sealed, owner string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	plaintext, err := e.open(sealed, additionalData(owner))
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func additionalData(owner string) []byte {
	if owner == "" {
		return nil
	}
	return []byte(owner)
}

// DeriveKey stretches a device or deployment secret into an AES-256 key.
// The info string separates keys derived from the same secret for different uses.
func DeriveKey(secret []byte, info string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("secret cannot be empty")
	}

	key := make([]byte, 32)
	reader := hkdf.New(sha256.New, secret, nil, []byte(info))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// NewEncryptionFromSecret creates an AES-256 encryption service keyed by DeriveKey.
func NewEncryptionFromSecret(secret, info string) (*Encryption, error) {
	key, err := DeriveKey([]byte(secret), info)
	if err != nil {
		return nil, err
	}
	return NewEncryption(key)
}
