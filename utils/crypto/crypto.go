package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	// Argon2id parameters for key derivation
	Argon2Time      uint32 = 1
	Argon2Memory    uint32 = 64 * 1024 // 64 MB
	Argon2Threads   uint8  = 4
	Argon2KeyLength uint32 = 32 // AES-256

	SaltLength = 32
)

var (
	ErrInvalidKeyLength = errors.New("invalid key length")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrMissingSecret    = errors.New("encryption secret is not configured")
)

// GenerateSalt generates a cryptographically secure random salt
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives an encryption key from a passphrase and salt using Argon2id
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey(
		[]byte(passphrase),
		salt,
		Argon2Time,
		Argon2Memory,
		Argon2Threads,
		Argon2KeyLength,
	)
}

func newGCM(encryptionKey []byte) (cipher.AEAD, error) {
	if len(encryptionKey) != 32 {
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// EncryptAPIKey encrypts an API key using AES-256-GCM
// Returns the encrypted data and nonce
func EncryptAPIKey(apiKey string, encryptionKey []byte) (encrypted []byte, nonce []byte, err error) {
	gcm, err := newGCM(encryptionKey)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	encrypted = gcm.Seal(nil, nonce, []byte(apiKey), nil)
	return encrypted, nonce, nil
}

// DecryptAPIKey decrypts an encrypted API key using AES-256-GCM
func DecryptAPIKey(encrypted []byte, nonce []byte, encryptionKey []byte) (string, error) {
	gcm, err := newGCM(encryptionKey)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return string(plaintext), nil
}

// SealedSecret is an API key encrypted under a key derived from the server secret
type SealedSecret struct {
	Ciphertext []byte
	Nonce      []byte
	Salt       []byte
}

// Seal encrypts apiKey with a fresh salt under the server secret
func Seal(apiKey, serverSecret string) (*SealedSecret, error) {
	if serverSecret == "" {
		return nil, ErrMissingSecret
	}

	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}

	ct, nonce, err := EncryptAPIKey(apiKey, DeriveKey(serverSecret, salt))
	if err != nil {
		return nil, err
	}

	return &SealedSecret{Ciphertext: ct, Nonce: nonce, Salt: salt}, nil
}

// Open reverses Seal
func Open(s SealedSecret, serverSecret string) (string, error) {
	if serverSecret == "" {
		return "", ErrMissingSecret
	}
	return DecryptAPIKey(s.Ciphertext, s.Nonce, DeriveKey(serverSecret, s.Salt))
}
