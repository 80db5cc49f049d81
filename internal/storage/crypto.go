package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// FormatGCM is the 8-byte magic prefix of sealed results.
const FormatGCM = "GCM3NCR0"

const pbkdf2Iterations = 100000

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, 32, sha256.New)
}

// Encrypt seals data with AES-256-GCM.
// Format: magic(8) + salt(16) + nonce(12) + encrypted_data + auth_tag(16)
func Encrypt(data []byte, password string) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, 8+len(salt)+len(nonce)+len(data)+gcm.Overhead())
	out = append(out, FormatGCM...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

// Decrypt opens data sealed by Encrypt.
// Returns decrypted data and the detected encryption format
func Decrypt(encryptedData []byte, password string) ([]byte, string, error) {
	if len(encryptedData) < 8 {
		return nil, "", fmt.Errorf("encrypted data too short: %d bytes", len(encryptedData))
	}
	switch string(encryptedData[:8]) {
	case FormatGCM:
		data, err := decryptGCM(encryptedData, password)
		return data, FormatGCM, err
	default:
		return nil, "", fmt.Errorf("unknown encryption format")
	}
}

func decryptGCM(encryptedData []byte, password string) ([]byte, error) {
	if len(encryptedData) < 8+16+12+16 {
		return nil, fmt.Errorf("GCM data too short: %d bytes", len(encryptedData))
	}
	salt := encryptedData[8:24]
	nonce := encryptedData[24:36]
	encryptedWithTag := encryptedData[36:]

	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, encryptedWithTag, nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plaintext, nil
}
