package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	saltSize = 16

	// interactive-grade scrypt parameters, credentials are decrypted once
	// per process start
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
	keySize = 32
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// deriveKey stretches the configured credentials key with the given salt.
func deriveKey(salt []byte) ([]byte, error) {
	config := GetConfig()
	return scrypt.Key([]byte(config.ExchangeCRKey), salt, scryptN, scryptR, scryptP, keySize)
}

// EncryptString seals a secret for storage. The output is
// base64(salt || nonce || AES-GCM ciphertext), so every call produces a
// different blob for the same plaintext.
func EncryptString(plaintext string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key, err := deriveKey(salt)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	blob := make([]byte, 0, saltSize+len(nonce)+len(sealed))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptString opens a blob produced by EncryptString.
func DecryptString(encrypted string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", err
	}
	if len(blob) < saltSize {
		return "", ErrCiphertextTooShort
	}

	salt, rest := blob[:saltSize], blob[saltSize:]

	key, err := deriveKey(salt)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(rest) < gcm.NonceSize() {
		return "", ErrCiphertextTooShort
	}
	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
