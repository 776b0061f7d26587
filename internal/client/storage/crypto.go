package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrPassphraseRequired is returned when a sealed token file is read
	// without a passphrase.
	ErrPassphraseRequired = errors.New("token file is sealed: passphrase required")
	// ErrSealedToken is returned when a sealed token cannot be opened.
	ErrSealedToken = errors.New("cannot open sealed token")
)

const saltSize = 16

// newAEAD derives an AES-256-GCM cipher from the passphrase and salt.
func newAEAD(passphrase, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}
	return aead, nil
}

// sealToken encrypts token under a fresh salt and nonce. Both results are
// base64 encoded; the sealed value is nonce || ciphertext.
func sealToken(passphrase []byte, token string) (salt, sealed string, err error) {
	rawSalt := make([]byte, saltSize)
	if _, err := rand.Read(rawSalt); err != nil {
		return "", "", fmt.Errorf("generate salt: %w", err)
	}
	aead, err := newAEAD(passphrase, rawSalt)
	if err != nil {
		return "", "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", "", fmt.Errorf("generate nonce: %w", err)
	}
	ct := aead.Seal(nonce, nonce, []byte(token), nil)
	return base64.StdEncoding.EncodeToString(rawSalt), base64.StdEncoding.EncodeToString(ct), nil
}

// openToken reverses sealToken.
func openToken(passphrase []byte, salt, sealed string) (string, error) {
	rawSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("%w: bad salt", ErrSealedToken)
	}
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: bad encoding", ErrSealedToken)
	}
	aead, err := newAEAD(passphrase, rawSalt)
	if err != nil {
		return "", err
	}
	if len(data) < aead.NonceSize() {
		return "", fmt.Errorf("%w: truncated", ErrSealedToken)
	}
	plain, err := aead.Open(nil, data[:aead.NonceSize()], data[aead.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealedToken, err)
	}
	return string(plain), nil
}
