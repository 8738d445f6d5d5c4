// Package crypto provides at-rest encryption for broker credentials and HMAC
// authentication for the broker REST API.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

// Key derivation parameters. 480k iterations is the OWASP-recommended
// minimum for PBKDF2-HMAC-SHA256.
const (
	kdfIterations = 480_000
	kdfSaltLen    = 16
	kdfKeyLen     = 32

	envelopeVersion = 1
)

// secretEnvelope is the on-disk JSON format for an encrypted broker secret.
// The three binary fields use standard base64.
type secretEnvelope struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// decode unpacks the base64 fields.
func (e secretEnvelope) decode() (salt, nonce, ciphertext []byte, err error) {
	if salt, err = base64.StdEncoding.DecodeString(e.Salt); err != nil {
		return nil, nil, nil, fmt.Errorf("crypto: decoding salt: %w", err)
	}
	if nonce, err = base64.StdEncoding.DecodeString(e.Nonce); err != nil {
		return nil, nil, nil, fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	if ciphertext, err = base64.StdEncoding.DecodeString(e.Ciphertext); err != nil {
		return nil, nil, nil, fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}
	return salt, nonce, ciphertext, nil
}

// aead derives an AES-256 key from the passphrase and salt and returns a GCM
// cipher over it.
func aead(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, kdfIterations, kdfKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}

// EncryptSecret seals a broker password under a passphrase using
// PBKDF2-HMAC-SHA256 key derivation and AES-256-GCM. The returned JSON blob
// is what DecryptSecret and LoadSecret expect on disk.
func EncryptSecret(secret, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("crypto: passphrase must not be empty")
	}
	if secret == "" {
		return nil, errors.New("crypto: secret must not be empty")
	}

	salt := make([]byte, kdfSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := aead(passphrase, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	env := secretEnvelope{
		Version:    envelopeVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, []byte(secret), nil)),
	}
	return json.MarshalIndent(env, "", "  ")
}

// DecryptSecret opens a JSON blob produced by EncryptSecret and returns the
// plaintext broker password.
func DecryptSecret(encrypted []byte, passphrase string) (string, error) {
	if passphrase == "" {
		return "", errors.New("crypto: passphrase must not be empty")
	}

	var env secretEnvelope
	if err := json.Unmarshal(encrypted, &env); err != nil {
		return "", fmt.Errorf("crypto: parsing encrypted secret JSON: %w", err)
	}
	if env.Version != envelopeVersion {
		return "", fmt.Errorf("crypto: unsupported version %d", env.Version)
	}

	salt, nonce, ciphertext, err := env.decode()
	if err != nil {
		return "", err
	}
	gcm, err := aead(passphrase, salt)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed (wrong passphrase?): %w", err)
	}
	return string(plaintext), nil
}

// SecretConfig tells LoadSecret where the broker account password lives.
// Populate it from environment variables or the config file.
type SecretConfig struct {
	// RawSecret is the plaintext broker password. When set it wins over the
	// encrypted file.
	RawSecret string

	// EncryptedSecretPath points at a JSON file written by EncryptSecret.
	EncryptedSecretPath string

	// Passphrase decrypts the file at EncryptedSecretPath.
	Passphrase string
}

// LoadSecret resolves the broker password: the raw value when present,
// otherwise the decrypted contents of the configured file.
func LoadSecret(cfg SecretConfig) (string, error) {
	switch {
	case cfg.RawSecret != "":
		return cfg.RawSecret, nil
	case cfg.EncryptedSecretPath != "":
		data, err := os.ReadFile(cfg.EncryptedSecretPath)
		if err != nil {
			return "", fmt.Errorf("crypto: reading encrypted secret file: %w", err)
		}
		return DecryptSecret(data, cfg.Passphrase)
	default:
		return "", errors.New("crypto: no broker secret configured (set password or encrypted_secret_path)")
	}
}
