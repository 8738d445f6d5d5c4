package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretRoundTrip(t *testing.T) {
	blob, err := EncryptSecret("hunter2", "correct horse")
	require.NoError(t, err)

	got, err := DecryptSecret(blob, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)
}

func TestDecryptSecretWrongPassphrase(t *testing.T) {
	blob, err := EncryptSecret("hunter2", "correct horse")
	require.NoError(t, err)

	_, err = DecryptSecret(blob, "battery staple")
	assert.ErrorContains(t, err, "decryption failed")
}

func TestEncryptSecretValidation(t *testing.T) {
	_, err := EncryptSecret("", "pass")
	assert.Error(t, err)

	_, err = EncryptSecret("secret", "")
	assert.Error(t, err)
}

func TestLoadSecretPrecedence(t *testing.T) {
	blob, err := EncryptSecret("from-file", "pass")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	// The raw value wins even when a file is configured.
	got, err := LoadSecret(SecretConfig{
		RawSecret:           "from-env",
		EncryptedSecretPath: path,
		Passphrase:          "pass",
	})
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	got, err = LoadSecret(SecretConfig{EncryptedSecretPath: path, Passphrase: "pass"})
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	_, err = LoadSecret(SecretConfig{})
	assert.ErrorContains(t, err, "no broker secret")
}
