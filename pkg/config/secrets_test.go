package config

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptSecretsRoundTrip(t *testing.T) {
	dataDir := t.TempDir()

	secrets := map[string]string{
		EnvAnthropicAPIKey: "sk-ant-test123",
		EnvOpenAIAPIKey:    "sk-test-openai",
	}
	require.NoError(t, EncryptSecretsFile(dataDir, "test-password-12345", secrets))

	info, err := os.Stat(SecretsPath(dataDir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	decrypted, err := DecryptSecretsFile(dataDir, "test-password-12345")
	require.NoError(t, err)
	assert.Equal(t, secrets, decrypted)
}

func TestDecryptWithWrongPassword(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dataDir, "correct-password", map[string]string{EnvOpenAIAPIKey: "sk"}))

	_, err := DecryptSecretsFile(dataDir, "wrong-password")
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestSecretsFileExists(t *testing.T) {
	dataDir := t.TempDir()
	assert.False(t, SecretsFileExists(dataDir))

	require.NoError(t, EncryptSecretsFile(dataDir, "pw", map[string]string{}))
	assert.True(t, SecretsFileExists(dataDir))
}

func TestDecryptFixesPermissions(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dataDir, "pw", map[string]string{"A": "b"}))
	require.NoError(t, os.Chmod(SecretsPath(dataDir), 0o644))

	_, err := DecryptSecretsFile(dataDir, "pw")
	require.NoError(t, err)

	info, err := os.Stat(SecretsPath(dataDir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestCorruptedSecretsFile(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(SecretsPath(dataDir), []byte("corrupted"), 0o600))

	_, err := DecryptSecretsFile(dataDir, "any-password")
	assert.ErrorIs(t, err, ErrCorruptSecrets)
}

func TestGetSecretPrecedence(t *testing.T) {
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	t.Setenv("TEST_SECRET", "from-env-var")

	SetDecryptedSecrets(map[string]string{"TEST_SECRET": "from-secrets-file"})
	secret, err := GetSecret("TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-secrets-file", secret)

	SetDecryptedSecrets(map[string]string{"OTHER_SECRET": "other-value"})
	secret, err = GetSecret("TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-env-var", secret)

	t.Setenv("TEST_SECRET", "")
	_, err = GetSecret("TEST_SECRET")
	assert.Error(t, err)
}

func TestSecretNamesAreSorted(t *testing.T) {
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	SetDecryptedSecrets(nil)
	require.NoError(t, SetSecret("B", "1"))
	require.NoError(t, SetSecret("A", "2"))
	assert.Equal(t, []string{"A", "B"}, GetDecryptedSecretNames())
}

func TestSetSecretValidates(t *testing.T) {
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	SetDecryptedSecrets(nil)

	tests := []struct {
		name, key, value string
	}{
		{name: "empty name", key: "", value: "v"},
		{name: "name with space", key: "OPENAI API KEY", value: "v"},
		{name: "name with equals", key: "A=B", value: "v"},
		{name: "empty value", key: EnvOpenAIAPIKey, value: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, SetSecret(tt.key, tt.value))
		})
	}
	assert.Empty(t, GetDecryptedSecretNames())
}

func TestSaveSecretsToFile(t *testing.T) {
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	dataDir := t.TempDir()
	SetDecryptedSecrets(map[string]string{EnvGoogleAPIKey: "g-key"})

	require.NoError(t, SaveSecretsToFile(dataDir, "pw"))
	got, err := DecryptSecretsFile(dataDir, "pw")
	require.NoError(t, err)
	assert.Equal(t, "g-key", got[EnvGoogleAPIKey])
}

func TestGetAPIKey(t *testing.T) {
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	SetDecryptedSecrets(nil)
	t.Setenv(EnvOpenAIAPIKey, "")
	t.Setenv(EnvAnthropicAPIKey, "sk-ant")
	t.Setenv(EnvOllamaHost, "")

	key, err := GetAPIKey(ProviderAnthropic)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant", key)

	_, err = GetAPIKey(ProviderOpenAI)
	assert.True(t, errors.Is(err, ErrMissingCredential))

	host, err := GetAPIKey(ProviderOllama)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434", host)

	_, err = GetAPIKey("acme")
	assert.Error(t, err)
}
