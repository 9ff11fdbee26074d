package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/scrypt"
)

// The secrets file is [salt][nonce][AES-256-GCM ciphertext+tag] with the key derived
// from the password by scrypt.
const (
	secretsFileName = "secrets.json.enc"
	saltSize        = 16
	nonceSize       = 12
	tagSize         = 16
	scryptN         = 1 << 15
	scryptR         = 8
	scryptP         = 1
	keySize         = 32
)

var (
	// ErrWrongPassword is returned when the secrets file does not open with the password.
	ErrWrongPassword = errors.New("decryption failed (wrong password or corrupted file)")
	// ErrCorruptSecrets is returned when the secrets file is too short to hold any payload.
	ErrCorruptSecrets = errors.New("secrets file is corrupted or invalid format (too small)")
)

// unlocked holds the decrypted secrets for the life of the process.
//
//nolint:gochecknoglobals // the unlocked secrets are process-wide by nature
var unlocked = struct {
	sync.RWMutex
	values map[string]string
}{}

// SetDecryptedSecrets replaces the in-memory secrets, typically with DecryptSecretsFile's result.
func SetDecryptedSecrets(secrets map[string]string) {
	unlocked.Lock()
	defer unlocked.Unlock()
	unlocked.values = secrets
}

// GetSecret looks name up in the unlocked secrets first and the environment second.
func GetSecret(name string) (string, error) {
	unlocked.RLock()
	value := unlocked.values[name]
	unlocked.RUnlock()
	if value != "" {
		return value, nil
	}
	if value := os.Getenv(name); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("secret %s not found in secrets file or environment", name)
}

// GetDecryptedSecretNames returns the sorted names, never the values, of the unlocked secrets.
func GetDecryptedSecretNames() []string {
	unlocked.RLock()
	defer unlocked.RUnlock()
	names := make([]string, 0, len(unlocked.values))
	for name := range unlocked.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetSecret stores one secret in memory; SaveSecretsToFile persists it.
func SetSecret(name, value string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, " \t\n=") {
		return fmt.Errorf("invalid secret name %q", name)
	}
	if value == "" {
		return fmt.Errorf("secret %s has an empty value", name)
	}
	unlocked.Lock()
	defer unlocked.Unlock()
	if unlocked.values == nil {
		unlocked.values = make(map[string]string)
	}
	unlocked.values[name] = value
	return nil
}

// SaveSecretsToFile encrypts the in-memory secrets into dataDir.
func SaveSecretsToFile(dataDir, password string) error {
	unlocked.RLock()
	snapshot := make(map[string]string, len(unlocked.values))
	for k, v := range unlocked.values {
		snapshot[k] = v
	}
	unlocked.RUnlock()
	return EncryptSecretsFile(dataDir, password, snapshot)
}

// SecretsPath returns the location of the encrypted secrets file inside dataDir.
func SecretsPath(dataDir string) string {
	return filepath.Join(dataDir, secretsFileName)
}

// SecretsFileExists reports whether dataDir holds a secrets file.
func SecretsFileExists(dataDir string) bool {
	_, err := os.Stat(SecretsPath(dataDir))
	return err == nil
}

// EncryptSecretsFile writes secrets to dataDir with mode 0600, creating the directory.
func EncryptSecretsFile(dataDir, password string, secrets map[string]string) error {
	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	aead, err := newAEAD(password, salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+nonceSize+len(plaintext)+tagSize)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, nil)

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(SecretsPath(dataDir), out, 0o600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

// DecryptSecretsFile reads and decrypts the secrets file in dataDir. A file readable by
// others is tightened to 0600 first.
func DecryptSecretsFile(dataDir, password string) (map[string]string, error) {
	path := SecretsPath(dataDir)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets file: %w", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		getLogger().Warn("secrets file has permissions %04o, resetting to 0600", perm)
		if err := os.Chmod(path, 0o600); err != nil {
			return nil, fmt.Errorf("failed to fix file permissions: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	if len(data) < saltSize+nonceSize+tagSize {
		return nil, ErrCorruptSecrets
	}
	salt, nonce, ciphertext := data[:saltSize], data[saltSize:saltSize+nonceSize], data[saltSize+nonceSize:]

	aead, err := newAEAD(password, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrWrongPassword
	}

	var secrets map[string]string
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse secrets: %w", err)
	}
	return secrets, nil
}

// newAEAD derives the file key from password and salt. The key is wiped once the
// cipher has expanded it.
func newAEAD(password string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

// GetAPIKey returns the credential for a provider from the secrets file or the environment.
// Ollama needs no key; its host URL is returned instead.
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		if host := os.Getenv(EnvOllamaHost); host != "" {
			return host, nil
		}
		return "http://localhost:11434", nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	if key, err := GetSecret(envVar); err == nil {
		return key, nil
	}
	return "", fmt.Errorf("%w: %s not found in secrets file or environment variables", ErrMissingCredential, envVar)
}

// ProviderKeyNames lists the secret names the secrets command accepts.
func ProviderKeyNames() []string {
	return []string{EnvAnthropicAPIKey, EnvGoogleAPIKey, EnvOpenAIAPIKey}
}
