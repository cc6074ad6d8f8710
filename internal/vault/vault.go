// Package vault stores session credentials. Two swappable backends exist:
// the OS secure store and an encrypted file. The backend is chosen once at
// startup; callers only ever see the Vault interface.
package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/chacha20poly1305"
)

const serviceName = "wechat-digest"

// ErrNotFound is returned when no credential is stored for a provider.
var ErrNotFound = errors.New("credential not found")

type Vault interface {
	Get(provider string) (string, error)
	Set(provider, secret string) error
	Delete(provider string) error
	Backend() string
}

// Open selects a backend. "auto" probes the OS secure store and falls back
// to the encrypted file when the store is unusable (headless hosts, locked
// keychains).
func Open(backend, dir string) (Vault, error) {
	switch backend {
	case "keyring":
		return keyringVault{}, nil
	case "file":
		return newFileVault(dir)
	case "", "auto":
		if keyringUsable() {
			return keyringVault{}, nil
		}
		return newFileVault(dir)
	default:
		return nil, fmt.Errorf("unknown vault backend %q", backend)
	}
}

func keyringUsable() bool {
	const canary = "__probe__"
	if err := keyring.Set(serviceName, canary, "ok"); err != nil {
		return false
	}
	_ = keyring.Delete(serviceName, canary)
	return true
}

type keyringVault struct{}

func (keyringVault) Backend() string { return "keyring" }

func (keyringVault) Get(provider string) (string, error) {
	secret, err := keyring.Get(serviceName, provider)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keyring get: %w", err)
	}
	return secret, nil
}

func (keyringVault) Set(provider, secret string) error {
	if err := keyring.Set(serviceName, provider, secret); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

func (keyringVault) Delete(provider string) error {
	err := keyring.Delete(serviceName, provider)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}

// fileVault keeps all credentials in one sealed JSON blob. The sealing key
// is a random 32-byte file next to it, both mode 0600.
type fileVault struct {
	path    string
	keyPath string
}

func newFileVault(dir string) (*fileVault, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create vault directory: %w", err)
	}
	return &fileVault{
		path:    filepath.Join(dir, "sessions.enc"),
		keyPath: filepath.Join(dir, "vault.key"),
	}, nil
}

func (v *fileVault) Backend() string { return "file" }

func (v *fileVault) Get(provider string) (string, error) {
	payload, err := v.load()
	if err != nil {
		return "", err
	}
	secret, ok := payload[provider]
	if !ok || secret == "" {
		return "", ErrNotFound
	}
	return secret, nil
}

func (v *fileVault) Set(provider, secret string) error {
	payload, err := v.load()
	if err != nil {
		return err
	}
	payload[provider] = secret
	return v.save(payload)
}

func (v *fileVault) Delete(provider string) error {
	payload, err := v.load()
	if err != nil {
		return err
	}
	if _, ok := payload[provider]; !ok {
		return nil
	}
	delete(payload, provider)
	return v.save(payload)
}

func (v *fileVault) load() (map[string]string, error) {
	sealed, err := os.ReadFile(v.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read vault file: %w", err)
	}

	aead, err := v.cipher()
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("vault file truncated")
	}
	nonce, box := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, box, nil)
	if err != nil {
		return nil, fmt.Errorf("unseal vault file: %w", err)
	}

	payload := map[string]string{}
	if err := json.Unmarshal(plain, &payload); err != nil {
		return nil, fmt.Errorf("decode vault payload: %w", err)
	}
	return payload, nil
}

func (v *fileVault) save(payload map[string]string) error {
	plain, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode vault payload: %w", err)
	}

	aead, err := v.cipher()
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	sealed := append(nonce, aead.Seal(nil, nonce, plain, nil)...)

	if err := os.WriteFile(v.path, sealed, 0o600); err != nil {
		return fmt.Errorf("write vault file: %w", err)
	}
	return nil
}

func (v *fileVault) cipher() (cipher.AEAD, error) {
	key, err := os.ReadFile(v.keyPath)
	if os.IsNotExist(err) {
		key = make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate vault key: %w", err)
		}
		if err := os.WriteFile(v.keyPath, key, 0o600); err != nil {
			return nil, fmt.Errorf("write vault key: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("read vault key: %w", err)
	}
	return chacha20poly1305.NewX(key)
}
