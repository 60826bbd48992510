package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rendis/flowdesk/pkg/schema"
)

const keySize = 32

// VaultConfig configures key derivation.
// Provide either MasterKey (raw 32 bytes) or Passphrase + Salt.
type VaultConfig struct {
	MasterKey  []byte // raw 32-byte key (takes priority)
	Passphrase string // derive key via PBKDF2
	Salt       []byte // required with Passphrase
	Iterations int    // PBKDF2 iterations (default 100_000)
}

// AESVault seals credentials with AES-256-GCM. The credential name is bound
// as additional data, so a ciphertext copied to another name fails to open.
type AESVault struct {
	store CredentialStore
	aead  cipher.AEAD
}

var _ Vault = (*AESVault)(nil)

// NewAESVault creates a vault over s.
func NewAESVault(s CredentialStore, cfg VaultConfig) (*AESVault, error) {
	key, err := deriveKey(cfg)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &AESVault{store: s, aead: aead}, nil
}

func deriveKey(cfg VaultConfig) ([]byte, error) {
	if len(cfg.MasterKey) > 0 {
		if len(cfg.MasterKey) != keySize {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"master key must be %d bytes, got %d", keySize, len(cfg.MasterKey))
		}
		return cfg.MasterKey, nil
	}
	if cfg.Passphrase == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "either a master key or a passphrase is required")
	}
	if len(cfg.Salt) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "salt is required with passphrase")
	}
	iterations := cfg.Iterations
	if iterations <= 0 {
		iterations = 100_000
	}
	return pbkdf2.Key(sha256.New, cfg.Passphrase, cfg.Salt, iterations, keySize)
}

func (v *AESVault) Put(ctx context.Context, name string, value []byte) error {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	sealed := v.aead.Seal(nil, nonce, value, []byte(name))
	return v.store.PutCredential(ctx, name, sealed, nonce)
}

func (v *AESVault) Get(ctx context.Context, name string) ([]byte, error) {
	sealed, nonce, err := v.store.GetCredential(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(nonce) != v.aead.NonceSize() {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "credential %q has a malformed nonce", name)
	}
	plain, err := v.aead.Open(nil, nonce, sealed, []byte(name))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "credential %q cannot be decrypted", name).WithCause(err)
	}
	return plain, nil
}

func (v *AESVault) Delete(ctx context.Context, name string) error {
	return v.store.DeleteCredential(ctx, name)
}

// LoadOrCreateKey reads a 32-byte key file, creating it with a random key
// and 0600 permissions when it does not exist.
func LoadOrCreateKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != keySize {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "key file %s must hold %d bytes, has %d", path, keySize, len(key))
		}
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	key = make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return key, nil
}
