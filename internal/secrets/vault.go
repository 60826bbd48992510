// Package secrets keeps credentials, such as the session token, encrypted
// at rest in the local store.
package secrets

import "context"

// Vault stores named credentials. Values are only ever plaintext in memory.
type Vault interface {
	Put(ctx context.Context, name string, value []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
}

// CredentialStore persists sealed credentials. Satisfied by store.Store.
type CredentialStore interface {
	PutCredential(ctx context.Context, name string, ciphertext, nonce []byte) error
	GetCredential(ctx context.Context, name string) (ciphertext, nonce []byte, err error)
	DeleteCredential(ctx context.Context, name string) error
}
