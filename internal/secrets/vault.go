package secrets

import (
	"crypto/rand"
	"fmt"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// Vault keeps secret values sealed in memory. Each value is encrypted with
// XChaCha20-Poly1305 and bound to its reference id as associated data, so a
// ciphertext cannot be replayed under another id.
type Vault struct {
	mu      sync.RWMutex
	entries map[string]sealed
	key     []byte
}

type sealed struct {
	ref        Reference
	nonce      []byte
	ciphertext []byte
}

// NewVault creates a vault. A nil key generates a random one, which makes
// references unresolvable after the process exits.
func NewVault(key []byte) (*Vault, error) {
	if key == nil {
		key = make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("%w: failed to generate vault key: %v", ErrPipeline, err)
		}
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: vault key must be %d bytes, got %d", ErrPipeline, chacha20poly1305.KeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Vault{entries: make(map[string]sealed), key: k}, nil
}

// Put seals value under ref.ID.
func (v *Vault) Put(ref Reference, value string) error {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPipeline, err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("%w: failed to generate nonce: %v", ErrPipeline, err)
	}

	entry := sealed{
		ref:        ref,
		nonce:      nonce,
		ciphertext: aead.Seal(nil, nonce, []byte(value), []byte(ref.ID)),
	}

	v.mu.Lock()
	v.entries[ref.ID] = entry
	v.mu.Unlock()
	return nil
}

// Open returns the plaintext value for id.
func (v *Vault) Open(id string) (string, error) {
	v.mu.RLock()
	entry, ok := v.entries[id]
	v.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownReference, id)
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPipeline, err)
	}
	plain, err := aead.Open(nil, entry.nonce, entry.ciphertext, []byte(id))
	if err != nil {
		return "", fmt.Errorf("%w: failed to open %s: %v", ErrPipeline, id, err)
	}
	return string(plain), nil
}

// Lookup returns the metadata for id without decrypting.
func (v *Vault) Lookup(id string) (Reference, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	entry, ok := v.entries[id]
	return entry.ref, ok
}

// Len returns the number of sealed values.
func (v *Vault) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}
