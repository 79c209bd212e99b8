package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVault_PutOpen(t *testing.T) {
	v, err := NewVault(nil)
	require.NoError(t, err)

	ref := Reference{ID: "ref-1", Description: "api_key"}
	require.NoError(t, v.Put(ref, "s3cr3t"))

	got, err := v.Open("ref-1")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", got)

	meta, ok := v.Lookup("ref-1")
	require.True(t, ok)
	assert.Equal(t, "api_key", meta.Description)
	assert.Equal(t, 1, v.Len())
}

func TestVault_UnknownReference(t *testing.T) {
	v, err := NewVault(nil)
	require.NoError(t, err)

	_, err = v.Open("missing")
	assert.ErrorIs(t, err, ErrUnknownReference)
}

func TestVault_CiphertextBoundToID(t *testing.T) {
	v, err := NewVault(make([]byte, 32))
	require.NoError(t, err)
	require.NoError(t, v.Put(Reference{ID: "a"}, "value-a"))

	// Move a's sealed entry under another id; authentication must fail.
	v.mu.Lock()
	v.entries["b"] = v.entries["a"]
	v.mu.Unlock()

	_, err = v.Open("b")
	assert.ErrorIs(t, err, ErrPipeline)
}

func TestNewVault_RejectsBadKeyLength(t *testing.T) {
	_, err := NewVault([]byte("short"))
	assert.ErrorIs(t, err, ErrPipeline)
}
