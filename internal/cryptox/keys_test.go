package cryptox

import (
	"bytes"
	"testing"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyManager_UnlocksAliases(t *testing.T) {
	master := bytes.Repeat([]byte{3}, KeySize)

	km, err := NewKeyManager(master, "default", "photos")
	require.NoError(t, err)

	assert.Equal(t, "default", km.DefaultAlias())
	assert.Equal(t, []string{"default", "photos"}, km.Aliases())

	key, err := km.Key("photos")
	require.NoError(t, err)
	want, err := DeriveAliasKey(master, "photos")
	require.NoError(t, err)
	assert.Equal(t, want, key)
}

func TestKeyManager_UnknownAlias(t *testing.T) {
	km, err := NewKeyManager(bytes.Repeat([]byte{3}, KeySize), "default")
	require.NoError(t, err)

	_, err = km.Key("missing")
	require.ErrorIs(t, err, common.ErrKeyNotFound)

	require.NoError(t, km.Add("missing"))
	_, err = km.Key("missing")
	require.NoError(t, err)
}

func TestKeyManager_EmptyAlias(t *testing.T) {
	_, err := NewKeyManager(bytes.Repeat([]byte{3}, KeySize), "")
	require.ErrorIs(t, err, common.ErrInvalidConfiguration)
}

func TestKeyManager_Wipe(t *testing.T) {
	km, err := NewKeyManager(bytes.Repeat([]byte{3}, KeySize), "default")
	require.NoError(t, err)

	km.Wipe()

	_, err = km.Key("default")
	require.ErrorIs(t, err, common.ErrKeyNotFound)
	assert.Empty(t, km.Aliases())
}
