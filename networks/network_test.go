package networks

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/colorfulnotion/icagent/bls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEmbedded(t *testing.T) {
	for _, id := range Known() {
		n, err := ReadNetwork(id)
		require.NoError(t, err, id)
		assert.Equal(t, id, n.ID)
		assert.NotEmpty(t, n.APIHosts)
	}

	ic, err := ReadNetwork("ic")
	require.NoError(t, err)
	key, err := ic.TrustedRootKey()
	require.NoError(t, err)
	assert.Len(t, key, bls.DERKeyLen)

	local, err := ReadNetwork("local")
	require.NoError(t, err)
	_, err = local.TrustedRootKey()
	assert.True(t, errors.Is(err, ErrNoRootKey))
}

func TestReadFromFile(t *testing.T) {
	sk, err := bls.GetSecretKey([]byte("testnet"))
	require.NoError(t, err)
	n := Network{ID: "testnet", RootKey: bls.WrapDER(sk.PublicKey()), APIHosts: []string{"http://localhost:8080"}}
	data, err := json.Marshal(n)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "testnet.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := ReadNetwork(path)
	require.NoError(t, err)
	assert.Equal(t, n, *got)

	_, err = ReadNetwork(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestMalformedRootKey(t *testing.T) {
	var n Network
	assert.Error(t, json.Unmarshal([]byte(`{"id":"x","root_key":"zz"}`), &n))

	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","root_key":"3081"}`), &n))
	_, err := n.TrustedRootKey()
	assert.Error(t, err)
}
