package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netbirdio/appupdate/updatemanager/reposign"
)

func TestSigningCommands(t *testing.T) {
	dir := t.TempDir()
	privFile := filepath.Join(dir, "artifact.key")
	pubFile := filepath.Join(dir, "artifact.pub")
	keysFile := filepath.Join(dir, "trusted.pem")
	pkg := filepath.Join(dir, "app-1.3.0")
	require.NoError(t, os.WriteFile(pkg, []byte("new release"), 0o600))

	out, err := executeCommand(t, "keygen", "--priv-key-file", privFile, "--pub-key-file", pubFile, "--expiration", "720h")
	require.NoError(t, err)
	assert.Contains(t, out, "ArtifactKey[ID=")

	info, err := os.Stat(privFile)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	_, err = executeCommand(t, "bundle-keys", "--pub-key-file", pubFile, "--keys-file", keysFile)
	require.NoError(t, err)

	keysPEM, err := os.ReadFile(keysFile)
	require.NoError(t, err)
	keys, err := reposign.ParseArtifactPubKeys(keysPEM)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	_, err = executeCommand(t, "sign", "--priv-key-file", privFile, pkg)
	require.NoError(t, err)
	assert.FileExists(t, pkg+signatureSuffix)

	out, err = executeCommand(t, "verify", "--keys-file", keysFile, "--signature-file", "", pkg)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	require.NoError(t, os.WriteFile(pkg, []byte("tampered release"), 0o600))
	_, err = executeCommand(t, "verify", "--keys-file", keysFile, "--signature-file", "", pkg)
	assert.Error(t, err)
}

func TestSigningCommands_Errors(t *testing.T) {
	dir := t.TempDir()

	testMatrix := []struct {
		name string
		args []string
	}{
		{
			name: "sign with missing key",
			args: []string{"sign", "--priv-key-file", filepath.Join(dir, "missing.key"), filepath.Join(dir, "pkg")},
		},
		{
			name: "bundle missing public key",
			args: []string{"bundle-keys", "--pub-key-file", filepath.Join(dir, "missing.pub"), "--keys-file", filepath.Join(dir, "keys.pem")},
		},
		{
			name: "negative expiration",
			args: []string{"keygen", "--priv-key-file", filepath.Join(dir, "a.key"), "--pub-key-file", filepath.Join(dir, "a.pub"), "--expiration=-1h"},
		},
	}

	for _, tc := range testMatrix {
		t.Run(tc.name, func(t *testing.T) {
			_, err := executeCommand(t, tc.args...)
			assert.Error(t, err)
		})
	}
}
