package reposign

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T, expiration time.Duration) *ArtifactKey {
	t.Helper()
	ak, _, _, err := GenerateArtifactKey(expiration)
	require.NoError(t, err)
	return ak
}

func parseSig(t *testing.T, data []byte) Signature {
	t.Helper()
	sig, err := ParseSignature(data)
	require.NoError(t, err)
	return *sig
}

// Test ArtifactHash

func TestArtifactHash_Write(t *testing.T) {
	h := NewArtifactHash()

	data := []byte("test data")
	n, err := h.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, uint64(len(data)), h.Len())

	hash := h.Sum(nil)
	assert.Equal(t, 32, len(hash)) // BLAKE2s-256
}

func TestArtifactHash_Deterministic(t *testing.T) {
	h1 := NewArtifactHash()
	_, err := h1.Write([]byte("test data"))
	require.NoError(t, err)

	h2 := NewArtifactHash()
	_, err = h2.Write([]byte("test "))
	require.NoError(t, err)
	_, err = h2.Write([]byte("data"))
	require.NoError(t, err)

	assert.Equal(t, h1.Sum(nil), h2.Sum(nil))
	assert.Equal(t, h1.Len(), h2.Len())
}

// Test ArtifactKey

func TestArtifactKey_String(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	ak := ArtifactKey{
		PrivateKey{
			Key: priv,
			Metadata: KeyMetadata{
				ID:        computeKeyID(pub),
				CreatedAt: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
				ExpiresAt: time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
			},
		},
	}

	str := ak.String()
	assert.Contains(t, str, "ArtifactKey")
	assert.Contains(t, str, computeKeyID(pub).String())
	assert.Contains(t, str, "2024-01-15")
	assert.Contains(t, str, "2025-01-15")
}

func TestGenerateArtifactKey_PEMRoundTrip(t *testing.T) {
	ak, privPEM, pubPEM, err := GenerateArtifactKey(30 * 24 * time.Hour)
	require.NoError(t, err)
	assert.False(t, ak.Metadata.ExpiresAt.IsZero())

	parsedPriv, err := ParseArtifactKey(privPEM)
	require.NoError(t, err)
	assert.Equal(t, ak.Key, parsedPriv.Key)
	assert.Equal(t, ak.Metadata.ID, parsedPriv.Metadata.ID)
	assert.True(t, ak.Metadata.ExpiresAt.Equal(parsedPriv.Metadata.ExpiresAt))

	parsedPub, err := ParseArtifactPubKey(pubPEM)
	require.NoError(t, err)
	assert.Equal(t, ak.PublicKey().Key, parsedPub.Key)
	assert.Equal(t, ak.Metadata.ID, parsedPub.Metadata.ID)
}

func TestGenerateArtifactKey_NoExpiration(t *testing.T) {
	ak := generateKey(t, 0)
	assert.True(t, ak.Metadata.ExpiresAt.IsZero())
}

func TestParseArtifactKey_Invalid(t *testing.T) {
	_, _, pubPEM, err := GenerateArtifactKey(0)
	require.NoError(t, err)

	testMatrix := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "garbage", data: []byte("not a key")},
		{name: "public key", data: pubPEM},
	}

	for _, c := range testMatrix {
		t.Run(c.name, func(t *testing.T) {
			_, err := ParseArtifactKey(c.data)
			assert.Error(t, err)
		})
	}
}

func TestBundleArtifactKeys(t *testing.T) {
	k1 := generateKey(t, 0)
	k2 := generateKey(t, time.Hour)

	bundle, err := BundleArtifactKeys([]PublicKey{k1.PublicKey(), k2.PublicKey()})
	require.NoError(t, err)

	keys, err := ParseArtifactPubKeys(bundle)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, k1.Metadata.ID, keys[0].Metadata.ID)
	assert.Equal(t, k2.Metadata.ID, keys[1].Metadata.ID)

	_, err = BundleArtifactKeys(nil)
	assert.Error(t, err)
}

func TestKeyID_JSON(t *testing.T) {
	id := computeKeyID(generateKey(t, 0).PublicKey().Key)

	data, err := json.Marshal(id)
	require.NoError(t, err)

	var decoded KeyID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, id, decoded)

	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &decoded))
	assert.Error(t, json.Unmarshal([]byte(`"zzzzzzzzzzzzzzzz"`), &decoded))
}

// Test signing and validation

func TestSignData_Validate(t *testing.T) {
	ak := generateKey(t, 24*time.Hour)
	data := []byte("package content")

	sigData, err := SignData(*ak, data)
	require.NoError(t, err)

	sig := parseSig(t, sigData)
	assert.Equal(t, ak.Metadata.ID, sig.KeyID)
	assert.Equal(t, "ed25519", sig.Algorithm)
	assert.Equal(t, "blake2s", sig.HashAlgo)

	err = ValidateArtifact([]PublicKey{ak.PublicKey()}, bytes.NewReader(data), sig)
	assert.NoError(t, err)
}

func TestSignData_EmptyArtifact(t *testing.T) {
	_, err := SignData(*generateKey(t, 0), nil)
	assert.Error(t, err)
}

func TestSignData_ExpiredKey(t *testing.T) {
	ak := generateKey(t, 0)
	ak.Metadata.ExpiresAt = time.Now().Add(-time.Hour)

	_, err := SignData(*ak, []byte("data"))
	assert.Error(t, err)
}

func TestValidateArtifact_Failures(t *testing.T) {
	ak := generateKey(t, 0)
	other := generateKey(t, 0)
	data := []byte("package content")

	sign := func(ts time.Time) Signature {
		raw, err := signAt(*ak, bytes.NewReader(data), ts)
		require.NoError(t, err)
		return parseSig(t, raw)
	}

	expiredKey := ak.PublicKey()
	expiredKey.Metadata.ExpiresAt = time.Now().Add(-48 * time.Hour)

	testMatrix := []struct {
		name string
		keys []PublicKey
		data []byte
		sig  Signature
	}{
		{
			name: "tampered content",
			keys: []PublicKey{ak.PublicKey()},
			data: []byte("package c0ntent"),
			sig:  sign(time.Now().UTC()),
		},
		{
			name: "truncated content",
			keys: []PublicKey{ak.PublicKey()},
			data: data[:len(data)-1],
			sig:  sign(time.Now().UTC()),
		},
		{
			name: "unknown key",
			keys: []PublicKey{other.PublicKey()},
			data: data,
			sig:  sign(time.Now().UTC()),
		},
		{
			name: "key expired before signing",
			keys: []PublicKey{expiredKey},
			data: data,
			sig:  sign(time.Now().Add(-24 * time.Hour).UTC()),
		},
		{
			name: "timestamp in the future",
			keys: []PublicKey{ak.PublicKey()},
			data: data,
			sig:  sign(time.Now().Add(time.Hour).UTC()),
		},
		{
			name: "signature too old",
			keys: []PublicKey{ak.PublicKey()},
			data: data,
			sig:  sign(time.Now().Add(-maxArtifactSignatureAge - time.Hour).UTC()),
		},
	}

	for _, c := range testMatrix {
		t.Run(c.name, func(t *testing.T) {
			err := ValidateArtifact(c.keys, bytes.NewReader(c.data), c.sig)
			assert.Error(t, err)
		})
	}
}

func TestValidateArtifact_TamperedTimestamp(t *testing.T) {
	ak := generateKey(t, 0)
	data := []byte("package content")

	sig := parseSig(t, mustSign(t, ak, data))
	sig.Timestamp = sig.Timestamp.Add(-time.Minute)

	err := ValidateArtifact([]PublicKey{ak.PublicKey()}, bytes.NewReader(data), sig)
	assert.Error(t, err)
}

func TestParseSignature_UnsupportedAlgorithm(t *testing.T) {
	_, err := ParseSignature([]byte(`{"signature":"","algorithm":"rsa","hash_algo":"sha256"}`))
	assert.Error(t, err)

	_, err = ParseSignature([]byte(`not json`))
	assert.Error(t, err)
}

func mustSign(t *testing.T, ak *ArtifactKey, data []byte) []byte {
	t.Helper()
	raw, err := SignData(*ak, data)
	require.NoError(t, err)
	return raw
}
