package reposign

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2s"
)

const (
	tagArtifactPrivate = "ARTIFACT PRIVATE KEY"
	tagArtifactPublic  = "ARTIFACT PUBLIC KEY"

	maxArtifactSignatureAge = 10 * 365 * 24 * time.Hour
)

// ArtifactHash wraps a hash.Hash and counts bytes written
type ArtifactHash struct {
	hash.Hash
	length uint64
}

// NewArtifactHash returns an initialized ArtifactHash using BLAKE2s
func NewArtifactHash() *ArtifactHash {
	h, err := blake2s.New256(nil)
	if err != nil {
		panic(err) // Should never happen with nil Key
	}
	return &ArtifactHash{Hash: h}
}

func (ah *ArtifactHash) Write(b []byte) (int, error) {
	n, err := ah.Hash.Write(b)
	ah.length += uint64(n)
	return n, err
}

// Len returns the number of bytes hashed so far
func (ah *ArtifactHash) Len() uint64 {
	return ah.length
}

// message builds the signed message: hash || length || timestamp
func (ah *ArtifactHash) message(timestamp time.Time) []byte {
	sum := ah.Sum(nil)
	msg := make([]byte, 0, len(sum)+8+8)
	msg = append(msg, sum...)
	msg = binary.LittleEndian.AppendUint64(msg, ah.length)
	return binary.LittleEndian.AppendUint64(msg, uint64(timestamp.Unix()))
}

// ArtifactKey is a signing Key used to sign artifacts
type ArtifactKey struct {
	PrivateKey
}

func (k ArtifactKey) String() string {
	return fmt.Sprintf(
		"ArtifactKey[ID=%s, CreatedAt=%s, ExpiresAt=%s]",
		k.Metadata.ID,
		k.Metadata.CreatedAt.Format(time.RFC3339),
		k.Metadata.ExpiresAt.Format(time.RFC3339),
	)
}

// PublicKey returns the verification half of the key
func (k ArtifactKey) PublicKey() PublicKey {
	return PublicKey{
		Key:      k.Key.Public().(ed25519.PublicKey),
		Metadata: k.Metadata,
	}
}

// GenerateArtifactKey creates a key pair and returns it with its PEM encodings.
// A zero expiration creates a key that never expires.
func GenerateArtifactKey(expiration time.Duration) (*ArtifactKey, []byte, []byte, error) {
	now := time.Now().UTC()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("generate ed25519 key: %w", err)
	}

	metadata := KeyMetadata{
		ID:        computeKeyID(pub),
		CreatedAt: now,
	}
	if expiration > 0 {
		metadata.ExpiresAt = now.Add(expiration)
	}

	ak := &ArtifactKey{
		PrivateKey{
			Key:      priv,
			Metadata: metadata,
		},
	}

	privPEM, err := encodeKey(tagArtifactPrivate, priv, metadata)
	if err != nil {
		return nil, nil, nil, err
	}
	pubPEM, err := encodeKey(tagArtifactPublic, pub, metadata)
	if err != nil {
		return nil, nil, nil, err
	}

	return ak, privPEM, pubPEM, nil
}

func ParseArtifactKey(privKeyPEM []byte) (ArtifactKey, error) {
	pk, err := parsePrivateKey(privKeyPEM, tagArtifactPrivate)
	if err != nil {
		return ArtifactKey{}, fmt.Errorf("failed to parse artifact Key: %w", err)
	}
	return ArtifactKey{pk}, nil
}

func ParseArtifactPubKey(data []byte) (PublicKey, error) {
	pk, _, err := parsePublicKey(data, tagArtifactPublic)
	return pk, err
}

// ParseArtifactPubKeys parses a bundle of concatenated public keys
func ParseArtifactPubKeys(data []byte) ([]PublicKey, error) {
	return parsePublicKeyBundle(data, tagArtifactPublic)
}

// BundleArtifactKeys concatenates the PEM encoding of keys
func BundleArtifactKeys(keys []PublicKey) ([]byte, error) {
	if len(keys) == 0 {
		return nil, errors.New("no keys to bundle")
	}

	var pubBundle []byte
	for _, pk := range keys {
		pubPEM, err := encodeKey(tagArtifactPublic, pk.Key, pk.Metadata)
		if err != nil {
			return nil, err
		}
		pubBundle = append(pubBundle, pubPEM...)
	}
	return pubBundle, nil
}

// ValidateArtifact checks that signature covers the content of r and was made by one of
// the given keys
func ValidateArtifact(artifactPubKeys []PublicKey, r io.Reader, signature Signature) error {
	// Validate signature timestamp
	now := time.Now().UTC()
	if signature.Timestamp.After(now.Add(maxClockSkew)) {
		err := fmt.Errorf("artifact signature timestamp is in the future: %v", signature.Timestamp)
		log.Debugf("failed to verify signature of artifact: %s", err)
		return err
	}
	if now.Sub(signature.Timestamp) > maxArtifactSignatureAge {
		return fmt.Errorf("artifact signature is too old: %v (created %v)",
			now.Sub(signature.Timestamp), signature.Timestamp)
	}

	var keyInfo *PublicKey
	for i := range artifactPubKeys {
		if artifactPubKeys[i].Metadata.ID == signature.KeyID {
			keyInfo = &artifactPubKeys[i]
			break
		}
	}
	if keyInfo == nil {
		return fmt.Errorf("no signing Key found with ID %s", signature.KeyID)
	}

	if keyInfo.Metadata.expired(signature.Timestamp) {
		return fmt.Errorf("signing Key %s expired at %v, signature from %v",
			signature.KeyID, keyInfo.Metadata.ExpiresAt, signature.Timestamp)
	}

	h := NewArtifactHash()
	if _, err := io.Copy(h, r); err != nil {
		return fmt.Errorf("failed to hash artifact: %w", err)
	}

	if !ed25519.Verify(keyInfo.Key, h.message(signature.Timestamp), signature.Signature) {
		return fmt.Errorf("signature verification failed for Key %s", signature.KeyID)
	}

	log.Debugf("artifact verified successfully with Key: %s", signature.KeyID)
	return nil
}

// Sign hashes the content of r and returns the JSON signature document
func Sign(artifactKey ArtifactKey, r io.Reader) ([]byte, error) {
	return signAt(artifactKey, r, time.Now().UTC())
}

func SignData(artifactKey ArtifactKey, data []byte) ([]byte, error) {
	return Sign(artifactKey, bytes.NewReader(data))
}

// SignFile signs the file at path
func SignFile(artifactKey ArtifactKey, path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Sign(artifactKey, f)
}

func signAt(artifactKey ArtifactKey, r io.Reader, timestamp time.Time) ([]byte, error) {
	if artifactKey.Metadata.expired(timestamp) {
		return nil, fmt.Errorf("artifact key expired at %v", artifactKey.Metadata.ExpiresAt)
	}

	h := NewArtifactHash()
	if _, err := io.Copy(h, r); err != nil {
		return nil, fmt.Errorf("failed to write artifact hash: %w", err)
	}
	if h.Len() == 0 {
		return nil, errors.New("artifact length must be positive, got 0")
	}

	sig := ed25519.Sign(artifactKey.Key, h.message(timestamp))

	bundle := Signature{
		Signature: sig,
		Timestamp: timestamp,
		KeyID:     artifactKey.Metadata.ID,
		Algorithm: algorithmEd25519,
		HashAlgo:  hashBlake2s,
	}

	return json.Marshal(bundle)
}
