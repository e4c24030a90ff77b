package reposign

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	algorithmEd25519 = "ed25519"
	hashBlake2s      = "blake2s"

	maxClockSkew = 5 * time.Minute
)

// Signature contains a signature with associated Metadata
type Signature struct {
	Signature []byte    `json:"signature"`
	Timestamp time.Time `json:"timestamp"`
	KeyID     KeyID     `json:"key_id"`
	Algorithm string    `json:"algorithm"` // "ed25519"
	HashAlgo  string    `json:"hash_algo"` // "blake2s"
}

func ParseSignature(data []byte) (*Signature, error) {
	var signature Signature
	if err := json.Unmarshal(data, &signature); err != nil {
		return nil, err
	}

	if signature.Algorithm != algorithmEd25519 || signature.HashAlgo != hashBlake2s {
		return nil, fmt.Errorf("unsupported signature algorithm %s/%s", signature.Algorithm, signature.HashAlgo)
	}

	return &signature, nil
}

// parseInlineSignature accepts the signature document either as JSON or base64 encoded JSON
func parseInlineSignature(value string) (*Signature, error) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "{") {
		return ParseSignature([]byte(value))
	}

	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid inline signature encoding: %w", err)
	}
	return ParseSignature(data)
}
