package decrypt

import (
	"errors"
	"fmt"
	"io"
)

const redacted = "[REDACTED]"

// Credential is the opaque secret protecting encrypted update packages.
// It never prints its value and cannot be marshalled.
type Credential struct {
	secret []byte
}

// NewCredential copies secret into a new Credential; an empty secret yields the zero Credential
func NewCredential(secret string) Credential {
	if secret == "" {
		return Credential{}
	}
	return Credential{secret: []byte(secret)}
}

// IsZero reports whether no secret is set
func (c Credential) IsZero() bool {
	return len(c.secret) == 0
}

// Clone returns an independent copy which can be wiped without affecting c
func (c Credential) Clone() Credential {
	if c.IsZero() {
		return Credential{}
	}
	return Credential{secret: append([]byte(nil), c.secret...)}
}

// Wipe overwrites the secret in memory
func (c *Credential) Wipe() {
	for i := range c.secret {
		c.secret[i] = 0
	}
	c.secret = nil
}

func (c Credential) String() string {
	return redacted
}

func (c Credential) GoString() string {
	return redacted
}

// Format keeps the secret out of every fmt verb
func (c Credential) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, redacted)
}

func (c Credential) MarshalJSON() ([]byte, error) {
	return nil, errors.New("credential cannot be marshalled")
}

func (c Credential) MarshalText() ([]byte, error) {
	return nil, errors.New("credential cannot be marshalled")
}
