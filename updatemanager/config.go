package updatemanager

import (
	"fmt"
	"maps"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/appupdate/updatemanager/bundle"
	"github.com/netbirdio/appupdate/updatemanager/decrypt"
	"github.com/netbirdio/appupdate/version"
)

// BundleResolver locates the metadata of the hosting application
type BundleResolver interface {
	Resolve() (*bundle.Bundle, error)
}

// Configuration holds the coordinator-private settings. Every collaborator call reads
// the values current at call time.
type Configuration struct {
	mu         sync.RWMutex
	userAgent  string
	headers    map[string]string
	credential decrypt.Credential

	bundle func() (*bundle.Bundle, error)
}

func newConfiguration(resolver BundleResolver) *Configuration {
	return &Configuration{
		bundle: sync.OnceValues(func() (*bundle.Bundle, error) {
			b, err := resolver.Resolve()
			if err != nil {
				log.Errorf("failed to resolve application bundle: %v", err)
				return nil, &ConfigurationError{Err: err}
			}
			log.Debugf("resolved application bundle %s %s", b.Name, b.DisplayVersion)
			return b, nil
		}),
	}
}

// SetUserAgent overrides the user agent of all subsequent requests; empty restores the default
func (c *Configuration) SetUserAgent(value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userAgent = value
}

// UserAgent returns the override or the default derived from the bundle
func (c *Configuration) UserAgent() string {
	c.mu.RLock()
	ua := c.userAgent
	c.mu.RUnlock()

	if ua != "" {
		return ua
	}
	return c.defaultUserAgent()
}

func (c *Configuration) defaultUserAgent() string {
	b, err := c.bundle()
	if err != nil || b == nil {
		return version.LibraryUserAgent()
	}
	return fmt.Sprintf("%s/%s %s", b.Name, b.DisplayVersion, version.LibraryUserAgent())
}

// SetHTTPHeaders replaces the headers merged into every outbound request
func (c *Configuration) SetHTTPHeaders(headers map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers = maps.Clone(headers)
}

// HTTPHeaders returns a copy of the configured headers
func (c *Configuration) HTTPHeaders() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.headers)
}

// SetDecryptionCredential stores the secret for encrypted packages; the zero Credential
// disables decryption. The value is only ever handed to the decryption collaborator.
func (c *Configuration) SetDecryptionCredential(cred decrypt.Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credential.Wipe()
	c.credential = cred.Clone()
}

func (c *Configuration) credentialCopy() decrypt.Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credential.Clone()
}

// Bundle returns the application bundle, resolving it on first use. A failure is
// permanent and matches ErrConfiguration.
func (c *Configuration) Bundle() (*bundle.Bundle, error) {
	return c.bundle()
}
