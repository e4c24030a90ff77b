package updatemanager

import (
	"context"

	"github.com/netbirdio/appupdate/updatemanager/decrypt"
	"github.com/netbirdio/appupdate/updatemanager/downloader"
	"github.com/netbirdio/appupdate/updatemanager/feed"
)

//go:generate mockgen -destination=mocks/collaborators.go -package=mocks github.com/netbirdio/appupdate/updatemanager Fetcher,Downloader,Verifier,Decrypter,Installer

// Fetcher loads the update feed
type Fetcher interface {
	Fetch(ctx context.Context, req feed.Request) (*feed.Appcast, error)
}

// Downloader stores the update package locally. Retries stay inside the call.
type Downloader interface {
	Download(ctx context.Context, req downloader.Request) (*downloader.Artifact, error)
}

// Verifier checks the authenticity of a downloaded package. base carries the user agent
// and headers for any request the verifier makes.
type Verifier interface {
	Verify(ctx context.Context, artifact *downloader.Artifact, update *feed.Update, base downloader.Request) error
}

// Decrypter returns the plaintext package. It receives its own copy of the credential
// and wipes it.
type Decrypter interface {
	Decrypt(ctx context.Context, artifact *downloader.Artifact, cred decrypt.Credential) (*downloader.Artifact, error)
}

// Installer puts the package in place
type Installer interface {
	Install(ctx context.Context, artifact *downloader.Artifact, update *feed.Update) error
}
