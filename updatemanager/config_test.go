package updatemanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/netbirdio/appupdate/updatemanager/decrypt"
	"github.com/netbirdio/appupdate/updatemanager/downloader"
	"github.com/netbirdio/appupdate/updatemanager/feed"
)

func TestConfiguration_DefaultUserAgent(t *testing.T) {
	c := newTestCoordinator(t, newCollaborators(t))
	assert.Equal(t, "TestApp/1.2.0 appupdate/development", c.UserAgent())

	c.SetUserAgent("custom/1.0")
	assert.Equal(t, "custom/1.0", c.UserAgent())

	c.SetUserAgent("")
	assert.Equal(t, "TestApp/1.2.0 appupdate/development", c.UserAgent(), "empty restores the default")
}

func TestConfiguration_UserAgentWithoutBundle(t *testing.T) {
	m := newCollaborators(t)
	m.resolver = &staticResolver{err: errBoom}
	c := newTestCoordinator(t, m)

	assert.Equal(t, "appupdate/development", c.UserAgent())
}

func TestConfiguration_HeadersAreCopied(t *testing.T) {
	c := newTestCoordinator(t, newCollaborators(t))

	headers := map[string]string{"Authorization": "Bearer one"}
	c.SetHTTPHeaders(headers)
	headers["Authorization"] = "Bearer changed"

	got := c.HTTPHeaders()
	assert.Equal(t, map[string]string{"Authorization": "Bearer one"}, got)

	got["X-Extra"] = "1"
	assert.NotContains(t, c.HTTPHeaders(), "X-Extra")
}

func TestConfiguration_LastWriteWins(t *testing.T) {
	m := newCollaborators(t)
	c := newTestCoordinator(t, m)

	c.SetUserAgent("first/1")
	c.SetHTTPHeaders(map[string]string{"X-Token": "first"})
	c.SetUserAgent("second/2")
	c.SetHTTPHeaders(map[string]string{"X-Token": "second"})

	m.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req feed.Request) (*feed.Appcast, error) {
		assert.Equal(t, "second/2", req.UserAgent)
		assert.Equal(t, map[string]string{"X-Token": "second"}, req.Headers)
		assert.Equal(t, "1.2.0", req.CurrentVersion)
		return testAppcast(), nil
	})

	p, err := c.StartUpdateCheck(context.Background())
	require.NoError(t, err)
	waitDone(t, p)
	assert.Equal(t, OutcomeSucceeded, p.Outcome())
}

func TestConfiguration_ValuesReadAtCallTime(t *testing.T) {
	m := newCollaborators(t)
	c := newTestCoordinator(t, m)
	c.SetUserAgent("before/1")

	artifact := testArtifact(t)
	m.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req feed.Request) (*feed.Appcast, error) {
		assert.Equal(t, "before/1", req.UserAgent)
		c.SetUserAgent("after/2")
		return testAppcast("1.3.0"), nil
	})
	m.downloader.EXPECT().Download(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req downloader.Request) (*downloader.Artifact, error) {
		assert.Equal(t, "after/2", req.UserAgent)
		return artifact, nil
	})
	m.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, _ *downloader.Artifact, _ *feed.Update, req downloader.Request) error {
		assert.Equal(t, "after/2", req.UserAgent)
		return nil
	})
	m.decrypter.EXPECT().Decrypt(gomock.Any(), gomock.Any(), gomock.Any()).Return(artifact, nil)
	m.installer.EXPECT().Install(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	p, err := c.StartUpdateCheck(context.Background())
	require.NoError(t, err)
	waitDone(t, p)
	assert.Equal(t, OutcomeSucceeded, p.Outcome())
}

func TestConfiguration_DecryptionCredential(t *testing.T) {
	testMatrix := []struct {
		name     string
		set      func(c *Coordinator)
		wantZero bool
	}{
		{
			name:     "not configured",
			set:      func(*Coordinator) {},
			wantZero: true,
		},
		{
			name: "configured",
			set: func(c *Coordinator) {
				c.SetDecryptionCredential(decrypt.NewCredential("s3cret"))
			},
		},
		{
			name: "caller wipes its copy",
			set: func(c *Coordinator) {
				cred := decrypt.NewCredential("s3cret")
				c.SetDecryptionCredential(cred)
				cred.Wipe()
			},
		},
		{
			name: "cleared",
			set: func(c *Coordinator) {
				c.SetDecryptionCredential(decrypt.NewCredential("s3cret"))
				c.SetDecryptionCredential(decrypt.Credential{})
			},
			wantZero: true,
		},
	}

	for _, tc := range testMatrix {
		t.Run(tc.name, func(t *testing.T) {
			m := newCollaborators(t)
			c := newTestCoordinator(t, m)
			tc.set(c)

			artifact := testArtifact(t)
			m.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(testAppcast("1.3.0"), nil)
			m.downloader.EXPECT().Download(gomock.Any(), gomock.Any()).Return(artifact, nil)
			m.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
			m.decrypter.EXPECT().Decrypt(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, a *downloader.Artifact, cred decrypt.Credential) (*downloader.Artifact, error) {
				assert.Equal(t, tc.wantZero, cred.IsZero())
				return a, nil
			})
			m.installer.EXPECT().Install(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

			p, err := c.StartUpdateCheck(context.Background())
			require.NoError(t, err)
			waitDone(t, p)
			assert.Equal(t, OutcomeSucceeded, p.Outcome())
		})
	}
}
