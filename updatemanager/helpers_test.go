package updatemanager

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goversion "github.com/hashicorp/go-version"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/netbirdio/appupdate/updatemanager/bundle"
	"github.com/netbirdio/appupdate/updatemanager/downloader"
	"github.com/netbirdio/appupdate/updatemanager/feed"
	"github.com/netbirdio/appupdate/updatemanager/mocks"
)

type staticResolver struct {
	bundle *bundle.Bundle
	err    error
	calls  atomic.Int32
}

func (r *staticResolver) Resolve() (*bundle.Bundle, error) {
	r.calls.Add(1)
	return r.bundle, r.err
}

func testBundle() *bundle.Bundle {
	return &bundle.Bundle{
		Identifier:     "io.netbird.testapp",
		Name:           "TestApp",
		Version:        goversion.Must(goversion.NewVersion("1.2.0")),
		DisplayVersion: "1.2.0",
	}
}

func testAppcast(versions ...string) *feed.Appcast {
	a := &feed.Appcast{Title: "TestApp"}
	for _, v := range versions {
		a.Items = append(a.Items, feed.Item{
			Version: v,
			Assets: []feed.Asset{{
				OS:     runtime.GOOS,
				Arch:   runtime.GOARCH,
				URL:    "https://updates.example.com/" + v + "/app",
				Length: 7,
			}},
		})
	}
	return a
}

// testArtifact creates a downloaded package in its own directory below t.TempDir
func testArtifact(t *testing.T) *downloader.Artifact {
	t.Helper()
	dir, err := os.MkdirTemp(t.TempDir(), "download-*")
	require.NoError(t, err)
	path := filepath.Join(dir, "app")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o600))
	return &downloader.Artifact{Path: path, Dir: dir}
}

type collaborators struct {
	fetcher    *mocks.MockFetcher
	downloader *mocks.MockDownloader
	verifier   *mocks.MockVerifier
	decrypter  *mocks.MockDecrypter
	installer  *mocks.MockInstaller
	resolver   *staticResolver

	// coordinator lets collaborator stubs reach the coordinator under test
	coordinator *Coordinator
}

func newCollaborators(t *testing.T) *collaborators {
	ctrl := gomock.NewController(t)
	return &collaborators{
		fetcher:    mocks.NewMockFetcher(ctrl),
		downloader: mocks.NewMockDownloader(ctrl),
		verifier:   mocks.NewMockVerifier(ctrl),
		decrypter:  mocks.NewMockDecrypter(ctrl),
		installer:  mocks.NewMockInstaller(ctrl),
		resolver:   &staticResolver{bundle: testBundle()},
	}
}

func (m *collaborators) options() Options {
	return Options{
		Fetcher:    m.fetcher,
		Downloader: m.downloader,
		Verifier:   m.verifier,
		Decrypter:  m.decrypter,
		Installer:  m.installer,
		Bundle:     m.resolver,
	}
}

func newTestCoordinator(t *testing.T, m *collaborators) *Coordinator {
	t.Helper()
	c, err := New(m.options())
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

func waitDone(t *testing.T, p *Process) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(10 * time.Second):
		t.Fatalf("process %s did not finish", p.ID())
	}
}

// recorder collects notifications in delivery order
type recorder struct {
	mu       sync.Mutex
	events   []string
	outcomes []Outcome

	onStart       func(c *Coordinator, p *Process)
	onEnd         func(c *Coordinator, p *Process)
	onFound       func(c *Coordinator, p *Process, u *feed.Update)
	onWillInstall func(c *Coordinator, p *Process, u *feed.Update)
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) count(event string) int {
	n := 0
	for _, e := range r.Events() {
		if e == event {
			n++
		}
	}
	return n
}

func (r *recorder) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}

func (r *recorder) start(c *Coordinator, p *Process) {
	r.add("start")
	if r.onStart != nil {
		r.onStart(c, p)
	}
}

func (r *recorder) end(c *Coordinator, p *Process) {
	r.mu.Lock()
	r.events = append(r.events, "end")
	r.outcomes = append(r.outcomes, p.Outcome())
	r.mu.Unlock()
	if r.onEnd != nil {
		r.onEnd(c, p)
	}
}

// fullDelegate implements every hook
type fullDelegate struct {
	*recorder
}

func newFullDelegate() *fullDelegate {
	return &fullDelegate{recorder: &recorder{}}
}

func (d *fullDelegate) WillStartUpdateProcess(c *Coordinator, p *Process) {
	d.start(c, p)
}

func (d *fullDelegate) DidEndUpdateProcess(c *Coordinator, p *Process) {
	d.end(c, p)
}

func (d *fullDelegate) DidFindValidUpdate(c *Coordinator, p *Process, u *feed.Update) {
	d.add("found")
	if d.onFound != nil {
		d.onFound(c, p, u)
	}
}

func (d *fullDelegate) DidNotFindUpdate(_ *Coordinator, _ *Process) {
	d.add("not found")
}

func (d *fullDelegate) WillInstallUpdate(c *Coordinator, p *Process, u *feed.Update) {
	d.add("will install")
	if d.onWillInstall != nil {
		d.onWillInstall(c, p, u)
	}
}

// endOnlyDelegate supports only the end hook
type endOnlyDelegate struct {
	*recorder
}

func (d *endOnlyDelegate) DidEndUpdateProcess(c *Coordinator, p *Process) {
	d.end(c, p)
}

// startOnlyDelegate supports only the start hook
type startOnlyDelegate struct {
	*recorder
}

func (d *startOnlyDelegate) WillStartUpdateProcess(c *Coordinator, p *Process) {
	d.start(c, p)
}

// bareDelegate supports no hook at all
type bareDelegate struct {
	name string
}

var errBoom = errors.New("boom")
