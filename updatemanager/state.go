package updatemanager

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/appupdate/util"
)

// persistedState is stored in the state file between runs
type persistedState struct {
	LastCheck      time.Time `json:"lastCheck,omitempty"`
	SkippedVersion string    `json:"skippedVersion,omitempty"`
}

// stateStore keeps the state in memory and mirrors it to path when set
type stateStore struct {
	mu    sync.Mutex
	path  string
	state persistedState
}

func newStateStore(path string) *stateStore {
	s := &stateStore{path: path}
	if path == "" {
		return s
	}

	if _, err := util.ReadJson(path, &s.state); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warnf("failed to read update state %s, starting fresh: %v", path, err)
		}
		s.state = persistedState{}
	}
	return s
}

func (s *stateStore) lastCheck() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LastCheck
}

func (s *stateStore) skippedVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SkippedVersion
}

func (s *stateStore) setLastCheck(t time.Time) {
	s.update(func(st *persistedState) {
		st.LastCheck = t
	})
}

func (s *stateStore) setSkippedVersion(v string) {
	s.update(func(st *persistedState) {
		st.SkippedVersion = v
	})
}

func (s *stateStore) update(fn func(*persistedState)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.state)
	if s.path == "" {
		return
	}
	if err := util.WriteJson(context.Background(), s.path, s.state); err != nil {
		log.Warnf("failed to persist update state: %v", err)
	}
}
