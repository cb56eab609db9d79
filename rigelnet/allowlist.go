package rigelnet

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/pelletier/go-toml"
)

// ErrAllowListInvalidEntry is returned when an empty session id is passed to
// PeerAllowList.Add or Remove.
var ErrAllowListInvalidEntry = errors.New("rigelnet: allow-list entry must not be empty")

// PeerAllowList persists the set of peer session ids a server retains
// through a timeout (as opposed to the passphrase check, which only gates
// the initial Connect). A session id is assigned fresh on every Connect
// handshake, so an entry matches only the connection it was taken from.
// A peer whose SessionID is on the list keeps its reserved client slot and
// replication state for a grace period after a timeout, rather than being
// dropped immediately. Entries are persisted in a TOML file, mirroring how
// the teacher's server.Whitelist persists player names.
type PeerAllowList struct {
	mu       sync.RWMutex
	sessions map[string]struct{}
	filePath string
	enabled  bool
}

type allowListFile struct {
	Sessions []string `toml:"sessions"`
}

// LoadPeerAllowList loads the allow-list stored at path, creating an empty
// one if the file does not yet exist.
func LoadPeerAllowList(path string) (*PeerAllowList, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rigelnet: allow-list path must not be empty")
	}
	l := &PeerAllowList{filePath: path}
	if err := l.reloadLocked(); err != nil {
		return nil, err
	}
	return l, nil
}

// SetEnabled controls whether the allow-list is enforced at all; disabled
// retains every peer regardless of membership.
func (l *PeerAllowList) SetEnabled(enabled bool) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.enabled = enabled
	l.mu.Unlock()
}

// Allowed reports whether sessionID should be retained across a timeout.
func (l *PeerAllowList) Allowed(sessionID string) bool {
	if l == nil {
		return true
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.enabled {
		return true
	}
	_, ok := l.sessions[sessionID]
	return ok
}

// Add inserts sessionID into the allow-list. The returned bool reports
// whether it was newly added.
func (l *PeerAllowList) Add(sessionID string) (bool, error) {
	if l == nil {
		return false, errors.New("rigelnet: nil allow-list")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, ErrAllowListInvalidEntry
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.sessions[sessionID]; exists {
		return false, nil
	}
	l.sessions[sessionID] = struct{}{}
	if err := l.writeLocked(); err != nil {
		delete(l.sessions, sessionID)
		return false, err
	}
	return true, nil
}

// Remove deletes sessionID from the allow-list. The returned bool reports
// whether it was present before the call.
func (l *PeerAllowList) Remove(sessionID string) (bool, error) {
	if l == nil {
		return false, errors.New("rigelnet: nil allow-list")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, ErrAllowListInvalidEntry
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.sessions[sessionID]; !exists {
		return false, nil
	}
	delete(l.sessions, sessionID)
	if err := l.writeLocked(); err != nil {
		l.sessions[sessionID] = struct{}{}
		return false, err
	}
	return true, nil
}

// Sessions returns every retained session id, sorted.
func (l *PeerAllowList) Sessions() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.sessions))
	for s := range l.sessions {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

func (l *PeerAllowList) reloadLocked() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var data allowListFile
	contents, err := os.ReadFile(l.filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.sessions = map[string]struct{}{}
			return l.writeLocked()
		}
		return fmt.Errorf("rigelnet: read allow-list: %w", err)
	}
	if len(contents) != 0 {
		if err := toml.Unmarshal(contents, &data); err != nil {
			return fmt.Errorf("rigelnet: decode allow-list: %w", err)
		}
	}
	l.sessions = make(map[string]struct{}, len(data.Sessions))
	for _, s := range data.Sessions {
		if s = strings.TrimSpace(s); s != "" {
			l.sessions[s] = struct{}{}
		}
	}
	return nil
}

func (l *PeerAllowList) writeLocked() error {
	dir := filepath.Dir(l.filePath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o777); err != nil {
			return fmt.Errorf("rigelnet: create allow-list directory: %w", err)
		}
	}
	sessions := make([]string, 0, len(l.sessions))
	for s := range l.sessions {
		sessions = append(sessions, s)
	}
	slices.Sort(sessions)

	encoded, err := toml.Marshal(allowListFile{Sessions: sessions})
	if err != nil {
		return fmt.Errorf("rigelnet: encode allow-list: %w", err)
	}
	return os.WriteFile(l.filePath, encoded, 0o644)
}
