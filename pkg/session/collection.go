package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lanhop/pkg/protocol"
)

// CollectionSession groups the files one sender delivered while it was open.
type CollectionSession struct {
	ID        string
	Sender    string
	Files     []protocol.Envelope
	Open      bool
	StartedAt time.Time
	EndedAt   time.Time
	// LastActivity is the arrival time of the newest file.
	LastActivity time.Time
	// WireID is the collection id the sender put on the first file, if any.
	WireID string
}

// Collections keeps at most one open session per sender address.
type Collections struct {
	idle    time.Duration
	now     func() time.Time
	onClose func(CollectionSession)

	mu       sync.Mutex
	sessions map[string]*CollectionSession
	open     map[string]string // sender -> session id
	// closed session ids, oldest first; trimmed to keepClosed
	closed     []string
	keepClosed int
}

// DefaultKeepClosed is how many closed sessions stay listed before the
// oldest is dropped.
const DefaultKeepClosed = 16

// NewCollections returns an empty registry. With idle > 0 an open session
// that saw no file for longer than idle is closed when the next file from
// the same sender arrives, and the file starts a new session.
func NewCollections(idle time.Duration) *Collections {
	return &Collections{
		idle:       idle,
		now:        time.Now,
		sessions:   make(map[string]*CollectionSession),
		open:       make(map[string]string),
		keepClosed: DefaultKeepClosed,
	}
}

// KeepClosed sets how many closed sessions are retained; n <= 0 drops a
// session as soon as it closes and its OnClose hook has been given a copy.
func (c *Collections) KeepClosed(n int) {
	c.mu.Lock()
	c.keepClosed = max(n, 0)
	c.trimLocked()
	c.mu.Unlock()
}

// OnClose registers fn to run, outside any lock, whenever a session closes.
func (c *Collections) OnClose(fn func(CollectionSession)) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

// AddFile appends env to the open session of sender, opening one if needed,
// and returns the session id. A file carrying a different collection id than
// the open session was started with closes that session first.
func (c *Collections) AddFile(sender string, env protocol.Envelope) string {
	now := c.now()
	c.mu.Lock()
	var closed *CollectionSession
	if id, ok := c.open[sender]; ok {
		s := c.sessions[id]
		switch {
		case c.idle > 0 && now.Sub(s.LastActivity) > c.idle:
			closed = s
		case s.WireID != "" && env.CollectionID != "" && s.WireID != env.CollectionID:
			closed = s
		default:
			s.Files = append(s.Files, env)
			s.LastActivity = now
			c.mu.Unlock()
			return id
		}
		c.closeLocked(s, now)
	}
	s := &CollectionSession{
		ID:           uuid.NewString(),
		Sender:       sender,
		Files:        []protocol.Envelope{env},
		Open:         true,
		StartedAt:    now,
		LastActivity: now,
		WireID:       env.CollectionID,
	}
	c.sessions[s.ID] = s
	c.open[sender] = s.ID
	hook := c.onClose
	var snap CollectionSession
	if closed != nil {
		snap = closed.copy()
	}
	c.mu.Unlock()

	zap.L().Info("collection opened", zap.String("collection", s.ID), zap.String("from", sender))
	if closed != nil {
		zap.L().Info("collection closed", zap.String("collection", snap.ID), zap.Int("files", len(snap.Files)))
		if hook != nil {
			hook(snap)
		}
	}
	return s.ID
}

// CloseSession marks a session closed. Closing twice is not an error.
func (c *Collections) CloseSession(id string) error {
	c.mu.Lock()
	s, ok := c.sessions[id]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownSession
	}
	if !s.Open {
		c.mu.Unlock()
		return nil
	}
	c.closeLocked(s, c.now())
	snap, hook := s.copy(), c.onClose
	c.mu.Unlock()
	if hook != nil {
		hook(snap)
	}
	return nil
}

func (c *Collections) closeLocked(s *CollectionSession, at time.Time) {
	s.Open = false
	s.EndedAt = at
	if c.open[s.Sender] == s.ID {
		delete(c.open, s.Sender)
	}
	c.closed = append(c.closed, s.ID)
	c.trimLocked()
}

func (c *Collections) trimLocked() {
	for len(c.closed) > c.keepClosed {
		id := c.closed[0]
		c.closed = c.closed[1:]
		if s, ok := c.sessions[id]; ok && !s.Open {
			delete(c.sessions, id)
		}
	}
}

// Remove forgets a session and the files it holds. An open session is
// dropped without running the OnClose hook.
func (c *Collections) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return false
	}
	if c.open[s.Sender] == id {
		delete(c.open, s.Sender)
	}
	delete(c.sessions, id)
	return true
}

// CloseIdle closes every open session that saw no file for longer than the
// idle timeout and returns how many it closed. It does nothing when the
// registry has no idle timeout.
func (c *Collections) CloseIdle() int {
	if c.idle <= 0 {
		return 0
	}
	now := c.now()
	c.mu.Lock()
	var snaps []CollectionSession
	for _, id := range c.open {
		s := c.sessions[id]
		if now.Sub(s.LastActivity) > c.idle {
			c.closeLocked(s, now)
			snaps = append(snaps, s.copy())
		}
	}
	hook := c.onClose
	c.mu.Unlock()
	for _, snap := range snaps {
		zap.L().Info("collection closed", zap.String("collection", snap.ID), zap.Int("files", len(snap.Files)), zap.String("reason", "idle"))
		if hook != nil {
			hook(snap)
		}
	}
	return len(snaps)
}

// Get returns a copy of the session.
func (c *Collections) Get(id string) (CollectionSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return CollectionSession{}, false
	}
	return s.copy(), true
}

// OpenFor returns the id of the open session of sender.
func (c *Collections) OpenFor(sender string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.open[sender]
	return id, ok
}

// List returns copies of all sessions, oldest first.
func (c *Collections) List() []CollectionSession {
	c.mu.Lock()
	out := make([]CollectionSession, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s.copy())
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (s *CollectionSession) copy() CollectionSession {
	cp := *s
	cp.Files = append([]protocol.Envelope(nil), s.Files...)
	return cp
}

// FileFailure is one file MaterializeToDirectory could not write.
type FileFailure struct {
	Name string
	Err  error
}

// MaterializeError lists every failed file. Files not listed were written.
type MaterializeError struct {
	Dir      string
	Failures []FileFailure
}

func (e *MaterializeError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Name+": "+f.Err.Error())
	}
	return fmt.Sprintf("%d file(s) not written to %s: %s", len(e.Failures), e.Dir, strings.Join(parts, "; "))
}

func (e *MaterializeError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}
	return out
}

// MaterializeToDirectory writes every file of the session into dir and
// returns how many were written. Existing files are never overwritten; a
// clashing name gets a " (n)" suffix before its extension.
func (c *Collections) MaterializeToDirectory(id, dir string) (int, error) {
	s, ok := c.Get(id)
	if !ok {
		return 0, ErrUnknownSession
	}
	return Materialize(s, dir)
}

// Materialize writes the files of a session snapshot, such as the one an
// OnClose hook receives, the same way MaterializeToDirectory does.
func Materialize(s CollectionSession, dir string) (int, error) {
	id := s.ID
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}
	merr := &MaterializeError{Dir: dir}
	written := 0
	for _, env := range s.Files {
		name := baseName(env)
		if err := writeUnique(dir, name, env.Payload); err != nil {
			merr.Failures = append(merr.Failures, FileFailure{Name: name, Err: err})
			continue
		}
		written++
	}
	zap.L().Info("collection materialized", zap.String("collection", id), zap.String("dir", dir), zap.Int("written", written), zap.Int("failed", len(merr.Failures)))
	if len(merr.Failures) > 0 {
		return written, merr
	}
	return written, nil
}

// baseName strips any directory part a peer may have put in the name.
func baseName(env protocol.Envelope) string {
	name := env.FileName
	if name == "" {
		name = env.Name
	}
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" || name == "" {
		return "file"
	}
	return name
}

const maxRenames = 10000

func writeUnique(dir, name string, data []byte) error {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 0; n < maxRenames; n++ {
		candidate := name
		if n > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
		}
		f, err := os.OpenFile(filepath.Join(dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return err
		}
		_, werr := f.Write(data)
		cerr := f.Close()
		if werr != nil {
			_ = os.Remove(f.Name())
			return werr
		}
		if cerr != nil {
			return cerr
		}
		return nil
	}
	return fmt.Errorf("no free name for %s", name)
}
