// Package convo is the in-memory conversation store. It owns session
// ordering, message mutation, and title derivation. All reads return
// deep copies so callers can hold snapshots while generations mutate
// the live state; all writes go through the store's lock and are
// all-or-nothing.
package convo

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foxai-labs/oceep/internal/logging"
	"github.com/foxai-labs/oceep/internal/types"
)

const (
	// DefaultTitle marks a session whose title has not been derived
	// yet. The first user message replaces it.
	DefaultTitle = "New chat"

	// attachmentTitle is used when the first user message has
	// attachments but no text.
	attachmentTitle = "[Attachment]"

	titleLimit = 30
)

// Store holds all sessions, newest first.
type Store struct {
	mu       sync.RWMutex
	sessions []types.Session
	activeID string
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Create makes a new session, prepends it, and makes it active.
func (s *Store) Create(personaID string) types.Session {
	sess := types.Session{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		PersonaID: personaID,
		CreatedAt: time.Now().UnixMilli(),
		Messages:  []types.Message{},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append([]types.Session{sess}, s.sessions...)
	s.activeID = sess.ID
	logging.ConvoDebug("created session %s (persona=%s)", sess.ID, personaID)
	return sess.Clone()
}

// SetAll replaces the whole session list, e.g. after loading from the
// stores at startup. The given order is kept.
func (s *Store) SetAll(sessions []types.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make([]types.Session, len(sessions))
	for i, sess := range sessions {
		s.sessions[i] = sess.Clone()
	}
}

// Sessions returns a deep copy of all sessions in order.
func (s *Store) Sessions() []types.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Session, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = sess.Clone()
	}
	return out
}

// Session returns a deep copy of one session.
func (s *Store) Session(id string) (types.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.index(id); i >= 0 {
		return s.sessions[i].Clone(), true
	}
	return types.Session{}, false
}

// ActiveID returns the id of the active session, or "".
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// SetActive switches the active session. Unknown ids are ignored.
func (s *Store) SetActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index(id) < 0 {
		return false
	}
	s.activeID = id
	return true
}

// Rename sets a session title directly (user rename, not derivation).
func (s *Store) Rename(id, title string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.sessions[i].Title = title
	return true
}

// Remove deletes a session. If it was active, the newest remaining
// session becomes active.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
	if s.activeID == id {
		s.activeID = ""
		if len(s.sessions) > 0 {
			s.activeID = s.sessions[0].ID
		}
	}
	return true
}

// Append adds messages to the end of a session and derives the title
// if it is still the placeholder.
func (s *Store) Append(sessionID string, msgs ...types.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(sessionID)
	if i < 0 {
		logging.ConvoDebug("append to unknown session %s dropped", sessionID)
		return false
	}
	for _, m := range msgs {
		s.sessions[i].Messages = append(s.sessions[i].Messages, m.Clone())
	}
	s.deriveTitle(&s.sessions[i])
	return true
}

// Patch applies fn to one message. Missing session or message is a
// no-op; the conversation must never half-apply a mutation.
func (s *Store) Patch(sessionID, messageID string, fn func(*types.Message)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(sessionID)
	if i < 0 {
		return false
	}
	msgs := s.sessions[i].Messages
	for j := range msgs {
		if msgs[j].ID == messageID {
			fn(&msgs[j])
			return true
		}
	}
	logging.ConvoDebug("patch for missing message %s/%s dropped", sessionID, messageID)
	return false
}

// Truncate keeps only the first n messages of a session. Regenerate
// uses this to cut back to just before the prompt being retried.
func (s *Store) Truncate(sessionID string, n int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(sessionID)
	if i < 0 || n < 0 || n > len(s.sessions[i].Messages) {
		return false
	}
	s.sessions[i].Messages = s.sessions[i].Messages[:n]
	return true
}

// index returns the position of a session, caller must hold the lock.
func (s *Store) index(id string) int {
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

// deriveTitle replaces the placeholder title with a prefix of the
// first user message once one exists. Caller must hold the lock.
func (s *Store) deriveTitle(sess *types.Session) {
	if sess.Title != DefaultTitle {
		return
	}
	for _, m := range sess.Messages {
		if m.Role != types.RoleUser {
			continue
		}
		text := strings.TrimSpace(m.Content)
		if text == "" && len(m.Attachments) > 0 {
			text = attachmentTitle
		}
		if text == "" {
			return
		}
		sess.Title = truncateTitle(text)
		return
	}
}

// truncateTitle cuts to titleLimit runes and appends an ellipsis only
// when something was cut.
func truncateTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= titleLimit {
		return text
	}
	return string(runes[:titleLimit]) + "..."
}
