// Package types holds the shared domain types for the chat pipeline.
// It has no dependencies on other internal packages so that every layer
// (decoder, store, orchestrator, UI) can exchange values without cycles.
package types

// =============================================================================
// ENUMS
// =============================================================================

// Role identifies the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ModelTier selects the speed/quality tradeoff for a generation.
type ModelTier string

const (
	TierFast  ModelTier = "fast"
	TierSmart ModelTier = "smart"
	TierSuper ModelTier = "super"
	TierDeep  ModelTier = "deep"
)

// ValidTier reports whether t is one of the known tiers.
func ValidTier(t ModelTier) bool {
	switch t {
	case TierFast, TierSmart, TierSuper, TierDeep:
		return true
	}
	return false
}

// Mood selects a personality overlay for the system instruction.
type Mood string

const (
	MoodDefault      Mood = "default"
	MoodFriendly     Mood = "friendly"
	MoodProfessional Mood = "professional"
	MoodSassy        Mood = "sassy"
	MoodGenZ         Mood = "genz"
	MoodPoetic       Mood = "poetic"
)

// SpecialMode is an instruction overlay that replaces or augments the
// persona for themed conversations. Empty means no special mode.
type SpecialMode string

const (
	ModeNone      SpecialMode = ""
	ModeTeacher   SpecialMode = "teacher"
	ModeValentine SpecialMode = "valentine"
	ModeStress    SpecialMode = "stress"
)

// =============================================================================
// MESSAGES AND SESSIONS
// =============================================================================

// Citation is one retrieval source attached to a model message.
// Citations are 1-indexed from the reader's point of view: marker [n]
// in message content refers to Citations[n-1].
type Citation struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Message is a single conversation turn. Model messages accumulate
// content while IsStreaming is true; the remaining fields are filled in
// when the generation finalizes.
type Message struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	Attachments []string  `json:"attachments,omitempty"` // data URLs
	Tier        ModelTier `json:"tier,omitempty"`

	IsStreaming bool `json:"isStreaming,omitempty"`
	IsSearching bool `json:"isSearching,omitempty"`
	Error       bool `json:"error,omitempty"`

	// ThinkingDuration is wall-clock seconds from send until the
	// reasoning span closed. Zero when the tier produced no reasoning.
	ThinkingDuration float64    `json:"thinkingDuration,omitempty"`
	Citations        []Citation `json:"citations,omitempty"`

	// SpeechAudio is base64-encoded PCM produced by the speech side
	// task, attached after the message finalizes.
	SpeechAudio string `json:"speechAudio,omitempty"`

	CreatedAt int64 `json:"createdAt"` // unix millis
}

// Clone returns a deep copy so store snapshots stay isolated from
// later mutations.
func (m Message) Clone() Message {
	c := m
	if m.Attachments != nil {
		c.Attachments = append([]string(nil), m.Attachments...)
	}
	if m.Citations != nil {
		c.Citations = append([]Citation(nil), m.Citations...)
	}
	return c
}

// Session is an ordered conversation with a derived title.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	PersonaID string    `json:"personaId,omitempty"`
	CreatedAt int64     `json:"createdAt"` // unix millis
	Messages  []Message `json:"messages"`
}

// Clone returns a deep copy of the session including all messages.
func (s Session) Clone() Session {
	c := s
	if s.Messages != nil {
		c.Messages = make([]Message, len(s.Messages))
		for i, m := range s.Messages {
			c.Messages[i] = m.Clone()
		}
	}
	return c
}
