package types

// GenerateRequest is the backend contract for one generation run. The
// orchestrator assembles it; the backend maps it to provider calls.
type GenerateRequest struct {
	// History is the conversation before the prompt, oldest first.
	// Placeholder and superseded messages are already filtered out.
	History []Message

	Prompt      string
	Attachments []string // data URLs

	Tier        ModelTier
	Mood        Mood
	SpecialMode SpecialMode

	// UseRetrieval enables the search tool and the citation/rich-card
	// response protocol.
	UseRetrieval bool

	// TutorMode layers the language-tutor instruction over the persona.
	TutorMode bool

	PersonaID          string
	PersonaInstruction string

	// UserLabel is how the assistant should address the user.
	UserLabel string
}
