// Package pipeline drives one send end-to-end: allocate an epoch,
// insert the user message and a streaming placeholder, stream fragments
// through the decoder into the conversation store, finalize, persist,
// and kick off the speech side task. Superseded runs drain their stream
// silently and never mutate shared state again.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foxai-labs/oceep/internal/blocks"
	"github.com/foxai-labs/oceep/internal/convo"
	"github.com/foxai-labs/oceep/internal/epoch"
	"github.com/foxai-labs/oceep/internal/logging"
	"github.com/foxai-labs/oceep/internal/stream"
	"github.com/foxai-labs/oceep/internal/types"
)

// Sentinel errors callers branch on.
var (
	ErrBusy           = errors.New("a generation is already running")
	ErrUnknownSession = errors.New("unknown session")
	ErrUnknownMessage = errors.New("unknown message")
	ErrEmptyPrompt    = errors.New("empty prompt")
)

// User-facing failure strings written into the placeholder. Backend
// detail goes to the logs, not the chat.
const (
	rateLimitedMessage  = "The system is busy right now. Please try again in a moment."
	genericErrorMessage = "Sorry, something went wrong. Please try again."
)

const defaultRenderInterval = 50 * time.Millisecond

// =============================================================================
// COLLABORATOR CONTRACTS
// =============================================================================

// Generator streams fragments for a request. Both channels close when
// the run ends; the stream must tolerate being drained and ignored.
type Generator interface {
	Generate(ctx context.Context, req types.GenerateRequest) (<-chan types.Fragment, <-chan error)
}

// IntentChecker decides whether a prompt needs live retrieval. It must
// not fail; uncertainty means false.
type IntentChecker interface {
	ShouldUseRetrieval(ctx context.Context, prompt string) bool
}

// Synthesizer produces base64 audio for finalized text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// LocalSink is the durable local store.
type LocalSink interface {
	SaveSession(sess types.Session) error
	LoadSessions() ([]types.Session, error)
	DeleteSession(id string) error
}

// CloudSink mirrors sessions to a remote store. All calls are
// fire-and-forget from the pipeline's perspective.
type CloudSink interface {
	Enabled() bool
	SaveConversationMeta(ctx context.Context, sess types.Session, userID string) error
	SaveMessage(ctx context.Context, sessionID string, msg types.Message, userID string) error
	FetchSessions(ctx context.Context, userID string) ([]types.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// Deps bundles the orchestrator's collaborators. Intent, Speech and the
// sinks may be nil; the pipeline degrades to local-only or in-memory.
type Deps struct {
	Generator Generator
	Intent    IntentChecker
	Speech    Synthesizer
	Local     LocalSink
	Cloud     CloudSink
}

// Config is per-process orchestrator configuration.
type Config struct {
	// Incognito disables both persistence sinks.
	Incognito bool

	// UserID gates the cloud sink; empty means guest, local-only.
	UserID string

	// UserLabel is how the assistant addresses the user.
	UserLabel string

	// RenderInterval throttles placeholder re-renders during streaming.
	RenderInterval time.Duration

	// IsRateLimited classifies backend errors for the friendlier
	// quota message. Nil means every failure reads as generic.
	IsRateLimited func(error) bool
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator owns the generation state machine. All conversation
// mutation goes through the convo store; the epoch controller decides
// which run is allowed to write.
type Orchestrator struct {
	convo  *convo.Store
	deps   Deps
	cfg    Config
	epochs epoch.Controller

	mu         sync.Mutex
	generating bool

	wg       sync.WaitGroup
	onUpdate func()
}

// New wires an orchestrator over a conversation store.
func New(store *convo.Store, deps Deps, cfg Config) *Orchestrator {
	if cfg.RenderInterval <= 0 {
		cfg.RenderInterval = defaultRenderInterval
	}
	return &Orchestrator{convo: store, deps: deps, cfg: cfg}
}

// SetOnUpdate registers a callback invoked after every visible
// mutation. The TUI uses it to schedule a redraw.
func (o *Orchestrator) SetOnUpdate(fn func()) {
	o.onUpdate = fn
}

func (o *Orchestrator) notify() {
	if o.onUpdate != nil {
		o.onUpdate()
	}
}

// Busy reports whether a non-superseded generation is running.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generating
}

// Wait blocks until all in-flight runs and side tasks finish.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// SendOptions parameterizes one send.
type SendOptions struct {
	SessionID   string
	Text        string
	Attachments []string // data URLs

	Tier        types.ModelTier
	Mood        types.Mood
	SpecialMode types.SpecialMode
	TutorMode   bool

	// SearchEnabled forces retrieval on; off still consults the
	// intent checker.
	SearchEnabled bool

	PersonaID          string
	PersonaInstruction string

	// Override lets the send preempt a running generation. Stop plus
	// resend and instant answer are the legitimate override paths.
	Override bool

	// ReuseMessageID recycles an existing placeholder instead of
	// appending a new user message and placeholder pair.
	ReuseMessageID string

	// Greeting sends with no user message; the model opens the
	// conversation (stress mode).
	Greeting bool
}

// Send starts a generation and returns the id of the model message
// that will receive the stream. ErrBusy unless Override.
func (o *Orchestrator) Send(ctx context.Context, opts SendOptions) (string, error) {
	if opts.SessionID == "" {
		opts.SessionID = o.convo.ActiveID()
	}
	if _, ok := o.convo.Session(opts.SessionID); !ok {
		return "", ErrUnknownSession
	}
	if !types.ValidTier(opts.Tier) {
		opts.Tier = types.TierSmart
	}
	text := strings.TrimSpace(opts.Text)
	if text == "" && len(opts.Attachments) == 0 && !opts.Greeting {
		return "", ErrEmptyPrompt
	}

	o.mu.Lock()
	if o.generating && !opts.Override {
		o.mu.Unlock()
		return "", ErrBusy
	}
	o.generating = true
	e := o.epochs.Next()
	o.mu.Unlock()

	// A preempted run stops writing once the epoch moves on, so its
	// placeholder must be closed here. At most one message may stream
	// at a time, and it is the one this send appends.
	if opts.Override {
		o.closeStreaming(opts.SessionID, opts.ReuseMessageID)
	}

	// History is the conversation as it stood before this send.
	// Snapshot first so the new turn never feeds itself.
	sess, _ := o.convo.Session(opts.SessionID)
	history := buildHistory(sess.Messages, opts.ReuseMessageID)

	now := time.Now().UnixMilli()
	var userMsgID, aiMsgID string

	switch {
	case opts.ReuseMessageID != "":
		aiMsgID = opts.ReuseMessageID
		if !o.convo.Patch(opts.SessionID, aiMsgID, func(m *types.Message) {
			*m = types.Message{
				ID:          m.ID,
				Role:        types.RoleModel,
				Tier:        opts.Tier,
				IsStreaming: true,
				CreatedAt:   m.CreatedAt,
			}
		}) {
			o.finishRun(e)
			return "", ErrUnknownMessage
		}

	case opts.Greeting:
		aiMsgID = uuid.NewString()
		o.convo.Append(opts.SessionID, types.Message{
			ID:          aiMsgID,
			Role:        types.RoleModel,
			Tier:        opts.Tier,
			IsStreaming: true,
			CreatedAt:   now,
		})

	default:
		userMsgID = uuid.NewString()
		aiMsgID = uuid.NewString()
		o.convo.Append(opts.SessionID,
			types.Message{
				ID:          userMsgID,
				Role:        types.RoleUser,
				Content:     text,
				Attachments: opts.Attachments,
				Tier:        opts.Tier,
				CreatedAt:   now,
			},
			types.Message{
				ID:          aiMsgID,
				Role:        types.RoleModel,
				Tier:        opts.Tier,
				IsStreaming: true,
				CreatedAt:   now + 1,
			},
		)
	}
	o.notify()

	logging.Pipeline("send: epoch=%d session=%s tier=%s search=%v reuse=%v",
		e, opts.SessionID, opts.Tier, opts.SearchEnabled, opts.ReuseMessageID != "")

	o.wg.Add(1)
	go o.run(ctx, e, opts, text, history, userMsgID, aiMsgID)

	return aiMsgID, nil
}

// closeStreaming takes any still-streaming message out of streaming
// state, keeping exceptID (a placeholder about to be reused) alone.
func (o *Orchestrator) closeStreaming(sessionID, exceptID string) {
	sess, ok := o.convo.Session(sessionID)
	if !ok {
		return
	}
	for _, m := range sess.Messages {
		if !m.IsStreaming || m.ID == exceptID {
			continue
		}
		o.convo.Patch(sessionID, m.ID, func(msg *types.Message) {
			msg.IsStreaming = false
			msg.IsSearching = false
		})
	}
}

// buildHistory filters a session snapshot down to completed turns. For
// a placeholder reuse it also cuts back past the user turn that is
// being resent, since that text rides as the new prompt.
func buildHistory(msgs []types.Message, reuseID string) []types.Message {
	if reuseID != "" {
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].ID != reuseID {
				continue
			}
			j := i
			for j > 0 && msgs[j-1].Role != types.RoleUser {
				j--
			}
			if j > 0 {
				j--
			}
			msgs = msgs[:j]
			break
		}
	}
	out := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.IsStreaming || m.Error {
			continue
		}
		out = append(out, m)
	}
	return out
}

// =============================================================================
// GENERATION RUN
// =============================================================================

func (o *Orchestrator) run(ctx context.Context, e epoch.Epoch, opts SendOptions, text string, history []types.Message, userMsgID, aiMsgID string) {
	defer o.wg.Done()

	useRetrieval := opts.SearchEnabled || opts.Tier == types.TierDeep
	if !useRetrieval && o.deps.Intent != nil &&
		!opts.TutorMode && !opts.Greeting && len(opts.Attachments) == 0 {
		useRetrieval = o.deps.Intent.ShouldUseRetrieval(ctx, text)
	}
	if useRetrieval {
		o.patch(e, opts.SessionID, aiMsgID, func(m *types.Message) { m.IsSearching = true })
	}

	req := types.GenerateRequest{
		History:            history,
		Prompt:             text,
		Attachments:        opts.Attachments,
		Tier:               opts.Tier,
		Mood:               opts.Mood,
		SpecialMode:        opts.SpecialMode,
		UseRetrieval:       useRetrieval,
		TutorMode:          opts.TutorMode,
		PersonaID:          opts.PersonaID,
		PersonaInstruction: opts.PersonaInstruction,
		UserLabel:          o.cfg.UserLabel,
	}

	start := time.Now()
	frags, errs := o.deps.Generator.Generate(ctx, req)

	dec := stream.NewDecoder()
	var thinkingDur float64
	searching := useRetrieval
	var lastRender time.Time
	superseded := false

	for frag := range frags {
		if superseded {
			continue // keep draining so the producer can finish
		}
		if !o.epochs.IsCurrent(e) {
			superseded = true
			logging.PipelineDebug("epoch %d superseded mid-stream, draining", e)
			continue
		}

		dec.Feed(frag)

		if thinkingDur == 0 && dec.ThoughtClosed() {
			thinkingDur = time.Since(start).Seconds()
		}
		if searching {
			if _, ok := frag.(types.TextFragment); ok {
				searching = false
				o.patch(e, opts.SessionID, aiMsgID, func(m *types.Message) { m.IsSearching = false })
			}
		}

		if time.Since(lastRender) >= o.cfg.RenderInterval {
			lastRender = time.Now()
			content, cites, dur := dec.Content(), dec.Citations(), thinkingDur
			o.patch(e, opts.SessionID, aiMsgID, func(m *types.Message) {
				m.Content = content
				m.Citations = cites
				if dur > 0 {
					m.ThinkingDuration = dur
				}
			})
		}
	}
	err := <-errs

	if superseded || !o.epochs.IsCurrent(e) {
		logging.Pipeline("epoch %d finished superseded, result dropped", e)
		return
	}

	if err != nil {
		msg := genericErrorMessage
		if o.cfg.IsRateLimited != nil && o.cfg.IsRateLimited(err) {
			msg = rateLimitedMessage
		}
		logging.PipelineWarn("generation failed (epoch %d): %v", e, err)
		o.patch(e, opts.SessionID, aiMsgID, func(m *types.Message) {
			m.Content = msg
			m.Error = true
			m.IsStreaming = false
			m.IsSearching = false
		})
		o.finishRun(e)
		return
	}

	dec.Close()
	if thinkingDur == 0 && dec.ThoughtClosed() {
		thinkingDur = time.Since(start).Seconds()
	}
	content, cites := dec.Content(), dec.Citations()

	o.patch(e, opts.SessionID, aiMsgID, func(m *types.Message) {
		m.Content = content
		m.Citations = cites
		m.ThinkingDuration = thinkingDur
		m.IsStreaming = false
		m.IsSearching = false
	})

	logging.Pipeline("epoch %d finalized: %d chars, %d citations, thinking=%.1fs",
		e, len(content), len(cites), thinkingDur)

	o.persist(ctx, opts.SessionID, userMsgID, aiMsgID)
	o.speakLater(ctx, e, opts.SessionID, aiMsgID, content)
	o.finishRun(e)
}

// patch mutates one message only while the epoch is still live. The
// check sits here, immediately before the write, because a supersede
// can land between any two fragments.
func (o *Orchestrator) patch(e epoch.Epoch, sessionID, messageID string, fn func(*types.Message)) {
	if !o.epochs.IsCurrent(e) {
		return
	}
	if o.convo.Patch(sessionID, messageID, fn) {
		o.notify()
	}
}

// finishRun clears the generating flag only if this run still owns it.
func (o *Orchestrator) finishRun(e epoch.Epoch) {
	o.mu.Lock()
	if o.epochs.IsCurrent(e) {
		o.generating = false
	}
	o.mu.Unlock()
	o.notify()
}

// =============================================================================
// PERSISTENCE AND SIDE TASKS
// =============================================================================

// persist mirrors the session to the sinks. Failures are logged and
// swallowed; storage is never on the chat's critical path.
func (o *Orchestrator) persist(ctx context.Context, sessionID string, messageIDs ...string) {
	if o.cfg.Incognito {
		return
	}
	sess, ok := o.convo.Session(sessionID)
	if !ok || len(sess.Messages) == 0 {
		return // deleted or emptied while the run was in flight
	}

	if o.deps.Local != nil {
		if err := o.deps.Local.SaveSession(sess); err != nil {
			logging.PipelineWarn("local save of session %s failed: %v", sessionID, err)
		}
	}

	if o.deps.Cloud == nil || !o.deps.Cloud.Enabled() || o.cfg.UserID == "" {
		return
	}
	if err := o.deps.Cloud.SaveConversationMeta(ctx, sess, o.cfg.UserID); err != nil {
		logging.CloudWarn("cloud save of session %s failed: %v", sessionID, err)
		return
	}
	for _, id := range messageIDs {
		if id == "" {
			continue
		}
		for _, m := range sess.Messages {
			if m.ID != id {
				continue
			}
			if err := o.deps.Cloud.SaveMessage(ctx, sessionID, m, o.cfg.UserID); err != nil {
				logging.CloudWarn("cloud save of message %s failed: %v", id, err)
			}
			break
		}
	}
}

// speakLater synthesizes audio for the finalized text and patches it
// back in, guarded by the same epoch. Todo checklists are interactive
// and are not read aloud.
func (o *Orchestrator) speakLater(ctx context.Context, e epoch.Epoch, sessionID, messageID, content string) {
	if o.deps.Speech == nil {
		return
	}
	spoken := blocks.StripReasoning(content)
	if spoken == "" || blocks.HasTodo(content) {
		return
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		audio, err := o.deps.Speech.Synthesize(ctx, spoken)
		if err != nil {
			logging.SpeechWarn("synthesis for message %s failed: %v", messageID, err)
			return
		}
		if !o.epochs.IsCurrent(e) {
			return
		}
		o.patch(e, sessionID, messageID, func(m *types.Message) { m.SpeechAudio = audio })
		o.persist(ctx, sessionID, messageID)
	}()
}

// =============================================================================
// CONTROL ENTRY POINTS
// =============================================================================

// Stop supersedes the running generation, closes out any streaming
// placeholder with whatever content it has, and saves.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.epochs.Bump()
	o.generating = false
	o.mu.Unlock()

	sessionID := o.convo.ActiveID()
	if sessionID == "" {
		return
	}
	sess, ok := o.convo.Session(sessionID)
	if !ok {
		return
	}
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		if !sess.Messages[i].IsStreaming {
			continue
		}
		o.convo.Patch(sessionID, sess.Messages[i].ID, func(m *types.Message) {
			m.IsStreaming = false
			m.IsSearching = false
		})
		o.persist(context.Background(), sessionID, sess.Messages[i].ID)
		break
	}
	logging.Pipeline("stopped, epoch bumped to %d", o.epochs.Current())
	o.notify()
}

// InstantAnswer supersedes the running generation and replays the same
// prompt into the same placeholder on the fast tier. Everything else
// in opts (mood, persona, session) is honored as given.
func (o *Orchestrator) InstantAnswer(ctx context.Context, opts SendOptions) (string, error) {
	if opts.SessionID == "" {
		opts.SessionID = o.convo.ActiveID()
	}
	sess, ok := o.convo.Session(opts.SessionID)
	if !ok {
		return "", ErrUnknownSession
	}

	var placeholder, userMsg *types.Message
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		m := &sess.Messages[i]
		if placeholder == nil {
			if m.Role == types.RoleModel && m.IsStreaming {
				placeholder = m
			}
			continue
		}
		if m.Role == types.RoleUser {
			userMsg = m
			break
		}
	}
	if placeholder == nil || userMsg == nil {
		return "", ErrUnknownMessage
	}

	opts.Text = userMsg.Content
	opts.Attachments = userMsg.Attachments
	opts.Tier = types.TierFast
	opts.Override = true
	opts.ReuseMessageID = placeholder.ID
	opts.SearchEnabled = false
	opts.Greeting = false
	return o.Send(ctx, opts)
}

// Regenerate truncates the session back to just before the user turn
// that produced messageID and resends that turn's text. The result
// must match a fresh send of the same prompt.
func (o *Orchestrator) Regenerate(ctx context.Context, messageID string, opts SendOptions) (string, error) {
	if o.Busy() && !opts.Override {
		return "", ErrBusy
	}
	if opts.SessionID == "" {
		opts.SessionID = o.convo.ActiveID()
	}
	sess, ok := o.convo.Session(opts.SessionID)
	if !ok {
		return "", ErrUnknownSession
	}

	idx := -1
	for i, m := range sess.Messages {
		if m.ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", ErrUnknownMessage
	}
	for idx >= 0 && sess.Messages[idx].Role != types.RoleUser {
		idx--
	}
	if idx < 0 {
		return "", ErrUnknownMessage
	}
	target := sess.Messages[idx]

	if !o.convo.Truncate(opts.SessionID, idx) {
		return "", ErrUnknownMessage
	}
	o.notify()

	opts.Text = target.Content
	opts.Attachments = target.Attachments
	if !types.ValidTier(opts.Tier) {
		opts.Tier = target.Tier
	}
	opts.ReuseMessageID = ""
	opts.Greeting = false
	return o.Send(ctx, opts)
}

// Greet has the model open an empty conversation (stress mode and
// similar themed sessions).
func (o *Orchestrator) Greet(ctx context.Context, opts SendOptions) (string, error) {
	opts.Text = ""
	opts.Attachments = nil
	opts.ReuseMessageID = ""
	opts.Greeting = true
	return o.Send(ctx, opts)
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

// Bootstrap loads sessions from the sinks into the conversation store.
// Cloud sessions missing locally are merged in; cloud failure degrades
// to local-only.
func (o *Orchestrator) Bootstrap(ctx context.Context) error {
	var sessions []types.Session

	if o.deps.Local != nil && !o.cfg.Incognito {
		loaded, err := o.deps.Local.LoadSessions()
		if err != nil {
			logging.PipelineWarn("local load failed, starting empty: %v", err)
		} else {
			sessions = loaded
		}
	}

	if o.deps.Cloud != nil && o.deps.Cloud.Enabled() && o.cfg.UserID != "" && !o.cfg.Incognito {
		remote, err := o.deps.Cloud.FetchSessions(ctx, o.cfg.UserID)
		if err != nil {
			logging.CloudWarn("cloud fetch failed, continuing local-only: %v", err)
		} else {
			seen := make(map[string]bool, len(sessions))
			for _, s := range sessions {
				seen[s.ID] = true
			}
			for _, s := range remote {
				if !seen[s.ID] {
					sessions = append(sessions, s)
				}
			}
		}
	}

	// Transient flags never survive a restart.
	for i := range sessions {
		for j := range sessions[i].Messages {
			sessions[i].Messages[j].IsStreaming = false
			sessions[i].Messages[j].IsSearching = false
		}
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt > sessions[j].CreatedAt
	})

	o.convo.SetAll(sessions)
	if len(sessions) > 0 {
		o.convo.SetActive(sessions[0].ID)
	}
	logging.Pipeline("bootstrapped %d sessions", len(sessions))
	return nil
}

// NewSession creates and activates an empty session.
func (o *Orchestrator) NewSession(personaID string) types.Session {
	sess := o.convo.Create(personaID)
	o.notify()
	return sess
}

// DeleteSession removes a session everywhere. Sink failures are logged
// and swallowed; the in-memory removal always wins.
func (o *Orchestrator) DeleteSession(ctx context.Context, id string) bool {
	if !o.convo.Remove(id) {
		return false
	}
	if !o.cfg.Incognito {
		if o.deps.Local != nil {
			if err := o.deps.Local.DeleteSession(id); err != nil {
				logging.PipelineWarn("local delete of session %s failed: %v", id, err)
			}
		}
		if o.deps.Cloud != nil && o.deps.Cloud.Enabled() && o.cfg.UserID != "" {
			if err := o.deps.Cloud.DeleteSession(ctx, id); err != nil {
				logging.CloudWarn("cloud delete of session %s failed: %v", id, err)
			}
		}
	}
	o.notify()
	return true
}

// RenameSession sets a title directly and re-saves a non-empty session.
func (o *Orchestrator) RenameSession(ctx context.Context, id, title string) bool {
	if !o.convo.Rename(id, title) {
		return false
	}
	if sess, ok := o.convo.Session(id); ok && len(sess.Messages) > 0 {
		o.persist(ctx, id)
	}
	o.notify()
	return true
}
