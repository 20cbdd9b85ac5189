package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/foxai-labs/oceep/internal/convo"
	"github.com/foxai-labs/oceep/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// FAKES
// =============================================================================

// fakeGen runs a script per request and records every request it saw.
type fakeGen struct {
	mu     sync.Mutex
	reqs   []types.GenerateRequest
	script func(req types.GenerateRequest, frags chan<- types.Fragment) error
}

func (g *fakeGen) Generate(ctx context.Context, req types.GenerateRequest) (<-chan types.Fragment, <-chan error) {
	g.mu.Lock()
	g.reqs = append(g.reqs, req)
	g.mu.Unlock()

	frags := make(chan types.Fragment, 100)
	errs := make(chan error, 1)
	go func() {
		defer close(frags)
		defer close(errs)
		if err := g.script(req, frags); err != nil {
			errs <- err
		}
	}()
	return frags, errs
}

func (g *fakeGen) requests() []types.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]types.GenerateRequest(nil), g.reqs...)
}

// echoScript answers every prompt deterministically.
func echoScript(req types.GenerateRequest, frags chan<- types.Fragment) error {
	frags <- types.TextFragment{Text: "reply to: " + req.Prompt}
	return nil
}

type fakeIntent struct {
	answer bool
	calls  atomic.Int32
}

func (f *fakeIntent) ShouldUseRetrieval(ctx context.Context, prompt string) bool {
	f.calls.Add(1)
	return f.answer
}

type fakeSynth struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "audio:" + text, nil
}

type memLocal struct {
	mu      sync.Mutex
	saves   int
	deletes []string
	byID    map[string]types.Session
	seed    []types.Session
	loadErr error
}

func newMemLocal() *memLocal {
	return &memLocal{byID: map[string]types.Session{}}
}

func (m *memLocal) SaveSession(sess types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.byID[sess.ID] = sess.Clone()
	return nil
}

func (m *memLocal) LoadSessions() ([]types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Session(nil), m.seed...), m.loadErr
}

func (m *memLocal) DeleteSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, id)
	delete(m.byID, id)
	return nil
}

func (m *memLocal) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *memLocal) saved(id string) (types.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	return s, ok
}

type memCloud struct {
	mu       sync.Mutex
	enabled  bool
	metas    int
	messages []types.Message
	deletes  []string
	remote   []types.Session
}

func (m *memCloud) Enabled() bool { return m.enabled }

func (m *memCloud) SaveConversationMeta(ctx context.Context, sess types.Session, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metas++
	return nil
}

func (m *memCloud) SaveMessage(ctx context.Context, sessionID string, msg types.Message, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memCloud) FetchSessions(ctx context.Context, userID string) ([]types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Session(nil), m.remote...), nil
}

func (m *memCloud) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, id)
	return nil
}

func (m *memCloud) messageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// =============================================================================
// HARNESS
// =============================================================================

type harness struct {
	orch  *Orchestrator
	store *convo.Store
	sess  types.Session
	gen   *fakeGen
	local *memLocal
	cloud *memCloud
}

func newHarness(t *testing.T, gen *fakeGen, mutate ...func(*Deps, *Config)) *harness {
	t.Helper()
	store := convo.New()
	local := newMemLocal()
	cloud := &memCloud{enabled: true}

	deps := Deps{Generator: gen, Local: local, Cloud: cloud}
	cfg := Config{UserID: "user-1", UserLabel: "Alex", RenderInterval: time.Millisecond}
	for _, fn := range mutate {
		fn(&deps, &cfg)
	}

	orch := New(store, deps, cfg)
	sess := orch.NewSession("bot-friend")
	t.Cleanup(orch.Wait)
	return &harness{orch: orch, store: store, sess: sess, gen: gen, local: local, cloud: cloud}
}

func (h *harness) message(t *testing.T, id string) types.Message {
	t.Helper()
	sess, ok := h.store.Session(h.sess.ID)
	require.True(t, ok)
	for _, m := range sess.Messages {
		if m.ID == id {
			return m
		}
	}
	t.Fatalf("message %s not found", id)
	return types.Message{}
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

// =============================================================================
// SEND AND STREAMING
// =============================================================================

func TestSendStreamsAndFinalizes(t *testing.T) {
	gen := &fakeGen{script: func(req types.GenerateRequest, frags chan<- types.Fragment) error {
		frags <- types.ThoughtFragment{Text: "reason about it"}
		frags <- types.TextFragment{Text: "Paris is the capital [1]."}
		frags <- types.CitationsFragment{Citations: []types.Citation{{URI: "https://ref.example", Title: "Ref"}}}
		return nil
	}}
	h := newHarness(t, gen)

	aiID, err := h.orch.Send(context.Background(), SendOptions{Text: "capital of France?", Tier: types.TierSmart})
	require.NoError(t, err)
	h.orch.Wait()

	msg := h.message(t, aiID)
	assert.False(t, msg.IsStreaming)
	assert.False(t, msg.IsSearching)
	assert.False(t, msg.Error)
	assert.Equal(t, "<think>reason about it</think>Paris is the capital [1].", msg.Content)
	require.Len(t, msg.Citations, 1)
	assert.Greater(t, msg.ThinkingDuration, 0.0)

	// User turn plus model turn, in order.
	sess, _ := h.store.Session(h.sess.ID)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, types.RoleUser, sess.Messages[0].Role)
	assert.Equal(t, "capital of France?", sess.Messages[0].Content)

	// The prompt never feeds itself as history.
	reqs := gen.requests()
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].History)
	assert.Equal(t, "Alex", reqs[0].UserLabel)

	// Persisted locally and mirrored to the cloud.
	saved, ok := h.local.saved(h.sess.ID)
	require.True(t, ok)
	assert.Len(t, saved.Messages, 2)
	assert.Equal(t, 2, h.cloud.messageCount())
}

func TestSendDerivesTitle(t *testing.T) {
	h := newHarness(t, &fakeGen{script: echoScript})

	_, err := h.orch.Send(context.Background(), SendOptions{
		Text: "Hello world, this is a long message exceeding thirty chars",
	})
	require.NoError(t, err)
	h.orch.Wait()

	sess, _ := h.store.Session(h.sess.ID)
	assert.Equal(t, "Hello world, this is a long me...", sess.Title)
}

func TestSendRejectsEmptyPromptAndUnknownSession(t *testing.T) {
	h := newHarness(t, &fakeGen{script: echoScript})

	_, err := h.orch.Send(context.Background(), SendOptions{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyPrompt)

	_, err = h.orch.Send(context.Background(), SendOptions{SessionID: "nope", Text: "hi"})
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestBusyRejectionAndOverride(t *testing.T) {
	release := make(chan struct{})
	gen := &fakeGen{script: func(req types.GenerateRequest, frags chan<- types.Fragment) error {
		<-release
		frags <- types.TextFragment{Text: "done"}
		return nil
	}}
	h := newHarness(t, gen)

	_, err := h.orch.Send(context.Background(), SendOptions{Text: "first"})
	require.NoError(t, err)
	assert.True(t, h.orch.Busy())

	_, err = h.orch.Send(context.Background(), SendOptions{Text: "second"})
	assert.ErrorIs(t, err, ErrBusy)

	_, err = h.orch.Send(context.Background(), SendOptions{Text: "third", Override: true})
	require.NoError(t, err)

	close(release)
	h.orch.Wait()
}

// =============================================================================
// SUPERSEDE
// =============================================================================

func TestSupersedeSafety(t *testing.T) {
	firstGate := make(chan struct{})
	releaseRest := make(chan struct{})
	gen := &fakeGen{script: func(req types.GenerateRequest, frags chan<- types.Fragment) error {
		if req.Prompt == "slow" {
			frags <- types.TextFragment{Text: "A1"}
			close(firstGate)
			<-releaseRest
			frags <- types.TextFragment{Text: "A2"}
			frags <- types.TextFragment{Text: "A3"}
			return nil
		}
		frags <- types.TextFragment{Text: "B wins"}
		return nil
	}}
	h := newHarness(t, gen)

	slowID, err := h.orch.Send(context.Background(), SendOptions{Text: "slow"})
	require.NoError(t, err)
	<-firstGate
	waitFor(t, func() bool { return strings.Contains(h.message(t, slowID).Content, "A1") })

	fastID, err := h.orch.Send(context.Background(), SendOptions{Text: "fast", Override: true})
	require.NoError(t, err)

	// Let the superseded run finish emitting after B is underway.
	close(releaseRest)
	h.orch.Wait()

	assert.Equal(t, "B wins", h.message(t, fastID).Content)
	assert.NotContains(t, h.message(t, slowID).Content, "A2", "superseded run must stop writing")
	assert.False(t, h.orch.Busy())
}

func TestOverrideClosesSupersededPlaceholder(t *testing.T) {
	gate := make(chan struct{})
	release := make(chan struct{})
	gen := &fakeGen{}
	gen.script = func(req types.GenerateRequest, frags chan<- types.Fragment) error {
		if req.Prompt == "slow" {
			frags <- types.TextFragment{Text: "partial"}
			close(gate)
			<-release
			return nil
		}
		return echoScript(req, frags)
	}
	h := newHarness(t, gen)

	slowID, err := h.orch.Send(context.Background(), SendOptions{Text: "slow"})
	require.NoError(t, err)
	<-gate
	waitFor(t, func() bool { return h.message(t, slowID).Content == "partial" })

	fastID, err := h.orch.Send(context.Background(), SendOptions{Text: "fast", Override: true})
	require.NoError(t, err)
	close(release)
	h.orch.Wait()

	// Exactly one message ever streams at a time; once both runs are
	// done, none does.
	sess, _ := h.store.Session(h.sess.ID)
	for _, m := range sess.Messages {
		assert.False(t, m.IsStreaming, "message %s left streaming", m.ID)
		assert.False(t, m.IsSearching)
	}
	assert.Equal(t, "partial", h.message(t, slowID).Content)
	assert.Equal(t, "reply to: fast", h.message(t, fastID).Content)
}

func TestStopClosesPlaceholder(t *testing.T) {
	gate := make(chan struct{})
	release := make(chan struct{})
	gen := &fakeGen{script: func(req types.GenerateRequest, frags chan<- types.Fragment) error {
		frags <- types.TextFragment{Text: "partial"}
		close(gate)
		<-release
		frags <- types.TextFragment{Text: " never shown"}
		return nil
	}}
	h := newHarness(t, gen)

	aiID, err := h.orch.Send(context.Background(), SendOptions{Text: "hi"})
	require.NoError(t, err)
	<-gate
	waitFor(t, func() bool { return h.message(t, aiID).Content == "partial" })

	h.orch.Stop()
	assert.False(t, h.orch.Busy())
	assert.False(t, h.message(t, aiID).IsStreaming)

	close(release)
	h.orch.Wait()
	assert.Equal(t, "partial", h.message(t, aiID).Content)

	// Stop saved what was on screen.
	saved, ok := h.local.saved(h.sess.ID)
	require.True(t, ok)
	require.Len(t, saved.Messages, 2)
	assert.Equal(t, "partial", saved.Messages[1].Content)
}

// =============================================================================
// ERRORS
// =============================================================================

func TestBackendErrorMessages(t *testing.T) {
	t.Run("rate limited", func(t *testing.T) {
		gen := &fakeGen{script: func(req types.GenerateRequest, frags chan<- types.Fragment) error {
			return errors.New("quota exceeded")
		}}
		h := newHarness(t, gen, func(d *Deps, c *Config) {
			c.IsRateLimited = func(err error) bool { return true }
		})

		aiID, err := h.orch.Send(context.Background(), SendOptions{Text: "hi"})
		require.NoError(t, err)
		h.orch.Wait()

		msg := h.message(t, aiID)
		assert.Equal(t, rateLimitedMessage, msg.Content)
		assert.True(t, msg.Error)
		assert.False(t, msg.IsStreaming)
		assert.False(t, h.orch.Busy())
	})

	t.Run("generic", func(t *testing.T) {
		gen := &fakeGen{script: func(req types.GenerateRequest, frags chan<- types.Fragment) error {
			return errors.New("connection reset")
		}}
		h := newHarness(t, gen)

		aiID, err := h.orch.Send(context.Background(), SendOptions{Text: "hi"})
		require.NoError(t, err)
		h.orch.Wait()

		assert.Equal(t, genericErrorMessage, h.message(t, aiID).Content)
	})

	t.Run("error turns are excluded from history", func(t *testing.T) {
		var failed atomic.Bool
		gen := &fakeGen{script: func(req types.GenerateRequest, frags chan<- types.Fragment) error {
			if failed.CompareAndSwap(false, true) {
				return errors.New("boom")
			}
			return echoScript(req, frags)
		}}
		h := newHarness(t, gen)

		_, err := h.orch.Send(context.Background(), SendOptions{Text: "first"})
		require.NoError(t, err)
		h.orch.Wait()
		_, err = h.orch.Send(context.Background(), SendOptions{Text: "second"})
		require.NoError(t, err)
		h.orch.Wait()

		reqs := gen.requests()
		require.Len(t, reqs, 2)
		for _, m := range reqs[1].History {
			assert.False(t, m.Error)
		}
	})
}

// =============================================================================
// GATEKEEPER AND SEARCH FLAGS
// =============================================================================

func TestIntentCheckGating(t *testing.T) {
	cases := []struct {
		name   string
		opts   SendOptions
		called bool
	}{
		{"plain prompt consults the checker", SendOptions{Text: "hi"}, true},
		{"search toggle skips it", SendOptions{Text: "hi", SearchEnabled: true}, false},
		{"deep tier skips it", SendOptions{Text: "hi", Tier: types.TierDeep}, false},
		{"tutor mode skips it", SendOptions{Text: "hi", TutorMode: true}, false},
		{"attachments skip it", SendOptions{Text: "hi", Attachments: []string{"data:image/png;base64,aGk="}}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			intent := &fakeIntent{answer: true}
			h := newHarness(t, &fakeGen{script: echoScript}, func(d *Deps, c *Config) {
				d.Intent = intent
			})

			_, err := h.orch.Send(context.Background(), tc.opts)
			require.NoError(t, err)
			h.orch.Wait()

			if tc.called {
				assert.Equal(t, int32(1), intent.calls.Load())
			} else {
				assert.Zero(t, intent.calls.Load())
			}
		})
	}
}

func TestSearchingFlagClearsOnFirstText(t *testing.T) {
	sawSearching := make(chan struct{})
	gen := &fakeGen{}
	gen.script = func(req types.GenerateRequest, frags chan<- types.Fragment) error {
		<-sawSearching
		frags <- types.TextFragment{Text: "found it"}
		return nil
	}
	h := newHarness(t, gen)

	aiID, err := h.orch.Send(context.Background(), SendOptions{Text: "hi", SearchEnabled: true})
	require.NoError(t, err)

	waitFor(t, func() bool { return h.message(t, aiID).IsSearching })
	close(sawSearching)
	h.orch.Wait()

	msg := h.message(t, aiID)
	assert.False(t, msg.IsSearching)
	assert.Equal(t, "found it", msg.Content)

	reqs := gen.requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].UseRetrieval)
}

// =============================================================================
// SPEECH SIDE TASK
// =============================================================================

func TestSpeechPatchesAndRepersists(t *testing.T) {
	gen := &fakeGen{script: func(req types.GenerateRequest, frags chan<- types.Fragment) error {
		frags <- types.TextFragment{Text: "spoken answer"}
		return nil
	}}
	synth := &fakeSynth{}
	h := newHarness(t, gen, func(d *Deps, c *Config) { d.Speech = synth })

	aiID, err := h.orch.Send(context.Background(), SendOptions{Text: "hi"})
	require.NoError(t, err)
	h.orch.Wait()

	assert.Equal(t, int32(1), synth.calls.Load())
	assert.Equal(t, "audio:spoken answer", h.message(t, aiID).SpeechAudio)

	// Finalize save plus the audio re-save.
	assert.GreaterOrEqual(t, h.local.saveCount(), 2)
	saved, _ := h.local.saved(h.sess.ID)
	assert.Equal(t, "audio:spoken answer", saved.Messages[1].SpeechAudio)
}

func TestSpeechSkips(t *testing.T) {
	t.Run("todo card", func(t *testing.T) {
		gen := &fakeGen{script: func(req types.GenerateRequest, frags chan<- types.Fragment) error {
			frags <- types.TextFragment{Text: "Here you go :::todo {\"title\":\"Plan\"} :::"}
			return nil
		}}
		synth := &fakeSynth{}
		h := newHarness(t, gen, func(d *Deps, c *Config) { d.Speech = synth })

		_, err := h.orch.Send(context.Background(), SendOptions{Text: "make a list"})
		require.NoError(t, err)
		h.orch.Wait()
		assert.Zero(t, synth.calls.Load())
	})

	t.Run("reasoning-only content", func(t *testing.T) {
		gen := &fakeGen{script: func(req types.GenerateRequest, frags chan<- types.Fragment) error {
			frags <- types.ThoughtFragment{Text: "nothing to say"}
			return nil
		}}
		synth := &fakeSynth{}
		h := newHarness(t, gen, func(d *Deps, c *Config) { d.Speech = synth })

		_, err := h.orch.Send(context.Background(), SendOptions{Text: "hi"})
		require.NoError(t, err)
		h.orch.Wait()
		assert.Zero(t, synth.calls.Load())
	})

	t.Run("synthesis failure leaves message intact", func(t *testing.T) {
		gen := &fakeGen{script: echoScript}
		synth := &fakeSynth{err: errors.New("tts down")}
		h := newHarness(t, gen, func(d *Deps, c *Config) { d.Speech = synth })

		aiID, err := h.orch.Send(context.Background(), SendOptions{Text: "hi"})
		require.NoError(t, err)
		h.orch.Wait()

		msg := h.message(t, aiID)
		assert.Empty(t, msg.SpeechAudio)
		assert.False(t, msg.Error)
	})
}

// =============================================================================
// PERSISTENCE GATING
// =============================================================================

func TestIncognitoSkipsSinks(t *testing.T) {
	h := newHarness(t, &fakeGen{script: echoScript}, func(d *Deps, c *Config) {
		c.Incognito = true
	})

	_, err := h.orch.Send(context.Background(), SendOptions{Text: "hi"})
	require.NoError(t, err)
	h.orch.Wait()

	assert.Zero(t, h.local.saveCount())
	assert.Zero(t, h.cloud.messageCount())
}

func TestGuestSkipsCloudOnly(t *testing.T) {
	h := newHarness(t, &fakeGen{script: echoScript}, func(d *Deps, c *Config) {
		c.UserID = ""
	})

	_, err := h.orch.Send(context.Background(), SendOptions{Text: "hi"})
	require.NoError(t, err)
	h.orch.Wait()

	assert.GreaterOrEqual(t, h.local.saveCount(), 1)
	assert.Zero(t, h.cloud.messageCount())
}

// =============================================================================
// INSTANT ANSWER, REGENERATE, GREETING
// =============================================================================

func TestInstantAnswerReusesPlaceholder(t *testing.T) {
	gate := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	gen := &fakeGen{}
	gen.script = func(req types.GenerateRequest, frags chan<- types.Fragment) error {
		if req.Tier == types.TierFast {
			frags <- types.TextFragment{Text: "quick answer"}
			return nil
		}
		once.Do(func() { close(gate) })
		<-release
		return nil
	}
	h := newHarness(t, gen)

	slowID, err := h.orch.Send(context.Background(), SendOptions{Text: "question", Tier: types.TierSuper})
	require.NoError(t, err)
	<-gate

	fastID, err := h.orch.InstantAnswer(context.Background(), SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, slowID, fastID, "instant answer reuses the placeholder id")

	close(release)
	h.orch.Wait()

	msg := h.message(t, fastID)
	assert.Equal(t, "quick answer", msg.Content)
	assert.Equal(t, types.TierFast, msg.Tier)
	assert.False(t, msg.IsStreaming)

	// No extra turns were appended.
	sess, _ := h.store.Session(h.sess.ID)
	assert.Len(t, sess.Messages, 2)

	// The resent prompt is the original user text, not part of history.
	reqs := gen.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "question", reqs[1].Prompt)
	assert.Empty(t, reqs[1].History)
}

func TestRegenerateMatchesFreshSend(t *testing.T) {
	run := func(t *testing.T, regenerate bool) []types.Message {
		h := newHarness(t, &fakeGen{script: echoScript})
		ctx := context.Background()

		_, err := h.orch.Send(ctx, SendOptions{Text: "first question"})
		require.NoError(t, err)
		h.orch.Wait()

		aiID, err := h.orch.Send(ctx, SendOptions{Text: "second question"})
		require.NoError(t, err)
		h.orch.Wait()

		if regenerate {
			_, err = h.orch.Regenerate(ctx, aiID, SendOptions{})
			require.NoError(t, err)
			h.orch.Wait()
		}

		sess, _ := h.store.Session(h.sess.ID)
		return sess.Messages
	}

	fresh := run(t, false)
	regen := run(t, true)

	diff := cmp.Diff(fresh, regen, cmpopts.IgnoreFields(types.Message{}, "ID", "CreatedAt", "ThinkingDuration"))
	assert.Empty(t, diff, "regenerate must equal a fresh send of the same prompt")
}

func TestRegenerateWhileBusy(t *testing.T) {
	release := make(chan struct{})
	gen := &fakeGen{script: func(req types.GenerateRequest, frags chan<- types.Fragment) error {
		<-release
		return echoScript(req, frags)
	}}
	h := newHarness(t, gen)

	aiID, err := h.orch.Send(context.Background(), SendOptions{Text: "hi"})
	require.NoError(t, err)

	_, err = h.orch.Regenerate(context.Background(), aiID, SendOptions{})
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	h.orch.Wait()
}

func TestGreetingAppendsOnlyModelMessage(t *testing.T) {
	gen := &fakeGen{script: func(req types.GenerateRequest, frags chan<- types.Fragment) error {
		frags <- types.TextFragment{Text: "Hey! Rough day?"}
		return nil
	}}
	h := newHarness(t, gen)

	aiID, err := h.orch.Greet(context.Background(), SendOptions{SpecialMode: types.ModeStress})
	require.NoError(t, err)
	h.orch.Wait()

	sess, _ := h.store.Session(h.sess.ID)
	require.Len(t, sess.Messages, 1)
	assert.Equal(t, types.RoleModel, sess.Messages[0].Role)
	assert.Equal(t, aiID, sess.Messages[0].ID)
	assert.Equal(t, "Hey! Rough day?", sess.Messages[0].Content)

	reqs := gen.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, types.ModeStress, reqs[0].SpecialMode)
	assert.Empty(t, reqs[0].Prompt)
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

func TestBootstrapMergesCloud(t *testing.T) {
	h := newHarness(t, &fakeGen{script: echoScript})
	h.local.seed = []types.Session{
		{ID: "local-1", Title: "Local", CreatedAt: 100, Messages: []types.Message{
			{ID: "m1", Role: types.RoleUser, Content: "hi", IsStreaming: true},
		}},
	}
	h.cloud.remote = []types.Session{
		{ID: "local-1", Title: "Stale copy", CreatedAt: 100},
		{ID: "cloud-1", Title: "Remote", CreatedAt: 200},
	}

	require.NoError(t, h.orch.Bootstrap(context.Background()))

	// Bootstrap replaces the in-memory list with what the sinks hold.
	sessions := h.store.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "cloud-1", sessions[0].ID, "newest first")
	assert.Equal(t, "local-1", sessions[1].ID)
	assert.Equal(t, "Local", sessions[1].Title, "local copy wins over the cloud duplicate")
	assert.False(t, sessions[1].Messages[0].IsStreaming, "transient flags cleared on load")
	assert.Equal(t, "cloud-1", h.store.ActiveID())
}

func TestBootstrapToleratesLocalFailure(t *testing.T) {
	h := newHarness(t, &fakeGen{script: echoScript})
	h.local.loadErr = errors.New("disk corrupt")
	h.cloud.remote = []types.Session{
		{ID: "cloud-1", Title: "Remote", CreatedAt: 200},
	}

	// A broken local store must not block startup; the cloud copy (or an
	// empty list) is still better than refusing to run.
	require.NoError(t, h.orch.Bootstrap(context.Background()))

	sessions := h.store.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "cloud-1", sessions[0].ID)
	assert.Equal(t, "cloud-1", h.store.ActiveID())
}

func TestDeleteSessionRemovesEverywhere(t *testing.T) {
	h := newHarness(t, &fakeGen{script: echoScript})

	_, err := h.orch.Send(context.Background(), SendOptions{Text: "hi"})
	require.NoError(t, err)
	h.orch.Wait()

	require.True(t, h.orch.DeleteSession(context.Background(), h.sess.ID))

	_, ok := h.store.Session(h.sess.ID)
	assert.False(t, ok)
	assert.Contains(t, h.local.deletes, h.sess.ID)
	assert.Contains(t, h.cloud.deletes, h.sess.ID)

	assert.False(t, h.orch.DeleteSession(context.Background(), h.sess.ID))
}

func TestRenameSessionPersistsNonEmpty(t *testing.T) {
	h := newHarness(t, &fakeGen{script: echoScript})

	// Empty session: renamed in memory only.
	require.True(t, h.orch.RenameSession(context.Background(), h.sess.ID, "Notes"))
	assert.Zero(t, h.local.saveCount())

	_, err := h.orch.Send(context.Background(), SendOptions{Text: "hi"})
	require.NoError(t, err)
	h.orch.Wait()
	before := h.local.saveCount()

	require.True(t, h.orch.RenameSession(context.Background(), h.sess.ID, "Renamed"))
	assert.Greater(t, h.local.saveCount(), before)
	saved, _ := h.local.saved(h.sess.ID)
	assert.Equal(t, "Renamed", saved.Title)

	assert.False(t, h.orch.RenameSession(context.Background(), "nope", "x"))
}
