package chat

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/foxai-labs/oceep/internal/logging"
	"github.com/foxai-labs/oceep/internal/pipeline"
	"github.com/foxai-labs/oceep/internal/types"
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-chromeHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - chromeHeight
		}
		m.textarea.SetWidth(msg.Width - 2)
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(msg.Width-4),
		)
		m.refresh(true)
		return m, nil

	case updateMsg:
		m.refresh(true)
		return m, waitForUpdate(m.updates)

	case spinner.TickMsg:
		if m.orch.Busy() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			m.refresh(false)
			return m, cmd
		}
		return m, m.spinner.Tick

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		return tea.Quit, true

	case "esc":
		if m.orch.Busy() {
			m.orch.Stop()
			m.status = "stopped"
			m.refresh(true)
		}
		return nil, true

	case "enter":
		m.send()
		return nil, true

	case "ctrl+j":
		// Newline without sending.
		m.textarea.InsertString("\n")
		return nil, true

	case "ctrl+n":
		m.orch.NewSession(m.opts.PersonaID)
		m.status = "new chat"
		m.refresh(true)
		return nil, true

	case "ctrl+a":
		if !m.orch.Busy() {
			m.status = "nothing to answer instantly"
			return nil, true
		}
		if _, err := m.orch.InstantAnswer(context.Background(), m.sendOptions("")); err != nil {
			m.status = err.Error()
		} else {
			m.status = "answering instantly"
		}
		return nil, true

	case "ctrl+r":
		m.regenerateLast()
		return nil, true

	case "ctrl+s":
		m.searchEnabled = !m.searchEnabled
		return nil, true

	case "ctrl+l":
		m.tutorMode = !m.tutorMode
		return nil, true

	case "ctrl+t":
		m.tier = nextTier(m.tier)
		return nil, true
	}
	return nil, false
}

func nextTier(t types.ModelTier) types.ModelTier {
	switch t {
	case types.TierFast:
		return types.TierSmart
	case types.TierSmart:
		return types.TierSuper
	case types.TierSuper:
		return types.TierDeep
	default:
		return types.TierFast
	}
}

func (m *Model) sendOptions(text string) pipeline.SendOptions {
	return pipeline.SendOptions{
		SessionID:     m.convo.ActiveID(),
		Text:          text,
		Tier:          m.tier,
		Mood:          m.mood,
		TutorMode:     m.tutorMode,
		SearchEnabled: m.searchEnabled,
		PersonaID:     m.opts.PersonaID,
	}
}

func (m *Model) send() {
	text := strings.TrimSpace(m.textarea.Value())
	if text == "" {
		return
	}
	if _, err := m.orch.Send(context.Background(), m.sendOptions(text)); err != nil {
		m.status = err.Error()
		return
	}
	m.status = ""
	m.textarea.Reset()
	m.refresh(true)
}

// regenerateLast retries the most recent model answer.
func (m *Model) regenerateLast() {
	sess, ok := m.convo.Session(m.convo.ActiveID())
	if !ok {
		return
	}
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		if sess.Messages[i].Role != types.RoleModel {
			continue
		}
		if _, err := m.orch.Regenerate(context.Background(), sess.Messages[i].ID, m.sendOptions("")); err != nil {
			m.status = err.Error()
		} else {
			m.status = "regenerating"
		}
		return
	}
	m.status = "nothing to regenerate"
}

// refresh re-renders the transcript into the viewport.
func (m *Model) refresh(toBottom bool) {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	if toBottom {
		m.viewport.GotoBottom()
	}
	logging.UIDebug("transcript refreshed (bottom=%v)", toBottom)
}
