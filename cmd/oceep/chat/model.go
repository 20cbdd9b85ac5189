// Package chat is the interactive TUI. It is a thin consumer of the
// pipeline: every mutation goes through the orchestrator, and the view
// re-renders from the conversation store on each update signal.
package chat

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/foxai-labs/oceep/internal/convo"
	"github.com/foxai-labs/oceep/internal/pipeline"
	"github.com/foxai-labs/oceep/internal/types"
)

const (
	inputHeight  = 3
	chromeHeight = inputHeight + 4 // header, borders, help line
)

// Options configures the chat UI.
type Options struct {
	Orchestrator  *pipeline.Orchestrator
	Conversations *convo.Store

	Tier      types.ModelTier
	Mood      types.Mood
	PersonaID string
	Nickname  string
}

// updateMsg signals that the conversation store changed.
type updateMsg struct{}

type styles struct {
	header   lipgloss.Style
	badge    lipgloss.Style
	badgeOn  lipgloss.Style
	user     lipgloss.Style
	userText lipgloss.Style
	bot      lipgloss.Style
	muted    lipgloss.Style
	errText  lipgloss.Style
	card     lipgloss.Style
	cardHead lipgloss.Style
	status   lipgloss.Style
}

func newStyles() styles {
	return styles{
		header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		badge:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		badgeOn:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		user:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		userText: lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		bot:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true),
		errText:  lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1),
		cardHead: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")),
		status:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
}

// Model is the bubbletea model for the chat screen.
type Model struct {
	orch  *pipeline.Orchestrator
	convo *convo.Store
	opts  Options

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	styles   styles

	updates chan struct{}
	width   int
	height  int
	ready   bool

	tier          types.ModelTier
	mood          types.Mood
	searchEnabled bool
	tutorMode     bool
	status        string
}

func newModel(opts Options) *Model {
	ta := textarea.New()
	ta.Placeholder = "Message Oceep..."
	ta.Prompt = "┃ "
	ta.CharLimit = 0
	ta.SetHeight(inputHeight)
	ta.ShowLineNumbers = false
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))

	tier := opts.Tier
	if !types.ValidTier(tier) {
		tier = types.TierSmart
	}
	mood := opts.Mood
	if mood == "" {
		mood = types.MoodDefault
	}

	return &Model{
		orch:     opts.Orchestrator,
		convo:    opts.Conversations,
		opts:     opts,
		textarea: ta,
		spinner:  sp,
		styles:   newStyles(),
		updates:  make(chan struct{}, 1),
		tier:     tier,
		mood:     mood,
	}
}

// Run starts the TUI and blocks until the user quits.
func Run(opts Options) error {
	m := newModel(opts)
	opts.Orchestrator.SetOnUpdate(func() {
		select {
		case m.updates <- struct{}{}:
		default: // a redraw is already pending
		}
	})

	if opts.Conversations.ActiveID() == "" {
		opts.Orchestrator.NewSession(opts.PersonaID)
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	opts.Orchestrator.Stop()
	opts.Orchestrator.Wait()
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, waitForUpdate(m.updates))
}

func waitForUpdate(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return updateMsg{}
	}
}
