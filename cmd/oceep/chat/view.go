package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/foxai-labs/oceep/internal/blocks"
	"github.com/foxai-labs/oceep/internal/types"
)

func (m *Model) View() string {
	if !m.ready {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.textarea.View())
	b.WriteString("\n")
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m *Model) renderHeader() string {
	title := "Oceep"
	if sess, ok := m.convo.Session(m.convo.ActiveID()); ok {
		title = sess.Title
	}

	search := m.styles.badge.Render("search:auto")
	if m.searchEnabled {
		search = m.styles.badgeOn.Render("search:on")
	}
	tutor := ""
	if m.tutorMode {
		tutor = "  " + m.styles.badgeOn.Render("tutor")
	}
	badges := fmt.Sprintf("%s  %s%s",
		m.styles.badge.Render("tier:"+string(m.tier)), search, tutor)

	left := m.styles.header.Render(title)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(badges)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + badges
}

func (m *Model) renderHelp() string {
	help := "enter send • ctrl+j newline • esc stop • ctrl+a instant • ctrl+r retry • ctrl+t tier • ctrl+s search • ctrl+n new • ctrl+c quit"
	if m.status != "" {
		return m.styles.status.Render(m.status) + "  " + m.styles.muted.Render(help)
	}
	return m.styles.muted.Render(help)
}

func (m *Model) renderTranscript() string {
	sess, ok := m.convo.Session(m.convo.ActiveID())
	if !ok || len(sess.Messages) == 0 {
		return m.styles.muted.Render("Say hi to start the conversation.")
	}

	var b strings.Builder
	for _, msg := range sess.Messages {
		switch msg.Role {
		case types.RoleUser:
			b.WriteString(m.styles.user.Render("You") + "\n")
			b.WriteString(m.styles.userText.Render(msg.Content))
			if len(msg.Attachments) > 0 {
				b.WriteString(m.styles.muted.Render(fmt.Sprintf("  [%d attachment(s)]", len(msg.Attachments))))
			}
			b.WriteString("\n\n")
		default:
			b.WriteString(m.renderModelMessage(msg))
		}
	}
	return b.String()
}

func (m *Model) renderModelMessage(msg types.Message) string {
	var b strings.Builder
	b.WriteString(m.styles.bot.Render("Oceep") + "\n")

	if msg.Error {
		b.WriteString(m.styles.errText.Render(msg.Content) + "\n\n")
		return b.String()
	}

	if msg.IsStreaming {
		if msg.IsSearching {
			b.WriteString(m.spinner.View() + m.styles.muted.Render(" searching the web...") + "\n")
		}
		// Show the raw growing text; markdown rendering waits for the
		// finalized message.
		ext := blocks.Extract(msg.Content, msg.Citations)
		if ext.Reasoning != "" {
			b.WriteString(m.styles.muted.Render("thinking: "+lastLine(ext.Reasoning)) + "\n")
		}
		if ext.Prose != "" {
			b.WriteString(ext.Prose)
		}
		b.WriteString(" " + m.spinner.View() + "\n\n")
		return b.String()
	}

	ext := blocks.Extract(msg.Content, msg.Citations)

	if msg.ThinkingDuration > 0 {
		b.WriteString(m.styles.muted.Render(fmt.Sprintf("Thought for %.0fs", msg.ThinkingDuration)) + "\n")
	}
	if ext.ExecutedCode != "" {
		b.WriteString(m.styles.card.Render(m.styles.cardHead.Render("Executed code") + "\n" + ext.ExecutedCode))
		b.WriteString("\n")
	}
	if ext.Prose != "" {
		b.WriteString(m.renderMarkdown(ext.Prose))
	}
	if cards := m.renderCards(ext.Cards); cards != "" {
		b.WriteString(cards)
	}
	if len(msg.Citations) > 0 {
		b.WriteString(m.styles.muted.Render(fmt.Sprintf("%d source(s)", len(msg.Citations))) + "\n")
	}
	if msg.SpeechAudio != "" {
		b.WriteString(m.styles.muted.Render("audio ready") + "\n")
	}
	b.WriteString("\n")
	return b.String()
}

// renderMarkdown renders with glamour, falling back to plain text. The
// renderer can panic on pathological input mid-stream.
func (m *Model) renderMarkdown(content string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = content + "\n"
		}
	}()
	if m.renderer == nil {
		return content + "\n"
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content + "\n"
	}
	return rendered
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	line := strings.TrimSpace(lines[len(lines)-1])
	if len(line) > 80 {
		line = line[:80] + "..."
	}
	return line
}
