// Package tui is an interactive terminal chat with the bot.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/iammorganparry/clive/apps/learnbot/internal/client"
	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
)

// Chatter is the part of client.Client the chat uses.
type Chatter interface {
	Respond(ctx context.Context, req *models.RespondRequest) (*models.RespondResponse, error)
	Learn(ctx context.Context, req *models.LearnRequest) (*models.LearnResponse, error)
	Latest(ctx context.Context, conversation string, p client.LatestParams) (*models.Statement, error)
	Stats(ctx context.Context) (*models.StatsResponse, error)
}

type lineKind int

const (
	lineUser lineKind = iota
	lineBot
	lineSystem
	lineError
)

type line struct {
	kind       lineKind
	text       string
	confidence float64
	isNew      bool
}

// Messages
type (
	replyMsg struct {
		resp *models.RespondResponse
		err  error
	}
	systemMsg struct {
		text string
		err  error
	}
)

var commands = []struct {
	cmd  string
	desc string
}{
	{"/teach <reply>", "Teach a better reply to your last message"},
	{"/latest", "Show the bot's latest reply in this conversation"},
	{"/stats", "Show corpus size and adapters"},
	{"/clear", "Clear output"},
	{"/help", "Show help"},
}

// Model is the chat screen
type Model struct {
	api          Chatter
	conversation string
	persona      string
	timeout      time.Duration

	input    textinput.Model
	viewport viewport.Model
	keys     KeyMap

	lines     []line
	lastInput string
	waiting   bool
	ready     bool
	width     int
	height    int
}

// NewModel creates a chat bound to conversation.
func NewModel(api Chatter, conversation, persona string) Model {
	ti := textinput.New()
	ti.Placeholder = "Say something, or /help"
	ti.Prompt = "❯ "
	ti.PromptStyle = InputPromptStyle
	ti.CharLimit = 0
	ti.Width = 80
	ti.Focus()

	return Model{
		api:          api,
		conversation: conversation,
		persona:      persona,
		timeout:      30 * time.Second,
		input:        ti,
		viewport:     viewport.New(80, 20),
		keys:         DefaultKeyMap(),
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) respondCmd(text string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		resp, err := m.api.Respond(ctx, &models.RespondRequest{
			Text:         text,
			Conversation: m.conversation,
			Persona:      m.persona,
		})
		return replyMsg{resp: resp, err: err}
	}
}

func (m Model) teachCmd(reply, prompt string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		resp, err := m.api.Learn(ctx, &models.LearnRequest{
			Text:         reply,
			InResponseTo: prompt,
			Conversation: m.conversation,
			Persona:      m.persona,
		})
		if err != nil {
			return systemMsg{err: err}
		}
		if resp.Skipped {
			return systemMsg{text: "Nothing learned."}
		}
		return systemMsg{text: fmt.Sprintf("Learned %q as a reply to %q.", reply, prompt)}
	}
}

func (m Model) latestCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		s, err := m.api.Latest(ctx, m.conversation, client.LatestParams{FromBot: true})
		if errors.Is(err, client.ErrNotFound) {
			return systemMsg{text: "No reply yet in this conversation."}
		}
		if err != nil {
			return systemMsg{err: err}
		}
		return systemMsg{text: fmt.Sprintf("Latest: %q (in response to %q)", s.Text, s.InResponseTo)}
	}
}

func (m Model) statsCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		s, err := m.api.Stats(ctx)
		if err != nil {
			return systemMsg{err: err}
		}
		mode := "learning"
		if s.ReadOnly {
			mode = "read-only"
		}
		return systemMsg{text: fmt.Sprintf("%s: %d statements, %s, adapters %s",
			s.BotName, s.Statements, mode, strings.Join(s.Adapters, ", "))}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		// header (1), input box (3), status bar (1), output borders (2)
		m.viewport.Width = max(m.width-4, 10)
		m.viewport.Height = max(m.height-7, 1)
		m.input.Width = max(m.width-8, 10)
		m.refresh()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Clear):
			m.lines = nil
			m.refresh()
			return m, nil
		case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case key.Matches(msg, m.keys.Send):
			text := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if text == "" || m.waiting {
				return m, nil
			}
			cmd := m.submit(text)
			m.refresh()
			return m, cmd
		}

	case replyMsg:
		m.waiting = false
		if msg.err != nil {
			m.lines = append(m.lines, line{kind: lineError, text: msg.err.Error()})
		} else {
			m.lines = append(m.lines, line{
				kind:       lineBot,
				text:       msg.resp.Text,
				confidence: msg.resp.Confidence,
				isNew:      hasTag(msg.resp.Tags, models.TagNewResponse),
			})
		}
		m.refresh()

	case systemMsg:
		m.waiting = false
		if msg.err != nil {
			m.lines = append(m.lines, line{kind: lineError, text: msg.err.Error()})
		} else {
			m.lines = append(m.lines, line{kind: lineSystem, text: msg.text})
		}
		m.refresh()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit handles one line of input. m is updated in place.
func (m *Model) submit(text string) tea.Cmd {
	if !strings.HasPrefix(text, "/") {
		m.lines = append(m.lines, line{kind: lineUser, text: text})
		m.lastInput = text
		m.waiting = true
		return m.respondCmd(text)
	}

	name, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/teach":
		if arg == "" || m.lastInput == "" {
			m.lines = append(m.lines, line{kind: lineError, text: "usage: /teach <reply>, after saying something"})
			return nil
		}
		m.waiting = true
		return m.teachCmd(arg, m.lastInput)
	case "/latest":
		m.waiting = true
		return m.latestCmd()
	case "/stats":
		m.waiting = true
		return m.statsCmd()
	case "/clear":
		m.lines = nil
		return nil
	case "/help":
		var b strings.Builder
		for i, c := range commands {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(HelpKeyStyle.Render(c.cmd) + "  " + HelpDescStyle.Render(c.desc))
		}
		m.lines = append(m.lines, line{kind: lineSystem, text: b.String()})
		return nil
	}
	m.lines = append(m.lines, line{kind: lineError, text: "unknown command " + name})
	return nil
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderLines())
	m.viewport.GotoBottom()
}

func (m Model) renderLines() string {
	out := make([]string, 0, len(m.lines))
	for _, l := range m.lines {
		switch l.kind {
		case lineUser:
			out = append(out, UserStyle.Render(UserTextStyle.Render(l.text)))
		case lineBot:
			meta := fmt.Sprintf(" (%.2f)", l.confidence)
			if l.isNew {
				meta += WarningStyle.Render(" new")
			}
			out = append(out, BotStyle.Render(l.text+ConfidenceStyle.Render(meta)))
		case lineSystem:
			out = append(out, SystemStyle.Render(SystemTextStyle.Render(l.text)))
		case lineError:
			out = append(out, SystemStyle.Render(ErrorStyle.Render("error: "+l.text)))
		}
	}
	return strings.Join(out, "\n")
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := HeaderStyle.Render("learnbot") + StatusBarStyle.Render("conversation "+m.conversation)
	output := OutputStyle.Width(m.width - 2).Render(m.viewport.View())
	input := InputStyle.Width(m.width - 2).Render(m.input.View())

	status := "ready"
	if m.waiting {
		status = StatusRunningStyle.Render("thinking…")
	}
	var help []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		help = append(help, HelpKeyStyle.Render(h.Key)+" "+h.Desc)
	}
	bar := StatusBarStyle.Render(status + "  " + strings.Join(help, "  "))

	return lipgloss.JoinVertical(lipgloss.Left, header, output, input, bar)
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
