package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/liao/claim-assistant/internal/assistant"
	"github.com/liao/claim-assistant/internal/chat"
)

const sidebarWidth = 30

// Conversation 是 TUI 需要的编排器能力
type Conversation interface {
	Submit(ctx context.Context, text string) (assistant.Outcome, error)
	Select(index int) error
	NewChat() error
	Busy() bool
	State() *chat.State
}

// EventMsg 编排器事件，通过 Program.Send 投递
type EventMsg assistant.Event

type turnDoneMsg struct {
	out assistant.Outcome
	err error
}

// Forward 把编排器事件转发给正在运行的程序
func Forward(p *tea.Program) func(assistant.Event) {
	return func(e assistant.Event) { p.Send(EventMsg(e)) }
}

type Model struct {
	conv     Conversation
	ctx      context.Context
	input    textinput.Model
	viewport viewport.Model
	pending  bool
	status   string
	ready    bool
	width    int
}

func New(ctx context.Context, conv Conversation) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about insurance claims..."
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		conv:     conv,
		ctx:      ctx,
		input:    ti,
		viewport: vp,
		status:   "Enter to send, ctrl+t for a new chat, ctrl+n/ctrl+p to switch chats, ctrl+c to quit.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		_, th := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		tw, _ := transcriptStyle.GetFrameSize()
		m.viewport.Width = max(20, msg.Width-sidebarWidth-tw)
		m.viewport.Height = max(3, msg.Height-th-ih-2)
		m.input.Width = max(10, m.viewport.Width-2)
		m.refresh()
		return m, nil

	case EventMsg:
		m.refresh()
		return m, nil

	case turnDoneMsg:
		m.pending = false
		switch {
		case errors.Is(msg.err, assistant.ErrTurnInProgress):
			m.status = "Still answering the previous question."
		case msg.err != nil:
			m.status = "Error: " + msg.err.Error()
		case msg.out.Err != nil:
			m.status = "The last answer failed, you can ask again."
		default:
			m.status = "Ready."
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyCtrlT:
			if err := m.conv.NewChat(); err != nil {
				m.status = "Cannot start a new chat while answering."
				return m, nil
			}
			m.status = "New chat. Ask something to start it."
			m.refresh()
			return m, nil
		case tea.KeyCtrlN:
			m.selectRelative(1)
			return m, nil
		case tea.KeyCtrlP:
			m.selectRelative(-1)
			return m, nil
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			if m.pending {
				m.status = "Still answering the previous question."
				return m, nil
			}
			m.pending = true
			m.status = "Searching claims..."
			m.input.Reset()
			m.refresh()
			return m, m.submit(text)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(text string) tea.Cmd {
	conv, ctx := m.conv, m.ctx
	return func() tea.Msg {
		out, err := conv.Submit(ctx, text)
		return turnDoneMsg{out: out, err: err}
	}
}

func (m *Model) selectRelative(delta int) {
	sessions := m.conv.State().Sessions()
	if len(sessions) == 0 {
		return
	}
	cur, _ := m.conv.State().Active()
	next := (cur + delta + len(sessions)) % len(sessions)
	if err := m.conv.Select(next); err != nil {
		m.status = "Cannot switch chats while answering."
		return
	}
	m.status = fmt.Sprintf("Switched to %q.", sessions[next].Name)
	m.refresh()
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	sess, ok := m.conv.State().Current()
	if !ok {
		return helpStyle.Render("No active chat. Ask something to start one.")
	}

	var b strings.Builder
	for _, t := range sess.Turns {
		switch {
		case t.Role == chat.RoleUser:
			b.WriteString(userStyle.Render("You") + "\n" + t.Text + "\n\n")
		case t.Failed:
			b.WriteString(assistantStyle.Render("Assistant") + "\n" + failedStyle.Render(t.Text) + "\n\n")
		default:
			b.WriteString(assistantStyle.Render("Assistant") + "\n" + t.Text + "\n\n")
		}
	}
	if m.pending {
		b.WriteString(helpStyle.Render("Assistant is thinking..."))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderSidebar() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Chat History") + "\n")
	sessions := m.conv.State().Sessions()
	if len(sessions) == 0 {
		b.WriteString(helpStyle.Render("(empty)"))
	}
	for _, s := range sessions {
		line := truncate(s.Name, sidebarWidth-4)
		if s.Active {
			b.WriteString(activeStyle.Render("▸ "+line) + "\n")
		} else {
			b.WriteString("  " + line + "\n")
		}
	}
	return sidebarStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("Insurance Claim Assistant")
	main := lipgloss.JoinVertical(lipgloss.Left,
		transcriptStyle.Render(m.viewport.View()),
		inputStyle.Render(m.input.View()),
		statusStyle.Render(m.status),
	)
	return header + "\n" + lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), main)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true)
	sidebarStyle    = lipgloss.NewStyle().Width(sidebarWidth).Padding(0, 1).Border(lipgloss.NormalBorder(), false, true, false, false)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	helpStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	activeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	failedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)
