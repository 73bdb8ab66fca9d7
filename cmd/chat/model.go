package main

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// Server texts the client reacts to.
const (
	promptUsername = "Enter username: "
	promptPassword = "Enter password: "
	welcome        = "Welcome to the chat server!"
)

type (
	serverMsg       string
	disconnectedMsg struct{ err error }
	sendErrMsg      struct{ err error }
)

// sender is the part of client.Client the model needs.
type sender interface {
	Send(msg string) error
}

type model struct {
	addr   string
	conn   sender
	input  textinput.Model
	view   viewport.Model
	ready  bool
	lines  []string
	closed bool

	awaiting string // prompt the next input answers
	username string
	loggedIn bool
	onLogin  func(username string)
	width    int
	quitting bool
}

func newModel(addr string, conn sender) *model {
	ti := textinput.New()
	ti.Placeholder = "waiting for server..."
	ti.Prompt = "> "
	ti.CharLimit = 0
	ti.Focus()

	return &model{
		addr:  addr,
		conn:  conn,
		input: ti,
	}
}

func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			if m.loggedIn && !m.closed {
				_ = m.conn.Send("/exit")
			}
			return m, tea.Quit
		case tea.KeyEnter:
			if cmd := m.submit(); cmd != nil {
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := msg.Height - 3 // header + input
		if height < 1 {
			height = 1
		}
		if !m.ready {
			m.view = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.view.Width = msg.Width
			m.view.Height = height
		}
		m.input.Width = msg.Width - 4
		m.refresh()

	case serverMsg:
		m.receive(string(msg))

	case sendErrMsg:
		m.appendLine(renderLocal("send failed: " + msg.err.Error()))

	case disconnectedMsg:
		m.closed = true
		m.input.Blur()
		m.input.Placeholder = "disconnected (Esc to quit)"
		m.appendLine(renderLocal("connection closed"))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if m.ready {
		m.view, cmd = m.view.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// submit sends the current input. Empty lines are never sent since the
// server treats an empty message as a disconnect.
func (m *model) submit() tea.Cmd {
	line := m.input.Value()
	if strings.TrimSpace(line) == "" || m.closed {
		return nil
	}
	m.input.Reset()

	switch m.awaiting {
	case promptUsername:
		m.username = strings.TrimSpace(line)
		m.appendLine(renderEcho(line))
	case promptPassword:
		m.input.EchoMode = textinput.EchoNormal
		m.appendLine(renderEcho(strings.Repeat("*", len(line))))
	default:
		m.appendLine(renderEcho(line))
	}
	m.awaiting = ""

	conn := m.conn
	return func() tea.Msg {
		if err := conn.Send(line); err != nil {
			return sendErrMsg{err: err}
		}
		return nil
	}
}

func (m *model) receive(text string) {
	switch text {
	case promptUsername:
		m.awaiting = text
		m.input.Placeholder = "username"
	case promptPassword:
		m.awaiting = text
		m.input.Placeholder = "password"
		m.input.EchoMode = textinput.EchoPassword
	case welcome:
		m.loggedIn = true
		m.input.Placeholder = "message or /help"
		if m.onLogin != nil && m.username != "" {
			m.onLogin(m.username)
		}
	}
	m.appendLine(render(text))
}

func (m *model) appendLine(line string) {
	m.lines = append(m.lines, line)
	m.refresh()
}

func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.view.SetContent(strings.Join(m.lines, "\n"))
	m.view.GotoBottom()
}

func (m *model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "connecting to " + m.addr + "..."
	}
	status := "not logged in"
	if m.loggedIn {
		status = m.username
	}
	if m.closed {
		status = "disconnected"
	}
	header := headerStyle.Width(m.width).Render("groupchat  " + m.addr + "  " + status)
	return header + "\n" + m.view.View() + "\n" + m.input.View()
}
