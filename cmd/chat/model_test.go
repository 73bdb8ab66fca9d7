package main

import (
	"errors"
	"sync"
	"testing"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (s *recordingSender) Send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		want parsed
	}{
		{"[alice]: hi there", parsed{kind: kindDirect, sender: "alice", text: "hi there"}},
		{"[bob from team]: hello", parsed{kind: kindGroup, sender: "bob", group: "team", text: "hello"}},
		{"[bob]: [nested]: text", parsed{kind: kindDirect, sender: "bob", text: "[nested]: text"}},
		{"Error: user not found.", parsed{kind: kindError, text: "Error: user not found."}},
		{"Already Logged In!", parsed{kind: kindError, text: "Already Logged In!"}},
		{"alice has joined the chat.", parsed{kind: kindSystem, text: "alice has joined the chat."}},
		{"[not a message", parsed{kind: kindSystem, text: "[not a message"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, classify(tt.line), cmp.AllowUnexported(parsed{})); diff != "" {
			t.Errorf("classify(%q) mismatch (-want +got):\n%s", tt.line, diff)
		}
	}
}

// typeAndEnter feeds text into the model and presses enter, running the
// resulting command the way the bubbletea runtime would.
func typeAndEnter(t *testing.T, m *model, text string) tea.Msg {
	t.Helper()
	m.input.SetValue(text)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if c == nil {
				continue
			}
			if out := c(); out != nil {
				if _, isErr := out.(sendErrMsg); isErr {
					return out
				}
			}
		}
		return nil
	}
	return msg
}

func TestLoginFlow(t *testing.T) {
	conn := &recordingSender{}
	m := newModel("localhost:12345", conn)
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	var saved string
	m.onLogin = func(username string) { saved = username }

	m.Update(serverMsg(promptUsername))
	typeAndEnter(t, m, "alice")
	m.Update(serverMsg(promptPassword))
	if m.input.EchoMode != textinput.EchoPassword {
		t.Fatal("password prompt did not mask input")
	}
	typeAndEnter(t, m, "pw1")
	if m.input.EchoMode != textinput.EchoNormal {
		t.Fatal("echo mode not restored after password")
	}
	m.Update(serverMsg(welcome))

	if diff := cmp.Diff([]string{"alice", "pw1"}, conn.sent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
	if !m.loggedIn || saved != "alice" {
		t.Errorf("loggedIn = %v, saved = %q", m.loggedIn, saved)
	}
	for _, line := range m.lines {
		if line == renderEcho("pw1") {
			t.Error("password echoed in clear text")
		}
	}
}

func TestEmptyInputIsNotSent(t *testing.T) {
	conn := &recordingSender{}
	m := newModel("localhost:12345", conn)

	typeAndEnter(t, m, "   ")
	if len(conn.sent) != 0 {
		t.Errorf("sent %v, want nothing", conn.sent)
	}
}

func TestSendFailureIsReported(t *testing.T) {
	conn := &recordingSender{err: errors.New("broken pipe")}
	m := newModel("localhost:12345", conn)

	msg := typeAndEnter(t, m, "/users")
	if _, ok := msg.(sendErrMsg); !ok {
		t.Fatalf("got %T, want sendErrMsg", msg)
	}
}

func TestDisconnectBlocksInput(t *testing.T) {
	conn := &recordingSender{}
	m := newModel("localhost:12345", conn)
	m.Update(disconnectedMsg{})

	typeAndEnter(t, m, "/users")
	if len(conn.sent) != 0 {
		t.Errorf("sent %v after disconnect", conn.sent)
	}
	if !m.closed {
		t.Error("model not marked closed")
	}
}

func TestQuitSendsExit(t *testing.T) {
	conn := &recordingSender{}
	m := newModel("localhost:12345", conn)
	m.Update(serverMsg(welcome))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("no quit command")
	}
	if diff := cmp.Diff([]string{"/exit"}, conn.sent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
}
