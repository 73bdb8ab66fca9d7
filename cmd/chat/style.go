package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Padding(0, 1)
	senderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	groupStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	systemStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	echoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type lineKind int

const (
	kindSystem lineKind = iota
	kindError
	kindDirect // "[alice]: text"
	kindGroup  // "[alice from team]: text"
)

// parsed is a classified server line.
type parsed struct {
	kind   lineKind
	sender string
	group  string
	text   string
}

func classify(line string) parsed {
	if strings.HasPrefix(line, "Error:") || line == "Authentication failed." || line == "Already Logged In!" {
		return parsed{kind: kindError, text: line}
	}
	if strings.HasPrefix(line, "[") {
		if end := strings.Index(line, "]: "); end > 0 {
			head, text := line[1:end], line[end+3:]
			if sender, group, ok := strings.Cut(head, " from "); ok {
				return parsed{kind: kindGroup, sender: sender, group: group, text: text}
			}
			if !strings.Contains(head, " ") {
				return parsed{kind: kindDirect, sender: head, text: text}
			}
		}
	}
	return parsed{kind: kindSystem, text: line}
}

func render(line string) string {
	p := classify(line)
	switch p.kind {
	case kindError:
		return errorStyle.Render(p.text)
	case kindDirect:
		return senderStyle.Render(p.sender) + ": " + p.text
	case kindGroup:
		return senderStyle.Render(p.sender) + " " + groupStyle.Render("#"+p.group) + ": " + p.text
	default:
		return systemStyle.Render(p.text)
	}
}

func renderEcho(line string) string {
	return echoStyle.Render("> " + line)
}

func renderLocal(line string) string {
	return systemStyle.Render("* " + line)
}
