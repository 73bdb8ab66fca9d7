package server

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/NicolasHaas/groupchat/pkg/model"
)

// command is one entry of the post-login command surface.
type command struct {
	usage string
	help  string
	run   func(h *connHandler, args string) error
}

// commands is keyed by the leading token of a line. /exit is handled by
// dispatch directly since it ends the session.
var commands map[string]command

func init() {
	commands = map[string]command{
		"/msg": {
			usage: "/msg <user> <message>",
			help:  "send a private message",
			run:   (*connHandler).cmdDirect,
		},
		"/broadcast": {
			usage: "/broadcast <message>",
			help:  "send a message to everyone online",
			run:   (*connHandler).cmdBroadcast,
		},
		"/create_group": {
			usage: "/create_group <group>",
			help:  "create a group and join it",
			run:   (*connHandler).cmdCreateGroup,
		},
		"/join_group": {
			usage: "/join_group <group>",
			help:  "join an existing group",
			run:   (*connHandler).cmdJoinGroup,
		},
		"/leave_group": {
			usage: "/leave_group <group>",
			help:  "leave a group",
			run:   (*connHandler).cmdLeaveGroup,
		},
		"/group_msg": {
			usage: "/group_msg <group> <message>",
			help:  "send a message to a group",
			run:   (*connHandler).cmdGroupMessage,
		},
		"/users": {
			usage: "/users",
			help:  "list online users",
			run:   (*connHandler).cmdUsers,
		},
		"/groups": {
			usage: "/groups",
			help:  "list your groups",
			run:   (*connHandler).cmdGroups,
		},
		"/help": {
			usage: "/help",
			help:  "show this help",
			run:   (*connHandler).cmdHelp,
		},
	}
}

// dispatch runs one command line and reports whether the session should end.
func (h *connHandler) dispatch(line string) bool {
	name, args := splitArg(line)
	if name == "/exit" {
		slog.Debug("client exit", "user", h.username, "conn", h.id)
		return true
	}

	cmd, ok := commands[name]
	if !ok {
		h.srv.metrics.InvalidCommands.Add(1)
		h.reply(replyInvalidCommand)
		return false
	}
	if err := cmd.run(h, args); err != nil {
		h.replyError(cmd, err)
	}
	return false
}

// groupError carries the group name a failure refers to.
type groupError struct {
	group string
	err   error
}

func (e *groupError) Error() string { return fmt.Sprintf("group %q: %v", e.group, e.err) }
func (e *groupError) Unwrap() error { return e.err }

func withGroup(group string, err error) error {
	if err == nil {
		return nil
	}
	return &groupError{group: group, err: err}
}

// replyError turns a command failure into the single reply the client sees.
func (h *connHandler) replyError(cmd command, err error) {
	var group string
	var ge *groupError
	if errors.As(err, &ge) {
		group = ge.group
	}

	if !model.IsUserError(err) {
		slog.Error("command failed", "user", h.username, "conn", h.id, "err", err)
		h.reply(replyInternal)
		return
	}

	switch {
	case errors.Is(err, model.ErrEmptyArgument):
		h.reply("Error: usage: " + cmd.usage)
	case errors.Is(err, model.ErrRecipientNotFound):
		h.reply(replyUserNotFound)
	case errors.Is(err, model.ErrGroupExists):
		h.reply(fmt.Sprintf("Error: group %s already exists.", group))
	case errors.Is(err, model.ErrGroupNotFound):
		h.reply(fmt.Sprintf("Error: group %s does not exist.", group))
	case errors.Is(err, model.ErrAlreadyMember):
		h.reply(fmt.Sprintf("Error: you are already a member of %s.", group))
	case errors.Is(err, model.ErrNotMember):
		h.reply(fmt.Sprintf("Error: you are not a member of %s.", group))
	case errors.Is(err, model.ErrGroupNameTooLong), errors.Is(err, model.ErrGroupNameInvalid):
		h.reply(fmt.Sprintf("Error: %v.", errors.Unwrap(err)))
	case errors.Is(err, model.ErrMessageTooLarge):
		h.srv.metrics.OversizeMessages.Add(1)
		h.reply(replyTooLarge)
	default:
		h.reply(fmt.Sprintf("Error: %v.", err))
	}
}

func (h *connHandler) cmdDirect(args string) error {
	to, text := splitArg(args)
	if to == "" || text == "" {
		return model.ErrEmptyArgument
	}
	return h.srv.router.Direct(h.id, to, text)
}

func (h *connHandler) cmdBroadcast(args string) error {
	text := strings.TrimSpace(args)
	if text == "" {
		return model.ErrEmptyArgument
	}
	return h.srv.router.BroadcastFrom(h.id, text)
}

func (h *connHandler) cmdCreateGroup(args string) error {
	name := strings.TrimSpace(args)
	if err := model.ValidateGroupName(name); err != nil {
		return withGroup(name, err)
	}
	if err := h.srv.groups.Create(name, h.id); err != nil {
		return withGroup(name, err)
	}
	slog.Info("group created", "group", name, "user", h.username)
	h.reply(fmt.Sprintf("Group %s created.", name))
	return nil
}

func (h *connHandler) cmdJoinGroup(args string) error {
	name := strings.TrimSpace(args)
	if name == "" {
		return model.ErrEmptyArgument
	}
	members, err := h.srv.groups.Join(name, h.id)
	if err != nil {
		return withGroup(name, err)
	}
	h.reply(fmt.Sprintf("You joined the group %s.", name))

	others := make([]ConnID, 0, len(members))
	for _, id := range members {
		if id != h.id {
			others = append(others, id)
		}
	}
	h.srv.router.Notify(others, fmt.Sprintf("%s has joined the group %s.", h.username, name))
	return nil
}

func (h *connHandler) cmdLeaveGroup(args string) error {
	name := strings.TrimSpace(args)
	if name == "" {
		return model.ErrEmptyArgument
	}
	remaining, err := h.srv.groups.Leave(name, h.id)
	if err != nil {
		return withGroup(name, err)
	}
	h.reply(fmt.Sprintf("You left the group %s.", name))
	h.srv.router.Notify(remaining, fmt.Sprintf("%s has left the group %s.", h.username, name))
	return nil
}

func (h *connHandler) cmdGroupMessage(args string) error {
	name, text := splitArg(args)
	if name == "" || text == "" {
		return model.ErrEmptyArgument
	}
	return withGroup(name, h.srv.router.ToGroup(h.id, name, text))
}

func (h *connHandler) cmdUsers(string) error {
	h.reply(fitList("Online users: ", h.srv.sessions.Usernames(), h.srv.cfg.MaxMessageSize))
	return nil
}

func (h *connHandler) cmdGroups(string) error {
	groups := h.srv.groups.GroupsOf(h.id)
	if len(groups) == 0 {
		h.reply("You are not in any group.")
		return nil
	}
	h.reply(fitList("Your groups: ", groups, h.srv.cfg.MaxMessageSize))
	return nil
}

func (h *connHandler) cmdHelp(string) error {
	names := []string{"/msg", "/broadcast", "/create_group", "/join_group", "/leave_group", "/group_msg", "/users", "/groups", "/help"}
	var b strings.Builder
	b.WriteString("Commands:")
	for _, name := range names {
		cmd := commands[name]
		fmt.Fprintf(&b, "\n  %-30s %s", cmd.usage, cmd.help)
	}
	b.WriteString("\n  /exit                          disconnect")
	h.reply(b.String())
	return nil
}

// listMore marks a list cut short by fitList.
const listMore = "…"

// fitList joins items after prefix, dropping trailing items so the result
// stays within limit bytes. A cut list ends with an ellipsis. limit <= 0
// means no limit.
func fitList(prefix string, items []string, limit int) string {
	full := prefix + strings.Join(items, ", ")
	if limit <= 0 || len(full) <= limit {
		return full
	}

	var b strings.Builder
	b.WriteString(prefix)
	for i, item := range items {
		sep := ""
		if i > 0 {
			sep = ", "
		}
		if b.Len()+len(sep)+len(item)+len(", "+listMore) > limit {
			break
		}
		b.WriteString(sep)
		b.WriteString(item)
	}
	if b.Len() == len(prefix) {
		return prefix + listMore
	}
	return b.String() + ", " + listMore
}

// splitArg returns the first whitespace-delimited token of s and the
// trimmed rest.
func splitArg(s string) (first, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}
