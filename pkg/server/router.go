package server

import (
	"fmt"
	"log/slog"

	"github.com/NicolasHaas/groupchat/pkg/model"
)

// Router delivers messages to sessions. Recipient lists are copied out of
// the registries first; every send happens with no registry lock held.
// Delivery is best effort: a failed send to one recipient is logged and
// counted, and the remaining recipients are still attempted.
type Router struct {
	sessions   *SessionRegistry
	groups     *GroupRegistry
	metrics    *Metrics
	maxMessage int
}

// NewRouter creates a router. maxMessage <= 0 disables the size check.
func NewRouter(sessions *SessionRegistry, groups *GroupRegistry, metrics *Metrics, maxMessage int) *Router {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Router{
		sessions:   sessions,
		groups:     groups,
		metrics:    metrics,
		maxMessage: maxMessage,
	}
}

// Broadcast sends text to every session except exclude and returns how many
// sends succeeded.
func (r *Router) Broadcast(text string, exclude ConnID) int {
	sent := 0
	for _, sess := range r.sessions.All() {
		if sess.ID == exclude {
			continue
		}
		if r.deliver(sess, text) {
			sent++
		}
	}
	return sent
}

// BroadcastFrom relays a /broadcast from sender to every other session.
func (r *Router) BroadcastFrom(sender ConnID, text string) error {
	from, err := r.sessions.Username(sender)
	if err != nil {
		return err
	}
	msg, err := r.format(fmt.Sprintf("[%s]: %s", from, text))
	if err != nil {
		return err
	}
	r.metrics.BroadcastMessages.Add(1)
	r.Broadcast(msg, sender)
	return nil
}

// Direct sends text from sender to the session logged in as recipient.
func (r *Router) Direct(sender ConnID, recipient, text string) error {
	from, err := r.sessions.Username(sender)
	if err != nil {
		return err
	}
	to, ok := r.sessions.ByUsername(recipient)
	if !ok {
		return model.ErrRecipientNotFound
	}
	msg, err := r.format(fmt.Sprintf("[%s]: %s", from, text))
	if err != nil {
		return err
	}
	r.metrics.DirectMessages.Add(1)
	r.deliver(to, msg)
	return nil
}

// ToGroup sends text from sender to every other member of group.
func (r *Router) ToGroup(sender ConnID, group, text string) error {
	from, err := r.sessions.Username(sender)
	if err != nil {
		return err
	}
	ids, err := r.groups.Recipients(group, sender)
	if err != nil {
		return err
	}
	msg, err := r.format(fmt.Sprintf("[%s from %s]: %s", from, group, text))
	if err != nil {
		return err
	}
	r.metrics.GroupMessages.Add(1)
	r.Notify(ids, msg)
	return nil
}

// Notify sends text to each of ids that still has a session and returns how
// many sends succeeded.
func (r *Router) Notify(ids []ConnID, text string) int {
	sent := 0
	for _, sess := range r.sessions.Lookup(ids) {
		if r.deliver(sess, text) {
			sent++
		}
	}
	return sent
}

func (r *Router) format(msg string) (string, error) {
	if r.maxMessage > 0 && len(msg) > r.maxMessage {
		return "", model.ErrMessageTooLarge
	}
	return msg, nil
}

func (r *Router) deliver(sess Session, text string) bool {
	if sess.Conn == nil {
		return false
	}
	if err := sess.Conn.Send(text); err != nil {
		r.metrics.DeliveryFailures.Add(1)
		slog.Debug("delivery failed", "user", sess.Username, "conn", sess.ID, "err", err)
		return false
	}
	r.metrics.Deliveries.Add(1)
	return true
}
