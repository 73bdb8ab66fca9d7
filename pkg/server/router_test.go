package server

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/NicolasHaas/groupchat/pkg/model"
)

type routerFixture struct {
	router   *Router
	sessions *SessionRegistry
	groups   *GroupRegistry
	metrics  *Metrics
	ids      map[string]ConnID
	conns    map[string]*fakeConn
}

func newRouterFixture(t *testing.T, maxMessage int, users ...string) *routerFixture {
	t.Helper()
	f := &routerFixture{
		sessions: NewSessionRegistry(),
		groups:   NewGroupRegistry(),
		metrics:  NewMetrics(),
		ids:      make(map[string]ConnID),
		conns:    make(map[string]*fakeConn),
	}
	f.router = NewRouter(f.sessions, f.groups, f.metrics, maxMessage)
	for _, u := range users {
		id := NewConnID()
		conn := newFakeConn(u)
		registerActive(t, f.sessions, id, u, conn)
		f.ids[u] = id
		f.conns[u] = conn
	}
	return f
}

func TestRouterBroadcast(t *testing.T) {
	f := newRouterFixture(t, 1024, "alice", "bob", "carol")

	if n := f.router.Broadcast("alice has joined the chat.", f.ids["alice"]); n != 2 {
		t.Errorf("Broadcast delivered %d, want 2", n)
	}
	if got := f.conns["alice"].messages(); len(got) != 0 {
		t.Errorf("excluded sender received %v", got)
	}
	for _, u := range []string{"bob", "carol"} {
		if diff := cmp.Diff([]string{"alice has joined the chat."}, f.conns[u].messages()); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", u, diff)
		}
	}
}

func TestRouterBroadcastSurvivesBrokenPeer(t *testing.T) {
	f := newRouterFixture(t, 1024, "alice", "bob", "carol")
	f.conns["bob"].failSends()

	if err := f.router.BroadcastFrom(f.ids["alice"], "hi all"); err != nil {
		t.Fatalf("BroadcastFrom: %v", err)
	}
	if diff := cmp.Diff([]string{"[alice]: hi all"}, f.conns["carol"].messages()); diff != "" {
		t.Errorf("carol mismatch (-want +got):\n%s", diff)
	}
	if got := f.metrics.DeliveryFailures.Load(); got != 1 {
		t.Errorf("DeliveryFailures = %d, want 1", got)
	}
	if got := f.metrics.BroadcastMessages.Load(); got != 1 {
		t.Errorf("BroadcastMessages = %d, want 1", got)
	}
}

func TestRouterDirect(t *testing.T) {
	f := newRouterFixture(t, 1024, "alice", "bob", "carol")

	if err := f.router.Direct(f.ids["alice"], "bob", "psst"); err != nil {
		t.Fatalf("Direct: %v", err)
	}
	if diff := cmp.Diff([]string{"[alice]: psst"}, f.conns["bob"].messages()); diff != "" {
		t.Errorf("bob mismatch (-want +got):\n%s", diff)
	}
	if got := f.conns["carol"].messages(); len(got) != 0 {
		t.Errorf("carol received %v", got)
	}

	if err := f.router.Direct(f.ids["alice"], "nobody", "hi"); !errors.Is(err, model.ErrRecipientNotFound) {
		t.Fatalf("Direct to unknown = %v, want ErrRecipientNotFound", err)
	}
}

func TestRouterToGroup(t *testing.T) {
	f := newRouterFixture(t, 1024, "alice", "bob", "carol")
	if err := f.groups.Create("team", f.ids["alice"]); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.groups.Join("team", f.ids["bob"]); err != nil {
		t.Fatalf("Join: %v", err)
	}

	if err := f.router.ToGroup(f.ids["bob"], "team", "hello"); err != nil {
		t.Fatalf("ToGroup: %v", err)
	}
	if diff := cmp.Diff([]string{"[bob from team]: hello"}, f.conns["alice"].messages()); diff != "" {
		t.Errorf("alice mismatch (-want +got):\n%s", diff)
	}
	if got := f.conns["bob"].messages(); len(got) != 0 {
		t.Errorf("sender received %v", got)
	}
	if got := f.conns["carol"].messages(); len(got) != 0 {
		t.Errorf("non-member received %v", got)
	}

	if err := f.router.ToGroup(f.ids["carol"], "team", "hi"); !errors.Is(err, model.ErrNotMember) {
		t.Errorf("ToGroup non-member = %v, want ErrNotMember", err)
	}
	if err := f.router.ToGroup(f.ids["alice"], "nope", "hi"); !errors.Is(err, model.ErrGroupNotFound) {
		t.Errorf("ToGroup missing group = %v, want ErrGroupNotFound", err)
	}
}

func TestRouterRejectsOversizeBeforeDelivery(t *testing.T) {
	f := newRouterFixture(t, 16, "alice", "bob")

	err := f.router.BroadcastFrom(f.ids["alice"], strings.Repeat("x", 16))
	if !errors.Is(err, model.ErrMessageTooLarge) {
		t.Fatalf("BroadcastFrom oversize = %v, want ErrMessageTooLarge", err)
	}
	err = f.router.Direct(f.ids["alice"], "bob", strings.Repeat("x", 16))
	if !errors.Is(err, model.ErrMessageTooLarge) {
		t.Fatalf("Direct oversize = %v, want ErrMessageTooLarge", err)
	}
	if got := f.conns["bob"].messages(); len(got) != 0 {
		t.Errorf("bob received %v", got)
	}
}

func TestRouterNotifySkipsGoneSessions(t *testing.T) {
	f := newRouterFixture(t, 1024, "alice", "bob")
	f.sessions.Unregister(f.ids["bob"])

	if n := f.router.Notify([]ConnID{f.ids["alice"], f.ids["bob"]}, "note"); n != 1 {
		t.Errorf("Notify delivered %d, want 1", n)
	}
	if got := f.conns["bob"].messages(); len(got) != 0 {
		t.Errorf("unregistered bob received %v", got)
	}
}
