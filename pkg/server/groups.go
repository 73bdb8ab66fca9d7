package server

import (
	"sort"
	"sync"

	"github.com/NicolasHaas/groupchat/pkg/model"
)

// GroupRegistry tracks named groups and their members. A single mutex guards
// both the group -> members map and the connection -> groups reverse index,
// so the two can never disagree. Empty groups are deleted.
type GroupRegistry struct {
	mu      sync.Mutex
	members map[string]map[ConnID]struct{}
	joined  map[ConnID]map[string]struct{}

	onCreate func(name string)
	onDelete func(name string)
}

// NewGroupRegistry creates an empty registry.
func NewGroupRegistry() *GroupRegistry {
	return &GroupRegistry{
		members: make(map[string]map[ConnID]struct{}),
		joined:  make(map[ConnID]map[string]struct{}),
	}
}

// SetHooks installs callbacks invoked, outside the lock, when a group is
// created or deleted. Either may be nil. Call before the registry is shared.
func (g *GroupRegistry) SetHooks(onCreate, onDelete func(name string)) {
	g.onCreate = onCreate
	g.onDelete = onDelete
}

// Create makes a new group whose only member is id.
func (g *GroupRegistry) Create(name string, id ConnID) error {
	g.mu.Lock()
	if _, exists := g.members[name]; exists {
		g.mu.Unlock()
		return model.ErrGroupExists
	}
	g.members[name] = map[ConnID]struct{}{id: {}}
	g.addJoinedLocked(id, name)
	g.mu.Unlock()

	if g.onCreate != nil {
		g.onCreate(name)
	}
	return nil
}

// Join adds id to an existing group and returns the updated member list.
func (g *GroupRegistry) Join(name string, id ConnID) ([]ConnID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	set, ok := g.members[name]
	if !ok {
		return nil, model.ErrGroupNotFound
	}
	if _, member := set[id]; member {
		return nil, model.ErrAlreadyMember
	}
	set[id] = struct{}{}
	g.addJoinedLocked(id, name)
	return sortedIDs(set, ""), nil
}

// Leave removes id from a group. It returns the remaining members, which is
// the pre-removal list without the leaver. The group is deleted once empty.
func (g *GroupRegistry) Leave(name string, id ConnID) ([]ConnID, error) {
	g.mu.Lock()
	set, ok := g.members[name]
	if !ok {
		g.mu.Unlock()
		return nil, model.ErrGroupNotFound
	}
	if _, member := set[id]; !member {
		g.mu.Unlock()
		return nil, model.ErrNotMember
	}
	remaining := sortedIDs(set, id)
	deleted := g.removeLocked(name, id)
	g.mu.Unlock()

	if deleted && g.onDelete != nil {
		g.onDelete(name)
	}
	return remaining, nil
}

// RemoveEverywhere drops id from every group it belongs to and returns the
// affected group names, sorted.
func (g *GroupRegistry) RemoveEverywhere(id ConnID) []string {
	g.mu.Lock()
	names := make([]string, 0, len(g.joined[id]))
	for name := range g.joined[id] {
		names = append(names, name)
	}
	var deleted []string
	for _, name := range names {
		if g.removeLocked(name, id) {
			deleted = append(deleted, name)
		}
	}
	delete(g.joined, id)
	g.mu.Unlock()

	if g.onDelete != nil {
		for _, name := range deleted {
			g.onDelete(name)
		}
	}
	sort.Strings(names)
	return names
}

// Members returns the members of a group.
func (g *GroupRegistry) Members(name string) ([]ConnID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.members[name]
	if !ok {
		return nil, model.ErrGroupNotFound
	}
	return sortedIDs(set, ""), nil
}

// Recipients checks that sender belongs to the group and returns every other
// member, in one critical section.
func (g *GroupRegistry) Recipients(name string, sender ConnID) ([]ConnID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.members[name]
	if !ok {
		return nil, model.ErrGroupNotFound
	}
	if _, member := set[sender]; !member {
		return nil, model.ErrNotMember
	}
	return sortedIDs(set, sender), nil
}

// GroupsOf returns the groups id belongs to, sorted.
func (g *GroupRegistry) GroupsOf(id ConnID) []string {
	g.mu.Lock()
	names := make([]string, 0, len(g.joined[id]))
	for name := range g.joined[id] {
		names = append(names, name)
	}
	g.mu.Unlock()

	sort.Strings(names)
	return names
}

// Names returns every group name, sorted.
func (g *GroupRegistry) Names() []string {
	g.mu.Lock()
	names := make([]string, 0, len(g.members))
	for name := range g.members {
		names = append(names, name)
	}
	g.mu.Unlock()

	sort.Strings(names)
	return names
}

// Count returns the number of groups.
func (g *GroupRegistry) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

func (g *GroupRegistry) addJoinedLocked(id ConnID, name string) {
	set, ok := g.joined[id]
	if !ok {
		set = make(map[string]struct{})
		g.joined[id] = set
	}
	set[name] = struct{}{}
}

// removeLocked removes id from name in both indexes and reports whether the
// group was deleted.
func (g *GroupRegistry) removeLocked(name string, id ConnID) bool {
	if set, ok := g.joined[id]; ok {
		delete(set, name)
		if len(set) == 0 {
			delete(g.joined, id)
		}
	}
	set, ok := g.members[name]
	if !ok {
		return false
	}
	delete(set, id)
	if len(set) == 0 {
		delete(g.members, name)
		return true
	}
	return false
}

func sortedIDs(set map[ConnID]struct{}, exclude ConnID) []ConnID {
	ids := make([]ConnID, 0, len(set))
	for id := range set {
		if id == exclude {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
