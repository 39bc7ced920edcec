package registry

import (
	"slices"

	"github.com/agnivade/levenshtein"

	"github.com/luciancaetano/kephasrelay"
)

// maxSuggestionDistance bounds the edit distance for Closest.
const maxSuggestionDistance = 2

// Channel is a named group of member connections.
type Channel struct {
	Name    string
	members []kephasrelay.ConnectionID
	index   map[kephasrelay.ConnectionID]struct{}
}

func newChannel(name string) *Channel {
	return &Channel{
		Name:  name,
		index: make(map[kephasrelay.ConnectionID]struct{}),
	}
}

func (ch *Channel) add(id kephasrelay.ConnectionID) bool {
	if _, ok := ch.index[id]; ok {
		return false
	}
	ch.index[id] = struct{}{}
	ch.members = append(ch.members, id)
	return true
}

func (ch *Channel) remove(id kephasrelay.ConnectionID) bool {
	if _, ok := ch.index[id]; !ok {
		return false
	}
	delete(ch.index, id)
	if i := slices.Index(ch.members, id); i >= 0 {
		ch.members = slices.Delete(ch.members, i, i+1)
	}
	return true
}

func (ch *Channel) has(id kephasrelay.ConnectionID) bool {
	_, ok := ch.index[id]
	return ok
}

// Channels maps channel names to their members.
//
// In declared mode the set of names is fixed at construction. In auto-create
// mode it starts empty and grows on first join. Channels are never removed.
type Channels struct {
	autoCreate bool
	names      []string
	byName     map[string]*Channel
}

// NewChannels creates a registry with a fixed set of channels, each starting
// with no members. Empty and repeated names are ignored.
func NewChannels(names ...string) *Channels {
	c := &Channels{
		byName: make(map[string]*Channel, len(names)),
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		c.create(name)
	}
	return c
}

// NewAutoCreateChannels creates a registry in which any channel name becomes
// valid on first join.
func NewAutoCreateChannels() *Channels {
	return &Channels{
		autoCreate: true,
		byName:     make(map[string]*Channel),
	}
}

func (c *Channels) create(name string) bool {
	if _, ok := c.byName[name]; ok {
		return false
	}
	c.byName[name] = newChannel(name)
	c.names = append(c.names, name)
	return true
}

// AutoCreate reports whether the registry creates channels on demand.
func (c *Channels) AutoCreate() bool {
	return c.autoCreate
}

// Exists reports whether name was declared or has already been auto-created.
func (c *Channels) Exists(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// EnsureChannel makes sure name exists. created is true when this call
// materialized the channel; ok is false when the channel is unknown and
// auto-create is disabled, in which case a join must be rejected.
func (c *Channels) EnsureChannel(name string) (created bool, ok bool) {
	if c.Exists(name) {
		return false, true
	}
	if !c.autoCreate || name == "" {
		return false, false
	}
	c.create(name)
	return true, true
}

// Join adds id to the members of name. alreadyMember is true, and nothing
// changes, when id was a member before the call. Both results are false when
// the channel does not exist; callers must EnsureChannel first.
func (c *Channels) Join(name string, id kephasrelay.ConnectionID) (joined bool, alreadyMember bool) {
	ch, ok := c.byName[name]
	if !ok {
		return false, false
	}
	if !ch.add(id) {
		return false, true
	}
	return true, false
}

// IsMember reports whether id belongs to name. Unknown channels have no members.
func (c *Channels) IsMember(name string, id kephasrelay.ConnectionID) bool {
	ch, ok := c.byName[name]
	if !ok {
		return false
	}
	return ch.has(id)
}

// RemoveConnectionEverywhere drops id from every channel, visiting each
// channel once, and returns how many channels it was removed from.
func (c *Channels) RemoveConnectionEverywhere(id kephasrelay.ConnectionID) int {
	removed := 0
	for _, name := range c.names {
		if c.byName[name].remove(id) {
			removed++
		}
	}
	return removed
}

// Members returns a snapshot of the members of name in join order.
// Unknown channels yield an empty slice.
func (c *Channels) Members(name string) []kephasrelay.ConnectionID {
	ch, ok := c.byName[name]
	if !ok {
		return []kephasrelay.ConnectionID{}
	}
	return slices.Clone(ch.members)
}

// Names returns the known channel names in creation order.
func (c *Channels) Names() []string {
	return slices.Clone(c.names)
}

// Len returns the number of known channels.
func (c *Channels) Len() int {
	return len(c.names)
}

// Closest returns the known channel name nearest to name by edit distance,
// if one is close enough to be a likely typo.
func (c *Channels) Closest(name string) (string, bool) {
	best, bestDist := "", maxSuggestionDistance+1
	for _, candidate := range c.names {
		if d := levenshtein.ComputeDistance(name, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best, best != ""
}
