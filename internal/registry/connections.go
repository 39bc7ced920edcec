// Package registry holds the connection and channel bookkeeping of the relay.
//
// Neither registry is safe for concurrent use on its own: the broker guards
// both behind a single lock so that a disconnect updates them as a unit.
package registry

import (
	"slices"

	"github.com/luciancaetano/kephasrelay"
)

// Connections is the set of currently open connections, kept in
// registration order so that relay iteration is deterministic.
type Connections struct {
	order []kephasrelay.ConnectionID
	index map[kephasrelay.ConnectionID]struct{}
}

// NewConnections creates an empty connection registry.
func NewConnections() *Connections {
	return &Connections{
		index: make(map[kephasrelay.ConnectionID]struct{}),
	}
}

// Register adds id to the open set and reports whether it was added.
// Registering an id twice is a no-op.
func (c *Connections) Register(id kephasrelay.ConnectionID) bool {
	if _, ok := c.index[id]; ok {
		return false
	}
	c.index[id] = struct{}{}
	c.order = append(c.order, id)
	return true
}

// Unregister removes id from the open set and reports whether it was present.
func (c *Connections) Unregister(id kephasrelay.ConnectionID) bool {
	if _, ok := c.index[id]; !ok {
		return false
	}
	delete(c.index, id)
	if i := slices.Index(c.order, id); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
	return true
}

// Contains reports whether id is open.
func (c *Connections) Contains(id kephasrelay.ConnectionID) bool {
	_, ok := c.index[id]
	return ok
}

// All returns a snapshot of the open connections in registration order.
// The returned slice is owned by the caller.
func (c *Connections) All() []kephasrelay.ConnectionID {
	return slices.Clone(c.order)
}

// Len returns the number of open connections.
func (c *Connections) Len() int {
	return len(c.order)
}
