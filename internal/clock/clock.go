// Package clock implements the coordinator's logical clock and the shared
// storage tasks read it from.
package clock

import "github.com/me/ossim/pkg/model"

// Reader is the read-only view of the clock handed to tasks.
type Reader interface {
	Snapshot() model.Clock
}

// Storage is the shared location the coordinator publishes the clock to.
// Publish has a single caller; Snapshot may be called from any task.
type Storage interface {
	Reader
	Publish(model.Clock)
	Close() error
}

// Clock is the coordinator-owned logical clock. Only the coordinator calls
// Advance; tasks observe it through the Storage it publishes to.
type Clock struct {
	now     model.Clock
	storage Storage
}

// New creates a zeroed clock and publishes it to storage.
func New(storage Storage) *Clock {
	storage.Publish(model.Clock{})
	return &Clock{storage: storage}
}

// Advance moves the clock forward by deltaNanos, carrying overflow into
// seconds, publishes the new value and returns it.
func (c *Clock) Advance(deltaNanos uint64) model.Clock {
	c.now = c.now.Add(deltaNanos)
	c.storage.Publish(c.now)
	return c.now
}

// Snapshot returns the coordinator's current time.
func (c *Clock) Snapshot() model.Clock {
	return c.now
}

// Reader returns the view tasks should read from.
func (c *Clock) Reader() Reader {
	return c.storage
}

// Close releases the shared storage.
func (c *Clock) Close() error {
	return c.storage.Close()
}
