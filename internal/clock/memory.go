package clock

import (
	"sync/atomic"

	"github.com/me/ossim/pkg/model"
)

// Memory is an in-process Storage holding the clock in one atomic word.
type Memory struct {
	word atomic.Uint64
}

// NewMemory returns zeroed in-process storage.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Publish(c model.Clock) {
	m.word.Store(c.Pack())
}

func (m *Memory) Snapshot() model.Clock {
	return model.UnpackClock(m.word.Load())
}

func (m *Memory) Close() error {
	return nil
}
