//go:build !unix

package clock

import (
	"errors"

	"github.com/me/ossim/pkg/model"
)

var errNoSharedMemory = errors.New("shared clock segments require a unix platform")

// Shared is unavailable on this platform; use Memory with in-process workers.
type Shared struct{}

func CreateShared(path string) (*Shared, error) { return nil, errNoSharedMemory }

func OpenShared(path string) (*Shared, error) { return nil, errNoSharedMemory }

func (s *Shared) Path() string          { return "" }
func (s *Shared) Publish(model.Clock)   {}
func (s *Shared) Snapshot() model.Clock { return model.Clock{} }
func (s *Shared) Close() error          { return nil }
