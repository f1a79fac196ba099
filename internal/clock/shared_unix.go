//go:build unix

package clock

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/me/ossim/pkg/model"
)

// segmentSize is the size of the shared clock segment: one packed word.
const segmentSize = 8

// Shared is a Storage backed by a memory-mapped file, readable by worker
// processes. The creator owns the file and removes it on Close.
type Shared struct {
	path  string
	file  *os.File
	data  []byte
	owner bool
	once  sync.Once
	err   error
}

// CreateShared creates the shared clock segment at path for writing.
func CreateShared(path string) (*Shared, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create clock segment %s: %w", path, err)
	}
	if err := f.Truncate(segmentSize); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("size clock segment: %w", err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, segmentSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("map clock segment: %w", err)
	}
	return &Shared{path: path, file: f, data: data, owner: true}, nil
}

// OpenShared attaches read-only to an existing clock segment.
func OpenShared(path string) (*Shared, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open clock segment %s: %w", path, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, segmentSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("map clock segment: %w", err)
	}
	return &Shared{path: path, file: f, data: data}, nil
}

// Path returns the segment's file path, passed to workers at spawn.
func (s *Shared) Path() string {
	return s.path
}

func (s *Shared) word() *uint64 {
	return (*uint64)(unsafe.Pointer(&s.data[0]))
}

// Publish must only be called on a segment returned by CreateShared.
func (s *Shared) Publish(c model.Clock) {
	atomic.StoreUint64(s.word(), c.Pack())
}

func (s *Shared) Snapshot() model.Clock {
	return model.UnpackClock(atomic.LoadUint64(s.word()))
}

// Close unmaps the segment. Repeated calls return the first result.
func (s *Shared) Close() error {
	s.once.Do(func() {
		var errs []error
		if err := unix.Munmap(s.data); err != nil {
			errs = append(errs, fmt.Errorf("unmap: %w", err))
		}
		if err := s.file.Close(); err != nil {
			errs = append(errs, err)
		}
		if s.owner {
			if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
		s.err = errors.Join(errs...)
	})
	return s.err
}
