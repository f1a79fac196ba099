//go:build unix

package clock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/me/ossim/pkg/model"
)

func TestShared_ReaderSeesWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clock.seg")

	w, err := CreateShared(path)
	if err != nil {
		t.Fatalf("CreateShared: %v", err)
	}
	c := New(w)

	r, err := OpenShared(path)
	if err != nil {
		t.Fatalf("OpenShared: %v", err)
	}
	defer r.Close()

	c.Advance(2_300_000_000)
	want := model.Clock{Seconds: 2, Nanoseconds: 300_000_000}
	if got := r.Snapshot(); got != want {
		t.Errorf("reader snapshot = %v, want %v", got, want)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("segment file should be removed by its owner, stat err = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close should return the first result, got %v", err)
	}
}

func TestOpenShared_Missing(t *testing.T) {
	if _, err := OpenShared(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing segment")
	}
}
