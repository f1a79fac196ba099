// Package config holds the run configuration of the coordinator.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/ossim/internal/logging"
	"github.com/me/ossim/pkg/model"
)

// MaxSimultaneous is the hard upper bound on concurrently active tasks.
const MaxSimultaneous = 19

// MaxTimeLimit is the largest accepted per-task time limit in seconds.
const MaxTimeLimit = model.MaxBudgetSeconds

// RunConfig holds configuration for one coordinator run.
type RunConfig struct {
	Total        int    `yaml:"total"`        // Tasks to launch in total (-n)
	Simultaneous int    `yaml:"simultaneous"` // Concurrency bound (-s)
	TimeLimit    int    `yaml:"time_limit"`   // Upper bound of a task's budget in seconds (-t)
	LogFile      string `yaml:"log_file"`     // Audit log destination (-f)

	Timeout time.Duration       `yaml:"timeout"` // Real-time limit of the whole run
	Seed    uint64              `yaml:"seed"`    // 0 derives a seed from the wall clock
	Mode    model.ExecutionMode `yaml:"mode"`    // inproc or process

	ClockStep        time.Duration `yaml:"clock_step"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	SnapshotJitter   time.Duration `yaml:"snapshot_jitter"`
	ReplyTimeout     time.Duration `yaml:"reply_timeout"`
	ReapAttempts     int           `yaml:"reap_attempts"`
	ReapBackoff      time.Duration `yaml:"reap_backoff"`

	DBPath     string `yaml:"db"`          // Optional SQLite audit database
	StatusAddr string `yaml:"status_addr"` // Optional status API listen address
	LogLevel   string `yaml:"log_level"`   // debug, info, warn, error
	LogFormat  string `yaml:"log_format"`  // text, json
}

// DefaultRunConfig returns the defaults for every tunable. Total,
// Simultaneous, TimeLimit and LogFile have no default and must be given.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Timeout:          60 * time.Second,
		Mode:             model.ModeInproc,
		ClockStep:        100 * time.Millisecond,
		SnapshotInterval: 500 * time.Millisecond,
		SnapshotJitter:   200 * time.Millisecond,
		ReplyTimeout:     5 * time.Second,
		ReapAttempts:     50,
		ReapBackoff:      2 * time.Millisecond,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// LoadFile overlays the YAML file at path onto cfg. Unknown keys are rejected.
func LoadFile(path string, cfg *RunConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.NewConfigError("read config file", model.FieldError{Field: "config", Message: err.Error()})
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return model.NewConfigError("parse config file "+path, model.FieldError{Field: "config", Message: err.Error()})
	}
	return nil
}

// Validate checks every field and reports all problems at once.
func (c RunConfig) Validate() error {
	var details []model.FieldError
	add := func(field, format string, args ...any) {
		details = append(details, model.FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Total <= 0 {
		add("total", "must be a positive number of tasks")
	}
	if c.Simultaneous <= 0 || c.Simultaneous > MaxSimultaneous {
		add("simultaneous", "must be between 1 and %d", MaxSimultaneous)
	}
	if c.TimeLimit <= 0 || c.TimeLimit > MaxTimeLimit {
		add("time_limit", "must be between 1 and %d seconds", MaxTimeLimit)
	}
	if c.LogFile == "" {
		add("log_file", "is required")
	}
	if c.Timeout <= 0 {
		add("timeout", "must be positive")
	}
	if c.Mode != model.ModeInproc && c.Mode != model.ModeProcess {
		add("mode", "must be %q or %q", model.ModeInproc, model.ModeProcess)
	}
	if c.ClockStep <= 0 || c.ClockStep > time.Second {
		add("clock_step", "must be in (0, 1s]")
	}
	if c.SnapshotInterval <= 0 {
		add("snapshot_interval", "must be positive")
	}
	if c.SnapshotJitter < 0 {
		add("snapshot_jitter", "must not be negative")
	}
	if c.ReplyTimeout < 0 {
		add("reply_timeout", "must not be negative")
	}
	if c.ReapAttempts < 0 || c.ReapBackoff < 0 {
		add("reap_attempts", "reap attempts and backoff must not be negative")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		add("log_level", "%v", err)
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		add("log_format", "%v", err)
	}

	if len(details) > 0 {
		return model.NewConfigError("invalid run configuration", details...)
	}
	return nil
}

// CheckLogWritable verifies the log destination can be opened for append,
// creating it if needed.
func CheckLogWritable(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return model.NewConfigError("log destination is not writable", model.FieldError{Field: "log_file", Message: err.Error()})
	}
	return f.Close()
}
