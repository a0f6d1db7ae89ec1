// Package execjob runs external commands as jobs and loads command job
// definitions from YAML or JSON files.
package execjob

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/edison/pkg/jobs"
)

// DefaultWaitDelay bounds how long output is drained after the command exits
// or its context is cancelled.
const DefaultWaitDelay = 5 * time.Second

// Spec describes a command job: its definition plus the process to spawn.
type Spec struct {
	jobs.Definition `yaml:",inline"`

	// Command is the program and its arguments. The program is resolved via
	// PATH when it contains no path separator.
	Command []string `yaml:"command" json:"command"`

	// Dir is the working directory. Empty means the service's.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty"`

	// Env adds to (or overrides) the service's environment.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// Validate checks the definition and that a command is present.
func (s Spec) Validate() error {
	if err := s.Definition.Validate(); err != nil {
		return err
	}
	if len(s.Command) == 0 || strings.TrimSpace(s.Command[0]) == "" {
		return &jobs.ConfigError{Field: s.Type + ".command", Message: "command is required"}
	}
	return nil
}

// Command is a jobs.Runnable spawning an external process. Each stdout line
// becomes an INFO message and each stderr line a WARNING message. A non-zero
// exit fails the job.
type Command struct {
	spec Spec
}

var _ jobs.Runnable = (*Command)(nil)

// New validates spec and returns its runnable.
func New(spec Spec) (*Command, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &Command{spec: spec}, nil
}

// Definition implements jobs.Runnable.
func (c *Command) Definition() jobs.Definition { return c.spec.Definition }

// Execute implements jobs.Runnable.
func (c *Command) Execute(ctx context.Context, events jobs.EventPublisher) error {
	logger := jobs.LoggerFromContext(ctx)

	cmd := exec.CommandContext(ctx, c.spec.Command[0], c.spec.Command[1:]...)
	cmd.Dir = c.spec.Dir
	cmd.Env = mergeEnv(os.Environ(), c.spec.Env)
	cmd.WaitDelay = DefaultWaitDelay

	stdout := &lineWriter{publish: events.Info}
	stderr := &lineWriter{publish: events.Warn}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.spec.Command[0], err)
	}
	logger.Info("Command started",
		zap.Strings("command", c.spec.Command),
		zap.Int("pid", cmd.Process.Pid))

	err := cmd.Wait()
	stdout.Flush()
	stderr.Flush()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("command aborted: %w", ctxErr)
		}
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

// lineWriter publishes every complete line written to it. os/exec writes
// each stream from a single goroutine.
type lineWriter struct {
	publish func(string)
	buf     []byte
}

// maxLine caps a buffered partial line.
const maxLine = 64 * 1024

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxLine {
		w.Flush()
	}
	return len(p), nil
}

// Flush publishes any trailing partial line.
func (w *lineWriter) Flush() {
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *lineWriter) emit(line []byte) {
	if s := strings.TrimRight(string(line), "\r"); s != "" {
		w.publish(s)
	}
}

// mergeEnv appends extra to base in key order. Later entries win in os/exec.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(base)+len(keys))
	out = append(out, base...)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}
