package execjob

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/edison/pkg/jobs"
)

type recorder struct {
	mu    sync.Mutex
	info  []string
	warn  []string
	error []string
}

func (r *recorder) Info(s string)  { r.mu.Lock(); r.info = append(r.info, s); r.mu.Unlock() }
func (r *recorder) Warn(s string)  { r.mu.Lock(); r.warn = append(r.warn, s); r.mu.Unlock() }
func (r *recorder) Error(s string) { r.mu.Lock(); r.error = append(r.error, s); r.mu.Unlock() }

func shell(t *testing.T, script string) Spec {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	return Spec{
		Definition: jobs.Definition{Type: "Shell", Name: "Shell job"},
		Command:    []string{"sh", "-c", script},
	}
}

func TestCommand_ForwardsOutput(t *testing.T) {
	c, err := New(shell(t, "echo one; echo two; echo oops >&2"))
	require.NoError(t, err)

	var rec recorder
	require.NoError(t, c.Execute(context.Background(), &rec))

	assert.Equal(t, []string{"one", "two"}, rec.info)
	assert.Equal(t, []string{"oops"}, rec.warn)
	assert.Empty(t, rec.error)
}

func TestCommand_NonZeroExitFails(t *testing.T) {
	c, err := New(shell(t, "echo partial; exit 3"))
	require.NoError(t, err)

	var rec recorder
	err = c.Execute(context.Background(), &rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Equal(t, []string{"partial"}, rec.info)
}

func TestCommand_EnvAndDir(t *testing.T) {
	spec := shell(t, `echo "$EDISON_TEST_VALUE"; pwd`)
	spec.Env = map[string]string{"EDISON_TEST_VALUE": "hello"}
	spec.Dir = t.TempDir()
	c, err := New(spec)
	require.NoError(t, err)

	var rec recorder
	require.NoError(t, c.Execute(context.Background(), &rec))
	require.Len(t, rec.info, 2)
	assert.Equal(t, "hello", rec.info[0])
	assert.Contains(t, rec.info[1], spec.Dir)
}

func TestCommand_ContextCancelStopsProcess(t *testing.T) {
	c, err := New(shell(t, "exec sleep 10"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = c.Execute(ctx, &recorder{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCommand_MissingBinary(t *testing.T) {
	c, err := New(Spec{
		Definition: jobs.Definition{Type: "Missing", Name: "Missing"},
		Command:    []string{"/nonexistent/edison-test-binary"},
	})
	require.NoError(t, err)
	assert.Error(t, c.Execute(context.Background(), &recorder{}))
}

func TestCommand_RunsThroughRunner(t *testing.T) {
	c, err := New(shell(t, "echo working; exit 1"))
	require.NoError(t, err)

	repo := newMemRepo()
	runner := jobs.NewRunner(repo, jobs.WithHeartbeatInterval(0))
	rec := jobs.NewRecord("job-1", "/internal/jobs/job-1", "Shell", "", time.Now())
	runner.Run(context.Background(), rec, c)

	got, err := repo.FindOne(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusError, got.Status)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "working", got.Messages[0].Text)
}

func TestSpec_Validate(t *testing.T) {
	_, err := New(Spec{Definition: jobs.Definition{Type: "X", Name: "X"}})
	assert.Error(t, err)

	_, err = New(Spec{Definition: jobs.Definition{Type: "X"}, Command: []string{"true"}})
	assert.Error(t, err)
}

func TestMergeEnv(t *testing.T) {
	assert.Equal(t, []string{"A=1"}, mergeEnv([]string{"A=1"}, nil))
	assert.Equal(t, []string{"A=1", "B=2", "C=3"}, mergeEnv([]string{"A=1"}, map[string]string{"C": "3", "B": "2"}))
}

func TestLineWriter(t *testing.T) {
	var got []string
	w := &lineWriter{publish: func(s string) { got = append(got, s) }}

	_, _ = w.Write([]byte("par"))
	_, _ = w.Write([]byte("tial\r\nsecond\n\nthi"))
	assert.Equal(t, []string{"partial", "second"}, got)

	w.Flush()
	assert.Equal(t, []string{"partial", "second", "thi"}, got)
}
