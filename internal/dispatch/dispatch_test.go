package dispatch

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scheduleJSON = `{
  "_comment": "times are UTC",
  "facebook.yml": {"type": "hourly", "minute": 15},
  "googleads.yml": {"type": "daily", "time": "09:30"},
  "gam.yml": {"type": "daily", "time": "9:15"}
}`

func minute(m int) *int { return &m }

func TestParseSchedule(t *testing.T) {
	entries, err := ParseSchedule([]byte(scheduleJSON))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "facebook.yml", entries[0].Workflow)
	assert.Equal(t, "gam.yml", entries[1].Workflow)
	assert.Equal(t, "googleads.yml", entries[2].Workflow)
	assert.Equal(t, 15, *entries[0].Minute)
}

func TestParseSchedule_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"unknown type", `{"a.yml": {"type": "weekly"}}`},
		{"hourly without minute", `{"a.yml": {"type": "hourly"}}`},
		{"minute out of range", `{"a.yml": {"type": "hourly", "minute": 60}}`},
		{"bad time", `{"a.yml": {"type": "daily", "time": "0930"}}`},
		{"hour out of range", `{"a.yml": {"type": "daily", "time": "24:00"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSchedule([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadSchedule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.json")
	require.NoError(t, os.WriteFile(path, []byte(scheduleJSON), 0o600))

	entries, err := LoadSchedule(path)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	_, err = LoadSchedule(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestEntryDue(t *testing.T) {
	at := time.Date(2026, 3, 10, 9, 30, 42, 0, time.UTC)
	tests := []struct {
		name  string
		entry Entry
		now   time.Time
		want  bool
	}{
		{"hourly match", Entry{Type: TypeHourly, Minute: minute(30)}, at, true},
		{"hourly other minute", Entry{Type: TypeHourly, Minute: minute(31)}, at, false},
		{"hourly nil minute", Entry{Type: TypeHourly}, at, false},
		{"daily match", Entry{Type: TypeDaily, Time: "09:30"}, at, true},
		{"daily other hour", Entry{Type: TypeDaily, Time: "10:30"}, at, false},
		{"daily evaluated in utc", Entry{Type: TypeDaily, Time: "09:30"}, at.In(time.FixedZone("BRT", -3*3600)), true},
		{"daily bad time", Entry{Type: TypeDaily, Time: "half past"}, at, false},
		{"unknown type", Entry{Type: "weekly"}, at, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entry.Due(tt.now))
		})
	}
}

func TestLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.lock")

	lock, err := AcquireLock(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(string(data)))

	_, err = AcquireLock(path)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())

	again, err := AcquireLock(path)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

type fakeTrigger struct {
	calls   []string
	results map[string]TriggerResult
	errs    map[string]error
}

func (f *fakeTrigger) Trigger(_ context.Context, workflow string) (TriggerResult, error) {
	f.calls = append(f.calls, workflow)
	return f.results[workflow], f.errs[workflow]
}

func newTestDispatcher(t *testing.T, trig Trigger, at time.Time) (*Dispatcher, *bytes.Buffer, string) {
	t.Helper()
	events := &bytes.Buffer{}
	lockPath := filepath.Join(t.TempDir(), "dispatch.lock")
	d := New(trig, lockPath, events)
	d.now = func() time.Time { return at }
	return d, events, lockPath
}

func TestDispatcherRun(t *testing.T) {
	entries, err := ParseSchedule([]byte(scheduleJSON))
	require.NoError(t, err)

	trig := &fakeTrigger{
		results: map[string]TriggerResult{
			"gam.yml": {ExitCode: 1, Stderr: "could not find workflow"},
		},
	}
	d, events, lockPath := newTestDispatcher(t, trig, time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC))

	summary, err := d.Run(context.Background(), entries)
	require.NoError(t, err)

	assert.Equal(t, []string{"facebook.yml", "gam.yml"}, trig.calls)
	assert.Equal(t, []string{"facebook.yml"}, summary.Triggered)
	assert.Equal(t, []string{"gam.yml"}, summary.Failed)
	assert.False(t, summary.Locked)

	lines := strings.Split(strings.TrimSpace(events.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"workflow":"facebook.yml"`)
	assert.Contains(t, lines[0], `"exit_code":0`)
	assert.Contains(t, lines[0], `"status":"success"`)
	assert.Contains(t, lines[1], `"exit_code":1`)
	assert.Contains(t, lines[1], `"status":"error"`)
	assert.Contains(t, lines[1], `"stderr":"could not find workflow"`)

	_, err = os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err), "lock must be released")
}

func TestDispatcherRun_TriggerError(t *testing.T) {
	entries := []Entry{{Workflow: "a.yml", Type: TypeHourly, Minute: minute(0)}}
	trig := &fakeTrigger{errs: map[string]error{"a.yml": errors.New("exec: gh not found")}}
	d, events, _ := newTestDispatcher(t, trig, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	summary, err := d.Run(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.yml"}, summary.Failed)
	assert.Contains(t, events.String(), "gh not found")
}

func TestAcquireLock_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone", "dispatch.lock")

	_, err := AcquireLock(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLocked)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "create lock "+path)
}

func TestDispatcherRun_Locked(t *testing.T) {
	entries := []Entry{{Workflow: "a.yml", Type: TypeHourly, Minute: minute(0)}}
	trig := &fakeTrigger{}
	d, events, lockPath := newTestDispatcher(t, trig, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	held, err := AcquireLock(lockPath)
	require.NoError(t, err)
	defer held.Release()

	summary, err := d.Run(context.Background(), entries)
	require.NoError(t, err)
	assert.True(t, summary.Locked)
	assert.Empty(t, trig.calls)
	assert.Contains(t, events.String(), "already running")

	_, err = os.Stat(lockPath)
	assert.NoError(t, err, "foreign lock must be left in place")
}

func TestGHTrigger(t *testing.T) {
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}
	res, err := GHTrigger{Repo: "acme/etl", Binary: "echo"}.Trigger(context.Background(), "facebook.yml")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "workflow run facebook.yml --repo acme/etl", res.Stdout)
}

func TestGHTrigger_NonZeroExit(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	res, err := GHTrigger{Repo: "acme/etl", Binary: "false"}.Trigger(context.Background(), "facebook.yml")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
}

func TestGHTrigger_MissingBinary(t *testing.T) {
	res, err := GHTrigger{Repo: "acme/etl", Binary: "definitely-not-a-real-binary"}.Trigger(context.Background(), "a.yml")
	require.Error(t, err)
	assert.ErrorIs(t, err, exec.ErrNotFound)
	assert.Contains(t, err.Error(), "start definitely-not-a-real-binary")
	assert.Equal(t, -1, res.ExitCode)
}
