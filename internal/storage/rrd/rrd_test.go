package rrd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liebert/internal/bus"
	"liebert/internal/config"
	"liebert/internal/metrics"
	"liebert/internal/security"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeRunner struct {
	calls [][]string
	err   error
}

func (f *fakeRunner) Run(_ context.Context, command string, args ...string) (security.Result, error) {
	f.calls = append(f.calls, append([]string{command}, args...))
	if f.err != nil {
		return security.Result{ExitCode: 1}, f.err
	}
	return security.Result{}, nil
}

func cpuFormat(host string) bus.Format {
	return bus.Format{Host: host, Metric: "builtin.cpu", Schema: metrics.Schema{
		metrics.GaugeSeries("user", 120, metrics.Limit(0), metrics.Limit(100)),
		metrics.GaugeSeries("system", 120, metrics.Limit(0), metrics.Limit(100)),
	}}
}

func newWriter(t *testing.T, r Runner, sm *metrics.SelfMonitor) *Writer {
	t.Helper()
	return New(Settings{Binary: "/usr/bin/rrdtool", DataDir: t.TempDir(), Step: 5, Timeout: time.Second},
		WithRunner(r), WithLogger(quiet), WithSelfMonitor(sm))
}

func TestCreateArgs(t *testing.T) {
	schema := metrics.Schema{
		metrics.GaugeSeries("free", 120, metrics.Limit(0), metrics.NoBound()),
		metrics.CounterSeries("rx_bytes", 120, metrics.NoBound(), metrics.NoBound()),
	}
	assert.Equal(t, []string{
		"create", "/data/10.0.0.5-builtin.memory.rrd", "--step", "5",
		"DS:free:GAUGE:120:0:U",
		"DS:rx_bytes:COUNTER:120:U:U",
		"RRA:MAX:0.5:1:60", "RRA:MAX:0.5:5:144", "RRA:MAX:0.5:15:96", "RRA:MAX:0.5:60:168", "RRA:MAX:0.5:720:62",
	}, CreateArgs("/data/10.0.0.5-builtin.memory.rrd", 5, schema))
}

func TestUpdateArgs(t *testing.T) {
	assert.Equal(t, []string{"update", "/data/h-m.rrd", "1700000000:15:-3:0"},
		UpdateArgs("/data/h-m.rrd", 1700000000, []int64{15, -3, 0}))
}

func TestFormatCreatesOnlyWhenSchemaChanges(t *testing.T) {
	r := &fakeRunner{}
	w := newWriter(t, r, nil)

	w.HandleFormat(cpuFormat("10.0.0.5"))
	w.HandleFormat(cpuFormat("10.0.0.5"))
	require.Len(t, r.calls, 1)
	assert.Equal(t, "rrdtool", r.calls[0][0])
	assert.Equal(t, "create", r.calls[0][1])
	assert.Equal(t, w.Path("10.0.0.5", "builtin.cpu"), r.calls[0][2])

	changed := cpuFormat("10.0.0.5")
	changed.Schema[1].Max = metrics.NoBound()
	w.HandleFormat(changed)
	assert.Len(t, r.calls, 2, "a change in the last series recreates the file")

	w.HandleFormat(cpuFormat("10.0.0.6"))
	assert.Len(t, r.calls, 3, "identity includes the host")
}

func TestDataIssuesUpdate(t *testing.T) {
	r := &fakeRunner{}
	w := newWriter(t, r, nil)

	w.HandleData(bus.Data{Host: "10.0.0.5", Metric: "builtin.cpu", Timestamp: 1700000000, Values: []int64{15, 15}})
	require.Len(t, r.calls, 1)
	assert.Equal(t, []string{"rrdtool", "update", w.Path("10.0.0.5", "builtin.cpu"), "1700000000:15:15"}, r.calls[0])
}

func TestFailuresAreContained(t *testing.T) {
	sm := metrics.NewSelfMonitor("controller")
	r := &fakeRunner{err: errors.New("exit status 1")}
	w := newWriter(t, r, sm)

	w.HandleFormat(cpuFormat("10.0.0.5"))
	w.HandleFormat(cpuFormat("10.0.0.5"))
	assert.Len(t, r.calls, 2, "a failed create is retried on the next announcement")

	w.HandleData(bus.Data{Host: "10.0.0.5", Metric: "builtin.cpu", Timestamp: 1, Values: []int64{1, 2}})
	assert.Len(t, r.calls, 3)
}

func TestInvalidNamesNeverReachTheTool(t *testing.T) {
	r := &fakeRunner{}
	w := newWriter(t, r, nil)

	w.HandleData(bus.Data{Host: "../../etc", Metric: "builtin.cpu", Timestamp: 1, Values: []int64{1}})
	w.HandleData(bus.Data{Host: "10.0.0.5", Metric: "cpu/../../x", Timestamp: 1, Values: []int64{1}})
	w.HandleFormat(bus.Format{Host: "10.0.0.5", Metric: "builtin.cpu", Schema: metrics.Schema{
		metrics.GaugeSeries("a_very_long_series_name", 120, metrics.NoBound(), metrics.NoBound()),
	}})
	assert.Empty(t, r.calls)
}

func TestSettingsFromConfig(t *testing.T) {
	s, err := SettingsFromConfig(config.New(config.ControllerDefaults()))
	require.NoError(t, err)
	assert.Equal(t, Settings{Binary: "/usr/bin/rrdtool", DataDir: "/var/lib/liebert/rrd", Step: 5, Timeout: 30 * time.Second}, s)
}

// TestExecutorAcceptsGeneratedArgs runs the real executor against a stub
// rrdtool that records its arguments.
func TestExecutorAcceptsGeneratedArgs(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	logFile := filepath.Join(dir, "calls.log")
	stub := filepath.Join(dir, "rrdtool")
	script := "#!" + sh + "\necho \"$@\" >> " + logFile + "\n"
	require.NoError(t, os.WriteFile(stub, []byte(script), 0o755))

	data := filepath.Join(dir, "rrd")
	w := New(Settings{Binary: stub, DataDir: data, Step: 5, Timeout: 5 * time.Second}, WithLogger(quiet))

	w.HandleFormat(cpuFormat("fe80::1"))
	w.HandleData(bus.Data{Host: "fe80::1", Metric: "builtin.cpu", Timestamp: 1700000000, Values: []int64{15, -1}})

	out, err := os.ReadFile(logFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "create "+data+"/fe80::1-builtin.cpu.rrd --step 5 DS:user:GAUGE:120:0:100"))
	assert.Equal(t, "update "+data+"/fe80::1-builtin.cpu.rrd 1700000000:15:-1", lines[1])
}

func TestExecutorAllowsRootDataDir(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	stub := filepath.Join(t.TempDir(), "rrdtool")
	require.NoError(t, os.WriteFile(stub, []byte("#!"+sh+"\nexit 0\n"), 0o755))

	e := NewExecutor(Settings{Binary: stub, DataDir: "/", Step: 5, Timeout: 5 * time.Second})
	_, err = e.Run(context.Background(), command, UpdateArgs("/127.0.0.1-builtin.cpu.rrd", 1700000000, []int64{1})...)
	assert.NoError(t, err)

	_, err = e.Run(context.Background(), command, "update", "/tmp/127.0.0.1-builtin.cpu.rrd", "1700000000:1")
	assert.ErrorIs(t, err, security.ErrNotAllowed)
}
