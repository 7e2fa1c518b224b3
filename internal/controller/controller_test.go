package controller

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liebert/internal/bus"
	"liebert/internal/config"
	"liebert/internal/plugin"
	"liebert/internal/registry"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingSink struct {
	got    chan bus.Message
	closed atomic.Bool
	crash  bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{got: make(chan bus.Message, 16)}
}

func (s *recordingSink) Name() string { return "test.sink" }

func (s *recordingSink) HandleFormat(f bus.Format) { s.got <- f }

func (s *recordingSink) HandleData(d bus.Data) {
	if s.crash {
		panic("disk on fire")
	}
	s.got <- d
}

func (s *recordingSink) Close() error {
	s.closed.Store(true)
	return nil
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func newTestController(t *testing.T, sink *recordingSink, port int) (*Controller, *atomic.Int32) {
	t.Helper()
	reg := registry.New(quiet)
	require.NoError(t, reg.Register("test.sink", func(*config.Config) (plugin.Plugin, error) {
		return plugin.NewSinkPlugin(sink, quiet), nil
	}))

	cfg := config.New(config.ControllerDefaults(), map[string]string{
		config.KeyControllerHost: "127.0.0.1",
		config.KeyControllerPort: strconv.Itoa(port),
		"test.sink.enabled":      "true",
		"test.sink.topics":       "builtin.cpu,builtin.hdd.*",
	})

	aborted := &atomic.Int32{}
	c, err := New(cfg, quiet, WithRegistry(reg), WithAbort(func(code int) { aborted.Store(int32(code)) }))
	require.NoError(t, err)
	return c, aborted
}

func runAsync(c *Controller) <-chan error {
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not stop")
		return nil
	}
}

func dialController(t *testing.T, port int) net.Conn {
	t.Helper()
	var conn net.Conn
	require.Eventually(t, func() bool {
		var err error
		conn, err = net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func next(t *testing.T, s *recordingSink) bus.Message {
	t.Helper()
	select {
	case m := <-s.got:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("sink received nothing")
		return nil
	}
}

func TestAgentStreamReachesSubscribedSink(t *testing.T) {
	sink := newRecordingSink()
	port := freePort(t)
	c, aborted := newTestController(t, sink, port)
	done := runAsync(c)

	conn := dialController(t, port)
	_, err := io.WriteString(conn, ""+
		"DATA builtin.memory 1700000000 1 2 3 4\n"+
		"FORMAT builtin.cpu\n1 user 120 0 100\nFORMAT_END\n"+
		"DATA builtin.cpu 1700000000 15\n"+
		"DATA builtin.hdd.root 1700000000 10 20\n")
	require.NoError(t, err)

	f, ok := next(t, sink).(bus.Format)
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1", f.Host)
	assert.Equal(t, "builtin.cpu", f.Metric)

	d, ok := next(t, sink).(bus.Data)
	require.True(t, ok)
	assert.Equal(t, bus.Data{Host: "127.0.0.1", Metric: "builtin.cpu", Timestamp: 1700000000, Values: []int64{15}}, d)

	d, ok = next(t, sink).(bus.Data)
	require.True(t, ok)
	assert.Equal(t, "builtin.hdd.root", d.Metric)

	c.Control().Send(bus.Shutdown{Reason: "test"})
	require.NoError(t, waitRun(t, done))
	assert.True(t, sink.closed.Load())
	assert.Empty(t, sink.got, "builtin.memory has no subscriber")
	assert.Zero(t, aborted.Load())
}

func TestShutdownWithConnectedAgents(t *testing.T) {
	sink := newRecordingSink()
	port := freePort(t)
	c, _ := newTestController(t, sink, port)
	done := runAsync(c)

	conns := []net.Conn{dialController(t, port), dialController(t, port)}
	for _, conn := range conns {
		_, err := io.WriteString(conn, "DATA builtin.cpu 1 1\n")
		require.NoError(t, err)
	}
	next(t, sink)
	next(t, sink)

	c.Control().Send(bus.Shutdown{Reason: "test"})
	require.NoError(t, waitRun(t, done))

	for _, conn := range conns {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, err := conn.Read(make([]byte, 1))
		assert.ErrorIs(t, err, io.EOF)
	}
}

func TestSinkCrashAborts(t *testing.T) {
	sink := newRecordingSink()
	sink.crash = true
	port := freePort(t)
	c, aborted := newTestController(t, sink, port)
	done := runAsync(c)

	conn := dialController(t, port)
	_, err := io.WriteString(conn, "DATA builtin.cpu 1 1\n")
	require.NoError(t, err)

	err = waitRun(t, done)
	require.ErrorIs(t, err, ErrFatal)
	assert.Contains(t, err.Error(), "test.sink")
	assert.Equal(t, int32(1), aborted.Load())
}

func TestRunFailsWhenPortIsTaken(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	sink := newRecordingSink()
	c, _ := newTestController(t, sink, taken.Addr().(*net.TCPAddr).Port)
	require.Error(t, c.Run(context.Background()))
	assert.True(t, sink.closed.Load(), "built sinks are released")
}

func TestSinkRegistryDefaults(t *testing.T) {
	r := SinkRegistry(quiet, nil)
	assert.Equal(t, config.Sinks, r.Names())

	cfg := config.New(config.ControllerDefaults(), map[string]string{"builtin.rrd.data": t.TempDir()})
	plugins, err := r.Build(cfg)
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	assert.Equal(t, "builtin.rrd", plugins[0].Name())
}
