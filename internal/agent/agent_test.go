package agent

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liebert/internal/agent/connector"
	"liebert/internal/bus"
	"liebert/internal/config"
	"liebert/internal/metrics"
	"liebert/internal/plugin"
	"liebert/internal/registry"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type emitter struct {
	control bus.Sender
	crash   bool
}

func (e *emitter) Name() string { return "test.emitter" }

func (e *emitter) Run(inbox *bus.Bus) {
	if e.crash {
		panic("sensor exploded")
	}
	e.control.Send(bus.Format{Metric: "test.emitter", Schema: metrics.Schema{
		metrics.GaugeSeries("v", 60, metrics.NoBound(), metrics.NoBound()),
	}})
	e.control.Send(bus.Data{Metric: "test.emitter", Timestamp: 1700000000, Values: []int64{7}})
	e.control.Send(bus.LogInfo("emitter done"))
	for {
		m, err := inbox.Recv(context.Background())
		if err != nil {
			return
		}
		if _, ok := m.(bus.Shutdown); ok {
			return
		}
	}
}

func testConfig(t *testing.T, addr string, extra map[string]string) *config.Config {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	layer := map[string]string{
		config.KeyControllerHost: host,
		config.KeyControllerPort: port,
		config.KeyRetryTimeout:   "10",
		"test.emitter.enabled":   "true",
	}
	for k, v := range extra {
		layer[k] = v
	}
	return config.New(config.AgentDefaults(), layer)
}

// newTestAgent builds an agent whose only plugin is an emitter.
func newTestAgent(t *testing.T, cfg *config.Config, crash bool, opts ...Option) (*Agent, *atomic.Int32) {
	t.Helper()
	var a *Agent
	reg := registry.New(quiet)
	require.NoError(t, reg.Register("test.emitter", func(*config.Config) (plugin.Plugin, error) {
		return &emitter{control: a.Control(), crash: crash}, nil
	}))

	aborted := &atomic.Int32{}
	opts = append([]Option{
		WithRegistry(reg),
		WithAbort(func(code int) { aborted.Store(int32(code)) }),
	}, opts...)

	var err error
	a, err = New(cfg, quiet, opts...)
	require.NoError(t, err)
	return a, aborted
}

func runAsync(a *Agent) <-chan error {
	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
		return nil
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.New(config.AgentDefaults(), map[string]string{config.KeyControllerPort: "0"})
	_, err := New(cfg, quiet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.KeyControllerPort)
}

func TestSamplesReachTheController(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	a, aborted := newTestAgent(t, testConfig(t, ln.Addr().String(), nil), false)
	done := runAsync(a)

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	r := bufio.NewReader(conn)
	var lines []string
	for i := 0; i < 4; i++ {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		lines = append(lines, line)
	}
	assert.Equal(t, []string{
		"FORMAT test.emitter\n",
		"1 v 60 U U\n",
		"FORMAT_END\n",
		"DATA test.emitter 1700000000 7\n",
	}, lines)

	a.Control().Send(bus.Shutdown{Reason: "test"})
	require.NoError(t, waitRun(t, done))
	assert.Zero(t, aborted.Load())
}

func TestWorkerCrashAborts(t *testing.T) {
	cfg := testConfig(t, "127.0.0.1:1", map[string]string{config.KeyRetryTimeout: "3600000"})
	a, aborted := newTestAgent(t, cfg, true, WithConnectorOptions(connector.WithDialer(
		func(context.Context, string) (net.Conn, error) { return nil, errors.New("refused") },
	)))

	err := waitRun(t, runAsync(a))
	require.ErrorIs(t, err, ErrFatal)
	assert.Contains(t, err.Error(), "test.emitter")
	assert.Equal(t, int32(1), aborted.Load())
}

func TestExhaustedRetriesShutDownCleanly(t *testing.T) {
	var attempts atomic.Int32
	cfg := testConfig(t, "127.0.0.1:1", map[string]string{config.KeyMaxRetries: strconv.Itoa(2)})
	a, aborted := newTestAgent(t, cfg, false, WithConnectorOptions(connector.WithDialer(
		func(context.Context, string) (net.Conn, error) {
			attempts.Add(1)
			return nil, errors.New("refused")
		},
	)))

	require.NoError(t, waitRun(t, runAsync(a)))
	assert.Equal(t, int32(3), attempts.Load())
	assert.Zero(t, aborted.Load())
}

func TestContextCancelStopsAgent(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	a, _ := newTestAgent(t, testConfig(t, ln.Addr().String(), nil), false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	cancel()
	require.NoError(t, waitRun(t, done))
}
