package collectors

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liebert/internal/bus"
	"liebert/internal/metrics"
	"liebert/internal/plugin"
)

type fakeCollector struct {
	failAfter int32
	calls     atomic.Int32
	primed    bool
	closed    atomic.Bool
}

func (f *fakeCollector) Name() string { return "fake" }

func (f *fakeCollector) Formats(context.Context) ([]bus.Format, error) {
	return []bus.Format{{Metric: "fake", Schema: metrics.Schema{metrics.GaugeSeries("v", 1, metrics.NoBound(), metrics.NoBound())}}}, nil
}

func (f *fakeCollector) Prime(context.Context) error {
	f.primed = true
	return nil
}

func (f *fakeCollector) Collect(_ context.Context, ts int64) ([]bus.Data, error) {
	n := f.calls.Add(1)
	if f.failAfter > 0 && n > f.failAfter {
		return nil, errors.New("source vanished")
	}
	return []bus.Data{{Metric: "fake", Timestamp: ts, Values: []int64{int64(n)}}}, nil
}

func (f *fakeCollector) Close() error {
	f.closed.Store(true)
	return nil
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func recv(t *testing.T, b *bus.Bus) bus.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m, err := b.Recv(ctx)
	require.NoError(t, err)
	return m
}

func TestPluginSendsFormatBeforeData(t *testing.T) {
	control := bus.New("control")
	fc := &fakeCollector{}
	p := NewPlugin(fc, 5*time.Millisecond, control, WithLogger(quiet),
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }))

	h := plugin.Start(p)

	first := recv(t, control)
	f, ok := first.(bus.Format)
	require.True(t, ok, "first message was %T", first)
	assert.Equal(t, "fake", f.Metric)

	d, ok := recv(t, control).(bus.Data)
	require.True(t, ok)
	assert.Equal(t, int64(1700000000), d.Timestamp)
	assert.True(t, fc.primed)

	h.Inbox.Send(bus.Shutdown{Reason: "test"})
	require.NoError(t, h.Worker.Join())
	assert.True(t, fc.closed.Load())
}

func TestPluginStopsWhenSourceFails(t *testing.T) {
	control := bus.New("control")
	fc := &fakeCollector{failAfter: 1}
	h := plugin.Start(NewPlugin(fc, time.Millisecond, control, WithLogger(quiet)))

	require.NoError(t, h.Worker.Join())

	var kinds []string
	for {
		m, ok := control.TryRecv()
		if !ok {
			break
		}
		switch v := m.(type) {
		case bus.Format:
			kinds = append(kinds, "format")
		case bus.Data:
			kinds = append(kinds, "data")
		case bus.Log:
			assert.Equal(t, slog.LevelError, v.Level)
			kinds = append(kinds, "log")
		}
	}
	assert.Equal(t, []string{"format", "data", "log"}, kinds)
	assert.ErrorIs(t, h.Inbox.TrySend(bus.Shutdown{}), bus.ErrConsumerGone)
}

func TestHeartbeatSeconds(t *testing.T) {
	assert.Equal(t, int64(60), HeartbeatSeconds(time.Minute))
	assert.Equal(t, int64(1), HeartbeatSeconds(10*time.Millisecond))
}
