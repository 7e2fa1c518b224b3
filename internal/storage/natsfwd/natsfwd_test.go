package natsfwd

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liebert/internal/bus"
	"liebert/internal/config"
	"liebert/internal/metrics"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type published struct {
	subject string
	data    string
}

type fakePublisher struct {
	msgs    []published
	err     error
	drained bool
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{subject: subject, data: string(data)})
	return nil
}

func (p *fakePublisher) Drain() error {
	p.drained = true
	return nil
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "liebert.10_0_0_5.builtin_hdd_root", Subject("liebert", "10.0.0.5", "builtin.hdd.root"))
	assert.Equal(t, "metrics.fe80::1.builtin_cpu", Subject("metrics", "fe80::1", "builtin.cpu"))
}

func TestForwardsInWireFormat(t *testing.T) {
	pub := &fakePublisher{}
	f := New(pub, Settings{SubjectPrefix: "liebert"}, WithLogger(quiet))

	f.HandleFormat(bus.Format{Host: "10.0.0.5", Metric: "builtin.load", Schema: metrics.Schema{
		metrics.GaugeSeries("load1", 120, metrics.Limit(0), metrics.NoBound()),
	}})
	f.HandleData(bus.Data{Host: "10.0.0.5", Metric: "builtin.load", Timestamp: 1700000000, Values: []int64{42}})

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, published{"liebert.10_0_0_5.builtin_load", "FORMAT builtin.load\n1 load1 120 0 U\nFORMAT_END\n"}, pub.msgs[0])
	assert.Equal(t, published{"liebert.10_0_0_5.builtin_load", "DATA builtin.load 1700000000 42\n"}, pub.msgs[1])

	require.NoError(t, f.Close())
	assert.True(t, pub.drained)
}

func TestPublishFailureIsContained(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	f := New(pub, Settings{SubjectPrefix: "liebert"}, WithLogger(quiet), WithSelfMonitor(metrics.NewSelfMonitor("controller")))

	assert.NotPanics(t, func() {
		f.HandleData(bus.Data{Host: "h", Metric: "m", Timestamp: 1, Values: []int64{1}})
	})
	assert.Empty(t, pub.msgs)
}

func TestUnencodableMessageIsSkipped(t *testing.T) {
	pub := &fakePublisher{}
	f := New(pub, Settings{SubjectPrefix: "liebert"}, WithLogger(quiet))

	f.HandleData(bus.Data{Host: "h", Metric: "m", Timestamp: 1})
	assert.Empty(t, pub.msgs)
}

func TestSettingsFromConfig(t *testing.T) {
	s, err := SettingsFromConfig(config.New(config.ControllerDefaults()))
	require.NoError(t, err)
	assert.Equal(t, Settings{URL: "nats://127.0.0.1:4222", SubjectPrefix: "liebert"}, s)
}
