// Package natsfwd republishes routed samples on NATS in the agent wire
// format, one subject per host and metric.
package natsfwd

import (
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"liebert/internal/bus"
	"liebert/internal/config"
	"liebert/internal/metrics"
	"liebert/internal/plugin"
	"liebert/internal/protocol"
)

const Name = "builtin.nats"

// Publisher is the part of *nats.Conn the forwarder needs.
type Publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

type Settings struct {
	URL           string
	SubjectPrefix string
}

// SettingsFromConfig reads builtin.nats.url and subject_prefix.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	if err := cfg.Require(Name+".url", Name+".subject_prefix"); err != nil {
		return Settings{}, err
	}
	return Settings{
		URL:           cfg.MustGet(Name + ".url"),
		SubjectPrefix: cfg.MustGet(Name + ".subject_prefix"),
	}, nil
}

// Forwarder is a plugin.Sink that publishes on NATS.
type Forwarder struct {
	settings Settings
	pub      Publisher
	buf      []byte
	logger   *slog.Logger
	self     *metrics.SelfMonitor
}

var _ plugin.Sink = (*Forwarder)(nil)

type Option func(*Forwarder)

func WithLogger(logger *slog.Logger) Option {
	return func(f *Forwarder) {
		f.logger = logger.With("plugin", Name)
	}
}

func WithSelfMonitor(sm *metrics.SelfMonitor) Option {
	return func(f *Forwarder) {
		f.self = sm
	}
}

// Connect dials the server. An unreachable server is retried in the
// background instead of failing startup.
func Connect(settings Settings, opts ...Option) (*Forwarder, error) {
	f := New(nil, settings, opts...)
	nc, err := nats.Connect(settings.URL,
		nats.Name("liebert-controller"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				f.logger.Warn("Disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			f.logger.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	f.pub = nc
	return f, nil
}

func New(pub Publisher, settings Settings, opts ...Option) *Forwarder {
	f := &Forwarder{
		settings: settings,
		pub:      pub,
		logger:   slog.Default().With("plugin", Name),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Forwarder) Name() string { return Name }

func (f *Forwarder) HandleFormat(m bus.Format) { f.publish(m.Host, m.Metric, m) }

func (f *Forwarder) HandleData(m bus.Data) { f.publish(m.Host, m.Metric, m) }

func (f *Forwarder) publish(host, metric string, m bus.Message) {
	var err error
	f.buf, err = protocol.Append(f.buf[:0], m)
	if err != nil {
		f.logger.Warn("Cannot encode message", "metric", metric, "error", err)
		return
	}

	subject := Subject(f.settings.SubjectPrefix, host, metric)
	if err := f.pub.Publish(subject, f.buf); err != nil {
		f.self.RecordStorageFailure(Name)
		f.logger.Error("Publish failed", "subject", subject, "error", err)
	}
}

// Close flushes pending publishes.
func (f *Forwarder) Close() error {
	return f.pub.Drain()
}

// Subject is <prefix>.<host>.<metric> with the dots inside host and metric
// replaced so each stays a single subject token.
func Subject(prefix, host, metric string) string {
	return prefix + "." + token(host) + "." + token(metric)
}

var subjectToken = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

func token(s string) string {
	return subjectToken.Replace(s)
}
