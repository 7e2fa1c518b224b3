package plugin

import (
	"context"
	"log/slog"

	"liebert/internal/bus"
)

// Sink consumes routed Data and Format messages on the controller.
type Sink interface {
	Name() string
	HandleFormat(f bus.Format)
	HandleData(d bus.Data)
	Close() error
}

// SinkPlugin runs a Sink as a plugin.
type SinkPlugin struct {
	sink   Sink
	logger *slog.Logger
}

var _ Plugin = (*SinkPlugin)(nil)

func NewSinkPlugin(sink Sink, logger *slog.Logger) *SinkPlugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &SinkPlugin{sink: sink, logger: logger.With("plugin", sink.Name())}
}

func (p *SinkPlugin) Name() string { return p.sink.Name() }

// Sink returns the wrapped sink.
func (p *SinkPlugin) Sink() Sink { return p.sink }

func (p *SinkPlugin) Run(inbox *bus.Bus) {
	defer func() {
		if err := p.sink.Close(); err != nil {
			p.logger.Warn("Failed to close sink", "error", err)
		}
	}()

	for {
		m, err := inbox.Recv(context.Background())
		if err != nil {
			return
		}
		switch v := m.(type) {
		case bus.Format:
			p.sink.HandleFormat(v)
		case bus.Data:
			p.sink.HandleData(v)
		case bus.Shutdown:
			p.logger.Debug("Sink shutting down", "reason", v.Reason)
			return
		default:
			Unexpected(p.logger, m)
		}
	}
}
